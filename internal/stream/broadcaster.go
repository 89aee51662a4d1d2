package stream

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// subscriberBuffer is the per-connection queue depth. A consumer that falls
// further behind starts losing events; broadcast is best-effort
// notification, not the system of record.
const subscriberBuffer = 16

// Event is one message fanned out to live subscribers.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Subscriber is one live connection's delivery queue. Single producer (the
// broadcaster), single consumer (the connection handler).
type Subscriber struct {
	ch   chan []byte
	b    *Broadcaster
	once sync.Once
}

// C yields marshalled events in publish order until Close.
func (s *Subscriber) C() <-chan []byte {
	return s.ch
}

// Close deregisters the subscriber and closes its channel. Safe to call more
// than once and from any exit path.
func (s *Subscriber) Close() {
	s.once.Do(func() {
		s.b.remove(s)
	})
}

// Broadcaster maintains the set of live subscribers and delivers events to
// all of them without ever blocking the publisher.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	logger *zap.Logger
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		subs:   make(map[*Subscriber]struct{}),
		logger: logger,
	}
}

// Subscribe registers a new subscriber channel.
func (b *Broadcaster) Subscribe() *Subscriber {
	s := &Subscriber{ch: make(chan []byte, subscriberBuffer), b: b}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

func (b *Broadcaster) remove(s *Subscriber) {
	b.mu.Lock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
	b.mu.Unlock()
}

// Publish delivers the event to every registered subscriber. Delivery is
// non-blocking per subscriber: a full queue misses this event rather than
// stalling the ingest path. Marshalling happens once per publish.
func (b *Broadcaster) Publish(ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("failed to marshal event for broadcast", zap.Error(err), zap.String("type", ev.Type))
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		select {
		case s.ch <- body:
		default:
			b.logger.Debug("subscriber queue full, dropping event", zap.String("type", ev.Type))
		}
	}
}

// Len reports the current subscriber count.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
