package stream_test

import (
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/davidrios/incubadora-telemetry/internal/stream"
)

func TestSubscribeAndPublish(t *testing.T) {
	b := stream.NewBroadcaster(zap.NewNop())
	sub := b.Subscribe()
	defer sub.Close()

	b.Publish(stream.Event{Type: "measurement", Payload: map[string]string{"device_id": "dev1"}})

	select {
	case msg := <-sub.C():
		var ev struct {
			Type    string            `json:"type"`
			Payload map[string]string `json:"payload"`
		}
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("Failed to unmarshal event: %v", err)
		}
		if ev.Type != "measurement" {
			t.Errorf("Expected type 'measurement', got %q", ev.Type)
		}
		if ev.Payload["device_id"] != "dev1" {
			t.Errorf("Expected device_id 'dev1', got %q", ev.Payload["device_id"])
		}
	case <-time.After(time.Second):
		t.Fatal("Expected to receive the published event")
	}
}

func TestPublishOrderPerSubscriber(t *testing.T) {
	b := stream.NewBroadcaster(zap.NewNop())
	sub := b.Subscribe()
	defer sub.Close()

	b.Publish(stream.Event{Type: "first"})
	b.Publish(stream.Event{Type: "second"})

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case msg := <-sub.C():
			var ev stream.Event
			if err := json.Unmarshal(msg, &ev); err != nil {
				t.Fatalf("Failed to unmarshal event: %v", err)
			}
			got = append(got, ev.Type)
		case <-time.After(time.Second):
			t.Fatal("Expected two events")
		}
	}
	if got[0] != "first" || got[1] != "second" {
		t.Errorf("Expected publish order [first second], got %v", got)
	}
}

func TestPublishAfterCloseDoesNotBlock(t *testing.T) {
	b := stream.NewBroadcaster(zap.NewNop())
	sub := b.Subscribe()
	sub.Close()

	done := make(chan struct{})
	go func() {
		b.Publish(stream.Event{Type: "measurement"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked after subscriber teardown")
	}

	if b.Len() != 0 {
		t.Errorf("Expected 0 subscribers, got %d", b.Len())
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := stream.NewBroadcaster(zap.NewNop())
	sub := b.Subscribe()
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		// Never drained; well past the buffer depth.
		for i := 0; i < 100; i++ {
			b.Publish(stream.Event{Type: "measurement"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	b := stream.NewBroadcaster(zap.NewNop())
	sub := b.Subscribe()

	sub.Close()
	sub.Close()

	if b.Len() != 0 {
		t.Errorf("Expected 0 subscribers, got %d", b.Len())
	}
}

func TestFanOutToMultipleSubscribers(t *testing.T) {
	b := stream.NewBroadcaster(zap.NewNop())
	sub1 := b.Subscribe()
	defer sub1.Close()
	sub2 := b.Subscribe()
	defer sub2.Close()

	b.Publish(stream.Event{Type: "alert"})

	for i, sub := range []*stream.Subscriber{sub1, sub2} {
		select {
		case <-sub.C():
		case <-time.After(time.Second):
			t.Fatalf("Subscriber %d did not receive the event", i+1)
		}
	}
}
