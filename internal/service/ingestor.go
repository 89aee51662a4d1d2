package service

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/davidrios/incubadora-telemetry/internal/alerts"
	"github.com/davidrios/incubadora-telemetry/internal/db"
	"github.com/davidrios/incubadora-telemetry/internal/ingest"
	"github.com/davidrios/incubadora-telemetry/internal/mq"
	"github.com/davidrios/incubadora-telemetry/internal/stream"
)

// Store is the persistence surface the ingestion pipeline and the query API
// need. Implemented by the pgx repository in production and the in-memory
// store in tests and database-less development.
type Store interface {
	InsertMeasurement(ctx context.Context, m *db.Measurement) (int64, error)
	InsertAlerts(ctx context.Context, rows []db.Alert) error
	ListDevices(ctx context.Context) ([]db.DeviceRow, error)
	LatestByDevice(ctx context.Context, deviceID string) (*db.Measurement, error)
	SeriesByDevice(ctx context.Context, deviceID string, from, to *time.Time, limit int) ([]db.Measurement, error)
	RecentAlerts(ctx context.Context, deviceID string, since *time.Time, limit int) ([]db.AlertWithMask, error)
}

// Event types fanned out to live subscribers.
const (
	EventMeasurement = "measurement"
	EventAlert       = "alert"
)

// RequestError is a client input error surfaced as a 4xx response.
type RequestError struct {
	Status int
	Detail string
}

func (e *RequestError) Error() string {
	return e.Detail
}

// Ingestor orchestrates one ingestion: decode, normalize, persist, evaluate
// alerts, persist alerts, broadcast, acknowledge.
type Ingestor struct {
	store       Store
	evaluator   *alerts.Evaluator
	broadcaster *stream.Broadcaster
	publisher   *mq.Publisher // nil when the AMQP mirror is not configured
	routingKey  string
	logger      *zap.Logger
}

// NewIngestor creates the ingestion orchestrator.
func NewIngestor(
	store Store,
	evaluator *alerts.Evaluator,
	broadcaster *stream.Broadcaster,
	publisher *mq.Publisher,
	routingKey string,
	logger *zap.Logger,
) *Ingestor {
	return &Ingestor{
		store:       store,
		evaluator:   evaluator,
		broadcaster: broadcaster,
		publisher:   publisher,
		routingKey:  routingKey,
		logger:      logger,
	}
}

// IngestBody decodes one raw request body according to its declared content
// type and runs the full pipeline. Decode failures come back as
// *RequestError; anything else is a downstream failure.
func (s *Ingestor) IngestBody(ctx context.Context, contentType string, body []byte, logger *zap.Logger) (int64, error) {
	fields, err := decodeBody(contentType, body)
	if err != nil {
		return 0, err
	}
	return s.IngestFields(ctx, fields, logger)
}

// IngestFields runs the pipeline on an already-decoded payload map. Used by
// IngestBody and by the device collector.
func (s *Ingestor) IngestFields(ctx context.Context, fields map[string]any, logger *zap.Logger) (int64, error) {
	m := ingest.Normalize(fields, time.Now())

	// Cannot happen given the fallback sentinel, but guarded anyway.
	if m.DeviceID == "" {
		return 0, &RequestError{Status: http.StatusUnprocessableEntity, Detail: "device identity missing after normalization"}
	}

	id, err := s.store.InsertMeasurement(ctx, m)
	if err != nil {
		return 0, fmt.Errorf("failed to persist measurement: %w", err)
	}

	rows := s.evaluator.Evaluate(m)
	for i := range rows {
		rows[i].MeasurementID = &id
	}
	if err := s.store.InsertAlerts(ctx, rows); err != nil {
		return 0, fmt.Errorf("failed to persist alerts: %w", err)
	}

	logger.Info("measurement ingested",
		zap.Int64("measurement_id", id),
		zap.String("device_id", m.DeviceID),
		zap.Int("alerts", len(rows)),
	)

	s.fanOut(ctx, m, rows, logger)
	return id, nil
}

// fanOut notifies live subscribers and the optional AMQP mirror. Failures
// here are swallowed: broadcast is best-effort, never the system of record.
func (s *Ingestor) fanOut(ctx context.Context, m *db.Measurement, rows []db.Alert, logger *zap.Logger) {
	events := make([]stream.Event, 0, len(rows)+1)
	events = append(events, stream.Event{Type: EventMeasurement, Payload: m})
	for i := range rows {
		events = append(events, stream.Event{Type: EventAlert, Payload: rows[i]})
	}

	for _, ev := range events {
		s.broadcaster.Publish(ev)
		if s.publisher != nil {
			if err := s.publisher.PublishEvent(ctx, s.routingKey, ev); err != nil {
				logger.Warn("failed to mirror event", zap.Error(err), zap.String("type", ev.Type))
			}
		}
	}
}

// decodeBody dispatches on the declared content type: text/plain goes to the
// text parser, application/json to a generic object decode. A JSON object
// whose sole key is "text" routes its value through the text parser. An
// empty content type is treated as JSON since much of the fleet's firmware
// omits the header.
func decodeBody(contentType string, body []byte) (map[string]any, error) {
	mediaType := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}

	switch {
	case mediaType == "text/plain":
		return ingest.ParseText(string(body)), nil

	case mediaType == "" || mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		var decoded any
		if err := json.Unmarshal(body, &decoded); err != nil {
			return nil, &RequestError{Status: http.StatusBadRequest, Detail: "invalid JSON body"}
		}
		switch v := decoded.(type) {
		case map[string]any:
			if text, ok := soleTextField(v); ok {
				return ingest.ParseText(text), nil
			}
			return v, nil
		case string:
			// A bare JSON string is a raw firmware line.
			return ingest.ParseText(v), nil
		default:
			return nil, &RequestError{Status: http.StatusUnsupportedMediaType, Detail: "unsupported payload type"}
		}

	default:
		return nil, &RequestError{Status: http.StatusUnsupportedMediaType, Detail: fmt.Sprintf("unsupported content type %q", mediaType)}
	}
}

func soleTextField(obj map[string]any) (string, bool) {
	if len(obj) != 1 {
		return "", false
	}
	text, ok := obj["text"].(string)
	return text, ok
}
