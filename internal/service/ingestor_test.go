package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/davidrios/incubadora-telemetry/internal/alerts"
	"github.com/davidrios/incubadora-telemetry/internal/service"
	"github.com/davidrios/incubadora-telemetry/internal/storage"
	"github.com/davidrios/incubadora-telemetry/internal/stream"
)

func newTestIngestor() (*service.Ingestor, *storage.Memory, *stream.Broadcaster) {
	store := storage.NewMemory()
	bc := stream.NewBroadcaster(zap.NewNop())
	ing := service.NewIngestor(store, alerts.NewEvaluator(alerts.DefaultThresholds()), bc, nil, "", zap.NewNop())
	return ing, store, bc
}

func TestIngestBody_CanonicalJSON(t *testing.T) {
	ing, store, _ := newTestIngestor()
	ctx := context.Background()

	body := []byte(`{"device_id":"dev1","temp_aire_c":26.3,"humedad":50.0}`)
	id, err := ing.IngestBody(ctx, "application/json", body, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to ingest: %v", err)
	}
	if id != 1 {
		t.Errorf("Expected id 1, got %d", id)
	}

	m, _ := store.LatestByDevice(ctx, "dev1")
	if m == nil || *m.TempAireC != 26.3 {
		t.Errorf("Expected persisted temp_aire_c 26.3, got %v", m)
	}
}

func TestIngestBody_AliasJSON(t *testing.T) {
	ing, store, _ := newTestIngestor()
	ctx := context.Background()

	_, err := ing.IngestBody(ctx, "application/json", []byte(`{"id":"esp32-1","temperatura":35.1}`), zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to ingest: %v", err)
	}

	m, _ := store.LatestByDevice(ctx, "esp32-1")
	if m == nil || m.TempAireC == nil || *m.TempAireC != 35.1 {
		t.Errorf("Expected temp_aire_c 35.1, got %v", m)
	}
}

func TestIngestBody_TextPlain(t *testing.T) {
	ing, store, _ := newTestIngestor()
	ctx := context.Background()

	_, err := ing.IngestBody(ctx, "text/plain", []byte("Air: 26.3 | Skin: 34.2"), zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to ingest: %v", err)
	}

	m, _ := store.LatestByDevice(ctx, "esp32-unknown")
	if m == nil {
		t.Fatal("Expected a measurement for the fallback device")
	}
	if *m.TempAireC != 26.3 || *m.TempPielC != 34.2 {
		t.Errorf("Expected air 26.3 / skin 34.2, got %v / %v", m.TempAireC, m.TempPielC)
	}
}

func TestIngestBody_WrappedTextField(t *testing.T) {
	ing, store, _ := newTestIngestor()
	ctx := context.Background()

	_, err := ing.IngestBody(ctx, "application/json", []byte(`{"text":"RH: 52 | Weight: 3.2"}`), zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to ingest: %v", err)
	}

	m, _ := store.LatestByDevice(ctx, "esp32-unknown")
	if m == nil || *m.Humedad != 52.0 || *m.PesoG != 3200.0 {
		t.Errorf("Expected humedad 52.0 and peso_g 3200.0, got %v", m)
	}
}

func TestIngestBody_InvalidJSON(t *testing.T) {
	ing, _, _ := newTestIngestor()

	_, err := ing.IngestBody(context.Background(), "application/json", []byte(`{not json`), zap.NewNop())

	var reqErr *service.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("Expected RequestError, got %v", err)
	}
	if reqErr.Status != 400 {
		t.Errorf("Expected status 400, got %d", reqErr.Status)
	}
}

func TestIngestBody_UnsupportedContentType(t *testing.T) {
	ing, _, _ := newTestIngestor()

	_, err := ing.IngestBody(context.Background(), "application/xml", []byte(`<m/>`), zap.NewNop())

	var reqErr *service.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("Expected RequestError, got %v", err)
	}
	if reqErr.Status != 415 {
		t.Errorf("Expected status 415, got %d", reqErr.Status)
	}
}

func TestIngest_PersistsAlertsWithBackReference(t *testing.T) {
	ing, store, _ := newTestIngestor()
	ctx := context.Background()

	id, err := ing.IngestBody(ctx, "application/json", []byte(`{"device_id":"dev1","temp_piel_c":38.0}`), zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to ingest: %v", err)
	}

	rows, _ := store.RecentAlerts(ctx, "dev1", nil, 10)
	if len(rows) != 1 {
		t.Fatalf("Expected exactly 1 alert, got %d", len(rows))
	}
	if rows[0].Severity != alerts.SeverityCrit {
		t.Errorf("Expected severity 'crit', got %q", rows[0].Severity)
	}
	if rows[0].MeasurementID == nil || *rows[0].MeasurementID != id {
		t.Errorf("Expected measurement back-reference %d, got %v", id, rows[0].MeasurementID)
	}
}

func TestIngest_BroadcastsMeasurementAndAlerts(t *testing.T) {
	ing, _, bc := newTestIngestor()
	sub := bc.Subscribe()
	defer sub.Close()

	_, err := ing.IngestBody(context.Background(), "application/json", []byte(`{"device_id":"dev1","humedad":70.0}`), zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to ingest: %v", err)
	}

	var types []string
	for i := 0; i < 2; i++ {
		select {
		case msg := <-sub.C():
			types = append(types, string(msg))
		case <-time.After(time.Second):
			t.Fatalf("Expected 2 events, got %d", len(types))
		}
	}
	if !strings.Contains(types[0], `"type":"measurement"`) {
		t.Errorf("Expected first event to be a measurement, got %s", types[0])
	}
	if !strings.Contains(types[1], `"type":"alert"`) {
		t.Errorf("Expected second event to be an alert, got %s", types[1])
	}
}
