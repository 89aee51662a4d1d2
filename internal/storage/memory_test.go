package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/davidrios/incubadora-telemetry/internal/db"
	"github.com/davidrios/incubadora-telemetry/internal/storage"
)

func ts(h int) time.Time {
	return time.Date(2026, 3, 10, h, 0, 0, 0, time.UTC)
}

func TestInsertMeasurement_AssignsIDs(t *testing.T) {
	s := storage.NewMemory()
	ctx := context.Background()

	id1, err := s.InsertMeasurement(ctx, &db.Measurement{DeviceID: "dev1", TS: ts(1)})
	if err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	id2, _ := s.InsertMeasurement(ctx, &db.Measurement{DeviceID: "dev1", TS: ts(2)})

	if id1 != 1 || id2 != 2 {
		t.Errorf("Expected ids 1 and 2, got %d and %d", id1, id2)
	}
}

func TestListDevices_LatestPerDevice(t *testing.T) {
	s := storage.NewMemory()
	ctx := context.Background()

	v1, v2 := 25.0, 26.0
	s.InsertMeasurement(ctx, &db.Measurement{DeviceID: "dev2", TS: ts(1), TempAireC: &v1})
	s.InsertMeasurement(ctx, &db.Measurement{DeviceID: "dev1", TS: ts(2), TempAireC: &v1})
	s.InsertMeasurement(ctx, &db.Measurement{DeviceID: "dev1", TS: ts(3), TempAireC: &v2})

	rows, err := s.ListDevices(ctx)
	if err != nil {
		t.Fatalf("Failed to list devices: %v", err)
	}

	if len(rows) != 2 {
		t.Fatalf("Expected 2 devices, got %d", len(rows))
	}
	if rows[0].ID != "dev1" || rows[1].ID != "dev2" {
		t.Errorf("Expected devices ordered [dev1 dev2], got [%s %s]", rows[0].ID, rows[1].ID)
	}
	if !rows[0].LastSeen.Equal(ts(3)) {
		t.Errorf("Expected dev1 last_seen %v, got %v", ts(3), rows[0].LastSeen)
	}
	if rows[0].Latest == nil || *rows[0].Latest.TempAireC != 26.0 {
		t.Errorf("Expected dev1 latest temp 26.0, got %v", rows[0].Latest)
	}
}

func TestLatestByDevice(t *testing.T) {
	s := storage.NewMemory()
	ctx := context.Background()

	v1, v2 := 25.0, 26.5
	s.InsertMeasurement(ctx, &db.Measurement{DeviceID: "dev1", TS: ts(1), TempAireC: &v1})
	s.InsertMeasurement(ctx, &db.Measurement{DeviceID: "dev1", TS: ts(2), TempAireC: &v2})

	m, err := s.LatestByDevice(ctx, "dev1")
	if err != nil {
		t.Fatalf("Failed to query latest: %v", err)
	}
	if m == nil || *m.TempAireC != 26.5 {
		t.Errorf("Expected latest temp 26.5, got %v", m)
	}

	missing, err := s.LatestByDevice(ctx, "ghost")
	if err != nil {
		t.Fatalf("Failed to query latest: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for unknown device, got %v", missing)
	}
}

func TestSeriesByDevice_AscendingWithWindow(t *testing.T) {
	s := storage.NewMemory()
	ctx := context.Background()

	// Inserted out of order on purpose.
	s.InsertMeasurement(ctx, &db.Measurement{DeviceID: "dev1", TS: ts(3)})
	s.InsertMeasurement(ctx, &db.Measurement{DeviceID: "dev1", TS: ts(1)})
	s.InsertMeasurement(ctx, &db.Measurement{DeviceID: "dev1", TS: ts(2)})
	s.InsertMeasurement(ctx, &db.Measurement{DeviceID: "dev2", TS: ts(2)})

	points, err := s.SeriesByDevice(ctx, "dev1", nil, nil, 100)
	if err != nil {
		t.Fatalf("Failed to query series: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("Expected 3 points, got %d", len(points))
	}
	for i := 1; i < len(points); i++ {
		if points[i].TS.Before(points[i-1].TS) {
			t.Errorf("Expected ascending timestamps, got %v before %v", points[i].TS, points[i-1].TS)
		}
	}

	from := ts(2)
	windowed, _ := s.SeriesByDevice(ctx, "dev1", &from, nil, 100)
	if len(windowed) != 2 {
		t.Errorf("Expected 2 points from %v, got %d", from, len(windowed))
	}
}

func TestRecentAlerts_NewestFirstWithMask(t *testing.T) {
	s := storage.NewMemory()
	ctx := context.Background()

	mid, _ := s.InsertMeasurement(ctx, &db.Measurement{DeviceID: "dev1", TS: ts(1), Alerts: 5})
	s.InsertAlerts(ctx, []db.Alert{
		{DeviceID: "dev1", Kind: "temperature", Severity: "crit", MeasurementID: &mid, CreatedAt: ts(1)},
		{DeviceID: "dev1", Kind: "humidity", Severity: "warn", MeasurementID: &mid, CreatedAt: ts(2)},
	})

	rows, err := s.RecentAlerts(ctx, "dev1", nil, 10)
	if err != nil {
		t.Fatalf("Failed to query alerts: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 alerts, got %d", len(rows))
	}
	if rows[0].Kind != "humidity" {
		t.Errorf("Expected newest alert first, got %q", rows[0].Kind)
	}
	if rows[0].Mask != 5 {
		t.Errorf("Expected mask 5 from owning measurement, got %d", rows[0].Mask)
	}
}
