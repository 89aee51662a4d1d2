package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/davidrios/incubadora-telemetry/internal/db"
)

// Memory is an in-memory store with the same query semantics as the pgx
// repository. It backs tests and lets the service run without a database for
// local development.
type Memory struct {
	mu           sync.RWMutex
	measurements []db.Measurement
	alerts       []db.Alert
	nextMeasID   int64
	nextAlertID  int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{nextMeasID: 1, nextAlertID: 1}
}

// InsertMeasurement persists one measurement and returns its id.
func (s *Memory) InsertMeasurement(_ context.Context, m *db.Measurement) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.nextMeasID
	s.nextMeasID++
	s.measurements = append(s.measurements, *m)
	return m.ID, nil
}

// InsertAlerts persists the alert rows derived from one measurement.
func (s *Memory) InsertAlerts(_ context.Context, rows []db.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range rows {
		a.ID = s.nextAlertID
		s.nextAlertID++
		s.alerts = append(s.alerts, a)
	}
	return nil
}

// ListDevices returns every device with its last-seen timestamp and latest
// metrics, ordered by device id.
func (s *Memory) ListDevices(_ context.Context) ([]db.DeviceRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]db.Measurement)
	for _, m := range s.measurements {
		cur, ok := latest[m.DeviceID]
		if !ok || m.TS.After(cur.TS) {
			latest[m.DeviceID] = m
		}
	}

	out := make([]db.DeviceRow, 0, len(latest))
	for id, m := range latest {
		m := m
		out = append(out, db.DeviceRow{ID: id, LastSeen: m.TS, Latest: &m})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// LatestByDevice returns the most recent measurement for one device, or nil.
func (s *Memory) LatestByDevice(_ context.Context, deviceID string) (*db.Measurement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *db.Measurement
	for i := range s.measurements {
		m := s.measurements[i]
		if m.DeviceID != deviceID {
			continue
		}
		if found == nil || m.TS.After(found.TS) {
			found = &m
		}
	}
	if found == nil {
		return nil, nil
	}
	cp := *found
	return &cp, nil
}

// SeriesByDevice returns measurements for one device in ascending timestamp
// order, optionally bounded by a time window.
func (s *Memory) SeriesByDevice(_ context.Context, deviceID string, from, to *time.Time, limit int) ([]db.Measurement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []db.Measurement
	for _, m := range s.measurements {
		if m.DeviceID != deviceID {
			continue
		}
		if from != nil && m.TS.Before(*from) {
			continue
		}
		if to != nil && m.TS.After(*to) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TS.Before(out[j].TS) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RecentAlerts returns recent alert rows, newest first, each with the
// firmware bitmask snapshot of its owning measurement.
func (s *Memory) RecentAlerts(_ context.Context, deviceID string, since *time.Time, limit int) ([]db.AlertWithMask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	masks := make(map[int64]int, len(s.measurements))
	for _, m := range s.measurements {
		masks[m.ID] = m.Alerts
	}

	var out []db.AlertWithMask
	for _, a := range s.alerts {
		if deviceID != "" && a.DeviceID != deviceID {
			continue
		}
		if since != nil && a.CreatedAt.Before(*since) {
			continue
		}
		row := db.AlertWithMask{Alert: a}
		if a.MeasurementID != nil {
			row.Mask = masks[*a.MeasurementID]
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
