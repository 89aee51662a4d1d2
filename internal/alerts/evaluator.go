package alerts

import (
	"fmt"
	"time"

	"github.com/davidrios/incubadora-telemetry/internal/db"
)

// Alert severities.
const (
	SeverityWarn = "warn"
	SeverityCrit = "crit"
)

// Alert kinds, one per clinical rule.
const (
	KindTemperature = "temperature"
	KindHumidity    = "humidity"
	KindWeight      = "weight"
)

// Thresholds holds the clinical ranges the evaluator checks.
type Thresholds struct {
	SkinTempMin float64
	SkinTempMax float64
	HumidityMin float64
	HumidityMax float64
}

// DefaultThresholds returns the monitoring MVP ranges.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SkinTempMin: 36.5,
		SkinTempMax: 37.5,
		HumidityMin: 40.0,
		HumidityMax: 65.0,
	}
}

// Evaluator turns one normalized measurement into zero or more alert rows.
// Rules are plain range checks with no hysteresis or per-patient
// calibration; a production clinical system would need debouncing to avoid
// alert storms on sensor noise.
type Evaluator struct {
	t Thresholds
}

// NewEvaluator creates an evaluator with the given thresholds.
func NewEvaluator(t Thresholds) *Evaluator {
	return &Evaluator{t: t}
}

// Evaluate runs every rule independently and returns the resulting alerts.
// One measurement can produce several alerts; a measurement with no sensor
// fields produces none. Persistence is the caller's responsibility, as is
// filling in the measurement back-reference once the owning row has an id.
func (e *Evaluator) Evaluate(m *db.Measurement) []db.Alert {
	now := time.Now().UTC()
	var out []db.Alert

	if m.TempPielC != nil && (*m.TempPielC < e.t.SkinTempMin || *m.TempPielC > e.t.SkinTempMax) {
		out = append(out, db.Alert{
			DeviceID:  m.DeviceID,
			Kind:      KindTemperature,
			Severity:  SeverityCrit,
			Message:   fmt.Sprintf("skin temperature %.2f C outside [%.1f, %.1f]", *m.TempPielC, e.t.SkinTempMin, e.t.SkinTempMax),
			CreatedAt: now,
		})
	}
	if m.Humedad != nil && (*m.Humedad < e.t.HumidityMin || *m.Humedad > e.t.HumidityMax) {
		out = append(out, db.Alert{
			DeviceID:  m.DeviceID,
			Kind:      KindHumidity,
			Severity:  SeverityWarn,
			Message:   fmt.Sprintf("humidity %.1f%% outside [%.1f, %.1f]", *m.Humedad, e.t.HumidityMin, e.t.HumidityMax),
			CreatedAt: now,
		})
	}
	if m.PesoG != nil && *m.PesoG < 0 {
		out = append(out, db.Alert{
			DeviceID:  m.DeviceID,
			Kind:      KindWeight,
			Severity:  SeverityWarn,
			Message:   fmt.Sprintf("negative weight reading %.1f g", *m.PesoG),
			CreatedAt: now,
		})
	}

	return out
}
