package alerts_test

import (
	"strings"
	"testing"

	"github.com/davidrios/incubadora-telemetry/internal/alerts"
	"github.com/davidrios/incubadora-telemetry/internal/db"
)

func f(v float64) *float64 { return &v }

func TestEvaluate_SkinTempHigh(t *testing.T) {
	e := alerts.NewEvaluator(alerts.DefaultThresholds())

	rows := e.Evaluate(&db.Measurement{DeviceID: "dev1", TempPielC: f(38.0)})

	if len(rows) != 1 {
		t.Fatalf("Expected exactly 1 alert, got %d", len(rows))
	}
	if rows[0].Kind != alerts.KindTemperature {
		t.Errorf("Expected kind 'temperature', got %q", rows[0].Kind)
	}
	if rows[0].Severity != alerts.SeverityCrit {
		t.Errorf("Expected severity 'crit', got %q", rows[0].Severity)
	}
	if !strings.Contains(rows[0].Message, "38.00") {
		t.Errorf("Expected message to include the value to two decimals, got %q", rows[0].Message)
	}
	if rows[0].DeviceID != "dev1" {
		t.Errorf("Expected device_id 'dev1', got %q", rows[0].DeviceID)
	}
}

func TestEvaluate_SkinTempInRange(t *testing.T) {
	e := alerts.NewEvaluator(alerts.DefaultThresholds())

	rows := e.Evaluate(&db.Measurement{DeviceID: "dev1", TempPielC: f(37.0)})

	if len(rows) != 0 {
		t.Errorf("Expected no alerts for in-range temperature, got %d", len(rows))
	}
}

func TestEvaluate_BoundariesAreInRange(t *testing.T) {
	e := alerts.NewEvaluator(alerts.DefaultThresholds())

	rows := e.Evaluate(&db.Measurement{TempPielC: f(36.5), Humedad: f(65.0)})
	if len(rows) != 0 {
		t.Errorf("Expected boundary values to pass, got %d alerts", len(rows))
	}
}

func TestEvaluate_HumidityHigh(t *testing.T) {
	e := alerts.NewEvaluator(alerts.DefaultThresholds())

	rows := e.Evaluate(&db.Measurement{DeviceID: "dev1", Humedad: f(70.0)})

	if len(rows) != 1 {
		t.Fatalf("Expected exactly 1 alert, got %d", len(rows))
	}
	if rows[0].Kind != alerts.KindHumidity {
		t.Errorf("Expected kind 'humidity', got %q", rows[0].Kind)
	}
	if rows[0].Severity != alerts.SeverityWarn {
		t.Errorf("Expected severity 'warn', got %q", rows[0].Severity)
	}
	if !strings.Contains(rows[0].Message, "70.0") {
		t.Errorf("Expected message to include the value to one decimal, got %q", rows[0].Message)
	}
}

func TestEvaluate_NegativeWeight(t *testing.T) {
	e := alerts.NewEvaluator(alerts.DefaultThresholds())

	rows := e.Evaluate(&db.Measurement{DeviceID: "dev1", PesoG: f(-5.0)})

	if len(rows) != 1 {
		t.Fatalf("Expected exactly 1 alert, got %d", len(rows))
	}
	if rows[0].Kind != alerts.KindWeight {
		t.Errorf("Expected kind 'weight', got %q", rows[0].Kind)
	}
	if rows[0].Severity != alerts.SeverityWarn {
		t.Errorf("Expected severity 'warn', got %q", rows[0].Severity)
	}
}

func TestEvaluate_EmptyMeasurementNoAlerts(t *testing.T) {
	e := alerts.NewEvaluator(alerts.DefaultThresholds())

	rows := e.Evaluate(&db.Measurement{DeviceID: "dev1"})

	if len(rows) != 0 {
		t.Errorf("Expected zero alerts for an empty measurement, got %d", len(rows))
	}
}

func TestEvaluate_MultipleRulesFire(t *testing.T) {
	e := alerts.NewEvaluator(alerts.DefaultThresholds())

	rows := e.Evaluate(&db.Measurement{DeviceID: "dev1", TempPielC: f(35.0), Humedad: f(20.0), PesoG: f(-1.0)})

	if len(rows) != 3 {
		t.Errorf("Expected 3 independent alerts, got %d", len(rows))
	}
}

func TestDecodeMask(t *testing.T) {
	labels := alerts.DecodeMask(1 | 4 | 16)

	expected := []string{"overtemp", "sensor_fail", "bad_posture"}
	if len(labels) != len(expected) {
		t.Fatalf("Expected %d labels, got %d", len(expected), len(labels))
	}
	for i, want := range expected {
		if labels[i] != want {
			t.Errorf("Expected label %q at %d, got %q", want, i, labels[i])
		}
	}
}

func TestDecodeMask_Zero(t *testing.T) {
	labels := alerts.DecodeMask(0)
	if len(labels) != 0 {
		t.Errorf("Expected no labels for zero mask, got %v", labels)
	}
}
