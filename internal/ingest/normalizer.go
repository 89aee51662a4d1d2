package ingest

import (
	"strconv"
	"strings"
	"time"

	"github.com/davidrios/incubadora-telemetry/internal/db"
)

// FallbackDeviceID is the identity assigned to samples that carry none,
// typically raw BLE lines.
const FallbackDeviceID = "esp32-unknown"

// Numeric epoch timestamps above this magnitude are milliseconds.
const epochMillisThreshold = 1e12

// Timestamp string layouts accepted from device firmware, tried in order.
var tsLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Normalize turns a raw decoded payload (JSON object after alias resolution,
// or text-parser output) into one fully resolved measurement. Every fallback
// is silent: a malformed timestamp or an unconvertible field never fails
// ingestion, it just falls through to the next rule. Unknown fields are
// dropped. `alerts` defaults to 0; every other optional stays nil when
// absent.
func Normalize(raw map[string]any, now time.Time) *db.Measurement {
	res := ResolveAliases(raw)

	m := &db.Measurement{
		DeviceID: FallbackDeviceID,
		TS:       now.UTC(),
	}

	if v, ok := res.Fields["device_id"]; ok {
		if s := deviceString(v); s != "" {
			m.DeviceID = s
		}
	}
	if v, ok := res.Fields["ts"]; ok {
		if t, ok := coerceTime(v); ok {
			m.TS = t
		}
	}

	m.TempPielC = floatField(res, "temp_piel_c")
	m.TempAireC = floatField(res, "temp_aire_c")
	m.Humedad = floatField(res, "humedad")
	m.Luz = floatField(res, "luz")
	m.NtcC = floatField(res, "ntc_c")
	m.NtcRaw = intField(res, "ntc_raw")
	m.SetControl = intField(res, "set_control")

	if w := floatField(res, "peso_g"); w != nil {
		if res.Sources["peso_g"] == "kg" {
			*w *= 1000
		}
		m.PesoG = w
	}
	if a := intField(res, "alerts"); a != nil {
		m.Alerts = *a
	}

	return m
}

func deviceString(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// coerceTime resolves a wire timestamp: numeric epoch (ms when the magnitude
// exceeds 1e12, else seconds), then an ISO-8601-ish string. Anything else
// reports false and the caller keeps ingestion time.
func coerceTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case float64:
		if t > epochMillisThreshold || t < -epochMillisThreshold {
			return time.UnixMilli(int64(t)).UTC(), true
		}
		return time.Unix(int64(t), 0).UTC(), true
	case int64:
		return coerceTime(float64(t))
	case int:
		return coerceTime(float64(t))
	case string:
		for _, layout := range tsLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

func floatField(res Resolved, name string) *float64 {
	v, ok := res.Fields[name]
	if !ok {
		return nil
	}
	f, ok := asFloat(v)
	if !ok {
		return nil
	}
	return &f
}

func intField(res Resolved, name string) *int {
	v, ok := res.Fields[name]
	if !ok {
		return nil
	}
	f, ok := asFloat(v)
	if !ok {
		return nil
	}
	i := int(f)
	return &i
}

// asFloat accepts the numeric shapes seen on the wire: JSON numbers decode
// as float64, collector-side code may hand over native ints, and some
// firmware quotes its numbers.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
