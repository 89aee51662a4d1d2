package db

import "time"

// Measurement is one ingested telemetry sample. Rows are immutable once
// inserted; a later sample for the same device supersedes, never updates.
// Optional sensor fields are pointers so that "absent" survives the round
// trip to the database instead of degrading to zero.
type Measurement struct {
	ID         int64     `json:"id"`
	DeviceID   string    `json:"device_id"`
	TS         time.Time `json:"ts"`
	TempPielC  *float64  `json:"temp_piel_c,omitempty"`
	TempAireC  *float64  `json:"temp_aire_c,omitempty"`
	Humedad    *float64  `json:"humedad,omitempty"`
	Luz        *float64  `json:"luz,omitempty"`
	NtcRaw     *int      `json:"ntc_raw,omitempty"`
	NtcC       *float64  `json:"ntc_c,omitempty"`
	PesoG      *float64  `json:"peso_g,omitempty"`
	SetControl *int      `json:"set_control,omitempty"`
	Alerts     int       `json:"alerts"`
}

// Alert is a derived event produced by rule evaluation against one
// measurement. Created right after the measurement commits; never mutated.
type Alert struct {
	ID            int64     `json:"id"`
	DeviceID      string    `json:"device_id"`
	Kind          string    `json:"kind"`
	Message       string    `json:"message"`
	Severity      string    `json:"severity"`
	MeasurementID *int64    `json:"measurement_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// AlertWithMask pairs an alert row with the firmware alert bitmask snapshot
// of the measurement that produced it (0 when the back-reference is gone).
type AlertWithMask struct {
	Alert
	Mask int `json:"mask"`
}

// DeviceRow summarises one device for the dashboard device list.
type DeviceRow struct {
	ID       string       `json:"id"`
	LastSeen time.Time    `json:"last_seen"`
	Latest   *Measurement `json:"latest,omitempty"`
}
