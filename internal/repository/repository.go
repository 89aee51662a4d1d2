package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/davidrios/incubadora-telemetry/internal/db"
)

const measurementColumns = `id, device_id, ts, temp_piel_c, temp_aire_c, humedad, luz, ntc_raw, ntc_c, peso_g, set_control, alerts`

// Repository handles database operations
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertMeasurement persists one measurement and returns its id.
func (r *Repository) InsertMeasurement(ctx context.Context, m *db.Measurement) (int64, error) {
	query := `
		INSERT INTO measurements (
			device_id, ts, temp_piel_c, temp_aire_c, humedad, luz,
			ntc_raw, ntc_c, peso_g, set_control, alerts
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	var id int64
	err := r.pool.QueryRow(ctx, query,
		m.DeviceID,
		m.TS,
		m.TempPielC,
		m.TempAireC,
		m.Humedad,
		m.Luz,
		m.NtcRaw,
		m.NtcC,
		m.PesoG,
		m.SetControl,
		m.Alerts,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert measurement: %w", err)
	}

	m.ID = id
	return id, nil
}

// InsertAlerts persists the alert rows derived from one measurement within a
// single transaction.
func (r *Repository) InsertAlerts(ctx context.Context, rows []db.Alert) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO alerts (device_id, kind, message, severity, measurement_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, a := range rows {
		if _, err := tx.Exec(ctx, query, a.DeviceID, a.Kind, a.Message, a.Severity, a.MeasurementID, a.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert alert: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit alerts: %w", err)
	}
	return nil
}

// ListDevices returns every device seen in the measurements table with its
// last-seen timestamp and latest metrics.
func (r *Repository) ListDevices(ctx context.Context) ([]db.DeviceRow, error) {
	query := `
		SELECT DISTINCT ON (device_id) ` + measurementColumns + `
		FROM measurements
		ORDER BY device_id, ts DESC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var out []db.DeviceRow
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, db.DeviceRow{ID: m.DeviceID, LastSeen: m.TS, Latest: m})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

// LatestByDevice returns the most recent measurement for one device, or nil
// when the device has never reported.
func (r *Repository) LatestByDevice(ctx context.Context, deviceID string) (*db.Measurement, error) {
	query := `
		SELECT ` + measurementColumns + `
		FROM measurements
		WHERE device_id = $1
		ORDER BY ts DESC
		LIMIT 1
	`

	row := r.pool.QueryRow(ctx, query, deviceID)
	m, err := scanMeasurement(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// SeriesByDevice returns measurements for one device in ascending timestamp
// order, optionally bounded by a time window.
func (r *Repository) SeriesByDevice(ctx context.Context, deviceID string, from, to *time.Time, limit int) ([]db.Measurement, error) {
	query := `SELECT ` + measurementColumns + ` FROM measurements WHERE device_id = $1`
	args := []any{deviceID}

	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND ts >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND ts <= $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY ts ASC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query series: %w", err)
	}
	defer rows.Close()

	var out []db.Measurement
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

// RecentAlerts returns recent alert rows, newest first, each with the
// firmware bitmask snapshot of its owning measurement.
func (r *Repository) RecentAlerts(ctx context.Context, deviceID string, since *time.Time, limit int) ([]db.AlertWithMask, error) {
	query := `
		SELECT a.id, a.device_id, a.kind, a.message, a.severity, a.measurement_id, a.created_at,
		       COALESCE(m.alerts, 0)
		FROM alerts a
		LEFT JOIN measurements m ON m.id = a.measurement_id
		WHERE 1=1
	`
	var args []any

	if deviceID != "" {
		args = append(args, deviceID)
		query += fmt.Sprintf(" AND a.device_id = $%d", len(args))
	}
	if since != nil {
		args = append(args, *since)
		query += fmt.Sprintf(" AND a.created_at >= $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY a.created_at DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var out []db.AlertWithMask
	for rows.Next() {
		var a db.AlertWithMask
		if err := rows.Scan(&a.ID, &a.DeviceID, &a.Kind, &a.Message, &a.Severity, &a.MeasurementID, &a.CreatedAt, &a.Mask); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

func scanMeasurement(row pgx.Row) (*db.Measurement, error) {
	var m db.Measurement
	err := row.Scan(
		&m.ID,
		&m.DeviceID,
		&m.TS,
		&m.TempPielC,
		&m.TempAireC,
		&m.Humedad,
		&m.Luz,
		&m.NtcRaw,
		&m.NtcC,
		&m.PesoG,
		&m.SetControl,
		&m.Alerts,
	)
	if err == pgx.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan measurement: %w", err)
	}
	return &m, nil
}
