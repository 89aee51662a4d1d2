package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS measurements (
		id          BIGSERIAL PRIMARY KEY,
		device_id   TEXT NOT NULL,
		ts          TIMESTAMPTZ NOT NULL DEFAULT now(),
		temp_piel_c DOUBLE PRECISION,
		temp_aire_c DOUBLE PRECISION,
		humedad     DOUBLE PRECISION,
		luz         DOUBLE PRECISION,
		ntc_raw     INTEGER,
		ntc_c       DOUBLE PRECISION,
		peso_g      DOUBLE PRECISION,
		set_control INTEGER,
		alerts      INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS ix_measurements_device_id ON measurements (device_id)`,
	`CREATE INDEX IF NOT EXISTS ix_measurements_ts ON measurements (ts)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id             BIGSERIAL PRIMARY KEY,
		device_id      TEXT NOT NULL,
		kind           TEXT NOT NULL,
		message        TEXT NOT NULL,
		severity       TEXT NOT NULL,
		measurement_id BIGINT REFERENCES measurements (id),
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS ix_alerts_device_id ON alerts (device_id)`,
	`CREATE INDEX IF NOT EXISTS ix_alerts_created_at ON alerts (created_at)`,
}

// Migrate applies the idempotent schema bootstrap. Statements run one at a
// time because the extended protocol does not accept multi-statement batches.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply migration: %w", err)
		}
	}
	return nil
}
