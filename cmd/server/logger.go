package main

import (
	"go.uber.org/zap"

	"github.com/davidrios/incubadora-telemetry/internal/config"
	"github.com/davidrios/incubadora-telemetry/internal/logging"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName)
}
