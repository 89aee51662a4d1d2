package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/davidrios/incubadora-telemetry/internal/alerts"
	"github.com/davidrios/incubadora-telemetry/internal/api"
	"github.com/davidrios/incubadora-telemetry/internal/collector"
	"github.com/davidrios/incubadora-telemetry/internal/config"
	"github.com/davidrios/incubadora-telemetry/internal/db"
	"github.com/davidrios/incubadora-telemetry/internal/modelreg"
	"github.com/davidrios/incubadora-telemetry/internal/mq"
	"github.com/davidrios/incubadora-telemetry/internal/repository"
	"github.com/davidrios/incubadora-telemetry/internal/service"
	"github.com/davidrios/incubadora-telemetry/internal/storage"
	"github.com/davidrios/incubadora-telemetry/internal/stream"
)

// ProvideStore selects the persistence backend: the pgx repository when
// DATABASE_URL is configured, the in-memory store otherwise.
func ProvideStore(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (service.Store, error) {
	if cfg.Database.URL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store (data is lost on restart)")
		return storage.NewMemory(), nil
	}
	pool, err := db.NewPool(lc, logger, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	return repository.NewRepository(pool), nil
}

// ProvideBroadcaster creates the live event fan-out hub.
func ProvideBroadcaster(logger *zap.Logger) *stream.Broadcaster {
	return stream.NewBroadcaster(logger)
}

// ProvideEvaluator creates the clinical rule evaluator.
func ProvideEvaluator(cfg *config.Config) *alerts.Evaluator {
	return alerts.NewEvaluator(alerts.Thresholds{
		SkinTempMin: cfg.Thresholds.SkinTempMin,
		SkinTempMax: cfg.Thresholds.SkinTempMax,
		HumidityMin: cfg.Thresholds.HumidityMin,
		HumidityMax: cfg.Thresholds.HumidityMax,
	})
}

// ProvideEventMirror creates the optional AMQP event mirror. Returns nil
// when RABBITMQ_URL is not configured.
func ProvideEventMirror(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Publisher, error) {
	if cfg.RabbitMQ.URL == "" {
		logger.Info("RABBITMQ_URL not set, event mirroring disabled")
		return nil, nil
	}
	conn, err := mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}
	pub, err := mq.NewPublisher(conn, cfg.RabbitMQ.EventExchange, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return pub.Close()
		},
	})
	return pub, nil
}

// ProvideIngestor creates the ingestion orchestrator.
func ProvideIngestor(
	store service.Store,
	evaluator *alerts.Evaluator,
	broadcaster *stream.Broadcaster,
	publisher *mq.Publisher,
	cfg *config.Config,
	logger *zap.Logger,
) *service.Ingestor {
	return service.NewIngestor(store, evaluator, broadcaster, publisher, cfg.RabbitMQ.EventRoutingKey, logger)
}

// ProvideModelRegistry creates the model status registry.
func ProvideModelRegistry(cfg *config.Config) *modelreg.Registry {
	return modelreg.New(cfg.Model.Name, cfg.Model.Version)
}

// ProvideCollector creates the background device poller.
func ProvideCollector(ingestor *service.Ingestor, cfg *config.Config, logger *zap.Logger) *collector.Collector {
	period := time.Duration(cfg.Collector.PeriodMS) * time.Millisecond
	return collector.New(ingestor, cfg.Collector.Devices, period, logger)
}

// ProvideHandler creates the API handler set.
func ProvideHandler(
	ingestor *service.Ingestor,
	store service.Store,
	broadcaster *stream.Broadcaster,
	registry *modelreg.Registry,
	col *collector.Collector,
	logger *zap.Logger,
	cfg *config.Config,
) *api.Handler {
	return api.NewHandler(ingestor, store, broadcaster, registry, col, logger, cfg.APIKey)
}

// ProvideRouter builds the routing table.
func ProvideRouter(h *api.Handler, logger *zap.Logger) *chi.Mux {
	return api.NewRouter(h, logger)
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Config,
	logger *zap.Logger,
	router *chi.Mux,
	col *collector.Collector,
) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting http server", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server failed", zap.Error(err))
				}
			}()
			col.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			col.Stop()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("http server shutdown failed", zap.Error(err))
				return err
			}
			logger.Info("server stopped gracefully")
			return nil
		},
	})
}
