// Package scheduler собирает процесс периодических проверок пробных сессий и лицензий.
package scheduler

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/magabrotheeeer/licensing-backend/internal/app"
	"github.com/magabrotheeeer/licensing-backend/internal/config"
	"github.com/magabrotheeeer/licensing-backend/internal/metrics"
	schedulerservice "github.com/magabrotheeeer/licensing-backend/internal/services/scheduler"
)

// App представляет приложение планировщика.
type App struct {
	schedulerService *schedulerservice.Service
	stores           *app.Stores
	broker           *app.Broker
	closeCache       func()
	logger           *slog.Logger
}

// New создает новый экземпляр приложения планировщика.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	stores, err := app.OpenStores(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	// Истёкшие лицензии должны пропадать из кеша проверок API.
	licenseCache, closeCache, err := app.OpenCache(ctx, cfg.RedisConnection, logger)
	if err != nil {
		stores.Close()
		return nil, err
	}

	m := metrics.New(prometheus.NewRegistry())
	notifier, broker, err := app.OpenNotifier(cfg.RabbitMQ, logger, m)
	if err != nil {
		closeCache()
		stores.Close()
		return nil, err
	}

	services := app.NewServices(cfg, stores, notifier, licenseCache, logger, m)

	return &App{
		schedulerService: schedulerservice.New(services.Demos, services.Licenses, cfg.Demo.SweepInterval, logger),
		stores:           stores,
		broker:           broker,
		closeCache:       closeCache,
		logger:           logger,
	}, nil
}

// Run запускает планировщик и блокируется до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	a.schedulerService.Run(ctx)

	a.logger.Info("shutting down scheduler service")
	a.broker.Close(a.logger)
	a.closeCache()
	a.stores.Close()
	return nil
}
