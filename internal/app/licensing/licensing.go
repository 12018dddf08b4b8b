package licensing

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/licensing-backend/internal/app"
	"github.com/magabrotheeeer/licensing-backend/internal/config"
	"github.com/magabrotheeeer/licensing-backend/internal/http/handlers/demos"
	"github.com/magabrotheeeer/licensing-backend/internal/http/handlers/health"
	"github.com/magabrotheeeer/licensing-backend/internal/http/handlers/identities"
	"github.com/magabrotheeeer/licensing-backend/internal/http/handlers/licenses"
	"github.com/magabrotheeeer/licensing-backend/internal/lib/jwt"
	"github.com/magabrotheeeer/licensing-backend/internal/metrics"
)

const shutdownTimeout = 15 * time.Second

// App — HTTP-сервер API лицензирования.
type App struct {
	server     *http.Server
	logger     *slog.Logger
	stores     *app.Stores
	broker     *app.Broker
	closeCache func()
}

// New подключает хранилища, кеш и брокер, собирает сервисы и маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	stores, err := app.OpenStores(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	licenseCache, closeCache, err := app.OpenCache(ctx, cfg.RedisConnection, logger)
	if err != nil {
		stores.Close()
		return nil, err
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	notifier, broker, err := app.OpenNotifier(cfg.RabbitMQ, logger, m)
	if err != nil {
		closeCache()
		stores.Close()
		return nil, err
	}

	services := app.NewServices(cfg, stores, notifier, licenseCache, logger, m)
	tokens := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, Handlers{
		Identities: identities.New(logger, services.Identities, tokens),
		Licenses:   licenses.New(logger, services.Licenses),
		Demos:      demos.New(logger, services.Demos),
		Health:     health.New(logger, stores),
	}, tokens, rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst))

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:     srv,
		logger:     logger,
		stores:     stores,
		broker:     broker,
		closeCache: closeCache,
	}, nil
}

// Run обслуживает запросы до отмены ctx, затем плавно останавливает сервер.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err = a.server.Shutdown(timeoutCtx)
	}

	a.broker.Close(a.logger)
	a.closeCache()
	a.stores.Close()
	return err
}
