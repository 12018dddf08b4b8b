// Package app содержит общую инициализацию инфраструктуры процессов:
// хранилищ, брокера уведомлений и кеша.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/licensing-backend/internal/cache"
	"github.com/magabrotheeeer/licensing-backend/internal/config"
	"github.com/magabrotheeeer/licensing-backend/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/licensing-backend/internal/lib/sl"
	"github.com/magabrotheeeer/licensing-backend/internal/metrics"
	"github.com/magabrotheeeer/licensing-backend/internal/migrations"
	"github.com/magabrotheeeer/licensing-backend/internal/models"
	"github.com/magabrotheeeer/licensing-backend/internal/services/audit"
	"github.com/magabrotheeeer/licensing-backend/internal/services/demo"
	"github.com/magabrotheeeer/licensing-backend/internal/services/identity"
	"github.com/magabrotheeeer/licensing-backend/internal/services/license"
	"github.com/magabrotheeeer/licensing-backend/internal/services/notification"
	"github.com/magabrotheeeer/licensing-backend/internal/storage"
	"github.com/magabrotheeeer/licensing-backend/internal/storage/accounts"
	"github.com/magabrotheeeer/licensing-backend/internal/storage/memory"
	"github.com/magabrotheeeer/licensing-backend/internal/storage/postgres"
)

const (
	connectAttempts = 10
	connectDelay    = 3 * time.Second
)

// Stores объединяет провайдер учётных записей и хранилище документов.
type Stores struct {
	Provider  storage.IdentityProvider
	Documents storage.DocumentStore
	closers   []func()
	checks    []func(ctx context.Context) error
}

// OpenStores открывает хранилища согласно cfg.Driver. Для postgres применяются миграции.
func OpenStores(ctx context.Context, cfg config.Storage, log *slog.Logger) (*Stores, error) {
	const op = "app.OpenStores"

	if cfg.Driver == config.StorageDriverMemory {
		log.Warn("using in-memory storage, data will not survive restart")
		return &Stores{
			Provider:  memory.NewIdentityProvider(),
			Documents: memory.NewDocumentStore(),
		}, nil
	}

	s := &Stores{}
	var docs *postgres.Storage
	err := waitFor(ctx, log, "document store", func() error {
		var err error
		docs, err = postgres.New(ctx, cfg.DocumentStoreDSN)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.closers = append(s.closers, docs.Close)
	if err := migrations.Run(stdlib.OpenDBFromPool(docs.Pool), filepath.Join(cfg.MigrationsPath, migrations.DocumentsDir)); err != nil {
		s.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := docs.CheckDatabaseReady(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var accs *accounts.Storage
	err = waitFor(ctx, log, "identity provider", func() error {
		var err error
		accs, err = accounts.New(ctx, cfg.IdentityProviderDSN)
		return err
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.closers = append(s.closers, func() {
		if err := accs.Close(); err != nil {
			log.Error("failed to close identity provider", sl.Err(err))
		}
	})
	if err := migrations.Run(accs.DB, filepath.Join(cfg.MigrationsPath, migrations.AccountsDir)); err != nil {
		s.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.checks = append(s.checks, docs.CheckDatabaseReady, accs.DB.PingContext)
	s.Provider = accs
	s.Documents = docs
	return s, nil
}

// Ready проверяет доступность хранилищ.
func (s *Stores) Ready(ctx context.Context) error {
	for _, check := range s.checks {
		if err := check(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close освобождает соединения в обратном порядке.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func waitFor(ctx context.Context, log *slog.Logger, what string, connect func() error) error {
	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		if err = connect(); err == nil {
			return nil
		}
		log.Warn("not ready, retrying", slog.String("target", what), slog.Int("attempt", attempt), sl.Err(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(connectDelay):
		}
	}
	return fmt.Errorf("%s not ready after %d attempts: %w", what, connectAttempts, err)
}

// Notifier отправляет уведомления.
type Notifier interface {
	Send(ctx context.Context, template string, identity models.Identity, data map[string]any)
}

// Broker — соединение с RabbitMQ и публикующий канал.
type Broker struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// OpenNotifier подключается к RabbitMQ и возвращает публикующий Dispatcher.
// Без адреса брокера уведомления только пишутся в лог.
func OpenNotifier(cfg config.RabbitMQ, log *slog.Logger, m *metrics.Metrics) (Notifier, *Broker, error) {
	if cfg.RabbitMQURL == "" {
		log.Warn("rabbitmq url is empty, notifications will only be logged")
		return notification.LogNotifier{Log: log}, nil, nil
	}
	b, err := OpenBroker(cfg)
	if err != nil {
		return nil, nil, err
	}
	return notification.NewDispatcher(b.ch, log, m), b, nil
}

// OpenBroker подключается к RabbitMQ и объявляет очереди уведомлений.
func OpenBroker(cfg config.RabbitMQ) (*Broker, error) {
	const op = "app.OpenBroker"
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQRetries, cfg.RabbitMQDelay)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Broker{conn: conn, ch: ch}, nil
}

// Channel возвращает канал брокера.
func (b *Broker) Channel() *amqp.Channel {
	return b.ch
}

// Close закрывает канал и соединение. Безопасен для nil.
func (b *Broker) Close(log *slog.Logger) {
	if b == nil {
		return
	}
	if err := b.ch.Close(); err != nil {
		log.Error("failed to close channel", sl.Err(err))
	}
	if err := b.conn.Close(); err != nil {
		log.Error("failed to close connection", sl.Err(err))
	}
}

// LicenseCache — кеш результатов проверки лицензий.
type LicenseCache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// OpenCache подключается к Redis. Без адреса возвращается cache.Noop.
func OpenCache(ctx context.Context, cfg config.RedisConnection, log *slog.Logger) (LicenseCache, func(), error) {
	if cfg.AddressRedis == "" {
		log.Warn("redis address is empty, license cache disabled")
		return cache.Noop{}, func() {}, nil
	}
	c, err := cache.InitServer(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return c, func() {
		if err := c.Close(); err != nil {
			log.Error("failed to close redis", sl.Err(err))
		}
	}, nil
}

// Services объединяет доменные сервисы, собранные поверх хранилищ.
type Services struct {
	Identities *identity.Synchronizer
	Licenses   *license.Manager
	Demos      *demo.Manager
}

// NewServices собирает синхронизатор, менеджер лицензий и менеджер пробного периода.
func NewServices(cfg *config.Config, s *Stores, n Notifier, c LicenseCache, log *slog.Logger, m *metrics.Metrics) Services {
	auditLog := audit.New(s.Documents, log)
	sync := identity.New(s.Provider, s.Documents, auditLog, log, m)
	return Services{
		Identities: sync,
		Licenses: license.New(license.Deps{
			Store:      s.Documents,
			Identities: sync,
			Audit:      auditLog,
			Cache:      c,
			Notifier:   n,
			Config:     cfg.License,
			Log:        log,
			Metrics:    m,
		}),
		Demos: demo.New(demo.Deps{
			Store:      s.Documents,
			Identities: sync,
			Audit:      auditLog,
			Notifier:   n,
			Config:     cfg.Demo,
			Log:        log,
			Metrics:    m,
		}),
	}
}
