// Package sender собирает процесс доставки почтовых уведомлений.
package sender

import (
	"context"
	"log/slog"

	"github.com/magabrotheeeer/licensing-backend/internal/app"
	"github.com/magabrotheeeer/licensing-backend/internal/config"
	"github.com/magabrotheeeer/licensing-backend/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/licensing-backend/internal/lib/smtp"
	senderservice "github.com/magabrotheeeer/licensing-backend/internal/services/sender"
)

// App — потребитель очереди писем.
type App struct {
	broker        *app.Broker
	senderService *senderservice.Service
	logger        *slog.Logger
}

// New подключается к брокеру и готовит SMTP-транспорт.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	broker, err := app.OpenBroker(cfg.RabbitMQ)
	if err != nil {
		return nil, err
	}

	transport := smtp.NewTransport(cfg.SMTP, logger)

	return &App{
		broker:        broker,
		senderService: senderservice.New(transport, logger),
		logger:        logger,
	}, nil
}

// Run читает очередь писем до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumerMessage(ctx, a.broker.Channel(), rabbitmq.QueueEmail, rabbitmq.DefaultConcurrency, a.logger, a.senderService.Handle)
	if err != nil {
		a.logger.Error("failed to start consumer", slog.String("queue", rabbitmq.QueueEmail), slog.Any("err", err))
		a.broker.Close(a.logger)
		return err
	}

	<-ctx.Done()
	a.logger.Info("sender service shutting down gracefully")
	a.broker.Close(a.logger)
	return nil
}
