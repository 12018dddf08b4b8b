// Package notification отправляет уведомления в брокер сообщений.
// Отправка работает по принципу «выстрелил и забыл»: ошибки логируются
// и никогда не прерывают вызывающую операцию.
package notification

import (
	"context"
	"log/slog"
	"sync"

	"github.com/magabrotheeeer/licensing-backend/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/licensing-backend/internal/lib/sl"
	"github.com/magabrotheeeer/licensing-backend/internal/metrics"
	"github.com/magabrotheeeer/licensing-backend/internal/models"
)

// Dispatcher публикует уведомления в обменник notifications.
// Канал AMQP не потокобезопасен, поэтому публикации сериализуются.
type Dispatcher struct {
	mu      sync.Mutex
	ch      rabbitmq.Channel
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewDispatcher создаёт Dispatcher поверх канала ch.
func NewDispatcher(ch rabbitmq.Channel, log *slog.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{ch: ch, log: log, metrics: m}
}

// Send публикует уведомление с шаблоном template для учётной записи identity.
func (d *Dispatcher) Send(ctx context.Context, template string, identity models.Identity, data map[string]any) {
	msg := models.Notification{
		Template:    template,
		IdentityID:  identity.ID,
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
		Data:        data,
	}
	log := d.log.With(slog.String("template", template), slog.String("identity_id", identity.ID))

	if err := ctx.Err(); err != nil {
		log.Warn("notification dropped, context done", sl.Err(err))
		d.metrics.Notification(template, false)
		return
	}

	d.mu.Lock()
	err := rabbitmq.PublishMessage(d.ch, rabbitmq.ExchangeNotifications, rabbitmq.RoutingKeyEmail, msg)
	d.mu.Unlock()
	if err != nil {
		log.Error("failed to publish notification", sl.Err(err))
		d.metrics.Notification(template, false)
		return
	}
	d.metrics.Notification(template, true)
	log.Debug("notification published")
}

// LogNotifier только пишет уведомления в лог. Используется без брокера.
type LogNotifier struct {
	Log *slog.Logger
}

// Send логирует уведомление.
func (n LogNotifier) Send(_ context.Context, template string, identity models.Identity, _ map[string]any) {
	n.Log.Info("notification (no broker configured)",
		slog.String("template", template),
		slog.String("identity_id", identity.ID),
	)
}
