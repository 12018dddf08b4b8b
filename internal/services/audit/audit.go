// Package audit ведёт журнал аудита: после каждого перехода состояния
// в коллекцию audit_logs дописывается запись. Журнал только дополняется.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/licensing-backend/internal/lib/sl"
	"github.com/magabrotheeeer/licensing-backend/internal/models"
	"github.com/magabrotheeeer/licensing-backend/internal/storage"
)

// Действия журнала аудита.
const (
	ActionIdentityCreated      = "identity.created"
	ActionIdentitySynchronized = "identity.synchronized"
	ActionIdentityLinked       = "identity.linked"
	ActionLicenseGenerated     = "license.generated"
	ActionLicenseActivated     = "license.activated"
	ActionLicenseExpired       = "license.expired"
	ActionLicenseDeactivated   = "license.deactivated"
	ActionLicenseReactivated   = "license.reactivated"
	ActionLicenseTransferSent  = "license.transfer_sent"
	ActionLicenseTransferRecv  = "license.transfer_received"
	ActionLicenseRevoked       = "license.revoked"
	ActionDemoRegistered       = "demo.registered"
	ActionDemoExpired          = "demo.expired"
	ActionDemoConverted        = "demo.converted"
	ActionDemoAbandoned        = "demo.abandoned"
)

// Logger записывает события аудита в документное хранилище.
type Logger struct {
	store storage.Tx
	log   *slog.Logger
	now   func() time.Time
}

// New создаёт Logger.
func New(store storage.Tx, log *slog.Logger) *Logger {
	return &Logger{store: store, log: log, now: time.Now}
}

func (l *Logger) entry(identityID, action, description string, metadata models.Extensions) models.AuditEntry {
	return models.AuditEntry{
		IdentityID:  identityID,
		Action:      action,
		Description: description,
		Metadata:    metadata,
		CreatedAt:   l.now().UTC(),
	}
}

// Record дописывает запись вне транзакции. Ошибка записи только логируется:
// недоступность журнала не отменяет уже выполненный переход.
func (l *Logger) Record(ctx context.Context, identityID, action, description string, metadata models.Extensions) {
	if _, err := l.store.Create(ctx, models.CollectionAuditLogs, l.entry(identityID, action, description, metadata)); err != nil {
		l.log.Error("failed to write audit entry",
			slog.String("action", action),
			slog.String("identity_id", identityID),
			sl.Err(err),
		)
	}
}

// RecordTx дописывает запись в рамках транзакции tx.
func (l *Logger) RecordTx(ctx context.Context, tx storage.Tx, identityID, action, description string, metadata models.Extensions) error {
	const op = "audit.RecordTx"
	if _, err := tx.Create(ctx, models.CollectionAuditLogs, l.entry(identityID, action, description, metadata)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
