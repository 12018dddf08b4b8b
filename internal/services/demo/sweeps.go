package demo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/licensing-backend/internal/lib/sl"
	"github.com/magabrotheeeer/licensing-backend/internal/models"
	"github.com/magabrotheeeer/licensing-backend/internal/storage"
)

// Threshold — порог напоминания до окончания пробного периода.
type Threshold struct {
	Label  string
	Before time.Duration
}

// ReminderThresholds — пороги напоминаний, от дальнего к ближнему.
var ReminderThresholds = []Threshold{
	{Label: "7d", Before: 7 * 24 * time.Hour},
	{Label: "3d", Before: 3 * 24 * time.Hour},
	{Label: "1d", Before: 24 * time.Hour},
	{Label: "2h", Before: 2 * time.Hour},
}

// RunReminderSweep отправляет напоминания сессиям, срок которых попадает в окно
// вокруг now+порог. Каждое напоминание отправляется сессии не более одного раза.
func (m *Manager) RunReminderSweep(ctx context.Context, now time.Time) (int, error) {
	const op = "demo.RunReminderSweep"
	log := m.log.With(sl.Op(op))

	sent := 0
	for _, th := range ReminderThresholds {
		target := now.Add(th.Before)
		docs, err := m.store.QueryRange(ctx, models.CollectionDemoSessions, "expires_at",
			target.Add(-m.cfg.ReminderWindow), target.Add(m.cfg.ReminderWindow))
		if err != nil {
			return sent, fmt.Errorf("%s: %w", op, err)
		}
		candidates, err := storage.DecodeAll[models.DemoSession](docs)
		if err != nil {
			return sent, fmt.Errorf("%s: %w", op, err)
		}

		for _, c := range candidates {
			if c.Status != models.DemoStatusActive || c.Reminded(th.Label) {
				continue
			}
			marked, session, err := m.markReminded(ctx, c.ID, th.Label, now)
			if err != nil {
				log.Error("failed to mark reminder", slog.String("session_id", c.ID), slog.String("label", th.Label), sl.Err(err))
				continue
			}
			if !marked {
				continue
			}

			ident, err := m.identities.Get(ctx, session.IdentityID)
			if err != nil {
				log.Warn("reminder for unknown identity", slog.String("session_id", c.ID), sl.Err(err))
				continue
			}
			m.notifier.Send(ctx, models.TemplateDemoReminder, ident, map[string]any{
				"label":       th.Label,
				"expires_at":  session.ExpiresAt,
				"remaining":   session.Remaining(now).Round(time.Minute).String(),
				"upgrade_url": m.cfg.UpgradeURL,
			})
			m.metrics.Reminder(th.Label)
			sent++
		}
	}
	if sent > 0 {
		log.Info("demo reminders sent", slog.Int("count", sent))
	}
	return sent, nil
}

// markReminded отмечает напоминание label в сессии. Возвращает false, если
// напоминание уже отмечено или сессия больше не активна.
func (m *Manager) markReminded(ctx context.Context, sessionID, label string, now time.Time) (bool, models.DemoSession, error) {
	var (
		session models.DemoSession
		marked  bool
	)
	err := m.store.RunInTx(ctx, func(tx storage.Tx) error {
		marked = false
		if err := tx.Get(ctx, models.CollectionDemoSessions, sessionID, &session); err != nil {
			return err
		}
		if session.Status != models.DemoStatusActive || session.Reminded(label) {
			return nil
		}
		session.RemindersSent = append(session.RemindersSent, label)
		session.ReminderCount++
		marked = true
		return tx.Update(ctx, models.CollectionDemoSessions, sessionID, map[string]any{
			"reminders_sent": session.RemindersSent,
			"reminder_count": session.ReminderCount,
			"updated_at":     now,
		})
	})
	return marked, session, err
}

// RunExpirySweep переводит в EXPIRED активные сессии, срок которых истёк к now,
// и уведомляет владельцев. Повторный запуск безопасен.
func (m *Manager) RunExpirySweep(ctx context.Context, now time.Time) (int, error) {
	const op = "demo.RunExpirySweep"
	log := m.log.With(sl.Op(op))

	docs, err := m.store.QueryRange(ctx, models.CollectionDemoSessions, "expires_at", time.Unix(0, 0), now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	due, err := storage.DecodeAll[models.DemoSession](docs)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var expired []models.DemoSession
	for _, c := range due {
		if c.Status != models.DemoStatusActive {
			continue
		}
		var session models.DemoSession
		changed := false
		err := m.store.RunInTx(ctx, func(tx storage.Tx) error {
			changed = false
			if err := tx.Get(ctx, models.CollectionDemoSessions, c.ID, &session); err != nil {
				return err
			}
			if session.Status != models.DemoStatusActive || !now.After(session.ExpiresAt) {
				return nil
			}
			changed = true
			return m.expireSession(ctx, tx, &session, now)
		})
		if err != nil {
			log.Error("failed to expire demo session", slog.String("session_id", c.ID), sl.Err(err))
			continue
		}
		if changed {
			expired = append(expired, session)
		}
	}
	m.afterExpiry(ctx, expired)

	if len(expired) > 0 {
		log.Info("demo sessions expired", slog.Int("count", len(expired)))
	}
	return len(expired), nil
}
