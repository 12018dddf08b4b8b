// Package demo управляет пробными сессиями: регистрация, проверка доступа
// к функциям, напоминания об окончании, истечение и конверсия в платный аккаунт.
package demo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/licensing-backend/internal/config"
	"github.com/magabrotheeeer/licensing-backend/internal/lib/licensekey"
	"github.com/magabrotheeeer/licensing-backend/internal/lib/sl"
	"github.com/magabrotheeeer/licensing-backend/internal/metrics"
	"github.com/magabrotheeeer/licensing-backend/internal/models"
	"github.com/magabrotheeeer/licensing-backend/internal/services/audit"
	"github.com/magabrotheeeer/licensing-backend/internal/services/identity"
	"github.com/magabrotheeeer/licensing-backend/internal/storage"
)

// Исходы проверки доступа для метрик.
const (
	checkAllowed       = "allowed"
	checkFullAccount   = "full_account"
	checkFeatureLocked = "feature_locked"
	checkTimeLimit     = "time_limit"
)

// Identities описывает операции синхронизатора, нужные менеджеру.
type Identities interface {
	Get(ctx context.Context, identityID string) (models.Identity, error)
	FindByEmail(ctx context.Context, email string) (models.Identity, error)
	CreateSynchronizedIdentity(ctx context.Context, email, pass string, profile identity.Profile) (identity.Result, error)
}

// Auditor записывает события аудита в транзакции.
type Auditor interface {
	RecordTx(ctx context.Context, tx storage.Tx, identityID, action, description string, metadata models.Extensions) error
}

// Notifier отправляет уведомления.
type Notifier interface {
	Send(ctx context.Context, template string, identity models.Identity, data map[string]any)
}

// Deps содержит зависимости менеджера.
type Deps struct {
	Store      storage.DocumentStore
	Identities Identities
	Audit      Auditor
	Notifier   Notifier
	Config     config.Demo
	Log        *slog.Logger
	Metrics    *metrics.Metrics
}

// Manager — менеджер пробных сессий.
type Manager struct {
	store      storage.DocumentStore
	identities Identities
	audit      Auditor
	notifier   Notifier
	cfg        config.Demo
	log        *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// New создаёт Manager.
func New(d Deps) *Manager {
	return &Manager{
		store:      d.Store,
		identities: d.Identities,
		audit:      d.Audit,
		notifier:   d.Notifier,
		cfg:        d.Config,
		log:        d.Log,
		metrics:    d.Metrics,
		now:        time.Now,
	}
}

// RegisterInput содержит данные регистрации пробного аккаунта.
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
	Extensions  models.Extensions
}

// RegisterResult содержит учётную запись и новую сессию.
type RegisterResult struct {
	Identity models.Identity    `json:"identity"`
	Session  models.DemoSession `json:"session"`
}

// AccessResult — результат проверки доступа к функции.
type AccessResult struct {
	Allowed     bool                `json:"allowed"`
	Restriction *models.Restriction `json:"restriction,omitempty"`
}

// StatusResult — состояние последней сессии учётной записи.
type StatusResult struct {
	Session          models.DemoSession `json:"session"`
	RemainingSeconds int64              `json:"remaining_seconds"`
}

// Register создаёт пробную сессию. Новая учётная запись создаётся через синхронизатор,
// существующая демо-запись переиспользуется.
func (m *Manager) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	const op = "demo.Register"
	log := m.log.With(sl.Op(op))

	ident, err := m.identities.FindByEmail(ctx, in.Email)
	switch {
	case err == nil:
		if !ident.IsDemo {
			return RegisterResult{}, fmt.Errorf("%s: %w", op, ErrAlreadyFullAccount)
		}
	case errors.Is(err, identity.ErrNotFound):
		res, err := m.identities.CreateSynchronizedIdentity(ctx, in.Email, in.Password, identity.Profile{
			DisplayName: in.DisplayName,
			Role:        models.RoleUser,
			IsDemo:      true,
			Extensions:  in.Extensions,
		})
		if err != nil {
			return RegisterResult{}, fmt.Errorf("%s: %w", op, err)
		}
		ident = res.Identity
	default:
		return RegisterResult{}, fmt.Errorf("%s: %w", op, err)
	}

	now := m.now().UTC()
	var (
		session models.DemoSession
		expired []models.DemoSession
	)
	err = m.store.RunInTx(ctx, func(tx storage.Tx) error {
		expired = expired[:0]
		sessions, err := sessionsFor(ctx, tx, ident.ID)
		if err != nil {
			return err
		}
		if active := activeSession(sessions); active != nil {
			if !now.After(active.ExpiresAt) {
				return ErrAlreadyActiveDemo
			}
			if err := m.expireSession(ctx, tx, active, now); err != nil {
				return err
			}
			expired = append(expired, *active)
		}

		session = models.DemoSession{
			IdentityID:       ident.ID,
			Token:            uuid.NewString(),
			Tier:             models.TierBasic,
			Status:           models.DemoStatusActive,
			AllowedFeatures:  licensekey.BasicFeatures(),
			FeaturesAccessed: []string{},
			RestrictionsHit:  []models.Restriction{},
			RemindersSent:    []string{},
			StartedAt:        now,
			ExpiresAt:        now.Add(m.cfg.Duration),
			LastActivityAt:   now,
			Extensions:       in.Extensions,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		id, err := tx.Create(ctx, models.CollectionDemoSessions, session)
		if err != nil {
			return err
		}
		session.ID = id

		if ident.DemoExpiredAt != nil || len(expired) > 0 {
			if err := tx.Update(ctx, models.CollectionIdentities, ident.ID, map[string]any{
				"demo_expired_at": nil,
				"updated_at":      now,
			}); err != nil {
				return err
			}
			ident.DemoExpiredAt = nil
		}
		return m.audit.RecordTx(ctx, tx, ident.ID, audit.ActionDemoRegistered, "demo session started",
			models.Extensions{"session_id": id, "expires_at": session.ExpiresAt.Format(time.RFC3339)})
	})
	if errors.Is(err, storage.ErrAlreadyExists) {
		err = ErrAlreadyActiveDemo
	}
	if err != nil {
		return RegisterResult{}, fmt.Errorf("%s: %w", op, err)
	}
	m.afterExpiry(ctx, expired)

	log.Info("demo registered", slog.String("identity_id", ident.ID), slog.String("session_id", session.ID))
	m.notifier.Send(ctx, models.TemplateDemoWelcome, ident, map[string]any{
		"expires_at":  session.ExpiresAt,
		"features":    session.AllowedFeatures,
		"upgrade_url": m.cfg.UpgradeURL,
	})
	return RegisterResult{Identity: ident, Session: session}, nil
}

// CheckFeatureAccess проверяет доступ учётной записи к функции. Полные аккаунты
// проходят всегда. Для демо-аккаунтов обращения и ограничения фиксируются в сессии
// по одному разу.
func (m *Manager) CheckFeatureAccess(ctx context.Context, identityID, feature string) (AccessResult, error) {
	const op = "demo.CheckFeatureAccess"

	feature = strings.TrimSpace(feature)
	if feature == "" {
		return AccessResult{}, fmt.Errorf("%s: %w: feature is required", op, ErrInvalidInput)
	}
	ident, err := m.identities.Get(ctx, identityID)
	if err != nil {
		return AccessResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if !ident.IsDemo {
		m.metrics.FeatureCheck(checkFullAccount)
		return AccessResult{Allowed: true}, nil
	}

	now := m.now().UTC()
	var (
		res     AccessResult
		expired []models.DemoSession
	)
	err = m.store.RunInTx(ctx, func(tx storage.Tx) error {
		expired = expired[:0]
		sessions, err := sessionsFor(ctx, tx, identityID)
		if err != nil {
			return err
		}
		session := activeSession(sessions)
		if session == nil {
			res = m.deny(models.RestrictionTimeLimit, feature, "demo period has ended", now)
			return nil
		}

		if now.After(session.ExpiresAt) {
			res = m.deny(models.RestrictionTimeLimit, feature, "demo period has ended", now)
			session.RestrictionsHit = appendRestriction(session, *res.Restriction)
			if err := m.expireSession(ctx, tx, session, now); err != nil {
				return err
			}
			expired = append(expired, *session)
			return nil
		}

		fields := map[string]any{"last_activity_at": now, "updated_at": now}
		if !session.Allows(feature) {
			res = m.deny(models.RestrictionFeatureLocked, feature, "feature is not available in the demo", now)
			if !session.HasRestriction(models.RestrictionFeatureLocked, feature) {
				fields["restrictions_hit"] = appendRestriction(session, *res.Restriction)
			}
		} else {
			res = AccessResult{Allowed: true}
			if !session.HasAccessed(feature) {
				fields["features_accessed"] = append(session.FeaturesAccessed, feature)
			}
		}
		return tx.Update(ctx, models.CollectionDemoSessions, session.ID, fields)
	})
	if err != nil {
		return AccessResult{}, fmt.Errorf("%s: %w", op, err)
	}
	m.afterExpiry(ctx, expired)

	switch {
	case res.Allowed:
		m.metrics.FeatureCheck(checkAllowed)
	case res.Restriction.Type == models.RestrictionFeatureLocked:
		m.metrics.FeatureCheck(checkFeatureLocked)
	default:
		m.metrics.FeatureCheck(checkTimeLimit)
	}
	return res, nil
}

func (m *Manager) deny(t models.RestrictionType, feature, message string, now time.Time) AccessResult {
	return AccessResult{Restriction: &models.Restriction{
		Type:       t,
		Feature:    feature,
		Message:    message,
		UpgradeURL: m.cfg.UpgradeURL,
		HitAt:      now,
	}}
}

func appendRestriction(s *models.DemoSession, r models.Restriction) []models.Restriction {
	if s.HasRestriction(r.Type, r.Feature) {
		return s.RestrictionsHit
	}
	return append(s.RestrictionsHit, r)
}

// Convert завершает пробный период оплатой: снимает демо-флаг учётной записи и
// переводит сессию в CONVERTED. Лицензии не создаются.
func (m *Manager) Convert(ctx context.Context, identityID, subscriptionID, source string) (models.DemoSession, error) {
	const op = "demo.Convert"

	now := m.now().UTC()
	var (
		session models.DemoSession
		ident   models.Identity
	)
	err := m.store.RunInTx(ctx, func(tx storage.Tx) error {
		if err := tx.Get(ctx, models.CollectionIdentities, identityID, &ident); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return identity.ErrNotFound
			}
			return err
		}
		sessions, err := sessionsFor(ctx, tx, identityID)
		if err != nil {
			return err
		}
		target := convertible(sessions)
		if target == nil {
			return ErrSessionNotFound
		}
		if !models.CanTransitionDemo(target.Status, models.DemoStatusConverted) {
			return &StateError{From: target.Status, To: models.DemoStatusConverted}
		}

		end := now
		if target.ExpiresAt.Before(end) {
			end = target.ExpiresAt
		}
		target.Status = models.DemoStatusConverted
		target.ConvertedAt = &now
		target.ConversionSource = source
		target.SubscriptionID = subscriptionID
		target.TrialDaysUsed = trialDays(target.StartedAt, end)
		target.UpdatedAt = now
		err = tx.Update(ctx, models.CollectionDemoSessions, target.ID, map[string]any{
			"status":            target.Status,
			"converted_at":      now,
			"conversion_source": source,
			"subscription_id":   subscriptionID,
			"trial_days_used":   target.TrialDaysUsed,
			"updated_at":        now,
		})
		if err != nil {
			return err
		}

		ident.IsDemo = false
		ident.DemoExpiredAt = nil
		ident.UpdatedAt = now
		err = tx.Update(ctx, models.CollectionIdentities, identityID, map[string]any{
			"is_demo":         false,
			"demo_expired_at": nil,
			"updated_at":      now,
		})
		if err != nil {
			return err
		}
		session = *target
		return m.audit.RecordTx(ctx, tx, identityID, audit.ActionDemoConverted, "demo converted to paid account",
			models.Extensions{"session_id": target.ID, "subscription_id": subscriptionID, "source": source, "trial_days_used": target.TrialDaysUsed})
	})
	if err != nil {
		return models.DemoSession{}, fmt.Errorf("%s: %w", op, err)
	}

	m.log.Info("demo converted",
		slog.String("identity_id", identityID),
		slog.String("session_id", session.ID),
		slog.Int("trial_days_used", session.TrialDaysUsed),
	)
	m.notifier.Send(ctx, models.TemplateDemoConverted, ident, map[string]any{
		"subscription_id": subscriptionID,
		"trial_days_used": session.TrialDaysUsed,
	})
	return session, nil
}

// convertible выбирает активную сессию, иначе последнюю истёкшую.
func convertible(sessions []models.DemoSession) *models.DemoSession {
	if s := activeSession(sessions); s != nil {
		return s
	}
	var latest *models.DemoSession
	for i := range sessions {
		s := &sessions[i]
		if s.Status != models.DemoStatusExpired {
			continue
		}
		if latest == nil || s.ExpiresAt.After(latest.ExpiresAt) {
			latest = s
		}
	}
	return latest
}

func trialDays(start, end time.Time) int {
	d := end.Sub(start)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}

// Status возвращает последнюю сессию учётной записи и оставшееся время.
func (m *Manager) Status(ctx context.Context, identityID string) (StatusResult, error) {
	const op = "demo.Status"

	now := m.now().UTC()
	var (
		latest  models.DemoSession
		expired []models.DemoSession
	)
	err := m.store.RunInTx(ctx, func(tx storage.Tx) error {
		expired = expired[:0]
		sessions, err := sessionsFor(ctx, tx, identityID)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			return ErrSessionNotFound
		}
		idx := 0
		for i := range sessions {
			if sessions[i].StartedAt.After(sessions[idx].StartedAt) {
				idx = i
			}
		}
		latest = sessions[idx]
		if latest.Status == models.DemoStatusActive && now.After(latest.ExpiresAt) {
			if err := m.expireSession(ctx, tx, &latest, now); err != nil {
				return err
			}
			expired = append(expired, latest)
		}
		return nil
	})
	if err != nil {
		return StatusResult{}, fmt.Errorf("%s: %w", op, err)
	}
	m.afterExpiry(ctx, expired)

	res := StatusResult{Session: latest}
	if latest.Status == models.DemoStatusActive {
		res.RemainingSeconds = int64(latest.Remaining(now) / time.Second)
	}
	return res, nil
}

// Abandon вручную переводит активную сессию в ABANDONED.
func (m *Manager) Abandon(ctx context.Context, sessionID, reason, actorID string) (models.DemoSession, error) {
	const op = "demo.Abandon"

	now := m.now().UTC()
	var session models.DemoSession
	err := m.store.RunInTx(ctx, func(tx storage.Tx) error {
		if err := tx.Get(ctx, models.CollectionDemoSessions, sessionID, &session); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		if !models.CanTransitionDemo(session.Status, models.DemoStatusAbandoned) {
			return &StateError{From: session.Status, To: models.DemoStatusAbandoned}
		}
		session.Status = models.DemoStatusAbandoned
		session.AbandonedAt = &now
		session.AbandonReason = reason
		session.UpdatedAt = now
		err := tx.Update(ctx, models.CollectionDemoSessions, sessionID, map[string]any{
			"status":         session.Status,
			"abandoned_at":   now,
			"abandon_reason": reason,
			"updated_at":     now,
		})
		if err != nil {
			return err
		}
		return m.audit.RecordTx(ctx, tx, session.IdentityID, audit.ActionDemoAbandoned, "demo session abandoned",
			models.Extensions{"session_id": sessionID, "reason": reason, "actor_id": actorID})
	})
	if err != nil {
		return models.DemoSession{}, fmt.Errorf("%s: %w", op, err)
	}
	m.log.Info("demo abandoned", slog.String("session_id", sessionID), slog.String("actor_id", actorID))
	return session, nil
}

// expireSession переводит сессию в EXPIRED и отмечает время окончания в учётной записи.
func (m *Manager) expireSession(ctx context.Context, tx storage.Tx, s *models.DemoSession, now time.Time) error {
	if !models.CanTransitionDemo(s.Status, models.DemoStatusExpired) {
		return &StateError{From: s.Status, To: models.DemoStatusExpired}
	}
	s.Status = models.DemoStatusExpired
	s.UpdatedAt = now
	fields := map[string]any{
		"status":     s.Status,
		"updated_at": now,
	}
	if s.RestrictionsHit != nil {
		fields["restrictions_hit"] = s.RestrictionsHit
	}
	if err := tx.Update(ctx, models.CollectionDemoSessions, s.ID, fields); err != nil {
		return err
	}
	err := tx.Update(ctx, models.CollectionIdentities, s.IdentityID, map[string]any{
		"demo_expired_at": now,
		"updated_at":      now,
	})
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return m.audit.RecordTx(ctx, tx, s.IdentityID, audit.ActionDemoExpired, "demo period ended",
		models.Extensions{"session_id": s.ID})
}

// afterExpiry учитывает истёкшие сессии в метриках и уведомляет владельцев.
// Вызывается после фиксации транзакции.
func (m *Manager) afterExpiry(ctx context.Context, sessions []models.DemoSession) {
	for _, s := range sessions {
		m.metrics.Expired()
		ident, err := m.identities.Get(ctx, s.IdentityID)
		if err != nil {
			m.log.Warn("demo expired for unknown identity", slog.String("session_id", s.ID), sl.Err(err))
			continue
		}
		m.notifier.Send(ctx, models.TemplateDemoExpired, ident, map[string]any{
			"expired_at":  s.ExpiresAt,
			"upgrade_url": m.cfg.UpgradeURL,
		})
	}
}

func sessionsFor(ctx context.Context, q storage.Tx, identityID string) ([]models.DemoSession, error) {
	docs, err := q.QueryByEquality(ctx, models.CollectionDemoSessions, "identity_id", identityID)
	if err != nil {
		return nil, err
	}
	return storage.DecodeAll[models.DemoSession](docs)
}

func activeSession(sessions []models.DemoSession) *models.DemoSession {
	for i := range sessions {
		if sessions[i].Status == models.DemoStatusActive {
			return &sessions[i]
		}
	}
	return nil
}
