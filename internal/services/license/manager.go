// Package license управляет жизненным циклом лицензионных ключей:
// выпуск, активация, деактивация, передача, отзыв и проверка.
//
// Все изменения состояния выполняются в транзакции документного хранилища,
// которая блокирует документ лицензии. Истечение срока применяется лениво
// при каждом чтении.
package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/licensing-backend/internal/config"
	"github.com/magabrotheeeer/licensing-backend/internal/lib/licensekey"
	"github.com/magabrotheeeer/licensing-backend/internal/lib/sl"
	"github.com/magabrotheeeer/licensing-backend/internal/metrics"
	"github.com/magabrotheeeer/licensing-backend/internal/models"
	"github.com/magabrotheeeer/licensing-backend/internal/services/audit"
	"github.com/magabrotheeeer/licensing-backend/internal/services/identity"
	"github.com/magabrotheeeer/licensing-backend/internal/storage"
)

// MaxBatch — максимальное число лицензий в одном выпуске.
const MaxBatch = 100

// Исходы активации для метрик.
const (
	outcomeOK          = "ok"
	outcomeWrongFormat = "wrong_format"
	outcomeNotFound    = "not_found"
	outcomeTerminal    = "terminal"
	outcomeExpired     = "expired"
	outcomeLimit       = "limit_reached"
	outcomeError       = "error"
)

// Identities читает учётные записи.
type Identities interface {
	Get(ctx context.Context, identityID string) (models.Identity, error)
	FindByEmail(ctx context.Context, email string) (models.Identity, error)
}

// Auditor записывает события аудита.
type Auditor interface {
	RecordTx(ctx context.Context, tx storage.Tx, identityID, action, description string, metadata models.Extensions) error
}

// Cache — cache-aside хранилище результатов проверки.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, key string) error
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
	Cache      Cache
	Notifier   Notifier
	Config     config.License
	Log        *slog.Logger
	Metrics    *metrics.Metrics
}

// Manager — менеджер жизненного цикла лицензий.
type Manager struct {
	store      storage.DocumentStore
	identities Identities
	audit      Auditor
	cache      Cache
	notifier   Notifier
	cfg        config.License
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
		cache:      d.Cache,
		notifier:   d.Notifier,
		cfg:        d.Config,
		log:        d.Log,
		metrics:    d.Metrics,
		now:        time.Now,
	}
}

// CloudConfig отдаётся клиенту при активации.
type CloudConfig struct {
	Features          []string      `json:"features"`
	Limits            models.Limits `json:"limits"`
	SyncEndpoint      string        `json:"sync_endpoint"`
	HeartbeatInterval string        `json:"heartbeat_interval"`
	ExpiresAt         time.Time     `json:"expires_at"`
}

// ActivationResult описывает успешную активацию.
type ActivationResult struct {
	License     models.License `json:"license"`
	CloudConfig CloudConfig    `json:"cloud_config"`
}

// Generate выпускает count лицензий уровня tier для подписки subscriptionID.
// Все лицензии записываются в одной транзакции.
func (m *Manager) Generate(ctx context.Context, ownerID, subscriptionID string, tier models.Tier, count int) ([]models.License, error) {
	const op = "license.Generate"
	log := m.log.With(sl.Op(op), slog.String("owner_id", ownerID), slog.String("tier", string(tier)))

	if count < 1 || count > MaxBatch {
		return nil, fmt.Errorf("%s: %w: count must be between 1 and %d", op, ErrInvalidInput, MaxBatch)
	}
	if subscriptionID == "" {
		return nil, fmt.Errorf("%s: %w: subscription id is required", op, ErrInvalidInput)
	}
	bundle, err := licensekey.BundleFor(tier)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidInput, err)
	}

	owner, err := m.identities.Get(ctx, ownerID)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, ErrOwnerNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !owner.Synchronized() {
		return nil, fmt.Errorf("%s: %w", op, ErrOwnerNotSynchronized)
	}

	now := m.now().UTC()
	licenses := make([]models.License, 0, count)
	err = m.store.RunInTx(ctx, func(tx storage.Tx) error {
		licenses = licenses[:0]
		for i := 0; i < count; i++ {
			key, err := licensekey.Generate(tier, now)
			if err != nil {
				return err
			}
			lic := models.License{
				Key:            key,
				OwnerID:        owner.ID,
				SubscriptionID: subscriptionID,
				Tier:           tier,
				Status:         models.LicenseStatusPending,
				Features:       bundle.Features,
				Limits:         bundle.Limits,
				ExpiresAt:      now.Add(m.cfg.ValidityPeriod),
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			id, err := tx.Create(ctx, models.CollectionLicenses, lic)
			if err != nil {
				return err
			}
			lic.ID = id
			licenses = append(licenses, lic)
		}
		return m.audit.RecordTx(ctx, tx, owner.ID, audit.ActionLicenseGenerated,
			fmt.Sprintf("%d %s license(s) generated", count, tier),
			models.Extensions{"subscription_id": subscriptionID, "count": count, "tier": string(tier)})
	})
	if errors.Is(err, storage.ErrAlreadyExists) {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrKeyConflict, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("licenses generated", slog.Int("count", count), slog.String("subscription_id", subscriptionID))
	return licenses, nil
}

// Activate активирует лицензию на устройстве. Каждая попытка, включая отклонённые,
// записывается как событие использования.
func (m *Manager) Activate(ctx context.Context, key string, device models.DeviceInfo, meta models.RequestMeta) (ActivationResult, error) {
	const op = "license.Activate"
	log := m.log.With(sl.Op(op), slog.String("request_id", meta.RequestID))

	key = licensekey.Normalize(key)
	if !licensekey.ValidFormat(key) {
		m.metrics.Activation(outcomeWrongFormat)
		return ActivationResult{}, fmt.Errorf("%s: %w", op, ErrWrongFormat)
	}
	fingerprint := licensekey.Fingerprint(device)

	var (
		lic      models.License
		from     models.LicenseStatus
		rejected error
	)
	err := m.store.RunInTx(ctx, func(tx storage.Tx) error {
		var err error
		lic, err = findByKey(ctx, tx, key)
		if err != nil {
			return err
		}
		if !keyMatchesTier(lic) {
			return ErrWrongFormat
		}
		from = lic.Status
		now := m.now().UTC()

		rejected, err = m.checkActivatable(ctx, tx, &lic, now)
		if err != nil {
			return err
		}
		if rejected != nil {
			return m.recordUsage(ctx, tx, lic, models.UsageActivationRejected, fingerprint, meta, rejected.Error())
		}

		binding := &models.DeviceBinding{
			Fingerprint: fingerprint,
			Device:      device,
			IP:          meta.IP,
			UserAgent:   meta.UserAgent,
			BoundAt:     now,
		}
		lic.Status = models.LicenseStatusActive
		lic.ActivationCount++
		lic.Device = binding
		lic.ActivatedAt = &now
		lic.UpdatedAt = now
		err = tx.Update(ctx, models.CollectionLicenses, lic.ID, map[string]any{
			"status":           lic.Status,
			"activation_count": lic.ActivationCount,
			"device":           binding,
			"activated_at":     now,
			"updated_at":       now,
		})
		if err != nil {
			return err
		}
		if err := m.recordUsage(ctx, tx, lic, models.UsageActivation, fingerprint, meta, ""); err != nil {
			return err
		}
		return m.audit.RecordTx(ctx, tx, lic.OwnerID, audit.ActionLicenseActivated, "license activated on device",
			models.Extensions{"key": lic.Key, "fingerprint": fingerprint, "activation_count": lic.ActivationCount})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			m.metrics.Activation(outcomeNotFound)
			return ActivationResult{}, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		if errors.Is(err, ErrWrongFormat) {
			m.metrics.Activation(outcomeWrongFormat)
			log.Warn("key prefix does not match stored tier", slog.String("license_id", lic.ID))
			return ActivationResult{}, fmt.Errorf("%s: %w", op, ErrWrongFormat)
		}
		m.metrics.Activation(outcomeError)
		return ActivationResult{}, fmt.Errorf("%s: %w", op, err)
	}
	m.invalidate(ctx, key)

	if rejected != nil {
		m.metrics.Activation(rejectionOutcome(rejected))
		log.Info("activation rejected", slog.String("license_id", lic.ID), slog.String("reason", rejected.Error()))
		return ActivationResult{}, fmt.Errorf("%s: %w", op, rejected)
	}

	m.metrics.Activation(outcomeOK)
	m.metrics.Transition(string(from), string(lic.Status))
	log.Info("license activated",
		slog.String("license_id", lic.ID),
		slog.Int("activation_count", lic.ActivationCount),
		slog.String("fingerprint", fingerprint),
	)
	return ActivationResult{License: lic, CloudConfig: m.cloudConfig(lic)}, nil
}

// checkActivatable применяет проверки активации по порядку: блокирующее состояние,
// истечение срока (с переводом в EXPIRED), лимит активаций. Возвращает причину
// отказа и отдельно ошибку хранилища.
func (m *Manager) checkActivatable(ctx context.Context, tx storage.Tx, lic *models.License, now time.Time) (rejection error, err error) {
	if lic.Status.BlocksActivation() {
		return &StateError{Status: lic.Status}, nil
	}
	if lic.ExpiredAt(now) {
		if err := m.expire(ctx, tx, lic, now); err != nil {
			return nil, err
		}
		return ErrExpired, nil
	}
	if lic.ActivationCount >= lic.Limits.MaxActivations {
		return ErrActivationLimitReached, nil
	}
	if !models.CanTransitionLicense(lic.Status, models.LicenseStatusActive) {
		return &StateError{Status: lic.Status}, nil
	}
	return nil, nil
}

func rejectionOutcome(err error) string {
	switch {
	case errors.Is(err, ErrExpired):
		return outcomeExpired
	case errors.Is(err, ErrActivationLimitReached):
		return outcomeLimit
	case errors.Is(err, ErrTerminalState):
		return outcomeTerminal
	}
	return outcomeError
}

// Deactivate приостанавливает лицензию по запросу владельца и освобождает одну активацию.
// Чужая или несуществующая лицензия даёт одинаковый отказ.
func (m *Manager) Deactivate(ctx context.Context, key, ownerID, reason string, meta models.RequestMeta) (models.License, error) {
	const op = "license.Deactivate"

	lic, err := m.transition(ctx, key, ownerID, func(tx storage.Tx, lic *models.License, now time.Time) error {
		if expiryDue(lic, now) {
			if err := m.expire(ctx, tx, lic, now); err != nil {
				return err
			}
			return errCommitted{ErrExpired}
		}
		if !models.CanTransitionLicense(lic.Status, models.LicenseStatusSuspended) {
			return &StateError{Status: lic.Status}
		}
		lic.Status = models.LicenseStatusSuspended
		lic.ActivationCount = max(lic.ActivationCount-1, 0)
		lic.SuspendedAt = &now
		lic.StatusReason = reason
		lic.UpdatedAt = now
		err := tx.Update(ctx, models.CollectionLicenses, lic.ID, map[string]any{
			"status":           lic.Status,
			"activation_count": lic.ActivationCount,
			"suspended_at":     now,
			"status_reason":    reason,
			"updated_at":       now,
		})
		if err != nil {
			return err
		}
		fingerprint := ""
		if lic.Device != nil {
			fingerprint = lic.Device.Fingerprint
		}
		if err := m.recordUsage(ctx, tx, *lic, models.UsageDeactivation, fingerprint, meta, reason); err != nil {
			return err
		}
		return m.audit.RecordTx(ctx, tx, lic.OwnerID, audit.ActionLicenseDeactivated, "license deactivated by owner",
			models.Extensions{"key": lic.Key, "reason": reason})
	})
	if err != nil {
		return models.License{}, fmt.Errorf("%s: %w", op, err)
	}
	return lic, nil
}

// Reactivate возвращает приостановленную лицензию в ACTIVE. Доступно только владельцу,
// учитывает лимит активаций и срок действия.
func (m *Manager) Reactivate(ctx context.Context, key, ownerID string, meta models.RequestMeta) (models.License, error) {
	const op = "license.Reactivate"

	lic, err := m.transition(ctx, key, ownerID, func(tx storage.Tx, lic *models.License, now time.Time) error {
		if lic.Status != models.LicenseStatusSuspended {
			return &StateError{Status: lic.Status}
		}
		if lic.ExpiredAt(now) {
			if err := m.expire(ctx, tx, lic, now); err != nil {
				return err
			}
			return errCommitted{ErrExpired}
		}
		if lic.ActivationCount >= lic.Limits.MaxActivations {
			return ErrActivationLimitReached
		}
		lic.Status = models.LicenseStatusActive
		lic.ActivationCount++
		lic.ActivatedAt = &now
		lic.SuspendedAt = nil
		lic.StatusReason = ""
		lic.UpdatedAt = now
		err := tx.Update(ctx, models.CollectionLicenses, lic.ID, map[string]any{
			"status":           lic.Status,
			"activation_count": lic.ActivationCount,
			"activated_at":     now,
			"suspended_at":     nil,
			"status_reason":    "",
			"updated_at":       now,
		})
		if err != nil {
			return err
		}
		if err := m.recordUsage(ctx, tx, *lic, models.UsageReactivation, "", meta, ""); err != nil {
			return err
		}
		return m.audit.RecordTx(ctx, tx, lic.OwnerID, audit.ActionLicenseReactivated, "license reactivated by owner",
			models.Extensions{"key": lic.Key})
	})
	if err != nil {
		return models.License{}, fmt.Errorf("%s: %w", op, err)
	}
	return lic, nil
}

// Transfer передаёт лицензию уровня ENTERPRISE другой синхронизированной учётной записи.
// Лицензия возвращается в PENDING с нулевым счётчиком активаций.
func (m *Manager) Transfer(ctx context.Context, key, ownerID, newOwnerEmail string) (models.License, error) {
	const op = "license.Transfer"

	// Не владелец получает ErrAccessDenied до поиска получателя по email.
	if err := m.checkOwner(ctx, key, ownerID); err != nil {
		return models.License{}, fmt.Errorf("%s: %w", op, err)
	}

	recipient, err := m.identities.FindByEmail(ctx, newOwnerEmail)
	if errors.Is(err, identity.ErrNotFound) || errors.Is(err, identity.ErrInvalidEmail) {
		return models.License{}, fmt.Errorf("%s: %w", op, ErrRecipientNotFound)
	}
	if err != nil {
		return models.License{}, fmt.Errorf("%s: %w", op, err)
	}
	if !recipient.Synchronized() {
		return models.License{}, fmt.Errorf("%s: %w", op, ErrRecipientNotSynchronized)
	}
	if recipient.ID == ownerID {
		return models.License{}, fmt.Errorf("%s: %w: recipient already owns the license", op, ErrInvalidInput)
	}

	lic, err := m.transition(ctx, key, ownerID, func(tx storage.Tx, lic *models.License, now time.Time) error {
		if lic.Tier != models.TierEnterprise || !lic.HasFeature(licensekey.FeatureTransfer) {
			return ErrNotTransferable
		}
		if lic.ExpiredAt(now) {
			if err := m.expire(ctx, tx, lic, now); err != nil {
				return err
			}
			return errCommitted{ErrExpired}
		}
		if !models.CanTransitionLicense(lic.Status, models.LicenseStatusPending) {
			return &StateError{Status: lic.Status}
		}

		previousOwner := lic.OwnerID
		lic.OwnerID = recipient.ID
		lic.Status = models.LicenseStatusPending
		lic.ActivationCount = 0
		lic.Device = nil
		lic.ActivatedAt = nil
		lic.SuspendedAt = nil
		lic.StatusReason = ""
		lic.UpdatedAt = now
		err := tx.Update(ctx, models.CollectionLicenses, lic.ID, map[string]any{
			"owner_id":         recipient.ID,
			"status":           lic.Status,
			"activation_count": 0,
			"device":           nil,
			"activated_at":     nil,
			"suspended_at":     nil,
			"status_reason":    "",
			"updated_at":       now,
		})
		if err != nil {
			return err
		}
		if err := m.recordUsage(ctx, tx, *lic, models.UsageTransfer, "", models.RequestMeta{}, "from "+previousOwner); err != nil {
			return err
		}
		if err := m.audit.RecordTx(ctx, tx, previousOwner, audit.ActionLicenseTransferSent, "license transferred to another identity",
			models.Extensions{"key": lic.Key, "to": recipient.ID}); err != nil {
			return err
		}
		return m.audit.RecordTx(ctx, tx, recipient.ID, audit.ActionLicenseTransferRecv, "license received from another identity",
			models.Extensions{"key": lic.Key, "from": previousOwner})
	})
	if err != nil {
		return models.License{}, fmt.Errorf("%s: %w", op, err)
	}

	m.notifier.Send(ctx, models.TemplateLicenseTransferred, recipient, map[string]any{
		"license_key": lic.Key,
		"tier":        string(lic.Tier),
		"expires_at":  lic.ExpiresAt,
	})
	return lic, nil
}

// Revoke отзывает лицензию. Операция администратора; допустима из любого состояния, кроме REVOKED.
func (m *Manager) Revoke(ctx context.Context, key, actorID, reason string) (models.License, error) {
	const op = "license.Revoke"

	lic, err := m.transition(ctx, key, "", func(tx storage.Tx, lic *models.License, now time.Time) error {
		if !models.CanTransitionLicense(lic.Status, models.LicenseStatusRevoked) {
			return &StateError{Status: lic.Status}
		}
		lic.Status = models.LicenseStatusRevoked
		lic.RevokedAt = &now
		lic.StatusReason = reason
		lic.UpdatedAt = now
		err := tx.Update(ctx, models.CollectionLicenses, lic.ID, map[string]any{
			"status":        lic.Status,
			"revoked_at":    now,
			"status_reason": reason,
			"updated_at":    now,
		})
		if err != nil {
			return err
		}
		return m.audit.RecordTx(ctx, tx, lic.OwnerID, audit.ActionLicenseRevoked, "license revoked by administrator",
			models.Extensions{"key": lic.Key, "reason": reason, "actor_id": actorID})
	})
	if err != nil {
		return models.License{}, fmt.Errorf("%s: %w", op, err)
	}
	return lic, nil
}

// errCommitted помечает доменную ошибку, при которой изменения транзакции
// (например, перевод в EXPIRED) должны быть сохранены.
type errCommitted struct{ err error }

func (e errCommitted) Error() string { return e.err.Error() }
func (e errCommitted) Unwrap() error { return e.err }

// transition загружает лицензию под блокировкой, проверяет владельца (если ownerID не пуст)
// и применяет apply. Несуществующая и чужая лицензии дают ErrAccessDenied.
func (m *Manager) transition(ctx context.Context, key, ownerID string, apply func(tx storage.Tx, lic *models.License, now time.Time) error) (models.License, error) {
	key = licensekey.Normalize(key)
	if !licensekey.ValidFormat(key) {
		return models.License{}, ErrWrongFormat
	}

	var (
		lic       models.License
		from      models.LicenseStatus
		committed error
	)
	err := m.store.RunInTx(ctx, func(tx storage.Tx) error {
		var err error
		lic, err = findByKey(ctx, tx, key)
		if errors.Is(err, ErrNotFound) && ownerID != "" {
			return ErrAccessDenied
		}
		if err != nil {
			return err
		}
		if ownerID != "" && lic.OwnerID != ownerID {
			return ErrAccessDenied
		}
		from = lic.Status

		err = apply(tx, &lic, m.now().UTC())
		var ec errCommitted
		if errors.As(err, &ec) {
			committed = ec.err
			return nil
		}
		return err
	})
	if err != nil {
		return models.License{}, err
	}
	m.invalidate(ctx, key)
	if committed != nil {
		return models.License{}, committed
	}
	if from != lic.Status {
		m.metrics.Transition(string(from), string(lic.Status))
	}
	m.log.Info("license transitioned",
		slog.String("license_id", lic.ID),
		slog.String("from", string(from)),
		slog.String("to", string(lic.Status)),
	)
	return lic, nil
}

// checkOwner читает лицензию вне транзакции и проверяет владельца.
func (m *Manager) checkOwner(ctx context.Context, key, ownerID string) error {
	key = licensekey.Normalize(key)
	if !licensekey.ValidFormat(key) {
		return ErrWrongFormat
	}
	lic, err := findByKey(ctx, m.store, key)
	if errors.Is(err, ErrNotFound) {
		return ErrAccessDenied
	}
	if err != nil {
		return err
	}
	if lic.OwnerID != ownerID {
		return ErrAccessDenied
	}
	return nil
}

// expire переводит лицензию в EXPIRED в рамках tx.
func (m *Manager) expire(ctx context.Context, tx storage.Tx, lic *models.License, now time.Time) error {
	if !models.CanTransitionLicense(lic.Status, models.LicenseStatusExpired) {
		return nil
	}
	from := lic.Status
	lic.Status = models.LicenseStatusExpired
	lic.StatusReason = "validity period ended"
	lic.UpdatedAt = now
	err := tx.Update(ctx, models.CollectionLicenses, lic.ID, map[string]any{
		"status":        lic.Status,
		"status_reason": lic.StatusReason,
		"updated_at":    now,
	})
	if err != nil {
		return err
	}
	m.metrics.Transition(string(from), string(lic.Status))
	return m.audit.RecordTx(ctx, tx, lic.OwnerID, audit.ActionLicenseExpired, "license validity period ended",
		models.Extensions{"key": lic.Key, "expires_at": lic.ExpiresAt.Format(time.RFC3339)})
}

func (m *Manager) recordUsage(ctx context.Context, tx storage.Tx, lic models.License, kind models.UsageKind, fingerprint string, meta models.RequestMeta, detail string) error {
	_, err := tx.Create(ctx, models.CollectionLicenseUsage, models.UsageEvent{
		LicenseID:   lic.ID,
		LicenseKey:  lic.Key,
		IdentityID:  lic.OwnerID,
		Kind:        kind,
		Fingerprint: fingerprint,
		IP:          meta.IP,
		UserAgent:   meta.UserAgent,
		Detail:      detail,
		CreatedAt:   m.now().UTC(),
	})
	return err
}

func (m *Manager) cloudConfig(lic models.License) CloudConfig {
	return CloudConfig{
		Features:          append([]string(nil), lic.Features...),
		Limits:            lic.Limits,
		SyncEndpoint:      m.cfg.CloudEndpoint,
		HeartbeatInterval: m.cfg.HeartbeatInterval.String(),
		ExpiresAt:         lic.ExpiresAt,
	}
}

func cacheKey(key string) string {
	return "license:" + key
}

func (m *Manager) invalidate(ctx context.Context, key string) {
	if err := m.cache.Invalidate(ctx, cacheKey(key)); err != nil {
		m.log.Warn("failed to invalidate license cache", slog.String("key", key), sl.Err(err))
	}
}

// keyMatchesTier сверяет уровень из префикса ключа с уровнем сохранённой лицензии.
func keyMatchesTier(lic models.License) bool {
	tier, ok := licensekey.TierOf(lic.Key)
	return ok && tier == lic.Tier
}

// findByKey ищет лицензию по ключу. Внутри транзакции документ блокируется.
func findByKey(ctx context.Context, q storage.Tx, key string) (models.License, error) {
	docs, err := q.QueryByEquality(ctx, models.CollectionLicenses, "key", key)
	if err != nil {
		return models.License{}, err
	}
	if len(docs) == 0 {
		return models.License{}, ErrNotFound
	}
	var lic models.License
	if err := docs[0].Decode(&lic); err != nil {
		return models.License{}, err
	}
	if lic.ID == "" {
		lic.ID = docs[0].ID
	}
	return lic, nil
}
