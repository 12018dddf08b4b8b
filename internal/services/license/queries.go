package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/licensing-backend/internal/lib/licensekey"
	"github.com/magabrotheeeer/licensing-backend/internal/lib/sl"
	"github.com/magabrotheeeer/licensing-backend/internal/models"
	"github.com/magabrotheeeer/licensing-backend/internal/storage"
)

// Причины недействительности лицензии.
const (
	ReasonWrongFormat  = "wrong_format"
	ReasonNotFound     = "not_found"
	ReasonExpired      = "expired"
	ReasonSuspended    = "suspended"
	ReasonRevoked      = "revoked"
	ReasonNotActivated = "not_activated"
)

// ValidationResult — результат проверки лицензии.
type ValidationResult struct {
	Valid   bool            `json:"valid"`
	License *models.License `json:"license,omitempty"`
	Reason  string          `json:"reason,omitempty"`
}

// UsageReport — события использования лицензии, сгруппированные по виду.
type UsageReport struct {
	LicenseKey string                                   `json:"license_key"`
	Total      int                                      `json:"total"`
	ByKind     map[models.UsageKind][]models.UsageEvent `json:"by_kind"`
}

// Validate проверяет лицензию, не изменяя счётчик активаций. Результат кешируется;
// истёкшая лицензия переводится в EXPIRED.
func (m *Manager) Validate(ctx context.Context, key string) (ValidationResult, error) {
	const op = "license.Validate"
	log := m.log.With(sl.Op(op))

	key = licensekey.Normalize(key)
	if !licensekey.ValidFormat(key) {
		return ValidationResult{Reason: ReasonWrongFormat}, nil
	}

	now := m.now().UTC()
	var cached ValidationResult
	hit, err := m.cache.Get(ctx, cacheKey(key), &cached)
	if err != nil {
		log.Warn("license cache read failed", sl.Err(err))
	}
	if hit && cached.License != nil && !expiryDue(cached.License, now) {
		return cached, nil
	}

	var lic models.License
	err = m.store.RunInTx(ctx, func(tx storage.Tx) error {
		var err error
		lic, err = findByKey(ctx, tx, key)
		if err != nil {
			return err
		}
		if !keyMatchesTier(lic) {
			return ErrWrongFormat
		}
		if lic.ExpiredAt(now) {
			return m.expire(ctx, tx, &lic, now)
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return ValidationResult{Reason: ReasonNotFound}, nil
	}
	if errors.Is(err, ErrWrongFormat) {
		log.Warn("key prefix does not match stored tier", slog.String("key", key))
		return ValidationResult{Reason: ReasonWrongFormat}, nil
	}
	if err != nil {
		return ValidationResult{}, fmt.Errorf("%s: %w", op, err)
	}

	res := ValidationResult{License: &lic, Reason: statusReason(lic.Status)}
	res.Valid = res.Reason == ""
	if err := m.cache.Set(ctx, cacheKey(key), res, m.cfg.CacheTTL); err != nil {
		log.Warn("license cache write failed", sl.Err(err))
	}
	return res, nil
}

// expiryDue сообщает, что лицензию пора перевести в EXPIRED.
func expiryDue(lic *models.License, now time.Time) bool {
	return lic.ExpiredAt(now) && models.CanTransitionLicense(lic.Status, models.LicenseStatusExpired)
}

func statusReason(s models.LicenseStatus) string {
	switch s {
	case models.LicenseStatusActive:
		return ""
	case models.LicenseStatusPending:
		return ReasonNotActivated
	case models.LicenseStatusSuspended:
		return ReasonSuspended
	case models.LicenseStatusExpired:
		return ReasonExpired
	default:
		return ReasonRevoked
	}
}

// ListByOwner возвращает лицензии учётной записи. Истёкшие лицензии переводятся в EXPIRED.
func (m *Manager) ListByOwner(ctx context.Context, ownerID string) ([]models.License, error) {
	const op = "license.ListByOwner"

	var licenses []models.License
	expired := 0
	err := m.store.RunInTx(ctx, func(tx storage.Tx) error {
		docs, err := tx.QueryByEquality(ctx, models.CollectionLicenses, "owner_id", ownerID)
		if err != nil {
			return err
		}
		licenses, err = storage.DecodeAll[models.License](docs)
		if err != nil {
			return err
		}
		now := m.now().UTC()
		for i := range licenses {
			if licenses[i].ExpiredAt(now) && models.CanTransitionLicense(licenses[i].Status, models.LicenseStatusExpired) {
				if err := m.expire(ctx, tx, &licenses[i], now); err != nil {
					return err
				}
				expired++
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if expired > 0 {
		for _, lic := range licenses {
			if lic.Status == models.LicenseStatusExpired {
				m.invalidate(ctx, lic.Key)
			}
		}
	}
	return licenses, nil
}

// Usage возвращает события использования лицензии её владельцу.
func (m *Manager) Usage(ctx context.Context, key, ownerID string) (UsageReport, error) {
	const op = "license.Usage"

	key = licensekey.Normalize(key)
	if !licensekey.ValidFormat(key) {
		return UsageReport{}, fmt.Errorf("%s: %w", op, ErrWrongFormat)
	}
	lic, err := findByKey(ctx, m.store, key)
	if errors.Is(err, ErrNotFound) {
		return UsageReport{}, fmt.Errorf("%s: %w", op, ErrAccessDenied)
	}
	if err != nil {
		return UsageReport{}, fmt.Errorf("%s: %w", op, err)
	}
	if lic.OwnerID != ownerID {
		return UsageReport{}, fmt.Errorf("%s: %w", op, ErrAccessDenied)
	}

	docs, err := m.store.QueryByEquality(ctx, models.CollectionLicenseUsage, "license_id", lic.ID)
	if err != nil {
		return UsageReport{}, fmt.Errorf("%s: %w", op, err)
	}
	events, err := storage.DecodeAll[models.UsageEvent](docs)
	if err != nil {
		return UsageReport{}, fmt.Errorf("%s: %w", op, err)
	}

	report := UsageReport{
		LicenseKey: lic.Key,
		Total:      len(events),
		ByKind:     make(map[models.UsageKind][]models.UsageEvent),
	}
	for _, e := range events {
		report.ByKind[e.Kind] = append(report.ByKind[e.Kind], e)
	}
	return report, nil
}

// RunExpirySweep переводит в EXPIRED лицензии, срок которых истёк к моменту now.
// Повторный запуск безопасен.
func (m *Manager) RunExpirySweep(ctx context.Context, now time.Time) (int, error) {
	const op = "license.RunExpirySweep"
	log := m.log.With(sl.Op(op))

	docs, err := m.store.QueryRange(ctx, models.CollectionLicenses, "expires_at", time.Unix(0, 0), now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	due, err := storage.DecodeAll[models.License](docs)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	expired := 0
	for _, candidate := range due {
		if !models.CanTransitionLicense(candidate.Status, models.LicenseStatusExpired) {
			continue
		}
		changed := false
		err := m.store.RunInTx(ctx, func(tx storage.Tx) error {
			lic, err := findByKey(ctx, tx, candidate.Key)
			if err != nil {
				return err
			}
			if !lic.ExpiredAt(now) || !models.CanTransitionLicense(lic.Status, models.LicenseStatusExpired) {
				return nil
			}
			changed = true
			return m.expire(ctx, tx, &lic, now)
		})
		if err != nil {
			log.Error("failed to expire license", slog.String("license_id", candidate.ID), sl.Err(err))
			continue
		}
		if changed {
			expired++
			m.invalidate(ctx, candidate.Key)
		}
	}
	if expired > 0 {
		log.Info("licenses expired", slog.Int("count", expired))
	}
	return expired, nil
}
