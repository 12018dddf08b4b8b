// Package identity синхронизирует учётные записи между провайдером учётных
// записей и документным хранилищем. Создание выполняется как сага из двух шагов:
// сначала аккаунт у провайдера, затем документ; при сбое второго шага аккаунт
// провайдера удаляется компенсирующим действием.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/licensing-backend/internal/lib/password"
	"github.com/magabrotheeeer/licensing-backend/internal/lib/sl"
	"github.com/magabrotheeeer/licensing-backend/internal/metrics"
	"github.com/magabrotheeeer/licensing-backend/internal/models"
	"github.com/magabrotheeeer/licensing-backend/internal/services/audit"
	"github.com/magabrotheeeer/licensing-backend/internal/storage"
)

const compensationTimeout = 10 * time.Second

// DocumentStore описывает операции документного хранилища, нужные синхронизатору.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string, dst any) error
	QueryByEquality(ctx context.Context, collection, field string, value any) ([]storage.Document, error)
	Create(ctx context.Context, collection string, doc any) (string, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) error
}

// Auditor записывает события аудита.
type Auditor interface {
	Record(ctx context.Context, identityID, action, description string, metadata models.Extensions)
}

// Profile содержит данные профиля новой учётной записи.
type Profile struct {
	DisplayName string
	Role        models.Role
	IsDemo      bool
	Extensions  models.Extensions
}

// Result — результат создания синхронизированной учётной записи.
type Result struct {
	Identity   models.Identity `json:"identity"`
	ExternalID string          `json:"external_id"`
}

// CheckResult — результат проверки уникальности email.
type CheckResult struct {
	Unique  bool     `json:"unique"`
	FoundIn []string `json:"found_in"`
}

// Synchronizer создаёт и связывает учётные записи в двух хранилищах.
type Synchronizer struct {
	provider storage.IdentityProvider
	store    DocumentStore
	audit    Auditor
	log      *slog.Logger
	metrics  *metrics.Metrics
	validate *validator.Validate
	now      func() time.Time
}

// New создаёт Synchronizer.
func New(provider storage.IdentityProvider, store DocumentStore, auditor Auditor, log *slog.Logger, m *metrics.Metrics) *Synchronizer {
	return &Synchronizer{
		provider: provider,
		store:    store,
		audit:    auditor,
		log:      log,
		metrics:  m,
		validate: validator.New(),
		now:      time.Now,
	}
}

func (s *Synchronizer) normalizeEmail(email string) (string, error) {
	email = models.NormalizeEmail(email)
	if err := s.validate.Var(email, "required,email,max=254"); err != nil {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// CreateSynchronizedIdentity создаёт аккаунт у провайдера и документ учётной записи.
// Если запись документа не удалась, аккаунт провайдера удаляется до возврата ошибки.
func (s *Synchronizer) CreateSynchronizedIdentity(ctx context.Context, email, pass string, profile Profile) (Result, error) {
	const op = "identity.CreateSynchronizedIdentity"
	log := s.log.With(sl.Op(op))

	email, err := s.normalizeEmail(email)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := password.ValidateStrength(pass); err != nil {
		return Result{}, fmt.Errorf("%s: %w: %w", op, ErrWeakCredential, err)
	}
	if profile.Role == "" {
		profile.Role = models.RoleUser
	}
	if !profile.Role.Valid() {
		return Result{}, fmt.Errorf("%s: %w: unknown role %q", op, ErrInvalidProfile, profile.Role)
	}
	if err := profile.Extensions.Validate(); err != nil {
		return Result{}, fmt.Errorf("%s: %w: %w", op, ErrInvalidProfile, err)
	}
	profile.DisplayName = strings.TrimSpace(profile.DisplayName)

	check, err := s.CheckGlobal(ctx, email)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
	if !check.Unique {
		return Result{}, fmt.Errorf("%s: %w", op, &ConflictError{Email: email, FoundIn: check.FoundIn})
	}

	externalID, err := s.provider.CreateAccount(ctx, email, pass, profile.DisplayName)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return Result{}, fmt.Errorf("%s: %w", op, &ConflictError{Email: email, FoundIn: []string{SourceIdentityProvider}})
		}
		return Result{}, fmt.Errorf("%s: %w: %w", op, ErrProvider, err)
	}

	now := s.now().UTC()
	identity := models.Identity{
		ExternalID:  externalID,
		Email:       email,
		DisplayName: profile.DisplayName,
		Role:        profile.Role,
		IsDemo:      profile.IsDemo,
		Extensions:  profile.Extensions,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	id, err := s.store.Create(ctx, models.CollectionIdentities, identity)
	if err != nil {
		s.compensate(ctx, externalID, email, err)
		if errors.Is(err, storage.ErrAlreadyExists) {
			return Result{}, fmt.Errorf("%s: %w", op, &ConflictError{Email: email, FoundIn: []string{SourceDocumentStore}})
		}
		return Result{}, fmt.Errorf("%s: %w: %w", op, ErrStore, err)
	}
	identity.ID = id

	log.Info("identity created", slog.String("identity_id", id), slog.String("external_id", externalID))
	s.audit.Record(ctx, id, audit.ActionIdentityCreated, "identity created in both stores", models.Extensions{
		"external_id": externalID,
		"is_demo":     profile.IsDemo,
	})
	return Result{Identity: identity, ExternalID: externalID}, nil
}

// compensate удаляет аккаунт провайдера после неудачной записи документа.
// Выполняется и при отменённом ctx. Собственная ошибка компенсации только логируется.
func (s *Synchronizer) compensate(ctx context.Context, externalID, email string, cause error) {
	const op = "identity.compensate"
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	err := s.provider.DeleteAccount(cctx, externalID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.metrics.Compensation(false)
		s.log.Error("compensation failed, identity provider account left without document",
			sl.Op(op),
			sl.IntegrityWarning(),
			slog.String("external_id", externalID),
			slog.String("email", email),
			slog.String("cause", cause.Error()),
			sl.Err(err),
		)
		return
	}
	s.metrics.Compensation(true)
	s.log.Warn("identity provider account rolled back",
		sl.Op(op),
		slog.String("external_id", externalID),
		slog.String("cause", cause.Error()),
	)
}

// SynchronizeExisting связывает существующий документ учётной записи с аккаунтом провайдера.
// Если аккаунт с таким email уже есть у провайдера, документ привязывается к нему.
func (s *Synchronizer) SynchronizeExisting(ctx context.Context, identityID string) (models.Identity, error) {
	const op = "identity.SynchronizeExisting"
	log := s.log.With(sl.Op(op), slog.String("identity_id", identityID))

	identity, err := s.Get(ctx, identityID)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%s: %w", op, err)
	}

	if identity.ExternalID != "" {
		acc, err := s.provider.GetByID(ctx, identity.ExternalID)
		switch {
		case err == nil && strings.EqualFold(acc.Email, identity.Email):
			return identity, nil
		case err == nil:
			log.Warn("external account email mismatch, relinking", slog.String("external_id", identity.ExternalID))
		case errors.Is(err, storage.ErrNotFound):
			log.Warn("external account is gone, relinking", slog.String("external_id", identity.ExternalID))
		default:
			return models.Identity{}, fmt.Errorf("%s: %w: %w", op, ErrProvider, err)
		}
	}

	created := true
	externalID, err := s.provider.CreateAccount(ctx, identity.Email, generatedCredential(), identity.DisplayName)
	if errors.Is(err, storage.ErrAlreadyExists) {
		created = false
		acc, getErr := s.provider.GetByEmail(ctx, identity.Email)
		if getErr != nil {
			return models.Identity{}, fmt.Errorf("%s: %w: %w", op, ErrProvider, getErr)
		}
		externalID = acc.UID
	} else if err != nil {
		return models.Identity{}, fmt.Errorf("%s: %w: %w", op, ErrProvider, err)
	}

	now := s.now().UTC()
	err = s.store.Update(ctx, models.CollectionIdentities, identity.ID, map[string]any{
		"external_id": externalID,
		"updated_at":  now,
	})
	if err != nil {
		if created {
			s.compensate(ctx, externalID, identity.Email, err)
		}
		return models.Identity{}, fmt.Errorf("%s: %w: %w", op, ErrStore, err)
	}
	identity.ExternalID = externalID
	identity.UpdatedAt = now

	action, description := audit.ActionIdentitySynchronized, "provider account created for existing identity"
	if !created {
		action, description = audit.ActionIdentityLinked, "existing provider account adopted"
	}
	log.Info("identity synchronized", slog.String("external_id", externalID), slog.Bool("adopted", !created))
	s.audit.Record(ctx, identity.ID, action, description, models.Extensions{"external_id": externalID})
	return identity, nil
}

// CheckGlobal проверяет, свободен ли email в обоих хранилищах. Ничего не изменяет.
func (s *Synchronizer) CheckGlobal(ctx context.Context, email string) (CheckResult, error) {
	const op = "identity.CheckGlobal"
	email, err := s.normalizeEmail(email)
	if err != nil {
		return CheckResult{}, fmt.Errorf("%s: %w", op, err)
	}

	foundIn := make([]string, 0, 2)
	_, err = s.provider.GetByEmail(ctx, email)
	switch {
	case err == nil:
		foundIn = append(foundIn, SourceIdentityProvider)
	case !errors.Is(err, storage.ErrNotFound):
		return CheckResult{}, fmt.Errorf("%s: %w: %w", op, ErrProvider, err)
	}

	docs, err := s.store.QueryByEquality(ctx, models.CollectionIdentities, "email", email)
	if err != nil {
		return CheckResult{}, fmt.Errorf("%s: %w: %w", op, ErrStore, err)
	}
	if len(docs) > 0 {
		foundIn = append(foundIn, SourceDocumentStore)
	}

	return CheckResult{Unique: len(foundIn) == 0, FoundIn: foundIn}, nil
}

// Login проверяет пароль у провайдера и возвращает связанный документ учётной записи.
func (s *Synchronizer) Login(ctx context.Context, email, pass string) (models.Identity, error) {
	const op = "identity.Login"
	email, err := s.normalizeEmail(email)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	acc, err := s.provider.VerifyPassword(ctx, email, pass)
	if errors.Is(err, storage.ErrInvalidCredentials) {
		return models.Identity{}, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	if err != nil {
		return models.Identity{}, fmt.Errorf("%s: %w: %w", op, ErrProvider, err)
	}

	docs, err := s.store.QueryByEquality(ctx, models.CollectionIdentities, "external_id", acc.UID)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%s: %w: %w", op, ErrStore, err)
	}
	if len(docs) == 0 {
		return models.Identity{}, fmt.Errorf("%s: %w: account %s has no document", op, ErrNotFound, acc.UID)
	}
	var identity models.Identity
	if err := docs[0].Decode(&identity); err != nil {
		return models.Identity{}, fmt.Errorf("%s: %w: %w", op, ErrStore, err)
	}
	return identity, nil
}

// Get возвращает учётную запись по ID документа.
func (s *Synchronizer) Get(ctx context.Context, identityID string) (models.Identity, error) {
	const op = "identity.Get"
	var identity models.Identity
	err := s.store.Get(ctx, models.CollectionIdentities, identityID, &identity)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Identity{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return models.Identity{}, fmt.Errorf("%s: %w: %w", op, ErrStore, err)
	}
	return identity, nil
}

// FindByEmail возвращает учётную запись по email.
func (s *Synchronizer) FindByEmail(ctx context.Context, email string) (models.Identity, error) {
	const op = "identity.FindByEmail"
	email, err := s.normalizeEmail(email)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%s: %w", op, err)
	}
	docs, err := s.store.QueryByEquality(ctx, models.CollectionIdentities, "email", email)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%s: %w: %w", op, ErrStore, err)
	}
	if len(docs) == 0 {
		return models.Identity{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	var identity models.Identity
	if err := docs[0].Decode(&identity); err != nil {
		return models.Identity{}, fmt.Errorf("%s: %w: %w", op, ErrStore, err)
	}
	return identity, nil
}

func generatedCredential() string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("identity: crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(buf)
}
