package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/licensing-backend/internal/lib/password"
	"github.com/magabrotheeeer/licensing-backend/internal/storage"
)

type account struct {
	storage.Account
	passwordHash string
}

// IdentityProvider — провайдер учётных записей в памяти.
type IdentityProvider struct {
	mu       sync.RWMutex
	byID     map[string]*account
	byEmail  map[string]string
	failNext map[string]error
}

// NewIdentityProvider создаёт пустой провайдер.
func NewIdentityProvider() *IdentityProvider {
	return &IdentityProvider{
		byID:     make(map[string]*account),
		byEmail:  make(map[string]string),
		failNext: make(map[string]error),
	}
}

// FailNext заставляет следующий вызов метода method вернуть err.
func (p *IdentityProvider) FailNext(method string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext[method] = err
}

func (p *IdentityProvider) injected(method string) error {
	err := p.failNext[method]
	delete(p.failNext, method)
	return err
}

// Count возвращает число учётных записей.
func (p *IdentityProvider) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byID)
}

// CreateAccount создаёт учётную запись и возвращает её UID.
func (p *IdentityProvider) CreateAccount(ctx context.Context, email, pass, displayName string) (string, error) {
	const op = "storage.memory.CreateAccount"
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	hash, err := password.GetHash(pass)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.injected("CreateAccount"); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if _, ok := p.byEmail[email]; ok {
		return "", fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}

	uid := uuid.NewString()
	p.byID[uid] = &account{
		Account: storage.Account{
			UID:         uid,
			Email:       email,
			DisplayName: displayName,
			CreatedAt:   time.Now().UTC(),
		},
		passwordHash: hash,
	}
	p.byEmail[email] = uid
	return uid, nil
}

// GetByEmail ищет учётную запись по email.
func (p *IdentityProvider) GetByEmail(ctx context.Context, email string) (storage.Account, error) {
	const op = "storage.memory.GetByEmail"
	if err := ctx.Err(); err != nil {
		return storage.Account{}, fmt.Errorf("%s: %w", op, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.injected("GetByEmail"); err != nil {
		return storage.Account{}, fmt.Errorf("%s: %w", op, err)
	}
	uid, ok := p.byEmail[email]
	if !ok {
		return storage.Account{}, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return p.byID[uid].Account, nil
}

// GetByID ищет учётную запись по UID.
func (p *IdentityProvider) GetByID(ctx context.Context, uid string) (storage.Account, error) {
	const op = "storage.memory.GetByID"
	if err := ctx.Err(); err != nil {
		return storage.Account{}, fmt.Errorf("%s: %w", op, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.injected("GetByID"); err != nil {
		return storage.Account{}, fmt.Errorf("%s: %w", op, err)
	}
	a, ok := p.byID[uid]
	if !ok {
		return storage.Account{}, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return a.Account, nil
}

// UpdateAccount изменяет заданные поля учётной записи.
func (p *IdentityProvider) UpdateAccount(ctx context.Context, uid string, upd storage.AccountUpdate) error {
	const op = "storage.memory.UpdateAccount"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	var hash string
	if upd.Password != nil {
		h, err := password.GetHash(*upd.Password)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		hash = h
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.injected("UpdateAccount"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	a, ok := p.byID[uid]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if upd.Email != nil && *upd.Email != a.Email {
		if _, taken := p.byEmail[*upd.Email]; taken {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}
		delete(p.byEmail, a.Email)
		a.Email = *upd.Email
		p.byEmail[a.Email] = uid
	}
	if hash != "" {
		a.passwordHash = hash
	}
	if upd.DisplayName != nil {
		a.DisplayName = *upd.DisplayName
	}
	if upd.EmailVerified != nil {
		a.EmailVerified = *upd.EmailVerified
	}
	if upd.Disabled != nil {
		a.Disabled = *upd.Disabled
	}
	return nil
}

// DeleteAccount удаляет учётную запись.
func (p *IdentityProvider) DeleteAccount(ctx context.Context, uid string) error {
	const op = "storage.memory.DeleteAccount"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.injected("DeleteAccount"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	a, ok := p.byID[uid]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	delete(p.byEmail, a.Email)
	delete(p.byID, uid)
	return nil
}

// VerifyPassword проверяет пароль и возвращает учётную запись.
func (p *IdentityProvider) VerifyPassword(ctx context.Context, email, pass string) (storage.Account, error) {
	const op = "storage.memory.VerifyPassword"
	if err := ctx.Err(); err != nil {
		return storage.Account{}, fmt.Errorf("%s: %w", op, err)
	}
	p.mu.RLock()
	uid, ok := p.byEmail[email]
	var a account
	if ok {
		a = *p.byID[uid]
	}
	p.mu.RUnlock()

	if !ok || a.Disabled {
		return storage.Account{}, fmt.Errorf("%s: %w", op, storage.ErrInvalidCredentials)
	}
	if err := password.CompareHash(a.passwordHash, pass); err != nil {
		return storage.Account{}, fmt.Errorf("%s: %w", op, storage.ErrInvalidCredentials)
	}
	return a.Account, nil
}
