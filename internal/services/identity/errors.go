package identity

import (
	"errors"
	"fmt"
	"strings"
)

// Ошибки синхронизатора учётных записей.
var (
	ErrInvalidEmail       = errors.New("invalid email")
	ErrWeakCredential     = errors.New("weak credential")
	ErrInvalidProfile     = errors.New("invalid profile")
	ErrEmailConflict      = errors.New("email already registered")
	ErrProvider           = errors.New("identity provider failure")
	ErrStore              = errors.New("document store failure")
	ErrNotFound           = errors.New("identity not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Хранилища, в которых может быть найден email.
const (
	SourceIdentityProvider = "identity_provider"
	SourceDocumentStore    = "document_store"
)

// ConflictError сообщает, в каких хранилищах уже есть email.
type ConflictError struct {
	Email   string
	FoundIn []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("email %s already registered in %s", e.Email, strings.Join(e.FoundIn, ", "))
}

// Unwrap позволяет проверять ошибку через errors.Is(err, ErrEmailConflict).
func (e *ConflictError) Unwrap() error {
	return ErrEmailConflict
}
