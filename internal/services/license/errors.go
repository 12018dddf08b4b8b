package license

import (
	"errors"
	"fmt"

	"github.com/magabrotheeeer/licensing-backend/internal/models"
)

// Ошибки менеджера лицензий.
var (
	ErrWrongFormat              = errors.New("malformed license key")
	ErrNotFound                 = errors.New("license not found")
	ErrTerminalState            = errors.New("license is in a blocking state")
	ErrExpired                  = errors.New("license expired")
	ErrActivationLimitReached   = errors.New("activation limit reached")
	ErrAccessDenied             = errors.New("access denied")
	ErrNotTransferable          = errors.New("license tier does not allow transfer")
	ErrRecipientNotFound        = errors.New("recipient identity not found")
	ErrRecipientNotSynchronized = errors.New("recipient identity is not synchronized")
	ErrOwnerNotFound            = errors.New("owner identity not found")
	ErrOwnerNotSynchronized     = errors.New("owner identity is not synchronized")
	ErrInvalidInput             = errors.New("invalid input")
	ErrKeyConflict              = errors.New("license key collision, retry")
)

// StateError сообщает о недопустимом для операции состоянии лицензии.
type StateError struct {
	Status models.LicenseStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("license is %s", e.Status)
}

// Unwrap позволяет проверять ошибку через errors.Is(err, ErrTerminalState).
func (e *StateError) Unwrap() error {
	return ErrTerminalState
}

// Is сопоставляет истёкшую лицензию с ErrExpired.
func (e *StateError) Is(target error) bool {
	return target == ErrExpired && e.Status == models.LicenseStatusExpired
}
