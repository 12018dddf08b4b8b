package demo

import (
	"errors"
	"fmt"

	"github.com/magabrotheeeer/licensing-backend/internal/models"
)

// Ошибки менеджера пробного периода.
var (
	ErrAlreadyFullAccount = errors.New("email belongs to a full account")
	ErrAlreadyActiveDemo  = errors.New("identity already has an active demo")
	ErrSessionNotFound    = errors.New("demo session not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidTransition  = errors.New("demo session transition not allowed")
)

// StateError сообщает о недопустимом переходе демо-сессии.
type StateError struct {
	From models.DemoStatus
	To   models.DemoStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("demo session cannot move from %s to %s", e.From, e.To)
}

// Unwrap позволяет проверять ошибку через errors.Is(err, ErrInvalidTransition).
func (e *StateError) Unwrap() error {
	return ErrInvalidTransition
}
