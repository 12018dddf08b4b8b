// Package password реализует хеширование паролей и проверку их стойкости.
package password

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinLength — минимальная длина пароля в символах.
	MinLength = 8
	// MaxLength — максимальная длина пароля; bcrypt учитывает только первые 72 байта,
	// но более длинные фразы не отвергаются.
	MaxLength = 128
)

// Ошибки проверки стойкости пароля.
var (
	ErrTooShort     = errors.New("password is too short")
	ErrTooLong      = errors.New("password is too long")
	ErrMissingClass = errors.New("password must contain a letter and a digit")
	ErrCommon       = errors.New("password is too common")
)

var commonPasswords = map[string]struct{}{
	"password":    {},
	"password1":   {},
	"password12":  {},
	"password123": {},
	"12345678":    {},
	"123456789":   {},
	"1234567890":  {},
	"qwerty123":   {},
	"qwertyui":    {},
	"iloveyou1":   {},
	"letmein1":    {},
	"welcome1":    {},
	"admin123":    {},
	"abc12345":    {},
	"trustno1":    {},
	"passw0rd":    {},
}

// ValidateStrength проверяет пароль по локальной политике.
func ValidateStrength(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinLength {
		return ErrTooShort
	}
	if n > MaxLength {
		return ErrTooLong
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return ErrMissingClass
	}

	if _, ok := commonPasswords[strings.ToLower(password)]; ok {
		return ErrCommon
	}
	return nil
}

// GetHash принимает пароль и возвращает его bcrypt‑хэш.
func GetHash(password string) (string, error) {
	const op = "password.GetHash"
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(hashedPassword), nil
}

// CompareHash сравнивает bcrypt‑хэш с введённым паролем.
//
// Возвращает nil, если пароль соответствует хэшу, иначе ошибку.
func CompareHash(originalHash, externalPassword string) error {
	const op = "password.CompareHash"
	if err := bcrypt.CompareHashAndPassword([]byte(originalHash), []byte(externalPassword)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
