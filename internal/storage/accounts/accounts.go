// Package accounts реализует провайдер учётных записей с паролями поверх
// отдельной базы PostgreSQL. Пароли хранятся в виде bcrypt-хешей.
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/magabrotheeeer/licensing-backend/internal/lib/password"
	"github.com/magabrotheeeer/licensing-backend/internal/storage"
)

// Storage инкапсулирует соединение с базой учётных записей.
type Storage struct {
	DB *sql.DB
}

// New открывает соединение с базой учётных записей и проверяет его.
func New(ctx context.Context, connString string) (*Storage, error) {
	const op = "storage.accounts.New"

	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return &Storage{DB: db}, nil
}

// Close закрывает соединение.
func (s *Storage) Close() error {
	return s.DB.Close()
}

// CreateAccount создаёт учётную запись и возвращает её UID.
func (s *Storage) CreateAccount(ctx context.Context, email, pass, displayName string) (string, error) {
	const op = "storage.accounts.CreateAccount"
	hash, err := password.GetHash(pass)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	var uid string
	query := `INSERT INTO accounts (email, password_hash, display_name)
			  VALUES ($1, $2, $3)
			  RETURNING uid;`
	if err := s.DB.QueryRowContext(ctx, query, email, hash, displayName).Scan(&uid); err != nil {
		return "", fmt.Errorf("%s: %w", op, mapError(err))
	}
	return uid, nil
}

const selectAccount = `SELECT uid, email, display_name, email_verified, disabled, created_at FROM accounts`

func scanAccount(row *sql.Row) (storage.Account, error) {
	var a storage.Account
	err := row.Scan(&a.UID, &a.Email, &a.DisplayName, &a.EmailVerified, &a.Disabled, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Account{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Account{}, mapError(err)
	}
	return a, nil
}

// GetByEmail ищет учётную запись по email без учёта регистра.
func (s *Storage) GetByEmail(ctx context.Context, email string) (storage.Account, error) {
	const op = "storage.accounts.GetByEmail"
	a, err := scanAccount(s.DB.QueryRowContext(ctx, selectAccount+` WHERE lower(email) = lower($1)`, email))
	if err != nil {
		return storage.Account{}, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

// GetByID ищет учётную запись по UID.
func (s *Storage) GetByID(ctx context.Context, uid string) (storage.Account, error) {
	const op = "storage.accounts.GetByID"
	a, err := scanAccount(s.DB.QueryRowContext(ctx, selectAccount+` WHERE uid::text = $1`, uid))
	if err != nil {
		return storage.Account{}, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

// UpdateAccount изменяет заданные поля учётной записи.
func (s *Storage) UpdateAccount(ctx context.Context, uid string, upd storage.AccountUpdate) error {
	const op = "storage.accounts.UpdateAccount"

	var sets []string
	var args []any
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.Email != nil {
		add("email", *upd.Email)
	}
	if upd.Password != nil {
		hash, err := password.GetHash(*upd.Password)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		add("password_hash", hash)
	}
	if upd.DisplayName != nil {
		add("display_name", *upd.DisplayName)
	}
	if upd.EmailVerified != nil {
		add("email_verified", *upd.EmailVerified)
	}
	if upd.Disabled != nil {
		add("disabled", *upd.Disabled)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, uid)
	query := fmt.Sprintf(`UPDATE accounts SET %s, updated_at = now() WHERE uid::text = $%d`,
		strings.Join(sets, ", "), len(args))
	res, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

// DeleteAccount удаляет учётную запись.
func (s *Storage) DeleteAccount(ctx context.Context, uid string) error {
	const op = "storage.accounts.DeleteAccount"
	res, err := s.DB.ExecContext(ctx, `DELETE FROM accounts WHERE uid::text = $1`, uid)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

// VerifyPassword проверяет пароль и возвращает учётную запись.
// Для неизвестного email, неверного пароля и заблокированной записи
// возвращается одна и та же ошибка ErrInvalidCredentials.
func (s *Storage) VerifyPassword(ctx context.Context, email, pass string) (storage.Account, error) {
	const op = "storage.accounts.VerifyPassword"
	var a storage.Account
	var hash string
	err := s.DB.QueryRowContext(ctx,
		`SELECT uid, email, display_name, email_verified, disabled, created_at, password_hash
		 FROM accounts WHERE lower(email) = lower($1)`, email).
		Scan(&a.UID, &a.Email, &a.DisplayName, &a.EmailVerified, &a.Disabled, &a.CreatedAt, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Account{}, fmt.Errorf("%s: %w", op, storage.ErrInvalidCredentials)
	}
	if err != nil {
		return storage.Account{}, fmt.Errorf("%s: %w", op, mapError(err))
	}
	if a.Disabled {
		return storage.Account{}, fmt.Errorf("%s: %w", op, storage.ErrInvalidCredentials)
	}
	if err := password.CompareHash(hash, pass); err != nil {
		return storage.Account{}, fmt.Errorf("%s: %w", op, storage.ErrInvalidCredentials)
	}
	return a, nil
}

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", storage.ErrAlreadyExists, pgErr.ConstraintName)
		}
		if strings.HasPrefix(pgErr.Code, "08") {
			return fmt.Errorf("%w: %w", storage.ErrTransient, err)
		}
		return err
	}
	if errors.Is(err, sql.ErrConnDone) || pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", storage.ErrTransient, err)
	}
	return err
}
