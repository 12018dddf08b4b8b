// Package postgres реализует документное хранилище поверх PostgreSQL:
// все коллекции лежат в одной таблице documents с телом в JSONB.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/magabrotheeeer/licensing-backend/internal/storage"
)

// Storage инкапсулирует пул соединений с PostgreSQL.
type Storage struct {
	Pool *pgxpool.Pool
}

// New создаёт пул соединений и проверяет доступность базы.
func New(ctx context.Context, connString string) (*Storage, error) {
	const op = "storage.postgres.New"

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return &Storage{Pool: pool}, nil
}

// Close закрывает пул соединений.
func (s *Storage) Close() {
	s.Pool.Close()
}

// CheckDatabaseReady проверяет, что миграции применены.
func (s *Storage) CheckDatabaseReady(ctx context.Context) error {
	var exists bool
	err := s.Pool.QueryRow(ctx, `SELECT EXISTS (
		SELECT FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name = 'documents'
	)`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("storage.postgres.CheckDatabaseReady: %w", mapError(err))
	}
	if !exists {
		return errors.New("storage.postgres.CheckDatabaseReady: table documents is missing")
	}
	return nil
}

// querier — общая часть *pgxpool.Pool и pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// documents выполняет запросы к таблице documents через пул или транзакцию.
// lock добавляет FOR UPDATE к чтениям внутри транзакции.
type documents struct {
	q    querier
	lock bool
}

func (s *Storage) docs() *documents {
	return &documents{q: s.Pool}
}

// Get читает документ по ID.
func (s *Storage) Get(ctx context.Context, collection, id string, dst any) error {
	return s.docs().Get(ctx, collection, id, dst)
}

// QueryByEquality ищет документы по равенству поля верхнего уровня.
func (s *Storage) QueryByEquality(ctx context.Context, collection, field string, value any) ([]storage.Document, error) {
	return s.docs().QueryByEquality(ctx, collection, field, value)
}

// Create сохраняет документ.
func (s *Storage) Create(ctx context.Context, collection string, doc any) (string, error) {
	return s.docs().Create(ctx, collection, doc)
}

// Update сливает поля с документом.
func (s *Storage) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.docs().Update(ctx, collection, id, fields)
}

// Delete удаляет документ.
func (s *Storage) Delete(ctx context.Context, collection, id string) error {
	const op = "storage.postgres.Delete"
	tag, err := s.Pool.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

// QueryRange ищет документы, у которых временная метка field лежит в [from, to).
func (s *Storage) QueryRange(ctx context.Context, collection, field string, from, to time.Time) ([]storage.Document, error) {
	const op = "storage.postgres.QueryRange"
	rows, err := s.Pool.Query(ctx, `
		SELECT id, doc FROM documents
		WHERE collection = $1
		  AND doc ? $2
		  AND (doc->>$2)::timestamptz >= $3
		  AND (doc->>$2)::timestamptz < $4
		ORDER BY created_at, id`,
		collection, field, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	docs, err := collect(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return docs, nil
}

// RunInTx выполняет fn в транзакции READ COMMITTED; чтения внутри блокируют строки.
func (s *Storage) RunInTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	const op = "storage.postgres.RunInTx"
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(&documents{q: tx, lock: true}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	return nil
}

func (d *documents) suffix() string {
	if d.lock {
		return " FOR UPDATE"
	}
	return ""
}

func (d *documents) Get(ctx context.Context, collection, id string, dst any) error {
	const op = "storage.postgres.Get"
	var raw []byte
	err := d.q.QueryRow(ctx,
		`SELECT doc FROM documents WHERE collection = $1 AND id = $2`+d.suffix(),
		collection, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	if err := (storage.Document{ID: id, Data: raw}).Decode(dst); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (d *documents) QueryByEquality(ctx context.Context, collection, field string, value any) ([]storage.Document, error) {
	const op = "storage.postgres.QueryByEquality"
	text, ok := storage.FieldText(value)
	if !ok {
		return nil, nil
	}
	rows, err := d.q.Query(ctx, `
		SELECT id, doc FROM documents
		WHERE collection = $1 AND doc->>$2 = $3
		ORDER BY created_at, id`+d.suffix(),
		collection, field, text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	docs, err := collect(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return docs, nil
}

func (d *documents) Create(ctx context.Context, collection string, doc any) (string, error) {
	const op = "storage.postgres.Create"
	id, raw, err := storage.PrepareDocument(doc, uuid.NewString)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	_, err = d.q.Exec(ctx,
		`INSERT INTO documents (collection, id, doc) VALUES ($1, $2, $3::jsonb)`,
		collection, id, string(raw))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, mapError(err))
	}
	return id, nil
}

func (d *documents) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	const op = "storage.postgres.Update"
	_, patch, err := storage.PrepareDocument(fields, func() string { return id })
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	tag, err := d.q.Exec(ctx, `
		UPDATE documents SET doc = doc || $3::jsonb, updated_at = now()
		WHERE collection = $1 AND id = $2`,
		collection, id, string(patch))
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

func collect(rows pgx.Rows) ([]storage.Document, error) {
	defer rows.Close()
	var docs []storage.Document
	for rows.Next() {
		var d storage.Document
		var raw []byte
		if err := rows.Scan(&d.ID, &raw); err != nil {
			return nil, mapError(err)
		}
		d.Data = raw
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return docs, nil
}

// mapError переводит ошибки драйвера в ошибки пакета storage.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgerrcode.UniqueViolation:
			return fmt.Errorf("%w: %s", storage.ErrAlreadyExists, pgErr.ConstraintName)
		case pgErr.Code == pgerrcode.SerializationFailure,
			pgErr.Code == pgerrcode.DeadlockDetected,
			pgErr.Code == pgerrcode.LockNotAvailable,
			strings.HasPrefix(pgErr.Code, "08"):
			return fmt.Errorf("%w: %w", storage.ErrTransient, err)
		}
		return err
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", storage.ErrTransient, err)
	}
	return err
}
