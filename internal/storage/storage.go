// Package storage описывает контракты внешних хранилищ: провайдера учётных
// записей с паролями и документного хранилища с коллекциями JSON-документов.
// Реализации находятся в подпакетах postgres, accounts и memory.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"time"
)

// Ошибки хранилищ. Адаптеры оборачивают в них ошибки драйверов.
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrTransient          = errors.New("transient storage failure")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Account — учётная запись у провайдера.
type Account struct {
	UID           string
	Email         string
	DisplayName   string
	EmailVerified bool
	Disabled      bool
	CreatedAt     time.Time
}

// AccountUpdate содержит изменяемые поля учётной записи. nil означает «не менять».
type AccountUpdate struct {
	Email         *string
	Password      *string
	DisplayName   *string
	EmailVerified *bool
	Disabled      *bool
}

// IdentityProvider — провайдер учётных записей с паролями и стабильным внешним ID.
type IdentityProvider interface {
	CreateAccount(ctx context.Context, email, password, displayName string) (string, error)
	GetByEmail(ctx context.Context, email string) (Account, error)
	GetByID(ctx context.Context, uid string) (Account, error)
	UpdateAccount(ctx context.Context, uid string, upd AccountUpdate) error
	DeleteAccount(ctx context.Context, uid string) error
	VerifyPassword(ctx context.Context, email, password string) (Account, error)
}

// Document — сырой документ коллекции.
type Document struct {
	ID   string
	Data json.RawMessage
}

// Decode разбирает документ в dst.
func (d Document) Decode(dst any) error {
	if err := json.Unmarshal(d.Data, dst); err != nil {
		return fmt.Errorf("storage.Document.Decode: %w", err)
	}
	return nil
}

// Tx описывает операции над документами внутри транзакции.
// Внутри транзакции Get и QueryByEquality блокируют найденные документы до её завершения.
type Tx interface {
	// Get читает документ в dst; ErrNotFound, если его нет.
	Get(ctx context.Context, collection, id string, dst any) error
	// QueryByEquality возвращает документы, у которых поле верхнего уровня равно value.
	QueryByEquality(ctx context.Context, collection, field string, value any) ([]Document, error)
	// Create сохраняет документ и возвращает его ID. Пустой "id" назначается хранилищем.
	Create(ctx context.Context, collection string, doc any) (string, error)
	// Update сливает fields с полями верхнего уровня документа.
	Update(ctx context.Context, collection, id string, fields map[string]any) error
}

// DocumentStore — документное хранилище с запросами на равенство и диапазон.
type DocumentStore interface {
	Tx
	Delete(ctx context.Context, collection, id string) error
	// QueryRange возвращает документы, у которых временная метка field лежит в [from, to).
	QueryRange(ctx context.Context, collection, field string, from, to time.Time) ([]Document, error)
	// RunInTx выполняет fn атомарно. Ошибка fn откатывает все изменения.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
}

// FieldText приводит значение к текстовому виду, в котором документное хранилище
// сравнивает поля. Возвращает false для null и составных значений.
func FieldText(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case json.Number:
		return x.String(), true
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano), true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), true
	}
	return "", false
}

// DecodeAll разбирает документы в срез значений типа T.
func DecodeAll[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := d.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// PrepareDocument сериализует doc в объект JSON и гарантирует непустое поле "id".
func PrepareDocument(doc any, newID func() string) (string, json.RawMessage, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", nil, fmt.Errorf("document must be a JSON object: %w", err)
	}
	id, _ := fields["id"].(string)
	if id == "" {
		id = newID()
		fields["id"] = id
		if raw, err = json.Marshal(fields); err != nil {
			return "", nil, err
		}
	}
	return id, raw, nil
}
