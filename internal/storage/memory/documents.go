// Package memory реализует хранилища в памяти процесса. Используется для
// локального запуска без внешних зависимостей и в тестах сервисов.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/licensing-backend/internal/models"
	"github.com/magabrotheeeer/licensing-backend/internal/storage"
)

// UniqueRule — ограничение уникальности по полю коллекции, аналог
// частичного уникального индекса. Where отбирает документы, к которым оно применяется.
type UniqueRule struct {
	Name       string
	Collection string
	Field      string
	Where      func(doc map[string]any) bool
}

// DefaultUniqueRules повторяют уникальные индексы миграций документного хранилища.
func DefaultUniqueRules() []UniqueRule {
	return []UniqueRule{
		{Name: "documents_identities_email_key", Collection: models.CollectionIdentities, Field: "email"},
		{Name: "documents_licenses_key_key", Collection: models.CollectionLicenses, Field: "key"},
		{
			Name:       "documents_demo_sessions_active_key",
			Collection: models.CollectionDemoSessions,
			Field:      "identity_id",
			Where: func(doc map[string]any) bool {
				return doc["status"] == string(models.DemoStatusActive)
			},
		},
	}
}

type entry struct {
	seq  int64
	data json.RawMessage
}

// DocumentStore — документное хранилище в памяти. Транзакции выполняются
// строго последовательно и откатываются восстановлением снимка.
type DocumentStore struct {
	mu          sync.Mutex
	collections map[string]map[string]entry
	seq         int64
	rules       []UniqueRule
	newID       func() string
	// failOn хранит внедрённые тестами ошибки записи по коллекциям.
	failOn map[string]error
}

// NewDocumentStore создаёт пустое хранилище с правилами уникальности по умолчанию.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		collections: make(map[string]map[string]entry),
		rules:       DefaultUniqueRules(),
		newID:       uuid.NewString,
		failOn:      make(map[string]error),
	}
}

// FailWrites заставляет Create и Update в коллекции возвращать err. nil снимает сбой.
func (s *DocumentStore) FailWrites(collection string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failOn, collection)
		return
	}
	s.failOn[collection] = err
}

// Count возвращает число документов в коллекции.
func (s *DocumentStore) Count(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.collections[collection])
}

// Get читает документ по ID.
func (s *DocumentStore) Get(ctx context.Context, collection, id string, dst any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*view)(s).Get(ctx, collection, id, dst)
}

// QueryByEquality ищет документы по равенству поля.
func (s *DocumentStore) QueryByEquality(ctx context.Context, collection, field string, value any) ([]storage.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*view)(s).QueryByEquality(ctx, collection, field, value)
}

// Create сохраняет новый документ.
func (s *DocumentStore) Create(ctx context.Context, collection string, doc any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*view)(s).Create(ctx, collection, doc)
}

// Update сливает поля с документом.
func (s *DocumentStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*view)(s).Update(ctx, collection, id, fields)
}

// Delete удаляет документ.
func (s *DocumentStore) Delete(ctx context.Context, collection, id string) error {
	const op = "storage.memory.Delete"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[collection][id]; !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	delete(s.collections[collection], id)
	return nil
}

// QueryRange ищет документы, у которых временная метка field лежит в [from, to).
func (s *DocumentStore) QueryRange(ctx context.Context, collection, field string, from, to time.Time) ([]storage.Document, error) {
	const op = "storage.memory.QueryRange"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return (*view)(s).scan(collection, func(fields map[string]any) bool {
		raw, ok := fields[field].(string)
		if !ok {
			return false
		}
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return false
		}
		return !ts.Before(from) && ts.Before(to)
	})
}

// RunInTx выполняет fn под эксклюзивной блокировкой хранилища.
// При ошибке или панике fn состояние восстанавливается из снимка.
func (s *DocumentStore) RunInTx(ctx context.Context, fn func(tx storage.Tx) error) (err error) {
	const op = "storage.memory.RunInTx"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshot()
	defer func() {
		if r := recover(); r != nil {
			s.collections = snapshot
			panic(r)
		}
		if err != nil {
			s.collections = snapshot
		}
	}()

	return fn((*view)(s))
}

func (s *DocumentStore) snapshot() map[string]map[string]entry {
	out := make(map[string]map[string]entry, len(s.collections))
	for name, coll := range s.collections {
		c := make(map[string]entry, len(coll))
		for id, e := range coll {
			c[id] = e
		}
		out[name] = c
	}
	return out
}

// view реализует storage.Tx без захвата мьютекса; вызывающий уже держит его.
type view DocumentStore

func (v *view) Get(ctx context.Context, collection, id string, dst any) error {
	const op = "storage.memory.Get"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	e, ok := v.collections[collection][id]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if err := json.Unmarshal(e.data, dst); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (v *view) QueryByEquality(ctx context.Context, collection, field string, value any) ([]storage.Document, error) {
	const op = "storage.memory.QueryByEquality"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	want, ok := storage.FieldText(value)
	if !ok {
		return nil, nil
	}
	return v.scan(collection, func(fields map[string]any) bool {
		got, ok := storage.FieldText(fields[field])
		return ok && got == want
	})
}

func (v *view) Create(ctx context.Context, collection string, doc any) (string, error) {
	const op = "storage.memory.Create"
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if err := v.failOn[collection]; err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	id, raw, err := storage.PrepareDocument(doc, v.newID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	coll := v.collections[collection]
	if coll == nil {
		coll = make(map[string]entry)
		v.collections[collection] = coll
	}
	if _, exists := coll[id]; exists {
		return "", fmt.Errorf("%s: %w: id %s", op, storage.ErrAlreadyExists, id)
	}
	if err := v.checkUnique(collection, id, raw); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	v.seq++
	coll[id] = entry{seq: v.seq, data: raw}
	return id, nil
}

func (v *view) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	const op = "storage.memory.Update"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := v.failOn[collection]; err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	e, ok := v.collections[collection][id]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	var current map[string]any
	if err := json.Unmarshal(e.data, &current); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(patch, &decoded); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	for k, val := range decoded {
		current[k] = val
	}

	raw, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := v.checkUnique(collection, id, raw); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	e.data = raw
	v.collections[collection][id] = e
	return nil
}

func (v *view) checkUnique(collection, id string, raw json.RawMessage) error {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	for _, rule := range v.rules {
		if rule.Collection != collection || (rule.Where != nil && !rule.Where(doc)) {
			continue
		}
		want, ok := storage.FieldText(doc[rule.Field])
		if !ok {
			continue
		}
		for otherID, other := range v.collections[collection] {
			if otherID == id {
				continue
			}
			var od map[string]any
			if err := json.Unmarshal(other.data, &od); err != nil {
				return err
			}
			if rule.Where != nil && !rule.Where(od) {
				continue
			}
			if got, ok := storage.FieldText(od[rule.Field]); ok && got == want {
				return fmt.Errorf("%w: %s", storage.ErrAlreadyExists, rule.Name)
			}
		}
	}
	return nil
}

func (v *view) scan(collection string, match func(map[string]any) bool) ([]storage.Document, error) {
	type hit struct {
		seq int64
		doc storage.Document
	}
	var hits []hit
	for id, e := range v.collections[collection] {
		var fields map[string]any
		if err := json.Unmarshal(e.data, &fields); err != nil {
			return nil, fmt.Errorf("storage.memory.scan: %w", err)
		}
		if match(fields) {
			hits = append(hits, hit{seq: e.seq, doc: storage.Document{ID: id, Data: append(json.RawMessage(nil), e.data...)}})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].seq < hits[j].seq })

	out := make([]storage.Document, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.doc)
	}
	return out, nil
}
