package identity

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/licensing-backend/internal/storage"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) CreateAccount(ctx context.Context, email, pass, displayName string) (string, error) {
	args := m.Called(ctx, email, pass, displayName)
	return args.String(0), args.Error(1)
}

func (m *MockProvider) GetByEmail(ctx context.Context, email string) (storage.Account, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(storage.Account), args.Error(1)
}

func (m *MockProvider) GetByID(ctx context.Context, uid string) (storage.Account, error) {
	args := m.Called(ctx, uid)
	return args.Get(0).(storage.Account), args.Error(1)
}

func (m *MockProvider) UpdateAccount(ctx context.Context, uid string, upd storage.AccountUpdate) error {
	args := m.Called(ctx, uid, upd)
	return args.Error(0)
}

func (m *MockProvider) DeleteAccount(ctx context.Context, uid string) error {
	args := m.Called(ctx, uid)
	return args.Error(0)
}

func (m *MockProvider) VerifyPassword(ctx context.Context, email, pass string) (storage.Account, error) {
	args := m.Called(ctx, email, pass)
	return args.Get(0).(storage.Account), args.Error(1)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Get(ctx context.Context, collection, id string, dst any) error {
	args := m.Called(ctx, collection, id, dst)
	return args.Error(0)
}

func (m *MockStore) QueryByEquality(ctx context.Context, collection, field string, value any) ([]storage.Document, error) {
	args := m.Called(ctx, collection, field, value)
	return args.Get(0).([]storage.Document), args.Error(1)
}

func (m *MockStore) Create(ctx context.Context, collection string, doc any) (string, error) {
	args := m.Called(ctx, collection, doc)
	return args.String(0), args.Error(1)
}

func (m *MockStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	args := m.Called(ctx, collection, id, fields)
	return args.Error(0)
}
