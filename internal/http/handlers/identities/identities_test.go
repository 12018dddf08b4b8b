package identities

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/licensing-backend/internal/models"
	"github.com/magabrotheeeer/licensing-backend/internal/services/identity"
	"github.com/magabrotheeeer/licensing-backend/internal/storage"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) CreateSynchronizedIdentity(ctx context.Context, email, pass string, profile identity.Profile) (identity.Result, error) {
	args := m.Called(ctx, email, pass, profile)
	return args.Get(0).(identity.Result), args.Error(1)
}

func (m *ServiceMock) SynchronizeExisting(ctx context.Context, identityID string) (models.Identity, error) {
	args := m.Called(ctx, identityID)
	return args.Get(0).(models.Identity), args.Error(1)
}

func (m *ServiceMock) CheckGlobal(ctx context.Context, email string) (identity.CheckResult, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(identity.CheckResult), args.Error(1)
}

func (m *ServiceMock) Login(ctx context.Context, email, pass string) (models.Identity, error) {
	args := m.Called(ctx, email, pass)
	return args.Get(0).(models.Identity), args.Error(1)
}

type tokenStub struct{}

func (tokenStub) GenerateToken(identityID, _, role string) (string, error) {
	return "token-" + identityID + "-" + role, nil
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var got map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	return got
}

func TestHandler_Create(t *testing.T) {
	created := identity.Result{
		Identity:   models.Identity{ID: "doc-1", Email: "new@example.com", Role: models.RoleUser},
		ExternalID: "ext-1",
	}

	tests := []struct {
		name       string
		body       string
		mockResult identity.Result
		mockErr    error
		callSvc    bool
		wantStatus int
		wantError  string
	}{
		{
			name:       "created",
			body:       `{"email":"new@example.com","password":"Secur3pass","display_name":"New"}`,
			mockResult: created,
			callSvc:    true,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "invalid json",
			body:       `{"email":`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
		{
			name:       "validation error",
			body:       `{"email":"not-an-email","password":"Secur3pass"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "field Email must be a valid email",
		},
		{
			name:       "email conflict",
			body:       `{"email":"new@example.com","password":"Secur3pass"}`,
			mockErr:    fmt.Errorf("identity.Create: %w", &identity.ConflictError{Email: "new@example.com", FoundIn: []string{identity.SourceIdentityProvider}}),
			callSvc:    true,
			wantStatus: http.StatusConflict,
			wantError:  identity.ErrEmailConflict.Error(),
		},
		{
			name:       "weak password",
			body:       `{"email":"new@example.com","password":"password1"}`,
			mockErr:    identity.ErrWeakCredential,
			callSvc:    true,
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  identity.ErrWeakCredential.Error(),
		},
		{
			name:       "store unavailable",
			body:       `{"email":"new@example.com","password":"Secur3pass"}`,
			mockErr:    fmt.Errorf("%w: %w", identity.ErrStore, storage.ErrTransient),
			callSvc:    true,
			wantStatus: http.StatusServiceUnavailable,
			wantError:  storage.ErrTransient.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			if tt.callSvc {
				svc.On("CreateSynchronizedIdentity", mock.Anything, "new@example.com", mock.Anything, mock.MatchedBy(func(p identity.Profile) bool {
					return p.Role == models.RoleUser && !p.IsDemo
				})).Return(tt.mockResult, tt.mockErr).Once()
			}
			h := New(newNoopLogger(), svc, tokenStub{})

			req := httptest.NewRequest(http.MethodPost, "/identities", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			h.Create(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			got := decode(t, rec)
			if tt.wantError != "" {
				assert.Equal(t, "Error", got["status"])
				assert.Contains(t, got["error"], tt.wantError)
			} else {
				assert.Equal(t, "OK", got["status"])
				data := got["data"].(map[string]any)
				assert.Equal(t, "ext-1", data["external_id"])
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestHandler_CreateConflictListsStores(t *testing.T) {
	svc := new(ServiceMock)
	svc.On("CreateSynchronizedIdentity", mock.Anything, "dup@example.com", mock.Anything, mock.Anything).
		Return(identity.Result{}, &identity.ConflictError{
			Email:   "dup@example.com",
			FoundIn: []string{identity.SourceIdentityProvider, identity.SourceDocumentStore},
		})
	h := New(newNoopLogger(), svc, tokenStub{})

	req := httptest.NewRequest(http.MethodPost, "/identities", bytes.NewBufferString(`{"email":"dup@example.com","password":"Secur3pass"}`))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	data := decode(t, rec)["data"].(map[string]any)
	assert.ElementsMatch(t, []any{"identity_provider", "document_store"}, data["found_in"])
}

func TestHandler_Login(t *testing.T) {
	svc := new(ServiceMock)
	svc.On("Login", mock.Anything, "user@example.com", "Secur3pass").
		Return(models.Identity{ID: "doc-1", Email: "user@example.com", Role: models.RoleAdmin}, nil).Once()
	svc.On("Login", mock.Anything, "user@example.com", "wrong-pass").
		Return(models.Identity{}, fmt.Errorf("identity.Login: %w", identity.ErrInvalidCredentials)).Once()
	h := New(newNoopLogger(), svc, tokenStub{})

	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString(`{"email":"user@example.com","password":"Secur3pass"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, "token-doc-1-ADMIN", data["token"])

	rec = httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString(`{"email":"user@example.com","password":"wrong-pass"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	svc.AssertExpectations(t)
}

func TestHandler_Check(t *testing.T) {
	svc := new(ServiceMock)
	svc.On("CheckGlobal", mock.Anything, "free@example.com").
		Return(identity.CheckResult{Unique: true, FoundIn: []string{}}, nil).Once()
	svc.On("CheckGlobal", mock.Anything, "bad").
		Return(identity.CheckResult{}, identity.ErrInvalidEmail).Once()
	h := New(newNoopLogger(), svc, tokenStub{})

	rec := httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodGet, "/identities/check?email=free@example.com", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["data"].(map[string]any)["unique"])

	rec = httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodGet, "/identities/check?email=bad", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodGet, "/identities/check", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertExpectations(t)
}

func TestHandler_Sync(t *testing.T) {
	svc := new(ServiceMock)
	svc.On("SynchronizeExisting", mock.Anything, "doc-1").
		Return(models.Identity{ID: "doc-1", ExternalID: "ext-9"}, nil).Once()
	svc.On("SynchronizeExisting", mock.Anything, "missing").
		Return(models.Identity{}, fmt.Errorf("identity.SynchronizeExisting: %w", identity.ErrNotFound)).Once()
	h := New(newNoopLogger(), svc, tokenStub{})

	r := chi.NewRouter()
	r.Post("/identities/{id}/sync", h.Sync)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/identities/doc-1/sync", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ext-9", decode(t, rec)["data"].(map[string]any)["external_id"])

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/identities/missing/sync", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	svc.AssertExpectations(t)
}
