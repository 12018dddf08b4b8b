package accounts

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/licensing-backend/internal/migrations"
	"github.com/magabrotheeeer/licensing-backend/internal/storage"
)

func setupStorage(t *testing.T) *Storage {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("accounts"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	root, err := filepath.Abs("../../../migrations")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(s.DB, filepath.Join(root, migrations.AccountsDir)))
	return s
}

func TestStorage_AccountLifecycle(t *testing.T) {
	s := setupStorage(t)
	ctx := context.Background()

	uid, err := s.CreateAccount(ctx, "user@example.com", "s3cret-pass", "User")
	require.NoError(t, err)
	require.NotEmpty(t, uid)

	_, err = s.CreateAccount(ctx, "USER@example.com", "s3cret-pass", "Dup")
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	acc, err := s.GetByEmail(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, uid, acc.UID)
	assert.Equal(t, "User", acc.DisplayName)
	assert.False(t, acc.EmailVerified)

	verified := true
	newPass := "an0ther-pass"
	require.NoError(t, s.UpdateAccount(ctx, uid, storage.AccountUpdate{EmailVerified: &verified, Password: &newPass}))

	acc, err = s.GetByID(ctx, uid)
	require.NoError(t, err)
	assert.True(t, acc.EmailVerified)

	_, err = s.VerifyPassword(ctx, "user@example.com", "s3cret-pass")
	assert.ErrorIs(t, err, storage.ErrInvalidCredentials)
	acc, err = s.VerifyPassword(ctx, "user@example.com", newPass)
	require.NoError(t, err)
	assert.Equal(t, uid, acc.UID)

	require.NoError(t, s.DeleteAccount(ctx, uid))
	_, err = s.GetByEmail(ctx, "user@example.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.DeleteAccount(ctx, uid), storage.ErrNotFound)
}

func TestStorage_UnknownAccount(t *testing.T) {
	s := setupStorage(t)
	ctx := context.Background()

	_, err := s.GetByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	name := "x"
	err = s.UpdateAccount(ctx, "00000000-0000-0000-0000-000000000000", storage.AccountUpdate{DisplayName: &name})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.VerifyPassword(ctx, "nobody@example.com", "whatever1")
	assert.ErrorIs(t, err, storage.ErrInvalidCredentials)
}
