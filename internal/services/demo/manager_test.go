package demo

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/licensing-backend/internal/config"
	"github.com/magabrotheeeer/licensing-backend/internal/metrics"
	"github.com/magabrotheeeer/licensing-backend/internal/models"
	"github.com/magabrotheeeer/licensing-backend/internal/services/audit"
	"github.com/magabrotheeeer/licensing-backend/internal/services/identity"
	"github.com/magabrotheeeer/licensing-backend/internal/storage/memory"
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

type recordingNotifier struct {
	mu        sync.Mutex
	templates []string
	data      []map[string]any
}

func (n *recordingNotifier) Send(_ context.Context, template string, _ models.Identity, data map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.templates = append(n.templates, template)
	n.data = append(n.data, data)
}

func (n *recordingNotifier) count(template string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, t := range n.templates {
		if t == template {
			c++
		}
	}
	return c
}

type testEnv struct {
	store    *memory.DocumentStore
	ids      *identity.Synchronizer
	mgr      *Manager
	metrics  *metrics.Metrics
	notifier *recordingNotifier
	now      time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := newNoopLogger()
	store := memory.NewDocumentStore()
	m := metrics.New(prometheus.NewRegistry())
	auditLog := audit.New(store, log)
	ids := identity.New(memory.NewIdentityProvider(), store, auditLog, log, m)

	env := &testEnv{
		store:    store,
		ids:      ids,
		metrics:  m,
		notifier: &recordingNotifier{},
		now:      time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
	}
	env.mgr = New(Deps{
		Store:      store,
		Identities: ids,
		Audit:      auditLog,
		Notifier:   env.notifier,
		Config: config.Demo{
			Duration:       7 * 24 * time.Hour,
			ReminderWindow: 30 * time.Minute,
			UpgradeURL:     "https://example.test/pricing",
		},
		Log:     log,
		Metrics: m,
	})
	env.mgr.now = func() time.Time { return env.now }
	return env
}

func (e *testEnv) register(t *testing.T, email string) RegisterResult {
	t.Helper()
	res, err := e.mgr.Register(context.Background(), RegisterInput{Email: email, Password: "tr1al-pass", DisplayName: "Trial"})
	require.NoError(t, err)
	return res
}

func (e *testEnv) session(t *testing.T, id string) models.DemoSession {
	t.Helper()
	var s models.DemoSession
	require.NoError(t, e.store.Get(context.Background(), models.CollectionDemoSessions, id, &s))
	return s
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)

	res := env.register(t, "trial@example.com")
	assert.True(t, res.Identity.IsDemo)
	assert.True(t, res.Identity.Synchronized())
	assert.Equal(t, models.DemoStatusActive, res.Session.Status)
	assert.Equal(t, models.TierBasic, res.Session.Tier)
	assert.Equal(t, env.now.Add(7*24*time.Hour), res.Session.ExpiresAt)
	assert.NotEmpty(t, res.Session.Token)
	assert.ElementsMatch(t, []string{"projects.core", "projects.view", "tasks.basic", "dashboard.view", "export.csv"}, res.Session.AllowedFeatures)
	assert.Equal(t, 1, env.notifier.count(models.TemplateDemoWelcome))
	assert.Equal(t, 1, env.store.Count(models.CollectionDemoSessions))
}

func TestRegister_Rejects(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	_, err := env.ids.CreateSynchronizedIdentity(ctx, "paid@example.com", "str0ng-pass", identity.Profile{})
	require.NoError(t, err)

	_, err = env.mgr.Register(ctx, RegisterInput{Email: "paid@example.com", Password: "tr1al-pass"})
	assert.ErrorIs(t, err, ErrAlreadyFullAccount)

	env.register(t, "trial@example.com")
	_, err = env.mgr.Register(ctx, RegisterInput{Email: "Trial@Example.com", Password: "tr1al-pass"})
	assert.ErrorIs(t, err, ErrAlreadyActiveDemo)
	assert.Equal(t, 1, env.store.Count(models.CollectionDemoSessions))

	_, err = env.mgr.Register(ctx, RegisterInput{Email: "weak@example.com", Password: "short"})
	assert.ErrorIs(t, err, identity.ErrWeakCredential)
}

func TestRegister_AfterExpiryStartsNewSession(t *testing.T) {
	env := newTestEnv(t)
	first := env.register(t, "again@example.com")

	env.now = first.Session.ExpiresAt.Add(time.Hour)
	second := env.register(t, "again@example.com")

	assert.Equal(t, first.Identity.ID, second.Identity.ID)
	assert.NotEqual(t, first.Session.ID, second.Session.ID)
	assert.Equal(t, models.DemoStatusExpired, env.session(t, first.Session.ID).Status)
	assert.Equal(t, models.DemoStatusActive, env.session(t, second.Session.ID).Status)
	assert.Nil(t, second.Identity.DemoExpiredAt)
	assert.Equal(t, 1, env.notifier.count(models.TemplateDemoExpired))
}

func TestCheckFeatureAccess_Scenario(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	res := env.register(t, "gate@example.com")
	id := res.Identity.ID

	access, err := env.mgr.CheckFeatureAccess(ctx, id, "projects.core")
	require.NoError(t, err)
	assert.True(t, access.Allowed)

	access, err = env.mgr.CheckFeatureAccess(ctx, id, "workflow.automation")
	require.NoError(t, err)
	assert.False(t, access.Allowed)
	require.NotNil(t, access.Restriction)
	assert.Equal(t, models.RestrictionFeatureLocked, access.Restriction.Type)
	assert.Equal(t, "https://example.test/pricing", access.Restriction.UpgradeURL)

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.FeatureChecks.WithLabelValues(checkAllowed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.FeatureChecks.WithLabelValues(checkFeatureLocked)))
}

func TestCheckFeatureAccess_Idempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	res := env.register(t, "idem@example.com")
	id := res.Identity.ID

	for i := 0; i < 2; i++ {
		access, err := env.mgr.CheckFeatureAccess(ctx, id, "projects.core")
		require.NoError(t, err)
		assert.True(t, access.Allowed)

		access, err = env.mgr.CheckFeatureAccess(ctx, id, "sso")
		require.NoError(t, err)
		assert.False(t, access.Allowed)
	}

	s := env.session(t, res.Session.ID)
	assert.Equal(t, []string{"projects.core"}, s.FeaturesAccessed)
	require.Len(t, s.RestrictionsHit, 1)
	assert.Equal(t, "sso", s.RestrictionsHit[0].Feature)
}

func TestCheckFeatureAccess_ConcurrentRecordsOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	res := env.register(t, "race@example.com")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = env.mgr.CheckFeatureAccess(ctx, res.Identity.ID, "tasks.basic")
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{"tasks.basic"}, env.session(t, res.Session.ID).FeaturesAccessed)
}

func TestCheckFeatureAccess_FullAccountAlwaysAllowed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	created, err := env.ids.CreateSynchronizedIdentity(ctx, "paid@example.com", "str0ng-pass", identity.Profile{})
	require.NoError(t, err)

	access, err := env.mgr.CheckFeatureAccess(ctx, created.Identity.ID, "workflow.automation")
	require.NoError(t, err)
	assert.True(t, access.Allowed)

	_, err = env.mgr.CheckFeatureAccess(ctx, "missing", "projects.core")
	assert.ErrorIs(t, err, identity.ErrNotFound)

	_, err = env.mgr.CheckFeatureAccess(ctx, created.Identity.ID, " ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCheckFeatureAccess_TimeLimit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	res := env.register(t, "late@example.com")

	env.now = res.Session.ExpiresAt.Add(time.Second)
	access, err := env.mgr.CheckFeatureAccess(ctx, res.Identity.ID, "projects.core")
	require.NoError(t, err)
	assert.False(t, access.Allowed)
	require.NotNil(t, access.Restriction)
	assert.Equal(t, models.RestrictionTimeLimit, access.Restriction.Type)

	s := env.session(t, res.Session.ID)
	assert.Equal(t, models.DemoStatusExpired, s.Status)
	assert.True(t, s.HasRestriction(models.RestrictionTimeLimit, "projects.core"))

	ident, err := env.ids.Get(ctx, res.Identity.ID)
	require.NoError(t, err)
	require.NotNil(t, ident.DemoExpiredAt)
	assert.Equal(t, 1, env.notifier.count(models.TemplateDemoExpired))

	access, err = env.mgr.CheckFeatureAccess(ctx, res.Identity.ID, "projects.core")
	require.NoError(t, err)
	assert.False(t, access.Allowed)
	assert.Equal(t, models.RestrictionTimeLimit, access.Restriction.Type)
	assert.Equal(t, 1, env.notifier.count(models.TemplateDemoExpired))
}

func TestConvert(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	res := env.register(t, "buyer@example.com")

	env.now = env.now.Add(50 * time.Hour)
	session, err := env.mgr.Convert(ctx, res.Identity.ID, "sub-42", "checkout")
	require.NoError(t, err)
	assert.Equal(t, models.DemoStatusConverted, session.Status)
	assert.Equal(t, 3, session.TrialDaysUsed)
	assert.Equal(t, "sub-42", session.SubscriptionID)

	ident, err := env.ids.Get(ctx, res.Identity.ID)
	require.NoError(t, err)
	assert.False(t, ident.IsDemo)
	assert.Equal(t, 1, env.notifier.count(models.TemplateDemoConverted))

	access, err := env.mgr.CheckFeatureAccess(ctx, res.Identity.ID, "workflow.automation")
	require.NoError(t, err)
	assert.True(t, access.Allowed, "converted identity is a full account")

	_, err = env.mgr.Convert(ctx, res.Identity.ID, "sub-43", "checkout")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestConvert_AfterExpiry(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	res := env.register(t, "slow@example.com")

	env.now = res.Session.ExpiresAt.Add(48 * time.Hour)
	n, err := env.mgr.RunExpirySweep(ctx, env.now)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	session, err := env.mgr.Convert(ctx, res.Identity.ID, "sub-1", "email")
	require.NoError(t, err)
	assert.Equal(t, models.DemoStatusConverted, session.Status)
	assert.Equal(t, 7, session.TrialDaysUsed)

	ident, err := env.ids.Get(ctx, res.Identity.ID)
	require.NoError(t, err)
	assert.Nil(t, ident.DemoExpiredAt)
}

func TestConvert_NoSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	created, err := env.ids.CreateSynchronizedIdentity(ctx, "paid@example.com", "str0ng-pass", identity.Profile{})
	require.NoError(t, err)

	_, err = env.mgr.Convert(ctx, created.Identity.ID, "sub", "admin")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = env.mgr.Convert(ctx, "missing", "sub", "admin")
	assert.ErrorIs(t, err, identity.ErrNotFound)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	res := env.register(t, "status@example.com")

	env.now = env.now.Add(24 * time.Hour)
	st, err := env.mgr.Status(ctx, res.Identity.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Session.ID, st.Session.ID)
	assert.Equal(t, int64(6*24*3600), st.RemainingSeconds)

	env.now = res.Session.ExpiresAt.Add(time.Minute)
	st, err = env.mgr.Status(ctx, res.Identity.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DemoStatusExpired, st.Session.Status)
	assert.Zero(t, st.RemainingSeconds)

	_, err = env.mgr.Status(ctx, "nobody")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAbandon(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	res := env.register(t, "gone@example.com")

	session, err := env.mgr.Abandon(ctx, res.Session.ID, "inactive", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.DemoStatusAbandoned, session.Status)
	assert.Equal(t, "inactive", session.AbandonReason)

	_, err = env.mgr.Abandon(ctx, res.Session.ID, "again", "admin-1")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = env.mgr.Abandon(ctx, "missing", "", "admin-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRunReminderSweep(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	res := env.register(t, "remind@example.com")
	expires := res.Session.ExpiresAt

	n, err := env.mgr.RunReminderSweep(ctx, expires.Add(-7*24*time.Hour).Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = env.mgr.RunReminderSweep(ctx, expires.Add(-7*24*time.Hour).Add(20*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, n, "reminder is sent once per threshold")

	n, err = env.mgr.RunReminderSweep(ctx, expires.Add(-5*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = env.mgr.RunReminderSweep(ctx, expires.Add(-3*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = env.mgr.RunReminderSweep(ctx, expires.Add(-2*time.Hour).Add(-15*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	s := env.session(t, res.Session.ID)
	assert.Equal(t, []string{"7d", "3d", "2h"}, s.RemindersSent)
	assert.Equal(t, 3, s.ReminderCount)
	assert.Equal(t, 3, env.notifier.count(models.TemplateDemoReminder))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.RemindersSent.WithLabelValues("3d")))
}

func TestRunReminderSweep_SkipsInactive(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	res := env.register(t, "skip@example.com")
	_, err := env.mgr.Abandon(ctx, res.Session.ID, "", "admin")
	require.NoError(t, err)

	n, err := env.mgr.RunReminderSweep(ctx, res.Session.ExpiresAt.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRunExpirySweep(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	first := env.register(t, "one@example.com")
	env.now = env.now.Add(24 * time.Hour)
	second := env.register(t, "two@example.com")

	n, err := env.mgr.RunExpirySweep(ctx, first.Session.ExpiresAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.DemoStatusExpired, env.session(t, first.Session.ID).Status)
	assert.Equal(t, models.DemoStatusActive, env.session(t, second.Session.ID).Status)

	ident, err := env.ids.Get(ctx, first.Identity.ID)
	require.NoError(t, err)
	assert.NotNil(t, ident.DemoExpiredAt)

	n, err = env.mgr.RunExpirySweep(ctx, first.Session.ExpiresAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, env.notifier.count(models.TemplateDemoExpired))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.DemoExpired))
}
