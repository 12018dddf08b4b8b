package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockDemo struct {
	mock.Mock
}

func (m *MockDemo) RunReminderSweep(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

func (m *MockDemo) RunExpirySweep(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

type MockLicenses struct {
	mock.Mock
}

func (m *MockLicenses) RunExpirySweep(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestService_New(t *testing.T) {
	s := New(new(MockDemo), new(MockLicenses), time.Minute, newNoopLogger())

	jobs := s.Jobs()
	require.Len(t, jobs, 3)
	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Name)
		assert.Equal(t, time.Minute, j.Interval)
	}
	assert.ElementsMatch(t, []string{"demo_reminders", "demo_expiry", "license_expiry"}, names)
}

func TestService_RunsEveryJobImmediately(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	demo := new(MockDemo)
	licenses := new(MockLicenses)
	demo.On("RunReminderSweep", mock.Anything, now).Return(2, nil)
	demo.On("RunExpirySweep", mock.Anything, now).Return(0, nil)
	licenses.On("RunExpirySweep", mock.Anything, now).Return(0, errors.New("store down"))

	s := New(demo, licenses, time.Hour, newNoopLogger())
	s.now = func() time.Time { return now }

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	demo.AssertNumberOfCalls(t, "RunReminderSweep", 1)
	demo.AssertNumberOfCalls(t, "RunExpirySweep", 1)
	licenses.AssertNumberOfCalls(t, "RunExpirySweep", 1)
}

func TestService_RepeatsOnTicker(t *testing.T) {
	calls := make(chan struct{}, 16)
	s := &Service{
		jobs: []Job{{
			Name:     "tick",
			Interval: 5 * time.Millisecond,
			Run: func(context.Context, time.Time) (int, error) {
				select {
				case calls <- struct{}{}:
				default:
				}
				return 1, nil
			},
		}},
		log: newNoopLogger(),
		now: time.Now,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		select {
		case <-calls:
		case <-time.After(time.Second):
			t.Fatal("job was not repeated")
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
