// Package scheduler периодически запускает фоновые проходы: напоминания
// и истечение демо-сессий, истечение лицензий.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/magabrotheeeer/licensing-backend/internal/lib/sl"
)

// DemoSweeper выполняет проходы по демо-сессиям.
type DemoSweeper interface {
	RunReminderSweep(ctx context.Context, now time.Time) (int, error)
	RunExpirySweep(ctx context.Context, now time.Time) (int, error)
}

// LicenseSweeper выполняет проход истечения лицензий.
type LicenseSweeper interface {
	RunExpirySweep(ctx context.Context, now time.Time) (int, error)
}

// Job описывает периодическую задачу.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context, now time.Time) (int, error)
}

// Service запускает задачи по таймеру.
type Service struct {
	jobs []Job
	log  *slog.Logger
	now  func() time.Time
}

// New создаёт планировщик стандартных проходов с периодом interval.
func New(demo DemoSweeper, licenses LicenseSweeper, interval time.Duration, log *slog.Logger) *Service {
	return &Service{
		jobs: []Job{
			{Name: "demo_reminders", Interval: interval, Run: demo.RunReminderSweep},
			{Name: "demo_expiry", Interval: interval, Run: demo.RunExpirySweep},
			{Name: "license_expiry", Interval: interval, Run: licenses.RunExpirySweep},
		},
		log: log,
		now: time.Now,
	}
}

// Jobs возвращает зарегистрированные задачи.
func (s *Service) Jobs() []Job {
	return s.jobs
}

// Run запускает все задачи и блокируется до отмены ctx.
// Каждая задача выполняется сразу при старте, затем с заданным периодом.
func (s *Service) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.loop(ctx, job)
		}(job)
	}
	wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Service) loop(ctx context.Context, job Job) {
	s.runOnce(ctx, job)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *Service) runOnce(ctx context.Context, job Job) {
	log := s.log.With(slog.String("job", job.Name))
	log.Debug("starting sweep")
	n, err := job.Run(ctx, s.now().UTC())
	if err != nil {
		log.Error("sweep failed", sl.Err(err))
		return
	}
	if n == 0 {
		log.Debug("nothing to do")
		return
	}
	log.Info("sweep finished", "count", n)
}
