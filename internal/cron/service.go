package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/kolo-backend/pkg/logger"
	"github.com/angelmondragon/kolo-backend/pkg/metrics"
)

const (
	defaultInterval   = 15 * time.Minute
	defaultJobTimeout = 5 * time.Minute
)

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger     *logger.Logger
	Registry   *Registry
	Lock       Lock
	Metrics    *metrics.CronJobMetrics
	Interval   time.Duration
	JobTimeout time.Duration
}

// Service runs every registered job once per tick while it holds the lock.
// Jobs that implement Periodic are skipped until their own cadence elapses.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
	now        func() time.Time
	lastRun    map[string]time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Lock == nil:
		return nil, errors.New("lock required")
	case params.Registry == nil:
		return nil, errors.New("registry required")
	}
	s := &Service{
		logg:       params.Logger,
		registry:   params.Registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   params.Interval,
		jobTimeout: params.JobTimeout,
		now:        time.Now,
		lastRun:    map[string]time.Time{},
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.jobTimeout <= 0 {
		s.jobTimeout = defaultJobTimeout
	}
	return s, nil
}

// Run ticks until ctx is canceled. The first cycle starts immediately.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.runCycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logg.Error(ctx, "scheduled run failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

type cycleStats struct {
	ran, failed, skipped int
}

func (s *Service) runCycle(ctx context.Context) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "cron lock held elsewhere, skipping cycle")
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Error(ctx, "failed to release cron lock", relErr)
		}
	}()

	var stats cycleStats
	for _, job := range s.registry.Jobs() {
		if !s.due(job) {
			stats.skipped++
			continue
		}
		stats.ran++
		if err := s.runJob(ctx, job); err != nil {
			stats.failed++
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// a job that outlived the lock ttl means another worker may be running
		if err := s.lock.Extend(ctx); err != nil {
			return fmt.Errorf("after %s: %w", job.Name(), err)
		}
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs_ran":     stats.ran,
		"jobs_failed":  stats.failed,
		"jobs_skipped": stats.skipped,
	}), "scheduled run complete")
	return nil
}

// due reports whether job's own cadence has elapsed since its last start on
// this instance. Jobs without a cadence are always due.
func (s *Service) due(job Job) bool {
	p, ok := job.(Periodic)
	if !ok || p.Every() <= 0 {
		return true
	}
	last, ran := s.lastRun[job.Name()]
	return !ran || s.now().Sub(last) >= p.Every()
}

func (s *Service) runJob(ctx context.Context, job Job) (err error) {
	name := job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})
	jobCtx, cancel := context.WithTimeout(jobCtx, s.jobTimeout)
	defer cancel()

	start := s.now()
	s.lastRun[name] = start
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", name, r)
		}
		elapsed := s.now().Sub(start)
		logCtx := s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
		s.metrics.RecordRun(name, elapsed, err)
		if err != nil {
			s.logg.Error(logCtx, "job failed", err)
			return
		}
		s.logg.Info(logCtx, "job completed")
	}()

	s.logg.Debug(jobCtx, "job start")
	return job.Run(jobCtx)
}
