package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/smm-storefront/pkg/logger"
	"github.com/angelmondragon/smm-storefront/pkg/metrics"
)

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Locks    LockFactory
	Metrics  *metrics.CronJobMetrics
}

// Service runs every registered job on its own ticker. Each run takes the
// job's lock first, so only one worker executes a given job at a time.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	locks    LockFactory
	metrics  *metrics.CronJobMetrics
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Locks == nil {
		return nil, fmt.Errorf("lock factory required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		locks:    params.Locks,
		metrics:  params.Metrics,
	}, nil
}

// Run starts one loop per job and blocks until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	schedules := s.registry.Schedules()
	if len(schedules) == 0 {
		return errors.New("no cron jobs registered")
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, schedule := range schedules {
		g.Go(func() error {
			return s.loop(gctx, schedule)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		s.logg.Info(ctx, "cron service context canceled")
	}
	return err
}

func (s *Service) loop(ctx context.Context, schedule Schedule) error {
	s.runOnce(ctx, schedule)
	ticker := time.NewTicker(schedule.Every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx, schedule)
		}
	}
}

// runOnce executes a single cycle of the job. It reports whether the job
// actually ran.
func (s *Service) runOnce(ctx context.Context, schedule Schedule) bool {
	name := schedule.Job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{
		"job":   name,
		"event": "cron.job",
	})

	lock, err := s.locks(name, schedule.LockTTL)
	if err != nil {
		s.logg.Error(jobCtx, "failed to build job lock", err)
		s.metrics.IncFailure(name)
		return false
	}
	locked, err := lock.Acquire(jobCtx)
	if err != nil {
		s.logg.Error(jobCtx, "lock acquire failed", err)
		s.metrics.IncFailure(name)
		return false
	}
	if !locked {
		s.logg.Info(jobCtx, "another cron instance holds the job; skipping this cycle")
		s.metrics.IncSkipped(name)
		return false
	}
	defer func() {
		if relErr := lock.Release(context.WithoutCancel(jobCtx)); relErr != nil {
			s.logg.Error(jobCtx, "failed to release cron lock", relErr)
		}
	}()

	s.logg.Info(jobCtx, "job start")
	start := time.Now()
	err = schedule.Job.Run(jobCtx)
	duration := time.Since(start)
	s.metrics.ObserveDuration(name, duration)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		s.metrics.IncFailure(name)
		return true
	}
	s.logg.Info(jobCtx, "job completed")
	s.metrics.IncSuccess(name)
	return true
}
