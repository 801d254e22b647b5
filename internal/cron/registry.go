package cron

import (
	"context"
	"time"
)

// Job represents a scheduled task that runs inside the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Schedule binds a job to its cadence. LockTTL bounds how long one run may
// hold the job lock; it defaults to Every.
type Schedule struct {
	Job     Job
	Every   time.Duration
	LockTTL time.Duration
}

// Registry tracks registered cron jobs.
type Registry struct {
	schedules []Schedule
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a job. Nil jobs and non-positive intervals are ignored.
func (r *Registry) Register(job Job, every, lockTTL time.Duration) {
	if job == nil || every <= 0 {
		return
	}
	if lockTTL <= 0 {
		lockTTL = every
	}
	r.schedules = append(r.schedules, Schedule{Job: job, Every: every, LockTTL: lockTTL})
}

// Schedules returns the registered jobs in the order they were added.
func (r *Registry) Schedules() []Schedule {
	out := make([]Schedule, len(r.schedules))
	copy(out, r.schedules)
	return out
}
