// Package scheduler runs the periodic maintenance jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Job is a named task run every Interval. With RunOnStart the first run
// happens as soon as the scheduler starts instead of one interval later.
type Job struct {
	Name       string
	Interval   time.Duration
	RunOnStart bool
	Run        func(ctx context.Context) error
}

type Scheduler struct {
	sched gocron.Scheduler
}

// Start registers every job and starts the scheduler. Jobs never overlap
// with themselves.
func Start(jobs ...Job) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	for _, job := range jobs {
		job := job
		opts := []gocron.JobOption{
			gocron.WithName(job.Name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		}
		if job.RunOnStart {
			opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
		}
		_, err := sched.NewJob(
			gocron.DurationJob(job.Interval),
			gocron.NewTask(func() { runJob(job) }),
			opts...,
		)
		if err != nil {
			_ = sched.Shutdown()
			return nil, fmt.Errorf("register job %s: %w", job.Name, err)
		}
	}

	sched.Start()
	slog.Info("scheduler started", "jobs", len(jobs))
	return &Scheduler{sched: sched}, nil
}

func runJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), job.Interval)
	defer cancel()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		slog.Error("scheduled job failed", "action", job.Name, "error", err)
		return
	}
	slog.Info("scheduled job finished", "action", job.Name, "latency_ms", time.Since(start).Milliseconds())
}

func (s *Scheduler) Stop() error {
	return s.sched.Shutdown()
}
