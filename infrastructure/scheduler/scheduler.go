package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"echotree/infrastructure/logger"
)

// Job is a periodic task.
type Job func(ctx context.Context) error

// Scheduler runs named jobs on cron schedules. Overlapping runs of the same job are skipped.
type Scheduler struct {
	cron    *cron.Cron
	jobs    map[string]cron.EntryID
	timeout time.Duration
}

func New(timezone string, timeout time.Duration) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", timezone, err)
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	return &Scheduler{cron: c, jobs: make(map[string]cron.EntryID), timeout: timeout}, nil
}

// AddJob accepts standard five-field specs and descriptors such as "@every 1m".
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	entryID, err := s.cron.AddFunc(schedule, func() {
		s.run(name, job)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}
	s.jobs[name] = entryID
	logger.GetLogger().WithField("job", name).WithField("schedule", schedule).Info("job scheduled")
	return nil
}

func (s *Scheduler) run(name string, job Job) {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	lg := logger.GetLogger().WithField("job", name)
	start := time.Now()
	if err := job(ctx); err != nil {
		lg.WithField("error", err).Error("job failed")
		return
	}
	lg.WithField("elapsed", time.Since(start).String()).Debug("job completed")
}

func (s *Scheduler) Start() {
	logger.GetLogger().Info("starting scheduler")
	s.cron.Start()
}

// Stop prevents new runs; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	logger.GetLogger().Info("stopping scheduler")
	return s.cron.Stop()
}

type JobInfo struct {
	Name    string
	NextRun time.Time
	LastRun time.Time
}

func (s *Scheduler) ListJobs() []JobInfo {
	infos := make([]JobInfo, 0, len(s.jobs))
	for name, id := range s.jobs {
		entry := s.cron.Entry(id)
		infos = append(infos, JobInfo{Name: name, NextRun: entry.Next, LastRun: entry.Prev})
	}
	return infos
}
