package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// SyncRunner is what the scheduler invokes on each tick; callers bind
// SyncService.Sync to a source when constructing the service.
type SyncRunner func(ctx context.Context) error

// CronService re-runs the relational sync on a schedule so the embedded
// records track the source without manual triggers.
type CronService struct {
	scheduler *gocron.Scheduler
	spec      string
	run       SyncRunner
}

// NewCronService takes a standard 5-field cron spec. An empty spec disables
// scheduling entirely.
func NewCronService(spec string, run SyncRunner) *CronService {
	return &CronService{
		scheduler: gocron.NewScheduler(time.UTC),
		spec:      spec,
		run:       run,
	}
}

func (c *CronService) Start() error {
	if c.spec == "" {
		slog.Info("scheduled sync disabled")
		return nil
	}
	_, err := c.scheduler.Cron(c.spec).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		slog.Info("scheduled sync starting")
		if err := c.run(ctx); err != nil {
			slog.Error("scheduled sync failed", "error", err)
			return
		}
		slog.Info("scheduled sync finished")
	})
	if err != nil {
		return err
	}
	c.scheduler.StartAsync()
	slog.Info("scheduled sync enabled", "cron", c.spec)
	return nil
}

func (c *CronService) Stop() {
	c.scheduler.Stop()
}
