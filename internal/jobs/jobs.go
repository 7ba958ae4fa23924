// Package jobs runs the server's background maintenance on a schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/agjmills/gallery/internal/gallery"
	"github.com/agjmills/gallery/internal/logger"
	"github.com/go-co-op/gocron/v2"
)

// OrphanSweeper retries deletion of objects that earlier deletes left behind.
type OrphanSweeper interface {
	SweepOrphans(ctx context.Context) (gallery.SweepResult, error)
}

type Scheduler struct {
	scheduler gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
}

// New schedules the orphan sweep every interval. A run that is still going
// when the next one is due delays it instead of overlapping. The first sweep
// runs as soon as the scheduler starts.
func New(sweeper OrphanSweeper, interval time.Duration) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("orphan sweep interval must be positive, got %s", interval)
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			sweep(ctx, sweeper)
		}),
		gocron.WithName("orphan-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		cancel()
		s.Shutdown()
		return nil, fmt.Errorf("schedule orphan sweep: %w", err)
	}

	return &Scheduler{scheduler: s, ctx: ctx, cancel: cancel}, nil
}

func (s *Scheduler) Start() {
	s.scheduler.Start()
}

// Shutdown cancels a running sweep and waits for the scheduler to stop.
func (s *Scheduler) Shutdown() error {
	s.cancel()
	return s.scheduler.Shutdown()
}

func sweep(ctx context.Context, sweeper OrphanSweeper) {
	start := time.Now()
	result, err := sweeper.SweepOrphans(ctx)
	if err != nil {
		logger.Error("orphan sweep failed", "error", err)
		return
	}
	if result.Attempted == 0 {
		logger.Debug("orphan sweep found nothing to do")
		return
	}
	logger.Info("orphan sweep finished",
		"attempted", result.Attempted,
		"cleaned", result.Cleaned,
		"failed", result.Failed,
		"duration", time.Since(start),
	)
}
