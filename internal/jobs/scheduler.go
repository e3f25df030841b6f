// Package jobs runs the periodic maintenance work: expiring unpaid bookings, finishing interrupted
// releases and purging read notifications.
package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"parcelmarket/internal/pkg/logger"
)

// Job is one unit of periodic work. Run reports how many rows it touched.
type Job interface {
	Name() string
	Run(ctx context.Context) (int, error)
}

type entry struct {
	job      Job
	interval time.Duration
}

// Scheduler runs each registered job on its own ticker until Stop.
type Scheduler struct {
	entries []entry
	log     *zap.Logger
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewScheduler(log *zap.Logger) *Scheduler {
	return &Scheduler{log: logger.OrNop(log).Named("jobs")}
}

// Every registers job. A non-positive interval disables it.
func (s *Scheduler) Every(interval time.Duration, job Job) {
	if interval <= 0 {
		s.log.Info("job disabled", zap.String("job", job.Name()))
		return
	}
	s.entries = append(s.entries, entry{job: job, interval: interval})
}

func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for _, e := range s.entries {
		s.wg.Add(1)
		go s.loop(ctx, e)
		s.log.Info("job scheduled", zap.String("job", e.job.Name()), zap.Duration("interval", e.interval))
	}
}

// Stop cancels the running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, e entry) {
	defer s.wg.Done()
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			RunOnce(ctx, e.job, s.log)
		}
	}
}

// RunOnce executes job and logs its result.
func RunOnce(ctx context.Context, job Job, log *zap.Logger) (int, error) {
	log = logger.OrNop(log)
	start := time.Now()
	n, err := job.Run(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Error("job failed", zap.String("job", job.Name()), zap.Int("processed", n), zap.Error(err))
		}
		return n, err
	}
	if n > 0 {
		log.Info("job finished", zap.String("job", job.Name()), zap.Int("processed", n), zap.Duration("took", time.Since(start)))
	}
	return n, nil
}
