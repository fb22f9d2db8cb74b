// Package maintenance runs periodic housekeeping jobs on a cron schedule
package maintenance

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/studyflow/relay/pkg/types"
)

// Pruner deletes aged access log records from the knowledge backend
type Pruner interface {
	PruneAccessLog(ctx context.Context, before time.Time) (int64, error)
}

// Scheduler owns the cron runner for background housekeeping
type Scheduler struct {
	cron   *cron.Cron
	logger *log.Logger
}

// New creates a stopped scheduler
func New(logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		cron:   cron.New(),
		logger: logger,
	}
}

// SchedulePrune registers a job that trims access log records older than
// the retention window each time the spec fires
func (s *Scheduler) SchedulePrune(spec string, pruner Pruner, retention time.Duration) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		pruned, err := pruner.PruneAccessLog(ctx, time.Now().Add(-retention))
		if err != nil {
			s.logger.Printf("⚠️  Access log prune failed: %v", err)
			return
		}
		if pruned > 0 {
			s.logger.Printf("🧹 Pruned %d access log records older than %v", pruned, retention)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling prune job: %w", err)
	}
	return nil
}

// ScheduleStats registers a job that logs a system snapshot each time the
// spec fires
func (s *Scheduler) ScheduleStats(spec string, statusFn func() types.SystemStatus, countFn func(context.Context) (int64, error)) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		status := statusFn()
		entries, err := countFn(ctx)
		if err != nil {
			s.logger.Printf("⚠️  Stats snapshot: counting entries: %v", err)
			entries = -1
		}

		s.logger.Printf("📊 Agents: %d (active %d, processing %d, idle %d) | Queued: %d | Knowledge entries: %d",
			status.TotalAgents, status.Active, status.Processing, status.Idle, status.QueuedTasks, entries)
	})
	if err != nil {
		return fmt.Errorf("scheduling stats job: %w", err)
	}
	return nil
}

// Start begins running scheduled jobs
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
