// Package scheduler turns due schedules into queued run requests and keeps
// the request table consistent with the live worker set.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	config "benchrun/configs"
	"benchrun/pkg/coordination"
	"benchrun/pkg/logger"
	"benchrun/pkg/metrics"
	"benchrun/pkg/models"
	"benchrun/pkg/storage"
)

// ElectionName is the campaign schedulers compete in.
const ElectionName = "benchrun-scheduler"

const (
	pollBatch  = 50
	retryBatch = 20
)

// CronParser is the five-field cron dialect used for schedules.
var CronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

type Core struct {
	schedules   storage.ScheduleStore
	requests    storage.RequestStore
	queue       storage.Queue
	coordinator coordination.Coordinator
	log         *zap.Logger

	interval          time.Duration
	reconcileInterval time.Duration
	retryBackoff      time.Duration
	now               func() time.Time
}

func NewCore(cfg *config.Config, schedules storage.ScheduleStore, requests storage.RequestStore, queue storage.Queue, coord coordination.Coordinator) *Core {
	return &Core{
		schedules:         schedules,
		requests:          requests,
		queue:             queue,
		coordinator:       coord,
		log:               logger.Named("scheduler"),
		interval:          parseDuration(cfg.SchedulerInterval, 10*time.Second),
		reconcileInterval: parseDuration(cfg.ReconcileInterval, 30*time.Second),
		retryBackoff:      parseDuration(cfg.RetryBackoff, 10*time.Second),
		now:               time.Now,
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Run polls and reconciles while id holds leadership of election. It blocks
// until ctx is cancelled.
func (c *Core) Run(ctx context.Context, election coordination.Election, id string) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	reconcileTicker := time.NewTicker(c.reconcileInterval)
	defer reconcileTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("Shutting down")
			return

		case <-ticker.C:
			if !c.leading(ctx, election, id) {
				continue
			}
			if err := c.PollAndSchedule(ctx); err != nil {
				c.log.Error("Schedule loop failed", zap.Error(err))
			}

		case <-reconcileTicker.C:
			if !c.leading(ctx, election, id) {
				continue
			}
			if err := c.Reconcile(ctx); err != nil {
				c.log.Error("Reconcile loop failed", zap.Error(err))
			}
		}
	}
}

func (c *Core) leading(ctx context.Context, election coordination.Election, id string) bool {
	ok, err := coordination.IsLeader(ctx, election, id)
	if err != nil {
		c.log.Warn("Error checking leadership", zap.Error(err))
		return false
	}
	if !ok {
		c.log.Warn("Lost leadership, skipping tick", zap.String("id", id))
	}
	return ok
}

// PollAndSchedule creates one run request per due schedule, pushes it to the
// queue and moves the schedule to its next fire time.
func (c *Core) PollAndSchedule(ctx context.Context) error {
	metrics.SchedulerPolls.Inc()

	due, err := c.schedules.ListDueSchedules(ctx, pollBatch)
	if err != nil {
		return fmt.Errorf("failed to list due schedules: %w", err)
	}
	if len(due) == 0 {
		return nil
	}
	c.log.Info("Found due schedules", zap.Int("count", len(due)))

	now := c.now()
	for _, sched := range due {
		scheduleID := sched.ID
		scheduledAt := now
		if sched.NextRunAt != nil {
			scheduledAt = *sched.NextRunAt
		}
		maxAttempts := sched.MaxAttempts
		if maxAttempts < 1 {
			maxAttempts = 1
		}

		req := &models.RunRequest{
			ID:          uuid.New(),
			ScheduleID:  &scheduleID,
			Kind:        sched.Kind,
			Source:      sched.Source,
			URL:         sched.URL,
			Args:        sched.Args,
			Status:      models.RunPending,
			Attempt:     1,
			MaxAttempts: maxAttempts,
			ScheduledAt: scheduledAt,
		}

		// DB write then queue push. A crash between the two leaves a PENDING
		// row that never runs; the reaper only handles RUNNING ones.
		if err := c.requests.CreateRequest(ctx, req); err != nil {
			c.log.Error("Failed to create run request", zap.String("schedule", sched.Name), zap.Error(err))
			continue
		}
		if err := c.queue.Push(ctx, req); err != nil {
			c.log.Error("Failed to push run request", zap.String("schedule", sched.Name), zap.Error(err))
			continue
		}
		metrics.RecordDispatch(now.Sub(scheduledAt).Seconds())

		cronSched, err := CronParser.Parse(sched.Cron)
		if err != nil {
			c.log.Error("Invalid cron expression", zap.String("schedule", sched.Name), zap.Error(err))
			continue
		}
		nextRun := cronSched.Next(now)
		if err := c.schedules.UpdateNextRun(ctx, sched.ID, nextRun); err != nil {
			c.log.Error("Failed to update next run", zap.String("schedule", sched.Name), zap.Error(err))
			continue
		}

		c.log.Info("Dispatched scheduled run",
			zap.String("schedule", sched.Name),
			zap.String("request_id", req.ID.String()),
			zap.Time("next_run", nextRun))
	}
	return nil
}

// Reconcile fails requests held by dead workers, then retries failures.
func (c *Core) Reconcile(ctx context.Context) error {
	nodes, err := c.coordinator.GetActiveNodes(ctx)
	if err != nil {
		return fmt.Errorf("failed to get active nodes: %w", err)
	}
	metrics.ActiveNodes.Set(float64(len(nodes)))

	count, err := c.requests.MarkOrphansAsFailed(ctx, nodes)
	if err != nil {
		return fmt.Errorf("failed to reap orphans: %w", err)
	}
	if count > 0 {
		metrics.OrphansReaped.Add(float64(count))
		c.log.Warn("Reaped orphaned run requests", zap.Int64("count", count))
	}

	if err := c.RetryFailures(ctx); err != nil {
		c.log.Error("Error retrying failures", zap.Error(err))
	}
	return nil
}

// RetryFailures queues a follow-up attempt for each FAILED request with
// attempts left. INVALID requests are never retried: a declaration error
// fails the same way every time.
func (c *Core) RetryFailures(ctx context.Context) error {
	failures, err := c.requests.ListRetryable(ctx, retryBatch)
	if err != nil {
		return err
	}

	for _, failed := range failures {
		if failed.Status != models.RunFailed || failed.Attempt >= failed.MaxAttempts {
			continue
		}

		retry := &models.RunRequest{
			ID:          uuid.New(),
			ScheduleID:  failed.ScheduleID,
			Kind:        failed.Kind,
			Source:      failed.Source,
			URL:         failed.URL,
			Args:        failed.Args,
			Status:      models.RunPending,
			Attempt:     failed.Attempt + 1,
			MaxAttempts: failed.MaxAttempts,
			ScheduledAt: c.now().Add(c.retryBackoff),
		}
		if err := c.requests.CreateRequest(ctx, retry); err != nil {
			c.log.Error("Failed to create retry", zap.String("request_id", failed.ID.String()), zap.Error(err))
			continue
		}
		if err := c.requests.MarkRetried(ctx, failed.ID); err != nil {
			c.log.Error("Failed to mark request retried", zap.String("request_id", failed.ID.String()), zap.Error(err))
		}
		if err := c.queue.Push(ctx, retry); err != nil {
			c.log.Error("Failed to push retry", zap.String("request_id", retry.ID.String()), zap.Error(err))
			continue
		}

		metrics.RetriesTotal.Inc()
		c.log.Info("Scheduled retry",
			zap.String("request_id", retry.ID.String()),
			zap.String("retry_of", failed.ID.String()),
			zap.Int("attempt", retry.Attempt),
			zap.Int("max_attempts", retry.MaxAttempts))
	}
	return nil
}
