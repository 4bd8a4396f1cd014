package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/telsalud/notefmt/internal/interfaces"
)

// Janitor purges terminal queue messages and stale terminal job rows on a
// cron schedule. Retention windows are independent: queue envelopes are only
// useful for short-term observability, job rows back the client read path for
// much longer.
type Janitor struct {
	cron           *cron.Cron
	queue          *BadgerManager
	jobs           interfaces.JobStorage
	queueRetention time.Duration
	jobRetention   time.Duration
	schedule       string
	logger         arbor.ILogger
}

// NewJanitor creates a retention janitor
func NewJanitor(queue *BadgerManager, jobs interfaces.JobStorage, queueRetention, jobRetention time.Duration, schedule string, logger arbor.ILogger) *Janitor {
	return &Janitor{
		cron:           cron.New(),
		queue:          queue,
		jobs:           jobs,
		queueRetention: queueRetention,
		jobRetention:   jobRetention,
		schedule:       schedule,
		logger:         logger,
	}
}

// Start registers the sweep schedule and starts the cron runner
func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, j.sweep); err != nil {
		return fmt.Errorf("failed to schedule retention sweep: %w", err)
	}

	j.cron.Start()

	j.logger.Info().
		Str("schedule", j.schedule).
		Dur("queue_retention", j.queueRetention).
		Dur("job_retention", j.jobRetention).
		Msg("Retention janitor started")

	return nil
}

// Stop stops the cron runner, waiting for a running sweep to finish
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.logger.Info().Msg("Retention janitor stopped")
}

// sweep performs one retention pass
func (j *Janitor) sweep() {
	ctx := context.Background()
	now := time.Now()

	purged, err := j.queue.PurgeDone(ctx, now.Add(-j.queueRetention))
	if err != nil {
		j.logger.Warn().Err(err).Msg("Queue retention sweep failed")
	} else if purged > 0 {
		j.logger.Info().Int("purged", purged).Msg("Purged terminal queue messages")
	}

	deleted, err := j.jobs.DeleteTerminalBefore(ctx, now.Add(-j.jobRetention))
	if err != nil {
		j.logger.Warn().Err(err).Msg("Job retention sweep failed")
	} else if deleted > 0 {
		j.logger.Info().Int("deleted", deleted).Msg("Deleted stale terminal jobs")
	}
}
