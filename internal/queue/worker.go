package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/telsalud/notefmt/internal/models"
)

// JobHandler processes one delivery of a queue message. Returning nil acks the
// message (the terminal outcome, success or failure, is already persisted by
// the handler). Returning an error nacks it so the queue reschedules with
// backoff.
type JobHandler func(ctx context.Context, msg models.QueueMessage, attempt, maxAttempts int) error

// WorkerPool manages a fixed-size pool of workers polling the queue
type WorkerPool struct {
	queue    *BadgerManager
	config   Config
	handlers map[string]JobHandler
	logger   arbor.ILogger
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(queue *BadgerManager, config Config, logger arbor.ILogger) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		queue:    queue,
		config:   config,
		handlers: make(map[string]JobHandler),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// RegisterHandler registers a job type handler
func (wp *WorkerPool) RegisterHandler(jobType string, handler JobHandler) {
	wp.handlers[jobType] = handler
	wp.logger.Debug().
		Str("job_type", jobType).
		Msg("Job handler registered")
}

// Start starts the worker pool
func (wp *WorkerPool) Start() error {
	wp.logger.Info().
		Int("concurrency", wp.config.Concurrency).
		Str("queue", wp.config.QueueName).
		Msg("Starting worker pool")

	for i := 0; i < wp.config.Concurrency; i++ {
		go wp.worker(i)
	}

	return nil
}

// Stop gracefully stops the worker pool
func (wp *WorkerPool) Stop() error {
	wp.logger.Info().Msg("Stopping worker pool")
	wp.cancel()
	return nil
}

// worker is the main worker loop that polls for messages
func (wp *WorkerPool) worker(workerID int) {
	// Stagger worker starts to spread polls across the interval and reduce
	// transaction conflicts on the shared Badger instance
	staggerDelay := (wp.config.PollInterval / time.Duration(wp.config.Concurrency)) * time.Duration(workerID)
	if staggerDelay > 0 {
		time.Sleep(staggerDelay)
	}

	wp.logger.Debug().
		Int("worker_id", workerID).
		Dur("stagger_delay", staggerDelay).
		Msg("Worker started")

	ticker := time.NewTicker(wp.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug().
				Int("worker_id", workerID).
				Msg("Worker stopped")
			return

		case <-ticker.C:
			if err := wp.processMessage(workerID); err != nil {
				if !errors.Is(err, models.ErrNoMessage) {
					wp.logger.Warn().
						Err(err).
						Int("worker_id", workerID).
						Msg("Error processing message")
				}
			}
		}
	}
}

// processMessage receives and processes a single message
func (wp *WorkerPool) processMessage(workerID int) error {
	delivery, err := wp.queue.Receive(wp.ctx)
	if err != nil {
		if errors.Is(err, models.ErrNoMessage) {
			return err
		}
		return fmt.Errorf("failed to receive message: %w", err)
	}

	msg := delivery.Msg

	handler, exists := wp.handlers[msg.Type]
	if !exists {
		wp.logger.Error().
			Str("type", msg.Type).
			Str("job_id", msg.JobID).
			Msg("No handler registered for job type")
		// Ack to drop: redelivering an unroutable message cannot help
		if ackErr := delivery.Ack(); ackErr != nil {
			wp.logger.Warn().Err(ackErr).Msg("Failed to ack unroutable message")
		}
		return fmt.Errorf("no handler for job type: %s", msg.Type)
	}

	wp.logger.Debug().
		Str("job_id", msg.JobID).
		Str("type", msg.Type).
		Int("attempt", delivery.Attempt).
		Int("worker_id", workerID).
		Msg("Processing message")

	startTime := time.Now()
	handlerErr := handler(wp.ctx, msg, delivery.Attempt, wp.config.MaxAttempts)
	duration := time.Since(startTime)

	if handlerErr != nil {
		wp.logger.Warn().
			Err(handlerErr).
			Str("job_id", msg.JobID).
			Str("type", msg.Type).
			Int("attempt", delivery.Attempt).
			Dur("duration", duration).
			Int("worker_id", workerID).
			Msg("Job handler failed, rescheduling with backoff")

		if err := delivery.Nack(); err != nil {
			wp.logger.Warn().
				Err(err).
				Str("job_id", msg.JobID).
				Msg("Failed to nack message after handler failure")
			return err
		}
		return handlerErr
	}

	wp.logger.Info().
		Str("job_id", msg.JobID).
		Str("type", msg.Type).
		Dur("duration", duration).
		Int("worker_id", workerID).
		Msg("Message processed")

	if err := delivery.Ack(); err != nil {
		wp.logger.Warn().
			Err(err).
			Str("job_id", msg.JobID).
			Msg("Failed to ack message after processing")
		return err
	}

	return nil
}
