package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/telsalud/notefmt/internal/interfaces"
	"github.com/telsalud/notefmt/internal/models"
	"github.com/telsalud/notefmt/internal/services/formatter"
)

// Processor executes format jobs pulled from the queue. One processor instance
// is shared by all workers; it holds no per-job state.
type Processor struct {
	jobs      interfaces.JobStorage
	proposals interfaces.ProposalStorage
	notes     interfaces.NoteStorage
	provider  formatter.Provider
	fallback  formatter.Provider
	events    interfaces.EventService
	logger    arbor.ILogger
}

// NewProcessor creates the job processor. The deterministic provider serves as
// the transparent fallback whenever the configured provider is generative.
func NewProcessor(jobs interfaces.JobStorage, proposals interfaces.ProposalStorage, notes interfaces.NoteStorage, provider formatter.Provider, events interfaces.EventService, logger arbor.ILogger) *Processor {
	return &Processor{
		jobs:      jobs,
		proposals: proposals,
		notes:     notes,
		provider:  provider,
		fallback:  formatter.NewDummyProvider(),
		events:    events,
		logger:    logger,
	}
}

// HandleFormatJob processes one delivery. Returning nil acks the message (the
// terminal outcome is already persisted); returning an error nacks it so the
// queue reschedules with backoff.
func (p *Processor) HandleFormatJob(ctx context.Context, msg models.QueueMessage, attempt, maxAttempts int) error {
	job, err := p.jobs.GetJob(ctx, msg.JobID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			// Job row vanished (retention sweep or manual cleanup): drop
			p.logger.Warn().Str("job_id", msg.JobID).Msg("Queued job has no record, dropping")
			return nil
		}
		return fmt.Errorf("failed to load job %s: %w", msg.JobID, err)
	}

	if job.IsTerminal() {
		// Redelivery of already-finished work, e.g. after a crash between
		// persisting the outcome and acking
		p.logger.Debug().
			Str("job_id", job.ID).
			Str("status", string(job.Status)).
			Msg("Job already terminal, dropping redelivery")
		return nil
	}

	job.MarkProcessing()
	if err := p.jobs.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to mark job processing: %w", err)
	}

	note, err := p.notes.GetNote(ctx, job.FinalNoteID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			p.fail(ctx, job, formatter.NewError(formatter.CodeNotFound, fmt.Errorf("source note %s missing", job.FinalNoteID)))
			return nil
		}
		return fmt.Errorf("failed to load note %s: %w", job.FinalNoteID, err)
	}

	req := formatter.Request{
		Title:         note.Title,
		Body:          note.Body,
		Profile:       job.Preset,
		Options:       job.Options,
		PromptVersion: job.PromptVersion,
	}

	result, err := p.provider.Format(ctx, req)
	if err != nil && p.provider.Name() != p.fallback.Name() {
		// A degraded generative backend never fails the job by itself: the
		// same attempt transparently reruns on the deterministic provider.
		p.logger.Warn().
			Err(err).
			Str("job_id", job.ID).
			Str("provider", p.provider.Name()).
			Msg("Generative provider failed, falling back to deterministic rewriter")
		result, err = p.fallback.Format(ctx, req)
	}

	if err != nil {
		ferr := formatter.Classify(err)
		if ferr.Code.Retryable() && attempt < maxAttempts {
			p.logger.Warn().
				Err(ferr).
				Str("job_id", job.ID).
				Int("attempt", attempt).
				Int("max_attempts", maxAttempts).
				Msg("Retryable formatting failure, rescheduling")
			return ferr
		}
		p.fail(ctx, job, ferr)
		return nil
	}

	for _, variant := range models.Variants {
		v := result.Variants[variant]
		proposal := &models.Proposal{
			JobID:   job.ID,
			Variant: variant,
			Title:   v.Title,
			Body:    v.Body,
		}
		if err := p.proposals.UpsertProposal(ctx, proposal); err != nil {
			ferr := formatter.Classify(fmt.Errorf("failed to persist proposal %s: %w", variant, err))
			if ferr.Code.Retryable() && attempt < maxAttempts {
				return ferr
			}
			p.fail(ctx, job, ferr)
			return nil
		}
	}

	job.MarkCompleted(result.Provider, result.Model)
	if err := p.jobs.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}

	p.logger.Info().
		Str("job_id", job.ID).
		Str("provider", result.Provider).
		Str("model", result.Model).
		Str("trace_id", job.TraceID).
		Msg("Format job completed")

	p.publish(ctx, interfaces.EventFormatJobCompleted, job, nil)
	return nil
}

// fail persists the terminal failure and publishes the failure event
func (p *Processor) fail(ctx context.Context, job *models.FormatJob, ferr *formatter.Error) {
	message := ""
	if ferr.Err != nil {
		message = formatter.Sanitize(ferr.Err.Error())
	}
	job.MarkFailed(string(ferr.Code), message)

	if err := p.jobs.SaveJob(ctx, job); err != nil {
		p.logger.Error().
			Err(err).
			Str("job_id", job.ID).
			Msg("Failed to persist terminal job failure")
		return
	}

	p.logger.Warn().
		Str("job_id", job.ID).
		Str("error_code", string(ferr.Code)).
		Str("trace_id", job.TraceID).
		Msg("Format job failed")

	p.publish(ctx, interfaces.EventFormatJobFailed, job, &models.JobEventError{
		Code:    string(ferr.Code),
		Message: message,
	})
}

// publish emits the terminal event best-effort. Publish failures are logged
// and swallowed, never escalated to the job outcome.
func (p *Processor) publish(ctx context.Context, eventType interfaces.EventType, job *models.FormatJob, jobErr *models.JobEventError) {
	event := interfaces.Event{
		Type: eventType,
		Payload: models.FormatJobEvent{
			FormatJobID:    job.ID,
			ConsultationID: job.ConsultationID,
			EpisodeID:      job.EpisodeID,
			FinalNoteID:    job.FinalNoteID,
			Status:         job.Status,
			TraceID:        job.TraceID,
			Error:          jobErr,
		},
	}

	if err := p.events.Publish(ctx, event); err != nil {
		p.logger.Warn().
			Err(err).
			Str("job_id", job.ID).
			Str("event_type", string(eventType)).
			Msg("Failed to publish job event")
	}
}
