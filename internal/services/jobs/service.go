package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/telsalud/notefmt/internal/common"
	"github.com/telsalud/notefmt/internal/interfaces"
	"github.com/telsalud/notefmt/internal/models"
	"github.com/telsalud/notefmt/internal/services/formatter"
)

// Sentinel errors mapped to HTTP statuses by the handler layer
var (
	// ErrNotFound covers both missing records and ownership mismatches so the
	// two are indistinguishable to callers
	ErrNotFound = errors.New("job or consultation not found")

	// ErrNoFinalNote means the consultation exists but has no finalized note
	// to format: a precondition conflict, not a not-found
	ErrNoFinalNote = errors.New("consultation has no finalized note")

	// ErrEnqueueFailed means the job row was created but the queue write
	// failed; the job is already marked failed and callers should fetch its
	// status rather than retry blindly
	ErrEnqueueFailed = errors.New("failed to enqueue format job")
)

// Enqueuer is the narrow queue surface the gate needs
type Enqueuer interface {
	Enqueue(ctx context.Context, msg models.QueueMessage, dedupID string) error
}

// CreateJobRequest is the submission payload. All fields are optional;
// defaults are resolved server-side.
type CreateJobRequest struct {
	Preset  string          `json:"preset,omitempty" validate:"omitempty,oneof=soap plain"`
	Options *RequestOptions `json:"options,omitempty"`
}

// RequestOptions are the client-supplied formatting preferences. Pointer
// fields distinguish "not sent" from zero values.
type RequestOptions struct {
	Length   *string  `json:"length,omitempty" validate:"omitempty,oneof=brief standard detailed"`
	Bullets  *bool    `json:"bullets,omitempty"`
	Keywords []string `json:"keywords,omitempty" validate:"omitempty,max=10,dive,min=1,max=64"`
	Tone     *string  `json:"tone,omitempty" validate:"omitempty,oneof=neutral formal cercano"`
}

// JobRef is the submission response
type JobRef struct {
	JobID  string           `json:"jobId"`
	Status models.JobStatus `json:"status"`
}

// ProposalView is a proposal as exposed on the read path
type ProposalView struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body"`
}

// JobView is the job read model. Proposals appear only when completed and the
// error only when failed.
type JobView struct {
	ID            string                                   `json:"id"`
	Status        models.JobStatus                         `json:"status"`
	Preset        string                                   `json:"preset"`
	Options       models.FormatOptions                     `json:"options"`
	PromptVersion int                                      `json:"promptVersion"`
	Provider      string                                   `json:"provider,omitempty"`
	Model         string                                   `json:"model,omitempty"`
	CreatedAt     time.Time                                `json:"createdAt"`
	StartedAt     *time.Time                               `json:"startedAt,omitempty"`
	FinishedAt    *time.Time                               `json:"finishedAt,omitempty"`
	Proposals     map[models.ProposalVariant]ProposalView  `json:"proposals,omitempty"`
	Error         *models.JobEventError                    `json:"error,omitempty"`
}

// Service is the job gate: it enforces ownership and precondition checks,
// deduplicates submissions by fingerprint, and hands accepted work to the
// durable queue.
type Service struct {
	jobs      interfaces.JobStorage
	proposals interfaces.ProposalStorage
	notes     interfaces.NoteStorage
	queue     Enqueuer
	validate  *validator.Validate
	logger    arbor.ILogger
}

// NewService creates the job gate
func NewService(jobs interfaces.JobStorage, proposals interfaces.ProposalStorage, notes interfaces.NoteStorage, queue Enqueuer, logger arbor.ILogger) *Service {
	return &Service{
		jobs:      jobs,
		proposals: proposals,
		notes:     notes,
		queue:     queue,
		validate:  validator.New(),
		logger:    logger,
	}
}

// CreateJob accepts a format request for the consultation's finalized note.
// Idempotent: while an identical submission is queued, processing, or
// completed, the existing job reference is returned and no new work is
// scheduled.
func (s *Service) CreateJob(ctx context.Context, actorID, consultationID string, req CreateJobRequest) (*JobRef, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if req.Options != nil {
		if err := s.validate.Struct(req.Options); err != nil {
			return nil, fmt.Errorf("invalid request options: %w", err)
		}
	}

	consultation, err := s.notes.GetConsultation(ctx, consultationID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load consultation: %w", err)
	}

	// Ownership mismatch must be indistinguishable from non-existence
	if consultation.DoctorUserID != actorID {
		return nil, ErrNotFound
	}

	if consultation.FinalNoteID == "" {
		return nil, ErrNoFinalNote
	}
	note, err := s.notes.GetNote(ctx, consultation.FinalNoteID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, ErrNoFinalNote
		}
		return nil, fmt.Errorf("failed to load note: %w", err)
	}
	if note.Kind != models.NoteKindFinal {
		return nil, ErrNoFinalNote
	}

	preset, options := resolveDefaults(req)
	inputHash := InputHash(note.Title, note.Body, preset, options, formatter.PromptVersion)

	// Dedup short-circuit. Racy by design: two near-simultaneous identical
	// requests can both miss and create two jobs, a harmless duplicate.
	existing, err := s.jobs.FindJobByFingerprint(ctx, note.ID, inputHash)
	if err == nil {
		s.logger.Debug().
			Str("job_id", existing.ID).
			Str("status", string(existing.Status)).
			Msg("Duplicate submission coalesced onto existing job")
		return &JobRef{JobID: existing.ID, Status: existing.Status}, nil
	}
	if !errors.Is(err, interfaces.ErrNotFound) {
		return nil, fmt.Errorf("fingerprint lookup failed: %w", err)
	}

	job := &models.FormatJob{
		ID:             common.NewJobID(),
		FinalNoteID:    note.ID,
		ConsultationID: consultation.ID,
		EpisodeID:      consultation.EpisodeID,
		DoctorUserID:   consultation.DoctorUserID,
		PatientUserID:  consultation.PatientUserID,
		Preset:         preset,
		Options:        options,
		PromptVersion:  formatter.PromptVersion,
		InputHash:      inputHash,
		Status:         models.JobStatusQueued,
		TraceID:        common.NewTraceID(),
		CreatedAt:      time.Now(),
	}

	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	msg := models.QueueMessage{
		JobID: job.ID,
		Type:  models.JobTypeFormatNote,
	}
	// The job's own id is the queue dedup key: defense in depth against
	// double submission at the queue layer
	if err := s.queue.Enqueue(ctx, msg, job.ID); err != nil {
		s.logger.Error().
			Err(err).
			Str("job_id", job.ID).
			Msg("Queue write failed, marking job failed")

		job.MarkFailed(string(formatter.CodeEnqueueFailed), formatter.Sanitize(err.Error()))
		if saveErr := s.jobs.SaveJob(ctx, job); saveErr != nil {
			s.logger.Error().Err(saveErr).Str("job_id", job.ID).Msg("Failed to persist enqueue failure")
		}
		return &JobRef{JobID: job.ID, Status: models.JobStatusFailed}, ErrEnqueueFailed
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("consultation_id", consultation.ID).
		Str("input_hash", inputHash[:12]).
		Str("trace_id", job.TraceID).
		Msg("Format job accepted")

	return &JobRef{JobID: job.ID, Status: job.Status}, nil
}

// GetJob returns the job read model. Missing jobs and jobs owned by another
// doctor both yield ErrNotFound.
func (s *Service) GetJob(ctx context.Context, actorID, jobID string) (*JobView, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load job: %w", err)
	}

	if job.DoctorUserID != actorID {
		return nil, ErrNotFound
	}

	view := &JobView{
		ID:            job.ID,
		Status:        job.Status,
		Preset:        job.Preset,
		Options:       job.Options,
		PromptVersion: job.PromptVersion,
		Provider:      job.Provider,
		Model:         job.Model,
		CreatedAt:     job.CreatedAt,
		StartedAt:     job.StartedAt,
		FinishedAt:    job.FinishedAt,
	}

	switch job.Status {
	case models.JobStatusCompleted:
		proposals, err := s.proposals.GetProposals(ctx, job.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load proposals: %w", err)
		}
		view.Proposals = make(map[models.ProposalVariant]ProposalView, len(proposals))
		for _, p := range proposals {
			view.Proposals[p.Variant] = ProposalView{Title: p.Title, Body: p.Body}
		}
	case models.JobStatusFailed:
		view.Error = &models.JobEventError{Code: job.ErrorCode, Message: job.ErrorMessage}
	}

	return view, nil
}

// resolveDefaults fills in the server-side defaults for preset and options
func resolveDefaults(req CreateJobRequest) (string, models.FormatOptions) {
	preset := req.Preset
	if preset == "" {
		preset = "soap"
	}

	options := models.FormatOptions{
		Length:  "standard",
		Bullets: true,
		Tone:    "neutral",
	}
	if req.Options != nil {
		if req.Options.Length != nil {
			options.Length = *req.Options.Length
		}
		if req.Options.Bullets != nil {
			options.Bullets = *req.Options.Bullets
		}
		if len(req.Options.Keywords) > 0 {
			options.Keywords = append([]string(nil), req.Options.Keywords...)
		}
		if req.Options.Tone != nil {
			options.Tone = *req.Options.Tone
		}
	}

	return preset, options
}
