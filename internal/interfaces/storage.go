package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/telsalud/notefmt/internal/models"
)

// ErrNotFound is returned by storage lookups for missing records
var ErrNotFound = errors.New("record not found")

// JobStorage persists FormatJob records
type JobStorage interface {
	// SaveJob inserts or replaces a job record
	SaveJob(ctx context.Context, job *models.FormatJob) error

	// GetJob retrieves a job by ID, ErrNotFound if missing
	GetJob(ctx context.Context, id string) (*models.FormatJob, error)

	// FindJobByFingerprint returns the most recent queued/processing/completed
	// job for a (finalNoteId, inputHash) pair, ErrNotFound when none exists
	FindJobByFingerprint(ctx context.Context, finalNoteID, inputHash string) (*models.FormatJob, error)

	// DeleteTerminalBefore removes terminal jobs finished before the cutoff
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// ProposalStorage persists rewrite proposals
type ProposalStorage interface {
	// UpsertProposal creates or updates the (jobId, variant) row, reviving
	// soft-deleted rows
	UpsertProposal(ctx context.Context, proposal *models.Proposal) error

	// GetProposals returns the non-deleted proposals for a job in variant order
	GetProposals(ctx context.Context, jobID string) ([]models.Proposal, error)

	// SoftDeleteProposals marks all proposals for a job as deleted
	SoftDeleteProposals(ctx context.Context, jobID string) error
}

// NoteStorage is the narrow read path into the episode/consultation subsystem.
// Save methods exist for seeding and tests; the pipeline itself only reads.
type NoteStorage interface {
	SaveNote(ctx context.Context, note *models.ClinicalNote) error
	GetNote(ctx context.Context, id string) (*models.ClinicalNote, error)
	SaveConsultation(ctx context.Context, consultation *models.Consultation) error
	GetConsultation(ctx context.Context, id string) (*models.Consultation, error)
}

// StorageManager provides access to all storage backends
type StorageManager interface {
	JobStorage() JobStorage
	ProposalStorage() ProposalStorage
	NoteStorage() NoteStorage
	Close() error
}
