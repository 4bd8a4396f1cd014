package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/telsalud/notefmt/internal/interfaces"
	"github.com/telsalud/notefmt/internal/models"
)

// JobStorage persists FormatJob records via badgerhold
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a job storage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) *JobStorage {
	return &JobStorage{db: db, logger: logger}
}

// SaveJob inserts or replaces a job record
func (s *JobStorage) SaveJob(ctx context.Context, job *models.FormatJob) error {
	if job.ID == "" {
		return fmt.Errorf("job id is required")
	}
	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob retrieves a job by ID
func (s *JobStorage) GetJob(ctx context.Context, id string) (*models.FormatJob, error) {
	var job models.FormatJob
	if err := s.db.Store().Get(id, &job); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return &job, nil
}

// FindJobByFingerprint returns the most recent active-or-completed job for a
// (finalNoteId, inputHash) pair. Failed jobs are ignored so the same content
// can be resubmitted after a terminal failure.
func (s *JobStorage) FindJobByFingerprint(ctx context.Context, finalNoteID, inputHash string) (*models.FormatJob, error) {
	var jobs []models.FormatJob
	query := badgerhold.Where("FinalNoteID").Eq(finalNoteID).Index("FinalNoteID").
		And("InputHash").Eq(inputHash)

	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to query jobs by fingerprint: %w", err)
	}

	var latest *models.FormatJob
	for i := range jobs {
		job := &jobs[i]
		if !job.IsActiveOrCompleted() {
			continue
		}
		if latest == nil || job.CreatedAt.After(latest.CreatedAt) {
			latest = job
		}
	}

	if latest == nil {
		return nil, interfaces.ErrNotFound
	}
	return latest, nil
}

// DeleteTerminalBefore removes terminal jobs finished before the cutoff
func (s *JobStorage) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var jobs []models.FormatJob
	query := badgerhold.Where("Status").In(models.JobStatusCompleted, models.JobStatusFailed)

	if err := s.db.Store().Find(&jobs, query); err != nil {
		return 0, fmt.Errorf("failed to query terminal jobs: %w", err)
	}

	deleted := 0
	for i := range jobs {
		job := &jobs[i]
		if job.FinishedAt == nil || !job.FinishedAt.Before(cutoff) {
			continue
		}
		if err := s.db.Store().Delete(job.ID, &models.FormatJob{}); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to delete stale job")
			continue
		}
		deleted++
	}

	return deleted, nil
}
