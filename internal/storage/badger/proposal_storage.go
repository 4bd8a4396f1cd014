package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/telsalud/notefmt/internal/models"
)

// ProposalStorage persists rewrite proposals via badgerhold
type ProposalStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewProposalStorage creates a proposal storage instance
func NewProposalStorage(db *BadgerDB, logger arbor.ILogger) *ProposalStorage {
	return &ProposalStorage{db: db, logger: logger}
}

// UpsertProposal creates or updates the (jobId, variant) row. A soft-deleted
// row is revived in place: the original CreatedAt is preserved, Deleted is
// cleared and title/body take the new values.
func (s *ProposalStorage) UpsertProposal(ctx context.Context, proposal *models.Proposal) error {
	if proposal.JobID == "" || proposal.Variant == "" {
		return fmt.Errorf("proposal job id and variant are required")
	}

	key := models.ProposalKey(proposal.JobID, proposal.Variant)
	now := time.Now()

	var existing models.Proposal
	err := s.db.Store().Get(key, &existing)
	switch {
	case err == nil:
		proposal.CreatedAt = existing.CreatedAt
	case errors.Is(err, badgerhold.ErrNotFound):
		proposal.CreatedAt = now
	default:
		return fmt.Errorf("failed to look up proposal %s: %w", key, err)
	}

	proposal.Key = key
	proposal.Deleted = false
	proposal.UpdatedAt = now

	if err := s.db.Store().Upsert(key, proposal); err != nil {
		return fmt.Errorf("failed to upsert proposal %s: %w", key, err)
	}
	return nil
}

// GetProposals returns the non-deleted proposals for a job in variant order
func (s *ProposalStorage) GetProposals(ctx context.Context, jobID string) ([]models.Proposal, error) {
	var proposals []models.Proposal
	query := badgerhold.Where("JobID").Eq(jobID).Index("JobID")

	if err := s.db.Store().Find(&proposals, query); err != nil {
		return nil, fmt.Errorf("failed to query proposals for job %s: %w", jobID, err)
	}

	active := proposals[:0]
	for _, p := range proposals {
		if !p.Deleted {
			active = append(active, p)
		}
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].Variant < active[j].Variant
	})

	return active, nil
}

// SoftDeleteProposals marks all proposals for a job as deleted. The rows stay
// in place so a re-run of the same job revives them.
func (s *ProposalStorage) SoftDeleteProposals(ctx context.Context, jobID string) error {
	var proposals []models.Proposal
	query := badgerhold.Where("JobID").Eq(jobID).Index("JobID")

	if err := s.db.Store().Find(&proposals, query); err != nil {
		return fmt.Errorf("failed to query proposals for job %s: %w", jobID, err)
	}

	now := time.Now()
	for i := range proposals {
		p := proposals[i]
		p.Deleted = true
		p.UpdatedAt = now
		if err := s.db.Store().Upsert(p.Key, &p); err != nil {
			return fmt.Errorf("failed to soft-delete proposal %s: %w", p.Key, err)
		}
	}
	return nil
}
