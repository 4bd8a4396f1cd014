package models

import "time"

// ProposalVariant identifies one of the three rewrite renderings of a note
type ProposalVariant string

const (
	VariantBrief    ProposalVariant = "A"
	VariantStandard ProposalVariant = "B"
	VariantDetailed ProposalVariant = "C"
)

// Variants lists all proposal variants in presentation order
var Variants = []ProposalVariant{VariantBrief, VariantStandard, VariantDetailed}

// Proposal is one rewritten rendering of a note, tied to a job. Exactly one
// row exists per (jobId, variant); re-runs upsert in place and revive rows
// that were soft-deleted.
type Proposal struct {
	Key       string          `json:"-" badgerhold:"key"`
	JobID     string          `json:"job_id" badgerholdIndex:"JobID"`
	Variant   ProposalVariant `json:"variant"`
	Title     string          `json:"title,omitempty"`
	Body      string          `json:"body"`
	Deleted   bool            `json:"deleted"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ProposalKey builds the storage key for a (jobId, variant) pair
func ProposalKey(jobID string, variant ProposalVariant) string {
	return jobID + "/" + string(variant)
}
