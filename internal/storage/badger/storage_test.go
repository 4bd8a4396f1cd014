package badger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/telsalud/notefmt/internal/common"
	"github.com/telsalud/notefmt/internal/interfaces"
	"github.com/telsalud/notefmt/internal/models"
)

func newTestStorage(t *testing.T) *Manager {
	t.Helper()
	config := &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "notefmt-test"),
	}
	m, err := NewManager(arbor.NewLogger(), config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func testJob(id, finalNoteID, inputHash string, status models.JobStatus, createdAt time.Time) *models.FormatJob {
	return &models.FormatJob{
		ID:             id,
		FinalNoteID:    finalNoteID,
		ConsultationID: "cons-1",
		DoctorUserID:   "doc-1",
		Preset:         "soap",
		InputHash:      inputHash,
		Status:         status,
		CreatedAt:      createdAt,
	}
}

func TestJobSaveAndGet(t *testing.T) {
	m := newTestStorage(t)
	ctx := context.Background()

	job := testJob("fj_1", "note-1", "hash-1", models.JobStatusQueued, time.Now())
	require.NoError(t, m.JobStorage().SaveJob(ctx, job))

	got, err := m.JobStorage().GetJob(ctx, "fj_1")
	require.NoError(t, err)
	assert.Equal(t, "note-1", got.FinalNoteID)
	assert.Equal(t, models.JobStatusQueued, got.Status)

	_, err = m.JobStorage().GetJob(ctx, "fj_missing")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestFindJobByFingerprint(t *testing.T) {
	m := newTestStorage(t)
	ctx := context.Background()
	now := time.Now()

	// A failed job with the matching fingerprint must not block resubmission
	failed := testJob("fj_failed", "note-1", "hash-1", models.JobStatusFailed, now.Add(-2*time.Hour))
	queued := testJob("fj_queued", "note-1", "hash-1", models.JobStatusQueued, now.Add(-time.Hour))
	other := testJob("fj_other", "note-1", "hash-2", models.JobStatusQueued, now)

	for _, job := range []*models.FormatJob{failed, queued, other} {
		require.NoError(t, m.JobStorage().SaveJob(ctx, job))
	}

	got, err := m.JobStorage().FindJobByFingerprint(ctx, "note-1", "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "fj_queued", got.ID)

	_, err = m.JobStorage().FindJobByFingerprint(ctx, "note-1", "hash-none")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestFindJobByFingerprintPicksLatest(t *testing.T) {
	m := newTestStorage(t)
	ctx := context.Background()
	now := time.Now()

	older := testJob("fj_older", "note-1", "hash-1", models.JobStatusCompleted, now.Add(-time.Hour))
	newer := testJob("fj_newer", "note-1", "hash-1", models.JobStatusCompleted, now)

	for _, job := range []*models.FormatJob{older, newer} {
		require.NoError(t, m.JobStorage().SaveJob(ctx, job))
	}

	got, err := m.JobStorage().FindJobByFingerprint(ctx, "note-1", "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "fj_newer", got.ID)
}

func TestDeleteTerminalBefore(t *testing.T) {
	m := newTestStorage(t)
	ctx := context.Background()
	now := time.Now()

	stale := testJob("fj_stale", "note-1", "hash-1", models.JobStatusCompleted, now.Add(-48*time.Hour))
	staleFinished := now.Add(-40 * time.Hour)
	stale.FinishedAt = &staleFinished

	fresh := testJob("fj_fresh", "note-2", "hash-2", models.JobStatusFailed, now.Add(-time.Hour))
	freshFinished := now.Add(-30 * time.Minute)
	fresh.FinishedAt = &freshFinished

	active := testJob("fj_active", "note-3", "hash-3", models.JobStatusProcessing, now)

	for _, job := range []*models.FormatJob{stale, fresh, active} {
		require.NoError(t, m.JobStorage().SaveJob(ctx, job))
	}

	deleted, err := m.JobStorage().DeleteTerminalBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = m.JobStorage().GetJob(ctx, "fj_stale")
	assert.ErrorIs(t, err, interfaces.ErrNotFound, "stale job must be gone")

	_, err = m.JobStorage().GetJob(ctx, "fj_fresh")
	assert.NoError(t, err, "fresh terminal job must survive")

	_, err = m.JobStorage().GetJob(ctx, "fj_active")
	assert.NoError(t, err, "active job must survive")
}

func TestProposalUpsertAndSoftDelete(t *testing.T) {
	m := newTestStorage(t)
	ctx := context.Background()

	for _, variant := range models.Variants {
		err := m.ProposalStorage().UpsertProposal(ctx, &models.Proposal{
			JobID:   "fj_1",
			Variant: variant,
			Title:   "Consulta",
			Body:    "Motivo: tos.",
		})
		require.NoError(t, err)
	}

	proposals, err := m.ProposalStorage().GetProposals(ctx, "fj_1")
	require.NoError(t, err)
	require.Len(t, proposals, 3)
	// Variant order A, B, C
	for i, variant := range models.Variants {
		assert.Equal(t, variant, proposals[i].Variant)
	}

	require.NoError(t, m.ProposalStorage().SoftDeleteProposals(ctx, "fj_1"))

	proposals, err = m.ProposalStorage().GetProposals(ctx, "fj_1")
	require.NoError(t, err)
	assert.Empty(t, proposals, "soft-deleted proposals must be hidden")
}

func TestProposalReviveKeepsCreatedAt(t *testing.T) {
	m := newTestStorage(t)
	ctx := context.Background()

	first := &models.Proposal{JobID: "fj_1", Variant: models.VariantBrief, Body: "v1"}
	require.NoError(t, m.ProposalStorage().UpsertProposal(ctx, first))
	originalCreatedAt := first.CreatedAt

	require.NoError(t, m.ProposalStorage().SoftDeleteProposals(ctx, "fj_1"))

	time.Sleep(5 * time.Millisecond)

	revived := &models.Proposal{JobID: "fj_1", Variant: models.VariantBrief, Body: "v2"}
	require.NoError(t, m.ProposalStorage().UpsertProposal(ctx, revived))

	proposals, err := m.ProposalStorage().GetProposals(ctx, "fj_1")
	require.NoError(t, err)
	require.Len(t, proposals, 1)

	assert.Equal(t, "v2", proposals[0].Body)
	assert.True(t, proposals[0].CreatedAt.Equal(originalCreatedAt), "revive must preserve CreatedAt")
	assert.True(t, proposals[0].UpdatedAt.After(originalCreatedAt), "revive must advance UpdatedAt")
}

func TestNoteAndConsultationRoundtrip(t *testing.T) {
	m := newTestStorage(t)
	ctx := context.Background()

	note := &models.ClinicalNote{
		ID:        "note-1",
		EpisodeID: "ep-1",
		Kind:      models.NoteKindFinal,
		Title:     "Consulta",
		Body:      "Motivo: tos.",
		CreatedAt: time.Now(),
	}
	require.NoError(t, m.NoteStorage().SaveNote(ctx, note))

	consultation := &models.Consultation{
		ID:            "cons-1",
		EpisodeID:     "ep-1",
		DoctorUserID:  "doc-1",
		PatientUserID: "patient-1",
		FinalNoteID:   "note-1",
		CreatedAt:     time.Now(),
	}
	require.NoError(t, m.NoteStorage().SaveConsultation(ctx, consultation))

	gotNote, err := m.NoteStorage().GetNote(ctx, "note-1")
	require.NoError(t, err)
	assert.Equal(t, models.NoteKindFinal, gotNote.Kind)
	assert.Equal(t, "Motivo: tos.", gotNote.Body)

	gotConsultation, err := m.NoteStorage().GetConsultation(ctx, "cons-1")
	require.NoError(t, err)
	assert.Equal(t, "note-1", gotConsultation.FinalNoteID)
	assert.Equal(t, "doc-1", gotConsultation.DoctorUserID)

	_, err = m.NoteStorage().GetNote(ctx, "note-missing")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	_, err = m.NoteStorage().GetConsultation(ctx, "cons-missing")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}
