package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/telsalud/notefmt/internal/interfaces"
	"github.com/telsalud/notefmt/internal/models"
	"github.com/telsalud/notefmt/internal/services/jobs"
)

// Minimal in-memory collaborators for exercising the HTTP layer end to end
// against a real job gate.

type memStores struct {
	mu            sync.Mutex
	jobs          map[string]models.FormatJob
	proposals     map[string]models.Proposal
	notes         map[string]models.ClinicalNote
	consultations map[string]models.Consultation
	enqueueErr    error
	enqueued      int
}

func newMemStores() *memStores {
	return &memStores{
		jobs:          make(map[string]models.FormatJob),
		proposals:     make(map[string]models.Proposal),
		notes:         make(map[string]models.ClinicalNote),
		consultations: make(map[string]models.Consultation),
	}
}

func (s *memStores) SaveJob(ctx context.Context, job *models.FormatJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *memStores) GetJob(ctx context.Context, id string) (*models.FormatJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	copied := job
	return &copied, nil
}

func (s *memStores) FindJobByFingerprint(ctx context.Context, finalNoteID, inputHash string) (*models.FormatJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.jobs {
		job := s.jobs[id]
		if job.FinalNoteID == finalNoteID && job.InputHash == inputHash && job.IsActiveOrCompleted() {
			copied := job
			return &copied, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (s *memStores) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

func (s *memStores) UpsertProposal(ctx context.Context, p *models.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals[models.ProposalKey(p.JobID, p.Variant)] = *p
	return nil
}

func (s *memStores) GetProposals(ctx context.Context, jobID string) ([]models.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Proposal
	for _, variant := range models.Variants {
		if p, ok := s.proposals[models.ProposalKey(jobID, variant)]; ok && !p.Deleted {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStores) SoftDeleteProposals(ctx context.Context, jobID string) error { return nil }

func (s *memStores) SaveNote(ctx context.Context, note *models.ClinicalNote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[note.ID] = *note
	return nil
}

func (s *memStores) GetNote(ctx context.Context, id string) (*models.ClinicalNote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	note, ok := s.notes[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	copied := note
	return &copied, nil
}

func (s *memStores) SaveConsultation(ctx context.Context, c *models.Consultation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consultations[c.ID] = *c
	return nil
}

func (s *memStores) GetConsultation(ctx context.Context, id string) (*models.Consultation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consultations[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	copied := c
	return &copied, nil
}

func (s *memStores) Enqueue(ctx context.Context, msg models.QueueMessage, dedupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enqueueErr != nil {
		return s.enqueueErr
	}
	s.enqueued++
	return nil
}

func newTestHandler(stores *memStores) *JobHandler {
	logger := arbor.NewLogger()
	service := jobs.NewService(stores, stores, stores, stores, logger)
	return NewJobHandler(service, logger)
}

func seedFinalizedConsultation(stores *memStores) {
	_ = stores.SaveNote(context.Background(), &models.ClinicalNote{
		ID:        "note-1",
		EpisodeID: "ep-1",
		Kind:      models.NoteKindFinal,
		Title:     "Consulta",
		Body:      "Motivo: dolor de cabeza.",
		CreatedAt: time.Now(),
	})
	_ = stores.SaveConsultation(context.Background(), &models.Consultation{
		ID:            "cons-1",
		EpisodeID:     "ep-1",
		DoctorUserID:  "doc-1",
		PatientUserID: "patient-1",
		FinalNoteID:   "note-1",
		CreatedAt:     time.Now(),
	})
}

func postFormatJob(h *JobHandler, consultationID, doctorID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/consultations/"+consultationID+"/format-jobs", strings.NewReader(body))
	if doctorID != "" {
		req.Header.Set("X-Doctor-ID", doctorID)
	}
	rec := httptest.NewRecorder()
	h.CreateJobHandler(rec, req)
	return rec
}

func TestCreateJobHandlerAccepted(t *testing.T) {
	stores := newMemStores()
	seedFinalizedConsultation(stores)
	h := newTestHandler(stores)

	rec := postFormatJob(h, "cons-1", "doc-1", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body %s", rec.Code, rec.Body.String())
	}

	var ref jobs.JobRef
	if err := json.Unmarshal(rec.Body.Bytes(), &ref); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if ref.JobID == "" || ref.Status != models.JobStatusQueued {
		t.Fatalf("unexpected ref: %+v", ref)
	}
	if stores.enqueued != 1 {
		t.Fatalf("expected one enqueue, got %d", stores.enqueued)
	}
}

func TestCreateJobHandlerRequiresIdentity(t *testing.T) {
	stores := newMemStores()
	seedFinalizedConsultation(stores)
	h := newTestHandler(stores)

	rec := postFormatJob(h, "cons-1", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCreateJobHandlerOwnershipHidden(t *testing.T) {
	stores := newMemStores()
	seedFinalizedConsultation(stores)
	h := newTestHandler(stores)

	otherDoctor := postFormatJob(h, "cons-1", "doc-2", "")
	missing := postFormatJob(h, "cons-unknown", "doc-2", "")

	if otherDoctor.Code != http.StatusNotFound || missing.Code != http.StatusNotFound {
		t.Fatalf("both must be 404: got %d and %d", otherDoctor.Code, missing.Code)
	}
	if otherDoctor.Body.String() != missing.Body.String() {
		t.Fatal("ownership mismatch must be indistinguishable from missing")
	}
}

func TestCreateJobHandlerNoFinalNote(t *testing.T) {
	stores := newMemStores()
	_ = stores.SaveConsultation(context.Background(), &models.Consultation{
		ID:           "cons-open",
		DoctorUserID: "doc-1",
		CreatedAt:    time.Now(),
	})
	h := newTestHandler(stores)

	rec := postFormatJob(h, "cons-open", "doc-1", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409; body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "NO_FINAL_NOTE") {
		t.Fatalf("body missing code: %s", rec.Body.String())
	}
}

func TestCreateJobHandlerMalformedBody(t *testing.T) {
	stores := newMemStores()
	seedFinalizedConsultation(stores)
	h := newTestHandler(stores)

	rec := postFormatJob(h, "cons-1", "doc-1", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateJobHandlerInvalidOptions(t *testing.T) {
	stores := newMemStores()
	seedFinalizedConsultation(stores)
	h := newTestHandler(stores)

	rec := postFormatJob(h, "cons-1", "doc-1", `{"options":{"tone":"agresivo"}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body %s", rec.Code, rec.Body.String())
	}
}

func TestCreateJobHandlerEnqueueFailure(t *testing.T) {
	stores := newMemStores()
	seedFinalizedConsultation(stores)
	stores.enqueueErr = context.DeadlineExceeded
	h := newTestHandler(stores)

	rec := postFormatJob(h, "cons-1", "doc-1", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ENQUEUE_FAILED") {
		t.Fatalf("body missing code: %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "jobId") {
		t.Fatalf("failed submissions must surface the job id: %s", rec.Body.String())
	}
}

func TestGetJobHandler(t *testing.T) {
	stores := newMemStores()
	seedFinalizedConsultation(stores)
	h := newTestHandler(stores)

	created := postFormatJob(h, "cons-1", "doc-1", "")
	var ref jobs.JobRef
	if err := json.Unmarshal(created.Body.Bytes(), &ref); err != nil {
		t.Fatalf("invalid create response: %v", err)
	}

	get := func(jobID, doctorID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/format-jobs/"+jobID, nil)
		if doctorID != "" {
			req.Header.Set("X-Doctor-ID", doctorID)
		}
		rec := httptest.NewRecorder()
		h.GetJobHandler(rec, req)
		return rec
	}

	owner := get(ref.JobID, "doc-1")
	if owner.Code != http.StatusOK {
		t.Fatalf("owner read status = %d, want 200", owner.Code)
	}

	var view jobs.JobView
	if err := json.Unmarshal(owner.Body.Bytes(), &view); err != nil {
		t.Fatalf("invalid view body: %v", err)
	}
	if view.ID != ref.JobID || view.Status != models.JobStatusQueued {
		t.Fatalf("unexpected view: %+v", view)
	}

	if rec := get(ref.JobID, "doc-2"); rec.Code != http.StatusNotFound {
		t.Fatalf("cross-doctor read status = %d, want 404", rec.Code)
	}
	if rec := get("fj_missing", "doc-1"); rec.Code != http.StatusNotFound {
		t.Fatalf("missing job status = %d, want 404", rec.Code)
	}
	if rec := get(ref.JobID, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous read status = %d, want 401", rec.Code)
	}
}
