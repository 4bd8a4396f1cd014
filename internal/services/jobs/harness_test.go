package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/telsalud/notefmt/internal/interfaces"
	"github.com/telsalud/notefmt/internal/models"
)

// In-memory doubles for the storage, queue, and event collaborators.

type memJobStore struct {
	mu   sync.Mutex
	jobs map[string]models.FormatJob
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[string]models.FormatJob)}
}

func (s *memJobStore) SaveJob(ctx context.Context, job *models.FormatJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *memJobStore) GetJob(ctx context.Context, id string) (*models.FormatJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	copied := job
	return &copied, nil
}

func (s *memJobStore) FindJobByFingerprint(ctx context.Context, finalNoteID, inputHash string) (*models.FormatJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.FormatJob
	for id := range s.jobs {
		job := s.jobs[id]
		if job.FinalNoteID != finalNoteID || job.InputHash != inputHash || !job.IsActiveOrCompleted() {
			continue
		}
		if latest == nil || job.CreatedAt.After(latest.CreatedAt) {
			copied := job
			latest = &copied
		}
	}
	if latest == nil {
		return nil, interfaces.ErrNotFound
	}
	return latest, nil
}

func (s *memJobStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, job := range s.jobs {
		if job.IsTerminal() && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			delete(s.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}

type memProposalStore struct {
	mu        sync.Mutex
	proposals map[string]models.Proposal
}

func newMemProposalStore() *memProposalStore {
	return &memProposalStore{proposals: make(map[string]models.Proposal)}
}

func (s *memProposalStore) UpsertProposal(ctx context.Context, p *models.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := models.ProposalKey(p.JobID, p.Variant)
	now := time.Now()
	if existing, ok := s.proposals[key]; ok {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = now
	}
	p.Key = key
	p.Deleted = false
	p.UpdatedAt = now
	s.proposals[key] = *p
	return nil
}

func (s *memProposalStore) GetProposals(ctx context.Context, jobID string) ([]models.Proposal, error) {
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

func (s *memProposalStore) SoftDeleteProposals(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, p := range s.proposals {
		if p.JobID == jobID {
			p.Deleted = true
			s.proposals[key] = p
		}
	}
	return nil
}

type memNoteStore struct {
	mu            sync.Mutex
	notes         map[string]models.ClinicalNote
	consultations map[string]models.Consultation
}

func newMemNoteStore() *memNoteStore {
	return &memNoteStore{
		notes:         make(map[string]models.ClinicalNote),
		consultations: make(map[string]models.Consultation),
	}
}

func (s *memNoteStore) SaveNote(ctx context.Context, note *models.ClinicalNote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[note.ID] = *note
	return nil
}

func (s *memNoteStore) GetNote(ctx context.Context, id string) (*models.ClinicalNote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	note, ok := s.notes[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	copied := note
	return &copied, nil
}

func (s *memNoteStore) SaveConsultation(ctx context.Context, c *models.Consultation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consultations[c.ID] = *c
	return nil
}

func (s *memNoteStore) GetConsultation(ctx context.Context, id string) (*models.Consultation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consultations[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	copied := c
	return &copied, nil
}

// fakeQueue records enqueued messages and can be scripted to fail
type fakeQueue struct {
	mu       sync.Mutex
	messages []models.QueueMessage
	dedupIDs []string
	failWith error
}

func (q *fakeQueue) Enqueue(ctx context.Context, msg models.QueueMessage, dedupID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failWith != nil {
		return q.failWith
	}
	q.messages = append(q.messages, msg)
	q.dedupIDs = append(q.dedupIDs, dedupID)
	return nil
}

// fakeEvents records published events synchronously
type fakeEvents struct {
	mu     sync.Mutex
	events []interfaces.Event
}

func (e *fakeEvents) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	return nil
}

func (e *fakeEvents) Publish(ctx context.Context, event interfaces.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *fakeEvents) PublishSync(ctx context.Context, event interfaces.Event) error {
	return e.Publish(ctx, event)
}

func (e *fakeEvents) Close() error { return nil }

func (e *fakeEvents) byType(eventType interfaces.EventType) []interfaces.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []interfaces.Event
	for _, ev := range e.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func testLogger() arbor.ILogger {
	return arbor.NewLogger()
}

// seedConsultation stores a consultation with a finalized note and returns ids
func seedConsultation(notes *memNoteStore, doctorID, body string) (consultationID, noteID string) {
	consultationID = "cons-1"
	noteID = "note-1"
	_ = notes.SaveNote(context.Background(), &models.ClinicalNote{
		ID:        noteID,
		EpisodeID: "ep-1",
		Kind:      models.NoteKindFinal,
		Title:     "Consulta",
		Body:      body,
		CreatedAt: time.Now(),
	})
	_ = notes.SaveConsultation(context.Background(), &models.Consultation{
		ID:            consultationID,
		EpisodeID:     "ep-1",
		DoctorUserID:  doctorID,
		PatientUserID: "patient-1",
		FinalNoteID:   noteID,
		CreatedAt:     time.Now(),
	})
	return consultationID, noteID
}

var errQueueDown = fmt.Errorf("badger: disk full")
