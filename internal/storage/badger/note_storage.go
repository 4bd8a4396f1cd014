package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/telsalud/notefmt/internal/interfaces"
	"github.com/telsalud/notefmt/internal/models"
)

// NoteStorage holds the read-only clinical note and consultation collaborator
// records. The formatting pipeline never mutates them; the Save methods exist
// for seeding and tests.
type NoteStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewNoteStorage creates a note storage instance
func NewNoteStorage(db *BadgerDB, logger arbor.ILogger) *NoteStorage {
	return &NoteStorage{db: db, logger: logger}
}

// SaveNote inserts or replaces a clinical note
func (s *NoteStorage) SaveNote(ctx context.Context, note *models.ClinicalNote) error {
	if note.ID == "" {
		return fmt.Errorf("note id is required")
	}
	if err := s.db.Store().Upsert(note.ID, note); err != nil {
		return fmt.Errorf("failed to save note %s: %w", note.ID, err)
	}
	return nil
}

// GetNote retrieves a clinical note by ID
func (s *NoteStorage) GetNote(ctx context.Context, id string) (*models.ClinicalNote, error) {
	var note models.ClinicalNote
	if err := s.db.Store().Get(id, &note); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get note %s: %w", id, err)
	}
	return &note, nil
}

// SaveConsultation inserts or replaces a consultation
func (s *NoteStorage) SaveConsultation(ctx context.Context, consultation *models.Consultation) error {
	if consultation.ID == "" {
		return fmt.Errorf("consultation id is required")
	}
	if err := s.db.Store().Upsert(consultation.ID, consultation); err != nil {
		return fmt.Errorf("failed to save consultation %s: %w", consultation.ID, err)
	}
	return nil
}

// GetConsultation retrieves a consultation by ID
func (s *NoteStorage) GetConsultation(ctx context.Context, id string) (*models.Consultation, error) {
	var consultation models.Consultation
	if err := s.db.Store().Get(id, &consultation); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get consultation %s: %w", id, err)
	}
	return &consultation, nil
}
