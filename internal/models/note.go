package models

import "time"

// NoteKind distinguishes draft notes from the finalized note a job formats
type NoteKind string

const (
	NoteKindDraft NoteKind = "draft"
	NoteKindFinal NoteKind = "final"
)

// ClinicalNote is the read-only source document for a format job. The
// episode/consultation subsystem owns these records; this pipeline only reads
// title and body.
type ClinicalNote struct {
	ID        string    `json:"id" badgerhold:"key"`
	EpisodeID string    `json:"episode_id"`
	Kind      NoteKind  `json:"kind"`
	Title     string    `json:"title,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Consultation carries the ownership linkage the gate checks at submission.
type Consultation struct {
	ID            string    `json:"id" badgerhold:"key"`
	EpisodeID     string    `json:"episode_id"`
	DoctorUserID  string    `json:"doctor_user_id"`
	PatientUserID string    `json:"patient_user_id"`
	FinalNoteID   string    `json:"final_note_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
