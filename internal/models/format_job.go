package models

import "time"

// JobStatus represents the lifecycle state of a format job
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// FormatOptions are the resolved formatting preferences for a job.
// Defaults are applied at submission time so the stored value is always complete.
type FormatOptions struct {
	Length   string   `json:"length"`
	Bullets  bool     `json:"bullets"`
	Keywords []string `json:"keywords,omitempty"`
	Tone     string   `json:"tone"`
}

// FormatJob is one unit of asynchronous formatting work for a finalized
// clinical note. One row exists per distinct (note content, profile, options,
// prompt version) combination; the gate's fingerprint lookup keeps it that way.
type FormatJob struct {
	ID             string        `json:"id" badgerhold:"key"`
	FinalNoteID    string        `json:"final_note_id" badgerholdIndex:"FinalNoteID"`
	ConsultationID string        `json:"consultation_id"`
	EpisodeID      string        `json:"episode_id,omitempty"`
	DoctorUserID   string        `json:"doctor_user_id"`
	PatientUserID  string        `json:"patient_user_id"`
	Preset         string        `json:"preset"`
	Options        FormatOptions `json:"options"`
	PromptVersion  int           `json:"prompt_version"`
	InputHash      string        `json:"input_hash"`
	Status         JobStatus     `json:"status"`
	Provider       string        `json:"provider,omitempty"`
	Model          string        `json:"model,omitempty"`
	ErrorCode      string        `json:"error_code,omitempty"`
	ErrorMessage   string        `json:"error_message,omitempty"`
	TraceID        string        `json:"trace_id,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	FinishedAt     *time.Time    `json:"finished_at,omitempty"`
}

// MarkProcessing transitions the job to processing and stamps startedAt once.
func (j *FormatJob) MarkProcessing() {
	j.Status = JobStatusProcessing
	if j.StartedAt == nil {
		now := time.Now()
		j.StartedAt = &now
	}
}

// MarkCompleted records the provider/model actually used and stamps finishedAt.
func (j *FormatJob) MarkCompleted(provider, model string) {
	j.Status = JobStatusCompleted
	j.Provider = provider
	j.Model = model
	now := time.Now()
	j.FinishedAt = &now
}

// MarkFailed records a terminal failure with a sanitized error.
func (j *FormatJob) MarkFailed(code, message string) {
	j.Status = JobStatusFailed
	j.ErrorCode = code
	j.ErrorMessage = message
	now := time.Now()
	j.FinishedAt = &now
}

// IsTerminal reports whether no further transitions can occur.
func (j *FormatJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// IsActiveOrCompleted reports whether the job counts for dedup purposes.
// Failed jobs do not block resubmission of the same content.
func (j *FormatJob) IsActiveOrCompleted() bool {
	return j.Status == JobStatusQueued || j.Status == JobStatusProcessing || j.Status == JobStatusCompleted
}
