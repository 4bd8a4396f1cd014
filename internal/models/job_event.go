package models

// JobEventError is the error surface carried on a failure event. The message
// is already sanitized; the client channel only ever receives the code.
type JobEventError struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// FormatJobEvent is the transient relay payload emitted once per terminal job
// transition. It is never persisted and never replayed.
type FormatJobEvent struct {
	FormatJobID    string         `json:"formatJobId"`
	ConsultationID string         `json:"consultationId"`
	EpisodeID      string         `json:"episodeId,omitempty"`
	FinalNoteID    string         `json:"finalNoteId"`
	Status         JobStatus      `json:"status"`
	TraceID        string         `json:"traceId,omitempty"`
	Error          *JobEventError `json:"error,omitempty"`
}
