package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique format job ID with the "fj_" prefix
// Format: fj_<uuid>
func NewJobID() string {
	return "fj_" + uuid.New().String()
}

// NewTraceID generates a trace ID threaded from submission through events
func NewTraceID() string {
	return uuid.New().String()
}
