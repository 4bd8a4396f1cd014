package models

import (
	"encoding/json"
	"errors"
)

// ErrNoMessage is returned by the queue when no message is ready for delivery
var ErrNoMessage = errors.New("no message")

// Job types dispatched through the queue
const JobTypeFormatNote = "format_note"

// QueueMessage is the envelope carried on the durable queue. The payload is
// intentionally small: workers reload the authoritative job record by JobID.
type QueueMessage struct {
	JobID   string          `json:"job_id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
