package interfaces

// Notifier pushes fire-and-forget UI events to sessions subscribed to a
// consultation channel. No acknowledgement is tracked.
type Notifier interface {
	EmitReady(consultationID, jobID, finalNoteID string)
	EmitFailed(consultationID, jobID, errorCode string)
}
