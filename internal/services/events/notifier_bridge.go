package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/telsalud/notefmt/internal/common"
	"github.com/telsalud/notefmt/internal/interfaces"
	"github.com/telsalud/notefmt/internal/models"
)

// NotifierBridge subscribes to terminal job events and forwards them to the
// realtime notifier. The failure message is never forwarded to the client
// channel, only the error code.
type NotifierBridge struct {
	notifier interfaces.Notifier
	logger   arbor.ILogger
}

// SubscriberEnabled decides whether the bridge should run for this
// deployment. Worker-role processes and test environments stay unsubscribed
// to avoid duplicate delivery paths; clients that miss a push recover by
// polling the job read path.
func SubscriberEnabled(cfg *common.Config) bool {
	if cfg.Events.NotifierDisabled {
		return false
	}
	if cfg.Role == common.RoleWorker {
		return false
	}
	if cfg.IsTest() {
		return false
	}
	return true
}

// NewNotifierBridge wires the bridge into the event service
func NewNotifierBridge(eventService interfaces.EventService, notifier interfaces.Notifier, logger arbor.ILogger) (*NotifierBridge, error) {
	b := &NotifierBridge{
		notifier: notifier,
		logger:   logger,
	}

	if err := eventService.Subscribe(interfaces.EventFormatJobCompleted, b.handleEvent); err != nil {
		return nil, fmt.Errorf("failed to subscribe to completion events: %w", err)
	}
	if err := eventService.Subscribe(interfaces.EventFormatJobFailed, b.handleEvent); err != nil {
		return nil, fmt.Errorf("failed to subscribe to failure events: %w", err)
	}

	logger.Info().Msg("Notifier bridge subscribed to terminal job events")

	return b, nil
}

// handleEvent dispatches a terminal job event by status
func (b *NotifierBridge) handleEvent(ctx context.Context, event interfaces.Event) error {
	jobEvent, ok := event.Payload.(models.FormatJobEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for event %s", event.Payload, event.Type)
	}

	switch jobEvent.Status {
	case models.JobStatusCompleted:
		b.notifier.EmitReady(jobEvent.ConsultationID, jobEvent.FormatJobID, jobEvent.FinalNoteID)
	case models.JobStatusFailed:
		errorCode := ""
		if jobEvent.Error != nil {
			errorCode = jobEvent.Error.Code
		}
		b.notifier.EmitFailed(jobEvent.ConsultationID, jobEvent.FormatJobID, errorCode)
	default:
		return fmt.Errorf("non-terminal status %s on relay event", jobEvent.Status)
	}

	b.logger.Debug().
		Str("job_id", jobEvent.FormatJobID).
		Str("consultation_id", jobEvent.ConsultationID).
		Str("status", string(jobEvent.Status)).
		Str("trace_id", jobEvent.TraceID).
		Msg("Relayed terminal job event to notifier")

	return nil
}
