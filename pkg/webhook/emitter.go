// Package webhook defines the fire-and-forget event emitter contract
// consumed by the Chunked Upload Coordinator and Task Scheduler (spec §6).
package webhook

import (
	"context"

	"github.com/jeremybastin1207/mindia/internal/logger"
)

// EventKind enumerates the webhook events the core emits (spec §6).
type EventKind string

const (
	EventFileUploaded            EventKind = "FileUploaded"
	EventFileProcessingCompleted EventKind = "FileProcessingCompleted"
	EventFileProcessingFailed    EventKind = "FileProcessingFailed"
	EventWorkflowCompleted       EventKind = "WorkflowCompleted"
	EventWorkflowFailed          EventKind = "WorkflowFailed"
)

// Emitter is the narrow contract the core holds onto; concrete delivery
// (HTTP callback, message broker, ...) is an external collaborator.
type Emitter interface {
	// TriggerEvent fires kind for tenant with the given data, attributing
	// it to initiator. Implementations must not block the caller on
	// delivery and must never return an error the caller is expected to
	// act on — emission failures are the emitter's problem to log.
	TriggerEvent(ctx context.Context, tenant string, kind EventKind, data map[string]any, initiator string)
}

// NullEmitter discards every event. Used where no webhook collaborator is
// configured.
type NullEmitter struct{}

func (NullEmitter) TriggerEvent(ctx context.Context, tenant string, kind EventKind, data map[string]any, initiator string) {
}

// LoggingEmitter logs every event at Info level instead of delivering it
// anywhere. Useful for local development and as the coordinator's default
// when no production emitter is wired in.
type LoggingEmitter struct{}

func (LoggingEmitter) TriggerEvent(ctx context.Context, tenant string, kind EventKind, data map[string]any, initiator string) {
	logger.InfoCtx(ctx, "webhook event",
		"tenant", tenant,
		"kind", string(kind),
		"initiator", initiator,
	)
}

var _ Emitter = NullEmitter{}
var _ Emitter = LoggingEmitter{}
