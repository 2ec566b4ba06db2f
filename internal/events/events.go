package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Lifecycle event types emitted by the job runner.
const (
	JobCompleted      = "job.completed"
	JobFailed         = "job.failed"
	JobRetryScheduled = "job.retry_scheduled"
)

// JobEvent reports a state transition of a background job. It carries
// plain values so subscribers need not depend on the task package.
type JobEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type is one of the lifecycle event types above
	Type string `json:"type"`

	JobID   string `json:"job_id"`
	JobType string `json:"job_type"`
	Attempt int    `json:"attempt"`

	// Duration is the wall-clock time of the attempt that produced the event
	Duration time.Duration `json:"duration"`

	// Reason holds the failure reason for failed and retried jobs
	Reason string `json:"reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewJobEvent creates a JobEvent stamped with a fresh ID and the current time.
func NewJobEvent(eventType, jobID, jobType string, attempt int, duration time.Duration, reason string) *JobEvent {
	return &JobEvent{
		ID:        uuid.New(),
		Type:      eventType,
		JobID:     jobID,
		JobType:   jobType,
		Attempt:   attempt,
		Duration:  duration,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	HandleEvent(ctx context.Context, event *JobEvent) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows the runner to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *JobEvent) error
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(ctx context.Context, event *JobEvent) error

// HandleEvent implements EventHandler.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *JobEvent) error {
	return f(ctx, event)
}
