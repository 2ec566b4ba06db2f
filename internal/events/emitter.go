package events

import (
	"context"
	"log/slog"
	"sync"
)

// InMemoryEventEmitter dispatches events synchronously to handlers
// registered in memory.
type InMemoryEventEmitter struct {
	handlers []EventHandler
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewInMemoryEventEmitter creates a new instance of InMemoryEventEmitter.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryEventEmitter{
		logger: logger.With("component", "in_memory_event_emitter"),
	}
}

// RegisterHandler adds a new event handler to receive events.
func (e *InMemoryEventEmitter) RegisterHandler(handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, handler)
}

// EmitEvent publishes the event to all registered handlers. Every handler
// sees the event even when an earlier one fails; the first error is returned.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *JobEvent) error {
	e.mu.RLock()
	handlers := make([]EventHandler, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.RUnlock()

	var firstErr error
	for i, handler := range handlers {
		if err := handler.HandleEvent(ctx, event); err != nil {
			e.logger.Error("handler failed to process event",
				"error", err,
				"handler_index", i,
				"event_type", event.Type,
				"job_id", event.JobID)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// LogHandler writes every lifecycle event to a logger.
type LogHandler struct {
	Logger *slog.Logger
}

// HandleEvent implements EventHandler.
func (h LogHandler) HandleEvent(ctx context.Context, event *JobEvent) error {
	level := slog.LevelInfo
	if event.Type == JobFailed {
		level = slog.LevelError
	} else if event.Type == JobRetryScheduled {
		level = slog.LevelWarn
	}
	h.Logger.Log(ctx, level, "job lifecycle event",
		"event_type", event.Type,
		"job_id", event.JobID,
		"job_type", event.JobType,
		"attempt", event.Attempt,
		"duration_ms", event.Duration.Milliseconds(),
		"reason", event.Reason)
	return nil
}
