package callback

import (
	"context"
	"sync"

	"github.com/chainkit/chainkit/logger"
)

// LogHandler writes lifecycle events to a structured logger.
type LogHandler struct {
	log *logger.Logger
}

// NewLogHandler creates a LogHandler. A nil logger uses the global one.
func NewLogHandler(log *logger.Logger) *LogHandler {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &LogHandler{log: log.WithComponent("callback")}
}

func (h *LogHandler) HandleEvent(_ context.Context, event Event) error {
	fields := logger.Fields(
		logger.FieldRunID, event.RunID,
		logger.FieldUnit, event.Unit,
	)
	if event.Node != "" {
		fields[logger.FieldGraph] = event.Graph
		fields[logger.FieldNode] = event.Node
	}
	if event.Attempt > 1 {
		fields[logger.FieldAttempt] = event.Attempt
	}

	switch event.Type {
	case UnitStart:
		h.log.Debug("unit start", fields)
	case UnitEnd:
		h.log.Debug("unit end", fields)
	case UnitError:
		h.log.Error("unit error", logger.MergeWithError(fields, event.Err))
	case Chunk:
		fields[logger.FieldChunkIndex] = event.ChunkIndex
		h.log.Debug("chunk emitted", fields)
	}
	return nil
}

// CollectHandler buffers events in memory, grouped by run id. Intended
// for tests and for building trace views; event order is guaranteed only
// within the events of a single goroutine of a run.
type CollectHandler struct {
	mu    sync.Mutex
	byRun map[string][]Event
}

// NewCollectHandler creates an empty CollectHandler.
func NewCollectHandler() *CollectHandler {
	return &CollectHandler{byRun: make(map[string][]Event)}
}

func (h *CollectHandler) HandleEvent(_ context.Context, event Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byRun[event.RunID] = append(h.byRun[event.RunID], event)
	return nil
}

// Events returns the recorded events for a run, in arrival order.
func (h *CollectHandler) Events(runID string) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	events := h.byRun[runID]
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

// All returns every recorded event across runs.
func (h *CollectHandler) All() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Event
	for _, events := range h.byRun {
		out = append(out, events...)
	}
	return out
}
