package callback

import (
	"context"
	"fmt"
	"time"

	"github.com/chainkit/chainkit/logger"
)

// EventType identifies a lifecycle point in a unit invocation.
type EventType string

const (
	// UnitStart is emitted immediately before a unit invocation attempt.
	UnitStart EventType = "unit_start"
	// UnitEnd is emitted after a successful unit invocation.
	UnitEnd EventType = "unit_end"
	// UnitError is emitted after a failed unit invocation attempt.
	UnitError EventType = "unit_error"
	// Chunk is emitted for each streamed output chunk.
	Chunk EventType = "chunk"
)

// Event records one lifecycle point of a unit invocation.
type Event struct {
	Type  EventType
	RunID string
	// Unit is the invoked unit's name.
	Unit string
	// Graph and Node identify the pipeline position, when applicable.
	Graph string
	Node  string
	// Attempt is the 1-based retry attempt number.
	Attempt int
	Time    time.Time
	// Tags are copied from the run.
	Tags map[string]string
	// Payload fields; exactly one of Output/Err/Chunk is meaningful
	// depending on Type.
	Input      any
	Output     any
	Err        error
	Chunk      any
	ChunkIndex int
}

// Handler receives lifecycle events. Handlers run synchronously in the
// invoking execution context and must tolerate concurrent calls from
// parallel branches. A handler error never affects the invocation it
// observes.
type Handler interface {
	HandleEvent(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) HandleEvent(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus dispatches lifecycle events to a fixed set of handlers. A Bus is
// created per top-level invocation (or shared deliberately); there is no
// process-wide registration. Handler failures and panics are diverted to
// the bus's error reporter, never into the primary result channel.
type Bus struct {
	handlers []Handler
	onError  func(event Event, err error)
}

// BusOption configures a Bus during construction.
type BusOption func(*Bus)

// WithErrorReporter sets the side channel for handler failures. The
// default logs them at warn level.
func WithErrorReporter(fn func(event Event, err error)) BusOption {
	return func(b *Bus) {
		b.onError = fn
	}
}

// NewBus creates a Bus dispatching to the given handlers in order.
func NewBus(handlers []Handler, opts ...BusOption) *Bus {
	b := &Bus{
		handlers: handlers,
		onError: func(event Event, err error) {
			logger.Warn("callback handler failed", logger.Fields(
				logger.FieldRunID, event.RunID,
				logger.FieldUnit, event.Unit,
				"event", string(event.Type),
				logger.FieldError, err.Error(),
			))
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Emit dispatches the event to every handler synchronously. The event's
// Time and run identity are filled in from the context when unset.
func (b *Bus) Emit(ctx context.Context, event Event) {
	if b == nil || len(b.handlers) == 0 {
		return
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	if r := FromContext(ctx); r != nil {
		if event.RunID == "" {
			event.RunID = r.ID
		}
		if event.Tags == nil {
			event.Tags = r.Tags
		}
	}
	if event.Attempt == 0 {
		event.Attempt = AttemptFromContext(ctx)
	}

	for _, h := range b.handlers {
		b.dispatch(ctx, h, event)
	}
}

func (b *Bus) dispatch(ctx context.Context, h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.onError(event, fmt.Errorf("handler panic: %v", r))
		}
	}()
	if err := h.HandleEvent(ctx, event); err != nil {
		b.onError(event, err)
	}
}
