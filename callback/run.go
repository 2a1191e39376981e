package callback

import (
	"context"

	"github.com/google/uuid"

	"github.com/chainkit/chainkit/errors"
	"github.com/chainkit/chainkit/logger"
)

// Run is the per-top-level-invocation carrier of tracing identity and
// limits. It travels down the pipeline by context; sibling branches get
// logically independent children sharing the same run id and
// cancellation signal.
type Run struct {
	// ID uniquely identifies this top-level invocation.
	ID string
	// Tags are arbitrary key/value pairs recorded on every event.
	Tags map[string]string
	// MaxDepth bounds pipeline nesting (0 = unlimited).
	MaxDepth int

	depth int
}

// RunOption configures a Run during construction.
type RunOption func(*Run)

// WithTag adds a tracing tag to the run.
func WithTag(key, value string) RunOption {
	return func(r *Run) {
		r.Tags[key] = value
	}
}

// WithMaxDepth bounds how deeply pipelines may nest in this run.
func WithMaxDepth(n int) RunOption {
	return func(r *Run) {
		r.MaxDepth = n
	}
}

// NewRun creates a Run with a fresh uuid.
func NewRun(opts ...RunOption) *Run {
	r := &Run{
		ID:   uuid.NewString(),
		Tags: make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Child returns a logically independent run for a sibling branch: same
// id and limits, copied tags, so concurrent branches never mutate shared
// state.
func (r *Run) Child() *Run {
	tags := make(map[string]string, len(r.Tags))
	for k, v := range r.Tags {
		tags[k] = v
	}
	return &Run{
		ID:       r.ID,
		Tags:     tags,
		MaxDepth: r.MaxDepth,
		depth:    r.depth,
	}
}

// Descend returns a child run one nesting level deeper, or a
// LIMIT_EXCEEDED error when MaxDepth is exhausted.
func (r *Run) Descend() (*Run, error) {
	if r.MaxDepth > 0 && r.depth+1 > r.MaxDepth {
		return nil, errors.LimitExceeded("depth", r.MaxDepth)
	}
	child := r.Child()
	child.depth = r.depth + 1
	return child, nil
}

// Depth returns the current nesting depth.
func (r *Run) Depth() int { return r.depth }

type runContextKey struct{}
type attemptContextKey struct{}

// WithAttempt tags the context with the 1-based attempt number of the
// invocation in flight. Policy wrappers set it per attempt so emitted
// events carry it.
func WithAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, attemptContextKey{}, attempt)
}

// AttemptFromContext returns the context's attempt number, or 0 when
// the invocation is not running under a policy wrapper.
func AttemptFromContext(ctx context.Context) int {
	if n, ok := ctx.Value(attemptContextKey{}).(int); ok {
		return n
	}
	return 0
}

// WithRun stores a Run in the context and tags the context for log
// enrichment.
func WithRun(ctx context.Context, r *Run) context.Context {
	ctx = logger.ContextWithRunID(ctx, r.ID)
	return context.WithValue(ctx, runContextKey{}, r)
}

// FromContext retrieves the Run from context, or nil.
func FromContext(ctx context.Context) *Run {
	if r, ok := ctx.Value(runContextKey{}).(*Run); ok {
		return r
	}
	return nil
}

// EnsureRun returns the context's Run, creating and attaching a fresh
// one when absent. Engine entry points call this so every invocation is
// traceable even without explicit setup.
func EnsureRun(ctx context.Context) (context.Context, *Run) {
	if r := FromContext(ctx); r != nil {
		return ctx, r
	}
	r := NewRun()
	return WithRun(ctx, r), r
}
