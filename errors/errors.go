// Package errors provides the unified error taxonomy for the chainkit
// runtime. It implements structured unit errors with machine-readable
// codes and retryable classification, plus the composition and policy
// error types raised by the graph and resilience layers.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
)

// UnitError is the unified failure type for a unit invocation.
type UnitError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the invocation can be re-attempted.
	Retryable bool `json:"retryable"`
	// Unit is the name of the unit that failed, when known.
	Unit string `json:"unit,omitempty"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *UnitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *UnitError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *UnitError) WithCause(cause error) *UnitError {
	e.Cause = cause
	return e
}

// WithUnit tags the error with the failing unit's name and returns the receiver.
func (e *UnitError) WithUnit(name string) *UnitError {
	e.Unit = name
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *UnitError) WithDetail(key string, value any) *UnitError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new UnitError with automatic retryable detection.
func New(code ErrorCode, message string) *UnitError {
	return &UnitError{
		Code:      code,
		Message:   message,
		Retryable: IsRetryableCode(code),
	}
}

// AsUnitError extracts a UnitError from an error chain.
func AsUnitError(err error) (*UnitError, bool) {
	var ue *UnitError
	if stderrors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// IsRetryable reports whether an error is eligible for re-attempt.
// Cancellation and deadline expiry are never retryable. Errors outside
// the taxonomy are treated as non-retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if ue, ok := AsUnitError(err); ok {
		return ue.Retryable
	}
	return false
}

// --- Common constructors ---

// Failed creates a non-retryable UnitError for a unit's own failure.
func Failed(unit string, cause error) *UnitError {
	return &UnitError{
		Code: ErrCodeUnitFailed, Message: fmt.Sprintf("unit %s failed", unit),
		Retryable: false, Unit: unit, Cause: cause,
	}
}

// Transient creates a retryable UnitError for a transient failure.
func Transient(unit string, cause error) *UnitError {
	return &UnitError{
		Code: ErrCodeProviderUnavailable, Message: fmt.Sprintf("unit %s temporarily unavailable", unit),
		Retryable: true, Unit: unit, Cause: cause,
	}
}

// Timeout creates a retryable UnitError for an invocation that timed out.
func Timeout(unit string) *UnitError {
	return &UnitError{
		Code: ErrCodeTimeout, Message: fmt.Sprintf("unit %s timed out", unit),
		Retryable: true, Unit: unit,
	}
}

// RateLimited creates a retryable UnitError for a throttled invocation.
func RateLimited(unit string) *UnitError {
	return &UnitError{
		Code: ErrCodeRateLimited, Message: "too many requests",
		Retryable: true, Unit: unit,
	}
}

// InvalidInput creates a non-retryable UnitError for malformed input.
func InvalidInput(unit, reason string) *UnitError {
	return &UnitError{
		Code: ErrCodeInvalidInput, Message: reason,
		Retryable: false, Unit: unit,
	}
}

// OutputParse creates a non-retryable UnitError for unparseable output.
func OutputParse(unit string, cause error) *UnitError {
	return &UnitError{
		Code: ErrCodeOutputParse, Message: fmt.Sprintf("unit %s produced unparseable output", unit),
		Retryable: false, Unit: unit, Cause: cause,
	}
}

// LimitExceeded creates a non-retryable UnitError for an exhausted
// recursion or step budget.
func LimitExceeded(kind string, limit int) *UnitError {
	return &UnitError{
		Code: ErrCodeLimitExceeded, Message: fmt.Sprintf("%s limit of %d exceeded", kind, limit),
		Retryable: false,
		Details:   map[string]any{"kind": kind, "limit": limit},
	}
}

// Canceled wraps a context cancellation or deadline error into the taxonomy.
// Returns the error unchanged if it is not a cancellation.
func Canceled(op string, cause error) error {
	switch {
	case stderrors.Is(cause, context.DeadlineExceeded):
		return &UnitError{
			Code: ErrCodeCanceled, Message: fmt.Sprintf("%s deadline exceeded", op),
			Retryable: false, Cause: cause,
		}
	case stderrors.Is(cause, context.Canceled):
		return &UnitError{
			Code: ErrCodeCanceled, Message: fmt.Sprintf("%s canceled", op),
			Retryable: false, Cause: cause,
		}
	default:
		return cause
	}
}

// IsCanceled reports whether an error represents cancellation or timeout.
func IsCanceled(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if ue, ok := AsUnitError(err); ok {
		return ue.Code == ErrCodeCanceled
	}
	return false
}

// --- Composition errors ---

// CompositionError reports invalid pipeline construction: a cycle, an
// unknown node reference, or a duplicate node name.
type CompositionError struct {
	// Graph is the name of the graph being composed.
	Graph string
	// Reason describes what is wrong with the composition.
	Reason string
	// Nodes lists the offending node names, when identifiable.
	Nodes []string
}

func (e *CompositionError) Error() string {
	msg := fmt.Sprintf("graph %s: %s", e.Graph, e.Reason)
	if len(e.Nodes) > 0 {
		msg += ": " + strings.Join(e.Nodes, ", ")
	}
	return msg
}

// NewComposition creates a CompositionError.
func NewComposition(graph, reason string, nodes ...string) *CompositionError {
	return &CompositionError{Graph: graph, Reason: reason, Nodes: nodes}
}

// --- Policy errors ---

// PolicyExhaustedError is raised when a retry/fallback policy runs out of
// options. Attempts holds every failure in order: each retry of the
// primary unit followed by each fallback's failure.
type PolicyExhaustedError struct {
	// Unit is the name of the primary unit the policy wrapped.
	Unit string
	// Attempts is the ordered chain of failures.
	Attempts []error
}

func (e *PolicyExhaustedError) Error() string {
	return fmt.Sprintf("policy exhausted for unit %s after %d attempts: %v",
		e.Unit, len(e.Attempts), e.last())
}

// Unwrap returns the last failure in the chain.
func (e *PolicyExhaustedError) Unwrap() error { return e.last() }

func (e *PolicyExhaustedError) last() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1]
}

// NewPolicyExhausted creates a PolicyExhaustedError from an attempt history.
func NewPolicyExhausted(unit string, attempts []error) *PolicyExhaustedError {
	return &PolicyExhaustedError{Unit: unit, Attempts: attempts}
}

// --- Stage annotation ---

// StageError annotates a failure with the pipeline position it occurred at.
// It is transparent to errors.Is/As so the underlying taxonomy survives.
type StageError struct {
	// Graph is the enclosing graph's name.
	Graph string
	// Node is the failing stage's name.
	Node string
	// Err is the underlying failure.
	Err error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("graph %s: node %s: %v", e.Graph, e.Node, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// AtStage wraps err with the failing stage's identity. Returns nil for a
// nil error; an error already annotated with the same stage is returned
// unchanged.
func AtStage(err error, graph, node string) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if stderrors.As(err, &se) && se.Graph == graph && se.Node == node {
		return err
	}
	return &StageError{Graph: graph, Node: node, Err: err}
}
