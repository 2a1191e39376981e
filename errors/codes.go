package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Transient failures (retryable)
const (
	// ErrCodeProviderUnavailable indicates the backing provider is temporarily unavailable.
	ErrCodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	// ErrCodeTimeout indicates the invocation timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeRateLimited indicates the invocation was throttled.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
)

// Unit failures
const (
	// ErrCodeUnitFailed indicates a unit's own, non-transient failure.
	ErrCodeUnitFailed ErrorCode = "UNIT_FAILED"
	// ErrCodeInvalidInput indicates the input to a unit is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeOutputParse indicates a unit's output could not be parsed.
	ErrCodeOutputParse ErrorCode = "OUTPUT_PARSE"
)

// Runtime failures
const (
	// ErrCodeCanceled indicates the invocation's context was canceled or timed out.
	ErrCodeCanceled ErrorCode = "CANCELED"
	// ErrCodeLimitExceeded indicates a recursion or step budget was exhausted.
	ErrCodeLimitExceeded ErrorCode = "LIMIT_EXCEEDED"
	// ErrCodeComposition indicates invalid pipeline construction.
	ErrCodeComposition ErrorCode = "COMPOSITION"
	// ErrCodePolicyExhausted indicates a retry/fallback chain was exhausted.
	ErrCodePolicyExhausted ErrorCode = "POLICY_EXHAUSTED"
	// ErrCodeInternal indicates an internal runtime error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeProviderUnavailable: true,
	ErrCodeTimeout:             true,
	ErrCodeRateLimited:         true,
}

// IsRetryableCode reports whether a code is retryable by default.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
