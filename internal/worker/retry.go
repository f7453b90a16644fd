package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/bearmemori/bearmemori/internal/apperr"
)

// Family classifies a handler failure for retry-policy purposes.
type Family string

const (
	FamilyInvalidResponse Family = "invalid_response"
	FamilyUnavailable     Family = "unavailable"
)

// BoundedBackoff is the delay schedule for the invalid_response family:
// attempts 1 through 5 at 1s, 2s, 4s, 8s, 16s, then fail.
var BoundedBackoff = []time.Duration{
	1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
}

// MaxBoundedAttempts is the number of invalid_response attempts before the
// job is marked failed.
const MaxBoundedAttempts = len(BoundedBackoff)

// Classify maps a handler error to its retry family. JSON/schema/validation
// failures are invalid_response; connectivity, timeout, and 5xx failures
// are unavailable. Anything unclassified defaults to invalid_response,
// since that family fails fast (5 attempts) rather than retrying forever.
func Classify(err error) Family {
	if err == nil {
		return FamilyInvalidResponse
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return FamilyUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FamilyUnavailable
	}

	var httpErr *apperr.Error
	if errors.As(err, &httpErr) && httpErr.Kind == apperr.KindInfra {
		return FamilyUnavailable
	}

	// LLM SDK errors that carry an HTTP status (openai-go's *openai.Error
	// and similar) are unavailable at 5xx, invalid_response otherwise
	// (4xx means the request itself was malformed, not transient).
	var statusErr httpStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode() >= 500 {
		return FamilyUnavailable
	}

	var syntaxErr *json.SyntaxError
	var unmarshalErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &unmarshalErr) {
		return FamilyInvalidResponse
	}

	var schemaErr *SchemaError
	if errors.As(err, &schemaErr) {
		return FamilyInvalidResponse
	}

	return FamilyInvalidResponse
}

// httpStatusError matches the shape of openai-go's *openai.Error (and
// similar SDK error types) without importing the SDK here.
type httpStatusError interface {
	StatusCode() int
}

// SchemaError marks a decoded LLM response that failed output-schema
// validation (missing required field, enum out of range).
type SchemaError struct {
	Msg string
}

func (e *SchemaError) Error() string { return "invalid llm response schema: " + e.Msg }

// BackoffFor returns the bounded-family delay for the given 1-indexed
// attempt number. Attempts beyond the fixed schedule (only reachable when
// LLM_MAX_RETRIES raises the bound past the default 5) reuse the longest
// configured delay rather than not backing off at all.
func BackoffFor(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	if attempt > len(BoundedBackoff) {
		return BoundedBackoff[len(BoundedBackoff)-1]
	}
	return BoundedBackoff[attempt-1]
}
