package schema

import "fmt"

// Kind classifies a failure the way the Durable Job Queue (C1) needs to
// decide retryability (§7) — it is a property of the failure, never a Go
// type name.
type Kind string

const (
	// KindTransient covers network I/O, upstream 5xx, rate limiting, lease
	// loss, NTP skew past threshold. Retried with backoff, escalated to
	// the DLQ after max_attempts.
	KindTransient Kind = "transient"

	// KindValidation covers schema mismatch, dimension mismatch, duration
	// outside slot bounds, script length out of bounds. Non-retryable;
	// goes to the DLQ with full context on the first occurrence.
	KindValidation Kind = "validation"

	// KindConsistency covers an optimistic-concurrency conflict on segment
	// state. The losing caller aborts silently; the winner continues.
	KindConsistency Kind = "consistency"

	// KindDegradation covers a retrieval backend outage. The caller
	// continues in lexical-only mode unless it explicitly disallows that.
	KindDegradation Kind = "degradation"

	// KindFatalConfig covers FormatClock slot sums != 3600 or a Program
	// referencing a missing DJ/Clock. Rejected at the admin boundary; the
	// Scheduler logs and skips rather than guessing.
	KindFatalConfig Kind = "fatal_config"

	// KindCancellation covers an operator cancelling a schedule or
	// segment. Not counted as an error for metrics purposes.
	KindCancellation Kind = "cancellation"
)

// Retryable reports whether a failure of this kind should be retried by
// the job queue rather than sent straight to the DLQ.
func (k Kind) Retryable() bool {
	return k == KindTransient
}

// StageError is the (kind, message, cause) structure handlers surface so
// the queue can decide retryability without inspecting Go error types
// (§7 "Propagation").
type StageError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *StageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// NewStageError builds a StageError for the given kind.
func NewStageError(kind Kind, message string, cause error) *StageError {
	return &StageError{Kind: kind, Message: message, Cause: cause}
}

// Transient wraps cause as a retryable transient failure.
func Transient(message string, cause error) *StageError {
	return NewStageError(KindTransient, message, cause)
}

// Validation wraps cause as a non-retryable validation failure.
func Validation(message string, cause error) *StageError {
	return NewStageError(KindValidation, message, cause)
}

// FatalConfig wraps cause as a configuration failure rejected at the
// admin boundary.
func FatalConfig(message string, cause error) *StageError {
	return NewStageError(KindFatalConfig, message, cause)
}
