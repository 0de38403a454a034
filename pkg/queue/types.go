package queue

import (
	"context"
	"errors"

	"github.com/stationfm/segmentpipe/internal/schema"
)

// Sentinel errors returned by Store methods.
var (
	// ErrLeaseLost is returned by Renew/Complete/Fail when the caller no
	// longer owns the job's lease (§4.1).
	ErrLeaseLost = errors.New("lease lost: caller no longer owns this job")

	// ErrNoJobAvailable is returned by Claim when no pending job matches.
	ErrNoJobAvailable = errors.New("no job available")

	// ErrJobNotFound is returned when a job id does not exist.
	ErrJobNotFound = errors.New("job not found")
)

// EnqueueOptions customizes Enqueue beyond its required (type, payload).
type EnqueueOptions struct {
	Priority       int    // 1..10, default 5
	DelaySeconds   int    // default 0 — scheduled_for = now + delay
	IdempotencyKey string // empty means no dedup
}

// Result pairs a failure Kind with its retryability. Handler.Handle does
// not return it (failures are reported as a *schema.StageError), and the
// Runtime does not read it.
type Result struct {
	Retryable bool
	Kind      schema.Kind
}

// Handler processes exactly one claimed job. It owns no loop, heartbeat,
// or lease-renewal logic — that belongs to the Runtime (C9) — per §9's
// "small Handler interface ... composed with a runtime that owns the
// loop" design note.
type Handler interface {
	// JobTypes returns the job types this handler accepts.
	JobTypes() []schema.JobType

	// Handle processes job and returns nil on success, or a
	// *schema.StageError describing why it failed and whether that
	// failure is retryable.
	Handle(ctx context.Context, job *schema.Job) error
}
