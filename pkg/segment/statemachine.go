// Package segment implements the Segment State Machine (C6, §4.6): the
// typed transition table, optimistic-concurrency guard, and transition
// audit log shared by every worker that advances a Segment. Grounded in
// the teacher's ent/schema/alertsession.go + pkg/queue/worker.go status
// transition pattern (guarded UPDATE ... WHERE status = $expected), here
// expressed as a pure transition table plus a thin Postgres-backed Store
// rather than an ent state machine, since this module carries no ent
// client.
package segment

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stationfm/segmentpipe/internal/schema"
)

// allowedTransitions is the state machine's edge set (§4.6). Every
// transition not listed here is rejected.
var allowedTransitions = map[schema.SegmentState][]schema.SegmentState{
	schema.SegmentQueued:      {schema.SegmentRetrieving, schema.SegmentFailed},
	schema.SegmentRetrieving:  {schema.SegmentGenerating, schema.SegmentFailed},
	schema.SegmentGenerating:  {schema.SegmentRendering, schema.SegmentFailed},
	schema.SegmentRendering:   {schema.SegmentNormalizing, schema.SegmentFailed},
	schema.SegmentNormalizing: {schema.SegmentReady, schema.SegmentFailed},
	schema.SegmentReady:       {schema.SegmentAiring},
	schema.SegmentAiring:      {schema.SegmentAired},
	schema.SegmentAired:       {schema.SegmentArchived},
	schema.SegmentFailed:      {schema.SegmentQueued}, // operator revival only (ResetFailed)
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to schema.SegmentState) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ErrIllegalTransition is returned when a caller attempts a transition not
// present in allowedTransitions.
type ErrIllegalTransition struct {
	From, To schema.SegmentState
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("illegal segment transition %s -> %s", e.From, e.To)
}

// ErrVersionConflict is returned when the optimistic-concurrency version
// check fails: another worker advanced the segment first (§4.6 "Rules").
var ErrVersionConflict = fmt.Errorf("segment version conflict: concurrent transition won")

// Store persists Segment state transitions with optimistic concurrency and
// a full audit trail.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs a segment Store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Transition advances segmentID from its current state to to, guarded by
// expectedVersion (optimistic concurrency, §4.6 "Rules") and the
// allowedTransitions table. actor names who made the change for the audit
// row (for example "worker:generation", "external:tts" or "operator:api").
func (s *Store) Transition(ctx context.Context, segmentID string, expectedVersion int, to schema.SegmentState, actor string) error {
	var from schema.SegmentState
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.QueryRow(ctx, `SELECT state FROM segments WHERE id = $1 AND version = $2 FOR UPDATE`, segmentID, expectedVersion).Scan(&from); err != nil {
		return ErrVersionConflict
	}

	if !CanTransition(from, to) {
		return &ErrIllegalTransition{From: from, To: to}
	}

	tag, err := tx.Exec(ctx, `
		UPDATE segments SET state = $1, version = version + 1, updated_at = now()
		WHERE id = $2 AND version = $3
	`, to, segmentID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update segment state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO segment_transitions (segment_id, from_state, to_state, actor) VALUES ($1, $2, $3, $4)
	`, segmentID, from, to, actor); err != nil {
		return fmt.Errorf("record transition: %w", err)
	}

	return tx.Commit(ctx)
}

// RecordRetry increments retry_count for an in-state retry and, when
// retry_count reaches max_retries, forces a transition to failed (§4.6
// "Rules"). Returns true if the segment moved to failed.
func (s *Store) RecordRetry(ctx context.Context, segmentID string, expectedVersion int, lastError string, actor string) (failed bool, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin retry: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var from schema.SegmentState
	var retryCount, maxRetries int
	if err := tx.QueryRow(ctx, `
		SELECT state, retry_count, max_retries FROM segments WHERE id = $1 AND version = $2 FOR UPDATE
	`, segmentID, expectedVersion).Scan(&from, &retryCount, &maxRetries); err != nil {
		return false, ErrVersionConflict
	}

	retryCount++
	willFail := retryCount >= maxRetries
	toState := from
	if willFail {
		toState = schema.SegmentFailed
	}

	tag, err := tx.Exec(ctx, `
		UPDATE segments
		SET retry_count = $1, state = $2, last_error = $3, version = version + 1, updated_at = now()
		WHERE id = $4 AND version = $5
	`, retryCount, toState, lastError, segmentID, expectedVersion)
	if err != nil {
		return false, fmt.Errorf("update retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, ErrVersionConflict
	}

	if willFail {
		if _, err := tx.Exec(ctx, `
			INSERT INTO segment_transitions (segment_id, from_state, to_state, actor) VALUES ($1, $2, $3, $4)
		`, segmentID, from, toState, actor); err != nil {
			return false, fmt.Errorf("record retry-exhaustion transition: %w", err)
		}
	}

	return willFail, tx.Commit(ctx)
}

// ResetFailed revives a failed segment to queued, clearing last_error and
// retry_count (§4.6 "Rules": operator action only).
func (s *Store) ResetFailed(ctx context.Context, segmentID string, actor string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var from schema.SegmentState
	if err := tx.QueryRow(ctx, `SELECT state FROM segments WHERE id = $1 FOR UPDATE`, segmentID).Scan(&from); err != nil {
		return fmt.Errorf("load segment: %w", err)
	}
	if from != schema.SegmentFailed {
		return &ErrIllegalTransition{From: from, To: schema.SegmentQueued}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE segments
		SET state = 'queued', last_error = NULL, retry_count = 0, version = version + 1, updated_at = now()
		WHERE id = $1
	`, segmentID); err != nil {
		return fmt.Errorf("reset segment: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO segment_transitions (segment_id, from_state, to_state, actor) VALUES ($1, $2, 'queued', $3)
	`, segmentID, from, actor); err != nil {
		return fmt.Errorf("record reset transition: %w", err)
	}

	return tx.Commit(ctx)
}
