// Package queue implements the Durable Job Queue (C1) and the Worker
// Runtime (C9) described in §4.1 and §4.9. The claim primitive is
// grounded in the teacher's pkg/queue/worker.go claimNextSession, which
// used ent's ForUpdate(sql.WithLockAction(sql.SkipLocked)) inside a
// transaction; here the same SELECT ... FOR UPDATE SKIP LOCKED idiom is
// expressed directly against a raw pgx/v5 pool as a single atomic CTE
// statement, since the teacher's ent client has no generated code to
// adapt (see DESIGN.md).
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stationfm/segmentpipe/internal/schema"
	"github.com/stationfm/segmentpipe/pkg/config"
)

// DeadLetterEntry describes a job that just moved to the dead-letter
// queue, passed to the hook registered via OnDeadLetter.
type DeadLetterEntry struct {
	JobID        string
	JobType      schema.JobType
	FailureCount int
	LastError    string
}

// Store is the C1 Durable Job Queue: exactly-once claim, lease, retry,
// and dead-letter handling for typed jobs, backed by Postgres row-level
// locking.
type Store struct {
	pool           *pgxpool.Pool
	cfg            *config.QueueConfig
	deadLetterHook func(ctx context.Context, entry DeadLetterEntry)
}

// NewStore constructs a Store over pool using cfg's retry/backoff knobs.
func NewStore(pool *pgxpool.Pool, cfg *config.QueueConfig) *Store {
	return &Store{pool: pool, cfg: cfg}
}

// OnDeadLetter registers a callback invoked, best-effort and after commit,
// every time a job is frozen into the dead-letter queue — the Ops
// Notifier's (A5) hook into the Durable Job Queue.
func (s *Store) OnDeadLetter(fn func(ctx context.Context, entry DeadLetterEntry)) {
	s.deadLetterHook = fn
}

// Enqueue inserts a new job, returning the existing job's id when
// idempotency_key collides with one already scheduled for the same
// job_type (§4.1).
func (s *Store) Enqueue(ctx context.Context, jobType schema.JobType, payload any, opts EnqueueOptions) (string, error) {
	priority := opts.Priority
	if priority == 0 {
		priority = 5
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal job payload: %w", err)
	}

	var idempotencyKey any
	if opts.IdempotencyKey != "" {
		idempotencyKey = opts.IdempotencyKey
	}

	var id string
	err = s.pool.QueryRow(ctx, `
		INSERT INTO jobs (job_type, payload, priority, scheduled_for, idempotency_key, max_attempts)
		VALUES ($1, $2, $3, now() + make_interval(secs => $4), $5, $6)
		ON CONFLICT (job_type, idempotency_key) WHERE idempotency_key IS NOT NULL
		DO NOTHING
		RETURNING id
	`, jobType, body, priority, opts.DelaySeconds, idempotencyKey, s.cfg.MaxAttempts).Scan(&id)

	if err == pgx.ErrNoRows {
		// Idempotency collision: the INSERT was suppressed, fetch the
		// existing job's id instead of creating a duplicate.
		err = s.pool.QueryRow(ctx, `
			SELECT id FROM jobs WHERE job_type = $1 AND idempotency_key = $2
		`, jobType, opts.IdempotencyKey).Scan(&id)
		if err != nil {
			return "", fmt.Errorf("resolve idempotent job: %w", err)
		}
		return id, nil
	}
	if err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return id, nil
}

// Claim atomically selects and locks at most one pending, due job of the
// given types, ordered by priority DESC, scheduled_for ASC, created_at
// ASC, and returns it with attempts incremented (§4.1).
func (s *Store) Claim(ctx context.Context, workerID string, types []schema.JobType, leaseSeconds int) (*schema.Job, error) {
	row := s.pool.QueryRow(ctx, `
		WITH candidate AS (
			SELECT id FROM jobs
			WHERE state = 'pending'
			  AND scheduled_for <= now()
			  AND job_type = ANY($1)
			ORDER BY priority DESC, scheduled_for ASC, created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE jobs
		SET state = 'processing',
		    locked_by = $2,
		    locked_until = now() + make_interval(secs => $3),
		    attempts = attempts + 1,
		    started_at = now()
		FROM candidate
		WHERE jobs.id = candidate.id
		RETURNING jobs.id, jobs.job_type, jobs.payload, jobs.state, jobs.priority,
		          jobs.scheduled_for, jobs.attempts, jobs.max_attempts, jobs.locked_until,
		          jobs.locked_by, jobs.error, jobs.error_details, jobs.idempotency_key,
		          jobs.created_at, jobs.started_at, jobs.completed_at
	`, jobTypeStrings(types), workerID, leaseSeconds)

	job, err := scanJob(row)
	if err == pgx.ErrNoRows {
		return nil, ErrNoJobAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// Renew extends a held lease by leaseSeconds. Fails with ErrLeaseLost if
// workerID no longer owns the job.
func (s *Store) Renew(ctx context.Context, jobID, workerID string, leaseSeconds int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET locked_until = now() + make_interval(secs => $1)
		WHERE id = $2 AND locked_by = $3 AND state = 'processing'
	`, leaseSeconds, jobID, workerID)
	if err != nil {
		return fmt.Errorf("renew lease: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Complete marks a job finished and clears its lock.
func (s *Store) Complete(ctx context.Context, jobID, workerID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET state = 'completed', completed_at = now(), locked_by = NULL, locked_until = NULL
		WHERE id = $1 AND locked_by = $2
	`, jobID, workerID)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Fail records a job failure. Retryable failures are requeued with
// exponential backoff and jitter; exhausted or non-retryable failures
// move to the dead-letter queue (§4.1, §7).
func (s *Store) Fail(ctx context.Context, jobID, workerID string, stageErr *schema.StageError) error {
	var attempts, maxAttempts int
	var jobType schema.JobType
	var payload []byte
	err := s.pool.QueryRow(ctx, `
		SELECT attempts, max_attempts, job_type, payload FROM jobs WHERE id = $1 AND locked_by = $2
	`, jobID, workerID).Scan(&attempts, &maxAttempts, &jobType, &payload)
	if err == pgx.ErrNoRows {
		return ErrLeaseLost
	}
	if err != nil {
		return fmt.Errorf("load job for failure: %w", err)
	}

	if stageErr.Kind.Retryable() && attempts < maxAttempts {
		backoff := s.backoff(attempts)
		_, err := s.pool.Exec(ctx, `
			UPDATE jobs
			SET state = 'pending',
			    scheduled_for = now() + $1,
			    locked_by = NULL,
			    locked_until = NULL,
			    error = $2,
			    error_details = $3
			WHERE id = $4 AND locked_by = $5
		`, backoff, stageErr.Message, fmt.Sprint(stageErr.Cause), jobID, workerID)
		if err != nil {
			return fmt.Errorf("requeue job: %w", err)
		}
		return nil
	}

	return s.moveToDeadLetter(ctx, jobID, workerID, jobType, payload, attempts, stageErr)
}

// moveToDeadLetter freezes a job in the DLQ after it exhausts retries or
// fails non-retryably.
func (s *Store) moveToDeadLetter(ctx context.Context, jobID, workerID string, jobType schema.JobType, payload []byte, attempts int, stageErr *schema.StageError) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin dead-letter transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE jobs
		SET state = 'failed', error = $1, error_details = $2, locked_by = NULL, locked_until = NULL, completed_at = now()
		WHERE id = $3 AND locked_by = $4
	`, stageErr.Message, fmt.Sprint(stageErr.Cause), jobID, workerID)
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO dead_letter_queue (job_id, job_type, payload, last_error, failure_count, frozen_state)
		VALUES ($1, $2, $3, $4, $5, 'failed')
	`, jobID, jobType, payload, stageErr.Error(), attempts)
	if err != nil {
		return fmt.Errorf("insert dead-letter entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	if s.deadLetterHook != nil {
		s.deadLetterHook(ctx, DeadLetterEntry{
			JobID:        jobID,
			JobType:      jobType,
			FailureCount: attempts,
			LastError:    stageErr.Error(),
		})
	}
	return nil
}

// backoff computes base*2^(attempts-1) capped at the ceiling with ±20%
// jitter (§4.1).
func (s *Store) backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	exp := s.cfg.BackoffBase * time.Duration(1<<uint(attempts-1))
	if exp > s.cfg.BackoffCeiling {
		exp = s.cfg.BackoffCeiling
	}
	jitterFrac := (rand.Float64()*2 - 1) * 0.2 // uniform in [-0.2, 0.2]
	return exp + time.Duration(float64(exp)*jitterFrac)
}

// Release immediately reverts a held job to pending without recording a
// failure, for cancellation and graceful-shutdown paths (§4.9) rather
// than waiting for the lease to passively expire.
func (s *Store) Release(ctx context.Context, jobID, workerID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET state = 'pending', locked_by = NULL, locked_until = NULL
		WHERE id = $1 AND locked_by = $2 AND state = 'processing'
	`, jobID, workerID)
	if err != nil {
		return fmt.Errorf("release job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}
	return nil
}

// RunJanitor reverts jobs whose lease expired without completion back to
// pending, preserving attempts, so a crashed worker's job becomes
// claimable again (§4.1, testable property 7).
func (s *Store) RunJanitor(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET state = 'pending', locked_by = NULL, locked_until = NULL, error = 'LeaseExpired'
		WHERE state = 'processing' AND locked_until < now()
	`)
	if err != nil {
		return 0, fmt.Errorf("janitor sweep: %w", err)
	}
	n := int(tag.RowsAffected())
	if n > 0 {
		slog.Warn("janitor recovered expired leases", "count", n)
	}
	return n, nil
}

func jobTypeStrings(types []schema.JobType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func scanJob(row pgx.Row) (*schema.Job, error) {
	var j schema.Job
	if err := row.Scan(
		&j.ID, &j.JobType, &j.Payload, &j.State, &j.Priority,
		&j.ScheduledFor, &j.Attempts, &j.MaxAttempts, &j.LockedUntil,
		&j.LockedBy, &j.Error, &j.ErrorDetails, &j.IdempotencyKey,
		&j.CreatedAt, &j.StartedAt, &j.CompletedAt,
	); err != nil {
		return nil, err
	}
	return &j, nil
}
