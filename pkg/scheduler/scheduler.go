// Package scheduler implements the Scheduler (C5, §4.5): materializing
// Segments for every active BroadcastSchedule entry in the lookahead
// window and enqueueing their segment_make jobs. Grounded in the teacher's
// pkg/queue/pool.go periodic-tick pattern (a ticker driving a single
// idempotent sweep function) translated from orphan detection to segment
// materialization.
package scheduler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stationfm/segmentpipe/internal/schema"
	"github.com/stationfm/segmentpipe/pkg/queue"
)

// defaultLeadTime is how long before scheduled_start_ts a segment_make job
// becomes eligible, absent a per-slot_type override (§4.5 step 4).
const defaultLeadTime = 30 * time.Minute

// Scheduler runs the periodic tick that keeps Segments materialized for
// the lookahead window.
type Scheduler struct {
	pool      *pgxpool.Pool
	jobs      *queue.Store
	horizon   time.Duration
	leadTimes map[string]time.Duration
	nowFn     func() time.Time
}

// New constructs a Scheduler. nowFn is injected (rather than calling
// time.Now directly) so tests can pin "now" — grounded in the teacher's
// preference for injected clocks in worker.go tests.
func New(pool *pgxpool.Pool, jobs *queue.Store, horizon time.Duration, leadTimes map[string]time.Duration, nowFn func() time.Time) *Scheduler {
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Scheduler{pool: pool, jobs: jobs, horizon: horizon, leadTimes: leadTimes, nowFn: nowFn}
}

// Run launches the periodic tick loop, firing at least every interval
// (§4.5: "at least once per 15 min") until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	s.tick(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if err := s.Sweep(ctx); err != nil {
		slog.Error("scheduler sweep failed", "error", err)
	}
}

type scheduleEntry struct {
	ID         string
	ProgramID  string
	DayOfWeek  *int
	StartTime  string
	Priority   int
	CreatedAt  time.Time
}

type formatSlotRow struct {
	OrderIndex  int
	SlotType    string
	DurationSec int
}

// Sweep materializes Segments for every hour in [now, now+horizon] (§4.5).
// It is safe to call concurrently and repeatedly: all writes are
// idempotency-key upserts.
func (s *Scheduler) Sweep(ctx context.Context) error {
	now := s.nowFn()
	for h := now.Truncate(time.Hour); h.Before(now.Add(s.horizon)); h = h.Add(time.Hour) {
		if err := s.scheduleHour(ctx, h); err != nil {
			slog.Error("failed to schedule hour", "hour", h, "error", err)
		}
	}
	return nil
}

// scheduleHour implements §4.5 steps 1-4 for a single hour H.
func (s *Scheduler) scheduleHour(ctx context.Context, h time.Time) error {
	entries, err := s.overlappingEntries(ctx, h)
	if err != nil {
		return fmt.Errorf("load overlapping schedule entries: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	winner := resolveOverlap(entries)
	for _, e := range entries {
		if e.ID != winner.ID {
			slog.Info("schedule entry shadowed by higher-priority overlap", "shadowed_id", e.ID, "winner_id", winner.ID, "hour", h)
		}
	}

	clockID, _, err := s.loadProgram(ctx, winner.ProgramID)
	if err != nil {
		return fmt.Errorf("load program %s: %w", winner.ProgramID, err)
	}

	slots, err := s.loadFormatSlots(ctx, clockID)
	if err != nil {
		return fmt.Errorf("load format slots %s: %w", clockID, err)
	}

	total := 0
	for _, sl := range slots {
		total += sl.DurationSec
	}
	if total != schema.FormatClockTotalSeconds {
		// Fatal config (§4.5 step 5): the Scheduler never guesses at a
		// misconfigured clock, it logs and skips.
		slog.Error("format clock slot durations do not sum to 3600s; skipping program",
			"program_id", winner.ProgramID, "format_clock_id", clockID, "total_seconds", total)
		return nil
	}

	offset := 0
	for i, sl := range slots {
		startTS := h.Add(time.Duration(offset) * time.Second)
		offset += sl.DurationSec

		idempotencyKey := segmentIdempotencyKey(winner.ProgramID, h, i)
		segmentID, created, err := s.upsertSegment(ctx, winner.ProgramID, sl, startTS, idempotencyKey)
		if err != nil {
			return fmt.Errorf("upsert segment slot %d: %w", i, err)
		}
		if !created {
			continue
		}

		leadTime := defaultLeadTime
		if lt, ok := s.leadTimes[sl.SlotType]; ok {
			leadTime = lt
		}
		scheduledFor := time.Until(startTS.Add(-leadTime))
		if scheduledFor < 0 {
			scheduledFor = 0
		}

		if _, err := s.jobs.Enqueue(ctx, schema.JobSegmentMake, map[string]string{"segment_id": segmentID}, queue.EnqueueOptions{
			DelaySeconds:   int(scheduledFor.Seconds()),
			IdempotencyKey: "segment_make:" + segmentID,
		}); err != nil {
			return fmt.Errorf("enqueue segment_make for %s: %w", segmentID, err)
		}
	}

	return nil
}

// resolveOverlap picks the winning schedule entry: highest priority, then
// earliest created_at, then lexicographically smallest program_id (§4.5
// steps 1 and 6).
func resolveOverlap(entries []scheduleEntry) scheduleEntry {
	winner := entries[0]
	for _, e := range entries[1:] {
		switch {
		case e.Priority > winner.Priority:
			winner = e
		case e.Priority == winner.Priority && e.CreatedAt.Before(winner.CreatedAt):
			winner = e
		case e.Priority == winner.Priority && e.CreatedAt.Equal(winner.CreatedAt) && e.ProgramID < winner.ProgramID:
			winner = e
		}
	}
	return winner
}

func segmentIdempotencyKey(programID string, h time.Time, slotIndex int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", programID, h.Format(time.RFC3339), slotIndex)))
	return hex.EncodeToString(sum[:])
}

func (s *Scheduler) overlappingEntries(ctx context.Context, h time.Time) ([]scheduleEntry, error) {
	dow := int(h.Weekday())
	hourStr := h.Format("15:04:05")

	rows, err := s.pool.Query(ctx, `
		SELECT id, program_id, day_of_week, start_time::text, priority, created_at
		FROM broadcast_schedule
		WHERE active = true
		  AND (day_of_week IS NULL OR day_of_week = $1)
		  AND start_time <= $2::time AND end_time > $2::time
	`, dow, hourStr)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []scheduleEntry
	for rows.Next() {
		var e scheduleEntry
		if err := rows.Scan(&e.ID, &e.ProgramID, &e.DayOfWeek, &e.StartTime, &e.Priority, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Scheduler) loadProgram(ctx context.Context, programID string) (formatClockID string, djIDs []string, err error) {
	err = s.pool.QueryRow(ctx, `SELECT format_clock_id, dj_ids FROM programs WHERE id = $1 AND active = true`, programID).Scan(&formatClockID, &djIDs)
	return formatClockID, djIDs, err
}

func (s *Scheduler) loadFormatSlots(ctx context.Context, clockID string) ([]formatSlotRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT order_index, slot_type, duration_sec FROM format_slots WHERE format_clock_id = $1 ORDER BY order_index
	`, clockID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []formatSlotRow
	for rows.Next() {
		var r formatSlotRow
		if err := rows.Scan(&r.OrderIndex, &r.SlotType, &r.DurationSec); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Scheduler) upsertSegment(ctx context.Context, programID string, slot formatSlotRow, startTS time.Time, idempotencyKey string) (segmentID string, created bool, err error) {
	err = s.pool.QueryRow(ctx, `
		INSERT INTO segments (program_id, slot_type, slot_index, lang, scheduled_start_ts, max_retries, idempotency_key)
		VALUES ($1, $2, $3, 'en', $4, 3, $5)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id
	`, programID, slot.SlotType, slot.OrderIndex, startTS, idempotencyKey).Scan(&segmentID)
	if err == nil {
		return segmentID, true, nil
	}

	// Conflict: the segment already exists for this idempotency key.
	err = s.pool.QueryRow(ctx, `SELECT id FROM segments WHERE idempotency_key = $1`, idempotencyKey).Scan(&segmentID)
	if err != nil {
		return "", false, err
	}
	return segmentID, false, nil
}

// CancelSchedule handles the deactivation path (§4.5 "Cancellation"):
// future segments not yet rendering or beyond move to failed(reason=
// ScheduleCancelled) and their pending jobs are best-effort removed.
func (s *Scheduler) CancelSchedule(ctx context.Context, programID string) error {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM segments
		WHERE program_id = $1
		  AND state IN ('queued', 'retrieving', 'generating')
		  AND scheduled_start_ts > now()
	`, programID)
	if err != nil {
		return fmt.Errorf("find cancellable segments: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		if _, err := s.pool.Exec(ctx, `
			UPDATE segments SET state = 'failed', last_error = 'ScheduleCancelled', version = version + 1, updated_at = now()
			WHERE id = $1
		`, id); err != nil {
			return fmt.Errorf("fail cancelled segment %s: %w", id, err)
		}
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO segment_transitions (segment_id, from_state, to_state, actor) VALUES ($1, 'queued', 'failed', 'scheduler')
		`, id); err != nil {
			return fmt.Errorf("record cancellation transition %s: %w", id, err)
		}
		if _, err := s.pool.Exec(ctx, `
			DELETE FROM jobs WHERE state = 'pending' AND payload->>'segment_id' = $1
		`, id); err != nil {
			return fmt.Errorf("remove pending jobs for %s: %w", id, err)
		}
	}
	return nil
}
