// Package cleanup implements the Cleanup Service (A6, §6): a periodic
// purge of aged-out operational data while configuration tables (programs,
// format_clocks, format_slots, broadcast_schedule, djs, voices) are left
// untouched. Grounded in the teacher's pkg/cleanup/service.go run loop —
// Start/Stop/run/runAll — with each ent-backed soft-delete query replaced
// by a hard DELETE against the raw pgx/v5 pool, since this module has no
// soft-delete column and the teacher's own ent client was never generated
// (see DESIGN.md).
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stationfm/segmentpipe/pkg/config"
)

// Service periodically purges aired/archived segments, completed jobs,
// dead-letter entries, and stale health checks past their retention
// window (§6 "Retention").
type Service struct {
	cfg  *config.RetentionConfig
	pool *pgxpool.Pool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService constructs the cleanup service.
func NewService(cfg *config.RetentionConfig, pool *pgxpool.Pool) *Service {
	return &Service{cfg: cfg, pool: pool}
}

// Start launches the background purge loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("cleanup service started",
		"segment_retention_days", s.cfg.SegmentRetentionDays,
		"dead_letter_retention_days", s.cfg.DeadLetterRetentionDays,
		"interval", s.cfg.CleanupInterval)
}

// Stop signals the purge loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.RunAll(ctx)

	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunAll(ctx)
		}
	}
}

// RunAll executes one full purge pass, exported so `stationctl cleanup`
// can trigger it synchronously outside the periodic loop.
func (s *Service) RunAll(ctx context.Context) {
	s.purgeAgedSegments(ctx)
	s.purgeDeadLetterEntries(ctx)
	s.purgeHealthChecks(ctx)
	s.purgeCompletedJobs(ctx)
}

func (s *Service) purgeAgedSegments(ctx context.Context) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM segments
		WHERE state IN ('aired', 'archived')
		  AND updated_at < now() - make_interval(days => $1)
	`, s.cfg.SegmentRetentionDays)
	if err != nil {
		slog.Error("cleanup: purge aged segments failed", "error", err)
		return
	}
	if n := tag.RowsAffected(); n > 0 {
		slog.Info("cleanup: purged aged segments", "count", n)
	}
}

func (s *Service) purgeDeadLetterEntries(ctx context.Context) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM dead_letter_queue
		WHERE created_at < now() - make_interval(days => $1)
	`, s.cfg.DeadLetterRetentionDays)
	if err != nil {
		slog.Error("cleanup: purge dead-letter entries failed", "error", err)
		return
	}
	if n := tag.RowsAffected(); n > 0 {
		slog.Info("cleanup: purged dead-letter entries", "count", n)
	}
}

func (s *Service) purgeHealthChecks(ctx context.Context) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM health_checks WHERE recorded_at < now() - $1::interval
	`, s.cfg.HealthCheckTTL.String())
	if err != nil {
		slog.Error("cleanup: purge health checks failed", "error", err)
		return
	}
	if n := tag.RowsAffected(); n > 0 {
		slog.Info("cleanup: purged health checks", "count", n)
	}
}

// purgeCompletedJobs removes completed jobs whose completed_at is older than
// DeadLetterRetentionDays, keeping the jobs table proportional to active
// work rather than growing unbounded (supplemented beyond the distilled
// spec; the original job-queue table needs a bound just like segments do).
// Failed jobs are left in place, and the state of the segment a job served
// is not consulted.
func (s *Service) purgeCompletedJobs(ctx context.Context) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM jobs
		WHERE state = 'completed'
		  AND completed_at < now() - make_interval(days => $1)
	`, s.cfg.DeadLetterRetentionDays)
	if err != nil {
		slog.Error("cleanup: purge completed jobs failed", "error", err)
		return
	}
	if n := tag.RowsAffected(); n > 0 {
		slog.Info("cleanup: purged completed jobs", "count", n)
	}
}
