// Package timeservice implements the Time Service (C8, §4.8): the single
// source of truth for the real <-> future-time mapping the rest of the
// pipeline schedules and retrieves against. Grounded in the teacher's
// pkg/queue/worker.go pattern of a small struct with an atomically updated
// background-refreshed field (there: orphan metrics; here: NTP skew).
package timeservice

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/beevik/ntp"

	"github.com/stationfm/segmentpipe/pkg/config"
)

// Service answers now_real/now_future/to_future/from_future and tracks
// measured clock skew against an NTP reference (§4.8). All scheduling and
// retrieval reference_time values flow through it so no component computes
// its own offset.
type Service struct {
	cfg *config.TimeConfig

	skewMS  atomic.Int64
	healthy atomic.Bool

	stopCh chan struct{}
}

// New constructs a Service using cfg's year offset and NTP settings.
// Health starts true; the first skew check runs immediately on Start.
func New(cfg *config.TimeConfig) *Service {
	s := &Service{cfg: cfg, stopCh: make(chan struct{})}
	s.healthy.Store(true)
	return s
}

// NowReal returns the current real-world UTC instant.
func (s *Service) NowReal() time.Time {
	return time.Now().UTC()
}

// NowFuture returns now_real() shifted forward by the configured year
// offset (default +500 years) — the in-universe broadcast clock.
func (s *Service) NowFuture() time.Time {
	return s.ToFuture(s.NowReal())
}

// ToFuture maps a real-world instant into the in-universe timeline.
func (s *Service) ToFuture(t time.Time) time.Time {
	return t.AddDate(s.cfg.YearOffset, 0, 0)
}

// FromFuture maps an in-universe instant back to the real-world timeline.
func (s *Service) FromFuture(t time.Time) time.Time {
	return t.AddDate(-s.cfg.YearOffset, 0, 0)
}

// SkewMS returns the last measured offset from the NTP reference, in
// milliseconds. Positive means the local clock is behind the reference.
func (s *Service) SkewMS() int64 {
	return s.skewMS.Load()
}

// Healthy reports whether |skew| <= SkewThreshold as of the last check.
func (s *Service) Healthy() bool {
	return s.healthy.Load()
}

// Start launches the periodic skew-check loop. It performs one check
// synchronously before returning so Healthy/SkewMS are meaningful
// immediately.
func (s *Service) Start(ctx context.Context) {
	s.checkSkew()
	go s.runSkewLoop(ctx)
}

// Stop halts the skew-check loop.
func (s *Service) Stop() {
	close(s.stopCh)
}

func (s *Service) runSkewLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SkewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.checkSkew()
		}
	}
}

func (s *Service) checkSkew() {
	resp, err := ntp.Query(s.cfg.NTPServer)
	if err != nil {
		slog.Warn("ntp skew check failed, keeping last known skew", "server", s.cfg.NTPServer, "error", err)
		return
	}

	skew := resp.ClockOffset
	s.skewMS.Store(skew.Milliseconds())

	healthy := skew.Abs() <= s.cfg.SkewThreshold
	s.healthy.Store(healthy)
	if !healthy {
		slog.Warn("clock skew exceeds threshold", "skew_ms", skew.Milliseconds(), "threshold", s.cfg.SkewThreshold)
	}
}
