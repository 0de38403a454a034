package timeservice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/stationfm/segmentpipe/pkg/config"
)

func TestToFutureFromFutureRoundTrip(t *testing.T) {
	cfg := config.DefaultTimeConfig()
	s := New(cfg)

	real := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	future := s.ToFuture(real)

	assert.Equal(t, 2026+cfg.YearOffset, future.Year())
	assert.Equal(t, real, s.FromFuture(future))
}

func TestNowFutureIsOffsetFromNowReal(t *testing.T) {
	cfg := config.DefaultTimeConfig()
	s := New(cfg)

	diff := s.NowFuture().Year() - s.NowReal().Year()
	assert.InDelta(t, cfg.YearOffset, diff, 1)
}

func TestHealthyDefaultsTrueBeforeAnyCheck(t *testing.T) {
	s := New(config.DefaultTimeConfig())
	assert.True(t, s.Healthy())
	assert.Equal(t, int64(0), s.SkewMS())
}
