package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/stationfm/segmentpipe/internal/schema"
	"github.com/stationfm/segmentpipe/pkg/config"
)

func testQueueConfig() *config.QueueConfig {
	cfg := config.DefaultQueueConfig()
	cfg.PollInterval = 50 * time.Millisecond
	cfg.PollIntervalJitter = 10 * time.Millisecond
	cfg.BackoffBase = 1 * time.Second
	cfg.BackoffCeiling = 16 * time.Second
	cfg.PoisonPillThreshold = 3
	cfg.PoisonPillCooldown = 5 * time.Minute
	return cfg
}

func TestStoreBackoffExponentialWithCeiling(t *testing.T) {
	s := &Store{cfg: testQueueConfig()}

	// attempts=1 -> base*2^0 = base, within +/-20% jitter.
	d := s.backoff(1)
	assert.InDelta(t, float64(s.cfg.BackoffBase), float64(d), float64(s.cfg.BackoffBase)*0.21)

	// Large attempts must be capped at the ceiling (+/-20% jitter).
	d = s.backoff(20)
	assert.InDelta(t, float64(s.cfg.BackoffCeiling), float64(d), float64(s.cfg.BackoffCeiling)*0.21)
}

func TestRuntimePollIntervalWithinJitterBounds(t *testing.T) {
	r := &Runtime{cfg: testQueueConfig()}
	for i := 0; i < 50; i++ {
		d := r.pollInterval()
		assert.GreaterOrEqual(t, d, r.cfg.PollInterval-r.cfg.PollIntervalJitter)
		assert.LessOrEqual(t, d, r.cfg.PollInterval+r.cfg.PollIntervalJitter)
	}
}

func TestRuntimePoisonPillPausesAfterThreshold(t *testing.T) {
	r := NewRuntime("w-1", "test", nil, nil, stubHandler{types: []schema.JobType{schema.JobKBIndex}}, testQueueConfig())

	for i := 0; i < r.cfg.PoisonPillThreshold; i++ {
		r.recordFailure(schema.JobKBIndex)
	}

	assert.Empty(t, r.eligibleTypes(), "job type should be paused after reaching the failure threshold")
}

func TestRuntimeRecordSuccessClearsPoisonState(t *testing.T) {
	r := NewRuntime("w-1", "test", nil, nil, stubHandler{types: []schema.JobType{schema.JobKBIndex}}, testQueueConfig())

	r.recordFailure(schema.JobKBIndex)
	r.recordSuccess(schema.JobKBIndex)

	assert.Len(t, r.eligibleTypes(), 1)
}

type stubHandler struct {
	types []schema.JobType
}

func (s stubHandler) JobTypes() []schema.JobType { return s.types }
func (s stubHandler) Handle(_ context.Context, _ *schema.Job) error {
	return nil
}
