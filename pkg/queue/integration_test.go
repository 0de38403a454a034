package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stationfm/segmentpipe/internal/schema"
	"github.com/stationfm/segmentpipe/pkg/config"
	"github.com/stationfm/segmentpipe/test/testdb"
)

// intTestQueueConfig returns a queue config tuned for fast integration
// tests, grounded in the teacher's integration_test.go intTestQueueConfig.
func intTestQueueConfig() *config.QueueConfig {
	cfg := config.DefaultQueueConfig()
	cfg.PollInterval = 50 * time.Millisecond
	cfg.PollIntervalJitter = 0
	cfg.LeaseSeconds = 5
	cfg.GracefulShutdownTimeout = 5 * time.Second
	cfg.MaxAttempts = 3
	return cfg
}

// awaitCondition polls until condition returns true or the timeout elapses,
// grounded in the teacher's integration_test.go helper of the same name.
func awaitCondition(t *testing.T, timeout, interval time.Duration, msg string, condition func() bool) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case <-deadline:
			t.Fatalf("timed out: %s", msg)
		default:
			if condition() {
				return
			}
			time.Sleep(interval)
		}
	}
}

func TestStoreClaimIsForUpdateSkipLocked(t *testing.T) {
	pool := testdb.NewPool(t)
	ctx := context.Background()
	s := NewStore(pool, intTestQueueConfig())

	_, err := s.Enqueue(ctx, schema.JobChunkEmbed, map[string]string{"source_id": "doc-1"}, EnqueueOptions{})
	require.NoError(t, err)

	job, err := s.Claim(ctx, "worker-0", []schema.JobType{schema.JobChunkEmbed}, 30)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, schema.JobProcessing, job.State)
	assert.Equal(t, "worker-0", *job.LockedBy)

	_, err = s.Claim(ctx, "worker-1", []schema.JobType{schema.JobChunkEmbed}, 30)
	assert.ErrorIs(t, err, ErrNoJobAvailable)
}

func TestStoreConcurrentClaimsDoNotDuplicate(t *testing.T) {
	pool := testdb.NewPool(t)
	ctx := context.Background()
	s := NewStore(pool, intTestQueueConfig())

	ids := make(map[string]struct{})
	for i := 0; i < 5; i++ {
		id, err := s.Enqueue(ctx, schema.JobChunkEmbed, map[string]int{"i": i}, EnqueueOptions{})
		require.NoError(t, err)
		ids[id] = struct{}{}
	}

	var mu sync.Mutex
	claimed := make([]string, 0, 5)
	var wg sync.WaitGroup
	errCh := make(chan error, 5)

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			job, err := s.Claim(ctx, fmt.Sprintf("worker-%d", i), []schema.JobType{schema.JobChunkEmbed}, 30)
			if err != nil {
				errCh <- err
				return
			}
			mu.Lock()
			claimed = append(claimed, job.ID)
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	assert.Len(t, claimed, 5)
	seen := make(map[string]struct{})
	for _, id := range claimed {
		_, dup := seen[id]
		assert.False(t, dup, "job %s claimed twice", id)
		seen[id] = struct{}{}
		_, known := ids[id]
		assert.True(t, known)
	}
}

func TestStoreEnqueueIdempotencyKeyDedupes(t *testing.T) {
	pool := testdb.NewPool(t)
	ctx := context.Background()
	s := NewStore(pool, intTestQueueConfig())

	opts := EnqueueOptions{IdempotencyKey: "segment-2026-08-01T09:00:00Z-0"}
	id1, err := s.Enqueue(ctx, schema.JobSegmentMake, map[string]string{"v": "1"}, opts)
	require.NoError(t, err)

	id2, err := s.Enqueue(ctx, schema.JobSegmentMake, map[string]string{"v": "2"}, opts)
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "duplicate idempotency key must resolve to the original job")
}

func TestStoreFailRetriesThenDeadLetters(t *testing.T) {
	pool := testdb.NewPool(t)
	ctx := context.Background()
	cfg := intTestQueueConfig()
	cfg.MaxAttempts = 2
	cfg.BackoffBase = 10 * time.Millisecond
	cfg.BackoffCeiling = 20 * time.Millisecond
	s := NewStore(pool, cfg)

	id, err := s.Enqueue(ctx, schema.JobChunkEmbed, map[string]string{}, EnqueueOptions{})
	require.NoError(t, err)

	job, err := s.Claim(ctx, "worker-0", []schema.JobType{schema.JobChunkEmbed}, 30)
	require.NoError(t, err)
	require.Equal(t, id, job.ID)

	transientErr := schema.Transient("embedding provider unavailable", nil)
	require.NoError(t, s.Fail(ctx, job.ID, "worker-0", transientErr))

	awaitCondition(t, 2*time.Second, 10*time.Millisecond, "job should become claimable again after backoff", func() bool {
		j, err := s.Claim(ctx, "worker-0", []schema.JobType{schema.JobChunkEmbed}, 30)
		return err == nil && j != nil && j.ID == id
	})

	require.NoError(t, s.Fail(ctx, job.ID, "worker-0", transientErr))

	var state schema.JobState
	require.NoError(t, pool.QueryRow(ctx, `SELECT state FROM jobs WHERE id = $1`, job.ID).Scan(&state))
	assert.Equal(t, schema.JobFailed, state)

	var dlqCount int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM dead_letter_queue WHERE job_id = $1`, job.ID).Scan(&dlqCount))
	assert.Equal(t, 1, dlqCount)
}

func TestJanitorRecoversExpiredLeases(t *testing.T) {
	pool := testdb.NewPool(t)
	ctx := context.Background()
	s := NewStore(pool, intTestQueueConfig())

	id, err := s.Enqueue(ctx, schema.JobChunkEmbed, map[string]string{}, EnqueueOptions{})
	require.NoError(t, err)

	_, err = s.Claim(ctx, "worker-0", []schema.JobType{schema.JobChunkEmbed}, 1)
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)

	recovered, err := s.RunJanitor(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	var state schema.JobState
	var attempts int
	require.NoError(t, pool.QueryRow(ctx, `SELECT state, attempts FROM jobs WHERE id = $1`, id).Scan(&state, &attempts))
	assert.Equal(t, schema.JobPending, state)
	assert.Equal(t, 1, attempts, "attempts must be preserved across a janitor recovery")
}
