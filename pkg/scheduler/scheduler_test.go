package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolveOverlapPrefersHighestPriority(t *testing.T) {
	entries := []scheduleEntry{
		{ID: "a", ProgramID: "prog-a", Priority: 5, CreatedAt: time.Unix(100, 0)},
		{ID: "b", ProgramID: "prog-b", Priority: 9, CreatedAt: time.Unix(200, 0)},
	}
	assert.Equal(t, "b", resolveOverlap(entries).ID)
}

func TestResolveOverlapTiesBreakByEarlierCreatedAt(t *testing.T) {
	entries := []scheduleEntry{
		{ID: "a", ProgramID: "prog-a", Priority: 5, CreatedAt: time.Unix(200, 0)},
		{ID: "b", ProgramID: "prog-b", Priority: 5, CreatedAt: time.Unix(100, 0)},
	}
	assert.Equal(t, "b", resolveOverlap(entries).ID)
}

func TestResolveOverlapFinalTieBreakByProgramID(t *testing.T) {
	entries := []scheduleEntry{
		{ID: "a", ProgramID: "prog-z", Priority: 5, CreatedAt: time.Unix(100, 0)},
		{ID: "b", ProgramID: "prog-a", Priority: 5, CreatedAt: time.Unix(100, 0)},
	}
	assert.Equal(t, "b", resolveOverlap(entries).ID)
}

func TestSegmentIdempotencyKeyIsDeterministic(t *testing.T) {
	h := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	a := segmentIdempotencyKey("prog-1", h, 2)
	b := segmentIdempotencyKey("prog-1", h, 2)
	assert.Equal(t, a, b)

	c := segmentIdempotencyKey("prog-1", h, 3)
	assert.NotEqual(t, a, c)
}
