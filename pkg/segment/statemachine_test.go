package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stationfm/segmentpipe/internal/schema"
)

func TestCanTransitionAllowsForwardPath(t *testing.T) {
	path := []schema.SegmentState{
		schema.SegmentQueued, schema.SegmentRetrieving, schema.SegmentGenerating,
		schema.SegmentRendering, schema.SegmentNormalizing, schema.SegmentReady,
		schema.SegmentAiring, schema.SegmentAired, schema.SegmentArchived,
	}
	for i := 0; i < len(path)-1; i++ {
		assert.True(t, CanTransition(path[i], path[i+1]), "%s -> %s should be legal", path[i], path[i+1])
	}
}

func TestCanTransitionRejectsSkippingStates(t *testing.T) {
	assert.False(t, CanTransition(schema.SegmentQueued, schema.SegmentGenerating))
	assert.False(t, CanTransition(schema.SegmentReady, schema.SegmentArchived))
	assert.False(t, CanTransition(schema.SegmentArchived, schema.SegmentQueued))
}

func TestCanTransitionAllowsFailureFromMiddleStates(t *testing.T) {
	for _, s := range []schema.SegmentState{schema.SegmentRetrieving, schema.SegmentGenerating, schema.SegmentRendering, schema.SegmentNormalizing} {
		assert.True(t, CanTransition(s, schema.SegmentFailed))
	}
}

func TestCanTransitionRejectsFailureFromTerminalStates(t *testing.T) {
	assert.False(t, CanTransition(schema.SegmentAired, schema.SegmentFailed))
	assert.False(t, CanTransition(schema.SegmentArchived, schema.SegmentFailed))
}

func TestCanTransitionAllowsRevivalFromFailed(t *testing.T) {
	assert.True(t, CanTransition(schema.SegmentFailed, schema.SegmentQueued))
}
