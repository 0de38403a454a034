package notify

import (
	"strings"
	"testing"

	goslack "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stationfm/segmentpipe/pkg/config"
)

func TestBuildDeadLetterMessageContainsJobDetails(t *testing.T) {
	blocks := buildDeadLetterMessage(DeadLetterInput{
		JobID: "job-1", JobType: "kb_index", FailureCount: 5, LastError: "embedding backend unreachable",
	})
	require.Len(t, blocks, 1)

	section, ok := blocks[0].(*goslack.SectionBlock)
	require.True(t, ok)
	assert.Contains(t, section.Text.Text, ":skull:")
	assert.Contains(t, section.Text.Text, "kb_index")
	assert.Contains(t, section.Text.Text, "job-1")
	assert.Contains(t, section.Text.Text, "embedding backend unreachable")
}

func TestBuildSegmentFailedMessageContainsSegmentDetails(t *testing.T) {
	blocks := buildSegmentFailedMessage(SegmentFailedInput{
		SegmentID: "seg-1", ProgramID: "prog-1", SlotType: "news", LastError: "script length out of bounds",
	})
	require.Len(t, blocks, 1)

	section, ok := blocks[0].(*goslack.SectionBlock)
	require.True(t, ok)
	assert.Contains(t, section.Text.Text, ":x:")
	assert.Contains(t, section.Text.Text, "seg-1")
	assert.Contains(t, section.Text.Text, "script length out of bounds")
}

func TestTruncateLeavesShortTextUnchanged(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello"))
}

func TestTruncateCutsOverlongText(t *testing.T) {
	text := strings.Repeat("a", maxBlockTextLength+100)
	result := truncate(text)
	assert.True(t, len(result) < len(text))
	assert.Contains(t, result, "truncated")
}

func TestNewReturnsNilWhenDisabled(t *testing.T) {
	assert.Nil(t, New(&config.SlackConfig{Enabled: false}, "token"))
	assert.Nil(t, New(&config.SlackConfig{Enabled: true, Channel: "ops"}, ""))
	assert.Nil(t, New(nil, "token"))
}

func TestNewReturnsServiceWhenConfigured(t *testing.T) {
	s := New(&config.SlackConfig{Enabled: true, Channel: "ops"}, "xoxb-token")
	assert.NotNil(t, s)
}

func TestNilServiceMethodsAreNoOps(t *testing.T) {
	var s *Service
	assert.NotPanics(t, func() {
		s.NotifyDeadLetter(nil, DeadLetterInput{})
		s.NotifySegmentFailed(nil, SegmentFailedInput{})
	})
}
