// Package notify implements the Ops Notifier (A5, §6): best-effort Slack
// alerts when a job lands in the dead-letter queue or a Segment reaches
// failed. Grounded in the teacher's pkg/slack/{client,service,message}.go —
// a thin goslack.Client wrapper, a nil-safe Service whose methods no-op
// when disabled, and Block Kit message builders — translated from session
// lifecycle notifications to the radio station's operational failures.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goslack "github.com/slack-go/slack"

	"github.com/stationfm/segmentpipe/pkg/config"
)

// Client is a thin wrapper around the slack-go SDK.
type Client struct {
	api       *goslack.Client
	channelID string
}

// NewClient creates a new Slack API client.
func NewClient(token, channelID string) *Client {
	return &Client{api: goslack.New(token), channelID: channelID}
}

// PostMessage sends blocks to the configured channel.
func (c *Client) PostMessage(ctx context.Context, blocks []goslack.Block, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, _, err := c.api.PostMessageContext(ctx, c.channelID, goslack.MsgOptionBlocks(blocks...))
	if err != nil {
		return fmt.Errorf("chat.postMessage failed: %w", err)
	}
	return nil
}

// DeadLetterInput describes a job that exhausted retries (§4.1, §7).
type DeadLetterInput struct {
	JobID        string
	JobType      string
	FailureCount int
	LastError    string
}

// SegmentFailedInput describes a Segment that reached the failed state
// (§4.6) after exhausting its retry budget.
type SegmentFailedInput struct {
	SegmentID string
	ProgramID string
	SlotType  string
	LastError string
}

// Service delivers operational alerts to Slack. Nil-safe: every method is
// a no-op when the service is nil, matching the teacher's "disabled when
// unconfigured" service pattern.
type Service struct {
	client *Client
}

// New constructs the notifier from cfg, returning nil when Slack
// notifications are disabled so callers can invoke it unconditionally.
func New(cfg *config.SlackConfig, token string) *Service {
	if cfg == nil || !cfg.Enabled || token == "" || cfg.Channel == "" {
		return nil
	}
	return &Service{client: NewClient(token, cfg.Channel)}
}

// NotifyDeadLetter alerts that a job has been frozen in the dead-letter
// queue. Fail-open: errors are logged, never returned.
func (s *Service) NotifyDeadLetter(ctx context.Context, input DeadLetterInput) {
	if s == nil {
		return
	}
	blocks := buildDeadLetterMessage(input)
	if err := s.client.PostMessage(ctx, blocks, 5*time.Second); err != nil {
		slog.Error("notify: failed to post dead-letter alert", "job_id", input.JobID, "error", err)
	}
}

// NotifySegmentFailed alerts that a Segment exhausted its retry budget
// and landed in failed. Fail-open: errors are logged, never returned.
func (s *Service) NotifySegmentFailed(ctx context.Context, input SegmentFailedInput) {
	if s == nil {
		return
	}
	blocks := buildSegmentFailedMessage(input)
	if err := s.client.PostMessage(ctx, blocks, 5*time.Second); err != nil {
		slog.Error("notify: failed to post segment-failed alert", "segment_id", input.SegmentID, "error", err)
	}
}

const maxBlockTextLength = 2900

func buildDeadLetterMessage(input DeadLetterInput) []goslack.Block {
	text := fmt.Sprintf(":skull: *Job dead-lettered*\n*type:* %s\n*job_id:* %s\n*failures:* %d\n*error:*\n%s",
		input.JobType, input.JobID, input.FailureCount, truncate(input.LastError))
	return []goslack.Block{
		goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false), nil, nil),
	}
}

func buildSegmentFailedMessage(input SegmentFailedInput) []goslack.Block {
	text := fmt.Sprintf(":x: *Segment failed*\n*program:* %s\n*slot:* %s\n*segment_id:* %s\n*error:*\n%s",
		input.ProgramID, input.SlotType, input.SegmentID, truncate(input.LastError))
	return []goslack.Block{
		goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false), nil, nil),
	}
}

func truncate(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	return text[:maxBlockTextLength] + "\n\n_... (truncated)_"
}
