package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stationfm/segmentpipe/internal/schema"
	"github.com/stationfm/segmentpipe/pkg/notify"
	"github.com/stationfm/segmentpipe/pkg/queue"
	"github.com/stationfm/segmentpipe/pkg/retrieval"
	"github.com/stationfm/segmentpipe/pkg/segment"
	"github.com/stationfm/segmentpipe/pkg/timeservice"
)

// Script length bounds enforced on every generated script (§4.7 step 4).
const (
	minScriptChars = 50
	maxScriptChars = 5000

	maxLengthRetries = 2
)

// Handler is the C7 Segment Generation Worker.
type Handler struct {
	pool      *pgxpool.Pool
	jobs      *queue.Store
	segments  *segment.Store
	retrieval *retrieval.Engine
	generator ScriptGenerator
	timeSvc   *timeservice.Service
	notifier  *notify.Service
}

// New constructs the Segment Generation Worker handler.
func New(pool *pgxpool.Pool, jobs *queue.Store, segments *segment.Store, ret *retrieval.Engine, generator ScriptGenerator, timeSvc *timeservice.Service) *Handler {
	return &Handler{pool: pool, jobs: jobs, segments: segments, retrieval: ret, generator: generator, timeSvc: timeSvc}
}

// SetNotifier wires the Ops Notifier (A5) into the worker so a segment
// that exhausts its retry budget raises a Slack alert. Nil is a valid,
// fully silent notifier — see notify.Service.
func (h *Handler) SetNotifier(n *notify.Service) {
	h.notifier = n
}

// JobTypes declares this handler consumes segment_make jobs.
func (h *Handler) JobTypes() []schema.JobType {
	return []schema.JobType{schema.JobSegmentMake}
}

type segmentMakePayload struct {
	SegmentID string `json:"segment_id"`
}

type segmentRow struct {
	ID                 string
	ProgramID          string
	SlotType           string
	Lang               string
	ScheduledStartTS   time.Time
	Version            int
	Genre              string
	Description        string
	DJPersonality      string
	ConversationFormat string
}

// Handle runs the full segment_make pipeline (§4.7 steps 1-6).
func (h *Handler) Handle(ctx context.Context, job *schema.Job) error {
	var payload segmentMakePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return schema.Validation("invalid segment_make payload", err)
	}

	row, err := h.loadSegment(ctx, payload.SegmentID)
	if err != nil {
		return schema.Validation("load segment", err)
	}

	if err := h.segments.Transition(ctx, row.ID, row.Version, schema.SegmentRetrieving, "worker:generation"); err != nil {
		return schema.NewStageError(schema.KindConsistency, "transition to retrieving", err)
	}
	row.Version++

	referenceTime := h.timeSvc.ToFuture(row.ScheduledStartTS)
	queryText := fmt.Sprintf("What %s content is relevant around %s? %s", row.SlotType, referenceTime.Format("2006-01-02"), row.Description)

	result, err := h.retrieval.Retrieve(ctx, retrieval.Query{
		Text:          queryText,
		Lang:          row.Lang,
		TopK:          12,
		RecencyBoost:  true,
		ReferenceTime: referenceTime,
	})
	if err != nil {
		return schema.Transient("retrieve context", err)
	}

	if err := h.persistCitations(ctx, row.ID, result.Chunks); err != nil {
		return schema.Transient("persist citations", err)
	}

	top5 := result.Chunks
	if len(top5) > 5 {
		top5 = top5[:5]
	}
	chunkTexts := make([]string, len(top5))
	for i, c := range top5 {
		chunkTexts[i] = c.ChunkText
	}

	if err := h.segments.Transition(ctx, row.ID, row.Version, schema.SegmentGenerating, "worker:generation"); err != nil {
		return schema.NewStageError(schema.KindConsistency, "transition to generating", err)
	}
	row.Version++

	script, metrics, err := h.generateWithinBounds(ctx, row, chunkTexts, result.Degraded)
	if err != nil {
		failed, retryErr := h.segments.RecordRetry(ctx, row.ID, row.Version, err.Error(), "worker:generation")
		if retryErr != nil {
			return schema.NewStageError(schema.KindConsistency, "record generation retry", retryErr)
		}
		if failed {
			h.notifier.NotifySegmentFailed(ctx, notify.SegmentFailedInput{
				SegmentID: row.ID,
				ProgramID: row.ProgramID,
				SlotType:  row.SlotType,
				LastError: err.Error(),
			})
			return schema.Validation("script length out of bounds after retries", err)
		}
		return schema.Transient("generate script", err)
	}

	if err := h.persistScript(ctx, row.ID, script, metrics); err != nil {
		return schema.Transient("persist script", err)
	}

	if _, err := h.jobs.Enqueue(ctx, schema.JobSegmentRender, map[string]string{"segment_id": row.ID}, queue.EnqueueOptions{
		IdempotencyKey: "segment_render:" + row.ID,
	}); err != nil {
		return schema.Transient("enqueue segment_render", err)
	}

	if err := h.segments.Transition(ctx, row.ID, row.Version, schema.SegmentRendering, "worker:generation"); err != nil {
		return schema.NewStageError(schema.KindConsistency, "transition to rendering", err)
	}

	return nil
}

// generateWithinBounds calls the adapter, retrying with a corrective note
// up to maxLengthRetries times if the script length falls outside
// [minScriptChars, maxScriptChars] (§4.7 step 4).
func (h *Handler) generateWithinBounds(ctx context.Context, row *segmentRow, chunkTexts []string, degraded bool) (string, *schema.GenerationMetrics, error) {
	prompt := fmt.Sprintf("Write a %s segment script for the program %q (%s format).", row.SlotType, row.Description, row.Genre)

	var lastResp *GenerateResponse
	var correctiveNote string

	for attempt := 0; attempt <= maxLengthRetries; attempt++ {
		resp, err := h.generator.Generate(ctx, GenerateRequest{
			Prompt:             prompt,
			DJPersona:          row.DJPersonality,
			Lang:               row.Lang,
			ConversationFormat: row.ConversationFormat,
			RetrievedChunks:    chunkTexts,
			CorrectiveNote:     correctiveNote,
		})
		if err != nil {
			return "", nil, err
		}
		lastResp = resp

		n := len(strings.TrimSpace(resp.Script))
		if n >= minScriptChars && n <= maxScriptChars {
			return resp.Script, &schema.GenerationMetrics{
				LatencyMS:         resp.LatencyMS,
				PromptTokens:      resp.PromptTokens,
				CompletionTokens:  resp.CompletionTokens,
				ModelID:           resp.ModelID,
				Temperature:       0,
				RetrievalDegraded: degraded,
			}, nil
		}

		if n < minScriptChars {
			correctiveNote = fmt.Sprintf("Previous attempt was too short (%d chars); expand to at least %d characters.", n, minScriptChars)
		} else {
			correctiveNote = fmt.Sprintf("Previous attempt was too long (%d chars); tighten to at most %d characters.", n, maxScriptChars)
		}
	}

	return "", nil, fmt.Errorf("script length %d outside [%d, %d] after %d attempts", len(lastResp.Script), minScriptChars, maxScriptChars, maxLengthRetries+1)
}

func (h *Handler) loadSegment(ctx context.Context, segmentID string) (*segmentRow, error) {
	var r segmentRow
	var convFormat *string
	err := h.pool.QueryRow(ctx, `
		SELECT s.id, s.program_id, s.slot_type, s.lang, s.scheduled_start_ts, s.version,
		       p.genre, p.description, p.conversation_format
		FROM segments s
		JOIN programs p ON p.id = s.program_id
		WHERE s.id = $1
	`, segmentID).Scan(&r.ID, &r.ProgramID, &r.SlotType, &r.Lang, &r.ScheduledStartTS, &r.Version, &r.Genre, &r.Description, &convFormat)
	if err != nil {
		return nil, err
	}
	if convFormat != nil {
		r.ConversationFormat = *convFormat
	}

	err = h.pool.QueryRow(ctx, `
		SELECT string_agg(d.name || ': ' || array_to_string(d.personality, ', '), '; ')
		FROM programs p, unnest(p.dj_ids) AS dj_id
		JOIN djs d ON d.id = dj_id
		WHERE p.id = $1
	`, r.ProgramID).Scan(&r.DJPersonality)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (h *Handler) persistCitations(ctx context.Context, segmentID string, chunks []retrieval.ScoredChunk) error {
	citations := make([]schema.Citation, len(chunks))
	for i, c := range chunks {
		citations[i] = schema.Citation{SourceID: c.SourceID, ChunkID: c.ChunkID, RelevanceScore: c.FinalScore}
	}
	body, err := json.Marshal(citations)
	if err != nil {
		return err
	}
	_, err = h.pool.Exec(ctx, `UPDATE segments SET citations = $1, updated_at = now() WHERE id = $2`, body, segmentID)
	return err
}

// persistScript writes the script and generation metrics idempotently,
// keyed by segment_id (§4.7 step 5, §4.6 "Idempotency").
func (h *Handler) persistScript(ctx context.Context, segmentID, script string, metrics *schema.GenerationMetrics) error {
	metricsBody, err := json.Marshal(metrics)
	if err != nil {
		return err
	}
	_, err = h.pool.Exec(ctx, `
		UPDATE segments SET script_md = $1, generation_metrics = $2, updated_at = now() WHERE id = $3
	`, script, metricsBody, segmentID)
	return err
}

var _ queue.Handler = (*Handler)(nil)
