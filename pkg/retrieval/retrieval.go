// Package retrieval implements the Hybrid Retrieval Engine (C4, §4.4):
// vector + lexical scoring with an additive recency bonus, degrading to
// lexical-only when the embedding backend is unavailable. Grounded in the
// teacher's pkg/agent/controller/summarize.go pattern of a pure scoring
// function fed by two independent data fetches, composed in Go rather than
// in one monolithic SQL statement so the weighting stays testable in
// isolation from Postgres.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/sashabaranov/go-openai"

	"github.com/stationfm/segmentpipe/internal/schema"
	"github.com/stationfm/segmentpipe/pkg/config"
)

// candidatePoolSize bounds how many rows each of the vector/lexical
// fetches considers before scoring and ranking in Go.
const candidatePoolSize = 50

// Query is the input to Retrieve (§4.4).
type Query struct {
	Text          string
	Lang          string
	SourceTypes   []schema.SourceType
	Tags          []string
	TopK          int
	RecencyBoost  bool
	ReferenceTime time.Time
}

// ScoredChunk is one retrieved chunk with every sub-score exposed for
// auditability (§4.4 "Output").
type ScoredChunk struct {
	ChunkID      string
	SourceID     string
	SourceType   schema.SourceType
	ChunkText    string
	VectorScore  float64
	LexicalScore float64
	RecencyScore float64
	FinalScore   float64
	Importance   int
	CreatedAt    time.Time
}

// Result is the engine's response, including the degraded flag callers
// must check (§4.4 "Failure semantics").
type Result struct {
	Chunks    []ScoredChunk
	Degraded  bool
}

// EmbeddingClient is the narrow embedding-backend surface Retrieve needs.
type EmbeddingClient interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestStrings) (openai.EmbeddingResponse, error)
}

// Engine is the C4 Hybrid Retrieval Engine.
type Engine struct {
	pool   *pgxpool.Pool
	client EmbeddingClient
	cfg    *config.RetrievalConfig
	model  string
}

// New constructs the retrieval engine.
func New(pool *pgxpool.Pool, client EmbeddingClient, cfg *config.RetrievalConfig, model string) *Engine {
	return &Engine{pool: pool, client: client, cfg: cfg, model: model}
}

type chunkRow struct {
	ChunkID    string
	SourceID   string
	SourceType schema.SourceType
	ChunkText  string
	CreatedAt  time.Time
	Importance int
	EventDate  *time.Time
}

// Retrieve runs the full vector+lexical+recency pipeline and returns the
// top_k chunks ranked by final_score (§4.4).
func (e *Engine) Retrieve(ctx context.Context, q Query) (*Result, error) {
	topK := q.TopK
	if topK <= 0 {
		topK = e.cfg.DefaultTopK
	}

	vectorScores, degraded, err := e.vectorCandidates(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("vector candidates: %w", err)
	}

	lexicalScores, err := e.lexicalCandidates(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("lexical candidates: %w", err)
	}

	chunkIDs := make(map[string]struct{}, len(vectorScores)+len(lexicalScores))
	for id := range vectorScores {
		chunkIDs[id] = struct{}{}
	}
	for id := range lexicalScores {
		chunkIDs[id] = struct{}{}
	}
	if len(chunkIDs) == 0 {
		return &Result{Degraded: degraded}, nil
	}

	ids := make([]string, 0, len(chunkIDs))
	for id := range chunkIDs {
		ids = append(ids, id)
	}

	rows, err := e.loadChunkRows(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load chunk rows: %w", err)
	}

	referenceTime := q.ReferenceTime
	if referenceTime.IsZero() {
		referenceTime = time.Now().UTC()
	}

	scored := make([]ScoredChunk, 0, len(rows))
	for _, r := range rows {
		vs := vectorScores[r.ChunkID]
		ls := lexicalScores[r.ChunkID]
		rs := recencyScore(r.EventDate, referenceTime)

		final := e.cfg.VectorWeight*vs + e.cfg.LexicalWeight*ls
		if q.RecencyBoost {
			final += e.cfg.RecencyWeight * rs
		}

		scored = append(scored, ScoredChunk{
			ChunkID:      r.ChunkID,
			SourceID:     r.SourceID,
			SourceType:   r.SourceType,
			ChunkText:    r.ChunkText,
			VectorScore:  vs,
			LexicalScore: ls,
			RecencyScore: rs,
			FinalScore:   final,
			Importance:   r.Importance,
			CreatedAt:    r.CreatedAt,
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		return rank(scored[i], scored[j])
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return &Result{Chunks: scored, Degraded: degraded}, nil
}

// rank implements the deterministic tie-break: final_score desc, then
// importance desc, then created_at desc, then chunk_id asc (§4.4).
func rank(a, b ScoredChunk) bool {
	if a.FinalScore != b.FinalScore {
		return a.FinalScore > b.FinalScore
	}
	if a.Importance != b.Importance {
		return a.Importance > b.Importance
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ChunkID < b.ChunkID
}

// recencyScore implements the piecewise decay relative to referenceTime
// (§4.4). UniverseDoc chunks (eventDate == nil) always score 0.
func recencyScore(eventDate *time.Time, referenceTime time.Time) float64 {
	if eventDate == nil {
		return 0
	}
	deltaDays := referenceTime.Sub(*eventDate).Hours() / 24

	switch {
	case deltaDays <= 7:
		return 1.0
	case deltaDays <= 28:
		return lerp(deltaDays, 7, 28, 1.0, 0.6)
	case deltaDays <= 90:
		return lerp(deltaDays, 28, 90, 0.6, 0.2)
	default:
		return 0.0
	}
}

func lerp(x, x0, x1, y0, y1 float64) float64 {
	frac := (x - x0) / (x1 - x0)
	return y0 + frac*(y1-y0)
}

// vectorCandidates embeds the query and finds its nearest chunks by cosine
// similarity. When the embedding backend is unavailable it returns an
// empty map with degraded=true rather than failing the whole query (§4.4
// "Failure semantics").
func (e *Engine) vectorCandidates(ctx context.Context, q Query) (map[string]float64, bool, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: []string{q.Text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil || len(resp.Data) == 0 {
		return map[string]float64{}, true, nil
	}

	vec := pgvector.NewVector(resp.Data[0].Embedding)
	rows, err := e.pool.Query(ctx, `
		SELECT c.id, 1 - (e.vector <=> $1) AS vector_score
		FROM kb_embeddings e
		JOIN kb_chunks c ON c.id = e.chunk_id
		ORDER BY e.vector <=> $1
		LIMIT $2
	`, vec, candidatePoolSize)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var id string
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, false, err
		}
		out[id] = score
	}
	return out, false, rows.Err()
}

// lexicalCandidates runs a Postgres full-text search over chunk_text and
// normalizes ts_rank scores to [0,1] within the candidate batch.
func (e *Engine) lexicalCandidates(ctx context.Context, q Query) (map[string]float64, error) {
	rows, err := e.pool.Query(ctx, `
		SELECT id, ts_rank(to_tsvector('simple', chunk_text), plainto_tsquery('simple', $1)) AS raw_score
		FROM kb_chunks
		WHERE to_tsvector('simple', chunk_text) @@ plainto_tsquery('simple', $1)
		ORDER BY raw_score DESC
		LIMIT $2
	`, q.Text, candidatePoolSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	raw := make(map[string]float64)
	maxScore := 0.0
	for rows.Next() {
		var id string
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, err
		}
		raw[id] = score
		if score > maxScore {
			maxScore = score
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(raw))
	for id, score := range raw {
		if maxScore > 0 {
			out[id] = score / maxScore
		} else {
			out[id] = 0
		}
	}
	return out, nil
}

func (e *Engine) loadChunkRows(ctx context.Context, ids []string) ([]chunkRow, error) {
	rows, err := e.pool.Query(ctx, `
		SELECT c.id, c.source_id, c.source_type, c.chunk_text, c.created_at,
		       COALESCE(ev.importance, 0), ev.event_date
		FROM kb_chunks c
		LEFT JOIN events ev ON ev.id = c.source_id AND c.source_type = 'event'
		WHERE c.id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []chunkRow
	for rows.Next() {
		var r chunkRow
		if err := rows.Scan(&r.ChunkID, &r.SourceID, &r.SourceType, &r.ChunkText, &r.CreatedAt, &r.Importance, &r.EventDate); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
