// Package embedder implements the Embedder Worker (C3, §4.3): a
// queue.Handler that indexes one source's text into hashed, embedded
// chunks. Grounded in the teacher's pkg/queue/chat_executor.go — a Handler
// that loads its subject row, does external-service work, and persists the
// result transactionally — translated from chat-completion persistence to
// chunk/embedding upsert-with-stale-delete.
package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/sashabaranov/go-openai"

	"github.com/stationfm/segmentpipe/internal/schema"
	"github.com/stationfm/segmentpipe/pkg/chunker"
	"github.com/stationfm/segmentpipe/pkg/queue"
)

// EmbeddingClient is the narrow surface of the embedding backend the
// worker needs, satisfied by an *openai.Client in production and a fake in
// tests.
type EmbeddingClient interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestStrings) (openai.EmbeddingResponse, error)
}

// Handler is the C3 Embedder Worker.
type Handler struct {
	pool      *pgxpool.Pool
	client    EmbeddingClient
	modelName string
}

// New constructs the Embedder Worker handler.
func New(pool *pgxpool.Pool, client EmbeddingClient, modelName string) *Handler {
	return &Handler{pool: pool, client: client, modelName: modelName}
}

// JobTypes declares this handler consumes kb_index and chunk_embed jobs
// (§6 "Job enqueue API").
func (h *Handler) JobTypes() []schema.JobType {
	return []schema.JobType{schema.JobKBIndex, schema.JobChunkEmbed}
}

type kbIndexPayload struct {
	SourceID   string            `json:"source_id"`
	SourceType schema.SourceType `json:"source_type"`
}

type chunkEmbedPayload struct {
	ChunkID   string `json:"chunk_id"`
	ChunkText string `json:"chunk_text"`
}

// Handle dispatches to the kb_index full-source pass or the chunk_embed
// targeted re-embed, keyed by job type.
func (h *Handler) Handle(ctx context.Context, job *schema.Job) error {
	switch job.JobType {
	case schema.JobKBIndex:
		return h.handleKBIndex(ctx, job)
	case schema.JobChunkEmbed:
		return h.handleChunkEmbed(ctx, job)
	default:
		return schema.Validation(fmt.Sprintf("embedder cannot handle job type %q", job.JobType), nil)
	}
}

// handleKBIndex runs the full index pass for one source (§4.3 steps 1-5).
func (h *Handler) handleKBIndex(ctx context.Context, job *schema.Job) error {
	var payload kbIndexPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return schema.NewStageError(schema.KindValidation, "invalid kb_index payload", err)
	}

	if err := h.setIndexState(ctx, payload.SourceID, payload.SourceType, schema.IndexProcessing, 0, 0, ""); err != nil {
		return schema.Transient("mark index processing", err)
	}

	text, lang, err := h.loadSourceText(ctx, payload.SourceID, payload.SourceType)
	if err != nil {
		_ = h.setIndexState(ctx, payload.SourceID, payload.SourceType, schema.IndexFailed, 0, 0, err.Error())
		return schema.NewStageError(schema.KindValidation, "load source text", err)
	}

	chunks := chunker.Split(chunker.Normalize(text))

	if err := h.upsertChunksAndEmbeddings(ctx, payload.SourceID, payload.SourceType, lang, chunks); err != nil {
		_ = h.setIndexState(ctx, payload.SourceID, payload.SourceType, schema.IndexFailed, 0, 0, err.Error())
		var stageErr *schema.StageError
		if errors.As(err, &stageErr) {
			return stageErr
		}
		return schema.Transient("upsert chunks and embeddings", err)
	}

	if err := h.setIndexState(ctx, payload.SourceID, payload.SourceType, schema.IndexComplete, len(chunks), len(chunks), ""); err != nil {
		return schema.Transient("mark index complete", err)
	}
	return nil
}

// handleChunkEmbed re-embeds a single existing chunk in place, for
// targeted re-embed after a model change without a full reindex (§6).
func (h *Handler) handleChunkEmbed(ctx context.Context, job *schema.Job) error {
	var payload chunkEmbedPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return schema.NewStageError(schema.KindValidation, "invalid chunk_embed payload", err)
	}

	vector, err := h.embed(ctx, payload.ChunkText)
	if err != nil {
		return schema.Transient("embed chunk", err)
	}
	if len(vector) != schema.EmbeddingDimension {
		return schema.Validation(fmt.Sprintf("embedding dimension mismatch: got %d want %d", len(vector), schema.EmbeddingDimension), nil)
	}

	_, err = h.pool.Exec(ctx, `
		INSERT INTO kb_embeddings (chunk_id, vector, model_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (chunk_id) DO UPDATE SET vector = EXCLUDED.vector, model_name = EXCLUDED.model_name, created_at = now()
	`, payload.ChunkID, pgvector.NewVector(vector), h.modelName)
	if err != nil {
		return schema.Transient("upsert re-embedded vector", err)
	}
	return nil
}

func (h *Handler) loadSourceText(ctx context.Context, sourceID string, sourceType schema.SourceType) (text, lang string, err error) {
	switch sourceType {
	case schema.SourceUniverseDoc:
		err = h.pool.QueryRow(ctx, `SELECT title || E'\n\n' || body, lang FROM universe_docs WHERE id = $1`, sourceID).Scan(&text, &lang)
	case schema.SourceEvent:
		err = h.pool.QueryRow(ctx, `SELECT title || E'\n\n' || body, lang FROM events WHERE id = $1`, sourceID).Scan(&text, &lang)
	default:
		return "", "", fmt.Errorf("unknown source type %q", sourceType)
	}
	if err != nil {
		return "", "", fmt.Errorf("load source %s/%s: %w", sourceType, sourceID, err)
	}
	return text, lang, nil
}

// upsertChunksAndEmbeddings inserts missing chunks (attaching a cached
// embedding on content_hash hit, or a freshly computed one on miss),
// deletes chunks from the source's prior generation that are no longer
// present, and relies on ON DELETE CASCADE to remove their embeddings
// (§4.3 step 4).
func (h *Handler) upsertChunksAndEmbeddings(ctx context.Context, sourceID string, sourceType schema.SourceType, lang string, chunks []chunker.Chunk) error {
	tx, err := h.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin index transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	keepHashes := make([]string, 0, len(chunks))
	for _, c := range chunks {
		keepHashes = append(keepHashes, c.ContentHash)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM kb_chunks
		WHERE source_id = $1 AND source_type = $2 AND NOT (content_hash = ANY($3))
	`, sourceID, sourceType, keepHashes); err != nil {
		return fmt.Errorf("delete stale chunks: %w", err)
	}

	for _, c := range chunks {
		var chunkID string
		err := tx.QueryRow(ctx, `
			INSERT INTO kb_chunks (source_id, source_type, chunk_text, chunk_index, token_count, content_hash, lang)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (source_id, content_hash) DO UPDATE SET chunk_index = EXCLUDED.chunk_index
			RETURNING id
		`, sourceID, sourceType, c.Text, c.Index, c.TokenCount, c.ContentHash, lang).Scan(&chunkID)
		if err != nil {
			return fmt.Errorf("upsert chunk %d: %w", c.Index, err)
		}

		var existing int
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM kb_embeddings WHERE chunk_id = $1`, chunkID).Scan(&existing); err != nil {
			return fmt.Errorf("check existing embedding: %w", err)
		}
		if existing > 0 {
			continue // cache hit via content-hash-keyed chunk row: embedding already attached.
		}

		vector, err := h.embed(ctx, c.Text)
		if err != nil {
			return fmt.Errorf("embed chunk %d: %w", c.Index, err)
		}
		if len(vector) != schema.EmbeddingDimension {
			return schema.Validation(fmt.Sprintf("embedding dimension mismatch: got %d want %d", len(vector), schema.EmbeddingDimension), nil)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO kb_embeddings (chunk_id, vector, model_name) VALUES ($1, $2, $3)
		`, chunkID, pgvector.NewVector(vector), h.modelName); err != nil {
			return fmt.Errorf("insert embedding for chunk %d: %w", c.Index, err)
		}
	}

	return tx.Commit(ctx)
}

func (h *Handler) embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := h.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: []string{text},
		Model: openai.EmbeddingModel(h.modelName),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding backend returned no vectors")
	}
	return resp.Data[0].Embedding, nil
}

func (h *Handler) setIndexState(ctx context.Context, sourceID string, sourceType schema.SourceType, state schema.IndexState, chunksCreated, embeddingsCreated int, errMsg string) error {
	_, err := h.pool.Exec(ctx, `
		INSERT INTO kb_index_status (source_id, source_type, state, chunks_created, embeddings_created, error, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (source_id, source_type) DO UPDATE SET
			state = EXCLUDED.state,
			chunks_created = EXCLUDED.chunks_created,
			embeddings_created = EXCLUDED.embeddings_created,
			error = EXCLUDED.error,
			updated_at = now()
	`, sourceID, sourceType, state, chunksCreated, embeddingsCreated, errMsg)
	return err
}

var _ queue.Handler = (*Handler)(nil)
