package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stationfm/segmentpipe/pkg/config"
	"github.com/stationfm/segmentpipe/pkg/retrieval"
	"github.com/stationfm/segmentpipe/pkg/timeservice"
	"github.com/stationfm/segmentpipe/test/testdb"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(pool *pgxpool.Pool) *Server {
	ret := retrieval.New(pool, nil, config.DefaultRetrievalConfig(), "text-embedding-3-large")
	timeSvc := timeservice.New(config.DefaultTimeConfig())
	return New(pool, ret, timeSvc)
}

func TestHandleRAGQueryRejectsMissingText(t *testing.T) {
	s := newTestServer(nil)

	req := httptest.NewRequest(http.MethodPost, "/rag/query", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleTimeReturnsFutureDisplay(t *testing.T) {
	s := newTestServer(nil)

	req := httptest.NewRequest(http.MethodGet, "/time", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body, "real_utc")
	assert.Contains(t, body, "future_display")
	assert.EqualValues(t, 500, body["year_offset"])
}

func insertTestProgram(t *testing.T, ctx context.Context, pool *pgxpool.Pool) string {
	t.Helper()
	var clockID string
	require.NoError(t, pool.QueryRow(ctx, `
		INSERT INTO format_clocks (name) VALUES ($1) RETURNING id
	`, t.Name()+"-clock").Scan(&clockID))

	var programID string
	require.NoError(t, pool.QueryRow(ctx, `
		INSERT INTO programs (name, genre, format_clock_id, dj_ids)
		VALUES ($1, 'talk', $2, '{}')
		RETURNING id
	`, t.Name()+"-program", clockID).Scan(&programID))
	return programID
}

func insertTestSegment(t *testing.T, ctx context.Context, pool *pgxpool.Pool, programID, state string) string {
	t.Helper()
	var segmentID string
	require.NoError(t, pool.QueryRow(ctx, `
		INSERT INTO segments (program_id, slot_type, slot_index, state, lang, scheduled_start_ts, idempotency_key)
		VALUES ($1, 'news', 0, $2, 'en', now(), $3)
		RETURNING id
	`, programID, state, t.Name()+time.Now().String()).Scan(&segmentID))
	return segmentID
}

func TestHandleResetFailedRevivesFailedSegment(t *testing.T) {
	pool := testdb.NewPool(t)
	ctx := context.Background()
	s := newTestServer(pool)

	programID := insertTestProgram(t, ctx, pool)
	segmentID := insertTestSegment(t, ctx, pool, programID, "failed")

	req := httptest.NewRequest(http.MethodPost, "/segments/"+segmentID+"/reset", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var state string
	require.NoError(t, pool.QueryRow(ctx, `SELECT state FROM segments WHERE id = $1`, segmentID).Scan(&state))
	assert.Equal(t, "queued", state)
}

func TestHandleRenderCompleteRejectsIllegalTransition(t *testing.T) {
	pool := testdb.NewPool(t)
	ctx := context.Background()
	s := newTestServer(pool)

	programID := insertTestProgram(t, ctx, pool)
	segmentID := insertTestSegment(t, ctx, pool, programID, "queued")

	body, err := json.Marshal(map[string]int{"expected_version": 1})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/segments/"+segmentID+"/render-complete", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}
