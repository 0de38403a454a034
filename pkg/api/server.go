// Package api implements the station's HTTP surface (A3, §6): /rag/query
// for worker-side retrieval, /health, and /time. Grounded in the teacher's
// pkg/api/server.go gin.Engine + handler-struct-per-resource layout.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stationfm/segmentpipe/internal/schema"
	"github.com/stationfm/segmentpipe/pkg/retrieval"
	"github.com/stationfm/segmentpipe/pkg/segment"
	"github.com/stationfm/segmentpipe/pkg/store"
	"github.com/stationfm/segmentpipe/pkg/timeservice"
)

// Server wraps the gin.Engine and its dependencies, grounded in the
// teacher's pkg/api/server.go Server struct.
type Server struct {
	engine    *gin.Engine
	pool      *pgxpool.Pool
	retrieval *retrieval.Engine
	timeSvc   *timeservice.Service
	segments  *segment.Store
}

// New builds the HTTP API server and registers its routes.
func New(pool *pgxpool.Pool, ret *retrieval.Engine, timeSvc *timeservice.Service) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, pool: pool, retrieval: ret, timeSvc: timeSvc, segments: segment.New(pool)}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.POST("/rag/query", s.handleRAGQuery)
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/time", s.handleTime)

	segs := s.engine.Group("/segments/:id")
	segs.POST("/render-complete", s.handleRenderComplete)
	segs.POST("/master-complete", s.handleMasterComplete)
	segs.POST("/reset", s.handleResetFailed)
}

// Handler returns the underlying http.Handler for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

type ragQueryRequest struct {
	Text          string     `json:"text" binding:"required"`
	Lang          string     `json:"lang"`
	SourceTypes   []string   `json:"source_types"`
	Tags          []string   `json:"tags"`
	TopK          int        `json:"top_k"`
	RecencyBoost  *bool      `json:"recency_boost"`
	AllowDegraded *bool      `json:"allow_degraded"`
	ReferenceTime *time.Time `json:"reference_time"`
}

type ragChunkResponse struct {
	ChunkID      string  `json:"chunk_id"`
	SourceID     string  `json:"source_id"`
	ChunkText    string  `json:"chunk_text"`
	VectorScore  float64 `json:"vector_score"`
	LexicalScore float64 `json:"lexical_score"`
	RecencyScore float64 `json:"recency_score"`
	FinalScore   float64 `json:"final_score"`
}

type ragQueryResponse struct {
	Chunks       []ragChunkResponse `json:"chunks"`
	QueryTimeMS  int64              `json:"query_time_ms"`
	TotalResults int                `json:"total_results"`
	Degraded     *bool              `json:"degraded,omitempty"`
}

// handleRAGQuery implements POST /rag/query (§6).
func (s *Server) handleRAGQuery(c *gin.Context) {
	var req ragQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	recencyBoost := true
	if req.RecencyBoost != nil {
		recencyBoost = *req.RecencyBoost
	}
	allowDegraded := true
	if req.AllowDegraded != nil {
		allowDegraded = *req.AllowDegraded
	}
	refTime := time.Now().UTC()
	if req.ReferenceTime != nil {
		refTime = *req.ReferenceTime
	}

	start := time.Now()
	result, err := s.retrieval.Retrieve(c.Request.Context(), retrieval.Query{
		Text:          req.Text,
		Lang:          req.Lang,
		TopK:          req.TopK,
		RecencyBoost:  recencyBoost,
		ReferenceTime: refTime,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if result.Degraded && !allowDegraded {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "embedding backend unavailable and allow_degraded=false"})
		return
	}

	chunks := make([]ragChunkResponse, len(result.Chunks))
	for i, ch := range result.Chunks {
		chunks[i] = ragChunkResponse{
			ChunkID: ch.ChunkID, SourceID: ch.SourceID, ChunkText: ch.ChunkText,
			VectorScore: ch.VectorScore, LexicalScore: ch.LexicalScore,
			RecencyScore: ch.RecencyScore, FinalScore: ch.FinalScore,
		}
	}

	resp := ragQueryResponse{
		Chunks:       chunks,
		QueryTimeMS:  time.Since(start).Milliseconds(),
		TotalResults: len(chunks),
	}
	if result.Degraded {
		resp.Degraded = &result.Degraded
	}
	c.JSON(http.StatusOK, resp)
}

// handleHealth implements GET /health (§6).
func (s *Server) handleHealth(c *gin.Context) {
	dbHealth, err := store.Health(c.Request.Context(), s.pool)
	status := "ok"
	if err != nil {
		status = "degraded"
	}

	healthy := s.timeSvc.Healthy()
	if !healthy {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       status,
		"degraded":     status != "ok",
		"ntp_skew_ms":  s.timeSvc.SkewMS(),
		"database":     dbHealth,
	})
}

type segmentTransitionRequest struct {
	ExpectedVersion int `json:"expected_version" binding:"required"`
}

// handleRenderComplete implements POST /segments/:id/render-complete: the
// external TTS renderer's callback reporting that it wrote an audio asset
// and the segment may advance rendering->normalizing (§4.7's closing
// paragraph: "these external transitions are validated by the state
// machine", §4.6).
func (s *Server) handleRenderComplete(c *gin.Context) {
	s.handleExternalTransition(c, schema.SegmentNormalizing, "external:tts")
}

// handleMasterComplete implements POST /segments/:id/master-complete: the
// external mastering component's callback advancing normalizing->ready.
func (s *Server) handleMasterComplete(c *gin.Context) {
	s.handleExternalTransition(c, schema.SegmentReady, "external:mastering")
}

func (s *Server) handleExternalTransition(c *gin.Context, to schema.SegmentState, actor string) {
	var req segmentTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	segmentID := c.Param("id")
	if err := s.segments.Transition(c.Request.Context(), segmentID, req.ExpectedVersion, to, actor); err != nil {
		switch err.(type) {
		case *segment.ErrIllegalTransition:
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			if err == segment.ErrVersionConflict {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"segment_id": segmentID, "state": to})
}

// handleResetFailed implements POST /segments/:id/reset: an operator
// action reviving a failed segment to queued (§4.6 "Rules").
func (s *Server) handleResetFailed(c *gin.Context) {
	segmentID := c.Param("id")
	if err := s.segments.ResetFailed(c.Request.Context(), segmentID, "operator:api"); err != nil {
		switch err.(type) {
		case *segment.ErrIllegalTransition:
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"segment_id": segmentID, "state": schema.SegmentQueued})
}

// handleTime implements GET /time (§6).
func (s *Server) handleTime(c *gin.Context) {
	real := s.timeSvc.NowReal()
	c.JSON(http.StatusOK, gin.H{
		"real_utc":       real,
		"future_display": s.timeSvc.ToFuture(real),
		"year_offset":    s.timeSvc.ToFuture(real).Year() - real.Year(),
		"ntp_skew_ms":    s.timeSvc.SkewMS(),
		"healthy":        s.timeSvc.Healthy(),
	})
}
