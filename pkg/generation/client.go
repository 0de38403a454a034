// Package generation implements the Segment Generation Worker (C7, §4.7).
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stationfm/segmentpipe/pkg/config"
)

// ScriptGenerator is the Go-side interface to the external script-synthesis
// adapter, grounded in the teacher's pkg/agent.LLMClient — decoupling the
// domain request/response shape from the wire transport (there: gRPC to a
// Python sidecar; here: a plain HTTP JSON adapter since this module's
// external services are opaque per §1 non-goals).
type ScriptGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// GenerateRequest is the Go-side representation of a script-synthesis
// call (§4.7 step 4).
type GenerateRequest struct {
	Prompt             string
	DJPersona          string
	Lang               string
	ConversationFormat string
	RetrievedChunks    []string
	CorrectiveNote     string // set on length-bound retries (§4.7 step 4)
}

// GenerateResponse is the script-synthesis adapter's reply.
type GenerateResponse struct {
	Script           string
	PromptTokens     int
	CompletionTokens int
	ModelID          string
	LatencyMS        int64
}

// HTTPScriptGenerator is the production ScriptGenerator: a plain JSON POST
// to cfg.Endpoint, grounded in the teacher's adapter-over-http.Client
// pattern elsewhere in pkg/agent/controller (no gRPC/MCP stack since
// neither has a generated client in this module, see DESIGN.md).
type HTTPScriptGenerator struct {
	httpClient *http.Client
	cfg        *config.LLMProviderConfig
	apiKey     string
}

// NewHTTPScriptGenerator constructs an HTTP-backed script generator.
func NewHTTPScriptGenerator(cfg *config.LLMProviderConfig, apiKey string) *HTTPScriptGenerator {
	return &HTTPScriptGenerator{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		apiKey:     apiKey,
	}
}

type wireRequest struct {
	Model              string   `json:"model"`
	Temperature        float64  `json:"temperature"`
	Prompt             string   `json:"prompt"`
	DJPersona          string   `json:"dj_persona"`
	Lang               string   `json:"lang"`
	ConversationFormat string   `json:"conversation_format"`
	RetrievedChunks    []string `json:"retrieved_chunks"`
	CorrectiveNote     string   `json:"corrective_note,omitempty"`
}

type wireResponse struct {
	Script string `json:"script"`
	Usage  struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate calls the adapter and returns its reply.
func (g *HTTPScriptGenerator) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	body, err := json.Marshal(wireRequest{
		Model:              g.cfg.Model,
		Temperature:        g.cfg.Temperature,
		Prompt:             req.Prompt,
		DJPersona:          req.DJPersona,
		Lang:               req.Lang,
		ConversationFormat: req.ConversationFormat,
		RetrievedChunks:    req.RetrievedChunks,
		CorrectiveNote:     req.CorrectiveNote,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	start := time.Now()
	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call script adapter: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("script adapter transient error: status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("script adapter error: status %d: %s", resp.StatusCode, respBody)
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode generate response: %w", err)
	}

	return &GenerateResponse{
		Script:           wire.Script,
		PromptTokens:     wire.Usage.PromptTokens,
		CompletionTokens: wire.Usage.CompletionTokens,
		ModelID:          g.cfg.Model,
		LatencyMS:        time.Since(start).Milliseconds(),
	}, nil
}
