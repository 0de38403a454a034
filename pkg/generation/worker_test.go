package generation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	scripts []string
	calls   int
}

func (f *fakeGenerator) Generate(_ context.Context, _ GenerateRequest) (*GenerateResponse, error) {
	s := f.scripts[f.calls]
	f.calls++
	return &GenerateResponse{Script: s, ModelID: "test-model"}, nil
}

func TestGenerateWithinBoundsAcceptsFirstValidScript(t *testing.T) {
	gen := &fakeGenerator{scripts: []string{strings.Repeat("a", 200)}}
	h := &Handler{generator: gen}

	script, metrics, err := h.generateWithinBounds(context.Background(), &segmentRow{SlotType: "news"}, nil, false)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 200), script)
	assert.Equal(t, "test-model", metrics.ModelID)
	assert.Equal(t, 1, gen.calls)
}

func TestGenerateWithinBoundsRetriesOnTooShort(t *testing.T) {
	gen := &fakeGenerator{scripts: []string{"too short", strings.Repeat("b", 200)}}
	h := &Handler{generator: gen}

	script, _, err := h.generateWithinBounds(context.Background(), &segmentRow{SlotType: "news"}, nil, false)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("b", 200), script)
	assert.Equal(t, 2, gen.calls)
}

func TestGenerateWithinBoundsFailsAfterExhaustingRetries(t *testing.T) {
	gen := &fakeGenerator{scripts: []string{"x", "y", "z"}}
	h := &Handler{generator: gen}

	_, _, err := h.generateWithinBounds(context.Background(), &segmentRow{SlotType: "news"}, nil, false)
	require.Error(t, err)
	assert.Equal(t, maxLengthRetries+1, gen.calls)
}
