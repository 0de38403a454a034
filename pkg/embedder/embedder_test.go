package embedder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stationfm/segmentpipe/internal/schema"
)

func TestHandleRejectsInvalidPayload(t *testing.T) {
	h := New(nil, nil, "text-embedding-3-large")

	job := &schema.Job{ID: "j-1", JobType: schema.JobKBIndex, Payload: []byte(`not json`)}
	err := h.Handle(context.Background(), job)

	require.Error(t, err)
	stageErr, ok := err.(*schema.StageError)
	require.True(t, ok)
	assert.Equal(t, schema.KindValidation, stageErr.Kind)
	assert.False(t, stageErr.Kind.Retryable())
}

func TestJobTypesDeclaresKBIndexAndChunkEmbed(t *testing.T) {
	h := New(nil, nil, "text-embedding-3-large")
	assert.Equal(t, []schema.JobType{schema.JobKBIndex, schema.JobChunkEmbed}, h.JobTypes())
}

func TestHandleRejectsInvalidChunkEmbedPayload(t *testing.T) {
	h := New(nil, nil, "text-embedding-3-large")

	job := &schema.Job{ID: "j-2", JobType: schema.JobChunkEmbed, Payload: []byte(`not json`)}
	err := h.Handle(context.Background(), job)

	require.Error(t, err)
	stageErr, ok := err.(*schema.StageError)
	require.True(t, ok)
	assert.Equal(t, schema.KindValidation, stageErr.Kind)
}

func TestHandleRejectsUnknownJobType(t *testing.T) {
	h := New(nil, nil, "text-embedding-3-large")

	job := &schema.Job{ID: "j-3", JobType: "unknown_type", Payload: []byte(`{}`)}
	err := h.Handle(context.Background(), job)

	require.Error(t, err)
	stageErr, ok := err.(*schema.StageError)
	require.True(t, ok)
	assert.Equal(t, schema.KindValidation, stageErr.Kind)
}
