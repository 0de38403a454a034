package retrieval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecencyScorePiecewiseDecay(t *testing.T) {
	ref := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name      string
		deltaDays float64
		want      float64
	}{
		{"within 7 days", 3, 1.0},
		{"exactly 7 days", 7, 1.0},
		{"midpoint of 7-28 decay", 17.5, 0.8},
		{"exactly 28 days", 28, 0.6},
		{"midpoint of 28-90 decay", 59, 0.4},
		{"exactly 90 days", 90, 0.2},
		{"past 90 days", 120, 0.0},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			eventDate := ref.Add(-time.Duration(c.deltaDays * float64(24*time.Hour)))
			got := recencyScore(&eventDate, ref)
			assert.InDelta(t, c.want, got, 0.01)
		})
	}
}

func TestRecencyScoreZeroForUniverseDocs(t *testing.T) {
	assert.Equal(t, 0.0, recencyScore(nil, time.Now()))
}

func TestRankOrdersByFinalScoreThenImportanceThenRecencyThenID(t *testing.T) {
	now := time.Now()
	a := ScoredChunk{ChunkID: "b", FinalScore: 0.5, Importance: 5, CreatedAt: now}
	b := ScoredChunk{ChunkID: "a", FinalScore: 0.5, Importance: 5, CreatedAt: now}
	assert.True(t, rank(a, b) == (a.ChunkID < b.ChunkID))

	higherImportance := ScoredChunk{ChunkID: "z", FinalScore: 0.5, Importance: 9, CreatedAt: now}
	lowerImportance := ScoredChunk{ChunkID: "a", FinalScore: 0.5, Importance: 1, CreatedAt: now}
	assert.True(t, rank(higherImportance, lowerImportance))

	newer := ScoredChunk{ChunkID: "z", FinalScore: 0.5, Importance: 5, CreatedAt: now}
	older := ScoredChunk{ChunkID: "a", FinalScore: 0.5, Importance: 5, CreatedAt: now.Add(-time.Hour)}
	assert.True(t, rank(newer, older))

	higherScore := ScoredChunk{ChunkID: "a", FinalScore: 0.9}
	lowerScore := ScoredChunk{ChunkID: "z", FinalScore: 0.1}
	assert.True(t, rank(higherScore, lowerScore))
}
