package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCollapsesWhitespaceAndStripsControlChars(t *testing.T) {
	in := "Hello\x00 world.\t\tThis   has\r\nextra   space.\n\n\n\nAnother paragraph."
	out := Normalize(in)
	assert.NotContains(t, out, "\x00")
	assert.NotContains(t, out, "\t\t")
	assert.NotContains(t, out, "\n\n\n")
}

func TestSplitIsDeterministic(t *testing.T) {
	text := Normalize(strings.Repeat("The quick brown fox jumps over the lazy dog. ", 200))
	a := Split(text)
	b := Split(text)
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].ContentHash, b[i].ContentHash)
		assert.Equal(t, a[i].Text, b[i].Text)
	}
}

func TestSplitDiscardsUndersizedFinalChunkUnlessOnly(t *testing.T) {
	text := Normalize(strings.Repeat("The quick brown fox jumps over the lazy dog. ", 300) + "Tiny tail.")
	chunks := Split(text)
	require.NotEmpty(t, chunks)
	last := chunks[len(chunks)-1]
	assert.GreaterOrEqual(t, last.TokenCount, MinTokens)
}

func TestSplitKeepsSingleUndersizedChunk(t *testing.T) {
	chunks := Split(Normalize("Just one short sentence."))
	require.Len(t, chunks, 1)
}

func TestSplitDedupesIdenticalChunkHashes(t *testing.T) {
	text := Normalize(strings.Repeat("Repeated identical sentence content here. ", 30))
	chunks := Split(text)
	seen := make(map[string]struct{})
	for _, c := range chunks {
		_, dup := seen[c.ContentHash]
		assert.False(t, dup)
		seen[c.ContentHash] = struct{}{}
	}
}

func TestContentHashStable(t *testing.T) {
	assert.Equal(t, ContentHash("abc"), ContentHash("abc"))
	assert.NotEqual(t, ContentHash("abc"), ContentHash("abd"))
}
