// Package chunker implements the Chunker (C2, §4.2): deterministic,
// host-independent splitting of source text into token-bounded chunks.
// Grounded in the teacher's preference for small, pure, heavily unit-tested
// transform functions (see pkg/agent/controller/summarize.go) rather than
// a stateful object — the Chunker here is a pure function over its inputs.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/clipperhouse/uax29/v2/sentences"
)

const (
	// MinTokens is the minimum size of a chunk before it is discarded
	// (unless it is the only chunk produced for a source).
	MinTokens = 100
	// MaxTokens is the greedy-pack ceiling per chunk.
	MaxTokens = 800
	// OverlapTokens is how many trailing tokens of a chunk are re-emitted
	// at the head of the next chunk, to avoid orphaning facts split across
	// a chunk boundary.
	OverlapTokens = 50

	// charsPerToken is the fixed token-length estimator (§4.2: "the
	// estimator must be the same everywhere").
	charsPerToken = 4
)

// Chunk is one packed, hashed slice of normalized source text.
type Chunk struct {
	Text        string
	Index       int
	TokenCount  int
	ContentHash string
}

var controlChars = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
var whitespaceRun = regexp.MustCompile(`[ \t]+`)
var blankLineRun = regexp.MustCompile(`\n{3,}`)

// Normalize strips control characters, collapses runs of horizontal
// whitespace, and caps blank-line runs, while preserving markdown headings
// and paragraph structure (§4.2 step 1).
func Normalize(text string) string {
	text = controlChars.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = whitespaceRun.ReplaceAllString(text, " ")
	text = blankLineRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// estimateTokens applies the fixed ~4-chars/token estimator. Must never
// change independently per call site — every component that counts tokens
// uses this function.
func estimateTokens(s string) int {
	n := len(strings.TrimSpace(s))
	if n == 0 {
		return 0
	}
	tokens := n / charsPerToken
	if tokens == 0 {
		tokens = 1
	}
	return tokens
}

// splitSentences performs Unicode sentence-boundary segmentation (§4.2
// step 2), which subsumes the simpler /(?<=[.!?])\s+/ heuristic for
// English and additionally handles non-Latin sentence punctuation.
func splitSentences(text string) []string {
	var out []string
	seg := sentences.FromString(text)
	for seg.Next() {
		s := strings.TrimSpace(seg.Value())
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Split splits normalized text into ordered, token-bounded, deduplicated
// chunks (§4.2). The caller is responsible for calling Normalize first if
// the raw text has not already been normalized.
func Split(normalizedText string) []Chunk {
	sentenceList := splitSentences(normalizedText)
	if len(sentenceList) == 0 {
		return nil
	}

	type packed struct {
		sentences []string
		tokens    int
	}

	var packs []packed
	cur := packed{}

	flush := func() {
		if len(cur.sentences) > 0 {
			packs = append(packs, cur)
		}
	}

	for _, s := range sentenceList {
		t := estimateTokens(s)
		if cur.tokens > 0 && cur.tokens+t > MaxTokens {
			flush()
			cur = packed{}
		}
		cur.sentences = append(cur.sentences, s)
		cur.tokens += t

		if cur.tokens >= MaxTokens {
			flush()
			cur = packed{}
		}
	}
	flush()

	// Re-apply overlap: prepend trailing sentences of pack[i-1] covering
	// >= OverlapTokens to the head of pack[i] (§4.2 step 3).
	for i := len(packs) - 1; i > 0; i-- {
		prev := packs[i-1]
		var overlap []string
		overlapTokens := 0
		for j := len(prev.sentences) - 1; j >= 0 && overlapTokens < OverlapTokens; j-- {
			overlap = append([]string{prev.sentences[j]}, overlap...)
			overlapTokens += estimateTokens(prev.sentences[j])
		}
		packs[i].sentences = append(append([]string{}, overlap...), packs[i].sentences...)
		packs[i].tokens = estimateTokens(strings.Join(packs[i].sentences, " "))
	}

	// Discard a final chunk under MinTokens unless it's the only chunk
	// (§4.2 step 4).
	if len(packs) > 1 && packs[len(packs)-1].tokens < MinTokens {
		packs = packs[:len(packs)-1]
	}

	seenHashes := make(map[string]struct{}, len(packs))
	chunks := make([]Chunk, 0, len(packs))
	idx := 0
	for _, p := range packs {
		text := strings.Join(p.sentences, " ")
		hash := contentHash(text)
		if _, dup := seenHashes[hash]; dup {
			continue
		}
		seenHashes[hash] = struct{}{}

		chunks = append(chunks, Chunk{
			Text:        text,
			Index:       idx,
			TokenCount:  estimateTokens(text),
			ContentHash: hash,
		})
		idx++
	}

	return chunks
}

// contentHash computes the SHA-256 hex digest of normalized chunk text
// (§4.2 step 5), used for within-source dedup and the embedding cache key.
func contentHash(normalizedText string) string {
	sum := sha256.Sum256([]byte(normalizedText))
	return hex.EncodeToString(sum[:])
}

// ContentHash exposes the hash function used by Split, for callers (the
// embedder) that need to compute it independently of a full chunking pass.
func ContentHash(normalizedText string) string {
	return contentHash(normalizedText)
}
