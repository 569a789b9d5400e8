package vectorstore

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// TestEmbedder is a deterministic bag-of-words Embedder for tests. Each
// lowercased word is hashed into one of Dim buckets and the vector is
// normalized, so texts sharing words score higher than unrelated ones.
type TestEmbedder struct {
	Dim int
}

var _ Embedder = (*TestEmbedder)(nil)

// NewTestEmbedder returns a TestEmbedder with 64 dimensions.
func NewTestEmbedder() *TestEmbedder {
	return &TestEmbedder{Dim: 64}
}

// EmbedDocuments implements Embedder.
func (e *TestEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

// EmbedQuery implements Embedder.
func (e *TestEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func (e *TestEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.Dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%uint32(e.Dim)]++
	}

	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		vec[0] = 1
		return vec
	}
	norm := float32(1 / math.Sqrt(sumSq))
	for i := range vec {
		vec[i] *= norm
	}
	return vec
}
