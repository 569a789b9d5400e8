package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/adminrag/internal/config"
)

func newTEIServer(t *testing.T, status int) (*httptest.Server, *[]teiRequest) {
	t.Helper()
	var seen []teiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		var req teiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		seen = append(seen, req)
		if status != http.StatusOK {
			http.Error(w, "model overloaded", status)
			return
		}
		out := make([][]float32, len(req.Inputs))
		for i := range req.Inputs {
			out[i] = []float32{float32(i), 0.5}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestTEIProvider_EmbedDocuments(t *testing.T) {
	srv, seen := newTEIServer(t, http.StatusOK)
	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL + "/", Model: "bge"}, nil)
	require.NoError(t, err)

	vectors, err := p.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 0.5}, {1, 0.5}}, vectors)
	require.Len(t, *seen, 1)
	assert.True(t, (*seen)[0].Truncate)

	vector, err := p.EmbedQuery(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0.5}, vector)
	require.NoError(t, p.Close())
}

func TestTEIProvider_Errors(t *testing.T) {
	_, err := NewTEIProvider(TEIConfig{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	srv, _ := newTEIServer(t, http.StatusServiceUnavailable)
	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	_, err = p.EmbedDocuments(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Contains(t, err.Error(), "503")

	_, err = p.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = p.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestOpenAIProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)

		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": []float32{0.1, float32(i)}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-test"}, nil)
	require.NoError(t, err)

	vectors, err := p.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.1, 1}, vectors[1])

	vector, err := p.EmbedQuery(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0}, vector)
}

func TestOpenAIProvider_RequiresKey(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNew(t *testing.T) {
	srv, _ := newTEIServer(t, http.StatusOK)

	p, err := New(config.EmbeddingsConfig{Provider: "tei", BaseURL: srv.URL}, nil)
	require.NoError(t, err)
	assert.IsType(t, &TEIProvider{}, p)

	_, err = New(config.EmbeddingsConfig{Provider: "word2vec"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(config.EmbeddingsConfig{Provider: "openai"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestMetrics_RecordGeneration(t *testing.T) {
	m := NewMetrics(nil)
	assert.NotPanics(t, func() {
		m.RecordGeneration(context.Background(), "bge", "embed_query", 0, 1, errors.New("boom"))
	})
}
