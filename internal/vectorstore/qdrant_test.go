package vectorstore

import (
	"errors"
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestQdrantConfig_ApplyDefaults(t *testing.T) {
	cfg := QdrantConfig{}
	cfg.ApplyDefaults()

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 6334, cfg.Port)
	assert.Equal(t, "admin_knowledge", cfg.Collection)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryBackoff)
	require.NoError(t, cfg.Validate())
}

func TestQdrantConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     QdrantConfig
		wantErr error
	}{
		{"missing host", QdrantConfig{Port: 6334, Collection: "kb"}, ErrInvalidConfig},
		{"bad port", QdrantConfig{Host: "q", Port: 70000, Collection: "kb"}, ErrInvalidConfig},
		{"bad collection", QdrantConfig{Host: "q", Port: 6334, Collection: "Admin-KB"}, ErrInvalidCollectionName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.cfg.Validate(), tt.wantErr)
		})
	}
}

func TestNewQdrantStore_RequiresEmbedder(t *testing.T) {
	_, err := NewQdrantStore(t.Context(), QdrantConfig{}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestPointID_Deterministic(t *testing.T) {
	a := PointID("rules/cpf.txt::chunk0")
	assert.Equal(t, a, PointID("rules/cpf.txt::chunk0"))
	assert.NotEqual(t, a, PointID("rules/cpf.txt::chunk1"))
	assert.Len(t, a, 36)
}

func TestPayloadRoundTrip(t *testing.T) {
	doc := Document{
		ID:       "cpf.txt::chunk2",
		Content:  "payer block",
		Metadata: map[string]string{"source": "cpf.txt", "chunk": "2"},
	}

	payload := toPayload(doc)
	payload["extra_int"] = qdrant.NewValueInt(7)

	r := fromPayload(payload)
	assert.Equal(t, doc.ID, r.ID)
	assert.Equal(t, doc.Content, r.Content)
	assert.Equal(t, map[string]string{"source": "cpf.txt", "chunk": "2", "extra_int": "7"}, r.Metadata)
}

func TestIsTransientError(t *testing.T) {
	assert.False(t, IsTransientError(nil))
	assert.False(t, IsTransientError(errors.New("plain")))
	assert.True(t, IsTransientError(status.Error(grpccodes.Unavailable, "down")))
	assert.True(t, IsTransientError(status.Error(grpccodes.DeadlineExceeded, "slow")))
	assert.False(t, IsTransientError(status.Error(grpccodes.NotFound, "missing")))
	assert.False(t, IsTransientError(status.Error(grpccodes.Unauthenticated, "key")))
}
