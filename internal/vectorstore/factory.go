package vectorstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/adminrag/internal/config"
)

// NewStore creates the Store selected by cfg.VectorStore.Provider:
//   - "chromem" (default): embedded ChromemStore, no external service
//   - "qdrant": QdrantStore, requires a running Qdrant server
func NewStore(ctx context.Context, cfg *config.Config, embedder Embedder, logger *zap.Logger) (Store, error) {
	vs := cfg.VectorStore
	var (
		store Store
		err   error
	)
	switch vs.Provider {
	case "chromem", "":
		store, err = NewChromemStore(ChromemConfig{
			Path:       vs.Path,
			Compress:   vs.Compress,
			Collection: vs.Collection,
		}, embedder, logger)

	case "qdrant":
		store, err = NewQdrantStore(ctx, QdrantConfig{
			Host:       vs.QdrantHost,
			Port:       vs.QdrantPort,
			UseTLS:     vs.QdrantTLS,
			APIKey:     vs.QdrantAPIKey.Value(),
			Collection: vs.Collection,
		}, embedder, logger)

	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore provider: %s (supported: chromem, qdrant)", ErrInvalidConfig, vs.Provider)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}
