// Package embeddings turns knowledge chunks and queries into vectors.
//
// Three providers implement vectorstore.Embedder:
//   - FastEmbedProvider runs ONNX models in-process (requires CGO)
//   - TEIProvider calls a Text Embeddings Inference server
//   - OpenAIProvider calls an OpenAI-compatible /embeddings endpoint
package embeddings

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/adminrag/internal/config"
	"github.com/fyrsmithlabs/adminrag/internal/vectorstore"
)

var (
	// ErrEmptyInput indicates empty or nil input texts
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid embeddings configuration")

	// ErrEmbeddingFailed indicates embedding generation failure
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider is an Embedder that holds resources.
type Provider interface {
	vectorstore.Embedder
	Close() error
}

// New creates the provider selected by cfg.Provider.
func New(cfg config.EmbeddingsConfig, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "fastembed", "":
		p, err = NewFastEmbedProvider(FastEmbedConfig{Model: cfg.Model, CacheDir: cfg.CacheDir})
	case "tei":
		p, err = NewTEIProvider(TEIConfig{BaseURL: cfg.BaseURL, Model: cfg.Model}, logger)
	case "openai":
		p, err = NewOpenAIProvider(OpenAIConfig{BaseURL: cfg.BaseURL, Model: cfg.Model, APIKey: cfg.APIKey.Value()}, logger)
	default:
		return nil, fmt.Errorf("%w: unsupported embeddings provider: %s (supported: fastembed, tei, openai)", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("embeddings provider initialized",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
	)
	return p, nil
}
