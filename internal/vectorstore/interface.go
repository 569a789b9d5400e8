// Package vectorstore stores knowledge chunks with their embeddings and
// answers similarity queries over them.
//
// Two backends are provided: ChromemStore, an embedded persistent index that
// needs no external service, and QdrantStore, which talks to a Qdrant server
// over gRPC. Both upsert by document ID, so re-ingesting the same source
// replaces its chunks instead of duplicating them.
package vectorstore

import (
	"context"
	"errors"
)

var (
	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid vectorstore configuration")

	// ErrEmptyDocuments is returned when an upsert receives no documents.
	ErrEmptyDocuments = errors.New("documents cannot be empty")

	// ErrInvalidCollectionName indicates a collection name outside ^[a-z0-9_]{1,64}$.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrEmbeddingFailed wraps embedder failures.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// EmbedDocuments generates one embedding per text.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is a single named collection of embedded documents.
type Store interface {
	// Upsert embeds and stores docs, replacing any with the same ID.
	// Returns the number of documents written.
	Upsert(ctx context.Context, docs []Document) (int, error)

	// Search returns up to k documents ranked by similarity to query.
	// An empty or missing collection yields no results and no error.
	Search(ctx context.Context, query string, k int) ([]SearchResult, error)

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)

	// Reset drops every document in the collection.
	Reset(ctx context.Context) error

	// Close releases the underlying resources.
	Close() error
}
