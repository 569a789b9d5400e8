// Package knowledge builds and queries the reference index consulted while
// extracting documents: rule files are chunked into overlapping windows,
// embedded into a vectorstore.Store and retrieved by similarity.
package knowledge

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/adminrag/internal/vectorstore"
)

var tracer = otel.Tracer("adminrag.knowledge")

// Options configures ingestion.
type Options struct {
	Dir          string
	Extensions   []string
	ChunkSize    int
	ChunkOverlap int
}

// IngestStats summarizes an ingestion.
type IngestStats struct {
	KnowledgeSources int `json:"knowledge_sources"`
	KnowledgeChunks  int `json:"knowledge_chunks"`
}

// Hit is one retrieved chunk.
type Hit struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Chunk  int    `json:"chunk"`
}

// Retriever returns knowledge snippets ranked by relevance to query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]Hit, error)
}

// Service ingests knowledge files and retrieves chunks.
type Service struct {
	store  vectorstore.Store
	opts   Options
	logger *zap.Logger
}

var _ Retriever = (*Service)(nil)

// NewService validates opts and returns a Service backed by store.
func NewService(store vectorstore.Store, opts Options, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("knowledge: store is required")
	}
	if _, err := Chunk("", opts.ChunkSize, opts.ChunkOverlap); err != nil {
		return nil, err
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".txt"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, opts: opts, logger: logger}, nil
}

// Ingest chunks every source file under the knowledge directory and upserts
// the chunks as "<path>::chunk<N>" with metadata {source, chunk}. Unchanged
// sources overwrite their previous chunks.
func (s *Service) Ingest(ctx context.Context) (IngestStats, error) {
	ctx, span := tracer.Start(ctx, "Service.Ingest")
	defer span.End()

	files, err := listSources(s.opts.Dir, s.opts.Extensions)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return IngestStats{}, err
	}

	var docs []vectorstore.Document
	for _, path := range files {
		text, err := readSource(path)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return IngestStats{}, fmt.Errorf("reading %s: %w", path, err)
		}
		chunks, err := Chunk(text, s.opts.ChunkSize, s.opts.ChunkOverlap)
		if err != nil {
			return IngestStats{}, err
		}
		for k, ch := range chunks {
			docs = append(docs, vectorstore.Document{
				ID:      fmt.Sprintf("%s::chunk%d", path, k),
				Content: ch,
				Metadata: map[string]string{
					"source": path,
					"chunk":  strconv.Itoa(k),
				},
			})
		}
	}

	if len(docs) > 0 {
		if _, err := s.store.Upsert(ctx, docs); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return IngestStats{}, fmt.Errorf("upserting knowledge: %w", err)
		}
	}

	stats := IngestStats{KnowledgeSources: len(files), KnowledgeChunks: len(docs)}
	span.SetAttributes(
		attribute.Int("knowledge.sources", stats.KnowledgeSources),
		attribute.Int("knowledge.chunks", stats.KnowledgeChunks),
	)
	s.logger.Info("knowledge ingested",
		zap.String("dir", s.opts.Dir),
		zap.Int("sources", stats.KnowledgeSources),
		zap.Int("chunks", stats.KnowledgeChunks),
	)
	return stats, nil
}

// Reset drops every ingested chunk.
func (s *Service) Reset(ctx context.Context) error {
	return s.store.Reset(ctx)
}

// Rebuild resets the collection and ingests the directory again, so chunks
// of deleted or shortened sources do not survive. Ingest alone only
// overwrites.
func (s *Service) Rebuild(ctx context.Context) (IngestStats, error) {
	if err := s.Reset(ctx); err != nil {
		return IngestStats{}, fmt.Errorf("resetting knowledge: %w", err)
	}
	return s.Ingest(ctx)
}

// Retrieve implements Retriever.
func (s *Service) Retrieve(ctx context.Context, query string, k int) ([]Hit, error) {
	ctx, span := tracer.Start(ctx, "Service.Retrieve")
	defer span.End()

	results, err := s.store.Search(ctx, query, k)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching knowledge: %w", err)
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		chunk, _ := strconv.Atoi(r.Metadata["chunk"])
		hits[i] = Hit{Text: r.Content, Source: r.Metadata["source"], Chunk: chunk}
	}
	span.SetAttributes(attribute.Int("knowledge.hits", len(hits)))
	return hits, nil
}

// FormatHits renders hits as numbered blocks "[i] source (chunk n)\ntext\n"
// separated by blank lines, for inclusion in a prompt.
func FormatHits(hits []Hit) string {
	blocks := make([]string, len(hits))
	for i, h := range hits {
		blocks[i] = fmt.Sprintf("[%d] %s (chunk %d)\n%s\n", i+1, h.Source, h.Chunk, h.Text)
	}
	return strings.Join(blocks, "\n")
}

// Sources returns the distinct sources of hits in first-seen order.
func Sources(hits []Hit) []string {
	seen := make(map[string]bool, len(hits))
	var out []string
	for _, h := range hits {
		if !seen[h.Source] {
			seen[h.Source] = true
			out = append(out, h.Source)
		}
	}
	return out
}
