package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var qdrantTracer = otel.Tracer("adminrag.vectorstore.qdrant")

// Payload keys reserved by QdrantStore. Document metadata is stored next
// to them.
const (
	payloadID      = "id"
	payloadContent = "content"
)

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname. Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (not the 6333 REST port). Default: 6334
	Port int

	UseTLS bool
	APIKey string

	// Collection is the collection every operation targets.
	// Default: "admin_knowledge"
	Collection string

	// MaxRetries bounds retries of transient gRPC failures. Default: 3
	MaxRetries int

	// RetryBackoff is the initial backoff, doubled per retry. Default: 1s
	RetryBackoff time.Duration

	// MaxMessageSize is the maximum gRPC message size. Default: 50MB
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "admin_knowledge"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	return ValidateCollectionName(c.Collection)
}

// IsTransientError reports whether a gRPC error is worth retrying.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore implements Store on a Qdrant server. The collection is created
// lazily on the first upsert, sized to the embedder's output dimension.
//
// Qdrant point IDs must be UUIDs or integers, so each document ID is mapped
// to a name-based UUID; the original ID is kept in the payload.
type QdrantStore struct {
	client   *qdrant.Client
	embedder Embedder
	config   QdrantConfig
	logger   *zap.Logger
}

var _ Store = (*QdrantStore)(nil)

// NewQdrantStore connects to Qdrant and performs a health check.
func NewQdrantStore(ctx context.Context, config QdrantConfig, embedder Embedder, logger *zap.Logger) (*QdrantStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		APIKey: config.APIKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	store := &QdrantStore{client: client, embedder: embedder, config: config, logger: logger}
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("qdrant health check failed: %w", err)
	}

	logger.Info("QdrantStore initialized",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.Collection),
	)
	return store, nil
}

// PointID maps a document ID to its deterministic Qdrant point UUID.
func PointID(docID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(docID)).String()
}

// retry retries op on transient errors with exponential backoff.
func (s *QdrantStore) retry(ctx context.Context, name string, op func() error) error {
	backoff := s.config.RetryBackoff
	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", name, err)
		}
		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", name, s.config.MaxRetries, err)
		}
		s.logger.Warn("transient qdrant error, retrying",
			zap.String("operation", name),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", name, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

func (s *QdrantStore) collectionExists(ctx context.Context) (bool, error) {
	var exists bool
	err := s.retry(ctx, "collection_exists", func() error {
		var err error
		exists, err = s.client.CollectionExists(ctx, s.config.Collection)
		return err
	})
	return exists, err
}

func (s *QdrantStore) ensureCollection(ctx context.Context, vectorSize int) error {
	exists, err := s.collectionExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.retry(ctx, "create_collection", func() error {
		return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.config.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(vectorSize),
				Distance: qdrant.Distance_Cosine,
			}),
		})
	})
}

// Upsert implements Store.
func (s *QdrantStore) Upsert(ctx context.Context, docs []Document) (n int, err error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Upsert")
	defer span.End()
	defer func(start time.Time) { observe("qdrant", "upsert", start, err) }(time.Now())

	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("document_count", len(docs)),
	)

	if len(docs) == 0 {
		return 0, ErrEmptyDocuments
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			return 0, fmt.Errorf("document at index %d has no ID", i)
		}
		texts[i] = doc.Content
	}

	embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(embeddings) != len(docs) {
		return 0, fmt.Errorf("%w: got %d embeddings for %d documents", ErrEmbeddingFailed, len(embeddings), len(docs))
	}

	if err := s.ensureCollection(ctx, len(embeddings[0])); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("ensuring collection %s: %w", s.config.Collection, err)
	}

	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(doc.ID)),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: toPayload(doc),
		}
	}

	err = s.retry(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.config.Collection,
			Points:         points,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("upserting points to collection %s: %w", s.config.Collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	return len(docs), nil
}

func toPayload(doc Document) map[string]*qdrant.Value {
	payload := make(map[string]*qdrant.Value, len(doc.Metadata)+2)
	for k, v := range doc.Metadata {
		payload[k] = qdrant.NewValueString(v)
	}
	payload[payloadID] = qdrant.NewValueString(doc.ID)
	payload[payloadContent] = qdrant.NewValueString(doc.Content)
	return payload
}

// Search implements Store.
func (s *QdrantStore) Search(ctx context.Context, query string, k int) (results []SearchResult, err error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Search")
	defer span.End()
	defer func(start time.Time) { observe("qdrant", "search", start, err) }(time.Now())

	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("k", k),
	)

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	exists, err := s.collectionExists(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !exists {
		return []SearchResult{}, nil
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	var points []*qdrant.ScoredPoint
	err = s.retry(ctx, "search", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.Collection,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(k)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		points = res
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching collection %s: %w", s.config.Collection, err)
	}

	results = make([]SearchResult, len(points))
	for i, p := range points {
		results[i] = fromPayload(p.GetPayload())
		results[i].Score = p.GetScore()
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

func fromPayload(payload map[string]*qdrant.Value) SearchResult {
	r := SearchResult{Metadata: make(map[string]string, len(payload))}
	for k, v := range payload {
		var str string
		switch val := v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			str = val.StringValue
		case *qdrant.Value_IntegerValue:
			str = strconv.FormatInt(val.IntegerValue, 10)
		case *qdrant.Value_DoubleValue:
			str = strconv.FormatFloat(val.DoubleValue, 'f', -1, 64)
		case *qdrant.Value_BoolValue:
			str = strconv.FormatBool(val.BoolValue)
		default:
			continue
		}
		switch k {
		case payloadID:
			r.ID = str
		case payloadContent:
			r.Content = str
		default:
			r.Metadata[k] = str
		}
	}
	return r
}

// Count implements Store.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	exists, err := s.collectionExists(ctx)
	if err != nil || !exists {
		return 0, err
	}
	var n uint64
	err = s.retry(ctx, "count", func() error {
		var err error
		n, err = s.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: s.config.Collection,
			Exact:          qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("counting collection %s: %w", s.config.Collection, err)
	}
	return int(n), nil
}

// Reset implements Store.
func (s *QdrantStore) Reset(ctx context.Context) (err error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Reset")
	defer span.End()
	defer func(start time.Time) { observe("qdrant", "reset", start, err) }(time.Now())

	exists, err := s.collectionExists(ctx)
	if err != nil || !exists {
		return err
	}
	if err := s.retry(ctx, "delete_collection", func() error {
		return s.client.DeleteCollection(ctx, s.config.Collection)
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", s.config.Collection, err)
	}
	return nil
}

// Close implements Store.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
