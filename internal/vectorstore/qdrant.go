package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// QdrantConfig holds configuration for the Qdrant gRPC backend.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (6334 by default, not the HTTP 6333).
	Port int

	// Collection is the collection holding all document chunks.
	Collection string

	// VectorSize is the dimensionality of embeddings. Must match the
	// embedder's output dimension.
	VectorSize uint64

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// MaxRetries is the retry budget for transient failures.
	MaxRetries int

	// RetryBackoff is the initial backoff, doubled per attempt.
	RetryBackoff time.Duration
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
		c.Collection = "documents"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
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
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// isTransient reports whether a gRPC error is worth retrying.
func isTransient(err error) bool {
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

// QdrantBackend implements Backend against an external Qdrant server.
//
// Durability is entirely server-side: the local process keeps no index
// files, so SizeOnDisk reports zero and Reset drops the collection.
type QdrantBackend struct {
	client   *qdrant.Client
	config   QdrantConfig
	embedder Embedder
	logger   *zap.Logger
}

// NewQdrantBackend connects to Qdrant and verifies the server is healthy.
func NewQdrantBackend(config QdrantConfig, embedder Embedder, logger *zap.Logger) (*QdrantBackend, error) {
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
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	b := &QdrantBackend{
		client:   client,
		config:   config,
		embedder: embedder,
		logger:   logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}

	logger.Info("qdrant backend connected",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.Collection),
	)

	return b, nil
}

// Name returns "qdrant".
func (b *QdrantBackend) Name() string { return "qdrant" }

// retry runs op with exponential backoff on transient gRPC failures.
func (b *QdrantBackend) retry(ctx context.Context, name string, op func() error) error {
	backoff := b.config.RetryBackoff
	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return fmt.Errorf("%s failed: %w", name, err)
		}
		if attempt == b.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", name, b.config.MaxRetries, err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", name, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

// Exists reports whether the collection exists on the server.
func (b *QdrantBackend) Exists(ctx context.Context) (bool, error) {
	var exists bool
	err := b.retry(ctx, "collection_exists", func() error {
		info, err := b.client.GetCollectionInfo(ctx, b.config.Collection)
		if err != nil {
			if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
				exists = false
				return nil
			}
			return err
		}
		exists = info != nil
		return nil
	})
	if err != nil {
		return false, err
	}
	return exists, nil
}

// ensureCollection creates the collection if it does not exist yet.
func (b *QdrantBackend) ensureCollection(ctx context.Context) error {
	exists, err := b.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return b.retry(ctx, "create_collection", func() error {
		return b.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: b.config.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     b.config.VectorSize,
				Distance: qdrant.Distance_Cosine,
			}),
		})
	})
}

// Add embeds documents and upserts them as points.
func (b *QdrantBackend) Add(ctx context.Context, docs []Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, ErrEmptyDocuments
	}

	if err := b.ensureCollection(ctx); err != nil {
		return nil, err
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}
	embeddings, err := b.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	points := make([]*qdrant.PointStruct, len(docs))
	ids := make([]string, len(docs))
	for i, doc := range docs {
		id := doc.ID
		if id == "" {
			id = uuid.New().String()
		}
		ids[i] = id

		payload := map[string]*qdrant.Value{
			"content": {Kind: &qdrant.Value_StringValue{StringValue: doc.Content}},
			"id":      {Kind: &qdrant.Value_StringValue{StringValue: id}},
		}
		for k, v := range doc.Metadata {
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
		}

		// Qdrant point IDs must be UUIDs; the chunk ID is preserved in
		// the payload for retrieval either way.
		pointID := id
		if _, err := uuid.Parse(pointID); err != nil {
			pointID = uuid.New().String()
		}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: payload,
		}
	}

	err = b.retry(ctx, "upsert", func() error {
		_, err := b.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: b.config.Collection,
			Points:         points,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	b.logger.Debug("upserted points to qdrant",
		zap.String("collection", b.config.Collection),
		zap.Int("count", len(points)),
	)

	return ids, nil
}

// Search embeds the query and runs a scored nearest-neighbor query.
func (b *QdrantBackend) Search(ctx context.Context, query string, k int, filters map[string]string) ([]SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	queryVector, err := b.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	var filter *qdrant.Filter
	if len(filters) > 0 {
		conditions := make([]*qdrant.Condition, 0, len(filters))
		for key, value := range filters {
			conditions = append(conditions, &qdrant.Condition{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: key,
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Keyword{Keyword: value},
						},
					},
				},
			})
		}
		filter = &qdrant.Filter{Must: conditions}
	}

	var points []*qdrant.ScoredPoint
	err = b.retry(ctx, "search", func() error {
		res, err := b.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: b.config.Collection,
			Query:          qdrant.NewQuery(queryVector...),
			Limit:          qdrant.PtrOf(uint64(k)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         filter,
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
			return []SearchResult{}, nil
		}
		return nil, err
	}

	results := make([]SearchResult, len(points))
	for i, point := range points {
		result := SearchResult{
			Score:    point.Score,
			Metadata: make(map[string]string),
		}
		for key, value := range point.Payload {
			s := value.GetStringValue()
			switch key {
			case "content":
				result.Content = s
			case "id":
				result.ID = s
			default:
				result.Metadata[key] = s
			}
		}
		results[i] = result
	}
	return results, nil
}

// Get returns a stored document by chunk ID. Point IDs may be remapped
// to UUIDs on upsert, so the lookup filters on the payload chunk ID.
func (b *QdrantBackend) Get(ctx context.Context, id string) (Document, error) {
	var points []*qdrant.RetrievedPoint
	err := b.retry(ctx, "get", func() error {
		res, err := b.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: b.config.Collection,
			Filter: &qdrant.Filter{Must: []*qdrant.Condition{{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key:   "id",
						Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: id}},
					},
				},
			}}},
			Limit:       qdrant.PtrOf(uint32(1)),
			WithPayload: qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
			return Document{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
		}
		return Document{}, err
	}
	if len(points) == 0 {
		return Document{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}

	doc := Document{ID: id, Metadata: make(map[string]string)}
	for key, value := range points[0].Payload {
		s := value.GetStringValue()
		switch key {
		case "content":
			doc.Content = s
		case "id":
			doc.ID = s
		default:
			doc.Metadata[key] = s
		}
	}
	return doc, nil
}

// Count returns the number of points in the collection.
func (b *QdrantBackend) Count(ctx context.Context) (int, error) {
	var count int
	err := b.retry(ctx, "count", func() error {
		info, err := b.client.GetCollectionInfo(ctx, b.config.Collection)
		if err != nil {
			if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
				count = 0
				return nil
			}
			return err
		}
		if info.PointsCount != nil {
			count = int(*info.PointsCount)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// SizeOnDisk is zero; qdrant owns its storage server-side.
func (b *QdrantBackend) SizeOnDisk() (int64, error) {
	return 0, nil
}

// Reset drops the collection and all its points.
func (b *QdrantBackend) Reset(ctx context.Context) error {
	err := b.retry(ctx, "delete_collection", func() error {
		return b.client.DeleteCollection(ctx, b.config.Collection)
	})
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
			return nil
		}
		return err
	}
	b.logger.Info("qdrant collection dropped", zap.String("collection", b.config.Collection))
	return nil
}

// Close closes the gRPC connection.
func (b *QdrantBackend) Close() error {
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}

var _ Backend = (*QdrantBackend)(nil)
