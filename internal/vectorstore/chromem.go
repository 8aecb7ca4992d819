package vectorstore

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// timeNow is a variable for testing purposes (allows mocking time).
var timeNow = time.Now

// ChromemConfig holds configuration for the embedded chromem-go backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	Path string

	// Collection is the collection name holding all document chunks.
	Collection string

	// Compress enables gzip compression for stored data.
	Compress bool
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "./vector_store"
	}
	if c.Collection == "" {
		c.Collection = "documents"
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: path required", ErrInvalidConfig)
	}
	return nil
}

// ChromemBackend implements Backend using chromem-go.
//
// chromem-go is an embeddable vector database with zero third-party
// dependencies. It persists each collection under its own directory,
// so the index survives restarts without an external service.
type ChromemBackend struct {
	config   ChromemConfig
	embedder Embedder
	logger   *zap.Logger

	// db is opened lazily so Exists can answer without touching
	// (and implicitly creating) the on-disk state.
	db *chromem.DB
}

// NewChromemBackend creates a ChromemBackend. The database is not opened
// until the first operation that needs it.
func NewChromemBackend(config ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemBackend, error) {
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

	return &ChromemBackend{
		config:   config,
		embedder: embedder,
		logger:   logger,
	}, nil
}

// Name returns "chromem".
func (b *ChromemBackend) Name() string { return "chromem" }

// Exists reports whether the persist directory holds any index data.
func (b *ChromemBackend) Exists(ctx context.Context) (bool, error) {
	entries, err := os.ReadDir(b.config.Path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading persist directory %s: %w", b.config.Path, err)
	}
	return len(entries) > 0, nil
}

// open loads or creates the persistent database. A read failure on
// existing data surfaces as ErrIndexCorrupt: the index is either fully
// loaded or treated as absent, never partially exposed.
func (b *ChromemBackend) open() (*chromem.DB, error) {
	if b.db != nil {
		return b.db, nil
	}

	hadData := false
	if entries, err := os.ReadDir(b.config.Path); err == nil && len(entries) > 0 {
		hadData = true
	}

	db, err := chromem.NewPersistentDB(b.config.Path, b.config.Compress)
	if err != nil {
		if hadData {
			return nil, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
		}
		return nil, fmt.Errorf("creating chromem DB at %s: %w", b.config.Path, err)
	}

	b.db = db
	b.logger.Debug("chromem DB opened",
		zap.String("path", b.config.Path),
		zap.Bool("compress", b.config.Compress),
	)
	return db, nil
}

// embeddingFunc bridges the Embedder interface to chromem.
func (b *ChromemBackend) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return b.embedder.EmbedQuery(ctx, text)
	}
}

// Add embeds documents in batch and stores them in the collection.
func (b *ChromemBackend) Add(ctx context.Context, docs []Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, ErrEmptyDocuments
	}

	db, err := b.open()
	if err != nil {
		return nil, err
	}

	collection, err := db.GetOrCreateCollection(b.config.Collection, nil, b.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", b.config.Collection, err)
	}

	ids := make([]string, len(docs))
	texts := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
		if ids[i] == "" {
			ids[i] = fmt.Sprintf("doc_%d_%d", timeNow().UnixNano(), i)
		}
		texts[i] = doc.Content
	}

	// Embed in one batch instead of per-document inside chromem.
	embeddings, err := b.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		chromemDocs[i] = chromem.Document{
			ID:        ids[i],
			Content:   doc.Content,
			Metadata:  doc.Metadata,
			Embedding: embeddings[i],
		}
	}

	if err := collection.AddDocuments(ctx, chromemDocs, 1); err != nil {
		return nil, fmt.Errorf("adding documents: %w", err)
	}

	b.logger.Debug("added documents to chromem",
		zap.String("collection", b.config.Collection),
		zap.Int("count", len(docs)),
	)

	return ids, nil
}

// Search queries the collection, returning scored results.
func (b *ChromemBackend) Search(ctx context.Context, query string, k int, filters map[string]string) ([]SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	db, err := b.open()
	if err != nil {
		return nil, err
	}

	collection := db.GetCollection(b.config.Collection, b.embeddingFunc())
	if collection == nil {
		return []SearchResult{}, nil
	}

	// chromem requires nResults <= document count.
	docCount := collection.Count()
	if docCount == 0 {
		return []SearchResult{}, nil
	}
	if k > docCount {
		k = docCount
	}

	results, err := collection.Query(ctx, query, k, filters, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", b.config.Collection, err)
	}

	searchResults := make([]SearchResult, len(results))
	for i, r := range results {
		searchResults[i] = SearchResult{
			ID:       r.ID,
			Content:  r.Content,
			Score:    r.Similarity,
			Metadata: r.Metadata,
		}
	}
	return searchResults, nil
}

// Get returns a stored document by chunk ID.
func (b *ChromemBackend) Get(ctx context.Context, id string) (Document, error) {
	db, err := b.open()
	if err != nil {
		return Document{}, err
	}
	collection := db.GetCollection(b.config.Collection, b.embeddingFunc())
	if collection == nil {
		return Document{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	doc, err := collection.GetByID(ctx, id)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	return Document{ID: doc.ID, Content: doc.Content, Metadata: doc.Metadata}, nil
}

// Count returns the number of documents in the collection.
func (b *ChromemBackend) Count(ctx context.Context) (int, error) {
	db, err := b.open()
	if err != nil {
		return 0, err
	}
	collection := db.GetCollection(b.config.Collection, b.embeddingFunc())
	if collection == nil {
		return 0, nil
	}
	return collection.Count(), nil
}

// SizeOnDisk walks the persist directory and sums file sizes.
func (b *ChromemBackend) SizeOnDisk() (int64, error) {
	var size int64
	err := filepath.WalkDir(b.config.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		return nil
	})
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return size, nil
}

// Reset removes all on-disk artifacts and drops the open handle.
func (b *ChromemBackend) Reset(ctx context.Context) error {
	b.db = nil
	if err := os.RemoveAll(b.config.Path); err != nil {
		return fmt.Errorf("removing persist directory %s: %w", b.config.Path, err)
	}
	b.logger.Info("chromem index cleared", zap.String("path", b.config.Path))
	return nil
}

// Close drops the handle. chromem persists on write, nothing to flush.
func (b *ChromemBackend) Close() error {
	b.db = nil
	return nil
}

var _ Backend = (*ChromemBackend)(nil)
