// Package vectorstore persists document chunks as embeddings and serves
// nearest-neighbor retrieval over two interchangeable backends.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrIndexNotFound is returned by Load when no index has been created
	// yet. This is the normal empty-result case, not a failure.
	ErrIndexNotFound = errors.New("vector index not found")

	// ErrIndexCorrupt is returned when an existing index cannot be read.
	ErrIndexCorrupt = errors.New("vector index corrupt or unreadable")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrDocumentNotFound indicates no stored document has the given ID.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrConnectionFailed indicates the qdrant backend is unreachable.
	ErrConnectionFailed = errors.New("failed to connect to qdrant")
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Backend is the storage engine behind the Manager.
//
// Implementations:
//   - ChromemBackend: embedded chromem-go, persists to a local directory
//   - QdrantBackend: external Qdrant server over gRPC
type Backend interface {
	// Name returns the backend type name ("chromem" or "qdrant").
	Name() string

	// Exists reports whether a persisted index is present. It never
	// returns ErrIndexNotFound; absence is the false return.
	Exists(ctx context.Context) (bool, error)

	// Add embeds and stores documents, returning their IDs.
	Add(ctx context.Context, docs []Document) ([]string, error)

	// Search returns up to k results ranked by similarity, scores
	// included. Filters match document metadata exactly.
	Search(ctx context.Context, query string, k int, filters map[string]string) ([]SearchResult, error)

	// Get returns a stored document by chunk ID, or ErrDocumentNotFound.
	Get(ctx context.Context, id string) (Document, error)

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)

	// SizeOnDisk returns the local storage footprint in bytes, or 0 for
	// backends whose durability is server-side.
	SizeOnDisk() (int64, error)

	// Reset deletes all persisted artifacts for this index.
	Reset(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
