package vectorstore

// Document represents a chunk to be stored in the vector index.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// Content is the text content that gets embedded.
	Content string

	// Metadata carries chunk provenance: source, hash, type, chunk
	// index, total chunks, size, created_at.
	Metadata map[string]string
}

// SearchResult is one ranked hit from a similarity search.
type SearchResult struct {
	// ID is the document identifier.
	ID string

	// Content is the document text content.
	Content string

	// Score is the cosine similarity (higher is more similar).
	Score float32

	// Metadata contains the document metadata.
	Metadata map[string]string
}

// Stats summarizes the state of the persisted index.
type Stats struct {
	// Status is "loaded", "not_found", or "error".
	Status string `json:"status"`

	// DocumentCount is the number of indexed chunks.
	DocumentCount int `json:"document_count"`

	// IndexSize is the local storage footprint in bytes (0 for qdrant).
	IndexSize int64 `json:"index_size,omitempty"`

	// IndexType is the backend name.
	IndexType string `json:"index_type"`

	// Error holds the failure message when Status is "error".
	Error string `json:"error,omitempty"`
}
