package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Manager exposes the index lifecycle over a Backend: create, load,
// update, search with a similarity cutoff, clear, stats.
type Manager struct {
	backend Backend
	logger  *zap.Logger

	// threshold drops search results scoring below it. Zero disables
	// the cutoff.
	threshold float32
}

// NewManager wraps a backend with the configured similarity threshold.
func NewManager(backend Backend, threshold float64, logger *zap.Logger) (*Manager, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: backend is required", ErrInvalidConfig)
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: similarity threshold must be in [0,1], got %g", ErrInvalidConfig, threshold)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		backend:   backend,
		logger:    logger,
		threshold: float32(threshold),
	}, nil
}

// Create builds a fresh index from documents, overwriting any prior one.
func (m *Manager) Create(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return ErrEmptyDocuments
	}
	if err := m.backend.Reset(ctx); err != nil {
		return fmt.Errorf("resetting index: %w", err)
	}
	if _, err := m.backend.Add(ctx, docs); err != nil {
		return err
	}
	m.logger.Info("vector index created",
		zap.String("backend", m.backend.Name()),
		zap.Int("documents", len(docs)),
	)
	return nil
}

// Load verifies an existing index is present and readable.
//
// A missing index returns ErrIndexNotFound, the normal empty case.
// A present but unreadable index returns ErrIndexCorrupt. The index is
// never exposed partially loaded.
func (m *Manager) Load(ctx context.Context) error {
	exists, err := m.backend.Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return ErrIndexNotFound
	}
	// Reading the count forces the backend to actually open the index,
	// surfacing corruption now rather than on first use.
	if _, err := m.backend.Count(ctx); err != nil {
		return err
	}
	return nil
}

// Update appends documents to the existing index, creating it first if
// none exists.
func (m *Manager) Update(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return ErrEmptyDocuments
	}
	err := m.Load(ctx)
	if errors.Is(err, ErrIndexNotFound) {
		return m.Create(ctx, docs)
	}
	if err != nil {
		return err
	}
	if _, err := m.backend.Add(ctx, docs); err != nil {
		return err
	}
	m.logger.Info("vector index updated",
		zap.String("backend", m.backend.Name()),
		zap.Int("documents", len(docs)),
	)
	return nil
}

// Search returns up to k chunks ranked by similarity. Results scoring
// below the configured threshold are dropped. Both backends expose
// scores on the plain query path, so a single query suffices.
func (m *Manager) Search(ctx context.Context, query string, k int, filters map[string]string) ([]SearchResult, error) {
	results, err := m.backend.Search(ctx, query, k, filters)
	if err != nil {
		return nil, err
	}
	if m.threshold <= 0 {
		return results, nil
	}
	kept := results[:0]
	for _, r := range results {
		if r.Score >= m.threshold {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

// DocumentMetadata returns the stored metadata for a single chunk ID.
func (m *Manager) DocumentMetadata(ctx context.Context, id string) (map[string]string, error) {
	doc, err := m.backend.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc.Metadata, nil
}

// Clear deletes all persisted artifacts for the configured backend.
func (m *Manager) Clear(ctx context.Context) error {
	if err := m.backend.Reset(ctx); err != nil {
		return err
	}
	m.logger.Info("vector index cleared", zap.String("backend", m.backend.Name()))
	return nil
}

// Stats reports document count and storage size. Backend failures are
// reported in the status rather than as an error.
func (m *Manager) Stats(ctx context.Context) Stats {
	stats := Stats{IndexType: m.backend.Name()}

	exists, err := m.backend.Exists(ctx)
	if err != nil {
		stats.Status = "error"
		stats.Error = err.Error()
		return stats
	}
	if !exists {
		stats.Status = "not_found"
		return stats
	}

	count, err := m.backend.Count(ctx)
	if err != nil {
		stats.Status = "error"
		stats.Error = err.Error()
		return stats
	}
	stats.DocumentCount = count

	if size, err := m.backend.SizeOnDisk(); err == nil {
		stats.IndexSize = size
	}

	stats.Status = "loaded"
	return stats
}

// Close releases backend resources.
func (m *Manager) Close() error {
	return m.backend.Close()
}
