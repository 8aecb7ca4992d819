package vectorstore

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docuchat/internal/config"
)

// NewBackend creates a Backend from the vector_store config section.
//
//   - "chromem" (default): embedded store persisting under
//     vector_store.persist_directory
//   - "qdrant": external Qdrant server over gRPC
func NewBackend(cfg config.VectorStoreConfig, embedder Embedder, logger *zap.Logger) (Backend, error) {
	switch cfg.Type {
	case "chromem", "":
		return NewChromemBackend(ChromemConfig{
			Path:       cfg.PersistDirectory,
			Collection: cfg.IndexName,
		}, embedder, logger)

	case "qdrant":
		return NewQdrantBackend(QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			Collection: cfg.IndexName,
			VectorSize: uint64(cfg.Qdrant.VectorSize),
			UseTLS:     cfg.Qdrant.UseTLS,
		}, embedder, logger)

	default:
		return nil, fmt.Errorf("%w: unsupported vector store type %q (supported: chromem, qdrant)", ErrInvalidConfig, cfg.Type)
	}
}
