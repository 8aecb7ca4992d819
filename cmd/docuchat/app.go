package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docuchat/internal/aiservice"
	"github.com/fyrsmithlabs/docuchat/internal/config"
	"github.com/fyrsmithlabs/docuchat/internal/conversation"
	"github.com/fyrsmithlabs/docuchat/internal/document"
	"github.com/fyrsmithlabs/docuchat/internal/embeddings"
	"github.com/fyrsmithlabs/docuchat/internal/logging"
	"github.com/fyrsmithlabs/docuchat/internal/vectorstore"
)

// app wires the full pipeline for one CLI invocation.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	proc   *document.Processor
	store  *vectorstore.Manager
	ai     *aiservice.Manager
	conv   *conversation.Manager
}

func newApp() (*app, error) {
	mgr, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg := mgr.Config()

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateAPIKeys(); err != nil {
		logger.Warn("credential check", zap.Error(err))
	}

	embKey := cfg.AIServices.OpenAI.APIKey.Value()
	if embKey == "" {
		embKey = os.Getenv("OPENAI_API_KEY")
	}
	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL: cfg.VectorStore.EmbeddingBaseURL,
		Model:   cfg.Documents.EmbeddingModel,
		APIKey:  embKey,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding service: %w", err)
	}

	backend, err := vectorstore.NewBackend(cfg.VectorStore, embedder, logger.Named("vectorstore"))
	if err != nil {
		return nil, err
	}
	store, err := vectorstore.NewManager(backend, cfg.VectorStore.SimilarityThreshold, logger.Named("vectorstore"))
	if err != nil {
		return nil, err
	}

	proc, err := document.NewProcessor(cfg.Documents, logger.Named("document"))
	if err != nil {
		return nil, err
	}

	conv, err := conversation.LoadSession(sessionPath, cfg.Conversation, proc.EstimateTokens)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		proc:   proc,
		store:  store,
		ai:     aiservice.NewManager(cfg, logger.Named("aiservice")),
		conv:   conv,
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing vector store", zap.Error(err))
	}
	_ = a.logger.Sync()
}
