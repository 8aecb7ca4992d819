// Package config provides configuration loading for docuchat.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// ErrConfig indicates a missing or invalid configuration file, section,
// or required credential.
var ErrConfig = errors.New("invalid configuration")

// ProviderNames lists the supported AI providers in fallback order.
var ProviderNames = []string{"openai", "deepseek", "kimi"}

// Config is the root configuration for docuchat.
type Config struct {
	App          AppConfig          `koanf:"app"`
	AIServices   AIServicesConfig   `koanf:"ai_services"`
	VectorStore  VectorStoreConfig  `koanf:"vector_store"`
	Documents    DocumentsConfig    `koanf:"documents"`
	Conversation ConversationConfig `koanf:"conversation"`
	Logging      LoggingConfig      `koanf:"logging"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name    string `koanf:"name"`
	Version string `koanf:"version"`
	Debug   bool   `koanf:"debug"`
}

// AIServicesConfig holds the per-provider configurations.
type AIServicesConfig struct {
	OpenAI   ServiceConfig `koanf:"openai"`
	DeepSeek ServiceConfig `koanf:"deepseek"`
	Kimi     ServiceConfig `koanf:"kimi"`
}

// ServiceConfig describes one chat-completion provider.
type ServiceConfig struct {
	Enabled     bool     `koanf:"enabled"`
	APIKey      Secret   `koanf:"api_key"`
	BaseURL     string   `koanf:"base_url"`
	Model       string   `koanf:"model"`
	Temperature float64  `koanf:"temperature"`
	MaxTokens   int      `koanf:"max_tokens"`
	Timeout     Duration `koanf:"timeout"`
	MaxRetries  int      `koanf:"max_retries"`
}

// VectorStoreConfig holds vector index settings.
type VectorStoreConfig struct {
	// Type selects the backend: "chromem" (embedded) or "qdrant" (external).
	Type                string  `koanf:"type"`
	PersistDirectory    string  `koanf:"persist_directory"`
	IndexName           string  `koanf:"index_name"`
	SimilarityThreshold float64 `koanf:"similarity_threshold"`
	EmbeddingBaseURL    string  `koanf:"embedding_base_url"`

	Qdrant QdrantConfig `koanf:"qdrant"`
}

// QdrantConfig holds connection settings for the qdrant backend.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	UseTLS     bool   `koanf:"use_tls"`
	VectorSize int    `koanf:"vector_size"`
}

// DocumentsConfig holds document processing settings.
type DocumentsConfig struct {
	// MaxFileSize is the upload limit in megabytes.
	MaxFileSize    int      `koanf:"max_file_size"`
	ChunkSize      int      `koanf:"chunk_size"`
	ChunkOverlap   int      `koanf:"chunk_overlap"`
	MaxTokens      int      `koanf:"max_tokens"`
	SupportedTypes []string `koanf:"supported_types"`
	EmbeddingModel string   `koanf:"embedding_model"`
}

// ConversationConfig holds conversation history settings.
type ConversationConfig struct {
	// MaxHistory is the cap in exchanges (a user/assistant pair each).
	MaxHistory             int  `koanf:"max_history"`
	ContextWindow          int  `koanf:"context_window"`
	IncludeDocumentContext bool `koanf:"include_document_context"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	File   string `koanf:"file"`
	// MaxSize is the rotation threshold in megabytes.
	MaxSize     int `koanf:"max_size"`
	BackupCount int `koanf:"backup_count"`
}

// applyDefaults sets default values for configuration fields absent from
// the loaded file. exists reports whether a dotted key was present, so an
// explicit zero (similarity_threshold: 0) or false
// (include_document_context: false) survives defaulting.
func applyDefaults(cfg *Config, exists func(string) bool) {
	if cfg.App.Name == "" {
		cfg.App.Name = "Document Chat Assistant"
	}
	if cfg.App.Version == "" {
		cfg.App.Version = "2.0.0"
	}

	applyServiceDefaults(&cfg.AIServices.OpenAI, "gpt-3.5-turbo", "")
	applyServiceDefaults(&cfg.AIServices.DeepSeek, "deepseek-chat", "https://api.deepseek.com/v1")
	applyServiceDefaults(&cfg.AIServices.Kimi, "moonshot-v1-8k", "https://api.moonshot.cn/v1")

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "chromem"
	}
	if cfg.VectorStore.PersistDirectory == "" {
		cfg.VectorStore.PersistDirectory = "./vector_store"
	}
	if cfg.VectorStore.IndexName == "" {
		cfg.VectorStore.IndexName = "documents"
	}
	if !exists("vector_store.similarity_threshold") {
		cfg.VectorStore.SimilarityThreshold = 0.7
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}
	if cfg.VectorStore.Qdrant.VectorSize == 0 {
		cfg.VectorStore.Qdrant.VectorSize = 1536 // text-embedding-3-small dimensions
	}

	if cfg.Documents.MaxFileSize == 0 {
		cfg.Documents.MaxFileSize = 10
	}
	if cfg.Documents.ChunkSize == 0 {
		cfg.Documents.ChunkSize = 1000
	}
	if cfg.Documents.ChunkOverlap == 0 {
		cfg.Documents.ChunkOverlap = 200
	}
	if cfg.Documents.MaxTokens == 0 {
		cfg.Documents.MaxTokens = 4000
	}
	if len(cfg.Documents.SupportedTypes) == 0 {
		cfg.Documents.SupportedTypes = []string{"pdf", "docx", "doc"}
	}
	if cfg.Documents.EmbeddingModel == "" {
		cfg.Documents.EmbeddingModel = "text-embedding-3-small"
	}

	if cfg.Conversation.MaxHistory == 0 {
		cfg.Conversation.MaxHistory = 20
	}
	if cfg.Conversation.ContextWindow == 0 {
		cfg.Conversation.ContextWindow = 4000
	}
	if !exists("conversation.include_document_context") {
		cfg.Conversation.IncludeDocumentContext = true
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.Logging.MaxSize == 0 {
		cfg.Logging.MaxSize = 10
	}
	if cfg.Logging.BackupCount == 0 {
		cfg.Logging.BackupCount = 5
	}
}

func applyServiceDefaults(svc *ServiceConfig, model, baseURL string) {
	if svc.Model == "" {
		svc.Model = model
	}
	if svc.BaseURL == "" {
		svc.BaseURL = baseURL
	}
	if svc.Temperature == 0 {
		svc.Temperature = 0.7
	}
	if svc.MaxTokens == 0 {
		svc.MaxTokens = 4000
	}
	if svc.Timeout == 0 {
		svc.Timeout = Duration(30 * time.Second)
	}
	if svc.MaxRetries == 0 {
		svc.MaxRetries = 3
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Documents.ChunkSize <= 0 {
		return fmt.Errorf("%w: documents.chunk_size must be positive, got %d", ErrConfig, c.Documents.ChunkSize)
	}
	if c.Documents.ChunkOverlap < 0 {
		return fmt.Errorf("%w: documents.chunk_overlap cannot be negative, got %d", ErrConfig, c.Documents.ChunkOverlap)
	}
	// Overlap >= size would make splitting never advance.
	if c.Documents.ChunkOverlap >= c.Documents.ChunkSize {
		return fmt.Errorf("%w: documents.chunk_overlap (%d) must be less than documents.chunk_size (%d)",
			ErrConfig, c.Documents.ChunkOverlap, c.Documents.ChunkSize)
	}
	if c.Documents.MaxFileSize <= 0 {
		return fmt.Errorf("%w: documents.max_file_size must be positive, got %d", ErrConfig, c.Documents.MaxFileSize)
	}
	if len(c.Documents.SupportedTypes) == 0 {
		return fmt.Errorf("%w: documents.supported_types cannot be empty", ErrConfig)
	}
	if c.VectorStore.Type != "chromem" && c.VectorStore.Type != "qdrant" {
		return fmt.Errorf("%w: vector_store.type must be chromem or qdrant, got %q", ErrConfig, c.VectorStore.Type)
	}
	if c.VectorStore.SimilarityThreshold < 0 || c.VectorStore.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: vector_store.similarity_threshold must be in [0,1], got %g",
			ErrConfig, c.VectorStore.SimilarityThreshold)
	}
	if c.Conversation.MaxHistory <= 0 {
		return fmt.Errorf("%w: conversation.max_history must be positive, got %d", ErrConfig, c.Conversation.MaxHistory)
	}
	if c.Conversation.ContextWindow <= 0 {
		return fmt.Errorf("%w: conversation.context_window must be positive, got %d", ErrConfig, c.Conversation.ContextWindow)
	}
	return nil
}

// AIService returns the configuration for a named provider.
// Returns ErrConfig if the provider is unknown or not enabled.
func (c *Config) AIService(name string) (ServiceConfig, error) {
	svc, ok := c.serviceByName(name)
	if !ok {
		return ServiceConfig{}, fmt.Errorf("%w: unknown AI service %q", ErrConfig, name)
	}
	if !svc.Enabled {
		return ServiceConfig{}, fmt.Errorf("%w: AI service %q is not enabled", ErrConfig, name)
	}
	// Fall back to the environment if the key is absent from the file.
	if !svc.APIKey.IsSet() {
		if key := os.Getenv(strings.ToUpper(name) + "_API_KEY"); key != "" {
			svc.APIKey = Secret(key)
		}
	}
	return svc, nil
}

// EnabledServices returns the names of all enabled providers in fallback order.
func (c *Config) EnabledServices() []string {
	var names []string
	for _, name := range ProviderNames {
		if svc, ok := c.serviceByName(name); ok && svc.Enabled {
			names = append(names, name)
		}
	}
	return names
}

func (c *Config) serviceByName(name string) (ServiceConfig, bool) {
	switch name {
	case "openai":
		return c.AIServices.OpenAI, true
	case "deepseek":
		return c.AIServices.DeepSeek, true
	case "kimi":
		return c.AIServices.Kimi, true
	default:
		return ServiceConfig{}, false
	}
}

// ValidateAPIKeys verifies that every enabled provider has a credential,
// either in the config file or in the environment.
func (c *Config) ValidateAPIKeys() error {
	var missing []string
	for _, name := range ProviderNames {
		svc, _ := c.serviceByName(name)
		if !svc.Enabled {
			continue
		}
		envKey := strings.ToUpper(name) + "_API_KEY"
		if !svc.APIKey.IsSet() && os.Getenv(envKey) == "" {
			missing = append(missing, fmt.Sprintf("%s (for %s)", envKey, name))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: missing required API keys: %s", ErrConfig, strings.Join(missing, ", "))
	}
	return nil
}
