package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testYAML = `
app:
  name: Test Assistant
  debug: true
ai_services:
  openai:
    enabled: true
    model: gpt-4o-mini
    temperature: 0.3
  deepseek:
    enabled: true
  kimi:
    enabled: false
vector_store:
  type: chromem
  persist_directory: ./vs
documents:
  chunk_size: 500
  chunk_overlap: 100
conversation:
  max_history: 10
logging:
  level: debug
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	return path
}

func clearOverrideEnv(t *testing.T) {
	t.Helper()
	for envKey := range envOverrides {
		t.Setenv(envKey, "")
		os.Unsetenv(envKey)
	}
}

func TestLoad(t *testing.T) {
	clearOverrideEnv(t)

	tests := []struct {
		name     string
		yaml     string
		env      map[string]string
		wantErr  bool
		validate func(*testing.T, *Config)
	}{
		{
			name: "file values and defaults",
			yaml: testYAML,
			validate: func(t *testing.T, cfg *Config) {
				if cfg.App.Name != "Test Assistant" {
					t.Errorf("App.Name = %q, want Test Assistant", cfg.App.Name)
				}
				if cfg.AIServices.OpenAI.Model != "gpt-4o-mini" {
					t.Errorf("OpenAI.Model = %q, want gpt-4o-mini", cfg.AIServices.OpenAI.Model)
				}
				if cfg.AIServices.DeepSeek.Model != "deepseek-chat" {
					t.Errorf("DeepSeek.Model = %q, want default deepseek-chat", cfg.AIServices.DeepSeek.Model)
				}
				if cfg.AIServices.Kimi.BaseURL != "https://api.moonshot.cn/v1" {
					t.Errorf("Kimi.BaseURL = %q, want moonshot default", cfg.AIServices.Kimi.BaseURL)
				}
				if cfg.AIServices.OpenAI.Timeout.Duration() != 30*time.Second {
					t.Errorf("OpenAI.Timeout = %v, want 30s", cfg.AIServices.OpenAI.Timeout.Duration())
				}
				if cfg.Documents.ChunkSize != 500 {
					t.Errorf("Documents.ChunkSize = %d, want 500", cfg.Documents.ChunkSize)
				}
				if cfg.Documents.MaxTokens != 4000 {
					t.Errorf("Documents.MaxTokens = %d, want default 4000", cfg.Documents.MaxTokens)
				}
				if cfg.VectorStore.SimilarityThreshold != 0.7 {
					t.Errorf("SimilarityThreshold = %g, want default 0.7", cfg.VectorStore.SimilarityThreshold)
				}
				if cfg.Conversation.MaxHistory != 10 {
					t.Errorf("Conversation.MaxHistory = %d, want 10", cfg.Conversation.MaxHistory)
				}
				if !cfg.Conversation.IncludeDocumentContext {
					t.Error("IncludeDocumentContext should default to true when absent")
				}
			},
		},
		{
			name: "explicit zero threshold preserved",
			yaml: strings.Replace(testYAML, "persist_directory: ./vs",
				"persist_directory: ./vs\n  similarity_threshold: 0", 1),
			validate: func(t *testing.T, cfg *Config) {
				if cfg.VectorStore.SimilarityThreshold != 0 {
					t.Errorf("SimilarityThreshold = %g, want explicit 0", cfg.VectorStore.SimilarityThreshold)
				}
			},
		},
		{
			name: "source tracking opt-out honored",
			yaml: strings.Replace(testYAML, "max_history: 10",
				"max_history: 10\n  include_document_context: false", 1),
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Conversation.IncludeDocumentContext {
					t.Error("IncludeDocumentContext = true, want explicit false")
				}
			},
		},
		{
			name: "environment overrides",
			yaml: testYAML,
			env: map[string]string{
				"VECTOR_DB_TYPE":    "qdrant",
				"VECTOR_STORE_PATH": "/tmp/idx",
				"CHUNK_SIZE":        "800",
				"CHUNK_OVERLAP":     "80",
				"OPENAI_API_KEY":    "sk-test",
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.VectorStore.Type != "qdrant" {
					t.Errorf("VectorStore.Type = %q, want qdrant", cfg.VectorStore.Type)
				}
				if cfg.VectorStore.PersistDirectory != "/tmp/idx" {
					t.Errorf("PersistDirectory = %q, want /tmp/idx", cfg.VectorStore.PersistDirectory)
				}
				if cfg.Documents.ChunkSize != 800 {
					t.Errorf("ChunkSize = %d, want 800", cfg.Documents.ChunkSize)
				}
				if cfg.Documents.ChunkOverlap != 80 {
					t.Errorf("ChunkOverlap = %d, want 80", cfg.Documents.ChunkOverlap)
				}
				if cfg.AIServices.OpenAI.APIKey.Value() != "sk-test" {
					t.Error("OpenAI.APIKey not taken from environment")
				}
			},
		},
		{
			name:    "overlap not below size rejected",
			yaml:    strings.Replace(testYAML, "chunk_overlap: 100", "chunk_overlap: 500", 1),
			wantErr: true,
		},
		{
			name:    "unsupported backend rejected",
			yaml:    strings.Replace(testYAML, "type: chromem", "type: faiss", 1),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearOverrideEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			mgr, err := Load(writeTestConfig(t, tt.yaml))
			if tt.wantErr {
				if err == nil {
					t.Fatal("Load() succeeded, want error")
				}
				if !errors.Is(err, ErrConfig) {
					t.Errorf("Load() error = %v, want ErrConfig", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			tt.validate(t, mgr.Config())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearOverrideEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, ErrConfig) {
		t.Errorf("Load() error = %v, want ErrConfig", err)
	}
}

func TestGet(t *testing.T) {
	clearOverrideEnv(t)
	mgr, err := Load(writeTestConfig(t, testYAML))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if got := mgr.GetString("app.name", ""); got != "Test Assistant" {
		t.Errorf("GetString(app.name) = %q", got)
	}
	if got := mgr.GetString("ai_services.openai.model", ""); got != "gpt-4o-mini" {
		t.Errorf("GetString(ai_services.openai.model) = %q", got)
	}
	if got := mgr.Get("no.such.key", "fallback"); got != "fallback" {
		t.Errorf("Get(no.such.key) = %v, want fallback", got)
	}
}

func TestUpdate(t *testing.T) {
	clearOverrideEnv(t)
	path := writeTestConfig(t, testYAML)
	mgr, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if err := mgr.Update(map[string]interface{}{"documents.chunk_size": 750}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if mgr.Config().Documents.ChunkSize != 750 {
		t.Errorf("ChunkSize after update = %d, want 750", mgr.Config().Documents.ChunkSize)
	}

	// Update persists: a fresh load sees the new value.
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload error: %v", err)
	}
	if reloaded.Config().Documents.ChunkSize != 750 {
		t.Errorf("ChunkSize after reload = %d, want 750", reloaded.Config().Documents.ChunkSize)
	}

	// Invalid updates are rejected.
	if err := mgr.Update(map[string]interface{}{"documents.chunk_overlap": 5000}); err == nil {
		t.Error("Update() with overlap >= size succeeded, want error")
	}
}

func TestAIService(t *testing.T) {
	clearOverrideEnv(t)
	mgr, err := Load(writeTestConfig(t, testYAML))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	cfg := mgr.Config()

	if _, err := cfg.AIService("openai"); err != nil {
		t.Errorf("AIService(openai) error: %v", err)
	}
	if _, err := cfg.AIService("kimi"); !errors.Is(err, ErrConfig) {
		t.Errorf("AIService(kimi) error = %v, want ErrConfig (not enabled)", err)
	}
	if _, err := cfg.AIService("claude"); !errors.Is(err, ErrConfig) {
		t.Errorf("AIService(claude) error = %v, want ErrConfig (unknown)", err)
	}

	t.Setenv("DEEPSEEK_API_KEY", "ds-key")
	svc, err := cfg.AIService("deepseek")
	if err != nil {
		t.Fatalf("AIService(deepseek) error: %v", err)
	}
	if svc.APIKey.Value() != "ds-key" {
		t.Error("AIService did not pick up key from environment")
	}
}

func TestValidateAPIKeys(t *testing.T) {
	clearOverrideEnv(t)
	mgr, err := Load(writeTestConfig(t, testYAML))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	err = mgr.Config().ValidateAPIKeys()
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("ValidateAPIKeys() error = %v, want ErrConfig", err)
	}
	// openai and deepseek are enabled without keys; kimi is disabled.
	if !strings.Contains(err.Error(), "OPENAI_API_KEY") || !strings.Contains(err.Error(), "DEEPSEEK_API_KEY") {
		t.Errorf("ValidateAPIKeys() error should name missing keys, got %v", err)
	}
	if strings.Contains(err.Error(), "KIMI_API_KEY") {
		t.Errorf("ValidateAPIKeys() should skip disabled providers, got %v", err)
	}

	t.Setenv("OPENAI_API_KEY", "a")
	t.Setenv("DEEPSEEK_API_KEY", "b")
	if err := mgr.Config().ValidateAPIKeys(); err != nil {
		t.Errorf("ValidateAPIKeys() with keys set error: %v", err)
	}
}

func TestEnabledServices(t *testing.T) {
	clearOverrideEnv(t)
	mgr, err := Load(writeTestConfig(t, testYAML))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	got := mgr.Config().EnabledServices()
	if len(got) != 2 || got[0] != "openai" || got[1] != "deepseek" {
		t.Errorf("EnabledServices() = %v, want [openai deepseek]", got)
	}
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("super-secret")
	if s.String() != "[REDACTED]" {
		t.Errorf("Secret.String() = %q, want [REDACTED]", s.String())
	}
	if s.Value() != "super-secret" {
		t.Errorf("Secret.Value() = %q", s.Value())
	}
	if Secret("").String() != "" {
		t.Error("empty Secret should stringify empty")
	}
}
