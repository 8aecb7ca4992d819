package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	yaml "gopkg.in/yaml.v3"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// envOverrides maps environment variables onto dotted config keys.
// Only variables in this table override file values.
var envOverrides = map[string]string{
	"OPENAI_API_KEY":    "ai_services.openai.api_key",
	"DEEPSEEK_API_KEY":  "ai_services.deepseek.api_key",
	"KIMI_API_KEY":      "ai_services.kimi.api_key",
	"VECTOR_DB_TYPE":    "vector_store.type",
	"VECTOR_STORE_PATH": "vector_store.persist_directory",
	"CHUNK_SIZE":        "documents.chunk_size",
	"CHUNK_OVERLAP":     "documents.chunk_overlap",
	"MAX_FILE_SIZE":     "documents.max_file_size",
}

// Manager loads configuration and serves dotted-path lookups.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (OPENAI_API_KEY, VECTOR_DB_TYPE, ...)
//  2. YAML config file
//  3. Hardcoded defaults
type Manager struct {
	path string
	k    *koanf.Koanf
	cfg  *Config
}

// Load reads the YAML file at path and applies environment overrides.
//
// A .env file in the working directory is loaded first, matching the
// original deployment layout. Missing config file is an error; missing
// .env is not.
func Load(path string) (*Manager, error) {
	// Best-effort .env bootstrap; absence is normal.
	_ = godotenv.Load()

	if path == "" {
		path = "config.yaml"
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading config file %s: %v", ErrConfig, path, err)
	}
	if len(content) > maxConfigFileSize {
		return nil, fmt.Errorf("%w: config file too large: %d bytes (max %d)", ErrConfig, len(content), maxConfigFileSize)
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(content), koanfyaml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: parsing YAML config %s: %v", ErrConfig, path, err)
	}

	// Only variables listed in envOverrides are merged; everything else
	// in the environment is ignored. Empty values never override.
	if err := k.Load(env.Provider("", ".", func(name string) string {
		if os.Getenv(name) == "" {
			return ""
		}
		return envOverrides[name]
	}), nil); err != nil {
		return nil, fmt.Errorf("%w: applying environment overrides: %v", ErrConfig, err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshaling config: %v", ErrConfig, err)
	}

	applyDefaults(&cfg, k.Exists)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Manager{path: path, k: k, cfg: &cfg}, nil
}

// Config returns the typed configuration.
func (m *Manager) Config() *Config {
	return m.cfg
}

// removePath deletes a nested key from a raw config map.
func removePath(m map[string]interface{}, path []string) {
	for i := 0; i < len(path)-1; i++ {
		next, ok := m[path[i]].(map[string]interface{})
		if !ok {
			return
		}
		m = next
	}
	delete(m, path[len(path)-1])
}

// Get returns the value at a dotted path, or def if the key is absent.
func (m *Manager) Get(key string, def interface{}) interface{} {
	if !m.k.Exists(key) {
		return def
	}
	return m.k.Get(key)
}

// GetString returns the string value at a dotted path, or def if absent.
func (m *Manager) GetString(key, def string) string {
	if !m.k.Exists(key) {
		return def
	}
	return m.k.String(key)
}

// Update applies dotted-path updates, revalidates, and writes the merged
// configuration back to the YAML file. Secrets injected from the
// environment are not persisted.
func (m *Manager) Update(updates map[string]interface{}) error {
	for key, value := range updates {
		if err := m.k.Set(key, value); err != nil {
			return fmt.Errorf("%w: setting %s: %v", ErrConfig, key, err)
		}
	}

	var cfg Config
	if err := m.k.Unmarshal("", &cfg); err != nil {
		return fmt.Errorf("%w: unmarshaling updated config: %v", ErrConfig, err)
	}
	applyDefaults(&cfg, m.k.Exists)
	if err := cfg.Validate(); err != nil {
		return err
	}

	raw := m.k.Raw()
	for envKey, cfgKey := range envOverrides {
		if !strings.HasSuffix(cfgKey, ".api_key") {
			continue
		}
		if v := os.Getenv(envKey); v != "" && m.k.String(cfgKey) == v {
			removePath(raw, strings.Split(cfgKey, "."))
		}
	}
	out, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(m.path, out, 0o600); err != nil {
		return fmt.Errorf("writing config file %s: %w", m.path, err)
	}

	m.cfg = &cfg
	return nil
}
