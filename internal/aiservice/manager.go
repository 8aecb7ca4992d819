// Package aiservice manages chat completion clients for the configured
// OpenAI-compatible providers and builds retrieval-augmented chains.
package aiservice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docuchat/internal/config"
)

var (
	// ErrProvider indicates a provider-side failure: construction,
	// transport, or an empty response.
	ErrProvider = errors.New("ai provider error")

	// ErrProviderNotEnabled indicates a request for a provider that is
	// unknown or disabled in the configuration.
	ErrProviderNotEnabled = errors.New("ai provider not enabled")
)

// CallOption overrides a generation parameter for a single request.
// Cached clients are never mutated.
type CallOption func(*callSettings)

type callSettings struct {
	temperature *float64
	maxTokens   *int
}

// WithTemperature overrides the provider's configured temperature for
// one request.
func WithTemperature(t float64) CallOption {
	return func(s *callSettings) { s.temperature = &t }
}

// WithMaxTokens overrides the provider's configured max_tokens for one
// request.
func WithMaxTokens(n int) CallOption {
	return func(s *callSettings) { s.maxTokens = &n }
}

// Result carries an asynchronous completion outcome.
type Result struct {
	Content string
	Err     error
}

type cachedClient struct {
	hash string
	llm  llms.Model
}

// Manager hands out chat clients for the enabled providers. Clients
// are memoized per provider and keyed by a hash of the provider's
// configuration, so a config change transparently rebuilds the client.
type Manager struct {
	cfg    *config.Config
	logger *zap.Logger

	mu      sync.Mutex
	clients map[string]cachedClient

	// newClient is swappable in tests.
	newClient func(svc config.ServiceConfig) (llms.Model, error)
}

// NewManager wires a manager over the enabled providers in cfg.
func NewManager(cfg *config.Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:       cfg,
		logger:    logger,
		clients:   make(map[string]cachedClient),
		newClient: newOpenAIClient,
	}
}

func newOpenAIClient(svc config.ServiceConfig) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithModel(svc.Model),
		openai.WithToken(svc.APIKey.Value()),
	}
	if svc.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(svc.BaseURL))
	}
	return openai.New(opts...)
}

func configHash(svc config.ServiceConfig) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%v|%s|%s|%s|%g|%d|%s|%d",
		svc.Enabled, svc.APIKey.Value(), svc.BaseURL, svc.Model,
		svc.Temperature, svc.MaxTokens, time.Duration(svc.Timeout), svc.MaxRetries)))
	return hex.EncodeToString(sum[:])
}

// client returns the memoized client for a provider, rebuilding it when
// the provider's configuration has changed since construction.
func (m *Manager) client(name string) (llms.Model, config.ServiceConfig, error) {
	svc, err := m.cfg.AIService(name)
	if err != nil {
		return nil, config.ServiceConfig{}, fmt.Errorf("%w: %q", ErrProviderNotEnabled, name)
	}

	hash := configHash(svc)
	m.mu.Lock()
	defer m.mu.Unlock()
	if cached, ok := m.clients[name]; ok && cached.hash == hash {
		return cached.llm, svc, nil
	}

	llm, err := m.newClient(svc)
	if err != nil {
		return nil, config.ServiceConfig{}, fmt.Errorf("%w: %s: %v", ErrProvider, name, err)
	}
	m.clients[name] = cachedClient{hash: hash, llm: llm}
	m.logger.Debug("built provider client", zap.String("provider", name), zap.String("model", svc.Model))
	return llm, svc, nil
}

// Completion sends messages to a provider and returns the first
// choice. Per-request options are merged over the provider's configured
// generation parameters for this call only.
func (m *Manager) Completion(ctx context.Context, provider string, messages []llms.MessageContent, opts ...CallOption) (string, error) {
	llm, svc, err := m.client(provider)
	if err != nil {
		return "", err
	}

	settings := callSettings{}
	for _, opt := range opts {
		opt(&settings)
	}
	temperature := svc.Temperature
	if settings.temperature != nil {
		temperature = *settings.temperature
	}
	maxTokens := svc.MaxTokens
	if settings.maxTokens != nil {
		maxTokens = *settings.maxTokens
	}
	callOpts := []llms.CallOption{
		llms.WithTemperature(temperature),
		llms.WithMaxTokens(maxTokens),
	}

	if timeout := time.Duration(svc.Timeout); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	attempts := svc.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := llm.GenerateContent(ctx, messages, callOpts...)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			m.logger.Warn("completion attempt failed",
				zap.String("provider", provider),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Duration(attempt+1) * 500 * time.Millisecond):
			}
			continue
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("%w: %s returned no choices", ErrProvider, provider)
		}
		return resp.Choices[0].Content, nil
	}
	return "", fmt.Errorf("%w: %s: %v", ErrProvider, provider, lastErr)
}

// CompletionAsync runs Completion in the background and delivers the
// outcome on the returned channel. The channel is buffered, so the
// result is never lost to a slow reader.
func (m *Manager) CompletionAsync(ctx context.Context, provider string, messages []llms.MessageContent, opts ...CallOption) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		content, err := m.Completion(ctx, provider, messages, opts...)
		ch <- Result{Content: content, Err: err}
	}()
	return ch
}

// Available reports, per enabled provider, whether a client can be
// constructed from its current configuration.
func (m *Manager) Available() map[string]bool {
	status := make(map[string]bool)
	for _, name := range m.cfg.EnabledServices() {
		_, _, err := m.client(name)
		status[name] = err == nil
	}
	return status
}

// Fallback returns the next enabled provider after current, in
// round-robin order, whose client constructs. ErrProvider when none do.
func (m *Manager) Fallback(current string) (string, error) {
	names := m.cfg.EnabledServices()
	idx := -1
	for i, name := range names {
		if name == current {
			idx = i
			break
		}
	}
	for i := 1; i <= len(names); i++ {
		next := names[(idx+i+len(names))%len(names)]
		if next == current {
			continue
		}
		if _, _, err := m.client(next); err == nil {
			return next, nil
		}
	}
	return "", fmt.Errorf("%w: no fallback provider available after %q", ErrProvider, current)
}

// Probe sends a trivial completion to verify the provider responds.
func (m *Manager) Probe(ctx context.Context, provider string) bool {
	content, err := m.Completion(ctx, provider, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, "Test"),
	})
	if err != nil {
		m.logger.Warn("provider probe failed", zap.String("provider", provider), zap.Error(err))
		return false
	}
	return content != ""
}

// UpdateService replaces a provider's configuration. The config hash
// changes with it, so the memoized client is rebuilt on next use.
func (m *Manager) UpdateService(name string, svc config.ServiceConfig) error {
	switch name {
	case "openai":
		m.cfg.AIServices.OpenAI = svc
	case "deepseek":
		m.cfg.AIServices.DeepSeek = svc
	case "kimi":
		m.cfg.AIServices.Kimi = svc
	default:
		return fmt.Errorf("%w: %q", ErrProviderNotEnabled, name)
	}
	return nil
}
