package aiservice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docuchat/internal/config"
	"github.com/fyrsmithlabs/docuchat/internal/vectorstore"
)

// fakeLLM satisfies llms.Model and records every call's merged
// CallOptions so tests can observe per-request parameter handling.
type fakeLLM struct {
	mu           sync.Mutex
	reply        string
	failuresLeft int
	calls        [][]llms.MessageContent
	opts         []llms.CallOptions
}

func (f *fakeLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var merged llms.CallOptions
	for _, opt := range options {
		opt(&merged)
	}
	f.calls = append(f.calls, messages)
	f.opts = append(f.opts, merged)
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return nil, errors.New("upstream unavailable")
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := f.GenerateContent(ctx, []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}, options...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func testProviderConfig() *config.Config {
	cfg := &config.Config{}
	svc := config.ServiceConfig{
		Enabled:     true,
		APIKey:      config.Secret("sk-test"),
		Temperature: 0.7,
		MaxTokens:   4000,
		MaxRetries:  1,
	}
	openaiSvc := svc
	openaiSvc.Model = "gpt-3.5-turbo"
	deepseekSvc := svc
	deepseekSvc.Model = "deepseek-chat"
	deepseekSvc.BaseURL = "https://api.deepseek.com/v1"
	kimiSvc := svc
	kimiSvc.Model = "moonshot-v1-8k"
	kimiSvc.BaseURL = "https://api.moonshot.cn/v1"
	cfg.AIServices.OpenAI = openaiSvc
	cfg.AIServices.DeepSeek = deepseekSvc
	cfg.AIServices.Kimi = kimiSvc
	cfg.Conversation.MaxHistory = 2
	return cfg
}

// newFakeManager wires a manager whose client factory hands out fakes,
// one per provider, tracking construction counts.
func newFakeManager(cfg *config.Config) (*Manager, map[string]*fakeLLM, *int) {
	m := NewManager(cfg, zap.NewNop())
	fakes := make(map[string]*fakeLLM)
	constructions := 0
	m.newClient = func(svc config.ServiceConfig) (llms.Model, error) {
		constructions++
		f, ok := fakes[svc.Model]
		if !ok {
			f = &fakeLLM{reply: "answer from " + svc.Model}
			fakes[svc.Model] = f
		}
		return f, nil
	}
	return m, fakes, &constructions
}

func userMessage(text string) []llms.MessageContent {
	return []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, text)}
}

func TestCompletionNotEnabled(t *testing.T) {
	cfg := testProviderConfig()
	cfg.AIServices.DeepSeek.Enabled = false
	m, _, _ := newFakeManager(cfg)

	_, err := m.Completion(context.Background(), "deepseek", userMessage("hi"))
	require.ErrorIs(t, err, ErrProviderNotEnabled)
	assert.Contains(t, err.Error(), "deepseek")

	_, err = m.Completion(context.Background(), "mistral", userMessage("hi"))
	require.ErrorIs(t, err, ErrProviderNotEnabled)
	assert.Contains(t, err.Error(), "mistral")
}

func TestCompletionUsesConfiguredParameters(t *testing.T) {
	m, fakes, _ := newFakeManager(testProviderConfig())

	content, err := m.Completion(context.Background(), "openai", userMessage("hi"))
	require.NoError(t, err)
	assert.Equal(t, "answer from gpt-3.5-turbo", content)

	f := fakes["gpt-3.5-turbo"]
	require.Len(t, f.opts, 1)
	assert.InDelta(t, 0.7, f.opts[0].Temperature, 1e-9)
	assert.Equal(t, 4000, f.opts[0].MaxTokens)
}

func TestCompletionOverrideIsNotSticky(t *testing.T) {
	m, fakes, _ := newFakeManager(testProviderConfig())
	ctx := context.Background()

	_, err := m.Completion(ctx, "openai", userMessage("hi"), WithTemperature(0.1), WithMaxTokens(100))
	require.NoError(t, err)
	_, err = m.Completion(ctx, "openai", userMessage("hi again"))
	require.NoError(t, err)

	f := fakes["gpt-3.5-turbo"]
	require.Len(t, f.opts, 2)
	assert.InDelta(t, 0.1, f.opts[0].Temperature, 1e-9)
	assert.Equal(t, 100, f.opts[0].MaxTokens)
	// The override must not leak into the next request.
	assert.InDelta(t, 0.7, f.opts[1].Temperature, 1e-9)
	assert.Equal(t, 4000, f.opts[1].MaxTokens)
}

func TestClientCacheInvalidation(t *testing.T) {
	cfg := testProviderConfig()
	m, _, constructions := newFakeManager(cfg)
	ctx := context.Background()

	_, err := m.Completion(ctx, "openai", userMessage("one"))
	require.NoError(t, err)
	_, err = m.Completion(ctx, "openai", userMessage("two"))
	require.NoError(t, err)
	assert.Equal(t, 1, *constructions, "unchanged config must reuse the cached client")

	updated := cfg.AIServices.OpenAI
	updated.Model = "gpt-4"
	require.NoError(t, m.UpdateService("openai", updated))

	_, err = m.Completion(ctx, "openai", userMessage("three"))
	require.NoError(t, err)
	assert.Equal(t, 2, *constructions, "config change must rebuild the client")
}

func TestUpdateServiceUnknown(t *testing.T) {
	m, _, _ := newFakeManager(testProviderConfig())
	err := m.UpdateService("mistral", config.ServiceConfig{})
	assert.ErrorIs(t, err, ErrProviderNotEnabled)
}

func TestCompletionRetries(t *testing.T) {
	cfg := testProviderConfig()
	cfg.AIServices.OpenAI.MaxRetries = 3
	m, _, _ := newFakeManager(cfg)
	m.newClient = func(svc config.ServiceConfig) (llms.Model, error) {
		return &fakeLLM{reply: "recovered", failuresLeft: 2}, nil
	}

	content, err := m.Completion(context.Background(), "openai", userMessage("hi"))
	require.NoError(t, err)
	assert.Equal(t, "recovered", content)
}

func TestCompletionExhaustedRetries(t *testing.T) {
	m, _, _ := newFakeManager(testProviderConfig())
	m.newClient = func(svc config.ServiceConfig) (llms.Model, error) {
		return &fakeLLM{failuresLeft: 10}, nil
	}

	_, err := m.Completion(context.Background(), "openai", userMessage("hi"))
	require.ErrorIs(t, err, ErrProvider)
	assert.Contains(t, err.Error(), "upstream unavailable")
}

func TestCompletionAsync(t *testing.T) {
	m, _, _ := newFakeManager(testProviderConfig())

	res := <-m.CompletionAsync(context.Background(), "openai", userMessage("hi"))
	require.NoError(t, res.Err)
	assert.Equal(t, "answer from gpt-3.5-turbo", res.Content)
}

func TestAvailable(t *testing.T) {
	cfg := testProviderConfig()
	cfg.AIServices.Kimi.Enabled = false
	m, _, _ := newFakeManager(cfg)

	status := m.Available()
	assert.Equal(t, map[string]bool{"openai": true, "deepseek": true}, status)
}

func TestFallbackRoundRobin(t *testing.T) {
	m, _, _ := newFakeManager(testProviderConfig())

	next, err := m.Fallback("openai")
	require.NoError(t, err)
	assert.Equal(t, "deepseek", next)

	next, err = m.Fallback("kimi")
	require.NoError(t, err)
	assert.Equal(t, "openai", next)
}

func TestFallbackSkipsBrokenProvider(t *testing.T) {
	m, _, _ := newFakeManager(testProviderConfig())
	base := m.newClient
	m.newClient = func(svc config.ServiceConfig) (llms.Model, error) {
		if svc.Model == "deepseek-chat" {
			return nil, errors.New("bad credentials")
		}
		return base(svc)
	}

	next, err := m.Fallback("openai")
	require.NoError(t, err)
	assert.Equal(t, "kimi", next)
}

func TestFallbackNoneAvailable(t *testing.T) {
	m, _, _ := newFakeManager(testProviderConfig())
	m.newClient = func(svc config.ServiceConfig) (llms.Model, error) {
		return nil, errors.New("bad credentials")
	}

	_, err := m.Fallback("openai")
	assert.ErrorIs(t, err, ErrProvider)
}

// chainEmbedder maps each distinct text onto its own unit axis so
// identical strings are perfectly similar and distinct ones orthogonal.
type chainEmbedder struct {
	mu   sync.Mutex
	axes map[string]int
	next int
}

func (e *chainEmbedder) embed(text string) []float32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.axes == nil {
		e.axes = make(map[string]int)
	}
	axis, ok := e.axes[text]
	if !ok {
		axis = e.next % 64
		e.axes[text] = axis
		e.next++
	}
	vec := make([]float32, 64)
	vec[axis] = 1
	return vec
}

func (e *chainEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e *chainEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func newChainStore(t *testing.T) *vectorstore.Manager {
	t.Helper()
	backend, err := vectorstore.NewChromemBackend(vectorstore.ChromemConfig{
		Path:       t.TempDir(),
		Collection: "docs",
	}, &chainEmbedder{}, zap.NewNop())
	require.NoError(t, err)
	store, err := vectorstore.NewManager(backend, 0, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestChainAsk(t *testing.T) {
	m, fakes, _ := newFakeManager(testProviderConfig())
	store := newChainStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, []vectorstore.Document{
		{ID: "c1", Content: "The warranty lasts two years.", Metadata: map[string]string{"source": "warranty.pdf"}},
		{ID: "c2", Content: "Returns are accepted within 30 days.", Metadata: map[string]string{"source": "returns.pdf"}},
	}))

	chain, err := m.NewChain("openai", store, MemoryBuffer, 2)
	require.NoError(t, err)
	assert.Equal(t, "openai", chain.Provider())

	answer, err := chain.Ask(ctx, "The warranty lasts two years.")
	require.NoError(t, err)
	assert.Equal(t, "answer from gpt-3.5-turbo", answer.Content)
	require.NotEmpty(t, answer.Sources)
	assert.Equal(t, "warranty.pdf", answer.Sources[0].Metadata["source"])

	f := fakes["gpt-3.5-turbo"]
	require.Len(t, f.calls, 1)
	systemPart := fmt.Sprintf("%v", f.calls[0][0].Parts)
	assert.Contains(t, systemPart, "The warranty lasts two years.")

	// Second turn carries the first exchange as history.
	_, err = chain.Ask(ctx, "Returns are accepted within 30 days.")
	require.NoError(t, err)
	require.Len(t, f.calls, 2)
	assert.Len(t, f.calls[0], 2, "system + question")
	assert.Len(t, f.calls[1], 4, "system + prior exchange + question")
}

func TestChainWindowMemoryTrims(t *testing.T) {
	cfg := testProviderConfig()
	cfg.Conversation.MaxHistory = 1
	m, fakes, _ := newFakeManager(cfg)
	store := newChainStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, []vectorstore.Document{
		{ID: "c1", Content: "Shipping takes five days.", Metadata: map[string]string{"source": "shipping.pdf"}},
	}))

	chain, err := m.NewChain("openai", store, MemoryWindow, 1)
	require.NoError(t, err)

	for _, q := range []string{"first", "second", "third"} {
		_, err := chain.Ask(ctx, q)
		require.NoError(t, err)
	}

	f := fakes["gpt-3.5-turbo"]
	require.Len(t, f.calls, 3)
	// With a one-exchange window every request is system + one prior
	// exchange + question at most.
	assert.LessOrEqual(t, len(f.calls[2]), 4)
}

func TestNewChainRejectsUnknownMemory(t *testing.T) {
	m, _, _ := newFakeManager(testProviderConfig())
	_, err := m.NewChain("openai", newChainStore(t), "summary", 4)
	assert.ErrorIs(t, err, ErrProvider)
}

func TestNewChainRequiresEnabledProvider(t *testing.T) {
	cfg := testProviderConfig()
	cfg.AIServices.OpenAI.Enabled = false
	m, _, _ := newFakeManager(cfg)
	_, err := m.NewChain("openai", newChainStore(t), MemoryBuffer, 4)
	assert.ErrorIs(t, err, ErrProviderNotEnabled)
}
