package aiservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/fyrsmithlabs/docuchat/internal/vectorstore"
)

// Memory types for a chain.
const (
	MemoryBuffer = "buffer" // full history
	MemoryWindow = "window" // last maxHistory exchanges
)

const qaPrompt = "Use the following pieces of context to answer the question at the end. " +
	"If you don't know the answer, just say that you don't know, don't try to make up an answer.\n\n%s"

// Answer is one chain turn: the model's reply plus the chunks it was
// grounded on.
type Answer struct {
	Content string
	Sources []vectorstore.SearchResult
}

type exchange struct {
	question string
	answer   string
}

// Chain is a retrieval-augmented conversation bound to one provider:
// each question retrieves the top-k chunks, injects them with the chat
// history, and records the exchange.
type Chain struct {
	manager    *Manager
	store      *vectorstore.Manager
	provider   string
	memoryType string
	maxHistory int
	k          int

	history []exchange
}

// NewChain builds a chain over an enabled provider. memoryType is
// "buffer" or "window"; window keeps the last maxHistory exchanges.
func (m *Manager) NewChain(provider string, store *vectorstore.Manager, memoryType string, k int) (*Chain, error) {
	if _, _, err := m.client(provider); err != nil {
		return nil, err
	}
	if memoryType != MemoryBuffer && memoryType != MemoryWindow {
		return nil, fmt.Errorf("%w: unknown memory type %q", ErrProvider, memoryType)
	}
	if k < 1 {
		k = 4
	}
	maxHistory := m.cfg.Conversation.MaxHistory
	if maxHistory < 1 {
		maxHistory = 20
	}
	return &Chain{
		manager:    m,
		store:      store,
		provider:   provider,
		memoryType: memoryType,
		maxHistory: maxHistory,
		k:          k,
	}, nil
}

// Provider returns the provider this chain completes against.
func (c *Chain) Provider() string {
	return c.provider
}

// Ask retrieves context for the question, completes against the
// provider, and appends the exchange to the chain's memory.
func (c *Chain) Ask(ctx context.Context, question string) (Answer, error) {
	if strings.TrimSpace(question) == "" {
		return Answer{}, fmt.Errorf("%w: empty question", ErrProvider)
	}

	sources, err := c.store.Search(ctx, question, c.k, nil)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieve context: %w", err)
	}

	messages := c.buildMessages(question, sources)
	content, err := c.manager.Completion(ctx, c.provider, messages)
	if err != nil {
		return Answer{}, err
	}

	c.history = append(c.history, exchange{question: question, answer: content})
	if c.memoryType == MemoryWindow && len(c.history) > c.maxHistory {
		c.history = c.history[len(c.history)-c.maxHistory:]
	}
	return Answer{Content: content, Sources: sources}, nil
}

// Reset drops the chain's memory.
func (c *Chain) Reset() {
	c.history = nil
}

func (c *Chain) buildMessages(question string, sources []vectorstore.SearchResult) []llms.MessageContent {
	var contextText strings.Builder
	for i, src := range sources {
		if i > 0 {
			contextText.WriteString("\n\n")
		}
		contextText.WriteString(src.Content)
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, fmt.Sprintf(qaPrompt, contextText.String())),
	}
	for _, ex := range c.history {
		messages = append(messages,
			llms.TextParts(llms.ChatMessageTypeHuman, ex.question),
			llms.TextParts(llms.ChatMessageTypeAI, ex.answer),
		)
	}
	return append(messages, llms.TextParts(llms.ChatMessageTypeHuman, question))
}
