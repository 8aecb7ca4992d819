// Package conversation tracks chat history with bounded retention and
// exports transcripts as markdown, JSON, or plain text.
package conversation

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/docuchat/internal/config"
	"github.com/fyrsmithlabs/docuchat/internal/vectorstore"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role      string    `json:"type"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// TokenEstimator counts tokens in a string. The default is the byte
// heuristic len/4.
type TokenEstimator func(string) int

func defaultEstimator(text string) int {
	return len(text) / 4
}

// Manager holds the conversation history. After every append the
// history never exceeds max_history exchanges (a user/assistant pair
// each); the oldest messages are evicted first.
type Manager struct {
	mu sync.Mutex

	maxHistory     int
	contextWindow  int
	includeSources bool
	estimate       TokenEstimator

	messages  []Message
	sources   map[string]struct{}
	createdAt time.Time
	total     int
}

// NewManager builds a conversation manager from config. estimate may be
// nil.
func NewManager(cfg config.ConversationConfig, estimate TokenEstimator) *Manager {
	maxHistory := cfg.MaxHistory
	if maxHistory < 1 {
		maxHistory = 20
	}
	contextWindow := cfg.ContextWindow
	if contextWindow < 1 {
		contextWindow = 4000
	}
	if estimate == nil {
		estimate = defaultEstimator
	}
	return &Manager{
		maxHistory:     maxHistory,
		contextWindow:  contextWindow,
		includeSources: cfg.IncludeDocumentContext,
		estimate:       estimate,
		sources:        make(map[string]struct{}),
		createdAt:      time.Now().UTC(),
	}
}

// Append records a message and, for retrieval-grounded turns, the
// source documents behind it.
func (m *Manager) Append(role, content string, sourceDocs []vectorstore.SearchResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = append(m.messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
	m.total++

	if m.includeSources {
		for _, doc := range sourceDocs {
			if src, ok := doc.Metadata["source"]; ok && src != "" {
				m.sources[src] = struct{}{}
			}
		}
	}

	if limit := m.maxHistory * 2; len(m.messages) > limit {
		m.messages = m.messages[len(m.messages)-limit:]
	}
}

// Clear resets history, sources, and metadata.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
	m.sources = make(map[string]struct{})
	m.createdAt = time.Now().UTC()
	m.total = 0
}

// Messages returns a copy of the retained history, oldest first.
func (m *Manager) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.messages...)
}

// RecentMessages returns the last k messages; k <= 0 means the full
// retention window.
func (m *Manager) RecentMessages(k int) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k <= 0 {
		k = m.maxHistory * 2
	}
	if k > len(m.messages) {
		k = len(m.messages)
	}
	return append([]Message(nil), m.messages[len(m.messages)-k:]...)
}

// Sources returns the tracked document sources in sorted order.
func (m *Manager) Sources() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedSourcesLocked()
}

func (m *Manager) sortedSourcesLocked() []string {
	out := make([]string, 0, len(m.sources))
	for src := range m.sources {
		out = append(out, src)
	}
	sort.Strings(out)
	return out
}

// ContextSummary renders the last two exchanges plus the source list.
func (m *Manager) ContextSummary() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.messages) == 0 {
		return "No conversation history yet."
	}

	start := len(m.messages) - 4
	if start < 0 {
		start = 0
	}
	var b strings.Builder
	for i, msg := range m.messages[start:] {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: %s", msg.Role, msg.Content)
	}
	if m.includeSources && len(m.sources) > 0 {
		fmt.Fprintf(&b, "\n\nBased on documents: %s", strings.Join(m.sortedSourcesLocked(), ", "))
	}
	return b.String()
}

// TokenCount estimates the token footprint of the retained history.
func (m *Manager) TokenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokenCountLocked()
}

func (m *Manager) tokenCountLocked() int {
	total := 0
	for _, msg := range m.messages {
		total += m.estimate(msg.Content)
	}
	return total
}

// TrimToTokenLimit evicts the oldest exchange until the history fits
// the context window or fewer than two messages remain.
func (m *Manager) TrimToTokenLimit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.tokenCountLocked() > m.contextWindow && len(m.messages) >= 2 {
		m.messages = m.messages[2:]
	}
}
