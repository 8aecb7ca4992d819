package conversation_test

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docuchat/internal/config"
	"github.com/fyrsmithlabs/docuchat/internal/conversation"
	"github.com/fyrsmithlabs/docuchat/internal/vectorstore"
)

func newTestManager(t *testing.T, maxHistory int) *conversation.Manager {
	t.Helper()
	return conversation.NewManager(config.ConversationConfig{
		MaxHistory:             maxHistory,
		ContextWindow:          4000,
		IncludeDocumentContext: true,
	}, nil)
}

func sourceDocs(names ...string) []vectorstore.SearchResult {
	docs := make([]vectorstore.SearchResult, len(names))
	for i, name := range names {
		docs[i] = vectorstore.SearchResult{Metadata: map[string]string{"source": name}}
	}
	return docs
}

func appendExchange(m *conversation.Manager, question, answer string, docs []vectorstore.SearchResult) {
	m.Append(conversation.RoleUser, question, nil)
	m.Append(conversation.RoleAssistant, answer, docs)
}

func TestHistoryCapHoldsAfterEveryAppend(t *testing.T) {
	m := newTestManager(t, 3)

	for i := 0; i < 20; i++ {
		appendExchange(m, fmt.Sprintf("question %d", i), fmt.Sprintf("answer %d", i), nil)
		assert.LessOrEqual(t, len(m.Messages()), 6, "after exchange %d", i)
	}

	msgs := m.Messages()
	require.Len(t, msgs, 6)
	// Oldest evicted first: the window ends at the newest exchange.
	assert.Equal(t, "question 17", msgs[0].Content)
	assert.Equal(t, "answer 19", msgs[5].Content)
}

func TestSourcesAreDeduplicatedAndSorted(t *testing.T) {
	m := newTestManager(t, 10)

	appendExchange(m, "q1", "a1", sourceDocs("zebra.pdf", "alpha.docx"))
	appendExchange(m, "q2", "a2", sourceDocs("alpha.docx", "middle.pdf"))

	assert.Equal(t, []string{"alpha.docx", "middle.pdf", "zebra.pdf"}, m.Sources())
}

func TestSourcesIgnoredWhenContextDisabled(t *testing.T) {
	m := conversation.NewManager(config.ConversationConfig{MaxHistory: 10}, nil)
	appendExchange(m, "q", "a", sourceDocs("doc.pdf"))
	assert.Empty(t, m.Sources())
}

func TestClear(t *testing.T) {
	m := newTestManager(t, 10)
	appendExchange(m, "q", "a", sourceDocs("doc.pdf"))

	m.Clear()
	assert.Empty(t, m.Messages())
	assert.Empty(t, m.Sources())
	assert.Equal(t, "No conversation history yet.", m.ContextSummary())
}

func TestRecentMessages(t *testing.T) {
	m := newTestManager(t, 10)
	for i := 0; i < 5; i++ {
		appendExchange(m, fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i), nil)
	}

	recent := m.RecentMessages(3)
	require.Len(t, recent, 3)
	assert.Equal(t, "a3", recent[0].Content)
	assert.Equal(t, "a4", recent[2].Content)

	assert.Len(t, m.RecentMessages(0), 10)
	assert.Len(t, m.RecentMessages(100), 10)
}

func TestContextSummary(t *testing.T) {
	m := newTestManager(t, 10)
	appendExchange(m, "first question", "first answer", nil)
	appendExchange(m, "second question", "second answer", sourceDocs("manual.pdf"))
	appendExchange(m, "third question", "third answer", nil)

	summary := m.ContextSummary()
	assert.NotContains(t, summary, "first question")
	assert.Contains(t, summary, "user: third question")
	assert.Contains(t, summary, "assistant: third answer")
	assert.Contains(t, summary, "Based on documents: manual.pdf")
}

func TestTrimToTokenLimit(t *testing.T) {
	m := conversation.NewManager(config.ConversationConfig{
		MaxHistory:    100,
		ContextWindow: 50,
	}, func(string) int { return 10 })

	for i := 0; i < 10; i++ {
		appendExchange(m, "q", "a", nil)
	}
	require.Equal(t, 200, m.TokenCount())

	m.TrimToTokenLimit()
	assert.LessOrEqual(t, m.TokenCount(), 50)
	assert.Equal(t, 4, len(m.Messages()))
	// Conversation flow survives: the window starts on a user turn.
	assert.Equal(t, conversation.RoleUser, m.Messages()[0].Role)
}

func TestTrimCanEmptyHistory(t *testing.T) {
	m := conversation.NewManager(config.ConversationConfig{
		MaxHistory:    100,
		ContextWindow: 5,
	}, func(string) int { return 100 })

	appendExchange(m, "q", "a", nil)
	m.TrimToTokenLimit()
	assert.Len(t, m.Messages(), 0, "an oversized exchange is evicted like any other")
}

func TestExportMarkdown(t *testing.T) {
	m := newTestManager(t, 10)
	appendExchange(m, "What is the warranty?", "Two years.", sourceDocs("warranty.pdf", "faq.docx"))

	out, err := m.ToMarkdown()
	require.NoError(t, err)
	assert.Contains(t, out, "# Conversation Export")
	assert.Contains(t, out, "- Total Messages: 2")
	assert.Contains(t, out, "- Document Sources: faq.docx, warranty.pdf")
	assert.Contains(t, out, "## User\nWhat is the warranty?")
	assert.Contains(t, out, "## Assistant\nTwo years.")
}

func TestExportText(t *testing.T) {
	m := newTestManager(t, 10)
	appendExchange(m, "Question?", "Answer.", nil)

	out, err := m.ToText()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Conversation Export\n"))
	assert.Contains(t, out, "User:\nQuestion?")
	assert.Contains(t, out, "Assistant:\nAnswer.")
}

func TestExportJSONRoundTrip(t *testing.T) {
	m := newTestManager(t, 10)
	appendExchange(m, "Question one", "Answer one", sourceDocs("b.pdf", "a.pdf"))
	appendExchange(m, "Question two", "Answer two", nil)

	out, err := m.ToJSON()
	require.NoError(t, err)

	var decoded struct {
		Metadata struct {
			TotalMessages   int      `json:"total_messages"`
			DocumentSources []string `json:"document_sources"`
		} `json:"metadata"`
		Messages []conversation.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))

	assert.Equal(t, 4, decoded.Metadata.TotalMessages)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, decoded.Metadata.DocumentSources)
	require.Len(t, decoded.Messages, 4)
	for i, want := range m.Messages() {
		assert.Equal(t, want.Role, decoded.Messages[i].Role)
		assert.Equal(t, want.Content, decoded.Messages[i].Content)
		assert.True(t, want.Timestamp.Equal(decoded.Messages[i].Timestamp))
	}
}

func TestExportWritesFile(t *testing.T) {
	m := newTestManager(t, 10)
	appendExchange(m, "q", "a", nil)

	path := filepath.Join(t.TempDir(), "nested", "dir", "chat.md")
	out, err := m.Export("markdown", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, out, string(data))
}

func TestExportUnknownFormat(t *testing.T) {
	m := newTestManager(t, 10)
	_, err := m.Export("pdf", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdf")
}
