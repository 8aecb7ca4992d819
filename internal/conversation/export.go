package conversation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Export formats.
const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatText     = "txt"
)

// Export renders the conversation in the named format and, when
// outputPath is non-empty, writes it there creating parent directories.
func (m *Manager) Export(format, outputPath string) (string, error) {
	var (
		content string
		err     error
	)
	switch format {
	case FormatMarkdown, "md":
		content, err = m.ToMarkdown()
	case FormatJSON:
		content, err = m.ToJSON()
	case FormatText, "text":
		content, err = m.ToText()
	default:
		return "", fmt.Errorf("unknown export format %q (want markdown, json, or txt)", format)
	}
	if err != nil {
		return "", err
	}
	if outputPath != "" {
		if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
			return "", fmt.Errorf("create export directory: %w", err)
		}
		if err := os.WriteFile(outputPath, []byte(content), 0o644); err != nil {
			return "", fmt.Errorf("write export: %w", err)
		}
	}
	return content, nil
}

// ToMarkdown renders the transcript as a markdown document with a
// metadata header.
func (m *Manager) ToMarkdown() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b strings.Builder
	b.WriteString("# Conversation Export\n\n")
	fmt.Fprintf(&b, "- Created At: %s\n", m.createdAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Total Messages: %d\n", m.total)
	if sources := m.sortedSourcesLocked(); len(sources) > 0 {
		fmt.Fprintf(&b, "- Document Sources: %s\n", strings.Join(sources, ", "))
	}
	b.WriteString("\n---\n")
	for _, msg := range m.messages {
		fmt.Fprintf(&b, "\n## %s\n%s\n", exportRole(msg.Role), msg.Content)
	}
	return b.String(), nil
}

type jsonExport struct {
	Metadata jsonMetadata `json:"metadata"`
	Messages []Message    `json:"messages"`
}

type jsonMetadata struct {
	CreatedAt       time.Time `json:"created_at"`
	TotalMessages   int       `json:"total_messages"`
	DocumentSources []string  `json:"document_sources"`
}

// ToJSON renders the transcript as indented JSON. The output
// unmarshals back into the same messages.
func (m *Manager) ToJSON() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	payload := jsonExport{
		Metadata: jsonMetadata{
			CreatedAt:       m.createdAt,
			TotalMessages:   m.total,
			DocumentSources: m.sortedSourcesLocked(),
		},
		Messages: append([]Message{}, m.messages...),
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode export: %w", err)
	}
	return string(data), nil
}

// ToText renders the transcript as plain text.
func (m *Manager) ToText() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b strings.Builder
	b.WriteString("Conversation Export\n")
	b.WriteString(strings.Repeat("=", 50) + "\n")
	fmt.Fprintf(&b, "Created At: %s\n", m.createdAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Total Messages: %d\n", m.total)
	if sources := m.sortedSourcesLocked(); len(sources) > 0 {
		fmt.Fprintf(&b, "Document Sources: %s\n", strings.Join(sources, ", "))
	}
	b.WriteString("\n")
	for _, msg := range m.messages {
		fmt.Fprintf(&b, "%s:\n%s\n\n", exportRole(msg.Role), msg.Content)
	}
	return b.String(), nil
}

func exportRole(role string) string {
	if role == RoleUser {
		return "User"
	}
	return "Assistant"
}
