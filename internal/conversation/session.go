package conversation

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fyrsmithlabs/docuchat/internal/config"
)

// FromJSON rebuilds a manager from a ToJSON export, so a conversation
// can continue across process restarts. The retention cap applies to
// the restored history.
func FromJSON(cfg config.ConversationConfig, estimate TokenEstimator, data []byte) (*Manager, error) {
	var decoded jsonExport
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	m := NewManager(cfg, estimate)
	if !decoded.Metadata.CreatedAt.IsZero() {
		m.createdAt = decoded.Metadata.CreatedAt
	}
	m.total = decoded.Metadata.TotalMessages
	for _, src := range decoded.Metadata.DocumentSources {
		m.sources[src] = struct{}{}
	}
	m.messages = decoded.Messages
	if limit := m.maxHistory * 2; len(m.messages) > limit {
		m.messages = m.messages[len(m.messages)-limit:]
	}
	return m, nil
}

// LoadSession reads a session file written by SaveSession. A missing
// file yields a fresh manager.
func LoadSession(path string, cfg config.ConversationConfig, estimate TokenEstimator) (*Manager, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewManager(cfg, estimate), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	return FromJSON(cfg, estimate, data)
}

// SaveSession writes the conversation as JSON to path.
func (m *Manager) SaveSession(path string) error {
	_, err := m.Export(FormatJSON, path)
	return err
}
