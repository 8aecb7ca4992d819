package embeddings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "valid",
			config: Config{Model: "text-embedding-3-small", APIKey: "sk-test"},
		},
		{
			name:    "missing model",
			config:  Config{APIKey: "sk-test"},
			wantErr: true,
		},
		{
			name:    "missing api key",
			config:  Config{Model: "text-embedding-3-small"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewServiceRejectsInvalidConfig(t *testing.T) {
	_, err := NewService(Config{})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEmbedRejectsEmptyInput(t *testing.T) {
	svc, err := NewService(Config{Model: "text-embedding-3-small", APIKey: "sk-test"})
	require.NoError(t, err)

	_, err = svc.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = svc.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}
