package document

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docuchat/internal/config"
)

const tokenEncoding = "cl100k_base"

// chunkSeparators are tried in order, coarsest first.
var chunkSeparators = []string{"\n\n", "\n", " ", ""}

// Processor turns uploads into chunks ready for indexing.
type Processor struct {
	cfg    config.DocumentsConfig
	logger *zap.Logger

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

// NewProcessor validates the chunking configuration and returns a
// processor. The token encoder is loaded lazily on first use.
func NewProcessor(cfg config.DocumentsConfig, logger *zap.Logger) (*Processor, error) {
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk_size must be positive", ErrValidation)
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size)", ErrValidation)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{cfg: cfg, logger: logger}, nil
}

// Validate checks an upload against the size cap and supported types.
// The error names the violated constraint and the offending value.
func (p *Processor) Validate(up Upload) error {
	if len(up.Data) == 0 {
		return fmt.Errorf("%w: %s is empty", ErrValidation, up.Name)
	}
	if maxBytes := int64(p.cfg.MaxFileSize) * 1024 * 1024; int64(len(up.Data)) > maxBytes {
		return fmt.Errorf("%w: %s is %d bytes, max_file_size is %dMB",
			ErrValidation, up.Name, len(up.Data), p.cfg.MaxFileSize)
	}
	ext := fileType(up.Name)
	for _, t := range p.cfg.SupportedTypes {
		if ext == t {
			return nil
		}
	}
	return fmt.Errorf("%w: %s: type %q not in supported_types %v",
		ErrValidation, up.Name, ext, p.cfg.SupportedTypes)
}

// Extract pulls plain text out of an upload based on its extension.
func (p *Processor) Extract(up Upload) (string, error) {
	var (
		text string
		err  error
	)
	switch fileType(up.Name) {
	case "pdf":
		text, err = extractPDF(up.Data)
	case "docx", "doc":
		text, err = extractDOCX(up.Data)
	default:
		return "", fmt.Errorf("%w: no extractor for %s", ErrExtraction, up.Name)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrExtraction, up.Name, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s contains no extractable text", ErrExtraction, up.Name)
	}
	return text, nil
}

// Process validates, extracts, chunks, and enforces the token budget
// for a single upload.
func (p *Processor) Process(up Upload) ([]Chunk, FileInfo, error) {
	if err := p.Validate(up); err != nil {
		return nil, FileInfo{}, err
	}
	text, err := p.Extract(up)
	if err != nil {
		return nil, FileInfo{}, err
	}

	pieces, err := p.splitText(text, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	if err != nil {
		return nil, FileInfo{}, fmt.Errorf("%w: %s: %v", ErrExtraction, up.Name, err)
	}
	pieces = p.enforceTokenLimit(pieces)
	if len(pieces) == 0 {
		return nil, FileInfo{}, fmt.Errorf("%w: %s yielded no chunks within max_tokens", ErrExtraction, up.Name)
	}

	sum := sha256.Sum256(up.Data)
	hash := hex.EncodeToString(sum[:])
	now := time.Now().UTC()

	chunks := make([]Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = Chunk{
			Content:    piece,
			Source:     up.Name,
			Hash:       hash,
			Type:       fileType(up.Name),
			Index:      i,
			Total:      len(pieces),
			Size:       len(up.Data),
			TokenCount: p.EstimateTokens(piece),
			CreatedAt:  now,
		}
	}
	info := FileInfo{
		Source:      up.Name,
		Hash:        hash,
		Type:        fileType(up.Name),
		Size:        len(up.Data),
		Chunks:      len(chunks),
		ProcessedAt: now,
	}
	p.logger.Info("processed document",
		zap.String("source", up.Name),
		zap.Int("chunks", len(chunks)),
		zap.Int("bytes", len(up.Data)))
	return chunks, info, nil
}

// ProcessAll processes a batch. Each upload fails or succeeds on its
// own; the returned slice holds one result per input, in order.
func (p *Processor) ProcessAll(uploads []Upload) []FileResult {
	results := make([]FileResult, len(uploads))
	for i, up := range uploads {
		chunks, info, err := p.Process(up)
		if err != nil {
			p.logger.Warn("skipping document", zap.String("source", up.Name), zap.Error(err))
			results[i] = FileResult{Err: err, Info: FileInfo{Source: up.Name}}
			continue
		}
		results[i] = FileResult{Info: info, Chunks: chunks}
	}
	return results
}

// EstimateTokens counts tokens with the cl100k_base encoding, falling
// back to len/4 when the encoder is unavailable.
func (p *Processor) EstimateTokens(text string) int {
	p.encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(tokenEncoding)
		if err != nil {
			p.logger.Warn("token encoder unavailable, using byte estimate", zap.Error(err))
			return
		}
		p.enc = enc
	})
	if p.enc == nil {
		return len(text) / 4
	}
	return len(p.enc.Encode(text, nil, nil))
}

func (p *Processor) splitText(text string, size, overlap int) ([]string, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
		textsplitter.WithSeparators(chunkSeparators),
	)
	pieces, err := splitter.SplitText(text)
	if err != nil {
		return nil, err
	}
	kept := pieces[:0]
	for _, piece := range pieces {
		if strings.TrimSpace(piece) != "" {
			kept = append(kept, piece)
		}
	}
	return kept, nil
}

// enforceTokenLimit re-splits any piece above max_tokens once, at half
// the configured chunk size, and drops pieces still over the budget.
func (p *Processor) enforceTokenLimit(pieces []string) []string {
	if p.cfg.MaxTokens <= 0 {
		return pieces
	}
	var out []string
	for _, piece := range pieces {
		if p.EstimateTokens(piece) <= p.cfg.MaxTokens {
			out = append(out, piece)
			continue
		}
		size := p.cfg.ChunkSize / 2
		if size < 1 {
			size = 1
		}
		overlap := p.cfg.ChunkOverlap / 2
		if overlap >= size {
			overlap = size - 1
		}
		resplit, err := p.splitText(piece, size, overlap)
		if err != nil {
			p.logger.Warn("dropping oversized chunk", zap.Error(err))
			continue
		}
		for _, sub := range resplit {
			if p.EstimateTokens(sub) <= p.cfg.MaxTokens {
				out = append(out, sub)
			} else {
				p.logger.Warn("dropping oversized chunk",
					zap.Int("tokens", p.EstimateTokens(sub)),
					zap.Int("max_tokens", p.cfg.MaxTokens))
			}
		}
	}
	return out
}

func fileType(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}
