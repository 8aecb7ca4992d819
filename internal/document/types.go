// Package document validates uploads, extracts text from PDF and Word
// files, and splits it into overlapping chunks with provenance metadata.
package document

import (
	"errors"
	"time"
)

var (
	// ErrValidation indicates an oversized or unsupported upload.
	ErrValidation = errors.New("document validation failed")

	// ErrExtraction indicates unreadable document content.
	ErrExtraction = errors.New("document extraction failed")
)

// Upload is a file-like input: a name plus its byte content.
type Upload struct {
	Name string
	Data []byte
}

// Chunk is a bounded slice of extracted text with provenance metadata.
// Immutable once created.
type Chunk struct {
	// Content is the chunk text.
	Content string `json:"content"`

	// Source is the originating filename.
	Source string `json:"source"`

	// Hash is the sha256 fingerprint of the whole file's content.
	Hash string `json:"hash"`

	// Type is the file extension without the dot.
	Type string `json:"type"`

	// Index is the chunk position within the document.
	Index int `json:"index"`

	// Total is the number of chunks the document split into.
	Total int `json:"total"`

	// Size is the source file size in bytes.
	Size int `json:"size"`

	// TokenCount is the estimated token count of Content.
	TokenCount int `json:"token_count"`

	// CreatedAt is when the chunk was produced.
	CreatedAt time.Time `json:"created_at"`
}

// FileInfo summarizes one processed upload.
type FileInfo struct {
	Source      string    `json:"source"`
	Hash        string    `json:"hash"`
	Type        string    `json:"type"`
	Size        int       `json:"size"`
	Chunks      int       `json:"chunks"`
	ProcessedAt time.Time `json:"processed_at"`
}

// FileResult pairs one upload in a batch with its outcome. A failed
// sibling never aborts the rest of the batch.
type FileResult struct {
	Info   FileInfo
	Chunks []Chunk
	Err    error
}
