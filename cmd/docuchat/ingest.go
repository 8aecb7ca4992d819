package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/docuchat/internal/document"
	"github.com/fyrsmithlabs/docuchat/internal/vectorstore"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Process documents and add them to the vector index",
	Long: `Validate, extract, chunk, and embed documents into the vector index.
A file that fails validation or extraction is reported and skipped; the
rest of the batch still goes in.

Examples:
  docuchat ingest manual.pdf
  docuchat ingest docs/*.pdf notes.docx`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	uploads := make([]document.Upload, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "skipping %s: %v\n", path, err)
			continue
		}
		uploads = append(uploads, document.Upload{Name: filepath.Base(path), Data: data})
	}
	if len(uploads) == 0 {
		return fmt.Errorf("no readable input files")
	}

	var docs []vectorstore.Document
	ingested := 0
	for _, result := range a.proc.ProcessAll(uploads) {
		if result.Err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "skipping %s: %v\n", result.Info.Source, result.Err)
			continue
		}
		docs = append(docs, chunksToDocuments(result.Chunks)...)
		ingested++
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks (%d bytes)\n",
			result.Info.Source, result.Info.Chunks, result.Info.Size)
	}
	if len(docs) == 0 {
		return fmt.Errorf("no documents ingested")
	}

	if err := a.store.Update(cmd.Context(), docs); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "indexed %d chunks from %d file(s)\n", len(docs), ingested)
	return nil
}

func chunksToDocuments(chunks []document.Chunk) []vectorstore.Document {
	docs := make([]vectorstore.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = vectorstore.Document{
			ID:      uuid.NewString(),
			Content: c.Content,
			Metadata: map[string]string{
				"source":      c.Source,
				"hash":        c.Hash,
				"type":        c.Type,
				"chunk_index": strconv.Itoa(c.Index),
				"chunk_total": strconv.Itoa(c.Total),
				"size":        strconv.Itoa(c.Size),
				"tokens":      strconv.Itoa(c.TokenCount),
				"created_at":  c.CreatedAt.Format(time.RFC3339),
			},
		}
	}
	return docs
}
