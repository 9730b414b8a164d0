package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/brunobiangulo/ragcore/chunk"
)

func TestTextProcessorSingleChunk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manual.txt")
	if err := os.WriteFile(path, []byte("The operating voltage is 220V."), 0644); err != nil {
		t.Fatal(err)
	}

	p := NewTextProcessor(Config{TextChunkSize: 500, TextChunkOverlap: 50})
	chunks, err := p.Process(context.Background(), path, "manual.txt")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Modality != chunk.Text {
		t.Errorf("modality = %s, want TEXT", chunks[0].Modality)
	}
	if chunks[0].SourceType != chunk.UploadedText {
		t.Errorf("source_type = %s, want uploaded_text", chunks[0].SourceType)
	}
	if chunks[0].SourceFile != "manual.txt" {
		t.Errorf("source_file = %s", chunks[0].SourceFile)
	}
}

func TestTextProcessorSplitsLongText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "long.txt")

	var body string
	for i := 0; i < 40; i++ {
		body += "This is a reasonably long paragraph describing the system in some detail.\n\n"
	}
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	p := NewTextProcessor(Config{TextChunkSize: 200, TextChunkOverlap: 20})
	chunks, err := p.Process(context.Background(), path, "long.txt")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Metadata.Order != i {
			t.Errorf("chunk %d order = %d, want %d", i, c.Metadata.Order, i)
		}
	}
}

func TestTextProcessorUnsupportedExtensionViaRegistry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	os.WriteFile(path, []byte("a,b,c"), 0644)

	reg := NewRegistry(Config{}, "", nil)
	_, err := reg.ProcessFile(context.Background(), path, "data.csv")
	if err == nil {
		t.Fatal("expected unsupported format error")
	}
	var perr *ProcessingError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ProcessingError, got %T", err)
	}
	if perr.Kind != UnsupportedFormat {
		t.Errorf("kind = %s, want UnsupportedFormat", perr.Kind)
	}
}
