package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brunobiangulo/ragcore/chunk"
	"github.com/brunobiangulo/ragcore/llm"
)

type fakeEmbedder struct {
	dim     int
	failOn  string
	calls   int
}

func (f *fakeEmbedder) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.failOn != "" {
		for _, t := range texts {
			if t == f.failOn {
				return nil, errors.New("boom")
			}
		}
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dim)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}

func newTestManager(t *testing.T, fe *fakeEmbedder) *Manager {
	t.Helper()
	chain := llm.NewFallbackChain([]llm.Provider{fe}, 5*time.Second)
	return New(chain, fe.dim)
}

func TestEmbedChunksTextModality(t *testing.T) {
	fe := &fakeEmbedder{dim: 4}
	m := newTestManager(t, fe)

	chunks := []chunk.Chunk{
		{ID: "a", Modality: chunk.Text, Content: "the operating voltage is 220V"},
	}
	out, err := m.EmbedChunks(context.Background(), chunks)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if !out[0].HasEmbedding() {
		t.Fatal("expected embedding to be set")
	}
	if len(out[0].Embedding) != 4 {
		t.Errorf("embedding dim = %d, want 4", len(out[0].Embedding))
	}
}

func TestEmbedChunksSkipsEmptyContent(t *testing.T) {
	fe := &fakeEmbedder{dim: 4}
	m := newTestManager(t, fe)

	chunks := []chunk.Chunk{
		{ID: "failed-audio", Modality: chunk.Audio, Content: "", Metadata: chunk.Metadata{Status: "failed"}},
	}
	out, err := m.EmbedChunks(context.Background(), chunks)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if out[0].HasEmbedding() {
		t.Fatal("empty-content chunk must not receive an embedding")
	}
}

func TestEmbedChunksImageWithoutOCRUsesProjection(t *testing.T) {
	fe := &fakeEmbedder{dim: 8}
	m := newTestManager(t, fe)

	chunks := []chunk.Chunk{
		{ID: "img", Modality: chunk.Image, Content: "Image label.png: 300x200 landscape, format png"},
	}
	out, err := m.EmbedChunks(context.Background(), chunks)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if fe.calls != 0 {
		t.Errorf("expected text encoder not to be called for non-OCR image, got %d calls", fe.calls)
	}
	if len(out[0].Embedding) != 8 {
		t.Errorf("projected embedding dim = %d, want 8", len(out[0].Embedding))
	}
}

func TestEmbedChunksImageWithOCRUsesTextEncoder(t *testing.T) {
	fe := &fakeEmbedder{dim: 4}
	m := newTestManager(t, fe)

	ocrText := "MACHINE LABEL Voltage: 110V and a long enough OCR passage"
	chunks := []chunk.Chunk{
		{
			ID: "img-ocr", Modality: chunk.Image,
			Content:  ocrText + "\n\nImage label.png: 300x200 landscape, format png",
			Metadata: chunk.Metadata{OCRConfidence: 0.8, OCRTextLength: len(ocrText)},
		},
	}
	out, err := m.EmbedChunks(context.Background(), chunks)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if fe.calls == 0 {
		t.Fatal("expected text encoder to be called for OCR-bearing image")
	}
	if !out[0].HasEmbedding() {
		t.Fatal("expected embedding")
	}
}

func TestEmbedChunksImageWithShortOCRStillUsesProjection(t *testing.T) {
	fe := &fakeEmbedder{dim: 8}
	m := newTestManager(t, fe)

	chunks := []chunk.Chunk{
		{
			ID: "img-short-ocr", Modality: chunk.Image,
			Content:  "Hi\n\nImage sign.png: 300x200 landscape, format png",
			Metadata: chunk.Metadata{OCRConfidence: 0.5, OCRTextLength: 2},
		},
	}
	out, err := m.EmbedChunks(context.Background(), chunks)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if fe.calls != 0 {
		t.Errorf("expected visual projection for OCR text below the threshold, got %d text-encoder calls", fe.calls)
	}
	if len(out[0].Embedding) != 8 {
		t.Errorf("projected embedding dim = %d, want 8", len(out[0].Embedding))
	}
}

func TestEmbedChunksPartialFailureMutatesNothing(t *testing.T) {
	fe := &fakeEmbedder{dim: 4, failOn: "bad content"}
	m := newTestManager(t, fe)

	chunks := []chunk.Chunk{
		{ID: "a", Modality: chunk.Text, Content: "good content"},
		{ID: "b", Modality: chunk.Text, Content: "bad content"},
	}
	_, err := m.EmbedChunks(context.Background(), chunks)
	if err == nil {
		t.Fatal("expected embedding error")
	}
	for _, c := range chunks {
		if c.HasEmbedding() {
			t.Fatal("input chunks must not be mutated on failure")
		}
	}
}

func TestEmbedQuery(t *testing.T) {
	fe := &fakeEmbedder{dim: 4}
	m := newTestManager(t, fe)

	vec, err := m.EmbedQuery(context.Background(), "What is the operating voltage?")
	if err != nil {
		t.Fatalf("embed query: %v", err)
	}
	if len(vec) != 4 {
		t.Errorf("query embedding dim = %d, want 4", len(vec))
	}
}
