package reasoning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brunobiangulo/ragcore/chunk"
	"github.com/brunobiangulo/ragcore/embedding"
	"github.com/brunobiangulo/ragcore/llm"
	"github.com/brunobiangulo/ragcore/retrieval"
)

// fakeSimilarEmbedder returns identical vectors for every input so every
// claim pair scores maximal cosine similarity, isolating the contradicts()
// logic from real embedding behavior.
type fakeSimilarEmbedder struct{ dim int }

func (f *fakeSimilarEmbedder) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeSimilarEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dim)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}

func newConflictTestManager() *embedding.Manager {
	fe := &fakeSimilarEmbedder{dim: 4}
	chain := llm.NewFallbackChain([]llm.Provider{fe}, 5*time.Second)
	return embedding.New(chain, fe.dim)
}

func TestDetectNumericMismatchSameUnit(t *testing.T) {
	results := []retrieval.Result{
		{Chunk: chunk.Chunk{SourceFile: "manual.txt", Content: "Operating voltage is 220V.", Confidence: 0.9}},
		{Chunk: chunk.Chunk{SourceFile: "label.png", Content: "MACHINE LABEL Voltage: 110V", Confidence: 0.9}},
	}
	conflicts, err := Detect(context.Background(), newConflictTestManager(), results)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(conflicts))
	}
	if conflicts[0].Severity != SeverityHigh {
		t.Errorf("severity = %s, want high (both confidences >= 0.7)", conflicts[0].Severity)
	}
}

func TestDetectNoConflictSameSource(t *testing.T) {
	results := []retrieval.Result{
		{Chunk: chunk.Chunk{SourceFile: "manual.txt", Content: "Operating voltage is 220V.", Confidence: 0.9}},
		{Chunk: chunk.Chunk{SourceFile: "manual.txt", Content: "Standby voltage is 110V.", Confidence: 0.9}},
	}
	conflicts, err := Detect(context.Background(), newConflictTestManager(), results)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(conflicts) != 0 {
		t.Errorf("expected no conflict within a single source, got %d", len(conflicts))
	}
}

func TestDetectSymmetryDedup(t *testing.T) {
	results := []retrieval.Result{
		{Chunk: chunk.Chunk{SourceFile: "manual.txt", Content: "Operating voltage is 220V.", Confidence: 0.5}},
		{Chunk: chunk.Chunk{SourceFile: "label.png", Content: "Voltage reading 110V observed.", Confidence: 0.5}},
	}
	conflicts, err := Detect(context.Background(), newConflictTestManager(), results)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("expected exactly 1 deduped conflict, got %d", len(conflicts))
	}
}

func TestDetectTextualContradictionIsMedium(t *testing.T) {
	results := []retrieval.Result{
		{Chunk: chunk.Chunk{SourceFile: "manual.txt", Content: "The override switch is enabled by default.", Confidence: 0.9}},
		{Chunk: chunk.Chunk{SourceFile: "addendum.txt", Content: "The override switch is disabled by default.", Confidence: 0.9}},
	}
	conflicts, err := Detect(context.Background(), newConflictTestManager(), results)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(conflicts))
	}
	if conflicts[0].Severity != SeverityMedium {
		t.Errorf("severity = %s, want medium for a textual contradiction", conflicts[0].Severity)
	}
}

func TestDetectLowConfidenceNumericMismatchIsLow(t *testing.T) {
	results := []retrieval.Result{
		{Chunk: chunk.Chunk{SourceFile: "manual.txt", Content: "Operating voltage is 220V.", Confidence: 0.4}},
		{Chunk: chunk.Chunk{SourceFile: "label.png", Content: "MACHINE LABEL Voltage: 110V", Confidence: 0.4}},
	}
	conflicts, err := Detect(context.Background(), newConflictTestManager(), results)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(conflicts))
	}
	if conflicts[0].Severity != SeverityLow {
		t.Errorf("severity = %s, want low for a numeric mismatch below the high-confidence floor", conflicts[0].Severity)
	}
}

func TestDetectFewerThanTwoClaimsNoConflict(t *testing.T) {
	results := []retrieval.Result{
		{Chunk: chunk.Chunk{SourceFile: "manual.txt", Content: "This document has no measurable claims at all."}},
	}
	conflicts, err := Detect(context.Background(), newConflictTestManager(), results)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if conflicts != nil {
		t.Errorf("expected nil conflicts, got %v", conflicts)
	}
}
