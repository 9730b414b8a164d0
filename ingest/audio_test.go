package ingest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/brunobiangulo/ragcore/chunk"
)

func TestAudioProcessorMissingDecoder(t *testing.T) {
	p := NewAudioProcessor("")
	_, err := p.Process(context.Background(), "clip.wav", "clip.wav")
	if err == nil {
		t.Fatal("expected DependencyMissing error")
	}
}

func TestSegmentConfidenceBounds(t *testing.T) {
	if c := segmentConfidence(0, 0); c != 1 {
		t.Errorf("confidence = %v, want 1 for zero logprob and zero no-speech", c)
	}
	if c := segmentConfidence(-10, 0.9); c < 0 || c > 1 {
		t.Errorf("confidence out of [0,1]: %v", c)
	}
}

func TestAudioFailedTranscriptNotEmbeddable(t *testing.T) {
	// A configured decoder that cannot be run yields no transcript: the
	// resulting chunk must be marked failed and carry no content, per the
	// "not embedded, not inserted" rule.
	p := NewAudioProcessor(filepath.Join(t.TempDir(), "missing-decoder"))
	chunks, err := p.Process(context.Background(), "clip.wav", "clip.wav")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	c := chunks[0]
	if c.Modality != chunk.Audio {
		t.Fatalf("modality = %s, want %s", c.Modality, chunk.Audio)
	}
	if c.Content != "" {
		t.Fatalf("failed audio chunk carries content %q", c.Content)
	}
	if c.HasEmbedding() {
		t.Fatal("failed audio chunk must have no embedding")
	}
	if c.Metadata.Status != "failed" {
		t.Fatal("expected status=failed")
	}
}
