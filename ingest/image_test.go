package ingest

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writeTestPNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 200, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestImageProcessorNoOCRConfigured(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "label.png")
	writeTestPNG(t, path, 300, 200)

	p := NewImageProcessor("", nil)
	chunks, err := p.Process(context.Background(), path, "label.png")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	c := chunks[0]
	if c.Confidence < 0.5 || c.Confidence > 1.0 {
		t.Errorf("confidence %v out of [0.5, 1.0]", c.Confidence)
	}
	if c.Metadata.Width != 300 || c.Metadata.Height != 200 {
		t.Errorf("dimensions = %dx%d, want 300x200", c.Metadata.Width, c.Metadata.Height)
	}
}

func TestIntrinsicImageConfidenceBounded(t *testing.T) {
	low := intrinsicImageConfidence(10, 10, 0)
	high := intrinsicImageConfidence(4000, 4000, 1.0)
	if low < 0.5 {
		t.Errorf("low confidence %v below floor 0.5", low)
	}
	if high > 1.0 {
		t.Errorf("high confidence %v above ceiling 1.0", high)
	}
}
