package ingest

import (
	"context"
	"testing"

	"github.com/brunobiangulo/ragcore/chunk"
)

func TestBuildImageChunksPairsOCRWithParentID(t *testing.T) {
	p := NewPDFProcessor(Config{}, "", nil)
	p.ocrFunc = func(ctx context.Context, data []byte) (string, float64) {
		return "MACHINE LABEL Voltage: 110V, Current: 5A", 0.8
	}

	img := extractedPDFImage{data: []byte("fake-png-bytes"), format: "png", width: 400, height: 300}
	imgChunk, ocrChunk := p.buildImageChunks(context.Background(), img, "manual.pdf", 2, 0)

	if imgChunk.SourceType != chunk.PDFImage {
		t.Errorf("image chunk source_type = %s, want %s", imgChunk.SourceType, chunk.PDFImage)
	}
	if ocrChunk == nil {
		t.Fatal("expected a paired OCR chunk for substantial OCR text")
	}
	if ocrChunk.SourceType != chunk.PDFImageOCR {
		t.Errorf("ocr chunk source_type = %s, want %s", ocrChunk.SourceType, chunk.PDFImageOCR)
	}
	if ocrChunk.Metadata.ParentChunkID != imgChunk.ID {
		t.Errorf("ocr chunk parent_chunk_id = %q, want %q (the image chunk's id)", ocrChunk.Metadata.ParentChunkID, imgChunk.ID)
	}
	if err := ocrChunk.Validate(); err != nil {
		t.Errorf("paired ocr chunk failed validation: %v", err)
	}
	if imgChunk.Metadata.OCRTextLength == 0 {
		t.Error("expected image chunk metadata to record ocr text length")
	}
}

func TestBuildImageChunksNoPairingBelowOCRThreshold(t *testing.T) {
	p := NewPDFProcessor(Config{}, "", nil)
	p.ocrFunc = func(ctx context.Context, data []byte) (string, float64) {
		return "V5", 0.3
	}

	img := extractedPDFImage{data: []byte("fake-png-bytes"), format: "png", width: 400, height: 300}
	imgChunk, ocrChunk := p.buildImageChunks(context.Background(), img, "manual.pdf", 1, 0)

	if ocrChunk != nil {
		t.Fatalf("expected no paired OCR chunk for thin OCR text, got one with content %q", ocrChunk.Content)
	}
	if imgChunk.Metadata.OCRTextLength != 2 {
		t.Errorf("image chunk ocr_text_length = %d, want 2", imgChunk.Metadata.OCRTextLength)
	}
}

func TestBuildImageChunksFallsBackToCaptionWithoutOCR(t *testing.T) {
	p := NewPDFProcessor(Config{}, "", &fakeCaptioner{caption: "A wiring diagram showing a three-phase relay."})
	p.ocrFunc = func(ctx context.Context, data []byte) (string, float64) {
		return "", 0
	}

	img := extractedPDFImage{data: []byte("fake-jpeg-bytes"), format: "jpeg", width: 400, height: 300}
	imgChunk, ocrChunk := p.buildImageChunks(context.Background(), img, "manual.pdf", 3, 1)

	if ocrChunk != nil {
		t.Fatal("expected no paired OCR chunk when OCR produced no text")
	}
	if imgChunk.Content == "" {
		t.Fatal("expected the caption to appear in the image chunk's content")
	}
}

type fakeCaptioner struct {
	caption string
	err     error
}

func (f *fakeCaptioner) Caption(ctx context.Context, imageData []byte, mimeType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.caption, nil
}

func TestMeetsMinimumSizeSkipsUndersizedImages(t *testing.T) {
	if meetsMinimumSize(50, 50, 100, 100) {
		t.Error("expected an image below both minimums to be rejected")
	}
	if meetsMinimumSize(50, 200, 100, 100) {
		t.Error("expected an image below the width minimum to be rejected")
	}
	if !meetsMinimumSize(100, 100, 100, 100) {
		t.Error("expected an image exactly at the minimums to be accepted")
	}
	if !meetsMinimumSize(400, 300, 100, 100) {
		t.Error("expected an image above both minimums to be accepted")
	}
}

func TestAttachPageWarningOnlySetsFirstChunk(t *testing.T) {
	chunks := []chunk.Chunk{
		{ID: "a", Metadata: chunk.Metadata{}},
		{ID: "b", Metadata: chunk.Metadata{}},
	}
	attachPageWarning(chunks, "page 3: image extraction failed: unsupported filter")

	if chunks[0].Metadata.Warning == "" {
		t.Error("expected the warning to be attached to the first chunk")
	}
	if chunks[1].Metadata.Warning != "" {
		t.Error("expected only the first chunk to carry the warning")
	}
}

func TestAttachPageWarningNoopWithoutChunks(t *testing.T) {
	var chunks []chunk.Chunk
	attachPageWarning(chunks, "some warning")
	if chunks != nil {
		t.Error("expected nil slice to remain nil")
	}
}

func TestAttachPageWarningNoopWithEmptyWarning(t *testing.T) {
	chunks := []chunk.Chunk{{ID: "a"}}
	attachPageWarning(chunks, "")
	if chunks[0].Metadata.Warning != "" {
		t.Error("expected no warning to be attached when warning is empty")
	}
}
