// Package chunk defines the canonical evidence record shared by every
// stage of the pipeline: processors produce chunks, the embedding manager
// fills their vectors, the store persists them, and retrieval/reasoning
// read them back.
package chunk

import "fmt"

// Modality is the kind of content a chunk represents.
type Modality string

const (
	Text  Modality = "TEXT"
	Image Modality = "IMAGE"
	Audio Modality = "AUDIO"
)

// Valid reports whether m is one of the enumerated modalities.
func (m Modality) Valid() bool {
	switch m {
	case Text, Image, Audio:
		return true
	default:
		return false
	}
}

// SourceType records which processor produced a chunk and from what kind
// of origin file.
type SourceType string

const (
	UploadedText  SourceType = "uploaded_text"
	UploadedImage SourceType = "uploaded_image"
	UploadedAudio SourceType = "uploaded_audio"
	PDFText       SourceType = "pdf_text"
	PDFImage      SourceType = "pdf_embedded_image"
	PDFImageOCR   SourceType = "pdf_image_ocr"
	DocxText      SourceType = "docx_text"
)

// Metadata carries the keyed attributes a chunk may have depending on its
// modality and origin. Fields are zero-valued when not applicable, and
// omitempty keeps JSON-marshaled metadata compact.
type Metadata struct {
	PageNumber               int     `json:"page_number,omitempty"`
	ImageIndex               int     `json:"image_index,omitempty"`
	PositionInDocument       int     `json:"position_in_document,omitempty"`
	Order                    int     `json:"order,omitempty"`
	Language                 string  `json:"language,omitempty"`
	OCRConfidence            float64 `json:"ocr_confidence,omitempty"`
	OCRTextLength            int     `json:"ocr_text_length,omitempty"`
	TranscriptionConfidence  float64 `json:"transcription_confidence,omitempty"`
	ParentChunkID            string  `json:"parent_chunk_id,omitempty"`
	Format                   string  `json:"format,omitempty"`
	Width                    int     `json:"width,omitempty"`
	Height                   int     `json:"height,omitempty"`
	DurationSeconds          float64 `json:"duration_seconds,omitempty"`
	SegmentStart             float64 `json:"segment_start,omitempty"`
	SegmentEnd               float64 `json:"segment_end,omitempty"`
	Status                   string  `json:"status,omitempty"` // e.g. "failed" for an unembeddable audio chunk
	Warning                  string  `json:"warning,omitempty"`
}

// Chunk is the atomic unit of evidence.
type Chunk struct {
	ID         string     `json:"id"`
	Modality   Modality   `json:"modality"`
	Content    string     `json:"content"`
	SourceFile string     `json:"source_file"`
	SourceType SourceType `json:"source_type"`
	Metadata   Metadata   `json:"metadata"`
	Embedding  []float32  `json:"embedding,omitempty"`
	Confidence float64    `json:"confidence"`
}

// HasEmbedding reports whether the chunk carries a non-empty vector.
func (c Chunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// Validate checks the invariants a chunk must satisfy before it is
// accepted by the vector store (embedding dimension is checked by the
// store itself, since the store is the one that knows the declared
// dimension).
func (c Chunk) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("chunk: empty id")
	}
	if !c.Modality.Valid() {
		return fmt.Errorf("chunk %s: invalid modality %q", c.ID, c.Modality)
	}
	if c.SourceFile == "" {
		return fmt.Errorf("chunk %s: empty source_file", c.ID)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("chunk %s: confidence %.3f out of [0,1]", c.ID, c.Confidence)
	}
	if c.SourceType == PDFImageOCR && c.Metadata.ParentChunkID == "" {
		return fmt.Errorf("chunk %s: pdf_image_ocr chunk missing parent_chunk_id", c.ID)
	}
	return nil
}
