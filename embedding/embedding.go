// Package embedding places every chunk and every query into one shared
// vector space. Text, OCR text and audio transcripts go through a text
// encoder; images without enough OCR text go through a fixed projection of
// a stand-in visual encoder so every vector ends up in the same space.
package embedding

import (
	"context"
	"fmt"

	"github.com/brunobiangulo/ragcore/chunk"
	"github.com/brunobiangulo/ragcore/llm"
)

// minOCRCharsForTextEmbedding is the threshold on the OCR text's own length
// (chunk.Metadata.OCRTextLength, not the full chunk content) at which an
// IMAGE chunk is embedded with the text encoder instead of the visual
// projection, mirroring the OCR-chunk emission threshold used by the PDF
// and image processors.
const minOCRCharsForTextEmbedding = 20

// DefaultBatchSize bounds how many chunks are embedded per text-encoder
// call.
const DefaultBatchSize = 32

// EmbeddingError is raised when any chunk in a batch fails to embed; no
// chunk in the batch is mutated.
type EmbeddingError struct {
	Detail string
	Err    error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding: %s: %v", e.Detail, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// Manager produces embeddings for chunks and queries in the shared space.
type Manager struct {
	textEncoder *llm.FallbackChain
	projection  *Projection
	dim         int
	batchSize   int
}

// New builds a Manager. textEncoder embeds TEXT/AUDIO content and the
// OCR-bearing branch of IMAGE content; dim is the shared embedding
// dimension, used to size the deterministic visual projection.
func New(textEncoder *llm.FallbackChain, dim int) *Manager {
	return &Manager{
		textEncoder: textEncoder,
		projection:  NewProjection(dim),
		dim:         dim,
		batchSize:   DefaultBatchSize,
	}
}

// EmbedQuery always uses the text encoder, since queries are text
// regardless of the modalities they're meant to retrieve.
func (m *Manager) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.textEncoder.Embed(ctx, []string{text})
	if err != nil {
		return nil, &EmbeddingError{Detail: "query embedding failed", Err: err}
	}
	if len(vecs) == 0 {
		return nil, &EmbeddingError{Detail: "query embedding returned no vectors", Err: nil}
	}
	return vecs[0], nil
}

// EmbedChunks sets Embedding on every chunk with non-empty content. Chunks
// with empty content (e.g. a failed audio transcript) are left untouched
// and must be filtered by the caller before insertion into the store.
// On any batch failure, no input chunk is mutated.
func (m *Manager) EmbedChunks(ctx context.Context, chunks []chunk.Chunk) ([]chunk.Chunk, error) {
	out := make([]chunk.Chunk, len(chunks))
	copy(out, chunks)

	var textIdx []int
	var textInputs []string
	var visualIdx []int

	for i, c := range out {
		if c.Content == "" {
			continue
		}
		if c.Modality == chunk.Image && !hasSubstantialOCR(c) {
			visualIdx = append(visualIdx, i)
			continue
		}
		textIdx = append(textIdx, i)
		textInputs = append(textInputs, c.Content)
	}

	for start := 0; start < len(textInputs); start += m.batchSize {
		end := start + m.batchSize
		if end > len(textInputs) {
			end = len(textInputs)
		}
		vecs, err := m.textEncoder.Embed(ctx, textInputs[start:end])
		if err != nil {
			return nil, &EmbeddingError{Detail: "text batch embedding failed", Err: err}
		}
		if len(vecs) != end-start {
			return nil, &EmbeddingError{Detail: "text encoder returned mismatched batch size", Err: nil}
		}
		for j, vec := range vecs {
			out[textIdx[start+j]].Embedding = vec
		}
	}

	for _, i := range visualIdx {
		features := visualFeatures(out[i].Content)
		out[i].Embedding = m.projection.Project(features)
	}

	return out, nil
}

func hasSubstantialOCR(c chunk.Chunk) bool {
	return c.Metadata.OCRConfidence > 0 && c.Metadata.OCRTextLength >= minOCRCharsForTextEmbedding
}
