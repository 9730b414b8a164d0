package ingest

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/brunobiangulo/ragcore/chunk"
)

// Processor turns one file into chunks with embedding left unset.
type Processor interface {
	SupportedFormats() []string
	Process(ctx context.Context, path, sourceFile string) ([]chunk.Chunk, error)
}

// Registry dispatches a file extension to the processor that handles it.
type Registry struct {
	processors map[string]Processor
}

// NewRegistry builds a registry wired to every modality processor
// according to cfg. TesseractPath/AudioDecoderPath may be empty, in which
// case OCR/transcription are skipped or the audio processor rejects files
// with DependencyMissing. captioner may be nil, in which case images with
// thin OCR text fall back to their bare resolution/format descriptor.
func NewRegistry(cfg Config, tesseractPath string, captioner VisionCaptioner) *Registry {
	r := &Registry{processors: make(map[string]Processor)}

	text := NewTextProcessor(cfg)
	pdfProc := NewPDFProcessor(cfg, tesseractPath, captioner)
	img := NewImageProcessor(tesseractPath, captioner)
	audio := NewAudioProcessor(cfg.AudioDecoderPath)

	for _, p := range []Processor{text, pdfProc, img, audio} {
		for _, format := range p.SupportedFormats() {
			r.processors[format] = p
		}
	}
	return r
}

// Register overrides or adds a processor for a format.
func (r *Registry) Register(format string, p Processor) {
	r.processors[format] = p
}

func (r *Registry) Get(format string) (Processor, bool) {
	p, ok := r.processors[format]
	return p, ok
}

// ProcessFile dispatches path to the processor matching its extension.
func (r *Registry) ProcessFile(ctx context.Context, path, sourceFile string) ([]chunk.Chunk, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	p, ok := r.Get(ext)
	if !ok {
		return nil, newProcessingError(UnsupportedFormat, ext, nil)
	}
	return p.Process(ctx, path, sourceFile)
}
