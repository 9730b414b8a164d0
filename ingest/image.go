package ingest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/image/draw"

	"github.com/brunobiangulo/ragcore/chunk"
)

// ImageProcessor turns a standalone image file into a single IMAGE chunk:
// normalizes to RGB, runs OCR, and records a short visual descriptor.
type ImageProcessor struct {
	// TesseractPath is the OCR binary invoked on the normalized image.
	// When empty, OCR is skipped and confidence is derived from resolution
	// alone.
	TesseractPath string
	// Captioner describes the image when OCR text is too thin to stand on
	// its own. May be nil, in which case captioning is skipped.
	Captioner VisionCaptioner
}

func NewImageProcessor(tesseractPath string, captioner VisionCaptioner) *ImageProcessor {
	return &ImageProcessor{TesseractPath: tesseractPath, Captioner: captioner}
}

func (p *ImageProcessor) SupportedFormats() []string {
	return []string{"png", "jpg", "jpeg", "gif"}
}

func (p *ImageProcessor) Process(ctx context.Context, path, sourceFile string) ([]chunk.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newProcessingError(Corrupt, "opening image", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, newProcessingError(Corrupt, "decoding image", err)
	}

	rgb := normalizeToRGB(img)
	bounds := rgb.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	ocrText, ocrConfidence := p.runOCR(ctx, path)

	caption := ""
	if len(ocrText) < captionOCRThreshold && p.Captioner != nil {
		raw, rerr := os.ReadFile(path)
		if rerr == nil {
			c, cerr := p.Captioner.Caption(ctx, raw, mimeTypeForFormat(format))
			if cerr != nil {
				slog.Warn("ingest: vision captioning failed", "file", sourceFile, "error", cerr)
			} else {
				caption = c
			}
		}
	}

	content := buildImageDescription(sourceFile, format, width, height, ocrText, caption)
	confidence := intrinsicImageConfidence(width, height, ocrConfidence)

	c := chunk.Chunk{
		ID:         uuid.NewString(),
		Modality:   chunk.Image,
		Content:    content,
		SourceFile: sourceFile,
		SourceType: chunk.UploadedImage,
		Confidence: confidence,
		Metadata: chunk.Metadata{
			Format:        format,
			Width:         width,
			Height:        height,
			OCRConfidence: ocrConfidence,
			OCRTextLength: len(ocrText),
		},
	}
	return []chunk.Chunk{c}, nil
}

// runOCR shells out to TesseractPath, returning empty text and zero
// confidence when no OCR binary is configured or the run fails.
func (p *ImageProcessor) runOCR(ctx context.Context, path string) (string, float64) {
	if p.TesseractPath == "" {
		return "", 0
	}
	cmd := exec.CommandContext(ctx, p.TesseractPath, path, "stdout", "-l", "eng")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", 0
	}
	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", 0
	}
	// tesseract's plain-text mode doesn't expose a per-run confidence
	// score; approximate it from output density as a stand-in signal.
	confidence := 0.6 + 0.3*minF(1.0, float64(len(text))/200.0)
	return text, confidence
}

func normalizeToRGB(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)
	return rgba
}

func buildImageDescription(sourceFile, format string, width, height int, ocrText, caption string) string {
	var b strings.Builder
	if ocrText != "" {
		b.WriteString(ocrText)
		b.WriteString("\n\n")
	}
	if caption != "" {
		b.WriteString(caption)
		b.WriteString("\n\n")
	}
	aspect := "square"
	if width > height {
		aspect = "landscape"
	} else if height > width {
		aspect = "portrait"
	}
	fmt.Fprintf(&b, "Image %s: %dx%d %s, format %s", sourceFile, width, height, aspect, format)
	return b.String()
}

// intrinsicImageConfidence combines resolution and OCR confidence, bounded
// to [0.5, 1.0].
func intrinsicImageConfidence(width, height int, ocrConfidence float64) float64 {
	resScore := minF(1.0, float64(width*height)/(1000.0*1000.0))
	score := 0.5 + 0.5*(0.5*resScore+0.5*ocrConfidence)
	if score < 0.5 {
		score = 0.5
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
