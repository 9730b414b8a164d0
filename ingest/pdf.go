package ingest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"math"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"github.com/brunobiangulo/ragcore/chunk"
)

// PDFProcessor treats a PDF as a container: page text becomes TEXT chunks,
// embedded raster images become IMAGE chunks, and images with enough OCR
// text get a paired pdf_image_ocr TEXT chunk linked via parent_chunk_id.
type PDFProcessor struct {
	ChunkSize     int
	ChunkOverlap  int
	ExtractImages bool
	MinWidth      int
	MinHeight     int
	MaxPerPage    int
	TesseractPath string
	// Captioner describes an embedded image when its paired OCR text is too
	// thin to stand on its own. May be nil.
	Captioner VisionCaptioner

	// ocrFunc performs OCR on extracted image bytes. Defaults to
	// ocrImageBytes (shelling out to TesseractPath); overridable in tests
	// so the image+OCR pairing logic can be exercised without a tesseract
	// binary on the test machine.
	ocrFunc func(ctx context.Context, data []byte) (string, float64)
}

func NewPDFProcessor(cfg Config, tesseractPath string, captioner VisionCaptioner) *PDFProcessor {
	size, overlap := cfg.TextChunkSize, cfg.TextChunkOverlap
	if size <= 0 {
		size = 500
	}
	if overlap <= 0 {
		overlap = 50
	}
	minW, minH, maxPerPage := cfg.PDFMinImageWidth, cfg.PDFMinImageHeight, cfg.PDFMaxImagesPerPage
	if minW <= 0 {
		minW = 100
	}
	if minH <= 0 {
		minH = 100
	}
	if maxPerPage <= 0 {
		maxPerPage = 10
	}
	return &PDFProcessor{
		ChunkSize: size, ChunkOverlap: overlap,
		ExtractImages: cfg.PDFExtractImages,
		MinWidth:      minW, MinHeight: minH, MaxPerPage: maxPerPage,
		TesseractPath: tesseractPath,
		Captioner:     captioner,
	}
}

func (p *PDFProcessor) SupportedFormats() []string { return []string{"pdf"} }

func (p *PDFProcessor) Process(ctx context.Context, path, sourceFile string) ([]chunk.Chunk, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, newProcessingError(Corrupt, "opening PDF", err)
	}
	defer f.Close()

	var chunks []chunk.Chunk
	var warning string

	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text, err := extractPageTextOrdered(page)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text != "" {
			fragments := splitIntoChunks(text, p.ChunkSize, p.ChunkOverlap)
			for i, frag := range fragments {
				chunks = append(chunks, chunk.Chunk{
					ID:         uuid.NewString(),
					Modality:   chunk.Text,
					Content:    frag,
					SourceFile: sourceFile,
					SourceType: chunk.PDFText,
					Confidence: 1.0,
					Metadata:   chunk.Metadata{PageNumber: pageNum, Order: i},
				})
			}
		}

		if !p.ExtractImages {
			continue
		}
		images, err := p.extractPageImages(page, pageNum)
		if err != nil {
			warning = fmt.Sprintf("page %d: image extraction failed: %v", pageNum, err)
			slog.Warn("pdf: image extraction failed, falling back to text-only for page", "page", pageNum, "error", err)
			continue
		}
		for idx, img := range images {
			imgChunk, ocrChunk := p.buildImageChunks(ctx, img, sourceFile, pageNum, idx)
			chunks = append(chunks, imgChunk)
			if ocrChunk != nil {
				chunks = append(chunks, *ocrChunk)
			}
		}
	}

	attachPageWarning(chunks, warning)
	if len(chunks) == 0 {
		return nil, newProcessingError(Corrupt, "no extractable content", nil)
	}
	return chunks, nil
}

// attachPageWarning records a page-level processing warning (e.g. image
// extraction failing on one page while text still came through) on the
// first chunk, since chunks carry no document-level metadata slot.
func attachPageWarning(chunks []chunk.Chunk, warning string) {
	if warning != "" && len(chunks) > 0 {
		chunks[0].Metadata.Warning = warning
	}
}

type extractedPDFImage struct {
	data          []byte
	format        string
	width, height int
}

func (p *PDFProcessor) extractPageImages(page pdf.Page, pageNum int) ([]extractedPDFImage, error) {
	resources := page.Resources()
	if resources.IsNull() {
		return nil, nil
	}
	xobjects := resources.Key("XObject")
	if xobjects.IsNull() {
		return nil, nil
	}

	var images []extractedPDFImage
	for _, name := range xobjects.Keys() {
		if len(images) >= p.MaxPerPage {
			break
		}
		xobj := xobjects.Key(name)
		if xobj.Key("Subtype").Name() != "Image" || xobj.Key("ImageMask").Bool() {
			continue
		}
		width := int(xobj.Key("Width").Int64())
		height := int(xobj.Key("Height").Int64())
		if !meetsMinimumSize(width, height, p.MinWidth, p.MinHeight) {
			continue
		}

		data, format := decodeImageXObject(xobj, width, height, pageNum, name)
		if data == nil {
			continue
		}
		images = append(images, extractedPDFImage{data: data, format: format, width: width, height: height})
	}
	return images, nil
}

// meetsMinimumSize reports whether an embedded image clears the configured
// minimum dimensions worth extracting as its own chunk.
func meetsMinimumSize(width, height, minWidth, minHeight int) bool {
	return width >= minWidth && height >= minHeight
}

func (p *PDFProcessor) buildImageChunks(ctx context.Context, img extractedPDFImage, sourceFile string, pageNum, idx int) (chunk.Chunk, *chunk.Chunk) {
	ocrFn := p.ocrFunc
	if ocrFn == nil {
		ocrFn = p.ocrImageBytes
	}
	ocrText, ocrConfidence := ocrFn(ctx, img.data)

	caption := ""
	if len(ocrText) < captionOCRThreshold && p.Captioner != nil {
		c, err := p.Captioner.Caption(ctx, img.data, mimeTypeForFormat(img.format))
		if err != nil {
			slog.Warn("pdf: vision captioning failed", "page", pageNum, "image_index", idx, "error", err)
		} else {
			caption = c
		}
	}

	imgID := uuid.NewString()
	content := buildImageDescription(sourceFile, img.format, img.width, img.height, "", caption)
	imgChunk := chunk.Chunk{
		ID:         imgID,
		Modality:   chunk.Image,
		Content:    content,
		SourceFile: sourceFile,
		SourceType: chunk.PDFImage,
		Confidence: intrinsicImageConfidence(img.width, img.height, ocrConfidence),
		Metadata: chunk.Metadata{
			PageNumber:    pageNum,
			ImageIndex:    idx,
			Width:         img.width,
			Height:        img.height,
			OCRConfidence: ocrConfidence,
			OCRTextLength: len(ocrText),
		},
	}

	if len(ocrText) < 20 {
		return imgChunk, nil
	}
	ocrChunk := chunk.Chunk{
		ID:         uuid.NewString(),
		Modality:   chunk.Text,
		Content:    ocrText,
		SourceFile: sourceFile,
		SourceType: chunk.PDFImageOCR,
		Confidence: ocrConfidence,
		Metadata: chunk.Metadata{
			PageNumber:    pageNum,
			ImageIndex:    idx,
			ParentChunkID: imgID,
			OCRConfidence: ocrConfidence,
			OCRTextLength: len(ocrText),
		},
	}
	return imgChunk, &ocrChunk
}

// ocrImageBytes writes image data to a temp file and shells out to
// TesseractPath, mirroring ImageProcessor.runOCR for standalone images.
func (p *PDFProcessor) ocrImageBytes(ctx context.Context, data []byte) (string, float64) {
	if p.TesseractPath == "" {
		return "", 0
	}
	tmp, err := os.CreateTemp("", "pdf-image-*.png")
	if err != nil {
		return "", 0
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", 0
	}
	tmp.Close()

	proc := &ImageProcessor{TesseractPath: p.TesseractPath}
	return proc.runOCR(ctx, tmp.Name())
}

// extractPageTextOrdered groups a page's content-stream text elements into
// visual lines by Y proximity, then orders lines top-to-bottom. The
// content-stream order within a line is preserved since glyph order,
// not X position, determines correct character sequencing for some PDFs.
func extractPageTextOrdered(page pdf.Page) (string, error) {
	content := page.Content()
	if len(content.Text) == 0 {
		return page.GetPlainText(nil)
	}

	const lineTolerance = 3.0
	type visualLine struct {
		y   float64
		buf strings.Builder
	}

	var lines []*visualLine
	var cur *visualLine
	for _, t := range content.Text {
		if cur == nil || math.Abs(t.Y-cur.y) > lineTolerance {
			lines = append(lines, &visualLine{y: t.Y})
			cur = lines[len(lines)-1]
		}
		cur.buf.WriteString(t.S)
	}

	sort.SliceStable(lines, func(i, j int) bool { return lines[i].y > lines[j].y })

	var parts []string
	for _, l := range lines {
		if text := strings.TrimSpace(l.buf.String()); text != "" {
			parts = append(parts, text)
		}
	}
	result := strings.Join(parts, "\n")
	if strings.TrimSpace(result) == "" {
		return page.GetPlainText(nil)
	}
	return result, nil
}

// decodeImageXObject reads an embedded image's pixel data, handling panics
// from the pdf library on filter combinations it doesn't natively support.
// The returned format ("jpeg" or "png") tells the caller how to present
// data bytes to an OCR binary, a vision captioner, or buildImageDescription.
func decodeImageXObject(xobj pdf.Value, width, height, pageNum int, name string) (data []byte, format string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("pdf: panic reading image stream, skipping", "page", pageNum, "name", name, "panic", r)
			data, format = nil, ""
		}
	}()

	filter := xobj.Key("Filter").Name()
	switch filter {
	case "DCTDecode":
		raw, err := readRawStreamBytes(xobj)
		if err != nil || len(raw) < 2 || raw[0] != 0xff || raw[1] != 0xd8 {
			return nil, ""
		}
		return raw, "jpeg"

	case "FlateDecode", "":
		rc := xobj.Reader()
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, ""
		}
		encoded, err := rawPixelsToPNG(raw, width, height, xobj.Key("ColorSpace").Name())
		if err != nil {
			return nil, ""
		}
		return encoded, "png"

	default:
		return nil, ""
	}
}

// readRawStreamBytes reads the unfiltered stream bytes directly from the
// underlying file, bypassing the pdf library's filter chain (which panics
// on DCTDecode in some PDF versions); for JPEG the raw bytes already are
// valid JPEG data.
func readRawStreamBytes(v pdf.Value) ([]byte, error) {
	length := v.Key("Length").Int64()
	if length <= 0 {
		return nil, fmt.Errorf("stream has no length")
	}
	val := reflect.ValueOf(v)
	dataField := val.Field(2)
	if dataField.IsNil() {
		return nil, fmt.Errorf("value has nil data")
	}
	streamVal := dataField.Elem()
	if streamVal.Kind() == reflect.Ptr {
		streamVal = streamVal.Elem()
	}
	offset := streamVal.Field(2).Int()

	rField := val.Field(0)
	if rField.IsNil() {
		return nil, fmt.Errorf("value has nil reader")
	}
	readerStruct := reflect.NewAt(rField.Type().Elem(), rField.UnsafePointer()).Elem()
	fField := readerStruct.Field(0)
	readerAt, ok := fField.Interface().(io.ReaderAt)
	if !ok {
		return nil, fmt.Errorf("reader.f is not io.ReaderAt")
	}
	buf := make([]byte, length)
	n, err := readerAt.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading stream at offset %d: %w", offset, err)
	}
	return buf[:n], nil
}

func rawPixelsToPNG(data []byte, width, height int, colorSpace string) ([]byte, error) {
	var img image.Image
	switch colorSpace {
	case "DeviceGray":
		expected := width * height
		if len(data) < expected {
			return nil, fmt.Errorf("insufficient data for gray image")
		}
		gray := image.NewGray(image.Rect(0, 0, width, height))
		copy(gray.Pix, data[:expected])
		img = gray
	default:
		expected := width * height * 3
		if len(data) < expected {
			return nil, fmt.Errorf("insufficient data for RGB image")
		}
		rgba := image.NewRGBA(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				off := (y*width + x) * 3
				rgba.SetRGBA(x, y, color.RGBA{R: data[off], G: data[off+1], B: data[off+2], A: 255})
			}
		}
		img = rgba
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
