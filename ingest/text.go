package ingest

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/brunobiangulo/ragcore/chunk"
)

// TextProcessor handles plain text (.txt) and Word (.docx) files, splitting
// content into TEXT chunks on paragraph/sentence boundaries.
type TextProcessor struct {
	ChunkSize    int
	ChunkOverlap int
}

func NewTextProcessor(cfg Config) *TextProcessor {
	size, overlap := cfg.TextChunkSize, cfg.TextChunkOverlap
	if size <= 0 {
		size = 500
	}
	if overlap <= 0 {
		overlap = 50
	}
	return &TextProcessor{ChunkSize: size, ChunkOverlap: overlap}
}

func (p *TextProcessor) SupportedFormats() []string { return []string{"txt", "docx"} }

func (p *TextProcessor) Process(ctx context.Context, path, sourceFile string) ([]chunk.Chunk, error) {
	var body string
	var sourceType chunk.SourceType

	switch {
	case strings.HasSuffix(strings.ToLower(path), ".docx"):
		text, err := extractDocxBody(path)
		if err != nil {
			return nil, newProcessingError(Corrupt, "reading docx body", err)
		}
		body = text
		sourceType = chunk.DocxText
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, newProcessingError(Corrupt, "reading text file", err)
		}
		body = string(data)
		sourceType = chunk.UploadedText
	}

	fragments := splitIntoChunks(body, p.ChunkSize, p.ChunkOverlap)
	chunks := make([]chunk.Chunk, 0, len(fragments))
	for i, frag := range fragments {
		chunks = append(chunks, chunk.Chunk{
			ID:         uuid.NewString(),
			Modality:   chunk.Text,
			Content:    frag,
			SourceFile: sourceFile,
			SourceType: sourceType,
			Metadata:   chunk.Metadata{Order: i},
			Confidence: 1.0,
		})
	}
	return chunks, nil
}

func extractDocxBody(path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", err
	}
	defer r.Close()

	var docFile *zip.File
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", io.ErrUnexpectedEOF
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}

	var doc docxDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, para := range doc.Body.Paras {
		text := extractParaText(para)
		if text == "" {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

type docxDocument struct {
	XMLName xml.Name `xml:"document"`
	Body    docxBody `xml:"body"`
}

type docxBody struct {
	Paras []docxPara `xml:"p"`
}

type docxPara struct {
	Runs []docxRun `xml:"r"`
}

type docxRun struct {
	Text []docxText `xml:"t"`
}

type docxText struct {
	Content string `xml:",chardata"`
}

func extractParaText(para docxPara) string {
	var b strings.Builder
	for _, run := range para.Runs {
		for _, t := range run.Text {
			b.WriteString(t.Content)
		}
	}
	return b.String()
}
