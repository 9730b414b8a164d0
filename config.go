package ragcore

import (
	"os"
	"path/filepath"

	"github.com/brunobiangulo/ragcore/llm"
)

// Config holds all configuration for the ragcore engine.
type Config struct {
	// DBPath is the full path to the SQLite vector index file. If empty,
	// defaults to ~/.ragcore/<DBName>.db
	DBPath     string `json:"db_path"`
	DBName     string `json:"db_name"`
	StorageDir string `json:"storage_dir"` // "home" (default) or "local"

	// UploadsDir holds the original ingested files, keyed by source_file.
	UploadsDir string `json:"uploads_dir"`

	// LLM providers, tried in the order given within each list.
	ChatProviders      []llm.Config `json:"chat_providers"`
	EmbeddingProviders []llm.Config `json:"embedding_providers"`
	VisionProviders    []llm.Config `json:"vision_providers"`
	TranslationProviders []llm.Config `json:"translation_providers"` // defaults to ChatProviders when empty

	// Shared embedding space.
	VectorDim int `json:"vector_dim"`

	// Text chunking.
	TextChunkSize    int `json:"text_chunk_size"`
	TextChunkOverlap int `json:"text_chunk_overlap"`

	// PDF image extraction.
	PDFExtractImages    bool `json:"pdf_extract_images"`
	PDFMinImageWidth    int  `json:"pdf_min_image_width"`
	PDFMinImageHeight   int  `json:"pdf_min_image_height"`
	PDFMaxImagesPerPage int  `json:"pdf_max_images_per_page"`

	// Retrieval / reasoning.
	DefaultTopK            int     `json:"default_top_k"`
	ConfidenceThreshold    float64 `json:"confidence_threshold"`
	MaxRetrievalIterations int     `json:"max_retrieval_iterations"`

	// LLM client.
	LLMDeadlineMS int `json:"llm_deadline_ms"`

	// Translation.
	TranslationEnabled bool `json:"translation_enabled"`

	// Concurrency.
	MaxInflightInference int `json:"max_inflight_inference"`
	MaxInflightIngest    int `json:"max_inflight_ingest"`

	// AudioDecoderPath is the external speech-to-text binary invoked by
	// the audio processor.
	AudioDecoderPath string `json:"audio_decoder_path"`

	// TesseractPath is the external OCR binary invoked by the image and
	// PDF processors. Empty disables OCR.
	TesseractPath string `json:"tesseract_path"`
}

// DefaultConfig returns a Config with sensible defaults for local
// inference against an Ollama-compatible backend.
func DefaultConfig() Config {
	return Config{
		DBName:     "ragcore",
		StorageDir: "home",
		ChatProviders: []llm.Config{
			{Provider: "ollama", Model: "llama3.1:8b", BaseURL: "http://localhost:11434"},
		},
		EmbeddingProviders: []llm.Config{
			{Provider: "ollama", Model: "nomic-embed-text", BaseURL: "http://localhost:11434"},
		},
		VisionProviders: []llm.Config{
			{Provider: "ollama", Model: "llama3.2-vision", BaseURL: "http://localhost:11434"},
		},
		VectorDim:              384,
		TextChunkSize:          500,
		TextChunkOverlap:       50,
		PDFExtractImages:       true,
		PDFMinImageWidth:       100,
		PDFMinImageHeight:      100,
		PDFMaxImagesPerPage:    10,
		DefaultTopK:            5,
		ConfidenceThreshold:    0.4,
		MaxRetrievalIterations: 1,
		LLMDeadlineMS:          120_000,
		TranslationEnabled:     true,
		MaxInflightInference:   4,
		MaxInflightIngest:      4,
	}
}

// resolveDBPath computes the final vector index path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	name := c.DBName
	if name == "" {
		name = "ragcore"
	}
	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db"
		}
		return filepath.Join(home, ".ragcore", name+".db")
	}
}

func (c *Config) resolveUploadsDir() string {
	if c.UploadsDir != "" {
		return c.UploadsDir
	}
	return filepath.Join(filepath.Dir(c.resolveDBPath()), "uploads")
}
