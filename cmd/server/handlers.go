package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/brunobiangulo/ragcore"
)

type handler struct {
	engine *ragcore.Engine
}

func newHandler(e *ragcore.Engine) *handler {
	return &handler{engine: e}
}

// POST /ingest
// Accepts a multipart file upload under the "file" field.
func (h *handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	if err := r.ParseMultipartForm(100 << 20); err != nil { // 100MB max
		writeError(w, http.StatusBadRequest, "expected multipart file upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read upload")
		slog.Error("reading uploaded file", "error", err)
		return
	}

	safeName := filepath.Base(header.Filename)
	report, err := h.engine.Ingest(ctx, data, safeName)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "ingestion failed")
		slog.Error("ingest error", "filename", safeName, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"filename":       safeName,
		"chunks_created": report.ChunksCreated,
		"modality":       report.Modality,
		"warnings":       report.Warnings,
	})
}

// POST /query
func (h *handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	var req struct {
		Query                 string `json:"query"`
		Persona               string `json:"persona,omitempty"`
		EnableAutoTranslate   bool   `json:"enable_auto_translate,omitempty"`
		TargetLanguage        string `json:"target_language,omitempty"`
		TopK                  int    `json:"top_k,omitempty"`
		Debate                bool   `json:"debate,omitempty"`
		IncludeReasoningChain bool   `json:"include_reasoning_chain,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	resp, err := h.engine.Query(ctx, ragcore.QueryRequest{
		Query:                 req.Query,
		Persona:               req.Persona,
		EnableAutoTranslate:   req.EnableAutoTranslate,
		TargetLanguage:        req.TargetLanguage,
		TopK:                  req.TopK,
		Debate:                req.Debate,
		IncludeReasoningChain: req.IncludeReasoningChain,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		slog.Error("query error", "query", req.Query, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// POST /reset
func (h *handler) handleReset(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 1*time.Minute)
	defer cancel()

	if err := h.engine.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "reset failed")
		slog.Error("reset error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// GET /stats
func (h *handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read stats")
		slog.Error("stats error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GET /languages
func (h *handler) handleLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"languages": h.engine.SupportedLanguages(),
	})
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf("%s", msg)})
}
