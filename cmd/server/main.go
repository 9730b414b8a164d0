package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brunobiangulo/ragcore"
	"github.com/brunobiangulo/ragcore/llm"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (JSON)")
	addr := flag.String("addr", ":8080", "Listen address")
	flag.Parse()

	// Structured JSON logging.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg := ragcore.DefaultConfig()
	if *configPath != "" {
		f, err := os.Open(*configPath)
		if err != nil {
			slog.Error("opening config", "error", err)
			os.Exit(1)
		}
		if err := json.NewDecoder(f).Decode(&cfg); err != nil {
			f.Close()
			slog.Error("parsing config", "error", err)
			os.Exit(1)
		}
		f.Close()
	}

	// Override from environment variables.
	if v := os.Getenv("RAGCORE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("RAGCORE_CHAT_BASE_URL"); v != "" && len(cfg.ChatProviders) > 0 {
		cfg.ChatProviders[0].BaseURL = v
	}
	if v := os.Getenv("RAGCORE_EMBED_BASE_URL"); v != "" && len(cfg.EmbeddingProviders) > 0 {
		cfg.EmbeddingProviders[0].BaseURL = v
	}
	if v := os.Getenv("RAGCORE_CHAT_API_KEY"); v != "" && len(cfg.ChatProviders) > 0 {
		cfg.ChatProviders[0].APIKey = v
	}
	if v := os.Getenv("RAGCORE_EMBED_API_KEY"); v != "" && len(cfg.EmbeddingProviders) > 0 {
		cfg.EmbeddingProviders[0].APIKey = v
	}
	if v := os.Getenv("RAGCORE_CHAT_MODEL"); v != "" && len(cfg.ChatProviders) > 0 {
		cfg.ChatProviders[0].Model = v
	}
	if v := os.Getenv("RAGCORE_EMBED_MODEL"); v != "" && len(cfg.EmbeddingProviders) > 0 {
		cfg.EmbeddingProviders[0].Model = v
	}
	if v := os.Getenv("RAGCORE_TESSERACT_PATH"); v != "" {
		cfg.TesseractPath = v
	}
	if v := os.Getenv("RAGCORE_AUDIO_DECODER_PATH"); v != "" {
		cfg.AudioDecoderPath = v
	}

	// Fallback: check well-known provider env vars for API keys.
	fillAPIKey := func(p *llm.Config) {
		if p.APIKey != "" {
			return
		}
		switch p.Provider {
		case "openai":
			p.APIKey = os.Getenv("OPENAI_API_KEY")
		case "groq":
			p.APIKey = os.Getenv("GROQ_API_KEY")
		case "gemini":
			p.APIKey = os.Getenv("GEMINI_API_KEY")
		case "openrouter":
			p.APIKey = os.Getenv("OPENROUTER_API_KEY")
		case "xai":
			p.APIKey = os.Getenv("XAI_API_KEY")
		}
	}
	for i := range cfg.ChatProviders {
		fillAPIKey(&cfg.ChatProviders[i])
	}
	for i := range cfg.EmbeddingProviders {
		fillAPIKey(&cfg.EmbeddingProviders[i])
	}
	for i := range cfg.VisionProviders {
		fillAPIKey(&cfg.VisionProviders[i])
	}

	apiKey := os.Getenv("RAGCORE_API_KEY")
	corsOrigins := os.Getenv("RAGCORE_CORS_ORIGINS")

	engine, err := ragcore.New(cfg)
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	h := newHandler(engine)
	mux := http.NewServeMux()

	mux.HandleFunc("POST /ingest", h.handleIngest)
	mux.HandleFunc("POST /query", h.handleQuery)
	mux.HandleFunc("POST /reset", h.handleReset)
	mux.HandleFunc("GET /stats", h.handleStats)
	mux.HandleFunc("GET /languages", h.handleLanguages)
	mux.HandleFunc("GET /health", h.handleHealth)

	// Middleware chain: recovery -> cors -> auth -> logging -> mux
	var handler http.Handler = mux
	handler = logMiddleware(handler)
	handler = authMiddleware(apiKey, handler)
	handler = corsMiddleware(corsOrigins, handler)
	handler = recoveryMiddleware(handler)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming responses (ingest can be long)
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}
