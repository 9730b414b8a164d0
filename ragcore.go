// Package ragcore wires the ingest, embedding, storage, language,
// analysis, retrieval, and reasoning packages into a single multimodal
// question-answering engine.
package ragcore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/brunobiangulo/ragcore/analyzer"
	"github.com/brunobiangulo/ragcore/chunk"
	"github.com/brunobiangulo/ragcore/embedding"
	"github.com/brunobiangulo/ragcore/ingest"
	"github.com/brunobiangulo/ragcore/language"
	"github.com/brunobiangulo/ragcore/llm"
	"github.com/brunobiangulo/ragcore/reasoning"
	"github.com/brunobiangulo/ragcore/retrieval"
	"github.com/brunobiangulo/ragcore/store"
)

// Engine is the multimodal RAG core. Construct with New; safe for
// concurrent use by multiple queries.
type Engine struct {
	cfg Config

	store     *store.Store
	registry  *ingest.Registry
	embedder  *embedding.Manager
	languageSvc *language.Service
	retriever *retrieval.Engine

	chatLLM *llm.FallbackChain

	inferenceSem *semaphore.Weighted
	uploadsDir   string
}

// New constructs an Engine from cfg, wiring every subordinate component
// once. Models and the vector store are opened eagerly so the first query
// does not pay initialization latency.
func New(cfg Config) (*Engine, error) {
	if cfg.VectorDim == 0 {
		cfg = DefaultConfig()
	}

	s, err := store.New(cfg.resolveDBPath(), cfg.VectorDim)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	uploadsDir := cfg.resolveUploadsDir()
	if err := os.MkdirAll(uploadsDir, 0755); err != nil {
		s.Close()
		return nil, fmt.Errorf("creating uploads dir: %w", err)
	}

	embedProviders, err := buildProviders(cfg.EmbeddingProviders)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("building embedding providers: %w", err)
	}
	chatProviders, err := buildProviders(cfg.ChatProviders)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("building chat providers: %w", err)
	}
	translationProviders := cfg.TranslationProviders
	if len(translationProviders) == 0 {
		translationProviders = cfg.ChatProviders
	}
	translateProviders, err := buildProviders(translationProviders)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("building translation providers: %w", err)
	}

	visionProviders := cfg.VisionProviders
	if len(visionProviders) == 0 {
		visionProviders = cfg.ChatProviders
	}
	visionProviderList, err := buildProviders(visionProviders)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("building vision providers: %w", err)
	}

	deadline := time.Duration(cfg.LLMDeadlineMS) * time.Millisecond
	if deadline <= 0 {
		deadline = 120 * time.Second
	}

	embedChain := llm.NewFallbackChain(embedProviders, deadline)
	chatChain := llm.NewFallbackChain(chatProviders, deadline)
	translateChain := llm.NewFallbackChain(translateProviders, deadline)
	visionChain := llm.NewFallbackChain(visionProviderList, deadline)

	embedder := embedding.New(embedChain, cfg.VectorDim)

	ingestCfg := ingest.Config{
		TextChunkSize:       cfg.TextChunkSize,
		TextChunkOverlap:    cfg.TextChunkOverlap,
		PDFExtractImages:    cfg.PDFExtractImages,
		PDFMinImageWidth:    cfg.PDFMinImageWidth,
		PDFMinImageHeight:   cfg.PDFMinImageHeight,
		PDFMaxImagesPerPage: cfg.PDFMaxImagesPerPage,
		AudioDecoderPath:    cfg.AudioDecoderPath,
	}

	maxInflight := cfg.MaxInflightInference
	if maxInflight <= 0 {
		maxInflight = 4
	}

	return &Engine{
		cfg:          cfg,
		store:        s,
		registry:     ingest.NewRegistry(ingestCfg, cfg.TesseractPath, visionChain),
		embedder:     embedder,
		languageSvc:  language.New(translateChain),
		retriever:    retrieval.New(s, embedder),
		chatLLM:      chatChain,
		inferenceSem: semaphore.NewWeighted(int64(maxInflight)),
		uploadsDir:   uploadsDir,
	}, nil
}

func buildProviders(configs []llm.Config) ([]llm.Provider, error) {
	providers := make([]llm.Provider, 0, len(configs))
	for _, c := range configs {
		p, err := llm.NewProvider(c)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, nil
}

// Close releases the engine's store handle.
func (e *Engine) Close() error { return e.store.Close() }

// IngestReport summarizes the result of ingesting one file.
type IngestReport struct {
	ChunksCreated int
	Modality      chunk.Modality
	Warnings      []string
}

// Ingest processes fileBytes as filename, embeds its chunks, and stores
// them. On any error (processing, embedding, or storage), nothing is
// added to the corpus.
func (e *Engine) Ingest(ctx context.Context, fileBytes []byte, filename string) (IngestReport, error) {
	start := time.Now()
	slog.Info("ingest: starting", "file", filename, "bytes", len(fileBytes))

	if !e.inferenceSem.TryAcquire(1) {
		return IngestReport{}, newPipelineError(KindProcessing, "engine busy", ErrBusy)
	}
	defer e.inferenceSem.Release(1)

	tmpPath := filepath.Join(e.uploadsDir, fmt.Sprintf("%s-%s", uuid.NewString(), filepath.Base(filename)))
	if err := os.WriteFile(tmpPath, fileBytes, 0644); err != nil {
		return IngestReport{}, newPipelineError(KindProcessing, "writing upload", err)
	}

	chunks, err := e.registry.ProcessFile(ctx, tmpPath, filename)
	if err != nil {
		os.Remove(tmpPath)
		return IngestReport{}, newPipelineError(KindProcessing, filename, err)
	}
	slog.Info("ingest: processing complete", "file", filename, "chunks", len(chunks), "elapsed_ms", time.Since(start).Milliseconds())

	var warnings []string
	embeddable := make([]chunk.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if c.Metadata.Status == "failed" || c.Content == "" {
			warnings = append(warnings, fmt.Sprintf("chunk %s not embedded: %s", c.ID, c.Metadata.Warning))
			continue
		}
		embeddable = append(embeddable, c)
	}

	if len(embeddable) == 0 {
		return IngestReport{ChunksCreated: 0, Warnings: warnings}, nil
	}

	embedded, err := e.embedder.EmbedChunks(ctx, embeddable)
	if err != nil {
		return IngestReport{}, newPipelineError(KindEmbedding, filename, err)
	}
	slog.Info("ingest: embeddings complete", "file", filename, "chunks", len(embedded), "elapsed_ms", time.Since(start).Milliseconds())

	if err := e.store.Add(ctx, embedded); err != nil {
		return IngestReport{}, newPipelineError(KindStorage, filename, err)
	}

	modality := chunk.Text
	if len(embedded) > 0 {
		modality = embedded[0].Modality
	}

	slog.Info("ingest: document ready", "file", filename, "chunks", len(embedded), "elapsed_ms", time.Since(start).Milliseconds())
	return IngestReport{ChunksCreated: len(embedded), Modality: modality, Warnings: warnings}, nil
}

// Reset clears the corpus and uploads directory.
func (e *Engine) Reset(ctx context.Context) error {
	if err := e.store.Reset(ctx); err != nil {
		return newPipelineError(KindStorage, "reset", err)
	}
	entries, err := os.ReadDir(e.uploadsDir)
	if err != nil {
		return nil
	}
	for _, entry := range entries {
		os.Remove(filepath.Join(e.uploadsDir, entry.Name()))
	}
	return nil
}

// Stats reports corpus size.
type Stats struct {
	TotalChunks        int
	PerModalityCounts  map[chunk.Modality]int
}

func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	total, err := e.store.Count(ctx)
	if err != nil {
		return Stats{}, newPipelineError(KindStorage, "count", err)
	}
	perModality, err := e.store.CountByModality(ctx)
	if err != nil {
		return Stats{}, newPipelineError(KindStorage, "count by modality", err)
	}
	return Stats{TotalChunks: total, PerModalityCounts: perModality}, nil
}

// SupportedLanguages exposes the finite language table for callers.
func (e *Engine) SupportedLanguages() []language.Language {
	return language.Supported()
}

// SourceReference is one citation backing an answer.
type SourceReference struct {
	ChunkID    string
	SourceFile string
	Modality   chunk.Modality
	Content    string
	Relevance  float64
	Reasons    []retrieval.Reason
}

// TranslationInfo records cross-language handling for a query.
type TranslationInfo struct {
	DetectedLanguage   string
	TranslatedQuery    string
	ResponseTranslated bool
}

// QueryRequest is the input to Query.
type QueryRequest struct {
	Query               string
	Persona             string
	EnableAutoTranslate bool
	TargetLanguage      string
	TopK                int
	Debate              bool
	IncludeReasoningChain bool
}

// QueryResponse is the full structured output of Query.
type QueryResponse struct {
	Query               string
	Answer              string
	Confidence          reasoning.Level
	ConfidenceScore     float64
	ConfidenceBreakdown reasoning.ConfidenceBreakdown
	Sources             []SourceReference
	Conflicts           []reasoning.Conflict
	RefusalReason       string
	FinalDecision       reasoning.Strategy
	TranslationInfo     *TranslationInfo
	ReasoningChain      *reasoning.Chain
	ProcessingTimeMs    int64
}

const maxTopK = 20

// Query runs the full state machine: detect language, optionally
// translate, analyze, retrieve, score, check conflicts, choose a
// strategy, generate, optionally translate the answer back.
func (e *Engine) Query(ctx context.Context, req QueryRequest) (QueryResponse, error) {
	start := time.Now()
	var chainRec reasoning.Chain

	if req.Persona == "" {
		req.Persona = "standard"
	}
	if req.TargetLanguage != "" {
		req.TargetLanguage = language.Canonicalize(req.TargetLanguage)
	}
	if req.TopK <= 0 {
		req.TopK = e.cfg.DefaultTopK
	}
	if req.TopK <= 0 {
		req.TopK = 5
	}
	if req.TopK > maxTopK {
		req.TopK = maxTopK
	}

	stepStart := time.Now()
	chainRec.Record(reasoning.StepReceived, reasoning.StatusCompleted, "", nil, time.Since(stepStart), stepStart)

	if len(strings.TrimSpace(req.Query)) <= 2 {
		return e.refuse(req, &chainRec, "query too short", start), nil
	}

	select {
	case <-ctx.Done():
		return e.cancelled(req, &chainRec, start), nil
	default:
	}

	stepStart = time.Now()
	detectedLang, _ := language.Detect(req.Query)
	chainRec.Record(reasoning.StepLanguageDetected, reasoning.StatusCompleted, "detected "+detectedLang, nil, time.Since(stepStart), stepStart)

	translationInfo := &TranslationInfo{DetectedLanguage: detectedLang}

	workingQuery := req.Query
	if req.EnableAutoTranslate && detectedLang != "en" {
		stepStart = time.Now()
		translated, err := e.languageSvc.Translate(ctx, req.Query, detectedLang, "en")
		if err != nil {
			chainRec.Record(reasoning.StepQueryTranslated, reasoning.StatusWarning, "translation unavailable, proceeding with original text", nil, time.Since(stepStart), stepStart)
		} else {
			workingQuery = translated
			translationInfo.TranslatedQuery = translated
			chainRec.Record(reasoning.StepQueryTranslated, reasoning.StatusCompleted, "", nil, time.Since(stepStart), stepStart)
		}
	}

	stepStart = time.Now()
	aq := analyzer.Analyze(workingQuery, req.Persona)
	chainRec.Record(reasoning.StepAnalyzed, reasoning.StatusCompleted, "", nil, time.Since(stepStart), stepStart)

	count, err := e.store.Count(ctx)
	if err != nil {
		return e.storageFailure(req, &chainRec, err, start), nil
	}
	if count == 0 {
		chainRec.Record(reasoning.StepRetrieved, reasoning.StatusWarning, "no evidence in corpus", nil, 0, time.Now())
		return e.refuse(req, &chainRec, "no evidence in corpus", start), nil
	}

	stepStart = time.Now()
	results, err := e.retriever.Retrieve(ctx, aq, req.TopK)
	if err != nil {
		return e.storageFailure(req, &chainRec, err, start), nil
	}
	if len(results) == 0 {
		chainRec.Record(reasoning.StepRetrieved, reasoning.StatusWarning, "no evidence retrieved", nil, time.Since(stepStart), stepStart)
		return e.refuse(req, &chainRec, "no evidence retrieved", start), nil
	}
	chainRec.Record(reasoning.StepRetrieved, reasoning.StatusCompleted, "", sourceFilesOf(results), time.Since(stepStart), stepStart)

	stepStart = time.Now()
	breakdown := reasoning.Score(results)
	scoredStatus := reasoning.StatusCompleted
	scoredDesc := ""
	if breakdown.LevelValue == reasoning.Low {
		scoredStatus = reasoning.StatusWarning
		scoredDesc = "low relevance evidence"
	}
	chainRec.Record(reasoning.StepScored, scoredStatus, scoredDesc, nil, time.Since(stepStart), stepStart)

	stepStart = time.Now()
	conflicts, err := reasoning.Detect(ctx, e.embedder, results)
	if err != nil {
		chainRec.Record(reasoning.StepConflictChecked, reasoning.StatusWarning, "conflict detection failed", nil, time.Since(stepStart), stepStart)
	} else {
		desc := ""
		if len(conflicts) > 0 {
			desc = fmt.Sprintf("%d conflict(s) detected", len(conflicts))
		}
		chainRec.Record(reasoning.StepConflictChecked, reasoning.StatusCompleted, desc, nil, time.Since(stepStart), stepStart)
	}

	stepStart = time.Now()
	strategy := reasoning.Decide(breakdown, conflicts, req.Persona, req.Debate)
	chainRec.Record(reasoning.StepStrategyChosen, reasoning.StatusCompleted, string(strategy), nil, time.Since(stepStart), stepStart)

	sources := toSourceReferences(results)

	if strategy == reasoning.StrategyRefuse {
		chainRec.Record(reasoning.StepGenerated, reasoning.StatusCompleted, "skipped: refuse strategy", nil, 0, time.Now())
		resp := e.refuse(req, &chainRec, "confidence too low to answer", start)
		resp.Sources = sources
		resp.ConfidenceBreakdown = breakdown
		resp.ConfidenceScore = breakdown.Score
		resp.Confidence = breakdown.LevelValue
		resp.Conflicts = conflicts
		resp.FinalDecision = strategy
		return resp, nil
	}

	stepStart = time.Now()
	evidence := toEvidence(results)
	strategyInstruction := strategyInstructionFor(strategy)
	prompt := llm.BuildPrompt(req.Persona, strategyInstruction, workingQuery, evidence)

	var answer string
	if !e.inferenceSem.TryAcquire(1) {
		chainRec.Record(reasoning.StepGenerated, reasoning.StatusError, "engine busy", nil, time.Since(stepStart), stepStart)
		resp := e.refuse(req, &chainRec, "engine busy, try again", start)
		resp.Sources = sources
		return resp, nil
	}
	answer, err = e.chatLLM.Generate(ctx, prompt)
	e.inferenceSem.Release(1)
	if err != nil {
		chainRec.Record(reasoning.StepGenerated, reasoning.StatusError, "all providers failed", nil, time.Since(stepStart), stepStart)
		resp := e.refuse(req, &chainRec, "LLM unavailable", start)
		resp.Sources = sources
		resp.ConfidenceBreakdown = breakdown
		resp.ConfidenceScore = breakdown.Score
		resp.Confidence = breakdown.LevelValue
		resp.Conflicts = conflicts
		resp.FinalDecision = reasoning.StrategyRefuse
		return resp, nil
	}
	chainRec.Record(reasoning.StepGenerated, reasoning.StatusCompleted, "", sourceFilesOf(results), time.Since(stepStart), stepStart)

	targetLang := req.TargetLanguage
	if targetLang == "" && req.EnableAutoTranslate {
		targetLang = detectedLang
	}
	if targetLang != "" && targetLang != "en" {
		stepStart = time.Now()
		translatedAnswer, err := e.languageSvc.Translate(ctx, answer, "en", targetLang)
		if err != nil {
			chainRec.Record(reasoning.StepAnswerTranslated, reasoning.StatusWarning, "translation unavailable for output language", nil, time.Since(stepStart), stepStart)
		} else {
			answer = translatedAnswer
			translationInfo.ResponseTranslated = true
			chainRec.Record(reasoning.StepAnswerTranslated, reasoning.StatusCompleted, "", nil, time.Since(stepStart), stepStart)
		}
	}

	chainRec.Record(reasoning.StepResponded, reasoning.StatusCompleted, "", nil, 0, time.Now())

	return QueryResponse{
		Query:               req.Query,
		Answer:              answer,
		Confidence:          breakdown.LevelValue,
		ConfidenceScore:     breakdown.Score,
		ConfidenceBreakdown: breakdown,
		Sources:             sources,
		Conflicts:           conflicts,
		FinalDecision:       strategy,
		TranslationInfo:     translationInfo,
		ReasoningChain:      chainPtr(req, &chainRec, start, strategy),
		ProcessingTimeMs:    time.Since(start).Milliseconds(),
	}, nil
}

func strategyInstructionFor(s reasoning.Strategy) string {
	switch s {
	case reasoning.StrategyConflict:
		return "The evidence contains conflicting claims from different sources. Present every perspective with its source attribution. Do not pick a winner."
	case reasoning.StrategyCaveated:
		return "Confidence in this evidence is moderate. Hedge your answer appropriately and note any uncertainty."
	default:
		return ""
	}
}

func (e *Engine) refuse(req QueryRequest, chainRec *reasoning.Chain, reason string, start time.Time) QueryResponse {
	return QueryResponse{
		Query:            req.Query,
		Confidence:       reasoning.Low,
		RefusalReason:    reason,
		FinalDecision:    reasoning.StrategyRefuse,
		Sources:          []SourceReference{},
		ReasoningChain:   chainPtr(req, chainRec, start, reasoning.StrategyRefuse),
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}
}

func (e *Engine) cancelled(req QueryRequest, chainRec *reasoning.Chain, start time.Time) QueryResponse {
	chainRec.Record(reasoning.StepResponded, reasoning.StatusError, "cancelled", nil, 0, time.Now())
	resp := e.refuse(req, chainRec, "cancelled", start)
	return resp
}

func (e *Engine) storageFailure(req QueryRequest, chainRec *reasoning.Chain, err error, start time.Time) QueryResponse {
	chainRec.Record(reasoning.StepRetrieved, reasoning.StatusError, err.Error(), nil, 0, time.Now())
	return e.refuse(req, chainRec, "storage unavailable", start)
}

func chainPtr(req QueryRequest, chainRec *reasoning.Chain, start time.Time, decision reasoning.Strategy) *reasoning.Chain {
	if !req.IncludeReasoningChain {
		return nil
	}
	chainRec.Finalize(req.Query, start, decision)
	return chainRec
}

func sourceFilesOf(results []retrieval.Result) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range results {
		if r.Chunk.SourceFile != "" && !seen[r.Chunk.SourceFile] {
			seen[r.Chunk.SourceFile] = true
			out = append(out, r.Chunk.SourceFile)
		}
	}
	return out
}

func toSourceReferences(results []retrieval.Result) []SourceReference {
	out := make([]SourceReference, len(results))
	for i, r := range results {
		out[i] = SourceReference{
			ChunkID:    r.Chunk.ID,
			SourceFile: r.Chunk.SourceFile,
			Modality:   r.Chunk.Modality,
			Content:    r.Chunk.Content,
			Relevance:  r.Relevance,
			Reasons:    r.Reasons,
		}
	}
	return out
}

func toEvidence(results []retrieval.Result) []llm.EvidenceItem {
	out := make([]llm.EvidenceItem, len(results))
	for i, r := range results {
		out[i] = llm.EvidenceItem{
			Source:   r.Chunk.SourceFile,
			Modality: string(r.Chunk.Modality),
			Content:  r.Chunk.Content,
		}
	}
	return out
}
