package ragcore

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/brunobiangulo/ragcore/embedding"
	"github.com/brunobiangulo/ragcore/ingest"
	"github.com/brunobiangulo/ragcore/language"
	"github.com/brunobiangulo/ragcore/llm"
	"github.com/brunobiangulo/ragcore/reasoning"
	"github.com/brunobiangulo/ragcore/retrieval"
	"github.com/brunobiangulo/ragcore/store"
)

const testDim = 32

// wordHashProvider is a deterministic stand-in for a real embedding and
// chat model. Embed buckets each lowercase word of the input into one of
// testDim dimensions by FNV hash and L2-normalizes, so texts sharing
// vocabulary produce nearby vectors. Chat echoes the numbered evidence
// list back verbatim so assertions can check for expected substrings and
// citation markers without a real model.
type wordHashProvider struct{}

func (wordHashProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashEmbed(t)
	}
	return out, nil
}

var evidenceLineRe = regexp.MustCompile(`(?m)^\[(\d+)\] source=(\S+) modality=(\S+) content=(.*)$`)

func (wordHashProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	var user string
	for _, m := range req.Messages {
		if m.Role == "user" {
			user = m.Content
		}
	}
	matches := evidenceLineRe.FindAllStringSubmatch(user, -1)
	if len(matches) == 0 {
		return &llm.ChatResponse{Content: "no evidence available"}, nil
	}
	var b strings.Builder
	for _, m := range matches {
		fmt.Fprintf(&b, "%s [%s]. ", m[4], m[1])
	}
	return &llm.ChatResponse{Content: strings.TrimSpace(b.String())}, nil
}

func hashEmbed(text string) []float32 {
	v := make([]float32, testDim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[int(h.Sum32())%testDim] += 1
	}
	var norm float32
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return v
	}
	norm = sqrtf32(norm)
	for i := range v {
		v[i] /= norm
	}
	return v
}

func sqrtf32(x float32) float32 {
	z := float64(x)
	if z == 0 {
		return 0
	}
	for i := 0; i < 20; i++ {
		z -= (z*z - float64(x)) / (2 * z)
	}
	return float32(z)
}

type failingProvider struct{ err error }

func (f failingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, f.err
}

func (f failingProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, f.err
}

// newTestEngine assembles an Engine directly (skipping New's real-provider
// construction) so tests can inject the deterministic fake providers above
// while still exercising a real SQLite+sqlite-vec store.
func newTestEngine(t *testing.T, chat, embed llm.Provider) *Engine {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.New(dbPath, testDim)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	uploadsDir := filepath.Join(t.TempDir(), "uploads")
	if err := os.MkdirAll(uploadsDir, 0755); err != nil {
		t.Fatalf("uploads dir: %v", err)
	}

	embedChain := llm.NewFallbackChain([]llm.Provider{embed}, 5*time.Second)
	chatChain := llm.NewFallbackChain([]llm.Provider{chat}, 5*time.Second)
	translateChain := llm.NewFallbackChain([]llm.Provider{chat}, 5*time.Second)

	embedder := embedding.New(embedChain, testDim)

	return &Engine{
		cfg:          Config{VectorDim: testDim, DefaultTopK: 5},
		store:        s,
		registry:     ingest.NewRegistry(ingest.Config{}, "", nil),
		embedder:     embedder,
		languageSvc:  language.New(translateChain),
		retriever:    retrieval.New(s, embedder),
		chatLLM:      chatChain,
		inferenceSem: semaphore.NewWeighted(4),
		uploadsDir:   uploadsDir,
	}
}

func writeTempFile(t *testing.T, name, content string) []byte {
	t.Helper()
	return []byte(content)
}

func TestQueryTextSingleSourceHighConfidence(t *testing.T) {
	e := newTestEngine(t, wordHashProvider{}, wordHashProvider{})
	ctx := context.Background()

	_, err := e.Ingest(ctx, writeTempFile(t, "manual.txt", "The operating voltage is 220V."), "manual.txt")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	resp, err := e.Query(ctx, QueryRequest{Query: "What is the operating voltage?", IncludeReasoningChain: true})
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	if resp.Confidence != reasoning.High {
		t.Errorf("confidence = %s, want High (score=%v)", resp.Confidence, resp.ConfidenceScore)
	}
	if !strings.Contains(resp.Answer, "220V") {
		t.Errorf("answer %q does not contain 220V", resp.Answer)
	}
	if !strings.Contains(resp.Answer, "[1]") {
		t.Errorf("answer %q does not contain a [1] citation", resp.Answer)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].SourceFile != "manual.txt" {
		t.Errorf("sources = %+v, want single manual.txt source", resp.Sources)
	}
	if len(resp.Conflicts) != 0 {
		t.Errorf("expected no conflicts, got %v", resp.Conflicts)
	}
}

func TestQueryRefusesOnEmptyCorpus(t *testing.T) {
	e := newTestEngine(t, wordHashProvider{}, wordHashProvider{})
	resp, err := e.Query(context.Background(), QueryRequest{Query: "What is photosynthesis?"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if resp.FinalDecision != reasoning.StrategyRefuse {
		t.Errorf("final decision = %s, want refuse", resp.FinalDecision)
	}
	if resp.Confidence != reasoning.Low {
		t.Errorf("confidence = %s, want Low", resp.Confidence)
	}
	if len(resp.Sources) != 0 {
		t.Errorf("sources = %v, want empty", resp.Sources)
	}
	if resp.RefusalReason == "" {
		t.Error("expected a non-empty refusal reason")
	}
}

func TestQueryRefusesOnShortQuery(t *testing.T) {
	e := newTestEngine(t, wordHashProvider{}, wordHashProvider{})
	resp, err := e.Query(context.Background(), QueryRequest{Query: "ok"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if resp.FinalDecision != reasoning.StrategyRefuse {
		t.Errorf("final decision = %s, want refuse", resp.FinalDecision)
	}
}

func TestResetClearsCorpus(t *testing.T) {
	e := newTestEngine(t, wordHashProvider{}, wordHashProvider{})
	ctx := context.Background()

	if _, err := e.Ingest(ctx, writeTempFile(t, "manual.txt", "The operating voltage is 220V."), "manual.txt"); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if err := e.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	stats, err := e.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalChunks != 0 {
		t.Errorf("total_chunks = %d, want 0 after reset", stats.TotalChunks)
	}

	resp, err := e.Query(ctx, QueryRequest{Query: "What is the operating voltage?"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(resp.Sources) != 0 {
		t.Errorf("expected no sources after reset, got %v", resp.Sources)
	}
}

func TestQueryGenerationFailureRefusesWithEvidenceAttached(t *testing.T) {
	e := newTestEngine(t, wordHashProvider{}, wordHashProvider{})
	ctx := context.Background()
	if _, err := e.Ingest(ctx, writeTempFile(t, "manual.txt", "The operating voltage is 220V."), "manual.txt"); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	e.chatLLM = llm.NewFallbackChain([]llm.Provider{failingProvider{err: errors.New("unavailable")}}, 2*time.Second)

	resp, err := e.Query(ctx, QueryRequest{Query: "What is the operating voltage?"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if resp.FinalDecision != reasoning.StrategyRefuse {
		t.Errorf("final decision = %s, want refuse", resp.FinalDecision)
	}
	if len(resp.Sources) == 0 {
		t.Error("expected retrieved evidence to remain attached to a generation-failure refusal")
	}
}

func TestIngestUnsupportedFormatRejected(t *testing.T) {
	e := newTestEngine(t, wordHashProvider{}, wordHashProvider{})
	_, err := e.Ingest(context.Background(), writeTempFile(t, "video.mov", "binary"), "video.mov")
	if err == nil {
		t.Fatal("expected an unsupported-format processing error")
	}
}

func TestQueryReasoningChainStepNumbersIncrease(t *testing.T) {
	e := newTestEngine(t, wordHashProvider{}, wordHashProvider{})
	ctx := context.Background()
	if _, err := e.Ingest(ctx, writeTempFile(t, "manual.txt", "The operating voltage is 220V."), "manual.txt"); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	resp, err := e.Query(ctx, QueryRequest{Query: "What is the operating voltage?", IncludeReasoningChain: true})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if resp.ReasoningChain == nil {
		t.Fatal("expected a reasoning chain")
	}
	for i, s := range resp.ReasoningChain.Steps {
		if s.StepNumber != i+1 {
			t.Errorf("step %d has number %d, want %d", i, s.StepNumber, i+1)
		}
	}
}

func TestQueryOmitsReasoningChainWhenNotRequested(t *testing.T) {
	e := newTestEngine(t, wordHashProvider{}, wordHashProvider{})
	ctx := context.Background()
	if _, err := e.Ingest(ctx, writeTempFile(t, "manual.txt", "The operating voltage is 220V."), "manual.txt"); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	resp, err := e.Query(ctx, QueryRequest{Query: "What is the operating voltage?", IncludeReasoningChain: false})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if resp.ReasoningChain != nil {
		t.Error("expected nil reasoning chain when not requested")
	}
}
