package language

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brunobiangulo/ragcore/llm"
)

func TestSupportedIncludesEnglish(t *testing.T) {
	found := false
	for _, l := range Supported() {
		if l.Code == "en" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected english in supported language table")
	}
}

func TestCanonicalizeReducesRegionSubtag(t *testing.T) {
	if got := Canonicalize("pt-BR"); got != "pt" {
		t.Errorf("Canonicalize(pt-BR) = %s, want pt", got)
	}
	if got := Canonicalize("EN-US"); got != "en" {
		t.Errorf("Canonicalize(EN-US) = %s, want en", got)
	}
}

func TestCanonicalizeLeavesUnparsableInputUnchanged(t *testing.T) {
	if got := Canonicalize("not-a-tag!!"); got != "not-a-tag!!" {
		t.Errorf("Canonicalize(not-a-tag!!) = %s, want unchanged", got)
	}
}

func TestDetectDevanagari(t *testing.T) {
	code, confidence := Detect("मशीन को कैसे रीसेट करें?")
	if code != "hi" {
		t.Errorf("code = %s, want hi", code)
	}
	if confidence < detectionConfidenceFloor {
		t.Errorf("confidence %v below floor", confidence)
	}
}

func TestDetectLowConfidenceFallsBackToEnglish(t *testing.T) {
	code, _ := Detect("xk qz vb")
	if code != "en" {
		t.Errorf("code = %s, want en for unrecognizable text", code)
	}
}

func TestDetectEnglish(t *testing.T) {
	code, _ := Detect("What is the operating voltage?")
	if code != "en" {
		t.Errorf("code = %s, want en", code)
	}
}

type fakeChat struct {
	response string
	err      error
}

func (f *fakeChat) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Content: f.response}, nil
}

func (f *fakeChat) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

func TestTranslateSameLanguageNoOp(t *testing.T) {
	s := New(nil)
	out, err := s.Translate(context.Background(), "hello", "en", "en")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if out != "hello" {
		t.Errorf("expected no-op translation, got %q", out)
	}
}

func TestTranslateStripsThinkTags(t *testing.T) {
	fc := &fakeChat{response: "<think>reasoning here</think>नमस्ते दुनिया"}
	s := New(llm.NewFallbackChain([]llm.Provider{fc}, 5*time.Second))

	out, err := s.Translate(context.Background(), "hello world", "en", "hi")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if out != "नमस्ते दुनिया" {
		t.Errorf("translate = %q, think tags not stripped", out)
	}
}

func TestTranslateFailureIsNonFatal(t *testing.T) {
	fc := &fakeChat{err: errors.New("provider down")}
	s := New(llm.NewFallbackChain([]llm.Provider{fc}, 5*time.Second))

	out, err := s.Translate(context.Background(), "hello", "en", "hi")
	if err == nil {
		t.Fatal("expected translation error to be surfaced to caller")
	}
	if out != "hello" {
		t.Errorf("expected original text returned on failure, got %q", out)
	}
}
