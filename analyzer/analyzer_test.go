package analyzer

import (
	"testing"

	"github.com/brunobiangulo/ragcore/chunk"
)

func containsModality(modalities []chunk.Modality, m chunk.Modality) bool {
	for _, x := range modalities {
		if x == m {
			return true
		}
	}
	return false
}

func TestAnalyzeAlwaysIncludesTextAndAudio(t *testing.T) {
	aq := Analyze("What is the operating voltage?", "standard")
	if !containsModality(aq.RequiredModalities, chunk.Text) {
		t.Error("expected TEXT always required")
	}
	if !containsModality(aq.RequiredModalities, chunk.Audio) {
		t.Error("expected AUDIO whenever TEXT is included")
	}
}

func TestAnalyzeAddsImageForVisualQuery(t *testing.T) {
	aq := Analyze("Show me the authentication flow diagram.", "standard")
	if !containsModality(aq.RequiredModalities, chunk.Image) {
		t.Error("expected IMAGE for a diagram query")
	}
}

func TestAnalyzeProceduralIntent(t *testing.T) {
	aq := Analyze("How do I reset the machine?", "standard")
	found := false
	for _, in := range aq.Intents {
		if in == IntentProcedural {
			found = true
		}
	}
	if !found {
		t.Errorf("intents = %v, expected procedural", aq.Intents)
	}
}

func TestAnalyzeGeneralFallback(t *testing.T) {
	aq := Analyze("voltage specifications", "standard")
	if len(aq.Intents) != 1 || aq.Intents[0] != IntentGeneral {
		t.Errorf("intents = %v, want [general]", aq.Intents)
	}
}

func TestAnalyzeKeywordsStopWorded(t *testing.T) {
	aq := Analyze("What is the operating voltage of the machine?", "standard")
	for _, kw := range aq.Keywords {
		if stopWords[kw] {
			t.Errorf("keyword %q should have been stop-worded", kw)
		}
		if len(kw) < 3 {
			t.Errorf("keyword %q shorter than 3 characters", kw)
		}
	}
}

func TestAnalyzeUnknownPersonaFallsBackToStandard(t *testing.T) {
	aq := Analyze("hello", "nonsense")
	if aq.Persona != "standard" {
		t.Errorf("persona = %s, want standard", aq.Persona)
	}
}

func TestAnalyzeRecognizedPersonaPreserved(t *testing.T) {
	aq := Analyze("hello", "debate")
	if aq.Persona != "debate" {
		t.Errorf("persona = %s, want debate", aq.Persona)
	}
}
