// Package analyzer classifies a query's intent and required modalities and
// extracts its keywords, before retrieval runs.
package analyzer

import (
	"regexp"
	"strings"

	"github.com/brunobiangulo/ragcore/chunk"
)

// Intent is one of the recognized query intents.
type Intent string

const (
	IntentExplanation Intent = "explanation"
	IntentProcedural  Intent = "procedural"
	IntentComparison  Intent = "comparison"
	IntentCausal      Intent = "causal"
	IntentVisual      Intent = "visual"
	IntentGeneral     Intent = "general"
)

// AnalyzedQuery is the analyzer's output, consumed by the retriever.
type AnalyzedQuery struct {
	Query               string
	Intents             []Intent
	RequiredModalities  []chunk.Modality
	Keywords            []string
	Persona             string
}

var intentPatterns = map[Intent]*regexp.Regexp{
	IntentExplanation: regexp.MustCompile(`(?i)\b(what is|what are|explain|describe|define)\b`),
	IntentProcedural:  regexp.MustCompile(`(?i)\b(how do|how to|how can|steps to|procedure|reset|configure|install)\b`),
	IntentComparison:  regexp.MustCompile(`(?i)\b(versus|vs\.?|compare|difference between|better than)\b`),
	IntentCausal:      regexp.MustCompile(`(?i)\b(why does|why do|why is|because|cause|reason for)\b`),
	IntentVisual:      regexp.MustCompile(`(?i)\b(show me|diagram|picture|photo|image|chart|figure|visual)\b`),
}

var visualModalityPattern = regexp.MustCompile(`(?i)\b(image|picture|photo|diagram|chart|figure|visual|screenshot)\b`)

var personaTags = map[string]bool{
	"standard": true, "academic": true, "executive": true, "eli5": true,
	"technical": true, "debate": true, "legal": true, "medical": true, "creative": true,
}

// stopWords is a small fixed English stop-word set used to filter analyzer
// keywords down to meaningful tokens.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"were": true, "of": true, "to": true, "in": true, "on": true, "for": true,
	"and": true, "or": true, "but": true, "with": true, "at": true, "by": true,
	"from": true, "it": true, "its": true, "this": true, "that": true, "what": true,
	"how": true, "do": true, "does": true, "can": true, "you": true, "me": true,
	"i": true, "my": true, "we": true, "our": true, "your": true, "be": true,
	"has": true, "have": true, "had": true, "not": true, "as": true, "if": true,
}

var wordPattern = regexp.MustCompile(`[a-zA-Z0-9']+`)

// Analyze classifies query into an AnalyzedQuery. persona is the raw
// requested persona tag; unrecognized values fall back to "standard".
func Analyze(query, persona string) AnalyzedQuery {
	if !personaTags[persona] {
		persona = "standard"
	}

	var intents []Intent
	for intent, re := range intentPatterns {
		if re.MatchString(query) {
			intents = append(intents, intent)
		}
	}
	if len(intents) == 0 {
		intents = []Intent{IntentGeneral}
	}

	// TEXT is always required, and AUDIO always follows TEXT since audio
	// transcripts are plain text and must be searchable from text queries.
	modalities := []chunk.Modality{chunk.Text, chunk.Audio}
	if visualModalityPattern.MatchString(query) {
		modalities = append(modalities, chunk.Image)
	}

	return AnalyzedQuery{
		Query:              query,
		Intents:            intents,
		RequiredModalities: dedupeModalities(modalities),
		Keywords:           extractKeywords(query),
		Persona:            persona,
	}
}

func extractKeywords(query string) []string {
	words := wordPattern.FindAllString(strings.ToLower(query), -1)
	var out []string
	seen := map[string]bool{}
	for _, w := range words {
		if len(w) < 3 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func dedupeModalities(modalities []chunk.Modality) []chunk.Modality {
	seen := map[chunk.Modality]bool{}
	var out []chunk.Modality
	for _, m := range modalities {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}
