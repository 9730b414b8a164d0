package llm

import (
	"fmt"
	"strings"
)

// EvidenceItem is one numbered piece of evidence embedded in a generation
// prompt.
type EvidenceItem struct {
	Source   string
	Modality string
	Content  string
}

const evidenceContentCap = 1200

// PersonaTemplate is the system-prompt text, emphasis instruction, and
// generation parameters for one response persona.
type PersonaTemplate struct {
	System      string
	Emphasis    string
	MaxTokens   int
	Temperature float64
}

var personaTemplates = map[string]PersonaTemplate{
	"standard":  {System: "You are a precise assistant that answers only from the evidence provided.", Emphasis: "Be balanced and concise.", MaxTokens: 100, Temperature: 0.3},
	"academic":  {System: "You are a scholarly assistant that answers only from the evidence provided.", Emphasis: "Be formal and citation-heavy.", MaxTokens: 200, Temperature: 0.2},
	"executive": {System: "You are an executive briefing assistant that answers only from the evidence provided.", Emphasis: "Use bullets and lead with key takeaways.", MaxTokens: 80, Temperature: 0.1},
	"eli5":      {System: "You are a patient teacher that answers only from the evidence provided.", Emphasis: "Use simple language and analogies.", MaxTokens: 120, Temperature: 0.4},
	"technical": {System: "You are a technical assistant that answers only from the evidence provided.", Emphasis: "Be precise; formulas and code are welcome.", MaxTokens: 250, Temperature: 0.2},
	"debate":    {System: "You are a neutral moderator that answers only from the evidence provided.", Emphasis: "Present every viewpoint without declaring a winner.", MaxTokens: 180, Temperature: 0.3},
	"legal":     {System: "You are a careful legal-context assistant that answers only from the evidence provided.", Emphasis: "Be careful and hedge appropriately.", MaxTokens: 180, Temperature: 0.2},
	"medical":   {System: "You are a careful medical-context assistant that answers only from the evidence provided.", Emphasis: "Be careful and hedge appropriately.", MaxTokens: 180, Temperature: 0.2},
	"creative":  {System: "You are an expressive assistant that answers only from the evidence provided.", Emphasis: "Be expressive in tone while staying grounded.", MaxTokens: 160, Temperature: 0.5},
}

// PersonaTemplateFor returns the template for persona, falling back to
// standard for unrecognized values.
func PersonaTemplateFor(persona string) PersonaTemplate {
	if t, ok := personaTemplates[persona]; ok {
		return t
	}
	return personaTemplates["standard"]
}

// BuildPrompt deterministically constructs the (system, user) prompt pair
// for a given persona, strategy instruction, evidence list and query.
// The same inputs always produce the same prompt.
func BuildPrompt(persona, strategyInstruction, query string, evidence []EvidenceItem) ChatRequest {
	tmpl := PersonaTemplateFor(persona)

	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", query)
	b.WriteString("Evidence:\n")
	for i, ev := range evidence {
		content := ev.Content
		if len(content) > evidenceContentCap {
			content = content[:evidenceContentCap]
		}
		fmt.Fprintf(&b, "[%d] source=%s modality=%s content=%s\n", i+1, ev.Source, ev.Modality, content)
	}
	b.WriteString("\nCite every claim using its evidence number in square brackets, e.g. [1]. ")
	b.WriteString("Do not state anything that is not supported by the evidence above.\n")
	if strategyInstruction != "" {
		b.WriteString(strategyInstruction)
		b.WriteString("\n")
	}
	b.WriteString(tmpl.Emphasis)

	return ChatRequest{
		Messages: []Message{
			{Role: "system", Content: tmpl.System},
			{Role: "user", Content: b.String()},
		},
		MaxTokens:   tmpl.MaxTokens,
		Temperature: tmpl.Temperature,
	}
}
