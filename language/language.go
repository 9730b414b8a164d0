// Package language detects query language and translates between a
// supported language and the English-dominant corpus, sandwiching the
// reasoning pipeline so queries in any supported language can be answered.
package language

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/language"

	"github.com/brunobiangulo/ragcore/llm"
)

// Language is one entry in the finite supported-language table.
type Language struct {
	Code string
	Name string
	Flag string
}

var supported = []Language{
	{Code: "en", Name: "English", Flag: "🇬🇧"},
	{Code: "hi", Name: "Hindi", Flag: "🇮🇳"},
	{Code: "es", Name: "Spanish", Flag: "🇪🇸"},
	{Code: "fr", Name: "French", Flag: "🇫🇷"},
	{Code: "de", Name: "German", Flag: "🇩🇪"},
	{Code: "pt", Name: "Portuguese", Flag: "🇵🇹"},
	{Code: "zh", Name: "Chinese", Flag: "🇨🇳"},
	{Code: "ja", Name: "Japanese", Flag: "🇯🇵"},
	{Code: "ar", Name: "Arabic", Flag: "🇸🇦"},
	{Code: "ru", Name: "Russian", Flag: "🇷🇺"},
}

// Supported returns the finite list of languages the core can detect and
// translate, in a stable order.
func Supported() []Language {
	out := make([]Language, len(supported))
	copy(out, supported)
	return out
}

func isSupported(code string) bool {
	for _, l := range supported {
		if l.Code == code {
			return true
		}
	}
	return false
}

// Canonicalize reduces a caller-supplied BCP 47 tag (e.g. "EN-US",
// "pt-BR") to the base language code used by the supported table. Input
// that does not parse as a language tag is returned unchanged so callers
// can still fail the isSupported check explicitly rather than silently.
func Canonicalize(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	base, conf := tag.Base()
	if conf == language.No {
		return code
	}
	return base.String()
}

// detectionConfidenceFloor is the threshold below which a detection result
// is discarded in favor of English.
const detectionConfidenceFloor = 0.5

var scriptPatterns = map[string]*regexp.Regexp{
	"hi": regexp.MustCompile(`[\x{0900}-\x{097F}]`),
	"zh": regexp.MustCompile(`[\x{4E00}-\x{9FFF}]`),
	"ja": regexp.MustCompile(`[\x{3040}-\x{30FF}]`),
	"ar": regexp.MustCompile(`[\x{0600}-\x{06FF}]`),
	"ru": regexp.MustCompile(`[\x{0400}-\x{04FF}]`),
}

// commonWords is a tiny per-language stop-word seed used for Latin-script
// heuristic detection, where Unicode block matching can't distinguish the
// languages.
var commonWords = map[string][]string{
	"es": {"el", "la", "de", "que", "y", "es", "en", "un", "por", "con"},
	"fr": {"le", "la", "de", "et", "un", "une", "est", "pour", "que", "avec"},
	"de": {"der", "die", "das", "und", "ist", "ein", "eine", "für", "mit", "nicht"},
	"pt": {"o", "a", "de", "que", "e", "do", "da", "em", "um", "para"},
}

// Service provides query-time language detection and translation.
type Service struct {
	translator *llm.FallbackChain
}

func New(translator *llm.FallbackChain) *Service {
	return &Service{translator: translator}
}

// Detect identifies text's language via Unicode script matching for
// non-Latin scripts and a word-frequency heuristic for Latin-script
// languages. Confidence below the floor is treated as English.
func Detect(text string) (code string, confidence float64) {
	for lang, re := range scriptPatterns {
		if re.MatchString(text) {
			return lang, 0.9
		}
	}

	lower := strings.ToLower(text)
	words := strings.Fields(lower)
	if len(words) == 0 {
		return "en", 1.0
	}

	bestLang, bestScore := "en", 0.0
	for lang, markers := range commonWords {
		matches := 0
		for _, w := range words {
			for _, m := range markers {
				if w == m {
					matches++
					break
				}
			}
		}
		score := float64(matches) / float64(len(words))
		if score > bestScore {
			bestLang, bestScore = lang, score
		}
	}

	if bestScore < detectionConfidenceFloor {
		return "en", 1.0 - bestScore
	}
	return bestLang, bestScore
}

// Translate converts text from src to dst. Failure is non-fatal: callers
// should fall back to the original text and record a warning.
func (s *Service) Translate(ctx context.Context, text, src, dst string) (string, error) {
	if src == dst || s.translator == nil {
		return text, nil
	}
	prompt := llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: fmt.Sprintf("Translate the user's text from %s to %s. Return only the translation, no commentary.", src, dst)},
			{Role: "user", Content: text},
		},
	}
	translated, err := s.translator.Generate(ctx, prompt)
	if err != nil {
		return text, fmt.Errorf("translation failed: %w", err)
	}
	return stripThinkTags(translated), nil
}

var thinkTagRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

// stripThinkTags removes reasoning-model <think> blocks some providers
// prepend to their output.
func stripThinkTags(text string) string {
	return strings.TrimSpace(thinkTagRe.ReplaceAllString(text, ""))
}
