package reasoning

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/brunobiangulo/ragcore/embedding"
	"github.com/brunobiangulo/ragcore/retrieval"
)

// Severity is how serious a detected conflict is.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Perspective is one source's claim contributing to a conflict.
type Perspective struct {
	Source string
	Claim  string
}

// Conflict is a pair (or set) of contradicting claims across sources.
type Conflict struct {
	Description  string
	Perspectives []Perspective
	Severity     Severity
}

const claimSimilarityFloor = 0.6
const highSeverityConfidenceFloor = 0.7

var (
	numeralUnitPattern = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*(V|VAC|VDC|A|W|Hz|kg|lb|mm|cm|m|°C|°F|%)\b`)
	namedEntityPattern = regexp.MustCompile(`\b[A-Z][a-zA-Z]{2,}(?:\s+[A-Z][a-zA-Z]{2,})*\b`)
	absoluteTermPattern = regexp.MustCompile(`(?i)\b(always|never|only|must|required|prohibited|mandatory)\b`)
	negationPattern     = regexp.MustCompile(`(?i)\b(not|no|never|cannot|can't|isn't|doesn't|without)\b`)
	antonymPairs        = [][2]string{
		{"enabled", "disabled"}, {"required", "optional"}, {"allowed", "forbidden"},
		{"safe", "unsafe"}, {"on", "off"}, {"supported", "unsupported"},
	}
	sentenceSplitPattern = regexp.MustCompile(`(?:[.!?]\s+|\n+)`)
)

// claim is a candidate claim sentence extracted from a chunk.
type claim struct {
	source     string
	text       string
	confidence float64
}

// Detect finds conflicts among the top-k retrieved chunks. It embeds each
// claim sentence (one EmbedQuery call per claim) to compute claim-sentence
// similarity.
func Detect(ctx context.Context, embedder *embedding.Manager, results []retrieval.Result) ([]Conflict, error) {
	claims := extractClaims(results)
	if len(claims) < 2 {
		return nil, nil
	}

	texts := make([]string, len(claims))
	for i, c := range claims {
		texts[i] = c.text
	}
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := embedder.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}

	var conflicts []Conflict
	seen := map[string]bool{}
	for i := 0; i < len(claims); i++ {
		for j := i + 1; j < len(claims); j++ {
			a, b := claims[i], claims[j]
			if a.source == b.source {
				continue
			}
			sim := cosine(vectors[i], vectors[j])
			if sim < claimSimilarityFloor {
				continue
			}

			mismatch, numeric := contradicts(a.text, b.text)
			if !mismatch {
				continue
			}

			key := pairKey(a.source, b.source, a.text, b.text)
			if seen[key] {
				continue
			}
			seen[key] = true

			conflicts = append(conflicts, Conflict{
				Description:  "retrieved sources disagree on a related claim",
				Perspectives: []Perspective{{Source: a.source, Claim: a.text}, {Source: b.source, Claim: b.text}},
				Severity:     severityFor(numeric, a.confidence, b.confidence),
			})
		}
	}
	return conflicts, nil
}

// extractClaims pulls candidate claim sentences (numerals+units, named
// entities, or absolute terms) from every retrieved chunk.
func extractClaims(results []retrieval.Result) []claim {
	var claims []claim
	for _, r := range results {
		for _, sentence := range sentenceSplitPattern.Split(r.Chunk.Content, -1) {
			s := strings.TrimSpace(sentence)
			if s == "" {
				continue
			}
			if numeralUnitPattern.MatchString(s) || namedEntityPattern.MatchString(s) || absoluteTermPattern.MatchString(s) {
				claims = append(claims, claim{source: r.Chunk.SourceFile, text: s, confidence: r.Chunk.Confidence})
			}
		}
	}
	return claims
}

// contradicts reports whether two claim sentences look contradictory, and
// whether the contradiction is a numeric mismatch of the same unit.
func contradicts(a, b string) (mismatch bool, numeric bool) {
	if av, aunit, aok := firstNumeralUnit(a); aok {
		if bv, bunit, bok := firstNumeralUnit(b); bok {
			if aunit == bunit && av != bv {
				return true, true
			}
		}
	}

	if negationPattern.MatchString(a) != negationPattern.MatchString(b) {
		return true, false
	}

	for _, pair := range antonymPairs {
		aHas := strings.Contains(strings.ToLower(a), pair[0])
		bHas := strings.Contains(strings.ToLower(b), pair[1])
		aHas2 := strings.Contains(strings.ToLower(a), pair[1])
		bHas2 := strings.Contains(strings.ToLower(b), pair[0])
		if (aHas && bHas) || (aHas2 && bHas2) {
			return true, false
		}
	}

	return false, false
}

var numeralUnitCapture = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(V|VAC|VDC|A|W|Hz|kg|lb|mm|cm|m|°C|°F|%)\b`)

func firstNumeralUnit(s string) (value string, unit string, ok bool) {
	m := numeralUnitCapture.FindStringSubmatch(s)
	if m == nil {
		return "", "", false
	}
	return m[1], strings.ToUpper(m[2]), true
}

func severityFor(numericMismatch bool, confidenceA, confidenceB float64) Severity {
	if numericMismatch && confidenceA >= highSeverityConfidenceFloor && confidenceB >= highSeverityConfidenceFloor {
		return SeverityHigh
	}
	if !numericMismatch {
		return SeverityMedium
	}
	return SeverityLow
}

// pairKey is order-independent so (A,B) and (B,A) dedupe to the same
// conflict, satisfying conflict symmetry.
func pairKey(sourceA, sourceB, claimA, claimB string) string {
	left := sourceA + "\x00" + claimA
	right := sourceB + "\x00" + claimB
	if left > right {
		left, right = right, left
	}
	return left + "\x01" + right
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
