package ingest

import (
	"regexp"
	"strings"
)

var paragraphSplitRe = regexp.MustCompile(`\n\s*\n`)
var sentenceSplitRe = regexp.MustCompile(`(?:[.!?])\s+`)

// splitParagraphs breaks text on blank-line boundaries.
func splitParagraphs(text string) []string {
	parts := paragraphSplitRe.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences breaks a paragraph on sentence-ending punctuation.
func splitSentences(text string) []string {
	parts := sentenceSplitRe.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// extractOverlap returns the trailing overlapChars characters of text, used
// to seed the next fragment so chunks share context across the boundary.
func extractOverlap(text string, overlapChars int) string {
	text = strings.TrimSpace(text)
	if overlapChars <= 0 || len(text) <= overlapChars {
		return text
	}
	tail := text[len(text)-overlapChars:]
	if idx := strings.Index(tail, " "); idx >= 0 {
		tail = tail[idx+1:]
	}
	return tail
}

// splitIntoChunks breaks text into fragments targeting size characters
// each, with overlap characters of shared trailing context between
// consecutive fragments. Splits at paragraph boundaries first, falling
// back to sentence boundaries for any paragraph longer than size.
func splitIntoChunks(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = 500
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	if len(text) <= size {
		return []string{text}
	}

	paragraphs := splitParagraphs(text)
	var fragments []string
	var current strings.Builder
	overlapText := ""

	flush := func() {
		if current.Len() == 0 {
			return
		}
		fragments = append(fragments, strings.TrimSpace(current.String()))
		overlapText = extractOverlap(current.String(), overlap)
		current.Reset()
	}

	for _, para := range paragraphs {
		if len(para) > size {
			flush()
			for _, sentFrag := range splitSentencesToChunks(para, size, overlap, overlapText) {
				fragments = append(fragments, sentFrag)
			}
			if len(fragments) > 0 {
				overlapText = extractOverlap(fragments[len(fragments)-1], overlap)
			}
			continue
		}

		if current.Len()+len(para) > size && current.Len() > 0 {
			flush()
			if overlapText != "" {
				current.WriteString(overlapText)
				current.WriteString("\n\n")
			}
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return fragments
}

func splitSentencesToChunks(text string, size, overlap int, initialOverlap string) []string {
	sentences := splitSentences(text)
	var fragments []string
	var current strings.Builder

	if initialOverlap != "" {
		current.WriteString(initialOverlap)
		current.WriteString(" ")
	}

	flush := func() string {
		s := strings.TrimSpace(current.String())
		fragments = append(fragments, s)
		current.Reset()
		return extractOverlap(s, overlap)
	}

	for _, sent := range sentences {
		if current.Len()+len(sent) > size && current.Len() > 0 {
			ov := flush()
			if ov != "" {
				current.WriteString(ov)
				current.WriteString(" ")
			}
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sent)
	}
	if current.Len() > 0 {
		fragments = append(fragments, strings.TrimSpace(current.String()))
	}
	return fragments
}
