// Package retrieval fetches, scores, and re-ranks chunks across modalities
// for a single analyzed query.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/brunobiangulo/ragcore/analyzer"
	"github.com/brunobiangulo/ragcore/chunk"
	"github.com/brunobiangulo/ragcore/embedding"
	"github.com/brunobiangulo/ragcore/store"
)

const (
	imageFloor          = 0.35
	secondPassFloor     = 0.3
	crossModalMultiplier = 1.1
)

// Reason is one of the contributing factors recorded for a retrieved chunk.
type Reason string

const (
	ReasonSemantic     Reason = "semantic"
	ReasonKeywordBoost Reason = "keyword_boost"
	ReasonCrossModal   Reason = "cross_modal_boost"
	ReasonPersonaHint  Reason = "persona_hint"
)

// Result pairs a chunk with its final relevance and the reasons it scored
// the way it did.
type Result struct {
	Chunk     chunk.Chunk
	Relevance float64
	Reasons   []Reason
}

// Engine fetches and scores candidates across the modalities an analyzed
// query requires.
type Engine struct {
	store     *store.Store
	embedder  *embedding.Manager
}

func New(s *store.Store, embedder *embedding.Manager) *Engine {
	return &Engine{store: s, embedder: embedder}
}

// Retrieve runs the cross-modal retrieval algorithm for aq, returning up to
// topK results ordered by final relevance.
func (e *Engine) Retrieve(ctx context.Context, aq analyzer.AnalyzedQuery, topK int) ([]Result, error) {
	if topK <= 0 {
		topK = 5
	}

	queryVec, err := e.embedder.EmbedQuery(ctx, aq.Query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := e.retrievePass(ctx, aq, queryVec, topK, topK*2)
	if err != nil {
		return nil, err
	}

	if avgRelevance(results, topK) < secondPassFloor {
		slog.Debug("retrieval: average relevance below floor, running second pass",
			"floor", secondPassFloor, "top_k", topK)
		widened, err := e.retrievePass(ctx, aq, queryVec, topK, topK*3)
		if err != nil {
			return nil, err
		}
		results = widened
	}

	return results, nil
}

// retrievePass performs one fetch-score-rerank cycle fetching candidatesPerModality
// per required modality.
func (e *Engine) retrievePass(ctx context.Context, aq analyzer.AnalyzedQuery, queryVec []float32, topK, candidatesPerModality int) ([]Result, error) {
	candidates, err := e.fetchCandidates(ctx, aq, queryVec, candidatesPerModality)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	results := score(candidates, aq.Keywords)
	results = applyCrossModalReinforcement(results, candidates)
	sortResults(results)

	if len(results) > topK {
		results = results[:topK]
	}

	results = ensureImagePresent(results, candidates, aq, topK)
	return results, nil
}

// candidate pairs a fetched chunk with its base relevance score.
type candidate struct {
	chunk     chunk.Chunk
	baseScore float64
}

// fetchCandidates runs one store.Search per required modality concurrently,
// merging and deduplicating by chunk id.
func (e *Engine) fetchCandidates(ctx context.Context, aq analyzer.AnalyzedQuery, queryVec []float32, n int) ([]candidate, error) {
	modalities := aq.RequiredModalities
	if len(modalities) == 0 {
		modalities = []chunk.Modality{chunk.Text}
	}

	type fetchResult struct {
		results []store.SearchResult
		err     error
	}
	channels := make([]chan fetchResult, len(modalities))

	for i, m := range modalities {
		ch := make(chan fetchResult, 1)
		channels[i] = ch
		go func(modality chunk.Modality) {
			r, err := e.store.Search(ctx, queryVec, n, store.Filter{Modality: modality})
			ch <- fetchResult{r, err}
		}(m)
	}

	seen := map[string]bool{}
	var out []candidate
	var firstErr error
	for _, ch := range channels {
		fr := <-ch
		if fr.err != nil {
			if firstErr == nil {
				firstErr = fr.err
			}
			continue
		}
		for _, r := range fr.results {
			if seen[r.Chunk.ID] {
				continue
			}
			seen[r.Chunk.ID] = true
			out = append(out, candidate{chunk: r.Chunk, baseScore: cosineToUnit(r.Score)})
		}
	}

	if ftsQuery := ftsMatchQuery(aq.Keywords); ftsQuery != "" {
		ftsChunks, err := e.store.FTSSearch(ctx, ftsQuery, n)
		if err != nil {
			slog.Debug("retrieval: fts search failed, continuing with vector candidates only", "error", err)
		} else {
			for _, c := range ftsChunks {
				if seen[c.ID] {
					continue
				}
				seen[c.ID] = true
				out = append(out, candidate{chunk: c, baseScore: ftsCandidateBaseScore})
			}
		}
	}

	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// ftsCandidateBaseScore seeds an FTS-only candidate's relevance below a
// typical vector match, since FTS5's rank isn't on the same scale as
// cosine similarity; the keyword-boost pass in score() still gets a
// chance to lift it once the same keywords are matched again there.
const ftsCandidateBaseScore = 0.4

// ftsMatchQuery builds an FTS5 MATCH expression that surfaces chunks
// containing any analyzed keyword verbatim — catching exact terms (part
// numbers, acronyms) a vector search can miss entirely when no indexed
// chunk happens to be semantically close to the query.
func ftsMatchQuery(keywords []string) string {
	var terms []string
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		terms = append(terms, `"`+strings.ReplaceAll(kw, `"`, "")+`"`)
	}
	if len(terms) == 0 {
		return ""
	}
	return strings.Join(terms, " OR ")
}

// cosineToUnit maps the store's 1-distance score, already roughly in
// [-1,1] for cosine distance, into [0,1].
func cosineToUnit(score float64) float64 {
	v := (score + 1) / 2
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// score applies the keyword boost pass to every candidate.
func score(candidates []candidate, keywords []string) []Result {
	results := make([]Result, len(candidates))
	for i, c := range candidates {
		relevance := c.baseScore
		reasons := []Reason{ReasonSemantic}

		if matches := countKeywordMatches(c.chunk.Content, keywords); matches > 0 {
			boost := 1 + minFloat(0.5, 0.1*float64(matches))
			relevance *= boost
			reasons = append(reasons, ReasonKeywordBoost)
		}

		results[i] = Result{Chunk: c.chunk, Relevance: relevance, Reasons: reasons}
	}
	return results
}

// applyCrossModalReinforcement boosts chunks whose source_file is
// represented across at least two distinct modalities within the full
// candidate pool (not just the post-score top_k).
func applyCrossModalReinforcement(results []Result, candidates []candidate) []Result {
	modalitiesBySource := map[string]map[chunk.Modality]bool{}
	for _, c := range candidates {
		if c.chunk.SourceFile == "" {
			continue
		}
		if modalitiesBySource[c.chunk.SourceFile] == nil {
			modalitiesBySource[c.chunk.SourceFile] = map[chunk.Modality]bool{}
		}
		modalitiesBySource[c.chunk.SourceFile][c.chunk.Modality] = true
	}

	for i := range results {
		sf := results[i].Chunk.SourceFile
		if sf != "" && len(modalitiesBySource[sf]) >= 2 {
			results[i].Relevance *= crossModalMultiplier
			results[i].Reasons = append(results[i].Reasons, ReasonCrossModal)
		}
	}
	return results
}

// sortResults orders by descending relevance, tie-broken by higher
// intrinsic confidence then alphabetical id.
func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Relevance != results[j].Relevance {
			return results[i].Relevance > results[j].Relevance
		}
		if results[i].Chunk.Confidence != results[j].Chunk.Confidence {
			return results[i].Chunk.Confidence > results[j].Chunk.Confidence
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
}

// ensureImagePresent inserts the best-scoring image candidate above the
// relevance floor at the last position when the analyzer requested IMAGE
// (or the top result already is one) and none made the cut.
func ensureImagePresent(results []Result, candidates []candidate, aq analyzer.AnalyzedQuery, topK int) []Result {
	wantsImage := false
	for _, m := range aq.RequiredModalities {
		if m == chunk.Image {
			wantsImage = true
		}
	}
	if len(results) > 0 && results[0].Chunk.Modality == chunk.Image {
		wantsImage = true
	}
	if !wantsImage {
		return results
	}

	for _, r := range results {
		if r.Chunk.Modality == chunk.Image {
			return results
		}
	}

	var best *candidate
	var bestRelevance float64
	for i, c := range candidates {
		if c.chunk.Modality != chunk.Image {
			continue
		}
		if c.baseScore > imageFloor && (best == nil || c.baseScore > bestRelevance) {
			best = &candidates[i]
			bestRelevance = c.baseScore
		}
	}
	if best == nil {
		return results
	}

	inserted := Result{Chunk: best.chunk, Relevance: bestRelevance, Reasons: []Reason{ReasonSemantic}}
	if len(results) < topK {
		return append(results, inserted)
	}
	results[len(results)-1] = inserted
	return results
}

func avgRelevance(results []Result, topK int) float64 {
	if len(results) == 0 {
		return 0
	}
	n := len(results)
	if n > topK {
		n = topK
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += results[i].Relevance
	}
	return sum / float64(n)
}

func countKeywordMatches(content string, keywords []string) int {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	matches := 0
	for _, kw := range keywords {
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
		if re.MatchString(lower) {
			matches++
		}
	}
	return matches
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
