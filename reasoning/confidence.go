// Package reasoning scores retrieved evidence, detects conflicts among
// sources, and decides how to respond.
package reasoning

import (
	"sort"

	"github.com/brunobiangulo/ragcore/retrieval"
)

// Level is the coarse confidence band derived from a confidence score.
type Level string

const (
	High   Level = "High"
	Medium Level = "Medium"
	Low    Level = "Low"
)

const (
	weightRelevance     = 0.5
	weightSourceQuality = 0.3
	weightDiversity     = 0.1
	crossModalBonusUnit = 0.1
	crossModalBonusCap  = 0.1

	highThreshold   = 0.7
	mediumThreshold = 0.4
)

// Factor is one named contributor to the overall confidence score.
type Factor struct {
	Name        string
	Score       float64
	Description string
}

// ConfidenceBreakdown is the full explanation of a confidence score.
type ConfidenceBreakdown struct {
	Score           float64
	LevelValue      Level
	Factors         []Factor
	StrongestFactor string
	WeakestFactor   string
	ActionableTips  []string
}

// Score computes a ConfidenceBreakdown over the top-k retrieved results.
func Score(results []retrieval.Result) ConfidenceBreakdown {
	if len(results) == 0 {
		return ConfidenceBreakdown{
			Score:      0,
			LevelValue: Low,
			Factors: []Factor{
				{Name: "relevance", Score: 0, Description: "no evidence retrieved"},
			},
			StrongestFactor: "relevance",
			WeakestFactor:   "relevance",
			ActionableTips:  []string{"ingest documents that cover this topic"},
		}
	}

	relevance := meanRelevance(results)
	sourceQuality := meanConfidence(results)
	diversity := sourceDiversity(results)
	crossModalBonus := crossModalBonusFor(results)

	score := clip(weightRelevance*relevance+weightSourceQuality*sourceQuality+weightDiversity*diversity+crossModalBonus, 0, 1)

	factors := []Factor{
		{Name: "relevance", Score: relevance, Description: "mean semantic relevance of retrieved evidence"},
		{Name: "source_quality", Score: sourceQuality, Description: "mean intrinsic confidence of retrieved chunks"},
		{Name: "diversity", Score: diversity, Description: "fraction of distinct source documents among retrieved evidence"},
		{Name: "cross_modal", Score: crossModalBonus / crossModalBonusCap, Description: "bonus for evidence corroborated across modalities"},
	}

	strongest, weakest := strongestAndWeakest(factors)

	return ConfidenceBreakdown{
		Score:           score,
		LevelValue:      levelFor(score),
		Factors:         factors,
		StrongestFactor: strongest,
		WeakestFactor:   weakest,
		ActionableTips:  actionableTips(factors, score),
	}
}

func levelFor(score float64) Level {
	switch {
	case score >= highThreshold:
		return High
	case score >= mediumThreshold:
		return Medium
	default:
		return Low
	}
}

func meanRelevance(results []retrieval.Result) float64 {
	var sum float64
	for _, r := range results {
		sum += r.Relevance
	}
	return sum / float64(len(results))
}

func meanConfidence(results []retrieval.Result) float64 {
	var sum float64
	for _, r := range results {
		sum += r.Chunk.Confidence
	}
	return sum / float64(len(results))
}

func sourceDiversity(results []retrieval.Result) float64 {
	sources := map[string]bool{}
	for _, r := range results {
		if r.Chunk.SourceFile != "" {
			sources[r.Chunk.SourceFile] = true
		}
	}
	d := float64(len(sources)) / float64(len(results))
	if d > 1 {
		d = 1
	}
	return d
}

func crossModalBonusFor(results []retrieval.Result) float64 {
	modalities := map[string]bool{}
	for _, r := range results {
		modalities[string(r.Chunk.Modality)] = true
	}
	bonus := crossModalBonusUnit * float64(len(modalities)-1)
	if bonus < 0 {
		bonus = 0
	}
	if bonus > crossModalBonusCap {
		bonus = crossModalBonusCap
	}
	return bonus
}

func strongestAndWeakest(factors []Factor) (strongest, weakest string) {
	sorted := make([]Factor, len(factors))
	copy(sorted, factors)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
	return sorted[0].Name, sorted[len(sorted)-1].Name
}

func actionableTips(factors []Factor, score float64) []string {
	var tips []string
	for _, f := range factors {
		switch {
		case f.Name == "relevance" && f.Score < 0.4:
			tips = append(tips, "rephrase the query with more specific terms")
		case f.Name == "source_quality" && f.Score < 0.5:
			tips = append(tips, "the matched evidence has low intrinsic confidence; consider ingesting higher-quality sources")
		case f.Name == "diversity" && f.Score < 0.3:
			tips = append(tips, "answer relies on a single document; ingest corroborating sources")
		}
	}
	if score < mediumThreshold && len(tips) == 0 {
		tips = append(tips, "ingest additional documents covering this topic")
	}
	return tips
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
