package search

import (
	"math"
	"sort"
	"time"
)

// BoostWeights scales the metadata boosts applied after reranking.
type BoostWeights struct {
	Citation   float64
	OpenAccess float64
	Recency    float64
}

// DefaultBoostWeights returns the standard boost weights. They are small
// relative to cross-encoder scores so metadata nudges ties rather than
// overruling relevance.
func DefaultBoostWeights() BoostWeights {
	return BoostWeights{
		Citation:   0.1,
		OpenAccess: 0.05,
		Recency:    0.05,
	}
}

// recencyBaseYear anchors the recency ramp: publications from this year or
// earlier get no recency boost, the current year gets the full weight.
const recencyBaseYear = 2000

// applyBoosts adds metadata boosts on top of each result's base score and
// re-sorts by FinalScore. The base is RerankScore when the reranker ran,
// otherwise the fused Score. Person chunks carry no bibliographic metadata
// and pass through with their base score.
func applyBoosts(results []*Result, w BoostWeights, reranked bool, now time.Time) {
	currentYear := now.Year()

	for _, r := range results {
		base := r.Score
		if reranked {
			base = r.RerankScore
		}

		if r.Chunk != nil && r.Chunk.Publication != nil {
			meta := r.Chunk.Publication
			r.CitationBoost = citationBoost(meta.CitationCount, w.Citation)
			if meta.OpenAccess {
				r.OpenAccessBoost = w.OpenAccess
			}
			r.RecencyBoost = recencyBoost(meta.Year, currentYear, w.Recency)
		}

		r.FinalScore = base + r.CitationBoost + r.OpenAccessBoost + r.RecencyBoost
	}

	sort.Slice(results, func(i, j int) bool {
		return resultLess(results[i], results[j])
	})
}

// citationBoost grows logarithmically with citation count so heavily cited
// papers do not dominate: log1p keeps zero citations at zero boost and the
// /10 divisor brings a thousand citations to roughly 0.7*weight.
func citationBoost(citations int, weight float64) float64 {
	if citations <= 0 {
		return 0
	}
	return weight * math.Log1p(float64(citations)) / 10
}

// recencyBoost ramps linearly from the base year to the current year,
// clamped to [0,1]. Unknown years get no boost.
func recencyBoost(year, currentYear int, weight float64) float64 {
	if year <= 0 || currentYear <= recencyBaseYear {
		return 0
	}
	frac := float64(year-recencyBaseYear) / float64(currentYear-recencyBaseYear)
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return weight * frac
}

// resultLess orders final results: FinalScore desc, both-lists first,
// BM25 score desc, chunk ID asc. Same tie-break chain as fusion so a
// skipped rerank stage preserves fused order exactly.
func resultLess(a, b *Result) bool {
	if a.FinalScore != b.FinalScore {
		return a.FinalScore > b.FinalScore
	}
	if a.InBothLists != b.InBothLists {
		return a.InBothLists
	}
	if a.BM25Score != b.BM25Score {
		return a.BM25Score > b.BM25Score
	}
	return a.ChunkID < b.ChunkID
}
