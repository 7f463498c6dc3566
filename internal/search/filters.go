package search

import (
	"fmt"
	"strings"
)

// Filters narrows enriched results by catalog metadata. Zero values mean
// no restriction.
type Filters struct {
	// YearFrom and YearTo bound the publication year, inclusive. They
	// apply to publication chunks only; researcher profiles carry no year
	// and pass through.
	YearFrom int
	YearTo   int

	// School keeps researcher profiles from a matching school. The match
	// is a case-insensitive substring against the profile's school, or
	// the chunk's extra attributes for publication chunks that carry one.
	School string
}

// Empty reports whether no filter is set.
func (f Filters) Empty() bool {
	return f.YearFrom == 0 && f.YearTo == 0 && f.School == ""
}

// applyFilters drops results excluded by f. Filtering runs on enriched
// results so metadata is already loaded, and before the reranker so the
// cross-encoder only scores candidates that can be returned.
func applyFilters(results []*Result, f Filters) []*Result {
	if f.Empty() {
		return results
	}

	filtered := results[:0]
	for _, r := range results {
		if matchesFilters(r, f) {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

func matchesFilters(r *Result, f Filters) bool {
	if r.Chunk == nil {
		return false
	}

	if meta := r.Chunk.Publication; meta != nil {
		if f.YearFrom > 0 && meta.Year < f.YearFrom {
			return false
		}
		if f.YearTo > 0 && (meta.Year == 0 || meta.Year > f.YearTo) {
			return false
		}
	}

	if f.School != "" && !matchesSchool(r, f.School) {
		return false
	}
	return true
}

func matchesSchool(r *Result, school string) bool {
	want := strings.ToLower(school)
	if p := r.Chunk.Person; p != nil && strings.Contains(strings.ToLower(p.School), want) {
		return true
	}
	if extra, ok := r.Chunk.Extra["school"]; ok {
		return strings.Contains(strings.ToLower(extra), want)
	}
	return r.Chunk.Person == nil && r.Chunk.Extra["school"] == ""
}

// summarize builds the one-line result mix summary.
func summarize(results []*Result) string {
	if len(results) == 0 {
		return "No relevant results found."
	}

	pubs, persons := 0, 0
	for _, r := range results {
		if r.Chunk == nil {
			continue
		}
		if r.Chunk.Type.IsPublication() {
			pubs++
		} else if r.Chunk.Type.IsPerson() {
			persons++
		}
	}

	switch {
	case persons == 0:
		return fmt.Sprintf("Found %d relevant publication(s).", pubs)
	case pubs == 0:
		return fmt.Sprintf("Found %d researcher profile(s).", persons)
	default:
		return fmt.Sprintf("Found %d relevant publication(s), %d researcher profile(s).", pubs, persons)
	}
}

// SignalStats summarizes one score signal across the returned results.
type SignalStats struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

// ScoreStats is the per-signal breakdown attached when Options.IncludeScores
// is set. It covers every signal a result carries: the raw branch scores,
// the fused score, the cross-encoder score, and the final ordering score.
type ScoreStats struct {
	BM25   SignalStats `json:"bm25"`
	Vector SignalStats `json:"vector"`
	Fusion SignalStats `json:"fusion"`
	Rerank SignalStats `json:"rerank"`
	Final  SignalStats `json:"final"`
}

func computeScoreStats(results []*Result) *ScoreStats {
	if len(results) == 0 {
		return nil
	}

	bm25 := make([]float64, len(results))
	vec := make([]float64, len(results))
	fused := make([]float64, len(results))
	rerank := make([]float64, len(results))
	final := make([]float64, len(results))
	for i, r := range results {
		bm25[i] = r.BM25Score
		vec[i] = r.VectorScore
		fused[i] = r.Score
		rerank[i] = r.RerankScore
		final[i] = r.FinalScore
	}

	return &ScoreStats{
		BM25:   signalStats(bm25),
		Vector: signalStats(vec),
		Fusion: signalStats(fused),
		Rerank: signalStats(rerank),
		Final:  signalStats(final),
	}
}

func signalStats(values []float64) SignalStats {
	s := SignalStats{Min: values[0], Max: values[0]}
	var sum float64
	for _, v := range values {
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
		sum += v
	}
	s.Avg = sum / float64(len(values))
	return s
}
