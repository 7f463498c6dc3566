package search

import (
	"sort"

	"github.com/citeseek/citeseek/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter, empirically
// validated across retrieval domains.
const DefaultRRFConstant = 60

// FusedResult is a single candidate after fusing the two branch rankings.
type FusedResult struct {
	ChunkID      string
	Score        float64  // Fused score, semantics depend on the fuser
	BM25Score    float64  // Raw lexical score
	BM25Rank     int      // 1-indexed position in the lexical list, 0 if absent
	VectorScore  float64  // Cosine similarity
	VectorRank   int      // 1-indexed position in the vector list, 0 if absent
	InBothLists  bool     // Returned by both branches
	MatchedTerms []string // Lexical terms that matched
}

// Fuser merges the lexical and vector rankings into one candidate list.
type Fuser interface {
	Fuse(lexical []*store.BM25Result, vector []*store.VectorResult) []*FusedResult
	Name() string
}

// NewFuser builds the fuser selected by cfg.
func NewFuser(cfg EngineConfig) Fuser {
	if cfg.Fusion == FusionWeighted {
		return NewWeightedFusion(cfg.LexicalWeight, cfg.VectorWeight)
	}
	return NewRRFFusion(cfg.RRFConstant)
}

// RRFFusion implements Reciprocal Rank Fusion.
//
// Each list a chunk appears in contributes 1/(k+rank) to its score. A list
// that did not return the chunk contributes nothing, so scores are raw
// reciprocal-rank sums and two candidates from different requests compare
// directly.
type RRFFusion struct {
	K int
}

// NewRRFFusion creates an RRF fuser. Non-positive k falls back to 60.
func NewRRFFusion(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

func (f *RRFFusion) Name() string { return string(FusionRRF) }

// Fuse combines the branch rankings by reciprocal rank.
func (f *RRFFusion) Fuse(lexical []*store.BM25Result, vector []*store.VectorResult) []*FusedResult {
	if len(lexical) == 0 && len(vector) == 0 {
		return []*FusedResult{}
	}

	candidates := make(map[string]*FusedResult, len(lexical)+len(vector))

	for rank, r := range lexical {
		c := getOrCreate(candidates, r.DocID)
		c.BM25Score = r.Score
		c.BM25Rank = rank + 1
		c.MatchedTerms = r.MatchedTerms
		c.Score += 1.0 / float64(f.K+rank+1)
	}

	for rank, r := range vector {
		c := getOrCreate(candidates, r.ID)
		c.VectorScore = float64(r.Score)
		c.VectorRank = rank + 1
		c.Score += 1.0 / float64(f.K+rank+1)
		if c.BM25Rank > 0 {
			c.InBothLists = true
		}
	}

	return sortFused(candidates)
}

// WeightedFusion combines min-max normalized branch scores linearly.
//
// Each branch's scores are rescaled to [0,1] within the request, then
// summed as lexWeight*lexNorm + vecWeight*vecNorm. A chunk absent from a
// branch contributes zero from that branch.
type WeightedFusion struct {
	LexicalWeight float64
	VectorWeight  float64
}

// NewWeightedFusion creates a weighted fuser. Weights that do not sum to a
// positive value fall back to an even split.
func NewWeightedFusion(lexical, vector float64) *WeightedFusion {
	if lexical+vector <= 0 {
		lexical, vector = 0.5, 0.5
	}
	return &WeightedFusion{LexicalWeight: lexical, VectorWeight: vector}
}

func (f *WeightedFusion) Name() string { return string(FusionWeighted) }

// Fuse combines the branch rankings by normalized weighted score.
func (f *WeightedFusion) Fuse(lexical []*store.BM25Result, vector []*store.VectorResult) []*FusedResult {
	if len(lexical) == 0 && len(vector) == 0 {
		return []*FusedResult{}
	}

	lexScores := make([]float64, len(lexical))
	for i, r := range lexical {
		lexScores[i] = r.Score
	}
	vecScores := make([]float64, len(vector))
	for i, r := range vector {
		vecScores[i] = float64(r.Score)
	}
	lexNorm := minMaxNormalize(lexScores)
	vecNorm := minMaxNormalize(vecScores)

	candidates := make(map[string]*FusedResult, len(lexical)+len(vector))

	for rank, r := range lexical {
		c := getOrCreate(candidates, r.DocID)
		c.BM25Score = r.Score
		c.BM25Rank = rank + 1
		c.MatchedTerms = r.MatchedTerms
		c.Score += f.LexicalWeight * lexNorm[rank]
	}

	for rank, r := range vector {
		c := getOrCreate(candidates, r.ID)
		c.VectorScore = float64(r.Score)
		c.VectorRank = rank + 1
		c.Score += f.VectorWeight * vecNorm[rank]
		if c.BM25Rank > 0 {
			c.InBothLists = true
		}
	}

	return sortFused(candidates)
}

// minMaxNormalize rescales scores to [0,1]. A list where every score is
// identical normalizes to all ones: within the list those hits are equally
// good, and the branch already ranked them worth returning.
func minMaxNormalize(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}

	min, max := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}

	norm := make([]float64, len(scores))
	if max == min {
		for i := range norm {
			norm[i] = 1.0
		}
		return norm
	}
	for i, s := range scores {
		norm[i] = (s - min) / (max - min)
	}
	return norm
}

func getOrCreate(m map[string]*FusedResult, id string) *FusedResult {
	if c, ok := m[id]; ok {
		return c
	}
	c := &FusedResult{ChunkID: id}
	m[id] = c
	return c
}

// sortFused orders candidates deterministically:
// score desc, both-lists first, BM25 score desc, chunk ID asc.
func sortFused(m map[string]*FusedResult) []*FusedResult {
	results := make([]*FusedResult, 0, len(m))
	for _, c := range m {
		results = append(results, c)
	}

	sort.Slice(results, func(i, j int) bool {
		return fusedLess(results[i], results[j])
	})
	return results
}

func fusedLess(a, b *FusedResult) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.InBothLists != b.InBothLists {
		return a.InBothLists
	}
	if a.BM25Score != b.BM25Score {
		return a.BM25Score > b.BM25Score
	}
	return a.ChunkID < b.ChunkID
}
