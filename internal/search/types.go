// Package search implements hybrid retrieval over the chunk catalog. A
// lexical BM25 branch and a cosine vector branch run concurrently, their
// hits are fused into one ranking, and an optional cross-encoder refines
// the top candidates before citations are attached.
package search

import (
	"context"
	"time"

	"github.com/citeseek/citeseek/internal/store"
)

// FusionMethod selects the algorithm used to merge branch rankings.
type FusionMethod string

const (
	FusionRRF      FusionMethod = "rrf"
	FusionWeighted FusionMethod = "weighted"
)

// Searcher is the hybrid retrieval facade.
type Searcher interface {
	// Search executes a hybrid query against all chunk types.
	Search(ctx context.Context, query string, opts Options) (*Response, error)

	// SearchPublications restricts results to publication chunks.
	SearchPublications(ctx context.Context, query string, opts Options) (*Response, error)

	// SearchResearchers restricts results to staff profile chunks.
	SearchResearchers(ctx context.Context, query string, opts Options) (*Response, error)

	// Index adds chunks to both indices and the catalog.
	Index(ctx context.Context, chunks []*store.Chunk) error

	// Delete removes chunks by ID from both indices and the catalog.
	Delete(ctx context.Context, chunkIDs []string) error

	// Stats returns engine statistics.
	Stats(ctx context.Context) (*EngineStats, error)

	// Close releases all resources.
	Close() error
}

// Options configures a single search request.
type Options struct {
	// Limit caps the number of returned results. Zero uses the engine
	// default; values above MaxLimit are clamped.
	Limit int

	// Types restricts results to these chunk types. Empty means all types.
	Types []store.ChunkType

	// Filters narrows results by publication year and school.
	Filters Filters

	// IncludeScores attaches per-signal score statistics to the response.
	IncludeScores bool

	// NoRerank skips the cross-encoder stage even when one is configured.
	NoRerank bool

	// NoCache bypasses the result cache for this request.
	NoCache bool
}

// Result is a single ranked hit with its full score breakdown.
type Result struct {
	// ChunkID identifies the hit; Chunk carries the catalog record.
	ChunkID string       `json:"chunk_id"`
	Chunk   *store.Chunk `json:"chunk"`

	// Score is the fused score. Under RRF it is a raw reciprocal-rank sum,
	// under weighted fusion a combination of min-max normalized scores.
	Score float64 `json:"score"`

	// BM25Score and BM25Rank describe the lexical branch hit. Rank is
	// 1-indexed; zero means the chunk was absent from that branch.
	BM25Score float64 `json:"bm25_score,omitempty"`
	BM25Rank  int     `json:"bm25_rank,omitempty"`

	// VectorScore is cosine similarity of the chunk's embedding to the
	// query embedding. VectorRank follows the same convention as BM25Rank.
	VectorScore float64 `json:"vector_score,omitempty"`
	VectorRank  int     `json:"vector_rank,omitempty"`

	// InBothLists marks chunks returned by both branches.
	InBothLists bool `json:"in_both_lists,omitempty"`

	// MatchedTerms are the lexical query terms that hit this chunk.
	MatchedTerms []string `json:"matched_terms,omitempty"`

	// RerankScore is the cross-encoder relevance score. Zero when the
	// reranker was skipped or unavailable.
	RerankScore float64 `json:"rerank_score,omitempty"`

	// Metadata boost breakdown, populated only for publication chunks
	// that went through the rerank stage.
	CitationBoost   float64 `json:"citation_boost,omitempty"`
	OpenAccessBoost float64 `json:"open_access_boost,omitempty"`
	RecencyBoost    float64 `json:"recency_boost,omitempty"`

	// FinalScore orders the response: RerankScore plus boosts when the
	// reranker ran, otherwise the fused Score.
	FinalScore float64 `json:"final_score"`

	// Citation is the formatted citation string: bibliographic for
	// publication chunks, a profile line for person chunks.
	Citation string `json:"citation,omitempty"`

	// AuthorDetails is the full ordered author list for publication
	// chunks, with position, corresponding-author, and ORCID attributes.
	// The citation string truncates long author lists; this does not.
	AuthorDetails []*store.AuthorRef `json:"author_details,omitempty"`
}

// Response is a completed search with its degradation flags.
type Response struct {
	// QueryID uniquely identifies this request in logs.
	QueryID string `json:"query_id"`

	Query   string    `json:"query"`
	Results []*Result `json:"results"`

	// Summary is a one-line description of the result mix.
	Summary string `json:"summary"`

	// ScoreStats carries per-signal statistics when requested.
	ScoreStats *ScoreStats `json:"score_stats,omitempty"`

	// LexicalCount and VectorCount are pre-fusion branch hit counts.
	LexicalCount int `json:"lexical_count"`
	VectorCount  int `json:"vector_count"`

	// FusedCount is the candidate count after fusion, before the budget cut.
	FusedCount int `json:"fused_count"`

	// Degradation flags. VectorFallback means the exhaustive scan served
	// the vector branch; RerankSkipped means the cross-encoder was
	// configured but failed or was unavailable, so fused order stands.
	// LexicalFailed and VectorFailed mark a branch that returned an error
	// while the other carried the request.
	VectorFallback bool `json:"vector_fallback,omitempty"`
	RerankSkipped  bool `json:"rerank_skipped,omitempty"`
	LexicalFailed  bool `json:"lexical_failed,omitempty"`
	VectorFailed   bool `json:"vector_failed,omitempty"`

	// CacheHit marks a response served from the result cache.
	CacheHit bool `json:"cache_hit,omitempty"`

	Elapsed time.Duration `json:"elapsed"`
}

// Degraded reports whether any stage fell short of the full pipeline.
func (r *Response) Degraded() bool {
	return r.VectorFallback || r.RerankSkipped || r.LexicalFailed || r.VectorFailed
}

// EngineStats describes the engine's index state.
type EngineStats struct {
	ChunkCount    int  `json:"chunk_count"`
	DocumentCount int  `json:"document_count"`
	VectorCount   int  `json:"vector_count"`
	RerankerUp    bool `json:"reranker_up"`
}

// EngineConfig configures the search engine.
type EngineConfig struct {
	// Fusion selects RRF or weighted score fusion.
	Fusion FusionMethod

	// LexicalWeight and VectorWeight apply to weighted fusion. Weights that
	// do not sum to a positive value fall back to an even split; RRF
	// ignores them.
	LexicalWeight float64
	VectorWeight  float64

	// RRFConstant is the smoothing constant k in 1/(k+rank).
	RRFConstant int

	// BranchLimit caps how many hits each branch retrieves before fusion.
	BranchLimit int

	// CandidateBudget caps how many fused candidates reach the reranker.
	CandidateBudget int

	// DefaultLimit and MaxLimit bound the response size.
	DefaultLimit int
	MaxLimit     int

	// VectorThreshold drops vector hits below this cosine similarity.
	VectorThreshold float32

	// SearchTimeout bounds a single request end to end.
	SearchTimeout time.Duration
}

// DefaultEngineConfig returns the standard engine configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Fusion:          FusionRRF,
		LexicalWeight:   0.5,
		VectorWeight:    0.5,
		RRFConstant:     DefaultRRFConstant,
		BranchLimit:     50,
		CandidateBudget: 80,
		DefaultLimit:    10,
		MaxLimit:        100,
		VectorThreshold: 0,
		SearchTimeout:   10 * time.Second,
	}
}
