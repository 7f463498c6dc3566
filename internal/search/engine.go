package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/citeseek/citeseek/internal/embed"
	cserrors "github.com/citeseek/citeseek/internal/errors"
	"github.com/citeseek/citeseek/internal/store"
	"github.com/citeseek/citeseek/internal/telemetry"
)

// Engine is the hybrid retrieval orchestrator. It owns both indices, the
// catalog, the embedder, and the optional rerank and citation stages.
type Engine struct {
	bm25     store.BM25Index
	vector   store.VectorStore
	embedder embed.Embedder
	catalog  *store.Catalog
	config   EngineConfig
	fuser    Fuser
	boosts   BoostWeights
	reranker Reranker
	citer    CitationFormatter
	metrics  *telemetry.QueryMetrics
	cache    *resultCache
	mu       sync.RWMutex
}

var _ Searcher = (*Engine)(nil)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// CitationFormatter renders a citation for a chunk. Publication chunks get
// their ordered author list; person chunks get the researcher's publication
// count.
type CitationFormatter interface {
	Format(chunk *store.Chunk, authors []*store.AuthorRef, pubCount int) (string, error)
}

// originSearcher is implemented by vector stores that can report whether a
// search was served by a degraded backend.
type originSearcher interface {
	SearchWithOrigin(ctx context.Context, query []float32, k int, q store.VectorQuery) ([]*store.VectorResult, bool, error)
}

// EngineOption configures optional engine stages.
type EngineOption func(*Engine)

// WithReranker enables the cross-encoder stage. Rerank failures degrade to
// fused order rather than failing the request.
func WithReranker(r Reranker) EngineOption {
	return func(e *Engine) { e.reranker = r }
}

// WithBoostWeights overrides the metadata boost weights.
func WithBoostWeights(w BoostWeights) EngineOption {
	return func(e *Engine) { e.boosts = w }
}

// WithCitations enables citation formatting on publication results.
func WithCitations(f CitationFormatter) EngineOption {
	return func(e *Engine) { e.citer = f }
}

// WithMetrics enables local query telemetry.
func WithMetrics(m *telemetry.QueryMetrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithResultCache enables response caching. The cache is purged on every
// index write.
func WithResultCache(size int, ttl time.Duration) EngineOption {
	return func(e *Engine) { e.cache = newResultCache(size, ttl) }
}

// NewEngine creates a hybrid search engine. All four core dependencies are
// required; stages are added through options.
func NewEngine(
	bm25 store.BM25Index,
	vector store.VectorStore,
	embedder embed.Embedder,
	catalog *store.Catalog,
	config EngineConfig,
	opts ...EngineOption,
) (*Engine, error) {
	if bm25 == nil {
		return nil, fmt.Errorf("%w: bm25 index is required", ErrNilDependency)
	}
	if vector == nil {
		return nil, fmt.Errorf("%w: vector store is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}
	if catalog == nil {
		return nil, fmt.Errorf("%w: catalog is required", ErrNilDependency)
	}

	if config.BranchLimit <= 0 {
		config.BranchLimit = DefaultEngineConfig().BranchLimit
	}
	if config.CandidateBudget <= 0 {
		config.CandidateBudget = DefaultEngineConfig().CandidateBudget
	}
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = DefaultEngineConfig().DefaultLimit
	}
	if config.MaxLimit <= 0 {
		config.MaxLimit = DefaultEngineConfig().MaxLimit
	}

	e := &Engine{
		bm25:     bm25,
		vector:   vector,
		embedder: embedder,
		catalog:  catalog,
		config:   config,
		fuser:    NewFuser(config),
		boosts:   DefaultBoostWeights(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search executes a hybrid query against all chunk types.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	return e.search(ctx, query, opts)
}

// SearchPublications restricts results to publication chunks.
func (e *Engine) SearchPublications(ctx context.Context, query string, opts Options) (*Response, error) {
	opts.Types = store.PublicationChunkTypes()
	return e.search(ctx, query, opts)
}

// SearchResearchers restricts results to staff profile chunks.
func (e *Engine) SearchResearchers(ctx context.Context, query string, opts Options) (*Response, error) {
	opts.Types = store.PersonChunkTypes()
	return e.search(ctx, query, opts)
}

func (e *Engine) search(ctx context.Context, query string, opts Options) (*Response, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		// An empty query is a valid request for nothing.
		return &Response{
			QueryID: uuid.NewString(),
			Results: []*Result{},
			Summary: summarize(nil),
			Elapsed: time.Since(start),
		}, nil
	}

	opts = e.applyDefaults(opts)

	if e.cache != nil && !opts.NoCache {
		if cached := e.cache.get(query, opts); cached != nil {
			e.recordMetrics(query, opts, cached, time.Since(start))
			return cached, nil
		}
	}

	if e.config.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.SearchTimeout)
		defer cancel()
	}

	resp := &Response{
		QueryID: uuid.NewString(),
		Query:   query,
	}

	lexResults, vecResults, err := e.parallelSearch(ctx, query, opts, resp)
	if err != nil {
		return nil, err
	}
	resp.LexicalCount = len(lexResults)
	resp.VectorCount = len(vecResults)

	fused := e.fuser.Fuse(lexResults, vecResults)
	resp.FusedCount = len(fused)
	if len(fused) > e.config.CandidateBudget {
		fused = fused[:e.config.CandidateBudget]
	}

	results, err := e.enrichResults(ctx, fused)
	if err != nil {
		return nil, cserrors.SearchError("loading result chunks failed", err)
	}
	results = applyFilters(results, opts.Filters)

	reranked := e.rerankResults(ctx, query, results, opts, resp)
	applyBoosts(results, e.boosts, reranked, time.Now())

	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	e.attachCitations(ctx, results)
	resp.Results = results
	resp.Summary = summarize(results)
	if opts.IncludeScores {
		resp.ScoreStats = computeScoreStats(results)
	}
	resp.Elapsed = time.Since(start)

	slog.Debug("search_completed",
		slog.String("query_id", resp.QueryID),
		slog.Int("lexical", resp.LexicalCount),
		slog.Int("vector", resp.VectorCount),
		slog.Int("returned", len(results)),
		slog.Bool("degraded", resp.Degraded()),
		slog.Duration("elapsed", resp.Elapsed))

	if e.cache != nil && !opts.NoCache {
		e.cache.put(query, opts, resp)
	}
	e.recordMetrics(query, opts, resp, resp.Elapsed)

	return resp, nil
}

// parallelSearch runs the lexical and vector branches concurrently. A
// single branch failure degrades the response; both failing fails the
// request.
func (e *Engine) parallelSearch(ctx context.Context, query string, opts Options, resp *Response) (
	[]*store.BM25Result, []*store.VectorResult, error,
) {
	if err := e.validateDimensions(ctx); err != nil {
		// The vector index was built by a different embedder. Lexical
		// results are still correct, so serve those.
		slog.Warn("embedding dimension mismatch, vector branch disabled",
			slog.String("error", err.Error()),
			slog.String("recovery", "citeseek index --rebuild"))
		resp.VectorFailed = true
		lex, lexErr := e.bm25.Search(ctx, query, e.config.BranchLimit, opts.Types)
		if lexErr != nil {
			return nil, nil, cserrors.SearchError("lexical search failed with vector branch disabled", lexErr)
		}
		return lex, nil, nil
	}

	g, gctx := errgroup.WithContext(ctx)

	var (
		lexResults []*store.BM25Result
		vecResults []*store.VectorResult
		lexErr     error
		vecErr     error
	)

	g.Go(func() error {
		var err error
		lexResults, err = e.bm25.Search(gctx, query, e.config.BranchLimit, opts.Types)
		if err != nil {
			lexErr = err
		}
		// Branch errors degrade, they do not cancel the sibling.
		return nil
	})

	g.Go(func() error {
		embedding, err := e.embedder.Embed(gctx, query)
		if err != nil {
			// An embedding failure is fatal to this branch. The exhaustive
			// fallback cannot help: it needs the same query vector.
			vecErr = cserrors.EmbeddingError("query embedding failed", err)
			return nil
		}

		vq := store.VectorQuery{Types: opts.Types, Threshold: e.config.VectorThreshold}
		if origin, ok := e.vector.(originSearcher); ok {
			var fellBack bool
			vecResults, fellBack, err = origin.SearchWithOrigin(gctx, embedding, e.config.BranchLimit, vq)
			if fellBack {
				resp.VectorFallback = true
			}
		} else {
			vecResults, err = e.vector.Search(gctx, embedding, e.config.BranchLimit, vq)
		}
		if err != nil {
			vecErr = err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}

	if lexErr != nil && vecErr != nil {
		return nil, nil, cserrors.SearchError("both search branches failed", errors.Join(lexErr, vecErr))
	}
	if lexErr != nil {
		slog.Warn("lexical branch failed, serving vector results",
			slog.String("error", lexErr.Error()))
		resp.LexicalFailed = true
	}
	if vecErr != nil {
		slog.Warn("vector branch failed, serving lexical results",
			slog.String("error", vecErr.Error()))
		resp.VectorFailed = true
	}

	return lexResults, vecResults, nil
}

// enrichResults resolves fused candidates to full catalog chunks in one
// batch query. Candidates missing from the catalog are stale index entries
// and are dropped.
func (e *Engine) enrichResults(ctx context.Context, fused []*FusedResult) ([]*Result, error) {
	if len(fused) == 0 {
		return []*Result{}, nil
	}

	ids := make([]string, len(fused))
	for i, c := range fused {
		ids[i] = c.ChunkID
	}

	chunks, err := e.catalog.GetChunks(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, 0, len(fused))
	for _, c := range fused {
		chunk, ok := chunks[c.ChunkID]
		if !ok {
			slog.Debug("dropping stale index entry", slog.String("chunk_id", c.ChunkID))
			continue
		}
		results = append(results, &Result{
			ChunkID:      c.ChunkID,
			Chunk:        chunk,
			Score:        c.Score,
			BM25Score:    c.BM25Score,
			BM25Rank:     c.BM25Rank,
			VectorScore:  c.VectorScore,
			VectorRank:   c.VectorRank,
			InBothLists:  c.InBothLists,
			MatchedTerms: c.MatchedTerms,
		})
	}
	return results, nil
}

// rerankResults runs the cross-encoder over the candidate pool. Returns
// true when rerank scores were applied; any failure leaves fused order in
// place and marks the response degraded.
func (e *Engine) rerankResults(ctx context.Context, query string, results []*Result, opts Options, resp *Response) bool {
	if e.reranker == nil || opts.NoRerank || len(results) == 0 {
		return false
	}

	docs := make([]string, len(results))
	for i, r := range results {
		docs[i] = r.Chunk.Content
	}

	scored, err := e.reranker.Rerank(ctx, query, docs, 0)
	if err != nil {
		rerr := cserrors.RerankerError("reranker failed, keeping fused order", err)
		slog.Warn("rerank_degraded",
			slog.String("query_id", resp.QueryID),
			slog.String("error", rerr.Error()))
		resp.RerankSkipped = true
		return false
	}

	for _, s := range scored {
		results[s.Index].RerankScore = s.Score
	}
	return true
}

// attachCitations formats citations for all results. The full ordered author
// list stays on the result even though the citation string truncates it.
// Enrichment failures leave the citation empty rather than failing the
// search.
func (e *Engine) attachCitations(ctx context.Context, results []*Result) {
	if e.citer == nil {
		return
	}

	for _, r := range results {
		if r.Chunk == nil {
			continue
		}

		var (
			authors  []*store.AuthorRef
			pubCount int
		)
		switch {
		case r.Chunk.Type.IsPublication():
			var err error
			authors, err = e.catalog.AuthorsForPublication(ctx, r.Chunk.PublicationID)
			if err != nil {
				slog.Warn("citation author lookup failed",
					slog.String("publication_id", r.Chunk.PublicationID),
					slog.String("error", err.Error()))
				authors = nil
			}
			r.AuthorDetails = authors
		case r.Chunk.Type.IsPerson() && r.Chunk.StaffProfileURL != "":
			var err error
			pubCount, err = e.catalog.CountPublicationsForStaff(ctx, r.Chunk.StaffProfileURL)
			if err != nil {
				slog.Warn("citation publication count failed",
					slog.String("staff_profile_url", r.Chunk.StaffProfileURL),
					slog.String("error", err.Error()))
				pubCount = 0
			}
		}

		citation, err := e.citer.Format(r.Chunk, authors, pubCount)
		if err != nil {
			slog.Warn("citation formatting failed",
				slog.String("chunk_id", r.ChunkID),
				slog.String("error", err.Error()))
			continue
		}
		r.Citation = citation
	}
}

// Index adds chunks to both indices and the catalog. The catalog write
// happens first: it is the store of record, and index orphans are filtered
// at search time while catalog orphans would surface as missing results.
func (e *Engine) Index(ctx context.Context, chunks []*store.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, c := range chunks {
		if err := c.Validate(); err != nil {
			return cserrors.New(cserrors.ErrCodeInvalidInput, "invalid chunk", err)
		}
	}

	texts := make([]string, len(chunks))
	docs := make([]*store.Document, len(chunks))
	ids := make([]string, len(chunks))
	types := make([]store.ChunkType, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
		docs[i] = &store.Document{ID: c.ID, Type: c.Type, Content: c.Content}
		ids[i] = c.ID
		types[i] = c.Type
	}

	embeddings, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return cserrors.EmbeddingError("embedding chunks failed", err)
	}

	if err := e.catalog.UpsertChunks(ctx, chunks); err != nil {
		return cserrors.New(cserrors.ErrCodeIndexFailed, "catalog write failed", err)
	}
	if err := e.bm25.Index(ctx, docs); err != nil {
		return cserrors.New(cserrors.ErrCodeIndexFailed, "lexical index write failed", err)
	}
	if err := e.vector.Add(ctx, ids, types, embeddings); err != nil {
		return cserrors.New(cserrors.ErrCodeIndexFailed, "vector index write failed", err)
	}

	if err := e.storeEmbedderInfo(ctx); err != nil {
		slog.Warn("failed to record embedder info", slog.String("error", err.Error()))
	}

	if e.cache != nil {
		e.cache.purge()
	}
	return nil
}

// Delete removes chunks everywhere. Index deletes are best effort since
// search filters entries missing from the catalog; the catalog delete must
// succeed.
func (e *Engine) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.bm25.Delete(ctx, chunkIDs); err != nil {
		slog.Warn("lexical delete failed, orphans remain until reindex",
			slog.String("error", err.Error()),
			slog.Int("count", len(chunkIDs)))
	}
	if err := e.vector.Delete(ctx, chunkIDs); err != nil {
		slog.Warn("vector delete failed, orphans remain until reindex",
			slog.String("error", err.Error()),
			slog.Int("count", len(chunkIDs)))
	}

	if err := e.catalog.DeleteChunks(ctx, chunkIDs); err != nil {
		return cserrors.New(cserrors.ErrCodeIndexFailed, "catalog delete failed", err)
	}

	if e.cache != nil {
		e.cache.purge()
	}
	return nil
}

// Stats returns engine statistics.
func (e *Engine) Stats(ctx context.Context) (*EngineStats, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	chunkCount, err := e.catalog.CountChunks(ctx)
	if err != nil {
		return nil, err
	}

	stats := &EngineStats{
		ChunkCount:  chunkCount,
		VectorCount: e.vector.Count(),
	}
	if s := e.bm25.Stats(); s != nil {
		stats.DocumentCount = s.DocumentCount
	}
	if e.reranker != nil {
		stats.RerankerUp = e.reranker.Available(ctx)
	}
	return stats, nil
}

// Close releases all resources.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	if err := e.bm25.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.vector.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.embedder.Close(); err != nil {
		errs = append(errs, err)
	}
	if e.reranker != nil {
		if err := e.reranker.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.catalog.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (e *Engine) applyDefaults(opts Options) Options {
	if opts.Limit <= 0 {
		opts.Limit = e.config.DefaultLimit
	}
	if opts.Limit > e.config.MaxLimit {
		opts.Limit = e.config.MaxLimit
	}
	return opts
}

// storeEmbedderInfo records the embedder's dimension and model so a later
// embedder swap is detected instead of silently returning noise.
func (e *Engine) storeEmbedderInfo(ctx context.Context) error {
	dim := fmt.Sprintf("%d", e.embedder.Dimensions())
	if err := e.catalog.SetState(ctx, store.StateKeyIndexDimension, dim); err != nil {
		return err
	}
	return e.catalog.SetState(ctx, store.StateKeyIndexModel, e.embedder.ModelName())
}

// validateDimensions compares the current embedder against the dimension
// the index was built with. Missing state means a fresh index and passes.
func (e *Engine) validateDimensions(ctx context.Context) error {
	stored, err := e.catalog.GetState(ctx, store.StateKeyIndexDimension)
	if err != nil || stored == "" {
		return nil
	}

	var indexDim int
	if _, err := fmt.Sscanf(stored, "%d", &indexDim); err != nil {
		slog.Warn("invalid stored index dimension", slog.String("value", stored))
		return nil
	}

	if current := e.embedder.Dimensions(); indexDim != current {
		model, _ := e.catalog.GetState(ctx, store.StateKeyIndexModel)
		return fmt.Errorf("index built with %d-dimension embeddings (%s), current embedder produces %d: %w", indexDim, model, current, &store.DimensionError{Expected: indexDim, Got: current})
	}
	return nil
}

func (e *Engine) recordMetrics(query string, opts Options, resp *Response, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.Record(telemetry.QueryEvent{
		Query:          query,
		Mode:           searchMode(opts.Types),
		ResultCount:    len(resp.Results),
		Latency:        elapsed,
		VectorFallback: resp.VectorFallback,
		RerankSkipped:  resp.RerankSkipped,
		CacheHit:       resp.CacheHit,
		Timestamp:      time.Now(),
	})
}

// searchMode classifies the request for telemetry from its type filter.
func searchMode(types []store.ChunkType) telemetry.SearchMode {
	if len(types) == 0 {
		return telemetry.ModeMixed
	}
	pubs, persons := 0, 0
	for _, t := range types {
		if t.IsPublication() {
			pubs++
		} else if t.IsPerson() {
			persons++
		}
	}
	switch {
	case pubs == len(types):
		return telemetry.ModePublications
	case persons == len(types):
		return telemetry.ModeResearchers
	default:
		return telemetry.ModeMixed
	}
}
