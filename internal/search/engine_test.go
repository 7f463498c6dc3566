package search

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citeseek/citeseek/internal/store"
)

// fakeEmbedder maps topic words to fixed unit vectors so branch behavior
// is predictable without a model server.
type fakeEmbedder struct {
	fail bool
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, errors.New("embedding backend down")
	}
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "protein"):
		return []float32{1, 0, 0, 0}, nil
	case strings.Contains(lower, "quantum"):
		return []float32{0, 1, 0, 0}, nil
	default:
		return []float32{0, 0, 0.6, 0.8}, nil
	}
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int                  { return 4 }
func (f *fakeEmbedder) ModelName() string                { return "fake-embed" }
func (f *fakeEmbedder) Available(_ context.Context) bool { return !f.fail }
func (f *fakeEmbedder) Close() error                     { return nil }

type failingBM25 struct{}

func (f *failingBM25) Index(_ context.Context, _ []*store.Document) error { return nil }
func (f *failingBM25) Search(_ context.Context, _ string, _ int, _ []store.ChunkType) ([]*store.BM25Result, error) {
	return nil, errors.New("lexical index down")
}
func (f *failingBM25) Delete(_ context.Context, _ []string) error { return nil }
func (f *failingBM25) Stats() *store.IndexStats                   { return &store.IndexStats{} }
func (f *failingBM25) Close() error                               { return nil }

type fakeCiter struct{}

func (fakeCiter) Format(chunk *store.Chunk, _ []*store.AuthorRef, pubCount int) (string, error) {
	if chunk.Type.IsPerson() {
		return fmt.Sprintf("CITE %s [%d]", chunk.Person.Name, pubCount), nil
	}
	return "CITE " + chunk.Publication.Title, nil
}

func testChunks() []*store.Chunk {
	return []*store.Chunk{
		{
			ID:            "pub-1-title",
			Type:          store.ChunkTypePublicationTitle,
			Content:       "Protein folding with deep learning",
			PublicationID: "pub-1",
			Publication: &store.PublicationMeta{
				Title:         "Protein folding with deep learning",
				Year:          2024,
				Venue:         "Nature Methods",
				DOI:           "10.1000/pf.2024",
				CitationCount: 120,
				OpenAccess:    true,
			},
		},
		{
			ID:            "pub-1-abstract",
			Type:          store.ChunkTypePublicationAbstract,
			Content:       "We predict protein structure from sequence data",
			PublicationID: "pub-1",
			Publication: &store.PublicationMeta{
				Title: "Protein folding with deep learning",
				Year:  2024,
			},
		},
		{
			ID:            "pub-2-title",
			Type:          store.ChunkTypePublicationTitle,
			Content:       "Quantum error correction codes",
			PublicationID: "pub-2",
			Publication: &store.PublicationMeta{
				Title: "Quantum error correction codes",
				Year:  2019,
			},
		},
		{
			ID:              "person-1-basic",
			Type:            store.ChunkTypePersonBasic,
			Content:         "Dr. Sarah Chen, Professor of protein biology",
			StaffProfileURL: "https://example.edu/staff/chen",
			Person:          &store.PersonMeta{Name: "Dr. Sarah Chen"},
		},
	}
}

func newTestEngine(t *testing.T, cfg EngineConfig, opts ...EngineOption) *Engine {
	t.Helper()
	dir := t.TempDir()

	bm25, err := store.NewSQLiteBM25Index(filepath.Join(dir, "bm25.db"))
	require.NoError(t, err)
	vec, err := store.NewHNSWStore(store.HNSWConfig{Dimensions: 4})
	require.NoError(t, err)
	catalog, err := store.NewCatalog(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)

	e, err := NewEngine(bm25, vec, &fakeEmbedder{}, catalog, cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func seedEngine(t *testing.T, e *Engine) {
	t.Helper()
	require.NoError(t, e.Index(context.Background(), testChunks()))
}

func TestNewEngine_RequiresDependencies(t *testing.T) {
	_, err := NewEngine(nil, nil, nil, nil, DefaultEngineConfig())
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestEngine_HybridSearch(t *testing.T) {
	e := newTestEngine(t, DefaultEngineConfig())
	seedEngine(t, e)

	resp, err := e.Search(context.Background(), "protein folding", Options{})
	require.NoError(t, err)

	require.NotEmpty(t, resp.Results)
	assert.NotEmpty(t, resp.QueryID)
	assert.False(t, resp.Degraded())
	assert.Positive(t, resp.LexicalCount)
	assert.Positive(t, resp.VectorCount)

	// Both branches agree on the title chunk: it matches both query terms
	// lexically and carries the protein topic vector.
	first := resp.Results[0]
	assert.Equal(t, "pub-1-title", first.ChunkID)
	assert.True(t, first.InBothLists)
	require.NotNil(t, first.Chunk)
	assert.Equal(t, "Protein folding with deep learning", first.Chunk.Publication.Title)
	assert.Positive(t, first.FinalScore)
}

func TestEngine_SearchIsDeterministic(t *testing.T) {
	e := newTestEngine(t, DefaultEngineConfig())
	seedEngine(t, e)

	first, err := e.Search(context.Background(), "protein folding", Options{NoCache: true})
	require.NoError(t, err)
	second, err := e.Search(context.Background(), "protein folding", Options{NoCache: true})
	require.NoError(t, err)

	require.Equal(t, len(first.Results), len(second.Results))
	for i := range first.Results {
		assert.Equal(t, first.Results[i].ChunkID, second.Results[i].ChunkID)
		assert.Equal(t, first.Results[i].Score, second.Results[i].Score)
		assert.Equal(t, first.Results[i].FinalScore, second.Results[i].FinalScore)
	}
}

func TestEngine_EmptyQueryReturnsEmptyResponse(t *testing.T) {
	e := newTestEngine(t, DefaultEngineConfig())
	seedEngine(t, e)

	for _, q := range []string{"", "   ", "\t\n"} {
		resp, err := e.Search(context.Background(), q, Options{})
		require.NoError(t, err)
		assert.Empty(t, resp.Results)
		assert.NotEmpty(t, resp.QueryID)
	}
}

func TestEngine_SearchResearchers(t *testing.T) {
	e := newTestEngine(t, DefaultEngineConfig())
	seedEngine(t, e)

	resp, err := e.SearchResearchers(context.Background(), "protein", Options{})
	require.NoError(t, err)

	require.NotEmpty(t, resp.Results)
	for _, r := range resp.Results {
		assert.True(t, r.Chunk.Type.IsPerson(), "chunk %s is not a person chunk", r.ChunkID)
	}
}

func TestEngine_SearchPublications(t *testing.T) {
	e := newTestEngine(t, DefaultEngineConfig())
	seedEngine(t, e)

	resp, err := e.SearchPublications(context.Background(), "protein", Options{})
	require.NoError(t, err)

	require.NotEmpty(t, resp.Results)
	for _, r := range resp.Results {
		assert.True(t, r.Chunk.Type.IsPublication(), "chunk %s is not a publication chunk", r.ChunkID)
	}
}

func TestEngine_RerankFailureDegradesToFusedOrder(t *testing.T) {
	broken, err := NewCrossEncoderReranker(context.Background(), CrossEncoderConfig{
		Endpoint:        "http://localhost:1",
		SkipHealthCheck: true,
		Timeout:         time.Second,
	})
	require.NoError(t, err)

	e := newTestEngine(t, DefaultEngineConfig(), WithReranker(broken))
	seedEngine(t, e)

	resp, err := e.Search(context.Background(), "protein folding", Options{})
	require.NoError(t, err)

	assert.True(t, resp.RerankSkipped)
	assert.True(t, resp.Degraded())
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "pub-1-title", resp.Results[0].ChunkID)
	assert.Zero(t, resp.Results[0].RerankScore)
}

func TestEngine_RerankScoresApplied(t *testing.T) {
	srv := fakeRerankServer(t)
	defer srv.Close()

	reranker, err := NewCrossEncoderReranker(context.Background(), CrossEncoderConfig{Endpoint: srv.URL})
	require.NoError(t, err)

	e := newTestEngine(t, DefaultEngineConfig(), WithReranker(reranker))
	seedEngine(t, e)

	resp, err := e.Search(context.Background(), "protein folding", Options{})
	require.NoError(t, err)

	assert.False(t, resp.RerankSkipped)
	require.NotEmpty(t, resp.Results)
	for _, r := range resp.Results {
		assert.NotZero(t, r.RerankScore, "chunk %s missing rerank score", r.ChunkID)
	}
}

func TestEngine_NoRerankOption(t *testing.T) {
	srv := fakeRerankServer(t)
	defer srv.Close()

	reranker, err := NewCrossEncoderReranker(context.Background(), CrossEncoderConfig{Endpoint: srv.URL})
	require.NoError(t, err)

	e := newTestEngine(t, DefaultEngineConfig(), WithReranker(reranker))
	seedEngine(t, e)

	resp, err := e.Search(context.Background(), "protein folding", Options{NoRerank: true})
	require.NoError(t, err)

	assert.False(t, resp.RerankSkipped)
	for _, r := range resp.Results {
		assert.Zero(t, r.RerankScore)
	}
}

func TestEngine_CitationsAttached(t *testing.T) {
	e := newTestEngine(t, DefaultEngineConfig(), WithCitations(fakeCiter{}))
	seedEngine(t, e)

	resp, err := e.Search(context.Background(), "protein", Options{})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)

	for _, r := range resp.Results {
		assert.True(t, strings.HasPrefix(r.Citation, "CITE "), "chunk %s: %q", r.ChunkID, r.Citation)
	}
}

func TestEngine_CitationEnrichment(t *testing.T) {
	e := newTestEngine(t, DefaultEngineConfig(), WithCitations(fakeCiter{}))
	seedEngine(t, e)

	ctx := context.Background()
	require.NoError(t, e.catalog.UpsertPublications(ctx, []*store.Publication{{
		ID:              "pub-1",
		Title:           "Protein folding with deep learning",
		StaffProfileURL: "https://example.edu/staff/chen",
	}}))
	chenID, err := e.catalog.UpsertAuthor(ctx, &store.Author{Name: "S. Chen", IsLocalStaff: true})
	require.NoError(t, err)
	parkID, err := e.catalog.UpsertAuthor(ctx, &store.Author{Name: "J. Park", ORCID: "0000-0001-2345-6789"})
	require.NoError(t, err)
	// Linked out of order; results must follow stored author position.
	require.NoError(t, e.catalog.LinkAuthor(ctx, &store.PublicationAuthor{
		PublicationID: "pub-1", AuthorID: parkID, Position: 1,
	}))
	require.NoError(t, e.catalog.LinkAuthor(ctx, &store.PublicationAuthor{
		PublicationID: "pub-1", AuthorID: chenID, Position: 0, IsCorresponding: true,
	}))

	resp, err := e.Search(ctx, "protein", Options{})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)

	var sawPublication, sawPerson bool
	for _, r := range resp.Results {
		switch {
		case r.Chunk.PublicationID == "pub-1":
			sawPublication = true
			require.Len(t, r.AuthorDetails, 2)
			assert.Equal(t, "S. Chen", r.AuthorDetails[0].Name)
			assert.True(t, r.AuthorDetails[0].IsCorresponding)
			assert.Equal(t, "J. Park", r.AuthorDetails[1].Name)
			assert.Equal(t, "0000-0001-2345-6789", r.AuthorDetails[1].ORCID)
		case r.Chunk.Type.IsPerson():
			sawPerson = true
			assert.Equal(t, "CITE Dr. Sarah Chen [1]", r.Citation)
			assert.Empty(t, r.AuthorDetails)
		}
	}
	assert.True(t, sawPublication)
	assert.True(t, sawPerson)
}

func TestEngine_ResultCache(t *testing.T) {
	e := newTestEngine(t, DefaultEngineConfig(), WithResultCache(10, time.Minute))
	seedEngine(t, e)

	first, err := e.Search(context.Background(), "protein", Options{})
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := e.Search(context.Background(), "protein", Options{})
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Len(t, second.Results, len(first.Results))

	// Writes invalidate cached responses.
	require.NoError(t, e.Delete(context.Background(), []string{"pub-2-title"}))
	third, err := e.Search(context.Background(), "protein", Options{})
	require.NoError(t, err)
	assert.False(t, third.CacheHit)
}

func TestEngine_DeleteRemovesFromResults(t *testing.T) {
	e := newTestEngine(t, DefaultEngineConfig())
	seedEngine(t, e)

	require.NoError(t, e.Delete(context.Background(), []string{"pub-1-title", "pub-1-abstract"}))

	resp, err := e.SearchPublications(context.Background(), "protein", Options{})
	require.NoError(t, err)
	for _, r := range resp.Results {
		assert.NotContains(t, []string{"pub-1-title", "pub-1-abstract"}, r.ChunkID)
	}
}

func TestEngine_RejectsInvalidChunk(t *testing.T) {
	e := newTestEngine(t, DefaultEngineConfig())

	err := e.Index(context.Background(), []*store.Chunk{{ID: "", Content: "x", Type: store.ChunkTypePersonBasic}})
	assert.Error(t, err)
}

func TestEngine_LexicalFailureServesVectorResults(t *testing.T) {
	dir := t.TempDir()
	vec, err := store.NewHNSWStore(store.HNSWConfig{Dimensions: 4})
	require.NoError(t, err)
	catalog, err := store.NewCatalog(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)

	e, err := NewEngine(&failingBM25{}, vec, &fakeEmbedder{}, catalog, DefaultEngineConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	require.NoError(t, e.Index(context.Background(), testChunks()))

	resp, err := e.Search(context.Background(), "protein", Options{})
	require.NoError(t, err)
	assert.True(t, resp.LexicalFailed)
	assert.True(t, resp.Degraded())
	assert.NotEmpty(t, resp.Results)
}

func TestEngine_BothBranchesFailingFailsRequest(t *testing.T) {
	dir := t.TempDir()
	vec, err := store.NewHNSWStore(store.HNSWConfig{Dimensions: 4})
	require.NoError(t, err)
	catalog, err := store.NewCatalog(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)

	e, err := NewEngine(&failingBM25{}, vec, &fakeEmbedder{fail: true}, catalog, DefaultEngineConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	_, err = e.Search(context.Background(), "protein", Options{})
	assert.Error(t, err)
}

func TestEngine_DimensionMismatchDisablesVectorBranch(t *testing.T) {
	e := newTestEngine(t, DefaultEngineConfig())
	seedEngine(t, e)

	// Simulate an index built by a different embedder.
	require.NoError(t, e.catalog.SetState(context.Background(), store.StateKeyIndexDimension, "768"))

	resp, err := e.Search(context.Background(), "protein", Options{})
	require.NoError(t, err)
	assert.True(t, resp.VectorFailed)
	assert.True(t, resp.Degraded())
	assert.NotEmpty(t, resp.Results)
	assert.Zero(t, resp.VectorCount)
}

func TestEngine_Stats(t *testing.T) {
	e := newTestEngine(t, DefaultEngineConfig())
	seedEngine(t, e)

	stats, err := e.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.ChunkCount)
	assert.Equal(t, 4, stats.DocumentCount)
	assert.Equal(t, 4, stats.VectorCount)
	assert.False(t, stats.RerankerUp)
}

func TestEngine_LimitClamping(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.DefaultLimit = 2
	cfg.MaxLimit = 3

	e := newTestEngine(t, cfg)
	seedEngine(t, e)

	resp, err := e.Search(context.Background(), "protein", Options{})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(resp.Results), 2)

	resp, err = e.Search(context.Background(), "protein", Options{Limit: 50})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(resp.Results), 3)
}
