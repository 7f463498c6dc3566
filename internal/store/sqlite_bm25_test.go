package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFTSIndex(t *testing.T) *SQLiteBM25Index {
	t.Helper()
	idx, err := NewSQLiteBM25Index("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func testDocuments() []*Document {
	return []*Document{
		{ID: "pub-1-title", Type: ChunkTypePublicationTitle,
			Content: "Graph neural networks for molecular property prediction"},
		{ID: "pub-1-abstract", Type: ChunkTypePublicationAbstract,
			Content: "We study graph neural networks applied to molecules and property prediction benchmarks"},
		{ID: "pub-2-title", Type: ChunkTypePublicationTitle,
			Content: "Transformer architectures for protein structure"},
		{ID: "person-1-basic", Type: ChunkTypePersonBasic,
			Content: "Professor of computational biology working on protein structure and molecular dynamics"},
	}
}

func TestSQLiteBM25_IndexAndSearch(t *testing.T) {
	idx := newTestFTSIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, testDocuments()))

	results, err := idx.Search(ctx, "graph neural networks", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	ids := []string{results[0].DocID, results[1].DocID}
	assert.Contains(t, ids, "pub-1-title")
	assert.Contains(t, ids, "pub-1-abstract")
	for _, r := range results {
		assert.Greater(t, r.Score, 0.0, "bm25 scores surface as positive values")
	}
}

func TestSQLiteBM25_ConjunctiveMatching(t *testing.T) {
	idx := newTestFTSIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, testDocuments()))

	// "protein" and "molecular" co-occur only in the biography chunk.
	results, err := idx.Search(ctx, "protein molecular", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "person-1-basic", results[0].DocID)
}

func TestSQLiteBM25_TypeFilter(t *testing.T) {
	idx := newTestFTSIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, testDocuments()))

	results, err := idx.Search(ctx, "protein structure", 10,
		[]ChunkType{ChunkTypePublicationTitle})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "pub-2-title", results[0].DocID)
}

func TestSQLiteBM25_EmptyQuery(t *testing.T) {
	idx := newTestFTSIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, testDocuments()))

	for _, q := range []string{"", "   ", "the of and"} {
		results, err := idx.Search(ctx, q, 10, nil)
		require.NoError(t, err)
		assert.Empty(t, results)
	}
}

func TestSQLiteBM25_Reindex(t *testing.T) {
	idx := newTestFTSIndex(t)
	ctx := context.Background()

	doc := &Document{ID: "pub-9-title", Type: ChunkTypePublicationTitle, Content: "quantum computing"}
	require.NoError(t, idx.Index(ctx, []*Document{doc}))

	doc.Content = "classical algorithms"
	require.NoError(t, idx.Index(ctx, []*Document{doc}))

	results, err := idx.Search(ctx, "quantum", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results, "old content should be replaced")

	results, err = idx.Search(ctx, "classical algorithms", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)

	stats := idx.Stats()
	assert.Equal(t, 1, stats.DocumentCount)
}

func TestSQLiteBM25_Delete(t *testing.T) {
	idx := newTestFTSIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, testDocuments()))
	require.NoError(t, idx.Delete(ctx, []string{"pub-1-title", "pub-1-abstract"}))

	results, err := idx.Search(ctx, "graph neural networks", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	ids, err := idx.AllIDs()
	require.NoError(t, err)
	assert.NotContains(t, ids, "pub-1-title")
}

func TestSQLiteBM25_ClosedIndex(t *testing.T) {
	idx := newTestFTSIndex(t)
	require.NoError(t, idx.Close())

	_, err := idx.Search(context.Background(), "anything", 10, nil)
	assert.ErrorIs(t, err, ErrStoreClosed)

	err = idx.Index(context.Background(), testDocuments())
	assert.ErrorIs(t, err, ErrStoreClosed)

	// Close is idempotent.
	assert.NoError(t, idx.Close())
}

func TestSQLiteBM25_PersistsToDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bm25.db")
	ctx := context.Background()

	idx, err := NewSQLiteBM25Index(path)
	require.NoError(t, err)
	require.NoError(t, idx.Index(ctx, testDocuments()))
	require.NoError(t, idx.Close())

	reopened, err := NewSQLiteBM25Index(path)
	require.NoError(t, err)
	defer reopened.Close()

	results, err := reopened.Search(ctx, "transformer protein", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "pub-2-title", results[0].DocID)
}
