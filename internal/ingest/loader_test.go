package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citeseek/citeseek/internal/store"
)

// recordingEngine captures indexed chunks without real indices.
type recordingEngine struct {
	chunks  []*store.Chunk
	batches int
	failAt  int // fail the Nth Index call, 0 disables
}

func (r *recordingEngine) Index(_ context.Context, chunks []*store.Chunk) error {
	r.batches++
	if r.failAt > 0 && r.batches == r.failAt {
		return assert.AnError
	}
	r.chunks = append(r.chunks, chunks...)
	return nil
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadChunks(t *testing.T) {
	path := writeFile(t, "chunks.jsonl", `
{"chunk_id":"pub-1-title","chunk_type":"publication_title","content":"Protein folding","publication_id":"pub-1","publication":{"title":"Protein folding","year":2024}}
{"chunk_id":"person-1-basic","chunk_type":"person_basic","content":"Dr. Chen","staff_profile_url":"https://example.edu/chen","person":{"name":"Dr. Chen"}}
`)

	eng := &recordingEngine{}
	loader := NewLoader(eng, nil)

	var lastProgress int
	n, err := loader.LoadChunks(context.Background(), path, func(current, _ int) {
		lastProgress = current
	})
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, 2, lastProgress)
	require.Len(t, eng.chunks, 2)
	assert.Equal(t, "pub-1-title", eng.chunks[0].ID)
	assert.Equal(t, store.ChunkTypePublicationTitle, eng.chunks[0].Type)
	assert.Equal(t, 2024, eng.chunks[0].Publication.Year)
}

func TestLoadChunks_MalformedLineReportsPosition(t *testing.T) {
	path := writeFile(t, "chunks.jsonl",
		`{"chunk_id":"pub-1-title","chunk_type":"publication_title","content":"ok"}
not json at all
`)

	loader := NewLoader(&recordingEngine{}, nil)
	_, err := loader.LoadChunks(context.Background(), path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":2")
}

func TestLoadChunks_InvalidChunkRejected(t *testing.T) {
	path := writeFile(t, "chunks.jsonl",
		`{"chunk_id":"","chunk_type":"publication_title","content":"missing id"}`)

	loader := NewLoader(&recordingEngine{}, nil)
	_, err := loader.LoadChunks(context.Background(), path, nil)
	assert.Error(t, err)
}

func TestLoadChunks_MissingFile(t *testing.T) {
	loader := NewLoader(&recordingEngine{}, nil)
	_, err := loader.LoadChunks(context.Background(), "/nonexistent/chunks.jsonl", nil)
	assert.Error(t, err)
}

func TestLoadChunks_Batching(t *testing.T) {
	var lines strings.Builder
	for i := 0; i < ChunkBatchSize+5; i++ {
		fmt.Fprintf(&lines, `{"chunk_id":"c-%03d","chunk_type":"publication_title","content":"x"}%s`, i, "\n")
	}
	path := writeFile(t, "chunks.jsonl", lines.String())

	eng := &recordingEngine{}
	n, err := NewLoader(eng, nil).LoadChunks(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Equal(t, ChunkBatchSize+5, n)
	assert.Equal(t, 2, eng.batches)
}

func TestLoadCatalog(t *testing.T) {
	catalogPath := writeFile(t, "catalog.json", `{
		"staff": [
			{"profile_url":"https://example.edu/chen","full_name":"Sarah Chen","school":"School of Computing"}
		],
		"publications": [
			{"id":"pub-1","title":"Protein folding","year":2024,"venue":"Nature Methods","citation_count":120}
		],
		"authors": [
			{"name":"Sarah Chen","openalex_id":"A1","is_local_staff":true,
			 "publications":[{"publication_id":"pub-1","position":0,"is_corresponding":true}]},
			{"name":"Jin Park","openalex_id":"A2",
			 "publications":[{"publication_id":"pub-1","position":1}]}
		]
	}`)

	catalog, err := store.NewCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer catalog.Close()

	loader := NewLoader(&recordingEngine{}, catalog)
	counts, err := loader.LoadCatalog(context.Background(), catalogPath)
	require.NoError(t, err)

	assert.Equal(t, CatalogCounts{Staff: 1, Publications: 1, Authors: 2}, counts)

	ctx := context.Background()
	staff, err := catalog.GetStaff(ctx, "https://example.edu/chen")
	require.NoError(t, err)
	assert.Equal(t, "Sarah Chen", staff.FullName)

	pub, err := catalog.GetPublication(ctx, "pub-1")
	require.NoError(t, err)
	assert.Equal(t, 120, pub.CitationCount)

	authors, err := catalog.AuthorsForPublication(ctx, "pub-1")
	require.NoError(t, err)
	require.Len(t, authors, 2)
	assert.Equal(t, "Sarah Chen", authors[0].Name)
	assert.True(t, authors[0].IsCorresponding)
	assert.Equal(t, "Jin Park", authors[1].Name)
}

func TestLoadCatalog_Malformed(t *testing.T) {
	path := writeFile(t, "catalog.json", "{not json")

	catalog, err := store.NewCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer catalog.Close()

	_, err = NewLoader(&recordingEngine{}, catalog).LoadCatalog(context.Background(), path)
	assert.Error(t, err)
}
