package citation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citeseek/citeseek/internal/store"
)

func testPublicationChunk() *store.Chunk {
	return &store.Chunk{
		ID:            "pub-1-title",
		Type:          store.ChunkTypePublicationTitle,
		Content:       "Protein folding with deep learning",
		PublicationID: "pub-1",
		Publication: &store.PublicationMeta{
			Title: "Protein folding with deep learning",
			Year:  2024,
			Venue: "Nature Methods",
			DOI:   "10.1000/pf.2024",
		},
	}
}

func authorRefs(names ...string) []*store.AuthorRef {
	refs := make([]*store.AuthorRef, len(names))
	for i, name := range names {
		refs[i] = &store.AuthorRef{Author: store.Author{Name: name}, Position: i}
	}
	return refs
}

func TestFormat_APA(t *testing.T) {
	f := NewFormatter(StyleAPA, true)

	cite, err := f.Format(testPublicationChunk(), authorRefs("S. Chen"), 0)
	require.NoError(t, err)
	assert.Equal(t,
		"S. Chen (2024). Protein folding with deep learning. Nature Methods. https://doi.org/10.1000/pf.2024",
		cite)
}

func TestFormat_APA_WithoutDOI(t *testing.T) {
	f := NewFormatter(StyleAPA, false)

	cite, err := f.Format(testPublicationChunk(), authorRefs("S. Chen"), 0)
	require.NoError(t, err)
	assert.Equal(t, "S. Chen (2024). Protein folding with deep learning. Nature Methods.", cite)
}

func TestFormat_IEEE(t *testing.T) {
	f := NewFormatter(StyleIEEE, true)

	cite, err := f.Format(testPublicationChunk(), authorRefs("S. Chen"), 0)
	require.NoError(t, err)
	assert.Equal(t,
		`S. Chen, "Protein folding with deep learning," Nature Methods, 2024. doi: 10.1000/pf.2024.`,
		cite)
}

func TestFormat_MLA(t *testing.T) {
	f := NewFormatter(StyleMLA, false)

	cite, err := f.Format(testPublicationChunk(), authorRefs("S. Chen"), 0)
	require.NoError(t, err)
	assert.Equal(t,
		`S. Chen. "Protein folding with deep learning." Nature Methods, 2024.`,
		cite)
}

func TestFormat_UnknownStyleFallsBack(t *testing.T) {
	f := NewFormatter("chicago", true)

	cite, err := f.Format(testPublicationChunk(), authorRefs("S. Chen"), 0)
	require.NoError(t, err)
	assert.Equal(t, "Protein folding with deep learning (2024)", cite)
}

func TestAuthorList_Truncation(t *testing.T) {
	assert.Equal(t, "", authorList(nil))
	assert.Equal(t, "S. Chen", authorList(authorRefs("S. Chen")))
	assert.Equal(t, "S. Chen & J. Park", authorList(authorRefs("S. Chen", "J. Park")))
	assert.Equal(t, "S. Chen et al.", authorList(authorRefs("S. Chen", "J. Park", "M. Okafor")))
}

func TestAuthorList_SkipsEmptyNames(t *testing.T) {
	refs := []*store.AuthorRef{
		nil,
		{Author: store.Author{Name: ""}},
		{Author: store.Author{Name: "S. Chen"}},
	}
	assert.Equal(t, "S. Chen", authorList(refs))
}

func TestFormat_MissingMetadataNarrows(t *testing.T) {
	chunk := testPublicationChunk()
	chunk.Publication.Venue = ""
	chunk.Publication.DOI = ""
	chunk.Publication.Year = 0

	apa, err := NewFormatter(StyleAPA, true).Format(chunk, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "Protein folding with deep learning.", apa)

	ieee, err := NewFormatter(StyleIEEE, true).Format(chunk, authorRefs("S. Chen"), 0)
	require.NoError(t, err)
	assert.Equal(t, `S. Chen, "Protein folding with deep learning."`, ieee)

	mla, err := NewFormatter(StyleMLA, false).Format(chunk, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, `"Protein folding with deep learning."`, mla)
}

func TestFormat_NoAuthorsStartsWithTitle(t *testing.T) {
	f := NewFormatter(StyleAPA, false)

	cite, err := f.Format(testPublicationChunk(), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "Protein folding with deep learning (2024). Nature Methods.", cite)
}

func TestFormat_PersonChunk(t *testing.T) {
	f := NewFormatter(StyleAPA, true)

	person := &store.Chunk{
		ID:      "person-1-basic",
		Type:    store.ChunkTypePersonBasic,
		Content: "Dr. Chen",
		Person: &store.PersonMeta{
			Name:       "Dr. Sarah Chen",
			Role:       "Professor",
			School:     "School of Computing",
			ProfileURL: "https://example.edu/people/chen",
		},
	}
	cite, err := f.Format(person, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Sarah Chen. Professor, School of Computing. https://example.edu/people/chen", cite)

	// With a publication count the tally sits before the profile URL.
	cite, err = f.Format(person, nil, 12)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Sarah Chen. Professor, School of Computing. 12 publications. https://example.edu/people/chen", cite)
}

func TestFormat_PersonChunkNameOnly(t *testing.T) {
	f := NewFormatter(StyleIEEE, true)

	person := &store.Chunk{
		ID:      "person-2-basic",
		Type:    store.ChunkTypePersonBasic,
		Content: "bio",
		Person:  &store.PersonMeta{Name: "Dr. Chen"},
	}
	cite, err := f.Format(person, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Chen.", cite)

	cite, err = f.Format(person, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Chen. 1 publication.", cite)
}

func TestFormat_RejectsInvalidChunks(t *testing.T) {
	f := NewFormatter(StyleAPA, true)

	_, err := f.Format(nil, nil, 0)
	assert.Error(t, err)

	person := &store.Chunk{
		ID:      "person-3-basic",
		Type:    store.ChunkTypePersonBasic,
		Content: "bio",
	}
	_, err = f.Format(person, nil, 0)
	assert.Error(t, err)
}

func TestFormat_RejectsMissingPublicationMeta(t *testing.T) {
	f := NewFormatter(StyleAPA, true)

	chunk := testPublicationChunk()
	chunk.Publication = nil
	_, err := f.Format(chunk, nil, 0)
	assert.Error(t, err)
}
