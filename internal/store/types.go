// Package store provides the persistence layer for retrievable chunks:
// BM25 text indexes (Bleve or SQLite FTS5), vector stores (HNSW with an
// exhaustive fallback), and the SQLite catalog holding chunk, staff,
// publication, and author records used for citation enrichment.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ChunkType tags a chunk with the kind of source text it was cut from.
type ChunkType string

const (
	ChunkTypePersonBasic         ChunkType = "person_basic"
	ChunkTypePersonBiography     ChunkType = "person_biography"
	ChunkTypePublicationTitle    ChunkType = "publication_title"
	ChunkTypePublicationAbstract ChunkType = "publication_abstract"
	ChunkTypePublicationKeywords ChunkType = "publication_keywords"
)

// IsPublication reports whether the chunk describes a publication.
func (t ChunkType) IsPublication() bool {
	switch t {
	case ChunkTypePublicationTitle, ChunkTypePublicationAbstract, ChunkTypePublicationKeywords:
		return true
	}
	return false
}

// IsPerson reports whether the chunk describes a researcher.
func (t ChunkType) IsPerson() bool {
	return t == ChunkTypePersonBasic || t == ChunkTypePersonBiography
}

// PublicationChunkTypes returns the chunk types derived from publication records.
func PublicationChunkTypes() []ChunkType {
	return []ChunkType{ChunkTypePublicationTitle, ChunkTypePublicationAbstract, ChunkTypePublicationKeywords}
}

// PersonChunkTypes returns the chunk types derived from staff profiles.
func PersonChunkTypes() []ChunkType {
	return []ChunkType{ChunkTypePersonBasic, ChunkTypePersonBiography}
}

// State keys stored in the catalog for embedder mismatch detection.
const (
	StateKeyIndexDimension = "index_embedding_dimension"
	StateKeyIndexModel     = "index_embedding_model"
)

// PublicationMeta is the typed metadata carried by publication_* chunks.
type PublicationMeta struct {
	Title          string   `json:"title"`
	Year           int      `json:"year,omitempty"`
	Venue          string   `json:"venue,omitempty"`
	DOI            string   `json:"doi,omitempty"`
	CitationCount  int      `json:"citation_count,omitempty"`
	OpenAccess     bool     `json:"open_access,omitempty"`
	AbstractSource string   `json:"abstract_source,omitempty"`
	Keywords       []string `json:"keywords,omitempty"`
}

// PersonMeta is the typed metadata carried by person_* chunks.
type PersonMeta struct {
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Role       string `json:"role,omitempty"`
	School     string `json:"school,omitempty"`
	Faculty    string `json:"faculty,omitempty"`
	ProfileURL string `json:"profile_url,omitempty"`
}

// Chunk is an immutable unit of retrievable text. Exactly one of Publication
// or Person is set, according to Type. Extra carries ingester-defined
// attributes outside the typed metadata set; read-only here.
type Chunk struct {
	ID              string            `json:"chunk_id"`
	Type            ChunkType         `json:"chunk_type"`
	Content         string            `json:"content"`
	StaffProfileURL string            `json:"staff_profile_url,omitempty"`
	PublicationID   string            `json:"publication_id,omitempty"`
	Publication     *PublicationMeta  `json:"publication,omitempty"`
	Person          *PersonMeta       `json:"person,omitempty"`
	Extra           map[string]string `json:"extra,omitempty"`
	CreatedAt       time.Time         `json:"created_at,omitempty"`
}

// Validate checks structural consistency of a chunk before indexing.
func (c *Chunk) Validate() error {
	if c.ID == "" {
		return errors.New("chunk id is required")
	}
	if c.Content == "" {
		return fmt.Errorf("chunk %s: content is required", c.ID)
	}
	if !c.Type.IsPublication() && !c.Type.IsPerson() {
		return fmt.Errorf("chunk %s: unknown chunk type %q", c.ID, c.Type)
	}
	return nil
}

// Staff is a researcher profile record from the catalog.
type Staff struct {
	ProfileURL string
	FullName   string
	Role       string
	Faculty    string
	School     string
	Email      string
	Phone      string
	PhotoURL   string
}

// Publication is a bibliographic record from the catalog.
type Publication struct {
	ID              string
	Title           string
	DOI             string
	Year            int
	Venue           string
	Abstract        string
	AbstractSource  string
	CitationCount   int
	OpenAccess      bool
	PDFURL          string
	Keywords        []string
	StaffProfileURL string
}

// Author is a disambiguated author record.
type Author struct {
	ID           int64
	Name         string
	OpenAlexID   string
	ORCID        string
	Institution  string
	IsLocalStaff bool
}

// PublicationAuthor links an author to a publication with its position in
// the author list.
type PublicationAuthor struct {
	PublicationID   string
	AuthorID        int64
	Position        int
	IsCorresponding bool
	Institutions    []string
}

// AuthorRef is an Author joined with its per-publication attributes,
// ordered by author position.
type AuthorRef struct {
	Author
	Position        int
	IsCorresponding bool
	Institutions    []string
}

// Document is the unit handed to a BM25 index: the chunk's content plus the
// chunk type so type filters can push down into the index scan.
type Document struct {
	ID      string
	Type    ChunkType
	Content string
}

// BM25Result is a single lexical search hit.
type BM25Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// IndexStats describes a BM25 index.
type IndexStats struct {
	DocumentCount int
}

// BM25Index ranks chunks by term relevance. Surviving query tokens are
// AND-conjoined: a document must contain all of them to be a candidate.
type BM25Index interface {
	// Index adds documents; existing IDs are replaced.
	Index(ctx context.Context, docs []*Document) error

	// Search returns documents matching all query terms, best first,
	// optionally restricted to the given chunk types. A query that cleans
	// to nothing yields an empty result, not an error.
	Search(ctx context.Context, query string, limit int, types []ChunkType) ([]*BM25Result, error)

	// Delete removes documents by ID.
	Delete(ctx context.Context, docIDs []string) error

	// Stats returns index statistics.
	Stats() *IndexStats

	Close() error
}

// VectorResult is a single vector search hit.
type VectorResult struct {
	ID       string
	Distance float32
	Score    float32
}

// VectorQuery carries the filters applied during a vector search.
type VectorQuery struct {
	// Types restricts results to these chunk types (nil means all).
	Types []ChunkType

	// Threshold drops results with cosine similarity below this value.
	Threshold float32
}

// VectorStore ranks chunks by cosine similarity against stored embeddings.
type VectorStore interface {
	// Add inserts vectors with their IDs and chunk types. Existing IDs are
	// replaced. Vectors are normalized on insert for cosine similarity.
	Add(ctx context.Context, ids []string, types []ChunkType, vectors [][]float32) error

	// Search finds the k most similar vectors to query, applying q's filters,
	// ordered by similarity descending.
	Search(ctx context.Context, query []float32, k int, q VectorQuery) ([]*VectorResult, error)

	// Delete removes vectors by ID.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of stored vectors.
	Count() int

	// Persistence.
	Save(path string) error
	Load(path string) error
	Close() error
}

// Sentinel errors used to distinguish recoverable index failures (which
// trigger fallback or degraded results) from everything else.
var (
	// ErrIndexUnavailable tags structural failures of an index backend:
	// missing files, corruption, a broken ANN graph. The vector fallback
	// decorator keys on this category; embedding failures never carry it.
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = errors.New("store is closed")
)

// DimensionError indicates a vector dimension mismatch between the embedder
// and the stored index.
type DimensionError struct {
	Expected int
	Got      int
}

func (e DimensionError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (rebuild with 'citeseek index')", e.Expected, e.Got)
}
