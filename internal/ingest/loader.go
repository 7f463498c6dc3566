// Package ingest loads pre-built chunk and catalog files into the engine.
// Scraping and chunking happen upstream; this is the boundary where their
// output enters the indices.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	cserrors "github.com/citeseek/citeseek/internal/errors"
	"github.com/citeseek/citeseek/internal/store"
)

// ChunkBatchSize is how many chunks are embedded and indexed per batch.
const ChunkBatchSize = 64

// maxLineBytes bounds a single JSONL record. Abstract chunks run long but
// nowhere near a megabyte.
const maxLineBytes = 1 << 20

// Progress receives loader progress updates; current counts processed
// records, total is 0 when unknown (streaming).
type Progress func(current, total int)

// Indexer is the slice of the search engine the loader writes through.
type Indexer interface {
	Index(ctx context.Context, chunks []*store.Chunk) error
}

// Loader feeds chunk and catalog files into the search engine.
type Loader struct {
	engine  Indexer
	catalog *store.Catalog
}

// NewLoader creates a loader writing through the engine and catalog.
func NewLoader(engine Indexer, catalog *store.Catalog) *Loader {
	return &Loader{engine: engine, catalog: catalog}
}

// LoadChunks reads a JSONL file of chunks and indexes them in batches.
// A malformed line fails the load with its line number; partially indexed
// batches stay indexed, and rerunning the load replaces them.
func (l *Loader) LoadChunks(ctx context.Context, path string, progress Progress) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, cserrors.New(cserrors.ErrCodeFileNotFound, fmt.Sprintf("open chunks file %s", path), err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var (
		batch []*store.Chunk
		total int
		line  int
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := l.engine.Index(ctx, batch); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		if progress != nil {
			progress(total, 0)
		}
		return nil
	}

	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var chunk store.Chunk
		if err := json.Unmarshal(raw, &chunk); err != nil {
			return total, cserrors.New(cserrors.ErrCodeIngestMalformed,
				fmt.Sprintf("malformed chunk at %s:%d", path, line), err)
		}
		if err := chunk.Validate(); err != nil {
			return total, cserrors.New(cserrors.ErrCodeIngestMalformed,
				fmt.Sprintf("invalid chunk at %s:%d", path, line), err)
		}

		batch = append(batch, &chunk)
		if len(batch) >= ChunkBatchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return total, cserrors.New(cserrors.ErrCodeIngestMalformed,
			fmt.Sprintf("reading %s", path), err)
	}

	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}

// CatalogFile is the bibliographic payload accompanying a chunk file.
type CatalogFile struct {
	Staff        []*StaffRecord       `json:"staff"`
	Publications []*PublicationRecord `json:"publications"`
	Authors      []*AuthorRecord      `json:"authors"`
}

// StaffRecord is a researcher profile as serialized in the catalog file.
type StaffRecord struct {
	ProfileURL string `json:"profile_url"`
	FullName   string `json:"full_name"`
	Role       string `json:"role,omitempty"`
	Faculty    string `json:"faculty,omitempty"`
	School     string `json:"school,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	PhotoURL   string `json:"photo_url,omitempty"`
}

// PublicationRecord is a bibliographic record as serialized in the catalog
// file.
type PublicationRecord struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	DOI             string   `json:"doi,omitempty"`
	Year            int      `json:"year,omitempty"`
	Venue           string   `json:"venue,omitempty"`
	Abstract        string   `json:"abstract,omitempty"`
	AbstractSource  string   `json:"abstract_source,omitempty"`
	CitationCount   int      `json:"citation_count,omitempty"`
	OpenAccess      bool     `json:"open_access,omitempty"`
	PDFURL          string   `json:"pdf_url,omitempty"`
	Keywords        []string `json:"keywords,omitempty"`
	StaffProfileURL string   `json:"staff_profile_url,omitempty"`
}

// AuthorRecord is a disambiguated author with their publication links.
type AuthorRecord struct {
	Name         string       `json:"name"`
	OpenAlexID   string       `json:"openalex_id,omitempty"`
	ORCID        string       `json:"orcid,omitempty"`
	Institution  string       `json:"institution,omitempty"`
	IsLocalStaff bool         `json:"is_local_staff,omitempty"`
	Publications []AuthorLink `json:"publications,omitempty"`
}

// AuthorLink ties an author to one publication.
type AuthorLink struct {
	PublicationID   string   `json:"publication_id"`
	Position        int      `json:"position"`
	IsCorresponding bool     `json:"is_corresponding,omitempty"`
	Institutions    []string `json:"institutions,omitempty"`
}

// CatalogCounts reports what a catalog load stored.
type CatalogCounts struct {
	Staff        int
	Publications int
	Authors      int
}

// LoadCatalog reads a catalog JSON file and upserts its records.
func (l *Loader) LoadCatalog(ctx context.Context, path string) (CatalogCounts, error) {
	var counts CatalogCounts

	data, err := os.ReadFile(path)
	if err != nil {
		return counts, cserrors.New(cserrors.ErrCodeFileNotFound, fmt.Sprintf("open catalog file %s", path), err)
	}

	var file CatalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return counts, cserrors.New(cserrors.ErrCodeIngestMalformed,
			fmt.Sprintf("malformed catalog file %s", path), err)
	}

	if len(file.Staff) > 0 {
		staff := make([]*store.Staff, len(file.Staff))
		for i, s := range file.Staff {
			staff[i] = &store.Staff{
				ProfileURL: s.ProfileURL,
				FullName:   s.FullName,
				Role:       s.Role,
				Faculty:    s.Faculty,
				School:     s.School,
				Email:      s.Email,
				Phone:      s.Phone,
				PhotoURL:   s.PhotoURL,
			}
		}
		if err := l.catalog.UpsertStaff(ctx, staff); err != nil {
			return counts, cserrors.New(cserrors.ErrCodeCatalogFailed, "storing staff records", err)
		}
		counts.Staff = len(staff)
	}

	if len(file.Publications) > 0 {
		pubs := make([]*store.Publication, len(file.Publications))
		for i, p := range file.Publications {
			pubs[i] = &store.Publication{
				ID:              p.ID,
				Title:           p.Title,
				DOI:             p.DOI,
				Year:            p.Year,
				Venue:           p.Venue,
				Abstract:        p.Abstract,
				AbstractSource:  p.AbstractSource,
				CitationCount:   p.CitationCount,
				OpenAccess:      p.OpenAccess,
				PDFURL:          p.PDFURL,
				Keywords:        p.Keywords,
				StaffProfileURL: p.StaffProfileURL,
			}
		}
		if err := l.catalog.UpsertPublications(ctx, pubs); err != nil {
			return counts, cserrors.New(cserrors.ErrCodeCatalogFailed, "storing publication records", err)
		}
		counts.Publications = len(pubs)
	}

	for _, a := range file.Authors {
		authorID, err := l.catalog.UpsertAuthor(ctx, &store.Author{
			Name:         a.Name,
			OpenAlexID:   a.OpenAlexID,
			ORCID:        a.ORCID,
			Institution:  a.Institution,
			IsLocalStaff: a.IsLocalStaff,
		})
		if err != nil {
			return counts, cserrors.New(cserrors.ErrCodeCatalogFailed,
				fmt.Sprintf("storing author %q", a.Name), err)
		}

		for _, link := range a.Publications {
			err := l.catalog.LinkAuthor(ctx, &store.PublicationAuthor{
				PublicationID:   link.PublicationID,
				AuthorID:        authorID,
				Position:        link.Position,
				IsCorresponding: link.IsCorresponding,
				Institutions:    link.Institutions,
			})
			if err != nil {
				return counts, cserrors.New(cserrors.ErrCodeCatalogFailed,
					fmt.Sprintf("linking author %q to %s", a.Name, link.PublicationID), err)
			}
		}
		counts.Authors++
	}

	return counts, nil
}
