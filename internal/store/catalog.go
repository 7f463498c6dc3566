package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Catalog is the SQLite store of record for chunks and the bibliographic
// records behind them. Search indexes hold only IDs and scores; everything a
// result needs for display or citation formatting comes from here.
type Catalog struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// NewCatalog creates or opens the catalog at path. An empty path creates an
// in-memory catalog for testing.
func NewCatalog(path string) (*Catalog, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create catalog directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	c := &Catalog{db: db, path: path}
	if err := c.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize catalog schema: %w", err)
	}
	return c, nil
}

func (c *Catalog) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS staff (
		profile_url TEXT PRIMARY KEY,
		full_name   TEXT NOT NULL,
		role        TEXT,
		faculty     TEXT,
		school      TEXT,
		email       TEXT,
		phone       TEXT,
		photo_url   TEXT
	);

	CREATE TABLE IF NOT EXISTS publications (
		id                TEXT PRIMARY KEY,
		title             TEXT NOT NULL,
		doi               TEXT,
		year              INTEGER,
		venue             TEXT,
		abstract          TEXT,
		abstract_source   TEXT,
		citation_count    INTEGER DEFAULT 0,
		open_access       INTEGER DEFAULT 0,
		pdf_url           TEXT,
		keywords          TEXT,
		staff_profile_url TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_publications_staff
		ON publications(staff_profile_url);

	CREATE TABLE IF NOT EXISTS authors (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		name           TEXT NOT NULL,
		openalex_id    TEXT,
		orcid          TEXT,
		institution    TEXT,
		is_local_staff INTEGER DEFAULT 0
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_authors_openalex
		ON authors(openalex_id) WHERE openalex_id IS NOT NULL AND openalex_id != '';

	CREATE TABLE IF NOT EXISTS publication_authors (
		publication_id   TEXT NOT NULL,
		author_id        INTEGER NOT NULL,
		position         INTEGER NOT NULL,
		is_corresponding INTEGER DEFAULT 0,
		institutions     TEXT,
		PRIMARY KEY (publication_id, author_id),
		FOREIGN KEY (author_id) REFERENCES authors(id)
	);
	CREATE INDEX IF NOT EXISTS idx_pub_authors_pub
		ON publication_authors(publication_id, position);

	CREATE TABLE IF NOT EXISTS chunks (
		id                TEXT PRIMARY KEY,
		chunk_type        TEXT NOT NULL,
		content           TEXT NOT NULL,
		staff_profile_url TEXT,
		publication_id    TEXT,
		metadata          TEXT,
		extra             TEXT,
		created_at        TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_type ON chunks(chunk_type);
	CREATE INDEX IF NOT EXISTS idx_chunks_publication ON chunks(publication_id);

	CREATE TABLE IF NOT EXISTS state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := c.db.Exec(schema)
	return err
}

// chunkMetadata is the JSON shape of the chunks.metadata column.
type chunkMetadata struct {
	Publication *PublicationMeta `json:"publication,omitempty"`
	Person      *PersonMeta      `json:"person,omitempty"`
}

// UpsertChunks inserts or replaces chunks in a single transaction.
func (c *Catalog) UpsertChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrStoreClosed
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks
			(id, chunk_type, content, staff_profile_url, publication_id, metadata, extra, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chunk statement: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		if err := chunk.Validate(); err != nil {
			return err
		}

		meta, err := json.Marshal(chunkMetadata{
			Publication: chunk.Publication,
			Person:      chunk.Person,
		})
		if err != nil {
			return fmt.Errorf("marshal metadata for chunk %s: %w", chunk.ID, err)
		}

		var extra []byte
		if len(chunk.Extra) > 0 {
			extra, err = json.Marshal(chunk.Extra)
			if err != nil {
				return fmt.Errorf("marshal extra for chunk %s: %w", chunk.ID, err)
			}
		}

		createdAt := chunk.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		_, err = stmt.ExecContext(ctx,
			chunk.ID, string(chunk.Type), chunk.Content,
			chunk.StaffProfileURL, chunk.PublicationID,
			string(meta), nullableString(string(extra)),
			createdAt.Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("upsert chunk %s: %w", chunk.ID, err)
		}
	}

	return tx.Commit()
}

// GetChunk fetches one chunk by ID. Returns sql.ErrNoRows when absent.
func (c *Catalog) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	chunks, err := c.GetChunks(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	chunk, ok := chunks[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return chunk, nil
}

// GetChunks batch-fetches chunks by ID. Missing IDs are silently absent from
// the returned map; the search layer treats those hits as stale index
// entries and drops them.
func (c *Catalog) GetChunks(ctx context.Context, ids []string) (map[string]*Chunk, error) {
	if len(ids) == 0 {
		return map[string]*Chunk{}, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrStoreClosed
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT id, chunk_type, content, staff_profile_url, publication_id, metadata, extra, created_at
		FROM chunks WHERE id IN (%s)`, strings.Join(placeholders, ","))

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*Chunk, len(ids))
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		result[chunk.ID] = chunk
	}
	return result, rows.Err()
}

// AllChunks streams every chunk, ordered by ID. Used by the indexer to
// rebuild search indexes from the catalog.
func (c *Catalog) AllChunks(ctx context.Context) ([]*Chunk, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrStoreClosed
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, chunk_type, content, staff_profile_url, publication_id, metadata, extra, created_at
		FROM chunks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query all chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func scanChunk(rows *sql.Rows) (*Chunk, error) {
	var (
		chunk      Chunk
		chunkType  string
		profileURL sql.NullString
		pubID      sql.NullString
		metaJSON   sql.NullString
		extraJSON  sql.NullString
		createdAt  sql.NullString
	)
	if err := rows.Scan(&chunk.ID, &chunkType, &chunk.Content,
		&profileURL, &pubID, &metaJSON, &extraJSON, &createdAt); err != nil {
		return nil, fmt.Errorf("scan chunk: %w", err)
	}

	chunk.Type = ChunkType(chunkType)
	chunk.StaffProfileURL = profileURL.String
	chunk.PublicationID = pubID.String

	if metaJSON.Valid && metaJSON.String != "" {
		var meta chunkMetadata
		if err := json.Unmarshal([]byte(metaJSON.String), &meta); err != nil {
			return nil, fmt.Errorf("unmarshal metadata for chunk %s: %w", chunk.ID, err)
		}
		chunk.Publication = meta.Publication
		chunk.Person = meta.Person
	}
	if extraJSON.Valid && extraJSON.String != "" {
		if err := json.Unmarshal([]byte(extraJSON.String), &chunk.Extra); err != nil {
			return nil, fmt.Errorf("unmarshal extra for chunk %s: %w", chunk.ID, err)
		}
	}
	if createdAt.Valid && createdAt.String != "" {
		if t, err := time.Parse(time.RFC3339, createdAt.String); err == nil {
			chunk.CreatedAt = t
		}
	}
	return &chunk, nil
}

// DeleteChunks removes chunks by ID.
func (c *Catalog) DeleteChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrStoreClosed
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf("DELETE FROM chunks WHERE id IN (%s)", strings.Join(placeholders, ","))
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

// CountChunks returns the number of stored chunks.
func (c *Catalog) CountChunks(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return 0, ErrStoreClosed
	}

	var count int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, err
}

// UpsertStaff inserts or replaces staff profiles.
func (c *Catalog) UpsertStaff(ctx context.Context, staff []*Staff) error {
	if len(staff) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrStoreClosed
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO staff
			(profile_url, full_name, role, faculty, school, email, phone, photo_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare staff statement: %w", err)
	}
	defer stmt.Close()

	for _, s := range staff {
		if s.ProfileURL == "" {
			return fmt.Errorf("staff record missing profile URL (name %q)", s.FullName)
		}
		_, err := stmt.ExecContext(ctx, s.ProfileURL, s.FullName, s.Role,
			s.Faculty, s.School, s.Email, s.Phone, s.PhotoURL)
		if err != nil {
			return fmt.Errorf("upsert staff %s: %w", s.ProfileURL, err)
		}
	}

	return tx.Commit()
}

// GetStaff fetches a staff profile by URL. Returns sql.ErrNoRows when absent.
func (c *Catalog) GetStaff(ctx context.Context, profileURL string) (*Staff, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrStoreClosed
	}

	var s Staff
	err := c.db.QueryRowContext(ctx, `
		SELECT profile_url, full_name, role, faculty, school, email, phone, photo_url
		FROM staff WHERE profile_url = ?`, profileURL).
		Scan(&s.ProfileURL, &s.FullName, &s.Role, &s.Faculty, &s.School,
			&s.Email, &s.Phone, &s.PhotoURL)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertPublications inserts or replaces publication records.
func (c *Catalog) UpsertPublications(ctx context.Context, pubs []*Publication) error {
	if len(pubs) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrStoreClosed
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO publications
			(id, title, doi, year, venue, abstract, abstract_source,
			 citation_count, open_access, pdf_url, keywords, staff_profile_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare publication statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range pubs {
		if p.ID == "" {
			return fmt.Errorf("publication record missing ID (title %q)", p.Title)
		}
		keywords, err := json.Marshal(p.Keywords)
		if err != nil {
			return fmt.Errorf("marshal keywords for publication %s: %w", p.ID, err)
		}
		_, err = stmt.ExecContext(ctx, p.ID, p.Title, p.DOI, p.Year, p.Venue,
			p.Abstract, p.AbstractSource, p.CitationCount, boolToInt(p.OpenAccess),
			p.PDFURL, string(keywords), p.StaffProfileURL)
		if err != nil {
			return fmt.Errorf("upsert publication %s: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

// GetPublication fetches a publication by ID. Returns sql.ErrNoRows when
// absent.
func (c *Catalog) GetPublication(ctx context.Context, id string) (*Publication, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrStoreClosed
	}

	var (
		p        Publication
		open     int
		keywords sql.NullString
	)
	err := c.db.QueryRowContext(ctx, `
		SELECT id, title, doi, year, venue, abstract, abstract_source,
		       citation_count, open_access, pdf_url, keywords, staff_profile_url
		FROM publications WHERE id = ?`, id).
		Scan(&p.ID, &p.Title, &p.DOI, &p.Year, &p.Venue, &p.Abstract,
			&p.AbstractSource, &p.CitationCount, &open, &p.PDFURL,
			&keywords, &p.StaffProfileURL)
	if err != nil {
		return nil, err
	}
	p.OpenAccess = open != 0
	if keywords.Valid && keywords.String != "" {
		if err := json.Unmarshal([]byte(keywords.String), &p.Keywords); err != nil {
			return nil, fmt.Errorf("unmarshal keywords for publication %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

// UpsertAuthor inserts an author or returns the existing ID when the
// OpenAlex ID is already known.
func (c *Catalog) UpsertAuthor(ctx context.Context, a *Author) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrStoreClosed
	}

	if a.OpenAlexID != "" {
		var existing int64
		err := c.db.QueryRowContext(ctx,
			`SELECT id FROM authors WHERE openalex_id = ?`, a.OpenAlexID).Scan(&existing)
		if err == nil {
			return existing, nil
		}
		if err != sql.ErrNoRows {
			return 0, fmt.Errorf("lookup author %s: %w", a.OpenAlexID, err)
		}
	}

	res, err := c.db.ExecContext(ctx, `
		INSERT INTO authors (name, openalex_id, orcid, institution, is_local_staff)
		VALUES (?, ?, ?, ?, ?)`,
		a.Name, a.OpenAlexID, a.ORCID, a.Institution, boolToInt(a.IsLocalStaff))
	if err != nil {
		return 0, fmt.Errorf("insert author %q: %w", a.Name, err)
	}
	return res.LastInsertId()
}

// LinkAuthor records an author's position in a publication's author list.
func (c *Catalog) LinkAuthor(ctx context.Context, link *PublicationAuthor) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrStoreClosed
	}

	institutions, err := json.Marshal(link.Institutions)
	if err != nil {
		return fmt.Errorf("marshal institutions: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO publication_authors
			(publication_id, author_id, position, is_corresponding, institutions)
		VALUES (?, ?, ?, ?, ?)`,
		link.PublicationID, link.AuthorID, link.Position,
		boolToInt(link.IsCorresponding), string(institutions))
	if err != nil {
		return fmt.Errorf("link author %d to publication %s: %w",
			link.AuthorID, link.PublicationID, err)
	}
	return nil
}

// AuthorsForPublication returns a publication's authors ordered by their
// position in the author list.
func (c *Catalog) AuthorsForPublication(ctx context.Context, publicationID string) ([]*AuthorRef, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrStoreClosed
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT a.id, a.name, a.openalex_id, a.orcid, a.institution, a.is_local_staff,
		       pa.position, pa.is_corresponding, pa.institutions
		FROM publication_authors pa
		JOIN authors a ON a.id = pa.author_id
		WHERE pa.publication_id = ?
		ORDER BY pa.position`, publicationID)
	if err != nil {
		return nil, fmt.Errorf("query authors for publication %s: %w", publicationID, err)
	}
	defer rows.Close()

	var refs []*AuthorRef
	for rows.Next() {
		var (
			ref           AuthorRef
			localStaff    int
			corresponding int
			institutions  sql.NullString
		)
		if err := rows.Scan(&ref.ID, &ref.Name, &ref.OpenAlexID, &ref.ORCID,
			&ref.Institution, &localStaff, &ref.Position, &corresponding,
			&institutions); err != nil {
			return nil, fmt.Errorf("scan author: %w", err)
		}
		ref.IsLocalStaff = localStaff != 0
		ref.IsCorresponding = corresponding != 0
		if institutions.Valid && institutions.String != "" {
			if err := json.Unmarshal([]byte(institutions.String), &ref.Institutions); err != nil {
				return nil, fmt.Errorf("unmarshal institutions: %w", err)
			}
		}
		refs = append(refs, &ref)
	}
	return refs, rows.Err()
}

// CountPublicationsForStaff returns how many publications the catalog links
// to a staff profile.
func (c *Catalog) CountPublicationsForStaff(ctx context.Context, profileURL string) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return 0, ErrStoreClosed
	}

	var count int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM publications WHERE staff_profile_url = ?`, profileURL).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count publications for %s: %w", profileURL, err)
	}
	return count, nil
}

// GetState reads a state value. Returns empty string when the key is unset.
func (c *Catalog) GetState(ctx context.Context, key string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return "", ErrStoreClosed
	}

	var value string
	err := c.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get state %s: %w", key, err)
	}
	return value, nil
}

// SetState writes a state value.
func (c *Catalog) SetState(ctx context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrStoreClosed
	}

	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO state (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

// Close checkpoints and closes the catalog. Idempotent.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.db != nil {
		_, _ = c.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return c.db.Close()
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
