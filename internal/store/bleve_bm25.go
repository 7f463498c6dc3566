package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
)

const (
	// ScholarTokenizerName is the registry name of the scholar tokenizer.
	ScholarTokenizerName = "scholar_tokenizer"

	// ScholarStopFilterName is the registry name of the stop word filter.
	ScholarStopFilterName = "scholar_stop"

	// ScholarAnalyzerName is the registry name of the scholar analyzer.
	ScholarAnalyzerName = "scholar_analyzer"
)

var defaultStopWordSet = BuildStopWordMap(DefaultStopWords)

func init() {
	registry.RegisterTokenizer(ScholarTokenizerName, scholarTokenizerConstructor)
	registry.RegisterTokenFilter(ScholarStopFilterName, scholarStopFilterConstructor)
}

// BleveBM25Index implements BM25Index on top of Bleve v2. Query terms are
// AND-conjoined and chunk type filters push down into the index scan via a
// keyword field.
type BleveBM25Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var _ BM25Index = (*BleveBM25Index)(nil)

// bleveDocument is the document shape handed to Bleve.
type bleveDocument struct {
	Content   string `json:"content"`
	ChunkType string `json:"chunk_type"`
}

// NewBleveBM25Index creates or opens a Bleve index at path. An empty path
// creates an in-memory index for testing.
func NewBleveBM25Index(path string) (*BleveBM25Index, error) {
	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("create index directory: %w", mkErr)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil {
			// A structurally broken index is cleared and rebuilt on the next
			// `citeseek index` run rather than wedging every search.
			slog.Warn("bm25_index_open_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("%w: cannot clear corrupt index at %s: %v", ErrIndexUnavailable, path, removeErr)
			}
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open bleve index: %v", ErrIndexUnavailable, err)
	}

	return &BleveBM25Index{index: idx, path: path}, nil
}

// createIndexMapping builds the mapping: content analyzed with the scholar
// analyzer, chunk_type stored verbatim as a keyword for exact filtering.
func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(ScholarAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": ScholarTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			ScholarStopFilterName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("add scholar analyzer: %w", err)
	}

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = ScholarAnalyzerName

	typeField := bleve.NewTextFieldMapping()
	typeField.Analyzer = keyword.Name

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("content", contentField)
	docMapping.AddFieldMappingsAt("chunk_type", typeField)

	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = ScholarAnalyzerName

	return indexMapping, nil
}

// Index adds documents to the index.
func (b *BleveBM25Index) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrStoreClosed
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		bd := bleveDocument{Content: doc.Content, ChunkType: string(doc.Type)}
		if err := batch.Index(doc.ID, bd); err != nil {
			return fmt.Errorf("index document %s: %w", doc.ID, err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("execute index batch: %w", err)
	}
	return nil
}

// Search returns documents containing all surviving query tokens, ranked by
// Bleve's TF-IDF relevance, best first.
func (b *BleveBM25Index) Search(ctx context.Context, queryStr string, limit int, types []ChunkType) ([]*BM25Result, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrStoreClosed
	}

	// Term queries bypass the analyzer, so mirror its stop word removal here
	// or a conjunction containing a stop word could never match.
	tokens := FilterStopWords(TokenizeQuery(queryStr), defaultStopWordSet)
	if len(tokens) == 0 {
		return []*BM25Result{}, nil
	}

	// AND conjunction: every token must match the content field.
	conj := bleve.NewConjunctionQuery()
	for _, tok := range tokens {
		tq := bleve.NewTermQuery(tok)
		tq.SetField("content")
		conj.AddQuery(tq)
	}

	var q query.Query = conj
	if len(types) > 0 {
		disj := bleve.NewDisjunctionQuery()
		for _, t := range types {
			tq := bleve.NewTermQuery(string(t))
			tq.SetField("chunk_type")
			disj.AddQuery(tq)
		}
		boolQ := bleve.NewBooleanQuery()
		boolQ.AddMust(conj, disj)
		q = boolQ
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.IncludeLocations = true // for matched terms

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: bleve search: %v", ErrIndexUnavailable, err)
	}

	results := make([]*BM25Result, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, &BM25Result{
			DocID:        hit.ID,
			Score:        hit.Score,
			MatchedTerms: extractMatchedTerms(hit),
		})
	}
	return results, nil
}

// Delete removes documents from the index.
func (b *BleveBM25Index) Delete(ctx context.Context, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrStoreClosed
	}

	batch := b.index.NewBatch()
	for _, id := range docIDs {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	return nil
}

// Stats returns index statistics.
func (b *BleveBM25Index) Stats() *IndexStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return &IndexStats{}
	}
	docCount, _ := b.index.DocCount()
	return &IndexStats{DocumentCount: int(docCount)}
}

// Close closes the index.
func (b *BleveBM25Index) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

// extractMatchedTerms pulls the content-field terms that matched a hit.
func extractMatchedTerms(hit *search.DocumentMatch) []string {
	terms := make(map[string]struct{})
	for field, locations := range hit.Locations {
		if field == "content" {
			for term := range locations {
				terms[term] = struct{}{}
			}
		}
	}
	result := make([]string, 0, len(terms))
	for term := range terms {
		result = append(result, term)
	}
	return result
}

// scholarTokenizerConstructor creates the scholar tokenizer for Bleve.
func scholarTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &scholarTokenizer{}, nil
}

// scholarTokenizer splits text into runs of letters, digits, hyphens, and
// underscores, matching the query cleaning rules in TokenizeQuery.
type scholarTokenizer struct{}

func (t *scholarTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	result := make(analysis.TokenStream, 0, 64)

	pos := 1
	start := -1
	for i, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			result = appendToken(result, text, start, i, &pos)
			start = -1
		}
	}
	if start >= 0 {
		result = appendToken(result, text, start, len(text), &pos)
	}
	return result
}

func appendToken(stream analysis.TokenStream, text string, start, end int, pos *int) analysis.TokenStream {
	term := text[start:end]
	// Skip runs that are pure punctuation (e.g. "--").
	if strings.Trim(term, "-_") == "" {
		return stream
	}
	stream = append(stream, &analysis.Token{
		Term:     []byte(term),
		Start:    start,
		End:      end,
		Position: *pos,
		Type:     analysis.AlphaNumeric,
	})
	*pos++
	return stream
}

// scholarStopFilterConstructor creates the stop word filter for Bleve.
func scholarStopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &scholarStopFilter{stopWords: defaultStopWordSet}, nil
}

// scholarStopFilter drops high-frequency function words.
type scholarStopFilter struct {
	stopWords map[string]struct{}
}

func (f *scholarStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		if _, isStop := f.stopWords[strings.ToLower(string(token.Term))]; !isStop {
			result = append(result, token)
		}
	}
	return result
}
