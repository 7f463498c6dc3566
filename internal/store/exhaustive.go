package store

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// ExhaustiveStore implements VectorStore with a full scan over normalized
// vectors. It trades query latency for exactness and zero index state, which
// makes it the fallback when the HNSW graph is missing or corrupt.
type ExhaustiveStore struct {
	mu         sync.RWMutex
	dimensions int
	vectors    map[string][]float32
	types      map[string]ChunkType
	closed     bool
}

var _ VectorStore = (*ExhaustiveStore)(nil)

type exhaustiveSnapshot struct {
	Dimensions int
	Vectors    map[string][]float32
	Types      map[string]ChunkType
}

// NewExhaustiveStore creates an exhaustive-scan vector store.
func NewExhaustiveStore(dimensions int) (*ExhaustiveStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("exhaustive store requires positive dimensions, got %d", dimensions)
	}
	return &ExhaustiveStore{
		dimensions: dimensions,
		vectors:    make(map[string][]float32),
		types:      make(map[string]ChunkType),
	}, nil
}

// Add inserts vectors, replacing any existing IDs.
func (s *ExhaustiveStore) Add(ctx context.Context, ids []string, types []ChunkType, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	if len(ids) != len(types) {
		return fmt.Errorf("ids and types length mismatch: %d vs %d", len(ids), len(types))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	for _, v := range vectors {
		if len(v) != s.dimensions {
			return &DimensionError{Expected: s.dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeVectorInPlace(vec)
		s.vectors[id] = vec
		s.types[id] = types[i]
	}

	return nil
}

// Search scans every stored vector and returns the k best cosine matches.
// Context cancellation is checked periodically during the scan.
func (s *ExhaustiveStore) Search(ctx context.Context, query []float32, k int, q VectorQuery) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	if len(query) != s.dimensions {
		return nil, &DimensionError{Expected: s.dimensions, Got: len(query)}
	}
	if len(s.vectors) == 0 {
		return []*VectorResult{}, nil
	}

	normalizedQuery := make([]float32, len(query))
	copy(normalizedQuery, query)
	normalizeVectorInPlace(normalizedQuery)

	typeFilter := buildTypeSet(q.Types)

	results := make([]*VectorResult, 0, len(s.vectors))
	scanned := 0
	for id, vec := range s.vectors {
		scanned++
		if scanned%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if typeFilter != nil {
			if _, ok := typeFilter[s.types[id]]; !ok {
				continue
			}
		}

		// Both sides are unit vectors, so the dot product is cos(theta).
		score := dotProduct(normalizedQuery, vec)
		if q.Threshold > 0 && score < q.Threshold {
			continue
		}
		results = append(results, &VectorResult{
			ID:       id,
			Distance: 1.0 - score,
			Score:    score,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Delete removes vectors by ID.
func (s *ExhaustiveStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	for _, id := range ids {
		delete(s.vectors, id)
		delete(s.types, id)
	}
	return nil
}

// Count returns the number of stored vectors.
func (s *ExhaustiveStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return len(s.vectors)
}

// Save persists the store atomically.
func (s *ExhaustiveStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}

	snap := exhaustiveSnapshot{
		Dimensions: s.dimensions,
		Vectors:    s.vectors,
		Types:      s.types,
	}
	if err := gob.NewEncoder(file).Encode(snap); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close snapshot file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// Load restores the store from a snapshot file.
func (s *ExhaustiveStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open snapshot file: %w", err)
	}
	defer file.Close()

	var snap exhaustiveSnapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	s.dimensions = snap.Dimensions
	s.vectors = snap.Vectors
	s.types = snap.Types
	if s.vectors == nil {
		s.vectors = make(map[string][]float32)
	}
	if s.types == nil {
		s.types = make(map[string]ChunkType)
	}

	return nil
}

// Close releases resources.
func (s *ExhaustiveStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.vectors = nil
	s.types = nil
	return nil
}

func dotProduct(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
