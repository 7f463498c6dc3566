package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// FallbackStore decorates a primary VectorStore with an exhaustive backup.
// Searches route to the primary and fall through to the backup only when the
// primary reports ErrIndexUnavailable. Context cancellation and any other
// error propagate unchanged, so a slow or cancelled query never silently
// degrades into a full scan.
type FallbackStore struct {
	primary  VectorStore
	fallback VectorStore
	logger   *slog.Logger

	mu          sync.RWMutex
	primaryDown bool // primary index failed to load; serve from the backup
}

var _ VectorStore = (*FallbackStore)(nil)

// NewFallbackStore wraps primary with fallback.
func NewFallbackStore(primary, fallback VectorStore, logger *slog.Logger) (*FallbackStore, error) {
	if primary == nil {
		return nil, errors.New("fallback store requires a primary store")
	}
	if fallback == nil {
		return nil, errors.New("fallback store requires a fallback store")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackStore{primary: primary, fallback: fallback, logger: logger}, nil
}

// Add writes to both stores so the backup stays in sync with the primary.
func (s *FallbackStore) Add(ctx context.Context, ids []string, types []ChunkType, vectors [][]float32) error {
	if err := s.primary.Add(ctx, ids, types, vectors); err != nil {
		return err
	}
	return s.fallback.Add(ctx, ids, types, vectors)
}

// Search queries the primary store, falling back on ErrIndexUnavailable.
func (s *FallbackStore) Search(ctx context.Context, query []float32, k int, q VectorQuery) ([]*VectorResult, error) {
	results, _, err := s.SearchWithOrigin(ctx, query, k, q)
	return results, err
}

// SearchWithOrigin is Search plus a flag reporting whether the exhaustive
// fallback served the query. Callers that surface degraded-mode state use
// this form.
func (s *FallbackStore) SearchWithOrigin(ctx context.Context, query []float32, k int, q VectorQuery) ([]*VectorResult, bool, error) {
	err := s.primaryUnavailable()
	if err == nil {
		var results []*VectorResult
		results, err = s.primary.Search(ctx, query, k, q)
		if err == nil {
			return results, false, nil
		}
	}
	if !errors.Is(err, ErrIndexUnavailable) {
		return nil, false, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, false, ctxErr
	}

	s.logger.Warn("vector_index_fallback",
		slog.String("reason", err.Error()))

	results, fbErr := s.fallback.Search(ctx, query, k, q)
	if fbErr != nil {
		return nil, true, fbErr
	}
	return results, true, nil
}

// Delete removes from both stores.
func (s *FallbackStore) Delete(ctx context.Context, ids []string) error {
	if err := s.primary.Delete(ctx, ids); err != nil {
		return err
	}
	return s.fallback.Delete(ctx, ids)
}

// Count reports the primary store's count, or the backup's while the
// primary is unavailable.
func (s *FallbackStore) Count() int {
	if s.primaryUnavailable() != nil {
		return s.fallback.Count()
	}
	return s.primary.Count()
}

// Save persists both stores. The backup snapshot lives beside the primary
// index with a .flat suffix. Saving over an unavailable primary is refused:
// persisting the empty replacement graph would mask the corruption and lose
// the vectors still held by the snapshot.
func (s *FallbackStore) Save(path string) error {
	if err := s.primaryUnavailable(); err != nil {
		return fmt.Errorf("refusing to persist over a corrupt index, rebuild required: %w", err)
	}
	if err := s.primary.Save(path); err != nil {
		return err
	}
	return s.fallback.Save(path + ".flat")
}

// Load restores both stores. A corrupt or unreadable primary index is not
// fatal as long as the backup snapshot loads: the primary is marked
// unavailable and every search routes through the exhaustive scan until the
// index is rebuilt. Load fails only when neither file is usable.
func (s *FallbackStore) Load(path string) error {
	primaryErr := s.primary.Load(path)
	s.setPrimaryDown(primaryErr != nil)
	if primaryErr != nil {
		s.logger.Warn("vector_index_load_failed",
			slog.String("path", path),
			slog.String("error", primaryErr.Error()))
	}

	if err := s.fallback.Load(path + ".flat"); err != nil {
		if primaryErr != nil {
			return fmt.Errorf("vector index load: %w", errors.Join(primaryErr, err))
		}
		s.logger.Warn("vector_fallback_snapshot_missing",
			slog.String("path", path+".flat"),
			slog.String("error", err.Error()))
	}
	return nil
}

func (s *FallbackStore) setPrimaryDown(down bool) {
	s.mu.Lock()
	s.primaryDown = down
	s.mu.Unlock()
}

// primaryUnavailable reports the load failure as an ErrIndexUnavailable so
// SearchWithOrigin takes the same path as a search-time index failure.
func (s *FallbackStore) primaryUnavailable() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.primaryDown {
		return fmt.Errorf("primary index failed to load: %w", ErrIndexUnavailable)
	}
	return nil
}

// Close closes both stores, returning the first error.
func (s *FallbackStore) Close() error {
	err := s.primary.Close()
	if fbErr := s.fallback.Close(); err == nil {
		err = fbErr
	}
	return err
}
