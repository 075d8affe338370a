package memory

import (
	"context"
	"sync"
	"time"

	"github.com/tjfontaine/webapi-sample/internal/storage"
)

// DefaultCapacity is the number of entries kept when New is given zero.
const DefaultCapacity = 1024

// Store is an in-memory ring buffer of journal entries.
type Store struct {
	mu      sync.RWMutex
	entries []storage.Entry
	next    int
	full    bool
}

var _ storage.Journal = (*Store)(nil)

// New creates a store that keeps the last capacity entries.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{entries: make([]storage.Entry, capacity)}
}

func (s *Store) Append(ctx context.Context, e storage.Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[s.next] = e
	s.next = (s.next + 1) % len(s.entries)
	if s.next == 0 {
		s.full = true
	}
	return nil
}

func (s *Store) Recent(ctx context.Context, limit int) ([]storage.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := s.next
	if s.full {
		count = len(s.entries)
	}
	if limit <= 0 || limit > count {
		limit = count
	}

	out := make([]storage.Entry, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (s.next - 1 - i + len(s.entries)) % len(s.entries)
		out = append(out, s.entries[idx])
	}
	return out, nil
}

func (s *Store) Close() error {
	return nil
}
