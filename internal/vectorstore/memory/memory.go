// Package memory implements the in-process vector index. Writers serialize on
// a mutex and publish immutable snapshots; readers never take a lock.
package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"edurag/internal/domain"
)

type snapshot struct {
	entries   []domain.IndexEntry
	dimension int
}

var emptySnapshot = &snapshot{}

// Store is an in-memory vector index ordered by insertion.
type Store struct {
	mu      sync.Mutex
	snap    atomic.Pointer[snapshot]
	lastSeq uint64
}

// NewStore returns an empty store.
func NewStore() *Store {
	s := &Store{}
	s.snap.Store(emptySnapshot)
	return s
}

// Entry validates emb against the current dimensionality and builds the entry
// the next Insert would store, without storing it. Callers that persist
// entries elsewhere first use Entry and then Append.
func (s *Store) Entry(chunk domain.Chunk, emb domain.Embedding) (domain.IndexEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entryLocked(chunk, emb)
}

func (s *Store) entryLocked(chunk domain.Chunk, emb domain.Embedding) (domain.IndexEntry, error) {
	if err := checkDimension(s.snap.Load(), emb); err != nil {
		return domain.IndexEntry{}, err
	}
	return domain.IndexEntry{
		ID:        uuid.NewString(),
		Seq:       s.lastSeq + 1,
		Chunk:     chunk,
		Embedding: append(domain.Embedding(nil), emb...),
	}, nil
}

// Insert stores chunk with its embedding and returns the new entry ID.
// The first insert into an empty store fixes the dimensionality.
func (s *Store) Insert(ctx context.Context, chunk domain.Chunk, emb domain.Embedding) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, err := s.entryLocked(chunk, emb)
	if err != nil {
		return "", err
	}
	s.appendLocked(entry)
	return entry.ID, nil
}

// Append stores a fully built entry, typically one replayed from persistent
// storage. Its Seq must be greater than every stored Seq.
func (s *Store) Append(entry domain.IndexEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := checkDimension(s.snap.Load(), entry.Embedding); err != nil {
		return err
	}
	if entry.Seq <= s.lastSeq {
		return fmt.Errorf("entry seq %d is not after %d", entry.Seq, s.lastSeq)
	}
	s.appendLocked(entry)
	return nil
}

func (s *Store) appendLocked(entry domain.IndexEntry) {
	old := s.snap.Load()
	dim := old.dimension
	if len(old.entries) == 0 {
		dim = len(entry.Embedding)
	}
	// Appending never writes inside the visible length of an older snapshot.
	s.snap.Store(&snapshot{
		entries:   append(old.entries, entry),
		dimension: dim,
	})
	s.lastSeq = entry.Seq
}

// Remove deletes every entry of documentID and returns how many were removed.
// Removing an unknown document is a no-op. An emptied store forgets its
// dimensionality.
func (s *Store) Remove(ctx context.Context, documentID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.snap.Load()
	kept := make([]domain.IndexEntry, 0, len(old.entries))
	for _, e := range old.entries {
		if e.Chunk.DocumentID != documentID {
			kept = append(kept, e)
		}
	}
	removed := len(old.entries) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if len(kept) == 0 {
		s.snap.Store(emptySnapshot)
		return removed, nil
	}
	s.snap.Store(&snapshot{entries: kept, dimension: old.dimension})
	return removed, nil
}

// Scan returns all entries in insertion order. The returned slice is a
// point-in-time view; entries and their embeddings must not be modified.
func (s *Store) Scan(ctx context.Context) ([]domain.IndexEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries := s.snap.Load().entries
	return entries[:len(entries):len(entries)], nil
}

// Len returns the number of stored entries.
func (s *Store) Len() int { return len(s.snap.Load().entries) }

// Dimension returns the fixed dimensionality, or 0 while empty.
func (s *Store) Dimension() int { return s.snap.Load().dimension }

// Close is a no-op.
func (s *Store) Close() error { return nil }

func checkDimension(snap *snapshot, emb domain.Embedding) error {
	if len(emb) == 0 {
		return fmt.Errorf("%w: empty embedding", domain.ErrDimensionMismatch)
	}
	if len(snap.entries) > 0 && len(emb) != snap.dimension {
		return fmt.Errorf("%w: got %d, index has %d", domain.ErrDimensionMismatch, len(emb), snap.dimension)
	}
	return nil
}
