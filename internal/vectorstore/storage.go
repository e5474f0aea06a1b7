// Package vectorstore defines the vector index contract and selects a backend.
package vectorstore

import (
	"context"
	"fmt"

	"edurag/internal/domain"
	"edurag/internal/vectorstore/memory"
	"edurag/internal/vectorstore/qdrant"
	"edurag/internal/vectorstore/sqlite"
)

// Store owns index entries. Inserts are serialized; Scan returns a
// point-in-time view in insertion order and never blocks on writers.
type Store interface {
	Insert(ctx context.Context, chunk domain.Chunk, embedding domain.Embedding) (string, error)
	Remove(ctx context.Context, documentID string) (int, error)
	Scan(ctx context.Context) ([]domain.IndexEntry, error)
	Len() int
	Dimension() int
	Close() error
}

var (
	_ Store = (*memory.Store)(nil)
	_ Store = (*sqlite.Store)(nil)
	_ Store = (*qdrant.Store)(nil)
)

// Backend names accepted by Open.
const (
	Memory = "memory"
	SQLite = "sqlite"
	Qdrant = "qdrant"
)

// Options selects and configures a backend.
type Options struct {
	Type       string
	SQLitePath string
	Qdrant     qdrant.Config
}

// Open constructs the backend named by opts.Type.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Type {
	case "", Memory:
		return memory.NewStore(), nil
	case SQLite:
		s, err := sqlite.Open(ctx, opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case Qdrant:
		s, err := qdrant.Open(ctx, opts.Qdrant)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown vector store type %q", domain.ErrInvalidConfiguration, opts.Type)
	}
}
