// Package sqlite persists the vector index in a local SQLite database.
// Every change is written through before it is applied to the in-memory
// index that serves reads.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver

	"edurag/internal/domain"
	"edurag/internal/vectorstore/memory"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	seq          INTEGER PRIMARY KEY,
	id           TEXT NOT NULL UNIQUE,
	document_id  TEXT NOT NULL,
	chunk_id     TEXT NOT NULL,
	chunk_index  INTEGER NOT NULL,
	text         TEXT NOT NULL,
	start_offset INTEGER NOT NULL,
	end_offset   INTEGER NOT NULL,
	metadata     TEXT NOT NULL,
	embedding    BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_document ON entries(document_id);
`

// Store is a write-through SQLite vector index.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
	mem  *memory.Store
}

// Open opens (or creates) the database at path and replays its entries in
// insertion order.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", domain.ErrInvalidConfiguration)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s := &Store{db: db, path: path, mem: memory.NewStore()}
	if err := s.replay(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) replay(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, document_id, chunk_id, chunk_index, text, start_offset, end_offset, metadata, embedding
		FROM entries ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e            domain.IndexEntry
			metadataJSON string
			embedding    []byte
		)
		if err := rows.Scan(&e.Seq, &e.ID, &e.Chunk.DocumentID, &e.Chunk.ID, &e.Chunk.Index,
			&e.Chunk.Text, &e.Chunk.StartOffset, &e.Chunk.EndOffset, &metadataJSON, &embedding); err != nil {
			return fmt.Errorf("scanning entry: %w", err)
		}
		if err := json.Unmarshal([]byte(metadataJSON), &e.Chunk.Metadata); err != nil {
			return fmt.Errorf("decoding metadata of entry %d: %w", e.Seq, err)
		}
		e.Embedding = bytesToFloat32Slice(embedding)
		if err := s.mem.Append(e); err != nil {
			return fmt.Errorf("replaying entry %d: %w", e.Seq, err)
		}
	}
	return rows.Err()
}

// Insert stores chunk with its embedding and returns the new entry ID.
func (s *Store) Insert(ctx context.Context, chunk domain.Chunk, emb domain.Embedding) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.mem.Entry(chunk, emb)
	if err != nil {
		return "", err
	}
	metadataJSON, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return "", fmt.Errorf("encoding metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entries (seq, id, document_id, chunk_id, chunk_index, text, start_offset, end_offset, metadata, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Seq, entry.ID, chunk.DocumentID, chunk.ID, chunk.Index, chunk.Text,
		chunk.StartOffset, chunk.EndOffset, string(metadataJSON), float32SliceToBytes(entry.Embedding))
	if err != nil {
		return "", fmt.Errorf("inserting entry: %w", err)
	}
	if err := s.mem.Append(entry); err != nil {
		return "", err
	}
	return entry.ID, nil
}

// Remove deletes every entry of documentID and returns how many were removed.
func (s *Store) Remove(ctx context.Context, documentID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE document_id = ?`, documentID); err != nil {
		return 0, fmt.Errorf("deleting entries of %s: %w", documentID, err)
	}
	return s.mem.Remove(ctx, documentID)
}

// Scan returns all entries in insertion order.
func (s *Store) Scan(ctx context.Context) ([]domain.IndexEntry, error) { return s.mem.Scan(ctx) }

// Len returns the number of stored entries.
func (s *Store) Len() int { return s.mem.Len() }

// Dimension returns the fixed dimensionality, or 0 while empty.
func (s *Store) Dimension() int { return s.mem.Dimension() }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
