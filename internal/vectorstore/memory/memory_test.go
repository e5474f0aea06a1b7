package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edurag/internal/domain"
)

func chunk(doc string, idx int) domain.Chunk {
	return domain.Chunk{
		ID:         fmt.Sprintf("%s:%d", doc, idx),
		DocumentID: doc,
		Text:       fmt.Sprintf("text %s %d", doc, idx),
		Index:      idx,
		Metadata:   domain.Metadata{Source: doc + ".txt"},
	}
}

func TestStore_InsertFixesDimension(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	assert.Equal(t, 0, s.Dimension())

	id, err := s.Insert(ctx, chunk("a", 0), domain.Embedding{1, 0, 0})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 3, s.Dimension())

	_, err = s.Insert(ctx, chunk("a", 1), domain.Embedding{1, 0, 0, 0})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.Equal(t, 1, s.Len())
}

func TestStore_RejectsEmptyEmbedding(t *testing.T) {
	_, err := NewStore().Insert(context.Background(), chunk("a", 0), nil)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestStore_ScanInInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	for i := range 5 {
		_, err := s.Insert(ctx, chunk("a", i), domain.Embedding{float32(i), 1})
		require.NoError(t, err)
	}
	entries, err := s.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for i, e := range entries {
		assert.Equal(t, i, e.Chunk.Index)
		assert.Equal(t, uint64(i+1), e.Seq)
	}
}

func TestStore_RemoveDocument(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	for i := range 3 {
		_, err := s.Insert(ctx, chunk("a", i), domain.Embedding{1, 0})
		require.NoError(t, err)
		_, err = s.Insert(ctx, chunk("b", i), domain.Embedding{0, 1})
		require.NoError(t, err)
	}

	n, err := s.Remove(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	entries, err := s.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, "b", e.Chunk.DocumentID)
	}

	n, err = s.Remove(ctx, "missing")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 3, s.Len())
}

func TestStore_EmptyStoreReleasesDimension(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	_, err := s.Insert(ctx, chunk("a", 0), domain.Embedding{1, 0})
	require.NoError(t, err)

	_, err = s.Remove(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.Dimension())

	_, err = s.Insert(ctx, chunk("b", 0), domain.Embedding{1, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 3, s.Dimension())
}

func TestStore_ScanIsPointInTime(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	_, err := s.Insert(ctx, chunk("a", 0), domain.Embedding{1})
	require.NoError(t, err)

	before, err := s.Scan(ctx)
	require.NoError(t, err)

	_, err = s.Insert(ctx, chunk("a", 1), domain.Embedding{1})
	require.NoError(t, err)
	_, err = s.Remove(ctx, "a")
	require.NoError(t, err)

	require.Len(t, before, 1)
	assert.Equal(t, "a:0", before[0].Chunk.ID)
}

func TestStore_InsertCopiesEmbedding(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	emb := domain.Embedding{1, 2}
	_, err := s.Insert(ctx, chunk("a", 0), emb)
	require.NoError(t, err)
	emb[0] = 99

	entries, _ := s.Scan(ctx)
	assert.Equal(t, domain.Embedding{1, 2}, entries[0].Embedding)
}

func TestStore_AppendRequiresIncreasingSeq(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Append(domain.IndexEntry{ID: "x", Seq: 5, Chunk: chunk("a", 0), Embedding: domain.Embedding{1}}))
	assert.Error(t, s.Append(domain.IndexEntry{ID: "y", Seq: 5, Chunk: chunk("a", 1), Embedding: domain.Embedding{1}}))

	e, err := s.Entry(chunk("a", 2), domain.Embedding{1})
	require.NoError(t, err)
	assert.Equal(t, uint64(6), e.Seq)
	assert.Equal(t, 1, s.Len(), "Entry must not store")
}

func TestStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewStore()
	_, err := s.Insert(ctx, chunk("a", 0), domain.Embedding{1})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStore_ConcurrentReadersAndWriter(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range 200 {
			_, _ = s.Insert(ctx, chunk("a", i), domain.Embedding{1, 1})
			if i%50 == 49 {
				_, _ = s.Remove(ctx, "a")
			}
		}
	}()
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				entries, err := s.Scan(ctx)
				assert.NoError(t, err)
				for j := 1; j < len(entries); j++ {
					assert.Less(t, entries[j-1].Seq, entries[j].Seq)
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, s.Len())
}
