package retriever

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edurag/internal/domain"
	"edurag/internal/vectorstore/memory"
)

func insert(t *testing.T, s *memory.Store, doc string, idx int, meta domain.Metadata, emb domain.Embedding) {
	t.Helper()
	c := domain.Chunk{ID: fmt.Sprintf("%s:%d", doc, idx), DocumentID: doc, Index: idx, Metadata: meta}
	_, err := s.Insert(context.Background(), c, emb)
	require.NoError(t, err)
}

func ids(r domain.RetrievalResult) []string {
	out := make([]string, 0, len(r.Items))
	for _, it := range r.Items {
		out = append(out, it.Chunk.ID)
	}
	return out
}

func TestRetrieve_ThresholdAndCap(t *testing.T) {
	s := memory.NewStore()
	insert(t, s, "d", 0, domain.Metadata{}, domain.Embedding{1, 0})
	insert(t, s, "d", 1, domain.Metadata{}, domain.Embedding{0, 1})
	insert(t, s, "d", 2, domain.Metadata{}, domain.Embedding{0.7, 0.7})

	res, err := Retrieve(context.Background(), s, domain.Embedding{1, 0}, Options{Threshold: 0.5, MaxResults: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"d:0", "d:2"}, ids(res))
	assert.InDelta(t, 1.0, res.Items[0].Score, 1e-9)
	assert.InDelta(t, 0.7071, res.Items[1].Score, 1e-3)
}

func TestRetrieve_EmptyIndexAfterRemove(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	insert(t, s, "only", 0, domain.Metadata{}, domain.Embedding{1, 0})
	insert(t, s, "only", 1, domain.Metadata{}, domain.Embedding{0, 1})
	_, err := s.Remove(ctx, "only")
	require.NoError(t, err)

	for _, th := range []float64{-1, 0, 0.5, 1} {
		res, err := Retrieve(ctx, s, domain.Embedding{1, 0}, Options{Threshold: th, MaxResults: 5})
		require.NoError(t, err)
		assert.True(t, res.Empty())
	}
}

func TestRetrieve_InvalidOptions(t *testing.T) {
	s := memory.NewStore()
	for _, o := range []Options{
		{Threshold: 1.01, MaxResults: 1},
		{Threshold: -1.5, MaxResults: 1},
		{Threshold: math.NaN(), MaxResults: 1},
		{Threshold: 0.5, MaxResults: -1},
	} {
		_, err := Retrieve(context.Background(), s, domain.Embedding{1}, o)
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration, "%+v", o)
	}
}

func TestRetrieve_TiesKeepInsertionOrder(t *testing.T) {
	s := memory.NewStore()
	for i := range 5 {
		insert(t, s, "d", i, domain.Metadata{}, domain.Embedding{1, 1})
	}
	for range 3 {
		res, err := Retrieve(context.Background(), s, domain.Embedding{1, 1}, Options{Threshold: 0, MaxResults: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{"d:0", "d:1", "d:2", "d:3", "d:4"}, ids(res))
	}
}

func TestRetrieve_ThresholdMonotonicity(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	s := memory.NewStore()
	for i := range 50 {
		insert(t, s, "d", i, domain.Metadata{}, domain.Embedding{rng.Float32()*2 - 1, rng.Float32()*2 - 1, rng.Float32()*2 - 1})
	}
	q := domain.Embedding{0.3, -0.2, 0.9}
	prev := math.MaxInt
	for th := -1.0; th <= 1.0; th += 0.1 {
		res, err := Retrieve(context.Background(), s, q, Options{Threshold: th, MaxResults: 100})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(res.Items), prev)
		prev = len(res.Items)
	}
}

func TestRetrieve_RemovedDocumentNeverReturned(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	insert(t, s, "a", 0, domain.Metadata{}, domain.Embedding{1, 0})
	insert(t, s, "b", 0, domain.Metadata{}, domain.Embedding{1, 0})
	insert(t, s, "a", 1, domain.Metadata{}, domain.Embedding{1, 0})
	_, err := s.Remove(ctx, "a")
	require.NoError(t, err)

	res, err := Retrieve(ctx, s, domain.Embedding{1, 0}, Options{Threshold: -1, MaxResults: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"b:0"}, ids(res))
}

func TestRetrieve_Filter(t *testing.T) {
	eight, nine := 8, 9
	s := memory.NewStore()
	insert(t, s, "sci8", 0, domain.Metadata{Subject: "Science", ClassLevel: &eight, Chapter: "Force and Pressure"}, domain.Embedding{1, 0})
	insert(t, s, "sci9", 0, domain.Metadata{Subject: "science", ClassLevel: &nine, Chapter: "Motion"}, domain.Embedding{1, 0})
	insert(t, s, "math8", 0, domain.Metadata{Subject: "maths", ClassLevel: &eight}, domain.Embedding{1, 0})

	query := func(f domain.Filter) []string {
		res, err := Retrieve(context.Background(), s, domain.Embedding{1, 0}, Options{Threshold: 0, MaxResults: 10, Filter: f})
		require.NoError(t, err)
		return ids(res)
	}
	assert.Equal(t, []string{"sci8:0", "sci9:0", "math8:0"}, query(domain.Filter{}))
	assert.Equal(t, []string{"sci8:0", "sci9:0"}, query(domain.Filter{Subject: "SCIENCE"}))
	assert.Equal(t, []string{"sci8:0", "math8:0"}, query(domain.Filter{ClassLevel: &eight}))
	assert.Equal(t, []string{"sci8:0"}, query(domain.Filter{Chapter: "pressure"}))
}

func TestRetrieve_DimensionMismatch(t *testing.T) {
	s := memory.NewStore()
	insert(t, s, "unrelated", 0, domain.Metadata{}, domain.Embedding{1, 0, 0})

	for _, th := range []float64{-1, 0, 0.5} {
		res, err := Retrieve(context.Background(), s, domain.Embedding{1, 0}, Options{Threshold: th, MaxResults: 5})
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
		assert.True(t, res.Empty())
	}

	// filtered-out entries still expose the mismatch
	_, err := Retrieve(context.Background(), s, domain.Embedding{1, 0}, Options{MaxResults: 5, Filter: domain.Filter{Subject: "none"}})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestRetrieve_EmptyIndexAcceptsAnyDimension(t *testing.T) {
	res, err := Retrieve(context.Background(), memory.NewStore(), domain.Embedding{1, 0, 0, 0}, Options{MaxResults: 5})
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestRetrieve_CancelledContext(t *testing.T) {
	s := memory.NewStore()
	insert(t, s, "d", 0, domain.Metadata{}, domain.Embedding{1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Retrieve(ctx, s, domain.Embedding{1}, Options{MaxResults: 1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, res.Empty())
}

func TestCosine_Bounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for range 500 {
		n := 1 + rng.Intn(16)
		a, b := make([]float32, n), make([]float32, n)
		for i := range a {
			a[i] = float32(rng.NormFloat64() * 100)
			b[i] = float32(rng.NormFloat64() * 1e-3)
		}
		s := Cosine(a, b)
		assert.GreaterOrEqual(t, s, -1.0)
		assert.LessOrEqual(t, s, 1.0)
		assert.InDelta(t, 1.0, Cosine(a, a), 1e-12)
	}
}

func TestCosine_Degenerate(t *testing.T) {
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 0}))
	assert.Zero(t, Cosine([]float32{1}, []float32{1, 0}))
	assert.Zero(t, Cosine(nil, nil))
	assert.Equal(t, -1.0, Cosine([]float32{1, 0}, []float32{-2, 0}))
}

func TestConfidence(t *testing.T) {
	_, ok := Confidence(domain.RetrievalResult{})
	assert.False(t, ok)

	c, ok := Confidence(domain.RetrievalResult{Items: []domain.ScoredChunk{{Score: 1}, {Score: 0.5}}})
	assert.True(t, ok)
	assert.InDelta(t, 0.75, c, 1e-12)
}
