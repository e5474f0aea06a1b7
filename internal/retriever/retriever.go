// Package retriever ranks indexed chunks against a query embedding.
package retriever

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"edurag/internal/domain"
)

// Scanner is the read side of a vector index.
type Scanner interface {
	Scan(ctx context.Context) ([]domain.IndexEntry, error)
}

// Options controls a single retrieval.
type Options struct {
	// Threshold is the minimum similarity in [-1, 1] a chunk needs to be kept.
	Threshold float64
	// MaxResults caps the result size. Zero yields an empty result.
	MaxResults int
	Filter     domain.Filter
}

// Validate reports malformed options as domain.ErrInvalidConfiguration.
func (o Options) Validate() error {
	if o.MaxResults < 0 {
		return fmt.Errorf("%w: max results must be >= 0, got %d", domain.ErrInvalidConfiguration, o.MaxResults)
	}
	if math.IsNaN(o.Threshold) || o.Threshold < -1 || o.Threshold > 1 {
		return fmt.Errorf("%w: similarity threshold must be in [-1, 1], got %v", domain.ErrInvalidConfiguration, o.Threshold)
	}
	return nil
}

// Retrieve scores every entry of idx that passes the filter, drops those
// below the threshold and returns the rest highest first. Equal scores keep
// insertion order. An empty result is not an error. A query whose length
// differs from the indexed embeddings fails with domain.ErrDimensionMismatch.
// A cancelled ctx yields ctx.Err() and no partial result.
func Retrieve(ctx context.Context, idx Scanner, query domain.Embedding, opts Options) (domain.RetrievalResult, error) {
	if err := opts.Validate(); err != nil {
		return domain.RetrievalResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.RetrievalResult{}, err
	}
	entries, err := idx.Scan(ctx)
	if err != nil {
		return domain.RetrievalResult{}, err
	}

	items := make([]domain.ScoredChunk, 0, len(entries))
	for _, e := range entries {
		if len(e.Embedding) != len(query) {
			return domain.RetrievalResult{}, fmt.Errorf("%w: query has %d dimensions, index has %d",
				domain.ErrDimensionMismatch, len(query), len(e.Embedding))
		}
		if !Matches(opts.Filter, e.Chunk.Metadata) {
			continue
		}
		score := Cosine(query, e.Embedding)
		if score < opts.Threshold {
			continue
		}
		items = append(items, domain.ScoredChunk{Chunk: e.Chunk, Score: score})
	}
	if err := ctx.Err(); err != nil {
		return domain.RetrievalResult{}, err
	}

	// entries arrive in insertion order, so a stable sort breaks ties by it
	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	if len(items) > opts.MaxResults {
		items = items[:opts.MaxResults]
	}
	if len(items) == 0 {
		return domain.RetrievalResult{}, nil
	}
	return domain.RetrievalResult{Items: items}, nil
}

// Cosine returns the cosine similarity of a and b in [-1, 1]. Vectors of
// different length or with zero norm score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	s := dot / math.Sqrt(na*nb)
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	case math.IsNaN(s):
		return 0
	}
	return s
}

// Matches reports whether m satisfies every set field of f. Subject compares
// case-insensitively, chapter matches by substring.
func Matches(f domain.Filter, m domain.Metadata) bool {
	if f.Subject != "" && !strings.EqualFold(f.Subject, m.Subject) {
		return false
	}
	if f.ClassLevel != nil && (m.ClassLevel == nil || *m.ClassLevel != *f.ClassLevel) {
		return false
	}
	if f.Chapter != "" && !strings.Contains(strings.ToLower(m.Chapter), strings.ToLower(f.Chapter)) {
		return false
	}
	return true
}

// Confidence is the mean score of r. It reports false for an empty result.
func Confidence(r domain.RetrievalResult) (float64, bool) {
	if r.Empty() {
		return 0, false
	}
	sum := 0.0
	for _, it := range r.Items {
		sum += it.Score
	}
	return sum / float64(len(r.Items)), true
}
