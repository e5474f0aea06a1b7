// Package hash implements an offline embedder based on signed feature hashing.
// It needs no corpus preparation and no network, which makes it suitable for
// tests, demos and air-gapped classrooms.
package hash

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"edurag/internal/domain"
)

// DefaultDimension is used when a non-positive dimension is requested.
const DefaultDimension = 256

// bigramWeight scales adjacent-token features relative to single tokens.
const bigramWeight = 0.5

// Embedder maps tokens and token bigrams into a fixed number of buckets.
type Embedder struct {
	dimension    int
	seed         []byte
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

var _ domain.Embedder = (*Embedder)(nil)

// NewEmbedder creates a hashing embedder. The same dimension and seed always
// produce the same vector for the same text.
func NewEmbedder(dimension int, seed uint64) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	s := make([]byte, 8)
	binary.LittleEndian.PutUint64(s, seed)
	return &Embedder{
		dimension: dimension,
		seed:      s,
		// Indic vowel signs are combining marks, so \p{M} belongs inside words.
		tokenPattern: regexp.MustCompile(`[\p{L}\p{M}\p{N}]+(?:['’][\p{L}\p{M}]+)*`),
		stopwords:    defaultStopwords(),
	}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "hash" }

// Dimension returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed computes the L2-normalized hashed embedding of text. Text without
// any tokens yields the zero vector.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	acc := make([]float64, e.dimension)
	tokens := e.tokenize(text)
	for i, tok := range tokens {
		e.add(acc, tok, 1)
		if i > 0 {
			e.add(acc, tokens[i-1]+" "+tok, bigramWeight)
		}
	}

	// L2 normalize
	norm := 0.0
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	vec := make(domain.Embedding, e.dimension)
	if norm == 0 {
		return vec, nil
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec, nil
}

func (e *Embedder) add(acc []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write(e.seed)
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dimension))
	if sum>>63 == 1 {
		weight = -weight
	}
	acc[idx] += weight
}

func (e *Embedder) tokenize(text string) []string {
	lower := strings.ToLower(text)
	raw := e.tokenPattern.FindAllString(lower, -1)
	if len(raw) == 0 {
		return nil
	}
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		// English
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "so", "such", "into", "about", "what", "which", "who", "how", "why", "do", "does",
		// Gujarati
		"છે", "અને", "તે", "આ", "એ", "માં", "નો", "ની", "નું", "ના", "ને", "થી", "પણ", "શું", "કે", "હતું", "હતી", "હતો",
		// Hindi
		"है", "और", "का", "की", "के", "में", "से", "को", "यह", "वह", "पर", "भी", "क्या", "कि", "था", "थी", "हैं",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
