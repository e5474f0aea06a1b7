package domain

import "context"

// Language identifies the locale of a document or question.
type Language string

const (
	Gujarati Language = "gu"
	English  Language = "en"
	Hindi    Language = "hi"
)

// Valid reports whether l is one of the supported locales.
func (l Language) Valid() bool {
	switch l {
	case Gujarati, English, Hindi:
		return true
	}
	return false
}

// Or returns l when it is supported and fallback otherwise.
func (l Language) Or(fallback Language) Language {
	if l.Valid() {
		return l
	}
	return fallback
}

// Metadata describes where a piece of text came from.
type Metadata struct {
	Source     string   `json:"source" yaml:"source"`
	Page       *int     `json:"page,omitempty" yaml:"page,omitempty"`
	Subject    string   `json:"subject,omitempty" yaml:"subject,omitempty"`
	ClassLevel *int     `json:"class_level,omitempty" yaml:"class_level,omitempty"`
	Chapter    string   `json:"chapter,omitempty" yaml:"chapter,omitempty"`
	Language   Language `json:"language" yaml:"language"`
}

// Document represents a single educational text loaded into the system.
type Document struct {
	ID       string
	RawText  string
	Metadata Metadata
}

// Chunk is a contiguous window of a normalized document, the unit of
// embedding and retrieval. Offsets count runes and are half-open.
type Chunk struct {
	ID          string   `json:"id"`
	DocumentID  string   `json:"document_id"`
	Text        string   `json:"text"`
	StartOffset int      `json:"start_offset"`
	EndOffset   int      `json:"end_offset"`
	Index       int      `json:"index"`
	Metadata    Metadata `json:"metadata"`
}

// Embedding is a fixed-length vector produced by an Embedder.
type Embedding []float32

// IndexEntry is a chunk together with its embedding as owned by a Store.
// Seq is the insertion sequence and defines scan order.
type IndexEntry struct {
	ID        string
	Seq       uint64
	Chunk     Chunk
	Embedding Embedding
}

// Filter narrows retrieval to chunks whose metadata matches every set field.
type Filter struct {
	Subject    string
	ClassLevel *int
	Chapter    string
}

// Query is a question to answer from indexed material.
type Query struct {
	Text      string
	Embedding Embedding
	Language  Language
	Filter    Filter
}

// ScoredChunk represents a matching chunk with a relevance score in [-1, 1].
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// RetrievalResult holds ranked chunks, highest score first.
type RetrievalResult struct {
	Items []ScoredChunk `json:"items"`
}

// Empty reports whether nothing met the relevance threshold.
func (r RetrievalResult) Empty() bool { return len(r.Items) == 0 }

// Citation is a display-ready reference to source material.
type Citation struct {
	Source  string `json:"source"`
	Page    *int   `json:"page,omitempty"`
	Chapter string `json:"chapter,omitempty"`
}

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) (Embedding, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}
