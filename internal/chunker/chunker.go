// Package chunker splits normalized text into overlapping fixed-size windows.
package chunker

import (
	"fmt"
	"strconv"

	"edurag/internal/domain"
)

// Span is one window of text. Start and End count runes, End is exclusive.
type Span struct {
	Text  string
	Start int
	End   int
}

// Validate checks that a chunk size and overlap describe a walk that advances.
func Validate(chunkSize, overlap int) error {
	if chunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidConfiguration, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return fmt.Errorf("%w: overlap must be in [0, %d), got %d", domain.ErrInvalidConfiguration, chunkSize, overlap)
	}
	return nil
}

// Split walks text left to right emitting windows of chunkSize runes, each
// starting chunkSize-overlap runes after the previous one. The walk stops once
// a window reaches the end of the text. Empty text yields no spans.
func Split(text string, chunkSize, overlap int) ([]Span, error) {
	if err := Validate(chunkSize, overlap); err != nil {
		return nil, err
	}
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil, nil
	}
	step := chunkSize - overlap
	spans := make([]Span, 0, n/step+1)
	for cursor := 0; cursor < n; cursor += step {
		end := min(cursor+chunkSize, n)
		spans = append(spans, Span{Text: string(runes[cursor:end]), Start: cursor, End: end})
		if end == n {
			break
		}
	}
	return spans, nil
}

// FixedChunker turns documents into domain chunks using Split.
type FixedChunker struct {
	chunkSize int
	overlap   int
}

// NewFixedChunker returns a chunker, rejecting a size/overlap pair that
// would never advance.
func NewFixedChunker(chunkSize, overlap int) (*FixedChunker, error) {
	if err := Validate(chunkSize, overlap); err != nil {
		return nil, err
	}
	return &FixedChunker{chunkSize: chunkSize, overlap: overlap}, nil
}

// Chunk splits the document text. Chunk IDs are "<documentID>:<index>" so
// re-chunking the same document reproduces the same IDs.
func (c *FixedChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	spans, err := Split(document.RawText, c.chunkSize, c.overlap)
	if err != nil {
		return nil, err
	}
	chunks := make([]domain.Chunk, 0, len(spans))
	for idx, s := range spans {
		chunks = append(chunks, domain.Chunk{
			ID:          document.ID + ":" + strconv.Itoa(idx),
			DocumentID:  document.ID,
			Text:        s.Text,
			StartOffset: s.Start,
			EndOffset:   s.End,
			Index:       idx,
			Metadata:    document.Metadata,
		})
	}
	return chunks, nil
}
