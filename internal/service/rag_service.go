// Package service wires the ingestion and question-answering pipelines.
package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"edurag/internal/chunker"
	"edurag/internal/citation"
	"edurag/internal/domain"
	"edurag/internal/embedding"
	"edurag/internal/metrics"
	"edurag/internal/normalize"
	"edurag/internal/prompt"
	"edurag/internal/retriever"
	"edurag/internal/vectorstore"
)

// Options are the engine settings that are not owned by a collaborator.
type Options struct {
	ChunkSize       int
	ChunkOverlap    int
	Threshold       float64
	MaxResults      int
	QueryTimeout    time.Duration
	MaxContextRunes int
	Language        domain.Language
}

// RAGService ingests documents into a vector index and answers questions
// from it. Writes are serialized; questions may be asked concurrently.
type RAGService struct {
	opts     Options
	chunker  *chunker.FixedChunker
	gateway  *embedding.Gateway
	store    vectorstore.Store
	composer *prompt.Composer
	metrics  *metrics.Metrics
	log      zerolog.Logger

	writeMu sync.Mutex
}

// NewRAGService validates opts and assembles the engine. A nil m gets a
// fresh metrics set.
func NewRAGService(opts Options, gateway *embedding.Gateway, store vectorstore.Store, log zerolog.Logger, m *metrics.Metrics) (*RAGService, error) {
	ch, err := chunker.NewFixedChunker(opts.ChunkSize, opts.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	if err := (retriever.Options{Threshold: opts.Threshold, MaxResults: opts.MaxResults}).Validate(); err != nil {
		return nil, err
	}
	if opts.QueryTimeout < 0 || opts.MaxContextRunes < 0 {
		return nil, fmt.Errorf("%w: query timeout and context budget must be >= 0", domain.ErrInvalidConfiguration)
	}
	opts.Language = opts.Language.Or(domain.Gujarati)
	if m == nil {
		m = metrics.New()
	}
	m.IndexEntries.Set(float64(store.Len()))
	return &RAGService{
		opts:     opts,
		chunker:  ch,
		gateway:  gateway,
		store:    store,
		composer: prompt.NewComposer(opts.Language, opts.MaxContextRunes),
		metrics:  m,
		log:      log.With().Str("component", "service").Logger(),
	}, nil
}

// Metrics returns the engine's collectors.
func (s *RAGService) Metrics() *metrics.Metrics { return s.metrics }

// Close releases the vector store.
func (s *RAGService) Close() error { return s.store.Close() }

// ChunkFailure records why one chunk of a document was not indexed.
type ChunkFailure struct {
	Index   int
	ChunkID string
	Err     error
}

// IngestReport summarizes the ingestion of one document.
type IngestReport struct {
	DocumentID string
	Source     string
	Chunks     int
	Inserted   int
	Superseded int
	Failures   []ChunkFailure
}

// Err joins the chunk failures, or returns nil when every chunk was indexed.
func (r IngestReport) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("chunk %s: %w", f.ChunkID, f.Err))
	}
	return errors.Join(errs...)
}

// DocumentID derives the stable document ID for a source path or name.
func DocumentID(source string) string { return hashString(source) }

// Ingest normalizes, chunks, embeds and indexes doc. An empty doc.ID is
// derived from the source. Entries of an earlier version of the same
// document are replaced. Ingestion is applied per chunk: chunks whose
// embedding or insert fails are listed in the report and in the returned
// error, while the others stay indexed. When no chunk could be embedded the
// earlier version is left untouched. Questions asked while a supersede is in
// progress may see the document missing or partly inserted.
func (s *RAGService) Ingest(ctx context.Context, doc domain.Document) (IngestReport, error) {
	if doc.ID == "" {
		key := doc.Metadata.Source
		if key == "" {
			key = doc.RawText
		}
		doc.ID = DocumentID(key)
	}
	doc.Metadata.Language = doc.Metadata.Language.Or(s.opts.Language)
	doc.RawText = normalize.Normalize(doc.RawText)

	report := IngestReport{DocumentID: doc.ID, Source: doc.Metadata.Source}
	chunks, err := s.chunker.Chunk(doc)
	if err != nil {
		return report, err
	}
	report.Chunks = len(chunks)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embedded := s.gateway.EmbedBatch(ctx, texts)

	ok := 0
	for i, r := range embedded {
		if r.Err != nil {
			report.Failures = append(report.Failures, ChunkFailure{Index: i, ChunkID: chunks[i].ID, Err: r.Err})
			continue
		}
		ok++
	}
	if len(chunks) > 0 && ok == 0 {
		s.recordFailures(report.Failures)
		s.log.Warn().Str("document_id", doc.ID).Int("chunks", len(chunks)).Msg("no chunk could be embedded, keeping previous version")
		return report, report.Err()
	}

	s.writeMu.Lock()
	removed, err := s.store.Remove(ctx, doc.ID)
	if err != nil {
		s.writeMu.Unlock()
		return report, fmt.Errorf("supersede %s: %w", doc.ID, err)
	}
	report.Superseded = removed
	for i, c := range chunks {
		if embedded[i].Err != nil {
			continue
		}
		if _, err := s.store.Insert(ctx, c, embedded[i].Embedding); err != nil {
			report.Failures = append(report.Failures, ChunkFailure{Index: i, ChunkID: c.ID, Err: err})
			continue
		}
		report.Inserted++
	}
	s.metrics.IndexEntries.Set(float64(s.store.Len()))
	s.writeMu.Unlock()

	s.metrics.ChunksIngested.Add(float64(report.Inserted))
	s.recordFailures(report.Failures)
	s.log.Info().
		Str("document_id", doc.ID).
		Str("source", doc.Metadata.Source).
		Int("chunks", report.Chunks).
		Int("inserted", report.Inserted).
		Int("superseded", report.Superseded).
		Int("failed", len(report.Failures)).
		Msg("document ingested")
	return report, report.Err()
}

func (s *RAGService) recordFailures(failures []ChunkFailure) {
	for _, f := range failures {
		s.metrics.ChunkFailures.WithLabelValues(failureReason(f.Err)).Inc()
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmbeddingUnavailable):
		return "embedding_unavailable"
	case errors.Is(err, domain.ErrDimensionMismatch):
		return "dimension_mismatch"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}

// IngestFiles expands glob patterns and ingests every .txt and .md file,
// using the file path as source. meta supplies the remaining metadata.
func (s *RAGService) IngestFiles(ctx context.Context, patterns []string, meta domain.Metadata) ([]IngestReport, error) {
	var paths []string
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			switch strings.ToLower(filepath.Ext(m)) {
			case ".txt", ".md":
				paths = append(paths, m)
			}
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no .txt or .md documents found")
	}

	var (
		reports []IngestReport
		errs    []error
	)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		m := meta
		m.Source = path
		report, err := s.Ingest(ctx, domain.Document{ID: DocumentID(path), RawText: string(data), Metadata: m})
		reports = append(reports, report)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
	}
	return reports, errors.Join(errs...)
}

// Remove deletes a document given its ID or its source. It returns the
// number of removed entries, or domain.ErrNotFound when nothing matched.
func (s *RAGService) Remove(ctx context.Context, idOrSource string) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	n, err := s.store.Remove(ctx, idOrSource)
	if err == nil && n == 0 {
		n, err = s.store.Remove(ctx, DocumentID(idOrSource))
	}
	if err != nil {
		return 0, err
	}
	s.metrics.IndexEntries.Set(float64(s.store.Len()))
	if n == 0 {
		return 0, fmt.Errorf("document %q: %w", idOrSource, domain.ErrNotFound)
	}
	s.log.Info().Str("document", idOrSource).Int("entries", n).Msg("document removed")
	return n, nil
}

// Answer is the outcome of a question.
type Answer struct {
	// Prompt is the text to hand to a generation model.
	Prompt string
	// Result holds the chunks placed in the prompt context.
	Result        domain.RetrievalResult
	Citations     []domain.Citation
	Confidence    float64
	HasConfidence bool
	// Grounded is false when no chunk met the threshold; the prompt then
	// instructs the generator to say the answer is unavailable.
	Grounded bool
	Language domain.Language
}

// Ask embeds the question, retrieves matching chunks and assembles the
// prompt with its citations. Provider failures wrap
// domain.ErrEmbeddingUnavailable and are never reported as "no match".
// When the query deadline passes no partial answer is returned.
func (s *RAGService) Ask(ctx context.Context, q domain.Query) (*Answer, error) {
	if s.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.QueryTimeout)
		defer cancel()
	}
	question := normalize.Normalize(q.Text)
	if question == "" && len(q.Embedding) == 0 {
		return nil, errors.New("empty question")
	}
	lang := q.Language.Or(s.opts.Language)

	emb := q.Embedding
	if len(emb) == 0 {
		var err error
		emb, err = s.gateway.Embed(ctx, question)
		if err != nil {
			s.metrics.ObserveQuestion(metrics.OutcomeError)
			return nil, err
		}
	}

	start := time.Now()
	result, err := retriever.Retrieve(ctx, s.store, emb, retriever.Options{
		Threshold:  s.opts.Threshold,
		MaxResults: s.opts.MaxResults,
		Filter:     q.Filter,
	})
	metrics.Since(s.metrics.RetrievalSeconds, start)
	if err != nil {
		s.metrics.ObserveQuestion(metrics.OutcomeError)
		return nil, err
	}

	if kept := s.composer.Kept(result); kept < len(result.Items) {
		result.Items = result.Items[:kept]
	}
	text, err := s.composer.Compose(question, result, lang)
	if err != nil {
		s.metrics.ObserveQuestion(metrics.OutcomeError)
		return nil, err
	}
	conf, hasConf := retriever.Confidence(result)
	ans := &Answer{
		Prompt:        text,
		Result:        result,
		Citations:     citation.Format(result),
		Confidence:    conf,
		HasConfidence: hasConf,
		Grounded:      !result.Empty(),
		Language:      lang,
	}
	if ans.Grounded {
		s.metrics.ObserveQuestion(metrics.OutcomeGrounded)
	} else {
		s.metrics.ObserveQuestion(metrics.OutcomeUngrounded)
	}
	s.log.Debug().
		Int("matches", len(result.Items)).
		Bool("grounded", ans.Grounded).
		Dur("latency", time.Since(start)).
		Msg("question answered")
	return ans, nil
}

// DocumentSummary describes one indexed document.
type DocumentSummary struct {
	ID      string
	Source  string
	Chunks  int
	Subject string
	Chapter string
}

// Stats describes the current index contents.
type Stats struct {
	Entries   int
	Dimension int
	Embedder  string
	Documents []DocumentSummary
}

// Stats reports the index size and the indexed documents in first-insert order.
func (s *RAGService) Stats(ctx context.Context) (Stats, error) {
	entries, err := s.store.Scan(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Entries: len(entries), Dimension: s.store.Dimension(), Embedder: s.gateway.Name()}
	pos := make(map[string]int)
	for _, e := range entries {
		i, ok := pos[e.Chunk.DocumentID]
		if !ok {
			i = len(st.Documents)
			pos[e.Chunk.DocumentID] = i
			st.Documents = append(st.Documents, DocumentSummary{
				ID:      e.Chunk.DocumentID,
				Source:  e.Chunk.Metadata.Source,
				Subject: e.Chunk.Metadata.Subject,
				Chapter: e.Chunk.Metadata.Chapter,
			})
		}
		st.Documents[i].Chunks++
	}
	return st, nil
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
