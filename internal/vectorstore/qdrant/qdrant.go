// Package qdrant persists the vector index in a Qdrant collection. Reads are
// served from an in-process mirror that is rebuilt from the collection on Open.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	qd "github.com/qdrant/go-client/qdrant"

	"edurag/internal/domain"
	"edurag/internal/vectorstore/memory"
)

const scrollPage = 256

// pointsAPI is the subset of *qd.Client the store needs.
type pointsAPI interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qd.CreateCollection) error
	DeleteCollection(ctx context.Context, collectionName string) error
	Upsert(ctx context.Context, request *qd.UpsertPoints) (*qd.UpdateResult, error)
	Delete(ctx context.Context, request *qd.DeletePoints) (*qd.UpdateResult, error)
	Scroll(ctx context.Context, request *qd.ScrollPoints) ([]*qd.RetrievedPoint, error)
	Close() error
}

// Config configures the Qdrant connection.
type Config struct {
	// URL of the gRPC endpoint, e.g. "http://localhost:6334".
	URL        string
	APIKey     string
	Collection string
}

// Store writes every change through to Qdrant before applying it locally.
type Store struct {
	mu         sync.Mutex
	client     pointsAPI
	collection string
	mem        *memory.Store
}

// Open connects to Qdrant and loads every point of the collection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: qdrant URL is required", domain.ErrInvalidConfiguration)
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid qdrant URL: %v", domain.ErrInvalidConfiguration, err)
	}
	port := 6334
	if parsed.Port() != "" {
		p, err := strconv.Atoi(parsed.Port())
		if err != nil {
			return nil, fmt.Errorf("%w: invalid qdrant port: %v", domain.ErrInvalidConfiguration, err)
		}
		port = p
	}
	client, err := qd.NewClient(&qd.Config{
		Host:   parsed.Hostname(),
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: parsed.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	s, err := newStore(ctx, client, cfg.Collection)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

func newStore(ctx context.Context, client pointsAPI, collection string) (*Store, error) {
	if collection == "" {
		collection = "edurag_chunks"
	}
	s := &Store{client: client, collection: collection, mem: memory.NewStore()}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", s.collection, err)
	}
	if !exists {
		return nil
	}
	var offset *qd.PointId
	for {
		points, err := s.client.Scroll(ctx, &qd.ScrollPoints{
			CollectionName: s.collection,
			Offset:         offset,
			Limit:          qd.PtrOf(uint32(scrollPage)),
			WithPayload:    qd.NewWithPayload(true),
			WithVectors:    qd.NewWithVectors(true),
		})
		if err != nil {
			return fmt.Errorf("scroll collection %s: %w", s.collection, err)
		}
		for _, p := range points {
			entry, err := entryFromPoint(p)
			if err != nil {
				return err
			}
			if err := s.mem.Append(entry); err != nil {
				return fmt.Errorf("replay point %d: %w", entry.Seq, err)
			}
		}
		if len(points) < scrollPage {
			return nil
		}
		offset = qd.NewIDNum(points[len(points)-1].GetId().GetNum() + 1)
	}
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
	if s.mem.Len() == 0 {
		if err := s.resetCollection(ctx, len(emb)); err != nil {
			return "", err
		}
	}
	_, err = s.client.Upsert(ctx, &qd.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qd.PtrOf(true),
		Points: []*qd.PointStruct{{
			Id:      qd.NewIDNum(entry.Seq),
			Vectors: &qd.Vectors{
				VectorsOptions: &qd.Vectors_Vector{Vector: &qd.Vector{Data: entry.Embedding}},
			},
			Payload: payloadFor(entry),
		}},
	})
	if err != nil {
		return "", fmt.Errorf("upsert point %d: %w", entry.Seq, err)
	}
	if err := s.mem.Append(entry); err != nil {
		return "", err
	}
	return entry.ID, nil
}

// resetCollection recreates the collection for a new dimensionality. It is
// only called while the index is empty. Scoring happens locally, so the
// collection uses dot distance, under which the server stores vectors as given.
func (s *Store) resetCollection(ctx context.Context, dimension int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", s.collection, err)
	}
	if exists {
		if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
			return fmt.Errorf("drop collection %s: %w", s.collection, err)
		}
	}
	err = s.client.CreateCollection(ctx, &qd.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qd.NewVectorsConfig(&qd.VectorParams{
			Size:     uint64(dimension),
			Distance: qd.Distance_Dot,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", s.collection, err)
	}
	return nil
}

// Remove deletes every point of documentID and returns how many were removed.
func (s *Store) Remove(ctx context.Context, documentID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mem.Len() == 0 {
		return 0, nil
	}
	_, err := s.client.Delete(ctx, &qd.DeletePoints{
		CollectionName: s.collection,
		Wait:           qd.PtrOf(true),
		Points: &qd.PointsSelector{
			PointsSelectorOneOf: &qd.PointsSelector_Filter{
				Filter: &qd.Filter{Must: []*qd.Condition{qd.NewMatch("document_id", documentID)}},
			},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("delete points of %s: %w", documentID, err)
	}
	return s.mem.Remove(ctx, documentID)
}

// Scan returns all entries in insertion order.
func (s *Store) Scan(ctx context.Context) ([]domain.IndexEntry, error) { return s.mem.Scan(ctx) }

// Len returns the number of stored entries.
func (s *Store) Len() int { return s.mem.Len() }

// Dimension returns the fixed dimensionality, or 0 while empty.
func (s *Store) Dimension() int { return s.mem.Dimension() }

// Close releases the gRPC connection.
func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close qdrant: %w", err)
	}
	return nil
}

func payloadFor(e domain.IndexEntry) map[string]*qd.Value {
	c := e.Chunk
	payload := map[string]*qd.Value{
		"entry_id":     qd.NewValueString(e.ID),
		"document_id":  qd.NewValueString(c.DocumentID),
		"chunk_id":     qd.NewValueString(c.ID),
		"chunk_index":  qd.NewValueInt(int64(c.Index)),
		"text":         qd.NewValueString(c.Text),
		"start_offset": qd.NewValueInt(int64(c.StartOffset)),
		"end_offset":   qd.NewValueInt(int64(c.EndOffset)),
		"source":       qd.NewValueString(c.Metadata.Source),
		"subject":      qd.NewValueString(c.Metadata.Subject),
		"chapter":      qd.NewValueString(c.Metadata.Chapter),
		"language":     qd.NewValueString(string(c.Metadata.Language)),
	}
	if c.Metadata.Page != nil {
		payload["page"] = qd.NewValueInt(int64(*c.Metadata.Page))
	}
	if c.Metadata.ClassLevel != nil {
		payload["class_level"] = qd.NewValueInt(int64(*c.Metadata.ClassLevel))
	}
	return payload
}

func entryFromPoint(p *qd.RetrievedPoint) (domain.IndexEntry, error) {
	seq := p.GetId().GetNum()
	if seq == 0 {
		return domain.IndexEntry{}, errors.New("qdrant point without numeric id")
	}
	pl := p.GetPayload()
	str := func(k string) string { return pl[k].GetStringValue() }
	num := func(k string) int { return int(pl[k].GetIntegerValue()) }
	optNum := func(k string) *int {
		if _, ok := pl[k]; !ok {
			return nil
		}
		v := num(k)
		return &v
	}
	return domain.IndexEntry{
		ID:  str("entry_id"),
		Seq: seq,
		Chunk: domain.Chunk{
			ID:          str("chunk_id"),
			DocumentID:  str("document_id"),
			Text:        str("text"),
			StartOffset: num("start_offset"),
			EndOffset:   num("end_offset"),
			Index:       num("chunk_index"),
			Metadata: domain.Metadata{
				Source:     str("source"),
				Page:       optNum("page"),
				Subject:    str("subject"),
				ClassLevel: optNum("class_level"),
				Chapter:    str("chapter"),
				Language:   domain.Language(str("language")),
			},
		},
		Embedding: vectorData(p.GetVectors()),
	}, nil
}

func vectorData(v *qd.VectorsOutput) domain.Embedding {
	out := v.GetVector()
	if dense := out.GetDense(); dense != nil {
		return dense.GetData()
	}
	return out.GetData()
}
