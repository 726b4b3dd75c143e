// Package evidence implements the Graph-RAG Evidence Store (§4.3):
// content-addressed ingestion of user-provided documents/images into
// chunks, retrieved later by the rag-section/rag-presentation worker
// steps through RAGTransport and by the HTTP retrieve endpoint.
package evidence

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"

	_ "modernc.org/sqlite"

	"github.com/slidecraft/orchestrator/internal/domain"
)

// Embedding is a chunk's vector, stored as JSON text so the same model
// works unmodified across the Postgres and SQLite backends (§9 Design
// Notes: one concrete backend at a time, but the schema isn't tied to
// Postgres-only array support).
type Embedding []float32

func (e Embedding) Value() (driver.Value, error) {
	if len(e) == 0 {
		return nil, nil
	}
	data, err := json.Marshal([]float32(e))
	return string(data), err
}

func (e *Embedding) Scan(src any) error {
	if src == nil {
		*e = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("evidence: unsupported embedding column type %T", src)
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return fmt.Errorf("evidence: scan embedding: %w", err)
	}
	*e = vec
	return nil
}

// DocumentModel is the persisted row for a Document.
type DocumentModel struct {
	bun.BaseModel `bun:"table:documents,alias:d"`

	Key            string              `bun:"key,pk"`
	PresentationID string              `bun:"presentation_id"`
	Name           string              `bun:"name"`
	URL            string              `bun:"url"`
	Kind           domain.DocumentKind `bun:"kind"`
	ContentHash    string              `bun:"content_hash"`
}

// ChunkModel is the persisted row for a Chunk. Embedding is nil until an
// Embedder is configured on the Store.
type ChunkModel struct {
	bun.BaseModel `bun:"table:chunks,alias:c"`

	Key            string    `bun:"key,pk"`
	DocKey         string    `bun:"doc_key"`
	PresentationID string    `bun:"presentation_id"`
	Name           string    `bun:"name"`
	Text           string    `bun:"text"`
	URL            string    `bun:"url"`
	Embedding      Embedding `bun:"embedding"`
}

// Embedder turns a chunk or query's text into a vector, enabling cosine
// similarity retrieval in place of the full-text fallback (§4.3
// Retrieval: "If an embedding index exists ... else full-text").
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store ties ingestion (hashing, text derivation, chunking) to a bun
// database — Postgres via NewStore, sqlite via NewSQLiteStore, or any
// bun.DB via NewStoreWithDB — the same stack the rest of the orchestrator
// persists through (§9 Design Notes: one concrete Evidence Store backend
// at a time).
type Store struct {
	db       *bun.DB
	embedder Embedder
}

// NewStore opens a bun/pgdriver connection to dsn — the production
// backend (§9 Design Notes: one concrete Evidence Store backend at a
// time).
func NewStore(dsn string, embedder Embedder) *Store {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return &Store{db: db, embedder: embedder}
}

// NewStoreWithDB wraps an already-open bun.DB, so callers (tests, a
// sqlite-backed dev mode) can supply any bun dialect without this
// package hard-coding the driver.
func NewStoreWithDB(db *bun.DB, embedder Embedder) *Store {
	return &Store{db: db, embedder: embedder}
}

// NewSQLiteStore opens a file-backed sqlite database at path — the
// zero-config fallback (§9 Design Notes: one abstract interface, one
// concrete backend at a time) used when no Postgres DSN is configured, so
// `/rag/retrieve` and ingestion still work without standing up Postgres.
func NewSQLiteStore(path string, embedder Embedder) (*Store, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("evidence: open sqlite store: %w", err)
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())
	return &Store{db: db, embedder: embedder}, nil
}

// InitSchema creates the documents/chunks tables if absent.
func (s *Store) InitSchema(ctx context.Context) error {
	models := []any{(*DocumentModel)(nil), (*ChunkModel)(nil)}
	for _, m := range models {
		if _, err := s.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("evidence: init schema: %w", err)
		}
	}
	return nil
}

// Ingest implements §4.3 steps 1-3: hash each file, skip it if a document
// with the same (presentation_id, name, content_hash) already exists
// (idempotent re-ingestion), otherwise derive text, chunk it, and persist
// doc + chunks. Returns the number of new documents and chunks written.
func (s *Store) Ingest(ctx context.Context, presentationID string, files []IngestFile) (int, int, error) {
	var docCount, chunkCount int

	for _, f := range files {
		hash := ContentHash(f.Data)
		name := domain.SanitizeName(f.Name)

		exists, err := s.documentExists(ctx, presentationID, name, hash)
		if err != nil {
			return docCount, chunkCount, err
		}
		if exists {
			continue
		}

		text, err := DeriveText(f)
		if err != nil {
			return docCount, chunkCount, fmt.Errorf("evidence: derive text for %q: %w", f.Name, err)
		}

		docKey := uuid.NewString()
		doc := &DocumentModel{
			Key:            docKey,
			PresentationID: presentationID,
			Name:           name,
			URL:            f.URL,
			Kind:           f.Kind,
			ContentHash:    hash,
		}
		if _, err := s.db.NewInsert().Model(doc).Exec(ctx); err != nil {
			return docCount, chunkCount, fmt.Errorf("evidence: insert document: %w", err)
		}
		docCount++

		chunks := domain.SplitIntoChunks(text)
		for _, chunkText := range chunks {
			var embedding Embedding
			if s.embedder != nil {
				vec, embedErr := s.embedder.Embed(ctx, chunkText)
				if embedErr != nil {
					return docCount, chunkCount, fmt.Errorf("evidence: embed chunk: %w", embedErr)
				}
				embedding = vec
			}
			chunk := &ChunkModel{
				Key:            uuid.NewString(),
				DocKey:         docKey,
				PresentationID: presentationID,
				Name:           name,
				Text:           chunkText,
				URL:            f.URL,
				Embedding:      embedding,
			}
			if _, err := s.db.NewInsert().Model(chunk).Exec(ctx); err != nil {
				return docCount, chunkCount, fmt.Errorf("evidence: insert chunk: %w", err)
			}
			chunkCount++
		}
	}

	return docCount, chunkCount, nil
}

func (s *Store) documentExists(ctx context.Context, presentationID, name, hash string) (bool, error) {
	count, err := s.db.NewSelect().
		Model((*DocumentModel)(nil)).
		Where("presentation_id = ?", presentationID).
		Where("name = ?", name).
		Where("content_hash = ?", hash).
		Count(ctx)
	if err != nil {
		return false, fmt.Errorf("evidence: check existing document: %w", err)
	}
	return count > 0, nil
}

// Retrieve implements the §4.3/§6 Retrieval API contract: embedding
// cosine-similarity ranking when an embedder is configured, falling back
// to the §4.3 full-text analyzer otherwise. Results are capped at limit,
// highest score first.
func (s *Store) Retrieve(ctx context.Context, presentationID, query string, limit int) ([]domain.RetrievedChunk, error) {
	var rows []ChunkModel
	q := s.db.NewSelect().Model(&rows).Where("presentation_id = ?", presentationID)
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("evidence: retrieve: %w", err)
	}

	var queryEmbedding []float32
	if s.embedder != nil {
		var err error
		queryEmbedding, err = s.embedder.Embed(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("evidence: embed query: %w", err)
		}
	}

	scored := make([]domain.RetrievedChunk, 0, len(rows))
	for _, row := range rows {
		var score float64
		if queryEmbedding != nil && len(row.Embedding) > 0 {
			score = cosineSimilarity(queryEmbedding, row.Embedding)
		} else {
			score = fullTextScore(query, row.Name, row.Text)
		}
		scored = append(scored, domain.RetrievedChunk{
			ChunkKey: row.Key,
			Name:     row.Name,
			Text:     row.Text,
			URL:      row.URL,
			Score:    score,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// cosineSimilarity is the §4.3 embedding ranking used when an
// Embedder is configured, mirroring the brute-force approach used
// elsewhere in the corpus for a vector store with no native index.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
