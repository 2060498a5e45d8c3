// Package pgvectordb keeps vector entries in Postgres using the pgvector extension,
// next to the relational tables.
package pgvectordb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paper-rag/internal/models"

	"github.com/pgvector/pgvector-go"
	"github.com/uptrace/bun"
)

type Embedding struct {
	bun.BaseModel `bun:"table:chunk_embeddings,alias:v"`
	ID            string            `bun:"id,pk"`
	Content       string            `bun:"content,notnull"`
	Embedding     pgvector.Vector   `bun:"embedding,notnull"`
	Metadata      map[string]string `bun:"metadata,type:jsonb,notnull"`
	UpdatedAt     time.Time         `bun:"updated_at,notnull"`

	Similarity float64 `bun:"similarity,scanonly"`
}

type Store struct {
	db         *bun.DB
	dimensions int
}

func New(db *bun.DB, dimensions int) *Store {
	return &Store{db: db, dimensions: dimensions}
}

// InitSchema enables the extension and creates the embeddings table with a fixed dimension.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	// the vector width is only known at runtime, so the DDL is written out here
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunk_embeddings (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		embedding vector(%d) NOT NULL,
		metadata JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`, s.dimensions))
	return err
}

func (s *Store) Upsert(ctx context.Context, entries ...models.VectorEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]Embedding, len(entries))
	now := time.Now().UTC()
	for i, e := range entries {
		if s.dimensions > 0 && len(e.Embedding) != s.dimensions {
			return fmt.Errorf("embedding for %s has %d dimensions, want %d", e.ID, len(e.Embedding), s.dimensions)
		}
		rows[i] = Embedding{
			ID:        e.ID,
			Content:   e.Content,
			Embedding: pgvector.NewVector(e.Embedding),
			Metadata:  e.Metadata,
			UpdatedAt: now,
		}
	}
	_, err := s.db.NewInsert().
		Model(&rows).
		On("CONFLICT (id) DO UPDATE").
		Set("content = EXCLUDED.content").
		Set("embedding = EXCLUDED.embedding").
		Set("metadata = EXCLUDED.metadata").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert embeddings: %w", err)
	}
	return nil
}

// Query orders by cosine distance and reports similarity as 1 - distance.
func (s *Store) Query(ctx context.Context, embedding []float32, topK int, where map[string]string) ([]models.VectorHit, error) {
	if len(embedding) == 0 {
		return nil, errors.New("query embedding is required")
	}
	if topK <= 0 {
		return nil, nil
	}
	vec := pgvector.NewVector(embedding)

	var rows []Embedding
	q := s.db.NewSelect().
		Model(&rows).
		Column("id", "content", "metadata").
		ColumnExpr("1 - (embedding <=> ?) AS similarity", vec)
	for k, v := range where {
		q = q.Where("metadata->>? = ?", k, v)
	}
	err := q.OrderExpr("embedding <=> ?", vec).Limit(topK).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}

	hits := make([]models.VectorHit, len(rows))
	for i, r := range rows {
		hits[i] = models.VectorHit{
			ID:         r.ID,
			Content:    r.Content,
			Metadata:   r.Metadata,
			Similarity: float32(r.Similarity),
		}
	}
	return hits, nil
}

func (s *Store) DeleteByFilename(ctx context.Context, filename string) error {
	_, err := s.db.NewDelete().
		Model((*Embedding)(nil)).
		Where("metadata->>? = ?", models.MetaFilename, filename).
		Exec(ctx)
	return err
}

func (s *Store) DeleteIDs(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.NewDelete().Model((*Embedding)(nil)).Where("id IN (?)", bun.In(ids)).Exec(ctx)
	return err
}

func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.NewTruncateTable().Model((*Embedding)(nil)).Exec(ctx)
	return err
}

func (s *Store) Count(ctx context.Context) (int, error) {
	return s.db.NewSelect().Model((*Embedding)(nil)).Count(ctx)
}
