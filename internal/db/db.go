package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"paper-rag/internal/config"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/schema"
	_ "modernc.org/sqlite"
)

var (
	ErrChunkNotFound    = errors.New("chunk not found")
	ErrDocumentNotFound = errors.New("document not found")
)

// Document is one ingested file. Reprocessing a filename overwrites the row.
type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`
	Filename      string    `bun:"filename,pk"`
	FilePath      string    `bun:"file_path,notnull"`
	TotalChunks   int       `bun:"total_chunks,notnull"`
	ProcessedAt   time.Time `bun:"processed_at,notnull"`
}

// ChunkRecord holds the text of one chunk. ID is shared with the vector entry.
// VectorSynced stays false until the vector write for the same ID has succeeded.
type ChunkRecord struct {
	bun.BaseModel `bun:"table:chunks,alias:c"`
	ID            string    `bun:"id,pk"`
	PaperFilename string    `bun:"paper_filename,notnull"`
	SectionTitle  string    `bun:"section_title,notnull"`
	ChunkText     string    `bun:"chunk_text,notnull"`
	ChunkIndex    int       `bun:"chunk_index,notnull"`
	PageNumber    int       `bun:"page_num,notnull"`
	VectorSynced  bool      `bun:"vector_synced,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
}

func NewDB(sqldb *sql.DB, dialect schema.Dialect, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, dialect)
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the relational store selected by cfg.Driver.
func ConnectDB(cfg *config.DatabaseConfig) (*bun.DB, error) {
	switch cfg.Driver {
	case "pg", "":
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.PostgresDSN())))
		return NewDB(sqldb, pgdialect.New(), cfg.Debug), nil
	case "postgres":
		sqldb, err := sql.Open("postgres", cfg.PostgresDSN())
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		return NewDB(sqldb, pgdialect.New(), cfg.Debug), nil
	case "sqlite":
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
				return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}
		sqldb, err := sql.Open("sqlite", cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		// one connection keeps :memory: databases alive and serializes writers
		sqldb.SetMaxOpenConns(1)
		return NewDB(sqldb, sqlitedialect.New(), cfg.Debug), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func InitDB(ctx context.Context, db *bun.DB) error {
	for _, model := range []interface{}{(*Document)(nil), (*ChunkRecord)(nil)} {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	_, err := db.NewCreateIndex().
		Model((*ChunkRecord)(nil)).
		Index("idx_chunks_paper_filename").
		Column("paper_filename").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

func DropTables(ctx context.Context, db *bun.DB) error {
	for _, model := range []interface{}{(*ChunkRecord)(nil), (*Document)(nil)} {
		if _, err := db.NewDropTable().Model(model).IfExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Store is the relational side of the ingestion pipeline.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *bun.DB {
	return s.db
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertDocument inserts the document or overwrites file_path, total_chunks and processed_at.
func (s *Store) UpsertDocument(ctx context.Context, doc *Document) error {
	if doc.ProcessedAt.IsZero() {
		doc.ProcessedAt = time.Now().UTC()
	}
	_, err := s.db.NewInsert().
		Model(doc).
		On("CONFLICT (filename) DO UPDATE").
		Set("file_path = EXCLUDED.file_path").
		Set("total_chunks = EXCLUDED.total_chunks").
		Set("processed_at = EXCLUDED.processed_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", doc.Filename, err)
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, filename string) (*Document, error) {
	doc := new(Document)
	err := s.db.NewSelect().Model(doc).Where("filename = ?", filename).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	var docs []Document
	err := s.db.NewSelect().Model(&docs).Order("filename ASC").Scan(ctx)
	return docs, err
}

func (s *Store) UpsertChunk(ctx context.Context, rec *ChunkRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NewInsert().
		Model(rec).
		On("CONFLICT (id) DO UPDATE").
		Set("paper_filename = EXCLUDED.paper_filename").
		Set("section_title = EXCLUDED.section_title").
		Set("chunk_text = EXCLUDED.chunk_text").
		Set("chunk_index = EXCLUDED.chunk_index").
		Set("page_num = EXCLUDED.page_num").
		Set("vector_synced = EXCLUDED.vector_synced").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert chunk %s: %w", rec.ID, err)
	}
	return nil
}

// MarkSynced records that the vector entry for id has been written.
func (s *Store) MarkSynced(ctx context.Context, id string) error {
	res, err := s.db.NewUpdate().
		Model((*ChunkRecord)(nil)).
		Set("vector_synced = ?", true).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark chunk %s synced: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrChunkNotFound
	}
	return nil
}

// GetChunks returns the records for ids in the order given. Unknown ids are skipped.
func (s *Store) GetChunks(ctx context.Context, ids []string) ([]ChunkRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []ChunkRecord
	err := s.db.NewSelect().Model(&rows).Where("id IN (?)", bun.In(ids)).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chunks: %w", err)
	}

	byID := make(map[string]ChunkRecord, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	ordered := make([]ChunkRecord, 0, len(rows))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			ordered = append(ordered, r)
			delete(byID, id)
		}
	}
	return ordered, nil
}

// ListChunks returns a document's chunks in index order.
func (s *Store) ListChunks(ctx context.Context, filename string) ([]ChunkRecord, error) {
	var rows []ChunkRecord
	err := s.db.NewSelect().
		Model(&rows).
		Where("paper_filename = ?", filename).
		Order("chunk_index ASC").
		Scan(ctx)
	return rows, err
}

// CountChunks counts chunk rows for filename, or all rows when filename is empty.
func (s *Store) CountChunks(ctx context.Context, filename string) (int, error) {
	q := s.db.NewSelect().Model((*ChunkRecord)(nil))
	if filename != "" {
		q = q.Where("paper_filename = ?", filename)
	}
	return q.Count(ctx)
}

// PendingChunkIDs lists chunks whose vector write never completed.
func (s *Store) PendingChunkIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.NewSelect().
		Model((*ChunkRecord)(nil)).
		Column("id").
		Where("vector_synced = ?", false).
		Scan(ctx, &ids)
	return ids, err
}

func (s *Store) DeleteChunk(ctx context.Context, id string) error {
	_, err := s.db.NewDelete().Model((*ChunkRecord)(nil)).Where("id = ?", id).Exec(ctx)
	return err
}

func (s *Store) DeleteChunks(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.db.NewDelete().Model((*ChunkRecord)(nil)).Where("id IN (?)", bun.In(ids)).Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteByFilename removes a document and its chunks, returning the number of chunks removed.
func (s *Store) DeleteByFilename(ctx context.Context, filename string) (int64, error) {
	var removed int64
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().Model((*ChunkRecord)(nil)).Where("paper_filename = ?", filename).Exec(ctx)
		if err != nil {
			return err
		}
		removed, _ = res.RowsAffected()
		_, err = tx.NewDelete().Model((*Document)(nil)).Where("filename = ?", filename).Exec(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s: %w", filename, err)
	}
	return removed, nil
}

// DeleteAll empties both tables.
func (s *Store) DeleteAll(ctx context.Context) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*ChunkRecord)(nil)).Where("1 = 1").Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewDelete().Model((*Document)(nil)).Where("1 = 1").Exec(ctx)
		return err
	})
}
