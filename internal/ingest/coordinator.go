package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"paper-rag/internal/db"
	"paper-rag/internal/embedding"
	"paper-rag/internal/helper"
	"paper-rag/internal/models"
	"paper-rag/internal/parser"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
)

// RelationalStore is the chunk and document table access the coordinator needs.
type RelationalStore interface {
	UpsertDocument(ctx context.Context, doc *db.Document) error
	UpsertChunk(ctx context.Context, rec *db.ChunkRecord) error
	MarkSynced(ctx context.Context, id string) error
	DeleteChunk(ctx context.Context, id string) error
	DeleteChunks(ctx context.Context, ids []string) (int64, error)
	DeleteByFilename(ctx context.Context, filename string) (int64, error)
	DeleteAll(ctx context.Context) error
	PendingChunkIDs(ctx context.Context) ([]string, error)
}

// VectorStore is implemented by chromemdb.VectorDBManager and pgvectordb.Store.
type VectorStore interface {
	Upsert(ctx context.Context, entries ...models.VectorEntry) error
	DeleteByFilename(ctx context.Context, filename string) error
	DeleteIDs(ctx context.Context, ids ...string) error
	Reset(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

type ClearScope int

const (
	ClearNone ClearScope = iota
	// ClearFile removes the previous state of the document being processed.
	ClearFile
	// ClearAll empties both stores.
	ClearAll
)

func (s ClearScope) String() string {
	switch s {
	case ClearFile:
		return "file"
	case ClearAll:
		return "all"
	default:
		return "none"
	}
}

func ParseClearScope(s string) (ClearScope, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return ClearNone, nil
	case "file":
		return ClearFile, nil
	case "all":
		return ClearAll, nil
	}
	return ClearNone, fmt.Errorf("invalid clear scope %q (want none, file or all)", s)
}

// Coordinator writes documents into the relational and vector stores under shared chunk ids.
type Coordinator struct {
	store    RelationalStore
	vectors  VectorStore
	embedder embeddings.Embedder
	chunker  *parser.Chunker
	newID    func() (string, error)
}

func NewCoordinator(store RelationalStore, vectors VectorStore, embedder embeddings.Embedder, chunker *parser.Chunker) *Coordinator {
	return &Coordinator{
		store:    store,
		vectors:  vectors,
		embedder: embedder,
		chunker:  chunker,
		newID:    helper.GenerateUUID,
	}
}

// Result summarizes one processed file.
type Result struct {
	Filename string        `json:"filename"`
	Pages    int           `json:"pages"`
	Chunks   int           `json:"chunks"`
	Duration time.Duration `json:"duration"`
}

// Clear removes stored state. A failure to delete a file's vectors is logged and ignored;
// a later full reset removes whatever was left behind.
func (c *Coordinator) Clear(ctx context.Context, scope ClearScope, filename string) error {
	switch scope {
	case ClearAll:
		if err := c.store.DeleteAll(ctx); err != nil {
			return fmt.Errorf("failed to clear relational store: %w", err)
		}
		if err := c.vectors.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset vector collection: %w", err)
		}
		log.Info().Msg("Cleared all documents")
	case ClearFile:
		removed, err := c.store.DeleteByFilename(ctx, filename)
		if err != nil {
			return fmt.Errorf("failed to clear %s: %w", filename, err)
		}
		if err := c.vectors.DeleteByFilename(ctx, filename); err != nil {
			log.Warn().Err(err).Str("filename", filename).Msg("Could not delete vector entries, stale entries remain until a full reset")
		}
		log.Debug().Str("filename", filename).Int64("chunks", removed).Msg("Cleared previous chunks")
	}
	return nil
}

// ProcessDocument stores chunks for filename. Embeddings are generated before the clear
// and before anything is written, so an embedding failure leaves the stores untouched,
// including any earlier copy of the file.
func (c *Coordinator) ProcessDocument(ctx context.Context, filename, filePath string, chunks []models.Chunk, scope ClearScope) error {
	var vectors [][]float32
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, ch := range chunks {
			texts[i] = ch.Content
		}
		var err error
		vectors, err = embedding.GenerateEmbeddings(ctx, c.embedder, texts)
		if err != nil {
			return fmt.Errorf("failed to embed %s: %w", filename, err)
		}
	}

	if err := c.Clear(ctx, scope, filename); err != nil {
		return err
	}

	doc := &db.Document{
		Filename:    filename,
		FilePath:    filePath,
		TotalChunks: len(chunks),
		ProcessedAt: time.Now().UTC(),
	}
	if err := c.store.UpsertDocument(ctx, doc); err != nil {
		return err
	}

	for i, ch := range chunks {
		if err := c.writeChunk(ctx, filename, ch, vectors[i]); err != nil {
			// keep the document row in line with the chunks that made it in
			doc.TotalChunks = i
			if derr := c.store.UpsertDocument(ctx, doc); derr != nil {
				log.Error().Err(derr).Str("filename", filename).Msg("Could not update chunk count after failed write")
			}
			return err
		}
	}
	return nil
}

// writeChunk stores the row first, unsynced, then the vector, then flags the row synced.
// If the vector write fails the row is removed again.
func (c *Coordinator) writeChunk(ctx context.Context, filename string, ch models.Chunk, vector []float32) error {
	id, err := c.newID()
	if err != nil {
		return err
	}

	rec := &db.ChunkRecord{
		ID:            id,
		PaperFilename: filename,
		SectionTitle:  ch.SectionTitle,
		ChunkText:     ch.Content,
		ChunkIndex:    ch.ChunkIndex,
		PageNumber:    ch.PageNumber,
	}
	if err := c.store.UpsertChunk(ctx, rec); err != nil {
		return err
	}

	entry := models.VectorEntry{
		ID:        id,
		Content:   ch.Content,
		Embedding: vector,
		Metadata:  chunkMetadata(filename, ch),
	}
	if err := c.vectors.Upsert(ctx, entry); err != nil {
		if derr := c.store.DeleteChunk(ctx, id); derr != nil {
			log.Error().Err(derr).Str("chunk_id", id).Msg("Could not remove unsynced chunk, left for reconcile")
		}
		return fmt.Errorf("failed to store vector for chunk %d of %s: %w", ch.ChunkIndex, filename, err)
	}

	return c.store.MarkSynced(ctx, id)
}

func chunkMetadata(filename string, ch models.Chunk) map[string]string {
	return map[string]string{
		models.MetaFilename:     filename,
		models.MetaSectionTitle: ch.SectionTitle,
		models.MetaChunkIndex:   strconv.Itoa(ch.ChunkIndex),
		models.MetaPageNum:      strconv.Itoa(ch.PageNumber),
	}
}

// ProcessFile extracts, chunks and stores a single file.
func (c *Coordinator) ProcessFile(ctx context.Context, filePath string, scope ClearScope) (*Result, error) {
	start := time.Now()
	filename := filepath.Base(filePath)

	pages, chunks, err := c.Preview(filePath)
	if err != nil {
		return nil, err
	}
	if err := c.ProcessDocument(ctx, filename, filePath, chunks, scope); err != nil {
		return nil, err
	}

	res := &Result{Filename: filename, Pages: len(pages), Chunks: len(chunks), Duration: time.Since(start)}
	log.Info().Str("filename", filename).Int("pages", res.Pages).Int("chunks", res.Chunks).Dur("took", res.Duration).Msg("Processed document")
	return res, nil
}

// Preview extracts and chunks a file without touching the stores.
func (c *Coordinator) Preview(filePath string) ([]models.Page, []models.Chunk, error) {
	pages, err := parser.ExtractPages(filePath)
	if err != nil {
		return nil, nil, err
	}
	return pages, c.chunker.Chunk(pages), nil
}

// Reconcile removes chunks whose vector write never completed, together with any vector
// entries stored under their ids. It returns the number of rows removed.
func (c *Coordinator) Reconcile(ctx context.Context) (int, error) {
	ids, err := c.store.PendingChunkIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending chunks: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := c.vectors.DeleteIDs(ctx, ids...); err != nil {
		return 0, err
	}
	n, err := c.store.DeleteChunks(ctx, ids)
	if err != nil {
		return 0, err
	}
	log.Warn().Int64("chunks", n).Msg("Removed chunks left unsynced by an interrupted run")
	return int(n), nil
}
