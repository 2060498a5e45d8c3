package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	"paper-rag/internal/config"
	"paper-rag/internal/models"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
)

// VectorDBManager encapsulates the chromem-go database operations
type VectorDBManager struct {
	db            *chromem.DB
	collection    *chromem.Collection
	name          string
	dbPath        string
	compress      bool
	encryptionKey string
}

// NewVectorDBManager opens (or creates) the database and its collection.
func NewVectorDBManager(cfg *config.VectorConfig, encryptionKey string) (*VectorDBManager, error) {
	var db *chromem.DB
	var err error
	if cfg.InMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	m := &VectorDBManager{
		db:            db,
		name:          cfg.Collection,
		dbPath:        cfg.Path,
		compress:      cfg.Compress,
		encryptionKey: encryptionKey,
	}
	if _, err := m.getOrCreateCollection(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *VectorDBManager) getOrCreateCollection() (*chromem.Collection, error) {
	c, err := m.db.GetOrCreateCollection(m.name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	return c, nil
}

// Upsert adds entries, replacing any existing entry with the same ID.
func (m *VectorDBManager) Upsert(ctx context.Context, entries ...models.VectorEntry) error {
	if len(entries) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		docs[i] = chromem.Document{
			ID:        e.ID,
			Content:   e.Content,
			Metadata:  e.Metadata,
			Embedding: e.Embedding,
		}
	}
	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Query returns up to topK nearest entries. Asking for more than the collection holds
// returns everything there is.
func (m *VectorDBManager) Query(ctx context.Context, embedding []float32, topK int, where map[string]string) ([]models.VectorHit, error) {
	if len(embedding) == 0 {
		return nil, errors.New("query embedding is required")
	}
	n := min(topK, m.collection.Count())
	if n <= 0 {
		return nil, nil
	}

	results, err := m.collection.QueryEmbedding(ctx, embedding, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	hits := make([]models.VectorHit, len(results))
	for i, r := range results {
		hits[i] = models.VectorHit{
			ID:         r.ID,
			Content:    r.Content,
			Metadata:   r.Metadata,
			Similarity: r.Similarity,
		}
	}
	return hits, nil
}

func (m *VectorDBManager) DeleteByFilename(ctx context.Context, filename string) error {
	err := m.collection.Delete(ctx, map[string]string{models.MetaFilename: filename}, nil)
	if err != nil {
		return fmt.Errorf("failed to delete vectors for %s: %w", filename, err)
	}
	return nil
}

// DeleteIDs removes the given entries; unknown IDs are ignored.
func (m *VectorDBManager) DeleteIDs(ctx context.Context, ids ...string) error {
	var existing []string
	for _, id := range ids {
		if _, err := m.collection.GetByID(ctx, id); err == nil {
			existing = append(existing, id)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := m.collection.Delete(ctx, nil, nil, existing...); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	return nil
}

// Reset drops the collection and creates it again empty.
func (m *VectorDBManager) Reset(ctx context.Context) error {
	if err := m.db.DeleteCollection(m.name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	_, err := m.getOrCreateCollection()
	return err
}

func (m *VectorDBManager) Count(ctx context.Context) (int, error) {
	return m.collection.Count(), nil
}

func (m *VectorDBManager) Has(ctx context.Context, id string) bool {
	_, err := m.collection.GetByID(ctx, id)
	return err == nil
}

// SnapshotPath is where Export writes when no path is given.
func (m *VectorDBManager) SnapshotPath() string {
	return filepath.Join(m.dbPath, m.name+".chromem")
}

// Export writes the collection to path, gzip-compressed and AES-encrypted when configured.
func (m *VectorDBManager) Export(ctx context.Context, path string) error {
	if path == "" {
		path = m.SnapshotPath()
	}
	log.Debug().Str("collection", m.name).Str("file", path).Bool("compress", m.compress).Msg("Exporting collection")

	if err := m.db.ExportToFile(path, m.compress, m.encryptionKey, m.name); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import replaces the collection with the one stored at path.
func (m *VectorDBManager) Import(ctx context.Context, path string) error {
	if path == "" {
		path = m.SnapshotPath()
	}
	if err := m.db.ImportFromFile(path, m.encryptionKey, m.name); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	c := m.db.GetCollection(m.name, nil)
	if c == nil {
		return fmt.Errorf("collection %s not found in %s", m.name, path)
	}
	m.collection = c
	return nil
}
