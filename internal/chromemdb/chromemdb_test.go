package chromemdb

import (
	"context"
	"path/filepath"
	"testing"

	"paper-rag/internal/config"
	"paper-rag/internal/models"
)

func newTestManager(t *testing.T) *VectorDBManager {
	t.Helper()
	m, err := NewVectorDBManager(&config.VectorConfig{InMemory: true, Collection: "test_chunks", Path: t.TempDir()}, "")
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func entry(id, filename string, emb ...float32) models.VectorEntry {
	return models.VectorEntry{
		ID:        id,
		Content:   "content " + id,
		Embedding: emb,
		Metadata:  map[string]string{models.MetaFilename: filename},
	}
}

func TestQuery_TopKLargerThanCollection(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	err := m.Upsert(ctx,
		entry("a", "x.pdf", 1, 0, 0),
		entry("b", "x.pdf", 0, 1, 0),
		entry("c", "y.pdf", 0, 0, 1),
	)
	if err != nil {
		t.Fatal(err)
	}

	hits, err := m.Query(ctx, []float32{1, 0.1, 0}, 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if hits[0].ID != "a" {
		t.Errorf("nearest should be a, got %s", hits[0].ID)
	}
}

func TestQuery_EmptyCollection(t *testing.T) {
	hits, err := newTestManager(t).Query(context.Background(), []float32{1, 0}, 5, nil)
	if err != nil || hits != nil {
		t.Errorf("got %v, %v", hits, err)
	}
}

func TestUpsert_SameIDReplaces(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	_ = m.Upsert(ctx, entry("a", "x.pdf", 1, 0))
	_ = m.Upsert(ctx, entry("a", "x.pdf", 0, 1))
	if n, _ := m.Count(ctx); n != 1 {
		t.Errorf("count: %d", n)
	}
}

func TestDeletes(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	_ = m.Upsert(ctx,
		entry("a", "x.pdf", 1, 0),
		entry("b", "x.pdf", 0, 1),
		entry("c", "y.pdf", 1, 1),
	)

	if err := m.DeleteByFilename(ctx, "x.pdf"); err != nil {
		t.Fatal(err)
	}
	if m.Has(ctx, "a") || m.Has(ctx, "b") || !m.Has(ctx, "c") {
		t.Error("filename filter removed the wrong entries")
	}

	if err := m.DeleteIDs(ctx, "c", "never-existed"); err != nil {
		t.Fatal(err)
	}
	if n, _ := m.Count(ctx); n != 0 {
		t.Errorf("count after DeleteIDs: %d", n)
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	_ = m.Upsert(ctx, entry("a", "x.pdf", 1, 0))

	if err := m.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := m.Count(ctx); n != 0 {
		t.Errorf("count after reset: %d", n)
	}
	if err := m.Upsert(ctx, entry("b", "x.pdf", 0, 1)); err != nil {
		t.Errorf("collection unusable after reset: %v", err)
	}
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	_ = m.Upsert(ctx, entry("a", "x.pdf", 1, 0), entry("b", "x.pdf", 0, 1))

	path := filepath.Join(t.TempDir(), "snapshot.gob")
	if err := m.Export(ctx, path); err != nil {
		t.Fatal(err)
	}
	if err := m.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	if err := m.Import(ctx, path); err != nil {
		t.Fatal(err)
	}
	if n, _ := m.Count(ctx); n != 2 {
		t.Errorf("count after import: %d", n)
	}
}
