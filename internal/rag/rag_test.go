package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"paper-rag/internal/chromemdb"
	"paper-rag/internal/config"
	"paper-rag/internal/db"
	"paper-rag/internal/models"
)

type constEmbedder struct{ v []float32 }

func (c constEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = c.v
	}
	return out, nil
}

func (c constEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return c.v, nil
}

type mapChunks map[string]db.ChunkRecord

func (m mapChunks) GetChunks(ctx context.Context, ids []string) ([]db.ChunkRecord, error) {
	var out []db.ChunkRecord
	for _, id := range ids {
		if r, ok := m[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

type recordingGenerator struct {
	prompts []string
	answer  string
	err     error
}

func (g *recordingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return g.answer, g.err
}

func newVectors(t *testing.T, ids ...string) *chromemdb.VectorDBManager {
	t.Helper()
	m, err := chromemdb.NewVectorDBManager(&config.VectorConfig{InMemory: true, Collection: "rag_test"}, "")
	if err != nil {
		t.Fatal(err)
	}
	for i, id := range ids {
		emb := []float32{1, float32(i + 1)}
		if err := m.Upsert(context.Background(), models.VectorEntry{ID: id, Content: id, Embedding: emb}); err != nil {
			t.Fatal(err)
		}
	}
	return m
}

func rows(ids ...string) mapChunks {
	m := mapChunks{}
	for _, id := range ids {
		m[id] = db.ChunkRecord{ID: id, PaperFilename: "paper.pdf", SectionTitle: "3 Model", ChunkText: "text " + id}
	}
	return m
}

func TestQuery_TopKBeyondCorpus(t *testing.T) {
	gen := &recordingGenerator{answer: "42"}
	r := NewRAG(rows("a", "b", "c"), newVectors(t, "a", "b", "c"), constEmbedder{[]float32{1, 1}}, gen, 5)

	resp, err := r.Query(context.Background(), "what is it?", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Sources) != 3 {
		t.Errorf("expected 3 sources, got %d", len(resp.Sources))
	}
	if resp.Answer != "42" || resp.Question != "what is it?" {
		t.Errorf("got %+v", resp)
	}
	if len(gen.prompts) != 1 || !strings.Contains(gen.prompts[0], "Question: what is it?") || !strings.Contains(gen.prompts[0], "text a") {
		t.Errorf("prompt: %q", gen.prompts)
	}
}

func TestQuery_SkipsMissingRows(t *testing.T) {
	gen := &recordingGenerator{answer: "ok"}
	r := NewRAG(rows("a"), newVectors(t, "a", "ghost"), constEmbedder{[]float32{1, 1}}, gen, 5)

	resp, err := r.Query(context.Background(), "q", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Title != "3 Model" || resp.Sources[0].Filename != "paper.pdf" {
		t.Errorf("sources: %+v", resp.Sources)
	}
}

func TestQuery_NoContext(t *testing.T) {
	gen := &recordingGenerator{answer: "should not be used"}
	r := NewRAG(rows(), newVectors(t), constEmbedder{[]float32{1, 1}}, gen, 5)

	resp, err := r.Query(context.Background(), "anything", 3)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Answer != models.NoContextAnswer || len(resp.Sources) != 0 {
		t.Errorf("got %+v", resp)
	}
	if len(gen.prompts) != 0 {
		t.Error("generator called without context")
	}
}

func TestQuery_Errors(t *testing.T) {
	boom := errors.New("llm down")
	r := NewRAG(rows("a"), newVectors(t, "a"), constEmbedder{[]float32{1, 1}}, &recordingGenerator{err: boom}, 5)

	if _, err := r.Query(context.Background(), "   ", 5); !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("empty question: %v", err)
	}
	if _, err := r.Query(context.Background(), "q", 5); !errors.Is(err, boom) {
		t.Errorf("generator error: %v", err)
	}
}
