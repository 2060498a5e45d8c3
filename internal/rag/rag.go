package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"paper-rag/internal/db"
	"paper-rag/internal/embedding"
	"paper-rag/internal/llmservice"
	"paper-rag/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
)

var ErrEmptyQuestion = errors.New("question must not be empty")

// VectorSearcher finds the chunk ids nearest to an embedding.
type VectorSearcher interface {
	Query(ctx context.Context, embedding []float32, topK int, where map[string]string) ([]models.VectorHit, error)
}

// ChunkReader loads chunk bodies by id, in the order asked.
type ChunkReader interface {
	GetChunks(ctx context.Context, ids []string) ([]db.ChunkRecord, error)
}

type RAG struct {
	chunks    ChunkReader
	vectors   VectorSearcher
	embedder  embeddings.Embedder
	generator llmservice.Generator
	topK      int
}

func NewRAG(chunks ChunkReader, vectors VectorSearcher, embedder embeddings.Embedder, generator llmservice.Generator, defaultTopK int) *RAG {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &RAG{chunks: chunks, vectors: vectors, embedder: embedder, generator: generator, topK: defaultTopK}
}

// Query answers question from the topK nearest chunks. Ids found in the vector store but
// missing from the relational store are skipped.
func (r *RAG) Query(ctx context.Context, question string, topK int) (*models.PromptResponse, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if topK <= 0 {
		topK = r.topK
	}

	queryEmbedding, err := embedding.GenerateQueryEmbedding(ctx, r.embedder, question)
	if err != nil {
		return nil, err
	}

	hits, err := r.vectors.Query(ctx, queryEmbedding, topK, nil)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}

	records, err := r.chunks.GetChunks(ctx, ids)
	if err != nil {
		return nil, err
	}
	if missing := len(ids) - len(records); missing > 0 {
		log.Warn().Int("missing", missing).Msg("Vector hits without a matching chunk row")
	}

	resp := &models.PromptResponse{Question: question, Sources: []models.Source{}}
	if len(records) == 0 {
		resp.Answer = models.NoContextAnswer
		return resp, nil
	}

	texts := make([]string, len(records))
	for i, rec := range records {
		texts[i] = rec.ChunkText
		resp.Sources = append(resp.Sources, models.Source{
			Filename: rec.PaperFilename,
			Title:    rec.SectionTitle,
			Content:  rec.ChunkText,
		})
	}

	prompt := fmt.Sprintf(models.QueryPromptTemplate, strings.Join(texts, "\n\n"), question)
	answer, err := r.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}
	resp.Answer = answer
	return resp, nil
}
