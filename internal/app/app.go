// Package app wires the stores, models and services for one run of the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paper-rag/internal/chromemdb"
	"paper-rag/internal/config"
	"paper-rag/internal/db"
	"paper-rag/internal/embedding"
	"paper-rag/internal/helper"
	"paper-rag/internal/ingest"
	"paper-rag/internal/llmservice"
	"paper-rag/internal/parser"
	"paper-rag/internal/pgvectordb"
	"paper-rag/internal/rag"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/uptrace/bun"
)

// VectorStore is what both ingestion and querying need from a vector backend.
type VectorStore interface {
	ingest.VectorStore
	rag.VectorSearcher
}

// Services holds the store handles for a run. Close releases them.
type Services struct {
	Config   *config.Config
	DB       *bun.DB
	Store    *db.Store
	Vectors  VectorStore
	Chromem  *chromemdb.VectorDBManager
	Embedder embeddings.Embedder

	generator llmservice.Generator
}

// Open connects to the relational store (waiting for it to come up), creates the schema,
// and opens the vector store and embedder.
func Open(ctx context.Context, cfg *config.Config) (*Services, error) {
	bunDB, err := db.ConnectDB(&cfg.Database)
	if err != nil {
		return nil, err
	}
	s := &Services{Config: cfg, DB: bunDB, Store: db.NewStore(bunDB)}

	if err := WaitForServices(ctx, cfg.Bootstrap, s.Store.Ping); err != nil {
		s.Close()
		return nil, err
	}
	if err := db.InitDB(ctx, bunDB); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := s.openVectors(ctx); err != nil {
		s.Close()
		return nil, err
	}

	s.Embedder, err = embedding.New(&cfg.EmbedLLM)
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Services) openVectors(ctx context.Context) error {
	cfg := s.Config
	switch cfg.Vector.Backend {
	case "chromem", "":
		if !cfg.Vector.InMemory {
			if err := helper.CreateFolder(cfg.Vector.Path); err != nil {
				return err
			}
		}
		m, err := chromemdb.NewVectorDBManager(&cfg.Vector, cfg.RAG.EncryptionKey)
		if err != nil {
			return err
		}
		s.Chromem = m
		s.Vectors = m
	case "pgvector":
		if cfg.Database.Driver == "sqlite" {
			return errors.New("pgvector backend needs a postgres database")
		}
		store := pgvectordb.New(s.DB, cfg.Vector.Dimensions)
		if err := store.InitSchema(ctx); err != nil {
			return err
		}
		s.Vectors = store
	default:
		return fmt.Errorf("unknown vector backend %q", cfg.Vector.Backend)
	}
	log.Debug().Str("backend", cfg.Vector.Backend).Msg("Vector store ready")
	return nil
}

func (s *Services) Coordinator() *ingest.Coordinator {
	return ingest.NewCoordinator(s.Store, s.Vectors, s.Embedder, parser.NewChunker(s.Config.RAG))
}

// RAG creates the chat generator on first use; ingestion never needs one.
func (s *Services) RAG(ctx context.Context) (*rag.RAG, error) {
	if s.generator == nil {
		g, err := llmservice.New(ctx, &s.Config.ChatLLM)
		if err != nil {
			return nil, err
		}
		s.generator = g
	}
	return rag.NewRAG(s.Store, s.Vectors, s.Embedder, s.generator, s.Config.RAG.TopK), nil
}

// Health checks both stores.
func (s *Services) Health(ctx context.Context) error {
	if err := s.Store.Ping(ctx); err != nil {
		return fmt.Errorf("relational store: %w", err)
	}
	if _, err := s.Vectors.Count(ctx); err != nil {
		return fmt.Errorf("vector store: %w", err)
	}
	return nil
}

func (s *Services) Close() {
	if c, ok := s.generator.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing generator")
		}
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing database")
		}
	}
}

// WaitForServices retries ping until it succeeds or the retry budget runs out.
func WaitForServices(ctx context.Context, cfg config.BootstrapConfig, ping func(context.Context) error) error {
	tries := cfg.MaxRetries
	if tries <= 0 {
		tries = 1
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, ping(ctx)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(delay)),
		backoff.WithMaxTries(uint(tries)),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).Dur("retry_in", next).Msg("Waiting for database")
		}),
	)
	if err != nil {
		return fmt.Errorf("database not ready after %d attempts: %w", tries, err)
	}
	return nil
}
