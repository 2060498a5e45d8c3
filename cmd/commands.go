package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"paper-rag/internal/app"
	"paper-rag/internal/db"
	"paper-rag/internal/helper"
	"paper-rag/internal/ingest"
	"paper-rag/internal/models"
	"paper-rag/internal/parser"
	"paper-rag/internal/server"
)

func openServices(ctx context.Context) (*app.Services, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.Open(ctx, cfg)
}

func newInitCmd() *cobra.Command {
	var drop bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the relational schema and vector collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if drop {
				bunDB, err := db.ConnectDB(&cfg.Database)
				if err != nil {
					return err
				}
				err = app.WaitForServices(ctx, cfg.Bootstrap, db.NewStore(bunDB).Ping)
				if err == nil {
					err = db.DropTables(ctx, bunDB)
				}
				bunDB.Close()
				if err != nil {
					return err
				}
				log.Warn().Msg("Dropped existing tables")
			}

			s, err := app.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()
			if drop {
				if err := s.Vectors.Reset(ctx); err != nil {
					return err
				}
			}
			log.Info().Str("vector_backend", cfg.Vector.Backend).Msg("Stores initialized")
			return nil
		},
	}
	cmd.Flags().BoolVar(&drop, "drop", false, "drop existing tables and vectors first")
	return cmd
}

func newIngestCmd() *cobra.Command {
	var (
		file   string
		dir    string
		scope  string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest one file or the configured directory into both stores",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if dryRun {
				if file == "" {
					return errors.New("--dry-run needs --file")
				}
				return previewFile(file)
			}

			s, err := openServices(ctx)
			if err != nil {
				return err
			}
			defer s.Close()
			coord := s.Coordinator()

			if file != "" {
				cs, err := ingest.ParseClearScope(scope)
				if err != nil {
					return err
				}
				res, err := coord.ProcessFile(ctx, file, cs)
				if err != nil {
					return err
				}
				fmt.Printf("%s: %d pages, %d chunks\n", res.Filename, res.Pages, res.Chunks)
				return nil
			}

			return ingestDirectory(ctx, s, dir, cmd.Flags().Changed("clear"), scope)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "single file to ingest")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "directory to ingest (defaults to ingest.directory)")
	cmd.Flags().StringVar(&scope, "clear", "file", "what to clear first: none, file or all")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print pages and chunks without storing anything")
	return cmd
}

func previewFile(path string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	coord := ingest.NewCoordinator(nil, nil, nil, parser.NewChunker(cfg.RAG))
	pages, chunks, err := coord.Preview(path)
	if err != nil {
		return err
	}
	log.Info().Int("pages", len(pages)).Int("chunks", len(chunks)).Msg("Dry run")
	helper.PrettyPrint(chunks)
	return nil
}

// ingestDirectory runs a directory ingestion. The config decides whether both stores are
// wiped first unless --clear was given explicitly.
func ingestDirectory(ctx context.Context, s *app.Services, dir string, clearSet bool, clearFlag string) error {
	cfg := s.Config
	if dir == "" {
		dir = cfg.Ingest.Directory
	}
	clearExisting := cfg.Ingest.ClearExistingOrDefault()
	if clearSet {
		scope, err := ingest.ParseClearScope(clearFlag)
		if err != nil {
			return err
		}
		clearExisting = scope == ingest.ClearAll
	}

	report, err := s.Coordinator().ProcessDirectory(ctx, dir, cfg.Ingest.Extensions, clearExisting)
	if err != nil {
		return err
	}
	for _, f := range report.Failed {
		fmt.Printf("FAILED %s: %s\n", f.Filename, f.Error)
	}
	fmt.Printf("processed %d files, %d chunks, %d failed\n", len(report.Processed), report.TotalChunks(), len(report.Failed))
	if report.AllFailed() {
		return errors.New("every document failed to ingest")
	}
	return nil
}

func newQueryCmd() *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Answer a question from the ingested papers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openServices(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			r, err := s.RAG(ctx)
			if err != nil {
				return err
			}
			question := strings.Join(args, " ")
			resp, err := r.Query(ctx, question, topK)
			if err != nil {
				return err
			}
			printResponse(resp)
			return nil
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of chunks to retrieve (defaults to rag.top_k)")
	return cmd
}

func printResponse(resp *models.PromptResponse) {
	log.Info().Msg("Question: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", resp.Question)

	log.Info().Msg("Sources: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	for _, src := range resp.Sources {
		fmt.Printf("- %s / %s\n", src.Filename, src.Title)
	}
	fmt.Println()

	log.Info().Msg("Answer: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", resp.Answer)
}

func newServeCmd() *cobra.Command {
	var ingestFirst bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := openServices(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			if ingestFirst {
				if err := ingestDirectory(ctx, s, "", false, ""); err != nil {
					return err
				}
			}

			r, err := s.RAG(ctx)
			if err != nil {
				return err
			}
			srv := server.NewServer(r, s.Health, &s.Config.Server, s.Config.RAG.TopK)

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			log.Info().Msg("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Stop(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&ingestFirst, "ingest", false, "ingest the configured directory before serving")
	return cmd
}

func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Remove chunks whose vector write never completed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openServices(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.Coordinator().Reconcile(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("removed %d pending chunks\n", n)
			return nil
		},
	}
}

func newSnapshotCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Export or import the chromem vector collection",
	}
	cmd.PersistentFlags().StringVarP(&path, "path", "p", "", "snapshot file (defaults to a file next to the collection)")

	run := func(export bool) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openServices(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			if s.Chromem == nil {
				return fmt.Errorf("snapshots need the chromem backend, not %q", s.Config.Vector.Backend)
			}
			target := path
			if target == "" {
				target = s.Chromem.SnapshotPath()
			}
			if export {
				err = s.Chromem.Export(ctx, target)
			} else {
				err = s.Chromem.Import(ctx, target)
			}
			if err != nil {
				return err
			}
			log.Info().Str("path", target).Bool("export", export).Msg("Snapshot done")
			return nil
		}
	}

	cmd.AddCommand(
		&cobra.Command{Use: "export", Short: "Write the collection to a snapshot file", RunE: run(true)},
		&cobra.Command{Use: "import", Short: "Load the collection from a snapshot file", RunE: run(false)},
	)
	return cmd
}
