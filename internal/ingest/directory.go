package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

type Failure struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// Report is the outcome of a directory run.
type Report struct {
	Processed []Result  `json:"processed"`
	Failed    []Failure `json:"failed"`
}

func (r *Report) TotalChunks() int {
	total := 0
	for _, p := range r.Processed {
		total += p.Chunks
	}
	return total
}

// AllFailed reports whether there was work and none of it succeeded.
func (r *Report) AllFailed() bool {
	return len(r.Failed) > 0 && len(r.Processed) == 0
}

// ListFiles returns the files in dir whose extension is in extensions, sorted by name.
func ListFiles(dir string, extensions []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = struct{}{}
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := allowed[strings.ToLower(filepath.Ext(e.Name()))]; ok {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// ProcessDirectory ingests every matching file in dir. With clearExisting both stores are
// emptied first; otherwise each file replaces its own earlier state. A failing file is
// recorded in the report and the run moves on.
func (c *Coordinator) ProcessDirectory(ctx context.Context, dir string, extensions []string, clearExisting bool) (*Report, error) {
	files, err := ListFiles(dir, extensions)
	if err != nil {
		return nil, err
	}
	log.Info().Str("dir", dir).Int("files", len(files)).Msg("Starting ingestion")

	if n, err := c.Reconcile(ctx); err != nil {
		log.Error().Err(err).Msg("Reconcile failed")
	} else if n > 0 {
		log.Info().Int("chunks", n).Msg("Reconciled pending chunks")
	}

	scope := ClearFile
	if clearExisting {
		if err := c.Clear(ctx, ClearAll, ""); err != nil {
			return nil, err
		}
		scope = ClearNone
	}

	report := &Report{}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := c.ProcessFile(ctx, path, scope)
		if err != nil {
			log.Error().Err(err).Str("filename", filepath.Base(path)).Msg("Failed to process document")
			report.Failed = append(report.Failed, Failure{Filename: filepath.Base(path), Error: err.Error()})
			continue
		}
		report.Processed = append(report.Processed, *res)
	}

	log.Info().
		Int("processed", len(report.Processed)).
		Int("failed", len(report.Failed)).
		Int("chunks", report.TotalChunks()).
		Msg("Ingestion finished")
	return report, nil
}
