package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"kb-rag-api/internal/application/retrieval"
	"kb-rag-api/internal/infrastructure/extract"
	"kb-rag-api/internal/infrastructure/watcher"
	"kb-rag-api/pkg/logger"
)

func newIngestCmd(a *app) *cobra.Command {
	var (
		category string
		watch    bool
	)
	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Index files or directories",
		Long: `Index .txt, .md and .pdf files. Directories are walked recursively.
Each file is stored under its base name; re-ingesting a file replaces it.

With --watch, kbctl keeps running and re-indexes files as they change.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.init(ctx); err != nil {
				return err
			}
			files, err := collectFiles(args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			failed := ingestFiles(ctx, a.core.Indexer, files, category, out)
			if !watch {
				if failed > 0 {
					return fmt.Errorf("%d of %d files failed", failed, len(files))
				}
				return nil
			}
			return watchAndIngest(ctx, a.core.Indexer, watchRoots(args), category, out)
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "Category for the ingested documents")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep watching for changes")
	return cmd
}

// collectFiles expands directories into their supported files, sorted and deduplicated.
func collectFiles(paths []string) ([]string, error) {
	seen := make(map[string]struct{})
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if !extract.Supported(p) {
				return nil, fmt.Errorf("%s: %w", p, extract.ErrUnsupportedFormat)
			}
			seen[p] = struct{}{}
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != p && d.Name()[0] == '.' {
					return filepath.SkipDir
				}
				return nil
			}
			if extract.Supported(path) {
				seen[path] = struct{}{}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, nil
}

type batchIngester interface {
	IngestBatch(ctx context.Context, reqs []retrieval.IngestRequest) []retrieval.IngestOutcome
}

// ingestFiles extracts and indexes files, printing one line per file. It returns the failure count.
func ingestFiles(ctx context.Context, idx batchIngester, files []string, category string, out io.Writer) int {
	failed := 0
	reqs := make([]retrieval.IngestRequest, 0, len(files))
	for _, f := range files {
		text, err := extract.File(f)
		if err != nil {
			fmt.Fprintf(out, "FAIL  %s: %v\n", f, err)
			failed++
			continue
		}
		reqs = append(reqs, retrieval.IngestRequest{Text: text, Source: filepath.Base(f), Category: category})
	}
	for _, o := range idx.IngestBatch(ctx, reqs) {
		if o.Err != nil {
			fmt.Fprintf(out, "FAIL  %s: %v\n", o.Source, o.Err)
			failed++
			continue
		}
		fmt.Fprintf(out, "OK    %s (%d chunks, category %s)\n", o.Source, o.Result.ChunksCreated, o.Result.Category)
	}
	return failed
}

// watchRoots maps each argument to the directory to watch.
func watchRoots(paths []string) []string {
	seen := make(map[string]struct{})
	var roots []string
	for _, p := range paths {
		dir := p
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			dir = filepath.Dir(p)
		}
		if _, ok := seen[dir]; !ok {
			seen[dir] = struct{}{}
			roots = append(roots, dir)
		}
	}
	return roots
}

type documentWriter interface {
	batchIngester
	DeleteDocument(ctx context.Context, source, category string) error
}

func watchAndIngest(ctx context.Context, idx documentWriter, roots []string, category string, out io.Writer) error {
	w, err := watcher.New(watcher.DefaultDebounce)
	if err != nil {
		return err
	}
	for _, r := range roots {
		if err := w.Add(r); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "watching %d director(ies); press Ctrl+C to stop\n", len(roots))

	return w.Run(ctx, func(ctx context.Context, batch []watcher.Event) {
		var changed []string
		for _, ev := range batch {
			if ev.Op == watcher.OpRemoved {
				source := filepath.Base(ev.Path)
				if err := idx.DeleteDocument(ctx, source, category); err != nil {
					logger.Warn(ctx, "failed to remove deleted file", "source", source, "error", err.Error())
					continue
				}
				fmt.Fprintf(out, "DEL   %s\n", source)
				continue
			}
			changed = append(changed, ev.Path)
		}
		if len(changed) > 0 {
			ingestFiles(ctx, idx, changed, category, out)
		}
	})
}
