// Package watcher reports debounced changes to ingestible files under a set of roots.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"kb-rag-api/internal/infrastructure/extract"
	"kb-rag-api/pkg/logger"
)

const DefaultDebounce = 500 * time.Millisecond

type Op int

const (
	OpChanged Op = iota + 1
	OpRemoved
)

func (o Op) String() string {
	switch o {
	case OpChanged:
		return "changed"
	case OpRemoved:
		return "removed"
	}
	return "unknown"
}

type Event struct {
	Path string
	Op   Op
}

// Watcher follows directories recursively. Hidden entries and unsupported extensions are ignored.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce *Debouncer
}

func New(window time.Duration) (*Watcher, error) {
	if window <= 0 {
		window = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &Watcher{fsw: fsw, debounce: NewDebouncer(window)}, nil
}

// Add watches root and every directory below it.
func (w *Watcher) Add(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != root && hidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// Run delivers batches to handle until ctx ends. handle runs on a single goroutine.
func (w *Watcher) Run(ctx context.Context, handle func(context.Context, []Event)) error {
	defer w.fsw.Close()
	defer w.debounce.Stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case batch := <-w.debounce.Output():
				handle(ctx, batch)
			}
		}
	}()
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn(ctx, "file watcher error", "error", err.Error())
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if hidden(filepath.Base(ev.Name)) {
		return
	}
	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		info, err := os.Stat(ev.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if ev.Op&fsnotify.Create != 0 {
				_ = w.Add(ev.Name)
			}
			return
		}
		if extract.Supported(ev.Name) {
			w.debounce.Add(Event{Path: ev.Name, Op: OpChanged})
		}
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if extract.Supported(ev.Name) {
			w.debounce.Add(Event{Path: ev.Name, Op: OpRemoved})
		}
	}
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
