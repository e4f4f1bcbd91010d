// Package watcher ingests files dropped into an inbox directory.
//
// A file is picked up once its writes have quiesced for the settle window,
// so half-copied files are never ingested. Successfully ingested files are
// removed from the inbox; failed ones are left in place for inspection.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/docvault/internal/core/domain"
	"github.com/custodia-labs/docvault/internal/core/ports/driving"
	"github.com/custodia-labs/docvault/internal/logger"
)

// DefaultSettle is how long a file must stay unchanged before ingestion.
const DefaultSettle = 500 * time.Millisecond

// pollInterval is how often a pending run is checked for completion.
const pollInterval = 200 * time.Millisecond

// Watcher drives inbox-directory ingestion.
type Watcher struct {
	ingestor driving.IngestOrchestrator
	ownerID  string
	dir      string
	settle   time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
	wg      sync.WaitGroup
}

// Option configures the watcher.
type Option func(*Watcher)

// WithSettle sets the write-quiescence window.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// New creates a watcher over dir that ingests for ownerID.
func New(ingestor driving.IngestOrchestrator, ownerID, dir string, opts ...Option) *Watcher {
	w := &Watcher{
		ingestor: ingestor,
		ownerID:  ownerID,
		dir:      dir,
		settle:   DefaultSettle,
		pending:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches the inbox until the context is cancelled. Files already
// present at startup are ingested as well.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	logger.Info("watching inbox %s for owner %s", w.dir, w.ownerID)

	if err := w.scanExisting(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			w.drainTimers()
			w.wg.Wait()
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				w.drainTimers()
				w.wg.Wait()
				return nil
			}
			if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) {
				w.schedule(ctx, event.Name)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				w.drainTimers()
				w.wg.Wait()
				return nil
			}
			logger.Warn("watch error: %v", err)
		}
	}
}

// scanExisting queues the files already sitting in the inbox.
func (w *Watcher) scanExisting(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", w.dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.schedule(ctx, filepath.Join(w.dir, entry.Name()))
	}
	return nil
}

// schedule arms (or re-arms) the settle timer for a path. Hidden files and
// directories are never ingested.
func (w *Watcher) schedule(ctx context.Context, path string) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.settle, func() {
		// The shutdown path stops timers under the same lock, so a fire
		// that loses the race must not start work after wg.Wait.
		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			return
		}
		delete(w.pending, path)
		w.wg.Add(1)
		w.mu.Unlock()

		defer w.wg.Done()
		if err := w.ingest(ctx, path); err != nil {
			logger.Warn("inbox ingest of %s: %v", path, err)
		}
	})
}

// drainTimers stops all pending settle timers and refuses new ones.
func (w *Watcher) drainTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
}

// ingest runs one settled file through the pipeline and removes it from the
// inbox once the document is ready.
func (w *Watcher) ingest(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Removed between settle and pickup.
			return nil
		}
		return fmt.Errorf("reading file: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	handle, err := w.ingestor.Ingest(ctx, driving.IngestRequest{
		OwnerID:     w.ownerID,
		Title:       filepath.Base(path),
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		return err
	}
	logger.Info("inbox accepted %s as document %s", path, handle.DocumentID)

	status, err := w.awaitRun(ctx, handle.RunID)
	if err != nil {
		return err
	}
	if status.Status != domain.StatusReady {
		return fmt.Errorf("pipeline ended in %s: %s", status.Status, status.Err)
	}

	if err := os.Remove(path); err != nil {
		logger.Warn("removing ingested file %s: %v", path, err)
	}
	logger.Info("inbox ingested %s (%d chunks)", path, status.Chunks)
	return nil
}

// awaitRun polls a run until it reaches a final pipeline state.
func (w *Watcher) awaitRun(ctx context.Context, runID string) (*driving.IngestStatus, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		status, err := w.ingestor.Status(ctx, runID)
		if err != nil {
			return nil, err
		}
		switch status.Status {
		case domain.StatusReady, domain.StatusFailed:
			return status, nil
		}
	}
}
