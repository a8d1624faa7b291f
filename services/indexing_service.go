package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github/itish2003/agriqa/logger"
	"github/itish2003/agriqa/models"

	"github.com/fsnotify/fsnotify"
)

// DefaultInboxCategory is used for files dropped at the inbox root.
const DefaultInboxCategory = "default"

// IngestFile reads a local file and runs it through the ingestion pipeline.
func IngestFile(ctx context.Context, knowledge KnowledgeService, path, category string) (*models.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return knowledge.ProcessDocument(ctx, models.UploadInput{
		Filename: filepath.Base(path),
		Content:  content,
		Category: category,
	})
}

// InboxWatcher ingests files dropped into a directory. A sub-directory name
// becomes the category. Ingested files are removed from the inbox.
type InboxWatcher struct {
	log       *logger.Logger
	knowledge KnowledgeService
	dir       string
	settle    time.Duration

	mu       sync.Mutex
	pending  map[string]*time.Timer
	inflight map[string]bool
	stuck    map[string]string // path -> hash of an ingested file that could not be removed
}

func NewInboxWatcher(log *logger.Logger, knowledge KnowledgeService, dir string) *InboxWatcher {
	return &InboxWatcher{
		log:       log.With("service", "InboxWatcher"),
		knowledge: knowledge,
		dir:       dir,
		settle:    500 * time.Millisecond,
		pending:   make(map[string]*time.Timer),
		inflight:  make(map[string]bool),
		stuck:     make(map[string]string),
	}
}

// Scan ingests every supported file already in the inbox.
func (w *InboxWatcher) Scan(ctx context.Context) error {
	w.log.Info("scanning inbox", "dir", w.dir)
	return filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !isSupportedFile(path) {
			return nil
		}
		w.ingest(ctx, path)
		return nil
	})
}

// Watch blocks until ctx is cancelled, ingesting files as they appear.
func (w *InboxWatcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	err = filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.log.Info("watching inbox", "dir", w.dir)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						w.log.Warn("could not watch new directory", "dir", event.Name, "error", err)
					}
					continue
				}
			}
			if !isSupportedFile(event.Name) {
				continue
			}
			// Editors write in several steps; wait until the file is quiet.
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.schedule(ctx, event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watcher error", "error", err)
		case <-ctx.Done():
			w.stopPending()
			w.log.Info("inbox watcher stopped")
			return nil
		}
	}
}

func (w *InboxWatcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		// A write landed while the previous copy was still being ingested.
		if !w.ingest(ctx, path) {
			w.schedule(ctx, path)
		}
	})
}

func (w *InboxWatcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}

// ingest processes one file and reports false when the path is already being
// ingested.
func (w *InboxWatcher) ingest(ctx context.Context, path string) bool {
	w.mu.Lock()
	if w.inflight[path] {
		w.mu.Unlock()
		return false
	}
	w.inflight[path] = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.inflight, path)
		w.mu.Unlock()
	}()

	hash, err := calculateFileHash(path)
	if errors.Is(err, os.ErrNotExist) {
		return true
	}
	if err != nil {
		w.log.Warn("could not hash file", "path", path, "error", err)
		return true
	}
	w.mu.Lock()
	dup := w.stuck[path] == hash
	w.mu.Unlock()
	if dup {
		return true
	}

	doc, err := IngestFile(ctx, w.knowledge, path, w.categoryFor(path))
	if err != nil {
		w.log.Error("failed to ingest inbox file", "path", path, "error", err)
		return true
	}
	err = os.Remove(path)
	w.mu.Lock()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		w.stuck[path] = hash
	} else {
		delete(w.stuck, path)
	}
	w.mu.Unlock()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		w.log.Warn("could not remove ingested file", "path", path, "error", err)
	}
	w.log.Info("inbox file ingested", "path", path, "document_id", doc.ID, "category", doc.Category)
	return true
}

// categoryFor returns the first directory below the inbox root.
func (w *InboxWatcher) categoryFor(path string) string {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil {
		return DefaultInboxCategory
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 || parts[0] == "" || parts[0] == ".." {
		return DefaultInboxCategory
	}
	return parts[0]
}

func isSupportedFile(path string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(path))]
}

func calculateFileHash(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:]), nil
}
