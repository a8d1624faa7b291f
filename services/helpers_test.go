package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github/itish2003/agriqa/database"
	"github/itish2003/agriqa/logger"
	"github/itish2003/agriqa/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

var errBoom = errors.New("boom")

// fakeEmbedder maps text to a small deterministic vector.
type fakeEmbedder struct {
	mu    sync.Mutex
	fail  error
	calls int
}

func (f *fakeEmbedder) vector(text string) []float32 {
	v := []float32{1, 0, 0, 0}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		switch {
		case strings.Contains(w, "rice"):
			v[1]++
		case strings.Contains(w, "pest"):
			v[2]++
		default:
			v[3] += 0.1
		}
	}
	return v
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail != nil {
		return nil, f.fail
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail != nil {
		return nil, f.fail
	}
	return f.vector(text), nil
}

func (f *fakeEmbedder) setFail(err error) {
	f.mu.Lock()
	f.fail = err
	f.mu.Unlock()
}

// flakyIndex wraps MemoryIndex with switchable failures.
type flakyIndex struct {
	*MemoryIndex
	failAdd    error
	failDelete error
	failSearch error
}

func (f *flakyIndex) Add(ctx context.Context, entries []IndexEntry) ([]string, error) {
	if f.failAdd != nil {
		return nil, f.failAdd
	}
	return f.MemoryIndex.Add(ctx, entries)
}

func (f *flakyIndex) Delete(ctx context.Context, ids []string) error {
	if f.failDelete != nil {
		return f.failDelete
	}
	return f.MemoryIndex.Delete(ctx, ids)
}

func (f *flakyIndex) Search(ctx context.Context, vector []float32, k int) ([]SearchHit, error) {
	if f.failSearch != nil {
		return nil, f.failSearch
	}
	return f.MemoryIndex.Search(ctx, vector, k)
}

// failingCreateStore rejects document creation.
type failingCreateStore struct {
	DocumentStore
}

func (failingCreateStore) CreateDocument(context.Context, *gorm.DB, *models.Document) error {
	return errors.Join(ErrStorage, errBoom)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Init("sqlite", filepath.Join(t.TempDir(), "test.db"), false)
	require.NoError(t, err)
	return db
}

type knowledgeFixture struct {
	db       *gorm.DB
	embedder *fakeEmbedder
	index    *flakyIndex
	store    DocumentStore
	files    *FileStorage
	svc      KnowledgeService
}

func newKnowledgeFixture(t *testing.T, chunkSize, overlap int) *knowledgeFixture {
	t.Helper()
	db := newTestDB(t)
	splitter, err := NewChunkSplitter(chunkSize, overlap)
	require.NoError(t, err)
	files, err := NewFileStorage(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)

	f := &knowledgeFixture{
		db:       db,
		embedder: &fakeEmbedder{},
		index:    &flakyIndex{MemoryIndex: NewMemoryIndex()},
		store:    NewDocumentStore(db),
		files:    files,
	}
	f.svc = NewKnowledgeService(logger.Nop(), splitter, f.embedder, f.index, f.store, files, 1<<20)
	return f
}

func (f *knowledgeFixture) withStore(store DocumentStore) KnowledgeService {
	splitter, _ := NewChunkSplitter(100, 20)
	return NewKnowledgeService(logger.Nop(), splitter, f.embedder, f.index, store, f.files, 1<<20)
}

// failingSaveStore rejects document updates.
type failingSaveStore struct {
	DocumentStore
}

func (failingSaveStore) SaveDocument(context.Context, *gorm.DB, *models.Document) error {
	return errors.Join(ErrStorage, errBoom)
}

// rollbackIndex lets the first deletesAllowed Delete calls through and can
// return fewer ids than entries from Add.
type rollbackIndex struct {
	*MemoryIndex
	dropID         bool
	deletesAllowed int
	deletes        int
}

func (r *rollbackIndex) Add(ctx context.Context, entries []IndexEntry) ([]string, error) {
	ids, err := r.MemoryIndex.Add(ctx, entries)
	if err != nil || !r.dropID || len(ids) == 0 {
		return ids, err
	}
	return ids[:len(ids)-1], nil
}

func (r *rollbackIndex) Delete(ctx context.Context, ids []string) error {
	r.deletes++
	if r.deletes > r.deletesAllowed {
		return errors.Join(ErrIndexUnavailable, errBoom)
	}
	return r.MemoryIndex.Delete(ctx, ids)
}

// observedLogger records entries for assertions.
func observedLogger() (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return &logger.Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}
