package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github/itish2003/agriqa/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func longText(paragraphs int) string {
	var b strings.Builder
	for i := 0; i < paragraphs; i++ {
		fmt.Fprintf(&b, "Paragraph %d about rice planting and pest control in the spring season.\n\n", i)
	}
	return b.String()
}

func uploadCount(t *testing.T, fs *FileStorage) int {
	t.Helper()
	entries, err := os.ReadDir(fs.Dir)
	require.NoError(t, err)
	return len(entries)
}

func TestProcessDocument(t *testing.T) {
	ctx := context.Background()

	t.Run("indexes every chunk in order", func(t *testing.T) {
		f := newKnowledgeFixture(t, 100, 20)
		doc, err := f.svc.ProcessDocument(ctx, models.UploadInput{
			Filename: "rice-guide.txt",
			Content:  []byte(longText(8)),
			Title:    "ignored",
			Category: "种植技术",
		})
		require.NoError(t, err)

		assert.NotZero(t, doc.ID)
		assert.Equal(t, "rice-guide", doc.Title)
		assert.Equal(t, ".txt", doc.FileType)
		assert.Greater(t, len(doc.VectorIDs), 1)
		assert.Equal(t, len(doc.VectorIDs), f.index.Len())
		assert.FileExists(t, doc.FilePath)
		assert.Equal(t, 1, f.embedder.calls, "chunks are embedded in one batch")

		vectors, err := f.svc.GetDocumentVectors(ctx, doc.ID, 1, 100)
		require.NoError(t, err)
		require.Len(t, vectors.Items, len(doc.VectorIDs))
		for i, v := range vectors.Items {
			assert.Equal(t, doc.VectorIDs[i], v.ID)
			assert.Equal(t, i, v.Metadata["chunk_index"])
			assert.Equal(t, "rice-guide", v.Metadata["title"])
			assert.Equal(t, "种植技术", v.Metadata["category"])
		}
	})

	t.Run("short document is a single chunk", func(t *testing.T) {
		f := newKnowledgeFixture(t, 1000, 200)
		doc, err := f.svc.ProcessDocument(ctx, models.UploadInput{Filename: "abc.md", Content: []byte("A. B. C."), Category: "种植技术"})
		require.NoError(t, err)
		assert.Equal(t, "abc", doc.Title)
		assert.Len(t, doc.VectorIDs, 1)
		assert.Equal(t, 1, f.index.Len())
	})

	t.Run("empty file stores a document without vectors", func(t *testing.T) {
		f := newKnowledgeFixture(t, 100, 20)
		doc, err := f.svc.ProcessDocument(ctx, models.UploadInput{Filename: "empty.md", Content: []byte("  \n"), Category: "市场信息"})
		require.NoError(t, err)
		assert.Empty(t, doc.VectorIDs)

		stored, err := f.store.GetDocument(ctx, nil, doc.ID)
		require.NoError(t, err)
		assert.Empty(t, stored.VectorIDs)
	})

	t.Run("form title is used when the stem is empty", func(t *testing.T) {
		f := newKnowledgeFixture(t, 100, 20)
		doc, err := f.svc.ProcessDocument(ctx, models.UploadInput{Filename: ".txt", Content: []byte("rice"), Title: "稻米", Category: "c"})
		require.NoError(t, err)
		assert.Equal(t, "稻米", doc.Title)
	})

	t.Run("validation", func(t *testing.T) {
		f := newKnowledgeFixture(t, 100, 20)
		cases := []models.UploadInput{
			{Filename: "", Content: []byte("x"), Category: "c"},
			{Filename: "a.txt", Content: []byte("x"), Category: " "},
			{Filename: "a.docx", Content: []byte("x"), Category: "c"},
			{Filename: "a.txt", Content: make([]byte, 2<<20), Category: "c"},
		}
		for _, in := range cases {
			_, err := f.svc.ProcessDocument(ctx, in)
			assert.ErrorIs(t, err, ErrValidation)
		}
		assert.Zero(t, uploadCount(t, f.files))
	})

	t.Run("embedding failure leaves nothing behind", func(t *testing.T) {
		f := newKnowledgeFixture(t, 100, 20)
		f.embedder.setFail(errBoom)
		_, err := f.svc.ProcessDocument(ctx, models.UploadInput{Filename: "a.txt", Content: []byte(longText(3)), Category: "c"})
		require.Error(t, err)
		assert.ErrorIs(t, err, errBoom)

		page, err := f.svc.ListDocuments(ctx, "", 1, 10)
		require.NoError(t, err)
		assert.Zero(t, page.Total)
		assert.Zero(t, f.index.Len())
		assert.Zero(t, uploadCount(t, f.files))
	})

	t.Run("index failure leaves nothing behind", func(t *testing.T) {
		f := newKnowledgeFixture(t, 100, 20)
		f.index.failAdd = fmt.Errorf("%w: down", ErrIndexUnavailable)
		_, err := f.svc.ProcessDocument(ctx, models.UploadInput{Filename: "a.txt", Content: []byte(longText(3)), Category: "c"})
		assert.ErrorIs(t, err, ErrIndexUnavailable)
		assert.Zero(t, uploadCount(t, f.files))
	})

	t.Run("store failure removes added vectors", func(t *testing.T) {
		f := newKnowledgeFixture(t, 100, 20)
		svc := f.withStore(failingCreateStore{DocumentStore: f.store})
		_, err := svc.ProcessDocument(ctx, models.UploadInput{Filename: "a.txt", Content: []byte(longText(3)), Category: "c"})
		assert.ErrorIs(t, err, ErrStorage)
		assert.Zero(t, f.index.Len())
		assert.Zero(t, uploadCount(t, f.files))
	})
}

func TestReprocessDocument(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces vectors", func(t *testing.T) {
		f := newKnowledgeFixture(t, 100, 20)
		doc, err := f.svc.ProcessDocument(ctx, models.UploadInput{Filename: "a.txt", Content: []byte(longText(5)), Category: "c"})
		require.NoError(t, err)
		oldIDs := append([]string(nil), doc.VectorIDs...)

		updated, err := f.svc.ReprocessDocument(ctx, doc.ID)
		require.NoError(t, err)
		assert.Len(t, updated.VectorIDs, len(oldIDs))
		assert.Equal(t, len(oldIDs), f.index.Len())
		for _, id := range oldIDs {
			assert.NotContains(t, []string(updated.VectorIDs), id)
		}
		got, err := f.index.GetByIDs(ctx, oldIDs)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("missing document", func(t *testing.T) {
		f := newKnowledgeFixture(t, 100, 20)
		_, err := f.svc.ReprocessDocument(ctx, 999)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("failure after delete persists empty vector ids", func(t *testing.T) {
		f := newKnowledgeFixture(t, 100, 20)
		doc, err := f.svc.ProcessDocument(ctx, models.UploadInput{Filename: "a.txt", Content: []byte(longText(5)), Category: "c"})
		require.NoError(t, err)

		f.embedder.setFail(errBoom)
		_, err = f.svc.ReprocessDocument(ctx, doc.ID)
		assert.ErrorIs(t, err, errBoom)

		stored, err := f.store.GetDocument(ctx, nil, doc.ID)
		require.NoError(t, err)
		assert.Empty(t, stored.VectorIDs)
		assert.Zero(t, f.index.Len())
	})

	t.Run("failed rollback after save error is logged", func(t *testing.T) {
		f := newKnowledgeFixture(t, 100, 20)
		doc, err := f.svc.ProcessDocument(ctx, models.UploadInput{Filename: "a.txt", Content: []byte(longText(5)), Category: "c"})
		require.NoError(t, err)

		log, logs := observedLogger()
		index := &rollbackIndex{MemoryIndex: f.index.MemoryIndex, deletesAllowed: 1}
		splitter, err := NewChunkSplitter(100, 20)
		require.NoError(t, err)
		svc := NewKnowledgeService(log, splitter, f.embedder, index, failingSaveStore{DocumentStore: f.store}, f.files, 1<<20)

		_, err = svc.ReprocessDocument(ctx, doc.ID)
		assert.ErrorIs(t, err, ErrStorage)
		rollbacks := logs.FilterMessage("failed to roll back indexed chunks").All()
		require.Len(t, rollbacks, 1)
		assert.EqualValues(t, doc.ID, rollbacks[0].ContextMap()["document_id"])
	})
}

func TestIndexTextShortIDs(t *testing.T) {
	ctx := context.Background()
	f := newKnowledgeFixture(t, 100, 20)
	log, logs := observedLogger()
	index := &rollbackIndex{MemoryIndex: NewMemoryIndex(), dropID: true}
	splitter, err := NewChunkSplitter(100, 20)
	require.NoError(t, err)
	svc := NewKnowledgeService(log, splitter, f.embedder, index, f.store, f.files, 1<<20)

	_, err = svc.ProcessDocument(ctx, models.UploadInput{Filename: "a.txt", Content: []byte(longText(5)), Category: "c"})
	assert.ErrorIs(t, err, ErrIndexUnavailable)
	assert.Equal(t, 1, logs.FilterMessage("failed to roll back indexed chunks").Len())
}

func TestDeleteDocument(t *testing.T) {
	ctx := context.Background()

	t.Run("removes record vectors and file", func(t *testing.T) {
		f := newKnowledgeFixture(t, 100, 20)
		doc, err := f.svc.ProcessDocument(ctx, models.UploadInput{Filename: "a.txt", Content: []byte(longText(4)), Category: "c"})
		require.NoError(t, err)

		ok, err := f.svc.DeleteDocument(ctx, doc.ID)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Zero(t, f.index.Len())
		assert.NoFileExists(t, doc.FilePath)
		_, err = f.store.GetDocument(ctx, nil, doc.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		ok, err = f.svc.DeleteDocument(ctx, doc.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("missing file is tolerated", func(t *testing.T) {
		f := newKnowledgeFixture(t, 100, 20)
		doc, err := f.svc.ProcessDocument(ctx, models.UploadInput{Filename: "a.txt", Content: []byte("rice"), Category: "c"})
		require.NoError(t, err)
		require.NoError(t, os.Remove(doc.FilePath))

		ok, err := f.svc.DeleteDocument(ctx, doc.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("index failure rolls back the record delete", func(t *testing.T) {
		f := newKnowledgeFixture(t, 100, 20)
		doc, err := f.svc.ProcessDocument(ctx, models.UploadInput{Filename: "a.txt", Content: []byte(longText(2)), Category: "c"})
		require.NoError(t, err)

		f.index.failDelete = fmt.Errorf("%w: down", ErrIndexUnavailable)
		ok, err := f.svc.DeleteDocument(ctx, doc.ID)
		assert.False(t, ok)
		assert.ErrorIs(t, err, ErrIndexUnavailable)

		stored, err := f.store.GetDocument(ctx, nil, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, doc.VectorIDs, stored.VectorIDs)
		assert.FileExists(t, doc.FilePath)
	})
}

func TestListAndUpdateDocuments(t *testing.T) {
	ctx := context.Background()
	f := newKnowledgeFixture(t, 100, 20)
	for i := 0; i < 5; i++ {
		category := "种植技术"
		if i%2 == 1 {
			category = "病虫害防治"
		}
		_, err := f.svc.ProcessDocument(ctx, models.UploadInput{Filename: fmt.Sprintf("doc%d.txt", i), Content: []byte("rice"), Category: category})
		require.NoError(t, err)
	}

	page, err := f.svc.ListDocuments(ctx, "", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "doc4", page.Items[0].Title, "newest first")

	page, err = f.svc.ListDocuments(ctx, "病虫害防治", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	page, err = f.svc.ListDocuments(ctx, "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, defaultPageSize, page.Size)

	title, category := "新标题", "市场信息"
	updated, err := f.svc.UpdateDocument(ctx, page.Items[0].ID, models.DocumentUpdateRequest{Title: &title, Category: &category})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, category, updated.Category)

	blank := " "
	_, err = f.svc.UpdateDocument(ctx, page.Items[0].ID, models.DocumentUpdateRequest{Title: &blank})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.UpdateDocument(ctx, 12345, models.DocumentUpdateRequest{Title: &title})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetDocumentVectorsPaging(t *testing.T) {
	ctx := context.Background()
	f := newKnowledgeFixture(t, 100, 20)
	doc, err := f.svc.ProcessDocument(ctx, models.UploadInput{Filename: "a.txt", Content: []byte(longText(10)), Category: "c"})
	require.NoError(t, err)
	require.Greater(t, len(doc.VectorIDs), 3)

	page, err := f.svc.GetDocumentVectors(ctx, doc.ID, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(len(doc.VectorIDs)), page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, doc.VectorIDs[2], page.Items[0].ID)
	assert.Equal(t, doc.VectorIDs[3], page.Items[1].ID)

	page, err = f.svc.GetDocumentVectors(ctx, doc.ID, 100, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	_, err = f.svc.GetDocumentVectors(ctx, 404, 1, 10)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCategories(t *testing.T) {
	ctx := context.Background()
	f := newKnowledgeFixture(t, 100, 20)

	tree, err := f.svc.CategoryTree(ctx)
	require.NoError(t, err)
	require.Len(t, tree, 5)
	root := tree[0]

	child, err := f.svc.CreateCategory(ctx, models.CategoryCreateRequest{Name: "水稻", ParentID: &root.ID})
	require.NoError(t, err)
	_, err = f.svc.CreateCategory(ctx, models.CategoryCreateRequest{Name: "早稻", ParentID: &child.ID})
	require.NoError(t, err)

	_, err = f.svc.CreateCategory(ctx, models.CategoryCreateRequest{Name: "水稻"})
	assert.ErrorIs(t, err, ErrValidation)
	missing := uint(9999)
	_, err = f.svc.CreateCategory(ctx, models.CategoryCreateRequest{Name: "孤儿", ParentID: &missing})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.CreateCategory(ctx, models.CategoryCreateRequest{Name: "  "})
	assert.ErrorIs(t, err, ErrValidation)

	tree, err = f.svc.CategoryTree(ctx)
	require.NoError(t, err)
	require.Len(t, tree, 5)
	require.Len(t, tree[0].Children, 1)
	assert.Equal(t, "水稻", tree[0].Children[0].Name)
	require.Len(t, tree[0].Children[0].Children, 1)
	assert.Equal(t, "早稻", tree[0].Children[0].Children[0].Name)
	assert.Empty(t, tree[1].Children)
}
