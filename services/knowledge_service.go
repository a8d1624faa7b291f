package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github/itish2003/agriqa/logger"
	"github/itish2003/agriqa/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// KnowledgeService owns the document lifecycle: upload, chunk, embed, index,
// persist, and the reverse on delete.
type KnowledgeService interface {
	ProcessDocument(ctx context.Context, in models.UploadInput) (*models.Document, error)
	ReprocessDocument(ctx context.Context, id uint) (*models.Document, error)
	DeleteDocument(ctx context.Context, id uint) (bool, error)
	ListDocuments(ctx context.Context, category string, page, size int) (*models.Page[models.Document], error)
	UpdateDocument(ctx context.Context, id uint, req models.DocumentUpdateRequest) (*models.Document, error)
	GetDocumentVectors(ctx context.Context, id uint, page, size int) (*models.Page[models.VectorChunk], error)

	CreateCategory(ctx context.Context, req models.CategoryCreateRequest) (*models.Category, error)
	CategoryTree(ctx context.Context) ([]models.Category, error)
}

type knowledgeServiceImpl struct {
	log           *logger.Logger
	splitter      ChunkSplitter
	embedder      EmbeddingClient
	index         VectorIndex
	store         DocumentStore
	files         *FileStorage
	maxUploadSize int64
}

func NewKnowledgeService(
	log *logger.Logger,
	splitter ChunkSplitter,
	embedder EmbeddingClient,
	index VectorIndex,
	store DocumentStore,
	files *FileStorage,
	maxUploadSize int64,
) KnowledgeService {
	return &knowledgeServiceImpl{
		log:           log.With("service", "KnowledgeService"),
		splitter:      splitter,
		embedder:      embedder,
		index:         index,
		store:         store,
		files:         files,
		maxUploadSize: maxUploadSize,
	}
}

func (k *knowledgeServiceImpl) ProcessDocument(ctx context.Context, in models.UploadInput) (doc *models.Document, err error) {
	filename := filepath.Base(strings.TrimSpace(in.Filename))
	category := strings.TrimSpace(in.Category)
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case filename == "" || filename == "." || filename == string(filepath.Separator):
		return nil, fmt.Errorf("%w: filename is required", ErrValidation)
	case category == "":
		return nil, fmt.Errorf("%w: category is required", ErrValidation)
	case !SupportedExtensions[ext]:
		return nil, fmt.Errorf("%w: unsupported file type %q", ErrValidation, ext)
	case k.maxUploadSize > 0 && int64(len(in.Content)) > k.maxUploadSize:
		return nil, fmt.Errorf("%w: file is larger than %d bytes", ErrValidation, k.maxUploadSize)
	}

	title := strings.TrimSuffix(filename, filepath.Ext(filename))
	if strings.TrimSpace(title) == "" {
		title = strings.TrimSpace(in.Title)
	}
	if title == "" {
		title = filename
	}

	path, err := k.files.Save(ext, in.Content)
	if err != nil {
		return nil, err
	}
	var ids []string
	defer func() {
		if err == nil {
			return
		}
		if len(ids) > 0 {
			if derr := k.index.Delete(context.WithoutCancel(ctx), ids); derr != nil {
				k.log.Error("failed to roll back indexed chunks", "file", filename, "count", len(ids), "error", derr)
			}
		}
		if rerr := k.files.Remove(path); rerr != nil {
			k.log.Error("failed to remove upload after error", "path", path, "error", rerr)
		}
	}()

	text, err := ExtractText(filename, in.Content)
	if err != nil {
		return nil, err
	}

	ids, err = k.indexText(ctx, text, title, category)
	if err != nil {
		return nil, err
	}

	doc = &models.Document{
		Title:     title,
		Content:   text,
		FilePath:  path,
		FileType:  ext,
		Category:  category,
		VectorIDs: datatypes.JSONSlice[string](ids),
	}
	err = k.store.Transaction(ctx, func(tx *gorm.DB) error {
		return k.store.CreateDocument(ctx, tx, doc)
	})
	if err != nil {
		return nil, err
	}

	k.log.Info("document ingested", "document_id", doc.ID, "title", title, "category", category, "chunks", len(ids))
	return doc, nil
}

// indexText splits, embeds in one batch, and adds all chunks in one index call.
// Returned ids follow chunk order. No text means no ids.
func (k *knowledgeServiceImpl) indexText(ctx context.Context, text, title, category string) ([]string, error) {
	chunks, err := k.splitter.Split(text)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return []string{}, nil
	}

	vectors, err := k.embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embed %d chunks: %w", len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: got %d vectors for %d chunks", ErrEmbeddingUnavailable, len(vectors), len(chunks))
	}

	entries := make([]IndexEntry, len(chunks))
	for i, chunk := range chunks {
		entries[i] = IndexEntry{
			Text:   chunk,
			Vector: vectors[i],
			Metadata: map[string]interface{}{
				"title":       title,
				"category":    category,
				"chunk_index": i,
			},
		}
	}
	ids, err := k.index.Add(ctx, entries)
	if err != nil {
		return nil, err
	}
	if len(ids) != len(chunks) {
		if derr := k.index.Delete(context.WithoutCancel(ctx), ids); derr != nil {
			k.log.Error("failed to roll back indexed chunks", "title", title, "count", len(ids), "error", derr)
		}
		return nil, fmt.Errorf("%w: index returned %d ids for %d chunks", ErrIndexUnavailable, len(ids), len(chunks))
	}
	return ids, nil
}

// ReprocessDocument rebuilds the chunks of a stored document. Old vectors go
// first; if rebuilding fails the document is left with no vectors.
func (k *knowledgeServiceImpl) ReprocessDocument(ctx context.Context, id uint) (*models.Document, error) {
	doc, err := k.store.GetDocument(ctx, nil, id)
	if err != nil {
		return nil, err
	}

	if err := k.index.Delete(ctx, doc.VectorIDs); err != nil {
		return nil, fmt.Errorf("delete old vectors of document %d: %w", id, err)
	}

	ids, indexErr := k.indexText(ctx, doc.Content, doc.Title, doc.Category)
	if indexErr != nil {
		doc.VectorIDs = datatypes.JSONSlice[string]{}
		if err := k.store.SaveDocument(context.WithoutCancel(ctx), nil, doc); err != nil {
			return nil, errors.Join(indexErr, err)
		}
		k.log.Warn("reprocess failed, document left without vectors", "document_id", id, "error", indexErr)
		return nil, indexErr
	}

	doc.VectorIDs = datatypes.JSONSlice[string](ids)
	if err := k.store.SaveDocument(ctx, nil, doc); err != nil {
		if derr := k.index.Delete(context.WithoutCancel(ctx), ids); derr != nil {
			k.log.Error("failed to roll back indexed chunks", "document_id", id, "count", len(ids), "error", derr)
		}
		return nil, err
	}
	k.log.Info("document reprocessed", "document_id", id, "chunks", len(ids))
	return doc, nil
}

// DeleteDocument removes the record, its vectors and its file. The record
// delete is rolled back if either of the others fails.
func (k *knowledgeServiceImpl) DeleteDocument(ctx context.Context, id uint) (bool, error) {
	found := true
	err := k.store.Transaction(ctx, func(tx *gorm.DB) error {
		doc, err := k.store.GetDocument(ctx, tx, id)
		if errors.Is(err, ErrNotFound) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		if err := k.store.DeleteDocument(ctx, tx, id); err != nil {
			return err
		}
		if err := k.index.Delete(ctx, doc.VectorIDs); err != nil {
			return fmt.Errorf("delete vectors of document %d: %w", id, err)
		}
		return k.files.Remove(doc.FilePath)
	})
	if err != nil {
		return false, err
	}
	if found {
		k.log.Info("document deleted", "document_id", id)
	}
	return found, nil
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}

func (k *knowledgeServiceImpl) ListDocuments(ctx context.Context, category string, page, size int) (*models.Page[models.Document], error) {
	page, size = normalizePage(page, size)
	docs, total, err := k.store.ListDocuments(ctx, strings.TrimSpace(category), (page-1)*size, size)
	if err != nil {
		return nil, err
	}
	return &models.Page[models.Document]{Items: docs, Total: total, Page: page, Size: size}, nil
}

// UpdateDocument changes title and/or category. Indexed chunk metadata keeps
// the values from the last (re)processing.
func (k *knowledgeServiceImpl) UpdateDocument(ctx context.Context, id uint, req models.DocumentUpdateRequest) (*models.Document, error) {
	doc, err := k.store.GetDocument(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title must not be empty", ErrValidation)
		}
		doc.Title = title
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return nil, fmt.Errorf("%w: category must not be empty", ErrValidation)
		}
		doc.Category = category
	}
	if err := k.store.SaveDocument(ctx, nil, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// GetDocumentVectors pages over the document's chunk ids and returns the
// chunks in chunk order.
func (k *knowledgeServiceImpl) GetDocumentVectors(ctx context.Context, id uint, page, size int) (*models.Page[models.VectorChunk], error) {
	doc, err := k.store.GetDocument(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	page, size = normalizePage(page, size)
	ids := []string(doc.VectorIDs)
	result := &models.Page[models.VectorChunk]{Items: []models.VectorChunk{}, Total: int64(len(ids)), Page: page, Size: size}

	start := (page - 1) * size
	if start >= len(ids) {
		return result, nil
	}
	end := min(start+size, len(ids))
	pageIDs := ids[start:end]

	chunks, err := k.index.GetByIDs(ctx, pageIDs)
	if err != nil {
		return nil, err
	}
	for _, c := range SortByRequestedOrder(chunks, pageIDs) {
		result.Items = append(result.Items, models.VectorChunk{ID: c.ID, Content: c.Text, Metadata: c.Metadata})
	}
	return result, nil
}

func (k *knowledgeServiceImpl) CreateCategory(ctx context.Context, req models.CategoryCreateRequest) (*models.Category, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: category name is required", ErrValidation)
	}
	exists, err := k.store.CategoryExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: category %q already exists", ErrValidation, name)
	}
	if req.ParentID != nil {
		if _, err := k.store.GetCategory(ctx, *req.ParentID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("%w: parent category %d does not exist", ErrValidation, *req.ParentID)
			}
			return nil, err
		}
	}
	c := &models.Category{Name: name, Description: strings.TrimSpace(req.Description), ParentID: req.ParentID}
	if err := k.store.CreateCategory(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (k *knowledgeServiceImpl) CategoryTree(ctx context.Context) ([]models.Category, error) {
	return k.store.CategoryTree(ctx)
}
