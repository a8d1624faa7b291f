package services

import (
	"context"
	"errors"
	"fmt"

	"github/itish2003/agriqa/models"

	"gorm.io/gorm"
)

// DocumentStore persists document and category records. Methods taking a tx
// run inside it when it is non-nil.
type DocumentStore interface {
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error

	CreateDocument(ctx context.Context, tx *gorm.DB, doc *models.Document) error
	GetDocument(ctx context.Context, tx *gorm.DB, id uint) (*models.Document, error)
	SaveDocument(ctx context.Context, tx *gorm.DB, doc *models.Document) error
	DeleteDocument(ctx context.Context, tx *gorm.DB, id uint) error
	ListDocuments(ctx context.Context, category string, offset, limit int) ([]models.Document, int64, error)

	CreateCategory(ctx context.Context, c *models.Category) error
	GetCategory(ctx context.Context, id uint) (*models.Category, error)
	CategoryExists(ctx context.Context, name string) (bool, error)
	CategoryTree(ctx context.Context) ([]models.Category, error)
}

type documentStore struct {
	db *gorm.DB
}

func NewDocumentStore(db *gorm.DB) DocumentStore {
	return &documentStore{db: db}
}

func (s *documentStore) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return s.db.WithContext(ctx)
}

func (s *documentStore) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

func (s *documentStore) CreateDocument(ctx context.Context, tx *gorm.DB, doc *models.Document) error {
	if err := s.conn(ctx, tx).Create(doc).Error; err != nil {
		return fmt.Errorf("%w: create document: %w", ErrStorage, err)
	}
	return nil
}

func (s *documentStore) GetDocument(ctx context.Context, tx *gorm.DB, id uint) (*models.Document, error) {
	var doc models.Document
	err := s.conn(ctx, tx).First(&doc, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: document %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get document %d: %w", ErrStorage, id, err)
	}
	return &doc, nil
}

func (s *documentStore) SaveDocument(ctx context.Context, tx *gorm.DB, doc *models.Document) error {
	if err := s.conn(ctx, tx).Save(doc).Error; err != nil {
		return fmt.Errorf("%w: save document %d: %w", ErrStorage, doc.ID, err)
	}
	return nil
}

func (s *documentStore) DeleteDocument(ctx context.Context, tx *gorm.DB, id uint) error {
	res := s.conn(ctx, tx).Delete(&models.Document{}, id)
	if res.Error != nil {
		return fmt.Errorf("%w: delete document %d: %w", ErrStorage, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: document %d", ErrNotFound, id)
	}
	return nil
}

func (s *documentStore) ListDocuments(ctx context.Context, category string, offset, limit int) ([]models.Document, int64, error) {
	filter := func(db *gorm.DB) *gorm.DB {
		if category != "" {
			return db.Where("category = ?", category)
		}
		return db
	}
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Document{}).Scopes(filter).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("%w: count documents: %w", ErrStorage, err)
	}
	docs := make([]models.Document, 0, limit)
	err := s.db.WithContext(ctx).Scopes(filter).
		Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&docs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list documents: %w", ErrStorage, err)
	}
	return docs, total, nil
}

func (s *documentStore) CreateCategory(ctx context.Context, c *models.Category) error {
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("%w: create category %s: %w", ErrStorage, c.Name, err)
	}
	return nil
}

func (s *documentStore) GetCategory(ctx context.Context, id uint) (*models.Category, error) {
	var c models.Category
	err := s.db.WithContext(ctx).First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: category %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get category %d: %w", ErrStorage, id, err)
	}
	return &c, nil
}

func (s *documentStore) CategoryExists(ctx context.Context, name string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Category{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return false, fmt.Errorf("%w: lookup category %s: %w", ErrStorage, name, err)
	}
	return count > 0, nil
}

// CategoryTree loads every category once and assembles the forest in memory.
func (s *documentStore) CategoryTree(ctx context.Context) ([]models.Category, error) {
	var all []models.Category
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&all).Error; err != nil {
		return nil, fmt.Errorf("%w: list categories: %w", ErrStorage, err)
	}
	children := make(map[uint][]uint)
	byID := make(map[uint]models.Category, len(all))
	var roots []uint
	for _, c := range all {
		byID[c.ID] = c
		if c.ParentID == nil {
			roots = append(roots, c.ID)
			continue
		}
		children[*c.ParentID] = append(children[*c.ParentID], c.ID)
	}

	var build func(id uint, depth int) models.Category
	build = func(id uint, depth int) models.Category {
		node := byID[id]
		node.Children = []models.Category{}
		if depth > len(all) {
			return node
		}
		for _, child := range children[id] {
			node.Children = append(node.Children, build(child, depth+1))
		}
		return node
	}

	tree := make([]models.Category, 0, len(roots))
	for _, id := range roots {
		tree = append(tree, build(id, 0))
	}
	return tree, nil
}
