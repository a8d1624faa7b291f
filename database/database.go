package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github/itish2003/agriqa/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// BaseCategories are created on first start.
var BaseCategories = []models.Category{
	{Name: "种植技术", Description: "农作物种植相关技术"},
	{Name: "病虫害防治", Description: "病虫害识别与防治方法"},
	{Name: "市场信息", Description: "农产品市场价格与动态"},
	{Name: "政策法规", Description: "农业相关政策法规"},
	{Name: "科研成果", Description: "农业科研成果与新技术"},
}

// Open connects to sqlite or postgres depending on driver.
func Open(driver, dsn string, echo bool) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case "", "sqlite":
		dsn = strings.TrimPrefix(dsn, "sqlite:///")
		if dsn == "" {
			dsn = filepath.Join("data", "app.db")
		}
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if dir := filepath.Dir(dsn); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("create database dir: %w", err)
				}
			}
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	level := gormlogger.Silent
	if echo {
		level = gormlogger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(level)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// Migrate creates the application tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Document{}, &models.Category{}, &models.ChatMessage{}); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	return nil
}

// SeedCategories inserts any missing base category. Existing rows are left alone.
func SeedCategories(db *gorm.DB) error {
	for _, c := range BaseCategories {
		var existing models.Category
		err := db.Where("name = ?", c.Name).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("lookup category %s: %w", c.Name, err)
		}
		row := c
		if err := db.Create(&row).Error; err != nil {
			return fmt.Errorf("seed category %s: %w", c.Name, err)
		}
	}
	return nil
}

// Init opens, migrates and seeds the database.
func Init(driver, dsn string, echo bool) (*gorm.DB, error) {
	db, err := Open(driver, dsn, echo)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	if err := SeedCategories(db); err != nil {
		return nil, err
	}
	return db, nil
}
