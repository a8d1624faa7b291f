package services

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FileStorage keeps uploaded files in a single directory under generated,
// collision-free names.
type FileStorage struct {
	Dir string // absolute path of the upload directory
}

func NewFileStorage(dir string) (*FileStorage, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: upload directory not set", ErrValidation)
	}
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("could not determine absolute path for %s: %w", dir, err)
	}
	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create upload directory: %w", ErrStorage, err)
	}
	return &FileStorage{Dir: absPath}, nil
}

// Save writes content under uuid-hex + ext and returns the full path.
func (fs *FileStorage) Save(ext string, content []byte) (string, error) {
	name := strings.ReplaceAll(uuid.NewString(), "-", "") + strings.ToLower(ext)
	path := filepath.Join(fs.Dir, name)
	// O_EXCL: files are written once and never overwritten.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("%w: create file %s: %w", ErrStorage, name, err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("%w: write file %s: %w", ErrStorage, name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("%w: close file %s: %w", ErrStorage, name, err)
	}
	return path, nil
}

// Remove deletes a stored file. A missing file is not an error.
func (fs *FileStorage) Remove(path string) error {
	if path == "" {
		return nil
	}
	clean, err := fs.contain(path)
	if err != nil {
		return err
	}
	if err := os.Remove(clean); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove file %s: %w", ErrStorage, filepath.Base(clean), err)
	}
	return nil
}

// contain refuses paths outside the upload directory.
func (fs *FileStorage) contain(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStorage, err)
	}
	rel, err := filepath.Rel(fs.Dir, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path %s escapes upload directory", ErrStorage, path)
	}
	return abs, nil
}
