package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/ngds/geobridge/internal/ports/output"
)

// LocalStorage implements StyleSource for a local directory.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local style source.
func NewLocalStorage(basePath string) *LocalStorage {
	return &LocalStorage{basePath: basePath}
}

// List returns all SLD files below the base directory.
func (s *LocalStorage) List(ctx context.Context) ([]output.StyleObject, error) {
	var objects []output.StyleObject

	err := filepath.Walk(s.basePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() || !isStyle(info.Name()) {
			return nil
		}

		relPath, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		objects = append(objects, output.StyleObject{
			Key:          relPath,
			Name:         styleName(relPath),
			Size:         info.Size(),
			LastModified: info.ModTime().Unix(),
		})

		return nil
	})

	if err != nil {
		return nil, err
	}

	return objects, nil
}

// GetReader returns a reader for the given style.
func (s *LocalStorage) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.FullPath(key)) //#nosec G304 -- path is joined to the configured style directory
	if os.IsNotExist(err) {
		return nil, missingStyle(key)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Exists checks if a style file exists.
func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(s.FullPath(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// FullPath returns the full path for a style name or key.
func (s *LocalStorage) FullPath(key string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(styleKey(key)))
}
