// Package local implements the local filesystem storage backend. Files are
// written below storage.local.base_path and served by the API itself under
// storage.local.url_prefix. This backend suits single-node deployments; run
// several instances only when they share the directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/doubleh-portfolio/portfolio-api/internal/config"
	"github.com/doubleh-portfolio/portfolio-api/internal/storage"
	"github.com/doubleh-portfolio/portfolio-api/pkg/checksum"
)

func init() {
	storage.Register("local", func(cfg *config.Config) (storage.Storage, error) {
		return New(&cfg.Storage.Local, cfg.Server.BaseURL)
	})
}

// LocalStorage implements the Storage interface for local filesystem storage
type LocalStorage struct {
	basePath  string
	urlPrefix string
	baseURL   string
}

// New creates a new local filesystem storage backend. References are absolute
// URLs rooted at serverBaseURL when it is set, root-relative paths otherwise.
func New(cfg *config.LocalStorageConfig, serverBaseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(cfg.BasePath, 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	prefix := "/" + strings.Trim(cfg.URLPrefix, "/")
	if prefix == "/" {
		prefix = "/uploads"
	}

	return &LocalStorage{
		basePath:  filepath.Clean(cfg.BasePath),
		urlPrefix: prefix,
		baseURL:   strings.TrimRight(serverBaseURL, "/"),
	}, nil
}

// BasePath returns the directory the router serves under URLPrefix.
func (s *LocalStorage) BasePath() string {
	return s.basePath
}

// URLPrefix returns the public path prefix of stored files.
func (s *LocalStorage) URLPrefix() string {
	return s.urlPrefix
}

func (s *LocalStorage) fullPath(key string) (string, error) {
	if !storage.ValidKey(key) {
		return "", fmt.Errorf("invalid storage key: %q", key)
	}
	return filepath.Join(s.basePath, filepath.FromSlash(key)), nil
}

// Upload stores a file in the local filesystem
func (s *LocalStorage) Upload(_ context.Context, key string, reader io.Reader, _ int64, _ string) (*storage.UploadResult, error) {
	fullPath, err := s.fullPath(key)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	cr := checksum.NewReader(reader)
	if _, err := io.Copy(file, cr); err != nil {
		// Clean up partial file
		_ = os.Remove(fullPath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	return &storage.UploadResult{
		Key:      key,
		URL:      s.URL(key),
		Size:     cr.Size(),
		Checksum: cr.Sum(),
	}, nil
}

// Delete removes a file from the local filesystem
func (s *LocalStorage) Delete(_ context.Context, key string) error {
	fullPath, err := s.fullPath(key)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	// Try to remove empty parent directories (best effort)
	dir := filepath.Dir(fullPath)
	for dir != s.basePath && strings.HasPrefix(dir, s.basePath) {
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}

	return nil
}

// Exists checks if a file exists at the specified key
func (s *LocalStorage) Exists(_ context.Context, key string) (bool, error) {
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(key))

	_, err := os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}

	return true, nil
}

// URL returns the public reference of key
func (s *LocalStorage) URL(key string) string {
	return s.baseURL + s.urlPrefix + "/" + key
}

// KeyFromURL accepts both the absolute reference produced by URL and the bare
// "<prefix>/<key>" path.
func (s *LocalStorage) KeyFromURL(ref string) (string, bool) {
	if s.baseURL != "" {
		if key, ok := storage.KeyFromPrefix(ref, s.baseURL+s.urlPrefix); ok {
			return key, true
		}
	}
	return storage.KeyFromPrefix(ref, s.urlPrefix)
}
