// Package ftp implements an FTP image backend for shared hosting setups where
// an FTP account writes into a directory that a web server publishes.
package ftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/doubleh-portfolio/portfolio-api/internal/config"
	"github.com/doubleh-portfolio/portfolio-api/internal/storage"
	"github.com/doubleh-portfolio/portfolio-api/pkg/checksum"
)

func init() {
	storage.Register("ftp", func(cfg *config.Config) (storage.Storage, error) {
		return New(&cfg.Storage.FTP)
	})
}

// FTPStorage implements the Storage interface on top of an FTP account. Every
// operation uses its own control connection.
type FTPStorage struct {
	addr      string
	user      string
	password  string
	baseDir   string
	publicURL string
	timeout   time.Duration
}

// New creates a new FTP storage backend
func New(cfg *config.FTPStorageConfig) (*FTPStorage, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("ftp host is required")
	}
	if cfg.PublicURL == "" {
		return nil, fmt.Errorf("ftp public_url is required")
	}

	port := cfg.Port
	if port == 0 {
		port = 21
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseDir := "/" + strings.Trim(cfg.BaseDir, "/")

	return &FTPStorage{
		addr:      net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		user:      cfg.User,
		password:  cfg.Password,
		baseDir:   baseDir,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		timeout:   timeout,
	}, nil
}

func (s *FTPStorage) connect(ctx context.Context) (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(s.addr, ftp.DialWithTimeout(s.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to FTP: %w", err)
	}

	if err := conn.Login(s.user, s.password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("failed to login to FTP: %w", err)
	}

	return conn, nil
}

func (s *FTPStorage) remotePath(key string) string {
	return path.Join(s.baseDir, key)
}

// Upload stores an image below the base directory, creating folders as needed
func (s *FTPStorage) Upload(ctx context.Context, key string, reader io.Reader, _ int64, _ string) (*storage.UploadResult, error) {
	if !storage.ValidKey(key) {
		return nil, fmt.Errorf("invalid storage key: %q", key)
	}

	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Quit()

	remote := s.remotePath(key)
	s.makeDirs(conn, path.Dir(remote))

	cr := checksum.NewReader(reader)
	if err := conn.Stor(remote, cr); err != nil {
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}

	return &storage.UploadResult{
		Key:      key,
		URL:      s.URL(key),
		Size:     cr.Size(),
		Checksum: cr.Sum(),
	}, nil
}

// makeDirs creates every missing directory of dir. Errors are ignored because
// servers answer 550 both for existing and for forbidden directories; Stor
// reports the real failure.
func (s *FTPStorage) makeDirs(conn *ftp.ServerConn, dir string) {
	current := ""
	for _, seg := range strings.Split(strings.Trim(dir, "/"), "/") {
		if seg == "" {
			continue
		}
		current += "/" + seg
		_ = conn.MakeDir(current)
	}
}

// Delete removes a file. A file that is already gone counts as deleted.
func (s *FTPStorage) Delete(ctx context.Context, key string) error {
	if !storage.ValidKey(key) {
		return fmt.Errorf("invalid storage key: %q", key)
	}

	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Quit()

	if err := conn.Delete(s.remotePath(key)); err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Exists checks if a file exists under key
func (s *FTPStorage) Exists(ctx context.Context, key string) (bool, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Quit()

	if _, err := conn.FileSize(s.remotePath(key)); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat file: %w", err)
	}
	return true, nil
}

func isNotFound(err error) bool {
	var tpErr *textproto.Error
	return errors.As(err, &tpErr) && tpErr.Code == ftp.StatusFileUnavailable
}

// URL returns the public URL of key
func (s *FTPStorage) URL(key string) string {
	return s.publicURL + "/" + key
}

// KeyFromURL maps a public URL back to its key
func (s *FTPStorage) KeyFromURL(ref string) (string, bool) {
	return storage.KeyFromPrefix(ref, s.publicURL)
}
