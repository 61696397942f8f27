// images.go implements ImageStore, the layer handlers use to persist uploaded
// images and to clean up references that are no longer used.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path"
	"strings"
	"time"

	"github.com/doubleh-portfolio/portfolio-api/internal/telemetry"
)

var extByContentType = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// ImageStore names, stores and removes images on a Storage backend.
type ImageStore struct {
	backend Storage
	name    string
	now     func() time.Time
}

// NewImageStore wraps backend. name labels metrics and logs (e.g. "local").
func NewImageStore(name string, backend Storage) *ImageStore {
	return &ImageStore{backend: backend, name: name, now: time.Now}
}

// Backend returns the name of the underlying backend.
func (s *ImageStore) Backend() string {
	return s.name
}

// NewKey builds a collision-resistant key "<folder>/<unix-millis>-<9 digits><ext>".
func (s *ImageStore) NewKey(folder, filename, contentType string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" || ext == "." {
		ext = extByContentType[contentType]
	}
	return fmt.Sprintf("%s/%d-%09d%s", folder, s.now().UnixMilli(), rand.IntN(1_000_000_000), ext)
}

// Save stores data under a fresh key inside folder and returns the public reference.
func (s *ImageStore) Save(ctx context.Context, folder, filename, contentType string, data []byte) (string, error) {
	key := s.NewKey(folder, filename, contentType)
	res, err := s.backend.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		return "", fmt.Errorf("failed to store image %s: %w", key, err)
	}

	telemetry.ImageUploadsTotal.WithLabelValues(folder, s.name).Inc()
	telemetry.ImageUploadBytes.Observe(float64(res.Size))
	slog.Debug("image stored", "backend", s.name, "key", key, "size", res.Size, "checksum", res.Checksum)
	return res.URL, nil
}

// Image is an upload ready to be stored.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// SaveAll stores images in order and returns their references. When one fails
// the images already stored by this call are removed again.
func (s *ImageStore) SaveAll(ctx context.Context, folder string, images []Image) ([]string, error) {
	refs := make([]string, 0, len(images))
	for _, img := range images {
		ref, err := s.Save(ctx, folder, img.Filename, img.ContentType, img.Data)
		if err != nil {
			s.Remove(context.WithoutCancel(ctx), refs...)
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// Owns reports whether ref points into the active backend.
func (s *ImageStore) Owns(ref string) bool {
	_, ok := s.backend.KeyFromURL(ref)
	return ok
}

// Remove deletes the objects behind refs. It never fails: references the
// backend does not own are skipped and delete errors are logged and counted.
func (s *ImageStore) Remove(ctx context.Context, refs ...string) {
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}

		key, ok := s.backend.KeyFromURL(ref)
		if !ok {
			slog.Debug("skipping image not owned by backend", "backend", s.name, "ref", ref)
			continue
		}
		if err := s.backend.Delete(ctx, key); err != nil {
			telemetry.StorageDeleteErrorsTotal.WithLabelValues(s.name).Inc()
			slog.Warn("failed to remove stored image", "backend", s.name, "key", key, "error", err)
		}
	}
}

// Unreferenced returns the refs in before that are absent from after.
func Unreferenced(before, after []string) []string {
	keep := make(map[string]struct{}, len(after))
	for _, ref := range after {
		keep[ref] = struct{}{}
	}
	var gone []string
	for _, ref := range before {
		if _, ok := keep[ref]; !ok {
			gone = append(gone, ref)
		}
	}
	return gone
}

// Probe checks that the backend answers. It is used by the readiness endpoint.
func (s *ImageStore) Probe(ctx context.Context) error {
	if _, err := s.backend.Exists(ctx, ".readiness-probe"); err != nil {
		return fmt.Errorf("storage backend %s unreachable: %w", s.name, err)
	}
	return nil
}
