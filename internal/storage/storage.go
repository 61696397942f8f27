// Package storage defines the Storage interface and common types for the image
// storage backends of the portfolio API.
//
// New backends are added by implementing the Storage interface and registering
// with the factory via an init() function in the backend's own package:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config) (storage.Storage, error) {
//	        return NewMyBackend(cfg)
//	    })
//	}
//
// The main package imports each backend with a blank import to trigger init().
package storage

import (
	"context"
	"io"
	"strings"
)

// Storage defines the interface for all storage backends
type Storage interface {
	// Upload stores the object under key and returns its public reference
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (*UploadResult, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists under key
	Exists(ctx context.Context, key string) (bool, error)

	// URL returns the public reference clients use to fetch key
	URL(key string) string

	// KeyFromURL maps a stored reference back to a key. ok is false for
	// references the backend did not produce.
	KeyFromURL(ref string) (key string, ok bool)
}

// UploadResult contains information about an uploaded object
type UploadResult struct {
	// Key is the backend key the object was stored under
	Key string

	// URL is the public reference saved in the database
	URL string

	// Size is the object size in bytes
	Size int64

	// Checksum is the SHA256 hash of the object contents
	Checksum string
}

// ValidKey reports whether key is a relative, slash-separated path without
// traversal segments.
func ValidKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}

// KeyFromPrefix strips base (a URL or path prefix) from ref and validates the
// remainder. Backends whose references are "<base>/<key>" use it for KeyFromURL.
func KeyFromPrefix(ref, base string) (string, bool) {
	base = strings.TrimRight(base, "/")
	if base == "" {
		return "", false
	}
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	rest, ok := strings.CutPrefix(ref, base+"/")
	if !ok || !ValidKey(rest) {
		return "", false
	}
	return rest, true
}
