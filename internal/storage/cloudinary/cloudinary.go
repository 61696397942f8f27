// Package cloudinary implements an image backend on the Cloudinary media
// platform. Keys map to public IDs below an optional folder; stored references
// are the secure delivery URLs Cloudinary returns.
package cloudinary

import (
	"context"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/admin"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/doubleh-portfolio/portfolio-api/internal/config"
	"github.com/doubleh-portfolio/portfolio-api/internal/storage"
	"github.com/doubleh-portfolio/portfolio-api/pkg/checksum"
)

func init() {
	storage.Register("cloudinary", func(cfg *config.Config) (storage.Storage, error) {
		return New(&cfg.Storage.Cloudinary)
	})
}

// versionSegment matches the optional "v<digits>/" segment of delivery URLs.
var versionSegment = regexp.MustCompile(`^v\d+/`)

// CloudinaryStorage implements the Storage interface for Cloudinary
type CloudinaryStorage struct {
	cld      *cloudinary.Cloudinary
	folder   string
	delivery string
}

// New creates a new Cloudinary backend from a cloudinary:// URL or the
// individual credentials.
func New(cfg *config.CloudinaryStorageConfig) (*CloudinaryStorage, error) {
	var (
		cld *cloudinary.Cloudinary
		err error
	)
	switch {
	case cfg.URL != "":
		cld, err = cloudinary.NewFromURL(cfg.URL)
	case cfg.CloudName != "" && cfg.APIKey != "" && cfg.APISecret != "":
		cld, err = cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	default:
		return nil, fmt.Errorf("cloudinary url or cloud_name/api_key/api_secret are required")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Cloudinary client: %w", err)
	}
	cld.Config.URL.Secure = true

	return &CloudinaryStorage{
		cld:      cld,
		folder:   strings.Trim(cfg.Folder, "/"),
		delivery: fmt.Sprintf("https://res.cloudinary.com/%s/image/upload", cld.Config.Cloud.CloudName),
	}, nil
}

// publicID maps a key to its Cloudinary public ID: folder prefix, no extension.
func (s *CloudinaryStorage) publicID(key string) string {
	if ext := path.Ext(key); ext != "" && ext != path.Base(key) {
		key = strings.TrimSuffix(key, ext)
	}
	if s.folder == "" {
		return key
	}
	return s.folder + "/" + key
}

// Upload stores an image on Cloudinary
func (s *CloudinaryStorage) Upload(ctx context.Context, key string, reader io.Reader, _ int64, _ string) (*storage.UploadResult, error) {
	if !storage.ValidKey(key) {
		return nil, fmt.Errorf("invalid storage key: %q", key)
	}

	cr := checksum.NewReader(reader)
	res, err := s.cld.Upload.Upload(ctx, cr, uploader.UploadParams{
		PublicID:       s.publicID(key),
		ResourceType:   "image",
		Overwrite:      api.Bool(false),
		UniqueFilename: api.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to Cloudinary: %w", err)
	}
	if res.Error.Message != "" {
		return nil, fmt.Errorf("cloudinary rejected upload: %s", res.Error.Message)
	}

	url := res.SecureURL
	if url == "" {
		url = s.URL(key)
	}

	return &storage.UploadResult{
		Key:      key,
		URL:      url,
		Size:     cr.Size(),
		Checksum: cr.Sum(),
	}, nil
}

// Delete destroys the asset behind key. Cloudinary answers "not found" for
// missing assets, which counts as deleted.
func (s *CloudinaryStorage) Delete(ctx context.Context, key string) error {
	res, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     s.publicID(key),
		ResourceType: "image",
	})
	if err != nil {
		return fmt.Errorf("failed to delete from Cloudinary: %w", err)
	}
	if res.Error.Message != "" {
		return fmt.Errorf("cloudinary rejected delete: %s", res.Error.Message)
	}
	if res.Result != "ok" && res.Result != "not found" {
		return fmt.Errorf("unexpected Cloudinary destroy result: %s", res.Result)
	}
	return nil
}

// Exists checks whether an asset exists under key
func (s *CloudinaryStorage) Exists(ctx context.Context, key string) (bool, error) {
	res, err := s.cld.Admin.Asset(ctx, admin.AssetParams{PublicID: s.publicID(key)})
	if err != nil {
		return false, fmt.Errorf("failed to look up Cloudinary asset: %w", err)
	}
	if msg := res.Error.Message; msg != "" {
		if strings.Contains(strings.ToLower(msg), "not found") {
			return false, nil
		}
		return false, fmt.Errorf("cloudinary asset lookup failed: %s", msg)
	}
	return true, nil
}

// URL returns the unversioned delivery URL of key
func (s *CloudinaryStorage) URL(key string) string {
	return s.delivery + "/" + s.publicID(key) + path.Ext(key)
}

// KeyFromURL maps a delivery URL of this cloud (versioned or not) back to a
// key. Assets outside the configured folder are not owned.
func (s *CloudinaryStorage) KeyFromURL(ref string) (string, bool) {
	rest, ok := storage.KeyFromPrefix(ref, s.delivery)
	if !ok {
		return "", false
	}
	rest = versionSegment.ReplaceAllString(rest, "")
	if s.folder != "" {
		rest, ok = strings.CutPrefix(rest, s.folder+"/")
		if !ok {
			return "", false
		}
	}
	if !storage.ValidKey(rest) {
		return "", false
	}
	return rest, true
}
