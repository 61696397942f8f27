// Package azure implements the Azure Blob Storage image backend. Images are uploaded as block
// blobs with their content type and a long-lived cache header; clients fetch them straight from
// the container (public blob access) or through a CDN in front of it (storage.azure.cdn_url).
package azure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"

	"github.com/doubleh-portfolio/portfolio-api/internal/config"
	"github.com/doubleh-portfolio/portfolio-api/internal/storage"
	"github.com/doubleh-portfolio/portfolio-api/pkg/checksum"
)

func init() {
	storage.Register("azure", func(cfg *config.Config) (storage.Storage, error) {
		return New(&cfg.Storage.Azure)
	})
}

// AzureStorage implements the Storage interface for Azure Blob Storage
type AzureStorage struct {
	client        *azblob.Client
	containerName string
	publicURL     string
}

// New creates a new Azure Blob Storage backend
func New(cfg *config.AzureStorageConfig) (*AzureStorage, error) {
	if cfg.AccountName == "" {
		return nil, fmt.Errorf("azure storage account name is required")
	}
	if cfg.AccountKey == "" {
		return nil, fmt.Errorf("azure storage account key is required")
	}
	if cfg.ContainerName == "" {
		return nil, fmt.Errorf("azure storage container name is required")
	}

	credential, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure Blob client: %w", err)
	}

	publicURL := strings.TrimRight(cfg.CDNURL, "/")
	if publicURL == "" {
		publicURL = strings.TrimRight(serviceURL, "/") + "/" + cfg.ContainerName
	}

	return newWithClient(client, cfg.ContainerName, publicURL), nil
}

func newWithClient(client *azblob.Client, containerName, publicURL string) *AzureStorage {
	return &AzureStorage{
		client:        client,
		containerName: containerName,
		publicURL:     publicURL,
	}
}

func (s *AzureStorage) blobClient(key string) *blob.Client {
	return s.client.ServiceClient().NewContainerClient(s.containerName).NewBlobClient(key)
}

// Upload stores an image as a block blob, recording its SHA256 in blob metadata
func (s *AzureStorage) Upload(ctx context.Context, key string, reader io.Reader, _ int64, contentType string) (*storage.UploadResult, error) {
	if !storage.ValidKey(key) {
		return nil, fmt.Errorf("invalid storage key: %q", key)
	}

	cr := checksum.NewReader(reader)
	data, err := io.ReadAll(cr)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	sum := cr.Sum()

	cacheControl := "public, max-age=31536000, immutable"
	blobClient := s.client.ServiceClient().NewContainerClient(s.containerName).NewBlockBlobClient(key)
	_, err = blobClient.Upload(ctx, streaming.NopCloser(bytes.NewReader(data)), &blockblob.UploadOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType:  &contentType,
			BlobCacheControl: &cacheControl,
		},
		Metadata: map[string]*string{
			"sha256": &sum,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to Azure Blob: %w", err)
	}

	return &storage.UploadResult{
		Key:      key,
		URL:      s.URL(key),
		Size:     int64(len(data)),
		Checksum: sum,
	}, nil
}

// Delete removes a blob. A blob that is already gone counts as deleted.
func (s *AzureStorage) Delete(ctx context.Context, key string) error {
	_, err := s.blobClient(key).Delete(ctx, nil)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete from Azure Blob: %w", err)
	}
	return nil
}

// Exists checks if a blob exists under key
func (s *AzureStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.blobClient(key).GetProperties(ctx, nil)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to get blob properties: %w", err)
}

func isNotFound(err error) bool {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return true
	}
	var re *azcore.ResponseError
	return errors.As(err, &re) && re.StatusCode == http.StatusNotFound
}

// URL returns the public URL of key
func (s *AzureStorage) URL(key string) string {
	return s.publicURL + "/" + key
}

// KeyFromURL maps a public blob or CDN URL back to the blob name
func (s *AzureStorage) KeyFromURL(ref string) (string, bool) {
	return storage.KeyFromPrefix(ref, s.publicURL)
}
