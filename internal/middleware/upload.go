// upload.go validates multipart image uploads before any handler or database
// work: declared fields and counts, per-file size, content type (declared and
// sniffed) and decodability. Oversized JPEG and PNG images are downscaled.
package middleware

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/doubleh-portfolio/portfolio-api/internal/config"
	"github.com/doubleh-portfolio/portfolio-api/internal/storage"
	"github.com/doubleh-portfolio/portfolio-api/internal/telemetry"
)

// UploadedImagesKey is the gin.Context key holding []*ImageFile.
const UploadedImagesKey = "uploaded_images"

const formOverhead = 1 << 20

// extContentTypes maps accepted extensions to the content types they may carry.
var extContentTypes = map[string][]string{
	".jpg":  {"image/jpeg", "image/jpg"},
	".jpeg": {"image/jpeg", "image/jpg"},
	".png":  {"image/png"},
	".webp": {"image/webp"},
}

// ImageFile is a validated upload, fully buffered.
type ImageFile struct {
	Field       string
	Filename    string
	ContentType string
	Size        int64
	Data        []byte
}

// UploadField declares a multipart file field and how many files it accepts.
type UploadField struct {
	Name     string
	MaxCount int
}

// UploadPolicy holds the limits applied to every file.
type UploadPolicy struct {
	MaxFileSize  int64
	MaxFiles     int
	MaxDimension int
	AllowedTypes []string
}

// UploadPolicyFromConfig converts the uploads config section.
func UploadPolicyFromConfig(cfg *config.UploadsConfig) UploadPolicy {
	p := UploadPolicy{
		MaxFileSize:  cfg.MaxFileSize,
		MaxFiles:     cfg.MaxFiles,
		MaxDimension: cfg.MaxDimension,
		AllowedTypes: cfg.AllowedTypes,
	}
	if p.MaxFileSize <= 0 {
		p.MaxFileSize = 5 << 20
	}
	if p.MaxFiles <= 0 {
		p.MaxFiles = 10
	}
	if len(p.AllowedTypes) == 0 {
		p.AllowedTypes = []string{"image/jpeg", "image/jpg", "image/png", "image/webp"}
	}
	return p
}

// uploadError is a client-facing rejection.
type uploadError struct {
	reason  string
	message string
}

func (e *uploadError) Error() string { return e.message }

func reject(reason, format string, args ...any) *uploadError {
	return &uploadError{reason: reason, message: fmt.Sprintf(format, args...)}
}

// ImageUpload validates multipart requests against policy and the declared
// fields, then stores the accepted files under UploadedImagesKey. Requests
// that are not multipart pass through untouched so JSON updates keep working.
func ImageUpload(policy UploadPolicy, fields ...UploadField) gin.HandlerFunc {
	limits := make(map[string]int, len(fields))
	for _, f := range fields {
		limits[f.Name] = f.MaxCount
	}
	bodyLimit := policy.MaxFileSize*int64(policy.MaxFiles) + formOverhead

	return func(c *gin.Context) {
		if c.ContentType() != "multipart/form-data" {
			c.Next()
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, bodyLimit)
		files, err := readImages(c.Request, policy, limits, bodyLimit)
		if c.Request.MultipartForm != nil {
			defer func() { _ = c.Request.MultipartForm.RemoveAll() }()
		}
		if err != nil {
			var ue *uploadError
			if !errors.As(err, &ue) {
				ue = reject("form", "Invalid multipart form data")
				slog.Warn("failed to parse multipart upload", "error", err)
			}
			telemetry.ImageUploadRejectionsTotal.WithLabelValues(ue.reason).Inc()
			abortJSON(c, http.StatusBadRequest, ue.message)
			return
		}

		c.Set(UploadedImagesKey, files)
		c.Next()
	}
}

func readImages(r *http.Request, policy UploadPolicy, limits map[string]int, bodyLimit int64) ([]*ImageFile, error) {
	if err := r.ParseMultipartForm(bodyLimit); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, tooLarge(policy)
		}
		return nil, err
	}

	names := make([]string, 0, len(r.MultipartForm.File))
	for name := range r.MultipartForm.File {
		if _, ok := limits[name]; !ok {
			return nil, reject("field", "Unexpected field: %s", name)
		}
		names = append(names, name)
	}
	slices.Sort(names)

	total := 0
	var files []*ImageFile
	for _, name := range names {
		headers := r.MultipartForm.File[name]
		if len(headers) > limits[name] {
			return nil, reject("count", "Too many files for field %s", name)
		}
		total += len(headers)
		if total > policy.MaxFiles {
			return nil, reject("count", "Too many files. Maximum is %d", policy.MaxFiles)
		}

		for _, fh := range headers {
			f, err := readImage(name, fh, policy)
			if err != nil {
				return nil, err
			}
			files = append(files, f)
		}
	}
	return files, nil
}

func tooLarge(policy UploadPolicy) *uploadError {
	return reject("size", "File too large. Maximum size is %dMB", policy.MaxFileSize>>20)
}

func readImage(field string, fh *multipart.FileHeader, policy UploadPolicy) (*ImageFile, error) {
	if fh.Size > policy.MaxFileSize {
		return nil, tooLarge(policy)
	}

	declared := strings.ToLower(strings.TrimSpace(strings.Split(fh.Header.Get("Content-Type"), ";")[0]))
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !slices.Contains(policy.AllowedTypes, declared) || !slices.Contains(extContentTypes[ext], declared) {
		return nil, reject("type", "Only image files are allowed")
	}

	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, policy.MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload %s: %w", fh.Filename, err)
	}
	if int64(len(data)) > policy.MaxFileSize {
		return nil, tooLarge(policy)
	}

	sniffed := mimetype.Detect(data).String()
	if !slices.Contains(policy.AllowedTypes, sniffed) || !slices.Contains(extContentTypes[ext], sniffed) {
		return nil, reject("type", "Only image files are allowed")
	}

	data, err = fitImage(data, sniffed, policy.MaxDimension)
	if err != nil {
		return nil, err
	}

	return &ImageFile{
		Field:       field,
		Filename:    filepath.Base(fh.Filename),
		ContentType: sniffed,
		Size:        int64(len(data)),
		Data:        data,
	}, nil
}

// fitImage decodes JPEG and PNG payloads and downscales them to fit within
// maxDim on both sides. WebP is passed through as-is.
func fitImage(data []byte, contentType string, maxDim int) ([]byte, error) {
	var format imaging.Format
	switch contentType {
	case "image/jpeg":
		format = imaging.JPEG
	case "image/png":
		format = imaging.PNG
	default:
		return data, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, reject("decode", "Only image files are allowed")
	}
	if maxDim <= 0 || !exceeds(img.Bounds(), maxDim) {
		return data, nil
	}

	resized := imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, format, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("failed to re-encode image: %w", err)
	}
	return buf.Bytes(), nil
}

func exceeds(b image.Rectangle, maxDim int) bool {
	return b.Dx() > maxDim || b.Dy() > maxDim
}

// UploadedImages returns the files accepted by ImageUpload, optionally only
// those of the given fields.
func UploadedImages(c *gin.Context, fields ...string) []*ImageFile {
	v, ok := c.Get(UploadedImagesKey)
	if !ok {
		return nil
	}
	files, _ := v.([]*ImageFile)
	if len(fields) == 0 {
		return files
	}
	var out []*ImageFile
	for _, f := range files {
		if slices.Contains(fields, f.Field) {
			out = append(out, f)
		}
	}
	return out
}

// StorageImages converts validated uploads for storage.ImageStore.SaveAll.
func StorageImages(files []*ImageFile) []storage.Image {
	out := make([]storage.Image, 0, len(files))
	for _, f := range files {
		out = append(out, storage.Image{Filename: f.Filename, ContentType: f.ContentType, Data: f.Data})
	}
	return out
}
