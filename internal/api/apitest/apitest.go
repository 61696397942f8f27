// Package apitest holds helpers shared by the handler tests: a sqlmock-backed
// database provider, a local image store in a temp dir, multipart bodies with
// real PNG payloads, and envelope decoding.
package apitest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/doubleh-portfolio/portfolio-api/internal/auth"
	"github.com/doubleh-portfolio/portfolio-api/internal/config"
	"github.com/doubleh-portfolio/portfolio-api/internal/db"
	"github.com/doubleh-portfolio/portfolio-api/internal/middleware"
	"github.com/doubleh-portfolio/portfolio-api/internal/storage"
	"github.com/doubleh-portfolio/portfolio-api/internal/storage/local"
)

// AdminID is the user id carried by tokens from Token.
const AdminID = "11111111-1111-4111-8111-111111111111"

// MockProvider returns a db.Provider over sqlmock. Expectations are verified at cleanup.
func MockProvider(t *testing.T) (db.Provider, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sqlmock expectations: %v", err)
		}
		raw.Close()
	})
	return db.Static(sqlx.NewDb(raw, "sqlmock")), mock
}

// LocalImages is an ImageStore over a local backend rooted in a temp dir.
type LocalImages struct {
	*storage.ImageStore
	Dir string
}

// NewLocalImages creates an image store serving references as "/uploads/<key>".
func NewLocalImages(t *testing.T) *LocalImages {
	t.Helper()
	dir := t.TempDir()
	backend, err := local.New(&config.LocalStorageConfig{BasePath: dir, URLPrefix: "/uploads"}, "")
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	return &LocalImages{ImageStore: storage.NewImageStore("local", backend), Dir: dir}
}

// Put writes a file directly under key and returns its reference.
func (l *LocalImages) Put(t *testing.T, key string) string {
	t.Helper()
	path := filepath.Join(l.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("stored"), 0o600); err != nil {
		t.Fatal(err)
	}
	return "/uploads/" + key
}

// Exists reports whether the file behind ref is on disk.
func (l *LocalImages) Exists(ref string) bool {
	key := strings.TrimPrefix(ref, "/uploads/")
	_, err := os.Stat(filepath.Join(l.Dir, filepath.FromSlash(key)))
	return err == nil
}

// Files lists every stored file below folder as a reference.
func (l *LocalImages) Files(t *testing.T, folder string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(l.Dir, folder))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatal(err)
	}
	var refs []string
	for _, e := range entries {
		refs = append(refs, "/uploads/"+folder+"/"+e.Name())
	}
	return refs
}

// UploadPolicy is a small policy for handler tests.
func UploadPolicy() middleware.UploadPolicy {
	return middleware.UploadPolicyFromConfig(&config.UploadsConfig{MaxFileSize: 1 << 20, MaxFiles: 10})
}

// PNG returns an encoded w x h image.
func PNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.NRGBA{G: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// File is one multipart file part.
type File struct {
	Field       string
	Filename    string
	ContentType string
	Data        []byte
}

// PNGFile is a File carrying a small valid PNG.
func PNGFile(t *testing.T, field, filename string) File {
	return File{Field: field, Filename: filename, ContentType: "image/png", Data: PNG(t, 4, 4)}
}

// Multipart encodes values and files as multipart/form-data.
func Multipart(t *testing.T, values map[string]string, files ...File) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range values {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Field, f.Filename))
		h.Set("Content-Type", f.ContentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(f.Data); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

// JSON encodes v as a request body.
func JSON(t *testing.T, v any) (io.Reader, string) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewReader(b), "application/json"
}

// Token returns a valid admin bearer token.
func Token(t *testing.T) string {
	t.Helper()
	token, err := auth.GenerateJWT(AdminID, "admin", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	return token
}

// Do serves one request. token is sent as a bearer token when non-empty.
func Do(h http.Handler, method, path string, body io.Reader, contentType, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// Envelope is the decoded response body.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Count   *int            `json:"count"`
	Error   string          `json:"error"`
}

// Decode parses the envelope and, when out is non-nil, its data field.
func Decode(t *testing.T, w *httptest.ResponseRecorder, out any) Envelope {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid JSON body %q: %v", w.Body.String(), err)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			t.Fatalf("invalid data %q: %v", env.Data, err)
		}
	}
	return env
}
