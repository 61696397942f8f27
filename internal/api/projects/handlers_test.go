package projects

import (
	"database/sql/driver"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doubleh-portfolio/portfolio-api/internal/api/apitest"
	"github.com/doubleh-portfolio/portfolio-api/internal/db/models"
	"github.com/doubleh-portfolio/portfolio-api/internal/db/repositories"
	"github.com/doubleh-portfolio/portfolio-api/internal/middleware"
)

const projectID = "3f1c2b4a-5d6e-4f70-8a9b-0c1d2e3f4a5b"

var projectCols = []string{"id", "name", "description", "date", "link", "images", "created_at", "updated_at"}

func setup(t *testing.T) (*gin.Engine, sqlmock.Sqlmock, *apitest.LocalImages) {
	t.Helper()
	p, mock := apitest.MockProvider(t)
	images := apitest.NewLocalImages(t)
	h := NewHandler(repositories.NewProjectRepository(p), images.ImageStore)
	upload := middleware.ImageUpload(apitest.UploadPolicy(), UploadFields...)

	r := gin.New()
	g := r.Group("/api/v1/projects")
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	w := g.Group("", middleware.AuthMiddleware())
	w.POST("", upload, middleware.RequireDatabase(p), h.Create)
	w.PUT("/:id", upload, middleware.RequireDatabase(p), h.Update)
	w.DELETE("/:id", middleware.RequireDatabase(p), h.Delete)
	return r, mock, images
}

// expectLocked queues the transaction opening of UpdateProject returning a
// project with the given images.
func expectLocked(mock sqlmock.Sqlmock, images string) {
	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM projects WHERE id = \$1 FOR UPDATE`).WithArgs(projectID).
		WillReturnRows(sqlmock.NewRows(projectCols).
			AddRow(projectID, "Eco Tower", "desc", nil, nil, images, now, now))
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestCreate_WithoutImagesThenGet(t *testing.T) {
	r, mock, _ := setup(t)
	mock.ExpectExec("INSERT INTO projects").
		WithArgs(sqlmock.AnyArg(), "Eco Tower", "desc", nil, nil, "{}", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	body, ct := apitest.Multipart(t, map[string]string{"name": "Eco Tower", "description": "desc"})
	w := apitest.Do(r, http.MethodPost, "/api/v1/projects", body, ct, apitest.Token(t))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"images":[]`)

	var created models.Project
	env := apitest.Decode(t, w, &created)
	assert.True(t, env.Success)
	assert.Equal(t, "Project created successfully", env.Message)
	require.NotEmpty(t, created.ID)

	mock.ExpectQuery("FROM projects WHERE id").WithArgs(created.ID).
		WillReturnRows(sqlmock.NewRows(projectCols).
			AddRow(created.ID, "Eco Tower", "desc", nil, nil, "{}", created.CreatedAt, created.UpdatedAt))

	w = apitest.Do(r, http.MethodGet, "/api/v1/projects/"+created.ID, nil, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got models.Project
	apitest.Decode(t, w, &got)
	assert.Equal(t, "Eco Tower", got.Name)
	assert.Equal(t, "desc", got.Description)
	assert.Empty(t, got.Images)
	assert.NotNil(t, got.Images)
}

func TestCreate_JSONKeepsExistingRefs(t *testing.T) {
	r, mock, images := setup(t)
	mock.ExpectExec("INSERT INTO projects").WillReturnResult(sqlmock.NewResult(0, 1))

	body, ct := apitest.JSON(t, map[string]any{
		"name":        "Harbour",
		"description": "Waterfront",
		"date":        "2024-03-01",
		"link":        "https://example.com/harbour",
		"images":      []string{"https://res.cloudinary.com/demo/image/upload/v1/projects/a.jpg"},
	})
	w := apitest.Do(r, http.MethodPost, "/api/v1/projects", body, ct, apitest.Token(t))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var p models.Project
	apitest.Decode(t, w, &p)
	require.NotNil(t, p.Date)
	assert.Equal(t, "2024-03-01", p.Date.Format("2006-01-02"))
	require.NotNil(t, p.Link)
	assert.Equal(t, "https://example.com/harbour", *p.Link)
	assert.Len(t, p.Images, 1)
	assert.Empty(t, images.Files(t, Folder))
}

// storedImages matches the pq array written for the images column when it
// holds want project uploads, and records the value for later assertions.
type storedImages struct {
	want int
	got  *string
}

func (a storedImages) Match(v driver.Value) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	*a.got = s
	return strings.Count(s, `"/uploads/projects/`) == a.want
}

func TestCreate_MultipartImages(t *testing.T) {
	r, mock, images := setup(t)
	var stored string
	mock.ExpectExec("INSERT INTO projects").
		WithArgs(sqlmock.AnyArg(), "Loft", "d", nil, nil, storedImages{want: 2, got: &stored}, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	body, ct := apitest.Multipart(t, map[string]string{"name": "Loft", "description": "d"},
		apitest.PNGFile(t, "images", "a.png"), apitest.PNGFile(t, "images", "b.png"))
	w := apitest.Do(r, http.MethodPost, "/api/v1/projects", body, ct, apitest.Token(t))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var p models.Project
	apitest.Decode(t, w, &p)
	require.Len(t, p.Images, 2)
	for _, ref := range p.Images {
		assert.True(t, images.Exists(ref), "missing %s", ref)
		assert.Contains(t, stored, `"`+ref+`"`)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_MultipartKeepImagesPrecedeUploads(t *testing.T) {
	r, mock, images := setup(t)
	existing := images.Put(t, "projects/existing.png")
	var stored string
	mock.ExpectExec("INSERT INTO projects").
		WithArgs(sqlmock.AnyArg(), "Loft", "d", nil, nil, storedImages{want: 2, got: &stored}, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	body, ct := apitest.Multipart(t, map[string]string{"name": "Loft", "description": "d", "keepImages": existing},
		apitest.PNGFile(t, "images", "new.png"))
	w := apitest.Do(r, http.MethodPost, "/api/v1/projects", body, ct, apitest.Token(t))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var p models.Project
	apitest.Decode(t, w, &p)
	require.Len(t, p.Images, 2)
	assert.Equal(t, existing, p.Images[0])
	assert.True(t, strings.HasPrefix(stored, `{"`+existing+`",`), "stored = %s", stored)
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]any
		want   string
	}{
		{"missing name", map[string]any{"description": "d"}, "Project name is required"},
		{"blank name", map[string]any{"name": "  ", "description": "d"}, "Project name is required"},
		{"missing description", map[string]any{"name": "n"}, "Project description is required"},
		{"bad date", map[string]any{"name": "n", "description": "d", "date": "yesterday"}, "Invalid project date"},
		{"bad link", map[string]any{"name": "n", "description": "d", "link": "ftp://x"}, "Invalid project link"},
		{"bad image ref", map[string]any{"name": "n", "description": "d", "images": []string{"//evil/x.png"}}, "Invalid project data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _ := setup(t)
			body, ct := apitest.JSON(t, tt.fields)
			w := apitest.Do(r, http.MethodPost, "/api/v1/projects", body, ct, apitest.Token(t))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.want, apitest.Decode(t, w, nil).Message)
		})
	}
}

func TestCreate_DatabaseFailureRemovesUploads(t *testing.T) {
	r, mock, images := setup(t)
	mock.ExpectExec("INSERT INTO projects").WillReturnError(errors.New("insert failed"))

	body, ct := apitest.Multipart(t, map[string]string{"name": "Loft", "description": "d"}, apitest.PNGFile(t, "images", "a.png"))
	w := apitest.Do(r, http.MethodPost, "/api/v1/projects", body, ct, apitest.Token(t))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to create project", apitest.Decode(t, w, nil).Message)
	assert.Empty(t, images.Files(t, Folder))
}

// ---------------------------------------------------------------------------
// List / Get
// ---------------------------------------------------------------------------

func TestList(t *testing.T) {
	r, mock, _ := setup(t)
	now := time.Now()
	mock.ExpectQuery("SELECT .* FROM projects ORDER BY created_at DESC").
		WillReturnRows(sqlmock.NewRows(projectCols).
			AddRow(projectID, "Eco Tower", "desc", now, "https://example.com", "{/uploads/projects/a.png}", now, now))

	w := apitest.Do(r, http.MethodGet, "/api/v1/projects", nil, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.Project
	env := apitest.Decode(t, w, &list)
	assert.Equal(t, 1, *env.Count)
	assert.Equal(t, []string{"/uploads/projects/a.png"}, []string(list[0].Images))
}

func TestList_DatabaseError(t *testing.T) {
	r, mock, _ := setup(t)
	mock.ExpectQuery("FROM projects").WillReturnError(errors.New("boom"))

	w := apitest.Do(r, http.MethodGet, "/api/v1/projects", nil, "", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to fetch projects", apitest.Decode(t, w, nil).Message)
}

func TestGet_InvalidAndMissing(t *testing.T) {
	r, mock, _ := setup(t)

	w := apitest.Do(r, http.MethodGet, "/api/v1/projects/not-a-uuid", nil, "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid project ID", apitest.Decode(t, w, nil).Message)

	mock.ExpectQuery("FROM projects WHERE id").WithArgs(projectID).WillReturnRows(sqlmock.NewRows(projectCols))
	w = apitest.Do(r, http.MethodGet, "/api/v1/projects/"+projectID, nil, "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Project not found", apitest.Decode(t, w, nil).Message)
}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

func TestUpdate_AppendsUploads(t *testing.T) {
	r, mock, images := setup(t)
	existing := images.Put(t, "projects/existing.png")
	expectLocked(mock, "{"+existing+"}")
	mock.ExpectExec("UPDATE projects").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	body, ct := apitest.Multipart(t, nil, apitest.PNGFile(t, "images", "new.png"))
	w := apitest.Do(r, http.MethodPut, "/api/v1/projects/"+projectID, body, ct, apitest.Token(t))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var p models.Project
	env := apitest.Decode(t, w, &p)
	assert.Equal(t, "Project updated successfully", env.Message)
	require.Len(t, p.Images, 2)
	assert.Equal(t, existing, p.Images[0])
	assert.True(t, images.Exists(existing))
	assert.True(t, images.Exists(p.Images[1]))
}

func TestUpdate_ReplaceImagesRemovesOldFiles(t *testing.T) {
	r, mock, images := setup(t)
	a := images.Put(t, "projects/a.png")
	b := images.Put(t, "projects/b.png")
	expectLocked(mock, "{"+a+","+b+"}")
	mock.ExpectExec("UPDATE projects").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	body, ct := apitest.Multipart(t, map[string]string{"replaceImages": "true"}, apitest.PNGFile(t, "images", "new.png"))
	w := apitest.Do(r, http.MethodPut, "/api/v1/projects/"+projectID, body, ct, apitest.Token(t))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var p models.Project
	apitest.Decode(t, w, &p)
	require.Len(t, p.Images, 1)
	assert.False(t, images.Exists(a))
	assert.False(t, images.Exists(b))
	assert.True(t, images.Exists(p.Images[0]))
}

func TestUpdate_MultipartKeepImagesDropsOthers(t *testing.T) {
	r, mock, images := setup(t)
	a := images.Put(t, "projects/a.png")
	b := images.Put(t, "projects/b.png")
	expectLocked(mock, "{"+a+","+b+"}")
	mock.ExpectExec("UPDATE projects").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	body, ct := apitest.Multipart(t, map[string]string{"keepImages": b}, apitest.PNGFile(t, "images", "new.png"))
	w := apitest.Do(r, http.MethodPut, "/api/v1/projects/"+projectID, body, ct, apitest.Token(t))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var p models.Project
	apitest.Decode(t, w, &p)
	require.Len(t, p.Images, 2)
	assert.Equal(t, b, p.Images[0])
	assert.False(t, images.Exists(a))
	assert.True(t, images.Exists(b))
	assert.True(t, images.Exists(p.Images[1]))
}

func TestUpdate_JSONReordersAndDropsImages(t *testing.T) {
	r, mock, images := setup(t)
	a := images.Put(t, "projects/a.png")
	b := images.Put(t, "projects/b.png")
	c := images.Put(t, "projects/c.png")
	expectLocked(mock, "{"+a+","+b+","+c+"}")
	mock.ExpectExec("UPDATE projects").
		WithArgs(projectID, "Eco Tower", "desc", nil, nil, `{"`+c+`","`+a+`"}`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	body, ct := apitest.JSON(t, map[string]any{"images": []string{c, a}})
	w := apitest.Do(r, http.MethodPut, "/api/v1/projects/"+projectID, body, ct, apitest.Token(t))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.True(t, images.Exists(a))
	assert.False(t, images.Exists(b))
	assert.True(t, images.Exists(c))
}

func TestUpdate_EmptyLinkClearsIt(t *testing.T) {
	r, mock, _ := setup(t)
	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(projectCols).
			AddRow(projectID, "Eco Tower", "desc", now, "https://example.com", "{}", now, now))
	mock.ExpectExec("UPDATE projects").
		WithArgs(projectID, "Eco Tower", "desc", nil, nil, "{}", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	body, ct := apitest.JSON(t, map[string]string{"link": "", "date": ""})
	w := apitest.Do(r, http.MethodPut, "/api/v1/projects/"+projectID, body, ct, apitest.Token(t))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var p models.Project
	apitest.Decode(t, w, &p)
	assert.Nil(t, p.Link)
	assert.Nil(t, p.Date)
}

func TestUpdate_InvalidFieldRollsBackAndRemovesUploads(t *testing.T) {
	r, mock, images := setup(t)
	expectLocked(mock, "{}")
	mock.ExpectRollback()

	body, ct := apitest.Multipart(t, map[string]string{"date": "31/12/2024"}, apitest.PNGFile(t, "images", "new.png"))
	w := apitest.Do(r, http.MethodPut, "/api/v1/projects/"+projectID, body, ct, apitest.Token(t))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid project date", apitest.Decode(t, w, nil).Message)
	assert.Empty(t, images.Files(t, Folder))
}

func TestUpdate_Missing(t *testing.T) {
	r, mock, images := setup(t)
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnRows(sqlmock.NewRows(projectCols))
	mock.ExpectRollback()

	body, ct := apitest.Multipart(t, nil, apitest.PNGFile(t, "images", "new.png"))
	w := apitest.Do(r, http.MethodPut, "/api/v1/projects/"+projectID, body, ct, apitest.Token(t))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Project not found", apitest.Decode(t, w, nil).Message)
	assert.Empty(t, images.Files(t, Folder))
}

func TestUpdate_InvalidIDIsNotFound(t *testing.T) {
	r, _, _ := setup(t)
	body, ct := apitest.JSON(t, map[string]string{"name": "x"})
	w := apitest.Do(r, http.MethodPut, "/api/v1/projects/42", body, ct, apitest.Token(t))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// ---------------------------------------------------------------------------
// Delete
// ---------------------------------------------------------------------------

func TestDelete_RemovesAllImages(t *testing.T) {
	r, mock, images := setup(t)
	a := images.Put(t, "projects/a.png")
	b := images.Put(t, "projects/b.png")
	now := time.Now()
	mock.ExpectQuery("DELETE FROM projects").WithArgs(projectID).
		WillReturnRows(sqlmock.NewRows(projectCols).
			AddRow(projectID, "Eco Tower", "desc", nil, nil, "{"+a+","+b+"}", now, now))

	w := apitest.Do(r, http.MethodDelete, "/api/v1/projects/"+projectID, nil, "", apitest.Token(t))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Project deleted successfully", apitest.Decode(t, w, nil).Message)
	assert.False(t, images.Exists(a))
	assert.False(t, images.Exists(b))
}

func TestDelete_Missing(t *testing.T) {
	r, mock, _ := setup(t)
	mock.ExpectQuery("DELETE FROM projects").WillReturnRows(sqlmock.NewRows(projectCols))

	w := apitest.Do(r, http.MethodDelete, "/api/v1/projects/"+projectID, nil, "", apitest.Token(t))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Project not found", apitest.Decode(t, w, nil).Message)
}

func TestWrites_RequireToken(t *testing.T) {
	r, _, _ := setup(t)
	body, ct := apitest.JSON(t, map[string]string{"name": "x", "description": "y"})
	w := apitest.Do(r, http.MethodPost, "/api/v1/projects", body, ct, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
