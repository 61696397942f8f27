// Package projects implements the project endpoints under /api/v1/projects.
// A project carries an ordered list of image references; uploads append to it
// unless the client asks to replace the list.
package projects

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"

	"github.com/doubleh-portfolio/portfolio-api/internal/api/respond"
	"github.com/doubleh-portfolio/portfolio-api/internal/db/models"
	"github.com/doubleh-portfolio/portfolio-api/internal/db/repositories"
	"github.com/doubleh-portfolio/portfolio-api/internal/middleware"
	"github.com/doubleh-portfolio/portfolio-api/internal/storage"
	"github.com/doubleh-portfolio/portfolio-api/internal/validation"
)

// Folder is the storage folder project images are written to.
const Folder = "projects"

// UploadFields are the multipart file fields accepted by create and update.
var UploadFields = []middleware.UploadField{{Name: "images", MaxCount: 10}}

const msgNotFound = "Project not found"

// projectInput is bound from multipart forms and JSON bodies. Nil pointers
// were not supplied; an empty date or link clears the stored value on update.
// Multipart "images" parts are files, so existing references travel as
// repeated "keepImages" values there and as "images" in JSON.
type projectInput struct {
	Name          *string  `form:"name" json:"name" binding:"omitempty,max=200"`
	Description   *string  `form:"description" json:"description"`
	Date          *string  `form:"date" json:"date"`
	Link          *string  `form:"link" json:"link" binding:"omitempty,max=2048"`
	Images        []string `form:"keepImages" json:"images" binding:"omitempty,max=50,dive,imageref"`
	ReplaceImages bool     `form:"replaceImages" json:"replaceImages"`
}

// badRequest is a validation failure reported to the client as 400.
type badRequest string

func (e badRequest) Error() string { return string(e) }

// apply copies the supplied fields onto p, validating each one.
func (in *projectInput) apply(p *models.Project) error {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return badRequest("Project name is required")
		}
		p.Name = name
	}
	if in.Description != nil {
		if strings.TrimSpace(*in.Description) == "" {
			return badRequest("Project description is required")
		}
		p.Description = *in.Description
	}
	if in.Date != nil {
		if strings.TrimSpace(*in.Date) == "" {
			p.Date = nil
		} else {
			d, err := validation.ParseDate(*in.Date)
			if err != nil {
				return badRequest("Invalid project date")
			}
			p.Date = &d
		}
	}
	if in.Link != nil {
		link := strings.TrimSpace(*in.Link)
		if link == "" {
			p.Link = nil
		} else {
			if err := validation.ValidateLink(link); err != nil {
				return badRequest("Invalid project link")
			}
			p.Link = &link
		}
	}
	return nil
}

// Handler serves the project endpoints.
type Handler struct {
	repo   *repositories.ProjectRepository
	images *storage.ImageStore
}

// NewHandler creates a new Handler.
func NewHandler(repo *repositories.ProjectRepository, images *storage.ImageStore) *Handler {
	return &Handler{repo: repo, images: images}
}

func bindInput(c *gin.Context, in *projectInput) bool {
	if err := c.ShouldBind(in); err != nil && !errors.Is(err, io.EOF) {
		respond.Fail(c, http.StatusBadRequest, "Invalid project data")
		return false
	}
	return true
}

// @Summary      List projects
// @Tags         Projects
// @Produce      json
// @Success      200  {object}  respond.Envelope
// @Router       /api/v1/projects [get]
func (h *Handler) List(c *gin.Context) {
	projects, err := h.repo.ListProjects(c.Request.Context())
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "Failed to fetch projects", err)
		return
	}
	respond.List(c, http.StatusOK, "", projects, len(projects))
}

// @Summary      Get a project
// @Tags         Projects
// @Produce      json
// @Param        id  path  string  true  "Project ID"
// @Success      200  {object}  respond.Envelope
// @Failure      400  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope
// @Router       /api/v1/projects/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	id := c.Param("id")
	if !validation.ValidID(id) {
		respond.Fail(c, http.StatusBadRequest, "Invalid project ID")
		return
	}

	project, err := h.repo.GetProject(c.Request.Context(), id)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "Failed to fetch project", err)
		return
	}
	if project == nil {
		respond.Fail(c, http.StatusNotFound, msgNotFound)
		return
	}
	respond.OK(c, http.StatusOK, "", project)
}

// @Summary      Create a project
// @Description  Multipart form or JSON. "name" and "description" are required; files go under "images".
// @Tags         Projects
// @Security     Bearer
// @Accept       multipart/form-data,json
// @Produce      json
// @Success      201  {object}  respond.Envelope
// @Failure      400  {object}  respond.Envelope
// @Router       /api/v1/projects [post]
func (h *Handler) Create(c *gin.Context) {
	var in projectInput
	if !bindInput(c, &in) {
		return
	}
	if in.Name == nil {
		respond.Fail(c, http.StatusBadRequest, "Project name is required")
		return
	}
	if in.Description == nil {
		respond.Fail(c, http.StatusBadRequest, "Project description is required")
		return
	}

	project := &models.Project{}
	if err := in.apply(project); err != nil {
		respond.Fail(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := c.Request.Context()
	refs, err := h.images.SaveAll(ctx, Folder, middleware.StorageImages(middleware.UploadedImages(c, "images")))
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "Failed to create project", err)
		return
	}
	project.Images = append(pq.StringArray{}, in.Images...)
	project.Images = append(project.Images, refs...)

	if err := h.repo.CreateProject(ctx, project); err != nil {
		h.images.Remove(context.WithoutCancel(ctx), refs...)
		respond.Error(c, http.StatusInternalServerError, "Failed to create project", err)
		return
	}
	respond.OK(c, http.StatusCreated, "Project created successfully", project)
}

// @Summary      Update a project
// @Description  Partial update. Uploaded "images" are appended, or replace the list when replaceImages=true. A JSON "images" array (multipart: repeated "keepImages") sets the list of existing references. Files no longer referenced are removed.
// @Tags         Projects
// @Security     Bearer
// @Accept       multipart/form-data,json
// @Produce      json
// @Param        id  path  string  true  "Project ID"
// @Success      200  {object}  respond.Envelope
// @Failure      400  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope
// @Router       /api/v1/projects/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	id := c.Param("id")
	if !validation.ValidID(id) {
		respond.Fail(c, http.StatusNotFound, msgNotFound)
		return
	}

	var in projectInput
	if !bindInput(c, &in) {
		return
	}

	ctx := c.Request.Context()
	refs, err := h.images.SaveAll(ctx, Folder, middleware.StorageImages(middleware.UploadedImages(c, "images")))
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "Failed to update project", err)
		return
	}

	updated, before, err := h.repo.UpdateProject(ctx, id, func(p *models.Project) error {
		if err := in.apply(p); err != nil {
			return err
		}
		if in.ReplaceImages || in.Images != nil {
			p.Images = append(pq.StringArray{}, in.Images...)
		}
		p.Images = append(p.Images, refs...)
		return nil
	})

	var invalid badRequest
	switch {
	case errors.As(err, &invalid):
		h.images.Remove(context.WithoutCancel(ctx), refs...)
		respond.Fail(c, http.StatusBadRequest, invalid.Error())
		return
	case err != nil:
		h.images.Remove(context.WithoutCancel(ctx), refs...)
		respond.Error(c, http.StatusInternalServerError, "Failed to update project", err)
		return
	case updated == nil:
		h.images.Remove(context.WithoutCancel(ctx), refs...)
		respond.Fail(c, http.StatusNotFound, msgNotFound)
		return
	}

	h.images.Remove(context.WithoutCancel(ctx), storage.Unreferenced(before.Images, updated.Images)...)
	respond.OK(c, http.StatusOK, "Project updated successfully", updated)
}

// @Summary      Delete a project
// @Tags         Projects
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Project ID"
// @Success      200  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope
// @Router       /api/v1/projects/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	id := c.Param("id")
	if !validation.ValidID(id) {
		respond.Fail(c, http.StatusNotFound, msgNotFound)
		return
	}
	ctx := c.Request.Context()

	project, err := h.repo.DeleteProject(ctx, id)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "Failed to delete project", err)
		return
	}
	if project == nil {
		respond.Fail(c, http.StatusNotFound, msgNotFound)
		return
	}

	h.images.Remove(context.WithoutCancel(ctx), project.Images...)
	respond.OK(c, http.StatusOK, "Project deleted successfully", nil)
}
