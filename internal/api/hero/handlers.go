// Package hero implements the hero carousel endpoints under /api/v1/hero.
// Each record holds exactly one image; a multi-file upload creates one record
// per file.
package hero

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/doubleh-portfolio/portfolio-api/internal/api/respond"
	"github.com/doubleh-portfolio/portfolio-api/internal/db/repositories"
	"github.com/doubleh-portfolio/portfolio-api/internal/middleware"
	"github.com/doubleh-portfolio/portfolio-api/internal/storage"
	"github.com/doubleh-portfolio/portfolio-api/internal/validation"
)

// Folder is the storage folder hero images are written to.
const Folder = "hero"

// Upload fields accepted by the hero routes.
var (
	CreateFields = []middleware.UploadField{{Name: "images", MaxCount: 10}, {Name: "image", MaxCount: 1}}
	UpdateFields = []middleware.UploadField{{Name: "image", MaxCount: 1}}
)

const msgNotFound = "Hero image not found"

// Handler serves the hero endpoints.
type Handler struct {
	repo   *repositories.HeroRepository
	images *storage.ImageStore
}

// NewHandler creates a new Handler.
func NewHandler(repo *repositories.HeroRepository, images *storage.ImageStore) *Handler {
	return &Handler{repo: repo, images: images}
}

// @Summary      List hero images
// @Tags         Hero
// @Produce      json
// @Success      200  {object}  respond.Envelope
// @Router       /api/v1/hero [get]
func (h *Handler) List(c *gin.Context) {
	heroes, err := h.repo.ListHeroImages(c.Request.Context())
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "Failed to fetch hero images", err)
		return
	}
	respond.List(c, http.StatusOK, "", heroes, len(heroes))
}

// @Summary      Get a hero image
// @Tags         Hero
// @Produce      json
// @Param        id  path  string  true  "Hero image ID"
// @Success      200  {object}  respond.Envelope
// @Failure      400  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope
// @Router       /api/v1/hero/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	id := c.Param("id")
	if !validation.ValidID(id) {
		respond.Fail(c, http.StatusBadRequest, "Invalid hero image ID")
		return
	}

	hero, err := h.repo.GetHeroImage(c.Request.Context(), id)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "Failed to fetch hero image", err)
		return
	}
	if hero == nil {
		respond.Fail(c, http.StatusNotFound, msgNotFound)
		return
	}
	respond.OK(c, http.StatusOK, "", hero)
}

// @Summary      Add hero images
// @Description  Multipart upload with files under "images" (up to 10) and/or "image". Each file becomes its own record.
// @Tags         Hero
// @Security     Bearer
// @Accept       multipart/form-data
// @Produce      json
// @Success      201  {object}  respond.Envelope
// @Failure      400  {object}  respond.Envelope
// @Router       /api/v1/hero [post]
func (h *Handler) Create(c *gin.Context) {
	files := middleware.UploadedImages(c, "images", "image")
	if len(files) == 0 {
		respond.Fail(c, http.StatusBadRequest, "Please upload at least one image")
		return
	}

	ctx := c.Request.Context()
	refs, err := h.images.SaveAll(ctx, Folder, middleware.StorageImages(files))
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "Failed to add hero image(s)", err)
		return
	}

	created, err := h.repo.CreateHeroImages(ctx, refs)
	if err != nil {
		h.images.Remove(context.WithoutCancel(ctx), refs...)
		respond.Error(c, http.StatusInternalServerError, "Failed to add hero image(s)", err)
		return
	}

	message := "Hero image added successfully"
	if len(created) > 1 {
		message = fmt.Sprintf("%d hero images added successfully", len(created))
	}
	respond.List(c, http.StatusCreated, message, created, len(created))
}

// @Summary      Replace a hero image
// @Description  Optional multipart file "image". The previously stored file is removed after the record is updated.
// @Tags         Hero
// @Security     Bearer
// @Accept       multipart/form-data
// @Produce      json
// @Param        id  path  string  true  "Hero image ID"
// @Success      200  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope
// @Router       /api/v1/hero/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	id := c.Param("id")
	if !validation.ValidID(id) {
		respond.Fail(c, http.StatusNotFound, msgNotFound)
		return
	}
	ctx := c.Request.Context()

	files := middleware.UploadedImages(c, "image")
	if len(files) == 0 {
		hero, err := h.repo.GetHeroImage(ctx, id)
		if err != nil {
			respond.Error(c, http.StatusInternalServerError, "Failed to update hero image", err)
			return
		}
		if hero == nil {
			respond.Fail(c, http.StatusNotFound, msgNotFound)
			return
		}
		respond.OK(c, http.StatusOK, "Hero image updated successfully", hero)
		return
	}

	refs, err := h.images.SaveAll(ctx, Folder, middleware.StorageImages(files))
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "Failed to update hero image", err)
		return
	}

	hero, previous, err := h.repo.UpdateHeroImage(ctx, id, refs[0])
	if err != nil || hero == nil {
		h.images.Remove(context.WithoutCancel(ctx), refs...)
		if err != nil {
			respond.Error(c, http.StatusInternalServerError, "Failed to update hero image", err)
		} else {
			respond.Fail(c, http.StatusNotFound, msgNotFound)
		}
		return
	}

	if previous != hero.Image {
		h.images.Remove(context.WithoutCancel(ctx), previous)
	}
	respond.OK(c, http.StatusOK, "Hero image updated successfully", hero)
}

// @Summary      Delete a hero image
// @Tags         Hero
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Hero image ID"
// @Success      200  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope
// @Router       /api/v1/hero/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	id := c.Param("id")
	if !validation.ValidID(id) {
		respond.Fail(c, http.StatusNotFound, msgNotFound)
		return
	}
	ctx := c.Request.Context()

	hero, err := h.repo.DeleteHeroImage(ctx, id)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "Failed to delete hero image", err)
		return
	}
	if hero == nil {
		respond.Fail(c, http.StatusNotFound, msgNotFound)
		return
	}

	h.images.Remove(context.WithoutCancel(ctx), hero.Image)
	respond.OK(c, http.StatusOK, "Hero image deleted successfully", nil)
}
