// Package partners implements the partner logo endpoints under /api/v1/partners.
package partners

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/doubleh-portfolio/portfolio-api/internal/api/respond"
	"github.com/doubleh-portfolio/portfolio-api/internal/db/models"
	"github.com/doubleh-portfolio/portfolio-api/internal/db/repositories"
	"github.com/doubleh-portfolio/portfolio-api/internal/middleware"
	"github.com/doubleh-portfolio/portfolio-api/internal/storage"
	"github.com/doubleh-portfolio/portfolio-api/internal/validation"
)

// Folder is the storage folder partner logos are written to.
const Folder = "partners"

// UploadFields are the multipart file fields accepted by create and update.
var UploadFields = []middleware.UploadField{{Name: "image", MaxCount: 1}}

const (
	msgNotFound      = "Partner not found"
	msgNameRequired  = "Partner name is required"
	msgImageRequired = "Partner image is required"
)

// partnerInput is bound from multipart forms and JSON bodies alike. Nil
// fields were not supplied.
type partnerInput struct {
	Name  *string `form:"name" json:"name" binding:"omitempty,max=200"`
	Image *string `form:"-" json:"image" binding:"omitempty,imageref"`
}

// Handler serves the partner endpoints.
type Handler struct {
	repo   *repositories.PartnerRepository
	images *storage.ImageStore
}

// NewHandler creates a new Handler.
func NewHandler(repo *repositories.PartnerRepository, images *storage.ImageStore) *Handler {
	return &Handler{repo: repo, images: images}
}

func bindInput(c *gin.Context, in *partnerInput) error {
	if err := c.ShouldBind(in); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		in.Name = &name
	}
	return nil
}

// @Summary      List partners
// @Tags         Partners
// @Produce      json
// @Success      200  {object}  respond.Envelope
// @Router       /api/v1/partners [get]
func (h *Handler) List(c *gin.Context) {
	partners, err := h.repo.ListPartners(c.Request.Context())
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "Failed to fetch partners", err)
		return
	}
	respond.List(c, http.StatusOK, "", partners, len(partners))
}

// @Summary      Get a partner
// @Tags         Partners
// @Produce      json
// @Param        id  path  string  true  "Partner ID"
// @Success      200  {object}  respond.Envelope
// @Failure      400  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope
// @Router       /api/v1/partners/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	id := c.Param("id")
	if !validation.ValidID(id) {
		respond.Fail(c, http.StatusBadRequest, "Invalid partner ID")
		return
	}

	partner, err := h.repo.GetPartner(c.Request.Context(), id)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "Failed to fetch partner", err)
		return
	}
	if partner == nil {
		respond.Fail(c, http.StatusNotFound, msgNotFound)
		return
	}
	respond.OK(c, http.StatusOK, "", partner)
}

// @Summary      Create a partner
// @Description  Multipart form with "name" and a single "image" file.
// @Tags         Partners
// @Security     Bearer
// @Accept       multipart/form-data
// @Produce      json
// @Success      201  {object}  respond.Envelope
// @Failure      400  {object}  respond.Envelope
// @Router       /api/v1/partners [post]
func (h *Handler) Create(c *gin.Context) {
	files := middleware.UploadedImages(c, "image")
	if len(files) == 0 {
		respond.Fail(c, http.StatusBadRequest, msgImageRequired)
		return
	}

	var in partnerInput
	if err := bindInput(c, &in); err != nil {
		respond.Fail(c, http.StatusBadRequest, "Invalid partner data")
		return
	}
	if in.Name == nil || *in.Name == "" {
		respond.Fail(c, http.StatusBadRequest, msgNameRequired)
		return
	}

	ctx := c.Request.Context()
	refs, err := h.images.SaveAll(ctx, Folder, middleware.StorageImages(files))
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "Failed to create partner", err)
		return
	}

	partner := &models.Partner{Name: *in.Name, Image: refs[0]}
	if err := h.repo.CreatePartner(ctx, partner); err != nil {
		h.images.Remove(context.WithoutCancel(ctx), refs...)
		respond.Error(c, http.StatusInternalServerError, "Failed to create partner", err)
		return
	}
	respond.OK(c, http.StatusCreated, "Partner created successfully", partner)
}

// @Summary      Update a partner
// @Description  Partial update from a multipart form or JSON. Only supplied fields change; a new "image" file replaces the stored logo.
// @Tags         Partners
// @Security     Bearer
// @Accept       multipart/form-data,json
// @Produce      json
// @Param        id  path  string  true  "Partner ID"
// @Success      200  {object}  respond.Envelope
// @Failure      400  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope
// @Router       /api/v1/partners/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	id := c.Param("id")
	if !validation.ValidID(id) {
		respond.Fail(c, http.StatusNotFound, msgNotFound)
		return
	}

	var in partnerInput
	if err := bindInput(c, &in); err != nil {
		respond.Fail(c, http.StatusBadRequest, "Invalid partner data")
		return
	}
	if in.Name != nil && *in.Name == "" {
		respond.Fail(c, http.StatusBadRequest, msgNameRequired)
		return
	}
	// omitempty skips the imageref rule for "", so an empty reference is caught here.
	if in.Image != nil && *in.Image == "" {
		respond.Fail(c, http.StatusBadRequest, msgImageRequired)
		return
	}

	ctx := c.Request.Context()
	upd := repositories.PartnerUpdate{Name: in.Name, Image: in.Image}

	var stored []string
	if files := middleware.UploadedImages(c, "image"); len(files) > 0 {
		refs, err := h.images.SaveAll(ctx, Folder, middleware.StorageImages(files))
		if err != nil {
			respond.Error(c, http.StatusInternalServerError, "Failed to update partner", err)
			return
		}
		stored = refs
		upd.Image = &refs[0]
	}

	partner, previous, err := h.repo.UpdatePartner(ctx, id, upd)
	if err != nil || partner == nil {
		h.images.Remove(context.WithoutCancel(ctx), stored...)
		if err != nil {
			respond.Error(c, http.StatusInternalServerError, "Failed to update partner", err)
		} else {
			respond.Fail(c, http.StatusNotFound, msgNotFound)
		}
		return
	}

	if previous != partner.Image {
		h.images.Remove(context.WithoutCancel(ctx), previous)
	}
	respond.OK(c, http.StatusOK, "Partner updated successfully", partner)
}

// @Summary      Delete a partner
// @Tags         Partners
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Partner ID"
// @Success      200  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope
// @Router       /api/v1/partners/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	id := c.Param("id")
	if !validation.ValidID(id) {
		respond.Fail(c, http.StatusNotFound, msgNotFound)
		return
	}
	ctx := c.Request.Context()

	partner, err := h.repo.DeletePartner(ctx, id)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "Failed to delete partner", err)
		return
	}
	if partner == nil {
		respond.Fail(c, http.StatusNotFound, msgNotFound)
		return
	}

	h.images.Remove(context.WithoutCancel(ctx), partner.Image)
	respond.OK(c, http.StatusOK, "Partner deleted successfully", nil)
}
