package attachment

import (
	"fmt"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/forager/billing/internal/platform/api"
	"github.com/forager/billing/internal/platform/auth"
	"github.com/forager/billing/pkg/pagination"
)

type Handler struct {
	svc *Service
	log zerolog.Logger
}

func NewHandler(svc *Service, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	read := auth.RequireRole(auth.RoleAdmin, auth.RoleBiller, auth.RoleProvider, auth.RoleFrontDesk)
	write := auth.RequireRole(auth.RoleAdmin, auth.RoleBiller, auth.RoleFrontDesk)
	remove := auth.RequireRole(auth.RoleAdmin, auth.RoleBiller)

	r := g.Group("/attachments")
	r.GET("", h.List, read)
	r.GET("/:id", h.Get, read)
	r.GET("/:id/download", h.Download, read)
	r.POST("", h.Upload, write)
	r.DELETE("/:id", h.Delete, remove)
}

func (h *Handler) Upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "A file is required"))
	}

	req := UploadRequest{FileName: fh.Filename}
	if v := c.FormValue("claimId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid claimId"))
		}
		req.ClaimID = &id
	}
	if v := c.FormValue("patientId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid patientId"))
		}
		req.PatientID = &id
	}

	src, err := fh.Open()
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	defer src.Close()
	req.Content = src

	a, err := h.svc.Upload(c.Request().Context(), req)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return api.Created(c, a)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)

	f := Filter{FileType: c.QueryParam("fileType")}
	if v := c.QueryParam("claimId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid claimId"))
		}
		f.ClaimID = &id
	}
	if v := c.QueryParam("patientId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid patientId"))
		}
		f.PatientID = &id
	}

	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	if items == nil {
		items = []*Attachment{}
	}
	return api.Page(c, items, pagination.NewMeta(pg, total))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid attachment id"))
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return api.OK(c, a)
}

func (h *Handler) Download(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid attachment id"))
	}
	a, rc, err := h.svc.Open(c.Request().Context(), id)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(filepath.Ext(a.FileName))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename=%q`, a.FileName))
	return c.Stream(http.StatusOK, contentType, rc)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid attachment id"))
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return c.NoContent(http.StatusNoContent)
}
