package cptcode

import (
	"net/http"

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
	r := g.Group("/cpt-codes")
	read := auth.RequireRole(auth.RoleAdmin, auth.RoleBiller, auth.RoleProvider, auth.RoleFrontDesk)
	write := auth.RequireRole(auth.RoleAdmin, auth.RoleBiller)
	r.GET("", h.List, read)
	r.GET("/:id", h.Get, read)
	r.POST("", h.Create, write)
	r.PUT("/:id", h.Update, write)
	r.DELETE("/:id", h.Delete, write)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)

	f := Filter{
		Search:    c.QueryParam("search"),
		Specialty: c.QueryParam("specialty"),
	}

	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	if items == nil {
		items = []*CPTCode{}
	}
	return api.Page(c, items, pagination.NewMeta(pg, total))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid CPT code id"))
	}
	code, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return api.OK(c, code)
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid request body"))
	}
	code, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return api.Created(c, code)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid CPT code id"))
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid request body"))
	}
	code, err := h.svc.Update(c.Request().Context(), id, req)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return api.OK(c, code)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid CPT code id"))
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return c.NoContent(http.StatusNoContent)
}
