package organization

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
	r := g.Group("/organizations")
	read := auth.RequireRole(auth.RoleAdmin, auth.RoleBiller, auth.RoleProvider, auth.RoleFrontDesk)
	r.GET("", h.List, read)
	r.GET("/:id", h.Get, read)
	r.POST("", h.Create, auth.RequireRole(auth.RoleAdmin))
	r.PUT("/:id", h.Update, auth.RequireRole(auth.RoleAdmin))
	r.DELETE("/:id", h.Delete, auth.RequireRole(auth.RoleAdmin))
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)

	var f Filter
	f.Search = c.QueryParam("search")
	if v := c.QueryParam("parentOrganizationId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid parentOrganizationId"))
		}
		f.ParentID = &id
	}

	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	if items == nil {
		items = []*Organization{}
	}
	return api.Page(c, items, pagination.NewMeta(pg, total))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid organization id"))
	}
	o, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return api.OK(c, o)
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid request body"))
	}
	o, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return api.Created(c, o)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid organization id"))
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid request body"))
	}
	o, err := h.svc.Update(c.Request().Context(), id, req)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return api.OK(c, o)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid organization id"))
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return c.NoContent(http.StatusNoContent)
}
