package visit

import (
	"net/http"
	"strconv"

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
	r := g.Group("/visits")
	read := auth.RequireRole(auth.RoleAdmin, auth.RoleBiller, auth.RoleProvider, auth.RoleFrontDesk)
	write := auth.RequireRole(auth.RoleAdmin, auth.RoleBiller, auth.RoleFrontDesk)
	r.GET("", h.List, read)
	r.GET("/:id", h.Get, read)
	r.POST("", h.Create, write)
	r.PUT("/:id", h.Update, write)
	r.DELETE("/:id", h.Delete, auth.RequireRole(auth.RoleAdmin, auth.RoleBiller))
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)

	f := Filter{
		Search: c.QueryParam("search"),
		Status: c.QueryParam("status"),
		Source: c.QueryParam("source"),
	}
	if v := c.QueryParam("patientId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid patientId"))
		}
		f.PatientID = &id
	}
	if v := c.QueryParam("providerId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid providerId"))
		}
		f.ProviderID = &id
	}
	if v := c.QueryParam("dateFrom"); v != "" {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid dateFrom"))
		}
		f.DateFrom = &ts
	}
	if v := c.QueryParam("dateTo"); v != "" {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid dateTo"))
		}
		f.DateTo = &ts
	}

	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	if items == nil {
		items = []*Visit{}
	}
	return api.Page(c, items, pagination.NewMeta(pg, total))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid visit id"))
	}
	v, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return api.OK(c, v)
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid request body"))
	}
	v, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return api.Created(c, v)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid visit id"))
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid request body"))
	}
	v, err := h.svc.Update(c.Request().Context(), id, req)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return api.OK(c, v)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid visit id"))
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return c.NoContent(http.StatusNoContent)
}
