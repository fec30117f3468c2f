package rule

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
	read := auth.RequireRole(auth.RoleAdmin, auth.RoleBiller, auth.RoleProvider, auth.RoleFrontDesk)
	write := auth.RequireRole(auth.RoleAdmin, auth.RoleBiller)

	r := g.Group("/rules")
	r.GET("", h.List, read)
	r.GET("/:id", h.Get, read)
	r.POST("", h.Create, write)
	r.PUT("/:id", h.Update, write)
	r.PATCH("/:id/status", h.UpdateStatus, write)
	r.DELETE("/:id", h.Delete, write)

	er := g.Group("/rule-executions")
	er.GET("", h.ListExecutions, read)
	er.GET("/:id", h.GetExecution, read)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)

	f := Filter{Search: c.QueryParam("search")}
	if v := c.QueryParam("isActive"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid isActive"))
		}
		f.IsActive = &b
	}

	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	if items == nil {
		items = []*Rule{}
	}
	return api.Page(c, items, pagination.NewMeta(pg, total))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid rule id"))
	}
	ru, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return api.OK(c, ru)
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid request body"))
	}
	ru, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return api.Created(c, ru)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid rule id"))
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid request body"))
	}
	ru, err := h.svc.Update(c.Request().Context(), id, req)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return api.OK(c, ru)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid rule id"))
	}
	var req StatusRequest
	if err := c.Bind(&req); err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid request body"))
	}
	ru, err := h.svc.UpdateStatus(c.Request().Context(), id, req)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return api.OK(c, ru)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid rule id"))
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListExecutions(c echo.Context) error {
	pg := pagination.FromContext(c)

	f := ExecutionFilter{Status: c.QueryParam("status")}
	if v := c.QueryParam("ruleId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return api.Fail(c, h.log, execEntity, api.Validation(execEntity, "Invalid ruleId"))
		}
		f.RuleID = &id
	}
	if v := c.QueryParam("claimId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return api.Fail(c, h.log, execEntity, api.Validation(execEntity, "Invalid claimId"))
		}
		f.ClaimID = &id
	}
	if v := c.QueryParam("dateFrom"); v != "" {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return api.Fail(c, h.log, execEntity, api.Validation(execEntity, "Invalid dateFrom"))
		}
		f.DateFrom = &ts
	}
	if v := c.QueryParam("dateTo"); v != "" {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return api.Fail(c, h.log, execEntity, api.Validation(execEntity, "Invalid dateTo"))
		}
		f.DateTo = &ts
	}

	items, total, err := h.svc.ListExecutions(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return api.Fail(c, h.log, execEntity, err)
	}
	if items == nil {
		items = []*Execution{}
	}
	return api.Page(c, items, pagination.NewMeta(pg, total))
}

func (h *Handler) GetExecution(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return api.Fail(c, h.log, execEntity, api.Validation(execEntity, "Invalid execution id"))
	}
	e, err := h.svc.GetExecution(c.Request().Context(), id)
	if err != nil {
		return api.Fail(c, h.log, execEntity, err)
	}
	return api.OK(c, e)
}
