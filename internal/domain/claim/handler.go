package claim

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
	r := g.Group("/claims")
	read := auth.RequireRole(auth.RoleAdmin, auth.RoleBiller, auth.RoleProvider, auth.RoleFrontDesk)
	write := auth.RequireRole(auth.RoleAdmin, auth.RoleBiller)
	r.GET("", h.List, read)
	r.GET("/:id", h.Get, read)
	r.POST("", h.Create, write)
	r.PUT("/:id", h.Update, write)
	r.PATCH("/:id/status", h.UpdateStatus, write)
	r.DELETE("/:id", h.Delete, write)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)

	f := Filter{
		Search: c.QueryParam("search"),
		Status: c.QueryParam("status"),
		Source: c.QueryParam("source"),
	}
	for param, dst := range map[string]**uuid.UUID{
		"patientId":  &f.PatientID,
		"providerId": &f.ProviderID,
		"payorId":    &f.PayorID,
	} {
		if v := c.QueryParam(param); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid "+param))
			}
			*dst = &id
		}
	}
	for param, dst := range map[string]**int64{
		"dateFrom": &f.DateFrom,
		"dateTo":   &f.DateTo,
	} {
		if v := c.QueryParam(param); v != "" {
			ts, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid "+param))
			}
			*dst = &ts
		}
	}
	for param, dst := range map[string]**float64{
		"amountMin": &f.AmountMin,
		"amountMax": &f.AmountMax,
	} {
		if v := c.QueryParam(param); v != "" {
			amount, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid "+param))
			}
			*dst = &amount
		}
	}
	if v := c.QueryParam("includeServices"); v != "" {
		f.IncludeServices, _ = strconv.ParseBool(v)
	}
	if v := c.QueryParam("includeTimeline"); v != "" {
		f.IncludeTimeline, _ = strconv.ParseBool(v)
	}

	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	if items == nil {
		items = []*Claim{}
	}
	return api.Page(c, items, pagination.NewMeta(pg, total))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid claim id"))
	}
	cl, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return api.OK(c, cl)
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid request body"))
	}
	cl, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return api.Created(c, cl)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid claim id"))
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid request body"))
	}
	cl, err := h.svc.Update(c.Request().Context(), id, req)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return api.OK(c, cl)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid claim id"))
	}
	var req StatusRequest
	if err := c.Bind(&req); err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid request body"))
	}
	cl, err := h.svc.UpdateStatus(c.Request().Context(), id, req)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return api.OK(c, cl)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid claim id"))
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return c.NoContent(http.StatusNoContent)
}
