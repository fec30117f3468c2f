package patient

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
	write := auth.RequireRole(auth.RoleAdmin, auth.RoleBiller, auth.RoleFrontDesk)
	remove := auth.RequireRole(auth.RoleAdmin, auth.RoleBiller)

	r := g.Group("/patients")
	r.GET("", h.List, read)
	r.GET("/:id", h.Get, read)
	r.POST("", h.Create, write)
	r.PUT("/:id", h.Update, write)
	r.DELETE("/:id", h.Delete, remove)

	pr := g.Group("/insurance-policies")
	pr.GET("", h.ListPolicies, read)
	pr.GET("/:id", h.GetPolicy, read)
	pr.PUT("/:id", h.UpdatePolicy, write)
	pr.DELETE("/:id", h.DeletePolicy, remove)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)

	f := Filter{
		Search: c.QueryParam("search"),
		Source: c.QueryParam("source"),
	}
	if v := c.QueryParam("includeInsurances"); v != "" {
		f.IncludeInsurances, _ = strconv.ParseBool(v)
	}

	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	if items == nil {
		items = []*Patient{}
	}
	return api.Page(c, items, pagination.NewMeta(pg, total))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid patient id"))
	}
	pt, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return api.OK(c, pt)
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid request body"))
	}
	pt, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return api.Created(c, pt)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid patient id"))
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid request body"))
	}
	pt, err := h.svc.Update(c.Request().Context(), id, req)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return api.OK(c, pt)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid patient id"))
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListPolicies(c echo.Context) error {
	pg := pagination.FromContext(c)

	var f PolicyFilter
	if v := c.QueryParam("patientId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return api.Fail(c, h.log, policyEntity, api.Validation(policyEntity, "Invalid patientId"))
		}
		f.PatientID = &id
	}
	if v := c.QueryParam("payorId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return api.Fail(c, h.log, policyEntity, api.Validation(policyEntity, "Invalid payorId"))
		}
		f.PayorID = &id
	}
	if v := c.QueryParam("isPrimary"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return api.Fail(c, h.log, policyEntity, api.Validation(policyEntity, "Invalid isPrimary"))
		}
		f.IsPrimary = &b
	}

	items, total, err := h.svc.ListPolicies(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return api.Fail(c, h.log, policyEntity, err)
	}
	if items == nil {
		items = []*InsurancePolicy{}
	}
	return api.Page(c, items, pagination.NewMeta(pg, total))
}

func (h *Handler) GetPolicy(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return api.Fail(c, h.log, policyEntity, api.Validation(policyEntity, "Invalid policy id"))
	}
	ip, err := h.svc.GetPolicy(c.Request().Context(), id)
	if err != nil {
		return api.Fail(c, h.log, policyEntity, err)
	}
	return api.OK(c, ip)
}

func (h *Handler) UpdatePolicy(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return api.Fail(c, h.log, policyEntity, api.Validation(policyEntity, "Invalid policy id"))
	}
	var req PolicyUpdateRequest
	if err := c.Bind(&req); err != nil {
		return api.Fail(c, h.log, policyEntity, api.Validation(policyEntity, "Invalid request body"))
	}
	ip, err := h.svc.UpdatePolicy(c.Request().Context(), id, req)
	if err != nil {
		return api.Fail(c, h.log, policyEntity, err)
	}
	return api.OK(c, ip)
}

func (h *Handler) DeletePolicy(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return api.Fail(c, h.log, policyEntity, api.Validation(policyEntity, "Invalid policy id"))
	}
	if err := h.svc.DeletePolicy(c.Request().Context(), id); err != nil {
		return api.Fail(c, h.log, policyEntity, err)
	}
	return c.NoContent(http.StatusNoContent)
}
