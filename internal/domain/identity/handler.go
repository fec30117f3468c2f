package identity

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

// RegisterRoutes mounts the user management surface on the authenticated
// group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	r := g.Group("/users")
	read := auth.RequireRole(auth.RoleAdmin, auth.RoleBiller, auth.RoleProvider, auth.RoleFrontDesk)
	r.GET("", h.List, read)
	r.GET("/:id", h.Get, read)
	r.POST("", h.Create, auth.RequireRole(auth.RoleAdmin))
	r.PUT("/:id", h.Update, auth.RequireRole(auth.RoleAdmin))
	r.DELETE("/:id", h.Delete, auth.RequireRole(auth.RoleAdmin))

	g.GET("/auth/me", h.Me)
}

// RegisterPublicRoutes mounts the unauthenticated login endpoint.
func (h *Handler) RegisterPublicRoutes(g *echo.Group) {
	g.POST("/auth/login", h.Login)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{
		Search: c.QueryParam("search"),
		Role:   c.QueryParam("role"),
	}

	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	if items == nil {
		items = []*User{}
	}
	return api.Page(c, items, pagination.NewMeta(pg, total))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid user id"))
	}
	u, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return api.OK(c, u)
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid request body"))
	}
	u, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return api.Created(c, u)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid user id"))
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid request body"))
	}
	u, err := h.svc.Update(c.Request().Context(), id, req)
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return api.OK(c, u)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return api.Fail(c, h.log, entity, api.Validation(entity, "Invalid user id"))
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return api.Fail(c, h.log, authEntity, api.Validation(authEntity, "Invalid request body"))
	}
	result, err := h.svc.Login(c.Request().Context(), req)
	if err != nil {
		return api.Fail(c, h.log, authEntity, err)
	}
	return api.OK(c, result)
}

func (h *Handler) Me(c echo.Context) error {
	u, err := h.svc.Me(c.Request().Context())
	if err != nil {
		return api.Fail(c, h.log, entity, err)
	}
	return api.OK(c, u)
}
