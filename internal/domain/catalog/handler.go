package catalog

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/emsops/emsops/internal/platform/apperr"
	"github.com/emsops/emsops/internal/platform/auth"
	"github.com/emsops/emsops/internal/platform/response"
	"github.com/emsops/emsops/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("/catalogs", auth.RequireRole(auth.RoleAdmin, auth.RoleSupervisor, auth.RoleCrew))
	read.GET("/:kind", h.List)
	read.GET("/:kind/:id", h.Get)

	write := api.Group("/catalogs", auth.RequireRole(auth.RoleAdmin, auth.RoleSupervisor))
	write.POST("/:kind", h.Create)
	write.PATCH("/:kind/:id", h.Update)
	write.POST("/:kind/:id/deactivate", h.Deactivate)
	write.DELETE("/:kind/:id", h.Delete)
}

func pathParams(c echo.Context, withID bool) (Kind, uuid.UUID, error) {
	kind, err := ParseKind(c.Param("kind"))
	if err != nil {
		return "", uuid.Nil, err
	}
	if !withID {
		return kind, uuid.Nil, nil
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return "", uuid.Nil, apperr.ValidationField("id", "invalid id %q", c.Param("id"))
	}
	return kind, id, nil
}

func (h *Handler) List(c echo.Context) error {
	kind, _, err := pathParams(c, false)
	if err != nil {
		return err
	}
	f := Filter{Query: c.QueryParam("q")}
	if v := c.QueryParam("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			return apperr.ValidationField("active", "active must be true or false")
		}
		f.Active = &active
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), kind, f, pg)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "", pagination.NewResponse(items, total, pg))
}

func (h *Handler) Get(c echo.Context) error {
	kind, id, err := pathParams(c, true)
	if err != nil {
		return err
	}
	it, err := h.svc.Get(c.Request().Context(), kind, id)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "", it)
}

func (h *Handler) Create(c echo.Context) error {
	kind, _, err := pathParams(c, false)
	if err != nil {
		return err
	}
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	it, err := h.svc.Create(c.Request().Context(), kind, req)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusCreated, "catalog item created", it)
}

func (h *Handler) Update(c echo.Context) error {
	kind, id, err := pathParams(c, true)
	if err != nil {
		return err
	}
	var p Patch
	if err := c.Bind(&p); err != nil {
		return err
	}
	if err := c.Validate(&p); err != nil {
		return err
	}
	it, err := h.svc.Update(c.Request().Context(), kind, id, p)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "catalog item updated", it)
}

func (h *Handler) Deactivate(c echo.Context) error {
	kind, id, err := pathParams(c, true)
	if err != nil {
		return err
	}
	it, err := h.svc.Deactivate(c.Request().Context(), kind, id)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "catalog item deactivated", it)
}

func (h *Handler) Delete(c echo.Context) error {
	kind, id, err := pathParams(c, true)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), kind, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
