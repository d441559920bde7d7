package fleet

import (
	"net/http"
	"strconv"
	"time"

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
	// Read endpoints and inventory recording – every role
	crew := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleSupervisor, auth.RoleCrew))
	crew.GET("/ambulances", h.ListAmbulances)
	crew.GET("/ambulances/:id", h.GetAmbulance)
	crew.GET("/inventories", h.ListInventories)
	crew.GET("/inventories/:id", h.GetInventory)
	crew.GET("/inventories/:id/shortages", h.GetShortages)
	crew.POST("/inventories", h.RecordInventory)

	// Fleet administration – admin, supervisor
	admin := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleSupervisor))
	admin.POST("/ambulances", h.CreateAmbulance)
	admin.PATCH("/ambulances/:id", h.UpdateAmbulance)
	admin.DELETE("/ambulances/:id", h.DeleteAmbulance)
	admin.DELETE("/inventories/:id", h.DeleteInventory)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.ValidationField("id", "invalid id %q", c.Param("id"))
	}
	return id, nil
}

func queryUUID(c echo.Context, name string) (*uuid.UUID, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, apperr.ValidationField(name, "%s must be a valid UUID", name)
	}
	return &id, nil
}

func queryDate(c echo.Context, name string) (*time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	d, err := time.Parse(DateLayout, v)
	if err != nil {
		return nil, apperr.ValidationField(name, "%s must be a date in format YYYY-MM-DD", name)
	}
	return &d, nil
}

// -- Ambulance Handlers --

func (h *Handler) CreateAmbulance(c echo.Context) error {
	var req AmbulanceCreateRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	a, err := h.svc.CreateAmbulance(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusCreated, "ambulance created", a)
}

func (h *Handler) GetAmbulance(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAmbulance(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "", a)
}

func (h *Handler) ListAmbulances(c echo.Context) error {
	var active *bool
	if v := c.QueryParam("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return apperr.ValidationField("active", "active must be true or false")
		}
		active = &b
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAmbulances(c.Request().Context(), active, pg)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "", pagination.NewResponse(items, total, pg))
}

func (h *Handler) UpdateAmbulance(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var p AmbulancePatch
	if err := c.Bind(&p); err != nil {
		return err
	}
	if err := c.Validate(&p); err != nil {
		return err
	}
	a, err := h.svc.UpdateAmbulance(c.Request().Context(), id, p)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "ambulance updated", a)
}

func (h *Handler) DeleteAmbulance(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteAmbulance(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Inventory Handlers --

func (h *Handler) RecordInventory(c echo.Context) error {
	var req InventoryCreateRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	inv, err := h.svc.RecordInventory(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusCreated, "inventory recorded", inv)
}

func (h *Handler) GetInventory(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	inv, err := h.svc.GetInventory(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "", inv)
}

func (h *Handler) GetShortages(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Shortages(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "", items)
}

func (h *Handler) ListInventories(c echo.Context) error {
	var (
		f   InventoryFilter
		err error
	)
	if f.AmbulanceID, err = queryUUID(c, "ambulance_id"); err != nil {
		return err
	}
	if f.ShiftID, err = queryUUID(c, "shift_id"); err != nil {
		return err
	}
	if f.From, err = queryDate(c, "from"); err != nil {
		return err
	}
	if f.To, err = queryDate(c, "to"); err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListInventories(c.Request().Context(), f, pg)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "", pagination.NewResponse(items, total, pg))
}

func (h *Handler) DeleteInventory(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteInventory(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
