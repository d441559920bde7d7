package transport

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/emsops/emsops/internal/platform/apperr"
	"github.com/emsops/emsops/internal/platform/auth"
	"github.com/emsops/emsops/internal/platform/response"
	"github.com/emsops/emsops/pkg/pagination"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Every role captures and reads; deletion is admin and supervisor only
	crew := api.Group("/transport-reports", auth.RequireRole(auth.RoleAdmin, auth.RoleSupervisor, auth.RoleCrew))
	crew.POST("", h.Save)
	crew.GET("", h.List)
	crew.GET("/export", h.Export)
	crew.GET("/:id", h.Get)
	crew.PUT("/:id", h.Update)
	crew.DELETE("/:id", h.Delete, auth.RequireRole(auth.RoleAdmin, auth.RoleSupervisor))
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.ValidationField("id", "invalid id %q", c.Param("id"))
	}
	return id, nil
}

func (h *Handler) bindSave(c echo.Context) (SaveRequest, error) {
	var req SaveRequest
	if err := c.Bind(&req); err != nil {
		return req, err
	}
	if err := c.Validate(&req); err != nil {
		return req, err
	}
	return req, nil
}

func (h *Handler) save(c echo.Context, req SaveRequest) error {
	ctx := c.Request().Context()
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return err
	}
	res, err := h.svc.Save(ctx, actor, req)
	if err != nil {
		return err
	}
	if res.Created {
		return response.OK(c, http.StatusCreated, "transport report created", res)
	}
	return response.OK(c, http.StatusOK, "transport report saved", res)
}

// Save creates a report, or updates the one named by report_id.
func (h *Handler) Save(c echo.Context) error {
	req, err := h.bindSave(c)
	if err != nil {
		return err
	}
	return h.save(c, req)
}

// Update saves onto the report named in the path; a body report_id is ignored.
func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	req, err := h.bindSave(c)
	if err != nil {
		return err
	}
	req.ReportID = &id
	return h.save(c, req)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "", d)
}

func filterFromQuery(c echo.Context) (Filter, error) {
	var f Filter
	if v := c.QueryParam("status"); v != "" {
		st := Status(v)
		if st != StatusDraft && st != StatusCompleted {
			return f, apperr.ValidationField("status", "status must be DRAFT or COMPLETED")
		}
		f.Status = &st
	}
	for name, dst := range map[string]**uuid.UUID{
		"ambulance_id":         &f.AmbulanceID,
		"responsible_staff_id": &f.ResponsibleStaffID,
	} {
		v := c.QueryParam(name)
		if v == "" {
			continue
		}
		id, err := uuid.Parse(v)
		if err != nil {
			return f, apperr.ValidationField(name, "%s must be a valid UUID", name)
		}
		*dst = &id
	}
	for name, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		v := c.QueryParam(name)
		if v == "" {
			continue
		}
		d, err := time.Parse(DateLayout, v)
		if err != nil {
			return f, apperr.ValidationField(name, "%s must be a date in format YYYY-MM-DD", name)
		}
		*dst = &d
	}
	return f, nil
}

func (h *Handler) List(c echo.Context) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), f, pg)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "", pagination.NewResponse(items, total, pg))
}

func (h *Handler) Export(c echo.Context) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return err
	}
	data, err := h.svc.Export(c.Request().Context(), f)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename=transport-reports.xlsx")
	return c.Blob(http.StatusOK, xlsxContentType, data)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return err
	}
	if err := h.svc.SoftDelete(ctx, actor, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
