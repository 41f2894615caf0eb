package alert

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group, _ *echo.Group) {
	g := api.Group("/emergency-alerts", auth.RequireRole(auth.RoleDoctor, auth.RoleNurse))

	g.GET("", h.ListAlerts)
	g.GET("/:id", h.GetAlert)
	g.GET("/:id/deliveries", h.ListDeliveries)

	g.POST("", h.TriggerAlert)
	g.POST("/:id/resolve", h.ResolveAlert)
	g.POST("/:id/resume", h.ResumeAlert, auth.RequireRole(auth.RoleAdmin))
}

type triggerRequest struct {
	PatientID     string `json:"patient_id"`
	EmergencyType string `json:"emergency_type"`
	Details       string `json:"details"`
}

type resolveRequest struct {
	ResolutionNotes string `json:"resolution_notes"`
}

// httpError maps service errors to HTTP status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrPatientNotFound), errors.Is(err, ErrClinicNotFound), errors.Is(err, ErrAlertNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidEmergencyType), errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotResumable):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) TriggerAlert(c echo.Context) error {
	var req triggerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	emergencyType, err := ParseEmergencyType(req.EmergencyType)
	if err != nil {
		return httpError(err)
	}

	ctx := c.Request().Context()
	a, err := h.svc.Trigger(ctx, patientID, emergencyType, req.Details, auth.UserIDFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) ResolveAlert(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	a, err := h.svc.Resolve(ctx, id, auth.UserIDFromContext(ctx), req.ResolutionNotes)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ResumeAlert(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Resume(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) GetAlert(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAlerts(c echo.Context) error {
	pg := pagination.FromContext(c)

	var filter ListFilter
	if v := c.QueryParam("clinic_id"); v != "" {
		clinicID, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid clinic_id")
		}
		filter.ClinicID = clinicID
	}
	if v := c.QueryParam("status"); v != "" {
		switch Status(v) {
		case StatusActive, StatusResolved:
			filter.Status = Status(v)
		default:
			return echo.NewHTTPError(http.StatusBadRequest, "status must be ACTIVE or RESOLVED")
		}
	}

	items, total, err := h.svc.List(c.Request().Context(), filter, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*EmergencyAlert{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithNext(c.Request().URL))
}

func (h *Handler) ListDeliveries(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Deliveries(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*DeliveryOutcome{}
	}
	return c.JSON(http.StatusOK, items)
}
