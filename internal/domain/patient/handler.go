package patient

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Markitchi/Meda/internal/platform/auth"
	"github.com/Markitchi/Meda/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – all clinical roles
	read := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor, auth.RoleNurse, auth.RoleRadiologist))
	read.GET("/patients", h.ListPatients)
	read.GET("/patients/:id", h.GetPatient)
	read.GET("/patients/:id/history", h.ListHistory)

	// Write endpoints – admin, doctor, nurse
	write := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor, auth.RoleNurse))
	write.POST("/patients", h.CreatePatient)
	write.PATCH("/patients/:id", h.UpdatePatient)
	write.POST("/patients/:id/history", h.AddHistory)
	write.PUT("/history/:id", h.UpdateHistory)

	del := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor))
	del.DELETE("/patients/:id", h.DeletePatient)
	del.DELETE("/history/:id", h.DeleteHistory)
}

func errorStatus(err error, notFound string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, notFound)
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrDuplicate):
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

// -- Patient Handlers --

func (h *Handler) CreatePatient(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.CreatedBy = auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.CreatePatient(c.Request().Context(), &p); err != nil {
		return errorStatus(err, "patient not found")
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return errorStatus(err, "patient not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatients(c.Request().Context(), c.QueryParam("search"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var u Update
	if err := c.Bind(&u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), id, &u)
	if err != nil {
		return errorStatus(err, "patient not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePatient(c.Request().Context(), id); err != nil {
		return errorStatus(err, "patient not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Medical History Handlers --

func (h *Handler) AddHistory(c echo.Context) error {
	patientID, err := parseID(c)
	if err != nil {
		return err
	}
	var entry MedicalHistory
	if err := c.Bind(&entry); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	entry.PatientID = patientID
	if err := h.svc.AddHistory(c.Request().Context(), &entry); err != nil {
		return errorStatus(err, "patient not found")
	}
	return c.JSON(http.StatusCreated, entry)
}

func (h *Handler) ListHistory(c echo.Context) error {
	patientID, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListHistory(c.Request().Context(), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*MedicalHistory{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UpdateHistory(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var entry MedicalHistory
	if err := c.Bind(&entry); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	entry.ID = id
	if err := h.svc.UpdateHistory(c.Request().Context(), &entry); err != nil {
		return errorStatus(err, "medical history entry not found")
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) DeleteHistory(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteHistory(c.Request().Context(), id); err != nil {
		return errorStatus(err, "medical history entry not found")
	}
	return c.NoContent(http.StatusNoContent)
}
