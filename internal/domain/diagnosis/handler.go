package diagnosis

import (
	"bytes"
	"errors"
	"fmt"
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
	read := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor, auth.RoleRadiologist, auth.RoleNurse))
	read.GET("/diagnoses/:id", h.GetDiagnosis)
	read.GET("/diagnoses/:id/pdf", h.DownloadPDF)
	read.GET("/patients/:id/diagnoses", h.ListPatientDiagnoses)

	write := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor, auth.RoleRadiologist))
	write.POST("/patients/:id/diagnoses", h.CreateDiagnosis)
	write.POST("/diagnoses/evaluate", h.Evaluate)
}

func (h *Handler) CreateDiagnosis(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var req Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	rec, err := h.svc.Diagnose(ctx, patientID, req, auth.UserIDFromContext(ctx))
	if err != nil {
		return httpError(err, "patient not found")
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) Evaluate(c echo.Context) error {
	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return c.JSON(http.StatusOK, h.svc.Evaluate(in))
}

func (h *Handler) GetDiagnosis(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rec, err := h.svc.GetDiagnosis(c.Request().Context(), id)
	if err != nil {
		return httpError(err, "diagnosis not found")
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListPatientDiagnoses(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) DownloadPDF(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var buf bytes.Buffer
	if err := h.svc.WritePDF(c.Request().Context(), &buf, id); err != nil {
		return httpError(err, "diagnosis not found")
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="diagnostic-%s.pdf"`, id))
	return c.Blob(http.StatusOK, "application/pdf", buf.Bytes())
}

func httpError(err error, notFound string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, notFound)
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNoRenderer):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
