package imaging

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Markitchi/Meda/internal/domain/diagnosis"
	"github.com/Markitchi/Meda/internal/platform/auth"
	"github.com/Markitchi/Meda/internal/platform/blobstore"
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
	read.GET("/images", h.List)
	read.GET("/images/:id", h.Get)
	read.GET("/images/:id/download", h.Download)
	read.GET("/images/:id/analyses", h.ListAnalyses)
	read.GET("/patients/:id/images", h.ListByPatient)
	read.GET("/analyses/:id", h.GetAnalysis)

	write := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor, auth.RoleRadiologist))
	write.POST("/images", h.Upload)
	write.POST("/images/:id/analyze", h.StartAnalysis)
	write.DELETE("/images/:id", h.Delete)
}

func errorStatus(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "image not found")
	case errors.Is(err, ErrAnalysisNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "analysis not found")
	case errors.Is(err, ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUnsupportedType):
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, ErrTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, ErrAnalysisInProgress):
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

func optional(c echo.Context, name string) *string {
	v := strings.TrimSpace(c.FormValue(name))
	if v == "" {
		return nil
	}
	return &v
}

// Upload accepts a multipart form with a "file" part and the image_type,
// body_part, modality and patient_id fields.
func (h *Handler) Upload(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	if file.Size > h.svc.MaxUploadBytes() {
		return errorStatus(fmt.Errorf("%w: max %d bytes", ErrTooLarge, h.svc.MaxUploadBytes()))
	}

	in := UploadInput{
		OriginalFilename: file.Filename,
		ContentType:      file.Header.Get(echo.HeaderContentType),
		Size:             file.Size,
		ImageType:        diagnosis.ImageType(strings.ToLower(strings.TrimSpace(c.FormValue("image_type")))),
		Modality:         optional(c, "modality"),
		BodyPart:         optional(c, "body_part"),
		UserID:           auth.UserIDFromContext(c.Request().Context()),
	}
	if raw := optional(c, "patient_id"); raw != nil {
		pid, err := uuid.Parse(*raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		in.PatientID = &pid
	}

	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to open uploaded file")
	}
	defer src.Close()
	in.Content = src

	img, err := h.svc.Upload(c.Request().Context(), in)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusCreated, img)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	img, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, img)
}

// List returns the current user's images, optionally filtered by image_type.
func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := ListFilter{
		UserID:    auth.UserIDFromContext(c.Request().Context()),
		ImageType: diagnosis.ImageType(c.QueryParam("image_type")),
	}
	return h.list(c, f, pg)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := parseID(c)
	if err != nil {
		return err
	}
	return h.list(c, ListFilter{PatientID: &patientID}, pagination.FromContext(c))
}

func (h *Handler) list(c echo.Context, f ListFilter, pg pagination.Params) error {
	if f.ImageType != "" && !f.ImageType.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid image_type")
	}
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*MedicalImage{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// Download answers with a presigned URL when the store supports it and
// streams the file otherwise.
func (h *Handler) Download(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	url, err := h.svc.DownloadURL(ctx, id)
	if err == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"download_url": url,
			"expires_in":   int(h.svc.cfg.PresignExpiry.Seconds()),
		})
	}
	if !errors.Is(err, blobstore.ErrPresignUnsupported) {
		return errorStatus(err)
	}

	rc, img, err := h.svc.Open(ctx, id)
	if err != nil {
		return errorStatus(err)
	}
	defer rc.Close()
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", img.OriginalFilename))
	return c.Stream(http.StatusOK, img.MimeType, rc)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return errorStatus(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) StartAnalysis(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.StartAnalysis(c.Request().Context(), id)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusAccepted, a)
}

func (h *Handler) GetAnalysis(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAnalysis(c.Request().Context(), id)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAnalyses(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListAnalyses(c.Request().Context(), id)
	if err != nil {
		return errorStatus(err)
	}
	if items == nil {
		items = []*Analysis{}
	}
	return c.JSON(http.StatusOK, items)
}
