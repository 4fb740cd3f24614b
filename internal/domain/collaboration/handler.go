package collaboration

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

// RegisterRoutes opens collaboration to every clinical role; per-consultation
// access is decided by ownership and shares.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor, auth.RoleNurse, auth.RoleRadiologist))
	g.POST("/consultations/:id/shares", h.Share)
	g.GET("/consultations/:id/shares", h.ListShares)
	g.DELETE("/consultations/:id/shares/:user_id", h.Revoke)
	g.GET("/shared-with-me", h.SharedWithMe)

	g.POST("/consultations/:id/comments", h.AddComment)
	g.GET("/consultations/:id/comments", h.ListComments)
	g.DELETE("/comments/:id", h.DeleteComment)

	g.GET("/audit-events", h.AuditTrail)
}

func errorStatus(err error) error {
	switch {
	case errors.Is(err, ErrConsultationNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "consultation not found")
	case errors.Is(err, ErrShareNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "share not found")
	case errors.Is(err, ErrCommentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "comment not found")
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
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

type shareRequest struct {
	UserID     string     `json:"user_id"`
	Permission Permission `json:"permission"`
}

func (h *Handler) Share(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req shareRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	share, err := h.svc.Share(ctx, id, auth.UserIDFromContext(ctx), req.UserID, req.Permission)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, share)
}

func (h *Handler) ListShares(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	items, err := h.svc.ListShares(ctx, id, auth.UserIDFromContext(ctx))
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Revoke(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.svc.Revoke(ctx, id, auth.UserIDFromContext(ctx), c.Param("user_id")); err != nil {
		return errorStatus(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SharedWithMe(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)
	items, total, err := h.svc.SharedWith(ctx, auth.UserIDFromContext(ctx), pg.Limit, pg.Offset)
	if err != nil {
		return errorStatus(err)
	}
	if items == nil {
		items = []*Share{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type commentRequest struct {
	Content string `json:"content"`
}

func (h *Handler) AddComment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req commentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	comment, err := h.svc.AddComment(ctx, id, auth.UserIDFromContext(ctx), req.Content)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusCreated, comment)
}

func (h *Handler) ListComments(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListComments(ctx, id, auth.UserIDFromContext(ctx), pg.Limit, pg.Offset)
	if err != nil {
		return errorStatus(err)
	}
	if items == nil {
		items = []*Comment{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) DeleteComment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.svc.DeleteComment(ctx, id, auth.UserIDFromContext(ctx)); err != nil {
		return errorStatus(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) AuditTrail(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)
	f := AuditFilter{
		UserID:     c.QueryParam("user_id"),
		Resource:   c.QueryParam("resource"),
		ResourceID: c.QueryParam("resource_id"),
		PatientID:  c.QueryParam("patient_id"),
	}
	items, total, err := h.svc.AuditTrail(ctx, auth.UserIDFromContext(ctx), f, pg.Limit, pg.Offset)
	if err != nil {
		return errorStatus(err)
	}
	if items == nil {
		items = []*AuditEvent{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
