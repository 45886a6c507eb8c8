package replication

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/raypacs/raypacs/internal/platform/apperror"
	"github.com/raypacs/raypacs/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	group := api.Group("", auth.RequireRole(auth.RoleAdmin))
	group.POST("/studies/:externalId/copy", h.CopyStudy)
}

type copyRequest struct {
	TargetTenant string `json:"target_tenant"`
	Options
}

func (h *Handler) CopyStudy(c echo.Context) error {
	var req copyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.svc.CopyStudy(c.Request().Context(), c.Param("externalId"), req.TargetTenant, req.Options)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, result)
}
