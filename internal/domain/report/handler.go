package report

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/raypacs/raypacs/internal/platform/apperror"
	"github.com/raypacs/raypacs/internal/platform/auth"
	"github.com/raypacs/raypacs/internal/platform/render"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleLabAdmin, auth.RoleRadiologist, auth.RoleReferringDoctor, auth.RoleVerifier))
	readGroup.GET("/studies/:externalId/reports", h.ListByStudy)
	readGroup.GET("/studies/:externalId/reports/latest", h.Latest)
	readGroup.GET("/reports/:reportId", h.Get)
	readGroup.GET("/reports/:reportId/status-history", h.StatusHistory)
	readGroup.GET("/reports/:reportId/verification-history", h.VerificationHistory)
	readGroup.POST("/reports/:reportId/download", h.Download)
	readGroup.POST("/reports/:reportId/print", h.Print)

	authorGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleLabAdmin, auth.RoleRadiologist, auth.RoleReferringDoctor))
	authorGroup.POST("/studies/:externalId/reports/draft", h.StoreDraft)
	authorGroup.POST("/studies/:externalId/reports/finalize", h.StoreFinalized)

	verifyGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleVerifier))
	verifyGroup.POST("/reports/:reportId/verify", h.Verify)
	verifyGroup.POST("/reports/:reportId/reject", h.Reject)
}

func (h *Handler) StoreDraft(c echo.Context) error {
	var in ContentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	summary, err := h.svc.StoreDraft(c.Request().Context(), c.Param("externalId"), in)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, summary)
}

type finalizeRequest struct {
	ContentInput
	Format render.Format `json:"format"`
}

func (h *Handler) StoreFinalized(c echo.Context) error {
	var req finalizeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	summary, err := h.svc.StoreFinalized(c.Request().Context(), c.Param("externalId"), req.ContentInput, req.Format)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, summary)
}

type verifyRequest struct {
	Corrections *string `json:"corrections"`
}

func (h *Handler) Verify(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	summary, err := h.svc.Verify(c.Request().Context(), c.Param("reportId"), req.Corrections)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, summary)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Reject(c echo.Context) error {
	var req rejectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	summary, err := h.svc.Reject(c.Request().Context(), c.Param("reportId"), req.Reason)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) Get(c echo.Context) error {
	rp, err := h.svc.Get(c.Request().Context(), c.Param("reportId"))
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, rp)
}

func (h *Handler) Latest(c echo.Context) error {
	rp, err := h.svc.Latest(c.Request().Context(), c.Param("externalId"))
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, rp)
}

func (h *Handler) ListByStudy(c echo.Context) error {
	items, err := h.svc.ListByStudy(c.Request().Context(), c.Param("externalId"))
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) StatusHistory(c echo.Context) error {
	items, err := h.svc.StatusHistory(c.Request().Context(), c.Param("reportId"))
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) VerificationHistory(c echo.Context) error {
	items, err := h.svc.VerificationHistory(c.Request().Context(), c.Param("reportId"))
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Download(c echo.Context) error {
	rp, err := h.svc.RecordDownload(c.Request().Context(), c.Param("reportId"))
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, rp)
}

func (h *Handler) Print(c echo.Context) error {
	rp, err := h.svc.RecordPrint(c.Request().Context(), c.Param("reportId"))
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, rp)
}
