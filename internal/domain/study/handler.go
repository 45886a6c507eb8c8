package study

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/raypacs/raypacs/internal/domain/identity"
	"github.com/raypacs/raypacs/internal/platform/apperror"
	"github.com/raypacs/raypacs/internal/platform/auth"
	"github.com/raypacs/raypacs/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleLabAdmin, auth.RoleRadiologist, auth.RoleReferringDoctor, auth.RoleTechnologist, auth.RoleVerifier))
	readGroup.GET("/studies", h.List)
	readGroup.GET("/studies/:externalId", h.Get)
	readGroup.GET("/studies/:externalId/status-history", h.StatusHistory)
	readGroup.GET("/studies/:externalId/assignments", h.Assignments)

	ingestGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleLabAdmin, auth.RoleTechnologist))
	ingestGroup.POST("/studies", h.Register)

	manageGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleLabAdmin))
	manageGroup.POST("/studies/:externalId/assign", h.Assign)
	manageGroup.POST("/studies/:externalId/archive", h.Archive)
}

type registerRequest struct {
	ExternalID         string             `json:"external_id"`
	LabExternalID      *string            `json:"lab_external_id"`
	Modality           *string            `json:"modality"`
	Description        *string            `json:"description"`
	StudyDate          *time.Time         `json:"study_date"`
	SeriesCount        int                `json:"series_count"`
	InstanceCount      int                `json:"instance_count"`
	ClinicalHistory    *string            `json:"clinical_history"`
	ReferringPhysician ReferringPhysician `json:"referring_physician"`
	Patient            struct {
		ExternalID string  `json:"external_id"`
		FullName   string  `json:"full_name"`
		Sex        *string    `json:"sex"`
		BirthDate  *time.Time `json:"birth_date"`
		Phone      *string    `json:"phone"`
	} `json:"patient"`
}

func (h *Handler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	st := &Study{
		ExternalID:         req.ExternalID,
		LabExternalID:      req.LabExternalID,
		Modality:           req.Modality,
		Description:        req.Description,
		StudyDate:          req.StudyDate,
		SeriesCount:        req.SeriesCount,
		InstanceCount:      req.InstanceCount,
		ClinicalHistory:    req.ClinicalHistory,
		ReferringPhysician: req.ReferringPhysician,
	}
	patient := &identity.Patient{
		ExternalID: req.Patient.ExternalID,
		FullName:   req.Patient.FullName,
		Sex:        req.Patient.Sex,
		BirthDate:  req.Patient.BirthDate,
		Phone:      req.Patient.Phone,
	}
	created, err := h.svc.RegisterStudy(c.Request().Context(), st, patient)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) Get(c echo.Context) error {
	st, err := h.svc.GetStudy(c.Request().Context(), c.Param("externalId"))
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	category := Category(c.QueryParam("category"))
	items, total, err := h.svc.ListStudies(c.Request().Context(), category, pg.Limit, pg.Offset)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) StatusHistory(c echo.Context) error {
	entries, err := h.svc.StatusHistory(c.Request().Context(), c.Param("externalId"))
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) Assignments(c echo.Context) error {
	items, err := h.svc.Assignments(c.Request().Context(), c.Param("externalId"))
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

type assignRequest struct {
	AssignedTo     string `json:"assigned_to"`
	AssignedToName string `json:"assigned_to_name"`
}

func (h *Handler) Assign(c echo.Context) error {
	var req assignRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	out, err := h.svc.AssignClinician(c.Request().Context(), c.Param("externalId"), req.AssignedTo, req.AssignedToName)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Archive(c echo.Context) error {
	out, err := h.svc.Archive(c.Request().Context(), c.Param("externalId"))
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, out)
}
