package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/planidocs/exchange-api/internal/dto"
	"github.com/planidocs/exchange-api/internal/models"
	"github.com/planidocs/exchange-api/internal/service"
	appErrors "github.com/planidocs/exchange-api/pkg/errors"
	"github.com/planidocs/exchange-api/pkg/response"
)

// PeriodHandler exposes planning period endpoints.
type PeriodHandler struct {
	service *service.PeriodService
}

// NewPeriodHandler constructs a period handler.
func NewPeriodHandler(svc *service.PeriodService) *PeriodHandler {
	return &PeriodHandler{service: svc}
}

// List godoc
// @Summary List planning periods
// @Tags Periods
// @Produce json
// @Param status query string false "Filter by status"
// @Param phase query string false "Filter by phase"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /periods [get]
func (h *PeriodHandler) List(c *gin.Context) {
	var filter models.PeriodFilter
	if status := c.Query("status"); status != "" {
		filter.Status = models.PeriodStatus(strings.ToUpper(status))
	}
	if phase := c.Query("phase"); phase != "" {
		filter.BagPhase = models.BagPhase(strings.ToUpper(phase))
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}

	periods, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, periods, pagination)
}

// GetActive godoc
// @Summary Get the active period
// @Tags Periods
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /periods/active [get]
func (h *PeriodHandler) GetActive(c *gin.Context) {
	period, err := h.service.GetActive(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, period, nil)
}

// Get godoc
// @Summary Get a period by id
// @Tags Periods
// @Produce json
// @Param id path string true "Period ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /periods/{id} [get]
func (h *PeriodHandler) Get(c *gin.Context) {
	period, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, period, nil)
}

// Create godoc
// @Summary Create a planning period (admin)
// @Tags Periods
// @Accept json
// @Produce json
// @Param payload body dto.CreatePeriodPayload true "Period payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /periods [post]
func (h *PeriodHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload dto.CreatePeriodPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid period payload"))
		return
	}
	start, err := dto.ParseDate(payload.StartDate)
	if err != nil {
		response.Error(c, err)
		return
	}
	end, err := dto.ParseDate(payload.EndDate)
	if err != nil {
		response.Error(c, err)
		return
	}

	period, err := h.service.Create(c.Request.Context(), service.CreatePeriodRequest{
		Name:      payload.Name,
		StartDate: start,
		EndDate:   end,
	}, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, period)
}

// AdvancePhase godoc
// @Summary Advance a period's phase (admin)
// @Description Phases only move forward unless force is set
// @Tags Periods
// @Accept json
// @Produce json
// @Param id path string true "Period ID"
// @Param payload body dto.AdvancePhasePayload true "Phase payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /periods/{id}/phase [post]
func (h *PeriodHandler) AdvancePhase(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload dto.AdvancePhasePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid phase payload"))
		return
	}

	period, err := h.service.AdvancePhase(c.Request.Context(), c.Param("id"), service.AdvancePhaseRequest{
		Phase: models.BagPhase(strings.ToUpper(payload.Phase)),
		Force: payload.Force,
	}, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, period, nil)
}

// Merge godoc
// @Summary Merge a period (admin)
// @Description Promotes the period to the single active one and completes its phase
// @Tags Periods
// @Produce json
// @Param id path string true "Period ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /periods/{id}/merge [post]
func (h *PeriodHandler) Merge(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	period, err := h.service.Merge(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, period, nil)
}
