package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/planidocs/exchange-api/internal/dto"
	"github.com/planidocs/exchange-api/internal/models"
	"github.com/planidocs/exchange-api/internal/service"
	appErrors "github.com/planidocs/exchange-api/pkg/errors"
	"github.com/planidocs/exchange-api/pkg/response"
)

// PlanningHandler exposes worker planning endpoints.
type PlanningHandler struct {
	service *service.PlanningService
}

// NewPlanningHandler constructs a planning handler.
func NewPlanningHandler(svc *service.PlanningService) *PlanningHandler {
	return &PlanningHandler{service: svc}
}

// Mine godoc
// @Summary Get own planning
// @Tags Planning
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /planning [get]
func (h *PlanningHandler) Mine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	assignments, err := h.service.ForWorker(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}

// ForWorker godoc
// @Summary Get a worker's planning (admin)
// @Tags Planning
// @Produce json
// @Param id path string true "Worker ID"
// @Success 200 {object} response.Envelope
// @Router /planning/{id} [get]
func (h *PlanningHandler) ForWorker(c *gin.Context) {
	assignments, err := h.service.ForWorker(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}

// Import godoc
// @Summary Import a worker's planning (admin)
// @Description Atomically replaces the worker's planning inside the window
// @Tags Planning
// @Accept json
// @Produce json
// @Param payload body dto.ImportPlanningPayload true "Import payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /planning/import [post]
func (h *PlanningHandler) Import(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload dto.ImportPlanningPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid import payload"))
		return
	}
	from, err := dto.ParseDate(payload.From)
	if err != nil {
		response.Error(c, err)
		return
	}
	to, err := dto.ParseDate(payload.To)
	if err != nil {
		response.Error(c, err)
		return
	}

	req := service.ImportPlanningRequest{
		WorkerID: payload.WorkerID,
		From:     from,
		To:       to,
	}
	for _, shift := range payload.Shifts {
		date, err := dto.ParseDate(shift.Date)
		if err != nil {
			response.Error(c, err)
			return
		}
		req.Shifts = append(req.Shifts, service.ImportShiftRequest{
			Date:      date,
			Period:    models.DayPeriod(strings.ToUpper(shift.Period)),
			ShiftType: shift.ShiftType,
			TimeSlot:  shift.TimeSlot,
		})
	}

	imported, err := h.service.Import(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"imported": imported}, nil)
}
