package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/planidocs/exchange-api/internal/models"
	"github.com/planidocs/exchange-api/internal/service"
	appErrors "github.com/planidocs/exchange-api/pkg/errors"
	"github.com/planidocs/exchange-api/pkg/response"
)

// HistoryHandler exposes the read-side exchange trail.
type HistoryHandler struct {
	service *service.HistoryService
}

// NewHistoryHandler constructs a history handler.
func NewHistoryHandler(svc *service.HistoryService) *HistoryHandler {
	return &HistoryHandler{service: svc}
}

// List godoc
// @Summary List exchange history (admin)
// @Tags History
// @Produce json
// @Param source query string false "Source (MARKETPLACE or DIRECT)"
// @Param source_id query string false "Source record ID"
// @Param worker query string false "Worker ID"
// @Param event query string false "Event type"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /history [get]
func (h *HistoryHandler) List(c *gin.Context) {
	filter := models.HistoryFilter{
		Source:    models.HistorySource(strings.ToUpper(c.Query("source"))),
		SourceID:  c.Query("source_id"),
		WorkerID:  c.Query("worker"),
		EventType: models.HistoryEventType(strings.ToUpper(c.Query("event"))),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be an integer"))
			return
		}
		filter.Limit = limit
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "offset must be an integer"))
			return
		}
		filter.Offset = offset
	}

	entries, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Mine godoc
// @Summary Get own exchange history
// @Tags History
// @Produce json
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /history/me [get]
func (h *HistoryHandler) Mine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := h.service.ForWorker(c.Request.Context(), claims.UserID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// MyConflicts godoc
// @Summary Get competing demand on own slots
// @Tags History
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /history/me/conflicts [get]
func (h *HistoryHandler) MyConflicts(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	conflicts, err := h.service.ConflictsFor(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conflicts, nil)
}
