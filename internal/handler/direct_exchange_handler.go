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

// DirectExchangeHandler exposes peer-targeted offer endpoints.
type DirectExchangeHandler struct {
	service *service.DirectExchangeService
}

// NewDirectExchangeHandler constructs a direct exchange handler.
func NewDirectExchangeHandler(svc *service.DirectExchangeService) *DirectExchangeHandler {
	return &DirectExchangeHandler{service: svc}
}

// List godoc
// @Summary List direct exchanges
// @Tags DirectExchanges
// @Produce json
// @Param user query string false "Filter by owner"
// @Param status query string false "Comma-separated statuses"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /direct-exchanges [get]
func (h *DirectExchangeHandler) List(c *gin.Context) {
	var filter models.DirectExchangeFilter
	filter.UserID = c.Query("user")
	if statuses := c.Query("status"); statuses != "" {
		for _, s := range strings.Split(statuses, ",") {
			filter.Status = append(filter.Status, models.DirectExchangeStatus(strings.ToUpper(strings.TrimSpace(s))))
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}

	exchanges, pagination, err := h.service.ListExchanges(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exchanges, pagination)
}

// Get godoc
// @Summary Get one direct exchange
// @Tags DirectExchanges
// @Produce json
// @Param id path string true "Exchange ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /direct-exchanges/{id} [get]
func (h *DirectExchangeHandler) Get(c *gin.Context) {
	exchange, err := h.service.GetExchange(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exchange, nil)
}

// Create godoc
// @Summary Open or update a direct exchange
// @Description Upserts the single open offer for one owned slot
// @Tags DirectExchanges
// @Accept json
// @Produce json
// @Param payload body dto.CreateDirectExchangePayload true "Exchange payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 423 {object} response.Envelope
// @Router /direct-exchanges [post]
func (h *DirectExchangeHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload dto.CreateDirectExchangePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid exchange payload"))
		return
	}
	date, err := dto.ParseDate(payload.Date)
	if err != nil {
		response.Error(c, err)
		return
	}

	operations := make([]models.OperationType, 0, len(payload.OperationTypes))
	for _, op := range payload.OperationTypes {
		operations = append(operations, models.OperationType(strings.ToUpper(strings.TrimSpace(op))))
	}

	exchange, err := h.service.CreateExchange(c.Request.Context(), claims.UserID, service.CreateDirectExchangeRequest{
		Date:           date,
		Period:         models.DayPeriod(strings.ToUpper(payload.Period)),
		OperationTypes: operations,
		Comment:        payload.Comment,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, exchange)
}

// Cancel godoc
// @Summary Cancel a direct exchange
// @Tags DirectExchanges
// @Produce json
// @Param id path string true "Exchange ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /direct-exchanges/{id} [delete]
func (h *DirectExchangeHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.CancelExchange(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CreateProposal godoc
// @Summary Propose against a direct exchange
// @Description Upserts the caller's single active proposal; an empty type withdraws it
// @Tags DirectExchanges
// @Accept json
// @Produce json
// @Param id path string true "Exchange ID"
// @Param payload body dto.CreateProposalPayload true "Proposal payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 423 {object} response.Envelope
// @Router /direct-exchanges/{id}/proposals [post]
func (h *DirectExchangeHandler) CreateProposal(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload dto.CreateProposalPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid proposal payload"))
		return
	}

	req := service.CreateProposalRequest{
		Type:    models.ProposalType(strings.ToUpper(strings.TrimSpace(payload.Type))),
		Comment: payload.Comment,
	}
	for _, shift := range payload.ProposedShifts {
		date, err := dto.ParseDate(shift.Date)
		if err != nil {
			response.Error(c, err)
			return
		}
		req.ProposedShifts = append(req.ProposedShifts, service.ProposedShiftRequest{
			Date:   date,
			Period: models.DayPeriod(strings.ToUpper(shift.Period)),
		})
	}

	proposal, err := h.service.CreateProposal(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, proposal)
}

// ListProposals godoc
// @Summary List proposals
// @Tags DirectExchanges
// @Produce json
// @Param exchange query string false "Filter by exchange"
// @Param status query string false "Comma-separated statuses"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /proposals [get]
func (h *DirectExchangeHandler) ListProposals(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.ProposalFilter
	filter.ExchangeID = c.Query("exchange")
	if statuses := c.Query("status"); statuses != "" {
		for _, s := range strings.Split(statuses, ",") {
			filter.Status = append(filter.Status, models.ProposalStatus(strings.ToUpper(strings.TrimSpace(s))))
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}

	// Workers only see proposals they sent or received.
	if claims.Role != models.RoleAdmin {
		switch c.DefaultQuery("direction", "received") {
		case "sent":
			filter.ProposingUserID = claims.UserID
		default:
			filter.TargetUserID = claims.UserID
		}
	}

	proposals, pagination, err := h.service.ListProposals(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, proposals, pagination)
}

// AcceptProposal godoc
// @Summary Accept a proposal
// @Description Atomically moves shifts between both plannings and retires competing proposals
// @Tags DirectExchanges
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 423 {object} response.Envelope
// @Router /proposals/{id}/accept [post]
func (h *DirectExchangeHandler) AcceptProposal(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	proposal, err := h.service.AcceptProposal(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, proposal, nil)
}

// RejectProposal godoc
// @Summary Reject a proposal
// @Tags DirectExchanges
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /proposals/{id}/reject [post]
func (h *DirectExchangeHandler) RejectProposal(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.RejectProposal(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CancelProposal godoc
// @Summary Cancel own proposal
// @Tags DirectExchanges
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /proposals/{id} [delete]
func (h *DirectExchangeHandler) CancelProposal(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.CancelProposal(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
