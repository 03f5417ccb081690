package handler

import (
	"context"
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

type marketplaceService interface {
	List(ctx context.Context, filter models.ExchangeFilter) ([]models.ShiftExchange, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.ShiftExchange, error)
	ListShift(ctx context.Context, ownerID string, req service.ListShiftRequest) (*models.ShiftExchange, error)
	ExpressInterest(ctx context.Context, exchangeID, workerID string) (*models.ShiftExchange, error)
	Withdraw(ctx context.Context, exchangeID string, actor *models.JWTClaims) error
	Validate(ctx context.Context, exchangeID string, req service.ValidateListingRequest, actorID string) (*models.ShiftExchange, error)
	Revert(ctx context.Context, exchangeID string, actorID string) (*models.ShiftExchange, error)
}

// MarketplaceHandler exposes the public listing endpoints.
type MarketplaceHandler struct {
	service marketplaceService
}

// NewMarketplaceHandler constructs a marketplace handler.
func NewMarketplaceHandler(svc marketplaceService) *MarketplaceHandler {
	return &MarketplaceHandler{service: svc}
}

// List godoc
// @Summary List marketplace listings
// @Description List shift listings, open ones first
// @Tags Marketplace
// @Produce json
// @Param owner query string false "Filter by owner"
// @Param status query string false "Comma-separated statuses"
// @Param from query string false "Date lower bound (YYYY-MM-DD)"
// @Param to query string false "Date upper bound (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /exchanges [get]
func (h *MarketplaceHandler) List(c *gin.Context) {
	var filter models.ExchangeFilter
	filter.OwnerID = c.Query("owner")
	if statuses := c.Query("status"); statuses != "" {
		for _, s := range strings.Split(statuses, ",") {
			filter.Status = append(filter.Status, models.ExchangeStatus(strings.ToUpper(strings.TrimSpace(s))))
		}
	}
	if from := c.Query("from"); from != "" {
		date, err := dto.ParseDate(from)
		if err != nil {
			response.Error(c, err)
			return
		}
		filter.DateFrom = &date
	}
	if to := c.Query("to"); to != "" {
		date, err := dto.ParseDate(to)
		if err != nil {
			response.Error(c, err)
			return
		}
		filter.DateTo = &date
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}

	listings, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, listings, pagination)
}

// Get godoc
// @Summary Get one listing
// @Tags Marketplace
// @Produce json
// @Param id path string true "Listing ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exchanges/{id} [get]
func (h *MarketplaceHandler) Get(c *gin.Context) {
	listing, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, listing, nil)
}

// Create godoc
// @Summary List a shift on the marketplace
// @Tags Marketplace
// @Accept json
// @Produce json
// @Param payload body dto.ListShiftPayload true "Listing payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 423 {object} response.Envelope
// @Router /exchanges [post]
func (h *MarketplaceHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload dto.ListShiftPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid listing payload"))
		return
	}
	date, err := dto.ParseDate(payload.Date)
	if err != nil {
		response.Error(c, err)
		return
	}

	listing, err := h.service.ListShift(c.Request.Context(), claims.UserID, service.ListShiftRequest{
		Date:    date,
		Period:  models.DayPeriod(strings.ToUpper(payload.Period)),
		Comment: payload.Comment,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, listing)
}

// ExpressInterest godoc
// @Summary Express interest in a listing
// @Tags Marketplace
// @Produce json
// @Param id path string true "Listing ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exchanges/{id}/interest [post]
func (h *MarketplaceHandler) ExpressInterest(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	listing, err := h.service.ExpressInterest(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, listing, nil)
}

// Withdraw godoc
// @Summary Withdraw a listing
// @Tags Marketplace
// @Produce json
// @Param id path string true "Listing ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /exchanges/{id} [delete]
func (h *MarketplaceHandler) Withdraw(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Withdraw(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Validate godoc
// @Summary Validate a listing (admin)
// @Description Transfers the listed shift to the chosen interested worker
// @Tags Marketplace
// @Accept json
// @Produce json
// @Param id path string true "Listing ID"
// @Param payload body dto.ValidateListingPayload true "Validation payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 423 {object} response.Envelope
// @Router /exchanges/{id}/validate [post]
func (h *MarketplaceHandler) Validate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload dto.ValidateListingPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid validation payload"))
		return
	}

	listing, err := h.service.Validate(c.Request.Context(), c.Param("id"), service.ValidateListingRequest{
		ChosenWorkerID: payload.ChosenWorkerID,
	}, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, listing, nil)
}

// Revert godoc
// @Summary Revert a validated listing (admin)
// @Tags Marketplace
// @Produce json
// @Param id path string true "Listing ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 423 {object} response.Envelope
// @Router /exchanges/{id}/revert [post]
func (h *MarketplaceHandler) Revert(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	listing, err := h.service.Revert(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, listing, nil)
}
