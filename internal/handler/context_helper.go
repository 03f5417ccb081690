package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/planidocs/exchange-api/internal/middleware"
	"github.com/planidocs/exchange-api/internal/models"
)

// claimsFromContext returns the authenticated user's claims, or nil on routes
// where the auth middleware did not run.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, _ := c.Value(middleware.ContextUserKey).(*models.JWTClaims)
	return claims
}
