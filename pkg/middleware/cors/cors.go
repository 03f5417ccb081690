// Package cors provides a minimal origin allow-list middleware. Browsers treat
// a missing Access-Control-Allow-Origin header as a denial, so unknown origins
// simply never see the header.
package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	allowedMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	allowedHeaders = "Authorization, Content-Type, X-Requested-With, X-Request-ID"
	preflightTTL   = "600"
)

// New builds the middleware from a list of allowed origins. An empty list
// allows every origin, which is only appropriate for local development.
func New(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[normalize(origin)] = true
	}
	wildcard := len(allowed) == 0

	return func(c *gin.Context) {
		headers := c.Writer.Header()
		headers.Add("Vary", "Origin")

		origin := c.GetHeader("Origin")
		switch {
		case origin == "" && wildcard:
			headers.Set("Access-Control-Allow-Origin", "*")
		case origin != "" && (wildcard || allowed[normalize(origin)]):
			headers.Set("Access-Control-Allow-Origin", origin)
			headers.Set("Access-Control-Allow-Credentials", "true")
		}

		headers.Set("Access-Control-Allow-Methods", allowedMethods)
		headers.Set("Access-Control-Allow-Headers", allowedHeaders)
		headers.Set("Access-Control-Max-Age", preflightTTL)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func normalize(origin string) string {
	return strings.ToLower(strings.TrimRight(origin, "/"))
}
