// Package requestid tags every request with a correlation ID so log lines
// across services can be stitched together. An ID supplied by the caller via
// X-Request-ID is trusted as-is.
package requestid

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Header is the HTTP header carrying the correlation ID.
const Header = "X-Request-ID"

const contextKey = "request_id"

// Middleware ensures the request carries an ID and echoes it on the response.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(Header)
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(contextKey, id)
		c.Writer.Header().Set(Header, id)
		c.Next()
	}
}

// Value reads the request ID from the Gin context, or "" when the middleware
// did not run.
func Value(c *gin.Context) string {
	id, _ := c.Value(contextKey).(string)
	return id
}
