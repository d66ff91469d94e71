package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
)

// requestContext returns the context attached to the incoming request.
// Handlers invoked without one (direct calls in tests) get a background
// context instead.
func requestContext(c *gin.Context) context.Context {
	if c == nil || c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}
