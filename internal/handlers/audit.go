package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pollhive/pollhive/internal/middleware"
	"github.com/pollhive/pollhive/internal/services"
	"github.com/pollhive/pollhive/pkg/errors"
	"github.com/pollhive/pollhive/pkg/response"
)

// AuditHandler lets an admin review their own recent audit trail.
type AuditHandler struct {
	audit *services.AuditService
}

func NewAuditHandler(audit *services.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// GET /api/audit
func (h *AuditHandler) List(c *gin.Context) {
	adminID, ok := middleware.AdminID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	entries, err := h.audit.List(requestContext(c), services.ListOptions{
		AdminID: adminID,
		Action:  c.Query("action"),
		Limit:   parseIntQuery(c, "limit", 0),
	})
	if err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"entries": entries})
}
