package handlers

import (
	goerrors "errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/pollhive/pollhive/internal/auth"
	"github.com/pollhive/pollhive/internal/middleware"
	"github.com/pollhive/pollhive/internal/services"
	"github.com/pollhive/pollhive/pkg/errors"
	"github.com/pollhive/pollhive/pkg/metrics"
	"github.com/pollhive/pollhive/pkg/response"
)

var errEmailRegistered = errors.New("auth.email_registered", "This email is already registered", http.StatusConflict)

// AuthHandler manages the OTP authentication flow: register, login, verify,
// resend, and the exchange of a one-time token for a session JWT.
type AuthHandler struct {
	auth   *services.AuthService
	tokens *iauth.TokenStore
	jwt    *iauth.JWTService
	audit  *services.AuditService
}

func NewAuthHandler(auth *services.AuthService, tokens *iauth.TokenStore, jwt *iauth.JWTService, audit *services.AuditService) *AuthHandler {
	return &AuthHandler{auth: auth, tokens: tokens, jwt: jwt, audit: audit}
}

type registerRequest struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"required,max=100"`
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.auth.Register(requestContext(c), req.Email, req.Name)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("register", "failure").Inc()
		if goerrors.Is(err, services.ErrEmailRegistered) {
			response.Error(c, errEmailRegistered)
			return
		}
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	metrics.AuthAttempts.WithLabelValues("register", "success").Inc()
	h.recordAudit(c, "", services.AuditActionRegister, req.Email, "success")

	response.Success(c, http.StatusOK, gin.H{"message": "verification code sent"})
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req emailRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.auth.Login(requestContext(c), req.Email)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("login", "failure").Inc()
		if goerrors.Is(err, services.ErrAdminNotFound) {
			response.Error(c, errors.NewNotFound("no account found for this email"))
			return
		}
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	metrics.AuthAttempts.WithLabelValues("login", "success").Inc()
	response.Success(c, http.StatusOK, gin.H{"message": "verification code sent"})
}

// POST /api/auth/resend
func (h *AuthHandler) Resend(c *gin.Context) {
	var req emailRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.auth.ResendOTP(requestContext(c), req.Email)
	if err != nil {
		if goerrors.Is(err, services.ErrAdminNotFound) {
			response.Error(c, errors.NewNotFound("no account found for this email"))
			return
		}
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "verification code sent"})
}

type verifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6"`
}

// POST /api/auth/verify
//
// A correct code yields a short-lived single-use exchange token, not a
// session. The client trades it for a JWT at the session endpoint.
func (h *AuthHandler) Verify(c *gin.Context) {
	var req verifyRequest
	if !bindAndValidate(c, &req) {
		return
	}

	admin, err := h.auth.VerifyOTP(requestContext(c), req.Email, req.Code)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("verify", "failure").Inc()
		h.recordAudit(c, "", services.AuditActionVerify, req.Email, "failure")
		switch {
		case goerrors.Is(err, services.ErrOTPExpired):
			response.Error(c, errors.ErrCodeExpired)
		case goerrors.Is(err, services.ErrInvalidOTP), goerrors.Is(err, services.ErrAdminNotFound):
			response.Error(c, errors.ErrInvalidCode)
		default:
			response.Error(c, errors.ErrInternalServer.WithInternal(err))
		}
		return
	}

	token, err := h.tokens.Issue(iauth.ExchangeIdentity{
		AdminID: admin.ID,
		Email:   admin.Email,
		Name:    admin.Name,
	})
	if err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	metrics.AuthAttempts.WithLabelValues("verify", "success").Inc()
	h.recordAudit(c, admin.ID, services.AuditActionVerify, req.Email, "success")

	response.Success(c, http.StatusOK, gin.H{"exchange_token": token})
}

type sessionRequest struct {
	ExchangeToken string `json:"exchange_token" validate:"required"`
}

// POST /api/auth/session
func (h *AuthHandler) Session(c *gin.Context) {
	var req sessionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	identity, err := h.tokens.Consume(strings.TrimSpace(req.ExchangeToken))
	if err != nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	accessToken, err := h.jwt.GenerateAccessToken(identity.AdminID, identity.Email)
	if err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   int(h.jwt.AccessTokenTTL().Seconds()),
		"admin": gin.H{
			"id":    identity.AdminID,
			"email": identity.Email,
			"name":  identity.Name,
		},
	})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	adminID, ok := middleware.AdminID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	admin, err := h.auth.GetAdmin(requestContext(c), adminID)
	if err != nil {
		if goerrors.Is(err, services.ErrAdminNotFound) {
			response.Error(c, errors.ErrUnauthorized)
			return
		}
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"id":    admin.ID,
		"email": admin.Email,
		"name":  admin.Name,
	})
}

func (h *AuthHandler) recordAudit(c *gin.Context, adminID, action, resource, result string) {
	if h.audit == nil {
		return
	}
	// Audit writes never fail the request.
	_ = h.audit.Record(requestContext(c), services.AuditEntry{
		AdminID:   adminID,
		Action:    action,
		Resource:  resource,
		Result:    result,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
}
