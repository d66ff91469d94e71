package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	iauth "github.com/pollhive/pollhive/internal/auth"
	"github.com/pollhive/pollhive/internal/handlers"
	"github.com/pollhive/pollhive/internal/middleware"
	"github.com/pollhive/pollhive/internal/services"
)

// Deps bundles everything the HTTP surface needs.
type Deps struct {
	Auth   *services.AuthService
	Polls  *services.PollService
	Audit  *services.AuditService
	JWT    *iauth.JWTService
	Tokens *iauth.TokenStore

	// RateLimitRequests caps requests per client and route within
	// RateLimitWindow. Zero disables limiting.
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth service must be provided")
	}
	if deps.Polls == nil {
		return nil, fmt.Errorf("poll service must be provided")
	}
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("token store must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.RateLimit(deps.RateLimitRequests, deps.RateLimitWindow))

	r.NoRoute(middleware.NotFoundHandler)

	// Operational endpoints (public)
	r.GET("/health", handlers.Health())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandler := handlers.NewAuthHandler(deps.Auth, deps.Tokens, deps.JWT, deps.Audit)
	pollHandler := handlers.NewPollHandler(deps.Polls, deps.Audit)

	// Public auth routes
	auth := r.Group("/api/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/verify", authHandler.Verify)
		auth.POST("/resend", authHandler.Resend)
		auth.POST("/session", authHandler.Session)
	}

	// Public poll routes: anyone with the link can view and vote
	r.GET("/api/polls/:id", pollHandler.Get)
	r.GET("/api/polls/:id/results", pollHandler.Results)
	r.POST("/api/polls/:id/vote", pollHandler.Vote)

	// Protected routes
	requireAuth := middleware.Auth(deps.JWT)

	api := r.Group("/api")
	api.Use(requireAuth)

	api.GET("/auth/me", authHandler.Me)

	api.POST("/polls", pollHandler.Create)
	api.GET("/polls", pollHandler.List)
	api.POST("/polls/:id/close", pollHandler.Close)

	if deps.Audit != nil {
		auditHandler := handlers.NewAuditHandler(deps.Audit)
		api.GET("/audit", auditHandler.List)
	}

	return r, nil
}
