package api

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlesng35/regforms/internal/app"
	"github.com/charlesng35/regforms/internal/handlers"
	"github.com/charlesng35/regforms/internal/middleware"
)

// Sessions is the session surface the router needs: the handler operations plus the
// authenticator used by RequireSession.
type Sessions interface {
	handlers.SessionService
	middleware.SessionAuthenticator
}

// Dependencies are the runtime services mounted by NewRouter.
type Dependencies struct {
	Sessions Sessions
	// Events serves the websocket stream; nil disables /api/auth/events.
	Events handlers.EventStream
	// RateStore backs the login limiter; nil uses an in-process store.
	RateStore    middleware.RateStore
	HealthChecks map[string]handlers.HealthCheck
}

// NewRouter builds the Gin engine, wires middleware and registers the auth routes.
func NewRouter(cfg *app.Config, deps Dependencies) (*gin.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session service must be provided")
	}
	if deps.RateStore == nil {
		deps.RateStore = middleware.NewMemoryRateStore()
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	if cfg.Monitoring.Prometheus.Enabled {
		r.Use(middleware.Metrics())
	}
	r.Use(middleware.SecurityHeaders(cfg.Auth.Cookies.Secure))

	// Health endpoint (public)
	r.GET("/health", handlers.Health(deps.HealthChecks))

	authHandler := handlers.NewAuthHandler(deps.Sessions, deps.Events, cfg.Auth.CookieSettings(), cfg.Auth.Session.TTL)

	// Public auth routes
	auth := r.Group("/api/auth")
	{
		login := []gin.HandlerFunc{authHandler.Login}
		if requests, window := cfg.Auth.LoginRateLimit(); requests > 0 {
			login = append([]gin.HandlerFunc{middleware.RateLimit(deps.RateStore, requests, window)}, login...)
		}
		auth.POST("/login", login...)
		auth.POST("/logout", authHandler.Logout)
		auth.POST("/check", authHandler.Check)
	}

	// Routes that require a currently valid session
	requireSession := middleware.RequireSession(deps.Sessions, middleware.CookieNames{
		Credential: cfg.Auth.Cookies.CredentialName,
		Session:    cfg.Auth.Cookies.SessionName,
	})

	protected := r.Group("/api/auth")
	protected.Use(requireSession)
	{
		protected.GET("/me", authHandler.Me)
		protected.GET("/sessions", authHandler.ListSessions)
		protected.DELETE("/sessions/:id", authHandler.DeleteSession)
		if deps.Events != nil && cfg.Notifications.WebSocket.Enabled {
			protected.GET("/events", authHandler.Events)
		}
	}

	// Metrics endpoint
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
