package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/regforms/internal/identity"
	"github.com/charlesng35/regforms/internal/middleware"
)

// requestContext returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil || c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}

// principal returns the identity and session id stored by RequireSession.
func principal(c *gin.Context) (identity.Identity, string) {
	var who identity.Identity
	if value, ok := c.Get(middleware.CtxIdentityKey); ok {
		who, _ = value.(identity.Identity)
	}
	if who.UserID == "" {
		who.UserID = c.GetString(middleware.CtxUserIDKey)
	}
	return who, c.GetString(middleware.CtxSessionIDKey)
}
