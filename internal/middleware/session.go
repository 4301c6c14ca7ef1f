package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/regforms/internal/identity"
	"github.com/charlesng35/regforms/pkg/errors"
	"github.com/charlesng35/regforms/pkg/response"
)

const (
	CtxIdentityKey  = "identity"
	CtxUserIDKey    = "userID"
	CtxSessionIDKey = "sessionID"

	// SessionHeader carries the session id for clients that do not use cookies.
	SessionHeader = "X-Session-ID"
)

// SessionAuthenticator checks a credential and session id pair.
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, credential, sessionID string) (identity.Identity, bool)
}

// CookieNames names the cookies carrying the identity credential and the session id.
type CookieNames struct {
	Credential string
	Session    string
}

// RequireSession lets the request through only when the presented credential and
// session id form a currently valid session. Every failure, including an unavailable
// session store, answers 401.
func RequireSession(auth SessionAuthenticator, cookies CookieNames) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential := Credential(c, cookies.Credential)
		sessionID := SessionID(c, cookies.Session)
		if credential == "" || sessionID == "" {
			c.Header("WWW-Authenticate", "Bearer")
			response.Abort(c, errors.ErrUnauthorized)
			return
		}

		principal, ok := auth.Authenticate(c.Request.Context(), credential, sessionID)
		if !ok {
			c.Header("WWW-Authenticate", "Bearer")
			response.Abort(c, errors.ErrUnauthorized)
			return
		}

		c.Set(CtxIdentityKey, principal)
		c.Set(CtxUserIDKey, principal.UserID)
		c.Set(CtxSessionIDKey, sessionID)
		c.Next()
	}
}

// Credential reads the identity credential from the bearer header, falling back to
// the named cookie.
func Credential(c *gin.Context, cookieName string) string {
	if authz := c.GetHeader("Authorization"); len(authz) > 7 && strings.EqualFold(authz[:7], "Bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	if cookieName == "" {
		return ""
	}
	value, err := c.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}

// SessionID reads the session id from SessionHeader, falling back to the named cookie.
func SessionID(c *gin.Context, cookieName string) string {
	if header := strings.TrimSpace(c.GetHeader(SessionHeader)); header != "" {
		return header
	}
	if cookieName == "" {
		return ""
	}
	value, err := c.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}
