package app

import (
	"strings"
	"time"

	"github.com/charlesng35/regforms/internal/handlers"
	"github.com/charlesng35/regforms/internal/identity"
	"github.com/charlesng35/regforms/internal/session"
)

const defaultLoginWindow = time.Minute

// SessionConfig converts AuthConfig into session controller parameters. The notifier and
// logger are wired by the caller.
func (c AuthConfig) SessionConfig() session.Config {
	return session.Config{
		MaxSessions:  c.Session.MaxSessions,
		TokenLength:  c.Session.TokenLength,
		StoreTimeout: c.Session.StoreTimeout,
	}
}

// StoreOptions converts AuthConfig into the options shared by the session stores.
func (c AuthConfig) StoreOptions() session.StoreOptions {
	ttl := c.Session.TTL
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	return session.StoreOptions{TTL: ttl}
}

// IdentityConfig converts AuthConfig into identity verifier parameters.
func (c AuthConfig) IdentityConfig() identity.Config {
	return identity.Config{
		Provider: strings.ToLower(strings.TrimSpace(c.Identity.Provider)),
		JWT: identity.JWTConfig{
			Secret:   c.Identity.JWT.Secret,
			Issuer:   strings.TrimSpace(c.Identity.JWT.Issuer),
			Audience: strings.TrimSpace(c.Identity.JWT.Audience),
		},
		OIDC: identity.OIDCConfig{
			Issuer:   strings.TrimSpace(c.Identity.OIDC.Issuer),
			ClientID: strings.TrimSpace(c.Identity.OIDC.ClientID),
		},
		Firebase: identity.FirebaseConfig{
			ProjectID: strings.TrimSpace(c.Identity.Firebase.ProjectID),
		},
	}
}

// CookieSettings converts AuthConfig into the handler cookie settings.
func (c AuthConfig) CookieSettings() handlers.CookieSettings {
	return handlers.CookieSettings{
		CredentialName: c.Cookies.CredentialName,
		SessionName:    c.Cookies.SessionName,
		Domain:         c.Cookies.Domain,
		Secure:         c.Cookies.Secure,
	}
}

// LoginRateLimit returns the request budget and window applied to login attempts.
// A non-positive budget disables the limiter.
func (c AuthConfig) LoginRateLimit() (int, time.Duration) {
	window := c.RateLimit.Window
	if window <= 0 {
		window = defaultLoginWindow
	}
	return c.RateLimit.LoginRequests, window
}
