package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/regforms/internal/identity"
	"github.com/charlesng35/regforms/internal/middleware"
	"github.com/charlesng35/regforms/internal/session"
	appErrors "github.com/charlesng35/regforms/pkg/errors"
	"github.com/charlesng35/regforms/pkg/response"
)

// SessionService is the session surface used by AuthHandler.
type SessionService interface {
	Login(ctx context.Context, credential, deviceInfo string) (session.LoginResult, error)
	Identify(ctx context.Context, credential string) (identity.Identity, error)
	CheckAccess(ctx context.Context, userID, sessionID string) bool
	Logout(ctx context.Context, userID, sessionID string) error
	ListSessions(ctx context.Context, userID string) ([]session.Record, error)
}

// EventStream upgrades an authenticated request into a session events stream.
type EventStream interface {
	Serve(userID, sessionID string, w http.ResponseWriter, r *http.Request)
}

// CookieSettings controls the cookies issued on login.
type CookieSettings struct {
	CredentialName string
	SessionName    string
	Domain         string
	Secure         bool
}

// AuthHandler exposes login, logout and session management endpoints.
type AuthHandler struct {
	sessions SessionService
	events   EventStream
	cookies  CookieSettings
	ttl      time.Duration
}

// NewAuthHandler constructs an AuthHandler. events may be nil when websocket
// notifications are disabled.
func NewAuthHandler(sessions SessionService, events EventStream, cookies CookieSettings, ttl time.Duration) *AuthHandler {
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	return &AuthHandler{sessions: sessions, events: events, cookies: cookies, ttl: ttl}
}

type loginRequest struct {
	Credential string `json:"credential" validate:"omitempty,max=8192"`
	DeviceInfo string `json:"device_info" validate:"omitempty,max=512,device_info"`
}

type loginResponse struct {
	UserID            string    `json:"user_id"`
	SessionID         string    `json:"session_id"`
	ExpiresAt         time.Time `json:"expires_at"`
	EvictedSessionIDs []string  `json:"evicted_session_ids"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	credential := strings.TrimSpace(req.Credential)
	if credential == "" {
		credential = middleware.Credential(c, h.cookies.CredentialName)
	}
	if credential == "" {
		response.Error(c, appErrors.NewBadRequest("credential is required"))
		return
	}

	deviceInfo := strings.TrimSpace(req.DeviceInfo)
	if deviceInfo == "" {
		deviceInfo = truncate(c.Request.UserAgent(), 512)
	}

	result, err := h.sessions.Login(requestContext(c), credential, deviceInfo)
	if err != nil {
		response.Error(c, sessionError(err))
		return
	}

	h.setCookies(c, credential, result.SessionID)

	evicted := result.Evicted
	if evicted == nil {
		evicted = []string{}
	}
	response.Success(c, http.StatusOK, loginResponse{
		UserID:            result.UserID,
		SessionID:         result.SessionID,
		ExpiresAt:         result.CreatedAt.Add(h.ttl),
		EvictedSessionIDs: evicted,
	})
}

// POST /api/auth/logout
//
// Logout only requires a verifiable credential so that repeating it after the session
// is gone still succeeds.
func (h *AuthHandler) Logout(c *gin.Context) {
	sessionID := middleware.SessionID(c, h.cookies.SessionName)
	who, err := h.sessions.Identify(requestContext(c), middleware.Credential(c, h.cookies.CredentialName))
	if err != nil {
		h.clearCookies(c)
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.sessions.Logout(requestContext(c), who.UserID, sessionID); err != nil {
		response.Error(c, sessionError(err))
		return
	}

	h.clearCookies(c)
	response.Success(c, http.StatusOK, gin.H{"logged_out": true})
}

type checkRequest struct {
	SessionID string `json:"session_id" validate:"omitempty,session_token"`
}

// POST /api/auth/check
func (h *AuthHandler) Check(c *gin.Context) {
	var req checkRequest
	if !bindAndValidate(c, &req) {
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = middleware.SessionID(c, h.cookies.SessionName)
	}

	valid := false
	if who, err := h.sessions.Identify(requestContext(c), middleware.Credential(c, h.cookies.CredentialName)); err == nil {
		valid = h.sessions.CheckAccess(requestContext(c), who.UserID, sessionID)
	}
	response.Success(c, http.StatusOK, gin.H{"valid": valid})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	who, sessionID := principal(c)

	response.Success(c, http.StatusOK, gin.H{
		"user_id":    who.UserID,
		"email":      who.Email,
		"issuer":     who.Issuer,
		"session_id": sessionID,
	})
}

type sessionView struct {
	SessionID  string    `json:"session_id"`
	DeviceInfo string    `json:"device_info"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Current    bool      `json:"current"`
}

// GET /api/auth/sessions
func (h *AuthHandler) ListSessions(c *gin.Context) {
	who, current := principal(c)

	records, err := h.sessions.ListSessions(requestContext(c), who.UserID)
	if err != nil {
		response.Error(c, sessionError(err))
		return
	}

	views := make([]sessionView, 0, len(records))
	for _, record := range records {
		views = append(views, sessionView{
			SessionID:  record.SessionID,
			DeviceInfo: record.DeviceInfo,
			CreatedAt:  record.CreatedAt,
			ExpiresAt:  record.ExpiresAt(h.ttl),
			Current:    record.SessionID == current,
		})
	}
	response.Success(c, http.StatusOK, views)
}

// DELETE /api/auth/sessions/:id
func (h *AuthHandler) DeleteSession(c *gin.Context) {
	target := strings.TrimSpace(c.Param("id"))
	if target == "" {
		response.Error(c, appErrors.NewBadRequest("session id is required"))
		return
	}

	who, current := principal(c)
	if err := h.sessions.Logout(requestContext(c), who.UserID, target); err != nil {
		response.Error(c, sessionError(err))
		return
	}

	if target == current {
		h.clearCookies(c)
	}
	response.Success(c, http.StatusOK, gin.H{"terminated": target})
}

// GET /api/auth/events
func (h *AuthHandler) Events(c *gin.Context) {
	if h.events == nil {
		response.Error(c, appErrors.ErrNotFound)
		return
	}
	who, sessionID := principal(c)
	h.events.Serve(who.UserID, sessionID, c.Writer, c.Request)
}

func (h *AuthHandler) setCookies(c *gin.Context, credential, sessionID string) {
	maxAge := int(h.ttl.Seconds())
	h.writeCookie(c, h.cookies.CredentialName, credential, maxAge)
	h.writeCookie(c, h.cookies.SessionName, sessionID, maxAge)
}

func (h *AuthHandler) clearCookies(c *gin.Context) {
	h.writeCookie(c, h.cookies.CredentialName, "", -1)
	h.writeCookie(c, h.cookies.SessionName, "", -1)
}

func (h *AuthHandler) writeCookie(c *gin.Context, name, value string, maxAge int) {
	if name == "" {
		return
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.cookies.Domain,
		MaxAge:   maxAge,
		Secure:   h.cookies.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// sessionError maps session errors onto API errors without exposing store details.
func sessionError(err error) *appErrors.AppError {
	switch {
	case errors.Is(err, session.ErrInvalidCredential):
		return appErrors.ErrInvalidCredentials.WithInternal(err)
	case errors.Is(err, session.ErrSessionStore):
		return appErrors.ErrSessionStoreUnavailable.WithInternal(err)
	case errors.Is(err, session.ErrInvalidInput):
		return appErrors.NewBadRequest("invalid session request")
	default:
		return appErrors.ErrInternalServer.WithInternal(err)
	}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
