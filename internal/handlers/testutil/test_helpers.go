package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/regforms/internal/api"
	"github.com/charlesng35/regforms/internal/app"
	sharedtestutil "github.com/charlesng35/regforms/internal/database/testutil"
	"github.com/charlesng35/regforms/internal/identity"
	"github.com/charlesng35/regforms/internal/session"
	"github.com/charlesng35/regforms/pkg/response"
)

const jwtSecret = "test-suite-super-secret-key-32-bytes!!"

// Clock is a settable time source shared by the verifier and the session store.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// Now returns the current test time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Env encapsulates a fully-wired API instance for handler tests.
type Env struct {
	T        *testing.T
	Config   *app.Config
	Router   *gin.Engine
	Store    session.Store
	Sessions *session.Service
	JWT      *identity.JWTVerifier
	Clock    *Clock
}

type envConfig struct {
	store     func(opts session.StoreOptions) session.Store
	configure func(cfg *app.Config)
	notifier  session.Notifier
}

// EnvOption customises NewEnv.
type EnvOption func(*envConfig)

// WithGormStore backs the environment with an in-memory sqlite database.
func WithGormStore() EnvOption {
	return func(c *envConfig) {
		c.store = nil
	}
}

// WithStore wraps or replaces the session store built for the environment.
func WithStore(build func(opts session.StoreOptions) session.Store) EnvOption {
	return func(c *envConfig) {
		c.store = build
	}
}

// WithConfig adjusts the application configuration before the router is built.
func WithConfig(fn func(cfg *app.Config)) EnvOption {
	return func(c *envConfig) {
		c.configure = fn
	}
}

// WithNotifier receives session ended events raised by login admission.
func WithNotifier(n session.Notifier) EnvOption {
	return func(c *envConfig) {
		c.notifier = n
	}
}

// NewEnv provisions a fresh handler test environment. The session store defaults to the
// in-memory backend.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	settings := envConfig{
		store: func(opts session.StoreOptions) session.Store { return session.NewMemoryStore(opts) },
	}
	for _, opt := range opts {
		opt(&settings)
	}

	cfg, err := app.LoadConfig(t.TempDir())
	require.NoError(t, err)
	cfg.Auth.Identity.JWT.Secret = jwtSecret
	cfg.Auth.Cookies.Secure = false
	cfg.Auth.RateLimit.LoginRequests = 0
	if settings.configure != nil {
		settings.configure(cfg)
	}

	clock := &Clock{now: time.Now().UTC()}
	storeOpts := cfg.Auth.StoreOptions()
	storeOpts.Clock = clock.Now

	var store session.Store
	if settings.store != nil {
		store = settings.store(storeOpts)
	} else {
		db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())
		store, err = session.NewGormStore(db, storeOpts)
		require.NoError(t, err)
	}

	jwtCfg := cfg.Auth.IdentityConfig().JWT
	jwtCfg.Clock = clock.Now
	verifier, err := identity.NewJWTVerifier(jwtCfg)
	require.NoError(t, err)

	sessionCfg := cfg.Auth.SessionConfig()
	sessionCfg.Clock = clock.Now
	sessionCfg.Notifier = settings.notifier
	sessions, err := session.NewService(verifier, store, sessionCfg)
	require.NoError(t, err)

	router, err := api.NewRouter(cfg, api.Dependencies{Sessions: sessions})
	require.NoError(t, err)

	return &Env{
		T:        t,
		Config:   cfg,
		Router:   router,
		Store:    store,
		Sessions: sessions,
		JWT:      verifier,
		Clock:    clock,
	}
}

// Credential issues an identity credential for userID valid for an hour of test time.
func (e *Env) Credential(userID string) string {
	e.T.Helper()
	token, err := e.JWT.Sign(userID, userID+"@example.com", time.Hour)
	require.NoError(e.T, err)
	return token
}

// LoginResult mirrors the handler login response payload.
type LoginResult struct {
	UserID            string    `json:"user_id"`
	SessionID         string    `json:"session_id"`
	ExpiresAt         time.Time `json:"expires_at"`
	EvictedSessionIDs []string  `json:"evicted_session_ids"`
}

// Login posts credential to the login endpoint and returns the admitted session.
func (e *Env) Login(credential, deviceInfo string) LoginResult {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"credential":  credential,
		"device_info": deviceInfo,
	}, Auth{})
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.SessionID)
	return result
}

// Auth carries the credential and session id presented on a request.
type Auth struct {
	Credential string
	SessionID  string
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and
// the bearer and session headers automatically.
func (e *Env) Request(method, path string, body any, auth Auth) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth.Credential != "" {
		req.Header.Set("Authorization", "Bearer "+auth.Credential)
	}
	if auth.SessionID != "" {
		req.Header.Set("X-Session-ID", auth.SessionID)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
