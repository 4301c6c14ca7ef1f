package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/regforms/internal/app"
	"github.com/charlesng35/regforms/internal/handlers/testutil"
	"github.com/charlesng35/regforms/internal/session"
)

type unavailableStore struct {
	session.Store
}

var errUnavailable = errors.New("connection refused")

func (unavailableStore) WithUserLock(context.Context, string, func(session.Store) error) error {
	return errUnavailable
}

func (unavailableStore) FindByID(context.Context, string) (session.Record, error) {
	return session.Record{}, errUnavailable
}

func (unavailableStore) FindByUser(context.Context, string) ([]session.Record, error) {
	return nil, errUnavailable
}

func (unavailableStore) DeleteByUserAndSession(context.Context, string, string) error {
	return errUnavailable
}

type endedEvents struct {
	mu     sync.Mutex
	events []session.EndedEvent
}

func (e *endedEvents) SessionEnded(_ context.Context, event session.EndedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func checkValid(t *testing.T, env *testutil.Env, credential, sessionID string) bool {
	t.Helper()
	w := env.Request(http.MethodPost, "/api/auth/check", map[string]string{"session_id": sessionID}, testutil.Auth{Credential: credential})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var payload struct {
		Valid bool `json:"valid"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &payload)
	return payload.Valid
}

func TestThirdLoginEvictsOldestSession(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts []testutil.EnvOption
	}{
		{name: "memory"},
		{name: "database", opts: []testutil.EnvOption{testutil.WithGormStore()}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			notified := &endedEvents{}
			env := testutil.NewEnv(t, append(tc.opts, testutil.WithNotifier(notified))...)
			credential := env.Credential("user-A")

			first := env.Login(credential, "laptop")
			second := env.Login(credential, "phone")
			require.Empty(t, first.EvictedSessionIDs)
			require.Empty(t, second.EvictedSessionIDs)
			require.True(t, checkValid(t, env, credential, first.SessionID))
			require.True(t, checkValid(t, env, credential, second.SessionID))

			third := env.Login(credential, "tablet")
			require.Equal(t, []string{first.SessionID}, third.EvictedSessionIDs)

			require.False(t, checkValid(t, env, credential, first.SessionID))
			require.True(t, checkValid(t, env, credential, second.SessionID))
			require.True(t, checkValid(t, env, credential, third.SessionID))

			w := env.Request(http.MethodGet, "/api/auth/me", nil, testutil.Auth{Credential: credential, SessionID: first.SessionID})
			require.Equal(t, http.StatusUnauthorized, w.Code)

			notified.mu.Lock()
			defer notified.mu.Unlock()
			require.Len(t, notified.events, 1)
			require.Equal(t, first.SessionID, notified.events[0].SessionID)
			require.Equal(t, session.EndReasonEvicted, notified.events[0].Reason)
		})
	}
}

func TestLoginSetsSessionCookies(t *testing.T) {
	env := testutil.NewEnv(t)
	credential := env.Credential("user-cookie")

	w := env.Request(http.MethodPost, "/api/auth/login", map[string]string{"credential": credential}, testutil.Auth{})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result testutil.LoginResult
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &result)
	require.Equal(t, "user-cookie", result.UserID)
	require.WithinDuration(t, env.Clock.Now().Add(env.Config.Auth.Session.TTL), result.ExpiresAt, time.Second)

	cookies := map[string]*http.Cookie{}
	for _, cookie := range w.Result().Cookies() {
		cookies[cookie.Name] = cookie
	}
	require.Contains(t, cookies, "__session")
	require.Contains(t, cookies, "sessionId")
	require.Equal(t, result.SessionID, cookies["sessionId"].Value)
	require.True(t, cookies["sessionId"].HttpOnly)
	require.Equal(t, http.SameSiteLaxMode, cookies["sessionId"].SameSite)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(cookies["__session"])
	req.AddCookie(cookies["sessionId"])
	rec := httptest.NewRecorder()
	env.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var me struct {
		UserID    string `json:"user_id"`
		SessionID string `json:"session_id"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, rec).Data, &me)
	require.Equal(t, "user-cookie", me.UserID)
	require.Equal(t, result.SessionID, me.SessionID)
}

func TestLoginRejectsInvalidCredential(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/auth/login", map[string]string{"credential": "not-a-jwt"}, testutil.Auth{})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	resp := testutil.DecodeResponse(t, w)
	require.False(t, resp.Success)
	require.Equal(t, "INVALID_CREDENTIALS", resp.Error.Code)

	w = env.Request(http.MethodPost, "/api/auth/login", nil, testutil.Auth{})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginAcceptsBearerCredential(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/auth/login", nil, testutil.Auth{Credential: env.Credential("user-bearer")})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	records, err := env.Store.FindByUser(context.Background(), "user-bearer")
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestStoreUnavailableMapsToServiceUnavailable(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithStore(func(opts session.StoreOptions) session.Store {
		return unavailableStore{Store: session.NewMemoryStore(opts)}
	}))
	credential := env.Credential("user-down")

	w := env.Request(http.MethodPost, "/api/auth/login", map[string]string{"credential": credential}, testutil.Auth{})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := testutil.DecodeResponse(t, w)
	require.Equal(t, "SESSION_STORE_UNAVAILABLE", resp.Error.Code)
	require.NotContains(t, w.Body.String(), "connection refused")

	// Protected routes fail closed.
	w = env.Request(http.MethodGet, "/api/auth/me", nil, testutil.Auth{Credential: credential, SessionID: "Zm9vYmFyYmF6cXV4cXV1eA"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.Request(http.MethodPost, "/api/auth/logout", nil, testutil.Auth{Credential: credential, SessionID: "Zm9vYmFyYmF6cXV4cXV1eA"})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLogoutIsIdempotent(t *testing.T) {
	env := testutil.NewEnv(t)
	credential := env.Credential("user-logout")
	login := env.Login(credential, "laptop")
	auth := testutil.Auth{Credential: credential, SessionID: login.SessionID}

	w := env.Request(http.MethodPost, "/api/auth/logout", nil, auth)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/api/auth/me", nil, auth)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.Request(http.MethodPost, "/api/auth/logout", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.Request(http.MethodPost, "/api/auth/logout", nil, testutil.Auth{SessionID: login.SessionID})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionIsBoundToItsUser(t *testing.T) {
	env := testutil.NewEnv(t)
	alice := env.Credential("alice")
	bob := env.Credential("bob")

	login := env.Login(alice, "laptop")
	require.False(t, checkValid(t, env, bob, login.SessionID))

	w := env.Request(http.MethodGet, "/api/auth/me", nil, testutil.Auth{Credential: bob, SessionID: login.SessionID})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// Bob cannot terminate Alice's session.
	bobLogin := env.Login(bob, "phone")
	w = env.Request(http.MethodDelete, "/api/auth/sessions/"+login.SessionID, nil, testutil.Auth{Credential: bob, SessionID: bobLogin.SessionID})
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, checkValid(t, env, alice, login.SessionID))
}

func TestSessionsExpireAfterTTL(t *testing.T) {
	env := testutil.NewEnv(t)
	login := env.Login(env.Credential("user-ttl"), "laptop")

	env.Clock.Advance(env.Config.Auth.Session.TTL + time.Second)
	require.False(t, checkValid(t, env, env.Credential("user-ttl"), login.SessionID))
}

func TestListAndDeleteSessions(t *testing.T) {
	env := testutil.NewEnv(t)
	credential := env.Credential("user-list")
	first := env.Login(credential, "laptop")
	second := env.Login(credential, "phone")
	auth := testutil.Auth{Credential: credential, SessionID: second.SessionID}

	w := env.Request(http.MethodGet, "/api/auth/sessions", nil, auth)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var views []struct {
		SessionID  string `json:"session_id"`
		DeviceInfo string `json:"device_info"`
		Current    bool   `json:"current"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &views)
	require.Len(t, views, 2)
	require.Equal(t, first.SessionID, views[0].SessionID)
	require.Equal(t, "laptop", views[0].DeviceInfo)
	require.False(t, views[0].Current)
	require.True(t, views[1].Current)

	w = env.Request(http.MethodDelete, "/api/auth/sessions/"+first.SessionID, nil, auth)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.False(t, checkValid(t, env, credential, first.SessionID))
	require.True(t, checkValid(t, env, credential, second.SessionID))
}

func TestCheckRejectsMalformedSessionID(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/auth/check", map[string]string{"session_id": "not a token!"}, testutil.Auth{Credential: env.Credential("u")})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginRateLimit(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithConfig(func(cfg *app.Config) {
		cfg.Auth.RateLimit.LoginRequests = 2
		cfg.Auth.RateLimit.Window = time.Minute
	}))

	for i := 0; i < 2; i++ {
		w := env.Request(http.MethodPost, "/api/auth/login", map[string]string{"credential": "bad"}, testutil.Auth{})
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w := env.Request(http.MethodPost, "/api/auth/login", map[string]string{"credential": "bad"}, testutil.Auth{})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestLoginRejectsControlCharactersInDeviceInfo(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"credential":  env.Credential("user-device"),
		"device_info": "laptop\r\nX-Injected: 1",
	}, testutil.Auth{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "printable")
}
