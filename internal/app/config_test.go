package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/regforms/internal/identity"
	"github.com/charlesng35/regforms/pkg/crypto"
	"github.com/charlesng35/regforms/pkg/validator"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)

	require.True(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, "redis.example.com:6380", cfg.Cache.Redis.Address)
	require.Equal(t, 2*time.Second, cfg.Cache.Redis.Timeout)

	require.Equal(t, "redis", cfg.Auth.Session.Backend)
	require.Equal(t, 3, cfg.Auth.Session.MaxSessions)
	require.Equal(t, 48*time.Hour, cfg.Auth.Session.TTL)
	require.Equal(t, 750*time.Millisecond, cfg.Auth.Session.StoreTimeout)
	require.Equal(t, "*/15 * * * *", cfg.Auth.Session.CleanupSchedule)
	require.Equal(t, 32, cfg.Auth.Session.TokenLength)

	require.Equal(t, "oidc", cfg.Auth.Identity.Provider)
	require.Equal(t, "regforms-web", cfg.Auth.Identity.OIDC.ClientID)
	require.False(t, cfg.Auth.Cookies.Secure)
	require.Equal(t, "__session", cfg.Auth.Cookies.CredentialName)
	require.Equal(t, "sessionId", cfg.Auth.Cookies.SessionName)

	require.True(t, cfg.Notifications.NATS.Enabled)
	require.Equal(t, "regforms.sessions.ended", cfg.Notifications.NATS.Subject)
	require.True(t, cfg.Notifications.WebSocket.Enabled)
	require.False(t, cfg.Monitoring.Prometheus.Enabled)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "database", cfg.Auth.Session.Backend)
	require.Equal(t, 2, cfg.Auth.Session.MaxSessions)
	require.Equal(t, 14*24*time.Hour, cfg.Auth.Session.TTL)
	require.Equal(t, 5*time.Second, cfg.Auth.Session.StoreTimeout)
	require.Equal(t, "@hourly", cfg.Auth.Session.CleanupSchedule)
	require.Equal(t, "jwt", cfg.Auth.Identity.Provider)
	require.True(t, cfg.Auth.Cookies.Secure)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("REGFORMS_AUTH_SESSION_MAX_SESSIONS", "4")
	t.Setenv("REGFORMS_AUTH_IDENTITY_JWT_SECRET", "from-env")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Auth.Session.MaxSessions)
	require.Equal(t, "from-env", cfg.Auth.Identity.JWT.Secret)
}

func TestLoadConfigRejectsInvalidBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  session:\n    backend: etcd\n"), 0o600))

	_, err := LoadConfig(path)
	require.ErrorContains(t, err, "auth.session.backend")
}

func TestValidateRedisBackendRequiresRedis(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	cfg.Auth.Session.Backend = "redis"
	require.ErrorContains(t, cfg.Validate(), "cache.redis.enabled")

	cfg.Cache.Redis.Enabled = true
	require.NoError(t, cfg.Validate())

	cfg.Auth.Session.MaxSessions = 0
	require.ErrorContains(t, cfg.Validate(), "max_sessions")
}

func TestLoadConfigRejectsOutOfRangeTokenLength(t *testing.T) {
	for _, value := range []string{"8", "97", "100"} {
		t.Run(value, func(t *testing.T) {
			t.Setenv("REGFORMS_AUTH_SESSION_TOKEN_LENGTH", value)

			_, err := LoadConfig(t.TempDir())
			require.ErrorContains(t, err, "token_length")
		})
	}

	t.Setenv("REGFORMS_AUTH_SESSION_TOKEN_LENGTH", "96")
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	token, err := crypto.GenerateToken(cfg.Auth.Session.TokenLength)
	require.NoError(t, err)
	require.Len(t, token, 128)
	require.True(t, validator.IsSessionToken(token))
}

func TestAuthConfigAdapters(t *testing.T) {
	cfg := AuthConfig{
		Session: SessionSettings{
			MaxSessions:  2,
			TokenLength:  48,
			StoreTimeout: time.Second,
		},
		Identity: IdentitySettings{
			Provider: " JWT ",
			JWT:      JWTSettings{Secret: "s3cret", Issuer: " regforms "},
		},
		Cookies: CookieSettings{CredentialName: "__session", SessionName: "sessionId", Secure: true},
	}

	sessionCfg := cfg.SessionConfig()
	require.Equal(t, 2, sessionCfg.MaxSessions)
	require.Equal(t, 48, sessionCfg.TokenLength)
	require.Equal(t, time.Second, sessionCfg.StoreTimeout)

	require.Positive(t, cfg.StoreOptions().TTL)

	identityCfg := cfg.IdentityConfig()
	require.Equal(t, identity.ProviderJWT, identityCfg.Provider)
	require.Equal(t, "regforms", identityCfg.JWT.Issuer)

	cookies := cfg.CookieSettings()
	require.Equal(t, "sessionId", cookies.SessionName)
	require.True(t, cookies.Secure)

	requests, window := cfg.LoginRateLimit()
	require.Zero(t, requests)
	require.Equal(t, time.Minute, window)
}

func TestCacheAndDatabaseAdapters(t *testing.T) {
	cache := CacheConfig{Redis: RedisCacheConfig{Address: " localhost:6379 ", DB: 1, TLS: true, Timeout: time.Second}}
	opts := cache.RedisOptions()
	require.Equal(t, "localhost:6379", opts.Addr)
	require.Equal(t, 1, opts.DB)
	require.NotNil(t, opts.TLSConfig)
	require.Equal(t, time.Second, opts.ReadTimeout)

	db := DatabaseConfig{
		Driver:   "Postgres",
		Postgres: DBAuthConfig{Host: "db", Port: 5433, Database: "regforms", Username: "app", SSLMode: "require"},
	}
	dbCfg := db.DatabaseOptions()
	require.Equal(t, "postgres", dbCfg.Driver)
	require.Equal(t, "regforms", dbCfg.Name)
	require.Equal(t, "require", dbCfg.Options["sslmode"])

	sqlite := DatabaseConfig{Driver: "sqlite", Path: "./data/x.sqlite"}.DatabaseOptions()
	require.Equal(t, "./data/x.sqlite", sqlite.Path)
	require.Empty(t, sqlite.Host)
}
