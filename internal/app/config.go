package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/charlesng35/regforms/pkg/crypto"
)

// Config represents the runtime configuration for the regforms backend.
type Config struct {
	Server        ServerConfig       `mapstructure:"server"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Cache         CacheConfig        `mapstructure:"cache"`
	Auth          AuthConfig         `mapstructure:"auth"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Monitoring    MonitoringConfig   `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// CacheConfig describes cache backends.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Prefix   string        `mapstructure:"prefix"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	Session   SessionSettings   `mapstructure:"session"`
	Identity  IdentitySettings  `mapstructure:"identity"`
	Cookies   CookieSettings    `mapstructure:"cookies"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
}

// SessionSettings configures session admission and storage.
type SessionSettings struct {
	Backend         string        `mapstructure:"backend"`
	MaxSessions     int           `mapstructure:"max_sessions"`
	TTL             time.Duration `mapstructure:"ttl"`
	TokenLength     int           `mapstructure:"token_length"`
	StoreTimeout    time.Duration `mapstructure:"store_timeout"`
	CleanupSchedule string        `mapstructure:"cleanup_schedule"`
}

// IdentitySettings selects the external identity provider.
type IdentitySettings struct {
	Provider string           `mapstructure:"provider"`
	JWT      JWTSettings      `mapstructure:"jwt"`
	OIDC     OIDCSettings     `mapstructure:"oidc"`
	Firebase FirebaseSettings `mapstructure:"firebase"`
}

// JWTSettings configures verification of HS256 credentials.
type JWTSettings struct {
	Secret   string `mapstructure:"secret"`
	Issuer   string `mapstructure:"issuer"`
	Audience string `mapstructure:"audience"`
}

// OIDCSettings configures a generic OpenID Connect issuer.
type OIDCSettings struct {
	Issuer   string `mapstructure:"issuer"`
	ClientID string `mapstructure:"client_id"`
}

// FirebaseSettings configures Firebase Authentication.
type FirebaseSettings struct {
	ProjectID string `mapstructure:"project_id"`
}

// CookieSettings names the cookies issued on login.
type CookieSettings struct {
	CredentialName string `mapstructure:"credential_name"`
	SessionName    string `mapstructure:"session_name"`
	Secure         bool   `mapstructure:"secure"`
	Domain         string `mapstructure:"domain"`
}

// RateLimitSettings throttles login attempts per client.
type RateLimitSettings struct {
	LoginRequests int           `mapstructure:"login_requests"`
	Window        time.Duration `mapstructure:"window"`
}

// NotificationConfig controls how session ended events are delivered.
type NotificationConfig struct {
	WebSocket WebSocketSettings `mapstructure:"websocket"`
	NATS      NATSSettings      `mapstructure:"nats"`
}

// WebSocketSettings toggles the browser event stream.
type WebSocketSettings struct {
	Enabled bool `mapstructure:"enabled"`
}

// NATSSettings configures cross-node fan-out.
type NATSSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// MonitoringConfig enables metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
// A path ending in .yaml or .yml is read as the config file itself; any other path is
// searched for config.yaml.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			v.SetConfigFile(path)
			continue
		}
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("REGFORMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Auth.Session.Backend {
	case "database", "redis", "memory":
	default:
		return fmt.Errorf("config: auth.session.backend %q is not one of database, redis, memory", c.Auth.Session.Backend)
	}
	if c.Auth.Session.Backend == "redis" && !c.Cache.Redis.Enabled {
		return errors.New("config: auth.session.backend redis requires cache.redis.enabled")
	}
	if c.Auth.Session.MaxSessions < 1 {
		return errors.New("config: auth.session.max_sessions must be at least 1")
	}
	if n := c.Auth.Session.TokenLength; n < crypto.MinTokenLength || n > crypto.MaxTokenLength {
		return fmt.Errorf("config: auth.session.token_length must be between %d and %d", crypto.MinTokenLength, crypto.MaxTokenLength)
	}
	if c.Auth.Session.TTL <= 0 {
		return errors.New("config: auth.session.ttl must be positive")
	}
	if c.Notifications.NATS.Enabled && strings.TrimSpace(c.Notifications.NATS.URL) == "" {
		return errors.New("config: notifications.nats.url is required when nats is enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/regforms.sqlite")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.mysql.port", 3306)

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")
	v.SetDefault("cache.redis.prefix", "regforms:")

	v.SetDefault("auth.session.backend", "database")
	v.SetDefault("auth.session.max_sessions", 2)
	v.SetDefault("auth.session.ttl", "336h") // 14 days
	v.SetDefault("auth.session.token_length", 32)
	v.SetDefault("auth.session.store_timeout", "5s")
	v.SetDefault("auth.session.cleanup_schedule", "@hourly")

	v.SetDefault("auth.identity.provider", "jwt")
	v.SetDefault("auth.identity.jwt.secret", "")
	v.SetDefault("auth.identity.jwt.issuer", "")
	v.SetDefault("auth.identity.jwt.audience", "")
	v.SetDefault("auth.identity.oidc.issuer", "")
	v.SetDefault("auth.identity.oidc.client_id", "")
	v.SetDefault("auth.identity.firebase.project_id", "")

	v.SetDefault("auth.cookies.credential_name", "__session")
	v.SetDefault("auth.cookies.session_name", "sessionId")
	v.SetDefault("auth.cookies.secure", true)

	v.SetDefault("auth.rate_limit.login_requests", 20)
	v.SetDefault("auth.rate_limit.window", "1m")

	v.SetDefault("notifications.websocket.enabled", true)
	v.SetDefault("notifications.nats.enabled", false)
	v.SetDefault("notifications.nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("notifications.nats.subject", "regforms.sessions.ended")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
