package app

import (
	"strings"

	"github.com/charlesng35/regforms/internal/database"
)

// DatabaseOptions converts DatabaseConfig into the connection parameters for the selected driver.
func (c DatabaseConfig) DatabaseOptions() database.Config {
	driver := strings.ToLower(strings.TrimSpace(c.Driver))
	cfg := database.Config{
		Driver:          driver,
		Path:            c.Path,
		DSN:             strings.TrimSpace(c.DSN),
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}

	var auth DBAuthConfig
	switch driver {
	case "postgres", "postgresql":
		auth = c.Postgres
	case "mysql":
		auth = c.MySQL
	default:
		return cfg
	}

	cfg.Host = auth.Host
	cfg.Port = auth.Port
	cfg.Name = auth.Database
	cfg.User = auth.Username
	cfg.Password = auth.Password
	if auth.SSLMode != "" && driver != "mysql" {
		cfg.Options = map[string]string{"sslmode": auth.SSLMode}
	}
	return cfg
}
