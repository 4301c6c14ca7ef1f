package app

import (
	"strings"

	"github.com/charlesng35/regforms/pkg/logger"
)

// ConfigureLogging initialises the global logger with the provided level, defaulting to info.
func ConfigureLogging(level, format string) error {
	level = strings.TrimSpace(level)
	if level == "" {
		level = "info"
	}
	format = strings.TrimSpace(format)
	if format == "" {
		return logger.Init(level)
	}
	return logger.Init(level, format)
}
