package session

import (
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/regforms/pkg/crypto"
)

// Config tunes the admission, validation and termination components.
type Config struct {
	MaxSessions  int
	TokenLength  int
	StoreTimeout time.Duration
	Clock        func() time.Time
	Notifier     Notifier
	Logger       *zap.Logger
}

func (c Config) normalised() Config {
	if c.MaxSessions <= 0 {
		c.MaxSessions = DefaultMaxSessions
	}
	if c.TokenLength < crypto.MinTokenLength || c.TokenLength > crypto.MaxTokenLength {
		c.TokenLength = DefaultTokenLength
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = DefaultStoreTimeout
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Notifier == nil {
		c.Notifier = nopNotifier{}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}
