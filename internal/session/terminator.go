package session

import (
	"context"
	"strings"
	"time"
)

// Terminator removes sessions on user request.
type Terminator struct {
	store   Store
	timeout time.Duration
}

// NewTerminator constructs a Terminator over store.
func NewTerminator(store Store, cfg Config) *Terminator {
	cfg = cfg.normalised()
	return &Terminator{store: store, timeout: cfg.StoreTimeout}
}

// Terminate deletes sessionID only if it belongs to userID. Terminating a session that
// no longer exists is not an error.
func (t *Terminator) Terminate(ctx context.Context, userID, sessionID string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(sessionID) == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	if err := t.store.DeleteByUserAndSession(ctx, userID, sessionID); err != nil {
		return storeFailure("terminate", err)
	}
	return nil
}
