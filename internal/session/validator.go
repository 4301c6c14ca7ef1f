package session

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Validator answers whether a (user, session) pair is currently valid. It never
// mutates the store.
type Validator struct {
	store   Store
	timeout time.Duration
}

// NewValidator constructs a Validator over store.
func NewValidator(store Store, cfg Config) *Validator {
	cfg = cfg.normalised()
	return &Validator{store: store, timeout: cfg.StoreTimeout}
}

// IsValid reports false for empty ids, unknown or expired sessions and sessions bound to
// another user. A store failure returns false together with an ErrSessionStore error.
func (v *Validator) IsValid(ctx context.Context, userID, sessionID string) (bool, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(sessionID) == "" {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	record, err := v.store.FindByID(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storeFailure("validate", err)
	}

	return record.UserID == userID, nil
}
