package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/charlesng35/regforms/internal/identity"
)

var (
	// ErrInvalidCredential indicates the identity provider rejected the credential.
	ErrInvalidCredential = identity.ErrInvalidCredential

	// ErrSessionStore wraps every failure talking to the session store, including
	// timeouts, cancellation and constraint violations. Operations failing with it are
	// safe to retry from the top.
	ErrSessionStore = errors.New("session: store failure")

	// ErrDuplicateSessionID is returned by Store.Insert when the id already exists.
	ErrDuplicateSessionID = errors.New("session: duplicate session id")

	// ErrNotFound is returned by Store.FindByID for missing or expired sessions. It never
	// escapes the validator or terminator.
	ErrNotFound = errors.New("session: not found")

	// ErrInvalidInput is returned for empty user ids passed to admission.
	ErrInvalidInput = errors.New("session: invalid input")
)

// storeFailure translates a raw store error into the ErrSessionStore taxonomy while
// keeping the cause reachable through errors.Is for logging.
func storeFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrSessionStore) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: timed out: %w", ErrSessionStore, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrSessionStore, op, err)
}
