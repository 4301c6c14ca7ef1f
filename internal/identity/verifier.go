// Package identity verifies credentials issued by an external identity provider and
// resolves them to a stable user id. It never issues credentials of its own.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCredential is returned for every credential that cannot be verified.
var ErrInvalidCredential = errors.New("identity: invalid credential")

// MaxSubjectLength is the longest subject claim accepted as a user id (OIDC Core 5.1).
const MaxSubjectLength = 255

// Identity is the verified principal behind a credential.
type Identity struct {
	UserID string
	Email  string
	Issuer string
}

// Verifier checks a presented credential.
type Verifier interface {
	Verify(ctx context.Context, credential string) (Identity, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, credential string) (Identity, error)

func (f VerifierFunc) Verify(ctx context.Context, credential string) (Identity, error) {
	return f(ctx, credential)
}

// Provider names accepted by New.
const (
	ProviderJWT      = "jwt"
	ProviderOIDC     = "oidc"
	ProviderFirebase = "firebase"
)

// Config selects and configures the verifier implementation.
type Config struct {
	Provider string
	JWT      JWTConfig
	OIDC     OIDCConfig
	Firebase FirebaseConfig
}

// New builds the verifier named by cfg.Provider. OIDC based providers perform
// discovery against the issuer, so ctx should carry a deadline.
func New(ctx context.Context, cfg Config) (Verifier, error) {
	var (
		verifier Verifier
		err      error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderJWT:
		verifier, err = NewJWTVerifier(cfg.JWT)
	case ProviderOIDC:
		verifier, err = NewOIDCVerifier(ctx, cfg.OIDC)
	case ProviderFirebase:
		verifier, err = NewFirebaseVerifier(ctx, cfg.Firebase)
	default:
		return nil, fmt.Errorf("identity: unsupported provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return verifier, nil
}

func checkSubject(subject string) error {
	switch {
	case subject == "":
		return invalid("missing subject claim", nil)
	case len(subject) > MaxSubjectLength:
		return invalid("subject claim too long", nil)
	}
	return nil
}

func invalid(reason string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrInvalidCredential, reason)
	}
	return fmt.Errorf("%w: %s: %w", ErrInvalidCredential, reason, err)
}
