package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
)

const firebaseIssuerPrefix = "https://securetoken.google.com/"

// OIDCConfig configures verification of ID tokens from an OpenID Connect issuer.
type OIDCConfig struct {
	Issuer     string
	ClientID   string
	HTTPClient *http.Client
	Timeout    time.Duration
	Clock      func() time.Time
}

// FirebaseConfig configures verification of Firebase Authentication ID tokens.
type FirebaseConfig struct {
	ProjectID  string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// OIDCVerifier verifies ID tokens against the issuer's published keys.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier performs discovery against cfg.Issuer and returns a verifier bound
// to cfg.ClientID.
func NewOIDCVerifier(ctx context.Context, cfg OIDCConfig) (*OIDCVerifier, error) {
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, errors.New("identity: oidc issuer is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("identity: oidc client id is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cfg.HTTPClient != nil {
		ctx = oidc.ClientContext(ctx, cfg.HTTPClient)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("identity: oidc discovery failed: %w", err)
	}

	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID, Now: cfg.Clock}),
	}, nil
}

// NewFirebaseVerifier verifies Firebase ID tokens, whose issuer and audience are
// derived from the project id.
func NewFirebaseVerifier(ctx context.Context, cfg FirebaseConfig) (*OIDCVerifier, error) {
	project := strings.TrimSpace(cfg.ProjectID)
	if project == "" {
		return nil, errors.New("identity: firebase project id is required")
	}
	return NewOIDCVerifier(ctx, OIDCConfig{
		Issuer:     FirebaseIssuer(project),
		ClientID:   project,
		HTTPClient: cfg.HTTPClient,
		Timeout:    cfg.Timeout,
	})
}

// FirebaseIssuer returns the token issuer for a Firebase project.
func FirebaseIssuer(projectID string) string {
	return firebaseIssuerPrefix + projectID
}

func (v *OIDCVerifier) Verify(ctx context.Context, credential string) (Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Identity{}, invalid("credential is empty", nil)
	}

	token, err := v.verifier.Verify(ctx, credential)
	if err != nil {
		return Identity{}, invalid("verify id token", err)
	}
	if err := checkSubject(token.Subject); err != nil {
		return Identity{}, err
	}

	var claims struct {
		Email string `json:"email"`
	}
	if err := token.Claims(&claims); err != nil {
		return Identity{}, invalid("decode claims", err)
	}

	return Identity{
		UserID: token.Subject,
		Email:  claims.Email,
		Issuer: token.Issuer,
	}, nil
}
