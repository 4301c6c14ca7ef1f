package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/regforms/internal/identity"
	"github.com/charlesng35/regforms/pkg/metrics"
)

// LoginResult is returned by a successful login.
type LoginResult struct {
	UserID    string
	SessionID string
	CreatedAt time.Time
	Evicted   []string
}

// Service is the surface the HTTP layer talks to. It orchestrates credential
// verification with admission, validation and termination.
type Service struct {
	verifier   identity.Verifier
	store      Store
	admission  *Controller
	validator  *Validator
	terminator *Terminator
	timeout    time.Duration
	log        *zap.Logger
}

// NewService wires the session components over store.
func NewService(verifier identity.Verifier, store Store, cfg Config) (*Service, error) {
	if verifier == nil {
		return nil, errors.New("session: identity verifier is required")
	}
	if store == nil {
		return nil, errors.New("session: store is required")
	}

	cfg = cfg.normalised()
	admission, err := NewController(store, cfg)
	if err != nil {
		return nil, err
	}

	return &Service{
		verifier:   verifier,
		store:      store,
		admission:  admission,
		validator:  NewValidator(store, cfg),
		terminator: NewTerminator(store, cfg),
		timeout:    cfg.StoreTimeout,
		log:        cfg.Logger,
	}, nil
}

// Login verifies credential and admits a new session for its subject. Errors match
// ErrInvalidCredential or ErrSessionStore.
func (s *Service) Login(ctx context.Context, credential, deviceInfo string) (LoginResult, error) {
	principal, err := s.Identify(ctx, credential)
	if err != nil {
		metrics.SessionLogins.WithLabelValues("invalid_credential").Inc()
		s.log.Debug("login rejected", zap.Error(err))
		return LoginResult{}, err
	}

	admission, err := s.admission.Admit(ctx, principal.UserID, deviceInfo)
	if err != nil {
		metrics.SessionLogins.WithLabelValues("store_error").Inc()
		return LoginResult{}, err
	}

	metrics.SessionLogins.WithLabelValues("success").Inc()
	return LoginResult{
		UserID:    principal.UserID,
		SessionID: admission.Session.SessionID,
		CreatedAt: admission.Session.CreatedAt,
		Evicted:   admission.Evicted,
	}, nil
}

// CheckAccess gates protected resources. Store failures are logged and reported as
// invalid.
func (s *Service) CheckAccess(ctx context.Context, userID, sessionID string) bool {
	valid, err := s.validator.IsValid(ctx, userID, sessionID)
	switch {
	case err != nil:
		metrics.SessionChecks.WithLabelValues("error").Inc()
		s.log.Warn("session check failed closed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return false
	case valid:
		metrics.SessionChecks.WithLabelValues("valid").Inc()
	default:
		metrics.SessionChecks.WithLabelValues("invalid").Inc()
	}
	return valid
}

// Logout terminates the session. Logging out of an absent session succeeds.
func (s *Service) Logout(ctx context.Context, userID, sessionID string) error {
	if err := s.terminator.Terminate(ctx, userID, sessionID); err != nil {
		return err
	}
	metrics.SessionLogouts.Inc()
	s.log.Info("session terminated", zap.String("user_id", userID))
	return nil
}

// Authenticate verifies credential and checks that sessionID is one of its subject's
// valid sessions.
func (s *Service) Authenticate(ctx context.Context, credential, sessionID string) (identity.Identity, bool) {
	if strings.TrimSpace(credential) == "" || strings.TrimSpace(sessionID) == "" {
		return identity.Identity{}, false
	}

	principal, err := s.Identify(ctx, credential)
	if err != nil {
		s.log.Debug("credential rejected", zap.Error(err))
		return identity.Identity{}, false
	}
	if !s.CheckAccess(ctx, principal.UserID, sessionID) {
		return identity.Identity{}, false
	}
	return principal, true
}

// Identify verifies credential without consulting the session store.
func (s *Service) Identify(ctx context.Context, credential string) (identity.Identity, error) {
	principal, err := s.verifier.Verify(ctx, credential)
	if err != nil {
		if !errors.Is(err, ErrInvalidCredential) {
			err = fmt.Errorf("%w: %w", ErrInvalidCredential, err)
		}
		return identity.Identity{}, err
	}
	return principal, nil
}

// ListSessions returns the user's live sessions, oldest first.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	records, err := s.store.FindByUser(ctx, userID)
	if err != nil {
		return nil, storeFailure("list", err)
	}
	return records, nil
}
