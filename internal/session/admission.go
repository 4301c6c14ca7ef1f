package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/regforms/pkg/crypto"
	"github.com/charlesng35/regforms/pkg/metrics"
)

// Controller admits new sessions while keeping each user at or below MaxSessions.
type Controller struct {
	store Store
	cfg   Config
	log   *zap.Logger
}

// NewController constructs an admission controller over store.
func NewController(store Store, cfg Config) (*Controller, error) {
	if store == nil {
		return nil, errors.New("session: store is required")
	}
	cfg = cfg.normalised()
	return &Controller{
		store: store,
		cfg:   cfg,
		log:   cfg.Logger,
	}, nil
}

// Admit creates a session for userID, evicting the user's oldest sessions first when the
// limit is reached. Eviction and insertion happen inside one per-user critical section;
// on failure no session is granted. Evicted sessions are announced to the Notifier only
// after the section has committed.
func (c *Controller) Admit(ctx context.Context, userID, deviceInfo string) (Admission, error) {
	if strings.TrimSpace(userID) == "" {
		return Admission{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	sessionID, err := crypto.GenerateToken(c.cfg.TokenLength)
	if err != nil {
		return Admission{}, fmt.Errorf("session: generate id: %w", err)
	}

	opCtx, cancel := context.WithTimeout(ctx, c.cfg.StoreTimeout)
	defer cancel()

	var admission Admission
	err = c.store.WithUserLock(opCtx, userID, func(tx Store) error {
		admission = Admission{}

		existing, err := tx.FindByUser(opCtx, userID)
		if err != nil {
			return fmt.Errorf("find sessions: %w", err)
		}

		for len(existing) >= c.cfg.MaxSessions {
			oldest := existing[0]
			if err := tx.DeleteByUserAndSession(opCtx, userID, oldest.SessionID); err != nil {
				return fmt.Errorf("evict session: %w", err)
			}
			admission.Evicted = append(admission.Evicted, oldest.SessionID)
			existing = existing[1:]
		}

		record := Record{
			UserID:     userID,
			SessionID:  sessionID,
			DeviceInfo: deviceInfo,
			CreatedAt:  c.creationTime(existing),
		}

		err = tx.Insert(opCtx, record)
		if errors.Is(err, ErrDuplicateSessionID) {
			c.log.Warn("session id collision, regenerating", zap.String("user_id", userID))
			if record.SessionID, err = crypto.GenerateToken(c.cfg.TokenLength); err != nil {
				return fmt.Errorf("generate id: %w", err)
			}
			err = tx.Insert(opCtx, record)
		}
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}

		admission.Session = record
		return nil
	})
	if err != nil {
		c.log.Warn("session admission failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return Admission{}, storeFailure("admit", err)
	}

	if n := len(admission.Evicted); n > 0 {
		metrics.SessionEvictions.Add(float64(n))
		c.notifyEvicted(ctx, userID, admission.Evicted)
	}

	c.log.Info("session admitted",
		zap.String("user_id", userID),
		zap.Int("evicted", len(admission.Evicted)),
	)
	return admission, nil
}

// creationTime returns the current time, nudged past the newest surviving session so
// that creation order is strict even within one clock tick.
func (c *Controller) creationTime(existing []Record) time.Time {
	now := c.cfg.Clock().UTC().Truncate(time.Millisecond)
	if n := len(existing); n > 0 {
		if newest := existing[n-1].CreatedAt; !now.After(newest) {
			now = newest.Add(time.Millisecond)
		}
	}
	return now
}

func (c *Controller) notifyEvicted(ctx context.Context, userID string, evicted []string) {
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.StoreTimeout)
	defer cancel()

	at := c.cfg.Clock().UTC()
	for _, sessionID := range evicted {
		event := EndedEvent{
			UserID:    userID,
			SessionID: sessionID,
			Reason:    EndReasonEvicted,
			At:        at,
		}
		if err := c.cfg.Notifier.SessionEnded(notifyCtx, event); err != nil {
			metrics.SessionNotifyFailures.Inc()
			c.log.Warn("failed to deliver session ended notification",
				zap.String("user_id", userID),
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		}
	}
}
