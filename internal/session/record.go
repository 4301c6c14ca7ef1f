package session

import "time"

const (
	// DefaultMaxSessions is the number of concurrently valid sessions per user.
	DefaultMaxSessions = 2
	// DefaultTTL is the absolute lifetime of a session measured from creation.
	DefaultTTL = 14 * 24 * time.Hour
	// DefaultTokenLength is the number of random bytes in a session id.
	DefaultTokenLength = 32
	// DefaultStoreTimeout bounds every individual store interaction.
	DefaultStoreTimeout = 5 * time.Second
)

// Record is one authenticated device session.
type Record struct {
	UserID     string    `json:"user_id"`
	SessionID  string    `json:"session_id"`
	DeviceInfo string    `json:"device_info"`
	CreatedAt  time.Time `json:"created_at"`
}

// ExpiresAt returns the absolute expiry of the record for the supplied TTL.
func (r Record) ExpiresAt(ttl time.Duration) time.Time {
	return r.CreatedAt.Add(ttl)
}

// Expired reports whether the record is past its TTL at now.
func (r Record) Expired(now time.Time, ttl time.Duration) bool {
	return !now.Before(r.ExpiresAt(ttl))
}

// Admission is the outcome of a successful admission decision.
type Admission struct {
	Session Record
	Evicted []string
}

// EndReason describes why a session ended.
type EndReason string

const (
	// EndReasonEvicted marks a session removed to make room for a newer login.
	EndReasonEvicted EndReason = "evicted"
)

// EndedEvent is delivered to a Notifier when the system ends a session.
type EndedEvent struct {
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Reason    EndReason `json:"reason"`
	At        time.Time `json:"at"`
}
