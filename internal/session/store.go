package session

import (
	"context"
	"time"
)

// Store persists session records keyed by session id with a secondary lookup by user.
//
// Reads never return records older than the store's TTL, even when the backend has
// not physically removed them yet.
type Store interface {
	// Insert adds a record, failing with ErrDuplicateSessionID if the id exists.
	Insert(ctx context.Context, record Record) error
	// FindByUser returns the user's live records ordered oldest first.
	FindByUser(ctx context.Context, userID string) ([]Record, error)
	// FindByID returns the record or ErrNotFound.
	FindByID(ctx context.Context, sessionID string) (Record, error)
	// DeleteByID removes the record if present.
	DeleteByID(ctx context.Context, sessionID string) error
	// DeleteByUserAndSession removes the record only when both ids match.
	DeleteByUserAndSession(ctx context.Context, userID, sessionID string) error
	// WithUserLock runs fn inside a critical section scoped to userID. The Store passed
	// to fn must be used for all work inside the section. A returned error aborts the
	// section; transactional backends roll back.
	WithUserLock(ctx context.Context, userID string, fn func(Store) error) error
}

// Purger is implemented by stores that need explicit removal of expired records.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// StoreOptions carries the settings shared by all store backends.
type StoreOptions struct {
	TTL   time.Duration
	Clock func() time.Time
}

func (o StoreOptions) normalised() StoreOptions {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

func (o StoreOptions) cutoff() time.Time {
	return o.Clock().UTC().Add(-o.TTL)
}
