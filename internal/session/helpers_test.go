package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/regforms/internal/database/testutil"
)

type testClock struct {
	mu      sync.Mutex
	current time.Time
}

func newTestClock() *testClock {
	return &testClock{current: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	c.mu.Unlock()
}

type storeFactory struct {
	name string
	open func(t *testing.T, clock *testClock) Store
}

var storeFactories = []storeFactory{
	{
		name: "memory",
		open: func(t *testing.T, clock *testClock) Store {
			return NewMemoryStore(StoreOptions{TTL: DefaultTTL, Clock: clock.Now})
		},
	},
	{
		name: "gorm",
		open: func(t *testing.T, clock *testClock) Store {
			db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
			store, err := NewGormStore(db, StoreOptions{TTL: DefaultTTL, Clock: clock.Now})
			require.NoError(t, err)
			return store
		},
	},
	{
		name: "redis",
		open: func(t *testing.T, clock *testClock) Store {
			store, _ := newRedisStore(t, clock)
			return store
		},
	},
}

func forEachStore(t *testing.T, fn func(t *testing.T, store Store, clock *testClock)) {
	for _, factory := range storeFactories {
		t.Run(factory.name, func(t *testing.T) {
			clock := newTestClock()
			fn(t, factory.open(t, clock), clock)
		})
	}
}

// skipWithoutRollback skips cases that need a failed critical section to be undone.
func skipWithoutRollback(t *testing.T, store Store) {
	t.Helper()
	if _, ok := store.(*RedisStore); ok {
		t.Skip("redis store does not roll back a failed critical section")
	}
}

func record(userID, sessionID string, createdAt time.Time) Record {
	return Record{UserID: userID, SessionID: sessionID, DeviceInfo: "test-agent", CreatedAt: createdAt}
}

func sessionIDs(records []Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.SessionID)
	}
	return out
}

var errInjected = errors.New("injected store failure")

// faultyStore fails the selected operation, including inside critical sections.
type faultyStore struct {
	Store
	failInsert bool
	failDelete bool
	failFind   bool
}

func (f *faultyStore) Insert(ctx context.Context, r Record) error {
	if f.failInsert {
		return errInjected
	}
	return f.Store.Insert(ctx, r)
}

func (f *faultyStore) FindByUser(ctx context.Context, userID string) ([]Record, error) {
	if f.failFind {
		return nil, errInjected
	}
	return f.Store.FindByUser(ctx, userID)
}

func (f *faultyStore) FindByID(ctx context.Context, sessionID string) (Record, error) {
	if f.failFind {
		return Record{}, errInjected
	}
	return f.Store.FindByID(ctx, sessionID)
}

func (f *faultyStore) DeleteByUserAndSession(ctx context.Context, userID, sessionID string) error {
	if f.failDelete {
		return errInjected
	}
	return f.Store.DeleteByUserAndSession(ctx, userID, sessionID)
}

func (f *faultyStore) WithUserLock(ctx context.Context, userID string, fn func(Store) error) error {
	return f.Store.WithUserLock(ctx, userID, func(tx Store) error {
		return fn(&faultyStore{Store: tx, failInsert: f.failInsert, failDelete: f.failDelete, failFind: f.failFind})
	})
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []EndedEvent
	err    error
}

func (n *recordingNotifier) SessionEnded(_ context.Context, event EndedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) Events() []EndedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]EndedEvent(nil), n.events...)
}
