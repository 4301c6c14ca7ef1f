package maintenance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	testutil "github.com/charlesng35/regforms/internal/database/testutil"
	"github.com/charlesng35/regforms/internal/session"
)

type fixedClock struct {
	mu      sync.Mutex
	current time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

type failingPurger struct{ err error }

func (p failingPurger) PurgeExpired(context.Context) (int64, error) { return 0, p.err }

func TestCleanerRunOncePurgesExpiredSessions(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := &fixedClock{current: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)}
	opts := session.StoreOptions{TTL: time.Hour, Clock: clock.Now}

	gormStore, err := session.NewGormStore(db, opts)
	require.NoError(t, err)
	memoryStore := session.NewMemoryStore(opts)

	ctx := context.Background()
	for _, store := range []session.Store{gormStore, memoryStore} {
		require.NoError(t, store.Insert(ctx, session.Record{UserID: "u1", SessionID: "old", CreatedAt: clock.Now().Add(-2 * time.Hour)}))
		require.NoError(t, store.Insert(ctx, session.Record{UserID: "u1", SessionID: "fresh", CreatedAt: clock.Now()}))
	}

	cleaner := NewCleaner([]Task{
		{Name: "database", Purger: gormStore},
		{Name: "memory", Purger: memoryStore},
	})
	require.True(t, cleaner.Enabled())
	require.NoError(t, cleaner.RunOnce(ctx))

	var count int64
	require.NoError(t, db.Table("sessions").Count(&count).Error)
	require.Equal(t, int64(1), count)

	_, err = memoryStore.FindByID(ctx, "old")
	require.ErrorIs(t, err, session.ErrNotFound)
	fresh, err := memoryStore.FindByID(ctx, "fresh")
	require.NoError(t, err)
	require.Equal(t, "u1", fresh.UserID)

	purged, err := memoryStore.PurgeExpired(ctx)
	require.NoError(t, err)
	require.Zero(t, purged)
}

func TestCleanerRunOnceCombinesErrors(t *testing.T) {
	errA := errors.New("db down")
	errB := errors.New("disk full")

	cleaner := NewCleaner([]Task{
		{Name: "a", Purger: failingPurger{err: errA}},
		{Name: "nil", Purger: nil},
		{Name: "b", Purger: failingPurger{err: errB}},
	})

	err := cleaner.RunOnce(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, errA)
	require.ErrorIs(t, err, errB)
	require.Len(t, multierr.Errors(err), 2)
	require.ErrorContains(t, err, "purge a")
}

func TestCleanerWithoutTasksDoesNotSchedule(t *testing.T) {
	c := cron.New()
	cleaner := NewCleaner(nil, WithCron(c))
	require.False(t, cleaner.Enabled())
	require.NoError(t, cleaner.Start())
	require.Empty(t, c.Entries())
	<-cleaner.Stop().Done()
}

func TestCleanerStartRegistersSchedule(t *testing.T) {
	c := cron.New()
	cleaner := NewCleaner([]Task{{Name: "memory", Purger: session.NewMemoryStore(session.StoreOptions{})}},
		WithCron(c), WithSchedule("@every 1h"))

	require.NoError(t, cleaner.Start())
	require.Len(t, c.Entries(), 1)
	<-cleaner.Stop().Done()
}

func TestCleanerStartRejectsInvalidSchedule(t *testing.T) {
	cleaner := NewCleaner([]Task{{Name: "memory", Purger: session.NewMemoryStore(session.StoreOptions{})}},
		WithSchedule("not a schedule"))
	require.ErrorContains(t, cleaner.Start(), "not a schedule")
}
