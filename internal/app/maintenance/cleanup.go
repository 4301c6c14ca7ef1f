package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/regforms/internal/session"
	"github.com/charlesng35/regforms/pkg/logger"
	"github.com/charlesng35/regforms/pkg/metrics"
)

const (
	defaultSessionSpec = "@hourly"
	defaultJobTimeout  = time.Minute
)

// Task is a named purge job.
type Task struct {
	Name   string
	Purger session.Purger
}

// Cleaner coordinates background removal of expired session records.
type Cleaner struct {
	tasks    []Task
	cron     *cron.Cron
	log      *zap.Logger
	schedule string
	timeout  time.Duration
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithSchedule overrides the cron specification for session cleanup.
func WithSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.schedule = spec
		}
	}
}

// WithTimeout bounds a single scheduled run.
func WithTimeout(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d > 0 {
			cleaner.timeout = d
		}
	}
}

// WithLogger overrides the maintenance logger.
func WithLogger(log *zap.Logger) Option {
	return func(cleaner *Cleaner) {
		if log != nil {
			cleaner.log = log
		}
	}
}

// NewCleaner constructs a Cleaner. Tasks with a nil purger are skipped, so stores that
// expire records on their own simply do not register.
func NewCleaner(tasks []Task, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		schedule: defaultSessionSpec,
		timeout:  defaultJobTimeout,
		log:      logger.WithModule("maintenance"),
	}
	for _, task := range tasks {
		if task.Purger != nil {
			cleaner.tasks = append(cleaner.tasks, task)
		}
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

// Enabled reports whether any purge task is registered.
func (c *Cleaner) Enabled() bool {
	return len(c.tasks) > 0
}

// Start registers the purge job with the cron scheduler and launches it if at least one task is enabled.
func (c *Cleaner) Start() error {
	if !c.Enabled() {
		return nil
	}

	if _, err := c.cron.AddFunc(c.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		if err := c.RunOnce(ctx); err != nil {
			c.log.Warn("session cleanup failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("maintenance: schedule %q: %w", c.schedule, err)
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler. The returned context is done once running jobs complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every purge task sequentially. Used by the scheduler, in tests and
// during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, task := range c.tasks {
		purged, err := task.Purger.PurgeExpired(ctx)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("purge %s: %w", task.Name, err))
			continue
		}
		metrics.SessionsPurged.Add(float64(purged))
		if purged > 0 {
			c.log.Info("purged expired sessions", zap.String("task", task.Name), zap.Int64("count", purged))
		}
	}
	return errs
}
