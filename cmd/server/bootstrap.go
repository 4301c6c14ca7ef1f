package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/regforms/internal/api"
	"github.com/charlesng35/regforms/internal/app"
	"github.com/charlesng35/regforms/internal/app/maintenance"
	"github.com/charlesng35/regforms/internal/database"
	"github.com/charlesng35/regforms/internal/handlers"
	"github.com/charlesng35/regforms/internal/identity"
	"github.com/charlesng35/regforms/internal/middleware"
	"github.com/charlesng35/regforms/internal/notify"
	"github.com/charlesng35/regforms/internal/session"
	"github.com/charlesng35/regforms/pkg/logger"
)

const dependencyTimeout = 10 * time.Second

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB       *gorm.DB
	Redis    *redis.Client
	NATS     *nats.Conn
	Relay    *nats.Subscription
	Hub      *notify.Hub
	Store    session.Store
	Sessions *session.Service
	Cleaner  *maintenance.Cleaner
	Router   *gin.Engine
}

// bootstrapRuntime initialises the session store, notification fan-out, services, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	initCtx, cancel := context.WithTimeout(ctx, dependencyTimeout)
	defer cancel()

	if cfg.Cache.Redis.Enabled {
		client := redis.NewClient(cfg.Cache.RedisOptions())
		if pingErr := client.Ping(initCtx).Err(); pingErr != nil {
			_ = client.Close()
			if cfg.Auth.Session.Backend == "redis" {
				return nil, fmt.Errorf("connect redis: %w", pingErr)
			}
			log.Warn("redis unavailable; falling back to in-process rate limiting", zap.Error(pingErr))
		} else {
			stack.Redis = client
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	if stack.Store, err = stack.openSessionStore(cfg, log); err != nil {
		return nil, err
	}

	var notifiers []session.Notifier
	if cfg.Notifications.WebSocket.Enabled {
		stack.Hub = notify.NewHub()
	}
	if cfg.Notifications.NATS.Enabled {
		if stack.NATS, err = nats.Connect(cfg.Notifications.NATS.URL, nats.Name("regforms"), nats.Timeout(dependencyTimeout)); err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		publisher, err := notify.NewNATSPublisher(stack.NATS, cfg.Notifications.NATS.Subject)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, publisher)
		if stack.Hub != nil {
			if stack.Relay, err = notify.Relay(stack.NATS, cfg.Notifications.NATS.Subject, stack.Hub); err != nil {
				return nil, fmt.Errorf("subscribe session events: %w", err)
			}
		}
		log.Info("nats connected", zap.String("url", stack.NATS.ConnectedUrlRedacted()))
	} else if stack.Hub != nil {
		notifiers = append(notifiers, stack.Hub)
	}

	verifier, err := identity.New(initCtx, cfg.Auth.IdentityConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise identity verifier: %w", err)
	}

	sessionCfg := cfg.Auth.SessionConfig()
	sessionCfg.Notifier = notify.Multi(notifiers...)
	sessionCfg.Logger = logger.WithModule("session")

	stack.Sessions, err = session.NewService(verifier, stack.Store, sessionCfg)
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}

	purger, _ := stack.Store.(session.Purger)
	stack.Cleaner = maintenance.NewCleaner(
		[]maintenance.Task{{Name: cfg.Auth.Session.Backend, Purger: purger}},
		maintenance.WithSchedule(cfg.Auth.Session.CleanupSchedule),
	)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	deps := api.Dependencies{
		Sessions:     stack.Sessions,
		RateStore:    middleware.NewMemoryRateStore(),
		HealthChecks: stack.healthChecks(),
	}
	if stack.Redis != nil {
		deps.RateStore = middleware.NewRedisRateStore(stack.Redis, cfg.Cache.Redis.Prefix+"ratelimit:")
	}
	if stack.Hub != nil {
		deps.Events = stack.Hub
	}

	stack.Router, err = api.NewRouter(cfg, deps)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

func (s *runtimeStack) openSessionStore(cfg *app.Config, log *zap.Logger) (session.Store, error) {
	opts := cfg.Auth.StoreOptions()

	switch cfg.Auth.Session.Backend {
	case "redis":
		if s.Redis == nil {
			return nil, errors.New("session backend redis requires a redis connection")
		}
		return session.NewRedisStore(s.Redis, session.RedisStoreOptions{
			StoreOptions: opts,
			Prefix:       cfg.Cache.Redis.Prefix,
		})
	case "memory":
		log.Warn("using in-memory session store; sessions are lost on restart and not shared between nodes")
		return session.NewMemoryStore(opts), nil
	default:
		db, err := initialiseDatabase(cfg)
		if err != nil {
			return nil, err
		}
		s.DB = db
		return session.NewGormStore(db, opts)
	}
}

func (s *runtimeStack) healthChecks() map[string]handlers.HealthCheck {
	checks := map[string]handlers.HealthCheck{}
	if s.DB != nil {
		db := s.DB
		checks["database"] = func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	if s.Redis != nil {
		client := s.Redis
		checks["redis"] = func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}
	}
	if s.NATS != nil {
		conn := s.NATS
		checks["nats"] = func(context.Context) error {
			if !conn.IsConnected() {
				return fmt.Errorf("nats status %v", conn.Status())
			}
			return nil
		}
	}
	return checks
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		<-s.Cleaner.Stop().Done()
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.Relay != nil {
		if err := s.Relay.Unsubscribe(); err != nil {
			log.Warn("nats unsubscribe", zap.Error(err))
		}
	}
	if s.NATS != nil {
		if err := s.NATS.Drain(); err != nil {
			log.Warn("nats drain", zap.Error(err))
			s.NATS.Close()
		}
	}

	if s.Hub != nil {
		s.Hub.Close()
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseOptions()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		closeDatabase(db, logger.WithModule("database"))
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if err := database.Close(db); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
