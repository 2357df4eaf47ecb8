package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/kolo-backend/pkg/config"
	"github.com/angelmondragon/kolo-backend/pkg/db"
	"github.com/angelmondragon/kolo-backend/pkg/instance"
	"github.com/angelmondragon/kolo-backend/pkg/logger"
	"github.com/angelmondragon/kolo-backend/pkg/migrate"
	"github.com/angelmondragon/kolo-backend/pkg/redis"
)

// Runtime is what every binary boots before its own wiring.
type Runtime struct {
	Name   string
	Config *config.Config
	Logger *logger.Logger
	DB     *db.Client
	Redis  *redis.Client

	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// RuntimeOptions selects the shared dependencies a binary needs.
type RuntimeOptions struct {
	ServiceName string
	WithRedis   bool
}

// LoadConfig reads .env and the environment and returns a logger configured
// from it. Binaries that never touch the database stop here.
func LoadConfig(serviceName string) (*config.Config, *logger.Logger, error) {
	logg := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, logg, fmt.Errorf("loading config: %w", err)
	}
	cfg.Service.Kind = serviceName

	return cfg, logger.New(logger.Options{
		ServiceName: serviceName,
		Environment: cfg.App.Env,
		Format:      cfg.App.LogFormat,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		File: logger.FileOptions{
			Path:       cfg.App.LogFile,
			MaxSizeMB:  cfg.App.LogFileMaxSizeMB,
			MaxBackups: cfg.App.LogFileMaxBackups,
			MaxAgeDays: cfg.App.LogFileMaxAgeDays,
			Compress:   true,
		},
	}), nil
}

// Boot loads config, opens the database, applies dev migrations and, when
// asked, connects Redis. On error the partially opened runtime is closed.
func Boot(ctx context.Context, opts RuntimeOptions) (rt *Runtime, err error) {
	cfg, logg, err := LoadConfig(opts.ServiceName)
	if err != nil {
		return &Runtime{Name: opts.ServiceName, Logger: logg}, err
	}
	rt = &Runtime{Name: opts.ServiceName, Config: cfg, Logger: logg}
	rt.OnClose("log-file", logg.Close)
	defer func() {
		if err != nil {
			err = multierr.Append(err, rt.Close())
		}
	}()

	rt.DB, err = db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		return rt, fmt.Errorf("bootstrapping database: %w", err)
	}
	rt.OnClose("database", rt.DB.Close)

	if err = migrate.MaybeRunDev(ctx, cfg, logg, rt.DB); err != nil {
		return rt, fmt.Errorf("running dev migrations: %w", err)
	}

	if opts.WithRedis {
		rt.Redis, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return rt, fmt.Errorf("bootstrapping redis: %w", err)
		}
		rt.OnClose("redis", rt.Redis.Close)
	}
	return rt, nil
}

// OnClose registers fn to run on Close. Closers run in reverse order.
func (r *Runtime) OnClose(name string, fn func() error) {
	r.closers = append(r.closers, closer{name: name, fn: fn})
}

// Close releases everything registered with OnClose and reports every failure.
func (r *Runtime) Close() error {
	var errs error
	for i := len(r.closers) - 1; i >= 0; i-- {
		c := r.closers[i]
		if err := c.fn(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("closing %s: %w", c.name, err))
		}
	}
	r.closers = nil
	return errs
}

// SignalContext is canceled on SIGINT or SIGTERM and carries the instance
// fields every log line of a long-running binary should have.
func (r *Runtime) SignalContext(fields map[string]any) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	base := map[string]any{
		"instance":    instance.ID(r.Name),
		"serviceKind": r.Name,
	}
	for k, v := range fields {
		base[k] = v
	}
	return r.Logger.WithFields(ctx, base), stop
}

// Exit logs err, releases resources and terminates the process.
func (r *Runtime) Exit(ctx context.Context, msg string, err error) {
	r.Logger.Error(ctx, msg, err)
	if closeErr := r.Close(); closeErr != nil {
		r.Logger.Error(ctx, "error releasing resources", closeErr)
	}
	os.Exit(1)
}
