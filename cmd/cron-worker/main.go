package main

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/kolo-backend/internal/app"
	"github.com/angelmondragon/kolo-backend/internal/cron"
	"github.com/angelmondragon/kolo-backend/pkg/config"
	"github.com/angelmondragon/kolo-backend/pkg/logger"
	"github.com/angelmondragon/kolo-backend/pkg/metrics"
)

func main() {
	boot := context.Background()
	rt, err := app.Boot(boot, app.RuntimeOptions{ServiceName: "cron-worker", WithRedis: true})
	if err != nil {
		rt.Exit(boot, "failed to boot cron worker", err)
	}
	cfg, logg := rt.Config, rt.Logger

	svcs, err := app.NewServices(cfg, logg, rt.DB)
	if err != nil {
		rt.Exit(boot, "failed to wire services", err)
	}
	service, registry, err := newCronService(rt, svcs)
	if err != nil {
		rt.Exit(boot, "failed to create cron service", err)
	}

	ctx, stop := rt.SignalContext(map[string]any{
		"interval": cfg.Cron.Interval.String(),
		"jobs":     registry.Names(),
	})
	defer stop()
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		rt.Exit(ctx, "cron worker stopped unexpectedly", err)
	}
	if err := rt.Close(); err != nil {
		logg.Error(ctx, "error releasing resources", err)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func newCronService(rt *app.Runtime, svcs *app.Services) (*cron.Service, *cron.Registry, error) {
	cfg := rt.Config
	lock, err := cron.NewRedisLock(rt.Redis, rt.Redis.LockKey(lockName(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		return nil, nil, err
	}
	jobs, err := buildJobs(cfg, rt.Logger, svcs)
	if err != nil {
		return nil, nil, err
	}
	registry, err := cron.NewRegistry(jobs...)
	if err != nil {
		return nil, nil, err
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     rt.Logger,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	return service, registry, err
}

// lockName scopes the lock per environment so staging and production
// workers sharing a Redis instance do not block each other.
func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}

func buildJobs(cfg *config.Config, logg *logger.Logger, svcs *app.Services) ([]cron.Job, error) {
	expiry, err := cron.NewRequestExpiryJob(cron.RequestExpiryJobParams{
		Logger:      logg,
		Withdrawals: svcs.Withdrawals,
		Refunds:     svcs.Refunds,
	})
	if err != nil {
		return nil, err
	}
	reconcile, err := cron.NewReconcileJob(cron.ReconcileJobParams{Logger: logg, Groups: svcs.Groups})
	if err != nil {
		return nil, err
	}
	recurringJob, err := cron.NewRecurringJob(cron.RecurringJobParams{Logger: logg, Recurring: svcs.Recurring})
	if err != nil {
		return nil, err
	}
	outboxRetention, err := cron.NewOutboxRetentionJob(logg, svcs.Repos.Outbox, cfg.Cron.OutboxRetention)
	if err != nil {
		return nil, err
	}
	notificationCleanup, err := cron.NewNotificationCleanupJob(logg, svcs.Repos.Notifications, cfg.Cron.NotificationRetention)
	if err != nil {
		return nil, err
	}
	// jobs run in order; stale votes close before balances are reconciled
	return []cron.Job{expiry, recurringJob, reconcile, outboxRetention, notificationCleanup}, nil
}
