package main

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/kolo-backend/internal/app"
	"github.com/angelmondragon/kolo-backend/pkg/metrics"
	"github.com/angelmondragon/kolo-backend/pkg/outbox"
	"github.com/angelmondragon/kolo-backend/pkg/outbox/registry"
	"github.com/angelmondragon/kolo-backend/pkg/pubsub"
)

func main() {
	boot := context.Background()
	rt, err := app.Boot(boot, app.RuntimeOptions{ServiceName: "outbox-publisher"})
	if err != nil {
		rt.Exit(boot, "failed to boot outbox publisher", err)
	}
	cfg, logg := rt.Config, rt.Logger

	pubsubClient, err := pubsub.NewClient(boot, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		rt.Exit(boot, "failed to bootstrap pubsub", err)
	}
	rt.OnClose("pubsub", pubsubClient.Close)

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		rt.Exit(boot, "failed to build event registry", err)
	}
	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            rt.DB,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(rt.DB.DB()),
		Registry:      eventRegistry,
		DLQRepository: outbox.NewDLQRepository(rt.DB.DB()),
		Metrics:       metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		rt.Exit(boot, "failed to create outbox publisher", err)
	}

	ctx, stop := rt.SignalContext(map[string]any{"topic": cfg.PubSub.DomainTopic})
	defer stop()
	logg.Info(ctx, "starting outbox publisher")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		rt.Exit(ctx, "outbox publisher stopped unexpectedly", err)
	}
	// Close stops the cached publishers, which flushes anything still buffered.
	if err := rt.Close(); err != nil {
		logg.Error(ctx, "error releasing resources", err)
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
}
