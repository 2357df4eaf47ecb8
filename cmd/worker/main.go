package main

import (
	"context"
	"errors"

	"github.com/angelmondragon/kolo-backend/internal/app"
	"github.com/angelmondragon/kolo-backend/internal/notifications"
	"github.com/angelmondragon/kolo-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/kolo-backend/pkg/outbox/registry"
	"github.com/angelmondragon/kolo-backend/pkg/pubsub"
)

func main() {
	boot := context.Background()
	rt, err := app.Boot(boot, app.RuntimeOptions{ServiceName: "worker", WithRedis: true})
	if err != nil {
		rt.Exit(boot, "failed to boot worker", err)
	}
	cfg, logg := rt.Config, rt.Logger

	pubsubClient, err := pubsub.NewClient(boot, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		rt.Exit(boot, "failed to bootstrap pubsub", err)
	}
	rt.OnClose("pubsub", pubsubClient.Close)

	notificationConsumer, err := newNotificationConsumer(rt, pubsubClient)
	if err != nil {
		rt.Exit(boot, "failed to create notification consumer", err)
	}

	service, err := NewService(ServiceParams{
		Logger: logg,
		Dependencies: []Dependency{
			{Name: "database", Ping: rt.DB},
			{Name: "redis", Ping: rt.Redis},
			{Name: "pubsub", Ping: pubsubClient},
		},
		Consumers: []Consumer{
			{Name: "notifications", Run: notificationConsumer},
		},
	})
	if err != nil {
		rt.Exit(boot, "failed to create worker service", err)
	}

	ctx, stop := rt.SignalContext(map[string]any{"subscription": cfg.PubSub.DomainSubscription})
	defer stop()
	logg.Info(ctx, "starting worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		rt.Exit(ctx, "worker stopped unexpectedly", err)
	}
	if err := rt.Close(); err != nil {
		logg.Error(ctx, "error releasing resources", err)
	}
	logg.Info(ctx, "worker shutting down gracefully")
}

func newNotificationConsumer(rt *app.Runtime, client *pubsub.Client) (*notifications.Consumer, error) {
	eventRegistry, err := registry.NewEventRegistry(rt.Config.PubSub)
	if err != nil {
		return nil, err
	}
	manager, err := idempotency.NewManager(rt.Redis, rt.Config.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return nil, err
	}
	return notifications.NewConsumer(
		notifications.NewRepository(rt.DB.DB()),
		client.DomainSubscriber(),
		registry.NewDomainDecoders(eventRegistry),
		manager,
		rt.Logger,
	)
}
