package main

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/kolo-backend/api/routes"
	"github.com/angelmondragon/kolo-backend/internal/app"
	paymentwebhook "github.com/angelmondragon/kolo-backend/internal/webhooks/payments"
	"github.com/angelmondragon/kolo-backend/pkg/env"
	"github.com/angelmondragon/kolo-backend/pkg/metrics"
	"github.com/angelmondragon/kolo-backend/pkg/security"
)

func main() {
	boot := context.Background()
	rt, err := app.Boot(boot, app.RuntimeOptions{ServiceName: "api", WithRedis: true})
	if err != nil {
		rt.Exit(boot, "failed to boot api", err)
	}
	cfg, logg := rt.Config, rt.Logger

	svcs, err := app.NewServices(cfg, logg, rt.DB)
	if err != nil {
		rt.Exit(boot, "failed to wire services", err)
	}

	webhookService, err := newWebhookService(rt, svcs)
	if err != nil {
		rt.Exit(boot, "failed to create webhook service", err)
	}
	if !cfg.Webhooks.SignatureVerificationEnabled() {
		logg.Warn(boot, "webhook signature verification disabled, no provider secret configured")
	}
	verifier := security.NewWebhookVerifier(cfg.Webhooks.FlutterwaveSecretHash, cfg.Webhooks.MonnifySecretKey)

	addr := ":" + env.Get("PORT", cfg.App.Port)
	ctx, stop := rt.SignalContext(map[string]any{"addr": addr})
	defer stop()

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: cfg.App.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
		Handler: routes.NewRouter(cfg, logg, rt.DB, rt.Redis, verifier, routes.Services{
			Groups:        svcs.Groups,
			Contributors:  svcs.Contributors,
			Withdrawals:   svcs.Withdrawals,
			Refunds:       svcs.Refunds,
			Wallet:        svcs.Wallet,
			Recurring:     svcs.Recurring,
			Notifications: svcs.Notifications,
			Webhooks:      webhookService,
			DeadLetters:   svcs.Repos.DeadLetters,
		}),
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			rt.Exit(ctx, "api server stopped unexpectedly", err)
		}
	case <-ctx.Done():
		logg.Info(ctx, "api server draining connections")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown incomplete", err)
		}
	}

	if err := rt.Close(); err != nil {
		logg.Error(ctx, "error releasing resources", err)
	}
	logg.Info(ctx, "api server stopped")
}

func newWebhookService(rt *app.Runtime, svcs *app.Services) (*paymentwebhook.Service, error) {
	guard, err := paymentwebhook.NewDeliveryGuard(rt.Redis, rt.Config.Webhooks.IdempotencyTTL)
	if err != nil {
		return nil, err
	}
	return paymentwebhook.NewService(paymentwebhook.ServiceParams{
		Ledger:            svcs.Repos.Ledger,
		Wallets:           svcs.Repos.Wallets,
		Poster:            svcs.Poster,
		TransactionRunner: rt.DB,
		Guard:             guard,
		Metrics:           metrics.NewWebhookMetrics(prometheus.DefaultRegisterer),
		Logger:            rt.Logger,
	})
}
