package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/kolo-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/kolo-backend/api/controllers/webhooks"
	"github.com/angelmondragon/kolo-backend/api/middleware"
	"github.com/angelmondragon/kolo-backend/internal/contributors"
	"github.com/angelmondragon/kolo-backend/internal/groups"
	"github.com/angelmondragon/kolo-backend/internal/notifications"
	"github.com/angelmondragon/kolo-backend/internal/recurring"
	"github.com/angelmondragon/kolo-backend/internal/refunds"
	"github.com/angelmondragon/kolo-backend/internal/wallet"
	"github.com/angelmondragon/kolo-backend/internal/withdrawals"
	"github.com/angelmondragon/kolo-backend/pkg/config"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
	"github.com/angelmondragon/kolo-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/kolo-backend/pkg/redis"
	"github.com/angelmondragon/kolo-backend/pkg/security"
)

// redisStore is the slice of the redis client the HTTP layer needs.
type redisStore interface {
	pkgredis.IdempotencyStore
	pkgredis.Pinger
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Services groups the domain services exposed over HTTP.
type Services struct {
	Groups        groups.Service
	Contributors  contributors.Service
	Withdrawals   withdrawals.Service
	Refunds       refunds.Service
	Wallet        wallet.Service
	Recurring     recurring.Service
	Notifications notifications.Service
	Webhooks      webhookcontrollers.PaymentWebhookService
	DeadLetters   controllers.DeadLetters
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient redisStore,
	verifier *security.WebhookVerifier,
	svcs Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App),
	)

	webhookPolicy := middleware.NewRateLimitPolicy("webhooks", cfg.RateLimit.Window, cfg.RateLimit.WebhookIPLimit, 0)
	moneyPolicy := middleware.NewRateLimitPolicy("money", cfg.RateLimit.Window, cfg.RateLimit.MoneyIPLimit, cfg.RateLimit.MoneyUserLimit)
	moneyLimit := middleware.RateLimit(moneyPolicy, redisClient, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": dbP,
			"redis":    redisClient,
		}))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(middleware.RateLimit(webhookPolicy, redisClient, logg))
		// every method reaches the handler so non-POST gets the provider-facing 405 body
		r.HandleFunc("/contribution", webhookcontrollers.ContributionWebhook(svcs.Webhooks, verifier, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/groups", func(r chi.Router) {
			r.Post("/", controllers.CreateGroup(svcs.Groups, logg))
			r.Get("/", controllers.ListGroups(svcs.Groups, logg))
			r.Route("/{groupId}", func(r chi.Router) {
				r.Get("/", controllers.GetGroup(svcs.Groups, logg))
				r.Post("/sync", controllers.SyncGroup(svcs.Groups, logg))
				r.Get("/contributors", controllers.ListContributors(svcs.Contributors, logg))
				r.Post("/contributors/{contributorId}/voting-rights", controllers.GrantVotingRights(svcs.Contributors, logg))
				r.With(moneyLimit).Post("/withdrawals", controllers.CreateWithdrawal(svcs.Withdrawals, logg))
				r.Get("/withdrawals", controllers.ListWithdrawals(svcs.Withdrawals, logg))
				r.With(moneyLimit).Post("/refunds", controllers.CreateRefund(svcs.Refunds, logg))
				r.Get("/refunds", controllers.ListRefunds(svcs.Refunds, logg))
			})
		})

		r.Route("/withdrawals/{requestId}", func(r chi.Router) {
			r.Post("/votes", controllers.VoteOnWithdrawal(svcs.Withdrawals, logg))
			r.With(moneyLimit).Post("/execute", controllers.ExecuteWithdrawal(svcs.Withdrawals, logg))
		})
		r.Post("/refunds/{requestId}/votes", controllers.VoteOnRefund(svcs.Refunds, logg))

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", controllers.WalletBalance(svcs.Wallet, logg))
			r.Get("/transactions", controllers.WalletTransactions(svcs.Wallet, logg))
			r.With(moneyLimit).Post("/contributions", controllers.WalletContribute(svcs.Wallet, logg))
		})

		r.Route("/recurring-contributions", func(r chi.Router) {
			r.Post("/", controllers.CreateRecurringContribution(svcs.Recurring, logg))
			r.Get("/", controllers.ListRecurringContributions(svcs.Recurring, logg))
			r.Delete("/{id}", controllers.CancelRecurringContribution(svcs.Recurring, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(svcs.Notifications, logg))
			r.Get("/unread-count", controllers.UnreadNotificationCount(svcs.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(svcs.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(svcs.Notifications, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
			r.Post("/reconcile", controllers.AdminReconcileGroups(svcs.Groups, logg))
			r.Get("/outbox/dlq", controllers.AdminListDeadLetters(svcs.DeadLetters, logg))
			r.Post("/outbox/dlq/{eventId}/replay", controllers.AdminReplayDeadLetter(svcs.DeadLetters, logg))
		})
	})

	return r
}
