package app

import (
	"fmt"

	"github.com/angelmondragon/kolo-backend/internal/contributions"
	"github.com/angelmondragon/kolo-backend/internal/contributors"
	"github.com/angelmondragon/kolo-backend/internal/governance"
	"github.com/angelmondragon/kolo-backend/internal/groups"
	"github.com/angelmondragon/kolo-backend/internal/ledger"
	"github.com/angelmondragon/kolo-backend/internal/notifications"
	"github.com/angelmondragon/kolo-backend/internal/recurring"
	"github.com/angelmondragon/kolo-backend/internal/refunds"
	"github.com/angelmondragon/kolo-backend/internal/wallet"
	"github.com/angelmondragon/kolo-backend/internal/withdrawals"
	"github.com/angelmondragon/kolo-backend/pkg/config"
	"github.com/angelmondragon/kolo-backend/pkg/db"
	"github.com/angelmondragon/kolo-backend/pkg/logger"
	"github.com/angelmondragon/kolo-backend/pkg/outbox"
)

// Repositories are the gorm-backed stores shared by every binary.
type Repositories struct {
	Groups        groups.Repository
	Contributors  contributors.Repository
	Ledger        ledger.Repository
	Wallets       wallet.Repository
	Withdrawals   withdrawals.Repository
	Refunds       refunds.Repository
	Recurring     recurring.Repository
	Notifications notifications.Repository
	Outbox        *outbox.Repository
	DeadLetters   *outbox.DLQRepository
}

// Services is the fully wired domain layer.
type Services struct {
	Repos         Repositories
	Emitter       *outbox.Service
	Poster        *contributions.Poster
	Groups        groups.Service
	Contributors  contributors.Service
	Ledger        ledger.Service
	Wallet        wallet.Service
	Withdrawals   withdrawals.Service
	Refunds       refunds.Service
	Recurring     recurring.Service
	Notifications notifications.Service
}

// NewServices builds repositories and services on top of the database client.
func NewServices(cfg *config.Config, logg *logger.Logger, client *db.Client) (*Services, error) {
	if cfg == nil || client == nil {
		return nil, fmt.Errorf("config and database client required")
	}
	conn := client.DB()
	repos := Repositories{
		Groups:        groups.NewRepository(conn),
		Contributors:  contributors.NewRepository(conn),
		Ledger:        ledger.NewRepository(conn),
		Wallets:       wallet.NewRepository(conn),
		Withdrawals:   withdrawals.NewRepository(conn),
		Refunds:       refunds.NewRepository(conn),
		Recurring:     recurring.NewRepository(conn),
		Notifications: notifications.NewRepository(conn),
		Outbox:        outbox.NewRepository(conn),
		DeadLetters:   outbox.NewDLQRepository(conn),
	}
	emitter := outbox.NewService(repos.Outbox, logg)

	poster, err := contributions.NewPoster(repos.Groups, repos.Contributors, repos.Ledger, emitter)
	if err != nil {
		return nil, fmt.Errorf("contribution poster: %w", err)
	}
	groupSvc, err := groups.NewService(repos.Groups, repos.Contributors, client, logg, groups.WithSweepWorkers(cfg.Cron.ReconcileWorkers))
	if err != nil {
		return nil, fmt.Errorf("groups service: %w", err)
	}
	contributorSvc, err := contributors.NewService(repos.Contributors, repos.Groups)
	if err != nil {
		return nil, fmt.Errorf("contributors service: %w", err)
	}
	ledgerSvc, err := ledger.NewService(repos.Ledger)
	if err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}
	walletSvc, err := wallet.NewService(repos.Wallets, ledgerSvc, poster, client)
	if err != nil {
		return nil, fmt.Errorf("wallet service: %w", err)
	}

	gov := cfg.Governance
	withdrawalSvc, err := withdrawals.NewService(withdrawals.Deps{
		Repo:         repos.Withdrawals,
		Groups:       repos.Groups,
		Contributors: repos.Contributors,
		Ledger:       repos.Ledger,
		Wallets:      repos.Wallets,
		Tx:           client,
		Outbox:       emitter,
	}, withdrawals.Options{
		VotingWindow:  gov.WithdrawalVotingWindow,
		RetryAttempts: gov.VoteRetryAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("withdrawals service: %w", err)
	}
	refundSvc, err := refunds.NewService(refunds.Deps{
		Repo:         repos.Refunds,
		Groups:       repos.Groups,
		Contributors: repos.Contributors,
		Ledger:       repos.Ledger,
		Wallets:      repos.Wallets,
		Tx:           client,
		Outbox:       emitter,
	}, refunds.Options{
		Policy: governance.RefundPolicy{
			ParticipationPct: gov.RefundParticipationPct,
			ApprovalPct:      gov.RefundApprovalPct,
		},
		VotingWindow:  gov.RefundVotingWindow,
		RetryAttempts: gov.VoteRetryAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("refunds service: %w", err)
	}
	recurringSvc, err := recurring.NewService(recurring.ServiceParams{
		Repo:   repos.Recurring,
		Groups: groupSvc,
		Wallet: walletSvc,
		Outbox: emitter,
		Tx:     client,
		Logger: logg,
	})
	if err != nil {
		return nil, fmt.Errorf("recurring service: %w", err)
	}
	notificationSvc, err := notifications.NewService(repos.Notifications)
	if err != nil {
		return nil, fmt.Errorf("notifications service: %w", err)
	}

	return &Services{
		Repos:         repos,
		Emitter:       emitter,
		Poster:        poster,
		Groups:        groupSvc,
		Contributors:  contributorSvc,
		Ledger:        ledgerSvc,
		Wallet:        walletSvc,
		Withdrawals:   withdrawalSvc,
		Refunds:       refundSvc,
		Recurring:     recurringSvc,
		Notifications: notificationSvc,
	}, nil
}
