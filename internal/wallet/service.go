package wallet

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/kolo-backend/internal/contributions"
	"github.com/angelmondragon/kolo-backend/internal/contributors"
	"github.com/angelmondragon/kolo-backend/internal/ledger"
	dbtypes "github.com/angelmondragon/kolo-backend/pkg/db/types"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kolo-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type contributionPoster interface {
	Post(ctx context.Context, tx *gorm.DB, input contributions.Input) (*contributions.Result, error)
}

// Service exposes wallet balances, history and wallet-funded contributions.
type Service interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (*Balance, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, params ledger.ListParams) (*ledger.TransactionList, error)
	ContributeFromWallet(ctx context.Context, input ContributeInput) (*ContributeResult, error)
}

// Balance is the wallet view returned to the owner.
type Balance struct {
	UserID  uuid.UUID       `json:"user_id"`
	Balance decimal.Decimal `json:"wallet_balance"`
}

// ContributeInput moves wallet funds into a group. Reference is an optional
// idempotency key; a fresh one is generated when empty.
type ContributeInput struct {
	UserID    uuid.UUID
	GroupID   uuid.UUID
	Amount    decimal.Decimal
	Reference string
}

// ContributeResult reports the wallet-funded contribution.
type ContributeResult struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	GroupID       uuid.UUID       `json:"group_id"`
	Amount        decimal.Decimal `json:"amount"`
	WalletBalance decimal.Decimal `json:"wallet_balance"`
	GroupBalance  decimal.Decimal `json:"group_balance"`
}

type service struct {
	repo   Repository
	ledger ledger.Service
	poster contributionPoster
	tx     txRunner
}

// NewService wires wallet dependencies.
func NewService(repo Repository, ledgerSvc ledger.Service, poster contributionPoster, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "wallet repository required")
	}
	if ledgerSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "ledger service required")
	}
	if poster == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "contribution poster required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	return &service{repo: repo, ledger: ledgerSvc, poster: poster, tx: tx}, nil
}

func (s *service) GetBalance(ctx context.Context, userID uuid.UUID) (*Balance, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	profile, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	out := &Balance{UserID: userID, Balance: decimal.Zero}
	if profile != nil {
		out.Balance = profile.WalletBalance
	}
	return out, nil
}

func (s *service) ListTransactions(ctx context.Context, userID uuid.UUID, params ledger.ListParams) (*ledger.TransactionList, error) {
	return s.ledger.ListForUser(ctx, userID, params)
}

// ContributeFromWallet debits the wallet and credits the group atomically.
// The group is locked before the wallet to keep lock order consistent with
// payouts.
func (s *service) ContributeFromWallet(ctx context.Context, input ContributeInput) (*ContributeResult, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.GroupID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "group id required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	reference := input.Reference
	if reference == "" {
		reference = fmt.Sprintf("wallet:%s", uuid.NewString())
	}

	var out *ContributeResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		userID := input.UserID
		posted, err := s.poster.Post(ctx, tx, contributions.Input{
			GroupID:     input.GroupID,
			UserID:      &userID,
			MemberKey:   contributors.UserMemberKey(userID),
			JoinMethod:  enums.JoinMethodWallet,
			Amount:      input.Amount,
			Reference:   reference,
			Provider:    enums.PaymentProviderWallet,
			Description: "Wallet contribution",
			Metadata:    dbtypes.MustJSON(map[string]any{"source": "wallet"}),
		})
		if err != nil {
			return err
		}
		profile, err := Debit(ctx, s.repo.WithTx(tx), userID, posted.Transaction.Amount)
		if err != nil {
			return err
		}
		out = &ContributeResult{
			TransactionID: posted.Transaction.ID,
			GroupID:       posted.Group.ID,
			Amount:        posted.Transaction.Amount,
			WalletBalance: profile.WalletBalance,
			GroupBalance:  posted.Group.CurrentAmount,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
