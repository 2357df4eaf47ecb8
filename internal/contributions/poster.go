// Package contributions credits completed payments to a group inside one
// database transaction.
package contributions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/kolo-backend/internal/contributors"
	"github.com/angelmondragon/kolo-backend/internal/groups"
	"github.com/angelmondragon/kolo-backend/internal/ledger"
	"github.com/angelmondragon/kolo-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/kolo-backend/pkg/db/types"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kolo-backend/pkg/errors"
	"github.com/angelmondragon/kolo-backend/pkg/outbox"
	"github.com/angelmondragon/kolo-backend/pkg/outbox/payloads"
)

// Input describes one completed contribution.
type Input struct {
	GroupID     uuid.UUID
	UserID      *uuid.UUID
	MemberKey   string
	DisplayName *string
	JoinMethod  enums.JoinMethod
	Amount      decimal.Decimal
	Reference   string
	Provider    enums.PaymentProvider
	Description string
	Metadata    dbtypes.JSON
}

// Result is what a posting changed.
type Result struct {
	Transaction        *models.Transaction
	Contributor        *models.Contributor
	Group              *models.ContributionGroup
	ContributorCreated bool
}

// Poster applies the ledger row, the contributor stake and the group balance
// together.
type Poster struct {
	groups       groups.Repository
	contributors contributors.Repository
	ledger       ledger.Repository
	outbox       outbox.Emitter
	now          func() time.Time
}

// NewPoster wires the repositories a posting touches.
func NewPoster(groupRepo groups.Repository, contributorRepo contributors.Repository, ledgerRepo ledger.Repository, emitter outbox.Emitter) (*Poster, error) {
	if groupRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "groups repository required")
	}
	if contributorRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "contributors repository required")
	}
	if ledgerRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "ledger repository required")
	}
	if emitter == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter required")
	}
	return &Poster{
		groups:       groupRepo,
		contributors: contributorRepo,
		ledger:       ledgerRepo,
		outbox:       emitter,
		now:          time.Now,
	}, nil
}

// Post must run inside tx. The group row is locked first so concurrent
// postings to the same group serialize. A reused reference yields
// ledger.ErrDuplicateReference and nothing else is written.
func (p *Poster) Post(ctx context.Context, tx *gorm.DB, input Input) (*Result, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if input.GroupID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "group id required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	amount := input.Amount.Round(2)

	groupRepo := p.groups.WithTx(tx)
	group, err := groups.Lock(ctx, groupRepo, input.GroupID)
	if err != nil {
		return nil, err
	}

	txn, err := ledger.Record(ctx, p.ledger.WithTx(tx), ledger.RecordInput{
		UserID:      input.UserID,
		GroupID:     &group.ID,
		Type:        enums.TransactionTypeContribution,
		Amount:      amount,
		Status:      enums.TransactionStatusCompleted,
		Reference:   input.Reference,
		Provider:    string(input.Provider),
		Description: input.Description,
		Metadata:    input.Metadata,
	})
	if err != nil {
		return nil, err
	}

	contributor, created, err := contributors.ApplyContribution(ctx, p.contributors.WithTx(tx), contributors.StakeInput{
		GroupID:     group.ID,
		UserID:      input.UserID,
		MemberKey:   input.MemberKey,
		DisplayName: input.DisplayName,
		JoinMethod:  input.JoinMethod,
		Amount:      amount,
		At:          p.now().UTC(),
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply contributor stake")
	}

	group.CurrentAmount = group.CurrentAmount.Add(amount)
	group.Status = groups.StatusFor(group.CurrentAmount, group.TargetAmount)
	if err := groupRepo.UpdateProjection(ctx, group.ID, group.CurrentAmount, group.Status); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update group balance")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventContributionReceived,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   txn.ID,
		Data: payloads.ContributionReceivedEvent{
			TransactionID: txn.ID,
			GroupID:       group.ID,
			GroupName:     group.Name,
			CreatorID:     group.CreatorID,
			ContributorID: contributor.ID,
			UserID:        input.UserID,
			Amount:        amount,
			JoinMethod:    input.JoinMethod,
		},
	}
	if input.UserID != nil {
		event.Actor = outbox.MemberActor(*input.UserID)
	}
	if err := p.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit contribution event")
	}

	return &Result{
		Transaction:        txn,
		Contributor:        contributor,
		Group:              group,
		ContributorCreated: created,
	}, nil
}
