package withdrawals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/kolo-backend/internal/contributors"
	"github.com/angelmondragon/kolo-backend/internal/governance"
	"github.com/angelmondragon/kolo-backend/internal/groups"
	"github.com/angelmondragon/kolo-backend/internal/ledger"
	"github.com/angelmondragon/kolo-backend/internal/wallet"
	"github.com/angelmondragon/kolo-backend/pkg/db"
	"github.com/angelmondragon/kolo-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/kolo-backend/pkg/db/types"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kolo-backend/pkg/errors"
	"github.com/angelmondragon/kolo-backend/pkg/outbox"
	"github.com/angelmondragon/kolo-backend/pkg/outbox/payloads"
)

const (
	defaultVotingWindow  = 72 * time.Hour
	defaultRetryAttempts = 3
	expiryBatchSize      = 100
)

var errVersionConflict = errors.New("withdrawal request version changed")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service defines the withdrawal request lifecycle.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.WithdrawalRequest, error)
	List(ctx context.Context, groupID uuid.UUID, status *enums.RequestStatus) ([]models.WithdrawalRequest, error)
	Vote(ctx context.Context, input VoteInput) (*VoteResult, error)
	Execute(ctx context.Context, input ExecuteInput) (*models.WithdrawalRequest, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)
}

// Options tunes voting behaviour.
type Options struct {
	VotingWindow  time.Duration
	RetryAttempts int
}

// Deps bundles the repositories the service reads and writes.
type Deps struct {
	Repo         Repository
	Groups       groups.Repository
	Contributors contributors.Repository
	Ledger       ledger.Repository
	Wallets      wallet.Repository
	Tx           txRunner
	Outbox       outboxPublisher
}

// CreateInput carries a new withdrawal request.
type CreateInput struct {
	GroupID     uuid.UUID
	RequesterID uuid.UUID
	Amount      decimal.Decimal
	Reason      string
}

// VoteInput is one ballot on a withdrawal request.
type VoteInput struct {
	RequestID uuid.UUID
	VoterID   uuid.UUID
	Vote      enums.VoteValue
}

// VoteResult reports the request after the ballot was counted.
type VoteResult struct {
	Request    *models.WithdrawalRequest `json:"request"`
	Approvals  int                       `json:"approvals"`
	Rejections int                       `json:"rejections"`
	Threshold  int                       `json:"threshold"`
	// AwaitingFunds is set when approvals reached the threshold but the
	// group balance no longer covers the amount, so the request stays pending.
	AwaitingFunds bool `json:"awaiting_funds,omitempty"`
}

// ExecuteInput pays an approved request out to the requester's wallet.
type ExecuteInput struct {
	RequestID uuid.UUID
	ActorID   uuid.UUID
}

type service struct {
	Deps
	window   time.Duration
	attempts int
	now      func() time.Time
}

// NewService wires the withdrawal service.
func NewService(deps Deps, opts Options) (Service, error) {
	switch {
	case deps.Repo == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "withdrawals repository required")
	case deps.Groups == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "groups repository required")
	case deps.Contributors == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "contributors repository required")
	case deps.Ledger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "ledger repository required")
	case deps.Wallets == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "wallet repository required")
	case deps.Tx == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	case deps.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox publisher required")
	}
	if opts.VotingWindow <= 0 {
		opts.VotingWindow = defaultVotingWindow
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = defaultRetryAttempts
	}
	return &service{
		Deps:     deps,
		window:   opts.VotingWindow,
		attempts: opts.RetryAttempts,
		now:      time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.WithdrawalRequest, error) {
	if input.RequesterID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.GroupID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "group id required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	amount := input.Amount.Round(2)

	var request *models.WithdrawalRequest
	err := s.Tx.WithTx(ctx, func(tx *gorm.DB) error {
		group, err := groups.Lock(ctx, s.Groups.WithTx(tx), input.GroupID)
		if err != nil {
			return err
		}
		eligible, err := s.canVote(ctx, tx, group, input.RequesterID)
		if err != nil {
			return err
		}
		if !eligible {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the group creator or an eligible voter can request a withdrawal")
		}
		if amount.GreaterThan(group.CurrentAmount) {
			return pkgerrors.New(pkgerrors.CodeInsufficient, "amount exceeds the group balance").WithDetails(map[string]any{
				"available": group.CurrentAmount.StringFixed(2),
				"requested": amount.StringFixed(2),
			})
		}

		now := s.now().UTC()
		request = &models.WithdrawalRequest{
			GroupID:     group.ID,
			RequesterID: input.RequesterID,
			Amount:      amount,
			Reason:      reason,
			Status:      enums.RequestStatusPending,
			Votes:       dbtypes.VoteList{},
			Deadline:    now.Add(s.window),
			Version:     1,
		}
		if err := s.Repo.WithTx(tx).Create(ctx, request); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create withdrawal request")
		}

		voters, err := s.Contributors.WithTx(tx).ListVoterIDs(ctx, group.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list voters")
		}
		return s.Outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWithdrawalRequestCreated,
			AggregateType: enums.AggregateWithdrawalRequest,
			AggregateID:   request.ID,
			Actor:         outbox.MemberActor(input.RequesterID),
			Data: payloads.WithdrawalRequestCreatedEvent{
				RequestID:   request.ID,
				GroupID:     group.ID,
				GroupName:   group.Name,
				RequesterID: input.RequesterID,
				Amount:      amount,
				Deadline:    request.Deadline,
				VoterIDs:    withCreator(voters, group.CreatorID),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

func (s *service) List(ctx context.Context, groupID uuid.UUID, status *enums.RequestStatus) ([]models.WithdrawalRequest, error) {
	if groupID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "group id required")
	}
	if status != nil && !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	rows, err := s.Repo.ListByGroup(ctx, groupID, status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list withdrawal requests")
	}
	return rows, nil
}

// Vote retries the whole read-evaluate-write cycle when a concurrent ballot
// bumped the version, so no vote is ever overwritten.
func (s *service) Vote(ctx context.Context, input VoteInput) (*VoteResult, error) {
	if input.VoterID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.RequestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}
	if !input.Vote.IsWithdrawalVote() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vote must be approve or reject")
	}

	for attempt := 0; attempt < s.attempts; attempt++ {
		result, err := s.voteOnce(ctx, input)
		if errors.Is(err, errVersionConflict) || db.IsRetryable(err) {
			continue
		}
		return result, err
	}
	return nil, pkgerrors.New(pkgerrors.CodeVoteConflict, "too many concurrent votes, try again")
}

func (s *service) voteOnce(ctx context.Context, input VoteInput) (*VoteResult, error) {
	var result *VoteResult
	err := s.Tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.Repo.WithTx(tx)
		request, err := repo.FindByID(ctx, input.RequestID)
		if err != nil {
			return mapRequestError(err)
		}
		now := s.now().UTC()
		if err := governance.ValidateVote(request.Status, request.Deadline, now, request.Votes, input.VoterID); err != nil {
			return err
		}

		groupRepo := s.Groups.WithTx(tx)
		group, err := groups.Lock(ctx, groupRepo, request.GroupID)
		if err != nil {
			return err
		}
		eligible, err := s.canVote(ctx, tx, group, input.VoterID)
		if err != nil {
			return err
		}
		if !eligible {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the group creator or contributors with voting rights can vote")
		}

		votes := governance.AppendVote(request.Votes, input.VoterID, input.Vote, now)
		status := governance.EvaluateWithdrawal(votes, group.VotingThreshold)
		awaitingFunds := status == enums.RequestStatusApproved && group.CurrentAmount.LessThan(request.Amount)
		if awaitingFunds {
			status = governance.EvaluateUnfundedWithdrawal(votes, group.VotingThreshold)
		}

		update := voteUpdate{ID: request.ID, Version: request.Version, Votes: votes, Status: status}
		if status != enums.RequestStatusPending {
			update.DecidedAt = &now
		}
		swapped, err := repo.SaveVotes(ctx, update)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record vote")
		}
		if !swapped {
			return errVersionConflict
		}

		request.Votes = votes
		request.Status = status
		request.Version++
		request.DecidedAt = update.DecidedAt
		tally := governance.Count(votes)
		result = &VoteResult{
			Request:    request,
			Approvals:  tally.For,
			Rejections: tally.Against,
			Threshold:  group.VotingThreshold,

			AwaitingFunds: awaitingFunds && status == enums.RequestStatusPending,
		}
		if status == enums.RequestStatusPending {
			return nil
		}

		if _, err := groups.Sync(ctx, groupRepo, group.ID); err != nil {
			return err
		}
		return s.emitDecided(ctx, tx, group, request, tally, false)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Execute(ctx context.Context, input ExecuteInput) (*models.WithdrawalRequest, error) {
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.RequestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}

	var request *models.WithdrawalRequest
	err := s.Tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.Repo.WithTx(tx)
		var err error
		request, err = repo.FindByID(ctx, input.RequestID)
		if err != nil {
			return mapRequestError(err)
		}
		groupRepo := s.Groups.WithTx(tx)
		group, err := groups.Lock(ctx, groupRepo, request.GroupID)
		if err != nil {
			return err
		}
		if input.ActorID != request.RequesterID && input.ActorID != group.CreatorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the requester or the group creator can execute a withdrawal")
		}
		if !governance.CanTransition(request.Status, enums.RequestStatusExecuted) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only approved withdrawals can be executed").
				WithDetails(map[string]any{"status": request.Status})
		}

		now := s.now().UTC()
		moved, err := repo.Transition(ctx, request.ID, enums.RequestStatusApproved, enums.RequestStatusExecuted, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute withdrawal")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "withdrawal was already executed")
		}

		if _, err := wallet.Credit(ctx, s.Wallets.WithTx(tx), request.RequesterID, request.Amount); err != nil {
			return err
		}
		requester := request.RequesterID
		txn, err := ledger.Record(ctx, s.Ledger.WithTx(tx), ledger.RecordInput{
			UserID:      &requester,
			GroupID:     &group.ID,
			Type:        enums.TransactionTypeWithdrawal,
			Amount:      request.Amount,
			Status:      enums.TransactionStatusCompleted,
			Reference:   fmt.Sprintf("withdrawal:%s", request.ID),
			Provider:    string(enums.PaymentProviderInternal),
			Description: fmt.Sprintf("Withdrawal from %s", group.Name),
			Metadata:    dbtypes.MustJSON(map[string]any{"withdrawal_request_id": request.ID}),
		})
		if err != nil {
			return err
		}
		if _, err := groups.Sync(ctx, groupRepo, group.ID); err != nil {
			return err
		}

		request.Status = enums.RequestStatusExecuted
		request.ExecutedAt = &now
		request.Version++
		return s.Outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWithdrawalExecuted,
			AggregateType: enums.AggregateWithdrawalRequest,
			AggregateID:   request.ID,
			Actor:         outbox.MemberActor(input.ActorID),
			Data: payloads.WithdrawalExecutedEvent{
				RequestID:     request.ID,
				GroupID:       group.ID,
				RequesterID:   request.RequesterID,
				Amount:        request.Amount,
				TransactionID: txn.ID,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// ExpireOverdue rejects pending requests whose deadline passed. Each request
// lapses in its own transaction so one failure does not block the rest.
func (s *service) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	overdue, err := s.Repo.ListOverdue(ctx, now.UTC(), expiryBatchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list overdue withdrawals")
	}

	expired := 0
	var errs error
	for i := range overdue {
		request := overdue[i]
		moved := false
		err := s.Tx.WithTx(ctx, func(tx *gorm.DB) error {
			ok, err := s.Repo.WithTx(tx).Transition(ctx, request.ID, enums.RequestStatusPending, enums.RequestStatusRejected, now.UTC())
			if err != nil || !ok {
				return err
			}
			group, err := s.Groups.WithTx(tx).FindByID(ctx, request.GroupID)
			if err != nil {
				return err
			}
			request.Status = enums.RequestStatusRejected
			moved = true
			return s.emitDecided(ctx, tx, group, &request, governance.Count(request.Votes), true)
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire withdrawal %s: %w", request.ID, err))
			continue
		}
		if moved {
			expired++
		}
	}
	return expired, errs
}

func (s *service) emitDecided(ctx context.Context, tx *gorm.DB, group *models.ContributionGroup, request *models.WithdrawalRequest, tally governance.Tally, expired bool) error {
	return s.Outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventWithdrawalDecided,
		AggregateType: enums.AggregateWithdrawalRequest,
		AggregateID:   request.ID,
		Data: payloads.WithdrawalDecidedEvent{
			RequestID:   request.ID,
			GroupID:     group.ID,
			GroupName:   group.Name,
			RequesterID: request.RequesterID,
			Amount:      request.Amount,
			Status:      request.Status,
			Approvals:   tally.For,
			Rejections:  tally.Against,
			Expired:     expired,
		},
	})
}

func (s *service) canVote(ctx context.Context, tx *gorm.DB, group *models.ContributionGroup, userID uuid.UUID) (bool, error) {
	return contributors.CanVote(ctx, s.Contributors.WithTx(tx), s.Ledger.WithTx(tx), group, userID)
}

func mapRequestError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal request not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load withdrawal request")
}

func withCreator(voters []uuid.UUID, creator uuid.UUID) []uuid.UUID {
	for _, id := range voters {
		if id == creator {
			return voters
		}
	}
	out := make([]uuid.UUID, 0, len(voters)+1)
	out = append(out, voters...)
	return append(out, creator)
}
