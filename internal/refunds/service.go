package refunds

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
	defaultVotingWindow  = 7 * 24 * time.Hour
	defaultRetryAttempts = 3
	expiryBatchSize      = 100
)

var errVersionConflict = errors.New("refund request version changed")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service defines the refund request lifecycle.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.GroupRefundRequest, error)
	List(ctx context.Context, groupID uuid.UUID) ([]models.GroupRefundRequest, error)
	Vote(ctx context.Context, input VoteInput) (*VoteResult, error)
	ProcessRefund(ctx context.Context, requestID uuid.UUID) (*models.GroupRefundRequest, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)
}

// Options tunes the voting gates and window.
type Options struct {
	Policy        governance.RefundPolicy
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

// CreateInput opens a refund vote. Percentage is ignored for full refunds.
type CreateInput struct {
	GroupID     uuid.UUID
	RequesterID uuid.UUID
	RefundType  enums.RefundType
	Percentage  int
	Reason      string
}

// VoteInput is one for/against ballot.
type VoteInput struct {
	RequestID uuid.UUID
	VoterID   uuid.UUID
	Vote      enums.VoteValue
}

// VoteResult reports both gates after the ballot was counted.
type VoteResult struct {
	Request            *models.GroupRefundRequest `json:"request"`
	VotesFor           int                        `json:"votes_for"`
	VotesAgainst       int                        `json:"votes_against"`
	Eligible           int                        `json:"eligible"`
	ParticipationRatio float64                    `json:"participation_ratio"`
	ApprovalRatio      float64                    `json:"approval_ratio"`
	ParticipationMet   bool                       `json:"participation_met"`
	ApprovalMet        bool                       `json:"approval_met"`
}

type service struct {
	Deps
	policy   governance.RefundPolicy
	window   time.Duration
	attempts int
	now      func() time.Time
}

// NewService wires the refund service.
func NewService(deps Deps, opts Options) (Service, error) {
	switch {
	case deps.Repo == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "refunds repository required")
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
	if opts.Policy == (governance.RefundPolicy{}) {
		opts.Policy = governance.DefaultRefundPolicy()
	}
	if opts.VotingWindow <= 0 {
		opts.VotingWindow = defaultVotingWindow
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = defaultRetryAttempts
	}
	return &service{
		Deps:     deps,
		policy:   opts.Policy,
		window:   opts.VotingWindow,
		attempts: opts.RetryAttempts,
		now:      time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.GroupRefundRequest, error) {
	if input.RequesterID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.GroupID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "group id required")
	}
	pct, err := refundPercentage(input.RefundType, input.Percentage)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}

	var request *models.GroupRefundRequest
	err = s.Tx.WithTx(ctx, func(tx *gorm.DB) error {
		group, err := groups.Lock(ctx, s.Groups.WithTx(tx), input.GroupID)
		if err != nil {
			return err
		}
		if !group.CurrentAmount.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeValidation, "the group has no funds to refund")
		}

		contributorRepo := s.Contributors.WithTx(tx)
		if group.CreatorID != input.RequesterID {
			requester, err := contributorRepo.FindByUser(ctx, group.ID, input.RequesterID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load contributor")
			}
			if requester == nil || !requester.HasVotingRights {
				return pkgerrors.New(pkgerrors.CodeForbidden, "only contributors with voting rights can request a refund")
			}
		}

		repo := s.Repo.WithTx(tx)
		open, err := repo.FindPendingByGroup(ctx, group.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check open refunds")
		}
		if open != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "a refund vote is already open for this group").
				WithDetails(map[string]any{"request_id": open.ID})
		}

		voters, err := contributorRepo.ListVoterIDs(ctx, group.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list voters")
		}
		if len(voters) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "the group has no eligible voters")
		}

		now := s.now().UTC()
		request = &models.GroupRefundRequest{
			GroupID:             group.ID,
			RequesterID:         input.RequesterID,
			RefundType:          input.RefundType,
			Percentage:          pct,
			Reason:              reason,
			Status:              enums.RequestStatusPending,
			Votes:               dbtypes.VoteList{},
			TotalEligibleVoters: len(voters),
			VotingDeadline:      now.Add(s.window),
			Version:             1,
			Amount:              decimal.Zero,
		}
		if err := repo.Create(ctx, request); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refund request")
		}
		return s.Outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundRequestCreated,
			AggregateType: enums.AggregateRefundRequest,
			AggregateID:   request.ID,
			Actor:         outbox.MemberActor(input.RequesterID),
			Data: payloads.RefundRequestCreatedEvent{
				RequestID:      request.ID,
				GroupID:        group.ID,
				GroupName:      group.Name,
				RequesterID:    input.RequesterID,
				RefundType:     request.RefundType,
				Percentage:     pct,
				VotingDeadline: request.VotingDeadline,
				VoterIDs:       voters,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

func (s *service) List(ctx context.Context, groupID uuid.UUID) ([]models.GroupRefundRequest, error) {
	if groupID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "group id required")
	}
	rows, err := s.Repo.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list refund requests")
	}
	return rows, nil
}

// Vote counts a ballot and, once both gates hold, pays the refund out in the
// same transaction.
func (s *service) Vote(ctx context.Context, input VoteInput) (*VoteResult, error) {
	if input.VoterID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.RequestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}
	if !input.Vote.IsRefundVote() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vote must be for or against")
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
		if err := governance.ValidateVote(request.Status, request.VotingDeadline, now, request.Votes, input.VoterID); err != nil {
			return err
		}

		groupRepo := s.Groups.WithTx(tx)
		group, err := groups.Lock(ctx, groupRepo, request.GroupID)
		if err != nil {
			return err
		}
		eligible, err := contributors.CanVote(ctx, s.Contributors.WithTx(tx), s.Ledger.WithTx(tx), group, input.VoterID)
		if err != nil {
			return err
		}
		if !eligible {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the group creator or contributors with voting rights can vote")
		}

		votes := governance.AppendVote(request.Votes, input.VoterID, input.Vote, now)
		outcome := governance.EvaluateRefund(votes, request.TotalEligibleVoters, s.policy)
		status := outcome.Status()

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
		result = &VoteResult{
			Request:            request,
			VotesFor:           outcome.Tally.For,
			VotesAgainst:       outcome.Tally.Against,
			Eligible:           outcome.Eligible,
			ParticipationRatio: outcome.ParticipationRatio,
			ApprovalRatio:      outcome.ApprovalRatio,
			ParticipationMet:   outcome.ParticipationMet,
			ApprovalMet:        outcome.ApprovalMet,
		}
		if status != enums.RequestStatusApproved {
			return nil
		}

		if err := s.emitDecided(ctx, tx, group, request, outcome.Tally, false); err != nil {
			return err
		}
		executed, err := s.process(ctx, tx, group, request)
		if err != nil {
			return err
		}
		result.Request = executed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ProcessRefund pays out an approved request that has not executed yet.
func (s *service) ProcessRefund(ctx context.Context, requestID uuid.UUID) (*models.GroupRefundRequest, error) {
	if requestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}
	var out *models.GroupRefundRequest
	err := s.Tx.WithTx(ctx, func(tx *gorm.DB) error {
		request, err := s.Repo.WithTx(tx).FindByID(ctx, requestID)
		if err != nil {
			return mapRequestError(err)
		}
		if request.Status != enums.RequestStatusApproved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only approved refunds can be processed").
				WithDetails(map[string]any{"status": request.Status})
		}
		group, err := groups.Lock(ctx, s.Groups.WithTx(tx), request.GroupID)
		if err != nil {
			return err
		}
		out, err = s.process(ctx, tx, group, request)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// process credits each registered contributor's wallet. Anonymous stakes have
// no wallet, so they are counted as failed and their share stays in the pot.
// Contributor totals are lifetime figures, so each share is planned from the
// stake net of the member's earlier refund rows in this group.
func (s *service) process(ctx context.Context, tx *gorm.DB, group *models.ContributionGroup, request *models.GroupRefundRequest) (*models.GroupRefundRequest, error) {
	stakes, err := s.Contributors.WithTx(tx).ListByGroup(ctx, group.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list contributors")
	}

	walletRepo := s.Wallets.WithTx(tx)
	ledgerRepo := s.Ledger.WithTx(tx)
	refunded, err := ledgerRepo.RefundedByUser(ctx, group.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum earlier refunds")
	}
	paid := decimal.Zero
	processed, failed := 0, 0
	var recipients []uuid.UUID
	for _, p := range planPayouts(stakes, refunded, request.Percentage, group.CurrentAmount) {
		if p.Contributor.UserID == nil {
			failed++
			continue
		}
		if !p.Amount.IsPositive() {
			continue
		}
		userID := *p.Contributor.UserID
		if _, err := wallet.Credit(ctx, walletRepo, userID, p.Amount); err != nil {
			return nil, err
		}
		if _, err := ledger.Record(ctx, ledgerRepo, ledger.RecordInput{
			UserID:      &userID,
			GroupID:     &group.ID,
			Type:        enums.TransactionTypeRefund,
			Amount:      p.Amount,
			Status:      enums.TransactionStatusCompleted,
			Reference:   fmt.Sprintf("refund:%s:%s", request.ID, p.Contributor.ID),
			Provider:    string(enums.PaymentProviderInternal),
			Description: fmt.Sprintf("Refund from %s", group.Name),
			Metadata: dbtypes.MustJSON(map[string]any{
				"refund_request_id": request.ID,
				"percentage":        request.Percentage,
			}),
		}); err != nil {
			return nil, err
		}
		paid = paid.Add(p.Amount)
		processed++
		recipients = append(recipients, userID)
	}

	now := s.now().UTC()
	moved, err := s.Repo.WithTx(tx).MarkExecuted(ctx, executionOutcome{
		ID:        request.ID,
		Amount:    paid,
		Processed: processed,
		Failed:    failed,
		At:        now,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark refund executed")
	}
	if !moved {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "refund was already processed")
	}
	if _, err := groups.Sync(ctx, s.Groups.WithTx(tx), group.ID); err != nil {
		return nil, err
	}

	request.Status = enums.RequestStatusExecuted
	request.Amount = paid
	request.RefundsProcessed = processed
	request.RefundsFailed = failed
	request.ExecutedAt = &now
	request.Version++

	err = s.Outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventRefundExecuted,
		AggregateType: enums.AggregateRefundRequest,
		AggregateID:   request.ID,
		Data: payloads.RefundExecutedEvent{
			RequestID:        request.ID,
			GroupID:          group.ID,
			GroupName:        group.Name,
			Amount:           paid,
			RefundsProcessed: processed,
			RefundsFailed:    failed,
			RecipientIDs:     recipients,
		},
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// ExpireOverdue lapses pending requests whose voting deadline passed.
func (s *service) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	overdue, err := s.Repo.ListOverdue(ctx, now.UTC(), expiryBatchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list overdue refunds")
	}

	expired := 0
	var errs error
	for i := range overdue {
		request := overdue[i]
		moved := false
		err := s.Tx.WithTx(ctx, func(tx *gorm.DB) error {
			ok, err := s.Repo.WithTx(tx).Expire(ctx, request.ID, now.UTC())
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
			errs = multierr.Append(errs, fmt.Errorf("expire refund %s: %w", request.ID, err))
			continue
		}
		if moved {
			expired++
		}
	}
	return expired, errs
}

func (s *service) emitDecided(ctx context.Context, tx *gorm.DB, group *models.ContributionGroup, request *models.GroupRefundRequest, tally governance.Tally, expired bool) error {
	return s.Outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventRefundDecided,
		AggregateType: enums.AggregateRefundRequest,
		AggregateID:   request.ID,
		Data: payloads.RefundDecidedEvent{
			RequestID:   request.ID,
			GroupID:     group.ID,
			GroupName:   group.Name,
			RequesterID: request.RequesterID,
			Status:      request.Status,
			VotesFor:    tally.For,
			VotesCast:   tally.Cast(),
			Eligible:    request.TotalEligibleVoters,
			Expired:     expired,
		},
	})
}

func refundPercentage(refundType enums.RefundType, pct int) (int, error) {
	switch refundType {
	case enums.RefundTypeFull:
		return 100, nil
	case enums.RefundTypePartial:
		if pct < 1 || pct > 100 {
			return 0, pkgerrors.New(pkgerrors.CodeValidation, "partial refund percentage must be between 1 and 100")
		}
		return pct, nil
	default:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "refund type must be full or partial")
	}
}

func mapRequestError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "refund request not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load refund request")
}
