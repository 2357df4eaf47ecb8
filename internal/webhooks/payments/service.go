// Package paymentwebhook ingests provider payment notifications into the
// ledger exactly once per provider reference.
package paymentwebhook

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/kolo-backend/internal/contributions"
	"github.com/angelmondragon/kolo-backend/internal/contributors"
	"github.com/angelmondragon/kolo-backend/internal/ledger"
	"github.com/angelmondragon/kolo-backend/internal/wallet"
	"github.com/angelmondragon/kolo-backend/pkg/db/models"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kolo-backend/pkg/errors"
	"github.com/angelmondragon/kolo-backend/pkg/logger"
	"github.com/angelmondragon/kolo-backend/pkg/metrics"
)

// Result statuses.
const (
	ResultProcessed = "processed"
	ResultDuplicate = "duplicate"
	ResultFailed    = "failed_recorded"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type contributionPoster interface {
	Post(ctx context.Context, tx *gorm.DB, input contributions.Input) (*contributions.Result, error)
}

type deliveryGuard interface {
	Claim(ctx context.Context, provider, reference string) (bool, error)
	Release(ctx context.Context, provider, reference string) error
}

// Result tells the endpoint what happened to a delivery.
type Result struct {
	Status        string     `json:"status"`
	Message       string     `json:"message"`
	TransactionID *uuid.UUID `json:"transaction_id,omitempty"`
}

type ServiceParams struct {
	Ledger            ledger.Repository
	Wallets           wallet.Repository
	Poster            contributionPoster
	TransactionRunner txRunner
	// Guard is optional; without it idempotency rests on the ledger alone.
	Guard   deliveryGuard
	Metrics *metrics.WebhookMetrics
	Logger  *logger.Logger
}

type Service struct {
	ledger   ledger.Repository
	wallets  wallet.Repository
	poster   contributionPoster
	txRunner txRunner
	guard    deliveryGuard
	metrics  *metrics.WebhookMetrics
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger repo required")
	}
	if params.Wallets == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "wallet repo required")
	}
	if params.Poster == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "contribution poster required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &Service{
		ledger:   params.Ledger,
		wallets:  params.Wallets,
		poster:   params.Poster,
		txRunner: params.TransactionRunner,
		guard:    params.Guard,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// HandleEvent dispatches a parsed notification by channel.
func (s *Service) HandleEvent(ctx context.Context, event *Event) (*Result, error) {
	if event == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook event required")
	}
	if event.IsCredit() {
		return s.HandleVirtualAccountCredit(ctx, event)
	}
	return s.HandleSuccessfulPayment(ctx, event)
}

// HandleSuccessfulPayment ingests a card payment. Group contributions grant
// voting rights.
func (s *Service) HandleSuccessfulPayment(ctx context.Context, event *Event) (*Result, error) {
	return s.ingest(ctx, event, enums.JoinMethodCardPayment)
}

// HandleVirtualAccountCredit ingests a bank transfer. Group contributions never
// grant voting rights.
func (s *Service) HandleVirtualAccountCredit(ctx context.Context, event *Event) (*Result, error) {
	return s.ingest(ctx, event, enums.JoinMethodBankTransfer)
}

func (s *Service) ingest(ctx context.Context, event *Event, method enums.JoinMethod) (*Result, error) {
	if event == nil || event.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference missing")
	}
	provider := string(event.Provider)
	reference := ledgerReference(event)
	if s.logg != nil {
		ctx = s.logg.WithReference(ctx, event.Reference)
		ctx = s.logg.WithFields(ctx, map[string]any{
			"provider": provider,
			"event":    event.Type,
		})
	}

	if s.guard != nil {
		claimed, err := s.guard.Claim(ctx, provider, reference)
		if err != nil {
			s.metrics.Observe(provider, metrics.WebhookOutcomeFailed)
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim webhook delivery")
		}
		if !claimed {
			s.metrics.Observe(provider, metrics.WebhookOutcomeDuplicate)
			return &Result{Status: ResultDuplicate, Message: "payment already received"}, nil
		}
	}

	result, err := s.apply(ctx, event, reference, method)
	if err != nil {
		if s.guard != nil {
			if relErr := s.guard.Release(ctx, provider, reference); relErr != nil && s.logg != nil {
				s.logg.Error(ctx, "release webhook delivery", relErr)
			}
		}
		if pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
			s.metrics.Observe(provider, metrics.WebhookOutcomeRejected)
		} else {
			s.metrics.Observe(provider, metrics.WebhookOutcomeFailed)
		}
		return nil, err
	}

	outcome := metrics.WebhookOutcomeProcessed
	if result.Status == ResultDuplicate {
		outcome = metrics.WebhookOutcomeDuplicate
	}
	s.metrics.Observe(provider, outcome)
	if s.logg != nil {
		s.logg.Info(ctx, "payment webhook "+result.Status)
	}
	return result, nil
}

func (s *Service) apply(ctx context.Context, event *Event, reference string, method enums.JoinMethod) (*Result, error) {
	existing, err := s.ledger.FindByReference(ctx, reference)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup payment reference")
	}
	if existing != nil {
		return s.duplicate(ctx, event, existing), nil
	}

	var txn *models.Transaction
	status := ResultProcessed
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		switch {
		case !event.Successful:
			status = ResultFailed
			txn, err = s.recordFailure(ctx, tx, event)
		case event.GroupID != nil:
			txn, err = s.contribute(ctx, tx, event, method)
		default:
			txn, err = s.deposit(ctx, tx, event)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateReference) {
			// a concurrent delivery committed the same reference first
			return &Result{Status: ResultDuplicate, Message: "payment already received"}, nil
		}
		return nil, err
	}

	message := "payment recorded"
	if status == ResultFailed {
		message = "failed payment recorded"
	}
	return &Result{Status: status, Message: message, TransactionID: &txn.ID}, nil
}

func (s *Service) duplicate(ctx context.Context, event *Event, existing *models.Transaction) *Result {
	if event.Successful && !existing.Amount.Equal(event.Amount) && s.logg != nil {
		warnCtx := s.logg.WithFields(ctx, map[string]any{
			"transaction_id":  existing.ID.String(),
			"recorded_amount": existing.Amount.StringFixed(2),
			"reported_amount": event.Amount.StringFixed(2),
		})
		s.logg.Warn(warnCtx, "payment amount differs from recorded transaction")
	}
	return &Result{Status: ResultDuplicate, Message: "payment already received", TransactionID: &existing.ID}
}

func (s *Service) contribute(ctx context.Context, tx *gorm.DB, event *Event, method enums.JoinMethod) (*models.Transaction, error) {
	memberKey := contributors.PayerMemberKey(event.PayerEmail, event.PayerAccount)
	if event.UserID != nil {
		memberKey = contributors.UserMemberKey(*event.UserID)
	}
	if memberKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payer identity missing")
	}

	var displayName *string
	if event.PayerName != "" {
		name := event.PayerName
		displayName = &name
	}

	result, err := s.poster.Post(ctx, tx, contributions.Input{
		GroupID:     *event.GroupID,
		UserID:      event.UserID,
		MemberKey:   memberKey,
		DisplayName: displayName,
		JoinMethod:  method,
		Amount:      event.Amount,
		Reference:   event.Reference,
		Provider:    event.Provider,
		Description: "group contribution via " + string(event.Provider),
		Metadata:    event.Data,
	})
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown group").WithDetails(map[string]any{
				"group_id": event.GroupID.String(),
			})
		}
		return nil, err
	}
	return result.Transaction, nil
}

func (s *Service) deposit(ctx context.Context, tx *gorm.DB, event *Event) (*models.Transaction, error) {
	if event.UserID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required for wallet deposit")
	}
	txn, err := ledger.Record(ctx, s.ledger.WithTx(tx), ledger.RecordInput{
		UserID:      event.UserID,
		Type:        enums.TransactionTypeDeposit,
		Amount:      event.Amount,
		Status:      enums.TransactionStatusCompleted,
		Reference:   event.Reference,
		Provider:    string(event.Provider),
		Description: "wallet deposit via " + string(event.Provider),
		Metadata:    event.Data,
	})
	if err != nil {
		return nil, err
	}
	if _, err := wallet.Credit(ctx, s.wallets.WithTx(tx), *event.UserID, event.Amount); err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *Service) recordFailure(ctx context.Context, tx *gorm.DB, event *Event) (*models.Transaction, error) {
	txType := enums.TransactionTypeDeposit
	if event.GroupID != nil {
		txType = enums.TransactionTypeContribution
	}
	return ledger.Record(ctx, s.ledger.WithTx(tx), ledger.RecordInput{
		UserID:      event.UserID,
		GroupID:     event.GroupID,
		Type:        txType,
		Amount:      event.Amount.Abs(),
		Status:      enums.TransactionStatusFailed,
		Reference:   ledgerReference(event),
		Provider:    string(event.Provider),
		Description: "payment " + event.Status,
		Metadata:    event.Data,
	})
}

// ledgerReference is the key a delivery is deduplicated under. Non-success
// outcomes carry their status so a pending or failed notice never occupies
// the provider reference that the later settlement must post under.
func ledgerReference(event *Event) string {
	if event.Successful {
		return event.Reference
	}
	status := event.Status
	if status == "" {
		status = "failed"
	}
	return event.Reference + ":" + status
}
