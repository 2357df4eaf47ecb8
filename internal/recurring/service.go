// Package recurring schedules wallet-funded contributions and runs them when
// they fall due.
package recurring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/kolo-backend/internal/ledger"
	"github.com/angelmondragon/kolo-backend/internal/wallet"
	"github.com/angelmondragon/kolo-backend/pkg/db/models"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kolo-backend/pkg/errors"
	"github.com/angelmondragon/kolo-backend/pkg/logger"
	"github.com/angelmondragon/kolo-backend/pkg/outbox"
	"github.com/angelmondragon/kolo-backend/pkg/outbox/payloads"
)

const defaultBatchSize = 200

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type groupReader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.ContributionGroup, error)
}

type walletContributor interface {
	ContributeFromWallet(ctx context.Context, input wallet.ContributeInput) (*wallet.ContributeResult, error)
}

// Service manages recurring contributions.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.RecurringContribution, error)
	List(ctx context.Context, userID uuid.UUID) ([]models.RecurringContribution, error)
	Cancel(ctx context.Context, userID, id uuid.UUID) error
	RunDue(ctx context.Context, now time.Time) (RunSummary, error)
}

// CreateInput schedules a contribution. StartAt defaults to now, so the first
// run happens on the next scheduler cycle.
type CreateInput struct {
	UserID   uuid.UUID
	GroupID  uuid.UUID
	Amount   decimal.Decimal
	Interval enums.RecurrenceInterval
	StartAt  *time.Time
}

// RunSummary reports one scheduler pass.
type RunSummary struct {
	Due       int `json:"due"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

type ServiceParams struct {
	Repo      Repository
	Groups    groupReader
	Wallet    walletContributor
	Outbox    outbox.Emitter
	Tx        txRunner
	Logger    *logger.Logger
	BatchSize int
}

type service struct {
	repo      Repository
	groups    groupReader
	wallet    walletContributor
	outbox    outbox.Emitter
	tx        txRunner
	logg      *logger.Logger
	batchSize int
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "recurring repository required")
	}
	if params.Groups == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "group reader required")
	}
	if params.Wallet == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "wallet service required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &service{
		repo:      params.Repo,
		groups:    params.Groups,
		wallet:    params.Wallet,
		outbox:    params.Outbox,
		tx:        params.Tx,
		logg:      params.Logger,
		batchSize: batch,
		now:       time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.RecurringContribution, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if _, err := enums.ParseRecurrenceInterval(string(input.Interval)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid interval")
	}
	group, err := s.groups.Get(ctx, input.GroupID)
	if err != nil {
		return nil, err
	}
	if group.Status != enums.GroupStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "group is not accepting contributions")
	}

	next := s.now().UTC()
	if input.StartAt != nil && input.StartAt.After(next) {
		next = input.StartAt.UTC()
	}
	rc := &models.RecurringContribution{
		UserID:    input.UserID,
		GroupID:   group.ID,
		Amount:    input.Amount.Round(2),
		Interval:  input.Interval,
		NextRunAt: next,
		Active:    true,
	}
	if err := s.repo.Create(ctx, rc); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create recurring contribution")
	}
	return rc, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID) ([]models.RecurringContribution, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	rows, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list recurring contributions")
	}
	return rows, nil
}

// Cancel stops future runs. Other users' schedules read as not found.
func (s *service) Cancel(ctx context.Context, userID, id uuid.UUID) error {
	rc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load recurring contribution")
	}
	if rc == nil || rc.UserID != userID {
		return pkgerrors.New(pkgerrors.CodeNotFound, "recurring contribution not found")
	}
	if !rc.Active {
		return nil
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel recurring contribution")
	}
	return nil
}

// RunDue charges every due schedule once. Business failures such as an empty
// wallet are recorded on the row and the schedule still advances. Infra
// failures leave the row due for the next pass.
func (s *service) RunDue(ctx context.Context, now time.Time) (RunSummary, error) {
	now = now.UTC()
	rows, err := s.repo.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return RunSummary{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list due recurring contributions")
	}

	summary := RunSummary{Due: len(rows)}
	var errs error
	for i := range rows {
		ok, err := s.runOne(ctx, &rows[i], now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("recurring %s: %w", rows[i].ID, err))
			continue
		}
		if ok {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	return summary, errs
}

func (s *service) runOne(ctx context.Context, rc *models.RecurringContribution, now time.Time) (bool, error) {
	reference := RunReference(rc.ID, rc.NextRunAt)
	_, runErr := s.wallet.ContributeFromWallet(ctx, wallet.ContributeInput{
		UserID:    rc.UserID,
		GroupID:   rc.GroupID,
		Amount:    rc.Amount,
		Reference: reference,
	})
	if errors.Is(runErr, ledger.ErrDuplicateReference) {
		// this run already went through on an earlier pass
		runErr = nil
	}
	if runErr != nil && !isBusinessFailure(runErr) {
		return false, runErr
	}

	run := runUpdate{
		NextRunAt:    NextRun(rc.NextRunAt, rc.Interval, now),
		LastRunAt:    now,
		FailureCount: rc.FailureCount,
	}
	if runErr != nil {
		msg := runErr.Error()
		run.LastError = &msg
		run.FailureCount++
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).RecordRun(ctx, rc.ID, run); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record recurring run")
		}
		if runErr == nil {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRecurringFailed,
			AggregateType: enums.AggregateRecurring,
			AggregateID:   rc.ID,
			Data: payloads.RecurringContributionFailedEvent{
				RecurringID: rc.ID,
				UserID:      rc.UserID,
				GroupID:     rc.GroupID,
				Amount:      rc.Amount,
				Reason:      *run.LastError,
			},
		})
	})
	if err != nil {
		return false, err
	}

	if runErr != nil && s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"recurring_id":  rc.ID.String(),
			"group_id":      rc.GroupID.String(),
			"failure_count": run.FailureCount,
		})
		s.logg.Warn(logCtx, "recurring contribution failed: "+*run.LastError)
	}
	return runErr == nil, nil
}

// RunReference is the ledger idempotency key for one scheduled run.
func RunReference(id uuid.UUID, scheduled time.Time) string {
	return fmt.Sprintf("recurring:%s:%s", id, scheduled.UTC().Format("2006-01-02"))
}

// NextRun steps from the scheduled time by interval until it lands after now,
// so a schedule that missed several cycles runs once and catches up.
func NextRun(scheduled time.Time, interval enums.RecurrenceInterval, now time.Time) time.Time {
	next := step(scheduled, interval)
	for !next.After(now) {
		next = step(next, interval)
	}
	return next
}

func step(t time.Time, interval enums.RecurrenceInterval) time.Time {
	switch interval {
	case enums.IntervalWeekly:
		return t.AddDate(0, 0, 7)
	case enums.IntervalMonthly:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

func isBusinessFailure(err error) bool {
	typed := pkgerrors.As(err)
	if typed == nil {
		return false
	}
	switch typed.Code() {
	case pkgerrors.CodeInsufficient,
		pkgerrors.CodeValidation,
		pkgerrors.CodeNotFound,
		pkgerrors.CodeStateConflict:
		return true
	}
	return false
}
