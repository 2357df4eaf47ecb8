package groups

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/kolo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kolo-backend/pkg/errors"
)

// Epsilon is the drift tolerated between the stored and computed balance.
var Epsilon = decimal.NewFromFloat(0.01)

// SyncResult reports what a reconciliation pass observed and changed.
type SyncResult struct {
	GroupID  uuid.UUID         `json:"group_id"`
	Stored   decimal.Decimal   `json:"stored_amount"`
	Computed decimal.Decimal   `json:"computed_amount"`
	Status   enums.GroupStatus `json:"status"`
	Updated  bool              `json:"updated"`
}

// ReconcileSummary aggregates a sweep over every group.
type ReconcileSummary struct {
	Checked   int `json:"checked"`
	Corrected int `json:"corrected"`
	Failed    int `json:"failed"`
}

func (s *service) SyncContributionData(ctx context.Context, groupID uuid.UUID) (*SyncResult, error) {
	if groupID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "group id required")
	}
	var result *SyncResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.SyncTx(ctx, tx, groupID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SyncTx recomputes the group's balance inside the caller's transaction while
// holding the group row lock.
func (s *service) SyncTx(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) (*SyncResult, error) {
	return Sync(ctx, s.repo.WithTx(tx), groupID)
}

// Sync overwrites current_amount only when it drifts past Epsilon from
// contributions minus approved or executed payouts. A second call is a no-op.
func Sync(ctx context.Context, repo Repository, groupID uuid.UUID) (*SyncResult, error) {
	group, err := Lock(ctx, repo, groupID)
	if err != nil {
		return nil, err
	}
	totals, err := repo.Totals(ctx, groupID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum group totals")
	}

	computed := totals.Balance().Round(2)
	result := &SyncResult{
		GroupID:  groupID,
		Stored:   group.CurrentAmount,
		Computed: computed,
		Status:   group.Status,
	}

	current := group.CurrentAmount
	if computed.Sub(group.CurrentAmount).Abs().GreaterThan(Epsilon) {
		current = computed
	}
	status := StatusFor(current, group.TargetAmount)
	if current.Equal(group.CurrentAmount) && status == group.Status {
		return result, nil
	}

	if err := repo.UpdateProjection(ctx, groupID, current, status); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update group balance")
	}
	result.Status = status
	result.Updated = true
	return result, nil
}

// StatusFor derives the group status from its balance.
func StatusFor(current, target decimal.Decimal) enums.GroupStatus {
	if target.IsPositive() && current.GreaterThanOrEqual(target) {
		return enums.GroupStatusCompleted
	}
	return enums.GroupStatusActive
}

// ReconcileAll syncs every group on a bounded ants pool. One group failing
// does not stop the sweep; every failure is returned together.
func (s *service) ReconcileAll(ctx context.Context) (ReconcileSummary, error) {
	ids, err := s.repo.ListIDs(ctx)
	if err != nil {
		return ReconcileSummary{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list groups")
	}
	pool, err := ants.NewPool(s.sweepWorkers)
	if err != nil {
		return ReconcileSummary{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "start reconcile pool")
	}
	defer pool.Release()

	var t sweepTally
	var wg sync.WaitGroup
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			t.fail(err)
			break
		}
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			s.reconcileOne(ctx, id, &t)
		}); err != nil {
			wg.Done()
			t.fail(fmt.Errorf("schedule group %s: %w", id, err))
		}
	}
	wg.Wait()
	return t.summary, t.errs
}

func (s *service) reconcileOne(ctx context.Context, id uuid.UUID, t *sweepTally) {
	result, err := s.SyncContributionData(ctx, id)
	t.record(result, err)
	if err != nil || !result.Updated || s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(s.logg.WithGroupID(ctx, id.String()), map[string]any{
		"stored":   result.Stored.StringFixed(2),
		"computed": result.Computed.StringFixed(2),
	})
	s.logg.Warn(logCtx, "group balance drift corrected")
}

type sweepTally struct {
	mu      sync.Mutex
	summary ReconcileSummary
	errs    error
}

func (t *sweepTally) record(result *SyncResult, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary.Checked++
	switch {
	case err != nil:
		t.summary.Failed++
		t.errs = multierr.Append(t.errs, err)
	case result.Updated:
		t.summary.Corrected++
	}
}

func (t *sweepTally) fail(err error) {
	t.mu.Lock()
	t.errs = multierr.Append(t.errs, err)
	t.mu.Unlock()
}
