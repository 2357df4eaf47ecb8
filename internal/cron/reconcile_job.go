package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/kolo-backend/internal/groups"
	"github.com/angelmondragon/kolo-backend/pkg/logger"
)

type groupReconciler interface {
	ReconcileAll(ctx context.Context) (groups.ReconcileSummary, error)
}

type ReconcileJobParams struct {
	Logger *logger.Logger
	Groups groupReconciler
}

// NewReconcileJob recomputes every group balance from the ledger.
func NewReconcileJob(params ReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Groups == nil {
		return nil, fmt.Errorf("group service required")
	}
	return &reconcileJob{logg: params.Logger, groups: params.Groups}, nil
}

type reconcileJob struct {
	logg   *logger.Logger
	groups groupReconciler
}

func (j *reconcileJob) Name() string { return "group-reconcile" }

func (j *reconcileJob) Run(ctx context.Context) error {
	summary, err := j.groups.ReconcileAll(ctx)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"groups_checked":   summary.Checked,
		"groups_corrected": summary.Corrected,
		"groups_failed":    summary.Failed,
	})
	if err != nil {
		return fmt.Errorf("group reconcile: %w", err)
	}
	j.logg.Info(logCtx, "group reconcile complete")
	return nil
}
