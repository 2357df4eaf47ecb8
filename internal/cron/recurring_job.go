package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/kolo-backend/internal/recurring"
	"github.com/angelmondragon/kolo-backend/pkg/logger"
)

type recurringRunner interface {
	RunDue(ctx context.Context, now time.Time) (recurring.RunSummary, error)
}

type RecurringJobParams struct {
	Logger    *logger.Logger
	Recurring recurringRunner
}

// NewRecurringJob charges scheduled contributions that have fallen due.
func NewRecurringJob(params RecurringJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Recurring == nil {
		return nil, fmt.Errorf("recurring service required")
	}
	return &recurringJob{logg: params.Logger, runner: params.Recurring, now: time.Now}, nil
}

type recurringJob struct {
	logg   *logger.Logger
	runner recurringRunner
	now    func() time.Time
}

func (j *recurringJob) Name() string { return "recurring-contributions" }

func (j *recurringJob) Run(ctx context.Context) error {
	summary, err := j.runner.RunDue(ctx, j.now().UTC())
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"due":       summary.Due,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
	})
	if err != nil {
		return fmt.Errorf("recurring contributions: %w", err)
	}
	j.logg.Info(logCtx, "recurring contributions complete")
	return nil
}
