package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/kolo-backend/pkg/logger"
)

type requestExpirer interface {
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)
}

type RequestExpiryJobParams struct {
	Logger      *logger.Logger
	Withdrawals requestExpirer
	Refunds     requestExpirer
}

// NewRequestExpiryJob rejects pending withdrawal and refund requests whose
// voting deadline has passed.
func NewRequestExpiryJob(params RequestExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Withdrawals == nil {
		return nil, fmt.Errorf("withdrawal service required")
	}
	if params.Refunds == nil {
		return nil, fmt.Errorf("refund service required")
	}
	return &requestExpiryJob{
		logg:        params.Logger,
		withdrawals: params.Withdrawals,
		refunds:     params.Refunds,
		now:         time.Now,
	}, nil
}

type requestExpiryJob struct {
	logg        *logger.Logger
	withdrawals requestExpirer
	refunds     requestExpirer
	now         func() time.Time
}

func (j *requestExpiryJob) Name() string { return "request-expiry" }

func (j *requestExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var errs error

	withdrawals, err := j.withdrawals.ExpireOverdue(ctx, now)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("expire withdrawals: %w", err))
	}
	refunds, err := j.refunds.ExpireOverdue(ctx, now)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("expire refunds: %w", err))
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"withdrawals_expired": withdrawals,
		"refunds_expired":     refunds,
	})
	j.logg.Info(logCtx, "request expiry complete")
	return errs
}
