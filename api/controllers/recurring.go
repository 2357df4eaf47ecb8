package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/kolo-backend/api/responses"
	"github.com/angelmondragon/kolo-backend/api/validators"
	"github.com/angelmondragon/kolo-backend/internal/recurring"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kolo-backend/pkg/errors"
	"github.com/angelmondragon/kolo-backend/pkg/logger"
)

type createRecurringRequest struct {
	GroupID  string          `json:"group_id" validate:"required,uuid"`
	Amount   decimal.Decimal `json:"amount" validate:"money"`
	Interval string          `json:"interval" validate:"required,oneof=daily weekly monthly"`
	StartAt  *time.Time      `json:"start_at"`
}

// CreateRecurringContribution schedules wallet-funded contributions.
func CreateRecurringContribution(svc recurring.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "recurring service unavailable"))
			return
		}
		caller, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createRecurringRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		groupID, err := uuid.Parse(body.GroupID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid group_id"))
			return
		}
		interval, err := enums.ParseRecurrenceInterval(body.Interval)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid interval"))
			return
		}

		row, err := svc.Create(r.Context(), recurring.CreateInput{
			UserID:   caller.ID,
			GroupID:  groupID,
			Amount:   body.Amount,
			Interval: interval,
			StartAt:  body.StartAt,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, row)
	}
}

// ListRecurringContributions returns the caller's schedules.
func ListRecurringContributions(svc recurring.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "recurring service unavailable"))
			return
		}
		caller, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.List(r.Context(), caller.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"recurring_contributions": rows})
	}
}

// CancelRecurringContribution deactivates one of the caller's schedules.
func CancelRecurringContribution(svc recurring.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "recurring service unavailable"))
			return
		}
		caller, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := uuidParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Cancel(r.Context(), caller.ID, id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"cancelled": true})
	}
}
