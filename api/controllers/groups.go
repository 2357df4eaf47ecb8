package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/kolo-backend/api/responses"
	"github.com/angelmondragon/kolo-backend/api/validators"
	"github.com/angelmondragon/kolo-backend/internal/groups"
	pkgerrors "github.com/angelmondragon/kolo-backend/pkg/errors"
	"github.com/angelmondragon/kolo-backend/pkg/logger"
)

type createGroupRequest struct {
	Name            string          `json:"name" validate:"required,min=3,max=120"`
	Description     *string         `json:"description" validate:"omitempty,max=2000"`
	TargetAmount    decimal.Decimal `json:"target_amount" validate:"money"`
	VotingThreshold int             `json:"voting_threshold" validate:"min=0,max=1000"`
}

// CreateGroup opens a contribution group owned by the caller.
func CreateGroup(svc groups.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "groups service unavailable"))
			return
		}
		caller, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createGroupRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		group, err := svc.Create(r.Context(), groups.CreateGroupInput{
			CreatorID:       caller.ID,
			Name:            validators.SanitizeString(body.Name, 120),
			Description:     validators.SanitizeOptional(body.Description, 2000),
			TargetAmount:    body.TargetAmount,
			VotingThreshold: body.VotingThreshold,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, group)
	}
}

// ListGroups pages through groups the caller created or contributed to.
func ListGroups(svc groups.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "groups service unavailable"))
			return
		}
		caller, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), caller.ID, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// GetGroup returns a single group.
func GetGroup(svc groups.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "groups service unavailable"))
			return
		}
		if _, err := requireActor(r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		groupID, err := uuidParam(r, "groupId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		group, err := svc.Get(r.Context(), groupID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, group)
	}
}

// SyncGroup recomputes the stored balance from the ledger.
func SyncGroup(svc groups.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "groups service unavailable"))
			return
		}
		if _, err := requireActor(r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		groupID, err := uuidParam(r, "groupId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.SyncContributionData(r.Context(), groupID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if result.Updated && logg != nil {
			ctx := logg.WithFields(r.Context(), map[string]any{
				"group_id": groupID.String(),
				"stored":   result.Stored.String(),
				"computed": result.Computed.String(),
			})
			logg.Warn(ctx, "group balance corrected on demand")
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminReconcileGroups runs the reconciliation sweep immediately.
func AdminReconcileGroups(svc groups.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "groups service unavailable"))
			return
		}
		summary, err := svc.ReconcileAll(r.Context())
		if err != nil && summary.Checked == 0 {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err != nil && logg != nil {
			logg.Error(r.Context(), "reconcile sweep finished with failures", err)
		}
		responses.WriteSuccess(w, summary)
	}
}
