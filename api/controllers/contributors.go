package controllers

import (
	"net/http"

	"github.com/angelmondragon/kolo-backend/api/responses"
	"github.com/angelmondragon/kolo-backend/internal/contributors"
	pkgerrors "github.com/angelmondragon/kolo-backend/pkg/errors"
	"github.com/angelmondragon/kolo-backend/pkg/logger"
)

// ListContributors returns the group's contributor rows.
func ListContributors(svc contributors.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "contributors service unavailable"))
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

		rows, err := svc.List(r.Context(), groupID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"contributors": rows})
	}
}

// GrantVotingRights promotes a contributor. Only the group creator or a
// platform admin may call it.
func GrantVotingRights(svc contributors.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "contributors service unavailable"))
			return
		}
		caller, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		groupID, err := uuidParam(r, "groupId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		contributorID, err := uuidParam(r, "contributorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		row, err := svc.GrantVotingRights(r.Context(), contributors.GrantVotingRightsInput{
			GroupID:       groupID,
			ContributorID: contributorID,
			ActorID:       caller.ID,
			ActorRole:     caller.Role,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, row)
	}
}
