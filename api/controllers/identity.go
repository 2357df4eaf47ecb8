package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/kolo-backend/api/middleware"
	"github.com/angelmondragon/kolo-backend/api/validators"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kolo-backend/pkg/errors"
)

type actor struct {
	ID   uuid.UUID
	Role enums.UserRole
}

func requireActor(r *http.Request) (actor, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user identity")
	}
	role := middleware.RoleFromContext(r.Context())
	if !role.IsValid() {
		role = enums.UserRoleUser
	}
	return actor{ID: id, Role: role}, nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	return validators.ParseUUID(chi.URLParam(r, name), name)
}
