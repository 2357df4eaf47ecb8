package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/kolo-backend/api/responses"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kolo-backend/pkg/errors"
	"github.com/angelmondragon/kolo-backend/pkg/logger"
)

// RequireRole admits callers whose platform role is one of roles. It must be
// mounted after Auth; a request with no caller gets 401, not 403.
func RequireRole(logg *logger.Logger, roles ...enums.UserRole) func(http.Handler) http.Handler {
	allowed := make(map[enums.UserRole]bool, len(roles))
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		allowed[role] = true
		names = append(names, string(role))
	}
	denied := "requires role " + strings.Join(names, " or ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := callerFrom(r.Context())
			switch {
			case c.userID == "" && c.role == "":
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			case !allowed[c.role]:
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, denied))
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
