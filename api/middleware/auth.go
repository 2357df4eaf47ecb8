package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/angelmondragon/kolo-backend/api/responses"
	pkgAuth "github.com/angelmondragon/kolo-backend/pkg/auth"
	"github.com/angelmondragon/kolo-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/kolo-backend/pkg/errors"
	"github.com/angelmondragon/kolo-backend/pkg/logger"
)

// Auth admits requests carrying a provider-issued bearer token and seeds the
// context with the caller's id and platform role.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	verifier, verr := pkgAuth.NewVerifier(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, verr, "token verification unavailable"))
				return
			}
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := verifier.Verify(raw)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, pkgAuth.ErrTokenExpired) {
					msg = "token expired"
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, msg))
				return
			}

			// Verify already rejected unparsable subjects
			userID, _ := claims.UserID()
			role := claims.UserRole()
			ctx := WithRole(WithUserID(r.Context(), userID.String()), role)
			if logg != nil {
				ctx = logg.WithActorRole(logg.WithUserID(ctx, userID.String()), string(role))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken accepts only the Bearer scheme, case-insensitively.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
