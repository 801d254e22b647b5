package middleware

import (
	"net/http"

	"github.com/angelmondragon/smm-storefront/api/responses"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
)

// RequireRole admits requests whose token carries role. It must run after
// Auth: a request with no actor at all is unauthorized, a request from a
// different role is forbidden.
func RequireRole(role string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if ActorFromContext(ctx) == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
				return
			}
			if got := RoleFromContext(ctx); got != role {
				if logg != nil {
					ctx = logg.WithFields(ctx, map[string]any{"actor_role": got, "required_role": role})
				}
				responses.WriteError(ctx, logg, w, pkgerrors.Newf(pkgerrors.CodeForbidden, "%s role required", role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
