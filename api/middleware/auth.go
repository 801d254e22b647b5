package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/smm-storefront/api/responses"
	pkgAuth "github.com/angelmondragon/smm-storefront/pkg/auth"
	"github.com/angelmondragon/smm-storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
)

// Auth validates an admin bearer token and seeds the request context with
// the token's subject and role.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			if claims.Actor() == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "token subject missing"))
				return
			}

			ctx := context.WithValue(r.Context(), ctxActor, claims.Actor())
			ctx = context.WithValue(ctx, ctxRole, claims.Role)

			if logg != nil {
				ctx = logg.WithActor(ctx, claims.Actor())
				ctx = logg.WithField(ctx, "actor_role", claims.Role)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
