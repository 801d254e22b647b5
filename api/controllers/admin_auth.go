package controllers

import (
	"net/http"

	"github.com/angelmondragon/smm-storefront/api/responses"
	"github.com/angelmondragon/smm-storefront/api/validators"
	"github.com/angelmondragon/smm-storefront/internal/auth"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
)

// AdminLogin handles POST /api/admin/login.
func AdminLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}
		var payload auth.LoginRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp, err := svc.Login(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}
