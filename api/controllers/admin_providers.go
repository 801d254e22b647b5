package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/smm-storefront/api/responses"
	"github.com/angelmondragon/smm-storefront/api/validators"
	"github.com/angelmondragon/smm-storefront/internal/providers"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
)

// ProviderInspector reads live account data from a fulfillment provider.
type ProviderInspector interface {
	ProviderBalance(ctx context.Context, providerID uint64) (providers.Balance, error)
	ProviderServices(ctx context.Context, providerID uint64) ([]providers.RemoteService, error)
}

const providerIDParam = "providerId"

// AdminProviderBalance handles GET /admin/providers/{providerId}/balance.
func AdminProviderBalance(svc ProviderInspector, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dispatch service unavailable"))
			return
		}
		providerID, err := validators.ParseIDParam(r, providerIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := svc.ProviderBalance(r.Context(), providerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balance)
	}
}

// AdminProviderServices handles GET /admin/providers/{providerId}/services.
func AdminProviderServices(svc ProviderInspector, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dispatch service unavailable"))
			return
		}
		providerID, err := validators.ParseIDParam(r, providerIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		services, err := svc.ProviderServices(r.Context(), providerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if services == nil {
			services = []providers.RemoteService{}
		}
		responses.WriteSuccess(w, services)
	}
}
