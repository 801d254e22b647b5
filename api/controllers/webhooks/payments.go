package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/smm-storefront/api/responses"
	internalwebhooks "github.com/angelmondragon/smm-storefront/internal/webhooks"
	squarewebhook "github.com/angelmondragon/smm-storefront/internal/webhooks/square"
	stripewebhook "github.com/angelmondragon/smm-storefront/internal/webhooks/stripe"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
)

// maxWebhookBody bounds what a provider can make us buffer.
const maxWebhookBody = 1 << 20

// PaymentWebhookService verifies a provider notification and applies it. It
// owns the replay guard, so a redelivered event is acknowledged without
// touching state.
type PaymentWebhookService interface {
	ConfirmWebhook(ctx context.Context, provider enums.PaymentProvider, payload []byte, signature string) (internalwebhooks.Event, error)
}

// StripeWebhook confirms payment_intent.succeeded / payment_failed events.
func StripeWebhook(svc PaymentWebhookService, logg *logger.Logger) http.HandlerFunc {
	return paymentWebhook(svc, enums.PaymentProviderStripe, stripewebhook.SignatureHeader, logg)
}

// SquareWebhook confirms payment.created / payment.updated events.
func SquareWebhook(svc PaymentWebhookService, logg *logger.Logger) http.HandlerFunc {
	return paymentWebhook(svc, enums.PaymentProviderSquare, squarewebhook.SignatureHeader, logg)
}

func paymentWebhook(svc PaymentWebhookService, provider enums.PaymentProvider, signatureHeader string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get(signatureHeader)
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.Newf(pkgerrors.CodeValidation, "%s signature missing", provider))
			return
		}

		event, err := svc.ConfirmWebhook(ctx, provider, payload, sigHeader)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"provider":   string(provider),
				"event_id":   event.ID,
				"event_type": event.Type,
				"outcome":    string(event.Outcome),
			})
			logg.Info(ctx, "payment webhook processed")
		}
		responses.WriteSuccess(w, map[string]bool{"received": true})
	}
}
