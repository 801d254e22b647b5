package payments

import (
	"context"
	"strings"

	"github.com/angelmondragon/smm-storefront/pkg/config"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
	pkgsquare "github.com/angelmondragon/smm-storefront/pkg/square"
	pkgstripe "github.com/angelmondragon/smm-storefront/pkg/stripe"
)

// Selection is the gateway new intents go to plus every gateway this
// process can refund or verify webhooks for.
type Selection struct {
	Active   Gateway
	Registry *Registry
}

// Select builds the configured gateways at startup. Square wins when
// SMM_PAYMENTS_PROVIDER=square and it is configured; otherwise Stripe when
// its key matches the environment; otherwise demo. Missing or placeholder
// credentials fall back silently with a warning.
func Select(ctx context.Context, cfg *config.Config, logg *logger.Logger) Selection {
	var stripeGW, squareGW Gateway

	if err := pkgstripe.Check(cfg.Stripe); err == nil {
		client, err := pkgstripe.NewClient(ctx, cfg.Stripe, cfg.Payments.Timeout, logg)
		if err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "stripe client unavailable")
		} else {
			stripeGW = NewStripeGateway(client, cfg.Payments.Timeout)
		}
	} else if strings.TrimSpace(cfg.Stripe.APIKey) != "" {
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "stripe credentials rejected; ignoring")
	}

	if pkgsquare.Configured(cfg.Square) {
		client, err := pkgsquare.NewClient(ctx, cfg.Square, cfg.Payments.Timeout, logg)
		if err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "square client unavailable")
		} else {
			squareGW = NewSquareGateway(client, cfg.Payments.Timeout)
		}
	}

	demo := NewDemoGateway()
	selection := Selection{Registry: NewRegistry(stripeGW, squareGW, demo)}
	preferSquare := strings.EqualFold(strings.TrimSpace(cfg.Payments.Provider), string(enums.PaymentProviderSquare))
	switch {
	case preferSquare && squareGW != nil:
		selection.Active = squareGW
	case stripeGW != nil:
		selection.Active = stripeGW
	default:
		if preferSquare || strings.TrimSpace(cfg.Stripe.APIKey) != "" {
			logg.Warn(ctx, "configured payment provider unavailable; using demo payments")
		}
		selection.Active = demo
	}

	logg.Info(logg.WithField(ctx, "payment_provider", selection.Active.Name()), "payment gateway selected")
	return selection
}
