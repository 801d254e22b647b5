package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/smm-storefront/pkg/config"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
)

// Mode is the Stripe account mode a key belongs to.
type Mode string

const (
	ModeTest Mode = "test"
	ModeLive Mode = "live"
)

// DefaultTimeout bounds one HTTP round trip when the caller passes none.
const DefaultTimeout = 20 * time.Second

var (
	errAPIKeyRequired = errors.New("stripe api key is required")
	errSecretRequired = errors.New("stripe webhook secret is required")
)

// Client carries the Stripe API client and the webhook signing secret used
// by the payment gateway.
type Client struct {
	api           *stripe.Client
	mode          Mode
	signingSecret string
	timeout       time.Duration
}

// Check explains why cfg cannot back a live gateway, or returns nil. Keys
// must match the configured mode, so placeholders and mixed test/live
// setups are rejected.
func Check(cfg config.StripeConfig) error {
	mode, err := parseMode(cfg.Environment())
	if err != nil {
		return err
	}
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return errAPIKeyRequired
	}
	if strings.TrimSpace(cfg.Secret) == "" {
		return errSecretRequired
	}
	return checkKey(mode, key)
}

// Configured reports whether Check passes.
func Configured(cfg config.StripeConfig) bool {
	return Check(cfg) == nil
}

// NewClient validates cfg and builds the API client. Every request goes
// through an http.Client bounded by timeout.
func NewClient(ctx context.Context, cfg config.StripeConfig, timeout time.Duration, logg *logger.Logger) (*Client, error) {
	if err := Check(cfg); err != nil {
		return nil, err
	}
	mode, _ := parseMode(cfg.Environment())
	key := strings.TrimSpace(cfg.APIKey)
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	stripe.SetAppInfo(&stripe.AppInfo{Name: "smm-storefront"})
	backends := stripe.NewBackendsWithConfig(&stripe.BackendConfig{
		HTTPClient: &http.Client{Timeout: timeout},
	})
	client := &Client{
		api:           stripe.NewClient(key, stripe.WithBackends(backends)),
		mode:          mode,
		signingSecret: strings.TrimSpace(cfg.Secret),
		timeout:       timeout,
	}

	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{
			"stripe_mode":    string(mode),
			"stripe_key":     RedactKey(key),
			"stripe_timeout": timeout.String(),
		})
		logg.Info(ctx, "stripe client initialized")
	}
	return client, nil
}

func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

// Timeout is the per-request bound applied to the HTTP client.
func (c *Client) Timeout() time.Duration {
	if c == nil {
		return 0
	}
	return c.timeout
}

func (c *Client) Mode() Mode {
	if c == nil {
		return ""
	}
	return c.mode
}

// IsLive reports whether charges hit real cards.
func (c *Client) IsLive() bool { return c.Mode() == ModeLive }

func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// RedactKey keeps the key prefix and last four characters for logs.
func RedactKey(key string) string {
	key = strings.TrimSpace(key)
	if len(key) <= 12 {
		return "****"
	}
	prefix := ""
	if i := strings.LastIndex(key[:len(key)-4], "_"); i > 0 {
		prefix = key[:i+1]
	}
	return prefix + "****" + key[len(key)-4:]
}

func parseMode(raw string) (Mode, error) {
	switch Mode(strings.TrimSpace(strings.ToLower(raw))) {
	case "", ModeTest:
		return ModeTest, nil
	case ModeLive:
		return ModeLive, nil
	default:
		return "", fmt.Errorf("stripe environment must be %q or %q", ModeTest, ModeLive)
	}
}

func checkKey(mode Mode, key string) error {
	for _, kind := range []string{"sk_", "rk_"} {
		if strings.HasPrefix(key, kind+string(mode)+"_") {
			return nil
		}
	}
	return fmt.Errorf("stripe %s mode requires an sk_%s or rk_%s key", mode, mode, mode)
}
