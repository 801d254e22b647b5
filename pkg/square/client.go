package square

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/smm-storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"
)

// DefaultTimeout bounds one HTTP round trip when the caller passes none.
const DefaultTimeout = 20 * time.Second

var (
	errAccessTokenRequired   = errors.New("square access token is required")
	errWebhookSecretRequired = errors.New("square webhook secret is required")
	errLocationRequired      = errors.New("square location id is required")
	errInvalidSquareEnv      = fmt.Errorf("square environment must be %q or %q", sandboxEnv, productionEnv)
	errLoggerRequired        = errors.New("square logger is required")
)

var baseURLs = map[string]string{
	sandboxEnv:    "https://connect.squareupsandbox.com",
	productionEnv: "https://connect.squareup.com",
}

// Client exposes Square primitives with centralized auth, logging, idempotency, and error mapping.
type Client struct {
	sdk           *sqclient.Client
	environment   string
	webhookSecret string
	locationID    string
	timeout       time.Duration
	logger        *logger.Logger
}

// Configured reports whether cfg carries enough to talk to Square.
func Configured(cfg config.SquareConfig) bool {
	return strings.TrimSpace(cfg.AccessToken) != "" &&
		strings.TrimSpace(cfg.WebhookSecret) != "" &&
		strings.TrimSpace(cfg.LocationID) != ""
}

// NewClient initializes the Square wrapper and validates the credentials.
// The SDK's HTTP client is bounded by timeout.
func NewClient(ctx context.Context, cfg config.SquareConfig, timeout time.Duration, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	accessToken := strings.TrimSpace(cfg.AccessToken)
	if accessToken == "" {
		return nil, errAccessTokenRequired
	}
	webhookSecret := strings.TrimSpace(cfg.WebhookSecret)
	if webhookSecret == "" {
		return nil, errWebhookSecretRequired
	}
	locationID := strings.TrimSpace(cfg.LocationID)
	if locationID == "" {
		return nil, errLocationRequired
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	sdk := sqclient.NewClient(
		sqoption.WithBaseURL(baseURLs[env]),
		sqoption.WithToken(accessToken),
		sqoption.WithHTTPClient(&http.Client{Timeout: timeout}),
	)

	logg.Info(logg.WithField(ctx, "square_timeout", timeout.String()), fmt.Sprintf("square client initialized (%s)", env))
	return &Client{
		sdk:           sdk,
		environment:   env,
		webhookSecret: webhookSecret,
		locationID:    locationID,
		timeout:       timeout,
		logger:        logg,
	}, nil
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// Timeout is the per-request bound applied to the SDK's HTTP client.
func (c *Client) Timeout() time.Duration {
	if c == nil {
		return 0
	}
	return c.timeout
}

func (c *Client) LocationID() string {
	if c == nil {
		return ""
	}
	return c.locationID
}

// NewIdempotencyKey returns a unique key for Square operations.
func (c *Client) NewIdempotencyKey(prefix string) string {
	key := strings.TrimSpace(prefix)
	if key == "" {
		key = "smm"
	}
	return fmt.Sprintf("%s-%s", key, uuid.NewString())
}

// WebhookSecret returns the signature key for webhook notifications.
func (c *Client) WebhookSecret() string {
	if c == nil {
		return ""
	}
	return c.webhookSecret
}

// VerifySignature checks the hex HMAC-SHA256 of payload against the
// Square-Signature header value.
func (c *Client) VerifySignature(payload []byte, header string) bool {
	if c == nil {
		return false
	}
	return ValidSignature(payload, c.webhookSecret, header)
}

// ValidSignature is the stateless form of VerifySignature.
func ValidSignature(payload []byte, secret, header string) bool {
	if header == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(header)))
}

// CreatePayment charges a tokenized card source.
func (c *Client) CreatePayment(ctx context.Context, params PaymentCreateParams) (*sq.Payment, error) {
	if strings.TrimSpace(params.LocationID) == "" {
		params.LocationID = c.locationID
	}
	req := params.toSquareRequest(c.ensureIdempotencyKey("payment.create", params.IdempotencyKey))
	c.log(ctx, "request", "create_payment", map[string]any{
		"location_id":  params.LocationID,
		"reference_id": params.ReferenceID,
		"amount":       params.AmountCents,
		"source_token": params.SourceID,
	})

	resp, err := c.sdk.Payments.Create(ctx, req)
	if err != nil {
		c.log(ctx, "error", "create_payment", map[string]any{"error": err.Error()})
		return nil, c.mapSquareError(err, "create payment")
	}

	payment := resp.GetPayment()
	c.log(ctx, "response", "create_payment", map[string]any{
		"payment_id": stringValue(payment.GetID()),
		"status":     stringValue(payment.GetStatus()),
	})
	return payment, nil
}

func (c *Client) GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error) {
	c.log(ctx, "request", "get_payment", map[string]any{"payment_id": paymentID})

	resp, err := c.sdk.Payments.Get(ctx, &sq.GetPaymentsRequest{PaymentID: paymentID})
	if err != nil {
		c.log(ctx, "error", "get_payment", map[string]any{"error": err.Error()})
		return nil, c.mapSquareError(err, "get payment")
	}

	payment := resp.GetPayment()
	c.log(ctx, "response", "get_payment", map[string]any{
		"payment_id": stringValue(payment.GetID()),
		"status":     stringValue(payment.GetStatus()),
	})
	return payment, nil
}

// RefundPayment refunds a completed payment. Square reports the refund as
// PENDING or COMPLETED on success and REJECTED or FAILED on decline.
func (c *Client) RefundPayment(ctx context.Context, params RefundParams) (*sq.PaymentRefund, error) {
	req := params.toSquareRequest(c.ensureIdempotencyKey("refund.create", params.IdempotencyKey))
	c.log(ctx, "request", "refund_payment", map[string]any{
		"payment_id": params.PaymentID,
		"amount":     params.AmountCents,
	})

	resp, err := c.sdk.Refunds.RefundPayment(ctx, req)
	if err != nil {
		c.log(ctx, "error", "refund_payment", map[string]any{"error": err.Error()})
		return nil, c.mapSquareError(err, "refund payment")
	}

	refund := resp.GetRefund()
	c.log(ctx, "response", "refund_payment", map[string]any{
		"refund_id": refund.GetID(),
		"status":    stringValue(refund.GetStatus()),
	})
	return refund, nil
}

func (c *Client) ensureIdempotencyKey(prefix, provided string) string {
	if strings.TrimSpace(provided) != "" {
		return provided
	}
	return c.NewIdempotencyKey(prefix)
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("square %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("square %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"card", "nonce", "token", "cvv", "cvc", "secret", "email", "phone"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func (c *Client) mapSquareError(err error, op string) error {
	if err == nil {
		return nil
	}
	var apiErr *sqcore.APIError
	if errors.As(err, &apiErr) {
		code := domainCodeForStatus(apiErr.StatusCode)
		for _, sqErr := range extractSquareErrors(apiErr) {
			if sqErr == nil {
				continue
			}
			if sqErr.Code == sq.ErrorCodeIdempotencyKeyReused {
				code = pkgerrors.CodeIdempotency
				break
			}
			if sqErr.Category == sq.ErrorCategoryAuthenticationError {
				code = pkgerrors.CodeUnauthorized
				break
			}
		}
		return pkgerrors.Wrap(code, err, fmt.Sprintf("square %s failed", op))
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("square %s failed", op))
}

func extractSquareErrors(apiErr *sqcore.APIError) []*sq.Error {
	if apiErr == nil {
		return nil
	}
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	raw := strings.TrimSpace(inner.Error())
	if raw == "" {
		return nil
	}
	var payload struct {
		Errors []*sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil
	}
	return payload.Errors
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case http.StatusBadRequest, http.StatusPaymentRequired:
		return pkgerrors.CodeValidation
	case http.StatusUnprocessableEntity:
		return pkgerrors.CodeStateConflict
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeValidation
		}
		return pkgerrors.CodeDependency
	}
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = sandboxEnv
	}
	switch env {
	case sandboxEnv, productionEnv:
		return env, nil
	default:
		return "", errInvalidSquareEnv
	}
}
