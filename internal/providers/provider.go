package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/angelmondragon/smm-storefront/pkg/db/models"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
)

const (
	defaultTimeout     = 15 * time.Second
	responseReadLimit  = 1 << 20
	errorBodyReadLimit = 1024
	userAgent          = "smm-storefront/1.0"
)

// Provider is the capability set every fulfillment panel adapter offers.
type Provider interface {
	CreateOrder(ctx context.Context, serviceID, link string, quantity int) (CreateResult, error)
	GetStatus(ctx context.Context, externalID string) (StatusResult, error)
	GetBalance(ctx context.Context) (Balance, error)
	ListServices(ctx context.Context) ([]RemoteService, error)
}

// CreateResult carries the provider's order id and the raw response body.
type CreateResult struct {
	ExternalID string
	Raw        json.RawMessage
}

// StatusResult is the provider's view of an order. Status is the provider's
// own string; StartCount and Remains are nil when the provider omits them.
type StatusResult struct {
	Status     string
	StartCount *int
	Remains    *int
	Raw        json.RawMessage
}

type Balance struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type RemoteService struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Category string          `json:"category,omitempty"`
	Type     string          `json:"type,omitempty"`
	Rate     decimal.Decimal `json:"rate"`
	Min      int             `json:"min"`
	Max      int             `json:"max"`
}

// Option configures the adapters built by a Registry.
type Option func(*Registry)

// WithHTTPClient overrides the traced default client.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Registry) {
		if client != nil {
			r.httpClient = client
		}
	}
}

// Registry builds provider adapters by kind over one shared HTTP client.
type Registry struct {
	httpClient *http.Client
	logg       *logger.Logger
}

// NewRegistry returns a registry whose outbound calls are traced with
// otelhttp and bounded by timeout.
func NewRegistry(timeout time.Duration, logg *logger.Logger, opts ...Option) *Registry {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logg == nil {
		logg = logger.Nop()
	}
	r := &Registry{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logg: logg,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// For returns the adapter for provider. Unknown kinds and missing
// endpoints are configuration errors.
func (r *Registry) For(provider models.Provider) (Provider, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(provider.BaseURL), "/")
	if baseURL == "" {
		return nil, pkgerrors.Newf(pkgerrors.CodeConfiguration, "provider %d has no base url", provider.ID)
	}
	if strings.TrimSpace(provider.APIKey) == "" {
		return nil, pkgerrors.Newf(pkgerrors.CodeConfiguration, "provider %d has no api key", provider.ID)
	}
	base := transport{
		httpClient: r.httpClient,
		baseURL:    baseURL,
		apiKey:     provider.APIKey,
		name:       provider.Name,
		logg:       r.logg,
	}
	switch provider.Kind {
	case enums.ProviderKindPerfectPanel:
		return &perfectPanel{transport: base}, nil
	case enums.ProviderKindJSONAPI:
		return &jsonAPI{transport: base}, nil
	default:
		return nil, pkgerrors.Newf(pkgerrors.CodeConfiguration, "unsupported provider kind %q", provider.Kind)
	}
}

// transport is the HTTP plumbing shared by the adapters.
type transport struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	name       string
	logg       *logger.Logger
}

func (t transport) url(path string) string {
	if path == "" {
		return t.baseURL
	}
	return t.baseURL + "/" + strings.TrimLeft(path, "/")
}

// do executes req and returns the body of a 2xx response.
func (t transport) do(req *http.Request, op string) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	ctx := t.logg.WithFields(req.Context(), map[string]any{
		"provider":  t.name,
		"operation": op,
	})
	started := time.Now()
	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.logg.Warn(t.logg.WithField(ctx, "error", err.Error()), "provider request failed")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("provider %s request failed", op))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		cause := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		t.logg.Warn(t.logg.WithField(ctx, "status", resp.StatusCode), "provider returned error status")
		return nil, pkgerrors.Wrap(codeForStatus(resp.StatusCode), cause, fmt.Sprintf("provider %s failed", op))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("read provider %s response", op))
	}
	t.logg.Info(t.logg.WithField(ctx, "duration_ms", time.Since(started).Milliseconds()), "provider response")
	return body, nil
}

func (t transport) doJSON(ctx context.Context, method, path string, payload any, op string, headers map[string]string) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode provider request")
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.url(path), body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfiguration, err, "build provider request")
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return t.do(req, op)
}

func codeForStatus(status int) pkgerrors.Code {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return pkgerrors.CodeConfiguration
	case status == http.StatusTooManyRequests, status >= 500:
		return pkgerrors.CodeDependency
	default:
		return pkgerrors.CodeValidation
	}
}

// looseNumber accepts a JSON number or a numeric string. Panels disagree
// on which they send.
type looseNumber string

func (n *looseNumber) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*n = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*n = looseNumber(strings.TrimSpace(s))
		return nil
	}
	*n = looseNumber(trimmed)
	return nil
}

func (n looseNumber) String() string { return string(n) }

// Int returns nil when the value is absent or not an integer.
func (n looseNumber) Int() *int {
	if n == "" {
		return nil
	}
	if v, err := strconv.Atoi(string(n)); err == nil {
		return &v
	}
	d, err := decimal.NewFromString(string(n))
	if err != nil {
		return nil
	}
	v := int(d.IntPart())
	return &v
}

func (n looseNumber) Decimal() decimal.Decimal {
	d, err := decimal.NewFromString(string(n))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func intOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
