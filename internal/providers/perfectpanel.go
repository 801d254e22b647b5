package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
)

// perfectPanel speaks the common SMM panel API v2: every call is a form
// POST to the base url carrying key and action.
type perfectPanel struct {
	transport
}

type panelError struct {
	Error string `json:"error"`
}

func (p *perfectPanel) call(ctx context.Context, action string, values url.Values) ([]byte, error) {
	if values == nil {
		values = url.Values{}
	}
	values.Set("key", p.apiKey)
	values.Set("action", action)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfiguration, err, "build provider request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	body, err := p.do(req, action)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "{") {
		var perr panelError
		if json.Unmarshal(body, &perr) == nil && perr.Error != "" {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "provider rejected %s: %s", action, perr.Error)
		}
	}
	return body, nil
}

func (p *perfectPanel) CreateOrder(ctx context.Context, serviceID, link string, quantity int) (CreateResult, error) {
	values := url.Values{}
	values.Set("service", serviceID)
	values.Set("link", link)
	values.Set("quantity", strconv.Itoa(quantity))

	body, err := p.call(ctx, "add", values)
	if err != nil {
		return CreateResult{}, err
	}
	var resp struct {
		Order looseNumber `json:"order"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return CreateResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode provider order response")
	}
	if resp.Order == "" {
		return CreateResult{}, pkgerrors.New(pkgerrors.CodeDependency, "provider response missing order id")
	}
	return CreateResult{ExternalID: resp.Order.String(), Raw: json.RawMessage(body)}, nil
}

func (p *perfectPanel) GetStatus(ctx context.Context, externalID string) (StatusResult, error) {
	values := url.Values{}
	values.Set("order", externalID)

	body, err := p.call(ctx, "status", values)
	if err != nil {
		return StatusResult{}, err
	}
	var resp struct {
		Status     string      `json:"status"`
		StartCount looseNumber `json:"start_count"`
		Remains    looseNumber `json:"remains"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return StatusResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode provider status response")
	}
	return StatusResult{
		Status:     resp.Status,
		StartCount: resp.StartCount.Int(),
		Remains:    resp.Remains.Int(),
		Raw:        json.RawMessage(body),
	}, nil
}

func (p *perfectPanel) GetBalance(ctx context.Context) (Balance, error) {
	body, err := p.call(ctx, "balance", nil)
	if err != nil {
		return Balance{}, err
	}
	var resp struct {
		Balance  looseNumber `json:"balance"`
		Currency string      `json:"currency"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Balance{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode provider balance response")
	}
	return Balance{Amount: resp.Balance.Decimal(), Currency: resp.Currency}, nil
}

func (p *perfectPanel) ListServices(ctx context.Context) ([]RemoteService, error) {
	body, err := p.call(ctx, "services", nil)
	if err != nil {
		return nil, err
	}
	var resp []struct {
		Service  looseNumber `json:"service"`
		Name     string      `json:"name"`
		Type     string      `json:"type"`
		Category string      `json:"category"`
		Rate     looseNumber `json:"rate"`
		Min      looseNumber `json:"min"`
		Max      looseNumber `json:"max"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode provider services response")
	}
	out := make([]RemoteService, 0, len(resp))
	for _, s := range resp {
		out = append(out, RemoteService{
			ID:       s.Service.String(),
			Name:     s.Name,
			Category: s.Category,
			Type:     s.Type,
			Rate:     s.Rate.Decimal(),
			Min:      intOrZero(s.Min.Int()),
			Max:      intOrZero(s.Max.Int()),
		})
	}
	return out, nil
}
