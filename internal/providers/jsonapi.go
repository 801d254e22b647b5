package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
)

// jsonAPI is a REST provider authenticated with a bearer token.
type jsonAPI struct {
	transport
}

type jsonCreateRequest struct {
	Service  string `json:"service"`
	Link     string `json:"link"`
	Quantity int    `json:"quantity"`
}

func (j *jsonAPI) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + j.apiKey}
}

func (j *jsonAPI) CreateOrder(ctx context.Context, serviceID, link string, quantity int) (CreateResult, error) {
	payload := jsonCreateRequest{Service: serviceID, Link: link, Quantity: quantity}
	body, err := j.doJSON(ctx, http.MethodPost, "orders", payload, "add", j.headers())
	if err != nil {
		return CreateResult{}, err
	}
	var resp struct {
		ID looseNumber `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return CreateResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode provider order response")
	}
	if resp.ID == "" {
		return CreateResult{}, pkgerrors.New(pkgerrors.CodeDependency, "provider response missing order id")
	}
	return CreateResult{ExternalID: resp.ID.String(), Raw: json.RawMessage(body)}, nil
}

func (j *jsonAPI) GetStatus(ctx context.Context, externalID string) (StatusResult, error) {
	body, err := j.doJSON(ctx, http.MethodGet, "orders/"+url.PathEscape(externalID), nil, "status", j.headers())
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

func (j *jsonAPI) GetBalance(ctx context.Context) (Balance, error) {
	body, err := j.doJSON(ctx, http.MethodGet, "balance", nil, "balance", j.headers())
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

func (j *jsonAPI) ListServices(ctx context.Context) ([]RemoteService, error) {
	body, err := j.doJSON(ctx, http.MethodGet, "services", nil, "services", j.headers())
	if err != nil {
		return nil, err
	}
	var resp []struct {
		ID       looseNumber `json:"id"`
		Name     string      `json:"name"`
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
			ID:       s.ID.String(),
			Name:     s.Name,
			Category: s.Category,
			Rate:     s.Rate.Decimal(),
			Min:      intOrZero(s.Min.Int()),
			Max:      intOrZero(s.Max.Int()),
		})
	}
	return out, nil
}
