package backendapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"membership-checkout/internal/domain"
	"membership-checkout/internal/domain/model"
	"membership-checkout/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

var _ adapter.BackendGateway = (*Client)(nil)

// Client talks to the settlement backend over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
	log     *zerolog.Logger
}

func NewClient(baseURL string, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{},
		log:     logger,
	}
}

type resourceResponse struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Currency    string `json:"currencyUnit"`
}

type intentResponse struct {
	IntentID     string `json:"intentId"`
	ClientSecret string `json:"clientSecret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

type settlementResponse struct {
	SettlementID string `json:"settlementId"`
	GrantID      string `json:"grantId"`
}

func (c *Client) FetchResource(ctx context.Context, kind model.PurchaseKind, id string) (*model.PurchasableResource, error) {
	url := fmt.Sprintf("%s/resources/%s?kind=%s", c.baseURL, id, kind)
	var out resourceResponse
	if err := c.do(ctx, http.MethodGet, url, "", nil, &out); err != nil {
		return nil, err
	}
	return &model.PurchasableResource{
		ID:          out.ID,
		Kind:        model.PurchaseKind(out.Kind),
		Name:        out.Name,
		Description: out.Description,
		Price:       out.Price,
		Currency:    out.Currency,
	}, nil
}

func (c *Client) CreateIntent(ctx context.Context, token string, kind model.PurchaseKind, resourceID string) (*adapter.ProvisionedIntent, error) {
	body := map[string]string{"resourceId": resourceID, "kind": string(kind)}
	var out intentResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/payments/create-intent", token, body, &out); err != nil {
		return nil, err
	}
	return &adapter.ProvisionedIntent{
		IntentID:     out.IntentID,
		ClientSecret: out.ClientSecret,
		Amount:       out.Amount,
		Currency:     out.Currency,
	}, nil
}

func (c *Client) ConfirmSettlement(ctx context.Context, token, intentID, resourceID string) (*adapter.Settlement, error) {
	body := map[string]string{"intentId": intentID, "resourceId": resourceID}
	var out settlementResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/payments/confirm", token, body, &out); err != nil {
		return nil, err
	}
	return &adapter.Settlement{SettlementID: out.SettlementID, GrantID: out.GrantID}, nil
}

func (c *Client) RegisterFree(ctx context.Context, token string, kind model.PurchaseKind, resourceID string) (*adapter.Settlement, error) {
	body := map[string]string{"resourceId": resourceID, "kind": string(kind)}
	var out settlementResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/payments/register-free", token, body, &out); err != nil {
		return nil, err
	}
	return &adapter.Settlement{SettlementID: out.SettlementID, GrantID: out.GrantID}, nil
}

// do issues one request and classifies the response into the domain error
// taxonomy: 401 pauses (auth), 404 is terminal (resource), 5xx and transport
// failures are retryable (network).
func (c *Client) do(ctx context.Context, method, url, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &domain.NetworkError{Op: method + " " + url, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return &domain.AuthError{Reason: domain.AuthReasonExpired}
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrResourceNotFound
	case resp.StatusCode >= 500:
		return &domain.NetworkError{Op: method + " " + url, Err: fmt.Errorf("backend returned %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		data, _ := io.ReadAll(resp.Body)
		c.log.Warn().Int("status", resp.StatusCode).Str("url", url).Msg("backend rejected request")
		return fmt.Errorf("%w: backend returned %d: %s", domain.ErrInvalidArgument, resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
