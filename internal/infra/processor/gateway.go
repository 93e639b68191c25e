package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"membership-checkout/internal/domain"
	"membership-checkout/internal/domain/model"
	"membership-checkout/internal/domain/ports/adapter"
	"membership-checkout/internal/infra/metrics"

	"github.com/rs/zerolog"
)

var _ adapter.ProcessorGateway = (*HostedFieldsGateway)(nil)

// HostedFieldsGateway implements ProcessorGateway against the processor's
// HTTP API. Card numbers live in the processor's hosted fields; the only card
// reference this gateway ever sends is the opaque hosted-fields session id.
type HostedFieldsGateway struct {
	baseURL   string
	secretKey string
	client    *http.Client
	log       *zerolog.Logger
}

func NewHostedFieldsGateway(baseURL, secretKey string, logger *zerolog.Logger) *HostedFieldsGateway {
	return &HostedFieldsGateway{
		baseURL:   baseURL,
		secretKey: secretKey,
		client:    &http.Client{},
		log:       logger,
	}
}

func (g *HostedFieldsGateway) Name() string { return "hosted-fields" }

// apiError is the processor's structured error envelope.
type apiError struct {
	Error struct {
		Type        string `json:"type"` // card_error | validation_error | api_error
		Code        string `json:"code"`
		DeclineCode string `json:"decline_code"`
		Param       string `json:"param"`
		Message     string `json:"message"`
	} `json:"error"`
}

type paymentMethodResponse struct {
	ID   string `json:"id"`
	Card struct {
		Brand string `json:"brand"`
		Last4 string `json:"last4"`
	} `json:"card"`
}

type intentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

func (g *HostedFieldsGateway) CreatePaymentMethod(ctx context.Context, cardSession string, billing model.BillingDetails) (*model.TokenizedPaymentMethod, error) {
	body := map[string]interface{}{
		"card_session": cardSession,
		"billing_details": map[string]string{
			"name":  billing.Name,
			"email": billing.Email,
		},
	}
	var out paymentMethodResponse
	if err := g.do(ctx, http.MethodPost, "/v1/payment_methods", body, &out, tokenizeErr); err != nil {
		return nil, err
	}
	return &model.TokenizedPaymentMethod{ID: out.ID, Brand: out.Card.Brand, Last4: out.Card.Last4}, nil
}

func (g *HostedFieldsGateway) ConfirmIntent(ctx context.Context, clientSecret, methodID string) (model.IntentStatus, error) {
	body := map[string]string{
		"client_secret":  clientSecret,
		"payment_method": methodID,
	}
	started := time.Now()
	var out intentResponse
	err := g.do(ctx, http.MethodPost, "/v1/payment_intents/confirm", body, &out, confirmErr)
	metrics.ObserveConfirmLatency(time.Since(started).Milliseconds())
	if err != nil {
		var decline *domain.ProcessorDeclineError
		if errors.As(err, &decline) {
			metrics.IncProcessorDecline(decline.Code)
		}
		return "", err
	}
	return model.IntentStatus(out.Status), nil
}

func (g *HostedFieldsGateway) CreateIntent(ctx context.Context, amount int64, currency string, meta map[string]string) (string, string, error) {
	body := map[string]interface{}{
		"amount":   amount,
		"currency": currency,
	}
	if len(meta) > 0 {
		body["metadata"] = meta
	}
	var out intentResponse
	if err := g.do(ctx, http.MethodPost, "/v1/payment_intents", body, &out, confirmErr); err != nil {
		return "", "", err
	}
	return out.ID, out.ClientSecret, nil
}

func (g *HostedFieldsGateway) RetrieveIntentStatus(ctx context.Context, intentID string) (model.IntentStatus, error) {
	var out intentResponse
	if err := g.do(ctx, http.MethodGet, "/v1/payment_intents/"+intentID, nil, &out, confirmErr); err != nil {
		return "", err
	}
	return model.IntentStatus(out.Status), nil
}

// tokenizeErr maps processor errors during tokenization. Card problems are
// field-level and re-editable, so they surface as validation errors.
func tokenizeErr(e *apiError) error {
	if e.Error.Type == "card_error" || e.Error.Type == "validation_error" {
		field := e.Error.Param
		if field == "" {
			field = "card"
		}
		return &domain.ValidationError{Fields: map[string]string{field: e.Error.Message}}
	}
	return fmt.Errorf("processor error: %s (%s)", e.Error.Message, e.Error.Type)
}

// confirmErr maps processor errors during confirmation. Card errors here are
// declines: money was refused, the user can try another card.
func confirmErr(e *apiError) error {
	if e.Error.Type == "card_error" {
		code := e.Error.DeclineCode
		if code == "" {
			code = e.Error.Code
		}
		return &domain.ProcessorDeclineError{Code: code, Message: e.Error.Message}
	}
	return fmt.Errorf("processor error: %s (%s)", e.Error.Message, e.Error.Type)
}

func (g *HostedFieldsGateway) do(ctx context.Context, method, path string, body, out interface{}, mapErr func(*apiError) error) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.secretKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return &domain.NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.NetworkError{Op: method + " " + path, Err: err}
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Type != "" {
			return mapErr(&apiErr)
		}
		if resp.StatusCode >= 500 {
			return &domain.NetworkError{Op: method + " " + path, Err: fmt.Errorf("processor returned %d", resp.StatusCode)}
		}
		return fmt.Errorf("processor returned %d: %s", resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w, body: %s", err, string(data))
	}
	return nil
}
