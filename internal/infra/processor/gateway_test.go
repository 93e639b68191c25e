// File: internal/infra/processor/gateway_test.go
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"membership-checkout/internal/domain"
	"membership-checkout/internal/domain/model"
)

func testGateway(t *testing.T, handler http.HandlerFunc) *HostedFieldsGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	log := zerolog.Nop()
	return NewHostedFieldsGateway(srv.URL, "sk_test", &log)
}

func TestCreatePaymentMethod_Success(t *testing.T) {
	t.Parallel()

	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_methods" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test" {
			t.Errorf("missing secret key auth, got %q", got)
		}
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["card_session"]; !ok {
			t.Errorf("expected card_session in request, got %v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":   "pm_123",
			"card": map[string]string{"brand": "visa", "last4": "4242"},
		})
	})

	m, err := g.CreatePaymentMethod(context.Background(), "cs_1", model.BillingDetails{Name: "Ada", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("CreatePaymentMethod returned error: %v", err)
	}
	if m.ID != "pm_123" || m.Brand != "visa" || m.Last4 != "4242" {
		t.Fatalf("unexpected method: %+v", m)
	}
}

func TestCreatePaymentMethod_CardErrorIsValidation(t *testing.T) {
	t.Parallel()

	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{
				"type":    "card_error",
				"code":    "incomplete_number",
				"param":   "number",
				"message": "Your card number is incomplete.",
			},
		})
	})

	_, err := g.CreatePaymentMethod(context.Background(), "cs_1", model.BillingDetails{Name: "Ada", Email: "a@b.c"})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Fields["number"] != "Your card number is incomplete." {
		t.Fatalf("unexpected fields: %v", verr.Fields)
	}
}

func TestConfirmIntent_Decline(t *testing.T) {
	t.Parallel()

	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{
				"type":         "card_error",
				"code":         "card_declined",
				"decline_code": "insufficient_funds",
				"message":      "Your card has insufficient funds.",
			},
		})
	})

	_, err := g.ConfirmIntent(context.Background(), "pi_secret", "pm_1")
	var decline *domain.ProcessorDeclineError
	if !errors.As(err, &decline) {
		t.Fatalf("expected decline, got %v", err)
	}
	if decline.Code != "insufficient_funds" {
		t.Fatalf("decline_code takes precedence, got %q", decline.Code)
	}
}

func TestConfirmIntent_Success(t *testing.T) {
	t.Parallel()

	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id": "pi_1", "client_secret": "pi_secret", "status": "succeeded",
		})
	})

	status, err := g.ConfirmIntent(context.Background(), "pi_secret", "pm_1")
	if err != nil {
		t.Fatalf("ConfirmIntent returned error: %v", err)
	}
	if status != model.IntentStatusSucceeded {
		t.Fatalf("expected succeeded, got %s", status)
	}
}

func TestGateway_ServerErrorIsNetwork(t *testing.T) {
	t.Parallel()

	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := g.RetrieveIntentStatus(context.Background(), "pi_1")
	var netErr *domain.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestCreateIntent_SendsMetadata(t *testing.T) {
	t.Parallel()

	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		meta, _ := body["metadata"].(map[string]interface{})
		if meta["resource_id"] != "club-standard" {
			t.Errorf("expected metadata, got %v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id": "pi_9", "client_secret": "pi_9_secret", "status": "requires_payment_method",
		})
	})

	id, secret, err := g.CreateIntent(context.Background(), 500, "usd", map[string]string{"resource_id": "club-standard"})
	if err != nil {
		t.Fatalf("CreateIntent returned error: %v", err)
	}
	if id != "pi_9" || secret != "pi_9_secret" {
		t.Fatalf("unexpected intent: %s %s", id, secret)
	}
}
