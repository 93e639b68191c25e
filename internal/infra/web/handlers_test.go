// File: internal/infra/web/handlers_test.go
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"membership-checkout/internal/domain"
	"membership-checkout/internal/domain/model"
	"membership-checkout/internal/usecase"
)

// fakeCoordinator scripts one (session, error) pair per operation.
type fakeCoordinator struct {
	session *model.CheckoutSession
	err     error

	lastToken string
}

func (f *fakeCoordinator) Start(ctx context.Context, token string, kind model.PurchaseKind, resourceID string) (*model.CheckoutSession, error) {
	f.lastToken = token
	return f.session, f.err
}
func (f *fakeCoordinator) Submit(ctx context.Context, sessionID string, in usecase.CardFormInput) (*model.CheckoutSession, error) {
	return f.session, f.err
}
func (f *fakeCoordinator) RetrySettlement(ctx context.Context, sessionID string) (*model.CheckoutSession, error) {
	return f.session, f.err
}
func (f *fakeCoordinator) Resume(ctx context.Context, sessionID, token string) (*model.CheckoutSession, error) {
	f.lastToken = token
	return f.session, f.err
}
func (f *fakeCoordinator) Cancel(ctx context.Context, sessionID string) (*model.CheckoutSession, error) {
	return f.session, f.err
}
func (f *fakeCoordinator) Get(ctx context.Context, sessionID string) (*model.CheckoutSession, error) {
	return f.session, f.err
}

type allowAllLimiter struct{}

func (allowAllLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return true, nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return false, nil
}

func testServer(fc *fakeCoordinator, limiter Limiter) *Server {
	log := zerolog.Nop()
	return NewServer(fc, limiter, "pk_test", &log)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) checkoutResponse {
	t.Helper()
	var out checkoutResponse
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestHandleStart_HappyPath(t *testing.T) {
	t.Parallel()

	fc := &fakeCoordinator{session: &model.CheckoutSession{
		ID: "sess-1", Kind: model.KindMembership, ResourceID: "club-standard",
		State: model.StateAwaitingCardInput, ClientSecret: "pi_secret",
	}}
	srv := testServer(fc, allowAllLimiter{})

	rec := doJSON(t, srv.Router(), http.MethodPost, "/api/v1/checkout",
		map[string]string{"kind": "membership", "resourceId": "club-standard"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	out := decodeResponse(t, rec)
	if out.Session == nil || out.Session.ID != "sess-1" {
		t.Fatalf("expected session in response, got %+v", out)
	}
	if out.Session.ClientSecret != "pi_secret" || out.Session.PublishableKey != "pk_test" {
		t.Fatalf("card-form sessions must carry secret and publishable key, got %+v", out.Session)
	}
}

func TestSessionView_SecretsOnlyWhileFormOpen(t *testing.T) {
	t.Parallel()

	fc := &fakeCoordinator{session: &model.CheckoutSession{
		ID: "sess-1", State: model.StateSucceeded, ClientSecret: "pi_secret",
	}}
	srv := testServer(fc, allowAllLimiter{})

	rec := doJSON(t, srv.Router(), http.MethodGet, "/api/v1/checkout/sess-1/", nil)
	out := decodeResponse(t, rec)
	if out.Session.ClientSecret != "" || out.Session.PublishableKey != "" {
		t.Fatalf("secrets must be withheld outside the card form, got %+v", out.Session)
	}
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"validation", &domain.ValidationError{Fields: map[string]string{"email": "is required"}}, http.StatusUnprocessableEntity, "validation"},
		{"auth", &domain.AuthError{Reason: domain.AuthReasonExpired}, http.StatusUnauthorized, "auth"},
		{"decline", &domain.ProcessorDeclineError{Code: "card_declined", Message: "declined"}, http.StatusPaymentRequired, "processor_declined"},
		{"settlement pending", &domain.SettlementInconsistencyError{IntentID: "pi_1"}, http.StatusConflict, "settlement_pending"},
		{"network", &domain.NetworkError{Op: "op"}, http.StatusBadGateway, "network"},
		{"session not found", domain.ErrSessionNotFound, http.StatusNotFound, "error"},
		{"submit in flight", domain.ErrSubmitInFlight, http.StatusTooManyRequests, "error"},
		{"conflict", domain.ErrConflict, http.StatusConflict, "error"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fc := &fakeCoordinator{err: tc.err}
			srv := testServer(fc, allowAllLimiter{})

			rec := doJSON(t, srv.Router(), http.MethodPost, "/api/v1/checkout/sess-1/submit",
				map[string]string{"cardSession": "cs", "name": "A", "email": "a@b.c"})
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			out := decodeResponse(t, rec)
			if out.Error == nil || out.Error.Kind != tc.kind {
				t.Fatalf("expected error kind %q, got %+v", tc.kind, out.Error)
			}
		})
	}
}

func TestSettlementPendingNeverReadsAsPaymentFailure(t *testing.T) {
	t.Parallel()

	fc := &fakeCoordinator{
		session: &model.CheckoutSession{
			ID: "sess-1", State: model.StateSettlementRetryRequired,
			ChargeCaptured: true, IntentID: "pi_1",
		},
		err: &domain.SettlementInconsistencyError{IntentID: "pi_1"},
	}
	srv := testServer(fc, allowAllLimiter{})

	rec := doJSON(t, srv.Router(), http.MethodPost, "/api/v1/checkout/sess-1/retry", nil)
	out := decodeResponse(t, rec)
	if out.Error.Kind != "settlement_pending" {
		t.Fatalf("expected settlement_pending, got %q", out.Error.Kind)
	}
	if out.Session == nil || out.Session.State != model.StateSettlementRetryRequired {
		t.Fatalf("response must show the retryable state, got %+v", out.Session)
	}
	if out.Session.IntentID != "pi_1" {
		t.Fatalf("response must carry the intent reference, got %+v", out.Session)
	}
}

func TestHandleStart_RateLimited(t *testing.T) {
	t.Parallel()

	fc := &fakeCoordinator{session: &model.CheckoutSession{ID: "sess-1"}}
	srv := testServer(fc, denyLimiter{})

	rec := doJSON(t, srv.Router(), http.MethodPost, "/api/v1/checkout",
		map[string]string{"kind": "membership", "resourceId": "club-standard"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := bearerToken(req); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	req.Header.Set("Authorization", "Bearer tok-1")
	if got := bearerToken(req); got != "tok-1" {
		t.Fatalf("expected tok-1, got %q", got)
	}
	req.Header.Set("Authorization", "Basic xyz")
	if got := bearerToken(req); got != "" {
		t.Fatalf("non-bearer schemes must be ignored, got %q", got)
	}
}
