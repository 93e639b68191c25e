package settlement

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"membership-checkout/internal/domain"
	"membership-checkout/internal/domain/model"
	"membership-checkout/internal/domain/ports/adapter"
	"membership-checkout/internal/infra/logging"
	"membership-checkout/internal/infra/metrics"
)

// Server is the reference settlement backend: the authority on prices,
// payment intents and grants. Every mutating endpoint is idempotent; the
// database indexes are the source of truth for duplicates, not in-memory
// bookkeeping.
type Server struct {
	store      Store
	processor  adapter.ProcessorGateway
	auth       *AuthManager
	breakdowns map[model.PurchaseKind]model.BreakdownFunc
	log        *zerolog.Logger
}

func NewServer(store Store, processor adapter.ProcessorGateway, auth *AuthManager, breakdowns map[model.PurchaseKind]model.BreakdownFunc, logger *zerolog.Logger) *Server {
	return &Server{
		store:      store,
		processor:  processor,
		auth:       auth,
		breakdowns: breakdowns,
		log:        logger,
	}
}

func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/resources/{resourceID}", s.handleResource)

	r.Group(func(r chi.Router) {
		r.Use(s.auth.RequireAuth)
		r.Post("/payments/create-intent", s.handleCreateIntent)
		r.Post("/payments/confirm", s.handleConfirm)
		r.Post("/payments/register-free", s.handleRegisterFree)
	})

	return r
}

type resourceView struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Currency    string `json:"currencyUnit"`
}

type intentView struct {
	IntentID     string `json:"intentId"`
	ClientSecret string `json:"clientSecret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

type settlementView struct {
	SettlementID string `json:"settlementId"`
	GrantID      string `json:"grantId"`
}

func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	res, err := s.store.FindResource(r.Context(), chi.URLParam(r, "resourceID"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if kind := r.URL.Query().Get("kind"); kind != "" && kind != string(res.Kind) {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "resource not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, resourceView{
		ID:          res.ID,
		Kind:        string(res.Kind),
		Name:        res.Name,
		Description: res.Description,
		Price:       res.Price,
		Currency:    res.Currency,
	})
}

type createIntentRequest struct {
	ResourceID string `json:"resourceId"`
	Kind       string `json:"kind"`
}

// handleCreateIntent provisions a payment intent for (user, resource).
// Repeated calls while an intent is unresolved return the existing one, so an
// interrupted client that retries never strands half-open intents at the
// processor.
func (s *Server) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	var req createIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	userID := userIDFrom(r.Context())
	kind := model.PurchaseKind(req.Kind)
	if !kind.Valid() {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown purchase kind"})
		return
	}

	res, err := s.store.FindResource(r.Context(), req.ResourceID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if res.IsFree() {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "free resources have no payment intent"})
		return
	}

	if existing, err := s.store.FindUnresolvedIntent(r.Context(), userID, req.ResourceID); err == nil {
		s.writeJSON(w, http.StatusOK, intentView{
			IntentID:     existing.ID,
			ClientSecret: existing.ClientSecret,
			Amount:       existing.Amount,
			Currency:     existing.Currency,
		})
		return
	} else if !errors.Is(err, domain.ErrNotFound) {
		s.writeInternal(w, err)
		return
	}

	breakdown, ok := s.breakdowns[kind]
	if !ok {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown purchase kind"})
		return
	}
	total := breakdown(res).Total

	intentID, clientSecret, err := s.processor.CreateIntent(r.Context(), total, res.Currency, map[string]string{
		"user_id":     userID,
		"resource_id": res.ID,
		"kind":        string(kind),
	})
	if err != nil {
		s.log.Error().Err(err).Str("resource_id", res.ID).Msg("processor create intent failed")
		s.writeJSON(w, http.StatusBadGateway, map[string]string{"error": "payment processor unavailable"})
		return
	}

	now := time.Now()
	intent := &model.PaymentIntent{
		ID:           intentID,
		ClientSecret: clientSecret,
		UserID:       userID,
		ResourceID:   res.ID,
		Kind:         kind,
		Amount:       total,
		Currency:     res.Currency,
		Status:       model.IntentStatusRequiresPaymentMethod,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.SaveIntent(r.Context(), intent); err != nil {
		// Lost a provisioning race; the winner's intent is the one to use.
		if errors.Is(err, domain.ErrAlreadyExists) {
			if existing, ferr := s.store.FindUnresolvedIntent(r.Context(), userID, req.ResourceID); ferr == nil {
				s.writeJSON(w, http.StatusOK, intentView{
					IntentID:     existing.ID,
					ClientSecret: existing.ClientSecret,
					Amount:       existing.Amount,
					Currency:     existing.Currency,
				})
				return
			}
		}
		s.writeInternal(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, intentView{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       intent.Amount,
		Currency:     intent.Currency,
	})
}

type confirmRequest struct {
	IntentID   string `json:"intentId"`
	ResourceID string `json:"resourceId"`
}

// handleConfirm records the grant for a captured charge. The settlements
// unique index makes this idempotent: any number of confirms for one intent
// yield the one settlement recorded first.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	userID := userIDFrom(r.Context())

	if existing, err := s.store.FindSettlementByIntent(r.Context(), req.IntentID); err == nil {
		s.writeJSON(w, http.StatusOK, settlementView{SettlementID: existing.ID, GrantID: existing.GrantID})
		return
	} else if !errors.Is(err, domain.ErrNotFound) {
		s.writeInternal(w, err)
		return
	}

	intent, err := s.store.FindIntent(r.Context(), req.IntentID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if intent.UserID != userID {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "intent not found"})
		return
	}

	status, err := s.processor.RetrieveIntentStatus(r.Context(), intent.ID)
	if err != nil {
		s.log.Error().Err(err).Str("intent_id", intent.ID).Msg("processor status check failed")
		s.writeJSON(w, http.StatusBadGateway, map[string]string{"error": "payment processor unavailable"})
		return
	}
	switch status {
	case model.IntentStatusSucceeded:
	case model.IntentStatusProcessing:
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "charge still processing, retry shortly"})
		return
	default:
		s.writeJSON(w, http.StatusConflict, map[string]string{"error": "intent has no captured charge"})
		return
	}

	rec := &model.SettlementRecord{
		ID:         ulid.Make().String(),
		IntentID:   intent.ID,
		UserID:     intent.UserID,
		ResourceID: intent.ResourceID,
		Kind:       intent.Kind,
		GrantID:    grantID(intent.Kind),
		Amount:     intent.Amount,
		CreatedAt:  time.Now(),
	}
	if err := s.store.InsertSettlement(r.Context(), rec); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			if existing, ferr := s.store.FindSettlementByIntent(r.Context(), req.IntentID); ferr == nil {
				s.writeJSON(w, http.StatusOK, settlementView{SettlementID: existing.ID, GrantID: existing.GrantID})
				return
			}
		}
		s.writeInternal(w, err)
		return
	}
	if err := s.store.MarkIntentStatus(r.Context(), intent.ID, model.IntentStatusSucceeded); err != nil {
		s.log.Error().Err(err).Str("intent_id", intent.ID).Msg("failed to resolve intent after settlement")
	}

	metrics.IncSettlement(string(intent.Kind))
	logging.With(r.Context(), s.log).Info().
		Str("intent_id", intent.ID).
		Str("settlement_id", rec.ID).
		Str("grant_id", rec.GrantID).
		Msg("settlement recorded")
	s.writeJSON(w, http.StatusOK, settlementView{SettlementID: rec.ID, GrantID: rec.GrantID})
}

type registerFreeRequest struct {
	ResourceID string `json:"resourceId"`
	Kind       string `json:"kind"`
}

// handleRegisterFree grants a free resource directly. One grant per
// (user, resource), enforced by the free settlements index.
func (s *Server) handleRegisterFree(w http.ResponseWriter, r *http.Request) {
	var req registerFreeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	userID := userIDFrom(r.Context())
	kind := model.PurchaseKind(req.Kind)
	if !kind.Valid() {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown purchase kind"})
		return
	}

	res, err := s.store.FindResource(r.Context(), req.ResourceID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if !res.IsFree() {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "resource requires payment"})
		return
	}

	if existing, err := s.store.FindFreeSettlement(r.Context(), userID, res.ID); err == nil {
		s.writeJSON(w, http.StatusOK, settlementView{SettlementID: existing.ID, GrantID: existing.GrantID})
		return
	} else if !errors.Is(err, domain.ErrNotFound) {
		s.writeInternal(w, err)
		return
	}

	rec := &model.SettlementRecord{
		ID:         ulid.Make().String(),
		UserID:     userID,
		ResourceID: res.ID,
		Kind:       kind,
		GrantID:    grantID(kind),
		Amount:     0,
		CreatedAt:  time.Now(),
	}
	if err := s.store.InsertSettlement(r.Context(), rec); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			if existing, ferr := s.store.FindFreeSettlement(r.Context(), userID, res.ID); ferr == nil {
				s.writeJSON(w, http.StatusOK, settlementView{SettlementID: existing.ID, GrantID: existing.GrantID})
				return
			}
		}
		s.writeInternal(w, err)
		return
	}

	metrics.IncSettlement(string(kind))
	s.writeJSON(w, http.StatusOK, settlementView{SettlementID: rec.ID, GrantID: rec.GrantID})
}

func grantID(kind model.PurchaseKind) string {
	prefix := "mem_"
	if kind == model.KindRegistration {
		prefix = "reg_"
	}
	return prefix + ulid.Make().String()
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrResourceNotFound), errors.Is(err, domain.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	default:
		s.writeInternal(w, err)
	}
}

func (s *Server) writeInternal(w http.ResponseWriter, err error) {
	s.log.Error().Err(err).Msg("settlement request failed")
	s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error().Err(err).Msg("failed to encode response")
	}
}
