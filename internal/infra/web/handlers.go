package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"membership-checkout/internal/domain"
	"membership-checkout/internal/domain/model"
	"membership-checkout/internal/usecase"
)

type startRequest struct {
	Kind       string `json:"kind"`
	ResourceID string `json:"resourceId"`
}

// sessionView is the wire shape of a checkout session. The client secret and
// publishable key are only present while the card form is open.
type sessionView struct {
	ID             string                     `json:"id"`
	Kind           model.PurchaseKind         `json:"kind"`
	ResourceID     string                     `json:"resourceId"`
	State          model.CheckoutState        `json:"state"`
	ResumeState    model.CheckoutState        `json:"resumeState,omitempty"`
	Resource       *model.PurchasableResource `json:"resource,omitempty"`
	Breakdown      *model.PriceBreakdown      `json:"breakdown,omitempty"`
	ClientSecret   string                     `json:"clientSecret,omitempty"`
	PublishableKey string                     `json:"publishableKey,omitempty"`
	IntentID       string                     `json:"intentId,omitempty"`
	SettlementID   string                     `json:"settlementId,omitempty"`
	GrantID        string                     `json:"grantId,omitempty"`
	DeclineCode    string                     `json:"declineCode,omitempty"`
	DeclineMessage string                     `json:"declineMessage,omitempty"`
	Failure        model.FailureKind          `json:"failure,omitempty"`
	FailureDetail  string                     `json:"failureDetail,omitempty"`
}

type errorView struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message,omitempty"`
	Reason  string            `json:"reason,omitempty"`
	Code    string            `json:"code,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type checkoutResponse struct {
	Session *sessionView `json:"session,omitempty"`
	Error   *errorView   `json:"error,omitempty"`
}

func (s *Server) view(sess *model.CheckoutSession) *sessionView {
	if sess == nil {
		return nil
	}
	v := &sessionView{
		ID:             sess.ID,
		Kind:           sess.Kind,
		ResourceID:     sess.ResourceID,
		State:          sess.State,
		ResumeState:    sess.ResumeState,
		Resource:       sess.Resource,
		Breakdown:      sess.Breakdown,
		IntentID:       sess.IntentID,
		SettlementID:   sess.SettlementID,
		GrantID:        sess.GrantID,
		DeclineCode:    sess.DeclineCode,
		DeclineMessage: sess.DeclineMessage,
		Failure:        sess.Failure,
		FailureDetail:  sess.FailureDetail,
	}
	if sess.State == model.StateAwaitingCardInput {
		v.ClientSecret = sess.ClientSecret
		v.PublishableKey = s.publishableKey
	}
	return v
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, nil, errors.New("malformed request body"), http.StatusBadRequest)
		return
	}

	token := bearerToken(r)
	key := token
	if key == "" {
		key = r.RemoteAddr
	}
	if ok, err := s.limiter.Allow(r.Context(), "rate_limit:start:"+key, startRateLimit, startRateWindow); err == nil && !ok {
		s.writeJSON(w, http.StatusTooManyRequests, checkoutResponse{Error: &errorView{
			Kind: "rate_limited", Message: "too many checkout attempts, slow down",
		}})
		return
	}

	sess, err := s.checkout.Start(r.Context(), token, model.PurchaseKind(req.Kind), req.ResourceID)
	s.respond(w, sess, err)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := s.checkout.Get(r.Context(), chi.URLParam(r, "sessionID"))
	s.respond(w, sess, err)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var in usecase.CardFormInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeError(w, nil, errors.New("malformed request body"), http.StatusBadRequest)
		return
	}
	sess, err := s.checkout.Submit(r.Context(), chi.URLParam(r, "sessionID"), in)
	s.respond(w, sess, err)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	sess, err := s.checkout.RetrySettlement(r.Context(), chi.URLParam(r, "sessionID"))
	s.respond(w, sess, err)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	sess, err := s.checkout.Resume(r.Context(), chi.URLParam(r, "sessionID"), bearerToken(r))
	s.respond(w, sess, err)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	sess, err := s.checkout.Cancel(r.Context(), chi.URLParam(r, "sessionID"))
	s.respond(w, sess, err)
}

// respond maps coordinator outcomes onto HTTP. The session body, when
// present, always reflects the persisted state; the error block says why the
// request did not reach a happy state. A settlement inconsistency is its own
// kind so clients can never confuse "no charge happened" with "charge
// happened, grant pending".
func (s *Server) respond(w http.ResponseWriter, sess *model.CheckoutSession, err error) {
	if err == nil {
		s.writeJSON(w, http.StatusOK, checkoutResponse{Session: s.view(sess)})
		return
	}

	var (
		validation    *domain.ValidationError
		authErr       *domain.AuthError
		decline       *domain.ProcessorDeclineError
		network       *domain.NetworkError
		inconsistency *domain.SettlementInconsistencyError
	)
	switch {
	case errors.As(err, &validation):
		s.writeJSON(w, http.StatusUnprocessableEntity, checkoutResponse{
			Session: s.view(sess),
			Error:   &errorView{Kind: "validation", Fields: validation.Fields},
		})
	case errors.As(err, &authErr):
		s.writeJSON(w, http.StatusUnauthorized, checkoutResponse{
			Session: s.view(sess),
			Error:   &errorView{Kind: "auth", Reason: string(authErr.Reason), Message: "re-authenticate and resume the session"},
		})
	case errors.As(err, &decline):
		s.writeJSON(w, http.StatusPaymentRequired, checkoutResponse{
			Session: s.view(sess),
			Error:   &errorView{Kind: "processor_declined", Code: decline.Code, Message: decline.Message},
		})
	case errors.As(err, &inconsistency):
		s.writeJSON(w, http.StatusConflict, checkoutResponse{
			Session: s.view(sess),
			Error: &errorView{
				Kind:    "settlement_pending",
				Message: "your payment was received; recording your access is still pending — do not pay again",
			},
		})
	case errors.As(err, &network):
		s.writeJSON(w, http.StatusBadGateway, checkoutResponse{
			Session: s.view(sess),
			Error:   &errorView{Kind: "network", Message: "a transient network failure occurred, retry the request"},
		})
	case errors.Is(err, domain.ErrResourceNotFound):
		s.writeError(w, sess, err, http.StatusNotFound)
	case errors.Is(err, domain.ErrSessionNotFound):
		s.writeError(w, sess, err, http.StatusNotFound)
	case errors.Is(err, domain.ErrSubmitInFlight):
		s.writeError(w, sess, err, http.StatusTooManyRequests)
	case errors.Is(err, domain.ErrConflict):
		s.writeError(w, sess, err, http.StatusConflict)
	case errors.Is(err, domain.ErrInvalidArgument):
		s.writeError(w, sess, err, http.StatusBadRequest)
	default:
		s.log.Error().Err(err).Msg("checkout request failed")
		s.writeError(w, sess, errors.New("internal error"), http.StatusInternalServerError)
	}
}

func (s *Server) writeError(w http.ResponseWriter, sess *model.CheckoutSession, err error, status int) {
	s.writeJSON(w, status, checkoutResponse{
		Session: s.view(sess),
		Error:   &errorView{Kind: "error", Message: err.Error()},
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error().Err(err).Msg("failed to encode response")
	}
}
