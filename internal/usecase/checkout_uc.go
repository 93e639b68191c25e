package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"membership-checkout/internal/domain"
	"membership-checkout/internal/domain/model"
	"membership-checkout/internal/domain/ports/adapter"
	"membership-checkout/internal/domain/ports/repository"
	"membership-checkout/internal/infra/logging"
	"membership-checkout/internal/infra/metrics"
)

// Compile-time check
var _ CheckoutCoordinator = (*checkoutCoordinator)(nil)

const submitLockTTL = 2 * time.Minute

// SubmitLocker serializes operations on one checkout session.
type SubmitLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// SettlePolicy is the retry policy for settlement after a captured charge:
// AutoAttempts rounds with doubling backoff inside one settle call, manual
// retries afterwards, and a hard cap of MaxRounds failed rounds before the
// session is parked as a fatal inconsistency with support guidance.
type SettlePolicy struct {
	AutoAttempts int
	Backoff      time.Duration
	MaxRounds    int
}

// CheckoutCoordinator drives one checkout session from intent to durable
// grant. Transitions follow the state machine in the package tests; the split
// between processor confirmation and backend settlement exists because a
// charge can succeed while the grant call fails, and that outcome must never
// be reported as "payment failed".
type CheckoutCoordinator interface {
	// Start opens a session for (kind, resource). Free resources register
	// directly and never touch the payment machinery.
	Start(ctx context.Context, token string, kind model.PurchaseKind, resourceID string) (*model.CheckoutSession, error)
	// Submit tokenizes the card form and drives confirmation + settlement.
	Submit(ctx context.Context, sessionID string, in CardFormInput) (*model.CheckoutSession, error)
	// RetrySettlement re-runs settlement for a session with a captured
	// charge. Always keyed on the original intent id.
	RetrySettlement(ctx context.Context, sessionID string) (*model.CheckoutSession, error)
	// Resume re-enters the step that was interrupted by an expired session,
	// with a fresh credential. Steps whose side effect already completed are
	// never re-run.
	Resume(ctx context.Context, sessionID, token string) (*model.CheckoutSession, error)
	// Cancel abandons a session. Rejected once a charge is captured.
	Cancel(ctx context.Context, sessionID string) (*model.CheckoutSession, error)
	Get(ctx context.Context, sessionID string) (*model.CheckoutSession, error)
}

type checkoutCoordinator struct {
	sessions    repository.CheckoutStateRepository
	backend     adapter.BackendGateway
	processor   adapter.ProcessorGateway
	fetcher     ResourceFetcher
	provisioner IntentProvisioner
	form        CardCaptureForm
	guard       *SessionGuard
	locks       SubmitLocker
	breakdowns  map[model.PurchaseKind]model.BreakdownFunc
	policy      SettlePolicy
	log         *zerolog.Logger
}

func NewCheckoutCoordinator(
	sessions repository.CheckoutStateRepository,
	backend adapter.BackendGateway,
	processor adapter.ProcessorGateway,
	fetcher ResourceFetcher,
	provisioner IntentProvisioner,
	form CardCaptureForm,
	guard *SessionGuard,
	locks SubmitLocker,
	breakdowns map[model.PurchaseKind]model.BreakdownFunc,
	policy SettlePolicy,
	logger *zerolog.Logger,
) *checkoutCoordinator {
	if policy.AutoAttempts <= 0 {
		policy.AutoAttempts = 3
	}
	if policy.Backoff <= 0 {
		policy.Backoff = 500 * time.Millisecond
	}
	if policy.MaxRounds <= 0 {
		policy.MaxRounds = 8
	}
	return &checkoutCoordinator{
		sessions:    sessions,
		backend:     backend,
		processor:   processor,
		fetcher:     fetcher,
		provisioner: provisioner,
		form:        form,
		guard:       guard,
		locks:       locks,
		breakdowns:  breakdowns,
		policy:      policy,
		log:         logger,
	}
}

func submitLockKey(sessionID string) string { return "checkout:lock:" + sessionID }

func (c *checkoutCoordinator) Start(ctx context.Context, token string, kind model.PurchaseKind, resourceID string) (*model.CheckoutSession, error) {
	defer logging.TraceDuration(c.log, "CheckoutCoordinator.Start")()
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown purchase kind %q", domain.ErrInvalidArgument, kind)
	}

	now := time.Now()
	s := &model.CheckoutSession{
		ID:         uuid.NewString(),
		UserID:     subjectOf(token),
		Kind:       kind,
		ResourceID: resourceID,
		State:      model.StateIdle,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := c.guard.Attach(ctx, s.ID, token); err != nil {
		return nil, err
	}

	// Resource fetch failures create no session state: a retry starts clean.
	c.setState(s, model.StateFetchingResource)
	resource, err := c.fetcher.Fetch(ctx, s.Kind, s.ResourceID)
	if err != nil {
		return nil, err
	}
	s.Resource = resource
	if bf, ok := c.breakdowns[kind]; ok {
		s.Breakdown = bf(resource)
	}
	metrics.IncCheckoutSession(string(kind))

	if resource.IsFree() {
		return c.registerFree(ctx, s)
	}
	return c.provision(ctx, s)
}

// registerFree is the short-circuit success path for price <= 0: one backend
// call, no intent, no processor.
func (c *checkoutCoordinator) registerFree(ctx context.Context, s *model.CheckoutSession) (*model.CheckoutSession, error) {
	c.setState(s, model.StateFreeRegistration)
	if err := c.sessions.Save(ctx, s); err != nil {
		return nil, err
	}

	var res *adapter.Settlement
	err := c.guard.Authenticated(ctx, s.ID, func(ctx context.Context, token string) error {
		var err error
		res, err = c.backend.RegisterFree(ctx, token, s.Kind, s.ResourceID)
		return err
	})
	if err != nil {
		var authErr *domain.AuthError
		if errors.As(err, &authErr) {
			c.pause(ctx, s, model.StateFreeRegistration)
			return s, err
		}
		c.fail(ctx, s, model.FailureNetwork, err.Error())
		return s, err
	}

	s.SettlementID = res.SettlementID
	s.GrantID = res.GrantID
	return c.succeed(ctx, s)
}

// provision obtains intent + client secret and opens the card form. Skipped
// entirely when the session already holds an unresolved intent.
func (c *checkoutCoordinator) provision(ctx context.Context, s *model.CheckoutSession) (*model.CheckoutSession, error) {
	if s.IntentID != "" {
		c.setState(s, model.StateAwaitingCardInput)
		if err := c.sessions.Save(ctx, s); err != nil {
			return nil, err
		}
		return s, nil
	}

	c.setState(s, model.StateProvisioningIntent)
	if err := c.sessions.Save(ctx, s); err != nil {
		return nil, err
	}

	intent, err := c.provisioner.Provision(ctx, s.ID, s.Kind, s.ResourceID)
	if err != nil {
		var authErr *domain.AuthError
		if errors.As(err, &authErr) {
			c.pause(ctx, s, model.StateProvisioningIntent)
			return s, err
		}
		c.fail(ctx, s, model.FailureNetwork, err.Error())
		return s, err
	}

	s.IntentID = intent.IntentID
	s.ClientSecret = intent.ClientSecret
	c.setState(s, model.StateAwaitingCardInput)
	if err := c.sessions.Save(ctx, s); err != nil {
		return nil, err
	}
	// The intent id is durable on the session now; the cache entry would
	// otherwise live for the process lifetime.
	c.provisioner.Forget(s.ID)
	return s, nil
}

func (c *checkoutCoordinator) Submit(ctx context.Context, sessionID string, in CardFormInput) (*model.CheckoutSession, error) {
	defer logging.TraceDuration(c.log, "CheckoutCoordinator.Submit")()
	lockToken, err := c.locks.TryLock(ctx, submitLockKey(sessionID), submitLockTTL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = c.locks.Unlock(ctx, submitLockKey(sessionID), lockToken) }()

	s, err := c.sessions.Find(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.State != model.StateAwaitingCardInput {
		return s, fmt.Errorf("%w: submit requires awaiting_card_input, session is %s", domain.ErrConflict, s.State)
	}

	s.DeclineCode, s.DeclineMessage = "", ""
	c.setState(s, model.StateSubmitting)
	if err := c.sessions.Save(ctx, s); err != nil {
		return nil, err
	}

	method, err := c.form.Tokenize(ctx, in)
	if err != nil {
		// Validation and tokenization problems keep the form editable.
		c.setState(s, model.StateAwaitingCardInput)
		if saveErr := c.sessions.Save(ctx, s); saveErr != nil {
			return nil, saveErr
		}
		return s, err
	}

	c.setState(s, model.StateConfirmingWithProcessor)
	if err := c.sessions.Save(ctx, s); err != nil {
		return nil, err
	}

	status, err := c.processor.ConfirmIntent(ctx, s.ClientSecret, method.ID)
	if err != nil {
		var decline *domain.ProcessorDeclineError
		if errors.As(err, &decline) {
			s.DeclineCode = decline.Code
			s.DeclineMessage = decline.Message
			c.log.Info().Str("session_id", s.ID).Str("code", decline.Code).Msg("processor declined charge")
		}
		// Declines and transport failures both land back on the form; no
		// charge is known to be captured in either case.
		c.setState(s, model.StateAwaitingCardInput)
		if saveErr := c.sessions.Save(ctx, s); saveErr != nil {
			return nil, saveErr
		}
		return s, err
	}

	if status == model.IntentStatusCanceled {
		// The user walked away inside the processor's own flow.
		c.setState(s, model.StateCancelled)
		metrics.IncCheckoutOutcome(string(model.StateCancelled))
		if err := c.sessions.Save(ctx, s); err != nil {
			return nil, err
		}
		return s, nil
	}
	if status != model.IntentStatusSucceeded && status != model.IntentStatusProcessing {
		s.DeclineCode = "payment_incomplete"
		s.DeclineMessage = "the payment could not be completed"
		c.setState(s, model.StateAwaitingCardInput)
		if err := c.sessions.Save(ctx, s); err != nil {
			return nil, err
		}
		return s, &domain.ProcessorDeclineError{Code: s.DeclineCode, Message: s.DeclineMessage}
	}

	// Point of no return: money has moved (or is moving). From here the only
	// exits are a durable grant or an explicitly surfaced inconsistency.
	s.ChargeCaptured = true
	return c.settle(ctx, s)
}

func (c *checkoutCoordinator) RetrySettlement(ctx context.Context, sessionID string) (*model.CheckoutSession, error) {
	defer logging.TraceDuration(c.log, "CheckoutCoordinator.RetrySettlement")()
	lockToken, err := c.locks.TryLock(ctx, submitLockKey(sessionID), submitLockTTL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = c.locks.Unlock(ctx, submitLockKey(sessionID), lockToken) }()

	s, err := c.sessions.Find(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	// settling_with_backend is accepted too: a crash or cancelled request can
	// leave that state persisted mid-call, and the charge behind it must stay
	// retryable. The lock above keeps a live settle call exclusive.
	retryable := s.State == model.StateSettlementRetryRequired || s.State == model.StateSettlingWithBackend
	if !retryable || !s.ChargeCaptured {
		return s, fmt.Errorf("%w: nothing to retry in state %s", domain.ErrConflict, s.State)
	}
	metrics.IncSettlementRetry()
	return c.settle(ctx, s)
}

func (c *checkoutCoordinator) Resume(ctx context.Context, sessionID, token string) (*model.CheckoutSession, error) {
	lockToken, err := c.locks.TryLock(ctx, submitLockKey(sessionID), submitLockTTL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = c.locks.Unlock(ctx, submitLockKey(sessionID), lockToken) }()

	s, err := c.sessions.Find(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.State != model.StateSessionExpired {
		return s, fmt.Errorf("%w: resume requires session_expired, session is %s", domain.ErrConflict, s.State)
	}
	if err := c.guard.Refresh(ctx, s.ID, token); err != nil {
		return s, err
	}

	resume := s.ResumeState
	s.ResumeState = ""
	switch resume {
	case model.StateProvisioningIntent:
		return c.provision(ctx, s)
	case model.StateFreeRegistration:
		return c.registerFree(ctx, s)
	case model.StateSettlingWithBackend:
		return c.settle(ctx, s)
	default:
		return s, fmt.Errorf("%w: session has no resumable step", domain.ErrConflict)
	}
}

func (c *checkoutCoordinator) Cancel(ctx context.Context, sessionID string) (*model.CheckoutSession, error) {
	// Same lock as Submit: Cancel must not read a pre-confirmation snapshot
	// while a concurrent Submit is capturing the charge.
	lockToken, err := c.locks.TryLock(ctx, submitLockKey(sessionID), submitLockTTL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = c.locks.Unlock(ctx, submitLockKey(sessionID), lockToken) }()

	s, err := c.sessions.Find(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.CanCancel() {
		return s, fmt.Errorf("%w: session cannot be cancelled in state %s (charge captured: %t)",
			domain.ErrConflict, s.State, s.ChargeCaptured)
	}
	c.setState(s, model.StateCancelled)
	metrics.IncCheckoutOutcome(string(model.StateCancelled))
	if err := c.sessions.Save(ctx, s); err != nil {
		return nil, err
	}
	c.log.Info().Str("session_id", s.ID).Msg("checkout cancelled")
	return s, nil
}

func (c *checkoutCoordinator) Get(ctx context.Context, sessionID string) (*model.CheckoutSession, error) {
	return c.sessions.Find(ctx, sessionID)
}

// settle records the grant for a captured charge. Runs the automatic rounds
// of the retry policy, pauses on auth expiry with the intent id intact, and
// otherwise parks the session for manual retry until the round cap.
func (c *checkoutCoordinator) settle(ctx context.Context, s *model.CheckoutSession) (*model.CheckoutSession, error) {
	c.setState(s, model.StateSettlingWithBackend)
	if err := c.sessions.Save(ctx, s); err != nil {
		return nil, err
	}

	var lastErr error
settleLoop:
	for attempt := 0; attempt < c.policy.AutoAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				break settleLoop // the session stays retryable
			case <-time.After(c.policy.Backoff << (attempt - 1)):
			}
			metrics.IncSettlementRetry()
		}

		var res *adapter.Settlement
		err := c.guard.Authenticated(ctx, s.ID, func(ctx context.Context, token string) error {
			var err error
			res, err = c.backend.ConfirmSettlement(ctx, token, s.IntentID, s.ResourceID)
			return err
		})
		if err == nil {
			s.SettlementID = res.SettlementID
			s.GrantID = res.GrantID
			return c.succeed(ctx, s)
		}

		var authErr *domain.AuthError
		if errors.As(err, &authErr) {
			// Charge already captured: park with every identifier intact so
			// re-login lands straight back here.
			c.pause(ctx, s, model.StateSettlingWithBackend)
			return s, err
		}
		lastErr = err
		c.log.Warn().Err(err).Str("session_id", s.ID).Str("intent_id", s.IntentID).
			Int("attempt", attempt+1).Msg("settlement attempt failed")
	}

	s.SettleRounds++
	metrics.IncSettlementInconsistency()
	incErr := &domain.SettlementInconsistencyError{IntentID: s.IntentID, Err: lastErr}

	if s.SettleRounds >= c.policy.MaxRounds {
		s.Failure = model.FailureSettlementInconsistency
		s.FailureDetail = fmt.Sprintf(
			"Your payment was received but your access could not be recorded. Do not pay again; contact support and quote reference %s.", s.IntentID)
		c.setState(s, model.StateFatalError)
		metrics.IncCheckoutOutcome(string(model.StateFatalError))
	} else {
		c.setState(s, model.StateSettlementRetryRequired)
	}
	if err := c.sessions.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, incErr
}

func (c *checkoutCoordinator) succeed(ctx context.Context, s *model.CheckoutSession) (*model.CheckoutSession, error) {
	c.setState(s, model.StateSucceeded)
	metrics.IncCheckoutOutcome(string(model.StateSucceeded))
	metrics.IncSettlement(string(s.Kind))
	if err := c.sessions.Save(ctx, s); err != nil {
		return nil, err
	}
	c.log.Info().Str("session_id", s.ID).Str("settlement_id", s.SettlementID).
		Str("grant_id", s.GrantID).Msg("checkout succeeded")
	return s, nil
}

func (c *checkoutCoordinator) pause(ctx context.Context, s *model.CheckoutSession, resume model.CheckoutState) {
	s.ResumeState = resume
	c.setState(s, model.StateSessionExpired)
	if err := c.sessions.Save(ctx, s); err != nil {
		c.log.Error().Err(err).Str("session_id", s.ID).Msg("failed to persist paused session")
	}
}

func (c *checkoutCoordinator) fail(ctx context.Context, s *model.CheckoutSession, kind model.FailureKind, detail string) {
	s.Failure = kind
	s.FailureDetail = detail
	c.setState(s, model.StateFatalError)
	metrics.IncCheckoutOutcome(string(model.StateFatalError))
	if err := c.sessions.Save(ctx, s); err != nil {
		c.log.Error().Err(err).Str("session_id", s.ID).Msg("failed to persist failed session")
	}
}

func (c *checkoutCoordinator) setState(s *model.CheckoutSession, to model.CheckoutState) {
	c.log.Debug().Str("session_id", s.ID).Str("from", string(s.State)).Str("to", string(to)).Msg("state transition")
	s.State = to
	s.UpdatedAt = time.Now()
}
