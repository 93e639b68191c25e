package usecase

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"membership-checkout/internal/domain/model"
	"membership-checkout/internal/domain/ports/adapter"
)

// Compile-time check
var _ IntentProvisioner = (*intentProvisioner)(nil)

// IntentProvisioner obtains the payment intent and client secret for a
// checkout session. The first successful result is cached until the caller
// persists it and calls Forget; the backend additionally treats repeat
// requests for an unresolved (user, resource) pair as idempotent, so a retry
// after a lost response cannot orphan an intent.
type IntentProvisioner interface {
	Provision(ctx context.Context, sessionID string, kind model.PurchaseKind, resourceID string) (*adapter.ProvisionedIntent, error)
	// Forget drops the cached result for a session. Called once the intent id
	// is durably on the session, which short-circuits any later provisioning.
	Forget(sessionID string)
}

type intentProvisioner struct {
	backend adapter.BackendGateway
	guard   *SessionGuard
	log     *zerolog.Logger

	mu    sync.Mutex
	cache map[string]*adapter.ProvisionedIntent // sessionID -> first successful result
}

func NewIntentProvisioner(backend adapter.BackendGateway, guard *SessionGuard, logger *zerolog.Logger) *intentProvisioner {
	return &intentProvisioner{
		backend: backend,
		guard:   guard,
		log:     logger,
		cache:   make(map[string]*adapter.ProvisionedIntent),
	}
}

func (p *intentProvisioner) Provision(ctx context.Context, sessionID string, kind model.PurchaseKind, resourceID string) (*adapter.ProvisionedIntent, error) {
	p.mu.Lock()
	if cached, ok := p.cache[sessionID]; ok {
		p.mu.Unlock()
		return cached, nil
	}
	p.mu.Unlock()

	var intent *adapter.ProvisionedIntent
	err := p.guard.Authenticated(ctx, sessionID, func(ctx context.Context, token string) error {
		var err error
		intent, err = p.backend.CreateIntent(ctx, token, kind, resourceID)
		return err
	})
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cache[sessionID] = intent
	p.mu.Unlock()

	p.log.Info().Str("session_id", sessionID).Str("intent_id", intent.IntentID).
		Int64("amount", intent.Amount).Msg("payment intent provisioned")
	return intent, nil
}

func (p *intentProvisioner) Forget(sessionID string) {
	p.mu.Lock()
	delete(p.cache, sessionID)
	p.mu.Unlock()
}
