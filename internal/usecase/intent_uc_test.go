// File: internal/usecase/intent_uc_test.go
package usecase

import (
	"context"
	"testing"
	"time"

	"membership-checkout/internal/domain/model"
	"membership-checkout/internal/domain/ports/adapter"
)

func TestIntentProvisioner_ForgetEvictsCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := &fakeBackend{
		intent: &adapter.ProvisionedIntent{IntentID: "pi_1", ClientSecret: "pi_1_secret", Amount: 500, Currency: "usd"},
	}
	guard := NewSessionGuard(newMemCredStore(), testLogger())
	token := signedToken("user-1", time.Now().Add(time.Hour))
	if err := guard.Attach(ctx, "sess-1", token); err != nil {
		t.Fatalf("Attach returned error: %v", err)
	}
	p := NewIntentProvisioner(backend, guard, testLogger())

	if _, err := p.Provision(ctx, "sess-1", model.KindMembership, "club-standard"); err != nil {
		t.Fatalf("Provision returned error: %v", err)
	}
	if _, err := p.Provision(ctx, "sess-1", model.KindMembership, "club-standard"); err != nil {
		t.Fatalf("second Provision returned error: %v", err)
	}
	if backend.intentCalls != 1 {
		t.Fatalf("expected cached second call, got %d backend calls", backend.intentCalls)
	}

	p.Forget("sess-1")
	if len(p.cache) != 0 {
		t.Fatalf("Forget must evict the entry, %d left", len(p.cache))
	}

	// After eviction the backend's own idempotency takes over.
	if _, err := p.Provision(ctx, "sess-1", model.KindMembership, "club-standard"); err != nil {
		t.Fatalf("Provision after Forget returned error: %v", err)
	}
	if backend.intentCalls != 2 {
		t.Fatalf("expected backend call after eviction, got %d", backend.intentCalls)
	}
}

func TestCheckout_ProvisionEvictsIntentCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := &fakeBackend{
		resource: paidResource(500),
		intent:   &adapter.ProvisionedIntent{IntentID: "pi_1", ClientSecret: "pi_1_secret", Amount: 500, Currency: "usd"},
	}
	env := newCoordinatorEnv(backend, &fakeProcessor{}, noopLocker{}, defaultPolicy())

	token := signedToken("user-1", time.Now().Add(time.Hour))
	s, err := env.uc.Start(ctx, token, model.KindMembership, "club-standard")
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if s.IntentID != "pi_1" {
		t.Fatalf("intent not attached: %+v", s)
	}
	// The intent id is persisted on the session; the cache entry must not
	// outlive the provisioning phase.
	if len(env.provisioner.cache) != 0 {
		t.Fatalf("expected empty intent cache after provisioning, %d entries", len(env.provisioner.cache))
	}
}
