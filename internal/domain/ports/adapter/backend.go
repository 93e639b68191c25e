package adapter

import (
	"context"

	"membership-checkout/internal/domain/model"
)

// ProvisionedIntent is the backend's answer to create-intent.
type ProvisionedIntent struct {
	IntentID     string
	ClientSecret string
	Amount       int64
	Currency     string
}

// Settlement is the backend's durable grant for a confirmed charge or a free
// registration.
type Settlement struct {
	SettlementID string
	GrantID      string
}

// BackendGateway is the hex port for the settlement backend HTTP surface.
// Every authenticated call takes the bearer session token explicitly; the
// SessionGuard decides which token to present and how to react to rejection.
type BackendGateway interface {
	// FetchResource loads price and metadata for a purchasable resource.
	FetchResource(ctx context.Context, kind model.PurchaseKind, id string) (*model.PurchasableResource, error)
	// CreateIntent creates-or-fetches the unresolved payment intent for
	// (user, resource). Idempotent server-side.
	CreateIntent(ctx context.Context, token string, kind model.PurchaseKind, resourceID string) (*ProvisionedIntent, error)
	// ConfirmSettlement records the grant for a captured charge. Safe to
	// re-call with the same intent id.
	ConfirmSettlement(ctx context.Context, token, intentID, resourceID string) (*Settlement, error)
	// RegisterFree grants a free resource directly, bypassing payment.
	RegisterFree(ctx context.Context, token string, kind model.PurchaseKind, resourceID string) (*Settlement, error)
}
