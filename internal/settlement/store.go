package settlement

import (
	"context"
	"time"

	"membership-checkout/internal/domain/model"
)

// Store is the persistence port of the settlement backend. Implementations
// must report duplicate settlements (same intent id, or same user+resource
// for a free grant) as domain.ErrAlreadyExists so handlers can answer
// idempotently.
type Store interface {
	FindResource(ctx context.Context, id string) (*model.PurchasableResource, error)
	SaveResource(ctx context.Context, res *model.PurchasableResource) error

	FindUnresolvedIntent(ctx context.Context, userID, resourceID string) (*model.PaymentIntent, error)
	ListUnresolvedOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.PaymentIntent, error)
	SaveIntent(ctx context.Context, intent *model.PaymentIntent) error
	FindIntent(ctx context.Context, id string) (*model.PaymentIntent, error)
	MarkIntentStatus(ctx context.Context, id string, status model.IntentStatus) error

	InsertSettlement(ctx context.Context, rec *model.SettlementRecord) error
	FindSettlementByIntent(ctx context.Context, intentID string) (*model.SettlementRecord, error)
	FindFreeSettlement(ctx context.Context, userID, resourceID string) (*model.SettlementRecord, error)
}
