package repository

import (
	"context"

	"membership-checkout/internal/domain/model"
)

// CheckoutStateRepository persists in-flight checkout sessions so a flow can
// survive process restarts and re-authentication pauses. Sessions with a
// captured charge must not expire until they settle.
type CheckoutStateRepository interface {
	Save(ctx context.Context, s *model.CheckoutSession) error
	Find(ctx context.Context, id string) (*model.CheckoutSession, error)
	Delete(ctx context.Context, id string) error
}
