package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"membership-checkout/internal/domain/model"
	"membership-checkout/internal/domain/ports/adapter"
)

// Compile-time check
var _ ResourceFetcher = (*resourceFetcher)(nil)

// ResourceFetcher loads the purchasable resource a checkout is about. The
// result decides whether the payment machinery runs at all: free resources
// take the direct registration path.
type ResourceFetcher interface {
	Fetch(ctx context.Context, kind model.PurchaseKind, id string) (*model.PurchasableResource, error)
}

type resourceFetcher struct {
	backend adapter.BackendGateway
	log     *zerolog.Logger
}

func NewResourceFetcher(backend adapter.BackendGateway, logger *zerolog.Logger) *resourceFetcher {
	return &resourceFetcher{backend: backend, log: logger}
}

func (f *resourceFetcher) Fetch(ctx context.Context, kind model.PurchaseKind, id string) (*model.PurchasableResource, error) {
	r, err := f.backend.FetchResource(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	f.log.Debug().Str("resource_id", r.ID).Str("kind", string(r.Kind)).
		Int64("price", r.Price).Bool("free", r.IsFree()).Msg("resource fetched")
	return r, nil
}
