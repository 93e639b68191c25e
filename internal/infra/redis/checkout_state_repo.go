package redis

import (
	"context"
	"encoding/json"
	"time"

	"membership-checkout/internal/domain"
	"membership-checkout/internal/domain/model"
	"membership-checkout/internal/domain/ports/repository"
)

var _ repository.CheckoutStateRepository = (*CheckoutStateRepo)(nil)

// CheckoutStateRepo persists in-flight checkout sessions in Redis. Idle
// sessions expire after the configured TTL; once a charge is captured the
// session is stored without expiry, because an unsettled captured charge must
// stay retryable rather than quietly aging out.
type CheckoutStateRepo struct {
	client *Client
	ttl    time.Duration
}

func NewCheckoutStateRepo(client *Client, ttl time.Duration) *CheckoutStateRepo {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CheckoutStateRepo{client: client, ttl: ttl}
}

func sessionKey(id string) string { return "checkout:sess:" + id }

func (r *CheckoutStateRepo) Save(ctx context.Context, s *model.CheckoutSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ttl := r.ttl
	if s.ChargeCaptured && s.State != model.StateSucceeded {
		ttl = 0 // no expiry until the grant is durable
	}
	return r.client.Set(ctx, sessionKey(s.ID), data, ttl)
}

func (r *CheckoutStateRepo) Find(ctx context.Context, id string) (*model.CheckoutSession, error) {
	data, err := r.client.Get(ctx, sessionKey(id))
	if err != nil {
		return nil, err
	}
	if data == "" {
		return nil, domain.ErrSessionNotFound
	}
	var s model.CheckoutSession
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *CheckoutStateRepo) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, sessionKey(id))
}
