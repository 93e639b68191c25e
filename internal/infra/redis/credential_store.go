package redis

import (
	"context"
	"time"

	"membership-checkout/internal/domain/ports/repository"
)

var _ repository.CredentialStore = (*CredentialStore)(nil)

// CredentialStore keeps the bearer session token for each checkout session.
// Writes go through the SessionGuard only.
type CredentialStore struct {
	client *Client
	ttl    time.Duration
}

func NewCredentialStore(client *Client, ttl time.Duration) *CredentialStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CredentialStore{client: client, ttl: ttl}
}

func credentialKey(key string) string { return "checkout:cred:" + key }

func (s *CredentialStore) Token(ctx context.Context, key string) (string, error) {
	return s.client.Get(ctx, credentialKey(key))
}

func (s *CredentialStore) Set(ctx context.Context, key, token string) error {
	return s.client.Set(ctx, credentialKey(key), token, s.ttl)
}

func (s *CredentialStore) Clear(ctx context.Context, key string) error {
	return s.client.Del(ctx, credentialKey(key))
}
