package repository

import "context"

// CredentialStore holds the bearer session token for one checkout session.
// Every component reads it; only the SessionGuard writes it, and only in
// response to an explicit server-reported invalidation or a re-login. That
// single-writer rule keeps one component's failure from clearing credentials
// another in-flight step still needs.
type CredentialStore interface {
	// Token returns the stored credential, or "" when none is present.
	Token(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, token string) error
	Clear(ctx context.Context, key string) error
}
