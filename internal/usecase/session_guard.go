package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"membership-checkout/internal/domain"
	"membership-checkout/internal/domain/ports/repository"
)

// SessionGuard wraps every authenticated backend call. It is the single
// writer of the credential store: a missing credential is reported without
// clearing anything (there is nothing to clear), and the stored credential is
// dropped only when the server explicitly rejects it. In-flight checkout
// state is never touched here, so the coordinator can resume after
// re-authentication instead of restarting.
type SessionGuard struct {
	creds  repository.CredentialStore
	parser *jwt.Parser
	log    *zerolog.Logger
}

func NewSessionGuard(creds repository.CredentialStore, logger *zerolog.Logger) *SessionGuard {
	return &SessionGuard{
		creds:  creds,
		parser: jwt.NewParser(),
		log:    logger,
	}
}

// Attach stores the credential presented when a checkout session starts.
func (g *SessionGuard) Attach(ctx context.Context, key, token string) error {
	if token == "" {
		return nil
	}
	return g.creds.Set(ctx, key, token)
}

// Refresh replaces the credential after the user re-authenticates.
func (g *SessionGuard) Refresh(ctx context.Context, key, token string) error {
	if token == "" {
		return &domain.AuthError{Reason: domain.AuthReasonMissing}
	}
	return g.creds.Set(ctx, key, token)
}

// Authenticated runs fn with the stored credential. A locally-expired token
// is reported before the call goes out; the store is cleared only on a
// server-reported rejection.
func (g *SessionGuard) Authenticated(ctx context.Context, key string, fn func(ctx context.Context, token string) error) error {
	token, err := g.creds.Token(ctx, key)
	if err != nil {
		return err
	}
	if token == "" {
		return &domain.AuthError{Reason: domain.AuthReasonMissing}
	}
	if g.expired(token) {
		// Present but stale. Leave it stored; the server is the authority
		// that triggers clearing.
		return &domain.AuthError{Reason: domain.AuthReasonExpired}
	}

	err = fn(ctx, token)

	var authErr *domain.AuthError
	if errors.As(err, &authErr) && authErr.Reason == domain.AuthReasonExpired {
		if clearErr := g.creds.Clear(ctx, key); clearErr != nil {
			g.log.Warn().Err(clearErr).Str("key", key).Msg("failed to clear rejected credential")
		}
	}
	return err
}

// subjectOf extracts the sub claim without verification, to label a session
// with its user. Empty for opaque non-JWT tokens.
func subjectOf(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	sub, _ := claims.GetSubject()
	return sub
}

// expired checks the token's exp claim without verifying the signature.
// Signature verification happens at the backend.
func (g *SessionGuard) expired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := g.parser.ParseUnverified(token, claims); err != nil {
		return false // not a JWT; let the server judge it
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}
