// File: internal/usecase/session_guard_test.go
package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"membership-checkout/internal/domain"
)

func TestSessionGuard_MissingCredentialDoesNotClear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	creds := newMemCredStore()
	guard := NewSessionGuard(creds, testLogger())

	called := false
	err := guard.Authenticated(ctx, "sess-1", func(ctx context.Context, token string) error {
		called = true
		return nil
	})

	var authErr *domain.AuthError
	if !errors.As(err, &authErr) || authErr.Reason != domain.AuthReasonMissing {
		t.Fatalf("expected missing-credential error, got %v", err)
	}
	if called {
		t.Fatalf("fn must not run without a credential")
	}
	if creds.clearCalls != 0 {
		t.Fatalf("missing credential must not clear the store, got %d clears", creds.clearCalls)
	}
}

func TestSessionGuard_LocallyExpiredTokenSkipsCall(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	creds := newMemCredStore()
	guard := NewSessionGuard(creds, testLogger())

	stale := signedToken("user-1", time.Now().Add(-time.Hour))
	if err := guard.Attach(ctx, "sess-1", stale); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	called := false
	err := guard.Authenticated(ctx, "sess-1", func(ctx context.Context, token string) error {
		called = true
		return nil
	})

	var authErr *domain.AuthError
	if !errors.As(err, &authErr) || authErr.Reason != domain.AuthReasonExpired {
		t.Fatalf("expected expired-credential error, got %v", err)
	}
	if called {
		t.Fatalf("a locally-expired token must not go out")
	}
	// Local expiry is a guess; only the server's verdict clears the store.
	if creds.clearCalls != 0 {
		t.Fatalf("local expiry must not clear the store, got %d clears", creds.clearCalls)
	}
}

func TestSessionGuard_ServerRejectionClearsOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	creds := newMemCredStore()
	guard := NewSessionGuard(creds, testLogger())

	token := signedToken("user-1", time.Now().Add(time.Hour))
	if err := guard.Attach(ctx, "sess-1", token); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	err := guard.Authenticated(ctx, "sess-1", func(ctx context.Context, got string) error {
		if got != token {
			t.Fatalf("fn must receive the stored token")
		}
		return &domain.AuthError{Reason: domain.AuthReasonExpired}
	})

	var authErr *domain.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if creds.clearCalls != 1 {
		t.Fatalf("server rejection must clear exactly once, got %d", creds.clearCalls)
	}
	if tok, _ := creds.Token(ctx, "sess-1"); tok != "" {
		t.Fatalf("credential must be gone after server rejection, got %q", tok)
	}
}

func TestSessionGuard_OtherErrorsLeaveCredentialAlone(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	creds := newMemCredStore()
	guard := NewSessionGuard(creds, testLogger())

	token := signedToken("user-1", time.Now().Add(time.Hour))
	_ = guard.Attach(ctx, "sess-1", token)

	netErr := &domain.NetworkError{Op: "POST /payments/confirm", Err: errors.New("timeout")}
	err := guard.Authenticated(ctx, "sess-1", func(ctx context.Context, token string) error {
		return netErr
	})
	if !errors.Is(err, netErr) {
		t.Fatalf("expected the network error back, got %v", err)
	}
	if creds.clearCalls != 0 {
		t.Fatalf("network failure must not clear the credential, got %d clears", creds.clearCalls)
	}
}

func TestSessionGuard_OpaqueTokenGoesToServer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	creds := newMemCredStore()
	guard := NewSessionGuard(creds, testLogger())

	// Not a JWT: no local expiry judgment is possible.
	_ = guard.Attach(ctx, "sess-1", "opaque-session-token")

	called := false
	err := guard.Authenticated(ctx, "sess-1", func(ctx context.Context, token string) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("opaque token must be presented to the server: called=%t err=%v", called, err)
	}
}

func TestSessionGuard_RefreshRequiresToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	creds := newMemCredStore()
	guard := NewSessionGuard(creds, testLogger())

	var authErr *domain.AuthError
	if err := guard.Refresh(ctx, "sess-1", ""); !errors.As(err, &authErr) {
		t.Fatalf("empty refresh must be rejected, got %v", err)
	}
	if err := guard.Attach(ctx, "sess-1", ""); err != nil {
		t.Fatalf("empty attach is a no-op, got %v", err)
	}
	if creds.setCalls != 0 {
		t.Fatalf("no writes expected, got %d", creds.setCalls)
	}
}

func TestSubjectOf(t *testing.T) {
	t.Parallel()

	token := signedToken("user-42", time.Now().Add(time.Hour))
	if got := subjectOf(token); got != "user-42" {
		t.Fatalf("expected user-42, got %q", got)
	}
	if got := subjectOf("opaque"); got != "" {
		t.Fatalf("expected empty subject for opaque token, got %q", got)
	}
}
