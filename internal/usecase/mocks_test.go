// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"membership-checkout/internal/domain"
	"membership-checkout/internal/domain/model"
	"membership-checkout/internal/domain/ports/adapter"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// signedToken mints an HS256 JWT for tests; the guard only inspects claims
// locally, so any secret works.
func signedToken(sub string, exp time.Time) string {
	claims := jwt.MapClaims{"sub": sub}
	if !exp.IsZero() {
		claims["exp"] = exp.Unix()
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		panic(err)
	}
	return tok
}

// memSessionRepo is a small in-memory implementation used by unit tests.
type memSessionRepo struct {
	mu      sync.RWMutex
	store   map[string]*model.CheckoutSession
	saveErr error // used by tests to simulate save failures
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{store: make(map[string]*model.CheckoutSession)}
}

func (m *memSessionRepo) Save(ctx context.Context, s *model.CheckoutSession) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.store[s.ID] = &cp
	return nil
}

func (m *memSessionRepo) Find(ctx context.Context, id string) (*model.CheckoutSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.store[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSessionRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, id)
	return nil
}

// memCredStore counts writes so tests can assert the single-writer rule.
type memCredStore struct {
	mu         sync.Mutex
	store      map[string]string
	setCalls   int
	clearCalls int
}

func newMemCredStore() *memCredStore {
	return &memCredStore{store: make(map[string]string)}
}

func (m *memCredStore) Token(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store[key], nil
}

func (m *memCredStore) Set(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	m.store[key] = token
	return nil
}

func (m *memCredStore) Clear(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearCalls++
	delete(m.store, key)
	return nil
}

// fakeBackend scripts the settlement backend per call and records traffic.
type fakeBackend struct {
	mu sync.Mutex

	resource    *model.PurchasableResource
	resourceErr error

	intent    *adapter.ProvisionedIntent
	intentErr error

	settlement  *adapter.Settlement
	settleErrs  []error // consumed one per ConfirmSettlement call, nil = success
	freeErr     error
	settleCalls []string // intent ids passed to ConfirmSettlement
	intentCalls int
	freeCalls   int
}

func (f *fakeBackend) FetchResource(ctx context.Context, kind model.PurchaseKind, id string) (*model.PurchasableResource, error) {
	if f.resourceErr != nil {
		return nil, f.resourceErr
	}
	return f.resource, nil
}

func (f *fakeBackend) CreateIntent(ctx context.Context, token string, kind model.PurchaseKind, resourceID string) (*adapter.ProvisionedIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intentCalls++
	if f.intentErr != nil {
		return nil, f.intentErr
	}
	return f.intent, nil
}

func (f *fakeBackend) ConfirmSettlement(ctx context.Context, token, intentID, resourceID string) (*adapter.Settlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settleCalls = append(f.settleCalls, intentID)
	if len(f.settleErrs) > 0 {
		err := f.settleErrs[0]
		f.settleErrs = f.settleErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.settlement, nil
}

func (f *fakeBackend) RegisterFree(ctx context.Context, token string, kind model.PurchaseKind, resourceID string) (*adapter.Settlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.freeCalls++
	if f.freeErr != nil {
		return nil, f.freeErr
	}
	return f.settlement, nil
}

// fakeProcessor scripts the payment processor.
type fakeProcessor struct {
	mu sync.Mutex

	method    *model.TokenizedPaymentMethod
	methodErr error

	confirmStatus model.IntentStatus
	confirmErr    error
	confirmCalls  int

	retrieveStatus model.IntentStatus
	retrieveErr    error
}

func (f *fakeProcessor) Name() string { return "fake" }

func (f *fakeProcessor) CreatePaymentMethod(ctx context.Context, cardSession string, billing model.BillingDetails) (*model.TokenizedPaymentMethod, error) {
	if f.methodErr != nil {
		return nil, f.methodErr
	}
	if f.method != nil {
		return f.method, nil
	}
	return &model.TokenizedPaymentMethod{ID: "pm_test", Brand: "visa", Last4: "4242"}, nil
}

func (f *fakeProcessor) ConfirmIntent(ctx context.Context, clientSecret, methodID string) (model.IntentStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmCalls++
	if f.confirmErr != nil {
		return "", f.confirmErr
	}
	return f.confirmStatus, nil
}

func (f *fakeProcessor) CreateIntent(ctx context.Context, amount int64, currency string, meta map[string]string) (string, string, error) {
	return "pi_test", "pi_test_secret", nil
}

func (f *fakeProcessor) RetrieveIntentStatus(ctx context.Context, intentID string) (model.IntentStatus, error) {
	if f.retrieveErr != nil {
		return "", f.retrieveErr
	}
	return f.retrieveStatus, nil
}

// noopLocker always grants the lock.
type noopLocker struct{}

func (noopLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "tok", nil
}
func (noopLocker) Unlock(ctx context.Context, key, token string) error { return nil }

// busyLocker simulates another submit holding the session lock.
type busyLocker struct{}

func (busyLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "", domain.ErrSubmitInFlight
}
func (busyLocker) Unlock(ctx context.Context, key, token string) error { return nil }

// coordinatorEnv bundles the coordinator with its fakes.
type coordinatorEnv struct {
	uc          CheckoutCoordinator
	sessions    *memSessionRepo
	creds       *memCredStore
	backend     *fakeBackend
	proc        *fakeProcessor
	provisioner *intentProvisioner
}

func newCoordinatorEnv(backend *fakeBackend, proc *fakeProcessor, locks SubmitLocker, policy SettlePolicy) *coordinatorEnv {
	sessions := newMemSessionRepo()
	creds := newMemCredStore()
	log := testLogger()
	guard := NewSessionGuard(creds, log)
	breakdowns := map[model.PurchaseKind]model.BreakdownFunc{
		model.KindMembership:   model.MembershipBreakdown,
		model.KindRegistration: model.RegistrationBreakdown(250),
	}
	provisioner := NewIntentProvisioner(backend, guard, log)
	uc := NewCheckoutCoordinator(
		sessions, backend, proc,
		NewResourceFetcher(backend, log),
		provisioner,
		NewCardCaptureForm(proc, log),
		guard, locks, breakdowns, policy, log,
	)
	return &coordinatorEnv{
		uc: uc, sessions: sessions, creds: creds,
		backend: backend, proc: proc, provisioner: provisioner,
	}
}
