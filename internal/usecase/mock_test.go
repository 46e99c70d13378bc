//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"vendor-billing-engine/internal/domain"
	"vendor-billing-engine/internal/domain/model"
	"vendor-billing-engine/internal/domain/ports/adapter"
	"vendor-billing-engine/internal/domain/ports/repository"
)

// -----------------------------
// Utilities: tiny helpers
// -----------------------------

// newTestLogger creates a silent zerolog.Logger so test output stays clean.
func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func strPtr(s string) *string { return &s }

func testCatalog() *model.PlanCatalog {
	c, err := model.NewPlanCatalog("v1", []model.BillingPlan{
		{ID: "basic", Name: "Basic", MonthlyPrice: 100, YearlyPrice: 1000, TrialDays: 14},
		{ID: "pro", Name: "Pro", MonthlyPrice: 300, YearlyPrice: 3000, TrialDays: 14},
		{ID: "nofree", Name: "No Trial", MonthlyPrice: 500, YearlyPrice: 5000},
	})
	if err != nil {
		panic(err)
	}
	return c
}

// ---- In-memory SubscriptionRepository ----

type MockSubscriptionRepo struct {
	mu   sync.Mutex
	data map[string]*model.Subscription

	CreateFunc   func(ctx context.Context, tx repository.Tx, s *model.Subscription) error
	UpdateFunc   func(ctx context.Context, tx repository.Tx, s *model.Subscription, readAt time.Time) error
	FindByIDFunc func(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error)
	ListDueFunc  func(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Subscription, error)

	FindActiveFunc func(ctx context.Context, tx repository.Tx, vendorID string) (*model.Subscription, error)
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{data: map[string]*model.Subscription{}}
}

func (r *MockSubscriptionRepo) Create(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if r.CreateFunc != nil {
		return r.CreateFunc(ctx, tx, s)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if _, ok := r.data[s.ID]; ok {
		return domain.ErrConflict
	}
	cp := *s
	r.data[s.ID] = &cp
	return nil
}

func (r *MockSubscriptionRepo) Update(ctx context.Context, tx repository.Tx, s *model.Subscription, readAt time.Time) error {
	if r.UpdateFunc != nil {
		return r.UpdateFunc(ctx, tx, s, readAt)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.data[s.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if !cur.UpdatedAt.Equal(readAt) {
		return domain.ErrConflict
	}
	cp := *s
	r.data[s.ID] = &cp
	return nil
}

func (r *MockSubscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	if r.FindByIDFunc != nil {
		return r.FindByIDFunc(ctx, tx, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MockSubscriptionRepo) FindActiveByVendor(ctx context.Context, tx repository.Tx, vendorID string) (*model.Subscription, error) {
	if r.FindActiveFunc != nil {
		return r.FindActiveFunc(ctx, tx, vendorID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.data {
		if s.VendorID != vendorID {
			continue
		}
		switch s.Status {
		case model.SubscriptionStatusTrial, model.SubscriptionStatusActive, model.SubscriptionStatusPastDue:
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockSubscriptionRepo) ListDue(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Subscription, error) {
	if r.ListDueFunc != nil {
		return r.ListDueFunc(ctx, tx, now, limit)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Subscription
	for _, s := range r.data {
		expirable := s.Status != model.SubscriptionStatusCancelled && s.CancelAtPeriodEnd && !now.Before(s.EndDate)
		if s.DueForBilling(now) || expirable {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MockSubscriptionRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[model.SubscriptionStatus]int{}
	for _, s := range r.data {
		out[s.Status]++
	}
	return out, nil
}

// Get returns the stored record without copying, for assertions.
func (r *MockSubscriptionRepo) Get(id string) *model.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data[id]
}

func (r *MockSubscriptionRepo) Put(s *model.Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.data[s.ID] = &cp
}

// ---- In-memory LedgerRepository ----

type MockLedgerRepo struct {
	mu      sync.Mutex
	entries []*model.Transaction

	AppendFunc func(ctx context.Context, tx repository.Tx, t *model.Transaction) error
}

var _ repository.LedgerRepository = (*MockLedgerRepo)(nil)

func NewMockLedgerRepo() *MockLedgerRepo {
	return &MockLedgerRepo{}
}

func (r *MockLedgerRepo) Append(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	if r.AppendFunc != nil {
		return r.AppendFunc(ctx, tx, t)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if t.GatewayRef != "" && e.SubscriptionID == t.SubscriptionID && e.Type == t.Type && e.GatewayRef == t.GatewayRef {
			return domain.ErrDuplicateEvent
		}
		if t.PeriodKey != "" && t.Status == model.TransactionStatusCompleted &&
			e.SubscriptionID == t.SubscriptionID && e.PeriodKey == t.PeriodKey && e.Status == model.TransactionStatusCompleted {
			return domain.ErrDuplicateEvent
		}
	}
	cp := *t
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *MockLedgerRepo) ExistsByGatewayRef(ctx context.Context, tx repository.Tx, subscriptionID string, typ model.TransactionType, gatewayRef string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.SubscriptionID == subscriptionID && e.Type == typ && e.GatewayRef == gatewayRef {
			return true, nil
		}
	}
	return false, nil
}

func (r *MockLedgerRepo) ExistsForPeriod(ctx context.Context, tx repository.Tx, subscriptionID, periodKey string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.SubscriptionID == subscriptionID && e.PeriodKey == periodKey && e.Status == model.TransactionStatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (r *MockLedgerRepo) ListBySubscription(ctx context.Context, tx repository.Tx, subscriptionID string, limit int) ([]*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Transaction
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].SubscriptionID == subscriptionID {
			cp := *r.entries[i]
			out = append(out, &cp)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Entries returns a snapshot for assertions.
func (r *MockLedgerRepo) Entries() []*model.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Transaction, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *MockLedgerRepo) ByType(typ model.TransactionType) []*model.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Transaction
	for _, e := range r.entries {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// ---- Mock PaymentGateway ----

type MockPaymentGateway struct {
	mu      sync.Mutex
	charges []ChargeCall

	CreateCustomerFunc  func(ctx context.Context, details adapter.CustomerDetails) (string, error)
	ChargeFunc          func(ctx context.Context, amount int64, currency, target string, metadata map[string]string) (adapter.ChargeResult, error)
	RetrievePaymentFunc func(ctx context.Context, paymentID string) (adapter.ChargeResult, error)
}

type ChargeCall struct {
	Amount   int64
	Target   string
	Metadata map[string]string
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func (g *MockPaymentGateway) Name() string { return "mock" }

func (g *MockPaymentGateway) CreateCustomer(ctx context.Context, details adapter.CustomerDetails) (string, error) {
	if g.CreateCustomerFunc != nil {
		return g.CreateCustomerFunc(ctx, details)
	}
	return "cus_test", nil
}

func (g *MockPaymentGateway) Charge(ctx context.Context, amount int64, currency, target string, metadata map[string]string) (adapter.ChargeResult, error) {
	g.mu.Lock()
	g.charges = append(g.charges, ChargeCall{Amount: amount, Target: target, Metadata: metadata})
	g.mu.Unlock()
	if g.ChargeFunc != nil {
		return g.ChargeFunc(ctx, amount, currency, target, metadata)
	}
	return adapter.ChargeResult{ID: "pay_test", Status: adapter.ChargeStatusSucceeded, Amount: amount}, nil
}

func (g *MockPaymentGateway) AttachPaymentMethod(ctx context.Context, intentID, methodID string) (string, error) {
	return "succeeded", nil
}

func (g *MockPaymentGateway) RetrievePayment(ctx context.Context, paymentID string) (adapter.ChargeResult, error) {
	if g.RetrievePaymentFunc != nil {
		return g.RetrievePaymentFunc(ctx, paymentID)
	}
	return adapter.ChargeResult{ID: paymentID, Status: adapter.ChargeStatusSucceeded}, nil
}

func (g *MockPaymentGateway) Charges() []ChargeCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]ChargeCall, len(g.charges))
	copy(out, g.charges)
	return out
}

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

// WithTx executes fn immediately without a real transaction. Tests that need
// to observe or fail the transaction assign WithTxFunc.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// ---- In-memory SweepLocker ----

type MockLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}}
}

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if tok := l.held[key]; tok != "" {
		return "", errors.New("locked")
	}
	tok := uuid.NewString()
	l.held[key] = tok
	return tok, nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		return nil
	}
	return errors.New("unlock token mismatch")
}
