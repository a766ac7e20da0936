package services

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	domain "github.com/hanko-field/checkout/internal/domain"
	"github.com/hanko-field/checkout/internal/repositories"
)

type testRepoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e testRepoError) Error() string       { return e.msg }
func (e testRepoError) IsNotFound() bool    { return e.notFound }
func (e testRepoError) IsConflict() bool    { return e.conflict }
func (e testRepoError) IsUnavailable() bool { return e.unavailable }

var (
	errTestNotFound    = testRepoError{msg: "not found", notFound: true}
	errTestUnavailable = testRepoError{msg: "unavailable", unavailable: true}
)

func int64Ptr(v int64) *int64 { return &v }

type stubCatalog struct {
	mu       sync.Mutex
	products map[string]domain.Product
	errs     map[string]error
	reads    int
}

func (s *stubCatalog) GetProduct(_ context.Context, productID string) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if err, ok := s.errs[productID]; ok {
		return domain.Product{}, err
	}
	product, ok := s.products[productID]
	if !ok {
		return domain.Product{}, errTestNotFound
	}
	return product, nil
}

type stubRuleStore struct {
	rules   []domain.DiscountRule
	err     error
	calls   int
	tenants []string
}

func (s *stubRuleStore) ListRules(_ context.Context, tenantID string) ([]domain.DiscountRule, error) {
	s.calls++
	s.tenants = append(s.tenants, tenantID)
	if s.err != nil {
		return nil, s.err
	}
	return s.rules, nil
}

// memoryOrderStore mimics the transactional reservation semantics with a single lock.
type memoryOrderStore struct {
	mu          sync.Mutex
	products    map[string]domain.Product
	orders      map[string]domain.Order
	reserveErr  error
	transitions int
}

func newMemoryOrderStore(products ...domain.Product) *memoryOrderStore {
	store := &memoryOrderStore{
		products: make(map[string]domain.Product),
		orders:   make(map[string]domain.Order),
	}
	for _, p := range products {
		store.products[p.ID] = cloneProduct(p)
	}
	return store
}

func cloneProduct(p domain.Product) domain.Product {
	p.Variants = slices.Clone(p.Variants)
	return p
}

func (m *memoryOrderStore) product(id string) domain.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneProduct(m.products[id])
}

func (m *memoryOrderStore) ReserveAndCreate(_ context.Context, req repositories.ReservationRequest, build repositories.OrderBuilder) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reserveErr != nil {
		return domain.Order{}, m.reserveErr
	}

	working := m.working(productIDs(req.Lines))
	plan := repositories.PlanReservation(working, req.Lines)
	if len(plan.Lines) == 0 {
		return domain.Order{}, repositories.ErrNoAvailableItems
	}
	order, err := build(plan.Lines, plan.Adjustments)
	if err != nil {
		return domain.Order{}, err
	}
	for _, id := range plan.Touched {
		m.products[id] = *working[id]
	}
	m.orders[order.ID] = order
	return order, nil
}

func (m *memoryOrderStore) Transition(_ context.Context, orderID string, fn repositories.TransitionFunc) (domain.Order, repositories.TransitionPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions++
	stored, ok := m.orders[orderID]
	if !ok {
		return domain.Order{}, repositories.TransitionPlan{}, errTestNotFound
	}
	order := stored
	order.StatusHistory = slices.Clone(stored.StatusHistory)
	plan, err := fn(&order)
	if err != nil {
		return domain.Order{}, repositories.TransitionPlan{}, err
	}
	if !plan.Write {
		return order, plan, nil
	}
	if plan.ReleaseReservations {
		ids := make([]string, 0, len(order.Lines))
		for _, line := range order.Lines {
			ids = append(ids, line.ProductID)
		}
		working := m.working(ids)
		for _, id := range repositories.PlanRelease(working, order.Lines) {
			m.products[id] = *working[id]
		}
	}
	m.orders[orderID] = order
	return order, plan, nil
}

// working copies the stored products for ids; unknown ids stay absent.
func (m *memoryOrderStore) working(ids []string) map[string]*domain.Product {
	products := make(map[string]*domain.Product, len(ids))
	for _, id := range ids {
		stored, ok := m.products[id]
		if !ok {
			continue
		}
		product := cloneProduct(stored)
		products[id] = &product
	}
	return products
}

func productIDs(lines []repositories.ReservationLine) []string {
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	return ids
}

func (m *memoryOrderStore) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return domain.Order{}, errTestNotFound
	}
	return order, nil
}

type stubSellerIndex struct {
	mu        sync.Mutex
	upserts   []domain.SellerOrderSummary
	updates   []domain.LifecycleStatus
	summaries []domain.SellerOrderSummary
	upsertErr error
	updateErr error
	listFn    func(context.Context, repositories.SellerOrderQuery) (domain.Page[domain.SellerOrderSummary], error)
}

func (s *stubSellerIndex) Upsert(_ context.Context, summary domain.SellerOrderSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserts = append(s.upserts, summary)
	return nil
}

func (s *stubSellerIndex) UpdateStatus(_ context.Context, summary domain.SellerOrderSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updates = append(s.updates, summary.LifecycleStatus)
	s.summaries = append(s.summaries, summary)
	return nil
}

func (s *stubSellerIndex) List(ctx context.Context, query repositories.SellerOrderQuery) (domain.Page[domain.SellerOrderSummary], error) {
	if s.listFn != nil {
		return s.listFn(ctx, query)
	}
	return domain.Page[domain.SellerOrderSummary]{}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, event)
	return "msg-" + event.OrderID, nil
}

type recordingLogger struct {
	mu     sync.Mutex
	events []string
}

func (l *recordingLogger) log(_ context.Context, event string, _ map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *recordingLogger) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Contains(l.events, event)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var errBoom = errors.New("boom")
