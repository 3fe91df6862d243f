package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rl1809/campus-orders/internal/adapter/storage"
	"github.com/rl1809/campus-orders/internal/core/domain"
)

// Mock Notifier
type mockNotifier struct {
	mu     sync.Mutex
	events []domain.PaymentEvent
	err    error
}

func (m *mockNotifier) Emit(ctx context.Context, event domain.PaymentEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

func (m *mockNotifier) Events() []domain.PaymentEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.PaymentEvent(nil), m.events...)
}

// Mock CacheRepository
type mockCacheRepo struct {
	mu             sync.Mutex
	idempotencySet map[string]bool
	err            error
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{idempotencySet: make(map[string]bool)}
}

func (m *mockCacheRepo) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return false, m.err
	}
	if m.idempotencySet[key] {
		return false, nil
	}
	m.idempotencySet[key] = true
	return true, nil
}

func (m *mockCacheRepo) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.idempotencySet, key)
	return nil
}

type testEnv struct {
	store        *storage.MemoryAdapter
	cache        *mockCacheRepo
	notifier     *mockNotifier
	carts        *CartService
	orders       *OrderService
	verification *VerificationService
	catalog      *CatalogService
}

var (
	student = domain.Principal{ID: "student-1", Email: "student@uni.edu"}
	admin   = domain.Principal{ID: "admin-1", Email: "treasurer@uni.edu"}
)

func newTestEnv() *testEnv {
	store := storage.NewMemoryAdapter()
	cache := newMockCacheRepo()
	notifier := &mockNotifier{}
	policy := NewAdminPolicy([]string{admin.Email})

	carts := NewCartService(store, store, NewKeyedMutex())
	orders := NewOrderService(store, store, carts, cache, DuesConfig{Amount: 5000, Title: "Membership dues"})

	return &testEnv{
		store:        store,
		cache:        cache,
		notifier:     notifier,
		carts:        carts,
		orders:       orders,
		verification: NewVerificationService(orders, store, notifier, policy),
		catalog:      NewCatalogService(store, policy),
	}
}

func (e *testEnv) seedProduct(t *testing.T, id string, price int64, stock int) {
	t.Helper()
	err := e.store.CreateProduct(context.Background(), domain.Product{
		ID:          id,
		Title:       id,
		Price:       price,
		Stock:       stock,
		IsAvailable: true,
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
}

func (e *testEnv) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := e.store.GetProduct(context.Background(), id)
	if err != nil || p == nil {
		t.Fatalf("get product %s: %v", id, err)
	}
	return p.Stock
}

// hidden is a catalog edit that withdraws a product from sale.
func hidden(id string) domain.Product {
	return domain.Product{ID: id, Title: id, Price: 100, IsAvailable: false}
}

func assertErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}
