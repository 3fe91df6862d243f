package storage

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rl1809/campus-orders/internal/core/domain"
	"github.com/rl1809/campus-orders/internal/port"
)

// MemoryAdapter keeps every record in process memory behind one lock. Each
// method is atomic on its own, which gives it the same guarantees as the
// transactional MySQL adapter for a single instance.
type MemoryAdapter struct {
	mu            sync.RWMutex
	products      map[string]domain.Product
	carts         map[string]domain.Cart
	payments      map[string]domain.Payment
	references    map[string]string
	receipts      map[string]string
	notifications map[string]domain.Notification
	idempotency   map[string]time.Time
	now           func() time.Time
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		products:      make(map[string]domain.Product),
		carts:         make(map[string]domain.Cart),
		payments:      make(map[string]domain.Payment),
		references:    make(map[string]string),
		receipts:      make(map[string]string),
		notifications: make(map[string]domain.Notification),
		idempotency:   make(map[string]time.Time),
		now:           time.Now,
	}
}

func (m *MemoryAdapter) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Catalog

func (m *MemoryAdapter) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *MemoryAdapter) GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (m *MemoryAdapter) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Product, 0, len(m.products))
	for _, p := range m.products {
		if filter.Matches(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryAdapter) CreateProduct(ctx context.Context, product domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[product.ID]; ok {
		return port.ErrDuplicateKey
	}
	m.products[product.ID] = product
	return nil
}

func (m *MemoryAdapter) UpdateProduct(ctx context.Context, product domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.products[product.ID]
	if !ok {
		return port.ErrNotFound
	}
	current.Title = product.Title
	current.Price = product.Price
	current.Category = product.Category
	current.IsAvailable = product.IsAvailable
	current.UpdatedAt = product.UpdatedAt
	m.products[product.ID] = current
	return nil
}

func (m *MemoryAdapter) SetStock(ctx context.Context, id string, expected, stock int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok || p.Stock != expected {
		return port.ErrConflict
	}
	p.Stock = stock
	p.UpdatedAt = m.now()
	m.products[id] = p
	return nil
}

// Carts

func (m *MemoryAdapter) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cart, ok := m.carts[userID]
	if !ok {
		return domain.Cart{UserID: userID}, nil
	}
	return cart.Clone(), nil
}

func (m *MemoryAdapter) UpsertLine(ctx context.Context, userID string, line domain.CartLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cart := m.carts[userID]
	cart.UserID = userID
	cart.Lines = slices.Clone(cart.Lines)
	if i := slices.IndexFunc(cart.Lines, func(l domain.CartLine) bool { return l.ProductID == line.ProductID }); i >= 0 {
		cart.Lines[i] = line
	} else {
		cart.Lines = append(cart.Lines, line)
	}
	cart.UpdatedAt = m.now()
	m.carts[userID] = cart
	return nil
}

func (m *MemoryAdapter) RemoveLine(ctx context.Context, userID, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cart, ok := m.carts[userID]
	if !ok {
		return nil
	}
	cart.Lines = slices.DeleteFunc(slices.Clone(cart.Lines), func(l domain.CartLine) bool { return l.ProductID == productID })
	cart.UpdatedAt = m.now()
	m.carts[userID] = cart
	return nil
}

func (m *MemoryAdapter) ClearCart(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cart, ok := m.carts[userID]; ok {
		cart.Lines = nil
		cart.UpdatedAt = m.now()
		m.carts[userID] = cart
	}
	return nil
}

// Payments

// CreatePayment validates every line before touching stock so a failed
// reservation leaves nothing behind.
func (m *MemoryAdapter) CreatePayment(ctx context.Context, payment domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.payments[payment.ID]; ok {
		return port.ErrDuplicateKey
	}
	if _, ok := m.references[payment.Reference]; ok {
		return port.ErrDuplicateKey
	}

	needed := make(map[string]int, len(payment.Lines))
	for _, l := range payment.Lines {
		needed[l.ProductID] += l.Quantity
	}
	for id, qty := range needed {
		p, ok := m.products[id]
		if !ok || p.Stock < qty {
			return port.ErrInsufficientStock
		}
	}

	now := m.now()
	for id, qty := range needed {
		p := m.products[id]
		p.Stock -= qty
		p.UpdatedAt = now
		m.products[id] = p
	}

	m.payments[payment.ID] = payment.Clone()
	m.references[payment.Reference] = payment.ID
	return nil
}

func (m *MemoryAdapter) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.payments[id]
	if !ok {
		return nil, nil
	}
	out := p.Clone()
	return &out, nil
}

func (m *MemoryAdapter) GetPaymentByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	m.mu.RLock()
	id, ok := m.references[reference]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return m.GetPayment(ctx, id)
}

func (m *MemoryAdapter) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.references[reference]
	return ok, nil
}

func (m *MemoryAdapter) ReceiptCodeExists(ctx context.Context, code string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.receipts[code]
	return ok, nil
}

func (m *MemoryAdapter) ListPayments(ctx context.Context, filter domain.PaymentFilter) ([]domain.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Payment, 0)
	for _, p := range m.payments {
		if filter.UserID != "" && p.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return paginate(out, filter.Offset, filter.Limit), nil
}

func (m *MemoryAdapter) SubmitProof(ctx context.Context, id, userID, image string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[id]
	if !ok || p.UserID != userID || p.Status != domain.PaymentStatusPending || p.ProofImage != "" {
		return port.ErrConflict
	}
	p.Status = domain.PaymentStatusSubmitted
	p.ProofImage = image
	p.ProofSubmittedAt = &at
	p.UpdatedAt = at
	m.payments[id] = p
	return nil
}

func (m *MemoryAdapter) Verify(ctx context.Context, v domain.Verification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[v.PaymentID]
	if !ok || p.IsVerified() || !slices.Contains(v.From, p.Status) {
		return port.ErrConflict
	}

	p.Status = v.Decision.Target()
	p.VerifiedBy = v.AdminID
	at := v.At
	p.VerifiedAt = &at
	if v.Notes != "" {
		p.AdminNotes = v.Notes
	}
	p.UpdatedAt = v.At

	if p.Status == domain.PaymentStatusRejected {
		for _, l := range p.Lines {
			if product, ok := m.products[l.ProductID]; ok {
				product.Stock += l.Quantity
				product.UpdatedAt = v.At
				m.products[l.ProductID] = product
			}
		}
	}

	m.payments[v.PaymentID] = p
	return nil
}

func (m *MemoryAdapter) Complete(ctx context.Context, id, receiptCode string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[id]
	if !ok || p.Status != domain.PaymentStatusConfirmed || p.ReceiptCode != "" {
		return port.ErrConflict
	}
	if _, taken := m.receipts[receiptCode]; taken {
		return port.ErrDuplicateKey
	}

	p.Status = domain.PaymentStatusCompleted
	p.ReceiptCode = receiptCode
	p.CompletedAt = &at
	p.UpdatedAt = at
	m.payments[id] = p
	m.receipts[receiptCode] = id
	return nil
}

func (m *MemoryAdapter) UpdateNotes(ctx context.Context, id, notes string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[id]
	if !ok || p.Status == domain.PaymentStatusPending {
		return port.ErrConflict
	}
	p.AdminNotes = notes
	p.UpdatedAt = at
	m.payments[id] = p
	return nil
}

// Notifications

func (m *MemoryAdapter) SaveNotification(ctx context.Context, n domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.notifications[n.ID]; ok {
		return port.ErrDuplicateKey
	}
	n.Metadata = maps.Clone(n.Metadata)
	m.notifications[n.ID] = n
	return nil
}

func (m *MemoryAdapter) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Notification, 0)
	for _, n := range m.notifications {
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		n.Metadata = maps.Clone(n.Metadata)
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return strings.Compare(out[i].ID, out[j].ID) > 0
	})
	return paginate(out, 0, limit), nil
}

func (m *MemoryAdapter) MarkRead(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notifications[id]
	if !ok || n.UserID != userID {
		return port.ErrNotFound
	}
	n.IsRead = true
	m.notifications[id] = n
	return nil
}

// Idempotency

func (m *MemoryAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if exp, ok := m.idempotency[key]; ok && now.Before(exp) {
		return false, nil
	}
	m.idempotency[key] = now.Add(idempotencyKeyTTL)
	return true, nil
}

func (m *MemoryAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.idempotency, key)
	return nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
