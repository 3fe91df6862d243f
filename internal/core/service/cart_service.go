package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rl1809/campus-orders/internal/core/domain"
	"github.com/rl1809/campus-orders/internal/port"
)

const MaxLineQuantity = 99

const cartLockPrefix = "cart:"

type CartService struct {
	carts   port.CartRepository
	catalog port.CatalogRepository
	locker  port.Locker
	reads   singleflight.Group
	now     func() time.Time
}

func NewCartService(carts port.CartRepository, catalog port.CatalogRepository, locker port.Locker) *CartService {
	return &CartService{
		carts:   carts,
		catalog: catalog,
		locker:  locker,
		now:     time.Now,
	}
}

func (s *CartService) AddItem(ctx context.Context, userID, productID string, quantity int) (domain.Cart, error) {
	if quantity <= 0 || quantity > MaxLineQuantity {
		return domain.Cart{}, ErrInvalidQuantity
	}

	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	defer unlock()

	product, err := s.product(ctx, productID)
	if err != nil {
		return domain.Cart{}, err
	}
	if !product.IsAvailable {
		return domain.Cart{}, ErrProductUnavailable
	}

	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("get cart: %w", err)
	}

	line, exists := cart.Line(productID)
	if !exists {
		line = domain.CartLine{
			ProductID: productID,
			UnitPrice: product.Price,
			AddedAt:   s.now(),
		}
	}
	merged := line.Quantity + quantity
	if merged > MaxLineQuantity {
		return domain.Cart{}, ErrInvalidQuantity
	}
	if merged > product.Stock {
		return domain.Cart{}, ErrInsufficientStock
	}
	line.Quantity = merged

	if err := s.carts.UpsertLine(ctx, userID, line); err != nil {
		return domain.Cart{}, fmt.Errorf("upsert cart line: %w", err)
	}
	return s.load(ctx, userID)
}

// UpdateQuantity rewrites a line's quantity; zero or less removes it.
func (s *CartService) UpdateQuantity(ctx context.Context, userID, productID string, quantity int) (domain.Cart, error) {
	if quantity <= 0 {
		return s.RemoveItem(ctx, userID, productID)
	}
	if quantity > MaxLineQuantity {
		return domain.Cart{}, ErrInvalidQuantity
	}

	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	defer unlock()

	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("get cart: %w", err)
	}
	line, ok := cart.Line(productID)
	if !ok {
		return domain.Cart{}, ErrLineNotFound
	}

	product, err := s.product(ctx, productID)
	if err != nil {
		return domain.Cart{}, err
	}
	if quantity > product.Stock {
		return domain.Cart{}, ErrInsufficientStock
	}

	line.Quantity = quantity
	if err := s.carts.UpsertLine(ctx, userID, line); err != nil {
		return domain.Cart{}, fmt.Errorf("upsert cart line: %w", err)
	}
	return s.load(ctx, userID)
}

func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) (domain.Cart, error) {
	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	defer unlock()

	if err := s.carts.RemoveLine(ctx, userID, productID); err != nil {
		return domain.Cart{}, fmt.Errorf("remove cart line: %w", err)
	}
	return s.load(ctx, userID)
}

// GetCart coalesces concurrent reads of the same cart into one store call.
// The shared read is detached from any one caller's cancellation; each caller
// still stops waiting when its own ctx ends.
func (s *CartService) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	shared := context.WithoutCancel(ctx)
	ch := s.reads.DoChan(userID, func() (interface{}, error) {
		return s.carts.GetCart(shared, userID)
	})

	select {
	case <-ctx.Done():
		return domain.Cart{}, fmt.Errorf("get cart: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return domain.Cart{}, fmt.Errorf("get cart: %w", res.Err)
		}
		return res.Val.(domain.Cart).Clone(), nil
	}
}

func (s *CartService) Clear(ctx context.Context, userID string) error {
	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	return s.clear(ctx, userID)
}

// Checkout runs fn with the user's cart lock held and clears the cart once fn
// succeeds. The lock keeps the cart from changing between read and clear.
// A Redis-backed locker renews its lease while fn runs; mutual exclusion only
// lapses if the process stalls past the lease TTL without renewing, so fn
// should stay bounded by ctx.
func (s *CartService) Checkout(ctx context.Context, userID string, fn func(domain.Cart) error) error {
	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return fmt.Errorf("get cart: %w", err)
	}
	if err := fn(cart.Clone()); err != nil {
		return err
	}

	if err := s.clear(ctx, userID); err != nil {
		// The payment is already committed; a stale cart is recoverable by the user.
		slog.Error("failed to clear cart after checkout", "user_id", userID, "err", err)
	}
	return nil
}

func (s *CartService) clear(ctx context.Context, userID string) error {
	if err := s.carts.ClearCart(ctx, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (s *CartService) load(ctx context.Context, userID string) (domain.Cart, error) {
	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("get cart: %w", err)
	}
	return cart, nil
}

func (s *CartService) product(ctx context.Context, id string) (*domain.Product, error) {
	p, err := s.catalog.GetProduct(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if p == nil {
		return nil, ErrProductNotFound
	}
	return p, nil
}

func (s *CartService) lock(ctx context.Context, userID string) (func(), error) {
	unlock, err := s.locker.Lock(ctx, cartLockPrefix+userID)
	if err != nil {
		return nil, fmt.Errorf("lock cart: %w", err)
	}
	return unlock, nil
}
