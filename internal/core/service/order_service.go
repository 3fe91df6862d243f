package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/campus-orders/internal/core/domain"
	"github.com/rl1809/campus-orders/internal/port"
)

const orderTitle = "Marketplace order"

type DuesConfig struct {
	Amount int64
	Title  string
}

type ChargeInput struct {
	UserID      string
	Title       string
	Description string
	Amount      int64
	Method      domain.PaymentMethod
}

// OrderService owns the payment state machine. It is the only writer of
// payment status and of stock reservations.
type OrderService struct {
	payments port.PaymentRepository
	catalog  port.CatalogRepository
	carts    *CartService
	cache    port.CacheRepository
	dues     DuesConfig
	newCode  codeGenerator
	now      func() time.Time
}

// NewOrderService wires the engine. cache may be nil, which disables
// Idempotency-Key handling.
func NewOrderService(payments port.PaymentRepository, catalog port.CatalogRepository, carts *CartService, cache port.CacheRepository, dues DuesConfig) *OrderService {
	return &OrderService{
		payments: payments,
		catalog:  catalog,
		carts:    carts,
		cache:    cache,
		dues:     dues,
		newCode:  newCode,
		now:      time.Now,
	}
}

// CreateFromCart turns the user's cart into a pending payment, reserving stock
// for every line in the same write, then clears the cart.
func (s *OrderService) CreateFromCart(ctx context.Context, userID, idempotencyKey string) (domain.Payment, error) {
	release, err := s.claim(ctx, "checkout:"+userID, idempotencyKey)
	if err != nil {
		return domain.Payment{}, err
	}

	var created domain.Payment
	err = s.carts.Checkout(ctx, userID, func(cart domain.Cart) error {
		if cart.IsEmpty() {
			return ErrEmptyCart
		}

		lines, amount, err := s.priceLines(ctx, cart)
		if err != nil {
			return err
		}

		now := s.now()
		created = domain.Payment{
			ID:          uuid.NewString(),
			UserID:      userID,
			Kind:        domain.PaymentKindOrder,
			Title:       orderTitle,
			Description: describeLines(lines),
			Amount:      amount,
			Method:      domain.PaymentMethodBankTransfer,
			Status:      domain.PaymentStatusPending,
			Lines:       lines,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return s.insert(ctx, &created)
	})
	if err != nil {
		release()
		return domain.Payment{}, err
	}

	slog.Info("payment created from cart",
		"payment_id", created.ID, "user_id", userID, "reference", created.Reference, "amount", created.Amount)
	return created, nil
}

// priceLines snapshots current catalog titles and prices for each cart line.
func (s *OrderService) priceLines(ctx context.Context, cart domain.Cart) ([]domain.PaymentLine, int64, error) {
	products, err := s.catalog.GetProducts(ctx, cart.ProductIDs())
	if err != nil {
		return nil, 0, fmt.Errorf("get products: %w", err)
	}

	lines := make([]domain.PaymentLine, 0, len(cart.Lines))
	var amount int64
	for _, l := range cart.Lines {
		p, ok := products[l.ProductID]
		if !ok {
			return nil, 0, fmt.Errorf("product %s: %w", l.ProductID, ErrProductNotFound)
		}
		if !p.IsAvailable {
			return nil, 0, fmt.Errorf("product %s: %w", p.Title, ErrProductUnavailable)
		}
		if p.Stock < l.Quantity {
			return nil, 0, fmt.Errorf("product %s: %w", p.Title, ErrInsufficientStock)
		}

		line := domain.PaymentLine{
			ProductID: p.ID,
			Title:     p.Title,
			Quantity:  l.Quantity,
			UnitPrice: p.Price,
		}
		lines = append(lines, line)
		amount += line.Subtotal()
	}
	return lines, amount, nil
}

func (s *OrderService) CreateDues(ctx context.Context, userID string, method domain.PaymentMethod) (domain.Payment, error) {
	if !method.Valid() {
		return domain.Payment{}, ErrInvalidMethod
	}
	if s.dues.Amount <= 0 {
		return domain.Payment{}, ErrInvalidAmount
	}

	now := s.now()
	p := domain.Payment{
		ID:          uuid.NewString(),
		UserID:      userID,
		Kind:        domain.PaymentKindDues,
		Title:       s.dues.Title,
		Description: s.dues.Title,
		Amount:      s.dues.Amount,
		Method:      method,
		Status:      domain.PaymentStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.insert(ctx, &p); err != nil {
		return domain.Payment{}, err
	}

	slog.Info("dues payment created", "payment_id", p.ID, "user_id", userID, "reference", p.Reference)
	return p, nil
}

// CreateCharge raises an arbitrary charge against a user on behalf of an admin.
func (s *OrderService) CreateCharge(ctx context.Context, adminID string, in ChargeInput) (domain.Payment, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return domain.Payment{}, ErrMissingUser
	}
	if strings.TrimSpace(in.Title) == "" {
		return domain.Payment{}, ErrMissingTitle
	}
	if in.Amount <= 0 {
		return domain.Payment{}, ErrInvalidAmount
	}
	if in.Method == "" {
		in.Method = domain.PaymentMethodBankTransfer
	}
	if !in.Method.Valid() {
		return domain.Payment{}, ErrInvalidMethod
	}

	now := s.now()
	p := domain.Payment{
		ID:          uuid.NewString(),
		UserID:      in.UserID,
		Kind:        domain.PaymentKindCharge,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Amount:      in.Amount,
		Method:      in.Method,
		Status:      domain.PaymentStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.insert(ctx, &p); err != nil {
		return domain.Payment{}, err
	}

	slog.Info("charge created", "payment_id", p.ID, "user_id", p.UserID, "admin_id", adminID, "amount", p.Amount)
	return p, nil
}

// insert assigns a fresh reference and persists p, drawing a new reference if
// the unique index still rejects it.
func (s *OrderService) insert(ctx context.Context, p *domain.Payment) error {
	for i := 0; i < maxCodeAttempts; i++ {
		ref, err := uniqueCode(ctx, s.newCode, referencePrefix, s.payments.ReferenceExists)
		if err != nil {
			return fmt.Errorf("generate reference: %w", err)
		}
		p.Reference = ref

		err = s.payments.CreatePayment(ctx, *p)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, port.ErrDuplicateKey):
			continue
		case errors.Is(err, port.ErrInsufficientStock):
			return ErrInsufficientStock
		default:
			return fmt.Errorf("create payment: %w", err)
		}
	}
	return fmt.Errorf("create payment: %w", errCodesExhausted)
}

// CheckProof reports whether userID may attach proof to the payment right now.
func (s *OrderService) CheckProof(ctx context.Context, userID, paymentID string) (domain.Payment, error) {
	p, err := s.load(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	if p.UserID != userID {
		return domain.Payment{}, ErrNotOwner
	}
	if !p.CanTransitionTo(domain.PaymentStatusSubmitted) {
		return domain.Payment{}, ErrInvalidTransition
	}
	return p, nil
}

func (s *OrderService) SubmitProof(ctx context.Context, userID, paymentID, image string) (domain.Payment, error) {
	image = strings.TrimSpace(image)
	if image == "" {
		return domain.Payment{}, ErrMissingProof
	}

	if _, err := s.CheckProof(ctx, userID, paymentID); err != nil {
		return domain.Payment{}, err
	}

	if err := s.payments.SubmitProof(ctx, paymentID, userID, image, s.now()); err != nil {
		if errors.Is(err, port.ErrConflict) {
			return domain.Payment{}, ErrInvalidTransition
		}
		return domain.Payment{}, fmt.Errorf("submit proof: %w", err)
	}
	return s.load(ctx, paymentID)
}

// Verify records an admin decision. Concurrent deciders race on a
// compare-and-swap; exactly one wins and the rest get ErrAlreadyVerified.
func (s *OrderService) Verify(ctx context.Context, adminID, paymentID string, decision domain.Decision, notes string) (domain.Payment, error) {
	if !decision.Valid() {
		return domain.Payment{}, ErrInvalidDecision
	}

	p, err := s.load(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	if p.IsVerified() {
		return domain.Payment{}, ErrAlreadyVerified
	}
	if !p.CanTransitionTo(decision.Target()) {
		return domain.Payment{}, ErrInvalidTransition
	}

	v := domain.Verification{
		PaymentID: paymentID,
		AdminID:   adminID,
		Decision:  decision,
		Notes:     notes,
		From:      domain.VerifiableFrom(p.Kind),
		At:        s.now(),
	}
	if err := s.payments.Verify(ctx, v); err != nil {
		if errors.Is(err, port.ErrConflict) {
			return domain.Payment{}, ErrAlreadyVerified
		}
		return domain.Payment{}, fmt.Errorf("verify payment: %w", err)
	}
	return s.load(ctx, paymentID)
}

func (s *OrderService) Complete(ctx context.Context, paymentID string) (domain.Payment, error) {
	p, err := s.load(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	if !p.CanTransitionTo(domain.PaymentStatusCompleted) {
		return domain.Payment{}, ErrInvalidTransition
	}

	for i := 0; i < maxCodeAttempts; i++ {
		code, err := uniqueCode(ctx, s.newCode, receiptPrefix, s.payments.ReceiptCodeExists)
		if err != nil {
			return domain.Payment{}, fmt.Errorf("generate receipt code: %w", err)
		}

		err = s.payments.Complete(ctx, paymentID, code, s.now())
		switch {
		case err == nil:
			return s.load(ctx, paymentID)
		case errors.Is(err, port.ErrDuplicateKey):
			continue
		case errors.Is(err, port.ErrConflict):
			return domain.Payment{}, ErrInvalidTransition
		default:
			return domain.Payment{}, fmt.Errorf("complete payment: %w", err)
		}
	}
	return domain.Payment{}, fmt.Errorf("complete payment: %w", errCodesExhausted)
}

func (s *OrderService) UpdateNotes(ctx context.Context, paymentID, notes string) (domain.Payment, error) {
	p, err := s.load(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	if p.Status == domain.PaymentStatusPending {
		return domain.Payment{}, ErrInvalidTransition
	}

	if err := s.payments.UpdateNotes(ctx, paymentID, notes, s.now()); err != nil {
		if errors.Is(err, port.ErrConflict) {
			return domain.Payment{}, ErrInvalidTransition
		}
		return domain.Payment{}, fmt.Errorf("update notes: %w", err)
	}
	return s.load(ctx, paymentID)
}

// GetUserPayment returns a payment only if userID owns it.
func (s *OrderService) GetUserPayment(ctx context.Context, userID, paymentID string) (domain.Payment, error) {
	p, err := s.load(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	if p.UserID != userID {
		return domain.Payment{}, ErrNotOwner
	}
	return p, nil
}

func (s *OrderService) GetByReference(ctx context.Context, reference string) (domain.Payment, error) {
	p, err := s.payments.GetPaymentByReference(ctx, reference)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("get payment by reference: %w", err)
	}
	if p == nil {
		return domain.Payment{}, ErrPaymentNotFound
	}
	return *p, nil
}

func (s *OrderService) ListPayments(ctx context.Context, filter domain.PaymentFilter) ([]domain.Payment, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	payments, err := s.payments.ListPayments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

func (s *OrderService) GetPayment(ctx context.Context, paymentID string) (domain.Payment, error) {
	return s.load(ctx, paymentID)
}

func (s *OrderService) load(ctx context.Context, id string) (domain.Payment, error) {
	p, err := s.payments.GetPayment(ctx, id)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("get payment: %w", err)
	}
	if p == nil {
		return domain.Payment{}, ErrPaymentNotFound
	}
	return *p, nil
}

// claim reserves an idempotency key for the request. The returned func gives
// the key back so a failed request can be retried with it.
func (s *OrderService) claim(ctx context.Context, scope, key string) (func(), error) {
	if s.cache == nil || key == "" {
		return func() {}, nil
	}
	fullKey := "idempotency:" + scope + ":" + key

	ok, err := s.cache.SetIdempotency(ctx, fullKey)
	if err != nil {
		return nil, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return nil, ErrDuplicateRequest
	}

	return func() {
		if err := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), fullKey); err != nil {
			slog.Warn("failed to release idempotency key", "key", fullKey, "err", err)
		}
	}, nil
}

func describeLines(lines []domain.PaymentLine) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		parts = append(parts, fmt.Sprintf("%dx %s", l.Quantity, l.Title))
	}
	slices.Sort(parts)
	return strings.Join(parts, ", ")
}
