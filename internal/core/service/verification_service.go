package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/campus-orders/internal/core/domain"
	"github.com/rl1809/campus-orders/internal/port"
)

// PaymentDetail is a payment with the products its lines point at.
type PaymentDetail struct {
	Payment  domain.Payment
	Products []domain.Product
}

// VerificationService is the admin half of the payment lifecycle. Every
// transition it drives is announced to the notifier after the write commits.
type VerificationService struct {
	orders   *OrderService
	catalog  port.CatalogRepository
	notifier port.Notifier
	policy   AdminPolicy
	now      func() time.Time
}

func NewVerificationService(orders *OrderService, catalog port.CatalogRepository, notifier port.Notifier, policy AdminPolicy) *VerificationService {
	return &VerificationService{
		orders:   orders,
		catalog:  catalog,
		notifier: notifier,
		policy:   policy,
		now:      time.Now,
	}
}

func (s *VerificationService) IsAdmin(p domain.Principal) bool {
	return s.policy.IsAdmin(p)
}

func (s *VerificationService) Verify(ctx context.Context, admin domain.Principal, paymentID string, decision domain.Decision, notes string) (domain.Payment, error) {
	if err := s.policy.Require(admin); err != nil {
		return domain.Payment{}, err
	}

	p, err := s.orders.Verify(ctx, admin.ID, paymentID, decision, notes)
	if err != nil {
		return domain.Payment{}, err
	}

	slog.Info("payment verified", "payment_id", p.ID, "admin_id", admin.ID, "status", decision.Target())
	s.emit(ctx, p, decision.Target(), notes)
	return p, nil
}

func (s *VerificationService) Complete(ctx context.Context, admin domain.Principal, paymentID string) (domain.Payment, error) {
	if err := s.policy.Require(admin); err != nil {
		return domain.Payment{}, err
	}

	p, err := s.orders.Complete(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}

	slog.Info("payment completed", "payment_id", p.ID, "admin_id", admin.ID, "receipt_code", p.ReceiptCode)
	s.emit(ctx, p, domain.PaymentStatusCompleted, "Receipt "+p.ReceiptCode+".")
	return p, nil
}

func (s *VerificationService) UpdateNotes(ctx context.Context, admin domain.Principal, paymentID, notes string) (domain.Payment, error) {
	if err := s.policy.Require(admin); err != nil {
		return domain.Payment{}, err
	}
	return s.orders.UpdateNotes(ctx, paymentID, notes)
}

func (s *VerificationService) CreateCharge(ctx context.Context, admin domain.Principal, in ChargeInput) (domain.Payment, error) {
	if err := s.policy.Require(admin); err != nil {
		return domain.Payment{}, err
	}
	return s.orders.CreateCharge(ctx, admin.ID, in)
}

func (s *VerificationService) ListPayments(ctx context.Context, admin domain.Principal, filter domain.PaymentFilter) ([]domain.Payment, error) {
	if err := s.policy.Require(admin); err != nil {
		return nil, err
	}
	return s.orders.ListPayments(ctx, filter)
}

func (s *VerificationService) GetPayment(ctx context.Context, admin domain.Principal, paymentID string) (domain.Payment, error) {
	if err := s.policy.Require(admin); err != nil {
		return domain.Payment{}, err
	}
	return s.orders.GetPayment(ctx, paymentID)
}

func (s *VerificationService) GetPaymentDetail(ctx context.Context, admin domain.Principal, paymentID string) (PaymentDetail, error) {
	if err := s.policy.Require(admin); err != nil {
		return PaymentDetail{}, err
	}

	p, err := s.orders.GetPayment(ctx, paymentID)
	if err != nil {
		return PaymentDetail{}, err
	}

	detail := PaymentDetail{Payment: p}
	if len(p.Lines) == 0 {
		return detail, nil
	}

	products, err := s.catalog.GetProducts(ctx, p.ProductIDs())
	if err != nil {
		return PaymentDetail{}, fmt.Errorf("get products: %w", err)
	}
	for _, id := range p.ProductIDs() {
		if product, ok := products[id]; ok {
			detail.Products = append(detail.Products, product)
		}
	}
	return detail, nil
}

// emit announces the transition to status that the caller just committed.
// p is a re-read and may already show a later state. Errors are logged only.
func (s *VerificationService) emit(ctx context.Context, p domain.Payment, status domain.PaymentStatus, message string) {
	eventType, ok := domain.EventForStatus(status)
	if !ok {
		return
	}

	event := domain.PaymentEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		PaymentID:  p.ID,
		UserID:     p.UserID,
		Reference:  p.Reference,
		Status:     status,
		Message:    message,
		OccurredAt: s.now(),
	}
	if err := s.notifier.Emit(ctx, event); err != nil {
		slog.Error("failed to emit payment event", "payment_id", p.ID, "event", eventType, "err", err)
	}
}
