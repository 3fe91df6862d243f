package port

import (
	"context"
	"time"

	"github.com/rl1809/campus-orders/internal/core/domain"
)

type CatalogRepository interface {
	// GetProduct retrieves a product by ID, returns nil if it does not exist
	GetProduct(ctx context.Context, id string) (*domain.Product, error)

	// GetProducts retrieves the products that exist among ids, keyed by ID
	GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error)

	// ListProducts returns products matching the filter ordered by title
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)

	// CreateProduct inserts a new product, ErrDuplicateKey if the ID is taken
	CreateProduct(ctx context.Context, product domain.Product) error

	// UpdateProduct rewrites the editable fields, stock is left untouched
	UpdateProduct(ctx context.Context, product domain.Product) error

	// SetStock overwrites stock only while it still equals expected, ErrConflict otherwise
	SetStock(ctx context.Context, id string, expected, stock int) error
}

type CartRepository interface {
	// GetCart returns the user's cart, empty if none was created yet
	GetCart(ctx context.Context, userID string) (domain.Cart, error)

	// UpsertLine inserts or replaces the line for line.ProductID
	UpsertLine(ctx context.Context, userID string, line domain.CartLine) error

	// RemoveLine deletes a line, absent lines are not an error
	RemoveLine(ctx context.Context, userID, productID string) error

	// ClearCart deletes every line of the user's cart
	ClearCart(ctx context.Context, userID string) error
}

type PaymentRepository interface {
	// CreatePayment persists a payment and reserves stock for every line atomically.
	// Returns ErrInsufficientStock if any line cannot be reserved and ErrDuplicateKey
	// on a reference collision; nothing is written in either case.
	CreatePayment(ctx context.Context, payment domain.Payment) error

	// GetPayment retrieves a payment with its lines, returns nil if it does not exist
	GetPayment(ctx context.Context, id string) (*domain.Payment, error)

	// GetPaymentByReference retrieves a payment by its reference, nil if unknown
	GetPaymentByReference(ctx context.Context, reference string) (*domain.Payment, error)

	// ReferenceExists reports whether a payment already uses reference
	ReferenceExists(ctx context.Context, reference string) (bool, error)

	// ReceiptCodeExists reports whether a payment already uses code
	ReceiptCodeExists(ctx context.Context, code string) (bool, error)

	// ListPayments returns payments matching the filter, newest first
	ListPayments(ctx context.Context, filter domain.PaymentFilter) ([]domain.Payment, error)

	// SubmitProof moves an owned pending payment without proof to submitted, ErrConflict otherwise
	SubmitProof(ctx context.Context, id, userID, image string, at time.Time) error

	// Verify applies an admin decision if the payment is unverified and in one of v.From.
	// A rejection releases every reserved line in the same write. ErrConflict otherwise.
	Verify(ctx context.Context, v domain.Verification) error

	// Complete moves a confirmed payment to completed with a receipt code.
	// ErrConflict if it is not confirmed, ErrDuplicateKey if the code is taken.
	Complete(ctx context.Context, id, receiptCode string, at time.Time) error

	// UpdateNotes rewrites admin notes on a payment past pending, ErrConflict otherwise
	UpdateNotes(ctx context.Context, id, notes string, at time.Time) error
}

type NotificationRepository interface {
	// SaveNotification persists a notification
	SaveNotification(ctx context.Context, n domain.Notification) error

	// ListNotifications returns a user's notifications, newest first
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error)

	// MarkRead flags a user's notification as read, ErrNotFound if it is not theirs
	MarkRead(ctx context.Context, userID, id string) error
}
