package handler

import (
	"time"

	"github.com/rl1809/campus-orders/internal/core/domain"
	"github.com/rl1809/campus-orders/internal/core/service"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

type AddItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type UpdateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type DuesRequest struct {
	Method domain.PaymentMethod `json:"method"`
}

// ProofRequest carries either a hosted image URL or inline base64 image data.
type ProofRequest struct {
	Image       string `json:"image"`
	ImageData   string `json:"image_data"`
	ContentType string `json:"content_type"`
}

type VerifyRequest struct {
	Decision domain.Decision `json:"decision"`
	Notes    string          `json:"notes"`
}

type NotesRequest struct {
	Notes string `json:"notes"`
}

type ChargeRequest struct {
	UserID      string               `json:"user_id"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Amount      int64                `json:"amount"`
	Method      domain.PaymentMethod `json:"method"`
}

type ProductRequest struct {
	Title       string `json:"title"`
	Price       int64  `json:"price"`
	Category    string `json:"category"`
	IsAvailable bool   `json:"is_available"`
	Stock       int    `json:"stock"`
}

type StockRequest struct {
	Expected *int `json:"expected"`
	Stock    int  `json:"stock"`
}

type ProductResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Price       int64     `json:"price"`
	Stock       int       `json:"stock"`
	Category    string    `json:"category,omitempty"`
	IsAvailable bool      `json:"is_available"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type CartLineResponse struct {
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice int64     `json:"unit_price"`
	Subtotal  int64     `json:"subtotal"`
	AddedAt   time.Time `json:"added_at"`
}

type CartResponse struct {
	UserID    string             `json:"user_id"`
	Items     []CartLineResponse `json:"items"`
	Total     int64              `json:"total"`
	UpdatedAt time.Time          `json:"updated_at"`
}

type PaymentLineResponse struct {
	ProductID string `json:"product_id"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Subtotal  int64  `json:"subtotal"`
}

type PaymentResponse struct {
	ID               string                `json:"id"`
	UserID           string                `json:"user_id"`
	Kind             domain.PaymentKind    `json:"kind"`
	Title            string                `json:"title"`
	Description      string                `json:"description,omitempty"`
	Amount           int64                 `json:"amount"`
	Method           domain.PaymentMethod  `json:"method"`
	Status           domain.PaymentStatus  `json:"status"`
	Reference        string                `json:"reference"`
	ProductIDs       []string              `json:"product_ids"`
	Items            []PaymentLineResponse `json:"items,omitempty"`
	ProofImage       string                `json:"proof_image,omitempty"`
	ProofSubmittedAt *time.Time            `json:"proof_submitted_at,omitempty"`
	VerifiedBy       string                `json:"verified_by,omitempty"`
	VerifiedAt       *time.Time            `json:"verified_at,omitempty"`
	ReceiptCode      string                `json:"receipt_code,omitempty"`
	CompletedAt      *time.Time            `json:"completed_at,omitempty"`
	AdminNotes       string                `json:"admin_notes,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

type PaymentDetailResponse struct {
	PaymentResponse
	Products []ProductResponse `json:"products"`
}

type NotificationResponse struct {
	ID        string            `json:"id"`
	Type      domain.EventType  `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	IsRead    bool              `json:"is_read"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func (r ProductRequest) input() service.ProductInput {
	return service.ProductInput{
		Title:       r.Title,
		Price:       r.Price,
		Category:    r.Category,
		IsAvailable: r.IsAvailable,
		Stock:       r.Stock,
	}
}

func toProductResponse(p domain.Product) ProductResponse {
	return ProductResponse{
		ID:          p.ID,
		Title:       p.Title,
		Price:       p.Price,
		Stock:       p.Stock,
		Category:    p.Category,
		IsAvailable: p.IsAvailable,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toProductResponses(products []domain.Product) []ProductResponse {
	out := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	return out
}

func toCartResponse(c domain.Cart) CartResponse {
	items := make([]CartLineResponse, 0, len(c.Lines))
	for _, l := range c.Lines {
		items = append(items, CartLineResponse{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Subtotal:  l.Subtotal(),
			AddedAt:   l.AddedAt,
		})
	}
	return CartResponse{
		UserID:    c.UserID,
		Items:     items,
		Total:     c.Total(),
		UpdatedAt: c.UpdatedAt,
	}
}

func toPaymentResponse(p domain.Payment) PaymentResponse {
	resp := PaymentResponse{
		ID:               p.ID,
		UserID:           p.UserID,
		Kind:             p.Kind,
		Title:            p.Title,
		Description:      p.Description,
		Amount:           p.Amount,
		Method:           p.Method,
		Status:           p.Status,
		Reference:        p.Reference,
		ProductIDs:       p.ProductIDs(),
		ProofImage:       p.ProofImage,
		ProofSubmittedAt: p.ProofSubmittedAt,
		VerifiedBy:       p.VerifiedBy,
		VerifiedAt:       p.VerifiedAt,
		ReceiptCode:      p.ReceiptCode,
		CompletedAt:      p.CompletedAt,
		AdminNotes:       p.AdminNotes,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
	for _, l := range p.Lines {
		resp.Items = append(resp.Items, PaymentLineResponse{
			ProductID: l.ProductID,
			Title:     l.Title,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Subtotal:  l.Subtotal(),
		})
	}
	return resp
}

func toPaymentResponses(payments []domain.Payment) []PaymentResponse {
	out := make([]PaymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentResponse(p))
	}
	return out
}

func toNotificationResponses(list []domain.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(list))
	for _, n := range list {
		out = append(out, NotificationResponse{
			ID:        n.ID,
			Type:      n.Type,
			Title:     n.Title,
			Message:   n.Message,
			IsRead:    n.IsRead,
			Metadata:  n.Metadata,
			CreatedAt: n.CreatedAt,
		})
	}
	return out
}
