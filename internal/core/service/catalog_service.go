package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/campus-orders/internal/core/domain"
	"github.com/rl1809/campus-orders/internal/port"
)

type ProductInput struct {
	Title       string
	Price       int64
	Category    string
	IsAvailable bool
	Stock       int // only read on create
}

func (in ProductInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return ErrMissingTitle
	}
	if in.Price <= 0 {
		return ErrInvalidAmount
	}
	if in.Stock < 0 {
		return ErrInvalidStock
	}
	return nil
}

type CatalogService struct {
	catalog port.CatalogRepository
	policy  AdminPolicy
	now     func() time.Time
}

func NewCatalogService(catalog port.CatalogRepository, policy AdminPolicy) *CatalogService {
	return &CatalogService{
		catalog: catalog,
		policy:  policy,
		now:     time.Now,
	}
}

func (s *CatalogService) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	products, err := s.catalog.ListProducts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	p, err := s.catalog.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}
	if p == nil {
		return domain.Product{}, ErrProductNotFound
	}
	return *p, nil
}

func (s *CatalogService) CreateProduct(ctx context.Context, caller domain.Principal, in ProductInput) (domain.Product, error) {
	if err := s.policy.Require(caller); err != nil {
		return domain.Product{}, err
	}
	if err := in.validate(); err != nil {
		return domain.Product{}, err
	}

	now := s.now()
	p := domain.Product{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(in.Title),
		Price:       in.Price,
		Stock:       in.Stock,
		Category:    in.Category,
		IsAvailable: in.IsAvailable,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.catalog.CreateProduct(ctx, p); err != nil {
		if errors.Is(err, port.ErrDuplicateKey) {
			return domain.Product{}, ErrDuplicateProduct
		}
		return domain.Product{}, fmt.Errorf("create product: %w", err)
	}
	return p, nil
}

func (s *CatalogService) UpdateProduct(ctx context.Context, caller domain.Principal, id string, in ProductInput) (domain.Product, error) {
	if err := s.policy.Require(caller); err != nil {
		return domain.Product{}, err
	}
	in.Stock = 0
	if err := in.validate(); err != nil {
		return domain.Product{}, err
	}

	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	p.Title = strings.TrimSpace(in.Title)
	p.Price = in.Price
	p.Category = in.Category
	p.IsAvailable = in.IsAvailable
	p.UpdatedAt = s.now()

	if err := s.catalog.UpdateProduct(ctx, p); err != nil {
		if errors.Is(err, port.ErrNotFound) {
			return domain.Product{}, ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("update product: %w", err)
	}
	return s.GetProduct(ctx, id)
}

// SetStock overwrites stock only if nobody moved it since the admin read expected.
func (s *CatalogService) SetStock(ctx context.Context, caller domain.Principal, id string, expected, stock int) (domain.Product, error) {
	if err := s.policy.Require(caller); err != nil {
		return domain.Product{}, err
	}
	if stock < 0 || expected < 0 {
		return domain.Product{}, ErrInvalidStock
	}
	if _, err := s.GetProduct(ctx, id); err != nil {
		return domain.Product{}, err
	}

	if err := s.catalog.SetStock(ctx, id, expected, stock); err != nil {
		if errors.Is(err, port.ErrConflict) {
			return domain.Product{}, ErrStockChanged
		}
		return domain.Product{}, fmt.Errorf("set stock: %w", err)
	}
	return s.GetProduct(ctx, id)
}
