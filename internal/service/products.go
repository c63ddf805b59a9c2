package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kiosco/backend/internal/domain"
	"kiosco/backend/internal/store"
)

func (s *Service) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, includeInactive)
}

func (s *Service) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListLowStockProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Code = strings.TrimSpace(req.Code)
	req.Name = strings.TrimSpace(req.Name)
	if req.Code == "" {
		return domain.Product{}, invalid("code", "code is required")
	}
	if req.Name == "" {
		return domain.Product{}, invalid("name", "name is required")
	}
	if req.Price.IsNegative() || req.Cost.IsNegative() {
		return domain.Product{}, invalid("price", "price and cost cannot be negative")
	}
	if err := checkCents("price", req.Price); err != nil {
		return domain.Product{}, err
	}
	if err := checkCents("cost", req.Cost); err != nil {
		return domain.Product{}, err
	}
	if req.Stock < 0 || req.MinStock < 0 {
		return domain.Product{}, invalid("stock", "stock cannot be negative")
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Code:        req.Code,
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		Category:    strings.TrimSpace(req.Category),
		Price:       req.Price,
		Cost:        req.Cost,
		Stock:       req.Stock,
		MinStock:    req.MinStock,
		Active:      true,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.Product{}, fmt.Errorf("product code %s: %w", req.Code, err)
		}
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("code=%s,price=%s,stock=%d", created.Code, created.Price.StringFixed(2), created.Stock))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	existing, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Product{}, notFound("product", id)
		}
		return domain.Product{}, err
	}

	updated := *existing
	if req.Code != nil {
		updated.Code = strings.TrimSpace(*req.Code)
		if updated.Code == "" {
			return domain.Product{}, invalid("code", "code is required")
		}
	}
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
		if updated.Name == "" {
			return domain.Product{}, invalid("name", "name is required")
		}
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return domain.Product{}, invalid("price", "price cannot be negative")
		}
		if err := checkCents("price", *req.Price); err != nil {
			return domain.Product{}, err
		}
		updated.Price = *req.Price
	}
	if req.Cost != nil {
		if req.Cost.IsNegative() {
			return domain.Product{}, invalid("cost", "cost cannot be negative")
		}
		if err := checkCents("cost", *req.Cost); err != nil {
			return domain.Product{}, err
		}
		updated.Cost = *req.Cost
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return domain.Product{}, invalid("stock", "stock cannot be negative")
		}
		updated.Stock = *req.Stock
	}
	if req.MinStock != nil {
		if *req.MinStock < 0 {
			return domain.Product{}, invalid("min_stock", "minimum stock cannot be negative")
		}
		updated.MinStock = *req.MinStock
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.Product{}, fmt.Errorf("product code %s: %w", updated.Code, err)
		}
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("code=%s,price=%s,stock=%d,active=%t", saved.Code, saved.Price.StringFixed(2), saved.Stock, saved.Active))
	return *saved, nil
}
