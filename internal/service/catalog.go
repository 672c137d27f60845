package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/cleanshop/internal/events"
	"github.com/Skotchmaster/cleanshop/internal/models"
	"github.com/Skotchmaster/cleanshop/internal/repo"
	"github.com/Skotchmaster/cleanshop/internal/search"
	"github.com/Skotchmaster/cleanshop/internal/transport"
	"github.com/Skotchmaster/cleanshop/pkg/logging"
)

const maxProductName = 50

var skuPattern = regexp.MustCompile(`^[A-Z0-9_-]{1,64}$`)

type CatalogService struct {
	Repo *repo.GormRepo
	// Index is optional; without it search falls back to the database.
	Index  *search.Index
	Events events.Publisher
}

// NormalizeSKU upper-cases and trims sku and reports whether the result is valid.
func NormalizeSKU(sku string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(sku))
	return s, skuPattern.MatchString(s)
}

func (s *CatalogService) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	p, err := s.Repo.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
		}
		return nil, persistence("catalog.get_product", err)
	}
	return p, nil
}

func (s *CatalogService) GetProducts(ctx context.Context, q string, offset, limit int) (int64, []models.Product, error) {
	total, items, err := s.Repo.GetProducts(ctx, q, offset, limit)
	if err != nil {
		return 0, nil, persistence("catalog.get_products", err)
	}
	return total, items, nil
}

func (s *CatalogService) SearchProducts(ctx context.Context, q string, offset, limit int) (int64, []models.Product, error) {
	q = strings.TrimSpace(q)
	if s.Index == nil || q == "" {
		return s.GetProducts(ctx, q, offset, limit)
	}

	total, items, err := s.Index.Search(ctx, q, offset, limit)
	if err != nil {
		logging.FromContext(ctx).Warn("search_fallback", "svc", "catalog.search", "error", err)
		return s.GetProducts(ctx, q, offset, limit)
	}
	return total, items, nil
}

func (s *CatalogService) CreateProduct(ctx context.Context, req transport.CreateProductRequest) (*models.Product, error) {
	l := logging.FromContext(ctx).With("svc", "catalog.create_product")

	sku, ok := NormalizeSKU(req.SKU)
	prod := &models.Product{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		SKU:         sku,
		Price:       req.Price,
		Stock:       req.Stock,
		CategoryID:  req.CategoryID,
		BrandID:     req.BrandID,
	}
	if !ok {
		return nil, fmt.Errorf("%w: sku must be 1-64 characters of A-Z, 0-9, '-' or '_'", ErrValidation)
	}
	if err := s.validate(ctx, prod); err != nil {
		return nil, err
	}

	exists, err := s.Repo.SkuExists(ctx, prod.SKU, uuid.Nil)
	if err != nil {
		return nil, persistence("catalog.create_product", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: sku %s already exists", ErrConflict, prod.SKU)
	}

	if err := s.Repo.CreateProduct(ctx, prod); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, fmt.Errorf("%w: sku %s already exists", ErrConflict, prod.SKU)
		}
		l.Error("create_failed", "status", 500, "error", err)
		return nil, persistence("catalog.create_product", err)
	}

	s.reindex(ctx, prod)
	s.publish(ctx, events.ProductCreated, prod)
	l.Info("product_created", "product_id", prod.ID, "sku", prod.SKU)
	return prod, nil
}

func (s *CatalogService) PatchProduct(ctx context.Context, id uuid.UUID, req transport.PatchProductRequest) (*models.Product, error) {
	prod, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		prod.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		prod.Description = *req.Description
	}
	if req.Price != nil {
		prod.Price = *req.Price
	}
	if req.Stock != nil {
		prod.Stock = *req.Stock
	}
	if req.ClearCategory && req.CategoryID != nil {
		return nil, fmt.Errorf("%w: category_id and clear_category are exclusive", ErrValidation)
	}
	if req.ClearBrand && req.BrandID != nil {
		return nil, fmt.Errorf("%w: brand_id and clear_brand are exclusive", ErrValidation)
	}
	switch {
	case req.ClearCategory:
		prod.CategoryID, prod.Category = nil, nil
	case req.CategoryID != nil:
		prod.CategoryID = req.CategoryID
	}
	switch {
	case req.ClearBrand:
		prod.BrandID, prod.Brand = nil, nil
	case req.BrandID != nil:
		prod.BrandID = req.BrandID
	}
	if req.SKU != nil {
		sku, ok := NormalizeSKU(*req.SKU)
		if !ok {
			return nil, fmt.Errorf("%w: sku must be 1-64 characters of A-Z, 0-9, '-' or '_'", ErrValidation)
		}
		if sku != prod.SKU {
			exists, err := s.Repo.SkuExists(ctx, sku, prod.ID)
			if err != nil {
				return nil, persistence("catalog.patch_product", err)
			}
			if exists {
				return nil, fmt.Errorf("%w: sku %s already exists", ErrConflict, sku)
			}
		}
		prod.SKU = sku
	}

	if err := s.validate(ctx, prod); err != nil {
		return nil, err
	}

	if err := s.Repo.SaveProduct(ctx, prod); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, fmt.Errorf("%w: sku %s already exists", ErrConflict, prod.SKU)
		}
		return nil, persistence("catalog.patch_product", err)
	}

	s.reindex(ctx, prod)
	s.publish(ctx, events.ProductUpdated, prod)
	return prod, nil
}

func (s *CatalogService) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	if err := s.Repo.DeleteProduct(ctx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("product %s: %w", id, ErrNotFound)
		}
		return persistence("catalog.delete_product", err)
	}

	if s.Index != nil {
		if err := s.Index.DeleteProduct(ctx, id); err != nil {
			logging.FromContext(ctx).Warn("unindex_failed", "product_id", id, "error", err)
		}
	}
	s.publish(ctx, events.ProductDeleted, &models.Product{ID: id})
	return nil
}

func (s *CatalogService) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: category name is required", ErrValidation)
	}
	c := &models.Category{Name: name}
	if err := s.Repo.CreateCategory(ctx, c); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, fmt.Errorf("%w: category %s already exists", ErrConflict, name)
		}
		return nil, persistence("catalog.create_category", err)
	}
	return c, nil
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	items, err := s.Repo.ListCategories(ctx)
	if err != nil {
		return nil, persistence("catalog.list_categories", err)
	}
	return items, nil
}

func (s *CatalogService) CreateBrand(ctx context.Context, name, description string) (*models.Brand, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: brand name is required", ErrValidation)
	}
	b := &models.Brand{Name: name, Description: description}
	if err := s.Repo.CreateBrand(ctx, b); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, fmt.Errorf("%w: brand %s already exists", ErrConflict, name)
		}
		return nil, persistence("catalog.create_brand", err)
	}
	return b, nil
}

func (s *CatalogService) ListBrands(ctx context.Context) ([]models.Brand, error) {
	items, err := s.Repo.ListBrands(ctx)
	if err != nil {
		return nil, persistence("catalog.list_brands", err)
	}
	return items, nil
}

func (s *CatalogService) validate(ctx context.Context, p *models.Product) error {
	switch {
	case p.Name == "" || len([]rune(p.Name)) > maxProductName:
		return fmt.Errorf("%w: name must be 1-%d characters", ErrValidation, maxProductName)
	case p.Price < 0:
		return fmt.Errorf("%w: price cannot be negative", ErrValidation)
	case p.Stock < 0:
		return fmt.Errorf("%w: stock cannot be negative", ErrValidation)
	}

	if p.CategoryID != nil {
		ok, err := s.Repo.CategoryExists(ctx, *p.CategoryID)
		if err != nil {
			return persistence("catalog.validate", err)
		}
		if !ok {
			return fmt.Errorf("%w: category %d does not exist", ErrValidation, *p.CategoryID)
		}
	}
	if p.BrandID != nil {
		ok, err := s.Repo.BrandExists(ctx, *p.BrandID)
		if err != nil {
			return persistence("catalog.validate", err)
		}
		if !ok {
			return fmt.Errorf("%w: brand %d does not exist", ErrValidation, *p.BrandID)
		}
	}
	return nil
}

func (s *CatalogService) reindex(ctx context.Context, p *models.Product) {
	if s.Index == nil {
		return
	}
	if err := s.Index.IndexProduct(ctx, p); err != nil {
		logging.FromContext(ctx).Warn("index_failed", "product_id", p.ID, "error", err)
	}
}

func (s *CatalogService) publish(ctx context.Context, kind string, p *models.Product) {
	if s.Events == nil {
		return
	}
	ev := events.ProductEvent{
		Type:      kind,
		ProductID: p.ID.String(),
		Name:      p.Name,
		SKU:       p.SKU,
		At:        time.Now().UTC(),
	}
	if err := s.Events.PublishEvent(ctx, events.TopicProduct, ev.ProductID, ev); err != nil {
		logging.FromContext(ctx).Warn("publish_failed", "topic", events.TopicProduct, "error", err)
	}
}
