package repo

import (
	"context"
	"strings"

	"github.com/Skotchmaster/cleanshop/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (r *GormRepo) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, translate(err)
	}
	return &product, nil
}

func productFilter(db *gorm.DB, q string) *gorm.DB {
	q = strings.TrimSpace(q)
	if q == "" {
		return db
	}
	like := "%" + strings.ToLower(q) + "%"
	return db.Where("LOWER(name) LIKE ? OR LOWER(sku) LIKE ?", like, like)
}

// GetProducts returns the total matching q and one page, newest first.
func (r *GormRepo) GetProducts(ctx context.Context, q string, offset, limit int) (int64, []models.Product, error) {
	var total int64
	if err := productFilter(r.DB.WithContext(ctx).Model(&models.Product{}), q).Count(&total).Error; err != nil {
		return 0, nil, err
	}

	items := make([]models.Product, 0, limit)
	if err := productFilter(r.DB.WithContext(ctx).Model(&models.Product{}), q).
		Order("created_at DESC").
		Order("id").
		Offset(offset).
		Limit(limit).
		Find(&items).Error; err != nil {
		return 0, nil, err
	}

	return total, items, nil
}

func (r *GormRepo) CreateProduct(ctx context.Context, prod *models.Product) error {
	return translate(r.DB.WithContext(ctx).Create(prod).Error)
}

func (r *GormRepo) SaveProduct(ctx context.Context, prod *models.Product) error {
	return translate(r.DB.WithContext(ctx).Omit("Category", "Brand").Save(prod).Error)
}

func (r *GormRepo) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	res := r.DB.WithContext(ctx).Where("id = ?", id).Delete(&models.Product{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SkuExists reports whether another product already uses sku.
func (r *GormRepo) SkuExists(ctx context.Context, sku string, except uuid.UUID) (bool, error) {
	var count int64
	db := r.DB.WithContext(ctx).Model(&models.Product{}).Where("sku = ?", sku)
	if except != uuid.Nil {
		db = db.Where("id <> ?", except)
	}
	if err := db.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormRepo) CategoryExists(ctx context.Context, id uint) (bool, error) {
	var count int64
	if err := r.DB.WithContext(ctx).Model(&models.Category{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormRepo) BrandExists(ctx context.Context, id uint) (bool, error) {
	var count int64
	if err := r.DB.WithContext(ctx).Model(&models.Brand{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormRepo) CreateCategory(ctx context.Context, c *models.Category) error {
	return translate(r.DB.WithContext(ctx).Create(c).Error)
}

func (r *GormRepo) ListCategories(ctx context.Context) ([]models.Category, error) {
	var items []models.Category
	if err := r.DB.WithContext(ctx).Order("name").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *GormRepo) CreateBrand(ctx context.Context, b *models.Brand) error {
	return translate(r.DB.WithContext(ctx).Create(b).Error)
}

func (r *GormRepo) ListBrands(ctx context.Context) ([]models.Brand, error) {
	var items []models.Brand
	if err := r.DB.WithContext(ctx).Order("name").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
