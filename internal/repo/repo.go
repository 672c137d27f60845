package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Skotchmaster/cleanshop/internal/models"
	pkgdb "github.com/Skotchmaster/cleanshop/pkg/db"
	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate key")
)

type GormRepo struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *GormRepo { return &GormRepo{DB: db} }

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case pkgdb.IsUniqueViolation(err):
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	default:
		return err
	}
}

// Migrate creates the schema and the case-insensitive username index.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Role{},
		&models.User{},
		&models.RefreshToken{},
		&models.Category{},
		&models.Brand{},
		&models.Product{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_lower ON users (LOWER(username))",
	).Error; err != nil {
		return fmt.Errorf("username index: %w", err)
	}
	return nil
}

// SeedRoles inserts every name in names that no existing role matches
// case-insensitively. It returns the number of roles created.
func (r *GormRepo) SeedRoles(ctx context.Context, names []string) (int, error) {
	var existing []string
	if err := r.DB.WithContext(ctx).Model(&models.Role{}).Pluck("name", &existing).Error; err != nil {
		return 0, fmt.Errorf("load roles: %w", err)
	}

	have := make(map[string]struct{}, len(existing))
	for _, n := range existing {
		have[strings.ToLower(n)] = struct{}{}
	}

	missing := make([]models.Role, 0, len(names))
	for _, n := range names {
		key := strings.ToLower(n)
		if _, ok := have[key]; ok {
			continue
		}
		have[key] = struct{}{}
		missing = append(missing, models.Role{Name: n, Description: n + " role"})
	}
	if len(missing) == 0 {
		return 0, nil
	}

	if err := r.DB.WithContext(ctx).Create(&missing).Error; err != nil {
		return 0, fmt.Errorf("seed roles: %w", translate(err))
	}
	return len(missing), nil
}
