package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Skotchmaster/cleanshop/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrClosed = errors.New("unit of work already closed")

// Store is one unit of work over the credential tables. Writes are staged
// in a transaction and become visible only after Persist.
type Store interface {
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	FindUserByRefreshToken(ctx context.Context, token string) (*models.User, error)
	FindRoleByName(ctx context.Context, name string) (*models.Role, error)
	Save(ctx context.Context, u *models.User) error
	// RevokeRefreshToken revokes token only if it is still active at at.
	// It reports whether this call performed the revocation.
	RevokeRefreshToken(ctx context.Context, token string, at time.Time) (bool, error)
	Persist(ctx context.Context) (int64, error)
	Rollback() error
}

// Begin opens a transaction bound to ctx. Callers must defer Rollback.
func (r *GormRepo) Begin(ctx context.Context) (Store, error) {
	tx := r.DB.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &txStore{tx: tx}, nil
}

type txStore struct {
	tx      *gorm.DB
	written int64
	closed  bool
}

type userRole struct {
	UserID uint `gorm:"primaryKey"`
	RoleID uint `gorm:"primaryKey"`
}

func (userRole) TableName() string { return "users_roles" }

func withUserGraph(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Roles", func(db *gorm.DB) *gorm.DB { return db.Order("roles.id") }).
		Preload("RefreshTokens", func(db *gorm.DB) *gorm.DB { return db.Order("refresh_tokens.id") })
}

func (s *txStore) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := withUserGraph(s.tx.WithContext(ctx)).
		Where("LOWER(username) = LOWER(?)", username).
		First(&u).Error
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *txStore) FindUserByRefreshToken(ctx context.Context, token string) (*models.User, error) {
	owner := s.tx.WithContext(ctx).Model(&models.RefreshToken{}).Select("user_id").Where("token = ?", token)

	var u models.User
	err := withUserGraph(s.tx.WithContext(ctx)).
		Where("id IN (?)", owner).
		First(&u).Error
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *txStore) FindRoleByName(ctx context.Context, name string) (*models.Role, error) {
	var role models.Role
	if err := s.tx.WithContext(ctx).Where("LOWER(name) = LOWER(?)", name).First(&role).Error; err != nil {
		return nil, translate(err)
	}
	return &role, nil
}

// Save stages the user row, any missing role links, and refresh tokens that
// have not been stored yet. Existing tokens are only changed through
// RevokeRefreshToken.
func (s *txStore) Save(ctx context.Context, u *models.User) error {
	db := s.tx.WithContext(ctx)

	res := db.Omit(clause.Associations).Save(u)
	if res.Error != nil {
		return translate(res.Error)
	}
	s.written += res.RowsAffected

	if len(u.Roles) > 0 {
		links := make([]userRole, 0, len(u.Roles))
		for _, role := range u.Roles {
			links = append(links, userRole{UserID: u.ID, RoleID: role.ID})
		}
		res = db.Clauses(clause.OnConflict{DoNothing: true}).Create(&links)
		if res.Error != nil {
			return translate(res.Error)
		}
		s.written += res.RowsAffected
	}

	for i := range u.RefreshTokens {
		t := &u.RefreshTokens[i]
		if t.ID != 0 {
			continue
		}
		t.UserID = u.ID
		res = db.Create(t)
		if res.Error != nil {
			return translate(res.Error)
		}
		s.written += res.RowsAffected
	}
	return nil
}

func (s *txStore) RevokeRefreshToken(ctx context.Context, token string, at time.Time) (bool, error) {
	res := s.tx.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("token = ? AND revoked IS NULL AND expires > ?", token, at).
		Update("revoked", at)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	s.written += res.RowsAffected
	return res.RowsAffected == 1, nil
}

// Persist commits the unit of work and returns the number of rows written.
func (s *txStore) Persist(ctx context.Context) (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.closed = true
	if err := s.tx.Commit().Error; err != nil {
		return 0, translate(err)
	}
	return s.written, nil
}

// Rollback discards staged writes. It is a no-op after Persist.
func (s *txStore) Rollback() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.tx.Rollback().Error
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}
