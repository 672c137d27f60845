package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleAdministrator = "Administrator"
	RoleManager       = "Manager"
	RoleEmployee      = "Employee"

	DefaultRole = RoleEmployee
)

// Roles is the fixed enumeration seeded at start-up.
var Roles = []string{RoleAdministrator, RoleManager, RoleEmployee}

type AuditFields struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type User struct {
	ID            uint           `gorm:"primaryKey;autoIncrement"        json:"id"`
	Username      string         `gorm:"size:50;not null"                json:"username"`
	Email         string         `gorm:"size:100;not null"               json:"email"`
	PasswordHash  string         `gorm:"size:255;not null"               json:"-"`
	Roles         []Role         `gorm:"many2many:users_roles"           json:"roles"`
	RefreshTokens []RefreshToken `gorm:"constraint:OnDelete:CASCADE"     json:"-"`
	AuditFields   `gorm:"embedded"`
}

func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if strings.EqualFold(r.Name, name) {
			return true
		}
	}
	return false
}

// ActiveRefreshToken returns the first token still usable at now, or nil.
func (u *User) ActiveRefreshToken(now time.Time) *RefreshToken {
	for i := range u.RefreshTokens {
		if u.RefreshTokens[i].IsActive(now) {
			return &u.RefreshTokens[i]
		}
	}
	return nil
}

func (u *User) RefreshToken(token string) *RefreshToken {
	for i := range u.RefreshTokens {
		if u.RefreshTokens[i].Token == token {
			return &u.RefreshTokens[i]
		}
	}
	return nil
}

type Role struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"      json:"id"`
	Name        string `gorm:"size:50;not null;uniqueIndex"  json:"name"`
	Description string `gorm:"size:255"                      json:"description"`
	AuditFields `gorm:"embedded"`
}

// RefreshToken rows are never deleted; rotation only sets Revoked.
type RefreshToken struct {
	ID      uint       `gorm:"primaryKey;autoIncrement"      json:"id"`
	UserID  uint       `gorm:"index;not null"                json:"user_id"`
	Token   string     `gorm:"size:255;not null;uniqueIndex" json:"token"`
	Created time.Time  `gorm:"not null"                      json:"created"`
	Expires time.Time  `gorm:"not null"                      json:"expires"`
	Revoked *time.Time `json:"revoked,omitempty"`
}

func (t *RefreshToken) IsExpired(now time.Time) bool { return !now.Before(t.Expires) }

func (t *RefreshToken) IsActive(now time.Time) bool {
	return t.Revoked == nil && !t.IsExpired(now)
}

type Product struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"             json:"id"`
	Name        string    `gorm:"size:50;not null"                 json:"name"`
	Description string    `gorm:"not null"                         json:"description"`
	SKU         string    `gorm:"size:64;not null;uniqueIndex"     json:"sku"`
	Price       float64   `gorm:"type:numeric(18,2);not null"      json:"price"`
	Stock       int       `gorm:"not null;default:0"               json:"stock"`
	CategoryID  *uint     `gorm:"index"                            json:"category_id,omitempty"`
	BrandID     *uint     `gorm:"index"                            json:"brand_id,omitempty"`
	Category    *Category `json:"category,omitempty"`
	Brand       *Brand    `json:"brand,omitempty"`
	AuditFields `gorm:"embedded"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

type Category struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"      json:"id"`
	Name        string `gorm:"size:100;not null;uniqueIndex" json:"name"`
	AuditFields `gorm:"embedded"`
}

type Brand struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"      json:"id"`
	Name        string `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Description string `gorm:"size:255"                      json:"description"`
	AuditFields `gorm:"embedded"`
}
