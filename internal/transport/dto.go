package transport

import "time"

// AuthResult is returned by login and refresh. Reason is set when
// IsAuthenticated is false.
type AuthResult struct {
	IsAuthenticated        bool       `json:"isAuthenticated"`
	Message                string     `json:"message,omitempty"`
	Token                  string     `json:"token,omitempty"`
	Email                  string     `json:"email,omitempty"`
	UserName               string     `json:"userName,omitempty"`
	Roles                  []string   `json:"roles"`
	RefreshToken           string     `json:"refreshToken,omitempty"`
	RefreshTokenExpiration *time.Time `json:"refreshTokenExpiration,omitempty"`

	Reason error `json:"-"`
}

// Result carries a message for register and role assignment.
type Result struct {
	Message string `json:"message"`
	Reason  error  `json:"-"`
}

func (r *Result) OK() bool { return r.Reason == nil }

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type AddRoleRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type CreateProductRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	SKU         string  `json:"sku"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
	CategoryID  *uint   `json:"category_id"`
	BrandID     *uint   `json:"brand_id"`
}

// PatchProductRequest changes only the fields that are set. A null id
// cannot be told apart from an absent one, so ClearCategory and ClearBrand
// detach the product from its category or brand.
type PatchProductRequest struct {
	Name          *string  `json:"name"`
	Description   *string  `json:"description"`
	SKU           *string  `json:"sku"`
	Price         *float64 `json:"price"`
	Stock         *int     `json:"stock"`
	CategoryID    *uint    `json:"category_id"`
	BrandID       *uint    `json:"brand_id"`
	ClearCategory bool     `json:"clear_category"`
	ClearBrand    bool     `json:"clear_brand"`
}

type CreateCategoryRequest struct {
	Name string `json:"name"`
}

type CreateBrandRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}
