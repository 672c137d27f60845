package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/Skotchmaster/cleanshop/internal/models"
	pkgdb "github.com/Skotchmaster/cleanshop/pkg/db"
	"github.com/Skotchmaster/cleanshop/pkg/logging"
	"github.com/Skotchmaster/cleanshop/pkg/tokens"
)

type Deps struct {
	AuthHandler    *AuthHTTP
	CatalogHandler *CatalogHTTP
	Tokens         *tokens.Issuer
	DB             *gorm.DB
	// RateLimit guards the /auth routes; nil disables it.
	RateLimit echo.MiddlewareFunc
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if err := pkgdb.Ping(c.Request().Context(), d.DB); err != nil {
			logging.FromContext(c.Request().Context()).Error("not_ready", "error", err)
			return c.NoContent(http.StatusServiceUnavailable)
		}
		return c.NoContent(http.StatusOK)
	})

	var authMW []echo.MiddlewareFunc
	if d.RateLimit != nil {
		authMW = append(authMW, d.RateLimit)
	}
	auth := e.Group("/auth", authMW...)
	auth.POST("/register", d.AuthHandler.Register)
	auth.POST("/login", d.AuthHandler.Login)
	auth.POST("/refresh", d.AuthHandler.Refresh)
	auth.POST("/roles", d.AuthHandler.AddRole)

	e.GET("/products", d.CatalogHandler.GetProducts)
	e.GET("/products/search", d.CatalogHandler.SearchProducts)
	e.GET("/products/:id", d.CatalogHandler.GetProduct)
	e.GET("/categories", d.CatalogHandler.ListCategories)
	e.GET("/brands", d.CatalogHandler.ListBrands)

	staff := []echo.MiddlewareFunc{
		BearerAuth(d.Tokens),
		RequireRole(models.RoleAdministrator, models.RoleManager),
	}
	e.POST("/products", d.CatalogHandler.CreateProduct, staff...)
	e.PATCH("/products/:id", d.CatalogHandler.PatchProduct, staff...)
	e.DELETE("/products/:id", d.CatalogHandler.DeleteProduct, staff...)
	e.POST("/categories", d.CatalogHandler.CreateCategory, staff...)
	e.POST("/brands", d.CatalogHandler.CreateBrand, staff...)
}
