package handlers

import (
	"c2cmarket/internal/middleware"
	"c2cmarket/internal/services"

	"github.com/gofiber/fiber/v2"
)

// SellerHandler serves the seller dashboard.
type SellerHandler struct {
	catalog  *services.CatalogService
	products *services.ProductService
}

// NewSellerHandler creates a new SellerHandler.
func NewSellerHandler(catalogService *services.CatalogService, productService *services.ProductService) *SellerHandler {
	return &SellerHandler{catalog: catalogService, products: productService}
}

// RegisterRoutes registers the seller routes behind authRequired.
func (h *SellerHandler) RegisterRoutes(router fiber.Router, authRequired fiber.Handler) {
	sellerRoutes := router.Group("/seller", authRequired)
	sellerRoutes.Get("/products", h.HandleListProducts)
	sellerRoutes.Post("/products", h.HandleCreateProduct)
	sellerRoutes.Put("/products/:id", h.HandleUpdateProduct)
	sellerRoutes.Delete("/products/:id", h.HandleDeleteProduct)
}

// HandleListProducts lists the caller's products, pending and inactive ones
// included, with summary stats.
func (h *SellerHandler) HandleListProducts(c *fiber.Ctx) error {
	u := middleware.CurrentUser(c)
	return c.JSON(fiber.Map{
		"products": h.catalog.SellerProducts(u),
		"stats":    h.catalog.SellerStats(u),
	})
}

// HandleCreateProduct lists a new product for verification.
func (h *SellerHandler) HandleCreateProduct(c *fiber.Ctx) error {
	var in services.ProductInput
	if ok, err := parseBody(c, &in); !ok {
		return err
	}
	p, err := h.products.CreateProduct(c.UserContext(), middleware.CurrentUser(c), in)
	if err != nil {
		return writeError(c, err, "Could not create product")
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

// HandleUpdateProduct edits one of the caller's products.
func (h *SellerHandler) HandleUpdateProduct(c *fiber.Ctx) error {
	var in services.ProductInput
	if ok, err := parseBody(c, &in); !ok {
		return err
	}
	p, err := h.products.UpdateProduct(c.UserContext(), middleware.CurrentUser(c), c.Params("id"), in)
	if err != nil {
		return writeError(c, err, "Could not update product")
	}
	return c.JSON(p)
}

// HandleDeleteProduct removes one of the caller's products.
func (h *SellerHandler) HandleDeleteProduct(c *fiber.Ctx) error {
	if err := h.products.DeleteProduct(c.UserContext(), middleware.CurrentUser(c), c.Params("id")); err != nil {
		return writeError(c, err, "Could not delete product")
	}
	return c.SendStatus(fiber.StatusNoContent)
}
