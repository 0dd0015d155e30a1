package handlers

import (
	"c2cmarket/internal/applog"
	"c2cmarket/internal/middleware"
	"c2cmarket/internal/models"
	"c2cmarket/internal/services"

	"github.com/gofiber/fiber/v2"
)

// AdminHandler serves the administrator console: product verification,
// customer management and request moderation.
type AdminHandler struct {
	catalog   *services.CatalogService
	products  *services.ProductService
	customers *services.CustomerService
	requests  *services.RequestService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(catalogService *services.CatalogService, productService *services.ProductService,
	customerService *services.CustomerService, requestService *services.RequestService) *AdminHandler {
	return &AdminHandler{
		catalog:   catalogService,
		products:  productService,
		customers: customerService,
		requests:  requestService,
	}
}

// RegisterRoutes registers the admin routes. Every route requires a signed-in
// administrator.
func (h *AdminHandler) RegisterRoutes(router fiber.Router, authRequired fiber.Handler) {
	adminRoutes := router.Group("/admin", authRequired, middleware.AdminRequired())

	adminRoutes.Get("/products", h.HandleListProducts)
	adminRoutes.Put("/products/:id/verification", h.HandleSetVerification)
	adminRoutes.Delete("/products/:id", h.HandleDeleteProduct)
	adminRoutes.Post("/products/samples", h.HandleLoadSampleProducts)
	adminRoutes.Delete("/products", h.HandleClearProducts)

	adminRoutes.Get("/customers", h.HandleListCustomers)
	adminRoutes.Post("/customers", h.HandleCreateCustomer)
	adminRoutes.Put("/customers/points", h.HandleUpdatePoints)
	adminRoutes.Delete("/customers/:id", h.HandleDeleteCustomer)

	adminRoutes.Get("/requests", h.HandleListRequests)
	adminRoutes.Put("/requests/:id/verification", h.HandleVerifyRequest)
	adminRoutes.Post("/requests/samples", h.HandleLoadSampleRequests)
	adminRoutes.Delete("/requests", h.HandleClearRequests)
}

// HandleListProducts returns every product regardless of verification or
// seller eligibility.
func (h *AdminHandler) HandleListProducts(c *fiber.Ctx) error {
	products := h.catalog.Products().Get()
	if products == nil {
		products = []models.Product{}
	}
	return c.JSON(fiber.Map{
		"products": products,
		"count":    len(products),
	})
}

func (h *AdminHandler) HandleSetVerification(c *fiber.Ctx) error {
	var req struct {
		Status models.VerificationStatus `json:"status"`
	}
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	id := c.Params("id")
	if err := h.products.SetVerification(c.UserContext(), middleware.CurrentUser(c), id, req.Status); err != nil {
		return writeError(c, err, "Could not update verification")
	}
	applog.Audit(c, "admin.product.verification", map[string]any{"productId": id, "status": req.Status})
	return c.JSON(fiber.Map{
		"message": "Verification updated",
		"status":  req.Status,
	})
}

// HandleDeleteProduct removes any product.
func (h *AdminHandler) HandleDeleteProduct(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.products.DeleteProduct(c.UserContext(), middleware.CurrentUser(c), id); err != nil {
		return writeError(c, err, "Could not delete product")
	}
	applog.Audit(c, "admin.product.delete", map[string]any{"productId": id})
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AdminHandler) HandleLoadSampleProducts(c *fiber.Ctx) error {
	n, err := h.products.LoadSampleProducts(c.UserContext())
	if err != nil {
		return writeError(c, err, "Could not load sample products")
	}
	applog.Audit(c, "admin.product.samples", map[string]any{"count": n})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Sample products loaded",
		"count":   n,
	})
}

func (h *AdminHandler) HandleClearProducts(c *fiber.Ctx) error {
	n, err := h.products.ClearProducts(c.UserContext())
	if err != nil {
		return writeError(c, err, "Could not clear products")
	}
	applog.Audit(c, "admin.product.clear", map[string]any{"count": n})
	return c.JSON(fiber.Map{
		"message": "Products cleared",
		"count":   n,
	})
}

func (h *AdminHandler) HandleListCustomers(c *fiber.Ctx) error {
	customers, err := h.customers.GetAllCustomers(c.UserContext())
	if err != nil {
		return writeError(c, err, "Could not retrieve customers")
	}
	return c.JSON(fiber.Map{
		"customers": customers,
		"count":     len(customers),
	})
}

// HandleCreateCustomer creates a password account with its profile.
func (h *AdminHandler) HandleCreateCustomer(c *fiber.Ctx) error {
	var in services.NewCustomerInput
	if ok, err := parseBody(c, &in); !ok {
		return err
	}
	p, err := h.customers.CreateCustomer(c.UserContext(), in)
	if err != nil {
		return writeError(c, err, "Could not create customer")
	}
	applog.Audit(c, "admin.customer.create", map[string]any{"customerId": p.ID})
	return c.Status(fiber.StatusCreated).JSON(p)
}

// HandleUpdatePoints sets the loyalty points of the listed customers, or of
// every customer when no ids are given.
func (h *AdminHandler) HandleUpdatePoints(c *fiber.Ctx) error {
	var req struct {
		IDs    []string `json:"ids"`
		Points int      `json:"points"`
	}
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	n, err := h.customers.UpdatePoints(c.UserContext(), req.IDs, req.Points)
	if err != nil {
		return writeError(c, err, "Could not update points")
	}
	applog.Audit(c, "admin.customer.points", map[string]any{"count": n, "points": req.Points})
	return c.JSON(fiber.Map{
		"message": "Points updated",
		"updated": n,
	})
}

func (h *AdminHandler) HandleDeleteCustomer(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.customers.DeleteCustomer(c.UserContext(), id); err != nil {
		return writeError(c, err, "Could not delete customer")
	}
	applog.Audit(c, "admin.customer.delete", map[string]any{"customerId": id})
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AdminHandler) HandleListRequests(c *fiber.Ctx) error {
	list, err := h.requests.GetAllRequests(c.UserContext(), middleware.CurrentUser(c))
	if err != nil {
		return writeError(c, err, "Could not retrieve requests")
	}
	return c.JSON(list)
}

// HandleVerifyRequest approves or revokes a product request.
func (h *AdminHandler) HandleVerifyRequest(c *fiber.Ctx) error {
	var req struct {
		Approved bool `json:"approved"`
	}
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	id := c.Params("id")
	r, err := h.requests.VerifyRequest(c.UserContext(), middleware.CurrentUser(c), id, req.Approved)
	if err != nil {
		return writeError(c, err, "Could not update request")
	}
	applog.Audit(c, "admin.request.verification", map[string]any{"requestId": id, "approved": req.Approved})
	return c.JSON(r)
}

func (h *AdminHandler) HandleLoadSampleRequests(c *fiber.Ctx) error {
	n, err := h.requests.LoadSampleRequests(c.UserContext())
	if err != nil {
		return writeError(c, err, "Could not load sample requests")
	}
	applog.Audit(c, "admin.request.samples", map[string]any{"count": n})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Sample requests loaded",
		"count":   n,
	})
}

func (h *AdminHandler) HandleClearRequests(c *fiber.Ctx) error {
	n, err := h.requests.ClearRequests(c.UserContext())
	if err != nil {
		return writeError(c, err, "Could not clear requests")
	}
	applog.Audit(c, "admin.request.clear", map[string]any{"count": n})
	return c.JSON(fiber.Map{
		"message": "Requests cleared",
		"count":   n,
	})
}
