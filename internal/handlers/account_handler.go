package handlers

import (
	"c2cmarket/internal/middleware"
	"c2cmarket/internal/models"
	"c2cmarket/internal/services"

	"github.com/gofiber/fiber/v2"
)

// AccountHandler serves the signed-in customer's own profile.
type AccountHandler struct {
	customers *services.CustomerService
	auth      *services.AuthService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(customers *services.CustomerService, auth *services.AuthService) *AccountHandler {
	return &AccountHandler{customers: customers, auth: auth}
}

// RegisterRoutes registers the account routes behind authRequired.
func (h *AccountHandler) RegisterRoutes(router fiber.Router, authRequired fiber.Handler) {
	accountRoutes := router.Group("/account", authRequired)
	accountRoutes.Get("/", h.HandleGetProfile)
	accountRoutes.Put("/", h.HandleSaveProfile)
	accountRoutes.Post("/password-reset", h.HandlePasswordReset)
}

// HandleGetProfile returns the stored profile, or a default built from the
// session user when none has been saved.
func (h *AccountHandler) HandleGetProfile(c *fiber.Ctx) error {
	p, err := h.customers.ProfileFor(c.UserContext(), middleware.CurrentUser(c))
	if err != nil {
		return writeError(c, err, "Could not load profile")
	}
	return c.JSON(fiber.Map{
		"profile":  p,
		"complete": p.IsComplete(),
	})
}

// HandleSaveProfile saves the caller's profile and returns where to go
// next when a return URL is given.
func (h *AccountHandler) HandleSaveProfile(c *fiber.Ctx) error {
	var req struct {
		services.ProfileInput
		ReturnURL string `json:"returnUrl"`
	}
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	u := middleware.CurrentUser(c)
	p, err := h.customers.SaveProfile(c.UserContext(), u.ID, req.ProfileInput)
	if err != nil {
		return writeError(c, err, "Could not save profile")
	}
	return c.JSON(fiber.Map{
		"message":  "Profile saved",
		"profile":  p,
		"complete": p.IsComplete(),
		"redirect": services.SafeReturnURL(req.ReturnURL),
	})
}

// HandlePasswordReset mails a reset link to a password account holder.
func (h *AccountHandler) HandlePasswordReset(c *fiber.Ctx) error {
	u := middleware.CurrentUser(c)
	if u.AuthProvider != models.ProviderPassword {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Password reset is only available for password accounts",
		})
	}
	if err := h.auth.ResetPassword(c.UserContext(), u.Email); err != nil {
		return writeError(c, err, "Could not send reset link")
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Reset link sent",
	})
}
