package handlers

import (
	"c2cmarket/internal/applog"
	"c2cmarket/internal/middleware"
	"c2cmarket/internal/services"

	"github.com/gofiber/fiber/v2"
)

// AuthHandler handles HTTP requests for authentication.
type AuthHandler struct {
	authService *services.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// RegisterRoutes registers the authentication routes. throttle, when
// non-nil, guards every credential-accepting endpoint.
func (h *AuthHandler) RegisterRoutes(router fiber.Router, authRequired, throttle fiber.Handler) {
	if throttle == nil {
		throttle = func(c *fiber.Ctx) error { return c.Next() }
	}
	authRoutes := router.Group("/auth")
	authRoutes.Post("/link", throttle, h.HandleSendLink)
	authRoutes.Post("/link/complete", throttle, h.HandleCompleteLink)
	authRoutes.Post("/login", throttle, h.HandleLogin)
	authRoutes.Post("/signup", throttle, h.HandleSignUp)
	authRoutes.Post("/register", throttle, h.HandleRegister)
	authRoutes.Post("/federated", throttle, h.HandleFederated)
	authRoutes.Post("/password/reset", throttle, h.HandleResetPassword)
	authRoutes.Post("/password/confirm", throttle, h.HandleConfirmReset)
	authRoutes.Post("/logout", authRequired, h.HandleLogout)
	authRoutes.Get("/me", authRequired, h.HandleMe)
}

// signInResponse completes a successful sign-in: it picks the redirect
// target and returns the session token.
func (h *AuthHandler) signInResponse(c *fiber.Ctx, status int, method, returnURL string, res *services.SignInResult) error {
	c.Locals(applog.UserKey, res.User.ID)
	redirect, err := h.authService.RedirectAfterSignIn(c.UserContext(), res.User.ID, returnURL)
	if err != nil {
		return writeError(c, err, "Could not complete sign-in")
	}
	c.Status(status)
	applog.Audit(c, "auth.signin", map[string]any{"method": method})
	return c.JSON(fiber.Map{
		"message":   "Login successful",
		"token":     res.Token,
		"expiresAt": res.ExpiresAt,
		"user":      res.User,
		"redirect":  redirect,
	})
}

func (h *AuthHandler) signInFailed(c *fiber.Ctx, method string, err error) error {
	if statusFor(err) == fiber.StatusUnauthorized {
		c.Status(fiber.StatusUnauthorized)
		applog.Security(c, "auth.signin.fail", map[string]any{"method": method})
	}
	return writeError(c, err, "Authentication failed")
}

// LoginRequest represents the request body for password login.
type LoginRequest struct {
	services.Credentials
	ReturnURL string `json:"returnUrl"`
}

// HandleLogin signs in a password account and issues a session token.
func (h *AuthHandler) HandleLogin(c *fiber.Ctx) error {
	var req LoginRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	res, err := h.authService.SignInWithPassword(c.UserContext(), req.Credentials)
	if err != nil {
		return h.signInFailed(c, "password", err)
	}
	return h.signInResponse(c, fiber.StatusOK, "password", req.ReturnURL, res)
}

// SignUpRequest represents the request body for a bare password sign-up.
type SignUpRequest struct {
	services.SignUpInput
	ReturnURL string `json:"returnUrl"`
}

// HandleSignUp creates a password account and signs it in.
func (h *AuthHandler) HandleSignUp(c *fiber.Ctx) error {
	var req SignUpRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	res, err := h.authService.SignUp(c.UserContext(), req.SignUpInput)
	if err != nil {
		return writeError(c, err, "Registration failed")
	}
	return h.signInResponse(c, fiber.StatusCreated, "signup", req.ReturnURL, res)
}

// RegisterRequest is the full signup form.
type RegisterRequest struct {
	services.RegisterInput
	ReturnURL string `json:"returnUrl"`
}

// HandleRegister creates a password account with its customer profile.
func (h *AuthHandler) HandleRegister(c *fiber.Ctx) error {
	var req RegisterRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	res, err := h.authService.Register(c.UserContext(), req.RegisterInput)
	if err != nil {
		return writeError(c, err, "Registration failed")
	}
	return h.signInResponse(c, fiber.StatusCreated, "register", req.ReturnURL, res)
}

// HandleSendLink mails a sign-in link.
func (h *AuthHandler) HandleSendLink(c *fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
	}
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	if err := h.authService.SendSignInLink(c.UserContext(), req.Email); err != nil {
		return writeError(c, err, "Could not send sign-in link")
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Sign-in link sent",
	})
}

// CompleteLinkRequest finishes an emailed-link sign-in.
type CompleteLinkRequest struct {
	services.LinkInput
	ReturnURL string `json:"returnUrl"`
}

// HandleCompleteLink signs in with an emailed link.
func (h *AuthHandler) HandleCompleteLink(c *fiber.Ctx) error {
	var req CompleteLinkRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	res, err := h.authService.CompleteSignIn(c.UserContext(), req.LinkInput)
	if err != nil {
		return h.signInFailed(c, "emailLink", err)
	}
	return h.signInResponse(c, fiber.StatusOK, "emailLink", req.ReturnURL, res)
}

// HandleFederated signs in with a federated provider ID token.
func (h *AuthHandler) HandleFederated(c *fiber.Ctx) error {
	var req struct {
		Credential string `json:"credential"`
		ReturnURL  string `json:"returnUrl"`
	}
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	res, err := h.authService.SignInWithFederated(c.UserContext(), req.Credential)
	if err != nil {
		return h.signInFailed(c, "federated", err)
	}
	return h.signInResponse(c, fiber.StatusOK, "federated", req.ReturnURL, res)
}

// HandleResetPassword mails a password reset link. The response does not
// reveal whether the email has an account.
func (h *AuthHandler) HandleResetPassword(c *fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
	}
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	if err := h.authService.ResetPassword(c.UserContext(), req.Email); err != nil {
		return writeError(c, err, "Could not send reset link")
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "If the account exists, a reset link has been sent",
	})
}

// HandleConfirmReset sets a new password from a reset code.
func (h *AuthHandler) HandleConfirmReset(c *fiber.Ctx) error {
	var req struct {
		Code     string `json:"code"`
		Password string `json:"password"`
	}
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	if err := h.authService.ConfirmPasswordReset(c.UserContext(), req.Code, req.Password); err != nil {
		return writeError(c, err, "Could not reset password")
	}
	applog.Audit(c, "auth.password.reset", nil)
	return c.JSON(fiber.Map{
		"message": "Password updated",
	})
}

// HandleLogout ends the caller's session.
func (h *AuthHandler) HandleLogout(c *fiber.Ctx) error {
	sess := middleware.CurrentSession(c)
	redirect, err := h.authService.Logout(c.UserContext(), sess.ID)
	if err != nil {
		return writeError(c, err, "Could not sign out")
	}
	applog.Audit(c, "auth.signout", nil)
	return c.JSON(fiber.Map{
		"message":  "Signed out",
		"redirect": redirect,
	})
}

// HandleMe returns the signed-in user.
func (h *AuthHandler) HandleMe(c *fiber.Ctx) error {
	sess := middleware.CurrentSession(c)
	return c.JSON(fiber.Map{
		"user":      sess.User(),
		"state":     sess.State().String(),
		"expiresAt": sess.ExpiresAt,
	})
}
