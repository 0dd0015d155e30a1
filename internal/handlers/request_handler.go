package handlers

import (
	"c2cmarket/internal/middleware"
	"c2cmarket/internal/services"

	"github.com/gofiber/fiber/v2"
)

// RequestHandler serves product requests made by buyers.
type RequestHandler struct {
	requests *services.RequestService
}

// NewRequestHandler creates a new RequestHandler.
func NewRequestHandler(requests *services.RequestService) *RequestHandler {
	return &RequestHandler{requests: requests}
}

// RegisterRoutes registers the request routes. Listing approved requests
// is public; everything else needs authRequired.
func (h *RequestHandler) RegisterRoutes(router fiber.Router, authRequired fiber.Handler) {
	requestRoutes := router.Group("/requests")
	requestRoutes.Get("/", h.HandleListApproved)
	requestRoutes.Get("/mine", authRequired, h.HandleListMine)
	requestRoutes.Post("/", authRequired, h.HandleCreate)
	requestRoutes.Put("/:id", authRequired, h.HandleUpdate)
	requestRoutes.Delete("/:id", authRequired, h.HandleDelete)
}

func (h *RequestHandler) HandleListApproved(c *fiber.Ctx) error {
	list, err := h.requests.GetApprovedRequests(c.UserContext())
	if err != nil {
		return writeError(c, err, "Could not retrieve requests")
	}
	return c.JSON(list)
}

func (h *RequestHandler) HandleListMine(c *fiber.Ctx) error {
	list, err := h.requests.GetRequestsByUser(c.UserContext(), middleware.CurrentUser(c))
	if err != nil {
		return writeError(c, err, "Could not retrieve requests")
	}
	return c.JSON(list)
}

func (h *RequestHandler) HandleCreate(c *fiber.Ctx) error {
	var in services.RequestInput
	if ok, err := parseBody(c, &in); !ok {
		return err
	}
	r, err := h.requests.CreateRequest(c.UserContext(), middleware.CurrentUser(c), in)
	if err != nil {
		return writeError(c, err, "Could not create request")
	}
	return c.Status(fiber.StatusCreated).JSON(r)
}

func (h *RequestHandler) HandleUpdate(c *fiber.Ctx) error {
	var in services.RequestInput
	if ok, err := parseBody(c, &in); !ok {
		return err
	}
	r, err := h.requests.UpdateRequest(c.UserContext(), middleware.CurrentUser(c), c.Params("id"), in)
	if err != nil {
		return writeError(c, err, "Could not update request")
	}
	return c.JSON(r)
}

func (h *RequestHandler) HandleDelete(c *fiber.Ctx) error {
	if err := h.requests.DeleteRequest(c.UserContext(), middleware.CurrentUser(c), c.Params("id")); err != nil {
		return writeError(c, err, "Could not delete request")
	}
	return c.SendStatus(fiber.StatusNoContent)
}
