package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"c2cmarket/internal/catalog"
	"c2cmarket/internal/middleware"
	"c2cmarket/internal/models"
	"c2cmarket/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cast"
	"github.com/valyala/fasthttp"
)

// streamHeartbeat is how often an idle listing stream is pinged so that
// disconnected clients are noticed.
const streamHeartbeat = 15 * time.Second

// ProductHandler serves the public catalog and buyer ratings.
type ProductHandler struct {
	catalog  *services.CatalogService
	products *services.ProductService
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(catalogService *services.CatalogService, productService *services.ProductService) *ProductHandler {
	return &ProductHandler{
		catalog:  catalogService,
		products: productService,
	}
}

// RegisterRoutes registers the product routes. authRequired guards ratings.
func (h *ProductHandler) RegisterRoutes(router fiber.Router, authRequired fiber.Handler) {
	productRoutes := router.Group("/products")
	productRoutes.Get("/", h.HandleListProducts)
	productRoutes.Get("/stream", h.HandleStreamProducts)
	productRoutes.Get("/:id", h.HandleGetProduct)
	productRoutes.Post("/:id/ratings", authRequired, h.HandleRateProduct)
}

// filtersFromQuery reads listing filters from the query string.
func filtersFromQuery(c *fiber.Ctx) (catalog.Filters, error) {
	f := catalog.Filters{
		Search:   c.Query("search"),
		Delivery: catalog.DeliveryMode(c.Query("delivery")),
		City:     c.Query("city"),
		Sort:     catalog.SortOption(c.Query("sort")),
	}
	for _, raw := range strings.Split(c.Query("category"), ",") {
		if raw = strings.TrimSpace(raw); raw != "" {
			f.Categories = append(f.Categories, models.Category(raw))
		}
	}

	bound := func(key string) (*float64, error) {
		raw := c.Query(key)
		if raw == "" {
			return nil, nil
		}
		v, err := cast.ToFloat64E(raw)
		if err != nil {
			return nil, fmt.Errorf("%s must be a number", key)
		}
		return &v, nil
	}
	var err error
	if f.PriceRange.Min, err = bound("minPrice"); err != nil {
		return f, err
	}
	if f.PriceRange.Max, err = bound("maxPrice"); err != nil {
		return f, err
	}
	if raw := c.Query("inStock"); raw != "" {
		if f.InStockOnly, err = cast.ToBoolE(raw); err != nil {
			return f, fmt.Errorf("inStock must be a boolean")
		}
	}
	return f, f.Validate()
}

func badFilters(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": "Invalid filters",
		"error":   err.Error(),
	})
}

// HandleListProducts returns the eligible, listed products matching the
// query filters.
func (h *ProductHandler) HandleListProducts(c *fiber.Ctx) error {
	f, err := filtersFromQuery(c)
	if err != nil {
		return badFilters(c, err)
	}
	products := h.catalog.Query(f)
	return c.JSON(fiber.Map{
		"products": products,
		"count":    len(products),
	})
}

// HandleStreamProducts streams the listing for the query filters as
// server-sent events, pushing a new result whenever the catalog changes.
// The optional "events" parameter closes the stream after that many
// results.
func (h *ProductHandler) HandleStreamProducts(c *fiber.Ctx) error {
	f, err := filtersFromQuery(c)
	if err != nil {
		return badFilters(c, err)
	}
	limit := c.QueryInt("events", 0)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		h.writeListing(w, f, limit)
	}))
	return nil
}

// writeListing subscribes to the listing for f and writes it to w until the
// client goes away or limit results were sent. The subscription lives only
// as long as this call, so a stream that is never written holds nothing.
func (h *ProductHandler) writeListing(w *bufio.Writer, f catalog.Filters, limit int) {
	listing, stop := h.catalog.Watch(f)
	defer stop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := listing.Changes(ctx)

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	sent := 0
	for {
		select {
		case products, ok := <-updates:
			if !ok {
				return
			}
			body, err := json.Marshal(fiber.Map{"products": products, "count": len(products)})
			if err != nil {
				log.Printf("Failed to encode listing: %v", err)
				return
			}
			fmt.Fprintf(w, "event: products\ndata: %s\n\n", body)
			if err := w.Flush(); err != nil {
				log.Printf("Listing stream closed: %v", err)
				return
			}
			sent++
			if limit > 0 && sent >= limit {
				return
			}
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			if err := w.Flush(); err != nil {
				log.Printf("Listing stream closed: %v", err)
				return
			}
		}
	}
}

// HandleGetProduct returns a listed product with its rating summary.
func (h *ProductHandler) HandleGetProduct(c *fiber.Ctx) error {
	productID := c.Params("id")
	p := h.catalog.Product(productID)
	if p == nil {
		return notFound(c, fmt.Sprintf("Product with ID %s not found", productID))
	}
	return c.JSON(fiber.Map{
		"product":         p,
		"averageRating":   catalog.AverageRating(p),
		"discountPercent": catalog.DiscountPercent(p),
	})
}

// HandleRateProduct records the signed-in user's rating of a product.
func (h *ProductHandler) HandleRateProduct(c *fiber.Ctx) error {
	var in services.RatingInput
	if ok, err := parseBody(c, &in); !ok {
		return err
	}
	p, err := h.products.AddOrUpdateRating(c.UserContext(), middleware.CurrentUser(c), c.Params("id"), in)
	if err != nil {
		return writeError(c, err, "Could not save rating")
	}
	return c.JSON(fiber.Map{
		"message":       "Rating saved",
		"ratings":       p.Ratings,
		"averageRating": catalog.AverageRating(p),
	})
}
