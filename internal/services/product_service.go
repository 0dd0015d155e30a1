package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"c2cmarket/internal/catalog"
	"c2cmarket/internal/models"
	"c2cmarket/internal/repositories"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ProductInput is the seller-editable part of a product.
type ProductInput struct {
	ProductName         string                 `json:"productName" validate:"required,min=3,max=200"`
	Description         string                 `json:"description" validate:"required,min=10,max=5000"`
	Category            models.Category        `json:"category" validate:"required,oneof=groceries vegetables clothing services dairy homemade"`
	SKU                 string                 `json:"sku" validate:"max=64"`
	MarketPrice         float64                `json:"marketPrice" validate:"gte=0"`
	C2CPrice            float64                `json:"c2cPrice" validate:"gte=0"`
	Images              []string               `json:"images" validate:"omitempty,dive,url"`
	VideoURL            string                 `json:"videoUrl" validate:"omitempty,url"`
	HoverMedia          string                 `json:"hoverMedia" validate:"omitempty,url"`
	Stock               int                    `json:"stock" validate:"gte=0"`
	IsPreorderAvailable bool                   `json:"isPreorderAvailable"`
	SellerContact       models.Contact         `json:"sellerContact"`
	SellerLocations     []models.Location      `json:"sellerLocations" validate:"omitempty,dive"`
	DeliveryOptions     models.DeliveryOptions `json:"deliveryOptions"`
	AvailableDates      []string               `json:"availableDates"`
	UpcomingScheduled   []models.ScheduledSlot `json:"upcomingScheduled"`
	IsActive            *bool                  `json:"isActive"`
}

// RatingInput is a buyer's rating of a product.
type RatingInput struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment"`
}

// ProductService handles product writes: seller management, admin
// verification, ratings and the sample catalog.
type ProductService struct {
	store      repositories.DocumentRepository
	normalizer *catalog.Normalizer
	events     EventPublisher
	now        func() time.Time
}

// NewProductService creates a new ProductService. events may be nil.
func NewProductService(store repositories.DocumentRepository, normalizer *catalog.Normalizer, events EventPublisher) *ProductService {
	return &ProductService{
		store:      store,
		normalizer: normalizer,
		events:     events,
		now:        time.Now,
	}
}

// GetProductByID returns the normalized product, or nil when it does not
// exist.
func (s *ProductService) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	doc, err := s.store.Get(ctx, repositories.CollectionProducts, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p, err := s.normalizer.Product(doc.ID, doc.Fields)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func availability(stock int, preorder bool) models.AvailabilityStatus {
	switch {
	case stock > 0:
		return models.AvailabilityInStock
	case preorder:
		return models.AvailabilityPreorder
	default:
		return models.AvailabilityOutOfStock
	}
}

func (in ProductInput) applyTo(p *models.Product) {
	p.ProductName = in.ProductName
	p.Description = in.Description
	p.Category = in.Category
	if in.SKU != "" {
		p.SKU = in.SKU
	}
	p.MarketPrice = in.MarketPrice
	p.C2CPrice = in.C2CPrice
	if len(in.Images) > 0 {
		p.Images = in.Images
	}
	p.VideoURL = in.VideoURL
	p.HoverMedia = in.HoverMedia
	p.Stock = in.Stock
	p.IsPreorderAvailable = in.IsPreorderAvailable
	p.AvailabilityStatus = availability(in.Stock, in.IsPreorderAvailable)
	if in.SellerContact.Phone != "" || in.SellerContact.Email != "" {
		p.SellerContact = in.SellerContact
	}
	if len(in.SellerLocations) > 0 {
		p.SellerLocations = in.SellerLocations
	}
	p.DeliveryOptions = in.DeliveryOptions
	if in.AvailableDates != nil {
		p.AvailableDates = in.AvailableDates
	}
	if in.UpcomingScheduled != nil {
		p.UpcomingScheduled = in.UpcomingScheduled
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
}

// CreateProduct stores a new product attributed to u. New products await
// admin verification.
func (s *ProductService) CreateProduct(ctx context.Context, u *models.User, in ProductInput) (*models.Product, error) {
	if u == nil {
		return nil, ErrNotSignedIn
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	seed := map[string]any{
		"sellerId":           u.ID,
		"sellerName":         displayName(u),
		"verificationStatus": string(models.VerificationPending),
		"reviewCount":        0,
		"createdById":        u.ID,
		"createdByEmail":     u.Email,
		"createdByName":      displayName(u),
	}
	p, err := s.normalizer.Product(uuid.New().String(), seed)
	if err != nil {
		return nil, err
	}
	in.applyTo(&p)
	p.PriceDiscount = models.Discount(p.MarketPrice, p.C2CPrice)
	p.CreatedAt, p.UpdatedAt = &now, &now

	if err := s.save(ctx, &p); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	publishEvent(s.events, "product.created", productEvent(&p, u))
	return &p, nil
}

// UpdateProduct replaces the editable fields of a product owned by u.
// Admins may edit any product.
func (s *ProductService) UpdateProduct(ctx context.Context, u *models.User, id string, in ProductInput) (*models.Product, error) {
	if u == nil {
		return nil, ErrNotSignedIn
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	p, err := s.owned(ctx, u, id)
	if err != nil {
		return nil, err
	}

	in.applyTo(p)
	p.PriceDiscount = models.Discount(p.MarketPrice, p.C2CPrice)
	now := s.now().UTC()
	p.UpdatedAt = &now

	if err := s.save(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to update product %s: %w", id, err)
	}
	publishEvent(s.events, "product.updated", productEvent(p, u))
	return p, nil
}

// DeleteProduct removes a product owned by u. Admins may delete any product.
func (s *ProductService) DeleteProduct(ctx context.Context, u *models.User, id string) error {
	if u == nil {
		return ErrNotSignedIn
	}
	p, err := s.owned(ctx, u, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, repositories.CollectionProducts, id); err != nil {
		return fmt.Errorf("failed to delete product %s: %w", id, err)
	}
	publishEvent(s.events, "product.deleted", productEvent(p, u))
	return nil
}

// owned loads a product and checks that u may change it.
func (s *ProductService) owned(ctx context.Context, u *models.User, id string) (*models.Product, error) {
	p, err := s.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("product %s: %w", id, repositories.ErrNotFound)
	}
	if !u.IsAdmin && !p.OwnedBy(u) {
		return nil, ErrForbidden
	}
	return p, nil
}

// SetVerification changes a product's verification status. Admin only.
func (s *ProductService) SetVerification(ctx context.Context, actor *models.User, id string, status models.VerificationStatus) error {
	if actor == nil || !actor.IsAdmin {
		return ErrForbidden
	}
	if status != models.VerificationPending && status != models.VerificationVerified {
		return invalidField("verificationStatus", fmt.Sprintf("unknown verification status %q", status))
	}
	if _, err := s.store.Get(ctx, repositories.CollectionProducts, id); err != nil {
		return err
	}
	err := s.store.Upsert(ctx, repositories.CollectionProducts, id, map[string]any{
		"verificationStatus": string(status),
		"updatedAt":          s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to set verification of %s: %w", id, err)
	}
	log.Printf("Product %s marked %s by %s", id, status, actor.Email)
	publishEvent(s.events, "product.verification", map[string]any{
		"productId": id,
		"status":    status,
		"actor":     actor.ID,
	})
	return nil
}

// AddOrUpdateRating records u's rating of a product, replacing any earlier
// rating by the same user.
func (s *ProductService) AddOrUpdateRating(ctx context.Context, u *models.User, productID string, in RatingInput) (*models.Product, error) {
	if u == nil {
		return nil, ErrNotSignedIn
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	p, err := s.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("product %s: %w", productID, repositories.ErrNotFound)
	}

	now := s.now().UTC()
	p.Ratings = catalog.UpsertRating(p.Ratings, models.Rating{
		UserID:   u.ID,
		UserName: displayName(u),
		Rating:   in.Rating,
		Comment:  in.Comment,
	}, now)
	p.UpdatedAt = &now

	err = s.store.Upsert(ctx, repositories.CollectionProducts, productID, map[string]any{
		"ratings":   p.Ratings,
		"updatedAt": now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save rating on %s: %w", productID, err)
	}
	publishEvent(s.events, "product.rated", map[string]any{
		"productId": productID,
		"userId":    u.ID,
		"rating":    in.Rating,
	})
	return p, nil
}

// LoadSampleProducts writes the demo catalog. Existing sample documents
// are overwritten.
func (s *ProductService) LoadSampleProducts(ctx context.Context) (int, error) {
	samples := catalog.SampleProducts(s.now())
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, doc := range samples {
		id, _ := doc["id"].(string)
		g.Go(func() error {
			return s.store.Upsert(ctx, repositories.CollectionProducts, id, doc)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("failed to load sample products: %w", err)
	}
	log.Printf("Loaded %d sample products", len(samples))
	return len(samples), nil
}

// ClearProducts deletes every product.
func (s *ProductService) ClearProducts(ctx context.Context) (int, error) {
	docs, err := s.store.List(ctx, repositories.CollectionProducts)
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	if err := s.store.DeleteMany(ctx, repositories.CollectionProducts, ids); err != nil {
		return 0, fmt.Errorf("failed to clear products: %w", err)
	}
	return len(ids), nil
}

func (s *ProductService) save(ctx context.Context, p *models.Product) error {
	doc, err := catalog.Document(p)
	if err != nil {
		return err
	}
	// Upsert merges, so cleared optional media must be written explicitly.
	doc["videoUrl"] = p.VideoURL
	doc["hoverMedia"] = p.HoverMedia
	return s.store.Upsert(ctx, repositories.CollectionProducts, p.ID, doc)
}

func productEvent(p *models.Product, actor *models.User) map[string]any {
	return map[string]any{
		"productId": p.ID,
		"name":      p.ProductName,
		"sellerId":  p.SellerID,
		"actor":     actor.ID,
	}
}

// displayName is the user's name, falling back to their email.
func displayName(u *models.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
