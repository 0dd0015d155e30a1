// Package catalog turns stored documents into canonical marketplace values
// and implements the listing pipeline: eligibility gating, user filters and
// sort order.
package catalog

import (
	"encoding/json"
	"fmt"
	"log"
	"reflect"
	"slices"
	"strings"
	"time"

	"c2cmarket/internal/models"

	"github.com/go-viper/mapstructure/v2"
	"github.com/google/uuid"
)

// Defaults applied to fields a stored product does not carry.
const (
	DefaultProductName  = "Community product"
	DefaultDescription  = "Locally sourced product from trusted neighbors with transparent quality checks."
	DefaultSKU          = "sku-unknown"
	DefaultSellerID     = "community-seller"
	DefaultSellerName   = "Community Seller"
	DefaultSellerRating = 4.8
	DefaultReviewCount  = 12
	DefaultAddress      = "Community Market"
	DefaultCity         = "Pune"
	DefaultRequestTitle = "Request"
	DefaultRequestCat   = "general"
	MaxCommentLength    = 100
	MinRating           = 1
	MaxRating           = 5
)

// DefaultPlaceholderImages is used when a product has no images.
var DefaultPlaceholderImages = []string{
	"https://images.unsplash.com/photo-1528825871115-3581a5387919?auto=format&fit=crop&w=800&q=80",
	"https://images.unsplash.com/photo-1504674900247-0877df9cc836?auto=format&fit=crop&w=800&q=80",
}

var defaultContact = models.Contact{Phone: "+91-9876543210", Email: "seller@example.com"}

// Normalizer completes partial or legacy-shaped documents. It has no side
// effects beyond reading the clock, minting ids for id-less records and
// logging fields it had to ignore.
type Normalizer struct {
	Now               func() time.Time
	NewID             func() string
	PlaceholderImages []string
}

// NewNormalizer returns a Normalizer using the wall clock and uuid ids.
// An empty placeholders list selects DefaultPlaceholderImages.
func NewNormalizer(placeholders []string) *Normalizer {
	if len(placeholders) == 0 {
		placeholders = DefaultPlaceholderImages
	}
	return &Normalizer{
		Now:               time.Now,
		NewID:             uuid.NewString,
		PlaceholderImages: placeholders,
	}
}

func (n *Normalizer) now() time.Time {
	if n.Now == nil {
		return time.Now().UTC()
	}
	return n.Now().UTC()
}

// rawProduct mirrors every shape a stored product has been written in.
// Pointers distinguish "absent" from an explicit zero value.
type rawProduct struct {
	ID                  *string                 `json:"id"`
	ProductName         *string                 `json:"productName"`
	Description         *string                 `json:"description"`
	Category            *string                 `json:"category"`
	SKU                 *string                 `json:"sku"`
	MarketPrice         *float64                `json:"marketPrice"`
	C2CPrice            *float64                `json:"c2cPrice"`
	Images              []string                `json:"images"`
	VideoURL            *string                 `json:"videoUrl"`
	HoverMedia          *string                 `json:"hoverMedia"`
	Stock               *int                    `json:"stock"`
	AvailabilityStatus  *string                 `json:"availabilityStatus"`
	IsPreorderAvailable *bool                   `json:"isPreorderAvailable"`
	SellerID            *string                 `json:"sellerId"`
	SellerName          *string                 `json:"sellerName"`
	SellerRating        *float64                `json:"sellerRating"`
	ReviewCount         *int                    `json:"reviewCount"`
	SellerContact       *models.Contact         `json:"sellerContact"`
	SellerLocations     []models.Location       `json:"sellerLocations"`
	SellerLocation      *models.Location        `json:"sellerLocation"` // legacy single-location shape
	DeliveryOptions     *models.DeliveryOptions `json:"deliveryOptions"`
	AvailableDates      []string                `json:"availableDates"`
	UpcomingScheduled   []models.ScheduledSlot  `json:"upcomingScheduled"`
	IsActive            *bool                   `json:"isActive"`
	VerificationStatus  *string                 `json:"verificationStatus"`
	CreatedByID         *string                 `json:"createdById"`
	CreatedByEmail      *string                 `json:"createdByEmail"`
	CreatedByName       *string                 `json:"createdByName"`
	Ratings             []map[string]any        `json:"ratings"`
	CreatedAt           any                     `json:"createdAt"`
	UpdatedAt           any                     `json:"updatedAt"`
}

type rawRating struct {
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
	CreatedAt any    `json:"createdAt"`
	UpdatedAt any    `json:"updatedAt"`
}

func decodeInto(fields map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(fields)
}

// decode fills the struct out points to from fields. Fields that do not
// decode are skipped, so they take their defaults, and their keys are
// returned sorted.
func decode(fields map[string]any, out any) ([]string, error) {
	if err := decodeInto(fields, out); err == nil {
		return nil, nil
	}
	typ := reflect.TypeOf(out).Elem()
	clean := make(map[string]any, len(fields))
	var skipped []string
	for k, v := range fields {
		if err := decodeInto(map[string]any{k: v}, reflect.New(typ).Interface()); err != nil {
			skipped = append(skipped, k)
			continue
		}
		clean[k] = v
	}
	slices.Sort(skipped)
	reflect.ValueOf(out).Elem().Set(reflect.Zero(typ))
	return skipped, decodeInto(clean, out)
}

// decodeDoc is decode for a whole document, logging what was skipped.
func decodeDoc(kind, id string, fields map[string]any, out any) error {
	skipped, err := decode(fields, out)
	if err != nil {
		return fmt.Errorf("decode %s %q: %w", kind, id, err)
	}
	if len(skipped) > 0 {
		log.Printf("Normalizing %s %s: ignoring undecodable fields %v", kind, id, skipped)
	}
	return nil
}

// Product completes a stored product document. id overrides any "id" field
// in the document.
func (n *Normalizer) Product(id string, fields map[string]any) (models.Product, error) {
	var raw rawProduct
	if err := decodeDoc("product", id, fields, &raw); err != nil {
		return models.Product{}, err
	}
	now := n.now()

	if id == "" {
		id = str(raw.ID, "")
	}
	if id == "" {
		id = n.NewID()
	}

	category := models.Category(str(raw.Category, string(models.CategoryGroceries)))
	if !category.Valid() {
		category = models.CategoryGroceries
	}

	market := num(raw.MarketPrice, 0)
	c2c := num(raw.C2CPrice, 0)

	images := raw.Images
	if len(images) == 0 {
		images = append([]string(nil), n.PlaceholderImages...)
	}

	stock := integer(raw.Stock, 0)
	if stock < 0 {
		stock = 0
	}

	rating := num(raw.SellerRating, DefaultSellerRating)
	switch {
	case rating < 0:
		rating = 0
	case rating > 5:
		rating = 5
	}

	contact := defaultContact
	if raw.SellerContact != nil {
		contact = *raw.SellerContact
	}

	delivery := models.DeliveryOptions{Courier: true, DirectVisit: true}
	if raw.DeliveryOptions != nil {
		delivery = *raw.DeliveryOptions
	}

	verification := models.VerificationStatus(str(raw.VerificationStatus, string(models.VerificationPending)))
	if verification != models.VerificationVerified {
		verification = models.VerificationPending
	}

	availability := models.AvailabilityStatus(str(raw.AvailabilityStatus, string(models.AvailabilityInStock)))
	switch availability {
	case models.AvailabilityInStock, models.AvailabilityOutOfStock, models.AvailabilityPreorder:
	default:
		availability = models.AvailabilityInStock
	}

	return models.Product{
		ID:                  id,
		ProductName:         str(raw.ProductName, DefaultProductName),
		Description:         str(raw.Description, DefaultDescription),
		Category:            category,
		SKU:                 str(raw.SKU, DefaultSKU),
		MarketPrice:         market,
		C2CPrice:            c2c,
		PriceDiscount:       models.Discount(market, c2c),
		Images:              images,
		VideoURL:            str(raw.VideoURL, ""),
		HoverMedia:          str(raw.HoverMedia, ""),
		Stock:               stock,
		AvailabilityStatus:  availability,
		IsPreorderAvailable: boolean(raw.IsPreorderAvailable, false),
		SellerID:            str(raw.SellerID, DefaultSellerID),
		SellerName:          str(raw.SellerName, DefaultSellerName),
		SellerRating:        rating,
		ReviewCount:         integer(raw.ReviewCount, DefaultReviewCount),
		SellerContact:       contact,
		SellerLocations:     migrateLocations(raw.SellerLocations, raw.SellerLocation),
		DeliveryOptions:     delivery,
		AvailableDates:      nonNil(raw.AvailableDates),
		UpcomingScheduled:   nonNil(raw.UpcomingScheduled),
		IsActive:            boolean(raw.IsActive, true),
		VerificationStatus:  verification,
		CreatedByID:         str(raw.CreatedByID, ""),
		CreatedByEmail:      str(raw.CreatedByEmail, ""),
		CreatedByName:       str(raw.CreatedByName, ""),
		Ratings:             n.ratings(raw.Ratings, now),
		CreatedAt:           optionalTime(raw.CreatedAt),
		UpdatedAt:           optionalTime(raw.UpdatedAt),
	}, nil
}

// migrateLocations resolves the location list: the current list shape wins,
// then the legacy single location, then a placeholder.
func migrateLocations(list []models.Location, legacy *models.Location) []models.Location {
	switch {
	case len(list) > 0:
		return list
	case legacy != nil:
		return []models.Location{*legacy}
	default:
		return []models.Location{{Address: DefaultAddress, City: DefaultCity}}
	}
}

// ratings keeps one entry per user, the one updated last, in the order users
// first appear. Entries without a user or with a value outside 1-5 are
// dropped.
func (n *Normalizer) ratings(raw []map[string]any, now time.Time) []models.Rating {
	out := make([]models.Rating, 0, len(raw))
	byUser := make(map[string]int, len(raw))
	for _, fields := range raw {
		var r rawRating
		if _, err := decode(fields, &r); err != nil {
			continue
		}
		if r.UserID == "" || r.Rating < MinRating || r.Rating > MaxRating {
			continue
		}
		rating := models.Rating{
			UserID:    r.UserID,
			UserName:  r.UserName,
			Rating:    r.Rating,
			Comment:   TruncateComment(r.Comment),
			CreatedAt: timeOr(r.CreatedAt, now),
			UpdatedAt: timeOr(r.UpdatedAt, now),
		}
		if i, ok := byUser[r.UserID]; ok {
			if !rating.UpdatedAt.Before(out[i].UpdatedAt) {
				out[i] = rating
			}
			continue
		}
		byUser[r.UserID] = len(out)
		out = append(out, rating)
	}
	return out
}

type rawCustomer struct {
	ID           *string `json:"id"`
	Email        *string `json:"email"`
	FirstName    *string `json:"firstName"`
	LastName     *string `json:"lastName"`
	Phone        *string `json:"phone"`
	Address      *string `json:"address"`
	City         *string `json:"city"`
	LocationNote *string `json:"locationNote"`
	Points       *int    `json:"points"`
	CreatedAt    any     `json:"createdAt"`
	UpdatedAt    any     `json:"updatedAt"`
}

// Customer completes a stored customer profile.
func (n *Normalizer) Customer(id string, fields map[string]any) (models.CustomerProfile, error) {
	var raw rawCustomer
	if err := decodeDoc("customer", id, fields, &raw); err != nil {
		return models.CustomerProfile{}, err
	}
	now := n.now()
	if id == "" {
		id = str(raw.ID, "")
	}
	points := integer(raw.Points, 0)
	if points < 0 {
		points = 0
	}
	return models.CustomerProfile{
		ID:           id,
		Email:        str(raw.Email, ""),
		FirstName:    str(raw.FirstName, ""),
		LastName:     str(raw.LastName, ""),
		Phone:        str(raw.Phone, ""),
		Address:      str(raw.Address, ""),
		City:         str(raw.City, ""),
		LocationNote: str(raw.LocationNote, ""),
		Points:       points,
		CreatedAt:    timeOr(raw.CreatedAt, now),
		UpdatedAt:    timeOr(raw.UpdatedAt, now),
	}, nil
}

type rawRequest struct {
	Title          *string `json:"title"`
	Description    *string `json:"description"`
	Category       *string `json:"category"`
	RequesterID    *string `json:"requesterId"`
	RequesterName  *string `json:"requesterName"`
	RequesterEmail *string `json:"requesterEmail"`
	Approved       *bool   `json:"approved"`
	VerifiedBy     *string `json:"verifiedBy"`
	CreatedAt      any     `json:"createdAt"`
	UpdatedAt      any     `json:"updatedAt"`
}

// Request completes a stored product request.
func (n *Normalizer) Request(id string, fields map[string]any) (models.ProductRequest, error) {
	var raw rawRequest
	if err := decodeDoc("request", id, fields, &raw); err != nil {
		return models.ProductRequest{}, err
	}
	now := n.now()
	return models.ProductRequest{
		ID:             id,
		Title:          str(raw.Title, DefaultRequestTitle),
		Description:    str(raw.Description, ""),
		Category:       str(raw.Category, DefaultRequestCat),
		RequesterID:    str(raw.RequesterID, ""),
		RequesterName:  str(raw.RequesterName, ""),
		RequesterEmail: str(raw.RequesterEmail, ""),
		Approved:       boolean(raw.Approved, false),
		VerifiedBy:     str(raw.VerifiedBy, ""),
		CreatedAt:      timeOr(raw.CreatedAt, now),
		UpdatedAt:      timeOr(raw.UpdatedAt, now),
	}, nil
}

type rawUser struct {
	Email        *string          `json:"email"`
	Name         *string          `json:"name"`
	Phone        *string          `json:"phone"`
	UserType     *string          `json:"userType"`
	IsAdmin      *bool            `json:"isAdmin"`
	Avatar       *string          `json:"avatar"`
	Location     *models.Location `json:"location"`
	TrustScore   *float64         `json:"trustScore"`
	TotalOrders  *int             `json:"totalOrders"`
	IsActive     *bool            `json:"isActive"`
	AuthProvider *string          `json:"authProvider"`
	CreatedAt    any              `json:"createdAt"`
	UpdatedAt    any              `json:"updatedAt"`
}

// User completes a stored user profile. Blank name, email and provider are
// left empty so the caller can fill them from the live identity.
func (n *Normalizer) User(id string, fields map[string]any) (models.User, error) {
	var raw rawUser
	if err := decodeDoc("user", id, fields, &raw); err != nil {
		return models.User{}, err
	}
	userType := models.UserType(str(raw.UserType, string(models.UserTypeBoth)))
	switch userType {
	case models.UserTypeBuyer, models.UserTypeSeller, models.UserTypeBoth:
	default:
		userType = models.UserTypeBoth
	}
	return models.User{
		ID:           id,
		Email:        str(raw.Email, ""),
		Name:         str(raw.Name, ""),
		Phone:        str(raw.Phone, ""),
		UserType:     userType,
		IsAdmin:      boolean(raw.IsAdmin, false),
		Avatar:       str(raw.Avatar, ""),
		Location:     raw.Location,
		TrustScore:   num(raw.TrustScore, 0),
		TotalOrders:  integer(raw.TotalOrders, 0),
		IsActive:     boolean(raw.IsActive, true),
		AuthProvider: models.AuthProvider(str(raw.AuthProvider, "")),
		CreatedAt:    optionalTime(raw.CreatedAt),
		UpdatedAt:    optionalTime(raw.UpdatedAt),
	}, nil
}

// Document renders v as a loosely-typed document, the shape the store keeps.
func Document(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return out, nil
}

// TruncateComment caps a rating comment at MaxCommentLength runes.
func TruncateComment(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= MaxCommentLength {
		return s
	}
	return string(r[:MaxCommentLength])
}

func str(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

func num(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func integer(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func boolean(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
