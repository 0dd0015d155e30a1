package models

import "time"

// Category groups products in the catalog.
type Category string

const (
	CategoryGroceries  Category = "groceries"
	CategoryVegetables Category = "vegetables"
	CategoryClothing   Category = "clothing"
	CategoryServices   Category = "services"
	CategoryDairy      Category = "dairy"
	CategoryHomemade   Category = "homemade"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryGroceries, CategoryVegetables, CategoryClothing,
	CategoryServices, CategoryDairy, CategoryHomemade,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

type AvailabilityStatus string

const (
	AvailabilityInStock    AvailabilityStatus = "inStock"
	AvailabilityOutOfStock AvailabilityStatus = "outOfStock"
	AvailabilityPreorder   AvailabilityStatus = "preorder"
)

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
)

// Contact is how buyers reach a seller.
type Contact struct {
	Phone    string `json:"phone"`
	Email    string `json:"email,omitempty"`
	WhatsApp string `json:"whatsapp,omitempty"`
}

// Location is a place a seller operates from.
type Location struct {
	Address string   `json:"address"`
	City    string   `json:"city"`
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
}

// DeliveryOptions describes how a product reaches the buyer.
type DeliveryOptions struct {
	Courier     bool `json:"courier"`
	DirectVisit bool `json:"directVisit"`
}

// ScheduledSlot is a future date with a promised quantity.
type ScheduledSlot struct {
	Date     string `json:"date"`
	Quantity int    `json:"quantity"`
}

// Rating is a single buyer's rating of a product. A product holds at most
// one rating per UserID.
type Rating struct {
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Product is the canonical, normalized catalog entry.
type Product struct {
	ID          string   `json:"id"`
	ProductName string   `json:"productName"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	SKU         string   `json:"sku"`

	MarketPrice   float64 `json:"marketPrice"`
	C2CPrice      float64 `json:"c2cPrice"`
	PriceDiscount float64 `json:"priceDiscount"`

	Images     []string `json:"images"`
	VideoURL   string   `json:"videoUrl,omitempty"`
	HoverMedia string   `json:"hoverMedia,omitempty"`

	Stock               int                `json:"stock"`
	AvailabilityStatus  AvailabilityStatus `json:"availabilityStatus"`
	IsPreorderAvailable bool               `json:"isPreorderAvailable"`

	SellerID        string          `json:"sellerId"`
	SellerName      string          `json:"sellerName"`
	SellerRating    float64         `json:"sellerRating"`
	ReviewCount     int             `json:"reviewCount"`
	SellerContact   Contact         `json:"sellerContact"`
	SellerLocations []Location      `json:"sellerLocations"`
	DeliveryOptions DeliveryOptions `json:"deliveryOptions"`

	AvailableDates    []string        `json:"availableDates"`
	UpcomingScheduled []ScheduledSlot `json:"upcomingScheduled"`

	IsActive           bool               `json:"isActive"` // soft delete flag
	VerificationStatus VerificationStatus `json:"verificationStatus"`

	// Empty CreatedByID means the product has no creator reference.
	CreatedByID    string `json:"createdById,omitempty"`
	CreatedByEmail string `json:"createdByEmail,omitempty"`
	CreatedByName  string `json:"createdByName,omitempty"`

	Ratings []Rating `json:"ratings"`

	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Discount returns max(marketPrice - c2cPrice, 0).
func Discount(marketPrice, c2cPrice float64) float64 {
	if d := marketPrice - c2cPrice; d > 0 {
		return d
	}
	return 0
}

// Listed reports whether the product passes the consumer-facing gate:
// active and verified.
func (p *Product) Listed() bool {
	return p.IsActive && p.VerificationStatus == VerificationVerified
}

// InCity reports whether any seller location is in city.
func (p *Product) InCity(city string) bool {
	for _, loc := range p.SellerLocations {
		if loc.City == city {
			return true
		}
	}
	return false
}

// OwnedBy reports whether u created the product.
func (p *Product) OwnedBy(u *User) bool {
	if u == nil {
		return false
	}
	return (p.CreatedByID != "" && p.CreatedByID == u.ID) ||
		(p.CreatedByEmail != "" && p.CreatedByEmail == u.Email)
}
