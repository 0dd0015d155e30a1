package catalog

import (
	"fmt"
	"sort"
	"strings"

	"c2cmarket/internal/models"
)

type SortOption string

const (
	SortNewest       SortOption = "newest"
	SortPriceLowHigh SortOption = "priceLowHigh"
	SortPriceHighLow SortOption = "priceHighLow"
	SortPopular      SortOption = "popular"
	SortRating       SortOption = "rating"
)

type DeliveryMode string

const (
	DeliveryAny         DeliveryMode = ""
	DeliveryCourier     DeliveryMode = "courier"
	DeliveryDirectVisit DeliveryMode = "directVisit"
	DeliveryBoth        DeliveryMode = "both" // requires courier AND direct visit
)

// PriceRange bounds c2cPrice inclusively. Nil bounds are open.
type PriceRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Filters is the user-entered listing configuration.
type Filters struct {
	Search      string            `json:"search"`
	Categories  []models.Category `json:"categories"`
	PriceRange  PriceRange        `json:"priceRange"`
	Delivery    DeliveryMode      `json:"delivery,omitempty"`
	City        string            `json:"city,omitempty"`
	InStockOnly bool              `json:"inStockOnly"`
	Sort        SortOption        `json:"sort,omitempty"`
}

// FiltersPatch carries a partial filter update; nil fields keep the
// current setting.
type FiltersPatch struct {
	Search      *string
	Categories  *[]models.Category
	PriceRange  *PriceRange
	Delivery    *DeliveryMode
	City        *string
	InStockOnly *bool
	Sort        *SortOption
}

// Apply returns f with the non-nil fields of p applied.
func (f Filters) Apply(p FiltersPatch) Filters {
	if p.Search != nil {
		f.Search = *p.Search
	}
	if p.Categories != nil {
		f.Categories = append([]models.Category(nil), (*p.Categories)...)
	}
	if p.PriceRange != nil {
		f.PriceRange = *p.PriceRange
	}
	if p.Delivery != nil {
		f.Delivery = *p.Delivery
	}
	if p.City != nil {
		f.City = *p.City
	}
	if p.InStockOnly != nil {
		f.InStockOnly = *p.InStockOnly
	}
	if p.Sort != nil {
		f.Sort = *p.Sort
	}
	return f
}

// Validate rejects unknown enum values.
func (f Filters) Validate() error {
	switch f.Delivery {
	case DeliveryAny, DeliveryCourier, DeliveryDirectVisit, DeliveryBoth:
	default:
		return fmt.Errorf("unknown delivery mode %q", f.Delivery)
	}
	switch f.Sort {
	case "", SortNewest, SortPriceLowHigh, SortPriceHighLow, SortPopular, SortRating:
	default:
		return fmt.Errorf("unknown sort option %q", f.Sort)
	}
	for _, c := range f.Categories {
		if !c.Valid() {
			return fmt.Errorf("unknown category %q", c)
		}
	}
	if f.PriceRange.Min != nil && f.PriceRange.Max != nil && *f.PriceRange.Min > *f.PriceRange.Max {
		return fmt.Errorf("price range min %.2f exceeds max %.2f", *f.PriceRange.Min, *f.PriceRange.Max)
	}
	return nil
}

// Query applies the listing gate (active and verified), then every filter
// in f, then the sort order. The input slice is never modified.
func Query(eligible []models.Product, f Filters) []models.Product {
	search := strings.ToLower(strings.TrimSpace(f.Search))

	out := make([]models.Product, 0, len(eligible))
	for i := range eligible {
		p := &eligible[i]
		if !p.Listed() {
			continue
		}
		if f.matches(p, search) {
			out = append(out, *p)
		}
	}
	Sort(out, f.Sort)
	return out
}

func (f Filters) matches(p *models.Product, search string) bool {
	if search != "" {
		haystack := strings.ToLower(strings.Join([]string{p.ProductName, p.Description, p.SellerName}, " "))
		if !strings.Contains(haystack, search) {
			return false
		}
	}
	if len(f.Categories) > 0 && !containsCategory(f.Categories, p.Category) {
		return false
	}
	if f.PriceRange.Min != nil && p.C2CPrice < *f.PriceRange.Min {
		return false
	}
	if f.PriceRange.Max != nil && p.C2CPrice > *f.PriceRange.Max {
		return false
	}
	switch f.Delivery {
	case DeliveryBoth:
		if !p.DeliveryOptions.Courier || !p.DeliveryOptions.DirectVisit {
			return false
		}
	case DeliveryCourier:
		if !p.DeliveryOptions.Courier {
			return false
		}
	case DeliveryDirectVisit:
		if !p.DeliveryOptions.DirectVisit {
			return false
		}
	}
	if f.City != "" && !p.InCity(f.City) {
		return false
	}
	if f.InStockOnly && p.Stock <= 0 && !p.IsPreorderAvailable {
		return false
	}
	return true
}

func containsCategory(set []models.Category, c models.Category) bool {
	for _, x := range set {
		if x == c {
			return true
		}
	}
	return false
}

// Sort orders products in place. Every order is stable; equal keys keep
// their input order. Unknown or empty options sort newest first, with a
// missing createdAt treated as the epoch.
func Sort(products []models.Product, opt SortOption) {
	var less func(a, b *models.Product) bool
	switch opt {
	case SortPriceLowHigh:
		less = func(a, b *models.Product) bool { return a.C2CPrice < b.C2CPrice }
	case SortPriceHighLow:
		less = func(a, b *models.Product) bool { return a.C2CPrice > b.C2CPrice }
	case SortRating:
		less = func(a, b *models.Product) bool { return a.SellerRating > b.SellerRating }
	case SortPopular:
		less = func(a, b *models.Product) bool { return a.ReviewCount > b.ReviewCount }
	default:
		less = func(a, b *models.Product) bool { return createdMillis(a) > createdMillis(b) }
	}
	sort.SliceStable(products, func(i, j int) bool {
		return less(&products[i], &products[j])
	})
}

func createdMillis(p *models.Product) int64 {
	if p.CreatedAt == nil {
		return 0
	}
	return p.CreatedAt.UnixMilli()
}
