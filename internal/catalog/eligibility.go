package catalog

import "c2cmarket/internal/models"

// DefaultMinPoints is the loyalty threshold a creator must exceed for their
// products to be listed.
const DefaultMinPoints = 1

// Eligible returns the products permitted in any catalog view before user
// filters apply. A product qualifies when it has no creator reference or
// its creator is a customer with more than minPoints loyalty points.
//
// The gate fails closed: with no customers known, every creator-gated
// product is excluded. Activity and verification are not checked here;
// admin and seller views must still see pending or inactive products.
func Eligible(products []models.Product, customers []models.CustomerProfile, minPoints int) []models.Product {
	trusted := make(map[string]struct{}, len(customers))
	for _, c := range customers {
		if c.Points > minPoints {
			trusted[c.ID] = struct{}{}
		}
	}

	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		if p.CreatedByID == "" {
			out = append(out, p)
			continue
		}
		if _, ok := trusted[p.CreatedByID]; ok {
			out = append(out, p)
		}
	}
	return out
}
