package catalog

import (
	"fmt"
	"net/url"
	"time"
)

var (
	sampleVegetables = []string{
		"Heirloom Tomatoes", "Organic Spinach Bundle", "Crisp Cucumbers", "Farm Fresh Carrots",
		"Baby Potatoes", "Red Onions", "Green Peas", "Sweet Corn", "Broccoli Crowns",
		"Cauliflower", "Cherry Tomatoes", "Zucchini Mix", "Okra Pack", "Mixed Salad Greens",
		"Gourmet Mushrooms",
	}
	sampleDairy = []string{
		"A2 Cow Milk (1L)", "Fresh Paneer (200g)", "Greek Yogurt Cup", "Organic Ghee (250g)",
		"Classic Butter (500g)", "Curd Family Pack", "Flavored Lassi", "Cheddar Cheese Block",
		"Fresh Cream (200ml)", "Buttermilk Pack",
	}
)

type sampleSeller struct {
	id, name, city string
	rating         float64
}

// SampleProducts builds the demo catalog as stored documents. They use the
// legacy single-location shape and carry no creator, so they exercise the
// normalizer's migration path and are always eligible.
func SampleProducts(now time.Time) []map[string]any {
	farmer := sampleSeller{id: "seller-farmer", name: "Fresh Produce Farm", city: "Pune", rating: 4.8}
	dairy := sampleSeller{id: "seller-dairy", name: "Delight Milk Co.", city: "Bengaluru", rating: 4.9}

	out := make([]map[string]any, 0, len(sampleVegetables)+len(sampleDairy))
	for i, name := range sampleVegetables {
		out = append(out, sampleProduct(fmt.Sprintf("veg-%d", i+1), name, "vegetables", farmer, i, now))
	}
	for i, name := range sampleDairy {
		out = append(out, sampleProduct(fmt.Sprintf("dairy-%d", i+1), name, "dairy", dairy, i, now))
	}
	return out
}

func sampleProduct(id, name, category string, seller sampleSeller, i int, now time.Time) map[string]any {
	market := float64(80 + i*2)
	if category == "dairy" {
		market = float64(120 + i*3)
	}
	c2c := market - 15
	available := now.AddDate(0, 0, i%5).UTC().Format(time.RFC3339)

	return map[string]any{
		"id":           id,
		"productName":  name,
		"description":  name + " sourced directly from the community seller with same-day freshness.",
		"category":     category,
		"sku":          fmt.Sprintf("%s-%d", category[:3], i+1),
		"marketPrice":  market,
		"c2cPrice":     c2c,
		"images":       []any{"https://placehold.co/600x400?text=" + url.QueryEscape(name)},
		"stock":        20 + i,
		"sellerId":     seller.id,
		"sellerName":   seller.name,
		"sellerRating": seller.rating,
		"reviewCount":  5 + i,
		"sellerLocation": map[string]any{
			"address": "Community Market",
			"city":    seller.city,
		},
		"deliveryOptions": map[string]any{
			"courier":     true,
			"directVisit": i%2 == 0,
		},
		"availableDates":     []any{available},
		"upcomingScheduled":  []any{map[string]any{"date": available, "quantity": 10 + i}},
		"isActive":           true,
		"verificationStatus": "verified",
		"createdAt":          now.Add(-time.Duration(i) * time.Minute),
		"updatedAt":          now,
	}
}

// SampleRequests builds demo product requests as stored documents.
func SampleRequests(now time.Time) []map[string]any {
	return []map[string]any{
		{
			"id":             "req-sample-1",
			"title":          "Bulk organic vegetables for community kitchen",
			"description":    "Weekly supply of seasonal vegetables, washed and ready for cooking.",
			"category":       "groceries",
			"requesterId":    "customer-c2c1",
			"requesterName":  "C2C One",
			"requesterEmail": "c2c1@gmail.com",
			"approved":       true,
			"verifiedBy":     "admin",
			"createdAt":      now,
			"updatedAt":      now,
		},
		{
			"id":             "req-sample-2",
			"title":          "On-demand laptop repair visit",
			"description":    "Looking for a trusted technician who can visit home and fix screen issues.",
			"category":       "services",
			"requesterId":    "customer-c2c2",
			"requesterName":  "C2C Two",
			"requesterEmail": "c2c2@gmail.com",
			"approved":       false,
			"createdAt":      now,
			"updatedAt":      now,
		},
	}
}
