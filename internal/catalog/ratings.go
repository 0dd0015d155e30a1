package catalog

import (
	"time"

	"c2cmarket/internal/models"

	"github.com/shopspring/decimal"
)

// UpsertRating returns a copy of ratings with r recorded for r.UserID.
// An existing entry from the same user is replaced in place, keeping its
// original CreatedAt; otherwise r is appended.
func UpsertRating(ratings []models.Rating, r models.Rating, now time.Time) []models.Rating {
	out := make([]models.Rating, len(ratings), len(ratings)+1)
	copy(out, ratings)

	r.Comment = TruncateComment(r.Comment)
	r.UpdatedAt = now.UTC()
	for i := range out {
		if out[i].UserID == r.UserID {
			r.CreatedAt = out[i].CreatedAt
			out[i] = r
			return out
		}
	}
	r.CreatedAt = now.UTC()
	return append(out, r)
}

// AverageRating is the mean rating rounded to one decimal, or the seller
// rating when the product has no ratings yet.
func AverageRating(p *models.Product) float64 {
	if p == nil {
		return 0
	}
	if len(p.Ratings) == 0 {
		return p.SellerRating
	}
	sum := decimal.Zero
	for _, r := range p.Ratings {
		sum = sum.Add(decimal.NewFromInt(int64(r.Rating)))
	}
	avg, _ := sum.Div(decimal.NewFromInt(int64(len(p.Ratings)))).Round(1).Float64()
	return avg
}

// DiscountPercent is the whole-number percentage saved against market price.
func DiscountPercent(p *models.Product) int {
	if p == nil || p.MarketPrice <= 0 {
		return 0
	}
	pct := decimal.NewFromFloat(p.MarketPrice - p.C2CPrice).
		Div(decimal.NewFromFloat(p.MarketPrice)).
		Mul(decimal.NewFromInt(100)).
		Round(0)
	return int(pct.IntPart())
}
