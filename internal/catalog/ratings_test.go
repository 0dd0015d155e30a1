package catalog_test

import (
	"strings"
	"testing"
	"time"

	"c2cmarket/internal/catalog"
	"c2cmarket/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertRating_ReplacesSameUser(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	first := catalog.UpsertRating(nil, models.Rating{UserID: "u1", Rating: 2, Comment: "meh"}, t0)
	require.Len(t, first, 1)

	second := catalog.UpsertRating(first, models.Rating{UserID: "u1", Rating: 5, Comment: "better"}, t1)
	require.Len(t, second, 1)
	assert.Equal(t, 5, second[0].Rating)
	assert.Equal(t, "better", second[0].Comment)
	assert.Equal(t, t0, second[0].CreatedAt, "createdAt survives the update")
	assert.Equal(t, t1, second[0].UpdatedAt)
	assert.Equal(t, 2, first[0].Rating, "the input slice is not modified")

	third := catalog.UpsertRating(second, models.Rating{UserID: "u2", Rating: 4}, t1)
	assert.Len(t, third, 2)
}

func TestUpsertRating_TruncatesComment(t *testing.T) {
	got := catalog.UpsertRating(nil, models.Rating{UserID: "u1", Rating: 4, Comment: strings.Repeat("é", 150)}, time.Now())
	assert.Len(t, []rune(got[0].Comment), catalog.MaxCommentLength)
}

func TestAverageRating(t *testing.T) {
	p := &models.Product{SellerRating: 4.8}
	assert.Equal(t, 4.8, catalog.AverageRating(p), "falls back to the seller rating")

	p.Ratings = []models.Rating{{Rating: 5}, {Rating: 4}, {Rating: 4}}
	assert.Equal(t, 4.3, catalog.AverageRating(p))
	assert.Zero(t, catalog.AverageRating(nil))
}

func TestDiscountPercent(t *testing.T) {
	assert.Equal(t, 19, catalog.DiscountPercent(&models.Product{MarketPrice: 80, C2CPrice: 65}))
	assert.Zero(t, catalog.DiscountPercent(&models.Product{}))
}
