package services

import (
	"log"

	"c2cmarket/internal/catalog"
	"c2cmarket/internal/live"
	"c2cmarket/internal/models"
	"c2cmarket/internal/repositories"

	"github.com/shopspring/decimal"
)

// CatalogService keeps the normalized product and customer sets live and
// derives the eligible catalog from them.
type CatalogService struct {
	normalizer *catalog.Normalizer
	minPoints  int

	products  *live.Value[[]models.Product]
	customers *live.Value[[]models.CustomerProfile]
	eligible  *live.Value[[]models.Product]
	stops     []func()
}

// NewCatalogService subscribes to the product and customer collections.
// Call Close to release the subscriptions.
func NewCatalogService(store repositories.DocumentRepository, normalizer *catalog.Normalizer, minPoints int) *CatalogService {
	s := &CatalogService{
		normalizer: normalizer,
		minPoints:  minPoints,
		products:   live.New[[]models.Product](nil),
		customers:  live.New[[]models.CustomerProfile](nil),
	}

	eligible, stopEligible := live.Combine(s.products, s.customers,
		func(products []models.Product, customers []models.CustomerProfile) []models.Product {
			return catalog.Eligible(products, customers, s.minPoints)
		})
	s.eligible = eligible

	s.stops = append(s.stops,
		stopEligible,
		store.Subscribe(repositories.CollectionProducts, s.onProducts),
		store.Subscribe(repositories.CollectionCustomers, s.onCustomers),
	)
	return s
}

// Close stops following the store.
func (s *CatalogService) Close() {
	for _, stop := range s.stops {
		stop()
	}
}

// A failed product read keeps the last good product set.
func (s *CatalogService) onProducts(snap repositories.Snapshot) {
	if snap.Err != nil {
		log.Printf("Product stream error, keeping last snapshot: %v", snap.Err)
		return
	}
	out := make([]models.Product, 0, len(snap.Documents))
	for _, doc := range snap.Documents {
		p, err := s.normalizer.Product(doc.ID, doc.Fields)
		if err != nil {
			log.Printf("Skipping product %s: %v", doc.ID, err)
			continue
		}
		out = append(out, p)
	}
	s.products.Set(out)
}

// A failed customer read clears the customer set, which excludes every
// creator-gated product until the stream recovers.
func (s *CatalogService) onCustomers(snap repositories.Snapshot) {
	if snap.Err != nil {
		log.Printf("Customer stream error, hiding creator-gated products: %v", snap.Err)
		s.customers.Set(nil)
		return
	}
	out := make([]models.CustomerProfile, 0, len(snap.Documents))
	for _, doc := range snap.Documents {
		c, err := s.normalizer.Customer(doc.ID, doc.Fields)
		if err != nil {
			log.Printf("Skipping customer %s: %v", doc.ID, err)
			continue
		}
		out = append(out, c)
	}
	s.customers.Set(out)
}

// Products is every normalized product, eligible or not.
func (s *CatalogService) Products() *live.Value[[]models.Product] { return s.products }

// Customers is every normalized customer profile.
func (s *CatalogService) Customers() *live.Value[[]models.CustomerProfile] { return s.customers }

// Eligible is the points-gated product set.
func (s *CatalogService) Eligible() *live.Value[[]models.Product] { return s.eligible }

// Query runs f against the current eligible set.
func (s *CatalogService) Query(f catalog.Filters) []models.Product {
	return catalog.Query(s.eligible.Get(), f)
}

// Watch derives a live listing for f that is recomputed whenever the
// eligible set changes. Call stop when the listing is no longer shown.
func (s *CatalogService) Watch(f catalog.Filters) (listing *live.Value[[]models.Product], stop func()) {
	return live.Map(s.eligible, func(eligible []models.Product) []models.Product {
		return catalog.Query(eligible, f)
	})
}

// Listing is a live query whose filters can be changed in place.
type Listing struct {
	filters *live.Value[catalog.Filters]
	Results *live.Value[[]models.Product]
	stop    func()
}

// Open starts a Listing with initial filters.
func (s *CatalogService) Open(initial catalog.Filters) *Listing {
	filters := live.New(initial)
	results, stop := live.Combine(s.eligible, filters, catalog.Query)
	return &Listing{filters: filters, Results: results, stop: stop}
}

// Filters returns the active filter configuration.
func (l *Listing) Filters() catalog.Filters { return l.filters.Get() }

// Apply patches the active filters; Results recomputes.
func (l *Listing) Apply(p catalog.FiltersPatch) error {
	next := l.filters.Get().Apply(p)
	if err := next.Validate(); err != nil {
		return invalidField("filters", err.Error())
	}
	l.filters.Set(next)
	return nil
}

// Close detaches the listing from the catalog.
func (l *Listing) Close() { l.stop() }

// Product returns a listed product by id, or nil when it is not eligible,
// inactive or unverified.
func (s *CatalogService) Product(id string) *models.Product {
	for _, p := range s.eligible.Get() {
		if p.ID == id && p.Listed() {
			p := p
			return &p
		}
	}
	return nil
}

// SellerProducts is the seller dashboard view: admins see every product,
// everyone else sees the products they created.
func (s *CatalogService) SellerProducts(u *models.User) []models.Product {
	if u == nil {
		return []models.Product{}
	}
	all := s.products.Get()
	if u.IsAdmin {
		return append([]models.Product{}, all...)
	}
	out := []models.Product{}
	for i := range all {
		if all[i].OwnedBy(u) {
			out = append(out, all[i])
		}
	}
	return out
}

// SellerStats summarizes a seller's products.
type SellerStats struct {
	Total         int     `json:"total"`
	Active        int     `json:"active"`
	Pending       int     `json:"pending"`
	AverageRating float64 `json:"averageRating"`
}

func (s *CatalogService) SellerStats(u *models.User) SellerStats {
	products := s.SellerProducts(u)
	stats := SellerStats{Total: len(products)}
	var sum float64
	for i := range products {
		if products[i].IsActive {
			stats.Active++
		}
		if products[i].VerificationStatus == models.VerificationPending {
			stats.Pending++
		}
		sum += catalog.AverageRating(&products[i])
	}
	if len(products) > 0 {
		stats.AverageRating = roundOne(sum / float64(len(products)))
	}
	return stats
}

func roundOne(x float64) float64 {
	v, _ := decimal.NewFromFloat(x).Round(1).Float64()
	return v
}
