package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"c2cmarket/internal/catalog"
	"c2cmarket/internal/identity"
	"c2cmarket/internal/models"
	"c2cmarket/internal/repositories"

	"golang.org/x/sync/errgroup"
)

// ProfileInput is the account form a customer fills in.
type ProfileInput struct {
	FirstName    string `json:"firstName" validate:"required,max=100"`
	LastName     string `json:"lastName" validate:"required,max=100"`
	Email        string `json:"email" validate:"required,email"`
	Phone        string `json:"phone" validate:"required,len=10,numeric"`
	Address      string `json:"address" validate:"required,max=300"`
	City         string `json:"city" validate:"required,max=100"`
	LocationNote string `json:"locationNote" validate:"max=300"`
}

// NewCustomerInput is an admin-created customer with a password account.
type NewCustomerInput struct {
	ProfileInput
	Password string `json:"password" validate:"required,min=6"`
	Points   int    `json:"points" validate:"gte=0"`
}

// CustomerService manages customer profiles and loyalty points.
type CustomerService struct {
	store      repositories.DocumentRepository
	normalizer *catalog.Normalizer
	gateway    identity.Gateway
	events     EventPublisher
	now        func() time.Time
}

// NewCustomerService creates a new CustomerService. events may be nil.
func NewCustomerService(store repositories.DocumentRepository, normalizer *catalog.Normalizer, gateway identity.Gateway, events EventPublisher) *CustomerService {
	return &CustomerService{
		store:      store,
		normalizer: normalizer,
		gateway:    gateway,
		events:     events,
		now:        time.Now,
	}
}

// GetAllCustomers returns every profile, newest first.
func (s *CustomerService) GetAllCustomers(ctx context.Context) ([]models.CustomerProfile, error) {
	docs, err := s.store.List(ctx, repositories.CollectionCustomers)
	if err != nil {
		return nil, err
	}
	out := make([]models.CustomerProfile, 0, len(docs))
	for _, doc := range docs {
		c, err := s.normalizer.Customer(doc.ID, doc.Fields)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// GetCustomerByID returns a profile, or nil when none is stored.
func (s *CustomerService) GetCustomerByID(ctx context.Context, id string) (*models.CustomerProfile, error) {
	doc, err := s.store.Get(ctx, repositories.CollectionCustomers, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c, err := s.normalizer.Customer(doc.ID, doc.Fields)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ProfileFor returns u's stored profile or, when none exists, an unsaved
// default built from the session user.
func (s *CustomerService) ProfileFor(ctx context.Context, u *models.User) (*models.CustomerProfile, error) {
	if u == nil {
		return nil, ErrNotSignedIn
	}
	stored, err := s.GetCustomerByID(ctx, u.ID)
	if err != nil || stored != nil {
		return stored, err
	}
	first, last, _ := strings.Cut(strings.TrimSpace(u.Name), " ")
	now := s.now().UTC()
	return &models.CustomerProfile{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: first,
		LastName:  strings.TrimSpace(last),
		Phone:     u.Phone,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// SaveProfile writes the profile for id. Points and createdAt of an
// existing profile are preserved.
func (s *CustomerService) SaveProfile(ctx context.Context, id string, in ProfileInput) (*models.CustomerProfile, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	existing, err := s.GetCustomerByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	profile := profileFrom(id, in)
	profile.CreatedAt, profile.UpdatedAt = now, now
	if existing != nil {
		profile.CreatedAt = existing.CreatedAt
		profile.Points = existing.Points
	}
	if err := s.save(ctx, &profile); err != nil {
		return nil, fmt.Errorf("failed to save profile %s: %w", id, err)
	}
	publishEvent(s.events, "customer.updated", map[string]any{"customerId": id, "complete": profile.IsComplete()})
	return &profile, nil
}

// CreateCustomer creates a password account and its profile.
func (s *CustomerService) CreateCustomer(ctx context.Context, in NewCustomerInput) (*models.CustomerProfile, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	id, err := s.gateway.SignUpWithPassword(ctx, in.Email, in.Password, in.FirstName+" "+in.LastName)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	profile := profileFrom(id.UID, in.ProfileInput)
	profile.Email = id.Email
	profile.Points = in.Points
	profile.CreatedAt, profile.UpdatedAt = now, now
	if err := s.save(ctx, &profile); err != nil {
		return nil, fmt.Errorf("failed to create profile for %s: %w", id.UID, err)
	}
	publishEvent(s.events, "customer.created", map[string]any{"customerId": id.UID})
	return &profile, nil
}

// DeleteCustomer removes a customer profile.
func (s *CustomerService) DeleteCustomer(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, repositories.CollectionCustomers, id); err != nil {
		return err
	}
	publishEvent(s.events, "customer.deleted", map[string]any{"customerId": id})
	return nil
}

// UpdatePoints sets the loyalty points of the listed customers, or of every
// customer when ids is empty. It returns how many profiles were updated.
func (s *CustomerService) UpdatePoints(ctx context.Context, ids []string, points int) (int, error) {
	if points < 0 {
		return 0, invalidField("points", "points must not be negative")
	}
	if len(ids) == 0 {
		all, err := s.store.List(ctx, repositories.CollectionCustomers)
		if err != nil {
			return 0, err
		}
		for _, d := range all {
			ids = append(ids, d.ID)
		}
	}

	now := s.now().UTC()
	var updated atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, id := range ids {
		g.Go(func() error {
			// Unknown ids are skipped rather than created as empty profiles.
			if _, err := s.store.Get(gctx, repositories.CollectionCustomers, id); err != nil {
				if errors.Is(err, repositories.ErrNotFound) {
					return nil
				}
				return err
			}
			err := s.store.Upsert(gctx, repositories.CollectionCustomers, id, map[string]any{
				"points":    points,
				"updatedAt": now,
			})
			if err == nil {
				updated.Add(1)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("failed to update points: %w", err)
	}
	publishEvent(s.events, "customer.points", map[string]any{"customerIds": ids, "points": points})
	return int(updated.Load()), nil
}

func (s *CustomerService) save(ctx context.Context, c *models.CustomerProfile) error {
	doc, err := catalog.Document(c)
	if err != nil {
		return err
	}
	return s.store.Upsert(ctx, repositories.CollectionCustomers, c.ID, doc)
}

func profileFrom(id string, in ProfileInput) models.CustomerProfile {
	return models.CustomerProfile{
		ID:           id,
		Email:        identity.NormalizeEmail(in.Email),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Phone:        in.Phone,
		Address:      in.Address,
		City:         in.City,
		LocationNote: in.LocationNote,
	}
}
