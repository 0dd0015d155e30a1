package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"c2cmarket/internal/catalog"
	"c2cmarket/internal/models"
	"c2cmarket/internal/repositories"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// RequestInput is a buyer's ask for a product.
type RequestInput struct {
	Title       string `json:"title" validate:"required,min=3,max=200"`
	Description string `json:"description" validate:"max=200"`
	Category    string `json:"category" validate:"max=50"`
}

// RequestService manages product requests.
type RequestService struct {
	store      repositories.DocumentRepository
	normalizer *catalog.Normalizer
	events     EventPublisher
	now        func() time.Time
}

// NewRequestService creates a new RequestService. events may be nil.
func NewRequestService(store repositories.DocumentRepository, normalizer *catalog.Normalizer, events EventPublisher) *RequestService {
	return &RequestService{
		store:      store,
		normalizer: normalizer,
		events:     events,
		now:        time.Now,
	}
}

func (s *RequestService) list(ctx context.Context, keep func(*models.ProductRequest) bool) ([]models.ProductRequest, error) {
	docs, err := s.store.List(ctx, repositories.CollectionRequests)
	if err != nil {
		return nil, err
	}
	out := []models.ProductRequest{}
	for _, doc := range docs {
		r, err := s.normalizer.Request(doc.ID, doc.Fields)
		if err != nil {
			log.Printf("Skipping request %s: %v", doc.ID, err)
			continue
		}
		if keep(&r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// GetAllRequests returns every request. Admin only.
func (s *RequestService) GetAllRequests(ctx context.Context, actor *models.User) ([]models.ProductRequest, error) {
	if actor == nil || !actor.IsAdmin {
		return nil, ErrForbidden
	}
	return s.list(ctx, func(*models.ProductRequest) bool { return true })
}

// GetApprovedRequests returns the publicly visible requests.
func (s *RequestService) GetApprovedRequests(ctx context.Context) ([]models.ProductRequest, error) {
	return s.list(ctx, func(r *models.ProductRequest) bool { return r.Approved })
}

// GetRequestsByUser returns the requests u made.
func (s *RequestService) GetRequestsByUser(ctx context.Context, u *models.User) ([]models.ProductRequest, error) {
	if u == nil {
		return nil, ErrNotSignedIn
	}
	return s.list(ctx, func(r *models.ProductRequest) bool { return r.RequesterID == u.ID })
}

// GetRequestByID returns a request, or nil when none is stored.
func (s *RequestService) GetRequestByID(ctx context.Context, id string) (*models.ProductRequest, error) {
	doc, err := s.store.Get(ctx, repositories.CollectionRequests, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r, err := s.normalizer.Request(doc.ID, doc.Fields)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRequest stores a new, unapproved request from u.
func (s *RequestService) CreateRequest(ctx context.Context, u *models.User, in RequestInput) (*models.ProductRequest, error) {
	if u == nil {
		return nil, ErrNotSignedIn
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	r := models.ProductRequest{
		ID:             uuid.New().String(),
		Title:          in.Title,
		Description:    in.Description,
		Category:       in.Category,
		RequesterID:    u.ID,
		RequesterName:  displayName(u),
		RequesterEmail: u.Email,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if r.Category == "" {
		r.Category = catalog.DefaultRequestCat
	}
	if err := s.save(ctx, &r); err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	publishEvent(s.events, "request.created", map[string]any{"requestId": r.ID, "requesterId": u.ID})
	return &r, nil
}

// UpdateRequest edits a request made by u. Approval is left untouched.
func (s *RequestService) UpdateRequest(ctx context.Context, u *models.User, id string, in RequestInput) (*models.ProductRequest, error) {
	if u == nil {
		return nil, ErrNotSignedIn
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	r, err := s.GetRequestByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("request %s: %w", id, repositories.ErrNotFound)
	}
	if r.RequesterID != u.ID {
		return nil, ErrForbidden
	}

	r.Title, r.Description = in.Title, in.Description
	if in.Category != "" {
		r.Category = in.Category
	}
	r.UpdatedAt = s.now().UTC()
	if err := s.save(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to update request %s: %w", id, err)
	}
	return r, nil
}

// DeleteRequest removes a request made by u. Admins may delete any request.
func (s *RequestService) DeleteRequest(ctx context.Context, u *models.User, id string) error {
	if u == nil {
		return ErrNotSignedIn
	}
	r, err := s.GetRequestByID(ctx, id)
	if err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("request %s: %w", id, repositories.ErrNotFound)
	}
	if !u.IsAdmin && r.RequesterID != u.ID {
		return ErrForbidden
	}
	if err := s.store.Delete(ctx, repositories.CollectionRequests, id); err != nil {
		return err
	}
	publishEvent(s.events, "request.deleted", map[string]any{"requestId": id, "actor": u.ID})
	return nil
}

// VerifyRequest sets a request's approval. Admin only.
func (s *RequestService) VerifyRequest(ctx context.Context, actor *models.User, id string, approved bool) (*models.ProductRequest, error) {
	if actor == nil || !actor.IsAdmin {
		return nil, ErrForbidden
	}
	r, err := s.GetRequestByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("request %s: %w", id, repositories.ErrNotFound)
	}

	r.Approved = approved
	r.VerifiedBy = ""
	if approved {
		r.VerifiedBy = displayName(actor)
	}
	r.UpdatedAt = s.now().UTC()
	err = s.store.Upsert(ctx, repositories.CollectionRequests, id, map[string]any{
		"approved":   r.Approved,
		"verifiedBy": r.VerifiedBy,
		"updatedAt":  r.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to verify request %s: %w", id, err)
	}
	publishEvent(s.events, "request.verified", map[string]any{"requestId": id, "approved": approved, "actor": actor.ID})
	return r, nil
}

// LoadSampleRequests writes the demo requests.
func (s *RequestService) LoadSampleRequests(ctx context.Context) (int, error) {
	samples := catalog.SampleRequests(s.now())
	g, ctx := errgroup.WithContext(ctx)
	for _, doc := range samples {
		id, _ := doc["id"].(string)
		g.Go(func() error {
			return s.store.Upsert(ctx, repositories.CollectionRequests, id, doc)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("failed to load sample requests: %w", err)
	}
	return len(samples), nil
}

// ClearRequests deletes every request.
func (s *RequestService) ClearRequests(ctx context.Context) (int, error) {
	docs, err := s.store.List(ctx, repositories.CollectionRequests)
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	if err := s.store.DeleteMany(ctx, repositories.CollectionRequests, ids); err != nil {
		return 0, fmt.Errorf("failed to clear requests: %w", err)
	}
	return len(ids), nil
}

func (s *RequestService) save(ctx context.Context, r *models.ProductRequest) error {
	doc, err := catalog.Document(r)
	if err != nil {
		return err
	}
	return s.store.Upsert(ctx, repositories.CollectionRequests, r.ID, doc)
}
