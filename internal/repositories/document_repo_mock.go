package repositories

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MockDocumentRepository is an in-memory implementation of DocumentRepository.
type MockDocumentRepository struct {
	collections map[string]map[string]map[string]any
	mu          sync.RWMutex
	feeds       feeds
}

// NewMockDocumentRepository creates a new instance of MockDocumentRepository.
func NewMockDocumentRepository() *MockDocumentRepository {
	return &MockDocumentRepository{
		collections: make(map[string]map[string]map[string]any),
	}
}

// Subscribe registers fn for live snapshots of collection.
func (r *MockDocumentRepository) Subscribe(collection string, fn func(Snapshot)) func() {
	return r.feeds.get(collection, func() Snapshot { return r.snapshot(collection) }).Subscribe(fn)
}

func (r *MockDocumentRepository) snapshot(collection string) Snapshot {
	docs, _ := r.List(context.Background(), collection)
	return Snapshot{Documents: docs}
}

// List returns every document in collection ordered by id.
func (r *MockDocumentRepository) List(_ context.Context, collection string) ([]Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	docs := make([]Document, 0, len(r.collections[collection]))
	for id, fields := range r.collections[collection] {
		clone, err := cloneFields(fields)
		if err != nil {
			return nil, err
		}
		docs = append(docs, Document{ID: id, Fields: clone})
	}
	sortDocuments(docs)
	return docs, nil
}

// Get returns a document by its id.
func (r *MockDocumentRepository) Get(_ context.Context, collection, id string) (*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fields, ok := r.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	clone, err := cloneFields(fields)
	if err != nil {
		return nil, err
	}
	return &Document{ID: id, Fields: clone}, nil
}

// Create stores fields under a new id.
func (r *MockDocumentRepository) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.New().String()
	if err := r.Upsert(ctx, collection, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

// Upsert merges fields into the document with the given id.
func (r *MockDocumentRepository) Upsert(_ context.Context, collection, id string, fields map[string]any) error {
	if id == "" {
		return fmt.Errorf("upsert into %s: empty document id", collection)
	}
	clone, err := cloneFields(fields)
	if err != nil {
		return err
	}

	r.mu.Lock()
	docs, ok := r.collections[collection]
	if !ok {
		docs = make(map[string]map[string]any)
		r.collections[collection] = docs
	}
	docs[id] = mergeFields(docs[id], clone)
	r.mu.Unlock()

	r.publish(collection)
	return nil
}

// Delete removes a document by its id.
func (r *MockDocumentRepository) Delete(_ context.Context, collection, id string) error {
	r.mu.Lock()
	if _, ok := r.collections[collection][id]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	delete(r.collections[collection], id)
	r.mu.Unlock()

	r.publish(collection)
	return nil
}

// DeleteMany removes every listed document.
func (r *MockDocumentRepository) DeleteMany(_ context.Context, collection string, ids []string) error {
	r.mu.Lock()
	for _, id := range ids {
		delete(r.collections[collection], id)
	}
	r.mu.Unlock()

	r.publish(collection)
	return nil
}

// Refresh republishes the current contents of collection.
func (r *MockDocumentRepository) Refresh(_ context.Context, collection string) error {
	r.publish(collection)
	return nil
}

// Fail publishes a failed snapshot for collection, as a store outage would.
func (r *MockDocumentRepository) Fail(collection string, err error) {
	v := r.feeds.get(collection, func() Snapshot { return r.snapshot(collection) })
	v.Set(Snapshot{Err: err})
}

func (r *MockDocumentRepository) publish(collection string) {
	r.feeds.publish(collection, func() Snapshot { return r.snapshot(collection) })
}
