package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"c2cmarket/internal/live"
)

// Collections held by the document store.
const (
	CollectionProducts  = "products"
	CollectionCustomers = "customers"
	CollectionUsers     = "users"
	CollectionRequests  = "productRequests"
)

// Collections lists every collection the marketplace reads.
var Collections = []string{CollectionProducts, CollectionCustomers, CollectionUsers, CollectionRequests}

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// Document is a single stored record. Fields is owned by the caller.
type Document struct {
	ID     string
	Fields map[string]any
}

// Snapshot is the state of a collection at one point in time. A snapshot
// with Err set reports a failed read and carries no documents.
type Snapshot struct {
	Documents []Document
	Err       error
}

// DocumentRepository defines live and point access to document collections.
type DocumentRepository interface {
	// Subscribe calls fn with the latest snapshot of collection and again
	// after every change, until cancel is called. fn must not write to the
	// repository synchronously.
	Subscribe(collection string, fn func(Snapshot)) (cancel func())
	List(ctx context.Context, collection string) ([]Document, error)
	Get(ctx context.Context, collection, id string) (*Document, error)
	Create(ctx context.Context, collection string, fields map[string]any) (string, error)
	// Upsert merges fields into the document, creating it when absent.
	// Nested objects are merged key by key; every other value is replaced.
	Upsert(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	// DeleteMany removes every listed document, ignoring ids that are absent.
	DeleteMany(ctx context.Context, collection string, ids []string) error
	// Refresh re-reads collection and publishes the result to subscribers.
	Refresh(ctx context.Context, collection string) error
}

// feeds holds one latest-snapshot broadcaster per collection.
type feeds struct {
	mu     sync.Mutex
	values map[string]*live.Value[Snapshot]
}

// get returns the feed for collection, seeding a new one with load.
func (f *feeds) get(collection string, load func() Snapshot) *live.Value[Snapshot] {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values == nil {
		f.values = make(map[string]*live.Value[Snapshot])
	}
	v, ok := f.values[collection]
	if !ok {
		v = live.New(load())
		f.values[collection] = v
	}
	return v
}

// lookup returns the feed for collection if anyone ever subscribed to it.
func (f *feeds) lookup(collection string) (*live.Value[Snapshot], bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[collection]
	return v, ok
}

func (f *feeds) collections() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.values))
	for c := range f.values {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// publish recomputes the snapshot under the feed's emission lock, so the
// last delivered snapshot always reflects the newest store state.
func (f *feeds) publish(collection string, load func() Snapshot) {
	v, ok := f.lookup(collection)
	if !ok {
		return
	}
	v.Update(func(Snapshot) Snapshot { return load() })
}

// cloneFields deep-copies fields through their JSON form. Stored documents
// therefore hold only JSON values: times become RFC 3339 strings and
// numbers become float64.
func cloneFields(fields map[string]any) (map[string]any, error) {
	if fields == nil {
		return map[string]any{}, nil
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document fields: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("failed to decode document fields: %w", err)
	}
	return out, nil
}

// mergeFields merges src into dst in place and returns dst.
func mergeFields(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for k, v := range src {
		sub, ok := v.(map[string]any)
		if !ok {
			dst[k] = v
			continue
		}
		if cur, ok := dst[k].(map[string]any); ok {
			dst[k] = mergeFields(cur, sub)
			continue
		}
		dst[k] = mergeFields(map[string]any{}, sub)
	}
	return dst
}

func sortDocuments(docs []Document) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
}
