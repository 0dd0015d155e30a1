package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"c2cmarket/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMDocumentRepository is a GORM implementation of DocumentRepository.
// Writes made through this repository are published immediately; writes
// from other processes become visible after Refresh or through Watch.
type GORMDocumentRepository struct {
	db    *gorm.DB
	feeds feeds
}

// NewGORMDocumentRepository creates a new instance of GORMDocumentRepository.
func NewGORMDocumentRepository(db *gorm.DB) *GORMDocumentRepository {
	return &GORMDocumentRepository{
		db: db,
	}
}

// Subscribe registers fn for live snapshots of collection.
func (r *GORMDocumentRepository) Subscribe(collection string, fn func(Snapshot)) func() {
	return r.feeds.get(collection, func() Snapshot { return r.snapshot(collection) }).Subscribe(fn)
}

func (r *GORMDocumentRepository) snapshot(collection string) Snapshot {
	docs, err := r.List(context.Background(), collection)
	if err != nil {
		return Snapshot{Err: err}
	}
	return Snapshot{Documents: docs}
}

// List retrieves every document in collection ordered by id.
func (r *GORMDocumentRepository) List(ctx context.Context, collection string) ([]Document, error) {
	var records []models.StoredDocument
	if err := r.db.WithContext(ctx).Where("collection = ?", collection).Order("id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	docs := make([]Document, 0, len(records))
	for _, rec := range records {
		fields, err := decodeData(rec.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s/%s: %w", collection, rec.ID, err)
		}
		docs = append(docs, Document{ID: rec.ID, Fields: fields})
	}
	return docs, nil
}

// Get retrieves a single document by its id.
func (r *GORMDocumentRepository) Get(ctx context.Context, collection, id string) (*Document, error) {
	var rec models.StoredDocument
	if err := r.db.WithContext(ctx).First(&rec, "collection = ? AND id = ?", collection, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}
	fields, err := decodeData(rec.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s/%s: %w", collection, id, err)
	}
	return &Document{ID: rec.ID, Fields: fields}, nil
}

// Create stores fields under a new id.
func (r *GORMDocumentRepository) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.New().String()
	if err := r.Upsert(ctx, collection, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

// Upsert merges fields into the stored document inside a transaction.
func (r *GORMDocumentRepository) Upsert(ctx context.Context, collection, id string, fields map[string]any) error {
	if id == "" {
		return fmt.Errorf("upsert into %s: empty document id", collection)
	}
	incoming, err := cloneFields(fields)
	if err != nil {
		return err
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec models.StoredDocument
		err := tx.First(&rec, "collection = ? AND id = ?", collection, id).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			data, err := json.Marshal(incoming)
			if err != nil {
				return err
			}
			return tx.Create(&models.StoredDocument{Collection: collection, ID: id, Data: string(data)}).Error
		case err != nil:
			return err
		}

		current, err := decodeData(rec.Data)
		if err != nil {
			return err
		}
		data, err := json.Marshal(mergeFields(current, incoming))
		if err != nil {
			return err
		}
		rec.Data = string(data)
		return tx.Save(&rec).Error
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %s/%s: %w", collection, id, err)
	}

	r.publish(collection)
	return nil
}

// Delete deletes a document by its id.
func (r *GORMDocumentRepository) Delete(ctx context.Context, collection, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.StoredDocument{}, "collection = ? AND id = ?", collection, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	r.publish(collection)
	return nil
}

// DeleteMany deletes every listed document in one statement.
func (r *GORMDocumentRepository) DeleteMany(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Where("collection = ? AND id IN ?", collection, ids).Delete(&models.StoredDocument{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete from %s: %w", collection, res.Error)
	}
	r.publish(collection)
	return nil
}

// Refresh re-reads collection and publishes it. A failed read is published
// as an error snapshot and returned.
func (r *GORMDocumentRepository) Refresh(ctx context.Context, collection string) error {
	v, ok := r.feeds.lookup(collection)
	if !ok {
		return nil
	}
	docs, err := r.List(ctx, collection)
	if err != nil {
		v.Set(Snapshot{Err: err})
		return err
	}
	v.Set(Snapshot{Documents: docs})
	return nil
}

// Watch refreshes every subscribed collection each interval until ctx is
// done.
func (r *GORMDocumentRepository) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, c := range r.feeds.collections() {
				if err := r.Refresh(ctx, c); err != nil && ctx.Err() == nil {
					log.Printf("Failed to refresh collection %s: %v", c, err)
				}
			}
		}
	}
}

func (r *GORMDocumentRepository) publish(collection string) {
	r.feeds.publish(collection, func() Snapshot { return r.snapshot(collection) })
}

func decodeData(data string) (map[string]any, error) {
	fields := map[string]any{}
	if data == "" {
		return fields, nil
	}
	if err := json.Unmarshal([]byte(data), &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
