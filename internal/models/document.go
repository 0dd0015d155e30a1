package models

import "time"

// StoredDocument is a loosely-typed record in a named collection. Data holds
// the document fields as a JSON object.
type StoredDocument struct {
	Collection string    `gorm:"primaryKey;type:varchar(64)"`
	ID         string    `gorm:"primaryKey;type:varchar(64)"`
	Data       string    `gorm:"type:text;not null"`
	CreatedAt  time.Time `gorm:"index"`
	UpdatedAt  time.Time
}

func (StoredDocument) TableName() string { return "documents" }
