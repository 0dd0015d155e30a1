package models

import "time"

// ProductRequest is a buyer's ask for something not yet in the catalog.
// Only admins change Approved.
type ProductRequest struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Category       string    `json:"category"`
	RequesterID    string    `json:"requesterId"`
	RequesterName  string    `json:"requesterName"`
	RequesterEmail string    `json:"requesterEmail"`
	Approved       bool      `json:"approved"`
	VerifiedBy     string    `json:"verifiedBy,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
