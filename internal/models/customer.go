package models

import "time"

// CustomerProfile holds a buyer's contact details and loyalty points.
// ID is the identity provider UID.
type CustomerProfile struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Phone        string    `json:"phone"`
	Address      string    `json:"address"`
	City         string    `json:"city"`
	LocationNote string    `json:"locationNote,omitempty"`
	Points       int       `json:"points"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// IsComplete reports whether every required contact field is filled in.
// A nil profile is incomplete.
func (p *CustomerProfile) IsComplete() bool {
	if p == nil {
		return false
	}
	return p.FirstName != "" && p.LastName != "" && p.Email != "" &&
		p.Phone != "" && p.Address != "" && p.City != ""
}
