package models

import "time"

type UserType string

const (
	UserTypeBuyer  UserType = "buyer"
	UserTypeSeller UserType = "seller"
	UserTypeBoth   UserType = "both"
)

// AuthProvider records how an identity signed in.
type AuthProvider string

const (
	ProviderPassword  AuthProvider = "password"
	ProviderGoogle    AuthProvider = "google"
	ProviderEmailLink AuthProvider = "emailLink"
)

// User is the session-scoped view of a signed-in identity merged with the
// stored user profile.
type User struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	Name         string       `json:"name"`
	Phone        string       `json:"phone,omitempty"`
	UserType     UserType     `json:"userType"`
	IsAdmin      bool         `json:"isAdmin"`
	Avatar       string       `json:"avatar,omitempty"`
	Location     *Location    `json:"location,omitempty"`
	TrustScore   float64      `json:"trustScore"`
	TotalOrders  int          `json:"totalOrders"`
	IsActive     bool         `json:"isActive"`
	AuthProvider AuthProvider `json:"authProvider"`
	CreatedAt    *time.Time   `json:"createdAt,omitempty"`
	UpdatedAt    *time.Time   `json:"updatedAt,omitempty"`
}
