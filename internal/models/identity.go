package models

import "time"

// Identity is an account held by the local identity provider.
type Identity struct {
	UID          string       `json:"uid" gorm:"primaryKey;type:varchar(36)"`
	Email        string       `json:"email" gorm:"uniqueIndex;type:varchar(255);not null"`
	DisplayName  string       `json:"displayName" gorm:"type:varchar(200)"`
	PasswordHash string       `json:"-" gorm:"type:varchar(255)"`
	Provider     AuthProvider `json:"provider" gorm:"type:varchar(20)"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// SpentCode records a mailed sign-in or reset code that has been used.
// Rows are kept until the code would have expired anyway.
type SpentCode struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
}
