// Package identity is the marketplace's identity provider: password
// accounts, emailed sign-in links, federated ID tokens and password resets.
package identity

import (
	"context"
	"errors"

	"c2cmarket/internal/models"
)

var (
	ErrInvalidLink        = errors.New("invalid or expired sign-in link")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailInUse         = errors.New("email already in use")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrInvalidResetCode   = errors.New("invalid or expired reset code")
	ErrFederatedRejected  = errors.New("federated credential rejected")
)

// MinPasswordLength is the shortest password the provider accepts.
const MinPasswordLength = 6

// Identity is the provider's view of a signed-in account.
type Identity struct {
	UID         string              `json:"uid"`
	Email       string              `json:"email"`
	DisplayName string              `json:"displayName"`
	Provider    models.AuthProvider `json:"provider"`
}

// Change reports an auth state change. Identity is nil on sign-out.
type Change struct {
	UID      string
	Identity *Identity
}

// Gateway is the identity provider used by the auth flow.
type Gateway interface {
	SendSignInLink(ctx context.Context, email string) error
	IsSignInLink(link string) bool
	CompleteSignIn(ctx context.Context, email, link string) (*Identity, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Identity, error)
	SignUpWithPassword(ctx context.Context, email, password, displayName string) (*Identity, error)
	SignInWithFederated(ctx context.Context, credential string) (*Identity, error)
	SignOut(ctx context.Context, uid string) error
	ResetPassword(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, code, newPassword string) error
	// Subscribe delivers the latest auth change and every later one.
	Subscribe(fn func(Change)) (cancel func())
}
