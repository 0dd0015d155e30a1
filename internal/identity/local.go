package identity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"c2cmarket/internal/live"
	"c2cmarket/internal/models"
	"c2cmarket/internal/repositories"

	"golang.org/x/crypto/bcrypt"
)

// Config configures a LocalGateway.
type Config struct {
	Secret          []byte
	LinkBaseURL     string
	LinkTTL         time.Duration
	FederatedIssuer string
	FederatedSecret []byte
}

// LocalGateway is a Gateway backed by an IdentityRepository.
type LocalGateway struct {
	accounts repositories.IdentityRepository
	sender   LinkSender
	cfg      Config
	changes  *live.Value[Change]
	now      func() time.Time
}

// NewLocalGateway creates a new LocalGateway.
func NewLocalGateway(accounts repositories.IdentityRepository, sender LinkSender, cfg Config) *LocalGateway {
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = time.Hour
	}
	return &LocalGateway{
		accounts: accounts,
		sender:   sender,
		cfg:      cfg,
		changes:  live.New(Change{}),
		now:      time.Now,
	}
}

// NormalizeEmail is the canonical form emails are stored and compared in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SendSignInLink mails a one-time sign-in link to email.
func (g *LocalGateway) SendSignInLink(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	now := g.now()
	code, err := signCode(g.cfg.Secret, purposeSignIn, "", email, now, g.cfg.LinkTTL)
	if err != nil {
		return err
	}
	return g.sender.SendLink(ctx, LinkMessage{
		Kind:      KindSignInLink,
		Email:     email,
		Link:      g.link("signIn", code),
		ExpiresAt: now.Add(g.cfg.LinkTTL).UTC(),
	})
}

func (g *LocalGateway) link(mode, code string) string {
	q := url.Values{}
	q.Set("mode", mode)
	q.Set("oobCode", code)
	sep := "?"
	if strings.Contains(g.cfg.LinkBaseURL, "?") {
		sep = "&"
	}
	return g.cfg.LinkBaseURL + sep + q.Encode()
}

// IsSignInLink reports whether link has the shape of a sign-in link. It
// does not verify the code.
func (g *LocalGateway) IsSignInLink(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	q := u.Query()
	return q.Get("mode") == "signIn" && q.Get("oobCode") != ""
}

// CompleteSignIn verifies a sign-in link for email, creating the account
// on first use.
func (g *LocalGateway) CompleteSignIn(ctx context.Context, email, link string) (*Identity, error) {
	email = NormalizeEmail(email)
	if !g.IsSignInLink(link) {
		return nil, ErrInvalidLink
	}
	u, _ := url.Parse(link)
	claims, err := parseCode(g.cfg.Secret, u.Query().Get("oobCode"), purposeSignIn)
	if err != nil {
		log.Printf("Sign-in link rejected: %v", err)
		return nil, ErrInvalidLink
	}
	if claims.Email != email {
		return nil, ErrInvalidLink
	}
	if err := g.spend(ctx, claims); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, ErrInvalidLink
		}
		return nil, err
	}

	account, err := g.findOrCreate(ctx, email, "", models.ProviderEmailLink)
	if err != nil {
		return nil, err
	}
	return g.signedIn(account, models.ProviderEmailLink), nil
}

// SignInWithPassword checks email and password against the stored hash.
func (g *LocalGateway) SignInWithPassword(ctx context.Context, email, password string) (*Identity, error) {
	account, err := g.accounts.GetByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if account.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return g.signedIn(account, models.ProviderPassword), nil
}

// SignUpWithPassword creates a password account and signs it in.
func (g *LocalGateway) SignUpWithPassword(ctx context.Context, email, password, displayName string) (*Identity, error) {
	if len(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	account := &models.Identity{
		Email:        NormalizeEmail(email),
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(hash),
		Provider:     models.ProviderPassword,
	}
	if err := g.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, ErrEmailInUse
		}
		return nil, err
	}
	return g.signedIn(account, models.ProviderPassword), nil
}

// SignInWithFederated accepts an ID token from the configured federated
// issuer. The account is keyed by the token's email.
func (g *LocalGateway) SignInWithFederated(ctx context.Context, credential string) (*Identity, error) {
	if len(g.cfg.FederatedSecret) == 0 {
		return nil, ErrFederatedRejected
	}
	claims, err := parseFederated(g.cfg.FederatedSecret, credential)
	if err != nil {
		log.Printf("Federated credential rejected: %v", err)
		return nil, ErrFederatedRejected
	}
	if claims.Issuer != g.cfg.FederatedIssuer || claims.Subject == "" || claims.Email == "" {
		return nil, ErrFederatedRejected
	}

	account, err := g.findOrCreate(ctx, NormalizeEmail(claims.Email), claims.Name, models.ProviderGoogle)
	if err != nil {
		return nil, err
	}
	return g.signedIn(account, models.ProviderGoogle), nil
}

// SignOut ends the identity's provider session.
func (g *LocalGateway) SignOut(_ context.Context, uid string) error {
	g.changes.Set(Change{UID: uid})
	return nil
}

// ResetPassword mails a reset link. Unknown emails succeed silently so the
// endpoint cannot be used to discover accounts.
func (g *LocalGateway) ResetPassword(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	account, err := g.accounts.GetByEmail(ctx, email)
	if errors.Is(err, repositories.ErrNotFound) {
		log.Printf("Password reset requested for unknown email %s", email)
		return nil
	}
	if err != nil {
		return err
	}

	now := g.now()
	code, err := signCode(g.cfg.Secret, purposeReset, account.UID, email, now, g.cfg.LinkTTL)
	if err != nil {
		return err
	}
	return g.sender.SendLink(ctx, LinkMessage{
		Kind:      KindPasswordReset,
		Email:     email,
		Link:      g.link("resetPassword", code),
		ExpiresAt: now.Add(g.cfg.LinkTTL).UTC(),
	})
}

// ConfirmPasswordReset sets a new password using a mailed reset code.
func (g *LocalGateway) ConfirmPasswordReset(ctx context.Context, code, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return ErrWeakPassword
	}
	claims, err := parseCode(g.cfg.Secret, code, purposeReset)
	if err != nil {
		return ErrInvalidResetCode
	}
	account, err := g.accounts.GetByUID(ctx, claims.Subject)
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrInvalidResetCode
	}
	if err != nil {
		return err
	}
	if err := g.spend(ctx, claims); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return ErrInvalidResetCode
		}
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	account.PasswordHash = string(hash)
	return g.accounts.Update(ctx, account)
}

// spend marks a mailed code as used so it cannot be replayed.
func (g *LocalGateway) spend(ctx context.Context, claims *codeClaims) error {
	return g.accounts.SpendCode(ctx, claims.Id, time.Unix(claims.ExpiresAt, 0))
}

// Subscribe delivers auth changes to fn.
func (g *LocalGateway) Subscribe(fn func(Change)) func() {
	return g.changes.Subscribe(fn)
}

func (g *LocalGateway) findOrCreate(ctx context.Context, email, name string, provider models.AuthProvider) (*models.Identity, error) {
	account, err := g.accounts.GetByEmail(ctx, email)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	account = &models.Identity{Email: email, DisplayName: name, Provider: provider}
	if err := g.accounts.Create(ctx, account); err != nil {
		// Lost a race with a concurrent first sign-in.
		if errors.Is(err, repositories.ErrDuplicate) {
			return g.accounts.GetByEmail(ctx, email)
		}
		return nil, err
	}
	return account, nil
}

func (g *LocalGateway) signedIn(account *models.Identity, provider models.AuthProvider) *Identity {
	id := &Identity{
		UID:         account.UID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
		Provider:    provider,
	}
	g.changes.Set(Change{UID: id.UID, Identity: id})
	return id
}
