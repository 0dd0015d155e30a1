package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"c2cmarket/internal/catalog"
	"c2cmarket/internal/identity"
	"c2cmarket/internal/live"
	"c2cmarket/internal/models"
	"c2cmarket/internal/repositories"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
)

type SessionState int

const (
	SignedOut SessionState = iota
	Syncing
	SignedIn
)

func (s SessionState) String() string {
	switch s {
	case Syncing:
		return "syncing"
	case SignedIn:
		return "signedIn"
	default:
		return "signedOut"
	}
}

// Session is one signed-in client. Current holds the merged user and is
// nil once the session signs out.
type Session struct {
	ID        string
	Current   *live.Value[*models.User]
	ExpiresAt time.Time

	mu    sync.Mutex
	state SessionState
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// User returns the signed-in user, or nil.
func (s *Session) User() *models.User {
	return s.Current.Get()
}

// AdminPolicy decides whether a newly seen email is an administrator.
type AdminPolicy func(email string) bool

// AdminAllowList is an AdminPolicy granting admin to the listed emails.
func AdminAllowList(emails []string) AdminPolicy {
	set := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if e = identity.NormalizeEmail(e); e != "" {
			set[e] = struct{}{}
		}
	}
	return func(email string) bool {
		_, ok := set[identity.NormalizeEmail(email)]
		return ok
	}
}

// AuthConfig configures an AuthService.
type AuthConfig struct {
	JWTSecret   string
	SessionTTL  time.Duration
	AdminPolicy AdminPolicy
	// Now defaults to time.Now.
	Now func() time.Time
}

// Credentials is a password sign-in form.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// SignUpInput is a bare password sign-up.
type SignUpInput struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6"`
	DisplayName string `json:"displayName" validate:"max=100"`
}

// LinkInput completes an emailed sign-in link.
type LinkInput struct {
	Email string `json:"email" validate:"required,email"`
	Link  string `json:"link" validate:"required,url"`
}

// RegisterInput is the full signup form: a password account plus the
// customer profile.
type RegisterInput struct {
	ProfileInput
	Password string `json:"password" validate:"required,min=6"`
}

// SignInResult is returned by every successful sign-in.
type SignInResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *models.User `json:"user"`
	Session   *Session     `json:"-"`
}

// AuthService signs users in through the identity gateway, reconciles each
// identity with its stored user profile and tracks the resulting sessions.
type AuthService struct {
	gateway    identity.Gateway
	store      repositories.DocumentRepository
	customers  *CustomerService
	normalizer *catalog.Normalizer
	events     EventPublisher
	isAdmin    AdminPolicy
	jwtSecret  []byte
	tokenDurat time.Duration
	now        func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewAuthService creates a new AuthService. events may be nil.
func NewAuthService(gateway identity.Gateway, store repositories.DocumentRepository, customers *CustomerService,
	normalizer *catalog.Normalizer, events EventPublisher, cfg AuthConfig) *AuthService {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.AdminPolicy == nil {
		cfg.AdminPolicy = func(string) bool { return false }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &AuthService{
		gateway:    gateway,
		store:      store,
		customers:  customers,
		normalizer: normalizer,
		events:     events,
		isAdmin:    cfg.AdminPolicy,
		jwtSecret:  []byte(cfg.JWTSecret),
		tokenDurat: cfg.SessionTTL,
		now:        cfg.Now,
		sessions:   make(map[string]*Session),
	}
}

// SendSignInLink mails a sign-in link to email.
func (s *AuthService) SendSignInLink(ctx context.Context, email string) error {
	if err := validateEmail(email); err != nil {
		return err
	}
	return s.gateway.SendSignInLink(ctx, email)
}

// CompleteSignIn finishes an emailed-link sign-in.
func (s *AuthService) CompleteSignIn(ctx context.Context, in LinkInput) (*SignInResult, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	return s.establish(ctx, func() (*identity.Identity, error) {
		return s.gateway.CompleteSignIn(ctx, in.Email, in.Link)
	})
}

// SignInWithPassword signs in a password account.
func (s *AuthService) SignInWithPassword(ctx context.Context, in Credentials) (*SignInResult, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	return s.establish(ctx, func() (*identity.Identity, error) {
		return s.gateway.SignInWithPassword(ctx, in.Email, in.Password)
	})
}

// SignUp creates a password account and signs it in.
func (s *AuthService) SignUp(ctx context.Context, in SignUpInput) (*SignInResult, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	return s.establish(ctx, func() (*identity.Identity, error) {
		return s.gateway.SignUpWithPassword(ctx, in.Email, in.Password, in.DisplayName)
	})
}

// SignInWithFederated signs in with a federated provider credential.
func (s *AuthService) SignInWithFederated(ctx context.Context, credential string) (*SignInResult, error) {
	if strings.TrimSpace(credential) == "" {
		return nil, invalidField("credential", "Field 'credential' failed on the 'required' tag")
	}
	return s.establish(ctx, func() (*identity.Identity, error) {
		return s.gateway.SignInWithFederated(ctx, credential)
	})
}

// Register handles the signup form. The customer profile is written before
// the session exists, with zero points. A retry after the account was
// created but its profile was not completes the registration when the
// password matches.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*SignInResult, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	return s.establish(ctx, func() (*identity.Identity, error) {
		name := strings.TrimSpace(in.FirstName + " " + in.LastName)
		id, err := s.gateway.SignUpWithPassword(ctx, in.Email, in.Password, name)
		if errors.Is(err, identity.ErrEmailInUse) {
			id, err = s.resumeRegistration(ctx, in)
		}
		if err != nil {
			return nil, err
		}
		if _, err := s.customers.SaveProfile(ctx, id.UID, in.ProfileInput); err != nil {
			return nil, err
		}
		return id, nil
	})
}

// resumeRegistration returns the existing account for in when its password
// matches and it has no customer profile yet. Otherwise the email is taken.
func (s *AuthService) resumeRegistration(ctx context.Context, in RegisterInput) (*identity.Identity, error) {
	id, err := s.gateway.SignInWithPassword(ctx, in.Email, in.Password)
	if errors.Is(err, identity.ErrInvalidCredentials) {
		return nil, identity.ErrEmailInUse
	}
	if err != nil {
		return nil, err
	}
	profile, err := s.customers.GetCustomerByID(ctx, id.UID)
	if err != nil {
		return nil, err
	}
	if profile != nil {
		return nil, identity.ErrEmailInUse
	}
	log.Printf("Resuming registration for %s", id.Email)
	return id, nil
}

// ResetPassword mails a password reset link.
func (s *AuthService) ResetPassword(ctx context.Context, email string) error {
	if err := validateEmail(email); err != nil {
		return err
	}
	return s.gateway.ResetPassword(ctx, email)
}

// ConfirmPasswordReset sets a new password from a reset code.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, code, newPassword string) error {
	if code == "" {
		return invalidField("code", "Field 'code' failed on the 'required' tag")
	}
	if len(newPassword) < identity.MinPasswordLength {
		return invalidField("password", "Field 'password' failed on the 'min' tag")
	}
	return s.gateway.ConfirmPasswordReset(ctx, code, newPassword)
}

// establish runs one sign-in through the session state machine. The
// session is registered only once it reaches SignedIn, so a failed
// credential exchange or profile sync leaves nothing behind.
func (s *AuthService) establish(ctx context.Context, signIn func() (*identity.Identity, error)) (*SignInResult, error) {
	sess := &Session{
		ID:      uuid.New().String(),
		Current: live.New[*models.User](nil),
		state:   SignedOut,
	}

	id, err := signIn()
	if err != nil {
		return nil, err
	}

	sess.setState(Syncing)
	user, err := s.Sync(ctx, id)
	if err != nil {
		sess.setState(SignedOut)
		return nil, err
	}

	now := s.now()
	sess.ExpiresAt = now.Add(s.tokenDurat)
	token, err := s.issueToken(sess.ID, user.ID, now)
	if err != nil {
		sess.setState(SignedOut)
		return nil, err
	}

	sess.Current.Set(user)
	sess.setState(SignedIn)
	s.mu.Lock()
	expired := s.sweepLocked(now)
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	for _, old := range expired {
		old.Current.Set(nil)
		old.setState(SignedOut)
	}

	return &SignInResult{Token: token, ExpiresAt: sess.ExpiresAt, User: user, Session: sess}, nil
}

// Sync reconciles an identity with its stored user profile, keyed by UID.
// A stored profile wins, with identity fields filling its blanks. Without
// one, a default profile is synthesized and written. Concurrent first
// sign-ins write the same document, so the last write wins.
func (s *AuthService) Sync(ctx context.Context, id *identity.Identity) (*models.User, error) {
	doc, err := s.store.Get(ctx, repositories.CollectionUsers, id.UID)
	if err == nil {
		stored, err := s.normalizer.User(id.UID, doc.Fields)
		if err != nil {
			return nil, fmt.Errorf("failed to read profile for %s: %w", id.UID, err)
		}
		merged := mergeIdentity(stored, id)
		return &merged, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("failed to load profile for %s: %w", id.UID, err)
	}

	user := s.synthesize(id)
	fields, err := catalog.Document(user)
	if err != nil {
		return nil, err
	}
	if err := s.store.Upsert(ctx, repositories.CollectionUsers, id.UID, fields); err != nil {
		return nil, fmt.Errorf("failed to create profile for %s: %w", id.UID, err)
	}
	log.Printf("Created profile for %s (admin: %t)", user.Email, user.IsAdmin)
	publishEvent(s.events, "user.created", map[string]any{"userId": user.ID, "provider": user.AuthProvider})
	return &user, nil
}

func (s *AuthService) synthesize(id *identity.Identity) models.User {
	now := s.now().UTC()
	return models.User{
		ID:           id.UID,
		Email:        id.Email,
		Name:         nameFor(id),
		UserType:     models.UserTypeBoth,
		IsAdmin:      s.isAdmin(id.Email),
		IsActive:     true,
		AuthProvider: id.Provider,
		CreatedAt:    &now,
		UpdatedAt:    &now,
	}
}

func mergeIdentity(u models.User, id *identity.Identity) models.User {
	if u.Email == "" {
		u.Email = id.Email
	}
	if u.Name == "" {
		u.Name = nameFor(id)
	}
	if u.AuthProvider == "" {
		u.AuthProvider = id.Provider
	}
	return u
}

func nameFor(id *identity.Identity) string {
	if id.DisplayName != "" {
		return id.DisplayName
	}
	local, _, _ := strings.Cut(id.Email, "@")
	return local
}

func (s *AuthService) issueToken(sessionID, uid string, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sid": sessionID,
		"uid": uid,
		"exp": now.Add(s.tokenDurat).Unix(),
		"iat": now.Unix(),
	})
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a session token, returning its claims.
func (s *AuthService) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

// Authenticate resolves a bearer token to its signed-in session.
func (s *AuthService) Authenticate(tokenString string) (*Session, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSignedIn, err)
	}
	sid, _ := claims["sid"].(string)
	sess := s.Session(sid)
	if sess == nil || sess.State() != SignedIn {
		return nil, ErrNotSignedIn
	}
	if s.now().After(sess.ExpiresAt) {
		s.drop(sid)
		return nil, ErrNotSignedIn
	}
	return sess, nil
}

// Session returns a tracked session, or nil.
func (s *AuthService) Session(id string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

// sweepLocked removes the sessions that expired before now. The caller
// holds s.mu.
func (s *AuthService) sweepLocked(now time.Time) []*Session {
	var expired []*Session
	for id, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	return expired
}

// SessionCount reports how many sessions are tracked.
func (s *AuthService) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *AuthService) drop(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[id]
	delete(s.sessions, id)
	return sess
}

// Logout ends a session and returns where to send the client. Subscribers
// of the session's Current value observe nil.
func (s *AuthService) Logout(ctx context.Context, sessionID string) (string, error) {
	sess := s.drop(sessionID)
	if sess == nil {
		return "/", nil
	}
	var uid string
	if u := sess.User(); u != nil {
		uid = u.ID
	}
	sess.Current.Set(nil)
	sess.setState(SignedOut)
	if err := s.gateway.SignOut(ctx, uid); err != nil {
		return "/", fmt.Errorf("failed to sign out %s: %w", uid, err)
	}
	return "/", nil
}

// RedirectAfterSignIn picks the post-login destination: the profile form
// while the customer profile is absent or incomplete, else returnURL.
// Only same-site relative paths are honored.
func (s *AuthService) RedirectAfterSignIn(ctx context.Context, uid, returnURL string) (string, error) {
	target := SafeReturnURL(returnURL)
	profile, err := s.customers.GetCustomerByID(ctx, uid)
	if err != nil {
		return "", err
	}
	if !profile.IsComplete() {
		return "/account?returnUrl=" + url.QueryEscape(target), nil
	}
	return target, nil
}

// SafeReturnURL returns raw when it is a relative path on this site and
// "/" otherwise.
func SafeReturnURL(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.Contains(raw, `\`) {
		return "/"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return raw
}

func validateEmail(email string) error {
	return validateStruct(struct {
		Email string `validate:"required,email"`
	}{Email: email})
}
