package identity_test

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"c2cmarket/internal/identity"
	"c2cmarket/internal/models"
	"c2cmarket/internal/repositories"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockLinkSender struct {
	mock.Mock
	sent []identity.LinkMessage
}

func (m *MockLinkSender) SendLink(ctx context.Context, msg identity.LinkMessage) error {
	m.sent = append(m.sent, msg)
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockLinkSender) last() identity.LinkMessage {
	return m.sent[len(m.sent)-1]
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(exchange, routingKey string, body []byte) error {
	args := m.Called(exchange, routingKey, body)
	return args.Error(0)
}

var testConfig = identity.Config{
	Secret:          []byte("test-secret"),
	LinkBaseURL:     "http://localhost:8080/auth/verify",
	LinkTTL:         time.Hour,
	FederatedIssuer: "https://accounts.example.com",
	FederatedSecret: []byte("federated-secret"),
}

func newGateway(t *testing.T) (*identity.LocalGateway, *MockLinkSender, *repositories.MockIdentityRepository) {
	t.Helper()
	sender := new(MockLinkSender)
	sender.On("SendLink", mock.Anything, mock.Anything).Return(nil)
	accounts := repositories.NewMockIdentityRepository()
	return identity.NewLocalGateway(accounts, sender, testConfig), sender, accounts
}

func TestLocalGateway_PasswordSignUpAndSignIn(t *testing.T) {
	g, _, _ := newGateway(t)
	ctx := context.Background()

	created, err := g.SignUpWithPassword(ctx, "  Asha@Example.com ", "secret1", "Asha K")
	require.NoError(t, err)
	assert.Equal(t, "asha@example.com", created.Email)
	assert.Equal(t, models.ProviderPassword, created.Provider)

	signedIn, err := g.SignInWithPassword(ctx, "asha@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, created.UID, signedIn.UID)

	_, err = g.SignInWithPassword(ctx, "asha@example.com", "wrong-password")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
	_, err = g.SignInWithPassword(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	_, err = g.SignUpWithPassword(ctx, "ASHA@example.com", "another1", "")
	assert.ErrorIs(t, err, identity.ErrEmailInUse)
	_, err = g.SignUpWithPassword(ctx, "new@example.com", "123", "")
	assert.ErrorIs(t, err, identity.ErrWeakPassword)
}

func TestLocalGateway_EmailLinkFlow(t *testing.T) {
	g, sender, _ := newGateway(t)
	ctx := context.Background()

	require.NoError(t, g.SendSignInLink(ctx, "Link@Example.com"))
	msg := sender.last()
	assert.Equal(t, identity.KindSignInLink, msg.Kind)
	assert.Equal(t, "link@example.com", msg.Email)
	require.True(t, g.IsSignInLink(msg.Link))

	first, err := g.CompleteSignIn(ctx, "link@example.com", msg.Link)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderEmailLink, first.Provider)

	_, err = g.CompleteSignIn(ctx, "link@example.com", msg.Link)
	assert.ErrorIs(t, err, identity.ErrInvalidLink, "a link signs in once")

	require.NoError(t, g.SendSignInLink(ctx, "link@example.com"))
	second, err := g.CompleteSignIn(ctx, "link@example.com", sender.last().Link)
	require.NoError(t, err)
	assert.Equal(t, first.UID, second.UID, "the account is created once")
}

func TestLocalGateway_RejectsBadLinks(t *testing.T) {
	g, sender, _ := newGateway(t)
	ctx := context.Background()
	require.NoError(t, g.SendSignInLink(ctx, "owner@example.com"))
	link := sender.last().Link

	_, err := g.CompleteSignIn(ctx, "someone-else@example.com", link)
	assert.ErrorIs(t, err, identity.ErrInvalidLink, "link bound to another email")

	_, err = g.CompleteSignIn(ctx, "owner@example.com", "http://localhost:8080/auth/verify?mode=signIn&oobCode=garbage")
	assert.ErrorIs(t, err, identity.ErrInvalidLink)

	_, err = g.CompleteSignIn(ctx, "owner@example.com", "not a link")
	assert.ErrorIs(t, err, identity.ErrInvalidLink)
	assert.False(t, g.IsSignInLink("http://localhost:8080/shop"))

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"purpose": "signin",
		"email":   "owner@example.com",
		"exp":     time.Now().Add(-time.Minute).Unix(),
	}).SignedString(testConfig.Secret)
	require.NoError(t, err)
	_, err = g.CompleteSignIn(ctx, "owner@example.com", testConfig.LinkBaseURL+"?mode=signIn&oobCode="+expired)
	assert.ErrorIs(t, err, identity.ErrInvalidLink, "expired link")
}

func TestLocalGateway_PasswordReset(t *testing.T) {
	g, sender, _ := newGateway(t)
	ctx := context.Background()
	_, err := g.SignUpWithPassword(ctx, "reset@example.com", "oldpass", "")
	require.NoError(t, err)

	require.NoError(t, g.ResetPassword(ctx, "reset@example.com"))
	msg := sender.last()
	assert.Equal(t, identity.KindPasswordReset, msg.Kind)
	u, err := url.Parse(msg.Link)
	require.NoError(t, err)
	code := u.Query().Get("oobCode")

	assert.ErrorIs(t, g.ConfirmPasswordReset(ctx, code, "123"), identity.ErrWeakPassword)
	assert.ErrorIs(t, g.ConfirmPasswordReset(ctx, "bogus", "newpass"), identity.ErrInvalidResetCode)
	require.NoError(t, g.ConfirmPasswordReset(ctx, code, "newpass"))

	_, err = g.SignInWithPassword(ctx, "reset@example.com", "newpass")
	assert.NoError(t, err)

	sentBefore := len(sender.sent)
	assert.NoError(t, g.ResetPassword(ctx, "unknown@example.com"))
	assert.Len(t, sender.sent, sentBefore, "unknown emails get no mail")
}

func TestLocalGateway_PasswordResetCodeIsSingleUse(t *testing.T) {
	g, sender, _ := newGateway(t)
	ctx := context.Background()
	_, err := g.SignUpWithPassword(ctx, "once@example.com", "oldpass", "")
	require.NoError(t, err)

	require.NoError(t, g.ResetPassword(ctx, "once@example.com"))
	u, err := url.Parse(sender.last().Link)
	require.NoError(t, err)
	code := u.Query().Get("oobCode")

	require.NoError(t, g.ConfirmPasswordReset(ctx, code, "firstpass"))
	assert.ErrorIs(t, g.ConfirmPasswordReset(ctx, code, "replayed"), identity.ErrInvalidResetCode)

	_, err = g.SignInWithPassword(ctx, "once@example.com", "replayed")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
	_, err = g.SignInWithPassword(ctx, "once@example.com", "firstpass")
	assert.NoError(t, err)

	// Codes without an id cannot be tracked and are refused.
	account, err := g.SignInWithPassword(ctx, "once@example.com", "firstpass")
	require.NoError(t, err)
	untracked, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"purpose": "reset",
		"email":   "once@example.com",
		"sub":     account.UID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString(testConfig.Secret)
	require.NoError(t, err)
	assert.ErrorIs(t, g.ConfirmPasswordReset(ctx, untracked, "untracked"), identity.ErrInvalidResetCode)
}

func federatedToken(t *testing.T, secret []byte, issuer, email string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":   issuer,
		"sub":   "google-123",
		"email": email,
		"name":  "Fed User",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func TestLocalGateway_Federated(t *testing.T) {
	g, _, _ := newGateway(t)
	ctx := context.Background()

	id, err := g.SignInWithFederated(ctx, federatedToken(t, testConfig.FederatedSecret, testConfig.FederatedIssuer, "Fed@Example.com"))
	require.NoError(t, err)
	assert.Equal(t, "fed@example.com", id.Email)
	assert.Equal(t, "Fed User", id.DisplayName)
	assert.Equal(t, models.ProviderGoogle, id.Provider)

	_, err = g.SignInWithFederated(ctx, federatedToken(t, testConfig.FederatedSecret, "https://evil.example.com", "fed@example.com"))
	assert.ErrorIs(t, err, identity.ErrFederatedRejected)
	_, err = g.SignInWithFederated(ctx, federatedToken(t, []byte("wrong"), testConfig.FederatedIssuer, "fed@example.com"))
	assert.ErrorIs(t, err, identity.ErrFederatedRejected)
}

func TestLocalGateway_PublishesChanges(t *testing.T) {
	g, _, _ := newGateway(t)
	ctx := context.Background()

	var changes []identity.Change
	cancel := g.Subscribe(func(c identity.Change) { changes = append(changes, c) })
	defer cancel()

	id, err := g.SignUpWithPassword(ctx, "watch@example.com", "secret1", "")
	require.NoError(t, err)
	require.NoError(t, g.SignOut(ctx, id.UID))

	require.Len(t, changes, 3)
	assert.Equal(t, id.UID, changes[1].Identity.UID)
	assert.Equal(t, id.UID, changes[2].UID)
	assert.Nil(t, changes[2].Identity)
}

func TestQueueLinkSender_PublishesMailMessage(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", "marketplace", "mail.signin_link", mock.Anything).Return(nil)
	sender := identity.QueueLinkSender{Publisher: pub, Exchange: "marketplace"}

	msg := identity.LinkMessage{Kind: identity.KindSignInLink, Email: "a@example.com", Link: "http://x"}
	require.NoError(t, sender.SendLink(context.Background(), msg))

	pub.AssertExpectations(t)
	body := pub.Calls[0].Arguments.Get(2).([]byte)
	var decoded identity.LinkMessage
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "a@example.com", decoded.Email)
}
