package services_test

import (
	"context"
	"io"
	"log"
	"os"
	"testing"
	"time"

	"c2cmarket/internal/catalog"
	"c2cmarket/internal/identity"
	"c2cmarket/internal/models"

	"github.com/stretchr/testify/mock"
)

// MockGateway is a mock implementation of identity.Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) SendSignInLink(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockGateway) IsSignInLink(link string) bool {
	args := m.Called(link)
	return args.Bool(0)
}

func (m *MockGateway) CompleteSignIn(ctx context.Context, email, link string) (*identity.Identity, error) {
	args := m.Called(ctx, email, link)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Identity), args.Error(1)
}

func (m *MockGateway) SignInWithPassword(ctx context.Context, email, password string) (*identity.Identity, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Identity), args.Error(1)
}

func (m *MockGateway) SignUpWithPassword(ctx context.Context, email, password, displayName string) (*identity.Identity, error) {
	args := m.Called(ctx, email, password, displayName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Identity), args.Error(1)
}

func (m *MockGateway) SignInWithFederated(ctx context.Context, credential string) (*identity.Identity, error) {
	args := m.Called(ctx, credential)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Identity), args.Error(1)
}

func (m *MockGateway) SignOut(ctx context.Context, uid string) error {
	args := m.Called(ctx, uid)
	return args.Error(0)
}

func (m *MockGateway) ResetPassword(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockGateway) ConfirmPasswordReset(ctx context.Context, code, newPassword string) error {
	args := m.Called(ctx, code, newPassword)
	return args.Error(0)
}

func (m *MockGateway) Subscribe(fn func(identity.Change)) func() {
	m.Called(fn)
	return func() {}
}

// MockPublisher is a mock implementation of services.EventPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(exchange, routingKey string, body []byte) error {
	args := m.Called(exchange, routingKey, body)
	return args.Error(0)
}

// routingKeys lists the routing keys published so far.
func (m *MockPublisher) routingKeys() []string {
	var keys []string
	for _, c := range m.Calls {
		keys = append(keys, c.Arguments.String(1))
	}
	return keys
}

func newPublisher() *MockPublisher {
	pub := new(MockPublisher)
	pub.On("Publish", "marketplace", mock.Anything, mock.Anything).Return(nil)
	return pub
}

var testNow = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

func testNormalizer() *catalog.Normalizer {
	n := catalog.NewNormalizer(nil)
	n.Now = func() time.Time { return testNow }
	return n
}

var (
	seller = &models.User{ID: "seller-1", Email: "seller@example.com", Name: "Sam Seller"}
	buyer  = &models.User{ID: "buyer-1", Email: "buyer@example.com", Name: "Bea Buyer"}
	admin  = &models.User{ID: "admin-1", Email: "admin@example.com", Name: "Ada Admin", IsAdmin: true}
)

// TestMain is used to setup test environment
func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}
