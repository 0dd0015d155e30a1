package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"c2cmarket/internal/catalog"
	"c2cmarket/internal/handlers"
	"c2cmarket/internal/identity"
	"c2cmarket/internal/middleware"
	"c2cmarket/internal/models"
	"c2cmarket/internal/repositories"
	"c2cmarket/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// recordingSender keeps every mailed link instead of delivering it.
type recordingSender struct {
	mu   sync.Mutex
	sent []identity.LinkMessage
}

func (s *recordingSender) SendLink(_ context.Context, msg identity.LinkMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) last(t *testing.T) identity.LinkMessage {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.sent, "no link was sent")
	return s.sent[len(s.sent)-1]
}

type testApp struct {
	app     *fiber.App
	sender  *recordingSender
	catalog *services.CatalogService
}

// setupApp sets up a Fiber app for testing over a private in-memory SQLite
// database with every handler registered.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err, "failed to connect to in-memory database")
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.StoredDocument{}, &models.Identity{}, &models.SpentCode{}))

	store := repositories.NewGORMDocumentRepository(db)
	sender := &recordingSender{}
	gateway := identity.NewLocalGateway(repositories.NewGORMIdentityRepository(db), sender, identity.Config{
		Secret:      []byte("test_jwt_secret"),
		LinkBaseURL: "http://localhost:8080/auth/verify",
		LinkTTL:     time.Hour,
	})

	normalizer := catalog.NewNormalizer(nil)
	catalogService := services.NewCatalogService(store, normalizer, catalog.DefaultMinPoints)
	t.Cleanup(catalogService.Close)
	productService := services.NewProductService(store, normalizer, nil)
	customerService := services.NewCustomerService(store, normalizer, gateway, nil)
	requestService := services.NewRequestService(store, normalizer, nil)
	authService := services.NewAuthService(gateway, store, customerService, normalizer, nil, services.AuthConfig{
		JWTSecret:   "test_jwt_secret",
		SessionTTL:  time.Hour,
		AdminPolicy: services.AdminAllowList([]string{"admin@example.com"}),
	})

	app := fiber.New()
	apiV1 := app.Group("/api/v1")
	authRequired := middleware.AuthRequired(authService)

	handlers.NewAuthHandler(authService).RegisterRoutes(apiV1, authRequired, nil)
	handlers.NewProductHandler(catalogService, productService).RegisterRoutes(apiV1, authRequired)
	handlers.NewSellerHandler(catalogService, productService).RegisterRoutes(apiV1, authRequired)
	handlers.NewAccountHandler(customerService, authService).RegisterRoutes(apiV1, authRequired)
	handlers.NewRequestHandler(requestService).RegisterRoutes(apiV1, authRequired)
	handlers.NewAdminHandler(catalogService, productService, customerService, requestService).RegisterRoutes(apiV1, authRequired)

	return &testApp{app: app, sender: sender, catalog: catalogService}
}

// TestMain runs setup and teardown for all tests
func TestMain(m *testing.M) {
	// Suppress logging during tests for cleaner output
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// call sends a JSON request and returns the status and raw response body.
func (a *testApp) call(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

type signIn struct {
	Token    string      `json:"token"`
	Redirect string      `json:"redirect"`
	User     models.User `json:"user"`
}

func registration(first, email string) map[string]string {
	return map[string]string{
		"firstName": first,
		"lastName":  "Tester",
		"email":     email,
		"phone":     "0123456789",
		"address":   "1 Market Street",
		"city":      "Lagos",
		"password":  "password123",
	}
}

func (a *testApp) register(t *testing.T, first, email string) signIn {
	t.Helper()
	status, raw := a.call(t, http.MethodPost, "/api/v1/auth/register", "", registration(first, email))
	require.Equal(t, http.StatusCreated, status, string(raw))
	return decode[signIn](t, raw)
}

func productInput(name string) map[string]any {
	return map[string]any{
		"productName": name,
		"description": "Fresh from the farm this morning",
		"category":    "dairy",
		"marketPrice": 200,
		"c2cPrice":    150,
		"stock":       4,
		"deliveryOptions": map[string]any{
			"courier": true,
		},
	}
}

type listing struct {
	Products []models.Product `json:"products"`
	Count    int              `json:"count"`
}

func TestAuthRegisterLoginAndMe(t *testing.T) {
	a := setupApp(t)

	reg := a.register(t, "Sam", "sam@example.com")
	assert.NotEmpty(t, reg.Token)
	assert.Equal(t, "/", reg.Redirect)
	assert.Equal(t, "Sam Tester", reg.User.Name)
	assert.False(t, reg.User.IsAdmin)

	// Test Duplicate Registration (email)
	status, _ := a.call(t, http.MethodPost, "/api/v1/auth/register", "", registration("Sam", "sam@example.com"))
	assert.Equal(t, http.StatusConflict, status)

	status, _ = a.call(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "sam@example.com", "password": "not-the-password",
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, raw := a.call(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "sam@example.com", "password": "password123", "returnUrl": "/cart",
	})
	require.Equal(t, http.StatusOK, status, string(raw))
	login := decode[signIn](t, raw)
	assert.Equal(t, "/cart", login.Redirect)
	assert.Equal(t, reg.User.ID, login.User.ID)

	status, raw = a.call(t, http.MethodGet, "/api/v1/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, status)
	me := decode[struct {
		User  models.User `json:"user"`
		State string      `json:"state"`
	}](t, raw)
	assert.Equal(t, "sam@example.com", me.User.Email)
	assert.Equal(t, "signedIn", me.State)

	status, _ = a.call(t, http.MethodGet, "/api/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestAuthValidationErrors(t *testing.T) {
	a := setupApp(t)

	status, raw := a.call(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "not-an-email", "password": "password123",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	body := decode[map[string]any](t, raw)
	assert.Equal(t, "Validation failed", body["message"])
	assert.Contains(t, body, "errors")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogoutInvalidatesToken(t *testing.T) {
	a := setupApp(t)
	reg := a.register(t, "Lou", "lou@example.com")

	status, raw := a.call(t, http.MethodPost, "/api/v1/auth/logout", reg.Token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "/", decode[map[string]any](t, raw)["redirect"])

	status, _ = a.call(t, http.MethodGet, "/api/v1/auth/me", reg.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestEmailLinkSignIn(t *testing.T) {
	a := setupApp(t)

	status, _ := a.call(t, http.MethodPost, "/api/v1/auth/link", "", map[string]string{"email": "link@example.com"})
	require.Equal(t, http.StatusAccepted, status)
	msg := a.sender.last(t)
	assert.Equal(t, identity.KindSignInLink, msg.Kind)
	assert.Equal(t, "link@example.com", msg.Email)

	status, _ = a.call(t, http.MethodPost, "/api/v1/auth/link/complete", "", map[string]string{
		"email": "link@example.com",
		"link":  "http://localhost:8080/auth/verify?mode=signIn&oobCode=bogus",
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, raw := a.call(t, http.MethodPost, "/api/v1/auth/link/complete", "", map[string]string{
		"email":     "link@example.com",
		"link":      msg.Link,
		"returnUrl": "/sell",
	})
	require.Equal(t, http.StatusOK, status, string(raw))
	res := decode[signIn](t, raw)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, models.ProviderEmailLink, res.User.AuthProvider)
	// No customer profile yet, so the profile form comes first.
	assert.Equal(t, "/account?returnUrl=%2Fsell", res.Redirect)
}

func TestAccountProfile(t *testing.T) {
	a := setupApp(t)

	status, raw := a.call(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"email": "newbie@example.com", "password": "password123", "displayName": "New Bie",
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	res := decode[signIn](t, raw)
	assert.Equal(t, "/account?returnUrl=%2F", res.Redirect)

	status, raw = a.call(t, http.MethodGet, "/api/v1/account", res.Token, nil)
	require.Equal(t, http.StatusOK, status)
	profile := decode[struct {
		Profile  models.CustomerProfile `json:"profile"`
		Complete bool                   `json:"complete"`
	}](t, raw)
	assert.False(t, profile.Complete)
	assert.Equal(t, "newbie@example.com", profile.Profile.Email)

	form := registration("New", "newbie@example.com")
	delete(form, "password")
	form["returnUrl"] = "/cart"
	status, raw = a.call(t, http.MethodPut, "/api/v1/account", res.Token, form)
	require.Equal(t, http.StatusOK, status, string(raw))
	saved := decode[map[string]any](t, raw)
	assert.Equal(t, true, saved["complete"])
	assert.Equal(t, "/cart", saved["redirect"])

	form["phone"] = "12"
	status, _ = a.call(t, http.MethodPut, "/api/v1/account", res.Token, form)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = a.call(t, http.MethodPost, "/api/v1/account/password-reset", res.Token, nil)
	assert.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, identity.KindPasswordReset, a.sender.last(t).Kind)
}

func TestAdminGuards(t *testing.T) {
	a := setupApp(t)
	seller := a.register(t, "Sel", "seller@example.com")
	admin := a.register(t, "Ada", "admin@example.com")
	assert.True(t, admin.User.IsAdmin)

	status, _ := a.call(t, http.MethodGet, "/api/v1/admin/customers", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = a.call(t, http.MethodGet, "/api/v1/admin/customers", seller.Token, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, raw := a.call(t, http.MethodGet, "/api/v1/admin/customers", admin.Token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, decode[map[string]any](t, raw)["count"])
}

func TestSellerProductBecomesListed(t *testing.T) {
	a := setupApp(t)
	seller := a.register(t, "Sel", "seller@example.com")
	admin := a.register(t, "Ada", "admin@example.com")

	status, raw := a.call(t, http.MethodPost, "/api/v1/seller/products", seller.Token, productInput("Goat cheese"))
	require.Equal(t, http.StatusCreated, status, string(raw))
	created := decode[models.Product](t, raw)
	assert.Equal(t, models.VerificationPending, created.VerificationStatus)
	assert.Equal(t, seller.User.ID, created.CreatedByID)
	productPath := "/api/v1/products/" + created.ID

	status, raw = a.call(t, http.MethodGet, "/api/v1/products", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, decode[listing](t, raw).Count)
	status, _ = a.call(t, http.MethodGet, productPath, "", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = a.call(t, http.MethodPut, "/api/v1/admin/products/"+created.ID+"/verification", admin.Token,
		map[string]string{"status": "verified"})
	require.Equal(t, http.StatusOK, status)

	// Verified but the seller has no loyalty points yet.
	_, raw = a.call(t, http.MethodGet, "/api/v1/products", "", nil)
	assert.Equal(t, 0, decode[listing](t, raw).Count)

	status, raw = a.call(t, http.MethodPut, "/api/v1/admin/customers/points", admin.Token, map[string]any{
		"ids": []string{seller.User.ID}, "points": 5,
	})
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.EqualValues(t, 1, decode[map[string]any](t, raw)["updated"])

	_, raw = a.call(t, http.MethodGet, "/api/v1/products", "", nil)
	list := decode[listing](t, raw)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "Goat cheese", list.Products[0].ProductName)

	_, raw = a.call(t, http.MethodGet, "/api/v1/products?category=vegetables,clothing", "", nil)
	assert.Equal(t, 0, decode[listing](t, raw).Count)
	_, raw = a.call(t, http.MethodGet, "/api/v1/products?search=cheese&maxPrice=150&delivery=courier", "", nil)
	assert.Equal(t, 1, decode[listing](t, raw).Count)
	status, _ = a.call(t, http.MethodGet, "/api/v1/products?minPrice=cheap", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = a.call(t, http.MethodGet, "/api/v1/products?sort=sideways", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, raw = a.call(t, http.MethodGet, productPath, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 25, decode[map[string]any](t, raw)["discountPercent"])

	status, raw = a.call(t, http.MethodPost, productPath+"/ratings", admin.Token, map[string]any{"rating": 4, "comment": "Creamy"})
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.EqualValues(t, 4, decode[map[string]any](t, raw)["averageRating"])
	status, _ = a.call(t, http.MethodPost, productPath+"/ratings", admin.Token, map[string]any{"rating": 9})
	assert.Equal(t, http.StatusBadRequest, status)

	status, raw = a.call(t, http.MethodGet, "/api/v1/seller/products", seller.Token, nil)
	require.Equal(t, http.StatusOK, status)
	dashboard := decode[struct {
		Products []models.Product    `json:"products"`
		Stats    services.SellerStats `json:"stats"`
	}](t, raw)
	assert.Len(t, dashboard.Products, 1)
	assert.Equal(t, 1, dashboard.Stats.Total)
	assert.Equal(t, 0, dashboard.Stats.Pending)

	watchers := a.catalog.Eligible().Subscribers()
	status, raw = a.call(t, http.MethodGet, "/api/v1/products/stream?events=1", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), "event: products")
	assert.Contains(t, string(raw), "Goat cheese")
	assert.Eventually(t, func() bool { return a.catalog.Eligible().Subscribers() == watchers }, time.Second, 10*time.Millisecond,
		"a finished stream releases its listing")

	other := a.register(t, "Oth", "other@example.com")
	status, _ = a.call(t, http.MethodDelete, "/api/v1/seller/products/"+created.ID, other.Token, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = a.call(t, http.MethodDelete, "/api/v1/seller/products/"+created.ID, seller.Token, nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = a.call(t, http.MethodDelete, "/api/v1/seller/products/"+created.ID, seller.Token, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestStreamProducts_RejectedStreamHoldsNoListing(t *testing.T) {
	a := setupApp(t)
	watchers := a.catalog.Eligible().Subscribers()

	status, _ := a.call(t, http.MethodGet, "/api/v1/products/stream?minPrice=cheap", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, watchers, a.catalog.Eligible().Subscribers())

	status, raw := a.call(t, http.MethodGet, "/api/v1/products/stream?events=1&category=dairy", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), "event: products")
	assert.Eventually(t, func() bool { return a.catalog.Eligible().Subscribers() == watchers }, time.Second, 10*time.Millisecond)
}

func TestProductRequestsFlow(t *testing.T) {
	a := setupApp(t)
	buyer := a.register(t, "Buy", "buyer@example.com")
	admin := a.register(t, "Ada", "admin@example.com")

	status, raw := a.call(t, http.MethodPost, "/api/v1/requests", buyer.Token, map[string]string{"title": "Fresh goat milk"})
	require.Equal(t, http.StatusCreated, status, string(raw))
	req := decode[models.ProductRequest](t, raw)
	assert.False(t, req.Approved)
	assert.Equal(t, "general", req.Category)

	status, _ = a.call(t, http.MethodPost, "/api/v1/requests", "", map[string]string{"title": "Anonymous"})
	assert.Equal(t, http.StatusUnauthorized, status)

	_, raw = a.call(t, http.MethodGet, "/api/v1/requests", "", nil)
	assert.Empty(t, decode[[]models.ProductRequest](t, raw))
	_, raw = a.call(t, http.MethodGet, "/api/v1/requests/mine", buyer.Token, nil)
	assert.Len(t, decode[[]models.ProductRequest](t, raw), 1)

	status, raw = a.call(t, http.MethodPut, "/api/v1/admin/requests/"+req.ID+"/verification", admin.Token,
		map[string]bool{"approved": true})
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.True(t, decode[models.ProductRequest](t, raw).Approved)

	_, raw = a.call(t, http.MethodGet, "/api/v1/requests", "", nil)
	assert.Len(t, decode[[]models.ProductRequest](t, raw), 1)

	status, _ = a.call(t, http.MethodDelete, "/api/v1/requests/"+req.ID, buyer.Token, nil)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestAdminSamplesAndClear(t *testing.T) {
	a := setupApp(t)
	admin := a.register(t, "Ada", "admin@example.com")

	status, raw := a.call(t, http.MethodPost, "/api/v1/admin/products/samples", admin.Token, nil)
	require.Equal(t, http.StatusCreated, status, string(raw))
	assert.EqualValues(t, 25, decode[map[string]any](t, raw)["count"])

	_, raw = a.call(t, http.MethodGet, "/api/v1/admin/products", admin.Token, nil)
	assert.Equal(t, 25, decode[listing](t, raw).Count)
	_, raw = a.call(t, http.MethodGet, "/api/v1/products", "", nil)
	assert.Positive(t, decode[listing](t, raw).Count)

	status, raw = a.call(t, http.MethodDelete, "/api/v1/admin/products", admin.Token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 25, decode[map[string]any](t, raw)["count"])
	_, raw = a.call(t, http.MethodGet, "/api/v1/products", "", nil)
	assert.Equal(t, 0, decode[listing](t, raw).Count)
}
