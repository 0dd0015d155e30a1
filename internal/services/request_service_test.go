package services_test

import (
	"context"
	"testing"

	"c2cmarket/internal/repositories"
	"c2cmarket/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequestService() (*services.RequestService, *MockPublisher) {
	pub := newPublisher()
	return services.NewRequestService(repositories.NewMockDocumentRepository(), testNormalizer(), pub), pub
}

func TestRequestService_CreateRequest(t *testing.T) {
	svc, pub := newRequestService()
	ctx := context.Background()

	r, err := svc.CreateRequest(ctx, buyer, services.RequestInput{Title: "Fresh goat milk", Description: "Two litres a day"})
	require.NoError(t, err)
	assert.False(t, r.Approved, "requests start unapproved")
	assert.Equal(t, "general", r.Category)
	assert.Equal(t, "buyer-1", r.RequesterID)
	assert.Equal(t, "Bea Buyer", r.RequesterName)
	assert.Equal(t, "buyer@example.com", r.RequesterEmail)
	assert.Equal(t, []string{"request.created"}, pub.routingKeys())

	_, err = svc.CreateRequest(ctx, nil, services.RequestInput{Title: "Anything"})
	assert.ErrorIs(t, err, services.ErrNotSignedIn)
	_, err = svc.CreateRequest(ctx, buyer, services.RequestInput{Title: "no"})
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestRequestService_Visibility(t *testing.T) {
	svc, _ := newRequestService()
	ctx := context.Background()

	mine, err := svc.CreateRequest(ctx, buyer, services.RequestInput{Title: "Fresh goat milk"})
	require.NoError(t, err)
	theirs, err := svc.CreateRequest(ctx, seller, services.RequestInput{Title: "Bamboo baskets", Category: "homemade"})
	require.NoError(t, err)

	approved, err := svc.GetApprovedRequests(ctx)
	require.NoError(t, err)
	assert.Empty(t, approved)

	_, err = svc.VerifyRequest(ctx, admin, theirs.ID, true)
	require.NoError(t, err)

	approved, err = svc.GetApprovedRequests(ctx)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, theirs.ID, approved[0].ID)
	assert.Equal(t, "Ada Admin", approved[0].VerifiedBy)

	own, err := svc.GetRequestsByUser(ctx, buyer)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, mine.ID, own[0].ID)

	_, err = svc.GetAllRequests(ctx, buyer)
	assert.ErrorIs(t, err, services.ErrForbidden)
	all, err := svc.GetAllRequests(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRequestService_UpdateAndDelete(t *testing.T) {
	svc, _ := newRequestService()
	ctx := context.Background()
	r, err := svc.CreateRequest(ctx, buyer, services.RequestInput{Title: "Fresh goat milk"})
	require.NoError(t, err)
	_, err = svc.VerifyRequest(ctx, admin, r.ID, true)
	require.NoError(t, err)

	_, err = svc.UpdateRequest(ctx, seller, r.ID, services.RequestInput{Title: "Hijacked"})
	assert.ErrorIs(t, err, services.ErrForbidden)

	updated, err := svc.UpdateRequest(ctx, buyer, r.ID, services.RequestInput{Title: "Fresh goat milk, daily", Category: "dairy"})
	require.NoError(t, err)
	assert.True(t, updated.Approved, "editing keeps the approval")
	assert.Equal(t, "dairy", updated.Category)

	_, err = svc.UpdateRequest(ctx, buyer, "missing", services.RequestInput{Title: "Whatever"})
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	assert.ErrorIs(t, svc.DeleteRequest(ctx, seller, r.ID), services.ErrForbidden)
	require.NoError(t, svc.DeleteRequest(ctx, admin, r.ID))
	got, err := svc.GetRequestByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRequestService_VerifyRequest(t *testing.T) {
	svc, pub := newRequestService()
	ctx := context.Background()
	r, err := svc.CreateRequest(ctx, buyer, services.RequestInput{Title: "Fresh goat milk"})
	require.NoError(t, err)

	_, err = svc.VerifyRequest(ctx, buyer, r.ID, true)
	assert.ErrorIs(t, err, services.ErrForbidden)

	_, err = svc.VerifyRequest(ctx, admin, r.ID, true)
	require.NoError(t, err)
	revoked, err := svc.VerifyRequest(ctx, admin, r.ID, false)
	require.NoError(t, err)
	assert.False(t, revoked.Approved)
	assert.Empty(t, revoked.VerifiedBy)

	stored, err := svc.GetRequestByID(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, stored.Approved)
	assert.Equal(t, "Fresh goat milk", stored.Title)
	assert.Contains(t, pub.routingKeys(), "request.verified")

	_, err = svc.VerifyRequest(ctx, admin, "missing", true)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestRequestService_SamplesAndClear(t *testing.T) {
	svc, _ := newRequestService()
	ctx := context.Background()

	n, err := svc.LoadSampleRequests(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	approved, err := svc.GetApprovedRequests(ctx)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, "req-sample-1", approved[0].ID)

	cleared, err := svc.ClearRequests(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cleared)
	all, err := svc.GetAllRequests(ctx, admin)
	require.NoError(t, err)
	assert.Empty(t, all)
}
