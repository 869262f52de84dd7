package food

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharemeal/sharemeal-go/internal/errs"
	"github.com/sharemeal/sharemeal-go/internal/store"
	"github.com/sharemeal/sharemeal-go/internal/store/memory"
)

func newTestService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	st, err := memory.NewDriver(&store.DriverConfig{Driver: "memory"})
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(st, st, logger), st
}

func validInput() *ListingInput {
	return &ListingInput{
		Title:          "Leftover lasagna",
		Items:          []string{"lasagna"},
		QuantityValue:  4,
		QuantityUnit:   UnitServings,
		PickupLat:      52.37,
		PickupLng:      4.89,
		PickupAddress:  "Dam Square, Amsterdam",
		AvailableUntil: time.Now().Add(6 * time.Hour),
	}
}

func TestCreateListing(t *testing.T) {
	svc, _ := newTestService(t)

	item, err := svc.Create(context.Background(), "alice", validInput())
	require.NoError(t, err)
	assert.Equal(t, store.FoodStatusActive, item.Status)
	assert.Equal(t, int64(0), item.Version)
	assert.Equal(t, "alice", item.OwnerID)
	assert.NotEmpty(t, item.ID)
}

func TestCreateListingValidation(t *testing.T) {
	svc, _ := newTestService(t)

	cases := []struct {
		name   string
		mutate func(*ListingInput)
	}{
		{"empty title", func(in *ListingInput) { in.Title = "  " }},
		{"no items", func(in *ListingInput) { in.Items = nil }},
		{"blank item entry", func(in *ListingInput) { in.Items = []string{"soup", " "} }},
		{"zero quantity", func(in *ListingInput) { in.QuantityValue = 0 }},
		{"negative quantity", func(in *ListingInput) { in.QuantityValue = -1 }},
		{"bad unit", func(in *ListingInput) { in.QuantityUnit = "boxes" }},
		{"lat out of range", func(in *ListingInput) { in.PickupLat = 91 }},
		{"lng out of range", func(in *ListingInput) { in.PickupLng = -181 }},
		{"past window", func(in *ListingInput) { in.AvailableUntil = time.Now().Add(-time.Minute) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(in)
			_, err := svc.Create(context.Background(), "alice", in)
			var de *errs.Error
			require.ErrorAs(t, err, &de)
			assert.Equal(t, errs.KindValidation, de.Kind)
		})
	}
}

func TestUpdateListing(t *testing.T) {
	svc, _ := newTestService(t)
	item, err := svc.Create(context.Background(), "alice", validInput())
	require.NoError(t, err)

	in := validInput()
	in.Title = "Lasagna, half left"
	updated, err := svc.Update(context.Background(), "alice", item.ID, in, item.Version)
	require.NoError(t, err)
	assert.Equal(t, "Lasagna, half left", updated.Title)
	assert.Equal(t, item.Version+1, updated.Version)
}

func TestUpdateListingNotOwner(t *testing.T) {
	svc, _ := newTestService(t)
	item, err := svc.Create(context.Background(), "alice", validInput())
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), "mallory", item.ID, validInput(), item.Version)
	var de *errs.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, errs.KindAuthorization, de.Kind)
	assert.Equal(t, errs.ReasonNotOwner, de.Reason)
}

func TestUpdateListingStaleVersion(t *testing.T) {
	svc, _ := newTestService(t)
	item, err := svc.Create(context.Background(), "alice", validInput())
	require.NoError(t, err)

	// First edit wins and bumps the version.
	_, err = svc.Update(context.Background(), "alice", item.ID, validInput(), item.Version)
	require.NoError(t, err)

	// Second edit still carries the old version and must lose.
	_, err = svc.Update(context.Background(), "alice", item.ID, validInput(), item.Version)
	var de *errs.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, errs.KindConflict, de.Kind)
	assert.Equal(t, errs.ReasonVersionConflict, de.Reason)
}

func TestUpdateListingAfterClose(t *testing.T) {
	svc, st := newTestService(t)
	item, err := svc.Create(context.Background(), "alice", validInput())
	require.NoError(t, err)

	closed := *item
	closed.Status = store.FoodStatusClosed
	require.NoError(t, st.UpdateFoodItem(context.Background(), &closed, item.Version))

	_, err = svc.Update(context.Background(), "alice", item.ID, validInput(), item.Version)
	var de *errs.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, errs.ReasonItemClosed, de.Reason)
}

func TestDeleteListing(t *testing.T) {
	svc, st := newTestService(t)
	item, err := svc.Create(context.Background(), "alice", validInput())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), "alice", item.ID))

	stored, err := st.GetFoodItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, store.FoodStatusDeleted, stored.Status)

	// Idempotent for the owner, invisible to everyone else.
	require.NoError(t, svc.Delete(context.Background(), "alice", item.ID))
	_, err = svc.Get(context.Background(), "bob", item.ID)
	var de *errs.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, errs.KindNotFound, de.Kind)
}

func TestDeleteListingWithAcceptedRequest(t *testing.T) {
	svc, st := newTestService(t)
	item, err := svc.Create(context.Background(), "alice", validInput())
	require.NoError(t, err)

	require.NoError(t, st.CreateRequest(context.Background(), &store.FoodRequest{
		ID: "r1", FoodID: item.ID, RequesterID: "bob", OwnerID: "alice",
		Status: store.RequestStatusAccepted,
	}))

	err = svc.Delete(context.Background(), "alice", item.ID)
	var de *errs.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, errs.KindConflict, de.Kind)
	assert.Equal(t, errs.ReasonAcceptedRequestExists, de.Reason)
}

func TestDeleteListingNotOwner(t *testing.T) {
	svc, _ := newTestService(t)
	item, err := svc.Create(context.Background(), "alice", validInput())
	require.NoError(t, err)

	err = svc.Delete(context.Background(), "bob", item.ID)
	var de *errs.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, errs.ReasonNotOwner, de.Reason)
}

func TestEffectiveStatus(t *testing.T) {
	now := time.Now()
	active := &store.FoodItem{Status: store.FoodStatusActive, AvailableUntil: now.Add(time.Hour).Unix()}
	assert.Equal(t, store.FoodStatusActive, EffectiveStatus(active, now))

	lapsed := &store.FoodItem{Status: store.FoodStatusActive, AvailableUntil: now.Add(-time.Hour).Unix()}
	assert.Equal(t, StatusExpired, EffectiveStatus(lapsed, now))

	// Closed and deleted listings never report expired.
	closed := &store.FoodItem{Status: store.FoodStatusClosed, AvailableUntil: now.Add(-time.Hour).Unix()}
	assert.Equal(t, store.FoodStatusClosed, EffectiveStatus(closed, now))
}
