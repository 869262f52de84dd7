package booking

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharemeal/sharemeal-go/internal/errs"
	"github.com/sharemeal/sharemeal-go/internal/events"
	"github.com/sharemeal/sharemeal-go/internal/store"
	"github.com/sharemeal/sharemeal-go/internal/store/memory"
)

// syncEmitter records events inline so tests can assert on them without
// racing a dispatch goroutine.
type syncEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (e *syncEmitter) Emit(ev events.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *syncEmitter) Close() error { return nil }

func (e *syncEmitter) ofType(t events.Type) []events.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []events.Event
	for _, ev := range e.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func newTestManager(t *testing.T) (*Manager, store.Store, *syncEmitter) {
	t.Helper()
	st, err := memory.NewDriver(&store.DriverConfig{Driver: "memory"})
	require.NoError(t, err)
	em := &syncEmitter{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(st, st, em, logger), st, em
}

func activeListing(t *testing.T, st store.Store, id, owner string) *store.FoodItem {
	t.Helper()
	item := &store.FoodItem{
		ID:             id,
		OwnerID:        owner,
		Title:          "Soup",
		Items:          []string{"soup"},
		QuantityValue:  2,
		QuantityUnit:   "servings",
		AvailableUntil: time.Now().Add(4 * time.Hour).Unix(),
		Status:         store.FoodStatusActive,
		CreatedAt:      time.Now().Unix(),
	}
	require.NoError(t, st.CreateFoodItem(context.Background(), item))
	return item
}

func TestCreateRequest(t *testing.T) {
	mgr, st, em := newTestManager(t)
	activeListing(t, st, "f1", "alice")

	req, err := mgr.Create(context.Background(), "bob", "f1", "can pick up tonight")
	require.NoError(t, err)
	assert.Equal(t, store.RequestStatusPending, req.Status)
	assert.Equal(t, "alice", req.OwnerID)
	assert.Equal(t, "can pick up tonight", req.Notes)

	created := em.ofType(events.TypeRequestCreated)
	require.Len(t, created, 1)
	assert.Equal(t, "alice", created[0].RecipientID)
	assert.Equal(t, req.ID, created[0].RequestID)
}

func TestCreateRequestOwnListing(t *testing.T) {
	mgr, st, _ := newTestManager(t)
	activeListing(t, st, "f1", "alice")

	_, err := mgr.Create(context.Background(), "alice", "f1", "")
	var de *errs.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, errs.KindValidation, de.Kind)
	assert.Equal(t, errs.ReasonOwnListing, de.Reason)
}

func TestCreateRequestClosedListing(t *testing.T) {
	mgr, st, _ := newTestManager(t)
	item := activeListing(t, st, "f1", "alice")

	closed := *item
	closed.Status = store.FoodStatusClosed
	require.NoError(t, st.UpdateFoodItem(context.Background(), &closed, item.Version))

	_, err := mgr.Create(context.Background(), "bob", "f1", "")
	var de *errs.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, errs.KindConflict, de.Kind)
	assert.Equal(t, errs.ReasonItemClosed, de.Reason)
}

func TestCreateRequestExpiredListing(t *testing.T) {
	mgr, st, _ := newTestManager(t)
	item := activeListing(t, st, "f1", "alice")

	lapsed := *item
	lapsed.AvailableUntil = time.Now().Add(-time.Minute).Unix()
	require.NoError(t, st.UpdateFoodItem(context.Background(), &lapsed, item.Version))

	_, err := mgr.Create(context.Background(), "bob", "f1", "")
	var de *errs.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, errs.KindValidation, de.Kind)
	assert.Equal(t, errs.ReasonListingExpired, de.Reason)
}

func TestCreateRequestDuplicatePending(t *testing.T) {
	mgr, st, _ := newTestManager(t)
	activeListing(t, st, "f1", "alice")

	_, err := mgr.Create(context.Background(), "bob", "f1", "")
	require.NoError(t, err)

	_, err = mgr.Create(context.Background(), "bob", "f1", "again")
	var de *errs.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, errs.ReasonDuplicateRequest, de.Reason)
}

func TestCreateRequestUnknownListing(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	_, err := mgr.Create(context.Background(), "bob", "missing", "")
	var de *errs.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, errs.KindNotFound, de.Kind)
}

func TestAccept(t *testing.T) {
	mgr, st, em := newTestManager(t)
	activeListing(t, st, "f1", "alice")

	winner, err := mgr.Create(context.Background(), "bob", "f1", "")
	require.NoError(t, err)
	loser, err := mgr.Create(context.Background(), "carol", "f1", "")
	require.NoError(t, err)

	accepted, err := mgr.Accept(context.Background(), "alice", winner.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RequestStatusAccepted, accepted.Status)
	assert.NotZero(t, accepted.DecidedAt)

	// Listing is closed, the competing request auto-rejected.
	item, err := st.GetFoodItem(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, store.FoodStatusClosed, item.Status)

	rejected, err := st.GetRequest(context.Background(), loser.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RequestStatusRejected, rejected.Status)
	assert.Equal(t, DecisionItemClosed, rejected.DecisionReason)

	acceptedEvents := em.ofType(events.TypeRequestAccepted)
	require.Len(t, acceptedEvents, 1)
	assert.Equal(t, "bob", acceptedEvents[0].RecipientID)

	rejectedEvents := em.ofType(events.TypeRequestRejected)
	require.Len(t, rejectedEvents, 1)
	assert.Equal(t, "carol", rejectedEvents[0].RecipientID)
	assert.Equal(t, DecisionItemClosed, rejectedEvents[0].Reason)
}

func TestAcceptNotOwner(t *testing.T) {
	mgr, st, _ := newTestManager(t)
	activeListing(t, st, "f1", "alice")
	req, err := mgr.Create(context.Background(), "bob", "f1", "")
	require.NoError(t, err)

	_, err = mgr.Accept(context.Background(), "bob", req.ID)
	var de *errs.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, errs.KindAuthorization, de.Kind)
	assert.Equal(t, errs.ReasonNotOwner, de.Reason)
}

func TestAcceptAlreadyDecided(t *testing.T) {
	mgr, st, _ := newTestManager(t)
	activeListing(t, st, "f1", "alice")
	req, err := mgr.Create(context.Background(), "bob", "f1", "")
	require.NoError(t, err)

	_, err = mgr.Accept(context.Background(), "alice", req.ID)
	require.NoError(t, err)

	_, err = mgr.Accept(context.Background(), "alice", req.ID)
	var de *errs.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, errs.ReasonAlreadyDecided, de.Reason)
}

func TestAcceptSecondRequestAfterClose(t *testing.T) {
	mgr, st, _ := newTestManager(t)
	activeListing(t, st, "f1", "alice")

	first, err := mgr.Create(context.Background(), "bob", "f1", "")
	require.NoError(t, err)
	second, err := mgr.Create(context.Background(), "carol", "f1", "")
	require.NoError(t, err)

	_, err = mgr.Accept(context.Background(), "alice", first.ID)
	require.NoError(t, err)

	// The second request was cascade-rejected; accepting it now reports
	// the decision, not the closed listing.
	_, err = mgr.Accept(context.Background(), "alice", second.ID)
	var de *errs.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, errs.ReasonAlreadyDecided, de.Reason)
}

func TestConcurrentAcceptSingleWinner(t *testing.T) {
	mgr, st, _ := newTestManager(t)
	activeListing(t, st, "f1", "alice")

	var ids []string
	for _, requester := range []string{"bob", "carol", "dave", "erin"} {
		req, err := mgr.Create(context.Background(), requester, "f1", "")
		require.NoError(t, err)
		ids = append(ids, req.ID)
	}

	var wg sync.WaitGroup
	errsCh := make(chan error, len(ids))
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := mgr.Accept(context.Background(), "alice", id)
			errsCh <- err
		}(id)
	}
	wg.Wait()
	close(errsCh)

	var wins, losses int
	for err := range errsCh {
		if err == nil {
			wins++
		} else {
			losses++
		}
	}
	assert.Equal(t, 1, wins, "exactly one acceptance must win")
	assert.Equal(t, len(ids)-1, losses)

	accepted := 0
	for _, id := range ids {
		req, err := st.GetRequest(context.Background(), id)
		require.NoError(t, err)
		if req.Status == store.RequestStatusAccepted {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted)
}

// requestRaceStore lets a test interleave a competing write between the
// listing read and the request decision inside Accept.
type requestRaceStore struct {
	store.Store
	once sync.Once
	hook func()
}

func (s *requestRaceStore) GetFoodItem(ctx context.Context, id string) (*store.FoodItem, error) {
	item, err := s.Store.GetFoodItem(ctx, id)
	s.once.Do(s.hook)
	return item, err
}

func TestAcceptLosesRequestToConcurrentReject(t *testing.T) {
	raw, err := memory.NewDriver(&store.DriverConfig{Driver: "memory"})
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	rejector := NewManager(raw, raw, &syncEmitter{}, logger)
	activeListing(t, raw, "f1", "alice")
	req, err := rejector.Create(context.Background(), "bob", "f1", "")
	require.NoError(t, err)

	// Another instance rejects the request while the acceptance is
	// between its listing read and the request write.
	wrapped := &requestRaceStore{Store: raw}
	wrapped.hook = func() {
		_, err := rejector.Reject(context.Background(), "alice", req.ID, "")
		require.NoError(t, err)
	}
	em := &syncEmitter{}
	accepter := NewManager(wrapped, wrapped, em, logger)

	_, err = accepter.Accept(context.Background(), "alice", req.ID)
	var de *errs.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, errs.ReasonAlreadyDecided, de.Reason)

	// The rejection owns the request and the listing reopens: a closed
	// listing never points at zero accepted requests.
	got, err := raw.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RequestStatusRejected, got.Status)
	assert.Equal(t, DecisionOwnerRejected, got.DecisionReason)

	item, err := raw.GetFoodItem(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, store.FoodStatusActive, item.Status)
	assert.Empty(t, em.ofType(events.TypeRequestAccepted))
}

func TestReject(t *testing.T) {
	mgr, st, em := newTestManager(t)
	activeListing(t, st, "f1", "alice")
	req, err := mgr.Create(context.Background(), "bob", "f1", "")
	require.NoError(t, err)

	rejected, err := mgr.Reject(context.Background(), "alice", req.ID, "")
	require.NoError(t, err)
	assert.Equal(t, store.RequestStatusRejected, rejected.Status)
	assert.Equal(t, DecisionOwnerRejected, rejected.DecisionReason)

	// Terminal states never move again; a repeated reject is a conflict
	// and leaves the request untouched.
	_, err = mgr.Reject(context.Background(), "alice", req.ID, "")
	var de *errs.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, errs.ReasonAlreadyDecided, de.Reason)
	again, err := st.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RequestStatusRejected, again.Status)
	assert.Equal(t, DecisionOwnerRejected, again.DecisionReason)
	assert.Len(t, em.ofType(events.TypeRequestRejected), 1)

	// The listing stays open for other requesters.
	item, err := st.GetFoodItem(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, store.FoodStatusActive, item.Status)
}

func TestRejectAccepted(t *testing.T) {
	mgr, st, _ := newTestManager(t)
	activeListing(t, st, "f1", "alice")
	req, err := mgr.Create(context.Background(), "bob", "f1", "")
	require.NoError(t, err)
	_, err = mgr.Accept(context.Background(), "alice", req.ID)
	require.NoError(t, err)

	_, err = mgr.Reject(context.Background(), "alice", req.ID, "")
	var de *errs.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, errs.ReasonAlreadyDecided, de.Reason)
}

func TestCancel(t *testing.T) {
	mgr, st, em := newTestManager(t)
	activeListing(t, st, "f1", "alice")
	req, err := mgr.Create(context.Background(), "bob", "f1", "")
	require.NoError(t, err)

	cancelled, err := mgr.Cancel(context.Background(), "bob", req.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RequestStatusCancelled, cancelled.Status)
	assert.Equal(t, DecisionRequesterCancelled, cancelled.DecisionReason)

	// A second cancel hits a terminal request and is a conflict.
	_, err = mgr.Cancel(context.Background(), "bob", req.ID)
	var de *errs.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, errs.ReasonAlreadyDecided, de.Reason)
	assert.Len(t, em.ofType(events.TypeRequestCancelled), 1)
}

func TestCancelByOwner(t *testing.T) {
	mgr, st, _ := newTestManager(t)
	activeListing(t, st, "f1", "alice")
	req, err := mgr.Create(context.Background(), "bob", "f1", "")
	require.NoError(t, err)

	_, err = mgr.Cancel(context.Background(), "alice", req.ID)
	var de *errs.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, errs.ReasonNotRequester, de.Reason)
}

func TestCancelAccepted(t *testing.T) {
	mgr, st, _ := newTestManager(t)
	activeListing(t, st, "f1", "alice")
	req, err := mgr.Create(context.Background(), "bob", "f1", "")
	require.NoError(t, err)
	_, err = mgr.Accept(context.Background(), "alice", req.ID)
	require.NoError(t, err)

	_, err = mgr.Cancel(context.Background(), "bob", req.ID)
	var de *errs.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, errs.ReasonAlreadyDecided, de.Reason)
}

func TestGetHiddenFromThirdParties(t *testing.T) {
	mgr, st, _ := newTestManager(t)
	activeListing(t, st, "f1", "alice")
	req, err := mgr.Create(context.Background(), "bob", "f1", "")
	require.NoError(t, err)

	_, err = mgr.Get(context.Background(), "mallory", req.ID)
	var de *errs.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, errs.KindNotFound, de.Kind)

	_, err = mgr.Get(context.Background(), "alice", req.ID)
	assert.NoError(t, err)
	_, err = mgr.Get(context.Background(), "bob", req.ID)
	assert.NoError(t, err)
}
