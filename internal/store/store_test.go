package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sharemeal/sharemeal-go/internal/store"
	_ "github.com/sharemeal/sharemeal-go/internal/store/memory"
	_ "github.com/sharemeal/sharemeal-go/internal/store/sqlite"
)

func testUser(id, email string) *store.User {
	return &store.User{
		ID:           id,
		Email:        email,
		DisplayName:  "Test User",
		Phone:        "+31600000000",
		PasswordHash: "$2a$04$notarealhash",
		CreatedAt:    time.Now().Unix(),
		UpdatedAt:    time.Now().Unix(),
	}
}

func testFoodItem(id, owner string) *store.FoodItem {
	return &store.FoodItem{
		ID:             id,
		OwnerID:        owner,
		Title:          "Leftover soup",
		Items:          []string{"soup", "bread"},
		QuantityValue:  2,
		QuantityUnit:   "servings",
		PickupLat:      52.37,
		PickupLng:      4.89,
		PickupAddress:  "Dam Square",
		AvailableUntil: time.Now().Add(4 * time.Hour).Unix(),
		Status:         store.FoodStatusActive,
		CreatedAt:      time.Now().Unix(),
		UpdatedAt:      time.Now().Unix(),
	}
}

func testRequest(id, foodID, requester, owner string) *store.FoodRequest {
	return &store.FoodRequest{
		ID:          id,
		FoodID:      foodID,
		RequesterID: requester,
		OwnerID:     owner,
		Status:      store.RequestStatusPending,
		Notes:       "tonight works",
		CreatedAt:   time.Now().Unix(),
	}
}

// runDriverTests runs the standard test suite against a driver.
func runDriverTests(t *testing.T, driverName string, cfg *store.DriverConfig) {
	ctx := context.Background()

	driver, err := store.New(cfg)
	if err != nil {
		t.Fatalf("failed to create %s driver: %v", driverName, err)
	}
	defer driver.Close()

	if err := driver.Init(ctx); err != nil {
		t.Fatalf("failed to init %s driver: %v", driverName, err)
	}

	if driver.Name() != driverName {
		t.Errorf("expected driver name %q, got %q", driverName, driver.Name())
	}

	t.Run("UserCRUD", func(t *testing.T) {
		testUserCRUD(t, ctx, driver)
	})

	t.Run("FoodItemCRUD", func(t *testing.T) {
		testFoodItemCRUD(t, ctx, driver)
	})

	t.Run("ConditionalWrite", func(t *testing.T) {
		testConditionalWrite(t, ctx, driver)
	})

	t.Run("RequestQueries", func(t *testing.T) {
		testRequestQueries(t, ctx, driver)
	})
}

func testUserCRUD(t *testing.T, ctx context.Context, s store.Store) {
	user := testUser("u1", "alice@example.com")

	if err := s.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	// Duplicate email must be rejected
	dup := testUser("u2", "alice@example.com")
	if err := s.CreateUser(ctx, dup); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists for duplicate email, got %v", err)
	}

	got, err := s.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got.Email != "alice@example.com" {
		t.Errorf("expected email alice@example.com, got %q", got.Email)
	}

	got, err = s.GetUserByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if got.ID != "u1" {
		t.Errorf("expected id u1, got %q", got.ID)
	}

	got.FCMToken = "device-token"
	if err := s.UpdateUser(ctx, got); err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}
	got, _ = s.GetUser(ctx, "u1")
	if got.FCMToken != "device-token" {
		t.Errorf("expected updated fcm token, got %q", got.FCMToken)
	}

	if _, err := s.GetUser(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func testFoodItemCRUD(t *testing.T, ctx context.Context, s store.Store) {
	item := testFoodItem("f1", "u1")

	if err := s.CreateFoodItem(ctx, item); err != nil {
		t.Fatalf("CreateFoodItem failed: %v", err)
	}

	got, err := s.GetFoodItem(ctx, "f1")
	if err != nil {
		t.Fatalf("GetFoodItem failed: %v", err)
	}
	if len(got.Items) != 2 || got.Items[0] != "soup" {
		t.Errorf("items not round-tripped: %v", got.Items)
	}
	if got.Version != 0 {
		t.Errorf("expected version 0, got %d", got.Version)
	}

	items, err := s.ListFoodItems(ctx)
	if err != nil {
		t.Fatalf("ListFoodItems failed: %v", err)
	}
	if len(items) == 0 {
		t.Error("expected at least one listing")
	}

	byOwner, err := s.ListFoodItemsByOwner(ctx, "u1")
	if err != nil {
		t.Fatalf("ListFoodItemsByOwner failed: %v", err)
	}
	if len(byOwner) != 1 {
		t.Errorf("expected 1 listing for u1, got %d", len(byOwner))
	}

	if _, err := s.GetFoodItem(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func testConditionalWrite(t *testing.T, ctx context.Context, s store.Store) {
	item := testFoodItem("cas1", "u1")
	if err := s.CreateFoodItem(ctx, item); err != nil {
		t.Fatalf("CreateFoodItem failed: %v", err)
	}

	// Write with matching version succeeds and bumps the version.
	next := *item
	next.Title = "updated"
	if err := s.UpdateFoodItem(ctx, &next, 0); err != nil {
		t.Fatalf("UpdateFoodItem failed: %v", err)
	}
	if next.Version != 1 {
		t.Errorf("expected version 1 after update, got %d", next.Version)
	}

	// Write with a stale version must fail without touching the row.
	stale := *item
	stale.Title = "stale write"
	if err := s.UpdateFoodItem(ctx, &stale, 0); !errors.Is(err, store.ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict, got %v", err)
	}
	got, _ := s.GetFoodItem(ctx, "cas1")
	if got.Title != "updated" {
		t.Errorf("stale write modified the row: %q", got.Title)
	}

	// Unknown id reports not found, not a version conflict.
	ghost := testFoodItem("ghost", "u1")
	if err := s.UpdateFoodItem(ctx, ghost, 0); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// Concurrent writers on the same version: exactly one wins.
	racer := testFoodItem("cas2", "u1")
	if err := s.CreateFoodItem(ctx, racer); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cp := *racer
			cp.Status = store.FoodStatusClosed
			results <- s.UpdateFoodItem(ctx, &cp, 0)
		}()
	}
	wg.Wait()
	close(results)

	var wins int
	for err := range results {
		if err == nil {
			wins++
		} else if !errors.Is(err, store.ErrVersionConflict) {
			t.Errorf("unexpected error from racing write: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly 1 winning write, got %d", wins)
	}
}

func testRequestQueries(t *testing.T, ctx context.Context, s store.Store) {
	if err := s.CreateRequest(ctx, testRequest("r1", "f1", "bob", "alice")); err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}
	if err := s.CreateRequest(ctx, testRequest("r2", "f1", "carol", "alice")); err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}
	if err := s.CreateRequest(ctx, testRequest("r3", "f2", "bob", "dave")); err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}

	got, err := s.GetRequest(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRequest failed: %v", err)
	}
	if got.RequesterID != "bob" {
		t.Errorf("expected requester bob, got %q", got.RequesterID)
	}

	got.Status = store.RequestStatusAccepted
	got.DecidedAt = time.Now().Unix()
	if err := s.DecideRequest(ctx, got); err != nil {
		t.Fatalf("DecideRequest failed: %v", err)
	}
	got, _ = s.GetRequest(ctx, "r1")
	if got.Status != store.RequestStatusAccepted {
		t.Errorf("expected accepted, got %q", got.Status)
	}

	// A second decision on a terminal request loses the conditional
	// write and leaves the row untouched.
	late := *got
	late.Status = store.RequestStatusRejected
	late.DecisionReason = "owner_rejected"
	if err := s.DecideRequest(ctx, &late); !errors.Is(err, store.ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict for decided request, got %v", err)
	}
	got, _ = s.GetRequest(ctx, "r1")
	if got.Status != store.RequestStatusAccepted || got.DecisionReason != "" {
		t.Errorf("lost decision modified the row: %q %q", got.Status, got.DecisionReason)
	}

	// Unknown id reports not found, not a lost race.
	ghost := testRequest("ghost", "f9", "bob", "alice")
	ghost.Status = store.RequestStatusCancelled
	if err := s.DecideRequest(ctx, ghost); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// Concurrent deciders on the same pending request: exactly one wins.
	if err := s.CreateRequest(ctx, testRequest("race1", "f3", "bob", "alice")); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		status := store.RequestStatusRejected
		if i%2 == 0 {
			status = store.RequestStatusAccepted
		}
		go func(status string) {
			defer wg.Done()
			cp := testRequest("race1", "f3", "bob", "alice")
			cp.Status = status
			cp.DecidedAt = time.Now().Unix()
			results <- s.DecideRequest(ctx, cp)
		}(status)
	}
	wg.Wait()
	close(results)

	var wins int
	for err := range results {
		if err == nil {
			wins++
		} else if !errors.Is(err, store.ErrVersionConflict) {
			t.Errorf("unexpected error from racing decision: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly 1 winning decision, got %d", wins)
	}

	byFood, err := s.ListRequestsByFood(ctx, "f1")
	if err != nil {
		t.Fatalf("ListRequestsByFood failed: %v", err)
	}
	if len(byFood) != 2 {
		t.Errorf("expected 2 requests for f1, got %d", len(byFood))
	}

	// bob appears as requester on r1 and r3; alice as owner on r1 and r2.
	byBob, err := s.ListRequestsByParty(ctx, "bob")
	if err != nil {
		t.Fatalf("ListRequestsByParty failed: %v", err)
	}
	if len(byBob) != 2 {
		t.Errorf("expected 2 requests for bob, got %d", len(byBob))
	}
	byAlice, _ := s.ListRequestsByParty(ctx, "alice")
	if len(byAlice) != 2 {
		t.Errorf("expected 2 requests for alice, got %d", len(byAlice))
	}
}

func TestMemoryDriver(t *testing.T) {
	runDriverTests(t, "memory", &store.DriverConfig{Driver: "memory"})
}

func TestSQLiteDriver(t *testing.T) {
	tempDir := t.TempDir()

	runDriverTests(t, "sqlite", &store.DriverConfig{
		Driver:  "sqlite",
		DataDir: tempDir,
	})

	// Verify database file was created
	if _, err := os.Stat(filepath.Join(tempDir, "sharemeal.db")); os.IsNotExist(err) {
		t.Error("sharemeal.db not created")
	}
}

func TestSQLiteDriverSurvivesRestart(t *testing.T) {
	tempDir := t.TempDir()
	ctx := context.Background()
	cfg := &store.DriverConfig{
		Driver:  "sqlite",
		DataDir: tempDir,
	}

	driver, err := store.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := driver.Init(ctx); err != nil {
		t.Fatal(err)
	}

	item := testFoodItem("persist1", "u1")
	if err := driver.CreateFoodItem(ctx, item); err != nil {
		t.Fatal(err)
	}
	driver.Close()

	// Reload driver - data should survive
	driver2, err := store.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := driver2.Init(ctx); err != nil {
		t.Fatal(err)
	}
	defer driver2.Close()

	got, err := driver2.GetFoodItem(ctx, "persist1")
	if err != nil {
		t.Fatalf("listing not found after restart: %v", err)
	}
	if got.Title != item.Title {
		t.Errorf("data corruption: expected %q, got %q", item.Title, got.Title)
	}
}

func TestMemoryDriverClosed(t *testing.T) {
	ctx := context.Background()
	driver, err := store.New(&store.DriverConfig{Driver: "memory"})
	if err != nil {
		t.Fatal(err)
	}
	if err := driver.Init(ctx); err != nil {
		t.Fatal(err)
	}
	driver.Close()

	if err := driver.CreateUser(ctx, testUser("u1", "a@b.com")); !errors.Is(err, store.ErrClosed) {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}
}

func TestDriverRegistry(t *testing.T) {
	drivers := store.AvailableDrivers()

	expected := map[string]bool{"memory": true, "sqlite": true}
	for _, d := range drivers {
		if !expected[d] {
			t.Logf("unexpected driver registered: %s", d)
		}
		delete(expected, d)
	}

	for d := range expected {
		t.Errorf("expected driver %q not registered", d)
	}
}

func TestUnknownDriver(t *testing.T) {
	_, err := store.New(&store.DriverConfig{Driver: "bogus"})
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
