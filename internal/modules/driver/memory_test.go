package driver

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"rideflow/internal/types"
)

func seedIndex(t *testing.T) *MemoryIndex {
	t.Helper()
	idx := NewMemoryIndex()
	ctx := context.Background()

	// Drivers fan out from the Rajwada pickup point; d_far is well outside
	// any sane radius, d_offline and d_claimed must never be returned.
	drivers := []Snapshot{
		{DriverID: "d_close", Position: types.Point{Lat: 22.7180, Lng: 75.8550}, Rating: 4.2, Online: true},
		{DriverID: "d_mid", Position: types.Point{Lat: 22.7300, Lng: 75.8700}, Rating: 4.9, Online: true},
		{DriverID: "d_far", Position: types.Point{Lat: 23.2500, Lng: 77.4100}, Rating: 5.0, Online: true},
		{DriverID: "d_offline", Position: types.Point{Lat: 22.7185, Lng: 75.8552}, Rating: 4.8, Online: false},
	}
	for _, d := range drivers {
		if err := idx.Upsert(ctx, d); err != nil {
			t.Fatalf("upsert %s: %v", d.DriverID, err)
		}
	}
	return idx
}

var pickup = types.Point{Lat: 22.7177, Lng: 75.8545}

func TestQueryNearby_FiltersAndOrders(t *testing.T) {
	idx := seedIndex(t)
	ctx := context.Background()

	got, err := idx.QueryNearby(ctx, pickup, 5.0, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %v", len(got), got)
	}
	if got[0].DriverID != "d_close" || got[1].DriverID != "d_mid" {
		t.Errorf("unexpected order: %v", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i].DistanceKm < got[i-1].DistanceKm {
			t.Errorf("candidates not sorted by distance: %v", got)
		}
	}
}

func TestQueryNearby_RatingTieBreak(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	// Identical positions force the tie-break.
	pos := types.Point{Lat: 22.7200, Lng: 75.8600}
	_ = idx.Upsert(ctx, Snapshot{DriverID: "low", Position: pos, Rating: 3.9, Online: true})
	_ = idx.Upsert(ctx, Snapshot{DriverID: "high", Position: pos, Rating: 4.9, Online: true})

	got, err := idx.QueryNearby(ctx, pickup, 5.0, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 || got[0].DriverID != "high" {
		t.Errorf("expected higher-rated driver first, got %v", got)
	}
}

func TestQueryNearby_ExcludesRejected(t *testing.T) {
	idx := seedIndex(t)
	ctx := context.Background()

	exclude := map[types.ID]struct{}{"d_close": {}}
	got, err := idx.QueryNearby(ctx, pickup, 5.0, exclude)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	for _, c := range got {
		if c.DriverID == "d_close" {
			t.Fatal("excluded driver returned")
		}
	}
}

func TestQueryNearby_SkipsClaimed(t *testing.T) {
	idx := seedIndex(t)
	ctx := context.Background()

	ok, err := idx.Claim(ctx, "d_close", "req1")
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	got, err := idx.QueryNearby(ctx, pickup, 5.0, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	for _, c := range got {
		if c.DriverID == "d_close" {
			t.Fatal("claimed driver returned")
		}
	}
}

func TestClaim_CompareAndSwap(t *testing.T) {
	idx := seedIndex(t)
	ctx := context.Background()

	ok, err := idx.Claim(ctx, "d_close", "req1")
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	ok, err = idx.Claim(ctx, "d_close", "req2")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if ok {
		t.Fatal("second claim must fail while first is held")
	}

	// Release by the wrong request is a no-op.
	if err := idx.Release(ctx, "d_close", "req2"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ = idx.Claim(ctx, "d_close", "req3"); ok {
		t.Fatal("claim must still be held after foreign release")
	}

	if err := idx.Release(ctx, "d_close", "req1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ = idx.Claim(ctx, "d_close", "req3"); !ok {
		t.Fatal("claim must succeed after owner release")
	}
}

func TestClaim_OfflineDriver(t *testing.T) {
	idx := seedIndex(t)
	if ok, _ := idx.Claim(context.Background(), "d_offline", "req1"); ok {
		t.Fatal("claiming an offline driver must fail")
	}
}

func TestClaim_ConcurrentSingleWinner(t *testing.T) {
	idx := seedIndex(t)
	ctx := context.Background()

	const attempts = 16
	var wg sync.WaitGroup
	wins := make(chan types.ID, attempts)

	for i := 0; i < attempts; i++ {
		reqID := types.ID(fmt.Sprintf("req%d", i))
		wg.Add(1)
		go func(rid types.ID) {
			defer wg.Done()
			ok, err := idx.Claim(ctx, "d_mid", rid)
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			if ok {
				wins <- rid
			}
		}(reqID)
	}
	wg.Wait()
	close(wins)

	var winners []types.ID
	for w := range wins {
		winners = append(winners, w)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly 1 winner, got %d: %v", len(winners), winners)
	}
}

func TestUpdatePosition_KeepsRatingOnlineClaim(t *testing.T) {
	idx := seedIndex(t)
	ctx := context.Background()

	if ok, _ := idx.Claim(ctx, "d_close", "req1"); !ok {
		t.Fatal("claim failed")
	}

	err := idx.UpdatePosition(ctx, "d_close", types.Point{Lat: 22.7191, Lng: 75.8561}, 45.0, 28.0)
	if err != nil {
		t.Fatalf("update position: %v", err)
	}

	snap, ok := idx.Get("d_close")
	if !ok {
		t.Fatal("driver missing after position update")
	}
	if snap.Position.Lat != 22.7191 || snap.HeadingDeg != 45.0 || snap.SpeedKmh != 28.0 {
		t.Fatalf("sample not applied: %+v", snap)
	}
	if snap.Rating != 4.2 || !snap.Online {
		t.Fatalf("rating/online lost on position update: %+v", snap)
	}
	if snap.ClaimedBy == nil || *snap.ClaimedBy != "req1" {
		t.Fatalf("claim lost on position update: %+v", snap)
	}
}

func TestUpsert_PreservesClaim(t *testing.T) {
	idx := seedIndex(t)
	ctx := context.Background()

	if ok, _ := idx.Claim(ctx, "d_close", "req1"); !ok {
		t.Fatal("claim failed")
	}

	// A position update mid-claim must not free the driver.
	err := idx.Upsert(ctx, Snapshot{
		DriverID: "d_close",
		Position: types.Point{Lat: 22.7190, Lng: 75.8560},
		Rating:   4.2,
		Online:   true,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if ok, _ := idx.Claim(ctx, "d_close", "req2"); ok {
		t.Fatal("claim lost after position upsert")
	}
	snap, ok := idx.Get("d_close")
	if !ok || snap.ClaimedBy == nil || *snap.ClaimedBy != "req1" {
		t.Fatalf("unexpected snapshot after upsert: %+v", snap)
	}
}
