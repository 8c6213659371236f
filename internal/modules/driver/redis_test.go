package driver

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"rideflow/internal/types"
)

func setupRedisIndex(t *testing.T) *RedisIndex {
	t.Helper()

	addr := os.Getenv("RIDEFLOW_REDIS_ADDR")
	if addr == "" {
		t.Skip("RIDEFLOW_REDIS_ADDR not set; skipping Redis-backed index tests")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisIndex(rdb)
}

func TestRedisIndex_UpsertQueryClaim(t *testing.T) {
	idx := setupRedisIndex(t)
	ctx := context.Background()

	id := types.ID(fmt.Sprintf("driver_redis_%d", time.Now().UnixNano()))
	err := idx.Upsert(ctx, Snapshot{
		DriverID: id,
		Position: types.Point{Lat: 22.7180, Lng: 75.8550},
		Rating:   4.5,
		Online:   true,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := idx.QueryNearby(ctx, types.Point{Lat: 22.7177, Lng: 75.8545}, 2.0, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	found := false
	for _, c := range got {
		if c.DriverID == id {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %s in nearby results", id)
	}

	ok, err := idx.Claim(ctx, id, "req_a")
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if ok, _ := idx.Claim(ctx, id, "req_b"); ok {
		t.Fatal("second claim must fail")
	}

	// Foreign release is a no-op; owner release frees the driver.
	if err := idx.Release(ctx, id, "req_b"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := idx.Claim(ctx, id, "req_c"); ok {
		t.Fatal("claim must survive a foreign release")
	}
	if err := idx.Release(ctx, id, "req_a"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := idx.Claim(ctx, id, "req_c"); !ok {
		t.Fatal("claim must succeed after owner release")
	}
	_ = idx.Release(ctx, id, "req_c")
	_ = idx.SetOnline(ctx, id, false)
}
