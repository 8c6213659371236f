package geofence

import (
	"math"
	"sync"
	"testing"

	"rideflow/internal/config"
	"rideflow/internal/types"
)

var (
	testPickup = types.Point{Lat: 22.7177, Lng: 75.8545}
	testDrop   = types.Point{Lat: 22.7577, Lng: 75.8945}
)

func testGeofenceCfg() config.GeofenceConfig {
	return config.GeofenceConfig{NearbyKm: 0.5, ArrivedKm: 0.05, AvgSpeedKmh: 30}
}

// northOf returns a point the given number of metres due north of p, which
// makes the haversine distance exact for test assertions.
func northOf(p types.Point, meters float64) types.Point {
	dLat := meters / 1000.0 / 6371.0 * 180.0 / math.Pi
	return types.Point{Lat: p.Lat + dLat, Lng: p.Lng}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func TestMonitor_PickupApproachFiresOncePerThreshold(t *testing.T) {
	rec := &eventRecorder{}
	m := NewMonitor(testGeofenceCfg(), rec.record)
	m.Attach("req1", testPickup, testDrop)

	// 600m out: outside both bands, nothing fires.
	m.Observe(northOf(testPickup, 600))
	// 400m: nearby crossed.
	m.Observe(northOf(testPickup, 400))
	// 30m: arrived crossed.
	m.Observe(northOf(testPickup, 30))

	got := rec.kinds()
	want := []Kind{KindNearPickup, KindArrivedPickup}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	// Further samples inside the band must not re-notify.
	for i := 0; i < 5; i++ {
		m.Observe(northOf(testPickup, 20))
	}
	if n := len(rec.kinds()); n != 2 {
		t.Fatalf("expected 2 events after repeats, got %d", n)
	}
}

func TestMonitor_DirectArrivalFiresBothPickupEvents(t *testing.T) {
	rec := &eventRecorder{}
	m := NewMonitor(testGeofenceCfg(), rec.record)
	m.Attach("req1", testPickup, testDrop)

	// A single sample inside the arrived band crosses both thresholds.
	m.Observe(northOf(testPickup, 25))

	got := rec.kinds()
	if len(got) != 2 || got[0] != KindNearPickup || got[1] != KindArrivedPickup {
		t.Fatalf("expected near+arrived, got %v", got)
	}
}

func TestMonitor_NearDrop(t *testing.T) {
	rec := &eventRecorder{}
	m := NewMonitor(testGeofenceCfg(), rec.record)
	m.Attach("req1", testPickup, testDrop)

	m.Observe(northOf(testDrop, 450))
	m.Observe(northOf(testDrop, 450))

	got := rec.kinds()
	count := 0
	for _, k := range got {
		if k == KindNearDrop {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 near-drop event, got %d (%v)", count, got)
	}
}

func TestMonitor_OutOfOrderSamplesStayMonotonic(t *testing.T) {
	rec := &eventRecorder{}
	m := NewMonitor(testGeofenceCfg(), rec.record)
	m.Attach("req1", testPickup, testDrop)

	// Inside, then a late out-of-order sample from outside, then inside
	// again: the flag must not reset and must not re-fire.
	m.Observe(northOf(testPickup, 400))
	m.Observe(northOf(testPickup, 700))
	m.Observe(northOf(testPickup, 350))

	count := 0
	for _, k := range rec.kinds() {
		if k == KindNearPickup {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 near-pickup event, got %d", count)
	}
}

func TestMonitor_ReattachResetsFlags(t *testing.T) {
	rec := &eventRecorder{}
	m := NewMonitor(testGeofenceCfg(), rec.record)

	m.Attach("req1", testPickup, testDrop)
	m.Observe(northOf(testPickup, 400))

	m.Attach("req2", testPickup, testDrop)
	m.Observe(northOf(testPickup, 400))

	got := rec.kinds()
	if len(got) != 2 {
		t.Fatalf("expected one event per attachment, got %v", got)
	}
	if rec.events[0].RequestID != "req1" || rec.events[1].RequestID != "req2" {
		t.Fatalf("unexpected request ids: %+v", rec.events)
	}
}

func TestMonitor_ETAUsesAssumedSpeed(t *testing.T) {
	rec := &eventRecorder{}
	m := NewMonitor(testGeofenceCfg(), rec.record)
	m.Attach("req1", testPickup, testDrop)

	m.Observe(northOf(testPickup, 450))

	if len(rec.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(rec.events))
	}
	ev := rec.events[0]
	wantETA := ev.DistanceKm / 30.0 * 60.0
	if math.Abs(ev.ETAMinutes-wantETA) > 0.0001 {
		t.Errorf("eta = %f, want %f", ev.ETAMinutes, wantETA)
	}
}

func TestMonitor_IgnoresSamplesBeforeAttach(t *testing.T) {
	rec := &eventRecorder{}
	m := NewMonitor(testGeofenceCfg(), rec.record)
	m.Observe(northOf(testPickup, 100))
	if len(rec.kinds()) != 0 {
		t.Fatal("unattached monitor must not emit")
	}
}
