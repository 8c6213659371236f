package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"rideflow/internal/config"
	httptransport "rideflow/internal/http"
	"rideflow/internal/modules/driver"
	"rideflow/internal/modules/pricing"
	"rideflow/internal/modules/promo"
	"rideflow/internal/modules/request"
	"rideflow/internal/types"
)

// handlerRepo is a minimal in-memory request.Repo for routing tests.
type handlerRepo struct {
	mu       sync.Mutex
	requests map[types.ID]*request.RideRequest
}

func newHandlerRepo() *handlerRepo {
	return &handlerRepo{requests: make(map[types.ID]*request.RideRequest)}
}

func (m *handlerRepo) Create(_ context.Context, r *request.RideRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.requests[r.ID] = &cp
	return nil
}

func (m *handlerRepo) Get(_ context.Context, id types.ID) (*request.RideRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, request.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *handlerRepo) UpdateStatus(_ context.Context, id types.ID, from, to request.Status, version int, ch request.Changes) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok || r.Status != from || r.StatusVersion != version {
		return false, nil
	}
	r.Status = to
	r.StatusVersion++
	r.UpdatedAt = time.Now()
	if ch.ClearDriver {
		r.DriverID = nil
	} else if ch.DriverID != nil {
		d := *ch.DriverID
		r.DriverID = &d
	}
	if ch.SearchRadiusKm != nil {
		r.SearchRadiusKm = *ch.SearchRadiusKm
	}
	if ch.CancelReason != nil {
		reason := *ch.CancelReason
		r.CancelReason = &reason
	}
	return true, nil
}

func (m *handlerRepo) AppendEvent(_ context.Context, _ *request.Event) error { return nil }

func (m *handlerRepo) HasActiveByPassenger(_ context.Context, passengerID types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.PassengerID == passengerID && !r.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

// stubCodes backs the promo service for the validate endpoint.
type stubCodes struct{}

func (stubCodes) GetByCode(_ context.Context, code string) (*promo.Code, error) {
	if code != "WELCOME50" {
		return nil, promo.ErrNotFound
	}
	return &promo.Code{
		Code:          "WELCOME50",
		Active:        true,
		DiscountType:  promo.DiscountPercent,
		DiscountValue: 50,
	}, nil
}

func (stubCodes) RedemptionCount(_ context.Context, _ string, _ types.ID) (int, error) {
	return 0, nil
}

func buildTestRouter(t *testing.T) (http.Handler, *handlerRepo, *driver.MemoryIndex) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := newHandlerRepo()
	index := driver.NewMemoryIndex()
	pricingSvc := pricing.NewService(nil, config.PricingConfig{MaxSurge: 3.0, Currency: "INR"})
	promoSvc := promo.NewService(stubCodes{})

	engine := request.NewEngine(request.EngineDeps{
		Repo:   repo,
		Index:  index,
		Fares:  pricingSvc,
		Promos: promoSvc,
		Matching: config.MatchingConfig{
			RoundInterval:   5 * time.Millisecond,
			InitialRadiusKm: 2,
			RadiusStepKm:    1,
			MaxRadiusKm:     4,
			SearchCeiling:   time.Second,
			AcceptWindow:    time.Second,
		},
	})
	t.Cleanup(engine.Close)

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Engine:  engine,
		Index:   index,
		Pricing: pricingSvc,
		Promos:  promoSvc,
		Log:     nil,
	})
	return router, repo, index
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createBody(passenger string) map[string]any {
	return map[string]any{
		"passenger_id":  passenger,
		"pickup":        map[string]any{"lat": 22.7196, "lng": 75.8577, "address": "Rajwada Palace"},
		"drop":          map[string]any{"lat": 22.7630, "lng": 75.8937, "address": "Vijay Nagar"},
		"vehicle_class": "car",
		"demand_factor": 1.0,
	}
}

func TestCreateRequestEndpoint(t *testing.T) {
	router, _, _ := buildTestRouter(t)

	w := doRequest(t, router, http.MethodPost, "/api/requests", createBody("p1"))
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Fare   int64  `json:"fare"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID == "" || resp.Status != "pending" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Fare <= 0 {
		t.Fatalf("fare = %d, want > 0", resp.Fare)
	}

	// Same passenger again while the first request is live.
	w = doRequest(t, router, http.MethodPost, "/api/requests", createBody("p1"))
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate create status = %d, want 409", w.Code)
	}
}

func TestCreateRequestValidation(t *testing.T) {
	router, _, _ := buildTestRouter(t)

	w := doRequest(t, router, http.MethodPost, "/api/requests", map[string]any{"vehicle_class": "car"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing passenger status = %d, want 400", w.Code)
	}

	body := createBody("p1")
	body["promo_code"] = "BOGUS"
	w = doRequest(t, router, http.MethodPost, "/api/requests", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bogus promo status = %d, want 400", w.Code)
	}
}

func TestGetRequestEndpoint(t *testing.T) {
	router, _, _ := buildTestRouter(t)

	w := doRequest(t, router, http.MethodGet, "/api/requests/"+uuid.NewString(), nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown request status = %d, want 404", w.Code)
	}

	w = doRequest(t, router, http.MethodPost, "/api/requests", createBody("p1"))
	var created struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &created)

	w = doRequest(t, router, http.MethodGet, "/api/requests/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
}

func TestCancelRequestEndpoint(t *testing.T) {
	router, _, _ := buildTestRouter(t)

	w := doRequest(t, router, http.MethodPost, "/api/requests", createBody("p1"))
	var created struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &created)

	w = doRequest(t, router, http.MethodPost, "/api/requests/"+created.ID+"/cancel", map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("cancel without reason status = %d, want 400", w.Code)
	}

	w = doRequest(t, router, http.MethodPost, "/api/requests/"+created.ID+"/cancel",
		map[string]any{"reason": "plans changed"})
	if w.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doRequest(t, router, http.MethodPost, "/api/requests/"+created.ID+"/cancel",
		map[string]any{"reason": "again"})
	if w.Code != http.StatusConflict {
		t.Fatalf("cancel terminal status = %d, want 409", w.Code)
	}
}

func TestTripActionsRequireDriverID(t *testing.T) {
	router, _, _ := buildTestRouter(t)

	for _, action := range []string{"accept", "reject", "start", "complete"} {
		w := doRequest(t, router, http.MethodPost, "/api/requests/abc/"+action, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s without driver_id status = %d, want 400", action, w.Code)
		}
	}
}

func TestDriverEndpoints(t *testing.T) {
	router, _, index := buildTestRouter(t)

	w := doRequest(t, router, http.MethodPost, "/api/drivers/d1/availability", map[string]any{
		"online": true, "lat": 22.72, "lng": 75.86, "rating": 4.7,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("availability status = %d, body = %s", w.Code, w.Body.String())
	}
	snap, ok := index.Get("d1")
	if !ok || !snap.Online || snap.Rating != 4.7 {
		t.Fatalf("driver not seeded: %+v", snap)
	}

	w = doRequest(t, router, http.MethodPut, "/api/drivers/d1/location", map[string]any{
		"lat": 22.73, "lng": 75.87, "speed_kmh": 32.0,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("location status = %d", w.Code)
	}
	snap, _ = index.Get("d1")
	if snap.Position.Lat != 22.73 || snap.Rating != 4.7 {
		t.Fatalf("position update lost state: %+v", snap)
	}
}

func TestFareEstimateEndpoint(t *testing.T) {
	router, _, _ := buildTestRouter(t)

	w := doRequest(t, router, http.MethodPost, "/api/fares/estimate", map[string]any{
		"pickup":        map[string]any{"lat": 22.7196, "lng": 75.8577},
		"drop":          map[string]any{"lat": 22.7630, "lng": 75.8937},
		"vehicle_class": "car",
		"demand_factor": 2.0,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("estimate status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		SurgeMultiplier float64 `json:"surge_multiplier"`
		SurgeReason     string  `json:"surge_reason"`
		EstimatedPrice  int64   `json:"estimated_price"`
		Currency        string  `json:"currency"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SurgeMultiplier != 2.0 || resp.SurgeReason != "High Demand" {
		t.Fatalf("surge = %v %q", resp.SurgeMultiplier, resp.SurgeReason)
	}
	if resp.EstimatedPrice <= 0 || resp.Currency != "INR" {
		t.Fatalf("price = %d %s", resp.EstimatedPrice, resp.Currency)
	}

	w = doRequest(t, router, http.MethodPost, "/api/fares/estimate", map[string]any{
		"pickup":        map[string]any{"lat": 22.7196, "lng": 75.8577},
		"drop":          map[string]any{"lat": 22.7630, "lng": 75.8937},
		"vehicle_class": "rickshaw",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown class status = %d, want 400", w.Code)
	}
}

func TestPromoValidateEndpoint(t *testing.T) {
	router, _, _ := buildTestRouter(t)

	w := doRequest(t, router, http.MethodPost, "/api/promos/validate", map[string]any{
		"code":        "WELCOME50",
		"user_id":     "p1",
		"fare_amount": 10000,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("validate status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Valid    bool  `json:"valid"`
		Discount int64 `json:"discount"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Valid || resp.Discount != 5000 {
		t.Fatalf("validation = %+v, want valid with 5000 off", resp)
	}

	w = doRequest(t, router, http.MethodPost, "/api/promos/validate", map[string]any{
		"code":        "NOPE",
		"user_id":     "p1",
		"fare_amount": 10000,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("unknown code status = %d, want 200 with valid=false", w.Code)
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Valid {
		t.Fatal("unknown code reported valid")
	}
}

func TestHealthEndpoint(t *testing.T) {
	router, _, _ := buildTestRouter(t)
	w := doRequest(t, router, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
}
