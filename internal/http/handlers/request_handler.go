// README: Ride request handlers for create/get/cancel and the driver trip actions.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rideflow/internal/modules/request"
	"rideflow/internal/types"
)

type RequestHandler struct {
	engine *request.Engine
}

func NewRequestHandler(engine *request.Engine) *RequestHandler {
	return &RequestHandler{engine: engine}
}

type stopReq struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
}

type createRequestReq struct {
	PassengerID  string     `json:"passenger_id"`
	Pickup       stopReq    `json:"pickup"`
	Drop         stopReq    `json:"drop"`
	VehicleClass string     `json:"vehicle_class"`
	DemandFactor float64    `json:"demand_factor"`
	PromoCode    string     `json:"promo_code"`
	ScheduledAt  *time.Time `json:"scheduled_at"`
}

type stopView struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
}

type requestView struct {
	ID             string     `json:"id"`
	PassengerID    string     `json:"passenger_id"`
	DriverID       *string    `json:"driver_id,omitempty"`
	Status         string     `json:"status"`
	Pickup         stopView   `json:"pickup"`
	Drop           stopView   `json:"drop"`
	VehicleClass   string     `json:"vehicle_class"`
	Fare           int64      `json:"fare"`
	DiscountAmount int64      `json:"discount_amount"`
	Currency       string     `json:"currency"`
	PromoCode      string     `json:"promo_code,omitempty"`
	DistanceKm     float64    `json:"distance_km"`
	DurationMin    float64    `json:"duration_min"`
	SearchRadiusKm float64    `json:"search_radius_km"`
	ScheduledAt    *time.Time `json:"scheduled_at,omitempty"`
	CancelReason   *string    `json:"cancel_reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func viewOf(r *request.RideRequest) requestView {
	v := requestView{
		ID:             string(r.ID),
		PassengerID:    string(r.PassengerID),
		Status:         string(r.Status),
		Pickup:         stopView{Lat: r.Pickup.Point.Lat, Lng: r.Pickup.Point.Lng, Address: r.Pickup.Address},
		Drop:           stopView{Lat: r.Drop.Point.Lat, Lng: r.Drop.Point.Lng, Address: r.Drop.Address},
		VehicleClass:   r.VehicleClass,
		Fare:           r.Fare.Amount,
		DiscountAmount: r.DiscountAmount.Amount,
		Currency:       r.Fare.Currency,
		PromoCode:      r.PromoCode,
		DistanceKm:     r.DistanceKm,
		DurationMin:    r.DurationMin,
		SearchRadiusKm: r.SearchRadiusKm,
		ScheduledAt:    r.ScheduledAt,
		CancelReason:   r.CancelReason,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.DriverID != nil {
		d := string(*r.DriverID)
		v.DriverID = &d
	}
	return v
}

func (h *RequestHandler) Create(c *gin.Context) {
	var req createRequestReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.PassengerID == "" || req.VehicleClass == "" {
		writeError(c, http.StatusBadRequest, "missing fields")
		return
	}
	r, err := h.engine.Create(c.Request.Context(), request.CreateCommand{
		PassengerID:  types.ID(req.PassengerID),
		Pickup:       request.Stop{Point: types.Point{Lat: req.Pickup.Lat, Lng: req.Pickup.Lng}, Address: req.Pickup.Address},
		Drop:         request.Stop{Point: types.Point{Lat: req.Drop.Lat, Lng: req.Drop.Lng}, Address: req.Drop.Address},
		VehicleClass: req.VehicleClass,
		DemandFactor: req.DemandFactor,
		PromoCode:    req.PromoCode,
		ScheduledAt:  req.ScheduledAt,
	})
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, viewOf(r))
}

func (h *RequestHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing request id")
		return
	}
	r, err := h.engine.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewOf(r))
}

type cancelReq struct {
	ActorType string `json:"actor_type"`
	Reason    string `json:"reason"`
}

func (h *RequestHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing request id")
		return
	}
	var req cancelReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ActorType == "" {
		req.ActorType = "passenger"
	}
	err := h.engine.Cancel(c.Request.Context(), request.CancelCommand{
		RequestID: types.ID(id),
		ActorType: req.ActorType,
		Reason:    req.Reason,
	})
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"status": request.StatusCancelled})
}

func (h *RequestHandler) Accept(c *gin.Context) {
	id, driverID, ok := tripActionParams(c)
	if !ok {
		return
	}
	err := h.engine.Accept(c.Request.Context(), request.AcceptCommand{
		RequestID: types.ID(id),
		DriverID:  types.ID(driverID),
	})
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"status": request.StatusAccepted})
}

func (h *RequestHandler) Reject(c *gin.Context) {
	id, driverID, ok := tripActionParams(c)
	if !ok {
		return
	}
	err := h.engine.Reject(c.Request.Context(), request.RejectCommand{
		RequestID: types.ID(id),
		DriverID:  types.ID(driverID),
	})
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"status": request.StatusSearching})
}

func (h *RequestHandler) Start(c *gin.Context) {
	id, driverID, ok := tripActionParams(c)
	if !ok {
		return
	}
	err := h.engine.Start(c.Request.Context(), request.StartCommand{
		RequestID: types.ID(id),
		DriverID:  types.ID(driverID),
	})
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"status": request.StatusInProgress})
}

func (h *RequestHandler) Complete(c *gin.Context) {
	id, driverID, ok := tripActionParams(c)
	if !ok {
		return
	}
	err := h.engine.Complete(c.Request.Context(), request.CompleteCommand{
		RequestID: types.ID(id),
		DriverID:  types.ID(driverID),
	})
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"status": request.StatusCompleted})
}

// tripActionParams pulls the request id path param and driver_id query
// param shared by the driver trip actions. It writes the error response
// itself when either is missing.
func tripActionParams(c *gin.Context) (id, driverID string, ok bool) {
	id = c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing request id")
		return "", "", false
	}
	driverID = c.Query("driver_id")
	if driverID == "" {
		writeError(c, http.StatusBadRequest, "missing driver_id")
		return "", "", false
	}
	return id, driverID, true
}
