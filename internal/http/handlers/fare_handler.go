// README: Fare estimate handler; optional road routing via Google Maps.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rideflow/internal/maps"
	"rideflow/internal/modules/pricing"
	"rideflow/internal/types"
)

type FareHandler struct {
	pricing *pricing.Service
	routes  *maps.RouteService
}

// NewFareHandler accepts a nil RouteService; estimates then use
// straight-line distance only.
func NewFareHandler(svc *pricing.Service, routes *maps.RouteService) *FareHandler {
	return &FareHandler{pricing: svc, routes: routes}
}

type estimateReq struct {
	Pickup        stopReq `json:"pickup"`
	Drop          stopReq `json:"drop"`
	VehicleClass  string  `json:"vehicle_class"`
	DemandFactor  float64 `json:"demand_factor"`
	UseRoadRoutes bool    `json:"use_road_routes"`
}

type estimateView struct {
	BasePrice       int64   `json:"base_price"`
	DistanceCharge  int64   `json:"distance_charge"`
	TimeCharge      int64   `json:"time_charge"`
	SurgeMultiplier float64 `json:"surge_multiplier"`
	SurgeReason     string  `json:"surge_reason,omitempty"`
	EstimatedPrice  int64   `json:"estimated_price"`
	Currency        string  `json:"currency"`
	DistanceKm      float64 `json:"distance_km"`
	DurationMin     float64 `json:"duration_min"`
}

func (h *FareHandler) Estimate(c *gin.Context) {
	var req estimateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.VehicleClass == "" {
		writeError(c, http.StatusBadRequest, "missing vehicle_class")
		return
	}

	preq := pricing.Request{
		Pickup:       types.Point{Lat: req.Pickup.Lat, Lng: req.Pickup.Lng},
		Drop:         types.Point{Lat: req.Drop.Lat, Lng: req.Drop.Lng},
		VehicleClass: req.VehicleClass,
		DemandFactor: req.DemandFactor,
	}

	// Road routing needs both addresses; on routing failure we fall back
	// to the straight-line estimate rather than failing the call.
	if req.UseRoadRoutes && h.routes != nil && req.Pickup.Address != "" && req.Drop.Address != "" {
		distanceKm, durationMin, err := h.routes.GetTravelEstimate(c.Request.Context(), req.Pickup.Address, req.Drop.Address)
		if err == nil {
			preq.DistanceKm = distanceKm
			preq.DurationMin = durationMin
		}
	}

	est, err := h.pricing.Estimate(c.Request.Context(), preq)
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, estimateView{
		BasePrice:       est.BasePrice.Amount,
		DistanceCharge:  est.DistanceCharge.Amount,
		TimeCharge:      est.TimeCharge.Amount,
		SurgeMultiplier: est.SurgeMultiplier,
		SurgeReason:     est.SurgeReason,
		EstimatedPrice:  est.EstimatedPrice.Amount,
		Currency:        est.EstimatedPrice.Currency,
		DistanceKm:      est.DistanceKm,
		DurationMin:     est.DurationMin,
	})
}
