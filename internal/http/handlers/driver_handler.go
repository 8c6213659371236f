// README: Driver handlers for availability and position reporting.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rideflow/internal/modules/driver"
	"rideflow/internal/modules/request"
	"rideflow/internal/types"
)

type DriverHandler struct {
	engine *request.Engine
	index  driver.Index
}

func NewDriverHandler(engine *request.Engine, index driver.Index) *DriverHandler {
	return &DriverHandler{engine: engine, index: index}
}

type updateLocationReq struct {
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	HeadingDeg float64 `json:"heading_deg"`
	SpeedKmh   float64 `json:"speed_kmh"`
	RequestID  string  `json:"request_id"`
}

// UpdateLocation ingests one position sample. When request_id is set the
// sample also drives that trip's pickup/drop proximity notifications.
func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing driver id")
		return
	}
	var req updateLocationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.engine.ReportDriverPosition(c.Request.Context(), request.ReportPositionCommand{
		DriverID:   types.ID(id),
		RequestID:  types.ID(req.RequestID),
		Position:   types.Point{Lat: req.Lat, Lng: req.Lng},
		HeadingDeg: req.HeadingDeg,
		SpeedKmh:   req.SpeedKmh,
	})
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"ok": true})
}

type setAvailabilityReq struct {
	Online bool     `json:"online"`
	Lat    *float64 `json:"lat"`
	Lng    *float64 `json:"lng"`
	Rating float64  `json:"rating"`
}

// SetAvailability flips a driver online or offline. Going online with a
// position seeds the index in one call.
func (h *DriverHandler) SetAvailability(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing driver id")
		return
	}
	var req setAvailabilityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}

	var err error
	if req.Online && req.Lat != nil && req.Lng != nil {
		err = h.index.Upsert(c.Request.Context(), driver.Snapshot{
			DriverID: types.ID(id),
			Position: types.Point{Lat: *req.Lat, Lng: *req.Lng},
			Rating:   req.Rating,
			Online:   true,
		})
	} else {
		err = h.index.SetOnline(c.Request.Context(), types.ID(id), req.Online)
	}
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"driver_id": id, "online": req.Online})
}
