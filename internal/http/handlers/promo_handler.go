// README: Promo code validation handler.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rideflow/internal/modules/promo"
	"rideflow/internal/types"
)

type PromoHandler struct {
	promos *promo.Service
}

func NewPromoHandler(svc *promo.Service) *PromoHandler {
	return &PromoHandler{promos: svc}
}

type validatePromoReq struct {
	Code         string `json:"code"`
	UserID       string `json:"user_id"`
	FareAmount   int64  `json:"fare_amount"`
	Currency     string `json:"currency"`
	VehicleClass string `json:"vehicle_class"`
}

func (h *PromoHandler) Validate(c *gin.Context) {
	var req validatePromoReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Code == "" || req.UserID == "" {
		writeError(c, http.StatusBadRequest, "missing fields")
		return
	}
	if req.Currency == "" {
		req.Currency = "INR"
	}

	v, err := h.promos.Validate(c.Request.Context(),
		req.Code,
		types.ID(req.UserID),
		types.Money{Amount: req.FareAmount, Currency: req.Currency},
		req.VehicleClass,
	)
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{
		"code":     v.Code,
		"valid":    v.Valid,
		"discount": v.Discount.Amount,
		"currency": v.Discount.Currency,
		"message":  v.Message,
	})
}
