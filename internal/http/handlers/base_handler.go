// README: Handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rideflow/internal/modules/pricing"
	"rideflow/internal/modules/promo"
	"rideflow/internal/modules/request"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeRequestError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, request.ErrBadRequest),
		errors.Is(err, promo.ErrInvalidPromoCode),
		errors.Is(err, pricing.ErrUnknownVehicleClass):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, request.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, request.ErrDriverMismatch):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, request.ErrInvalidTransition),
		errors.Is(err, request.ErrStaleRequest),
		errors.Is(err, request.ErrActiveRequest),
		errors.Is(err, request.ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
