// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rideflow/internal/http/handlers"
	"rideflow/internal/http/middleware"
	"rideflow/internal/maps"
	"rideflow/internal/modules/driver"
	"rideflow/internal/modules/pricing"
	"rideflow/internal/modules/promo"
	"rideflow/internal/modules/request"
)

type RouterDeps struct {
	Engine  *request.Engine
	Index   driver.Index
	Pricing *pricing.Service
	Promos  *promo.Service
	Routes  *maps.RouteService
	Log     *zap.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log), middleware.Logging(deps.Log))

	requestHandler := handlers.NewRequestHandler(deps.Engine)
	r.POST("/api/requests", requestHandler.Create)
	r.GET("/api/requests/:id", requestHandler.Get)
	r.POST("/api/requests/:id/cancel", requestHandler.Cancel)
	r.POST("/api/requests/:id/accept", requestHandler.Accept)
	r.POST("/api/requests/:id/reject", requestHandler.Reject)
	r.POST("/api/requests/:id/start", requestHandler.Start)
	r.POST("/api/requests/:id/complete", requestHandler.Complete)

	eventsHandler := handlers.NewEventsHandler(deps.Engine)
	r.GET("/api/requests/:id/events", eventsHandler.Stream)

	driverHandler := handlers.NewDriverHandler(deps.Engine, deps.Index)
	r.PUT("/api/drivers/:id/location", driverHandler.UpdateLocation)
	r.POST("/api/drivers/:id/availability", driverHandler.SetAvailability)

	fareHandler := handlers.NewFareHandler(deps.Pricing, deps.Routes)
	r.POST("/api/fares/estimate", fareHandler.Estimate)

	promoHandler := handlers.NewPromoHandler(deps.Promos)
	r.POST("/api/promos/validate", promoHandler.Validate)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return r
}
