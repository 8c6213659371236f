// README: Entry point; loads config, wires services, starts the HTTP server.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rideflow/internal/config"
	httptransport "rideflow/internal/http"
	"rideflow/internal/infra"
	"rideflow/internal/maps"
	"rideflow/internal/modules/driver"
	"rideflow/internal/modules/pricing"
	"rideflow/internal/modules/promo"
	"rideflow/internal/modules/request"
	"rideflow/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := infra.NewLogger(os.Getenv("RIDEFLOW_DEBUG") == "true")
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal("db init", zap.Error(err))
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)

	var routeSvc *maps.RouteService
	if cfg.Maps.APIKey != "" {
		routeSvc, err = maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			logger.Fatal("maps init", zap.Error(err))
		}
	}

	pricingStore := pricing.NewStore(dbPool)
	pricingSvc := pricing.NewService(pricingStore, cfg.Pricing)

	promoStore := promo.NewStore(dbPool)
	promoSvc := promo.NewService(promoStore)

	index := driver.NewRedisIndex(redisClient)
	requestStore := request.NewStore(dbPool)

	notifier := notify.Fanout{
		notify.NewLogNotifier(logger),
		notify.NewRedisNotifier(redisClient, logger),
	}

	engine := request.NewEngine(request.EngineDeps{
		Repo:     requestStore,
		Index:    index,
		Fares:    pricingSvc,
		Promos:   promoSvc,
		Notifier: notifier,
		Log:      logger,
		Matching: cfg.Matching,
		Geofence: cfg.Geofence,
	})
	defer engine.Close()

	gin.SetMode(gin.ReleaseMode)
	router := httptransport.NewRouter(httptransport.RouterDeps{
		Engine:  engine,
		Index:   index,
		Pricing: pricingSvc,
		Promos:  promoSvc,
		Routes:  routeSvc,
		Log:     logger,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: router}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", cfg.HTTP.Addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("serve", zap.Error(err))
	}
}
