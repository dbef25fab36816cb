// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"ridehail/internal/config"
	"ridehail/internal/http/handlers"
	"ridehail/internal/http/middleware"
	"ridehail/internal/infra"
	"ridehail/internal/modules/presence"
	"ridehail/internal/modules/pricing"
	"ridehail/internal/modules/ride"
	"ridehail/internal/types"
)

type RouterDeps struct {
	Rides    *ride.Service
	Presence *presence.Service
	Pricing  *pricing.Service
	Verifier infra.TokenVerifier
	Registry *prometheus.Registry
	Log      logrus.FieldLogger
	HTTP     config.HTTPConfig
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log), middleware.Logging(deps.Log))
	if deps.Registry != nil {
		r.Use(middleware.Metrics(deps.Registry))
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}
	r.Use(cors.New(corsConfig(deps.HTTP.CORSOrigins)))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api", middleware.Auth(deps.Verifier), middleware.RateLimit(deps.HTTP.RateLimit, deps.HTTP.RateBurst))

	passenger := middleware.RequireRole(types.RolePassenger)
	driver := middleware.RequireRole(types.RoleDriver)
	participant := middleware.RequireRole(types.RolePassenger, types.RoleDriver)
	admin := middleware.RequireRole(types.RoleAdmin)

	rideHandler := handlers.NewRideHandler(deps.Rides, deps.Pricing)
	presenceHandler := handlers.NewPresenceHandler(deps.Presence)

	rides := api.Group("/rides")
	rides.POST("/request", passenger, rideHandler.Request)
	rides.POST("/without-passenger", driver, rideHandler.CreateWithoutPassenger)
	rides.POST("/start-by-qr", passenger, rideHandler.StartByQR)
	rides.POST("/accept", driver, rideHandler.Accept)
	rides.POST("/:rideId/start", driver, rideHandler.Start)
	rides.POST("/:rideId/onsite", driver, rideHandler.Onsite)
	rides.POST("/:rideId/complete", driver, rideHandler.Complete)
	rides.POST("/:rideId/cancel", participant, rideHandler.Cancel)
	rides.POST("/:rideId/claim", passenger, rideHandler.Claim)
	rides.PUT("/update-status", participant, rideHandler.UpdateStatus)
	rides.POST("/price", participant, rideHandler.Price)
	rides.POST("/parking/activate", driver, presenceHandler.ActivateParking)
	rides.POST("/parking/deactivate", driver, presenceHandler.DeactivateParking)
	rides.GET("/parking", passenger, presenceHandler.NearbyParked)
	rides.GET("/:rideId", rideHandler.Get)
	rides.GET("/ride/:rideId", rideHandler.Get)

	api.POST("/line/activate", driver, presenceHandler.ActivateLine)
	api.POST("/line/deactivate", driver, presenceHandler.DeactivateLine)

	api.GET("/driver/rides/my", driver, rideHandler.MyDriverRides)
	api.GET("/user/rides/my", passenger, rideHandler.MyUserRides)
	api.GET("/driver/:driverId/rides", admin, rideHandler.DriverRides)
	api.GET("/user/:userId/rides", admin, rideHandler.UserRides)
	api.GET("/driver/:driverId", rideHandler.DriverDetails)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization", middleware.HeaderRequestID)
	cfg.ExposeHeaders = []string{middleware.HeaderRequestID}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
