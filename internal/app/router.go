package app

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rapidride/internal/domain"
	"rapidride/internal/handler"
	"rapidride/internal/middleware"
	"rapidride/internal/relay"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	UserHandler      *handler.UserHandler
	RideHandler      *handler.RideHandler
	DriverHandler    *handler.DriverHandler
	SupportHandler   *handler.SupportHandler
	Hub              *relay.Hub
	Tokens           middleware.TokenParser
	IdempotencyStore middleware.IdempotencyStore
	NewRelicApp      *newrelic.Application
	Gatherer         prometheus.Gatherer
	Logger           *slog.Logger
	CORSOrigins      []string
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORSMiddleware(deps.CORSOrigins))

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.Use(middleware.ErrorLogger(deps.Logger))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// The socket authenticates with its first frame.
	if deps.Hub != nil {
		router.GET("/ws", gin.WrapF(deps.Hub.ServeWS))
	}

	authenticate := middleware.Authenticate(deps.Tokens)
	riderOnly := middleware.RequireRole(domain.RoleRider)
	driverOnly := middleware.RequireRole(domain.RoleDriver)

	// Account routes.
	accounts := router.Group("/auth")
	{
		accounts.POST("/signup", deps.UserHandler.Signup)
		accounts.POST("/login", deps.UserHandler.Login)
		accounts.GET("/me", authenticate, deps.UserHandler.Me)
	}

	api := router.Group("/api")
	api.Use(authenticate)
	api.Use(middleware.NewRelicCaller())
	api.Use(middleware.IdempotencyMiddleware(deps.IdempotencyStore, deps.Logger))
	{
		// Rider profile routes.
		user := api.Group("/user", riderOnly)
		{
			user.GET("/profile", deps.UserHandler.GetProfile)
			user.PUT("/profile", deps.UserHandler.UpdateProfile)
		}

		// Ride routes.
		rides := api.Group("/rides")
		{
			rides.POST("/estimate-fare", deps.RideHandler.EstimateFare)
			rides.POST("/request", riderOnly, deps.RideHandler.RequestRide)
			rides.POST("/schedule", riderOnly, deps.RideHandler.ScheduleRide)
			rides.GET("/current", riderOnly, deps.RideHandler.CurrentRide)
			rides.GET("/scheduled", riderOnly, deps.RideHandler.ScheduledRides)
			rides.GET("/history", riderOnly, deps.RideHandler.History)
			rides.GET("/analytics", riderOnly, deps.RideHandler.Analytics)
			rides.GET("/:id", deps.RideHandler.GetRide)
			rides.POST("/:id/cancel", riderOnly, deps.RideHandler.CancelRide)
			rides.GET("/:id/invoice", riderOnly, deps.RideHandler.Invoice)
		}

		api.GET("/rewards/points", riderOnly, deps.RideHandler.RewardPoints)

		// Notification and support routes.
		api.GET("/notifications", deps.SupportHandler.Notifications)
		api.PUT("/notifications/:id/read", deps.SupportHandler.MarkNotificationRead)
		api.POST("/support/request", deps.SupportHandler.SubmitSupportRequest)
		api.POST("/emergency/sos", deps.SupportHandler.SOS)

		// Driver routes.
		driver := api.Group("/driver", driverOnly)
		{
			driver.GET("/profile", deps.UserHandler.GetProfile)
			driver.PUT("/profile", deps.UserHandler.UpdateProfile)
			driver.POST("/status", deps.DriverHandler.SetStatus)
			driver.POST("/location", deps.DriverHandler.UpdateLocation)
			driver.GET("/rides", deps.DriverHandler.Rides)
			driver.GET("/rides/available", deps.DriverHandler.AvailableRides)
			driver.POST("/rides/:id/accept", deps.DriverHandler.AcceptRide)
			driver.POST("/rides/:id/arrive", deps.DriverHandler.ArriveAtPickup)
			driver.POST("/rides/:id/start", deps.DriverHandler.StartRide)
			driver.POST("/rides/:id/complete", deps.DriverHandler.CompleteRide)
			driver.POST("/rides/:id/cancel", deps.RideHandler.CancelRide)
			driver.GET("/earnings", deps.DriverHandler.Earnings)
			driver.GET("/analytics", deps.DriverHandler.Analytics)
			driver.GET("/incentives", deps.DriverHandler.Incentives)
		}
	}

	return router
}
