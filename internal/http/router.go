// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ridebook/internal/http/handlers"
	"ridebook/internal/http/middleware"
	"ridebook/internal/http/response"
	"ridebook/internal/infra"
	"ridebook/internal/types"
)

type Deps struct {
	Auth     handlers.AuthService
	Rides    handlers.RideService
	Drivers  handlers.DriverService
	Location handlers.LocationService
	Sockets  handlers.SocketServer
	Verifier infra.TokenVerifier
	Log      *zap.Logger

	AllowedOrigins []string
	Debug          bool
}

func NewRouter(d Deps) http.Handler {
	if d.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(middleware.Logging(log), middleware.Recovery(log))
	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, "OK", nil)
	})

	authed := middleware.Auth(d.Verifier)
	clientOnly := middleware.RequireRole(types.RoleClient)
	driverOnly := middleware.RequireRole(types.RoleDriver)

	ws := handlers.NewWSHandler(d.Sockets)
	r.GET("/ws", authed, ws.Serve)

	api := r.Group("/api")

	authHandler := handlers.NewAuthHandler(d.Auth)
	authGroup := api.Group("/auth")
	authGroup.POST("/signup", authHandler.Signup)
	authGroup.POST("/verify-otp", authHandler.VerifySignup)
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/login-otp", authHandler.LoginOTP)
	authGroup.GET("/me", authed, authHandler.Me)

	rideHandler := handlers.NewRideHandler(d.Rides)
	locationHandler := handlers.NewLocationHandler(d.Location)
	rides := api.Group("/rides", authed)
	rides.POST("", clientOnly, rideHandler.Create)
	rides.GET("/driver/active", driverOnly, rideHandler.DriverActive)
	rides.GET("/:id", rideHandler.Get)
	rides.GET("/:id/locations", locationHandler.History)
	rides.PUT("/:id/cancel", clientOnly, rideHandler.Cancel)
	rides.PUT("/:id/arrived", driverOnly, rideHandler.MarkArrived)
	rides.PUT("/:id/verify-otp", driverOnly, rideHandler.VerifyOTP)
	rides.POST("/:id/payment-received", driverOnly, rideHandler.PaymentReceived)
	rides.POST("/:id/complete", driverOnly, rideHandler.Complete)

	driverHandler := handlers.NewDriverHandler(d.Drivers)
	drivers := api.Group("/driver", authed, driverOnly)
	drivers.POST("/toggle-status", driverHandler.ToggleStatus)
	drivers.GET("/status", driverHandler.Status)
	drivers.POST("/location", locationHandler.Report)
	drivers.GET("/ride-request", rideHandler.PendingRequest)
	drivers.PUT("/ride/:id/accept", rideHandler.Accept)
	drivers.PUT("/ride/:id/reject", rideHandler.Reject)

	return r
}
