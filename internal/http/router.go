// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"twende/internal/http/handlers"
	"twende/internal/http/middleware"
	"twende/internal/infra"
)

type RouterDeps struct {
	Verifier infra.TokenVerifier
	Log      logrus.FieldLogger

	Accounts handlers.AccountService
	Rides    handlers.RideService
	Location handlers.LocationService
	Nearby   handlers.NearbyService
	Payments handlers.PaymentService
	Messages handlers.MessageService
	Errors   handlers.ErrorLogService
	Drivers  handlers.DriverStateService
	Index    handlers.DriverIndex
	Rates    handlers.RateService
	// Assist is optional; the assistant route is only mounted when set.
	Assist   handlers.AssistService
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(d.Log), middleware.Metrics(), middleware.Logging(d.Log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	payments := handlers.NewPaymentHandler(d.Payments)
	r.POST("/payment/status", payments.Webhook)

	api := r.Group("/api", middleware.Auth(d.Verifier))

	accounts := handlers.NewAccountHandler(d.Accounts)
	api.POST("/accounts", accounts.Register)
	api.GET("/accounts/me", accounts.Me)
	api.PATCH("/accounts/me", accounts.UpdateProfile)
	api.GET("/accounts/:id/rating", accounts.Rating)

	location := handlers.NewLocationHandler(d.Location)
	api.POST("/location", location.Record)
	api.GET("/location/recent", location.Recent)

	drivers := handlers.NewDriverHandler(d.Nearby)
	api.GET("/drivers/nearby", drivers.Nearby)

	rides := handlers.NewRideHandler(d.Rides)
	api.POST("/rides", rides.Create)
	api.GET("/rides/active", rides.Active)
	api.POST("/rides/active/refresh", rides.RefreshActive)
	api.GET("/rides/recent", rides.Recent)
	api.GET("/rides/:id", rides.Get)
	api.PATCH("/rides/:id", rides.Update)
	api.POST("/rides/:id/refresh", rides.Refresh)
	api.POST("/rides/:id/transitions/:event", rides.Transition)
	api.POST("/rides/:id/rating", rides.Rate)
	api.GET("/rides/:id/route", rides.Route)
	api.GET("/rides/:id/events", rides.Events)
	if d.Assist != nil {
		api.POST("/rides/assist", handlers.NewAssistHandler(d.Assist).Book)
	}

	messages := handlers.NewMessageHandler(d.Messages)
	api.GET("/messages", messages.Inbox)

	clientErrors := handlers.NewErrorHandler(d.Errors)
	api.POST("/errors", clientErrors.Report)

	admin := api.Group("/admin", middleware.RequireRole(middleware.RoleAdmin))
	admin.POST("/rides/:id/payment", payments.Start)
	admin.GET("/rides/:id/payment", payments.ForRide)
	admin.GET("/payments/:id", payments.Get)
	admin.GET("/payments/:id/responses", payments.Responses)
	admin.POST("/payments/:id/check", payments.Check)
	admin.POST("/payments/:id/check-request", payments.CheckRequest)
	admin.POST("/payments/:id/simulate", payments.Simulate)

	adminHandler := handlers.NewAdminHandler(d.Drivers, d.Index, d.Rates)
	admin.PUT("/users/:id/state", adminHandler.SetDriverState)
	admin.GET("/fare-rate", adminHandler.GetRate)
	admin.PUT("/fare-rate", adminHandler.SetRate)
	admin.POST("/messages", messages.SendSystem)
	admin.POST("/messages/bulk", messages.SendBulk)
	admin.GET("/errors", clientErrors.Recent)

	return r
}
