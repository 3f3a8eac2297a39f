package reservations

import (
	"cinereserve/internal/shared/config"
	"cinereserve/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

func SetupReservationRoutes(router *gin.RouterGroup, controller Controller, cfg *config.Config) {
	if err := RegisterValidators(); err != nil {
		panic(err)
	}

	// Advisory seat map, public
	router.GET("/shows/:id/occupied-seats", controller.GetOccupiedSeats) // GET /api/v1/shows/:id/occupied-seats

	bookingRoutes := router.Group("/bookings")
	bookingRoutes.Use(middleware.JWTAuthWithConfig(cfg))
	{
		bookingRoutes.POST("", controller.CreateBooking)                      // POST /api/v1/bookings
		bookingRoutes.GET("/my", controller.GetMyBookings)                    // GET /api/v1/bookings/my
		bookingRoutes.GET("/:id", controller.GetBooking)                      // GET /api/v1/bookings/:id
		bookingRoutes.POST("/:id/payment/retry", controller.RetryPayment)     // POST /api/v1/bookings/:id/payment/retry
		bookingRoutes.POST("/:id/payment/confirm", controller.ConfirmPayment) // POST /api/v1/bookings/:id/payment/confirm
	}

	// Provider redirect; the browser may not carry a token
	paymentRoutes := router.Group("/payments")
	paymentRoutes.Use(middleware.OptionalAuthWithConfig(cfg))
	{
		paymentRoutes.GET("/khalti/return", controller.KhaltiReturn) // GET /api/v1/payments/khalti/return
	}

	adminBookings := router.Group("/admin/bookings")
	adminBookings.Use(middleware.JWTAuthWithConfig(cfg), middleware.RequireAdmin())
	{
		adminBookings.POST("/expire-stale", controller.ExpireStale) // POST /api/v1/admin/bookings/expire-stale
	}
}
