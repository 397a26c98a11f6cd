package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Freeeeeet/tutor_booking/internal/metrics"
	"github.com/Freeeeeet/tutor_booking/internal/transport/middleware"
)

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	RequestTimeout time.Duration
	Health         HealthCheck
}

func InitRoutes(
	cfg RouterConfig,
	bookingHandler *BookingHandler,
	appealHandler *AppealHandler,
	auth *middleware.Authenticator,
	idempotency *middleware.Idempotency,
	logger *zap.Logger,
) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Timeout(cfg.RequestTimeout))

	router.GET("/health", func(c *gin.Context) {
		if cfg.Health != nil {
			if err := cfg.Health(c.Request.Context()); err != nil {
				logger.Warn("Health check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/")
	api.Use(auth.Middleware())
	if idempotency != nil {
		api.Use(idempotency.Handler())
	}
	{
		bookings := api.Group("/bookings")
		{
			bookings.POST("", bookingHandler.CreateBooking)
			bookings.GET("/:id", bookingHandler.GetBooking)
			bookings.PATCH("/:id", bookingHandler.UpdateBooking)
			bookings.DELETE("/:id", bookingHandler.CancelBooking)
			bookings.POST("/:id/refund", bookingHandler.ReconcileRefund)
		}

		appeals := api.Group("/appeals")
		{
			appeals.POST("", appealHandler.CreateAppeal)
			appeals.GET("/:id", appealHandler.GetAppeal)
			appeals.PATCH("/:id", appealHandler.ReviewAppeal)
		}
	}

	return router
}
