// api/routes/router.go
package routes

import (
	"net/http"
	"time"

	"cinereserve/internal/app"
	"cinereserve/internal/reconciliation"
	"cinereserve/internal/reservations"
	"cinereserve/internal/shared/config"
	"cinereserve/internal/shared/database"
	"cinereserve/internal/shows"

	"github.com/gin-gonic/gin"
)

// Router holds all route dependencies
type Router struct {
	config *config.Config
	db     *database.DB
	core   *app.Core
	jobs   *reconciliation.JobProcessor
}

// NewRouter creates a new router instance. jobs may be nil when the
// reconciliation jobs run in a separate process.
func NewRouter(cfg *config.Config, db *database.DB, core *app.Core, jobs *reconciliation.JobProcessor) *Router {
	return &Router{
		config: cfg,
		db:     db,
		core:   core,
		jobs:   jobs,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	r.setupHealthRoutes(engine)

	api := engine.Group(r.config.GetAPIBasePath())
	{
		r.setupShowRoutes(api)
		r.setupReservationRoutes(api)
	}
}

// setupHealthRoutes sets up health check and system status routes
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "cinereserve-backend",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "cinereserve-backend",
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})

	engine.GET("/status", func(c *gin.Context) {
		status := gin.H{
			"status":           "operational",
			"api_version":      r.config.APIVersion,
			"payment_provider": r.core.Gateway.Name(),
			"timestamp":        time.Now(),
		}
		if r.jobs != nil {
			status["reconciliation"] = r.jobs.GetJobStatus()
		}
		c.JSON(http.StatusOK, status)
	})
}

// setupShowRoutes configures show scheduling and browsing routes
func (r *Router) setupShowRoutes(rg *gin.RouterGroup) {
	showService := shows.NewService(r.core.Shows, r.config.ShowLocation(), r.config.SeatLayout())
	showController := shows.NewController(showService)

	shows.SetupShowRoutes(rg, showController, r.config)
}

// setupReservationRoutes configures booking, payment and seat map routes
func (r *Router) setupReservationRoutes(rg *gin.RouterGroup) {
	reservationController := reservations.NewController(r.core.Reservations)

	reservations.SetupReservationRoutes(rg, reservationController, r.config)
}
