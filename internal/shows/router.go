package shows

import (
	"cinereserve/internal/shared/config"
	"cinereserve/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

func SetupShowRoutes(router *gin.RouterGroup, controller Controller, cfg *config.Config) {
	// Public browsing
	publicShows := router.Group("/shows")
	{
		publicShows.GET("", controller.ListUpcomingByMovie) // GET /api/v1/shows?movie_id=...
		publicShows.GET("/:id", controller.GetShow)         // GET /api/v1/shows/:id
	}

	adminShows := router.Group("/admin/shows")
	adminShows.Use(middleware.JWTAuthWithConfig(cfg), middleware.RequireAdmin())
	{
		adminShows.POST("", controller.CreateShows) // POST /api/v1/admin/shows
	}
}
