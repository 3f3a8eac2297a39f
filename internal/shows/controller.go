package shows

import (
	"net/http"

	"cinereserve/internal/shared/middleware"
	"cinereserve/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Controller interface {
	CreateShows(c *gin.Context)
	GetShow(c *gin.Context)
	ListUpcomingByMovie(c *gin.Context)
}

type controller struct {
	service Service
}

func NewController(service Service) Controller {
	return &controller{service: service}
}

func (ctrl *controller) CreateShows(c *gin.Context) {
	var req CreateShowsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	adminID, ok := middleware.GetUserID(c)
	if !ok {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "Admin not authenticated", nil, nil)
		return
	}

	created, err := ctrl.service.CreateShows(c.Request.Context(), adminID, req)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusCreated, "Shows created successfully", created, nil)
}

func (ctrl *controller) GetShow(c *gin.Context) {
	showID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid show ID", nil, err.Error())
		return
	}

	show, err := ctrl.service.GetShow(c.Request.Context(), showID)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Show retrieved successfully", show, nil)
}

func (ctrl *controller) ListUpcomingByMovie(c *gin.Context) {
	movieID := c.Query("movie_id")
	if movieID == "" {
		response.RespondJSON(c, "error", http.StatusBadRequest, "movie_id query parameter is required", nil, nil)
		return
	}

	shows, err := ctrl.service.ListUpcomingByMovie(c.Request.Context(), movieID)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Shows retrieved successfully", gin.H{
		"shows": shows,
		"count": len(shows),
	}, nil)
}
