package reservations

import (
	"net/http"

	"cinereserve/internal/shared/middleware"
	"cinereserve/internal/shared/utils/response"
	pkgErrors "cinereserve/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Controller interface {
	CreateBooking(c *gin.Context)
	RetryPayment(c *gin.Context)
	ConfirmPayment(c *gin.Context)
	KhaltiReturn(c *gin.Context)
	GetBooking(c *gin.Context)
	GetMyBookings(c *gin.Context)
	GetOccupiedSeats(c *gin.Context)
	ExpireStale(c *gin.Context)
}

type controller struct {
	service Service
}

func NewController(service Service) Controller {
	return &controller{service: service}
}

func (ctrl *controller) CreateBooking(c *gin.Context) {
	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, pkgErrors.Validation("invalid request body: %s", err.Error()))
		return
	}

	buyer, ok := buyerFrom(c)
	if !ok {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	showID, err := uuid.Parse(req.ShowID)
	if err != nil {
		response.RespondError(c, pkgErrors.Validation("invalid show id"))
		return
	}

	result, err := ctrl.service.Reserve(c.Request.Context(), showID, buyer, req.Seats)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusCreated, "Booking created, complete payment to confirm", result, nil)
}

func (ctrl *controller) RetryPayment(c *gin.Context) {
	bookingID, ok := bookingIDParam(c)
	if !ok {
		return
	}
	buyer, ok := buyerFrom(c)
	if !ok {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	result, err := ctrl.service.RetryPayment(c.Request.Context(), bookingID, buyer)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Payment session created", result, nil)
}

func (ctrl *controller) ConfirmPayment(c *gin.Context) {
	bookingID, ok := bookingIDParam(c)
	if !ok {
		return
	}

	var req ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, pkgErrors.Validation("invalid request body: %s", err.Error()))
		return
	}

	// Ownership check before the gateway is consulted.
	if _, err := ctrl.service.GetBooking(c.Request.Context(), bookingID, viewerFrom(c)); err != nil {
		response.RespondError(c, err)
		return
	}

	ctrl.confirm(c, bookingID, req.Pidx)
}

// KhaltiReturn handles the provider redirect. Nothing in the query string
// is trusted beyond identifying the session; the outcome comes from lookup.
func (ctrl *controller) KhaltiReturn(c *gin.Context) {
	var query KhaltiReturnQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.RespondError(c, pkgErrors.Validation("invalid return parameters: %s", err.Error()))
		return
	}

	bookingID, err := uuid.Parse(query.PurchaseOrderID)
	if err != nil {
		response.RespondError(c, pkgErrors.Validation("invalid purchase_order_id"))
		return
	}

	ctrl.confirm(c, bookingID, query.Pidx)
}

func (ctrl *controller) confirm(c *gin.Context, bookingID uuid.UUID, reference string) {
	result, err := ctrl.service.ConfirmPayment(c.Request.Context(), bookingID, reference)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Payment status reconciled", result, nil)
}

func (ctrl *controller) GetBooking(c *gin.Context) {
	bookingID, ok := bookingIDParam(c)
	if !ok {
		return
	}

	booking, err := ctrl.service.GetBooking(c.Request.Context(), bookingID, viewerFrom(c))
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Booking retrieved successfully", booking, nil)
}

func (ctrl *controller) GetMyBookings(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	list, err := ctrl.service.ListUserBookings(c.Request.Context(), userID)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Bookings retrieved successfully", gin.H{
		"bookings": list,
		"count":    len(list),
	}, nil)
}

func (ctrl *controller) GetOccupiedSeats(c *gin.Context) {
	showID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, pkgErrors.Validation("invalid show id"))
		return
	}

	occupied, err := ctrl.service.GetOccupiedSeats(c.Request.Context(), showID)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Occupied seats retrieved successfully", occupied, nil)
}

func (ctrl *controller) ExpireStale(c *gin.Context) {
	expired, err := ctrl.service.ExpireStale(c.Request.Context())
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Stale bookings expired", gin.H{
		"expired": expired,
	}, nil)
}

func bookingIDParam(c *gin.Context) (uuid.UUID, bool) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, pkgErrors.Validation("invalid booking id"))
		return uuid.Nil, false
	}
	return bookingID, true
}

func buyerFrom(c *gin.Context) (Buyer, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return Buyer{}, false
	}
	return Buyer{
		UserID: userID,
		Name:   middleware.GetUserName(c),
		Email:  middleware.GetUserEmail(c),
	}, true
}

func viewerFrom(c *gin.Context) Viewer {
	userID, _ := middleware.GetUserID(c)
	return Viewer{UserID: userID, Admin: middleware.IsAdmin(c)}
}
