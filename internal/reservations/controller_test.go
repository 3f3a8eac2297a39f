package reservations

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cinereserve/internal/payments"
	"cinereserve/internal/shared/config"
	"cinereserve/internal/shared/middleware"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "reservations-test-secret"

type apiResponse struct {
	Status     string          `json:"status"`
	StatusCode int             `json:"status_code"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Errors     struct {
		Code    string                 `json:"code"`
		Details map[string]interface{} `json:"details"`
	} `json:"errors"`
}

func newTestAPI(t *testing.T) (*gin.Engine, *harness) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := newHarness(t)
	cfg := &config.Config{JWT: config.JWTConfig{Secret: testSecret}}

	r := gin.New()
	api := r.Group("/api/v1")
	SetupReservationRoutes(api, NewController(h.service), cfg)
	return r, h
}

func bearer(t *testing.T, userID, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"email":   userID + "@example.com",
		"name":    userID,
		"role":    role,
		"type":    "access",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func call(t *testing.T, r http.Handler, method, path, auth string, body interface{}) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

func createBooking(t *testing.T, r http.Handler, auth, showID string, seatIDs ...string) ReserveResult {
	t.Helper()
	w, resp := call(t, r, http.MethodPost, "/api/v1/bookings", auth, gin.H{"show_id": showID, "seats": seatIDs})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var result ReserveResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	return result
}

func TestCreateBookingEndpoint(t *testing.T) {
	r, h := newTestAPI(t)
	aliceToken := bearer(t, "alice", middleware.RoleCustomer)
	bobToken := bearer(t, "bob", middleware.RoleCustomer)

	w, _ := call(t, r, http.MethodPost, "/api/v1/bookings", "", gin.H{"show_id": h.show.ID.String(), "seats": []string{"A1"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, resp := call(t, r, http.MethodPost, "/api/v1/bookings", aliceToken, gin.H{"show_id": h.show.ID.String(), "seats": []string{"A-1"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", resp.Errors.Code)

	w, resp = call(t, r, http.MethodPost, "/api/v1/bookings", aliceToken, gin.H{"show_id": "not-a-uuid", "seats": []string{"A1"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", resp.Errors.Code)

	result := createBooking(t, r, aliceToken, h.show.ID.String(), "C1", "C2")
	assert.Equal(t, int64(600), result.Amount)
	assert.NotEmpty(t, result.PaymentURL)
	assert.NotEmpty(t, result.BookingID)

	w, resp = call(t, r, http.MethodPost, "/api/v1/bookings", bobToken, gin.H{"show_id": h.show.ID.String(), "seats": []string{"C2"}})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "SEAT_CONFLICT", resp.Errors.Code)
	assert.Equal(t, []interface{}{"C2"}, resp.Errors.Details["seats"])
}

func TestCreateBookingEndpoint_GatewayFailureReturnsBookingID(t *testing.T) {
	r, h := newTestAPI(t)
	aliceToken := bearer(t, "alice", middleware.RoleCustomer)
	h.gateway.FailInitiate(assert.AnError)

	w, resp := call(t, r, http.MethodPost, "/api/v1/bookings", aliceToken, gin.H{"show_id": h.show.ID.String(), "seats": []string{"B1"}})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "GATEWAY_ERROR", resp.Errors.Code)
	bookingID, _ := resp.Errors.Details["booking_id"].(string)
	require.NotEmpty(t, bookingID)

	h.gateway.FailInitiate(nil)
	w, resp = call(t, r, http.MethodPost, "/api/v1/bookings/"+bookingID+"/payment/retry", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var retried ReserveResult
	require.NoError(t, json.Unmarshal(resp.Data, &retried))
	assert.Equal(t, bookingID, retried.BookingID)
	assert.NotEmpty(t, retried.PaymentURL)
}

func TestOccupiedSeatsEndpoint(t *testing.T) {
	r, h := newTestAPI(t)
	createBooking(t, r, bearer(t, "alice", middleware.RoleCustomer), h.show.ID.String(), "D3", "D4")

	w, resp := call(t, r, http.MethodGet, "/api/v1/shows/"+h.show.ID.String()+"/occupied-seats", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var occupied OccupiedSeatsResponse
	require.NoError(t, json.Unmarshal(resp.Data, &occupied))
	assert.Equal(t, []string{"D3", "D4"}, occupied.OccupiedSeats)

	w, resp = call(t, r, http.MethodGet, "/api/v1/shows/bogus/occupied-seats", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", resp.Errors.Code)
}

func TestConfirmPaymentEndpoint(t *testing.T) {
	r, h := newTestAPI(t)
	aliceToken := bearer(t, "alice", middleware.RoleCustomer)
	result := createBooking(t, r, aliceToken, h.show.ID.String(), "E1")
	path := "/api/v1/bookings/" + result.BookingID + "/payment/confirm"

	// Another user cannot drive someone else's booking.
	w, resp := call(t, r, http.MethodPost, path, bearer(t, "mallory", middleware.RoleCustomer), gin.H{"pidx": result.Reference})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", resp.Errors.Code)

	// Ambiguous verification is accepted but resolves nothing.
	h.gateway.FailVerify(result.Reference, assert.AnError)
	w, resp = call(t, r, http.MethodPost, path, aliceToken, gin.H{"pidx": result.Reference})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "GATEWAY_AMBIGUOUS", resp.Errors.Code)

	h.gateway.SetStatus(result.Reference, payments.StatusCompleted)
	w, resp = call(t, r, http.MethodPost, path, aliceToken, gin.H{"pidx": result.Reference})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var confirmed ConfirmResult
	require.NoError(t, json.Unmarshal(resp.Data, &confirmed))
	assert.Equal(t, "COMPLETED", confirmed.Status)

	w, resp = call(t, r, http.MethodPost, path, aliceToken, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", resp.Errors.Code)
}

func TestKhaltiReturnEndpoint(t *testing.T) {
	r, h := newTestAPI(t)
	result := createBooking(t, r, bearer(t, "alice", middleware.RoleCustomer), h.show.ID.String(), "F1")
	h.gateway.SetStatus(result.Reference, payments.StatusUserCanceled)

	path := "/api/v1/payments/khalti/return?pidx=" + result.Reference + "&purchase_order_id=" + result.BookingID + "&status=User%20canceled"
	w, resp := call(t, r, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var confirmed ConfirmResult
	require.NoError(t, json.Unmarshal(resp.Data, &confirmed))
	assert.Equal(t, "FAILED", confirmed.Status)

	w, resp = call(t, r, http.MethodGet, "/api/v1/payments/khalti/return?pidx="+result.Reference, "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", resp.Errors.Code)
}

func TestGetBookingEndpoints(t *testing.T) {
	r, h := newTestAPI(t)
	aliceToken := bearer(t, "alice", middleware.RoleCustomer)
	result := createBooking(t, r, aliceToken, h.show.ID.String(), "G1", "G2")

	w, resp := call(t, r, http.MethodGet, "/api/v1/bookings/"+result.BookingID, aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var booking BookingResponse
	require.NoError(t, json.Unmarshal(resp.Data, &booking))
	assert.Equal(t, []string{"G1", "G2"}, booking.Seats)
	assert.Equal(t, "PENDING", booking.Status)

	w, _ = call(t, r, http.MethodGet, "/api/v1/bookings/"+result.BookingID, bearer(t, "bob", middleware.RoleCustomer), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = call(t, r, http.MethodGet, "/api/v1/bookings/"+result.BookingID, bearer(t, "ops", middleware.RoleAdmin), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp = call(t, r, http.MethodGet, "/api/v1/bookings/my", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var mine struct {
		Bookings []BookingResponse `json:"bookings"`
		Count    int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &mine))
	assert.Equal(t, 1, mine.Count)
	assert.Equal(t, result.BookingID, mine.Bookings[0].ID)
}

func TestExpireStaleEndpoint_AdminOnly(t *testing.T) {
	r, _ := newTestAPI(t)

	w, _ := call(t, r, http.MethodPost, "/api/v1/admin/bookings/expire-stale", bearer(t, "alice", middleware.RoleCustomer), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, resp := call(t, r, http.MethodPost, "/api/v1/admin/bookings/expire-stale", bearer(t, "ops", middleware.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Expired int `json:"expired"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &body))
	assert.Zero(t, body.Expired)
}
