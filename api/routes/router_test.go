package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cinereserve/internal/app"
	"cinereserve/internal/payments"
	"cinereserve/internal/shared/config"
	"cinereserve/internal/shared/database"
	"cinereserve/internal/shared/middleware"
	"cinereserve/pkg/cache"
	"cinereserve/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const routerSecret = "router-test-secret"

type envelope struct {
	StatusCode int             `json:"status_code"`
	Data       json.RawMessage `json:"data"`
}

type testServer struct {
	engine  *gin.Engine
	gateway *payments.FakeGateway
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(gdb))

	cfg := &config.Config{
		GinMode:    "debug",
		APIPrefix:  "/api",
		APIVersion: "v1",
		JWT:        config.JWTConfig{Secret: routerSecret},
		Payment:    config.PaymentConfig{Provider: "fake"},
		Booking:    config.BookingConfig{ShowTimezone: "UTC"},
	}

	core, err := app.NewCore(cfg, gdb, cache.NewMemoryService(), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = core.Close() })

	gateway, ok := core.Gateway.(*payments.FakeGateway)
	require.True(t, ok)

	engine := gin.New()
	NewRouter(cfg, &database.DB{PostgreSQL: gdb}, core, nil).SetupRoutes(engine)
	return &testServer{engine: engine, gateway: gateway}
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"email":   userID + "@example.com",
		"name":    userID,
		"role":    role,
		"type":    "access",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(routerSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func (s *testServer) do(t *testing.T, method, path, auth string, body interface{}) (int, envelope) {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestHealthAndStatusRoutes(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, code)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "fake", status["payment_provider"])
	assert.NotContains(t, status, "reconciliation")
}

func TestScheduleBookAndPayFlow(t *testing.T) {
	s := newTestServer(t)
	admin := token(t, "ops", middleware.RoleAdmin)
	alice := token(t, "alice", middleware.RoleCustomer)

	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
	code, env := s.do(t, http.MethodPost, "/api/v1/admin/shows", admin, gin.H{
		"movie_id":    "tt0111161",
		"movie_title": "The Shawshank Redemption",
		"price":       300,
		"schedule":    []gin.H{{"date": tomorrow, "times": []string{"18:00"}}},
	})
	require.Equal(t, http.StatusCreated, code)
	var created struct {
		Shows []struct {
			ID string `json:"id"`
		} `json:"shows"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.Len(t, created.Shows, 1)
	showID := created.Shows[0].ID

	code, _ = s.do(t, http.MethodPost, "/api/v1/admin/shows", alice, gin.H{})
	assert.Equal(t, http.StatusForbidden, code)

	code, env = s.do(t, http.MethodPost, "/api/v1/bookings", alice, gin.H{"show_id": showID, "seats": []string{"A1", "A2"}})
	require.Equal(t, http.StatusCreated, code)
	var reserved struct {
		BookingID string `json:"booking_id"`
		Reference string `json:"pidx"`
		Amount    int64  `json:"amount"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &reserved))
	assert.Equal(t, int64(600), reserved.Amount)

	s.gateway.SetStatus(reserved.Reference, payments.StatusCompleted)
	code, env = s.do(t, http.MethodPost, "/api/v1/bookings/"+reserved.BookingID+"/payment/confirm", alice, gin.H{"pidx": reserved.Reference})
	require.Equal(t, http.StatusOK, code)
	var confirmed struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &confirmed))
	assert.Equal(t, "COMPLETED", confirmed.Status)

	code, env = s.do(t, http.MethodGet, "/api/v1/shows/"+showID+"/occupied-seats", "", nil)
	require.Equal(t, http.StatusOK, code)
	var occupied struct {
		OccupiedSeats []string `json:"occupied_seats"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &occupied))
	assert.Equal(t, []string{"A1", "A2"}, occupied.OccupiedSeats)
}
