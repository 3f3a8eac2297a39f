package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	pkgErrors "cinereserve/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   pkgErrors.Code
	}{
		{"validation", pkgErrors.Validation("bad seat %q", "Z9"), http.StatusBadRequest, pkgErrors.CodeValidation},
		{"seat conflict", pkgErrors.SeatConflict([]string{"A1"}), http.StatusConflict, pkgErrors.CodeSeatConflict},
		{"gateway", pkgErrors.Gateway("down", nil), http.StatusBadGateway, pkgErrors.CodeGateway},
		{"ambiguous", pkgErrors.GatewayAmbiguous("timeout", nil), http.StatusAccepted, pkgErrors.CodeGatewayAmbiguous},
		{"wrapped not found", fmt.Errorf("lookup: %w", pkgErrors.NotFound("booking")), http.StatusNotFound, pkgErrors.CodeNotFound},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, pkgErrors.CodePersistence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			RespondError(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)

			var body struct {
				Status string    `json:"status"`
				Errors ErrorBody `json:"errors"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "error", body.Status)
			assert.Equal(t, tt.wantCode, body.Errors.Code)
		})
	}
}

func TestRespondError_SeatConflictDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	RespondError(c, pkgErrors.SeatConflict([]string{"B3", "B4"}))

	var body struct {
		Errors struct {
			Details map[string][]string `json:"details"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"B3", "B4"}, body.Errors.Details["seats"])
}
