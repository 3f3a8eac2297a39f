package response

import (
	"net/http"

	pkgErrors "cinereserve/pkg/errors"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the errors payload for failed core operations.
type ErrorBody struct {
	Code    pkgErrors.Code         `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// StatusFor maps an error code to the HTTP status the API returns.
func StatusFor(code pkgErrors.Code) int {
	switch code {
	case pkgErrors.CodeValidation:
		return http.StatusBadRequest
	case pkgErrors.CodeSeatConflict, pkgErrors.CodeIllegalTransition:
		return http.StatusConflict
	case pkgErrors.CodeGateway:
		return http.StatusBadGateway
	case pkgErrors.CodeGatewayAmbiguous:
		return http.StatusAccepted
	case pkgErrors.CodeNotFound:
		return http.StatusNotFound
	case pkgErrors.CodeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes err with its stable code so clients never parse messages.
func RespondError(c *gin.Context, err error) {
	appErr, ok := pkgErrors.As(err)
	if !ok {
		RespondJSON(c, "error", http.StatusInternalServerError, "Internal server error", nil,
			ErrorBody{Code: pkgErrors.CodePersistence})
		return
	}

	message := appErr.Message
	if message == "" {
		message = string(appErr.Code)
	}
	if appErr.Code == pkgErrors.CodePersistence {
		message = "Internal server error"
	}

	RespondJSON(c, "error", StatusFor(appErr.Code), message, nil, ErrorBody{
		Code:    appErr.Code,
		Details: appErr.Details,
	})
}
