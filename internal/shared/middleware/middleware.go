package middleware

import (
	"net/http"
	"strings"

	"cinereserve/internal/shared/config"
	"cinereserve/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

// Roles issued by the identity service.
const (
	RoleAdmin    = "ADMIN"
	RoleCustomer = "CUSTOMER"
)

// Context keys populated from validated access tokens.
const (
	ContextUserID    = "user_id"
	ContextUserEmail = "user_email"
	ContextUserName  = "user_name"
	ContextUserRole  = "user_role"
)

// JWTAuthWithConfig rejects requests without a valid HMAC-signed access token
func JWTAuthWithConfig(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "Authorization header is required", nil, nil)
			c.Abort()
			return
		}

		claims, err := parseAccessToken(authHeader, cfg.JWT.Secret)
		if err != nil {
			response.RespondJSON(c, "error", http.StatusUnauthorized, err.Error(), nil, nil)
			c.Abort()
			return
		}

		setIdentity(c, claims)
		c.Next()
	}
}

// OptionalAuthWithConfig sets the identity when a valid token is present but never rejects
func OptionalAuthWithConfig(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			if claims, err := parseAccessToken(authHeader, cfg.JWT.Secret); err == nil {
				setIdentity(c, claims)
			}
		}
		c.Next()
	}
}

type tokenError string

func (e tokenError) Error() string { return string(e) }

const (
	errBadHeader   = tokenError("authorization header format must be Bearer {token}")
	errBadToken    = tokenError("invalid or expired token")
	errTokenType   = tokenError("invalid token type")
	errMissingUser = tokenError("token has no subject")
)

func parseAccessToken(authHeader, secret string) (jwt.MapClaims, error) {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, errBadHeader
	}

	token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, errBadToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errBadToken
	}
	if tokenType, ok := claims["type"]; !ok || tokenType != "access" {
		return nil, errTokenType
	}
	if userID, _ := claims["user_id"].(string); userID == "" {
		return nil, errMissingUser
	}
	return claims, nil
}

func setIdentity(c *gin.Context, claims jwt.MapClaims) {
	c.Set(ContextUserID, claims["user_id"])
	c.Set(ContextUserEmail, claims["email"])
	c.Set(ContextUserName, claims["name"])
	c.Set(ContextUserRole, claims["role"])
}

// RequireRoles middleware checks if user has any of the required roles
func RequireRoles(requiredRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, exists := c.Get(ContextUserRole)
		if !exists {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "user role not found in context", nil, nil)
			c.Abort()
			return
		}

		role, _ := userRole.(string)
		for _, required := range requiredRoles {
			if role == required {
				c.Next()
				return
			}
		}

		response.RespondJSON(c, "error", http.StatusForbidden, "Insufficient permissions", nil, nil)
		c.Abort()
	}
}

// RequireAdmin middleware that requires admin role
func RequireAdmin() gin.HandlerFunc {
	return RequireRoles(RoleAdmin)
}

// GetUserID returns the authenticated subject set by the JWT middleware.
func GetUserID(c *gin.Context) (string, bool) {
	return contextString(c, ContextUserID)
}

// GetUserEmail returns the email claim, if any.
func GetUserEmail(c *gin.Context) string {
	email, _ := contextString(c, ContextUserEmail)
	return email
}

// GetUserName returns the display name claim, if any.
func GetUserName(c *gin.Context) string {
	name, _ := contextString(c, ContextUserName)
	return name
}

// IsAdmin reports whether the caller carries the admin role.
func IsAdmin(c *gin.Context) bool {
	role, _ := contextString(c, ContextUserRole)
	return role == RoleAdmin
}

func contextString(c *gin.Context, key string) (string, bool) {
	raw, exists := c.Get(key)
	if !exists {
		return "", false
	}
	value, ok := raw.(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}
