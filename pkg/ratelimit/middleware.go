package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"cinereserve/internal/shared/utils/response"
	"cinereserve/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Middleware enforces the limiter. A limiter backend failure lets the
// request through and is logged.
func Middleware(rateLimiter *RateLimiter, log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.GetDefault()
	}
	log = log.WithComponent("ratelimit")

	return func(c *gin.Context) {
		clientIP := getClientIP(c)
		limitType := getRateLimitType(c.FullPath())

		result, err := rateLimiter.IsAllowed(c.Request.Context(), clientIP, limitType)
		if err != nil {
			log.WarnWithContext(c.Request.Context(), "Rate limit check failed", err, map[string]interface{}{
				"ip":   clientIP,
				"type": string(limitType),
			})
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", result.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", result.Remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", result.ResetTime))

		if !result.Allowed {
			log.LogRateLimitExceeded(c.Request.Context(), clientIP, c.FullPath())
			response.RespondJSON(c, "error", http.StatusTooManyRequests,
				"Rate limit exceeded", nil, map[string]interface{}{
					"limit":      result.Limit,
					"reset_time": result.ResetTime,
				})
			c.Abort()
			return
		}

		c.Next()
	}
}

// getRateLimitType classifies a gin route template.
func getRateLimitType(path string) RateLimitType {
	switch {
	case strings.HasPrefix(path, "/health"),
		strings.HasPrefix(path, "/ping"),
		strings.HasPrefix(path, "/status"):
		return RateLimitTypeHealth

	case strings.Contains(path, "/admin/"):
		return RateLimitTypeAdmin

	// Seat claims and gateway round trips
	case strings.HasSuffix(path, "/bookings") && !strings.Contains(path, "/bookings/"),
		strings.Contains(path, "/payment/"),
		strings.Contains(path, "/payments/"):
		return RateLimitTypeBookingCritical

	case strings.Contains(path, "/bookings"),
		strings.Contains(path, "/occupied-seats"):
		return RateLimitTypeBooking

	case strings.Contains(path, "/shows"):
		return RateLimitTypePublic

	default:
		return RateLimitTypeDefault
	}
}

// getClientIP extracts the real client IP
func getClientIP(c *gin.Context) string {
	xForwardedFor := c.GetHeader("X-Forwarded-For")
	if xForwardedFor != "" {
		ips := strings.Split(xForwardedFor, ",")
		if len(ips) > 0 {
			ip := strings.TrimSpace(ips[0])
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	xRealIP := c.GetHeader("X-Real-IP")
	if xRealIP != "" {
		if net.ParseIP(xRealIP) != nil {
			return xRealIP
		}
	}

	ip, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return c.Request.RemoteAddr
	}

	return ip
}
