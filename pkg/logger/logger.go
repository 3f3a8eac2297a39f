package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger wraps slog.Logger with additional functionality
type Logger struct {
	*slog.Logger
}

// New creates a logger writing to stdout, leveled by LOG_LEVEL
func New() *Logger {
	return NewWithWriter(os.Stdout, os.Getenv("LOG_LEVEL"))
}

// NewWithWriter creates a logger writing to w at the given level
func NewWithWriter(w io.Writer, levelStr string) *Logger {
	level := getLogLevel(levelStr)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if gin.Mode() == gin.DebugMode {
		// Use text handler for development (more readable)
		handler = slog.NewTextHandler(w, opts)
	} else {
		// Use JSON handler for production (structured)
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// getLogLevel converts string to slog.Level
func getLogLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithUserID adds user ID to logger context
func (l *Logger) WithUserID(userID string) *Logger {
	return &Logger{
		Logger: l.Logger.With(slog.String("user_id", userID)),
	}
}

// WithBooking adds booking ID to logger context
func (l *Logger) WithBooking(bookingID string) *Logger {
	return &Logger{
		Logger: l.Logger.With(slog.String("booking_id", bookingID)),
	}
}

// WithComponent tags every record with the emitting component
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With(slog.String("component", name)),
	}
}

// HTTP logging methods

// LogHTTPRequest logs an HTTP request
func (l *Logger) LogHTTPRequest(c *gin.Context, duration time.Duration) {
	l.Logger.InfoContext(c.Request.Context(),
		"HTTP Request",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("query", c.Request.URL.RawQuery),
		slog.Int("status", c.Writer.Status()),
		slog.Duration("duration", duration),
		slog.String("ip", c.ClientIP()),
		slog.String("user_agent", c.Request.UserAgent()),
		slog.Int("size", c.Writer.Size()),
	)
}

// Business logic logging methods

// LogBookingCreated logs when a booking claims its seats
func (l *Logger) LogBookingCreated(ctx context.Context, bookingID, showID, userID string, seats []string) {
	l.Logger.InfoContext(ctx,
		"Booking Created",
		slog.String("booking_id", bookingID),
		slog.String("show_id", showID),
		slog.String("user_id", userID),
		slog.Any("seats", seats),
	)
}

// LogBookingTransition logs a status change and any seats it freed
func (l *Logger) LogBookingTransition(ctx context.Context, bookingID, from, to string, released []string) {
	l.Logger.InfoContext(ctx,
		"Booking Transition",
		slog.String("booking_id", bookingID),
		slog.String("from", from),
		slog.String("to", to),
		slog.Any("released_seats", released),
	)
}

// LogPaymentInitiated logs a gateway session being opened
func (l *Logger) LogPaymentInitiated(ctx context.Context, bookingID, attemptID, reference string) {
	l.Logger.InfoContext(ctx,
		"Payment Initiated",
		slog.String("booking_id", bookingID),
		slog.String("attempt_id", attemptID),
		slog.String("reference", reference),
	)
}

// LogPaymentOrphaned logs money received for a booking that can no longer be honored
func (l *Logger) LogPaymentOrphaned(ctx context.Context, bookingID, status, reference string) {
	l.Logger.ErrorContext(ctx,
		"Payment Orphaned: operator refund required",
		slog.String("booking_id", bookingID),
		slog.String("booking_status", status),
		slog.String("reference", reference),
	)
}

// Security logging methods

// LogRateLimitExceeded logs rate limit exceeded
func (l *Logger) LogRateLimitExceeded(ctx context.Context, ip, endpoint string) {
	l.Logger.WarnContext(ctx,
		"Rate Limit Exceeded",
		slog.String("ip", ip),
		slog.String("endpoint", endpoint),
	)
}

// Helper methods for common patterns

// InfoWithContext logs an info message with context
func (l *Logger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Logger.InfoContext(ctx, msg, fieldArgs(fields)...)
}

// ErrorWithContext logs an error message with context
func (l *Logger) ErrorWithContext(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	args := append([]interface{}{slog.String("error", errString(err))}, fieldArgs(fields)...)
	l.Logger.ErrorContext(ctx, msg, args...)
}

// WarnWithContext logs a warning with context
func (l *Logger) WarnWithContext(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	args := append([]interface{}{slog.String("error", errString(err))}, fieldArgs(fields)...)
	l.Logger.WarnContext(ctx, msg, args...)
}

func fieldArgs(fields map[string]interface{}) []interface{} {
	args := make([]interface{}, 0, len(fields))
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	return args
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Global logger instance (can be replaced with dependency injection)
var defaultLogger = New()

// GetDefault returns the default logger instance
func GetDefault() *Logger {
	return defaultLogger
}

// SetDefault sets the default logger instance
func SetDefault(logger *Logger) {
	defaultLogger = logger
}
