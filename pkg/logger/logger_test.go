package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestGetLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, getLogLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, getLogLevel("warning"))
	assert.Equal(t, slog.LevelError, getLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, getLogLevel(""))
}

func TestLogPaymentOrphaned_IsErrorLevel(t *testing.T) {
	gin.SetMode(gin.ReleaseMode)
	defer gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	log := NewWithWriter(&buf, "error")

	log.LogBookingCreated(context.Background(), "b1", "s1", "u1", []string{"A1"})
	assert.Empty(t, buf.String(), "info records are filtered at error level")

	log.LogPaymentOrphaned(context.Background(), "b1", "EXPIRED", "pidx-1")
	out := buf.String()
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.Contains(t, out, `"booking_id":"b1"`)
	assert.Contains(t, out, `"reference":"pidx-1"`)
}

func TestErrorWithContext_NilError(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "info")
	assert.NotPanics(t, func() {
		log.ErrorWithContext(context.Background(), "sweep failed", nil, nil)
		log.WarnWithContext(context.Background(), "gateway slow", errors.New("timeout"), map[string]interface{}{"n": 1})
	})
	assert.Contains(t, buf.String(), "timeout")
}
