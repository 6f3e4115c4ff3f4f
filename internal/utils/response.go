package utils

import (
	"context"  // Deadline detection
	"errors"   // Error inspection
	"net/http" // HTTP status codes
	"time"     // Timestamps

	"p2p_wallet/internal/domain" // Domain errors

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Structured logging
)

// TimestampLayout is the layout of the error envelope timestamp
const TimestampLayout = "02/01/2006 15:04:05"

// ErrorResponse is the body returned for every failed request
type ErrorResponse struct {
	StatusCode int    `json:"status_code"` // Same as the HTTP status
	Status     string `json:"status"`      // Always "error"
	Path       string `json:"path"`        // Request path
	Timestamp  string `json:"timestamp"`   // dd/mm/yyyy hh:mm:ss
	Message    string `json:"message"`     // Client facing message
}

// NewErrorResponse builds the envelope for a status and message
func NewErrorResponse(c *gin.Context, status int, message string) ErrorResponse {
	return ErrorResponse{
		StatusCode: status,
		Status:     "error",
		Path:       c.Request.URL.Path,
		Timestamp:  time.Now().Format(TimestampLayout),
		Message:    message,
	}
}

// RespondError aborts the request with the envelope for err.
// Domain errors keep their status and message, anything else is logged and hidden behind a 500.
func RespondError(c *gin.Context, err error) {
	status, message := http.StatusInternalServerError, "Internal server error"
	if appErr, ok := domain.AsAppError(err); ok {
		status, message = appErr.Status, appErr.Message
	} else if errors.Is(err, context.DeadlineExceeded) {
		status, message = http.StatusGatewayTimeout, "Request timed out"
	} else {
		logrus.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"error":  err.Error(),
		}).Error("Unhandled error")
	}
	c.AbortWithStatusJSON(status, NewErrorResponse(c, status, message))
}

// RespondStatus aborts the request with an envelope for a fixed status and message
func RespondStatus(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, NewErrorResponse(c, status, message))
}
