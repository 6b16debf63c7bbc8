package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/ZanzyTHEbar/claimiq/internal/errors"
)

const (
	requestIDHeader = "X-Request-ID"
	maxBodyBytes    = 1 << 20
)

// securityHeaders sets the response headers for a JSON-only API
func securityHeaders(c *gin.Context) {
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("X-Frame-Options", "DENY")
	c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
	c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	c.Header("Cache-Control", "no-store")

	if c.Request.TLS != nil {
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	c.Next()
}

// requestID propagates the caller's X-Request-ID or mints one. Error logs
// read it back from the request header.
func requestID(c *gin.Context) {
	id := c.GetHeader(requestIDHeader)
	if id == "" {
		id = uuid.NewString()
		c.Request.Header.Set(requestIDHeader, id)
	}
	c.Header(requestIDHeader, id)
	c.Next()
}

// jsonBody rejects non-JSON request bodies and caps their size
func jsonBody(c *gin.Context) {
	if c.Request.ContentLength != 0 && c.Request.Method != http.MethodGet {
		contentType := strings.ToLower(c.GetHeader("Content-Type"))
		if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
			appErr := apperrors.NewValidationError("unsupported content type", contentType)
			appErr.HTTPStatus = http.StatusUnsupportedMediaType
			respondError(c, appErr)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	}
	c.Next()
}
