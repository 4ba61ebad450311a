package app

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/garyellow/itmo-advisor-go/internal/ctxutil"
	"github.com/garyellow/itmo-advisor-go/internal/logger"
)

// requestIDHeaders are checked in order; the first usable one wins.
var requestIDHeaders = []string{"X-Request-Id", "X-Correlation-Id", "Traceparent"}

const maxRequestIDLen = 128

// securityHeadersMiddleware adds security headers to responses.
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'none'")
		c.Header("X-Permitted-Cross-Domain-Policies", "none")
		c.Next()
	}
}

// channelMiddleware tags the request context with the channel it came in on.
func channelMiddleware(channel string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(ctxutil.WithChannel(c.Request.Context(), channel))
		c.Next()
	}
}

// loggingMiddleware assigns a request id, echoes it in X-Request-Id and
// logs the request. API calls log at Info; probes and other 2xx/3xx
// traffic at Debug.
func loggingMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := incomingRequestID(c)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Request = c.Request.WithContext(ctxutil.WithRequestID(c.Request.Context(), requestID))
		c.Header("X-Request-Id", requestID)

		c.Next()

		status := c.Writer.Status()
		entry := log.WithRequestID(requestID).
			WithField("http_method", c.Request.Method).
			WithField("http_path", c.Request.URL.Path).
			WithField("http_status", status).
			WithField("duration_ms", time.Since(start).Milliseconds()).
			WithField("client_ip", c.ClientIP())
		if ch := ctxutil.GetChannel(c.Request.Context()); ch != "" {
			entry = entry.WithField("channel", ch)
		}

		switch {
		case status >= 500:
			entry.Error("HTTP request failed")
		case status == 404:
			entry.Debug("HTTP request not found")
		case status >= 400:
			entry.Warn("HTTP request rejected")
		case strings.HasPrefix(c.FullPath(), "/api/"):
			entry.Info("API request completed")
		default:
			entry.Debug("HTTP request completed")
		}
	}
}

func incomingRequestID(c *gin.Context) string {
	for _, h := range requestIDHeaders {
		if id := strings.TrimSpace(c.GetHeader(h)); id != "" && len(id) <= maxRequestIDLen {
			return id
		}
	}
	return ""
}
