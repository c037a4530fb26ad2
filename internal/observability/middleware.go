package observability

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// isTailUpgrade reports a websocket handshake. Those requests live as long
// as the tail session, so they are logged and measured on their own.
func isTailUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func routePath(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return c.Request.URL.Path
}

func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := routePath(c)

		if isTailUpgrade(c.Request) {
			// A failed handshake writes an HTTP error; a hijacked one keeps the 200 default.
			upgraded := status < http.StatusBadRequest
			event := logger.Info()
			if !upgraded {
				event = logger.Warn()
			}
			event.
				Str("path", path).
				Bool("upgraded", upgraded).
				Str("backlog", c.Query("backlog")).
				Dur("session", time.Since(start)).
				Str("client_ip", c.ClientIP()).
				Msg("http_tail_closed")
			return
		}

		event := logger.Debug()
		if status >= 500 {
			event = logger.Error()
		} else if status >= 400 {
			event = logger.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", c.Request.URL.RawQuery).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("http_request")
	}
}

func RequestMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if isTailUpgrade(c.Request) {
			RecordTailSession(c.Writer.Status() < http.StatusBadRequest, time.Since(start))
			return
		}
		RecordHTTPRequest(c.Request.Method, routePath(c), c.Writer.Status(), time.Since(start))
	}
}
