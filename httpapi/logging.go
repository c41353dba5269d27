package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"pkt.systems/noctrace/internal/logx"
	"pkt.systems/noctrace/schema"
	"pkt.systems/pslog"
)

func requestLogging(sessionID func() schema.SessionID) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		r := c.Request
		c.Next()
		status := c.Writer.Status()
		path := r.URL.Path
		if r.URL.RawQuery != "" {
			path = path + "?" + r.URL.RawQuery
		}
		logger := pslog.Ctx(r.Context()).With("remote", clientIP(r))
		if sessionID != nil {
			logger = logx.WithSession(logger, sessionID())
		}
		bytes := c.Writer.Size()
		if bytes < 0 {
			bytes = 0
		}
		if len(c.Errors) > 0 {
			logger = logger.With("err", c.Errors.Last().Err)
		}
		logger.Info("http request", "method", r.Method, "path", path, "status", status, "bytes", bytes, "duration_ms", time.Since(start).Milliseconds())
		logger.Debug("http request details", "ua", r.UserAgent(), "route", c.FullPath())
	}
}

func recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		pslog.Ctx(c.Request.Context()).Error("http handler panic", "panic", recovered, "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	})
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	return r.RemoteAddr
}
