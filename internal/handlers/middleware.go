package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
)

// requestLogger writes one debug line per status API request.
func (h *Handler) requestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()

	if h.log == nil {
		return
	}
	h.log.Debugw("status_request",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"status", c.Writer.Status(),
		"latency", time.Since(start),
	)
}
