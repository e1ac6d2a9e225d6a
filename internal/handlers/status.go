package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	statusOK          = "ok"
	statusUnavailable = "unavailable"

	errLimitInvalid = "invalid 'limit'; use a positive integer"
)

// health reports liveness together with the newest run, if any.
func (h *Handler) health(c *gin.Context) {
	run, ok, err := h.services.History.Last(c.Request.Context())
	if err != nil {
		if h.log != nil {
			h.log.Errorw("health_history_failed", "err", err)
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": statusUnavailable,
			"error":  "failed to load run history",
		})
		return
	}
	resp := gin.H{"status": statusOK}
	if ok {
		resp["last_run"] = run
	}
	c.JSON(http.StatusOK, resp)
}

// listRuns returns the newest runs first. limit defaults to 20 and is
// capped at 200.
func (h *Handler) listRuns(c *gin.Context) {
	limit := 0
	if qs := c.Query("limit"); qs != "" {
		n, err := strconv.Atoi(qs)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": errLimitInvalid})
			return
		}
		limit = n
	}

	runs, err := h.services.History.List(c.Request.Context(), limit)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("runs_list_failed", "err", err, "limit", limit)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(runs),
		"runs":  runs,
	})
}
