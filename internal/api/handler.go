package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"postfetcher/internal/fetcher"
	"postfetcher/internal/stats"
)

type Handler struct {
	Fetcher *fetcher.Fetcher
	Stats   *stats.Collector
}

type enqueueRequest struct {
	Site       string `json:"site" binding:"required"`
	QuestionID int    `json:"question_id" binding:"required"`
	Immediate  bool   `json:"immediate"`
}

// HandleEnqueue accepts one realtime event. The dispatch pipeline (debounce,
// possible fetch) runs in its own goroutine; the subscriber gets its ack
// immediately.
func (h *Handler) HandleEnqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	go h.Fetcher.Enqueue(req.Site, req.QuestionID, req.Immediate)

	c.JSON(http.StatusAccepted, gin.H{
		"status":      "queued",
		"site":        req.Site,
		"question_id": req.QuestionID,
		"immediate":   req.Immediate,
	})
}

// HandleQueueSummary serves the per-site pending counts, human-readable.
func (h *Handler) HandleQueueSummary(c *gin.Context) {
	c.String(http.StatusOK, h.Fetcher.QueueSummary())
}

// HandleStatus serves scan statistics and a system snapshot.
func (h *Handler) HandleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.Stats.Report())
}
