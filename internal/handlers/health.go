package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	service    string
	queueDepth func() int
}

func NewHealthHandler(service string, queueDepth func() int) *HealthHandler {
	return &HealthHandler{service: service, queueDepth: queueDepth}
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"timestamp":   time.Now().UTC(),
		"service":     h.service,
		"version":     "1.0.0",
		"queue_depth": h.queueDepth(),
	})
}
