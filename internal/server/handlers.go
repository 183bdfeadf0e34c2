package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Uscout07/casaway-speedtest/pkg/models"
)

// runSpeedtest executes one measurement for the calling request.
func (s *Server) runSpeedtest(c *gin.Context) {
	result, err := s.runMeasurement(c.Request.Context())
	if err != nil {
		s.log.WithError(err).Error("speed test failed")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Message: "speed test failed",
			Error:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, models.SpeedTestResponse{
		Success:         true,
		SpeedTestResult: *result,
	})
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// getStatus returns the current service state
func (s *Server) getStatus(c *gin.Context) {
	cfg := s.currentConfig()

	c.JSON(http.StatusOK, gin.H{
		"uptime_seconds": time.Since(s.startTime).Seconds(),
		"scheduler":      s.scheduler.Status(),
		"history": gin.H{
			"stored": s.history.Count(),
			"max":    cfg.History.MaxResults,
		},
		"targets": gin.H{
			"servers": s.registry.Count(),
		},
	})
}
