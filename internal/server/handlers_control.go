package server

import (
	"net/http"
	"time"

	"github.com/Uscout07/casaway-speedtest/pkg/models"
	"github.com/gin-gonic/gin"
)

// startSchedule begins periodic measurements at the configured interval.
func (s *Server) startSchedule(c *gin.Context) {
	if err := s.scheduler.Start(); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Message: "cannot start scheduler",
			Error:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":          "scheduler started",
		"interval_seconds": s.scheduler.Interval().Seconds(),
	})
}

// stopSchedule halts periodic measurements. Stopping an idle scheduler is a no-op.
func (s *Server) stopSchedule(c *gin.Context) {
	s.scheduler.Stop()
	c.JSON(http.StatusOK, gin.H{"message": "scheduler stopped"})
}

// getTargets lists the measurement servers currently known to the registry.
func (s *Server) getTargets(c *gin.Context) {
	servers := s.registry.Servers()

	resp := gin.H{
		"servers": servers,
		"count":   len(servers),
	}
	if last := s.registry.LastRefresh(); !last.IsZero() {
		resp["last_refresh"] = last.UTC().Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, resp)
}

// refreshTargets re-fetches the server manifest and swaps the registry contents.
func (s *Server) refreshTargets(c *gin.Context) {
	n, err := s.registry.Refresh(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false,
			Message: "failed to refresh targets",
			Error:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "targets refreshed",
		"servers": n,
	})
}
