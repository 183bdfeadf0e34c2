package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Uscout07/casaway-speedtest/internal/config"
	"github.com/Uscout07/casaway-speedtest/pkg/models"
)

// getConfig returns the current configuration
func (s *Server) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.currentConfig())
}

// updateConfig replaces the configuration in memory and rebuilds the
// measurement pipeline. Backend wiring (redis, S3, AMQP, auth) stays
// as booted; those settings take effect on restart.
func (s *Server) updateConfig(c *gin.Context) {
	var cfg config.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Message: "invalid config payload",
			Error:   err.Error(),
		})
		return
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Message: "configuration validation failed",
			Error:   err.Error(),
		})
		return
	}

	s.applyConfig(&cfg)
	c.JSON(http.StatusOK, gin.H{"message": "config updated in memory"})
}

// saveConfig saves the configuration to file
func (s *Server) saveConfig(c *gin.Context) {
	if err := config.Save(s.configPath, s.currentConfig()); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Message: "failed to save config",
			Error:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "config saved successfully"})
}

// validateConfig validates a configuration without applying it
func (s *Server) validateConfig(c *gin.Context) {
	var cfg config.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Message: "invalid config payload",
			Error:   err.Error(),
		})
		return
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":   true,
		"message": "configuration is valid",
	})
}
