package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// getMetrics returns all named metrics
func (s *Server) getMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"metrics":   s.metrics.GetAllMetrics(),
		"timestamp": time.Now(),
	})
}

// getRunStats returns measurement run statistics
func (s *Server) getRunStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.GetRunStats())
}

// getThroughput returns the smoothed download figure and the window
// samples behind it
func (s *Server) getThroughput(c *gin.Context) {
	count, err := strconv.Atoi(c.DefaultQuery("count", "20"))
	if err != nil || count <= 0 {
		count = 20
	}

	c.JSON(http.StatusOK, gin.H{
		"smoothed_mbps": s.metrics.GetSmoothedDownload(),
		"samples":       s.metrics.GetRecentSamples(count),
		"window":        s.metrics.GetWindowStats(),
		"timestamp":     time.Now(),
	})
}
