package server

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Uscout07/casaway-speedtest/internal/history"
	"github.com/Uscout07/casaway-speedtest/internal/storage"
	"github.com/Uscout07/casaway-speedtest/pkg/models"
)

// getHistory returns stored results, sorted
func (s *Server) getHistory(c *gin.Context) {
	sortBy := c.DefaultQuery("sort", "timestamp")
	ascending := c.DefaultQuery("order", "desc") == "asc"

	results := s.history.Sorted(sortBy, ascending)
	c.JSON(http.StatusOK, gin.H{
		"results":   results,
		"count":     len(results),
		"sort_by":   sortBy,
		"ascending": ascending,
	})
}

// exportHistory streams the history in the requested format
func (s *Server) exportHistory(c *gin.Context) {
	format, err := history.ParseFormat(c.Param("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Message: "unsupported export format, use csv, json, or txt",
			Error:   err.Error(),
		})
		return
	}

	sortBy := c.DefaultQuery("sort", "timestamp")
	ascending := c.DefaultQuery("order", "desc") == "asc"

	filename := fmt.Sprintf("casaway-speedtest-%s.%s", time.Now().Format("20060102-150405"), format)
	c.Header("Content-Type", format.ContentType())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	if err := s.history.Export(c.Writer, format, sortBy, ascending); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Message: "failed to export history",
			Error:   err.Error(),
		})
	}
}

type shareRequest struct {
	Format string `json:"format"`
}

// shareHistory archives an export and returns a presigned link to it
func (s *Server) shareHistory(c *gin.Context) {
	if s.exports == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
			Message: "export archive not configured",
			Error:   "storage endpoint is not set",
		})
		return
	}

	req := shareRequest{Format: string(history.FormatCSV)}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Message: "invalid share request",
				Error:   err.Error(),
			})
			return
		}
	}

	format, err := history.ParseFormat(req.Format)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Message: "unsupported export format, use csv, json, or txt",
			Error:   err.Error(),
		})
		return
	}

	var buf bytes.Buffer
	if err := s.history.Export(&buf, format, "timestamp", false); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Message: "failed to export history",
			Error:   err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	key := storage.ExportKey(string(format), time.Now())
	if err := s.exports.PutExport(ctx, key, format.ContentType(), buf.Bytes()); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Message: "failed to archive export",
			Error:   err.Error(),
		})
		return
	}

	expiry := s.currentConfig().ShareExpiry()
	url, err := s.exports.ShareURL(ctx, key, expiry)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Message: "failed to create share link",
			Error:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"key":                key,
		"url":                url,
		"expires_in_seconds": int(expiry.Seconds()),
	})
}

// clearHistory clears all stored results
func (s *Server) clearHistory(c *gin.Context) {
	s.history.Clear()
	c.JSON(http.StatusOK, gin.H{"message": "history cleared"})
}

// getHistoryStats returns aggregate statistics over stored results
func (s *Server) getHistoryStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.history.Stats())
}
