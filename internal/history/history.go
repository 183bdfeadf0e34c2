package history

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Uscout07/casaway-speedtest/pkg/models"
)

// Store keeps the most recent measurement results in memory. Results
// are diagnostic only and are never durably persisted; restarting the
// service clears them.
type Store struct {
	mu         sync.RWMutex
	results    []*models.SpeedTestResult
	idSet      map[string]bool
	maxResults int

	statsMu  sync.RWMutex
	attempts int
	failed   int
}

// Stats summarizes the stored history.
type Stats struct {
	Attempts     int        `json:"attempts"`
	Succeeded    int        `json:"succeeded"`
	Failed       int        `json:"failed"`
	Stored       int        `json:"stored"`
	MaxStored    int        `json:"max_stored"`
	AvgDownload  float64    `json:"avg_download"`
	AvgUpload    float64    `json:"avg_upload"`
	BestDownload float64    `json:"best_download"`
	LastRun      *time.Time `json:"last_run,omitempty"`
}

// New creates a store that keeps at most maxResults entries, evicting
// the oldest first.
func New(maxResults int) *Store {
	if maxResults < 1 {
		maxResults = 1
	}
	return &Store{
		results:    make([]*models.SpeedTestResult, 0),
		idSet:      make(map[string]bool),
		maxResults: maxResults,
	}
}

// Add records a completed measurement.
func (s *Store) Add(result *models.SpeedTestResult) error {
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.idSet[result.ID] {
		return fmt.Errorf("duplicate result ID: %s", result.ID)
	}

	s.results = append(s.results, result)
	s.idSet[result.ID] = true
	if len(s.results) > s.maxResults {
		s.removeOldest()
	}

	s.statsMu.Lock()
	s.attempts++
	s.statsMu.Unlock()
	return nil
}

// RecordFailure counts a run that produced no result.
func (s *Store) RecordFailure() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	s.attempts++
	s.failed++
}

// Results returns a copy of the stored results, oldest first.
func (s *Store) Results() []*models.SpeedTestResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]*models.SpeedTestResult, len(s.results))
	copy(results, s.results)
	return results
}

// Sorted returns the stored results ordered by the given field:
// download, upload, ping or timestamp. Results without a ping sort
// after those with one.
func (s *Store) Sorted(sortBy string, ascending bool) []*models.SpeedTestResult {
	results := s.Results()

	sort.SliceStable(results, func(i, j int) bool {
		var less bool
		switch sortBy {
		case "download":
			less = results[i].Download < results[j].Download
		case "upload":
			less = results[i].Upload < results[j].Upload
		case "ping":
			less = pingValue(results[i]) < pingValue(results[j])
		default:
			less = results[i].Timestamp.Before(results[j].Timestamp)
		}
		if ascending {
			return less
		}
		return !less
	})

	return results
}

// Count returns the number of stored results.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

// Clear removes all results and resets the counters.
func (s *Store) Clear() {
	s.mu.Lock()
	s.results = make([]*models.SpeedTestResult, 0)
	s.idSet = make(map[string]bool)
	s.mu.Unlock()

	s.statsMu.Lock()
	s.attempts = 0
	s.failed = 0
	s.statsMu.Unlock()
}

// Stats computes the summary over the stored results.
func (s *Store) Stats() Stats {
	s.statsMu.RLock()
	attempts := s.attempts
	failed := s.failed
	s.statsMu.RUnlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Attempts:  attempts,
		Succeeded: attempts - failed,
		Failed:    failed,
		Stored:    len(s.results),
		MaxStored: s.maxResults,
	}

	if len(s.results) == 0 {
		return stats
	}

	var downSum, upSum float64
	var last time.Time
	for _, r := range s.results {
		downSum += r.Download
		upSum += r.Upload
		if r.Download > stats.BestDownload {
			stats.BestDownload = r.Download
		}
		if r.Timestamp.After(last) {
			last = r.Timestamp
		}
	}
	stats.AvgDownload = downSum / float64(len(s.results))
	stats.AvgUpload = upSum / float64(len(s.results))
	stats.LastRun = &last
	return stats
}

// removeOldest drops the first entry. Callers must hold the write lock.
func (s *Store) removeOldest() {
	if len(s.results) == 0 {
		return
	}
	oldest := s.results[0]
	s.results = s.results[1:]
	delete(s.idSet, oldest.ID)
}

// pingValue orders missing pings last in ascending order.
func pingValue(r *models.SpeedTestResult) float64 {
	if r.Ping == nil {
		return 1e12
	}
	return *r.Ping
}
