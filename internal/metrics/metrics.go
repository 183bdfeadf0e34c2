package metrics

import (
	"sync"
	"time"
)

// MetricType represents different kinds of metrics.
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
	MetricTypeTimer   MetricType = "timer"
)

// Metric is a single named metric.
type Metric struct {
	Name        string            `json:"name"`
	Type        MetricType        `json:"type"`
	Value       float64           `json:"value"`
	Count       int64             `json:"count"`
	LastUpdated time.Time         `json:"last_updated"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// WindowSample is one download measurement kept in the sliding window.
type WindowSample struct {
	Timestamp time.Time `json:"timestamp"`
	Mbps      float64   `json:"mbps"`
	Bytes     int64     `json:"bytes"`
	Seconds   float64   `json:"seconds"`
}

// RunStats aggregates measurement-run accounting since startup.
type RunStats struct {
	RunsStarted      int64     `json:"runs_started"`
	RunsCompleted    int64     `json:"runs_completed"`
	RunsSuccessful   int64     `json:"runs_successful"`
	RunsFailed       int64     `json:"runs_failed"`
	AvgDownload      float64   `json:"avg_download"`
	PeakDownload     float64   `json:"peak_download"`
	AvgLatency       float64   `json:"avg_latency"`
	MinLatency       float64   `json:"min_latency"`
	MaxLatency       float64   `json:"max_latency"`
	BytesTransferred int64     `json:"bytes_transferred"`
	UptimeSeconds    float64   `json:"uptime_seconds"`
	LastUpdated      time.Time `json:"last_updated"`
}

const latencySentinel = 999999

// Metrics manages in-process measurement metrics. Everything lives in
// memory and resets with the process.
type Metrics struct {
	mu             sync.RWMutex
	metrics        map[string]*Metric
	window         *SlidingWindow
	stats          *RunStats
	startTime      time.Time
	downloads      []float64
	latencySamples []float64
}

// New creates a metrics manager.
func New() *Metrics {
	return &Metrics{
		metrics:   make(map[string]*Metric),
		window:    NewSlidingWindow(100, 30*time.Second),
		stats:     &RunStats{MinLatency: latencySentinel},
		startTime: time.Now(),
	}
}

// RecordCounter increments a counter metric.
func (m *Metrics) RecordCounter(name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metric, exists := m.metrics[name]
	if !exists {
		metric = &Metric{Name: name, Type: MetricTypeCounter, Tags: tags}
		m.metrics[name] = metric
	}
	metric.Value += value
	metric.Count++
	metric.LastUpdated = time.Now()
}

// RecordGauge sets a gauge metric.
func (m *Metrics) RecordGauge(name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metric, exists := m.metrics[name]
	if !exists {
		metric = &Metric{Name: name, Type: MetricTypeGauge, Tags: tags}
		m.metrics[name] = metric
	}
	metric.Value = value
	metric.Count++
	metric.LastUpdated = time.Now()
}

// RecordTimer records a duration, keeping a running average in seconds.
func (m *Metrics) RecordTimer(name string, duration time.Duration, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metric, exists := m.metrics[name]
	if !exists {
		metric = &Metric{Name: name, Type: MetricTypeTimer, Tags: tags}
		m.metrics[name] = metric
	}
	totalValue := metric.Value * float64(metric.Count)
	metric.Count++
	metric.Value = (totalValue + duration.Seconds()) / float64(metric.Count)
	metric.LastUpdated = time.Now()
}

// RecordDownloadSample feeds one download figure into the sliding
// window and the run aggregates.
func (m *Metrics) RecordDownloadSample(mbps float64, bytes int64, seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.window.AddSample(WindowSample{
		Timestamp: time.Now(),
		Mbps:      mbps,
		Bytes:     bytes,
		Seconds:   seconds,
	})

	m.downloads = append(m.downloads, mbps)
	if mbps > m.stats.PeakDownload {
		m.stats.PeakDownload = mbps
	}
	var total float64
	for _, v := range m.downloads {
		total += v
	}
	m.stats.AvgDownload = total / float64(len(m.downloads))
	m.stats.BytesTransferred += bytes
	m.stats.LastUpdated = time.Now()
}

// RecordLatencySample records one latency figure in milliseconds.
func (m *Metrics) RecordLatencySample(ms float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.latencySamples = append(m.latencySamples, ms)
	if ms < m.stats.MinLatency {
		m.stats.MinLatency = ms
	}
	if ms > m.stats.MaxLatency {
		m.stats.MaxLatency = ms
	}
	var total float64
	for _, v := range m.latencySamples {
		total += v
	}
	m.stats.AvgLatency = total / float64(len(m.latencySamples))
	m.stats.LastUpdated = time.Now()
}

// RecordRunStart counts a measurement run beginning.
func (m *Metrics) RecordRunStart() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.RunsStarted++
	m.stats.LastUpdated = time.Now()
}

// RecordRunComplete counts a finished run.
func (m *Metrics) RecordRunComplete(successful bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.RunsCompleted++
	if successful {
		m.stats.RunsSuccessful++
	} else {
		m.stats.RunsFailed++
	}
	m.stats.LastUpdated = time.Now()
}

// GetMetric returns a copy of one metric, or nil.
func (m *Metrics) GetMetric(name string) *Metric {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if metric, exists := m.metrics[name]; exists {
		copied := *metric
		return &copied
	}
	return nil
}

// GetAllMetrics returns copies of every named metric.
func (m *Metrics) GetAllMetrics() map[string]*Metric {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]*Metric, len(m.metrics))
	for name, metric := range m.metrics {
		copied := *metric
		result[name] = &copied
	}
	return result
}

// GetRunStats returns a copy of the run aggregates. Latency min/max
// read as zero until a latency sample arrives.
func (m *Metrics) GetRunStats() *RunStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := *m.stats
	if len(m.latencySamples) == 0 {
		stats.MinLatency = 0
		stats.MaxLatency = 0
	}
	stats.UptimeSeconds = time.Since(m.startTime).Seconds()
	return &stats
}

// GetSmoothedDownload returns the recency-weighted download average
// over the sliding window.
func (m *Metrics) GetSmoothedDownload() float64 {
	return m.window.GetSmoothedSpeed()
}

// GetRecentSamples returns the latest window samples.
func (m *Metrics) GetRecentSamples(count int) []WindowSample {
	return m.window.GetRecentSamples(count)
}

// GetWindowStats returns summary statistics about the sliding window.
func (m *Metrics) GetWindowStats() map[string]interface{} {
	return m.window.GetWindowStats()
}

// Reset clears all metrics and restarts the uptime clock.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.metrics = make(map[string]*Metric)
	m.window = NewSlidingWindow(100, 30*time.Second)
	m.stats = &RunStats{MinLatency: latencySentinel}
	m.startTime = time.Now()
	m.downloads = nil
	m.latencySamples = nil
}

// SlidingWindow maintains a bounded, time-limited series of download
// samples.
type SlidingWindow struct {
	samples    []WindowSample
	maxSize    int
	windowSize time.Duration
	mu         sync.RWMutex
}

// NewSlidingWindow creates a window of at most maxSize samples no
// older than windowSize.
func NewSlidingWindow(maxSize int, windowSize time.Duration) *SlidingWindow {
	return &SlidingWindow{
		samples:    make([]WindowSample, 0, maxSize),
		maxSize:    maxSize,
		windowSize: windowSize,
	}
}

// AddSample appends a sample and trims everything that fell out of the
// window.
func (sw *SlidingWindow) AddSample(sample WindowSample) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.samples = append(sw.samples, sample)

	cutoff := time.Now().Add(-sw.windowSize)
	keep := len(sw.samples)
	for i, s := range sw.samples {
		if s.Timestamp.After(cutoff) {
			keep = i
			break
		}
	}
	sw.samples = sw.samples[keep:]

	if len(sw.samples) > sw.maxSize {
		sw.samples = sw.samples[len(sw.samples)-sw.maxSize:]
	}
}

// GetSmoothedSpeed computes a weighted average where newer samples
// count for more.
func (sw *SlidingWindow) GetSmoothedSpeed() float64 {
	sw.mu.RLock()
	defer sw.mu.RUnlock()

	if len(sw.samples) == 0 {
		return 0
	}
	if len(sw.samples) == 1 {
		return sw.samples[0].Mbps
	}

	totalWeight := 0.0
	weightedSum := 0.0
	now := time.Now()

	for i, sample := range sw.samples {
		age := now.Sub(sample.Timestamp).Seconds()
		ageWeight := 1.0 / (1.0 + age/10.0)
		positionWeight := float64(i+1) / float64(len(sw.samples))

		weight := ageWeight * positionWeight
		weightedSum += sample.Mbps * weight
		totalWeight += weight
	}

	if totalWeight > 0 {
		return weightedSum / totalWeight
	}
	return 0
}

// GetRecentSamples returns up to count of the newest samples.
func (sw *SlidingWindow) GetRecentSamples(count int) []WindowSample {
	sw.mu.RLock()
	defer sw.mu.RUnlock()

	if count <= 0 || len(sw.samples) == 0 {
		return []WindowSample{}
	}

	start := len(sw.samples) - count
	if start < 0 {
		start = 0
	}
	result := make([]WindowSample, len(sw.samples)-start)
	copy(result, sw.samples[start:])
	return result
}

// GetSampleCount returns the number of samples in the window.
func (sw *SlidingWindow) GetSampleCount() int {
	sw.mu.RLock()
	defer sw.mu.RUnlock()
	return len(sw.samples)
}

// GetWindowStats summarizes the current window contents.
func (sw *SlidingWindow) GetWindowStats() map[string]interface{} {
	sw.mu.RLock()
	defer sw.mu.RUnlock()

	if len(sw.samples) == 0 {
		return map[string]interface{}{
			"sample_count":        0,
			"window_size_seconds": sw.windowSize.Seconds(),
			"max_size":            sw.maxSize,
		}
	}

	minMbps := sw.samples[0].Mbps
	maxMbps := sw.samples[0].Mbps
	total := 0.0
	for _, sample := range sw.samples {
		if sample.Mbps < minMbps {
			minMbps = sample.Mbps
		}
		if sample.Mbps > maxMbps {
			maxMbps = sample.Mbps
		}
		total += sample.Mbps
	}

	return map[string]interface{}{
		"sample_count":        len(sw.samples),
		"window_size_seconds": sw.windowSize.Seconds(),
		"max_size":            sw.maxSize,
		"min_mbps":            minMbps,
		"max_mbps":            maxMbps,
		"avg_mbps":            total / float64(len(sw.samples)),
		"oldest_sample":       sw.samples[0].Timestamp,
		"newest_sample":       sw.samples[len(sw.samples)-1].Timestamp,
	}
}
