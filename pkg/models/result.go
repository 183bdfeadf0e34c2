package models

import "time"

// SampleKind identifies the direction of a probe sample.
type SampleKind string

const (
	SampleDownload SampleKind = "download"
	SampleUpload   SampleKind = "upload"
)

// Sample is one timed transfer against a probe target. Network failures
// are recorded on the sample instead of being returned as errors, so a
// probe loop can keep going.
type Sample struct {
	Kind      SampleKind    `json:"kind"`
	Bytes     int64         `json:"bytes"`
	Elapsed   time.Duration `json:"elapsed"`
	Succeeded bool          `json:"succeeded"`
	Error     string        `json:"error,omitempty"`
}

// Seconds returns the elapsed time as fractional seconds.
func (s Sample) Seconds() float64 {
	return s.Elapsed.Seconds()
}

// LatencyStats summarizes a burst of latency probes. All values are in
// milliseconds; Jitter is the mean absolute difference between
// consecutive probes.
type LatencyStats struct {
	Mean   float64 `json:"mean"`
	Jitter float64 `json:"jitter"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Count  int     `json:"count"`
}

// SpeedTestResult is a completed bandwidth measurement as reported to
// clients. Ping and Jitter are null when the run never measured latency.
type SpeedTestResult struct {
	ID                string    `json:"id"`
	Download          float64   `json:"download"` // Mbps
	Upload            float64   `json:"upload"`   // Mbps
	Ping              *float64  `json:"ping"`     // ms
	Jitter            *float64  `json:"jitter"`   // ms
	Server            string    `json:"server,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
	Method            string    `json:"method"`
	DownloadMin       float64   `json:"download_min,omitempty"`
	DownloadMax       float64   `json:"download_max,omitempty"`
	DownloadSamples   int       `json:"download_samples"`
	UploadSamples     int       `json:"upload_samples"`
	UploadSynthesized bool      `json:"upload_synthesized,omitempty"`
	BytesTransferred  int64     `json:"bytes_transferred,omitempty"`
}

// SpeedTestResponse wraps a successful measurement for the HTTP API.
type SpeedTestResponse struct {
	Success bool `json:"success"`
	SpeedTestResult
}

// ErrorResponse is the envelope for every failed HTTP request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}
