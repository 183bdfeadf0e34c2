package estimate

import (
	"errors"
	"fmt"
	"math"

	"github.com/Uscout07/casaway-speedtest/pkg/models"
)

// minElapsedSeconds guards the division in Throughput. Samples faster
// than this carry no usable timing signal.
const minElapsedSeconds = 0.001

var (
	// ErrSampleFailed is returned when a failed sample reaches the estimator.
	ErrSampleFailed = errors.New("sample did not succeed")

	// ErrSampleTooFast is returned when a sample completed too quickly to time.
	ErrSampleTooFast = errors.New("sample completed too quickly to time")
)

// Profile carries the calibration constants applied to raw probe math.
// One profile is loaded from configuration at startup and shared
// read-only by every measurement run.
type Profile struct {
	DownloadFactor    float64
	UploadFactor      float64
	UploadRatio       float64
	FloorMbps         float64
	PrecisionDecimals int
	CoarseStep        float64

	// RatioJitter, when set, perturbs the synthesized upload ratio per
	// call. Left nil, synthesis is fully deterministic.
	RatioJitter func() float64
}

// DefaultProfile returns the calibration constants used in production.
func DefaultProfile() Profile {
	return Profile{
		DownloadFactor:    1.10,
		UploadFactor:      1.05,
		UploadRatio:       0.35,
		FloorMbps:         0.5,
		PrecisionDecimals: 2,
	}
}

// Validate checks that the profile constants are usable.
func (p Profile) Validate() error {
	if p.DownloadFactor <= 0 {
		return fmt.Errorf("download factor must be positive, got %v", p.DownloadFactor)
	}
	if p.UploadFactor <= 0 {
		return fmt.Errorf("upload factor must be positive, got %v", p.UploadFactor)
	}
	if p.UploadRatio < 0.2 || p.UploadRatio > 0.5 {
		return fmt.Errorf("upload ratio must be within [0.2, 0.5], got %v", p.UploadRatio)
	}
	if p.FloorMbps < 0 {
		return fmt.Errorf("floor must not be negative, got %v", p.FloorMbps)
	}
	if p.PrecisionDecimals < 0 || p.PrecisionDecimals > 6 {
		return fmt.Errorf("precision decimals must be within [0, 6], got %d", p.PrecisionDecimals)
	}
	if p.CoarseStep < 0 {
		return fmt.Errorf("coarse step must not be negative, got %v", p.CoarseStep)
	}
	return nil
}

// Throughput converts one successful sample into calibrated Mbps. The
// result is unrounded; Report applies floor and rounding.
func (p Profile) Throughput(s models.Sample) (float64, error) {
	if !s.Succeeded {
		return 0, ErrSampleFailed
	}
	secs := s.Seconds()
	if secs < minElapsedSeconds {
		return 0, ErrSampleTooFast
	}
	mbps := (float64(s.Bytes) * 8) / (secs * 1000000)
	if s.Kind == models.SampleUpload {
		return mbps * p.UploadFactor, nil
	}
	return mbps * p.DownloadFactor, nil
}

// SynthesizeUpload derives an upload figure from the measured download
// when no upload sample succeeded. The effective ratio is clamped to
// the plausible [0.2, 0.5] band even when jitter is configured.
func (p Profile) SynthesizeUpload(download float64) float64 {
	ratio := p.UploadRatio
	if p.RatioJitter != nil {
		ratio += p.RatioJitter()
	}
	if ratio < 0.2 {
		ratio = 0.2
	}
	if ratio > 0.5 {
		ratio = 0.5
	}
	return download * ratio
}

// Report clamps a throughput value to the configured floor and rounds
// it for presentation: to PrecisionDecimals decimals, or to the nearest
// CoarseStep multiple when coarse reporting is configured. The floor
// always holds and Report(Report(x)) == Report(x).
func (p Profile) Report(mbps float64) float64 {
	if mbps < p.FloorMbps {
		mbps = p.FloorMbps
	}
	if p.CoarseStep > 0 {
		mbps = math.Round(mbps/p.CoarseStep) * p.CoarseStep
	} else {
		pow := math.Pow(10, float64(p.PrecisionDecimals))
		mbps = math.Round(mbps*pow) / pow
	}
	if mbps < p.FloorMbps {
		mbps = p.FloorMbps
	}
	return mbps
}

// Aggregate summarizes calibrated throughput values for one direction.
type Aggregate struct {
	Mean  float64
	Min   float64
	Max   float64
	Count int
}

// Summarize computes mean, min and max over the given values. The
// second return is false when there is nothing to summarize, which the
// caller must treat as "direction unmeasured" rather than zero.
func Summarize(values []float64) (Aggregate, bool) {
	if len(values) == 0 {
		return Aggregate{}, false
	}
	agg := Aggregate{Min: values[0], Max: values[0], Count: len(values)}
	var sum float64
	for _, v := range values {
		sum += v
		if v < agg.Min {
			agg.Min = v
		}
		if v > agg.Max {
			agg.Max = v
		}
	}
	agg.Mean = sum / float64(len(values))
	return agg, true
}
