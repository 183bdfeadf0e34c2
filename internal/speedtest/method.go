package speedtest

import (
	"context"

	"github.com/Uscout07/casaway-speedtest/internal/targets"
	"github.com/Uscout07/casaway-speedtest/pkg/models"
)

// Outcome is the raw product of one measurement method: the probe
// samples it collected per direction plus optional latency stats.
// Estimation and aggregation happen later in the pipeline.
type Outcome struct {
	Server          string
	DownloadSamples []models.Sample
	UploadSamples   []models.Sample
	Latency         *models.LatencyStats
}

// Method is one strategy for collecting probe samples against a
// server. Measure returns an error only when it could not attempt
// probes at all; individual probe failures travel inside the outcome.
type Method interface {
	Name() string
	Measure(ctx context.Context, srv targets.Server) (*Outcome, error)
}
