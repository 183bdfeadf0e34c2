package speedtest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Uscout07/casaway-speedtest/internal/estimate"
	"github.com/Uscout07/casaway-speedtest/pkg/models"
)

// Pipeline runs the configured measurement methods in order until one
// yields a usable result, then turns its samples into the reported
// figures. Every run picks its server fresh; the pipeline itself holds
// no mutable state, so concurrent runs are safe.
type Pipeline struct {
	picker  ServerPicker
	methods []Method
	profile estimate.Profile
	log     *logrus.Entry

	now   func() time.Time
	newID func() string
}

// NewPipeline assembles the measurement pipeline. Methods are tried in
// the order given.
func NewPipeline(picker ServerPicker, methods []Method, profile estimate.Profile, log *logrus.Logger) *Pipeline {
	return &Pipeline{
		picker:  picker,
		methods: methods,
		profile: profile,
		log:     log.WithField("component", "speedtest"),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Run executes one full measurement. The returned error is terminal:
// every configured method was tried and none produced a usable
// download sample.
func (p *Pipeline) Run(ctx context.Context) (*models.SpeedTestResult, error) {
	if len(p.methods) == 0 {
		return nil, ErrAllMethodsFailed
	}

	srv, err := p.picker.Pick(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to pick probe server: %w", err)
	}

	var lastErr error
	for _, m := range p.methods {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		out, err := m.Measure(ctx, srv)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", m.Name(), err)
			p.log.WithField("method", m.Name()).WithError(err).Warn("measurement method failed")
			continue
		}

		result, err := p.assemble(out, m.Name())
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", m.Name(), err)
			p.log.WithField("method", m.Name()).WithError(err).Warn("measurement method exhausted")
			continue
		}

		p.log.WithFields(logrus.Fields{
			"method":   m.Name(),
			"server":   result.Server,
			"download": result.Download,
			"upload":   result.Upload,
		}).Info("measurement complete")
		return result, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrAllMethodsFailed, lastErr)
}

// assemble turns a method outcome into the reported result. It fails
// with ErrMethodExhausted when not a single download sample survived
// estimation.
func (p *Pipeline) assemble(out *Outcome, method string) (*models.SpeedTestResult, error) {
	var bytesMoved int64

	var downloads []float64
	for _, s := range out.DownloadSamples {
		v, err := p.profile.Throughput(s)
		if err != nil {
			continue
		}
		downloads = append(downloads, v)
		bytesMoved += s.Bytes
	}
	downAgg, ok := estimate.Summarize(downloads)
	if !ok {
		return nil, ErrMethodExhausted
	}

	var uploads []float64
	for _, s := range out.UploadSamples {
		v, err := p.profile.Throughput(s)
		if err != nil {
			continue
		}
		uploads = append(uploads, v)
		bytesMoved += s.Bytes
	}

	result := &models.SpeedTestResult{
		ID:               p.newID(),
		Download:         p.profile.Report(downAgg.Mean),
		Server:           out.Server,
		Timestamp:        p.now().UTC(),
		Method:           method,
		DownloadMin:      p.profile.Report(downAgg.Min),
		DownloadMax:      p.profile.Report(downAgg.Max),
		DownloadSamples:  downAgg.Count,
		BytesTransferred: bytesMoved,
	}

	if upAgg, ok := estimate.Summarize(uploads); ok {
		result.Upload = p.profile.Report(upAgg.Mean)
		result.UploadSamples = upAgg.Count
	} else {
		result.Upload = p.profile.Report(p.profile.SynthesizeUpload(result.Download))
		result.UploadSynthesized = true
	}

	if out.Latency != nil {
		ping := out.Latency.Mean
		jitter := out.Latency.Jitter
		result.Ping = &ping
		result.Jitter = &jitter
	}

	return result, nil
}
