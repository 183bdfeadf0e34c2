package server

import (
	"context"
	"time"

	"github.com/Uscout07/casaway-speedtest/pkg/models"
)

// Runner executes one full measurement run.
type Runner interface {
	Run(ctx context.Context) (*models.SpeedTestResult, error)
}

// runMeasurement executes the pipeline and records the outcome in
// history, metrics and the event stream. HTTP requests and scheduled
// ticks both go through here.
func (s *Server) runMeasurement(ctx context.Context) (*models.SpeedTestResult, error) {
	s.metrics.RecordRunStart()
	start := time.Now()

	s.cfgMu.RLock()
	runner := s.runner
	s.cfgMu.RUnlock()

	result, err := runner.Run(ctx)
	elapsed := time.Since(start)
	s.metrics.RecordTimer("run.duration", elapsed, nil)

	if err != nil {
		s.history.RecordFailure()
		s.metrics.RecordRunComplete(false)
		s.metrics.RecordCounter("runs.failed", 1, nil)
		s.publishFailure(ctx, err.Error())
		return nil, err
	}

	if herr := s.history.Add(result); herr != nil {
		s.log.WithError(herr).Warn("failed to store result in history")
	}
	s.metrics.RecordRunComplete(true)
	s.metrics.RecordCounter("runs.successful", 1, map[string]string{
		"method": result.Method,
	})
	s.metrics.RecordDownloadSample(result.Download, result.BytesTransferred, elapsed.Seconds())
	if result.Ping != nil {
		s.metrics.RecordLatencySample(*result.Ping)
	}
	s.metrics.RecordGauge("history.stored", float64(s.history.Count()), nil)

	if s.publisher != nil {
		if perr := s.publisher.PublishMeasurement(ctx, result); perr != nil {
			s.log.WithError(perr).Warn("failed to publish measurement event")
		}
	}

	return result, nil
}

func (s *Server) publishFailure(ctx context.Context, reason string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishFailure(ctx, reason); err != nil {
		s.log.WithError(err).Warn("failed to publish failure event")
	}
}

// scheduledRun runs one measurement on a scheduler tick.
func (s *Server) scheduledRun(ctx context.Context) error {
	_, err := s.runMeasurement(ctx)
	return err
}
