package probe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Uscout07/casaway-speedtest/internal/targets"
	"github.com/Uscout07/casaway-speedtest/pkg/models"
)

const (
	chunkSize = 65536

	// minElapsed guards against timing artifacts. A probe that finishes
	// faster than this carries no usable signal and is marked failed.
	minElapsed = time.Millisecond

	userAgent = "casaway-speedtest/1.0"
)

// Prober executes single timed network probes. Each call performs
// exactly one transfer; sequencing and pacing belong to the caller.
type Prober struct {
	timeout time.Duration
	log     *logrus.Entry
}

// New creates a prober. The timeout bounds each individual probe from
// dial to last byte.
func New(timeout time.Duration, log *logrus.Logger) *Prober {
	return &Prober{
		timeout: timeout,
		log:     log.WithField("component", "probe"),
	}
}

// Timeout returns the per-probe timeout.
func (p *Prober) Timeout() time.Duration {
	return p.timeout
}

// Download fetches one fixed-size target and reports the timed
// transfer. The timer starts immediately before the request is issued
// and stops once the body has been fully consumed; the byte count is
// what actually arrived, not the nominal target size.
func (p *Prober) Download(ctx context.Context, target targets.DownloadTarget) models.Sample {
	sample := models.Sample{Kind: models.SampleDownload}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
	if err != nil {
		return p.failed(sample, fmt.Errorf("failed to create download request: %w", err))
	}
	setProbeHeaders(req)

	client := p.createHTTPClient()
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return p.failed(sample, fmt.Errorf("download request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return p.failed(sample, fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	total, err := drain(resp.Body)
	sample.Elapsed = time.Since(start)
	sample.Bytes = total
	if err != nil {
		return p.failed(sample, fmt.Errorf("error reading data: %w", err))
	}
	if sample.Elapsed < minElapsed {
		return p.failed(sample, fmt.Errorf("probe completed too quickly to time"))
	}

	sample.Succeeded = true
	return sample
}

// Upload posts the payload and reports the timed transfer. The counted
// size is the serialized body length; the timer runs from just before
// the send until the server's response has been received.
func (p *Prober) Upload(ctx context.Context, url string, payload *Payload) models.Sample {
	sample := models.Sample{Kind: models.SampleUpload, Bytes: payload.Size()}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload.Body()))
	if err != nil {
		return p.failed(sample, fmt.Errorf("failed to create upload request: %w", err))
	}
	setProbeHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	client := p.createHTTPClient()
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return p.failed(sample, fmt.Errorf("upload request failed: %w", err))
	}
	defer resp.Body.Close()

	_, drainErr := drain(resp.Body)
	sample.Elapsed = time.Since(start)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return p.failed(sample, fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}
	if drainErr != nil {
		return p.failed(sample, fmt.Errorf("error reading upload response: %w", drainErr))
	}
	if sample.Elapsed < minElapsed {
		return p.failed(sample, fmt.Errorf("probe completed too quickly to time"))
	}

	sample.Succeeded = true
	return sample
}

// Latency issues one small GET and returns the elapsed milliseconds
// until the response was fully received.
func (p *Prober) Latency(ctx context.Context, url string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create latency request: %w", err)
	}
	setProbeHeaders(req)

	client := p.createHTTPClient()
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("latency request failed: %w", err)
	}
	defer resp.Body.Close()

	if _, err := drain(resp.Body); err != nil {
		return 0, fmt.Errorf("error reading latency response: %w", err)
	}
	ms := time.Since(start).Seconds() * 1000

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ms, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return ms, nil
}

// LatencyBurst runs count sequential latency probes with a pause
// between them and summarizes the successful ones. Jitter is the mean
// absolute difference between consecutive probes.
func (p *Prober) LatencyBurst(ctx context.Context, url string, count int, delay time.Duration) (*models.LatencyStats, error) {
	if count <= 0 {
		return nil, fmt.Errorf("latency burst needs a positive probe count")
	}

	var values []float64
	for i := 0; i < count; i++ {
		if i > 0 && delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		ms, err := p.Latency(ctx, url)
		if err != nil {
			p.log.WithError(err).Debug("latency probe failed")
			continue
		}
		values = append(values, ms)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("all %d latency probes failed", count)
	}

	stats := &models.LatencyStats{Min: values[0], Max: values[0], Count: len(values)}
	var sum, diffSum float64
	for i, v := range values {
		sum += v
		if v < stats.Min {
			stats.Min = v
		}
		if v > stats.Max {
			stats.Max = v
		}
		if i > 0 {
			d := v - values[i-1]
			if d < 0 {
				d = -d
			}
			diffSum += d
		}
	}
	stats.Mean = sum / float64(len(values))
	if len(values) > 1 {
		stats.Jitter = diffSum / float64(len(values)-1)
	}
	return stats, nil
}

// failed finalizes a sample as unusable and keeps the cause on it.
func (p *Prober) failed(sample models.Sample, err error) models.Sample {
	sample.Succeeded = false
	sample.Error = err.Error()
	p.log.WithField("kind", sample.Kind).WithError(err).Debug("probe failed")
	return sample
}

// createHTTPClient builds the client used for a single probe.
func (p *Prober) createHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: p.timeout,
		}).DialContext,
		DisableKeepAlives: false,
		MaxIdleConns:      10,
		IdleConnTimeout:   30 * time.Second,
	}
	return &http.Client{
		Timeout:   p.timeout,
		Transport: transport,
	}
}

// setProbeHeaders marks the request uncacheable so intermediaries do
// not serve a stored copy and skew the timing.
func setProbeHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
}

// drain consumes the reader in fixed chunks, counting the bytes that
// actually arrived.
func drain(r io.Reader) (int64, error) {
	var total int64
	chunk := make([]byte, chunkSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			total += int64(n)
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}
