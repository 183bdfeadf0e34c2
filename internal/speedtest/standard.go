package speedtest

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Uscout07/casaway-speedtest/internal/probe"
	"github.com/Uscout07/casaway-speedtest/internal/targets"
)

// pingInterval paces the probes inside a latency burst.
const pingInterval = 100 * time.Millisecond

// StandardMethod is the primary measurement strategy: a latency burst,
// then the full ladder of download targets, then the upload probes.
// Bandwidth probes run strictly sequentially with a pause between
// transfers so they never contend for the link under test.
type StandardMethod struct {
	prober      *probe.Prober
	pingCount   int
	probeDelay  time.Duration
	uploadSizes []int64
	log         *logrus.Entry
}

// NewStandard creates the primary method.
func NewStandard(prober *probe.Prober, pingCount int, probeDelay time.Duration, uploadSizes []int64, log *logrus.Logger) *StandardMethod {
	return &StandardMethod{
		prober:      prober,
		pingCount:   pingCount,
		probeDelay:  probeDelay,
		uploadSizes: uploadSizes,
		log:         log.WithField("method", "standard"),
	}
}

func (m *StandardMethod) Name() string {
	return "standard"
}

// Measure collects latency, download and upload samples from the
// server. Ping is best effort: a failed burst does not abort the run.
func (m *StandardMethod) Measure(ctx context.Context, srv targets.Server) (*Outcome, error) {
	if len(srv.Downloads) == 0 {
		return nil, fmt.Errorf("server %s has no download targets", srv.Name)
	}

	out := &Outcome{Server: srv.Name}

	if srv.PingURL != "" && m.pingCount > 0 {
		stats, err := m.prober.LatencyBurst(ctx, srv.PingURL, m.pingCount, pingInterval)
		if err != nil {
			m.log.WithError(err).Debug("latency burst failed, continuing without ping")
		} else {
			out.Latency = stats
		}
	}

	for i, target := range srv.Downloads {
		if i > 0 {
			if err := m.pause(ctx); err != nil {
				return nil, err
			}
		}
		out.DownloadSamples = append(out.DownloadSamples, m.prober.Download(ctx, target))
	}

	if srv.UploadURL != "" {
		for _, size := range m.uploadSizes {
			if err := m.pause(ctx); err != nil {
				return nil, err
			}
			out.UploadSamples = append(out.UploadSamples, m.prober.Upload(ctx, srv.UploadURL, probe.NewPayload(size)))
		}
	}

	return out, nil
}

func (m *StandardMethod) pause(ctx context.Context) error {
	if m.probeDelay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.probeDelay):
		return nil
	}
}
