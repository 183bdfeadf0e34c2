package speedtest

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Uscout07/casaway-speedtest/internal/probe"
	"github.com/Uscout07/casaway-speedtest/internal/targets"
)

// FallbackMethod is the tolerant second chance: a single small
// download with its own, longer timeout and no upload probes, so a
// constrained network still yields an estimate. Upload is synthesized
// downstream.
type FallbackMethod struct {
	prober *probe.Prober
	log    *logrus.Entry
}

// NewFallback creates the fallback method. The prober should carry a
// more generous timeout than the standard one.
func NewFallback(prober *probe.Prober, log *logrus.Logger) *FallbackMethod {
	return &FallbackMethod{
		prober: prober,
		log:    log.WithField("method", "fallback"),
	}
}

func (m *FallbackMethod) Name() string {
	return "fallback"
}

// Measure fetches the smallest configured download target once.
func (m *FallbackMethod) Measure(ctx context.Context, srv targets.Server) (*Outcome, error) {
	target, ok := srv.SmallestDownload()
	if !ok {
		return nil, fmt.Errorf("server %s has no download targets", srv.Name)
	}

	m.log.WithFields(logrus.Fields{
		"server": srv.Name,
		"bytes":  target.Bytes,
	}).Debug("running fallback probe")

	out := &Outcome{Server: srv.Name}
	out.DownloadSamples = append(out.DownloadSamples, m.prober.Download(ctx, target))
	return out, nil
}
