package speedtest

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Uscout07/casaway-speedtest/internal/probe"
	"github.com/Uscout07/casaway-speedtest/internal/targets"
	"github.com/Uscout07/casaway-speedtest/internal/workerpool"
)

// ServerPicker selects the probe server a run measures against.
type ServerPicker interface {
	Pick(ctx context.Context) (targets.Server, error)
}

// RankingPicker selects the lowest-latency reachable server from the
// registry. With a single server registered it skips ranking entirely;
// when nothing answers the latency check it hands back the first
// configured server and lets the methods report what actually fails.
type RankingPicker struct {
	registry *targets.Registry
	pool     *workerpool.Pool
	prober   *probe.Prober
	log      *logrus.Entry
}

// NewRankingPicker wires the picker from its collaborators.
func NewRankingPicker(registry *targets.Registry, pool *workerpool.Pool, prober *probe.Prober, log *logrus.Logger) *RankingPicker {
	return &RankingPicker{
		registry: registry,
		pool:     pool,
		prober:   prober,
		log:      log.WithField("component", "picker"),
	}
}

// Pick returns the server to measure against.
func (p *RankingPicker) Pick(ctx context.Context) (targets.Server, error) {
	servers := p.registry.Servers()
	if len(servers) == 0 {
		return targets.Server{}, ErrNoServers
	}
	if len(servers) == 1 {
		return servers[0], nil
	}

	rankings := p.pool.Rank(ctx, servers, p.prober.Latency)
	if best, ok := workerpool.Fastest(rankings); ok {
		p.log.WithField("server", best.Name).Debug("picked fastest probe server")
		return best, nil
	}

	p.log.Warn("no server answered the latency check, using first configured")
	return servers[0], nil
}
