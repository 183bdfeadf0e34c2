package workerpool

import (
	"context"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Uscout07/casaway-speedtest/internal/targets"
)

// PingFunc measures one candidate's latency in milliseconds.
type PingFunc func(ctx context.Context, url string) (float64, error)

// Ranking is the outcome of probing one candidate server.
type Ranking struct {
	Server    targets.Server
	LatencyMs float64
	Err       error
}

// Pool fans a batch of candidate servers over a bounded set of workers
// and collects their latency rankings. Only these cheap latency checks
// run concurrently; bandwidth probes stay strictly sequential so they
// do not contend for the link under test.
type Pool struct {
	workers int
	log     *logrus.Entry
}

// New creates a pool with the given worker bound.
func New(workers int, log *logrus.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		workers: workers,
		log:     log.WithField("component", "workerpool"),
	}
}

// Workers returns the concurrency bound.
func (p *Pool) Workers() int {
	return p.workers
}

// Rank probes every candidate and returns the reachable ones ordered
// fastest first, followed by the unreachable ones.
func (p *Pool) Rank(ctx context.Context, candidates []targets.Server, ping PingFunc) []Ranking {
	if len(candidates) == 0 {
		return nil
	}

	jobs := make(chan targets.Server, len(candidates))
	results := make(chan Ranking, len(candidates))

	workers := p.workers
	if workers > len(candidates) {
		workers = len(candidates)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for srv := range jobs {
				select {
				case <-ctx.Done():
					results <- Ranking{Server: srv, Err: ctx.Err()}
					continue
				default:
				}

				ms, err := ping(ctx, srv.PingURL)
				if err != nil {
					p.log.WithField("server", srv.Name).WithError(err).Debug("latency check failed")
				}
				results <- Ranking{Server: srv, LatencyMs: ms, Err: err}
			}
		}()
	}

	for _, srv := range candidates {
		jobs <- srv
	}
	close(jobs)
	wg.Wait()
	close(results)

	rankings := make([]Ranking, 0, len(candidates))
	for r := range results {
		rankings = append(rankings, r)
	}
	sort.SliceStable(rankings, func(i, j int) bool {
		if (rankings[i].Err == nil) != (rankings[j].Err == nil) {
			return rankings[i].Err == nil
		}
		return rankings[i].LatencyMs < rankings[j].LatencyMs
	})
	return rankings
}

// Fastest returns the best reachable candidate from a ranking.
func Fastest(rankings []Ranking) (targets.Server, bool) {
	for _, r := range rankings {
		if r.Err == nil {
			return r.Server, true
		}
	}
	return targets.Server{}, false
}
