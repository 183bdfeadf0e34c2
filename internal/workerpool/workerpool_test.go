package workerpool

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Uscout07/casaway-speedtest/internal/targets"
)

func candidate(name string) targets.Server {
	return targets.Server{
		Name:    name,
		PingURL: "http://" + name + "/ping",
		Downloads: []targets.DownloadTarget{
			{URL: "http://" + name + "/2m", Bytes: 2_000_000},
		},
	}
}

func TestRankOrdersByLatency(t *testing.T) {
	latencies := map[string]float64{
		"http://slow/ping":   80,
		"http://fast/ping":   5,
		"http://medium/ping": 30,
	}
	ping := func(_ context.Context, url string) (float64, error) {
		return latencies[url], nil
	}

	pool := New(2, logrus.New())
	rankings := pool.Rank(context.Background(),
		[]targets.Server{candidate("slow"), candidate("fast"), candidate("medium")}, ping)

	require.Len(t, rankings, 3)
	assert.Equal(t, "fast", rankings[0].Server.Name)
	assert.Equal(t, "medium", rankings[1].Server.Name)
	assert.Equal(t, "slow", rankings[2].Server.Name)

	best, ok := Fastest(rankings)
	require.True(t, ok)
	assert.Equal(t, "fast", best.Name)
}

func TestRankPutsUnreachableLast(t *testing.T) {
	ping := func(_ context.Context, url string) (float64, error) {
		if url == "http://dead/ping" {
			return 0, fmt.Errorf("connection refused")
		}
		return 42, nil
	}

	pool := New(4, logrus.New())
	rankings := pool.Rank(context.Background(),
		[]targets.Server{candidate("dead"), candidate("alive")}, ping)

	require.Len(t, rankings, 2)
	assert.Equal(t, "alive", rankings[0].Server.Name)
	assert.Error(t, rankings[1].Err)

	best, ok := Fastest(rankings)
	require.True(t, ok)
	assert.Equal(t, "alive", best.Name)
}

func TestFastestWithNothingReachable(t *testing.T) {
	ping := func(_ context.Context, _ string) (float64, error) {
		return 0, fmt.Errorf("no route")
	}

	pool := New(2, logrus.New())
	rankings := pool.Rank(context.Background(),
		[]targets.Server{candidate("a"), candidate("b")}, ping)

	_, ok := Fastest(rankings)
	assert.False(t, ok)
}

func TestRankRespectsWorkerBound(t *testing.T) {
	var mu sync.Mutex
	current, peak := 0, 0

	ping := func(_ context.Context, _ string) (float64, error) {
		mu.Lock()
		current++
		if current > peak {
			peak = current
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		current--
		mu.Unlock()
		return 1, nil
	}

	pool := New(2, logrus.New())
	servers := []targets.Server{
		candidate("a"), candidate("b"), candidate("c"),
		candidate("d"), candidate("e"), candidate("f"),
	}
	rankings := pool.Rank(context.Background(), servers, ping)

	assert.Len(t, rankings, len(servers))
	assert.LessOrEqual(t, peak, 2)
}

func TestRankEmptyCandidates(t *testing.T) {
	pool := New(2, logrus.New())
	assert.Nil(t, pool.Rank(context.Background(), nil, func(context.Context, string) (float64, error) {
		return 0, nil
	}))
}

func TestRankCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pool := New(1, logrus.New())
	rankings := pool.Rank(ctx, []targets.Server{candidate("a")}, func(context.Context, string) (float64, error) {
		return 1, nil
	})

	require.Len(t, rankings, 1)
	assert.Error(t, rankings[0].Err)
}

func TestWorkerFloor(t *testing.T) {
	pool := New(0, logrus.New())
	assert.Equal(t, 1, pool.Workers())
}
