package speedtest

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Uscout07/casaway-speedtest/internal/probe"
	"github.com/Uscout07/casaway-speedtest/internal/targets"
	"github.com/Uscout07/casaway-speedtest/internal/workerpool"
)

// measureServer hosts ping, download and upload endpoints with small
// delays so every probe clears the too-fast guard.
func measureServer(downloadSize int, uploadBytes *int64) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(2 * time.Millisecond)
		w.Write([]byte("pong"))
	})
	mux.HandleFunc("/down", func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(5 * time.Millisecond)
		w.Write(bytes.Repeat([]byte("x"), downloadSize))
	})
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		n, _ := io.Copy(io.Discard, r.Body)
		if uploadBytes != nil {
			atomic.StoreInt64(uploadBytes, n)
		}
		time.Sleep(3 * time.Millisecond)
		w.Write([]byte(`{"ok":true}`))
	})
	return httptest.NewServer(mux)
}

func serverFor(ts *httptest.Server, downloadSize int) targets.Server {
	return targets.Server{
		Name:      "test-edge",
		PingURL:   ts.URL + "/ping",
		UploadURL: ts.URL + "/up",
		Downloads: []targets.DownloadTarget{
			{URL: ts.URL + "/down", Bytes: int64(downloadSize)},
		},
	}
}

func TestStandardMeasure(t *testing.T) {
	const size = 32 * 1024
	var uploaded int64
	ts := measureServer(size, &uploaded)
	defer ts.Close()

	log := logrus.New()
	m := NewStandard(probe.New(5*time.Second, log), 2, time.Millisecond, []int64{1024}, log)
	out, err := m.Measure(context.Background(), serverFor(ts, size))
	require.NoError(t, err)

	assert.Equal(t, "test-edge", out.Server)

	require.Len(t, out.DownloadSamples, 1)
	assert.True(t, out.DownloadSamples[0].Succeeded, out.DownloadSamples[0].Error)
	assert.Equal(t, int64(size), out.DownloadSamples[0].Bytes)

	require.Len(t, out.UploadSamples, 1)
	assert.True(t, out.UploadSamples[0].Succeeded, out.UploadSamples[0].Error)
	assert.Equal(t, int64(1024), out.UploadSamples[0].Bytes)
	assert.Equal(t, int64(1024), atomic.LoadInt64(&uploaded))

	require.NotNil(t, out.Latency)
	assert.Equal(t, 2, out.Latency.Count)
}

func TestStandardMeasureWithoutUploadURL(t *testing.T) {
	ts := measureServer(1024, nil)
	defer ts.Close()

	srv := serverFor(ts, 1024)
	srv.UploadURL = ""

	log := logrus.New()
	m := NewStandard(probe.New(5*time.Second, log), 0, 0, []int64{1024}, log)
	out, err := m.Measure(context.Background(), srv)
	require.NoError(t, err)

	assert.Empty(t, out.UploadSamples)
	assert.Nil(t, out.Latency)
	require.Len(t, out.DownloadSamples, 1)
	assert.True(t, out.DownloadSamples[0].Succeeded)
}

func TestStandardMeasureNoTargets(t *testing.T) {
	log := logrus.New()
	m := NewStandard(probe.New(time.Second, log), 0, 0, nil, log)

	_, err := m.Measure(context.Background(), targets.Server{Name: "empty"})
	assert.Error(t, err)
}

func TestStandardKeepsFailedSamples(t *testing.T) {
	ts := measureServer(1024, nil)
	srv := serverFor(ts, 1024)
	ts.Close()

	log := logrus.New()
	m := NewStandard(probe.New(time.Second, log), 0, 0, nil, log)
	out, err := m.Measure(context.Background(), srv)
	require.NoError(t, err)

	require.Len(t, out.DownloadSamples, 1)
	assert.False(t, out.DownloadSamples[0].Succeeded)
	assert.NotEmpty(t, out.DownloadSamples[0].Error)
}

func TestFallbackMeasurePicksSmallestTarget(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/small", func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(3 * time.Millisecond)
		w.Write(bytes.Repeat([]byte("s"), 100))
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(3 * time.Millisecond)
		w.Write(bytes.Repeat([]byte("b"), 5000))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	srv := targets.Server{
		Name: "test-edge",
		Downloads: []targets.DownloadTarget{
			{URL: ts.URL + "/big", Bytes: 5000},
			{URL: ts.URL + "/small", Bytes: 100},
		},
	}

	log := logrus.New()
	m := NewFallback(probe.New(5*time.Second, log), log)
	out, err := m.Measure(context.Background(), srv)
	require.NoError(t, err)

	require.Len(t, out.DownloadSamples, 1)
	assert.True(t, out.DownloadSamples[0].Succeeded, out.DownloadSamples[0].Error)
	assert.Equal(t, int64(100), out.DownloadSamples[0].Bytes)
	assert.Empty(t, out.UploadSamples)
}

func TestFallbackMeasureNoTargets(t *testing.T) {
	log := logrus.New()
	m := NewFallback(probe.New(time.Second, log), log)

	_, err := m.Measure(context.Background(), targets.Server{Name: "empty"})
	assert.Error(t, err)
}

func TestRankingPickerSingleServer(t *testing.T) {
	log := logrus.New()
	registry := targets.NewRegistry([]targets.Server{{
		Name:      "only",
		PingURL:   "http://unused/ping",
		Downloads: []targets.DownloadTarget{{URL: "http://unused/2m", Bytes: 2_000_000}},
	}}, "", log)

	picker := NewRankingPicker(registry, workerpool.New(2, log), probe.New(time.Second, log), log)
	srv, err := picker.Pick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "only", srv.Name)
}

func TestRankingPickerPrefersFastest(t *testing.T) {
	fast := measureServer(16, nil)
	defer fast.Close()
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(40 * time.Millisecond)
		w.Write([]byte("pong"))
	}))
	defer slow.Close()

	log := logrus.New()
	registry := targets.NewRegistry([]targets.Server{
		{
			Name:      "slow",
			PingURL:   slow.URL,
			Downloads: []targets.DownloadTarget{{URL: slow.URL, Bytes: 16}},
		},
		{
			Name:      "fast",
			PingURL:   fast.URL + "/ping",
			Downloads: []targets.DownloadTarget{{URL: fast.URL + "/down", Bytes: 16}},
		},
	}, "", log)

	picker := NewRankingPicker(registry, workerpool.New(2, log), probe.New(5*time.Second, log), log)
	srv, err := picker.Pick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fast", srv.Name)
}

func TestRankingPickerEmptyRegistry(t *testing.T) {
	log := logrus.New()
	registry := targets.NewRegistry(nil, "", log)

	picker := NewRankingPicker(registry, workerpool.New(2, log), probe.New(time.Second, log), log)
	_, err := picker.Pick(context.Background())
	assert.ErrorIs(t, err, ErrNoServers)
}

func TestRankingPickerFallsBackToFirstConfigured(t *testing.T) {
	dead := measureServer(16, nil)
	deadURL := dead.URL
	dead.Close()

	log := logrus.New()
	registry := targets.NewRegistry([]targets.Server{
		{
			Name:      "first",
			PingURL:   deadURL + "/ping",
			Downloads: []targets.DownloadTarget{{URL: deadURL + "/down", Bytes: 16}},
		},
		{
			Name:      "second",
			PingURL:   deadURL + "/ping",
			Downloads: []targets.DownloadTarget{{URL: deadURL + "/down", Bytes: 16}},
		},
	}, "", log)

	picker := NewRankingPicker(registry, workerpool.New(2, log), probe.New(200*time.Millisecond, log), log)
	srv, err := picker.Pick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", srv.Name)
}
