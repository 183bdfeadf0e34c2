package speedtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Uscout07/casaway-speedtest/internal/estimate"
	"github.com/Uscout07/casaway-speedtest/internal/targets"
	"github.com/Uscout07/casaway-speedtest/pkg/models"
)

type stubPicker struct {
	srv targets.Server
	err error
}

func (s stubPicker) Pick(context.Context) (targets.Server, error) {
	return s.srv, s.err
}

type stubMethod struct {
	name  string
	out   *Outcome
	err   error
	calls int
	seen  string
}

func (s *stubMethod) Name() string { return s.name }

func (s *stubMethod) Measure(_ context.Context, srv targets.Server) (*Outcome, error) {
	s.calls++
	s.seen = srv.Name
	return s.out, s.err
}

func goodDownload(bytes int64, elapsed time.Duration) models.Sample {
	return models.Sample{Kind: models.SampleDownload, Bytes: bytes, Elapsed: elapsed, Succeeded: true}
}

func failedDownload() models.Sample {
	return models.Sample{Kind: models.SampleDownload, Succeeded: false, Error: "connection reset"}
}

func testProfile() estimate.Profile {
	p := estimate.DefaultProfile()
	p.DownloadFactor = 1.0
	p.UploadFactor = 1.0
	return p
}

var testRunTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestPipeline(picker ServerPicker, methods ...Method) *Pipeline {
	p := NewPipeline(picker, methods, testProfile(), logrus.New())
	p.now = func() time.Time { return testRunTime }
	p.newID = func() string { return "run-1" }
	return p
}

func TestRunPrimaryMethodSucceeds(t *testing.T) {
	primary := &stubMethod{name: "standard", out: &Outcome{
		Server: "edge",
		DownloadSamples: []models.Sample{
			goodDownload(2_000_000, 500*time.Millisecond),
			goodDownload(5_000_000, 1200*time.Millisecond),
			goodDownload(10_000_000, 2*time.Second),
		},
	}}
	fallback := &stubMethod{name: "fallback"}

	pl := newTestPipeline(stubPicker{srv: targets.Server{Name: "edge"}}, primary, fallback)
	result, err := pl.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "standard", result.Method)
	assert.InDelta(t, 35.11, result.Download, 1e-9)
	assert.Equal(t, 32.0, result.DownloadMin)
	assert.Equal(t, 40.0, result.DownloadMax)
	assert.Equal(t, 3, result.DownloadSamples)
	assert.Equal(t, "run-1", result.ID)
	assert.Equal(t, testRunTime, result.Timestamp)
	assert.Equal(t, "edge", result.Server)
	assert.Equal(t, int64(17_000_000), result.BytesTransferred)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, fallback.calls)
}

func TestRunFallsBackWhenPrimaryExhausted(t *testing.T) {
	primary := &stubMethod{name: "standard", out: &Outcome{
		Server:          "edge",
		DownloadSamples: []models.Sample{failedDownload(), failedDownload()},
	}}
	fallback := &stubMethod{name: "fallback", out: &Outcome{
		Server:          "edge",
		DownloadSamples: []models.Sample{goodDownload(1_000_000, 250*time.Millisecond)},
	}}

	pl := newTestPipeline(stubPicker{srv: targets.Server{Name: "edge"}}, primary, fallback)
	result, err := pl.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "fallback", result.Method)
	assert.InDelta(t, 32.0, result.Download, 1e-9)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestRunFallsBackWhenPrimaryErrors(t *testing.T) {
	primary := &stubMethod{name: "standard", err: errors.New("dns failure")}
	fallback := &stubMethod{name: "fallback", out: &Outcome{
		Server:          "edge",
		DownloadSamples: []models.Sample{goodDownload(1_000_000, 250*time.Millisecond)},
	}}

	pl := newTestPipeline(stubPicker{srv: targets.Server{Name: "edge"}}, primary, fallback)
	result, err := pl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fallback", result.Method)
}

func TestRunAllMethodsFailed(t *testing.T) {
	primary := &stubMethod{name: "standard", err: errors.New("dns failure")}
	fallback := &stubMethod{name: "fallback", out: &Outcome{
		Server:          "edge",
		DownloadSamples: []models.Sample{failedDownload()},
	}}

	pl := newTestPipeline(stubPicker{srv: targets.Server{Name: "edge"}}, primary, fallback)
	result, err := pl.Run(context.Background())

	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrAllMethodsFailed)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestRunWithoutMethods(t *testing.T) {
	pl := newTestPipeline(stubPicker{srv: targets.Server{Name: "edge"}})
	_, err := pl.Run(context.Background())
	assert.ErrorIs(t, err, ErrAllMethodsFailed)
}

func TestRunPickerFailure(t *testing.T) {
	primary := &stubMethod{name: "standard"}
	pl := newTestPipeline(stubPicker{err: errors.New("registry empty")}, primary)

	_, err := pl.Run(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0, primary.calls)
}

func TestRunMeasuredUpload(t *testing.T) {
	primary := &stubMethod{name: "standard", out: &Outcome{
		Server:          "edge",
		DownloadSamples: []models.Sample{goodDownload(10_000_000, 2*time.Second)},
		UploadSamples: []models.Sample{
			{Kind: models.SampleUpload, Bytes: 1_000_000, Elapsed: 500 * time.Millisecond, Succeeded: true},
		},
	}}

	pl := newTestPipeline(stubPicker{srv: targets.Server{Name: "edge"}}, primary)
	result, err := pl.Run(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 16.0, result.Upload, 1e-9)
	assert.Equal(t, 1, result.UploadSamples)
	assert.False(t, result.UploadSynthesized)
}

func TestRunSynthesizesUploadFromDownload(t *testing.T) {
	primary := &stubMethod{name: "standard", out: &Outcome{
		Server:          "edge",
		DownloadSamples: []models.Sample{goodDownload(10_000_000, 2*time.Second)},
	}}

	pl := newTestPipeline(stubPicker{srv: targets.Server{Name: "edge"}}, primary)
	result, err := pl.Run(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 40.0, result.Download, 1e-9)
	assert.InDelta(t, 14.0, result.Upload, 1e-9)
	assert.True(t, result.UploadSynthesized)
	assert.Equal(t, 0, result.UploadSamples)
}

func TestRunSynthesizedUploadRespectsFloor(t *testing.T) {
	// 2 KB over a full second is far below the floor in both directions
	primary := &stubMethod{name: "standard", out: &Outcome{
		Server:          "edge",
		DownloadSamples: []models.Sample{goodDownload(2_000, time.Second)},
	}}

	pl := newTestPipeline(stubPicker{srv: targets.Server{Name: "edge"}}, primary)
	result, err := pl.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0.5, result.Download)
	assert.Equal(t, 0.5, result.Upload)
	assert.True(t, result.UploadSynthesized)
}

func TestRunPropagatesLatency(t *testing.T) {
	primary := &stubMethod{name: "standard", out: &Outcome{
		Server:          "edge",
		DownloadSamples: []models.Sample{goodDownload(1_000_000, 250*time.Millisecond)},
		Latency:         &models.LatencyStats{Mean: 23.4, Jitter: 1.2, Min: 21, Max: 26, Count: 5},
	}}

	pl := newTestPipeline(stubPicker{srv: targets.Server{Name: "edge"}}, primary)
	result, err := pl.Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, result.Ping)
	require.NotNil(t, result.Jitter)
	assert.Equal(t, 23.4, *result.Ping)
	assert.Equal(t, 1.2, *result.Jitter)
}

func TestRunWithoutLatencyLeavesPingNull(t *testing.T) {
	primary := &stubMethod{name: "standard", out: &Outcome{
		Server:          "edge",
		DownloadSamples: []models.Sample{goodDownload(1_000_000, 250*time.Millisecond)},
	}}

	pl := newTestPipeline(stubPicker{srv: targets.Server{Name: "edge"}}, primary)
	result, err := pl.Run(context.Background())
	require.NoError(t, err)

	assert.Nil(t, result.Ping)
	assert.Nil(t, result.Jitter)
}

func TestRunHandsPickedServerToMethods(t *testing.T) {
	primary := &stubMethod{name: "standard", out: &Outcome{
		Server:          "best-edge",
		DownloadSamples: []models.Sample{goodDownload(1_000_000, 250*time.Millisecond)},
	}}

	pl := newTestPipeline(stubPicker{srv: targets.Server{Name: "best-edge"}}, primary)
	_, err := pl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "best-edge", primary.seen)
}

func TestRunCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	primary := &stubMethod{name: "standard"}
	pl := newTestPipeline(stubPicker{srv: targets.Server{Name: "edge"}}, primary)

	_, err := pl.Run(ctx)
	assert.Error(t, err)
	assert.Equal(t, 0, primary.calls)
}
