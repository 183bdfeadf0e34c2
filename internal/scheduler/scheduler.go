package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrAlreadyRunning is returned by Start when the scheduler loop is
// already active.
var ErrAlreadyRunning = errors.New("scheduler already running")

// RunFunc is the work executed on every tick.
type RunFunc func(ctx context.Context) error

// Status is a snapshot of the scheduler state.
type Status struct {
	Running         bool       `json:"running"`
	IntervalSeconds float64    `json:"interval_seconds"`
	Runs            int64      `json:"runs"`
	LastRun         *time.Time `json:"last_run,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
}

// Scheduler triggers a run function on a fixed interval. A tick that
// arrives while the previous run is still executing is skipped, never
// queued.
type Scheduler struct {
	interval time.Duration
	run      RunFunc
	log      *logrus.Entry

	mu       sync.Mutex
	running  bool
	inFlight bool
	cancel   context.CancelFunc
	done     chan struct{}
	runs     int64
	lastRun  time.Time
	lastErr  error
}

// New creates a scheduler that calls run every interval once started.
func New(interval time.Duration, run RunFunc, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		run:      run,
		log:      log.WithField("component", "scheduler"),
	}
}

// Interval returns the configured tick interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Start launches the tick loop in the background.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	if s.interval <= 0 {
		return fmt.Errorf("invalid scheduler interval: %s", s.interval)
	}
	if s.run == nil {
		return errors.New("scheduler has no run function")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(ctx)

	s.log.WithField("interval", s.interval.String()).Info("scheduler started")
	return nil
}

// Stop cancels the loop and waits for it to exit. Stopping a scheduler
// that is not running is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.log.Info("scheduler stopped")
}

// IsRunning reports whether the tick loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		Running:         s.running,
		IntervalSeconds: s.interval.Seconds(),
		Runs:            s.runs,
	}
	if !s.lastRun.IsZero() {
		t := s.lastRun
		status.LastRun = &t
	}
	if s.lastErr != nil {
		status.LastError = s.lastErr.Error()
	}
	return status
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			go s.fire(ctx)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		s.log.Debug("previous run still in flight, skipping tick")
		return
	}
	s.inFlight = true
	s.mu.Unlock()

	err := s.run(ctx)

	s.mu.Lock()
	s.inFlight = false
	s.runs++
	s.lastRun = time.Now()
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		s.log.WithError(err).Warn("scheduled run failed")
	}
}
