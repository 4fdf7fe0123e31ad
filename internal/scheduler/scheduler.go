package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/LeventeLantos/kiosk-messaging/internal/logger"
	"github.com/sirupsen/logrus"
)

// Tick is one poll of the scheduled SMS queue. A returned error is recorded
// in Status and logged; it never stops the loop.
type Tick func(ctx context.Context) error

// Status is a snapshot for the operator endpoints.
type Status struct {
	Running      bool       `json:"running"`
	Interval     string     `json:"interval"`
	Ticks        int64      `json:"ticks"`
	Failures     int64      `json:"failures"`
	LastTick     *time.Time `json:"lastTick,omitempty"`
	LastDuration string     `json:"lastDuration,omitempty"`
	LastError    string     `json:"lastError,omitempty"`
}

// Scheduler polls on a fixed interval: one tick as soon as it starts, then
// one per interval. Ticks run on a single goroutine and never overlap;
// Trigger queues at most one extra tick on that same goroutine.
type Scheduler struct {
	interval time.Duration
	tick     Tick
	log      *logrus.Entry

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	wake    chan struct{}
	running bool

	statsMu sync.Mutex
	stats   Status
}

func New(interval time.Duration, tick Tick) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if tick == nil {
		return nil, errors.New("tick must not be nil")
	}
	return &Scheduler{
		interval: interval,
		tick:     tick,
		log:      logger.Component("scheduler"),
		wake:     make(chan struct{}, 1),
	}, nil
}

// Start reports false when the loop is already running.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return false
	}

	select {
	case <-s.wake:
	default:
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(ctx, s.done)
	s.log.WithField("interval", s.interval.String()).Info("scheduler started")
	return true
}

// Stop cancels the running tick's context and waits for the loop to exit.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return false
	}

	s.cancel()
	<-s.done
	s.running = false

	s.log.Info("scheduler stopped")
	return true
}

// Trigger asks the running loop for an extra tick. Requests made while one
// is already queued are merged; it reports false when the loop is stopped.
func (s *Scheduler) Trigger() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return false
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) Status() Status {
	s.statsMu.Lock()
	st := s.stats
	s.statsMu.Unlock()

	st.Running = s.IsRunning()
	st.Interval = s.interval.String()
	return st
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runTick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runTick(ctx)
		case <-s.wake:
			s.runTick(ctx)
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context) {
	start := time.Now()
	err := s.safeTick(ctx)
	elapsed := time.Since(start)

	s.statsMu.Lock()
	s.stats.Ticks++
	s.stats.LastTick = &start
	s.stats.LastDuration = elapsed.String()
	s.stats.LastError = ""
	if err != nil {
		s.stats.Failures++
		s.stats.LastError = err.Error()
	}
	s.statsMu.Unlock()

	entry := s.log.WithField("duration_ms", elapsed.Milliseconds())
	if err != nil && ctx.Err() == nil {
		entry.WithError(err).Warn("scheduler tick failed")
		return
	}
	entry.Debug("scheduler tick completed")
}

func (s *Scheduler) safeTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panicked: %v", r)
		}
	}()
	return s.tick(ctx)
}
