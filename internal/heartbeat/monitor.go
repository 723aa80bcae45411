// Package heartbeat implements the per-connection ping/pong liveness check.
package heartbeat

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultInterval is used when no ping interval is configured.
const DefaultInterval = 30 * time.Second

// Config holds the ping schedule.
type Config struct {
	Interval  time.Duration
	MaxMissed int
}

// Monitor sends a ping every interval and terminates the connection once
// MaxMissed pings in a row went unanswered.
type Monitor struct {
	ping      func() error
	terminate func()
	done      chan struct{}
	cfg       Config
	missed    atomic.Int32
	stopOnce  sync.Once
	termOnce  sync.Once
}

// New creates a stopped monitor. ping sends one ping frame; terminate
// force-closes the connection and is called at most once.
func New(cfg Config, ping func() error, terminate func()) *Monitor {
	if cfg.MaxMissed < 1 {
		cfg.MaxMissed = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Monitor{
		cfg:       cfg,
		ping:      ping,
		terminate: terminate,
		done:      make(chan struct{}),
	}
}

// Start runs the ping loop in its own goroutine until Stop or termination.
func (m *Monitor) Start() {
	go m.run()
}

func (m *Monitor) run() {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			if !m.tick() {
				return
			}
		}
	}
}

// tick performs one interval step and reports whether the loop continues.
func (m *Monitor) tick() bool {
	select {
	case <-m.done:
		return false
	default:
	}

	if int(m.missed.Load()) >= m.cfg.MaxMissed {
		m.Stop()
		m.termOnce.Do(m.terminate)
		return false
	}

	// A failed send counts as a missed pong as well.
	_ = m.ping()
	m.missed.Add(1)
	return true
}

// OnPong resets the missed counter.
func (m *Monitor) OnPong() {
	m.missed.Store(0)
}

// unanswered returns the current count of missed pings.
func (m *Monitor) unanswered() int {
	return int(m.missed.Load())
}

// Stop ends the ping loop. It is safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
}
