// Package monitor tracks the health of the camera link from the time since
// the camera last sent anything, and drives the keep-alive poll.
package monitor

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
)

// Status is the link health reported by a Monitor
type Status int

const (
	StatusStopped Status = iota
	StatusOnline
	StatusWarning
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "Online"
	case StatusWarning:
		return "Warning"
	case StatusError:
		return "Error"
	default:
		return "Stopped"
	}
}

// Classify maps a silence duration onto a status
func Classify(silence, warning, failure time.Duration) Status {
	switch {
	case silence >= failure:
		return StatusError
	case silence >= warning:
		return StatusWarning
	default:
		return StatusOnline
	}
}

// Config holds the monitor timings
type Config struct {
	PollInterval   time.Duration
	WarningTimeout time.Duration
	ErrorTimeout   time.Duration
}

// Option configures a Monitor
type Option func(*Monitor)

// WithClock replaces the wall clock
func WithClock(c clock.Clock) Option {
	return func(m *Monitor) {
		m.clock = c
	}
}

// Monitor classifies the link from the time since the last received traffic.
// While running it calls poll every PollInterval.
type Monitor struct {
	cfg   Config
	poll  func()
	clock clock.Clock

	mu        sync.Mutex
	running   bool
	gen       uint64
	last      time.Time
	reported  Status
	warnTimer *clock.Timer
	errTimer  *clock.Timer
	pollTimer *clock.Timer
	listeners []func(Status)
}

// New creates a stopped monitor. poll may be nil.
func New(cfg Config, poll func(), opts ...Option) *Monitor {
	m := &Monitor{
		cfg:   cfg,
		poll:  poll,
		clock: clock.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnStatusChange registers fn to be called whenever the status changes
func (m *Monitor) OnStatusChange(fn func(Status)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Start begins monitoring as Online and polls immediately
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.gen++
	m.last = m.clock.Now()
	m.armDeadlinesLocked()
	m.armPollLocked(m.gen)
	m.mu.Unlock()

	log.Info().Dur("poll", m.cfg.PollInterval).
		Dur("warning", m.cfg.WarningTimeout).
		Dur("error", m.cfg.ErrorTimeout).
		Msg("monitor: started")

	m.evaluate()
	m.runPoll()
}

// Stop halts the timers and reports Stopped
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.gen++
	for _, t := range []*clock.Timer{m.warnTimer, m.errTimer, m.pollTimer} {
		if t != nil {
			t.Stop()
		}
	}
	m.warnTimer, m.errTimer, m.pollTimer = nil, nil, nil
	m.mu.Unlock()

	log.Info().Msg("monitor: stopped")
	m.evaluate()
}

// RecordTraffic notes that the camera sent something. It is ignored while
// the monitor is stopped.
func (m *Monitor) RecordTraffic() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.last = m.clock.Now()
	m.armDeadlinesLocked()
	m.mu.Unlock()

	m.evaluate()
}

// Status returns the current status
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// IsOnline reports whether the status is Online
func (m *Monitor) IsOnline() bool {
	return m.Status() == StatusOnline
}

// Silence returns the time since the last traffic, zero while stopped
func (m *Monitor) Silence() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return 0
	}
	return m.clock.Since(m.last)
}

func (m *Monitor) statusLocked() Status {
	if !m.running {
		return StatusStopped
	}
	return Classify(m.clock.Since(m.last), m.cfg.WarningTimeout, m.cfg.ErrorTimeout)
}

// armDeadlinesLocked schedules a status check at each threshold from now.
// A check that fires after newer traffic just finds the status unchanged.
func (m *Monitor) armDeadlinesLocked() {
	if m.warnTimer != nil {
		m.warnTimer.Stop()
	}
	if m.errTimer != nil {
		m.errTimer.Stop()
	}
	m.warnTimer = m.clock.AfterFunc(m.cfg.WarningTimeout, m.evaluate)
	m.errTimer = m.clock.AfterFunc(m.cfg.ErrorTimeout, m.evaluate)
}

func (m *Monitor) armPollLocked(gen uint64) {
	if m.cfg.PollInterval <= 0 {
		return
	}
	m.pollTimer = m.clock.AfterFunc(m.cfg.PollInterval, func() {
		m.mu.Lock()
		if !m.running || m.gen != gen {
			m.mu.Unlock()
			return
		}
		m.armPollLocked(gen)
		m.mu.Unlock()

		m.runPoll()
	})
}

func (m *Monitor) runPoll() {
	if m.poll != nil {
		m.poll()
	}
}

// evaluate notifies listeners if the status moved since the last report
func (m *Monitor) evaluate() {
	m.mu.Lock()
	s := m.statusLocked()
	if s == m.reported {
		m.mu.Unlock()
		return
	}
	prev := m.reported
	m.reported = s
	listeners := append([]func(Status){}, m.listeners...)
	m.mu.Unlock()

	switch s {
	case StatusWarning, StatusError:
		log.Warn().Stringer("from", prev).Stringer("to", s).Msg("monitor: link degraded")
	default:
		log.Info().Stringer("from", prev).Stringer("to", s).Msg("monitor: status")
	}

	for _, fn := range listeners {
		fn(s)
	}
}
