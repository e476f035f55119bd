// Package netmon converts a noisy raw connectivity signal into a debounced
// boolean event stream. Raw notifications fire on every interface transition
// (Wi-Fi to cellular and so on) even when end-to-end reachability is fine, so
// the monitor filters them through two stages: a short debounce window that
// absorbs bursts, then a longer stability window after which actual
// connectivity is re-probed and reported only when it differs from the last
// reported value.
package netmon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
)

// Probe checks actual end-to-end connectivity, not just interface state.
type Probe interface {
	Online(ctx context.Context) bool
}

// Notifier delivers raw connectivity change notifications. Implementations
// wrap whatever OS or polling signal is available.
type Notifier interface {
	Start(onRawChange func()) error
	Stop()
}

type phase int

const (
	phaseIdle phase = iota
	phaseDebouncing
	phaseConfirming
)

// Config ...
type Config struct {
	// DebounceWindow absorbs bursts of raw notifications.
	DebounceWindow time.Duration
	// StabilityWindow is how long the signal must stay quiet after the
	// debounce before connectivity is re-probed and reported.
	StabilityWindow time.Duration
	// ProbeTimeout bounds a single connectivity probe.
	ProbeTimeout time.Duration
}

// DefaultConfig ...
func DefaultConfig() Config {
	return Config{
		DebounceWindow:  500 * time.Millisecond,
		StabilityWindow: 3 * time.Second,
		ProbeTimeout:    5 * time.Second,
	}
}

// Monitor is the two-stage connectivity filter.
type Monitor struct {
	probe    Probe
	notifier Notifier
	config   Config
	logger   log.Logger

	mu           sync.Mutex
	state        phase
	started      bool
	debounce     *time.Timer
	stability    *time.Timer
	onChange     func(online bool)
	lastReported bool
	reportedOnce bool
}

// New ...
func New(probe Probe, notifier Notifier, config Config, logger log.Logger) *Monitor {
	return &Monitor{
		probe:    probe,
		notifier: notifier,
		config:   config,
		logger:   logger,
	}
}

// StartMonitoring probes connectivity once, reports the result
// unconditionally as the first report, then starts listening for raw change
// notifications.
func (m *Monitor) StartMonitoring(onChange func(online bool)) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("network monitor is already running")
	}
	m.started = true
	m.onChange = onChange
	m.mu.Unlock()

	online := m.probeConnectivity()

	m.mu.Lock()
	m.lastReported = online
	m.reportedOnce = true
	m.mu.Unlock()

	m.logger.Debugf("Network monitor started, connectivity: %t", online)
	onChange(online)

	if err := m.notifier.Start(m.handleRawChange); err != nil {
		return fmt.Errorf("start connectivity notifier: %w", err)
	}
	return nil
}

// StopMonitoring cancels all pending timers and the notifier without emitting
// further events. Safe to call multiple times.
func (m *Monitor) StopMonitoring() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	m.state = phaseIdle
	m.stopTimersLocked()
	m.mu.Unlock()

	m.notifier.Stop()
	m.logger.Debugf("Network monitor stopped")
}

func (m *Monitor) handleRawChange() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return
	}

	// every raw event restarts the filter from the debouncing stage
	m.stopTimersLocked()
	m.state = phaseDebouncing
	m.debounce = time.AfterFunc(m.config.DebounceWindow, m.debounceFired)
}

func (m *Monitor) debounceFired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started || m.state != phaseDebouncing {
		return
	}
	m.state = phaseConfirming
	m.stability = time.AfterFunc(m.config.StabilityWindow, m.stabilityFired)
}

func (m *Monitor) stabilityFired() {
	m.mu.Lock()
	if !m.started || m.state != phaseConfirming {
		m.mu.Unlock()
		return
	}
	m.state = phaseIdle
	m.mu.Unlock()

	online := m.probeConnectivity()

	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	if m.reportedOnce && online == m.lastReported {
		m.mu.Unlock()
		return
	}
	m.lastReported = online
	m.reportedOnce = true
	onChange := m.onChange
	m.mu.Unlock()

	m.logger.Debugf("Connectivity changed: online=%t", online)
	onChange(online)
}

func (m *Monitor) probeConnectivity() bool {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.ProbeTimeout)
	defer cancel()
	return m.probe.Online(ctx)
}

func (m *Monitor) stopTimersLocked() {
	if m.debounce != nil {
		m.debounce.Stop()
		m.debounce = nil
	}
	if m.stability != nil {
		m.stability.Stop()
		m.stability = nil
	}
}
