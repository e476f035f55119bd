package netmon

import (
	"context"
	"sync"
	"time"
)

// PollingNotifier is the default raw-signal source on platforms without OS
// connectivity events: it probes on a fixed interval and fires a raw change
// notification whenever the probed value flips. The monitor's debounce and
// stability windows still apply on top.
type PollingNotifier struct {
	probe    Probe
	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	stop    chan struct{}
	running bool
}

// NewPollingNotifier ...
func NewPollingNotifier(probe Probe, interval time.Duration) *PollingNotifier {
	return &PollingNotifier{
		probe:    probe,
		interval: interval,
		timeout:  5 * time.Second,
	}
}

// Start begins polling. The first poll establishes the baseline without
// firing a notification.
func (n *PollingNotifier) Start(onRawChange func()) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running {
		return nil
	}
	n.running = true
	n.stop = make(chan struct{})

	go n.poll(n.stop, onRawChange)
	return nil
}

// Stop ends polling. Safe to call multiple times.
func (n *PollingNotifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.running {
		return
	}
	n.running = false
	close(n.stop)
}

func (n *PollingNotifier) poll(stop chan struct{}, onRawChange func()) {
	last := n.probeOnce()

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			online := n.probeOnce()
			if online != last {
				last = online
				onRawChange()
			}
		}
	}
}

func (n *PollingNotifier) probeOnce() bool {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	return n.probe.Online(ctx)
}
