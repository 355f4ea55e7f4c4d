package health

import (
	"context"
	"sync"
	"time"
)

// Tracker is the liveness state machine for one push-based sensor.
//
// States are Alive and Unreachable. A tracker starts Alive with lastSeen set
// to registration time, so a device gets one full timeout of grace before
// the first staleness verdict. Check flips Alive to Unreachable exactly once
// per outage; Beat flips back silently.
type Tracker struct {
	mu       sync.Mutex
	sensorID string
	timeout  time.Duration
	lastSeen time.Time
	alive    bool
}

// NewTracker registers a sensor for liveness tracking, starting Alive as of
// now.
func NewTracker(sensorID string, timeout time.Duration, now time.Time) *Tracker {
	return &Tracker{
		sensorID: sensorID,
		timeout:  timeout,
		lastSeen: now,
		alive:    true,
	}
}

// SensorID returns the tracked sensor's id.
func (t *Tracker) SensorID() string { return t.sensorID }

// Timeout returns the configured staleness timeout.
func (t *Tracker) Timeout() time.Duration { return t.timeout }

// Beat records a heartbeat or data arrival. It returns true when the beat
// revived an unreachable sensor; the recovery itself raises no alarm.
func (t *Tracker) Beat(now time.Time) (recovered bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if now.After(t.lastSeen) {
		t.lastSeen = now
	}
	recovered = !t.alive
	t.alive = true
	return recovered
}

// Check evaluates staleness at the given instant. It returns true exactly
// once per outage: on the Alive to Unreachable transition. Repeated checks
// during the same outage return false.
func (t *Tracker) Check(now time.Time) (lost bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.alive {
		return false
	}
	if now.Sub(t.lastSeen) > t.timeout {
		t.alive = false
		return true
	}
	return false
}

// Alive reports the current liveness state.
func (t *Tracker) Alive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.alive
}

// LastSeen returns the instant of the most recent beat.
func (t *Tracker) LastSeen() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSeen
}

// SweepInterval derives the watchdog's check cadence from the tracked
// timeouts: a quarter of the smallest timeout, clamped to [250ms, 30s].
// That guarantees at least one check per timeout window with margin.
func SweepInterval(timeouts ...time.Duration) time.Duration {
	const (
		floor   = 250 * time.Millisecond
		ceiling = 30 * time.Second
	)

	min := time.Duration(0)
	for _, t := range timeouts {
		if t <= 0 {
			continue
		}
		if min == 0 || t < min {
			min = t
		}
	}
	if min == 0 {
		return time.Second
	}

	interval := min / 4
	if interval < floor {
		interval = floor
	}
	if interval > ceiling {
		interval = ceiling
	}
	return interval
}

// Watchdog periodically sweeps a set of trackers and invokes the lost
// callback on each Alive to Unreachable transition. One watchdog serves all
// push sensors of the gateway.
type Watchdog struct {
	mu       sync.Mutex
	trackers map[string]*Tracker
	interval time.Duration
	onLost   func(t *Tracker)
}

// NewWatchdog creates a watchdog sweeping at the given interval. The lost
// callback runs on the watchdog's goroutine, outside any tracker lock.
func NewWatchdog(interval time.Duration, onLost func(t *Tracker)) *Watchdog {
	if interval <= 0 {
		interval = time.Second
	}
	return &Watchdog{
		trackers: make(map[string]*Tracker),
		interval: interval,
		onLost:   onLost,
	}
}

// Track adds a tracker to the sweep. Re-tracking the same sensor id
// replaces the previous tracker.
func (w *Watchdog) Track(t *Tracker) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.trackers[t.SensorID()] = t
}

// Tracker returns the tracker registered for a sensor id.
func (w *Watchdog) Tracker(sensorID string) (*Tracker, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.trackers[sensorID]
	return t, ok
}

// ID identifies the watchdog to the supervisor.
func (w *Watchdog) ID() string { return "health.watchdog" }

// Run sweeps until the context is cancelled.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			w.sweep(now)
		}
	}
}

func (w *Watchdog) sweep(now time.Time) {
	w.mu.Lock()
	lost := make([]*Tracker, 0)
	for _, t := range w.trackers {
		if t.Check(now) {
			lost = append(lost, t)
		}
	}
	w.mu.Unlock()

	if w.onLost == nil {
		return
	}
	for _, t := range lost {
		w.onLost(t)
	}
}
