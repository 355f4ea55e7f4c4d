package alarm

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jack2012aa/farm-iot/manage"
)

// Throttle enforces a per-sensor minimum interval between deliveries.
// Suppressed events are logged and dropped; the outage that matters was
// already announced by the first mail.
type Throttle struct {
	next     manage.Dispatcher
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewThrottle wraps next with the per-sensor interval. A non-positive
// interval disables suppression.
func NewThrottle(next manage.Dispatcher, interval time.Duration, logger *slog.Logger) *Throttle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Throttle{
		next:     next,
		interval: interval,
		logger:   logger.With("component", "alarm"),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Notify implements manage.Dispatcher.
func (t *Throttle) Notify(ctx context.Context, event manage.AlarmEvent) error {
	if t.interval > 0 && !t.limiterFor(event.SensorID).Allow() {
		t.logger.Info("alarm suppressed",
			"sensor", event.SensorID,
			"reason", event.Reason.String(),
			"min_interval", t.interval)
		return nil
	}
	return t.next.Notify(ctx, event)
}

func (t *Throttle) limiterFor(sensorID string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.limiters[sensorID]
	if !ok {
		l = rate.NewLimiter(rate.Every(t.interval), 1)
		t.limiters[sensorID] = l
	}
	return l
}
