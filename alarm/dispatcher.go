package alarm

import (
	"context"
	"log/slog"

	"github.com/jack2012aa/farm-iot/config"
	"github.com/jack2012aa/farm-iot/manage"
)

// LogDispatcher writes alarms to the log only.
type LogDispatcher struct {
	logger *slog.Logger
}

// NewLogDispatcher builds the fallback dispatcher used when no SMTP relay
// is configured.
func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{logger: logger.With("component", "alarm")}
}

// Notify implements manage.Dispatcher.
func (d *LogDispatcher) Notify(_ context.Context, event manage.AlarmEvent) error {
	d.logger.Error("alarm",
		"sensor", event.SensorID,
		"reason", event.Reason.String(),
		"responsible", event.Responsible,
		"occurred_at", event.OccurredAt,
		"alarm_id", event.ID.String())
	return nil
}

// FromConfig assembles the dispatcher chain for the alarm section: the
// SMTP mailer when a relay is configured, log-only otherwise, both behind
// the per-sensor throttle.
func FromConfig(cfg config.AlarmConfig, logger *slog.Logger) manage.Dispatcher {
	var next manage.Dispatcher
	if cfg.SMTP != nil {
		next = NewMailer(*cfg.SMTP, logger)
	} else {
		next = NewLogDispatcher(logger)
	}
	return NewThrottle(next, cfg.MinInterval.Std(), logger)
}
