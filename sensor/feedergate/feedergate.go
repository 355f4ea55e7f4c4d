// Package feedergate follows remote auto feeder gates over MQTT and keeps
// the refill flags the consumption filter reads.
package feedergate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jack2012aa/farm-iot/config"
	"github.com/jack2012aa/farm-iot/errors"
	"github.com/jack2012aa/farm-iot/gateway/mqtt"
	"github.com/jack2012aa/farm-iot/health"
	"github.com/jack2012aa/farm-iot/manage"
	"github.com/jack2012aa/farm-iot/metric"
	"github.com/jack2012aa/farm-iot/sensor"
)

// Kind is the sensor type name in configuration files.
const Kind = "feeder_gate"

// DefaultTimeout bounds heartbeat silence before the gate counts as lost.
// Applied when a gate tracks heartbeats without an explicit timeout.
const DefaultTimeout = time.Minute

// Status enumerates the reported gate states.
type Status int

const (
	NoMessage Status = iota
	Open
	Closed
	ManuallyOpen
	ManuallyClosed
)

// String returns the wire spelling of the state.
func (s Status) String() string {
	switch s {
	case NoMessage:
		return "No message"
	case Open:
		return "Open"
	case Closed:
		return "Closed"
	case ManuallyOpen:
		return "Manually open"
	case ManuallyClosed:
		return "Manually closed"
	default:
		return "unknown"
	}
}

// ParseStatus maps one payload to a state.
func ParseStatus(payload string) (Status, error) {
	switch strings.TrimSpace(payload) {
	case "Open":
		return Open, nil
	case "Closed":
		return Closed, nil
	case "Manually open":
		return ManuallyOpen, nil
	case "Manually closed":
		return ManuallyClosed, nil
	default:
		return NoMessage, errors.WrapInvalid(errors.ErrInvalidData,
			"feedergate", "ParseStatus", fmt.Sprintf("gate state %q", payload))
	}
}

// Settings is the driver block of a feeder gate sensor.
type Settings struct {
	// DataTopic carries the gate state reports.
	DataTopic string `json:"data_topic"`
	// HeartbeatTopic carries liveness pings. Empty disables tracking.
	HeartbeatTopic string `json:"heartbeat_topic,omitempty"`
	// Timeout bounds heartbeat silence before an alarm.
	Timeout config.Duration `json:"timeout,omitempty"`
}

// Validate checks the settings.
func (s *Settings) Validate() error {
	if s.DataTopic == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"Settings", "Validate", "data_topic")
	}
	return nil
}

// Driver decodes gate reports into samples and keeps the shared registry
// current. The sample value is the state's numeric code.
type Driver struct {
	name     string
	topic    string
	registry *Registry
	logger   *slog.Logger
}

// NewDriver creates a driver writing the named gate's state into registry.
// The frame column keeps the data topic as its name.
func NewDriver(name, topic string, registry *Registry, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		name:     name,
		topic:    topic,
		registry: registry,
		logger:   logger.With("sensor", name),
	}
}

// Columns implements sensor.PushDriver.
func (d *Driver) Columns() []string { return []string{d.topic} }

// Parse implements sensor.PushDriver. An unknown payload is invalid data;
// the loop reports it and drops the message.
func (d *Driver) Parse(msg mqtt.Message) ([]float64, error) {
	status, err := ParseStatus(string(msg.Payload))
	if err != nil {
		return nil, err
	}
	if d.registry.update(d.name, status) {
		d.logger.Info("gate refilled")
	}
	return []float64{float64(status)}, nil
}

// Register binds the feeder gate driver to a sensor registry. Every gate
// built through sensors shares the given state registry.
func Register(sensors *sensor.Registry, gates *Registry) error {
	return sensors.Register(Kind, func(ctx context.Context, cfg config.SensorConfig, deps sensor.Deps) (manage.Worker, error) {
		return build(ctx, cfg, deps, gates)
	})
}

func build(ctx context.Context, cfg config.SensorConfig, deps sensor.Deps, gates *Registry) (manage.Worker, error) {
	if deps.MQTT == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"feedergate", "build", "mqtt client")
	}
	if gates == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"feedergate", "build", "gate registry")
	}

	var settings Settings
	if err := config.SafeUnmarshal(cfg.Settings, &settings); err != nil {
		return nil, errors.Wrap(err, "feedergate", "build",
			fmt.Sprintf("settings of sensor %q", cfg.Name))
	}

	opts := deps.Options(cfg)
	if opts.Length < 1 {
		// A gate reports single transitions; batching them delays the
		// refill flag.
		opts.Length = 1
	}

	bridge := mqtt.NewBridge(cfg.Name, 0, deps.Metrics)
	if err := deps.MQTT.Subscribe(ctx, settings.DataTopic, bridge.Handler()); err != nil {
		return nil, err
	}

	var tracker *health.Tracker
	if settings.HeartbeatTopic != "" {
		timeout := settings.Timeout.Std()
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		tracker = health.NewTracker(cfg.Name, timeout, time.Now())
		if deps.Watchdog != nil {
			deps.Watchdog.Track(tracker)
		}
		hb := heartbeatHandler(cfg.Name, tracker, deps.Metrics, opts.Logger)
		if err := deps.MQTT.Subscribe(ctx, settings.HeartbeatTopic, hb); err != nil {
			return nil, err
		}
	}

	driver := NewDriver(cfg.Name, settings.DataTopic, gates, opts.Logger)
	return sensor.NewPush(opts, driver, bridge, tracker)
}

// heartbeatHandler beats the tracker from the broker's delivery goroutine.
func heartbeatHandler(name string, tracker *health.Tracker, metrics *metric.Metrics, logger *slog.Logger) mqtt.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(msg mqtt.Message) {
		metrics.RecordLiveness(name, true)
		if tracker.Beat(msg.At) {
			logger.Info("sensor back online", "sensor", name)
		}
	}
}
