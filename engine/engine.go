package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jack2012aa/farm-iot/alarm"
	"github.com/jack2012aa/farm-iot/config"
	"github.com/jack2012aa/farm-iot/errors"
	"github.com/jack2012aa/farm-iot/export"
	"github.com/jack2012aa/farm-iot/gateway/modbus"
	"github.com/jack2012aa/farm-iot/gateway/mqtt"
	"github.com/jack2012aa/farm-iot/health"
	"github.com/jack2012aa/farm-iot/manage"
	"github.com/jack2012aa/farm-iot/metric"
	"github.com/jack2012aa/farm-iot/pipeline"
	"github.com/jack2012aa/farm-iot/sensor"
	"github.com/jack2012aa/farm-iot/sensor/airquality"
	"github.com/jack2012aa/farm-iot/sensor/feedergate"
	"github.com/jack2012aa/farm-iot/sensor/feedscale"
	"github.com/jack2012aa/farm-iot/sensor/replay"
)

// Engine owns the gateway's object graph: the shared gateways, the
// registries the builders draw from, and the supervisor that runs the
// result. One Engine serves one configuration document and one Run.
type Engine struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metric.Metrics
	gatherer *prometheus.Registry

	monitor    *health.Monitor
	supervisor *manage.Supervisor
	watchdog   *health.Watchdog

	modbus *modbus.Manager
	mqtt   *mqtt.Client // nil without an mqtt section
	gates  *feedergate.Registry

	sensors   *sensor.Registry
	filters   *pipeline.Registry
	exporters *export.Registry

	ops *opsServer // nil without an ops address
}

// New builds an engine from a validated configuration. It wires everything
// that needs no live gateway and finishes with a Check pass, so a document
// referencing unknown kinds is rejected here rather than mid-run.
func New(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"Engine", "New", "configuration")
	}
	if logger == nil {
		logger = slog.Default()
	}

	metrics, gatherer := metric.NewRegistry()
	monitor := health.NewMonitor()

	supervisor := manage.NewSupervisor(manage.Deps{
		Logger:     logger,
		Metrics:    metrics,
		Monitor:    monitor,
		Dispatcher: alarm.FromConfig(cfg.Alarm, logger),
	})

	// The watchdog's lost callback is the only alarm path that does not go
	// through a worker exit.
	watchdog := health.NewWatchdog(
		health.SweepInterval(gateTimeouts(cfg.Sensors)...),
		func(t *health.Tracker) {
			supervisor.RaiseAlarm(context.Background(), t.SensorID(), manage.ReasonHeartbeatLost)
		})

	links, err := modbus.NewManager(cfg.Modbus, logger, metrics)
	if err != nil {
		return nil, errors.Wrap(err, "Engine", "New", "modbus links")
	}

	var broker *mqtt.Client
	if cfg.MQTT != nil {
		broker = mqtt.New(*cfg.MQTT, logger, metrics)
	}

	e := &Engine{
		cfg:        cfg,
		logger:     logger.With("component", "engine"),
		metrics:    metrics,
		gatherer:   gatherer,
		monitor:    monitor,
		supervisor: supervisor,
		watchdog:   watchdog,
		modbus:     links,
		mqtt:       broker,
		gates:      feedergate.NewRegistry(),
		sensors:    sensor.NewRegistry(),
		filters:    pipeline.DefaultRegistry(),
		exporters:  export.DefaultRegistry(),
	}
	if err := e.registerDrivers(); err != nil {
		return nil, err
	}
	if cfg.Ops.Address != "" {
		e.ops = newOpsServer(cfg.Ops.Address, cfg.Site, monitor, gatherer, logger)
	}

	if result := e.Check(); !result.OK() {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, result),
			"Engine", "New", "configuration check")
	}
	return e, nil
}

// registerDrivers binds the builtin driver kinds. The shared gate registry
// links the feeder gates to the consumption filter of the scales they
// refill.
func (e *Engine) registerDrivers() error {
	if err := feedscale.Register(e.sensors, e.filters, e.gates); err != nil {
		return errors.Wrap(err, "Engine", "registerDrivers", feedscale.Kind)
	}
	if err := airquality.Register(e.sensors); err != nil {
		return errors.Wrap(err, "Engine", "registerDrivers", airquality.Kind)
	}
	if err := feedergate.Register(e.sensors, e.gates); err != nil {
		return errors.Wrap(err, "Engine", "registerDrivers", feedergate.Kind)
	}
	if err := replay.Register(e.sensors); err != nil {
		return errors.Wrap(err, "Engine", "registerDrivers", replay.Kind)
	}
	return nil
}

// Run connects the gateways, builds the sensor workers and blocks in the
// supervisor until ctx is cancelled. An Engine runs once.
func (e *Engine) Run(ctx context.Context) error {
	if e.mqtt != nil {
		if err := e.mqtt.Connect(ctx); err != nil {
			return errors.Wrap(err, "Engine", "Run", "broker connect")
		}
		defer e.mqtt.Disconnect()
	}
	defer func() {
		if err := e.modbus.Close(); err != nil {
			e.logger.Warn("modbus shutdown", "error", err)
		}
	}()

	start := time.Now()
	if err := e.buildWorkers(ctx); err != nil {
		return err
	}
	if err := e.supervisor.Supervise(e.watchdog); err != nil {
		return errors.Wrap(err, "Engine", "Run", "register watchdog")
	}
	if e.ops != nil {
		if err := e.supervisor.Supervise(e.ops); err != nil {
			return errors.Wrap(err, "Engine", "Run", "register ops server")
		}
	}

	e.logger.Info("gateway running",
		"site", e.cfg.Site,
		"sensors", len(e.cfg.Sensors),
		"modbus_links", len(e.cfg.Modbus),
		"build_duration", time.Since(start))
	e.monitor.UpdateHealthy("engine", "running")

	return e.supervisor.Run(ctx)
}

// gateTimeouts collects the liveness timeouts of the feeder gate blocks so
// the watchdog's sweep cadence is known before any sensor is built. Gates
// that track heartbeats without an explicit timeout contribute the driver
// default.
func gateTimeouts(sensors []config.SensorConfig) []time.Duration {
	var timeouts []time.Duration
	for _, s := range sensors {
		if s.Type != feedergate.Kind || len(s.Settings) == 0 {
			continue
		}
		var peek struct {
			HeartbeatTopic string          `json:"heartbeat_topic"`
			Timeout        config.Duration `json:"timeout"`
		}
		if err := json.Unmarshal(s.Settings, &peek); err != nil || peek.HeartbeatTopic == "" {
			continue
		}
		if peek.Timeout > 0 {
			timeouts = append(timeouts, peek.Timeout.Std())
		} else {
			timeouts = append(timeouts, feedergate.DefaultTimeout)
		}
	}
	return timeouts
}
