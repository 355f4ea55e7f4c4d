package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/jack2012aa/farm-iot/config"
	"github.com/jack2012aa/farm-iot/errors"
	"github.com/jack2012aa/farm-iot/export"
	"github.com/jack2012aa/farm-iot/gateway/modbus"
	"github.com/jack2012aa/farm-iot/gateway/mqtt"
	"github.com/jack2012aa/farm-iot/health"
	"github.com/jack2012aa/farm-iot/manage"
	"github.com/jack2012aa/farm-iot/metric"
)

// Deps bundles what a driver builder may need. Unused fields stay nil;
// builders check for what they require.
type Deps struct {
	Logger  *slog.Logger
	Metrics *metric.Metrics
	// Reporter receives in-loop sensor failures.
	Reporter manage.Reporter
	// Publisher carries the sensor's subscribed pipelines and exporters.
	Publisher *export.Publisher
	// Modbus hands out the shared serialized connections.
	Modbus *modbus.Manager
	// MQTT is the shared broker client.
	MQTT *mqtt.Client
	// Watchdog sweeps the liveness trackers push drivers register.
	Watchdog *health.Watchdog
}

// Options derives the shared sensor options from one configuration block.
func (d Deps) Options(cfg config.SensorConfig) Options {
	return Options{
		Name:      cfg.Name,
		Length:    cfg.Length,
		Duration:  cfg.Duration.Std(),
		Waiting:   cfg.WaitingTime.Std(),
		Belonging: cfg.Belonging,
		Logger:    d.Logger,
		Metrics:   d.Metrics,
		Reporter:  d.Reporter,
		Publisher: d.Publisher,
	}
}

// Builder turns one sensor configuration block into a runnable worker. The
// context covers build-time work such as broker subscriptions.
type Builder func(ctx context.Context, cfg config.SensorConfig, deps Deps) (manage.Worker, error)

// Registry maps sensor type names to builders. Driver packages bind
// themselves through their Register functions; builders that need shared
// state (a gate registry) are closures capturing it.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]Builder)}
}

// Register adds a builder under the given type name.
func (r *Registry) Register(kind string, builder Builder) error {
	if kind == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"Registry", "Register", "kind name validation")
	}
	if builder == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"Registry", "Register", "builder validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.builders[kind]; exists {
		return errors.WrapInvalid(errors.ErrDuplicate,
			"Registry", "Register", fmt.Sprintf("sensor type %q", kind))
	}
	r.builders[kind] = builder
	return nil
}

// Create builds the worker for one configuration block.
func (r *Registry) Create(ctx context.Context, cfg config.SensorConfig, deps Deps) (manage.Worker, error) {
	r.mu.RLock()
	builder, ok := r.builders[cfg.Type]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.WrapInvalid(errors.ErrUnknownKind,
			"Registry", "Create", fmt.Sprintf("sensor type %q", cfg.Type))
	}
	return builder(ctx, cfg, deps)
}

// Kinds returns the registered type names, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.builders))
	for kind := range r.builders {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
