package export

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/jack2012aa/farm-iot/errors"
	"github.com/jack2012aa/farm-iot/metric"
)

// Builtin exporter kinds.
const (
	KindConsole     = "console"
	KindWeeklyCSV   = "weekly_csv"
	KindScatterPlot = "scatter_plot"
)

// Deps carries shared dependencies into exporter factories.
type Deps struct {
	Logger  *slog.Logger
	Metrics *metric.Metrics
	Stdout  io.Writer // console sink target; os.Stdout when nil
}

// Factory builds an exporter from its kind-specific raw settings.
type Factory func(settings json.RawMessage, deps Deps) (Exporter, error)

// Registry maps exporter kind names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry holding the builtin sink kinds.
func DefaultRegistry() *Registry {
	return &Registry{factories: map[string]Factory{
		KindConsole:     newConsoleExporter,
		KindWeeklyCSV:   newWeeklyCSVExporter,
		KindScatterPlot: newScatterPlotExporter,
	}}
}

// Register adds a factory under the given kind name.
func (r *Registry) Register(kind string, factory Factory) error {
	if kind == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"Registry", "Register", "kind name validation")
	}
	if factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"Registry", "Register", "factory validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[kind]; exists {
		return errors.WrapInvalid(errors.ErrDuplicate,
			"Registry", "Register", fmt.Sprintf("exporter kind %q", kind))
	}
	r.factories[kind] = factory
	return nil
}

// Create builds an exporter of the given kind from its settings.
func (r *Registry) Create(kind string, settings json.RawMessage, deps Deps) (Exporter, error) {
	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.WrapInvalid(errors.ErrUnknownKind,
			"Registry", "Create", fmt.Sprintf("exporter kind %q", kind))
	}
	return factory(settings, deps)
}

// Kinds returns the registered kind names, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
