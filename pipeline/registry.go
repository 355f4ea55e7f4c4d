package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/jack2012aa/farm-iot/errors"
)

// Builtin filter kinds.
const (
	KindBatchAverage  = "batch_average"
	KindStd           = "std"
	KindMovingAverage = "moving_average"
	KindMovingMedian  = "moving_median"
	KindMovingStd     = "moving_std"
	KindAccumulate    = "accumulate"
)

// Factory builds a filter instance from its kind-specific raw settings.
// Factories that need shared state (a gate registry, a clock) are closures
// capturing it; every call must return a fresh instance.
type Factory func(settings json.RawMessage) (Filter, error)

// Registry maps filter kind names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry holding the builtin filter kinds.
// Driver packages register their domain filters on top of it.
func DefaultRegistry() *Registry {
	return &Registry{factories: map[string]Factory{
		KindBatchAverage:  newBatchAverageFilter,
		KindStd:           newStdFilter,
		KindMovingAverage: newMovingAverageFilter,
		KindMovingMedian:  newMovingMedianFilter,
		KindMovingStd:     newMovingStdFilter,
		KindAccumulate:    newAccumulateFilter,
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
			"Registry", "Register", fmt.Sprintf("filter kind %q", kind))
	}
	r.factories[kind] = factory
	return nil
}

// Create builds a fresh filter of the given kind from its settings.
func (r *Registry) Create(kind string, settings json.RawMessage) (Filter, error) {
	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.WrapInvalid(errors.ErrUnknownKind,
			"Registry", "Create", fmt.Sprintf("filter kind %q", kind))
	}
	return factory(settings)
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
