package feedscale

import (
	"encoding/json"

	"github.com/jack2012aa/farm-iot/config"
	"github.com/jack2012aa/farm-iot/errors"
	"github.com/jack2012aa/farm-iot/frame"
	"github.com/jack2012aa/farm-iot/pipeline"
)

// KindConsumption is the filter type name in configuration files.
const KindConsumption = "batch_consumption"

// RefillSource reports whether a named gate finished a refill since the
// last call, clearing the flag. The feedergate registry implements it.
type RefillSource interface {
	ConsumeRefill(gate string) bool
}

// ConsumptionSettings configures one consumption filter stage.
type ConsumptionSettings struct {
	// Gates names the feeder gates refilling this trough.
	Gates []string `json:"gate_names"`
}

// Validate checks the settings.
func (s *ConsumptionSettings) Validate() error {
	if len(s.Gates) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"ConsumptionSettings", "Validate", "gate_names")
	}
	return nil
}

// ConsumptionFilter derives consumed feed from the drop between consecutive
// batch averages. An interval in which any bound gate completed a refill
// only rebases the average: the jump is fresh feed, not intake. Weight
// rising without a refill is noise and emits nothing.
type ConsumptionFilter struct {
	gates    []string
	source   RefillSource
	previous float64
	primed   bool
}

// NewConsumptionFilter creates the filter. It keeps per-stage state; every
// pipeline needs its own instance.
func NewConsumptionFilter(gates []string, source RefillSource) *ConsumptionFilter {
	return &ConsumptionFilter{
		gates:  append([]string(nil), gates...),
		source: source,
	}
}

func consumptionFactory(source RefillSource) pipeline.Factory {
	return func(settings json.RawMessage) (pipeline.Filter, error) {
		var cfg ConsumptionSettings
		if err := config.SafeUnmarshal(settings, &cfg); err != nil {
			return nil, errors.Wrap(err, "ConsumptionFilter", "consumptionFactory", "settings")
		}
		return NewConsumptionFilter(cfg.Gates, source), nil
	}
}

// ID implements pipeline.Filter.
func (f *ConsumptionFilter) ID() string { return KindConsumption }

// Process implements pipeline.Filter. It emits a positive consumed
// quantity, or nothing while priming, after a refill, or when the delta is
// not a drop.
func (f *ConsumptionFilter) Process(in *frame.Frame) (*frame.Frame, error) {
	current := in.Representative()
	if frame.IsMissing(current) {
		return nil, errors.WrapInvalid(errors.ErrFilterCompute,
			"ConsumptionFilter", "Process", "all samples missing")
	}

	refilled := f.refilled()
	if !f.primed || refilled {
		f.previous = current
		f.primed = true
		return nil, nil
	}

	consumed := f.previous - current
	f.previous = current
	if consumed <= 0 {
		return nil, nil
	}
	return frame.NewScalar(in.Source(), in.At(), KindConsumption, consumed)
}

// refilled drains the one-shot flag of every bound gate. All flags are
// consumed even after the first hit so the next interval starts clean.
func (f *ConsumptionFilter) refilled() bool {
	if f.source == nil {
		return false
	}
	hit := false
	for _, gate := range f.gates {
		if f.source.ConsumeRefill(gate) {
			hit = true
		}
	}
	return hit
}
