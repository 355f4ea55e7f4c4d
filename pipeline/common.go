package pipeline

import (
	"encoding/json"

	"gonum.org/v1/gonum/stat"

	"github.com/jack2012aa/farm-iot/config"
	"github.com/jack2012aa/farm-iot/errors"
	"github.com/jack2012aa/farm-iot/frame"
)

// NoSettings decodes the settings of filters that take none.
type NoSettings struct{}

// BatchAverageFilter emits the arithmetic mean of each frame's values.
// Stateless across frames.
type BatchAverageFilter struct{}

// NewBatchAverageFilter creates the filter.
func NewBatchAverageFilter() *BatchAverageFilter { return &BatchAverageFilter{} }

func newBatchAverageFilter(settings json.RawMessage) (Filter, error) {
	var cfg NoSettings
	if err := config.SafeUnmarshal(settings, &cfg); err != nil {
		return nil, errors.Wrap(err, "BatchAverageFilter", "newBatchAverageFilter", "settings")
	}
	return NewBatchAverageFilter(), nil
}

// ID implements Filter.
func (f *BatchAverageFilter) ID() string { return KindBatchAverage }

// Process emits the mean of the frame's non-missing values.
func (f *BatchAverageFilter) Process(in *frame.Frame) (*frame.Frame, error) {
	values := in.Present()
	if len(values) == 0 {
		return nil, errors.WrapInvalid(errors.ErrFilterCompute,
			"BatchAverageFilter", "Process", "all samples missing")
	}
	return frame.NewScalar(in.Source(), in.At(), KindBatchAverage, stat.Mean(values, nil))
}

// StdFilter emits the population standard deviation of each frame's
// values. Stateless across frames.
type StdFilter struct{}

// NewStdFilter creates the filter.
func NewStdFilter() *StdFilter { return &StdFilter{} }

func newStdFilter(settings json.RawMessage) (Filter, error) {
	var cfg NoSettings
	if err := config.SafeUnmarshal(settings, &cfg); err != nil {
		return nil, errors.Wrap(err, "StdFilter", "newStdFilter", "settings")
	}
	return NewStdFilter(), nil
}

// ID implements Filter.
func (f *StdFilter) ID() string { return KindStd }

// Process emits the population standard deviation of the frame's
// non-missing values.
func (f *StdFilter) Process(in *frame.Frame) (*frame.Frame, error) {
	values := in.Present()
	if len(values) == 0 {
		return nil, errors.WrapInvalid(errors.ErrFilterCompute,
			"StdFilter", "Process", "all samples missing")
	}
	return frame.NewScalar(in.Source(), in.At(), KindStd, stat.PopStdDev(values, nil))
}

// AccumulateFilter emits the running sum of the representative values of
// every frame it has seen.
type AccumulateFilter struct {
	sum float64
}

// NewAccumulateFilter creates the filter.
func NewAccumulateFilter() *AccumulateFilter { return &AccumulateFilter{} }

func newAccumulateFilter(settings json.RawMessage) (Filter, error) {
	var cfg NoSettings
	if err := config.SafeUnmarshal(settings, &cfg); err != nil {
		return nil, errors.Wrap(err, "AccumulateFilter", "newAccumulateFilter", "settings")
	}
	return NewAccumulateFilter(), nil
}

// ID implements Filter.
func (f *AccumulateFilter) ID() string { return KindAccumulate }

// Process adds the frame's representative value to the running sum and
// emits the new total.
func (f *AccumulateFilter) Process(in *frame.Frame) (*frame.Frame, error) {
	rep := in.Representative()
	if frame.IsMissing(rep) {
		return nil, errors.WrapInvalid(errors.ErrFilterCompute,
			"AccumulateFilter", "Process", "all samples missing")
	}
	f.sum += rep
	return frame.NewScalar(in.Source(), in.At(), KindAccumulate, f.sum)
}
