package pipeline

import (
	"encoding/json"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/jack2012aa/farm-iot/config"
	"github.com/jack2012aa/farm-iot/errors"
	"github.com/jack2012aa/farm-iot/frame"
)

// WindowSettings configures the moving-window filters.
type WindowSettings struct {
	MaxLength int `json:"max_length"`
}

// Validate checks the settings.
func (s *WindowSettings) Validate() error {
	if s.MaxLength < 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"WindowSettings", "Validate", "max_length must be at least 1")
	}
	return nil
}

// window is a fixed-capacity FIFO of representative values shared by the
// moving filters. Older values are evicted from the front.
type window struct {
	max    int
	values []float64
}

func newWindow(max int) window {
	return window{max: max, values: make([]float64, 0, max)}
}

func (w *window) push(v float64) {
	if len(w.values) == w.max {
		copy(w.values, w.values[1:])
		w.values = w.values[:w.max-1]
	}
	w.values = append(w.values, v)
}

func (w *window) len() int { return len(w.values) }

// MovingAverageFilter keeps a FIFO window of each frame's representative
// value across frames and emits the window mean. Correct before the window
// fills: the mean covers whatever has accumulated.
type MovingAverageFilter struct {
	window window
}

// NewMovingAverageFilter creates the filter with the given window capacity.
func NewMovingAverageFilter(maxLength int) *MovingAverageFilter {
	return &MovingAverageFilter{window: newWindow(maxLength)}
}

func newMovingAverageFilter(settings json.RawMessage) (Filter, error) {
	cfg, err := windowSettings("MovingAverageFilter", settings)
	if err != nil {
		return nil, err
	}
	return NewMovingAverageFilter(cfg.MaxLength), nil
}

// ID implements Filter.
func (f *MovingAverageFilter) ID() string { return KindMovingAverage }

// Process appends the frame's representative value and emits the window
// mean.
func (f *MovingAverageFilter) Process(in *frame.Frame) (*frame.Frame, error) {
	rep := in.Representative()
	if frame.IsMissing(rep) {
		return nil, errors.WrapInvalid(errors.ErrFilterCompute,
			"MovingAverageFilter", "Process", "all samples missing")
	}
	f.window.push(rep)
	return frame.NewScalar(in.Source(), in.At(), KindMovingAverage,
		stat.Mean(f.window.values, nil))
}

// MovingMedianFilter keeps a FIFO window of representative values and
// emits the window median (mean of the central pair for even counts).
type MovingMedianFilter struct {
	window window
	sorted []float64
}

// NewMovingMedianFilter creates the filter with the given window capacity.
func NewMovingMedianFilter(maxLength int) *MovingMedianFilter {
	return &MovingMedianFilter{
		window: newWindow(maxLength),
		sorted: make([]float64, 0, maxLength),
	}
}

func newMovingMedianFilter(settings json.RawMessage) (Filter, error) {
	cfg, err := windowSettings("MovingMedianFilter", settings)
	if err != nil {
		return nil, err
	}
	return NewMovingMedianFilter(cfg.MaxLength), nil
}

// ID implements Filter.
func (f *MovingMedianFilter) ID() string { return KindMovingMedian }

// Process appends the frame's representative value and emits the window
// median.
func (f *MovingMedianFilter) Process(in *frame.Frame) (*frame.Frame, error) {
	rep := in.Representative()
	if frame.IsMissing(rep) {
		return nil, errors.WrapInvalid(errors.ErrFilterCompute,
			"MovingMedianFilter", "Process", "all samples missing")
	}
	f.window.push(rep)

	f.sorted = append(f.sorted[:0], f.window.values...)
	sort.Float64s(f.sorted)

	n := len(f.sorted)
	median := f.sorted[n/2]
	if n%2 == 0 {
		median = (f.sorted[n/2-1] + f.sorted[n/2]) / 2
	}
	return frame.NewScalar(in.Source(), in.At(), KindMovingMedian, median)
}

// MovingStdFilter keeps a FIFO window of representative values and emits
// the population standard deviation over the window. A single-value window
// emits 0.
type MovingStdFilter struct {
	window window
}

// NewMovingStdFilter creates the filter with the given window capacity.
func NewMovingStdFilter(maxLength int) *MovingStdFilter {
	return &MovingStdFilter{window: newWindow(maxLength)}
}

func newMovingStdFilter(settings json.RawMessage) (Filter, error) {
	cfg, err := windowSettings("MovingStdFilter", settings)
	if err != nil {
		return nil, err
	}
	return NewMovingStdFilter(cfg.MaxLength), nil
}

// ID implements Filter.
func (f *MovingStdFilter) ID() string { return KindMovingStd }

// Process appends the frame's representative value and emits the window's
// population standard deviation.
func (f *MovingStdFilter) Process(in *frame.Frame) (*frame.Frame, error) {
	rep := in.Representative()
	if frame.IsMissing(rep) {
		return nil, errors.WrapInvalid(errors.ErrFilterCompute,
			"MovingStdFilter", "Process", "all samples missing")
	}
	f.window.push(rep)
	return frame.NewScalar(in.Source(), in.At(), KindMovingStd,
		stat.PopStdDev(f.window.values, nil))
}

// windowSettings decodes WindowSettings for one of the moving filters.
func windowSettings(component string, settings json.RawMessage) (WindowSettings, error) {
	var cfg WindowSettings
	if err := config.SafeUnmarshal(settings, &cfg); err != nil {
		return cfg, errors.Wrap(err, component, "windowSettings", "settings")
	}
	return cfg, nil
}
