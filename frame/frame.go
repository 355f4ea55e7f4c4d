package frame

import (
	"fmt"
	"math"
	"time"
)

// Missing returns the sentinel used for failed or absent samples.
func Missing() float64 {
	return math.NaN()
}

// IsMissing reports whether v is the missing-value sentinel.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// Column is one named series of values within a Frame, ordered by row.
type Column struct {
	Name   string
	Values []float64
}

// Frame is one emitted batch of readings plus metadata. Immutable once
// constructed.
type Frame struct {
	source string
	at     time.Time
	times  []time.Time
	names  []string
	values map[string][]float64
}

// New constructs a Frame from row sample times and named columns. Every
// column must have exactly one value per row. Inputs are copied.
func New(source string, at time.Time, times []time.Time, columns ...Column) (*Frame, error) {
	if source == "" {
		return nil, fmt.Errorf("frame.New: empty source")
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("frame.New: no columns")
	}

	f := &Frame{
		source: source,
		at:     at,
		times:  make([]time.Time, len(times)),
		names:  make([]string, 0, len(columns)),
		values: make(map[string][]float64, len(columns)),
	}
	copy(f.times, times)

	for _, col := range columns {
		if col.Name == "" {
			return nil, fmt.Errorf("frame.New: column with empty name")
		}
		if _, dup := f.values[col.Name]; dup {
			return nil, fmt.Errorf("frame.New: duplicate column %q", col.Name)
		}
		if len(col.Values) != len(times) {
			return nil, fmt.Errorf("frame.New: column %q has %d values for %d rows",
				col.Name, len(col.Values), len(times))
		}
		vals := make([]float64, len(col.Values))
		copy(vals, col.Values)
		f.names = append(f.names, col.Name)
		f.values[col.Name] = vals
	}

	return f, nil
}

// NewScalar constructs a single-row, single-column Frame. Derived frames
// emitted by filters use this shape.
func NewScalar(source string, at time.Time, name string, value float64) (*Frame, error) {
	return New(source, at, []time.Time{at}, Column{Name: name, Values: []float64{value}})
}

// Source returns the id of the sensor or filter that produced the frame.
func (f *Frame) Source() string { return f.source }

// At returns the batch completion time.
func (f *Frame) At() time.Time { return f.at }

// Rows returns the number of samples in the batch.
func (f *Frame) Rows() int { return len(f.times) }

// Times returns a copy of the per-row sample times.
func (f *Frame) Times() []time.Time {
	out := make([]time.Time, len(f.times))
	copy(out, f.times)
	return out
}

// Names returns a copy of the column names in construction order.
func (f *Frame) Names() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

// Column returns a copy of the named column's values.
func (f *Frame) Column(name string) ([]float64, bool) {
	vals, ok := f.values[name]
	if !ok {
		return nil, false
	}
	out := make([]float64, len(vals))
	copy(out, vals)
	return out, true
}

// Values returns a copy of all values in column order, rows of the first
// column first. For single-column frames this is simply the batch series.
func (f *Frame) Values() []float64 {
	out := make([]float64, 0, len(f.names)*len(f.times))
	for _, name := range f.names {
		out = append(out, f.values[name]...)
	}
	return out
}

// Present returns all non-missing values in column order.
func (f *Frame) Present() []float64 {
	out := make([]float64, 0, len(f.names)*len(f.times))
	for _, name := range f.names {
		for _, v := range f.values[name] {
			if !IsMissing(v) {
				out = append(out, v)
			}
		}
	}
	return out
}

// Representative collapses the frame to one value: the mean of all
// non-missing values. Cross-frame window filters feed on this. Returns the
// missing sentinel when every value is missing.
func (f *Frame) Representative() float64 {
	sum := 0.0
	n := 0
	for _, name := range f.names {
		for _, v := range f.values[name] {
			if !IsMissing(v) {
				sum += v
				n++
			}
		}
	}
	if n == 0 {
		return Missing()
	}
	return sum / float64(n)
}
