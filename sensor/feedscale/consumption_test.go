package feedscale

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jack2012aa/farm-iot/errors"
	"github.com/jack2012aa/farm-iot/frame"
	"github.com/jack2012aa/farm-iot/pipeline"
	"github.com/jack2012aa/farm-iot/sensor"
)

// fakeRefill hands out one-shot flags like the gate registry does.
type fakeRefill struct {
	flags map[string]bool
	asked []string
}

func (f *fakeRefill) ConsumeRefill(gate string) bool {
	f.asked = append(f.asked, gate)
	hit := f.flags[gate]
	f.flags[gate] = false
	return hit
}

func weightFrame(t *testing.T, values ...float64) *frame.Frame {
	t.Helper()
	at := time.Now()
	times := make([]time.Time, len(values))
	for i := range times {
		times[i] = at.Add(time.Duration(i) * time.Second)
	}
	f, err := frame.New("scale-1", at, times, frame.Column{Name: "weight", Values: values})
	require.NoError(t, err)
	return f
}

func TestConsumptionFilter_EmitsDrop(t *testing.T) {
	source := &fakeRefill{flags: map[string]bool{}}
	f := NewConsumptionFilter([]string{"gate-1"}, source)
	assert.Equal(t, KindConsumption, f.ID())

	out, err := f.Process(weightFrame(t, 100))
	require.NoError(t, err)
	assert.Nil(t, out, "the first batch only primes the baseline")

	out, err = f.Process(weightFrame(t, 98))
	require.NoError(t, err)
	require.NotNil(t, out)
	values, ok := out.Column(KindConsumption)
	require.True(t, ok)
	assert.InDelta(t, 2.0, values[0], 1e-9)
	assert.Equal(t, "scale-1", out.Source())

	out, err = f.Process(weightFrame(t, 95))
	require.NoError(t, err)
	require.NotNil(t, out)
	values, _ = out.Column(KindConsumption)
	assert.InDelta(t, 3.0, values[0], 1e-9)
}

func TestConsumptionFilter_RefillRebases(t *testing.T) {
	source := &fakeRefill{flags: map[string]bool{}}
	f := NewConsumptionFilter([]string{"gate-1"}, source)

	_, err := f.Process(weightFrame(t, 100))
	require.NoError(t, err)

	// The gate refilled the trough: the jump to 150 is fresh feed.
	source.flags["gate-1"] = true
	out, err := f.Process(weightFrame(t, 150))
	require.NoError(t, err)
	assert.Nil(t, out, "a refill interval emits no consumption")

	out, err = f.Process(weightFrame(t, 147))
	require.NoError(t, err)
	require.NotNil(t, out)
	values, _ := out.Column(KindConsumption)
	assert.InDelta(t, 3.0, values[0], 1e-9, "consumption resumes from the refilled weight")
}

func TestConsumptionFilter_RiseWithoutRefillIsNoise(t *testing.T) {
	source := &fakeRefill{flags: map[string]bool{}}
	f := NewConsumptionFilter([]string{"gate-1"}, source)

	_, err := f.Process(weightFrame(t, 100))
	require.NoError(t, err)

	out, err := f.Process(weightFrame(t, 103))
	require.NoError(t, err)
	assert.Nil(t, out, "weight rising without a refill is not consumption")

	out, err = f.Process(weightFrame(t, 101))
	require.NoError(t, err)
	require.NotNil(t, out)
	values, _ := out.Column(KindConsumption)
	assert.InDelta(t, 2.0, values[0], 1e-9, "the baseline moved to the risen weight")
}

func TestConsumptionFilter_DrainsEveryGate(t *testing.T) {
	source := &fakeRefill{flags: map[string]bool{"gate-1": true, "gate-2": true}}
	f := NewConsumptionFilter([]string{"gate-1", "gate-2"}, source)

	_, err := f.Process(weightFrame(t, 100))
	require.NoError(t, err)

	assert.Equal(t, []string{"gate-1", "gate-2"}, source.asked,
		"all flags are consumed even after the first hit")
	assert.False(t, source.flags["gate-1"])
	assert.False(t, source.flags["gate-2"])
}

func TestConsumptionFilter_UsesBatchAverage(t *testing.T) {
	source := &fakeRefill{flags: map[string]bool{}}
	f := NewConsumptionFilter([]string{"gate-1"}, source)

	_, err := f.Process(weightFrame(t, 99, 100, 101))
	require.NoError(t, err)

	out, err := f.Process(weightFrame(t, 97, 98, 99))
	require.NoError(t, err)
	require.NotNil(t, out)
	values, _ := out.Column(KindConsumption)
	assert.InDelta(t, 2.0, values[0], 1e-9)
}

func TestConsumptionFilter_AllMissing(t *testing.T) {
	f := NewConsumptionFilter([]string{"gate-1"}, &fakeRefill{flags: map[string]bool{}})

	_, err := f.Process(weightFrame(t, frame.Missing(), frame.Missing()))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrFilterCompute)
}

func TestConsumptionFactory(t *testing.T) {
	filters := pipeline.NewRegistry()
	require.NoError(t, Register(sensor.NewRegistry(), filters, &fakeRefill{flags: map[string]bool{}}))

	f, err := filters.Create(KindConsumption, json.RawMessage(`{"gate_names": ["gate-1"]}`))
	require.NoError(t, err)
	assert.Equal(t, KindConsumption, f.ID())

	_, err = filters.Create(KindConsumption, nil)
	assert.ErrorIs(t, err, errors.ErrMissingConfig, "gate_names is required")

	second, err := filters.Create(KindConsumption, json.RawMessage(`{"gate_names": ["gate-1"]}`))
	require.NoError(t, err)
	assert.NotSame(t, f, second, "every pipeline gets its own instance")
}
