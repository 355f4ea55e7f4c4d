package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jack2012aa/farm-iot/frame"
)

func TestMovingAverageFilter_Sequence(t *testing.T) {
	// Capacity 2 fed 5, 7, 9 emits 5, 6, 8.
	f := NewMovingAverageFilter(2)

	want := []float64{5, 6, 8}
	for i, v := range []float64{5, 7, 9} {
		out, err := f.Process(batchFrame(t, v))
		require.NoError(t, err)
		assert.InDelta(t, want[i], scalarOf(t, out), 1e-9, "frame %d", i)
	}
}

func TestMovingAverageFilter_PartialWindow(t *testing.T) {
	f := NewMovingAverageFilter(10)

	out, err := f.Process(batchFrame(t, 4))
	require.NoError(t, err)
	assert.InDelta(t, 4.0, scalarOf(t, out), 1e-9)

	out, err = f.Process(batchFrame(t, 8))
	require.NoError(t, err)
	assert.InDelta(t, 6.0, scalarOf(t, out), 1e-9, "mean of what has accumulated")
}

func TestMovingAverageFilter_UsesRepresentative(t *testing.T) {
	f := NewMovingAverageFilter(3)

	// A batch's representative value is the mean of its non-missing samples.
	out, err := f.Process(batchFrame(t, 10, 12, 11))
	require.NoError(t, err)
	assert.InDelta(t, 11.0, scalarOf(t, out), 1e-9)

	out, err = f.Process(batchFrame(t, 13))
	require.NoError(t, err)
	assert.InDelta(t, 12.0, scalarOf(t, out), 1e-9)
}

func TestMovingAverageFilter_MissingFrameLeavesWindowUntouched(t *testing.T) {
	f := NewMovingAverageFilter(2)

	_, err := f.Process(batchFrame(t, 5))
	require.NoError(t, err)

	_, err = f.Process(batchFrame(t, frame.Missing(), frame.Missing()))
	require.Error(t, err)

	out, err := f.Process(batchFrame(t, 7))
	require.NoError(t, err)
	assert.InDelta(t, 6.0, scalarOf(t, out), 1e-9, "failed frame did not enter the window")
}

func TestMovingMedianFilter_OddAndEven(t *testing.T) {
	f := NewMovingMedianFilter(4)

	out, err := f.Process(batchFrame(t, 9))
	require.NoError(t, err)
	assert.InDelta(t, 9.0, scalarOf(t, out), 1e-9)

	out, err = f.Process(batchFrame(t, 1))
	require.NoError(t, err)
	assert.InDelta(t, 5.0, scalarOf(t, out), 1e-9, "even window: mean of central pair")

	out, err = f.Process(batchFrame(t, 5))
	require.NoError(t, err)
	assert.InDelta(t, 5.0, scalarOf(t, out), 1e-9)

	out, err = f.Process(batchFrame(t, 3))
	require.NoError(t, err)
	assert.InDelta(t, 4.0, scalarOf(t, out), 1e-9, "median of 9,1,5,3")
}

func TestMovingMedianFilter_Eviction(t *testing.T) {
	f := NewMovingMedianFilter(2)

	for _, v := range []float64{100, 1} {
		_, err := f.Process(batchFrame(t, v))
		require.NoError(t, err)
	}

	out, err := f.Process(batchFrame(t, 3))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, scalarOf(t, out), 1e-9, "100 evicted, median of 1,3")
}

func TestMovingStdFilter_Window(t *testing.T) {
	f := NewMovingStdFilter(3)

	out, err := f.Process(batchFrame(t, 10))
	require.NoError(t, err)
	assert.Equal(t, 0.0, scalarOf(t, out), "single value has zero spread")

	_, err = f.Process(batchFrame(t, 12))
	require.NoError(t, err)

	out, err = f.Process(batchFrame(t, 11))
	require.NoError(t, err)
	assert.InDelta(t, 0.816, scalarOf(t, out), 1e-3, "population std of 10,12,11")
}

func TestMovingStdFilter_Eviction(t *testing.T) {
	f := NewMovingStdFilter(2)

	for _, v := range []float64{1000, 4, 4} {
		out, err := f.Process(batchFrame(t, v))
		require.NoError(t, err)
		_ = out
	}

	out, err := f.Process(batchFrame(t, 4))
	require.NoError(t, err)
	assert.Equal(t, 0.0, scalarOf(t, out), "outlier evicted from the window")
}

func TestWindowFilterFactories_RequireMaxLength(t *testing.T) {
	for _, kind := range []string{KindMovingAverage, KindMovingMedian, KindMovingStd} {
		t.Run(kind, func(t *testing.T) {
			_, err := DefaultRegistry().Create(kind, nil)
			assert.Error(t, err, "max_length is required")

			_, err = DefaultRegistry().Create(kind, []byte(`{"max_length": 0}`))
			assert.Error(t, err)

			f, err := DefaultRegistry().Create(kind, []byte(`{"max_length": 5}`))
			require.NoError(t, err)
			assert.Equal(t, kind, f.ID())
		})
	}
}
