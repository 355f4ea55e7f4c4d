package sensor

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jack2012aa/farm-iot/errors"
	"github.com/jack2012aa/farm-iot/export"
	"github.com/jack2012aa/farm-iot/gateway/mqtt"
	"github.com/jack2012aa/farm-iot/health"
	"github.com/jack2012aa/farm-iot/manage"
	"github.com/jack2012aa/farm-iot/metric"
)

// parsePush decodes payloads as plain floats.
type parsePush struct{}

func (d *parsePush) Columns() []string { return []string{"barn/gate-1"} }

func (d *parsePush) Parse(msg mqtt.Message) ([]float64, error) {
	v, err := strconv.ParseFloat(string(msg.Payload), 64)
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: payload %q", errors.ErrInvalidData, msg.Payload),
			"parsePush", "Parse", "decode")
	}
	return []float64{v}, nil
}

func pushOptions(m *metric.Metrics, rep manage.Reporter, sink export.Exporter) Options {
	pub := export.NewPublisher("gate-1", nil, m)
	pub.Attach(sink)
	return Options{
		Name:      "gate-1",
		Length:    2,
		Metrics:   m,
		Reporter:  rep,
		Publisher: pub,
	}
}

func pushMessage(bridge *mqtt.Bridge, payload string, at time.Time) {
	bridge.Handler()(mqtt.Message{
		Topic:   "barn/gate-1",
		Payload: []byte(payload),
		At:      at,
	})
}

func TestPush_EmitsAtLengthAndFlushesOnClose(t *testing.T) {
	m := metric.NewMetrics()
	sink := &collectExporter{}
	bridge := mqtt.NewBridge("gate-1", 8, m)

	now := time.Now()
	pushMessage(bridge, "5", now)
	pushMessage(bridge, "7", now.Add(time.Second))
	pushMessage(bridge, "9", now.Add(2*time.Second))
	bridge.Close()

	s, err := NewPush(pushOptions(m, nil, sink), &parsePush{}, bridge, nil)
	require.NoError(t, err)
	assert.Equal(t, "gate-1", s.ID())

	require.NoError(t, s.Run(context.Background()), "a drained bridge finishes the worker")

	frames := sink.collected()
	require.Len(t, frames, 2)
	assert.Equal(t, []float64{5, 7}, columnValues(t, frames[0], "barn/gate-1"))
	assert.Equal(t, []time.Time{now, now.Add(time.Second)}, frames[0].Times(),
		"rows keep the arrival stamps")
	assert.Equal(t, []float64{9}, columnValues(t, frames[1], "barn/gate-1"),
		"the partial tail is flushed on close")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesPublished.WithLabelValues("gate-1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SensorAlive.WithLabelValues("gate-1")))
}

func TestPush_FlushesPartialAfterMaxWait(t *testing.T) {
	m := metric.NewMetrics()
	sink := &collectExporter{}
	bridge := mqtt.NewBridge("gate-1", 8, m)

	opts := pushOptions(m, nil, sink)
	opts.Length = 10
	opts.Waiting = 30 * time.Millisecond
	s, err := NewPush(opts, &parsePush{}, bridge, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	pushMessage(bridge, "5", time.Now())

	require.Eventually(t, func() bool { return len(sink.collected()) == 1 },
		time.Second, 5*time.Millisecond, "partial batch was not flushed")
	assert.Equal(t, 1, sink.collected()[0].Rows())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("push loop ignored cancellation")
	}
}

func TestPush_InvalidPayloadReported(t *testing.T) {
	m := metric.NewMetrics()
	sink := &collectExporter{}
	reporter := &recordingReporter{}
	bridge := mqtt.NewBridge("gate-1", 8, m)

	now := time.Now()
	pushMessage(bridge, "not-a-number", now)
	pushMessage(bridge, "42", now.Add(time.Second))
	bridge.Close()

	opts := pushOptions(m, reporter, sink)
	opts.Length = 1
	s, err := NewPush(opts, &parsePush{}, bridge, nil)
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	frames := sink.collected()
	require.Len(t, frames, 1, "the bad message is dropped, not the batch")
	assert.Equal(t, []float64{42}, columnValues(t, frames[0], "barn/gate-1"))

	reports := reporter.reported()
	require.Len(t, reports, 1)
	assert.ErrorIs(t, reports[0], errors.ErrInvalidData)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SampleErrors.WithLabelValues("gate-1")))
}

func TestPush_BeatsTracker(t *testing.T) {
	m := metric.NewMetrics()
	sink := &collectExporter{}
	bridge := mqtt.NewBridge("gate-1", 8, m)

	start := time.Now()
	tracker := health.NewTracker("gate-1", 50*time.Millisecond, start.Add(-time.Second))
	require.True(t, tracker.Check(start), "silence beyond the timeout marks the sensor lost")
	require.False(t, tracker.Alive())

	at := start.Add(time.Millisecond)
	pushMessage(bridge, "5", at)
	bridge.Close()

	opts := pushOptions(m, nil, sink)
	opts.Length = 1
	s, err := NewPush(opts, &parsePush{}, bridge, tracker)
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	assert.True(t, tracker.Alive(), "data traffic revives the tracker")
	assert.Equal(t, at, tracker.LastSeen())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SensorAlive.WithLabelValues("gate-1")))
}

func TestNewPush_Validation(t *testing.T) {
	m := metric.NewMetrics()
	bridge := mqtt.NewBridge("gate-1", 8, m)

	_, err := NewPush(pushOptions(m, nil, &collectExporter{}), nil, bridge, nil)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)

	_, err = NewPush(pushOptions(m, nil, &collectExporter{}), &parsePush{}, nil, nil)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)

	opts := pushOptions(m, nil, &collectExporter{})
	opts.Length = 0
	_, err = NewPush(opts, &parsePush{}, bridge, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}
