package manage

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReasonString(t *testing.T) {
	assert.Equal(t, "gateway_timeout", ReasonGatewayTimeout.String())
	assert.Equal(t, "heartbeat_lost", ReasonHeartbeatLost.String())
	assert.Equal(t, "read_error", ReasonReadError.String())
	assert.Equal(t, "unknown", Reason(42).String())
}

func TestNewAlarmEvent(t *testing.T) {
	responsible := []string{"farm-a@example.com"}
	before := time.Now()
	event := NewAlarmEvent("gate-1", ReasonHeartbeatLost, responsible)
	after := time.Now()

	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, "gate-1", event.SensorID)
	assert.Equal(t, ReasonHeartbeatLost, event.Reason)
	assert.False(t, event.OccurredAt.Before(before))
	assert.False(t, event.OccurredAt.After(after))

	// The event owns its recipient list.
	responsible[0] = "changed@example.com"
	assert.Equal(t, []string{"farm-a@example.com"}, event.Responsible)

	other := NewAlarmEvent("gate-1", ReasonHeartbeatLost, nil)
	assert.NotEqual(t, event.ID, other.ID)
	assert.Empty(t, other.Responsible)
}

func TestDispatcherFunc(t *testing.T) {
	var got AlarmEvent
	fail := stderrors.New("boom")
	d := DispatcherFunc(func(_ context.Context, event AlarmEvent) error {
		got = event
		return fail
	})

	event := NewAlarmEvent("scale-1", ReasonReadError, nil)
	err := d.Notify(context.Background(), event)
	require.ErrorIs(t, err, fail)
	assert.Equal(t, event.ID, got.ID)
}

func TestReporterFunc(t *testing.T) {
	var gotWorker string
	var gotErr error
	r := ReporterFunc(func(workerID string, err error) {
		gotWorker = workerID
		gotErr = err
	})

	boom := stderrors.New("boom")
	r.Report("scale-1", boom)
	assert.Equal(t, "scale-1", gotWorker)
	assert.ErrorIs(t, gotErr, boom)
}
