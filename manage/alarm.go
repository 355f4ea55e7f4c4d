package manage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Reason identifies why an alarm fired.
type Reason int

const (
	// ReasonGatewayTimeout covers link-level failures: the transport to
	// the device broke or stayed silent for a whole batch.
	ReasonGatewayTimeout Reason = iota
	// ReasonHeartbeatLost covers push devices that went quiet past their
	// liveness timeout.
	ReasonHeartbeatLost
	// ReasonReadError covers persistent data-level failures on a device
	// that is otherwise reachable.
	ReasonReadError
)

// String returns the label used in logs, metrics and notifications.
func (r Reason) String() string {
	switch r {
	case ReasonGatewayTimeout:
		return "gateway_timeout"
	case ReasonHeartbeatLost:
		return "heartbeat_lost"
	case ReasonReadError:
		return "read_error"
	default:
		return "unknown"
	}
}

// AlarmEvent carries one failure escalation to the dispatcher. Events are
// handed over and forgotten; the gateway keeps no alarm history.
type AlarmEvent struct {
	ID          uuid.UUID
	SensorID    string
	Reason      Reason
	Responsible []string
	OccurredAt  time.Time
}

// NewAlarmEvent stamps a fresh event for a sensor.
func NewAlarmEvent(sensorID string, reason Reason, responsible []string) AlarmEvent {
	return AlarmEvent{
		ID:          uuid.New(),
		SensorID:    sensorID,
		Reason:      reason,
		Responsible: append([]string(nil), responsible...),
		OccurredAt:  time.Now(),
	}
}

// Dispatcher turns an alarm event into a notification to the responsible
// parties. Delivery is best effort: the supervisor logs a failed dispatch
// and moves on.
type Dispatcher interface {
	Notify(ctx context.Context, event AlarmEvent) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, event AlarmEvent) error

// Notify implements Dispatcher.
func (f DispatcherFunc) Notify(ctx context.Context, event AlarmEvent) error {
	return f(ctx, event)
}
