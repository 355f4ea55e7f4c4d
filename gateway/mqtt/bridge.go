package mqtt

import (
	"context"

	"github.com/jack2012aa/farm-iot/metric"
	"github.com/jack2012aa/farm-iot/pkg/queue"
)

// defaultBridgeCapacity bounds an unconfigured bridge. A push sensor
// drains continuously, so the buffer only has to ride out one slow batch.
const defaultBridgeCapacity = 256

// Bridge buffers one topic subscription into a bounded queue. The network
// goroutine pushes, exactly one sensor loop pops; overflow discards the
// oldest message so the freshest data survives a stall.
type Bridge struct {
	sensor  string
	metrics *metric.Metrics
	queue   *queue.Queue[Message]
}

// NewBridge creates a bridge for the named sensor. Capacity zero or below
// picks the default.
func NewBridge(sensor string, capacity int, metrics *metric.Metrics) *Bridge {
	if capacity <= 0 {
		capacity = defaultBridgeCapacity
	}
	return &Bridge{
		sensor:  sensor,
		metrics: metrics,
		queue:   queue.New[Message](capacity, queue.DropOldest),
	}
}

// Handler returns the subscription callback feeding this bridge.
func (b *Bridge) Handler() Handler {
	return func(msg Message) {
		before := b.queue.Dropped()
		// DropOldest always finds room while the queue is open.
		_ = b.queue.Push(msg)
		if b.queue.Dropped() > before {
			b.metrics.RecordBridgeDrop(b.sensor)
		}
		b.metrics.SetBridgeDepth(b.sensor, b.queue.Len())
	}
}

// Pop blocks until a message is buffered, the context ends, or the bridge
// is closed and drained.
func (b *Bridge) Pop(ctx context.Context) (Message, error) {
	msg, err := b.queue.Pop(ctx)
	if err != nil {
		return Message{}, err
	}
	b.metrics.SetBridgeDepth(b.sensor, b.queue.Len())
	return msg, nil
}

// TryPop returns the oldest buffered message without blocking.
func (b *Bridge) TryPop() (Message, bool) {
	msg, ok := b.queue.TryPop()
	if ok {
		b.metrics.SetBridgeDepth(b.sensor, b.queue.Len())
	}
	return msg, ok
}

// Len returns the number of buffered messages.
func (b *Bridge) Len() int { return b.queue.Len() }

// Dropped returns how many messages overflow has discarded.
func (b *Bridge) Dropped() uint64 { return b.queue.Dropped() }

// Close rejects further pushes. Buffered messages stay poppable.
func (b *Bridge) Close() { b.queue.Close() }
