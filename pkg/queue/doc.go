// Package queue provides a thread-safe bounded FIFO with configurable
// overflow policies.
//
// # Overview
//
// The queue is the bridge between background transport callbacks and the
// goroutine that owns sensor state: MQTT handlers push from the client
// library's goroutines, and exactly one consumer drains with Pop. Overflow
// behavior is a policy choice:
//
//   - DropOldest: evict the oldest item to admit the new one (default for
//     the MQTT bridge; fresh readings beat stale ones)
//   - DropNewest: reject the new item
//   - Block: wait until space frees up
//
// Dropped items are counted and observable via Dropped.
//
// # Usage
//
//	q := queue.New[gateway.Message](256, queue.DropOldest)
//	q.Push(msg)                 // from the transport callback
//	msg, err := q.Pop(ctx)      // single consumer
package queue
