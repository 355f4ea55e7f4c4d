// Package mqtt wraps the shared broker session used by push sensors.
//
// One Client serves the whole process. Subscriptions are registered once
// and re-established by the client after every reconnect, so a broker
// outage costs messages but not topic coverage. Paho delivers inbound
// publications on its own network goroutine; a Bridge moves them into a
// bounded queue so the sensor loop, the queue's single consumer, stays
// the only writer of sensor state. When the queue overflows the oldest
// message is discarded and counted.
package mqtt
