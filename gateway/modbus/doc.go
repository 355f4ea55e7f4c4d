// Package modbus provides shared, serialized Modbus links for pull
// sensors.
//
// One Conn represents one physical link: a serial RTU bus or a TCP
// endpoint. Several sensors (slaves) share a Conn; every register read
// takes the link mutex, switches the slave address, and performs exactly
// one request, so there is one request in flight per link, which is what a
// half duplex RTU bus requires. Connections heal themselves: a read on a broken
// link first tries to reconnect, and link-level failures are reported as
// connection errors so the supervisor can back off the owning sensor.
//
// A Manager owns the links configured for the site, keyed by gateway name.
package modbus
