// Package health provides health monitoring for gateway components and
// liveness tracking for push-based sensors.
//
// # Component health
//
// Monitor is a thread-safe status registry with three states:
//   - Healthy: component operating normally
//   - Degraded: component operating with reduced function (for example a
//     batch that continued past failed reads)
//   - Unhealthy: component not functioning (gateway down, device silent)
//
// Sensors, gateways and the supervisor push updates; the ops endpoint reads
// AggregateHealth for /healthz.
//
// # Device liveness
//
// Tracker is a two-state machine (Alive, Unreachable) for one push-based
// sensor. Data arrivals and explicit heartbeats call Beat; the Watchdog
// sweeps all trackers on a cadence derived by SweepInterval and invokes the
// lost callback exactly once per outage. Recovery is silent: a beat flips
// the tracker back to Alive without any callback, and only the next outage
// fires again. Trackers start Alive with a full timeout of grace so a
// freshly registered device is not reported before it had a chance to speak.
package health
