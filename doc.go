// Package farmiot is an edge gateway for livestock farm sites: it polls
// industrial sensors, runs their readings through statistical filter
// pipelines and fans the results out to files, plots and alarms.
//
// # Overview
//
// A farm site mixes pull devices on serial field buses with push devices
// on an MQTT broker. The gateway speaks both, normalizes everything into
// timestamped value batches (frames) and keeps the site observable: every
// device has responsible parties, and a device that goes quiet becomes an
// email alarm instead of a silent data gap.
//
//	┌──────────────┐  Modbus RTU/TCP   ┌──────────────────────────────┐
//	│ weight scales│ ────────────────> │           sensors            │
//	│ air probes   │    (pull, gateway │  batch loops, one goroutine  │
//	└──────────────┘     serialized)   │  per device                  │
//	┌──────────────┐  MQTT             │                              │
//	│ feeder gates │ ────────────────> │  push loops + liveness       │
//	└──────────────┘   (push, bounded  └──────────────┬───────────────┘
//	                    bridge queue)                 │ frames
//	                                                  ▼
//	                                   ┌──────────────────────────────┐
//	                                   │   pipelines and exporters    │
//	                                   │  averages, windows, std,     │
//	                                   │  feed consumption; weekly    │
//	                                   │  CSV, scatter PNG, console   │
//	                                   └──────────────┬───────────────┘
//	                                                  │ failures
//	                                                  ▼
//	                                   ┌──────────────────────────────┐
//	                                   │   supervisor and alarms      │
//	                                   │  classify, restart, escalate │
//	                                   │  to rate-limited SMTP mail   │
//	                                   └──────────────────────────────┘
//
// # Package map
//
//   - cmd/farm-iot: the binary; flags, logging, config load, engine run.
//   - engine: builder from config to wired worker graph, run loop, ops HTTP.
//   - config: JSON document, validation, schema check, SafeUnmarshal.
//   - frame: the immutable batch value object flowing between stages.
//   - sensor: core pull/push loops; drivers under sensor/feedscale,
//     sensor/airquality, sensor/feedergate and sensor/replay.
//   - pipeline: Filter interface, ordered chains, common and windowed
//     statistics filters.
//   - export: Exporter interface, Publisher fan-out, CSV/plot/console sinks.
//   - gateway/modbus, gateway/mqtt: the shared field-bus and broker links.
//   - manage: Worker, Supervisor, alarm events and dispatch interfaces.
//   - alarm: SMTP dispatcher with per-sensor rate limiting.
//   - health: liveness trackers, watchdog, component health registry.
//   - metric: Prometheus instruments under the farmiot namespace.
//   - errors: error classes, sentinels and wrap helpers.
//   - pkg/retry, pkg/queue: backoff schedules and the bounded FIFO.
//
// # Design rules
//
// One goroutine owns each sensor's state; broker callbacks hand messages
// over through bounded queues instead of touching it. All cross-package
// failures are wrapped with the errors package and classified, and every
// restart or escalation decision is made from that class, never from
// string matching. Construction happens in the engine; runtime failure
// policy lives in the supervisor; nothing constructs its own collaborators
// mid-run.
package farmiot
