// Package engine assembles a running gateway from one configuration
// document and supervises it until shutdown.
//
// # Overview
//
// The engine is the builder stage between configuration and runtime: it
// turns config blocks into fully wired workers and hands them to the
// supervisor, whose job from then on is failure policy only. Nothing else
// in the module constructs cross-package object graphs; drivers, filters
// and exporters all reach the engine through their registries.
//
// # Architecture
//
//	┌───────────────┐
//	│ config.Config │ (validated by config.Load)
//	└───────┬───────┘
//	        │ New + Check
//	        ▼
//	┌───────────────┐   builds    ┌──────────────────────────────┐
//	│    Engine     │ ──────────> │ per sensor:                  │
//	│               │             │  driver (registry lookup)    │
//	│ - New()       │             │  publisher ── exporters      │
//	│ - Check()     │             │            └─ pipelines      │
//	│ - Run()       │             └──────────────┬───────────────┘
//	└───────┬───────┘                            │ manage.Worker
//	        │ shares                             ▼
//	        │                            ┌──────────────┐
//	┌───────┴────────────┐   Supervise   │  Supervisor  │
//	│ gateway/modbus     │ ────────────> │ restart +    │
//	│ gateway/mqtt       │               │ escalation   │
//	│ health.Watchdog    │               └──────┬───────┘
//	│ feedergate.Registry│                      │ AlarmEvent
//	│ ops HTTP server    │                      ▼
//	└────────────────────┘               alarm dispatcher (SMTP/log)
//
// Pull drivers (weight scales, air probes) borrow serialized Modbus
// connections from the shared manager. Push drivers (feeder gates)
// subscribe through the shared MQTT client and register liveness trackers
// with the watchdog, which escalates heartbeat loss through the
// supervisor. The gate state registry connects feeder gates to the feed
// consumption filter: a gate's open-to-closed transition flags a refill
// the filter reads when it sees the next weight drop.
//
// # Construction split
//
// New builds everything that needs no live gateway: metrics, health
// monitor, alarm dispatcher, supervisor, watchdog, the Modbus manager and
// the broker client, plus the driver, filter and exporter registries. It
// finishes with a Check pass so a configuration that references unknown
// kinds fails at startup, not mid-run.
//
// Run connects the broker, builds the sensor workers (broker
// subscriptions happen here), registers the watchdog and the ops server,
// and blocks in the supervisor until the context is cancelled.
//
// # Ops endpoint
//
// With ops.address configured the engine serves /healthz (the aggregated
// component health registry as JSON, 503 when unhealthy) and /metrics
// (Prometheus). The server runs as a supervised worker, so a lost listen
// socket is retried like any other transient failure.
//
// # Usage
//
//	cfg, err := config.Load(path)
//	if err != nil { ... }
//	eng, err := engine.New(cfg, logger)
//	if err != nil { ... }
//	err = eng.Run(ctx) // until ctx is cancelled
package engine
