// Package export delivers frames to sinks.
//
// An Exporter writes one frame to one destination: a week-stamped CSV file,
// a scatter plot PNG, the console. A Publisher fans a frame out to an
// ordered set of exporters and isolates their failures: a broken sink is
// logged and counted, never propagated to the producing sensor or to its
// neighbour sinks. Sensors and filters embed a Publisher as their export
// capability.
//
// Exporter kinds are registered in a Registry and built from configuration
// by kind name and raw settings.
package export
