// Package config defines the farm-iot configuration file format and its
// loading pipeline.
//
// A deployment is described by a single JSON document: site identity, the
// alarm channel, gateway endpoints (Modbus links, the MQTT broker) and the
// sensor fleet with per-sensor filter pipelines and exporters. Loading runs
// three stages: the raw document is checked against an embedded JSON Schema,
// decoded strictly (unknown fields are rejected), and finally validated
// field by field via Validate methods.
//
// Kind-specific settings (a filter's window length, an exporter's target
// directory, a driver's slave id) ride through as json.RawMessage and are
// decoded by the registered factory with SafeUnmarshal.
package config
