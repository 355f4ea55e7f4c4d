// Package errors provides standardized error handling patterns for farm-iot components.
//
// # Overview
//
// The errors package implements a three-class error classification system for the
// gateway's failure policy: Transient (temporary, retryable), Invalid (bad input,
// non-retryable), and Fatal (escalate, alarm-worthy).
//
// The supervisor uses the classification to decide between restarting a worker
// with backoff, dispatching an alarm, or logging and moving on, without hardcoded
// error string matching in policy code.
//
// # Error Classification
//
//   - Transient: gateway connection loss, protocol timeouts, single failed reads
//     (retry or continue recommended)
//   - Invalid: malformed payloads, filter computations on insufficient data,
//     bad configuration values (do not retry)
//   - Fatal: lost device liveness, unrecoverable configuration (escalate)
//
// The classification integrates with Go's standard error handling, supporting
// errors.Is(), errors.As(), and wrapping chains.
//
// # Quick Start
//
// Return standard error variables for known conditions:
//
//	if !connected {
//	    return errors.ErrNotConnected
//	}
//
// Wrap errors with context at component boundaries:
//
//	if err := gw.Read(ctx, addr); err != nil {
//	    return errors.WrapTransient(err, "modbusConn", "Read", "read holding registers")
//	}
//
// Check classification for policy decisions:
//
//	if errors.IsTransient(err) {
//	    // restart the worker after backoff
//	}
package errors
