// Package pipeline runs frames through ordered chains of statistical
// filters.
//
// A Filter consumes one frame, updates its own window, and optionally
// derives a new single-value frame. A Pipeline threads each incoming frame
// through its filters in configured order; every filter sees the
// pipeline's input frame and hands its derived output to its own
// publisher. A later filter therefore never observes an earlier filter's
// output implicitly; explicit chaining is done by subscribing a Pipeline
// as an exporter of the producing stage, the same mechanism as any sink.
// Composition order changes which exporter receives which derived stream,
// not a filter's own numbers.
//
// Filters are never shared: the same computation needed twice means two
// instances. A filter's window update is atomic: a frame that fails to
// process leaves the window untouched.
package pipeline
