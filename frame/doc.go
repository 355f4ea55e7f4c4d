// Package frame defines the unit of pipeline processing: one batch of
// sensor readings plus metadata.
//
// A Frame carries the batch completion time, the producing source id, the
// per-row sample times, and one or more named value columns. Frames are
// immutable: constructors copy their inputs and accessors return copies, so
// a Frame can be handed to any number of pipelines and exporters without
// coordination. Missing samples are carried as NaN (see Missing and
// IsMissing); every consumer must tolerate them.
//
// Design principles:
//   - Value semantics: no consumer can observe another consumer's writes
//   - Transient lifetime: frames are not retained beyond the processing
//     step that consumes them, except inside a filter's bounded window
//   - NaN is data: a batch with failed reads still flows downstream
package frame
