// Package metric provides Prometheus-based metrics for the gateway.
//
// All instruments live on one Metrics struct under the "farmiot" namespace,
// grouped by subsystem: sampling (batches, sample errors, durations),
// pipeline (filter emits), export (attempts, durations), liveness (alive
// gauge, lost heartbeats), alarm (dispatches), supervise (reports,
// restarts), gateway (connection status) and bridge (queue depth, drops).
//
// Components record through the typed helpers rather than touching the Vecs
// directly, so label sets stay consistent:
//
//	metrics.RecordBatch("scale-1", elapsed)
//	metrics.RecordExport("weekly_csv", "error", elapsed)
//
// The helpers are nil-receiver safe; components built without metrics (unit
// tests, tooling) simply record nothing.
//
// NewRegistry wires the instruments plus the Go runtime collectors into a
// fresh prometheus registry for the ops endpoint to serve.
package metric
