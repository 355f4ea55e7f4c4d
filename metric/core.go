package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics contains all gateway-level metrics (not driver-specific)
type Metrics struct {
	// Sampling metrics
	BatchesCompleted *prometheus.CounterVec
	SampleErrors     *prometheus.CounterVec
	BatchDuration    *prometheus.HistogramVec
	FramesPublished  *prometheus.CounterVec

	// Pipeline and export metrics
	FilterEmits    *prometheus.CounterVec
	ExportsTotal   *prometheus.CounterVec
	ExportDuration *prometheus.HistogramVec

	// Liveness and alarm metrics
	SensorAlive      *prometheus.GaugeVec
	HeartbeatsLost   *prometheus.CounterVec
	AlarmsDispatched *prometheus.CounterVec

	// Supervision metrics
	ReportsTotal   *prometheus.CounterVec
	WorkerRestarts *prometheus.CounterVec

	// Transport metrics
	GatewayConnected *prometheus.GaugeVec
	BridgeDepth      *prometheus.GaugeVec
	BridgeDropped    *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all gateway metrics
func NewMetrics() *Metrics {
	return &Metrics{
		BatchesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "farmiot",
				Subsystem: "sampling",
				Name:      "batches_total",
				Help:      "Total number of completed sample batches",
			},
			[]string{"sensor"},
		),

		SampleErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "farmiot",
				Subsystem: "sampling",
				Name:      "sample_errors_total",
				Help:      "Total number of failed single-sample reads (batch continued with a missing value)",
			},
			[]string{"sensor"},
		),

		BatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "farmiot",
				Subsystem: "sampling",
				Name:      "batch_duration_seconds",
				Help:      "Wall-clock time to collect one batch",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"sensor"},
		),

		FramesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "farmiot",
				Subsystem: "sampling",
				Name:      "frames_published_total",
				Help:      "Total number of frames handed to pipelines and exporters",
			},
			[]string{"source"},
		),

		FilterEmits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "farmiot",
				Subsystem: "pipeline",
				Name:      "filter_emits_total",
				Help:      "Derived frames emitted per filter, by status",
			},
			[]string{"filter", "status"},
		),

		ExportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "farmiot",
				Subsystem: "export",
				Name:      "exports_total",
				Help:      "Total number of frame exports, by status",
			},
			[]string{"exporter", "status"},
		),

		ExportDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "farmiot",
				Subsystem: "export",
				Name:      "duration_seconds",
				Help:      "Export call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"exporter"},
		),

		SensorAlive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "farmiot",
				Subsystem: "liveness",
				Name:      "sensor_alive",
				Help:      "Sensor liveness (0=unreachable, 1=alive)",
			},
			[]string{"sensor"},
		),

		HeartbeatsLost: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "farmiot",
				Subsystem: "liveness",
				Name:      "heartbeats_lost_total",
				Help:      "Total number of Alive to Unreachable transitions",
			},
			[]string{"sensor"},
		),

		AlarmsDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "farmiot",
				Subsystem: "alarm",
				Name:      "dispatched_total",
				Help:      "Total number of alarm dispatch attempts, by reason and status",
			},
			[]string{"sensor", "reason", "status"},
		),

		ReportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "farmiot",
				Subsystem: "supervise",
				Name:      "reports_total",
				Help:      "Total number of worker failure reports, by error class",
			},
			[]string{"worker", "class"},
		),

		WorkerRestarts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "farmiot",
				Subsystem: "supervise",
				Name:      "worker_restarts_total",
				Help:      "Total number of worker restarts after transient failures",
			},
			[]string{"worker"},
		),

		GatewayConnected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "farmiot",
				Subsystem: "gateway",
				Name:      "connected",
				Help:      "Gateway connection status (0=disconnected, 1=connected)",
			},
			[]string{"gateway"},
		),

		BridgeDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "farmiot",
				Subsystem: "bridge",
				Name:      "queue_depth",
				Help:      "Buffered messages in a push sensor's bridge queue",
			},
			[]string{"sensor"},
		),

		BridgeDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "farmiot",
				Subsystem: "bridge",
				Name:      "dropped_total",
				Help:      "Messages discarded by bridge queue overflow",
			},
			[]string{"sensor"},
		),
	}
}

// Register registers every instrument with the given registerer. It panics
// on duplicate registration, which only happens on wiring bugs.
func (c *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(
		c.BatchesCompleted,
		c.SampleErrors,
		c.BatchDuration,
		c.FramesPublished,
		c.FilterEmits,
		c.ExportsTotal,
		c.ExportDuration,
		c.SensorAlive,
		c.HeartbeatsLost,
		c.AlarmsDispatched,
		c.ReportsTotal,
		c.WorkerRestarts,
		c.GatewayConnected,
		c.BridgeDepth,
		c.BridgeDropped,
	)
}

// NewRegistry creates a fresh prometheus registry with the gateway metrics
// and Go runtime collectors registered. The ops endpoint serves it.
func NewRegistry() (*Metrics, *prometheus.Registry) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	m.Register(reg)
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m, reg
}

// RecordBatch records one completed batch and its duration
func (c *Metrics) RecordBatch(sensor string, duration time.Duration) {
	if c == nil {
		return
	}
	c.BatchesCompleted.WithLabelValues(sensor).Inc()
	c.BatchDuration.WithLabelValues(sensor).Observe(duration.Seconds())
}

// RecordSampleError increments the failed-read counter
func (c *Metrics) RecordSampleError(sensor string) {
	if c == nil {
		return
	}
	c.SampleErrors.WithLabelValues(sensor).Inc()
}

// RecordFramePublished increments the published frame counter
func (c *Metrics) RecordFramePublished(source string) {
	if c == nil {
		return
	}
	c.FramesPublished.WithLabelValues(source).Inc()
}

// RecordFilterEmit counts a filter's outcome ("ok", "empty", "error")
func (c *Metrics) RecordFilterEmit(filter, status string) {
	if c == nil {
		return
	}
	c.FilterEmits.WithLabelValues(filter, status).Inc()
}

// RecordExport counts an export attempt and its duration
func (c *Metrics) RecordExport(exporter, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.ExportsTotal.WithLabelValues(exporter, status).Inc()
	c.ExportDuration.WithLabelValues(exporter).Observe(duration.Seconds())
}

// RecordLiveness updates a sensor's liveness gauge
func (c *Metrics) RecordLiveness(sensor string, alive bool) {
	if c == nil {
		return
	}
	value := 0.0
	if alive {
		value = 1.0
	}
	c.SensorAlive.WithLabelValues(sensor).Set(value)
}

// RecordHeartbeatLost counts an Alive to Unreachable transition
func (c *Metrics) RecordHeartbeatLost(sensor string) {
	if c == nil {
		return
	}
	c.HeartbeatsLost.WithLabelValues(sensor).Inc()
}

// RecordAlarm counts an alarm dispatch attempt
func (c *Metrics) RecordAlarm(sensor, reason, status string) {
	if c == nil {
		return
	}
	c.AlarmsDispatched.WithLabelValues(sensor, reason, status).Inc()
}

// RecordReport counts a failure report by error class
func (c *Metrics) RecordReport(worker, class string) {
	if c == nil {
		return
	}
	c.ReportsTotal.WithLabelValues(worker, class).Inc()
}

// RecordWorkerRestart counts a supervisor-driven restart
func (c *Metrics) RecordWorkerRestart(worker string) {
	if c == nil {
		return
	}
	c.WorkerRestarts.WithLabelValues(worker).Inc()
}

// RecordGatewayConnected updates a gateway's connection gauge
func (c *Metrics) RecordGatewayConnected(gateway string, connected bool) {
	if c == nil {
		return
	}
	value := 0.0
	if connected {
		value = 1.0
	}
	c.GatewayConnected.WithLabelValues(gateway).Set(value)
}

// SetBridgeDepth updates a push sensor's bridge queue depth
func (c *Metrics) SetBridgeDepth(sensor string, depth int) {
	if c == nil {
		return
	}
	c.BridgeDepth.WithLabelValues(sensor).Set(float64(depth))
}

// RecordBridgeDrop counts one discarded bridge message
func (c *Metrics) RecordBridgeDrop(sensor string) {
	if c == nil {
		return
	}
	c.BridgeDropped.WithLabelValues(sensor).Inc()
}
