package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jack2012aa/farm-iot/errors"
	"github.com/jack2012aa/farm-iot/frame"
	"github.com/jack2012aa/farm-iot/metric"
)

// Exporter delivers frames to one sink. Implementations need not be safe
// for concurrent use: every configured sink gets its own instance, driven
// by a single publisher goroutine.
type Exporter interface {
	// ID identifies the sink in logs and metric labels.
	ID() string
	// Export delivers one frame. An error marks this delivery failed; the
	// publisher isolates it from the other sinks.
	Export(ctx context.Context, f *frame.Frame) error
}

// Reporter receives sink failure reports on behalf of the publisher's
// owner. The supervisor implements it.
type Reporter interface {
	Report(workerID string, err error)
}

// Publisher fans a frame out to an ordered set of sinks. Sensors and
// filters embed it as their export capability. Delivery is sequential in
// attachment order; a failing sink is logged, counted and reported but
// never stops the remaining sinks or the producer.
type Publisher struct {
	owner     string
	logger    *slog.Logger
	metrics   *metric.Metrics
	reporter  Reporter
	exporters []Exporter
}

// NewPublisher creates a publisher for the named owner. A nil logger falls
// back to slog.Default; metrics may be nil.
func NewPublisher(owner string, logger *slog.Logger, metrics *metric.Metrics) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		owner:   owner,
		logger:  logger.With("publisher", owner),
		metrics: metrics,
	}
}

// Attach appends sinks in fan-out order. Must complete before the owning
// worker starts publishing; the publisher holds no lock.
func (p *Publisher) Attach(exporters ...Exporter) {
	p.exporters = append(p.exporters, exporters...)
}

// SetReporter routes sink failures to the supervisor in addition to the
// local log. Must be set before publishing starts.
func (p *Publisher) SetReporter(r Reporter) {
	p.reporter = r
}

// Len returns the number of attached sinks.
func (p *Publisher) Len() int {
	return len(p.exporters)
}

// Publish delivers the frame to every attached sink in order.
func (p *Publisher) Publish(ctx context.Context, f *frame.Frame) {
	if f == nil {
		return
	}

	for _, e := range p.exporters {
		start := time.Now()
		err := e.Export(ctx, f)
		elapsed := time.Since(start)

		if err != nil {
			p.metrics.RecordExport(e.ID(), "error", elapsed)
			p.logger.Warn("export failed",
				"exporter", e.ID(),
				"source", f.Source(),
				"rows", f.Rows(),
				"error", err)
			if p.reporter != nil {
				p.reporter.Report(p.owner,
					fmt.Errorf("%w: %s: %w", errors.ErrSinkExport, e.ID(), err))
			}
			continue
		}
		p.metrics.RecordExport(e.ID(), "ok", elapsed)
	}
}
