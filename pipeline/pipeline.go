package pipeline

import (
	"context"
	"log/slog"

	"github.com/jack2012aa/farm-iot/export"
	"github.com/jack2012aa/farm-iot/frame"
	"github.com/jack2012aa/farm-iot/metric"
)

// Filter consumes one frame, updates its own state, and optionally derives
// a new frame. Returning (nil, nil) emits nothing for this input. Filters
// are driven by a single goroutine and need no internal locking.
type Filter interface {
	// ID identifies the filter in logs and metric labels.
	ID() string
	// Process applies one frame. An error means the frame could not be
	// applied and the filter's state is unchanged.
	Process(f *frame.Frame) (*frame.Frame, error)
}

// Stage pairs a filter with the publisher carrying its derived output.
type Stage struct {
	Filter    Filter
	Publisher *export.Publisher
}

// Pipeline threads frames through an ordered filter sequence. Each filter
// receives the pipeline's input frame; derived outputs go to the stage's
// own publisher. A Pipeline is itself an Exporter, so chaining one pipeline
// after a filter is ordinary subscription.
type Pipeline struct {
	id      string
	logger  *slog.Logger
	metrics *metric.Metrics
	stages  []Stage
}

// New creates an empty pipeline. A nil logger falls back to slog.Default;
// metrics may be nil.
func New(id string, logger *slog.Logger, metrics *metric.Metrics) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		id:      id,
		logger:  logger.With("pipeline", id),
		metrics: metrics,
	}
}

// ID implements export.Exporter.
func (p *Pipeline) ID() string { return p.id }

// Append adds a stage at the end of the chain. A nil publisher stands for a
// stage without subscribers. Must complete before processing starts.
func (p *Pipeline) Append(f Filter, pub *export.Publisher) {
	p.stages = append(p.stages, Stage{Filter: f, Publisher: pub})
}

// Stages returns the number of configured stages.
func (p *Pipeline) Stages() int { return len(p.stages) }

// Process runs one frame through every stage in order. Filter errors are
// logged and counted; they never abort the remaining stages.
func (p *Pipeline) Process(ctx context.Context, f *frame.Frame) {
	if f == nil {
		return
	}

	for _, stage := range p.stages {
		derived, err := stage.Filter.Process(f)
		if err != nil {
			p.metrics.RecordFilterEmit(stage.Filter.ID(), "error")
			p.logger.Warn("filter failed",
				"filter", stage.Filter.ID(),
				"source", f.Source(),
				"error", err)
			continue
		}
		if derived == nil {
			p.metrics.RecordFilterEmit(stage.Filter.ID(), "empty")
			continue
		}

		p.metrics.RecordFilterEmit(stage.Filter.ID(), "ok")
		if stage.Publisher != nil {
			stage.Publisher.Publish(ctx, derived)
		}
	}
}

// Export implements export.Exporter: feeding a pipeline from a publisher is
// the chaining mechanism. Stage failures are handled inside Process and are
// never surfaced to the feeding publisher.
func (p *Pipeline) Export(ctx context.Context, f *frame.Frame) error {
	p.Process(ctx, f)
	return nil
}
