package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jack2012aa/farm-iot/errors"
	"github.com/jack2012aa/farm-iot/export"
	"github.com/jack2012aa/farm-iot/frame"
	"github.com/jack2012aa/farm-iot/manage"
	"github.com/jack2012aa/farm-iot/metric"
)

// Options carries the fields every sensor shares, mirroring one per-sensor
// configuration block.
type Options struct {
	// Name identifies the sensor. It doubles as the worker ID and the
	// frame source.
	Name string
	// Length is the number of samples per batch.
	Length int
	// Duration is the pause between consecutive samples (pull mode).
	Duration time.Duration
	// Waiting is the pause after a published batch (pull mode), or how
	// long a partial batch may sit before it is flushed (push mode).
	Waiting time.Duration
	// Belonging lists the addresses alarmed when this sensor fails.
	Belonging []string

	Logger  *slog.Logger
	Metrics *metric.Metrics
	// Reporter receives in-loop failures. Nil drops them.
	Reporter manage.Reporter
	// Publisher carries the subscribed pipelines and exporters. Nil gets
	// an empty publisher.
	Publisher *export.Publisher
}

func (o *Options) validate() error {
	if o.Name == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"sensor", "validate", "sensor name")
	}
	if o.Length < 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"sensor", "validate", fmt.Sprintf("length %d, want at least 1", o.Length))
	}
	return nil
}

// base is the state shared by both loop flavors.
type base struct {
	name      string
	length    int
	belonging []string
	logger    *slog.Logger
	metrics   *metric.Metrics
	reporter  manage.Reporter
	publisher *export.Publisher
}

func newBase(o Options) base {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("sensor", o.Name)

	publisher := o.Publisher
	if publisher == nil {
		publisher = export.NewPublisher(o.Name, logger, o.Metrics)
	}

	return base{
		name:      o.Name,
		length:    o.Length,
		belonging: append([]string(nil), o.Belonging...),
		logger:    logger,
		metrics:   o.Metrics,
		reporter:  o.Reporter,
		publisher: publisher,
	}
}

// ID implements manage.Worker.
func (b *base) ID() string { return b.name }

// Belonging returns the alarm recipients bound to this sensor.
func (b *base) Belonging() []string {
	return append([]string(nil), b.belonging...)
}

// report forwards an in-loop failure to the supervisor, if one is attached.
func (b *base) report(err error) {
	if b.reporter != nil {
		b.reporter.Report(b.name, err)
	}
}

// publish assembles one batch into a frame stamped with the completion time
// and fans it out.
func (b *base) publish(ctx context.Context, startedAt time.Time, times []time.Time, names []string, values [][]float64) error {
	columns := make([]frame.Column, len(names))
	for i, name := range names {
		columns[i] = frame.Column{Name: name, Values: values[i]}
	}

	f, err := frame.New(b.name, time.Now(), times, columns...)
	if err != nil {
		return errors.WrapInvalid(err, "sensor", "publish", "frame assembly")
	}

	b.metrics.RecordBatch(b.name, time.Since(startedAt))
	b.metrics.RecordFramePublished(b.name)
	b.publisher.Publish(ctx, f)
	return nil
}

// missingRow returns one all-missing sample.
func missingRow(width int) []float64 {
	row := make([]float64, width)
	for i := range row {
		row[i] = frame.Missing()
	}
	return row
}
