package sensor

import (
	"context"
	stderrors "errors"
	"io"
	"time"

	"github.com/jack2012aa/farm-iot/errors"
	"github.com/jack2012aa/farm-iot/pkg/retry"
)

// PullDriver reads one sample at a time from a polled device.
//
// Sample returns one value per column. A partially failed sample carries
// frame.Missing() in the failed columns next to an error describing the
// failure; values of nil mean the whole sample failed. An error wrapping
// errors.ErrGatewayConnection marks the shared link as down and aborts the
// running batch. io.EOF means the driver has no further samples (replay
// recordings).
type PullDriver interface {
	// Columns returns the frame column names, in order.
	Columns() []string
	// Sample reads one value per column.
	Sample(ctx context.Context) ([]float64, error)
}

// Pull polls a driver in batches: Length samples spaced Duration apart,
// then one frame, then a Waiting pause. A failed sample is reported and
// becomes missing values; the batch still goes out. Implements
// manage.Worker.
type Pull struct {
	base
	driver   PullDriver
	duration time.Duration
	waiting  time.Duration
}

// NewPull builds a pull sensor around a driver.
func NewPull(opts Options, driver PullDriver) (*Pull, error) {
	if driver == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"sensor", "NewPull", "driver")
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if len(driver.Columns()) == 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"sensor", "NewPull", "driver reports no columns")
	}

	return &Pull{
		base:     newBase(opts),
		driver:   driver,
		duration: opts.Duration,
		waiting:  opts.Waiting,
	}, nil
}

// Run implements manage.Worker. It returns nil once the driver is drained,
// the context error on cancellation, and the sample error when the gateway
// link breaks mid-batch.
func (s *Pull) Run(ctx context.Context) error {
	s.logger.Info("sensor started",
		"mode", "pull",
		"length", s.length,
		"duration", s.duration,
		"waiting", s.waiting)

	columns := s.driver.Columns()
	for {
		drained, err := s.batch(ctx, columns)
		if err != nil {
			return err
		}
		if drained {
			s.logger.Info("sensor drained")
			return nil
		}
		if err := retry.Sleep(ctx, s.waiting); err != nil {
			return err
		}
	}
}

// batch runs one acquisition cycle. drained reports driver exhaustion.
func (s *Pull) batch(ctx context.Context, names []string) (drained bool, err error) {
	startedAt := time.Now()
	times := make([]time.Time, 0, s.length)
	values := make([][]float64, len(names))
	for i := range values {
		values[i] = make([]float64, 0, s.length)
	}

	for n := 0; n < s.length; n++ {
		sample, err := s.driver.Sample(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return false, ctx.Err()
		case stderrors.Is(err, io.EOF):
			if len(times) > 0 {
				if perr := s.publish(ctx, startedAt, times, names, values); perr != nil {
					return false, perr
				}
			}
			return true, nil
		case stderrors.Is(err, errors.ErrGatewayConnection):
			// The shared link is down: every later sample of this batch
			// would fail the same way. Drop the batch and let the
			// supervisor restart the loop after its backoff.
			s.metrics.RecordLiveness(s.name, false)
			return false, err
		default:
			s.report(err)
			s.metrics.RecordSampleError(s.name)
		}

		if len(sample) != len(names) {
			sample = missingRow(len(names))
		}
		times = append(times, time.Now())
		for c := range values {
			values[c] = append(values[c], sample[c])
		}

		if err := retry.Sleep(ctx, s.duration); err != nil {
			return false, err
		}
	}

	if err := s.publish(ctx, startedAt, times, names, values); err != nil {
		return false, err
	}
	s.metrics.RecordLiveness(s.name, true)
	return false, nil
}
