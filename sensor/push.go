package sensor

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jack2012aa/farm-iot/errors"
	"github.com/jack2012aa/farm-iot/gateway/mqtt"
	"github.com/jack2012aa/farm-iot/health"
)

// defaultFlush bounds how long a partial push batch may sit when the
// configuration leaves Waiting at zero.
const defaultFlush = 30 * time.Second

// PushDriver decodes one broker message into one value per column.
type PushDriver interface {
	// Columns returns the frame column names, in order.
	Columns() []string
	// Parse decodes one message. An error discards the message; the loop
	// reports it and keeps the open batch.
	Parse(msg mqtt.Message) ([]float64, error)
}

// Push drains a bridge into batches: a frame goes out at Length buffered
// samples, or once the oldest buffered sample has waited Waiting, whichever
// comes first. Every message also beats the liveness tracker. Implements
// manage.Worker.
type Push struct {
	base
	driver  PushDriver
	bridge  *mqtt.Bridge
	tracker *health.Tracker
	flush   time.Duration
}

// NewPush builds a push sensor around a driver and its bridge. The tracker
// may be nil for drivers without liveness monitoring.
func NewPush(opts Options, driver PushDriver, bridge *mqtt.Bridge, tracker *health.Tracker) (*Push, error) {
	if driver == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"sensor", "NewPush", "driver")
	}
	if bridge == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"sensor", "NewPush", "bridge")
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if len(driver.Columns()) == 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"sensor", "NewPush", "driver reports no columns")
	}

	flush := opts.Waiting
	if flush <= 0 {
		flush = defaultFlush
	}

	return &Push{
		base:    newBase(opts),
		driver:  driver,
		bridge:  bridge,
		tracker: tracker,
		flush:   flush,
	}, nil
}

// Run implements manage.Worker. It returns nil once the bridge is closed
// and drained, otherwise the context error on cancellation.
func (s *Push) Run(ctx context.Context) error {
	s.logger.Info("sensor started",
		"mode", "push",
		"length", s.length,
		"flush", s.flush)

	names := s.driver.Columns()
	var (
		startedAt time.Time
		deadline  time.Time
		times     []time.Time
		values    [][]float64
	)
	reset := func() {
		times = nil
		values = make([][]float64, len(names))
	}
	emit := func() error {
		if len(times) == 0 {
			return nil
		}
		err := s.publish(ctx, startedAt, times, names, values)
		reset()
		return err
	}
	reset()

	for {
		popCtx := ctx
		var cancel context.CancelFunc
		if len(times) > 0 {
			popCtx, cancel = context.WithDeadline(ctx, deadline)
		}
		msg, err := s.bridge.Pop(popCtx)
		if cancel != nil {
			cancel()
		}
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return ctx.Err()
		case stderrors.Is(err, context.DeadlineExceeded):
			// Maximum wait hit with a partial batch.
			if err := emit(); err != nil {
				return err
			}
			continue
		case stderrors.Is(err, errors.ErrAlreadyStopped):
			if err := emit(); err != nil {
				return err
			}
			s.logger.Info("sensor drained")
			return nil
		default:
			return err
		}

		s.beat(msg.At)
		sample, err := s.driver.Parse(msg)
		if err != nil {
			s.report(err)
			s.metrics.RecordSampleError(s.name)
			continue
		}
		if len(sample) != len(names) {
			sample = missingRow(len(names))
		}

		if len(times) == 0 {
			startedAt = time.Now()
			deadline = startedAt.Add(s.flush)
		}
		times = append(times, msg.At)
		for c := range values {
			values[c] = append(values[c], sample[c])
		}

		if len(times) >= s.length {
			if err := emit(); err != nil {
				return err
			}
		}
	}
}

// beat marks the device alive on any traffic, logging the recovery edge.
func (s *Push) beat(at time.Time) {
	s.metrics.RecordLiveness(s.name, true)
	if s.tracker == nil {
		return
	}
	if s.tracker.Beat(at) {
		s.logger.Info("sensor back online")
	}
}
