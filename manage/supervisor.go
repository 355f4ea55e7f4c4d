package manage

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jack2012aa/farm-iot/errors"
	"github.com/jack2012aa/farm-iot/health"
	"github.com/jack2012aa/farm-iot/metric"
	"github.com/jack2012aa/farm-iot/pkg/retry"
)

// alarmDispatchTimeout bounds one Notify call so a slow mail server
// cannot stall the reporting path.
const alarmDispatchTimeout = 30 * time.Second

// Deps carries the supervisor's collaborators. Logger defaults to
// slog.Default(), Monitor to a private monitor, and a zero Restart to
// the retry.Restart() schedule. A nil Dispatcher drops alarms with an
// error log.
type Deps struct {
	Logger     *slog.Logger
	Metrics    *metric.Metrics
	Monitor    *health.Monitor
	Dispatcher Dispatcher
	Restart    retry.Config
}

// Supervisor runs registered workers, restarts the ones that die with
// recoverable errors and escalates fatal conditions as alarms. Workers
// are registered before Run; the restart loops never let one worker's
// failure touch another.
type Supervisor struct {
	logger     *slog.Logger
	metrics    *metric.Metrics
	monitor    *health.Monitor
	dispatcher Dispatcher
	restart    retry.Config

	mu          sync.Mutex
	workers     []Worker
	ids         map[string]struct{}
	responsible map[string][]string
	started     bool
}

// NewSupervisor builds a supervisor from its dependencies.
func NewSupervisor(deps Deps) *Supervisor {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	monitor := deps.Monitor
	if monitor == nil {
		monitor = health.NewMonitor()
	}
	restart := deps.Restart
	if restart == (retry.Config{}) {
		restart = retry.Restart()
	}
	return &Supervisor{
		logger:      logger.With("component", "supervisor"),
		metrics:     deps.Metrics,
		monitor:     monitor,
		dispatcher:  deps.Dispatcher,
		restart:     restart,
		ids:         make(map[string]struct{}),
		responsible: make(map[string][]string),
	}
}

// Supervise registers a worker and the parties notified when an alarm
// fires for it. Worker IDs must be unique; registration after Run is
// rejected.
func (s *Supervisor) Supervise(w Worker, responsible ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted,
			"Supervisor", "Supervise", "register "+w.ID())
	}
	if _, ok := s.ids[w.ID()]; ok {
		return errors.WrapInvalid(
			fmt.Errorf("%w: worker %q", errors.ErrDuplicate, w.ID()),
			"Supervisor", "Supervise", "register worker")
	}

	s.ids[w.ID()] = struct{}{}
	s.workers = append(s.workers, w)
	if len(responsible) > 0 {
		s.responsible[w.ID()] = append([]string(nil), responsible...)
	}
	return nil
}

// Workers returns the registered worker IDs, sorted.
func (s *Supervisor) Workers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Report handles a failure from inside a running worker loop. Transient
// failures are logged and counted, fatal ones additionally raise an
// alarm, invalid ones are logged as suppressed since a retry cannot fix
// them. Report never blocks the caller beyond alarm dispatch.
func (s *Supervisor) Report(workerID string, err error) {
	if err == nil {
		return
	}

	class := errors.Classify(err)
	s.metrics.RecordReport(workerID, class.String())

	switch class {
	case errors.ErrorFatal:
		s.logger.Error("worker failure escalated", "worker", workerID, "error", err)
		s.dispatchAlarm(context.Background(), workerID, reasonFor(err))
	case errors.ErrorInvalid:
		s.logger.Error("worker failure suppressed", "worker", workerID, "error", err)
	default:
		s.logger.Warn("worker failure", "worker", workerID, "error", err)
	}
}

// RaiseAlarm escalates a condition detected outside a worker loop, such
// as the watchdog declaring a heartbeat lost.
func (s *Supervisor) RaiseAlarm(ctx context.Context, sensorID string, reason Reason) {
	if reason == ReasonHeartbeatLost {
		s.metrics.RecordHeartbeatLost(sensorID)
		s.metrics.RecordLiveness(sensorID, false)
		s.monitor.UpdateUnhealthy(sensorID, "heartbeat lost")
	}
	s.dispatchAlarm(ctx, sensorID, reason)
}

// dispatchAlarm builds the event, hands it to the dispatcher and records
// the outcome. The event is not retained afterwards.
func (s *Supervisor) dispatchAlarm(ctx context.Context, sensorID string, reason Reason) {
	event := NewAlarmEvent(sensorID, reason, s.responsibleFor(sensorID))
	s.logger.Error("alarm raised",
		"sensor", sensorID, "reason", reason.String(), "responsible", event.Responsible)

	status := "ok"
	if s.dispatcher == nil {
		status = "dropped"
		s.logger.Error("no alarm dispatcher configured, alarm dropped", "sensor", sensorID)
	} else {
		dctx, cancel := context.WithTimeout(ctx, alarmDispatchTimeout)
		defer cancel()
		if err := s.dispatcher.Notify(dctx, event); err != nil {
			status = "error"
			s.logger.Error("alarm dispatch failed",
				"sensor", sensorID, "reason", reason.String(), "error", err)
		}
	}
	s.metrics.RecordAlarm(sensorID, reason.String(), status)
}

func (s *Supervisor) responsibleFor(sensorID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.responsible[sensorID]
}

// Run executes every registered worker until ctx is cancelled. It
// returns only on cancellation; individual worker failures are absorbed
// by the per-worker restart loops.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Supervisor", "Run", "start")
	}
	s.started = true
	workers := make([]Worker, len(s.workers))
	copy(workers, s.workers)
	s.mu.Unlock()

	s.logger.Info("supervisor starting", "workers", len(workers))

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		w := w
		g.Go(func() error {
			return s.supervise(gctx, w)
		})
	}

	err := g.Wait()
	s.logger.Info("supervisor stopped")
	if err != nil && !stderrors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// supervise owns one worker's lifecycle: run it, classify the exit, and
// either stop or sleep out the backoff and run it again. The backoff
// resets once a run outlives the maximum delay, so a device that flaps
// every few hours starts each outage from a short wait. Reaching the
// schedule's last attempt escalates the outage to an alarm.
func (s *Supervisor) supervise(ctx context.Context, w Worker) error {
	steadyRun := s.restart.MaxDelay
	if steadyRun <= 0 {
		steadyRun = time.Minute
	}

	attempt := 0
	for {
		s.monitor.UpdateHealthy(w.ID(), "running")
		startedAt := time.Now()
		err := w.Run(ctx)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			// The worker finished its work, e.g. a replay source that
			// drained its file.
			s.logger.Info("worker finished", "worker", w.ID())
			s.monitor.UpdateHealthy(w.ID(), "finished")
			return nil
		}

		class := errors.Classify(err)
		s.metrics.RecordReport(w.ID(), class.String())

		switch class {
		case errors.ErrorInvalid:
			s.logger.Error("worker stopped, restarting cannot help",
				"worker", w.ID(), "error", err)
			s.monitor.UpdateUnhealthy(w.ID(), err.Error())
			return nil
		case errors.ErrorFatal:
			s.logger.Error("worker failure escalated", "worker", w.ID(), "error", err)
			s.dispatchAlarm(ctx, w.ID(), reasonFor(err))
			// Escalated workers still restart: the sensor should resume
			// on its own once the device comes back.
		}

		if time.Since(startedAt) > steadyRun {
			attempt = 0
		}
		attempt++
		if attempt == s.restart.MaxAttempts {
			// A transient failure that survives the whole backoff schedule
			// is a dropout, not a blip. One alarm per outage; the restarts
			// keep going underneath it.
			s.logger.Error("worker failing persistently",
				"worker", w.ID(), "attempts", attempt, "error", err)
			s.dispatchAlarm(ctx, w.ID(), reasonFor(err))
		}
		delay := retry.Backoff(s.restart, attempt)
		s.logger.Warn("worker restarting",
			"worker", w.ID(), "attempt", attempt, "delay", delay, "error", err)
		s.monitor.UpdateDegraded(w.ID(), err.Error())
		s.metrics.RecordWorkerRestart(w.ID())
		if err := retry.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// reasonFor maps an escalated error onto the alarm reason reported to
// the responsible parties.
func reasonFor(err error) Reason {
	switch {
	case stderrors.Is(err, errors.ErrHeartbeatLost):
		return ReasonHeartbeatLost
	case stderrors.Is(err, errors.ErrGatewayConnection):
		return ReasonGatewayTimeout
	default:
		return ReasonReadError
	}
}
