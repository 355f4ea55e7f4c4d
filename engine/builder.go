package engine

import (
	"context"
	"fmt"

	"github.com/jack2012aa/farm-iot/config"
	"github.com/jack2012aa/farm-iot/errors"
	"github.com/jack2012aa/farm-iot/export"
	"github.com/jack2012aa/farm-iot/pipeline"
	"github.com/jack2012aa/farm-iot/sensor"
)

// buildWorkers turns every sensor block into a supervised worker. The
// context covers build-time work such as broker subscriptions.
func (e *Engine) buildWorkers(ctx context.Context) error {
	for i := range e.cfg.Sensors {
		scfg := e.cfg.Sensors[i]

		pub, err := e.buildPublisher(scfg)
		if err != nil {
			return err
		}

		w, err := e.sensors.Create(ctx, scfg, sensor.Deps{
			Logger:    e.logger,
			Metrics:   e.metrics,
			Reporter:  e.supervisor,
			Publisher: pub,
			Modbus:    e.modbus,
			MQTT:      e.mqtt,
			Watchdog:  e.watchdog,
		})
		if err != nil {
			return errors.Wrap(err, "Engine", "buildWorkers",
				fmt.Sprintf("sensor %q", scfg.Name))
		}

		if err := e.supervisor.Supervise(w, scfg.Belonging...); err != nil {
			return errors.Wrap(err, "Engine", "buildWorkers",
				fmt.Sprintf("register sensor %q", scfg.Name))
		}
		e.logger.Info("sensor built",
			"sensor", scfg.Name, "type", scfg.Type,
			"pipelines", len(scfg.Pipelines), "exporters", len(scfg.Exporters))
	}
	return nil
}

// buildPublisher assembles one sensor's fan-out: its direct exporters plus
// one pipeline per pipeline block, each subscribed as a sink.
func (e *Engine) buildPublisher(scfg config.SensorConfig) (*export.Publisher, error) {
	pub := export.NewPublisher(scfg.Name, e.logger, e.metrics)
	pub.SetReporter(e.supervisor)

	sinks, err := e.buildExporters(scfg.Name, scfg.Exporters)
	if err != nil {
		return nil, err
	}
	pub.Attach(sinks...)

	for i, pcfg := range scfg.Pipelines {
		p, err := e.buildPipeline(fmt.Sprintf("%s/pipeline%d", scfg.Name, i), pcfg)
		if err != nil {
			return nil, err
		}
		pub.Attach(p)
	}
	return pub, nil
}

// buildPipeline assembles one filter chain. Filters with exporters get a
// stage publisher of their own; the others process without subscribers.
func (e *Engine) buildPipeline(id string, pcfg config.PipelineConfig) (*pipeline.Pipeline, error) {
	p := pipeline.New(id, e.logger, e.metrics)
	for i, fcfg := range pcfg.Filters {
		filter, err := e.filters.Create(fcfg.Type, fcfg.Settings)
		if err != nil {
			return nil, errors.Wrap(err, "Engine", "buildPipeline",
				fmt.Sprintf("filter[%d] of %s", i, id))
		}

		var stagePub *export.Publisher
		if len(fcfg.Exporters) > 0 {
			owner := id + "/" + filter.ID()
			sinks, err := e.buildExporters(owner, fcfg.Exporters)
			if err != nil {
				return nil, err
			}
			stagePub = export.NewPublisher(owner, e.logger, e.metrics)
			stagePub.SetReporter(e.supervisor)
			stagePub.Attach(sinks...)
		}
		p.Append(filter, stagePub)
	}
	return p, nil
}

// buildExporters resolves one exporter list against the registry.
func (e *Engine) buildExporters(owner string, cfgs []config.ExporterConfig) ([]export.Exporter, error) {
	deps := export.Deps{Logger: e.logger, Metrics: e.metrics}
	sinks := make([]export.Exporter, 0, len(cfgs))
	for i, ecfg := range cfgs {
		sink, err := e.exporters.Create(ecfg.Type, ecfg.Settings, deps)
		if err != nil {
			return nil, errors.Wrap(err, "Engine", "buildExporters",
				fmt.Sprintf("exporter[%d] of %s", i, owner))
		}
		sinks = append(sinks, sink)
	}
	return sinks, nil
}
