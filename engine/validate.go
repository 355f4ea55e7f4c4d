package engine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jack2012aa/farm-iot/config"
	"github.com/jack2012aa/farm-iot/export"
	"github.com/jack2012aa/farm-iot/sensor/airquality"
	"github.com/jack2012aa/farm-iot/sensor/feedergate"
	"github.com/jack2012aa/farm-iot/sensor/feedscale"
)

// Issue is one problem found while checking a configuration against the
// registered kinds.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// CheckResult collects the issues of one configuration check.
type CheckResult struct {
	Issues []Issue `json:"issues,omitempty"`
}

// OK reports whether the check found no issues.
func (r *CheckResult) OK() bool { return len(r.Issues) == 0 }

// String renders the issues on one line for error messages.
func (r *CheckResult) String() string {
	if r.OK() {
		return "ok"
	}
	parts := make([]string, len(r.Issues))
	for i, issue := range r.Issues {
		parts[i] = issue.Path + ": " + issue.Message
	}
	return strings.Join(parts, "; ")
}

func (r *CheckResult) add(path, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
}

// Check resolves every kind reference in the configuration against the
// registries and dry-builds the filters and exporters, so typos surface
// before anything runs. Driver settings are not covered here: validating
// those needs live gateways, which the worker build provides.
func (e *Engine) Check() *CheckResult {
	result := &CheckResult{}
	kinds := e.sensors.Kinds()
	for i := range e.cfg.Sensors {
		e.checkSensor(result, fmt.Sprintf("sensors[%d]", i), kinds, &e.cfg.Sensors[i])
	}
	return result
}

func (e *Engine) checkSensor(result *CheckResult, path string, kinds []string, scfg *config.SensorConfig) {
	if !slices.Contains(kinds, scfg.Type) {
		result.add(path, "unknown sensor type %q", scfg.Type)
	}
	switch scfg.Type {
	case feedergate.Kind:
		if e.mqtt == nil {
			result.add(path, "sensor type %q needs an mqtt section", scfg.Type)
		}
	case feedscale.Kind, airquality.Kind:
		if scfg.Gateway == "" {
			result.add(path, "sensor type %q needs a gateway reference", scfg.Type)
		}
	}

	e.checkExporters(result, path, scfg.Exporters)
	for i := range scfg.Pipelines {
		for j := range scfg.Pipelines[i].Filters {
			fcfg := &scfg.Pipelines[i].Filters[j]
			fpath := fmt.Sprintf("%s.pipelines[%d].filters[%d]", path, i, j)
			if _, err := e.filters.Create(fcfg.Type, fcfg.Settings); err != nil {
				result.add(fpath, "%v", err)
			}
			e.checkExporters(result, fpath, fcfg.Exporters)
		}
	}
}

// checkExporters dry-builds each exporter; the builtin factories defer all
// filesystem work to the first export, so this has no side effects.
func (e *Engine) checkExporters(result *CheckResult, path string, cfgs []config.ExporterConfig) {
	deps := export.Deps{Logger: e.logger, Metrics: e.metrics}
	for i := range cfgs {
		if _, err := e.exporters.Create(cfgs[i].Type, cfgs[i].Settings, deps); err != nil {
			result.add(fmt.Sprintf("%s.exporters[%d]", path, i), "%v", err)
		}
	}
}
