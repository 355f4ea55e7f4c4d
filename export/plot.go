package export

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/jack2012aa/farm-iot/config"
	"github.com/jack2012aa/farm-iot/errors"
	"github.com/jack2012aa/farm-iot/frame"
)

// defaultMaxPoints bounds the per-column history of a scatter plot; a day
// of 30-second batches fits.
const defaultMaxPoints = 2880

// PlotSettings configures the scatter plot sink.
type PlotSettings struct {
	Directory string `json:"directory"`
	FileName  string `json:"file_name,omitempty"`  // defaults to the frame source
	MaxPoints int    `json:"max_points,omitempty"` // per column
}

// Validate checks the settings.
func (s *PlotSettings) Validate() error {
	if s.Directory == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"PlotSettings", "Validate", "directory is required")
	}
	if s.MaxPoints < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"PlotSettings", "Validate", "max_points cannot be negative")
	}
	return nil
}

// ScatterPlot renders accumulated readings to a PNG: one point per sample,
// one series per column, sample time on the X axis. Every export re-renders
// the file in place; history is bounded per column, oldest points dropped.
type ScatterPlot struct {
	dir       string
	name      string
	maxPoints int
	order     []string
	series    map[string]plotter.XYs
	dirReady  bool
}

// NewScatterPlot creates the sink. An empty fileName derives the file from
// the frame source.
func NewScatterPlot(directory, fileName string, maxPoints int) *ScatterPlot {
	if maxPoints <= 0 {
		maxPoints = defaultMaxPoints
	}
	return &ScatterPlot{
		dir:       directory,
		name:      fileName,
		maxPoints: maxPoints,
		series:    make(map[string]plotter.XYs),
	}
}

func newScatterPlotExporter(settings json.RawMessage, _ Deps) (Exporter, error) {
	var cfg PlotSettings
	if err := config.SafeUnmarshal(settings, &cfg); err != nil {
		return nil, errors.Wrap(err, "ScatterPlot", "newScatterPlotExporter", "settings")
	}
	return NewScatterPlot(cfg.Directory, cfg.FileName, cfg.MaxPoints), nil
}

// ID implements Exporter.
func (s *ScatterPlot) ID() string {
	if s.name == "" {
		return KindScatterPlot
	}
	return KindScatterPlot + "/" + s.name
}

// Export accumulates the frame's samples and re-renders the PNG.
func (s *ScatterPlot) Export(_ context.Context, f *frame.Frame) error {
	if !s.dirReady {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return errors.Wrap(err, "ScatterPlot", "Export", "create directory")
		}
		s.dirReady = true
	}

	s.accumulate(f)

	p := plot.New()
	p.Title.Text = f.Source()
	p.X.Label.Text = "time"
	p.X.Tick.Marker = plot.TimeTicks{Format: "01-02 15:04"}

	args := make([]any, 0, 2*len(s.order))
	for _, name := range s.order {
		args = append(args, name, s.series[name])
	}
	if err := plotutil.AddScatters(p, args...); err != nil {
		return errors.Wrap(err, "ScatterPlot", "Export", "build series")
	}

	path := filepath.Join(s.dir, s.fileFor(f)+".png")
	if err := p.Save(10*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrap(err, "ScatterPlot", "Export", "save png")
	}
	return nil
}

// accumulate appends the frame's non-missing samples, trimming each column
// series to the configured bound.
func (s *ScatterPlot) accumulate(f *frame.Frame) {
	times := f.Times()
	for _, name := range f.Names() {
		values, _ := f.Column(name)
		pts, known := s.series[name]
		if !known {
			s.order = append(s.order, name)
		}
		for row, v := range values {
			if frame.IsMissing(v) {
				continue
			}
			pts = append(pts, plotter.XY{
				X: float64(times[row].Unix()),
				Y: v,
			})
		}
		if excess := len(pts) - s.maxPoints; excess > 0 {
			pts = append(plotter.XYs(nil), pts[excess:]...)
		}
		s.series[name] = pts
	}
}

// fileFor picks the output file stem.
func (s *ScatterPlot) fileFor(f *frame.Frame) string {
	if s.name != "" {
		return s.name
	}
	return strings.ReplaceAll(f.Source(), string(os.PathSeparator), "-")
}

// Points returns the accumulated point count for a column.
func (s *ScatterPlot) Points(column string) int {
	return len(s.series[column])
}
