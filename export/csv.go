package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jack2012aa/farm-iot/config"
	"github.com/jack2012aa/farm-iot/errors"
	"github.com/jack2012aa/farm-iot/frame"
)

// CSVSettings configures the weekly CSV sink.
type CSVSettings struct {
	Directory string `json:"directory"`
	FileName  string `json:"file_name"`
}

// Validate checks the settings.
func (s *CSVSettings) Validate() error {
	if s.Directory == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"CSVSettings", "Validate", "directory is required")
	}
	if s.FileName == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"CSVSettings", "Validate", "file_name is required")
	}
	return nil
}

// WeeklyCSV appends frame rows to week-stamped CSV files named
// {year}_{week}_{file_name}.csv. The target rotates with the ISO week of
// the frame's completion time; a header row is written whenever a new file
// is created.
type WeeklyCSV struct {
	dir      string
	name     string
	dirReady bool
}

// NewWeeklyCSV creates the sink from decoded settings.
func NewWeeklyCSV(directory, fileName string) *WeeklyCSV {
	return &WeeklyCSV{dir: directory, name: fileName}
}

func newWeeklyCSVExporter(settings json.RawMessage, _ Deps) (Exporter, error) {
	var cfg CSVSettings
	if err := config.SafeUnmarshal(settings, &cfg); err != nil {
		return nil, errors.Wrap(err, "WeeklyCSV", "newWeeklyCSVExporter", "settings")
	}
	return NewWeeklyCSV(cfg.Directory, cfg.FileName), nil
}

// ID implements Exporter.
func (w *WeeklyCSV) ID() string { return KindWeeklyCSV + "/" + w.name }

// Export appends one row per sample to the current week's file.
func (w *WeeklyCSV) Export(_ context.Context, f *frame.Frame) error {
	if !w.dirReady {
		if err := os.MkdirAll(w.dir, 0o755); err != nil {
			return errors.Wrap(err, "WeeklyCSV", "Export", "create directory")
		}
		w.dirReady = true
	}

	path := w.pathFor(f.At())
	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "WeeklyCSV", "Export", "open file")
	}
	defer func() { _ = file.Close() }()

	cw := csv.NewWriter(file)
	names := f.Names()

	if writeHeader {
		header := append([]string{"time"}, names...)
		if err := cw.Write(header); err != nil {
			return errors.Wrap(err, "WeeklyCSV", "Export", "write header")
		}
	}

	times := f.Times()
	columns := make([][]float64, len(names))
	for i, name := range names {
		columns[i], _ = f.Column(name)
	}

	record := make([]string, len(names)+1)
	for row := 0; row < f.Rows(); row++ {
		record[0] = times[row].Format(time.RFC3339Nano)
		for i := range columns {
			record[i+1] = formatCell(columns[i][row])
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrap(err, "WeeklyCSV", "Export", "write row")
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(err, "WeeklyCSV", "Export", "flush")
	}
	return nil
}

// pathFor returns the week-stamped file path for a frame time.
func (w *WeeklyCSV) pathFor(at time.Time) string {
	year, week := at.ISOWeek()
	return filepath.Join(w.dir, fmt.Sprintf("%d_%d_%s.csv", year, week, w.name))
}

// formatCell renders one value; missing samples become empty cells.
func formatCell(v float64) string {
	if frame.IsMissing(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
