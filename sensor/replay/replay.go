// Package replay feeds recorded CSV rows through the sensor loop, standing
// in for hardware during development and engine tests.
package replay

import (
	"context"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/jack2012aa/farm-iot/config"
	"github.com/jack2012aa/farm-iot/errors"
	"github.com/jack2012aa/farm-iot/frame"
	"github.com/jack2012aa/farm-iot/manage"
	"github.com/jack2012aa/farm-iot/sensor"
)

// Kind is the sensor type name in configuration files.
const Kind = "csv_replay"

// defaultLength is the batch size when the configuration leaves it unset.
const defaultLength = 60

// Settings is the driver block of a replay sensor.
type Settings struct {
	// Path of the recording.
	Path string `json:"path"`
	// StartFrom skips rows before replay begins.
	StartFrom int `json:"start_from,omitempty"`
	// Columns selects header columns to replay. Empty selects every
	// column except ones that look like timestamps.
	Columns []string `json:"columns,omitempty"`
}

// Validate checks the settings.
func (s *Settings) Validate() error {
	if s.Path == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"Settings", "Validate", "path")
	}
	if s.StartFrom < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"Settings", "Validate", "start_from must not be negative")
	}
	return nil
}

// Driver replays one CSV recording row by row. Unparsable cells become
// missing values; the recording's end surfaces as io.EOF.
type Driver struct {
	file    *os.File
	reader  *csv.Reader
	columns []string
	indexes []int
	close   sync.Once
}

// Open reads the recording's header and skips to the starting row.
func Open(path string, startFrom int, columns []string) (*Driver, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "replay", "Open", "open recording")
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		f.Close()
		return nil, errors.WrapInvalid(err, "replay", "Open", "read header")
	}
	names, indexes, err := selectColumns(header, columns)
	if err != nil {
		f.Close()
		return nil, err
	}

	for i := 0; i < startFrom; i++ {
		if _, err := r.Read(); err != nil {
			if stderrors.Is(err, io.EOF) {
				break
			}
			f.Close()
			return nil, errors.WrapInvalid(err, "replay", "Open", "skip rows")
		}
	}

	return &Driver{file: f, reader: r, columns: names, indexes: indexes}, nil
}

// Columns implements sensor.PullDriver.
func (d *Driver) Columns() []string {
	return append([]string(nil), d.columns...)
}

// Sample implements sensor.PullDriver. io.EOF ends the replay.
func (d *Driver) Sample(ctx context.Context) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	record, err := d.reader.Read()
	if err != nil {
		if stderrors.Is(err, io.EOF) {
			d.Close()
			return nil, io.EOF
		}
		return nil, errors.WrapInvalid(err, "replay", "Sample", "read row")
	}

	values := make([]float64, len(d.indexes))
	for i, idx := range d.indexes {
		values[i] = frame.Missing()
		if idx >= len(record) {
			continue
		}
		if v, perr := strconv.ParseFloat(strings.TrimSpace(record[idx]), 64); perr == nil {
			values[i] = v
		}
	}
	return values, nil
}

// Close releases the recording. Safe to call more than once.
func (d *Driver) Close() error {
	var err error
	d.close.Do(func() { err = d.file.Close() })
	return err
}

// timestampish reports headers that carry row times, not values.
func timestampish(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "datetime", "timestamp", "time", "date":
		return true
	}
	return false
}

func selectColumns(header, want []string) ([]string, []int, error) {
	if len(want) == 0 {
		var names []string
		var indexes []int
		for i, h := range header {
			if timestampish(h) {
				continue
			}
			names = append(names, strings.TrimSpace(h))
			indexes = append(indexes, i)
		}
		if len(names) == 0 {
			return nil, nil, errors.WrapInvalid(errors.ErrInvalidData,
				"replay", "selectColumns", "recording has no replayable columns")
		}
		return names, indexes, nil
	}

	position := make(map[string]int, len(header))
	for i, h := range header {
		position[strings.TrimSpace(h)] = i
	}
	names := make([]string, 0, len(want))
	indexes := make([]int, 0, len(want))
	for _, w := range want {
		i, ok := position[w]
		if !ok {
			return nil, nil, errors.WrapInvalid(errors.ErrInvalidConfig,
				"replay", "selectColumns", fmt.Sprintf("column %q not in recording", w))
		}
		names = append(names, w)
		indexes = append(indexes, i)
	}
	return names, indexes, nil
}

// Register binds the replay driver to a sensor registry.
func Register(sensors *sensor.Registry) error {
	return sensors.Register(Kind, build)
}

func build(_ context.Context, cfg config.SensorConfig, deps sensor.Deps) (manage.Worker, error) {
	var settings Settings
	if err := config.SafeUnmarshal(cfg.Settings, &settings); err != nil {
		return nil, errors.Wrap(err, "replay", "build",
			fmt.Sprintf("settings of sensor %q", cfg.Name))
	}

	driver, err := Open(settings.Path, settings.StartFrom, settings.Columns)
	if err != nil {
		return nil, err
	}

	opts := deps.Options(cfg)
	if opts.Length < 1 {
		opts.Length = defaultLength
	}
	return sensor.NewPull(opts, driver)
}
