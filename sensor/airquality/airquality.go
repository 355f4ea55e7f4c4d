// Package airquality reads combined CO2, particulate and ammonia probes
// over Modbus, usually TCP.
package airquality

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jack2012aa/farm-iot/config"
	"github.com/jack2012aa/farm-iot/errors"
	"github.com/jack2012aa/farm-iot/frame"
	"github.com/jack2012aa/farm-iot/manage"
	"github.com/jack2012aa/farm-iot/sensor"
)

// Kind is the sensor type name in configuration files.
const Kind = "air_quality"

// Input register layout of the probe (function code 4).
const (
	regCO2  = 2
	regPM25 = 4
	regNH3  = 10
)

// Batch defaults: one reading per minute.
const (
	defaultLength  = 1
	defaultWaiting = time.Minute
)

// Settings is the driver block of an air quality sensor.
type Settings struct {
	// SlaveID addresses the probe.
	SlaveID byte `json:"slave_id"`
}

// Validate checks the settings.
func (s *Settings) Validate() error {
	if s.SlaveID == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"Settings", "Validate", "slave_id")
	}
	return nil
}

// RegisterReader is the slice of gateway/modbus.Conn the driver uses.
type RegisterReader interface {
	ReadInput(ctx context.Context, slave byte, address, quantity uint16) ([]uint16, error)
}

// Driver reads the three gas registers one probe exposes.
type Driver struct {
	reader RegisterReader
	slave  byte
}

// New creates a driver for the probe at the given slave address.
func New(reader RegisterReader, slave byte) *Driver {
	return &Driver{reader: reader, slave: slave}
}

// Columns implements sensor.PullDriver.
func (d *Driver) Columns() []string { return []string{"co2", "pm2_5", "nh3"} }

// Sample reads the three registers. A register failing alone becomes a
// missing value next to the error; a dead link aborts the sample.
func (d *Driver) Sample(ctx context.Context) ([]float64, error) {
	values := missingSample()
	var firstErr error
	for i, reg := range [...]uint16{regCO2, regPM25, regNH3} {
		regs, err := d.reader.ReadInput(ctx, d.slave, reg, 1)
		if err != nil {
			if stderrors.Is(err, errors.ErrGatewayConnection) {
				return nil, err
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		values[i] = float64(regs[0])
	}
	return values, firstErr
}

func missingSample() []float64 {
	return []float64{frame.Missing(), frame.Missing(), frame.Missing()}
}

// Register binds the air quality driver to a sensor registry.
func Register(sensors *sensor.Registry) error {
	return sensors.Register(Kind, build)
}

func build(_ context.Context, cfg config.SensorConfig, deps sensor.Deps) (manage.Worker, error) {
	if deps.Modbus == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"airquality", "build", "modbus manager")
	}

	var settings Settings
	if err := config.SafeUnmarshal(cfg.Settings, &settings); err != nil {
		return nil, errors.Wrap(err, "airquality", "build",
			fmt.Sprintf("settings of sensor %q", cfg.Name))
	}

	conn, err := deps.Modbus.Get(cfg.Gateway)
	if err != nil {
		return nil, err
	}

	opts := deps.Options(cfg)
	if opts.Length < 1 {
		opts.Length = defaultLength
	}
	if opts.Waiting <= 0 {
		opts.Waiting = defaultWaiting
	}
	return sensor.NewPull(opts, New(conn, settings.SlaveID))
}
