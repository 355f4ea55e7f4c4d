// Package feedscale reads feed trough scales over Modbus and derives feed
// consumption from consecutive batch averages.
package feedscale

import (
	"context"
	"fmt"
	"time"

	"github.com/jack2012aa/farm-iot/config"
	"github.com/jack2012aa/farm-iot/errors"
	"github.com/jack2012aa/farm-iot/manage"
	"github.com/jack2012aa/farm-iot/pipeline"
	"github.com/jack2012aa/farm-iot/sensor"
)

// Kind is the sensor type name in configuration files.
const Kind = "feed_scale"

const (
	// weightRegister is the holding register carrying the scale value.
	weightRegister = 0
	// wrapThreshold marks where the scale's signed weight wraps: raw
	// values above it encode negative weights near zero.
	wrapThreshold = 45000
)

// Batch defaults matching the deployed scales: a four second burst of
// samples roughly every twenty seconds.
const (
	defaultLength   = 40
	defaultDuration = 100 * time.Millisecond
	defaultWaiting  = 19 * time.Second
)

// Settings is the driver block of a feed scale sensor.
type Settings struct {
	// SlaveID addresses the scale on the shared bus.
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
	ReadHolding(ctx context.Context, slave byte, address, quantity uint16) ([]uint16, error)
}

// Driver reads one scale on a shared Modbus link.
type Driver struct {
	reader RegisterReader
	slave  byte
}

// New creates a driver for the scale at the given slave address.
func New(reader RegisterReader, slave byte) *Driver {
	return &Driver{reader: reader, slave: slave}
}

// Columns implements sensor.PullDriver.
func (d *Driver) Columns() []string { return []string{"weight"} }

// Sample reads one weight in kilograms.
func (d *Driver) Sample(ctx context.Context) ([]float64, error) {
	regs, err := d.reader.ReadHolding(ctx, d.slave, weightRegister, 1)
	if err != nil {
		return nil, err
	}
	return []float64{Weight(regs[0])}, nil
}

// Weight converts one raw register to kilograms. Raw values above the wrap
// threshold are negative weights in two's complement.
func Weight(raw uint16) float64 {
	if raw > wrapThreshold {
		return (float64(raw) - 65536) / 100
	}
	return float64(raw) / 100
}

// Register binds the feed scale driver to a sensor registry and, when a
// filter registry is given, the consumption filter reading gate refill
// flags from gates.
func Register(sensors *sensor.Registry, filters *pipeline.Registry, gates RefillSource) error {
	if err := sensors.Register(Kind, build); err != nil {
		return err
	}
	if filters != nil {
		if err := filters.Register(KindConsumption, consumptionFactory(gates)); err != nil {
			return err
		}
	}
	return nil
}

func build(_ context.Context, cfg config.SensorConfig, deps sensor.Deps) (manage.Worker, error) {
	if deps.Modbus == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"feedscale", "build", "modbus manager")
	}

	var settings Settings
	if err := config.SafeUnmarshal(cfg.Settings, &settings); err != nil {
		return nil, errors.Wrap(err, "feedscale", "build",
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
	if opts.Duration <= 0 {
		opts.Duration = defaultDuration
	}
	if opts.Waiting <= 0 {
		opts.Waiting = defaultWaiting
	}
	return sensor.NewPull(opts, New(conn, settings.SlaveID))
}
