package airquality

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jack2012aa/farm-iot/config"
	"github.com/jack2012aa/farm-iot/errors"
	"github.com/jack2012aa/farm-iot/frame"
	"github.com/jack2012aa/farm-iot/sensor"
)

// fakeReader serves one raw value per input register.
type fakeReader struct {
	regs map[uint16]uint16
	errs map[uint16]error

	slave byte
	reads []uint16
}

func (r *fakeReader) ReadInput(_ context.Context, slave byte, address, _ uint16) ([]uint16, error) {
	r.slave = slave
	r.reads = append(r.reads, address)
	if err := r.errs[address]; err != nil {
		return nil, err
	}
	return []uint16{r.regs[address]}, nil
}

func sampleReadErr() error {
	return errors.WrapTransient(
		fmt.Errorf("%w: exception response", errors.ErrSampleRead),
		"Conn", "ReadInput", "fc 4")
}

func TestDriver_Sample(t *testing.T) {
	reader := &fakeReader{regs: map[uint16]uint16{regCO2: 800, regPM25: 35, regNH3: 12}}
	d := New(reader, 7)

	values, err := d.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{800, 35, 12}, values)

	assert.Equal(t, byte(7), reader.slave)
	assert.Equal(t, []uint16{regCO2, regPM25, regNH3}, reader.reads)
	assert.Equal(t, []string{"co2", "pm2_5", "nh3"}, d.Columns())
}

func TestDriver_PartialFailure(t *testing.T) {
	reader := &fakeReader{
		regs: map[uint16]uint16{regCO2: 800, regNH3: 12},
		errs: map[uint16]error{regPM25: sampleReadErr()},
	}
	d := New(reader, 7)

	values, err := d.Sample(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSampleRead)

	require.Len(t, values, 3, "the healthy registers still deliver")
	assert.Equal(t, 800.0, values[0])
	assert.True(t, frame.IsMissing(values[1]))
	assert.Equal(t, 12.0, values[2])
}

func TestDriver_GatewayFailureAbortsSample(t *testing.T) {
	reader := &fakeReader{
		regs: map[uint16]uint16{regPM25: 35, regNH3: 12},
		errs: map[uint16]error{regCO2: errors.WrapTransient(
			fmt.Errorf("%w: connection reset", errors.ErrGatewayConnection),
			"Conn", "ReadInput", "fc 4")},
	}
	d := New(reader, 7)

	values, err := d.Sample(context.Background())
	assert.Nil(t, values)
	assert.ErrorIs(t, err, errors.ErrGatewayConnection)
	assert.Equal(t, []uint16{regCO2}, reader.reads, "a dead link stops the remaining reads")
}

func TestSettings_Validate(t *testing.T) {
	var s Settings
	assert.ErrorIs(t, s.Validate(), errors.ErrMissingConfig)

	s.SlaveID = 2
	assert.NoError(t, s.Validate())
}

func TestRegister(t *testing.T) {
	sensors := sensor.NewRegistry()
	require.NoError(t, Register(sensors))
	assert.Equal(t, []string{Kind}, sensors.Kinds())

	cfg := config.SensorConfig{
		Name:     "air-1",
		Type:     Kind,
		Gateway:  "air0",
		Settings: json.RawMessage(`{"slave_id": 2}`),
	}
	_, err := sensors.Create(context.Background(), cfg, sensor.Deps{})
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}
