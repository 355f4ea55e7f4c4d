package feedscale

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jack2012aa/farm-iot/config"
	"github.com/jack2012aa/farm-iot/errors"
	"github.com/jack2012aa/farm-iot/pipeline"
	"github.com/jack2012aa/farm-iot/sensor"
)

// fakeReader serves scripted register values and records the request.
type fakeReader struct {
	raw uint16
	err error

	slave    byte
	address  uint16
	quantity uint16
}

func (r *fakeReader) ReadHolding(_ context.Context, slave byte, address, quantity uint16) ([]uint16, error) {
	r.slave, r.address, r.quantity = slave, address, quantity
	if r.err != nil {
		return nil, r.err
	}
	return []uint16{r.raw}, nil
}

func TestWeight(t *testing.T) {
	tests := []struct {
		raw  uint16
		want float64
	}{
		{0, 0},
		{12345, 123.45},
		{45000, 450},
		{45001, -205.35},
		{65535, -0.01},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("raw=%d", tt.raw), func(t *testing.T) {
			assert.InDelta(t, tt.want, Weight(tt.raw), 1e-9)
		})
	}
}

func TestDriver_Sample(t *testing.T) {
	reader := &fakeReader{raw: 12345}
	d := New(reader, 3)

	values, err := d.Sample(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 123.45, values[0], 1e-9)

	assert.Equal(t, byte(3), reader.slave)
	assert.Equal(t, uint16(weightRegister), reader.address)
	assert.Equal(t, uint16(1), reader.quantity)
	assert.Equal(t, []string{"weight"}, d.Columns())
}

func TestDriver_SampleError(t *testing.T) {
	reader := &fakeReader{err: errors.WrapTransient(
		fmt.Errorf("%w: exception response", errors.ErrSampleRead),
		"Conn", "ReadHolding", "fc 3")}
	d := New(reader, 3)

	values, err := d.Sample(context.Background())
	assert.Nil(t, values)
	assert.ErrorIs(t, err, errors.ErrSampleRead)
}

func TestSettings_Validate(t *testing.T) {
	var s Settings
	require.Error(t, s.Validate())
	assert.ErrorIs(t, s.Validate(), errors.ErrMissingConfig)

	s.SlaveID = 1
	assert.NoError(t, s.Validate())
}

func TestRegister(t *testing.T) {
	sensors := sensor.NewRegistry()
	filters := pipeline.NewRegistry()
	require.NoError(t, Register(sensors, filters, nil))

	assert.Equal(t, []string{Kind}, sensors.Kinds())
	assert.Contains(t, filters.Kinds(), KindConsumption)

	// Without a modbus manager the builder must refuse.
	cfg := config.SensorConfig{
		Name:     "scale-1",
		Type:     Kind,
		Gateway:  "rtu0",
		Settings: json.RawMessage(`{"slave_id": 1}`),
	}
	_, err := sensors.Create(context.Background(), cfg, sensor.Deps{})
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}
