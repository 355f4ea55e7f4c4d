package modbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jack2012aa/farm-iot/config"
	"github.com/jack2012aa/farm-iot/errors"
)

func managerConfigs() []config.ModbusConfig {
	return []config.ModbusConfig{
		{
			Name:     "rtu0",
			Mode:     config.ModbusModeRTU,
			Device:   "/dev/ttyUSB0",
			BaudRate: config.DefaultBaudRate,
			DataBits: config.DefaultDataBits,
			Parity:   config.DefaultParity,
			StopBits: config.DefaultStopBits,
			Timeout:  config.Duration(5 * time.Second),
		},
		{
			Name:    "air0",
			Mode:    config.ModbusModeTCP,
			Address: "10.0.0.7:502",
			Timeout: config.Duration(3 * time.Second),
		},
	}
}

func TestManager_Lookup(t *testing.T) {
	m, err := NewManager(managerConfigs(), nil, nil)
	require.NoError(t, err)

	conn, err := m.Get("rtu0")
	require.NoError(t, err)
	assert.Equal(t, "rtu0", conn.Name())

	_, err = m.Get("missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnknownKind)
	assert.True(t, errors.IsInvalid(err))
}

func TestManager_Names(t *testing.T) {
	m, err := NewManager(managerConfigs(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"air0", "rtu0"}, m.Names())
}

func TestManager_RejectsDuplicateNames(t *testing.T) {
	cfgs := managerConfigs()
	cfgs[1].Name = cfgs[0].Name

	_, err := NewManager(cfgs, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDuplicate)
}

func TestManager_CloseClosesEveryLink(t *testing.T) {
	lnA, lnB := &fakeLink{}, &fakeLink{}
	connA := newTestConn("a", lnA, &fakeClient{data: []byte{0x00, 0x01}})
	connB := newTestConn("b", lnB, &fakeClient{data: []byte{0x00, 0x01}})

	_, err := connA.ReadHolding(context.Background(), 1, 0, 1)
	require.NoError(t, err)
	_, err = connB.ReadHolding(context.Background(), 1, 0, 1)
	require.NoError(t, err)

	m := &Manager{conns: map[string]*Conn{"a": connA, "b": connB}}
	require.NoError(t, m.Close())

	assert.Equal(t, 1, lnA.closeCount())
	assert.Equal(t, 1, lnB.closeCount())
	assert.False(t, connA.Connected())
	assert.False(t, connB.Connected())
}
