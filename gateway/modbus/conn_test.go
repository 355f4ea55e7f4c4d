package modbus

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	driver "github.com/goburrow/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jack2012aa/farm-iot/config"
	"github.com/jack2012aa/farm-iot/errors"
)

type fakeLink struct {
	mu         sync.Mutex
	connects   int
	closes     int
	slaves     []byte
	connectErr error
}

func (l *fakeLink) Connect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connects++
	return l.connectErr
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closes++
	return nil
}

func (l *fakeLink) SetSlave(id byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.slaves = append(l.slaves, id)
}

func (l *fakeLink) connectCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connects
}

func (l *fakeLink) closeCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closes
}

func (l *fakeLink) slaveHistory() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]byte(nil), l.slaves...)
}

type fakeClient struct {
	mu           sync.Mutex
	data         []byte
	err          error
	holdingCalls int
	inputCalls   int
	hook         func()
}

func (f *fakeClient) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	f.mu.Lock()
	f.holdingCalls++
	data, err, hook := f.data, f.err, f.hook
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return data, err
}

func (f *fakeClient) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	f.mu.Lock()
	f.inputCalls++
	data, err, hook := f.data, f.err, f.hook
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return data, err
}

func (f *fakeClient) set(data []byte, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data, f.err = data, err
}

func (f *fakeClient) calls() (holding, input int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.holdingCalls, f.inputCalls
}

func TestConn_ReadHoldingDecodesBigEndian(t *testing.T) {
	ln := &fakeLink{}
	client := &fakeClient{data: []byte{0x01, 0x00, 0x00, 0x0A}}
	conn := newTestConn("rtu0", ln, client)

	regs, err := conn.ReadHolding(context.Background(), 3, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint16{256, 10}, regs)

	holding, input := client.calls()
	assert.Equal(t, 1, holding)
	assert.Equal(t, 0, input)
	assert.Equal(t, []byte{3}, ln.slaveHistory())
	assert.Equal(t, 1, ln.connectCount())
	assert.True(t, conn.Connected())
}

func TestConn_ReadInputUsesInputRegisters(t *testing.T) {
	ln := &fakeLink{}
	client := &fakeClient{data: []byte{0x00, 0x2A}}
	conn := newTestConn("air0", ln, client)

	regs, err := conn.ReadInput(context.Background(), 1, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint16{42}, regs)

	holding, input := client.calls()
	assert.Equal(t, 0, holding)
	assert.Equal(t, 1, input)
}

func TestConn_SwitchesSlavePerRead(t *testing.T) {
	ln := &fakeLink{}
	client := &fakeClient{data: []byte{0x00, 0x01}}
	conn := newTestConn("rtu0", ln, client)

	_, err := conn.ReadHolding(context.Background(), 3, 0, 1)
	require.NoError(t, err)
	_, err = conn.ReadHolding(context.Background(), 7, 0, 1)
	require.NoError(t, err)

	assert.Equal(t, []byte{3, 7}, ln.slaveHistory())
	assert.Equal(t, 1, ln.connectCount(), "link connects once and is reused")
}

func TestConn_SlaveExceptionKeepsLinkUp(t *testing.T) {
	ln := &fakeLink{}
	client := &fakeClient{err: &driver.ModbusError{FunctionCode: 0x83, ExceptionCode: 2}}
	conn := newTestConn("rtu0", ln, client)

	_, err := conn.ReadHolding(context.Background(), 5, 0, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSampleRead)
	assert.True(t, errors.IsTransient(err))
	assert.True(t, conn.Connected(), "a slave exception must not tear the link down")

	client.set([]byte{0x00, 0x01}, nil)
	_, err = conn.ReadHolding(context.Background(), 5, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, ln.connectCount(), "no reconnect after a slave-level failure")
}

func TestConn_TimeoutIsSampleError(t *testing.T) {
	ln := &fakeLink{}
	client := &fakeClient{err: os.ErrDeadlineExceeded}
	conn := newTestConn("rtu0", ln, client)

	_, err := conn.ReadHolding(context.Background(), 2, 0, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSampleRead)
	assert.True(t, conn.Connected(), "a silent slave must not tear the link down")
}

func TestConn_TransportErrorForcesReconnect(t *testing.T) {
	ln := &fakeLink{}
	client := &fakeClient{err: io.ErrClosedPipe}
	conn := newTestConn("tcp0", ln, client)

	_, err := conn.ReadHolding(context.Background(), 1, 0, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrGatewayConnection)
	assert.True(t, errors.IsTransient(err))
	assert.False(t, conn.Connected())

	client.set([]byte{0x00, 0x07}, nil)
	regs, err := conn.ReadHolding(context.Background(), 1, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint16{7}, regs)
	assert.Equal(t, 2, ln.connectCount(), "next read reopens the link")
	assert.True(t, conn.Connected())
}

func TestConn_ConnectFailure(t *testing.T) {
	ln := &fakeLink{connectErr: stderrors.New("no such device")}
	conn := newTestConn("rtu0", ln, &fakeClient{})

	_, err := conn.ReadHolding(context.Background(), 1, 0, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrGatewayConnection)
	assert.True(t, errors.IsTransient(err))
	assert.False(t, conn.Connected())
}

func TestConn_ShortResponse(t *testing.T) {
	ln := &fakeLink{}
	client := &fakeClient{data: []byte{0x00}}
	conn := newTestConn("rtu0", ln, client)

	_, err := conn.ReadHolding(context.Background(), 1, 0, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSampleRead)
	assert.Contains(t, err.Error(), "response length")
}

func TestConn_ContextCanceled(t *testing.T) {
	ln := &fakeLink{}
	client := &fakeClient{data: []byte{0x00, 0x01}}
	conn := newTestConn("rtu0", ln, client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := conn.ReadHolding(ctx, 1, 0, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, ln.connectCount(), "no I/O after cancellation")
}

func TestConn_SerializesRequests(t *testing.T) {
	var inFlight atomic.Int32
	var overlapped atomic.Bool

	ln := &fakeLink{}
	client := &fakeClient{data: []byte{0x00, 0x01}}
	client.hook = func() {
		if inFlight.Add(1) != 1 {
			overlapped.Store(true)
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
	}
	conn := newTestConn("rtu0", ln, client)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(slave byte) {
			defer wg.Done()
			_, err := conn.ReadHolding(context.Background(), slave, 0, 1)
			assert.NoError(t, err)
		}(byte(i + 1))
	}
	wg.Wait()

	assert.False(t, overlapped.Load(), "requests must not overlap on a shared link")
	holding, _ := client.calls()
	assert.Equal(t, 8, holding)
}

func TestConn_Close(t *testing.T) {
	ln := &fakeLink{}
	client := &fakeClient{data: []byte{0x00, 0x01}}
	conn := newTestConn("rtu0", ln, client)

	_, err := conn.ReadHolding(context.Background(), 1, 0, 1)
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	assert.False(t, conn.Connected())
	assert.Equal(t, 1, ln.closeCount())

	// Closing an already-closed link is a no-op.
	require.NoError(t, conn.Close())
	assert.Equal(t, 1, ln.closeCount())
}

func TestNewConn_Modes(t *testing.T) {
	rtu, err := NewConn(config.ModbusConfig{
		Name:     "rtu0",
		Mode:     config.ModbusModeRTU,
		Device:   "/dev/ttyUSB0",
		BaudRate: config.DefaultBaudRate,
		DataBits: config.DefaultDataBits,
		Parity:   config.DefaultParity,
		StopBits: config.DefaultStopBits,
		Timeout:  config.Duration(5 * time.Second),
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "rtu0", rtu.Name())
	assert.False(t, rtu.Connected(), "links connect lazily")

	tcp, err := NewConn(config.ModbusConfig{
		Name:    "air0",
		Mode:    config.ModbusModeTCP,
		Address: "10.0.0.7:502",
		Timeout: config.Duration(3 * time.Second),
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "air0", tcp.Name())

	_, err = NewConn(config.ModbusConfig{Name: "x", Mode: "ascii"}, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}
