package modbus

import (
	"context"
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	driver "github.com/goburrow/modbus"

	"github.com/jack2012aa/farm-iot/config"
	"github.com/jack2012aa/farm-iot/errors"
	"github.com/jack2012aa/farm-iot/metric"
)

// link joins the lifecycle and slave-addressing surface of the two
// goburrow handler kinds.
type link interface {
	Connect() error
	Close() error
	SetSlave(id byte)
}

type rtuLink struct{ *driver.RTUClientHandler }

func (l rtuLink) SetSlave(id byte) { l.RTUClientHandler.SlaveId = id }

type tcpLink struct{ *driver.TCPClientHandler }

func (l tcpLink) SetSlave(id byte) { l.TCPClientHandler.SlaveId = id }

// regReader is the request surface of the underlying modbus client.
type regReader interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	ReadInputRegisters(address, quantity uint16) ([]byte, error)
}

// Conn is one shared Modbus link. Safe for concurrent use by several
// sensors; requests are serialized on the link mutex.
type Conn struct {
	name    string
	mode    string
	logger  *slog.Logger
	metrics *metric.Metrics

	mu        sync.Mutex
	link      link
	client    regReader
	connected bool
}

// NewConn builds a link from its configuration. No I/O happens here; the
// first read connects.
func NewConn(cfg config.ModbusConfig, logger *slog.Logger, metrics *metric.Metrics) (*Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Conn{
		name:    cfg.Name,
		mode:    cfg.Mode,
		logger:  logger.With("gateway", cfg.Name),
		metrics: metrics,
	}

	switch cfg.Mode {
	case config.ModbusModeRTU:
		h := driver.NewRTUClientHandler(cfg.Device)
		h.BaudRate = cfg.BaudRate
		h.DataBits = cfg.DataBits
		h.Parity = cfg.Parity
		h.StopBits = cfg.StopBits
		h.Timeout = cfg.Timeout.Std()
		c.link = rtuLink{h}
		c.client = driver.NewClient(h)
	case config.ModbusModeTCP:
		h := driver.NewTCPClientHandler(cfg.Address)
		h.Timeout = cfg.Timeout.Std()
		c.link = tcpLink{h}
		c.client = driver.NewClient(h)
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"Conn", "NewConn", fmt.Sprintf("mode %q", cfg.Mode))
	}

	return c, nil
}

// newTestConn wires a Conn around fakes.
func newTestConn(name string, ln link, client regReader) *Conn {
	return &Conn{
		name:   name,
		mode:   config.ModbusModeTCP,
		logger: slog.Default().With("gateway", name),
		link:   ln,
		client: client,
	}
}

// Name returns the configured gateway name.
func (c *Conn) Name() string { return c.name }

// Connected reports whether the link is currently up.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// ReadHolding reads quantity holding registers (function code 3) from the
// given slave. Blocks for at most the link timeout.
func (c *Conn) ReadHolding(ctx context.Context, slave byte, address, quantity uint16) ([]uint16, error) {
	return c.read(ctx, slave, quantity, func() ([]byte, error) {
		return c.client.ReadHoldingRegisters(address, quantity)
	})
}

// ReadInput reads quantity input registers (function code 4) from the
// given slave. Blocks for at most the link timeout.
func (c *Conn) ReadInput(ctx context.Context, slave byte, address, quantity uint16) ([]uint16, error) {
	return c.read(ctx, slave, quantity, func() ([]byte, error) {
		return c.client.ReadInputRegisters(address, quantity)
	})
}

// read serializes one request on the link: reconnect if needed, address
// the slave, perform the exchange, decode big-endian registers.
func (c *Conn) read(ctx context.Context, slave byte, quantity uint16, exchange func() ([]byte, error)) ([]uint16, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapTransient(err, "Conn", "read", "context check")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLocked(); err != nil {
		return nil, err
	}

	c.link.SetSlave(slave)
	data, err := exchange()
	if err != nil {
		return nil, c.classifyLocked(slave, err)
	}

	if len(data) != int(quantity)*2 {
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: got %d bytes for %d registers", errors.ErrSampleRead, len(data), quantity),
			"Conn", "read", "response length")
	}

	regs := make([]uint16, quantity)
	for i := range regs {
		regs[i] = binary.BigEndian.Uint16(data[2*i:])
	}
	return regs, nil
}

// ensureLocked connects the link if it is down. Caller holds c.mu.
func (c *Conn) ensureLocked() error {
	if c.connected {
		return nil
	}
	if err := c.link.Connect(); err != nil {
		c.metrics.RecordGatewayConnected(c.name, false)
		return errors.WrapTransient(
			fmt.Errorf("%w: %w", errors.ErrGatewayConnection, err),
			"Conn", "ensure", "connect "+c.mode+" link")
	}
	c.connected = true
	c.metrics.RecordGatewayConnected(c.name, true)
	c.logger.Info("modbus link connected", "mode", c.mode)
	return nil
}

// classifyLocked sorts a request failure into a sample-level error (the
// slave misbehaved or stayed silent, the link is fine) or a link-level
// one (the transport broke; mark the connection down so the next read
// reconnects). Caller holds c.mu.
func (c *Conn) classifyLocked(slave byte, err error) error {
	var me *driver.ModbusError
	if stderrors.As(err, &me) || isTimeout(err) {
		return errors.WrapTransient(
			fmt.Errorf("%w: slave %d: %w", errors.ErrSampleRead, slave, err),
			"Conn", "read", "register exchange")
	}

	c.connected = false
	c.metrics.RecordGatewayConnected(c.name, false)
	c.logger.Warn("modbus link lost", "mode", c.mode, "error", err)
	return errors.WrapTransient(
		fmt.Errorf("%w: %w", errors.ErrGatewayConnection, err),
		"Conn", "read", "register exchange")
}

// isTimeout reports whether err is a deadline-style failure.
func isTimeout(err error) bool {
	if os.IsTimeout(err) {
		return true
	}
	var ne net.Error
	return stderrors.As(err, &ne) && ne.Timeout()
}

// Close shuts the link down.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}
	c.connected = false
	c.metrics.RecordGatewayConnected(c.name, false)

	if err := c.link.Close(); err != nil {
		return errors.Wrap(err, "Conn", "Close", "close link")
	}
	return nil
}
