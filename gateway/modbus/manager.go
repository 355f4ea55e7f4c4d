package modbus

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jack2012aa/farm-iot/config"
	"github.com/jack2012aa/farm-iot/errors"
	"github.com/jack2012aa/farm-iot/metric"
)

// Manager owns every configured Modbus link, keyed by gateway name. It is
// built once at startup and read-only afterwards, so lookups need no lock.
type Manager struct {
	conns map[string]*Conn
}

// NewManager builds one Conn per gateway entry. Links are not opened
// here; each connects lazily on first read.
func NewManager(cfgs []config.ModbusConfig, logger *slog.Logger, metrics *metric.Metrics) (*Manager, error) {
	m := &Manager{conns: make(map[string]*Conn, len(cfgs))}
	for _, cfg := range cfgs {
		if _, ok := m.conns[cfg.Name]; ok {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: gateway %q", errors.ErrDuplicate, cfg.Name),
				"Manager", "NewManager", "register gateway")
		}
		conn, err := NewConn(cfg, logger, metrics)
		if err != nil {
			return nil, errors.Wrap(err, "Manager", "NewManager", "build gateway "+cfg.Name)
		}
		m.conns[cfg.Name] = conn
	}
	return m, nil
}

// Get returns the named link.
func (m *Manager) Get(name string) (*Conn, error) {
	conn, ok := m.conns[name]
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: gateway %q", errors.ErrUnknownKind, name),
			"Manager", "Get", "lookup gateway")
	}
	return conn, nil
}

// Names returns the configured gateway names, sorted.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.conns))
	for name := range m.conns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close shuts every link down, collecting errors.
func (m *Manager) Close() error {
	var errs []error
	for _, conn := range m.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
