package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Modbus link modes.
const (
	ModbusModeRTU = "rtu"
	ModbusModeTCP = "tcp"
)

// Serial defaults applied to RTU links that leave them unset.
const (
	DefaultBaudRate = 38400
	DefaultDataBits = 8
	DefaultParity   = "N"
	DefaultStopBits = 1
	DefaultTimeout  = 5 * time.Second
)

// DefaultAlarmInterval is the per-sensor floor between repeated alarm mails.
const DefaultAlarmInterval = 10 * time.Minute

// Config is the root of a farm-iot configuration document.
type Config struct {
	Site    string         `json:"site"`
	Logging LoggingConfig  `json:"logging,omitempty"`
	Ops     OpsConfig      `json:"ops,omitempty"`
	Alarm   AlarmConfig    `json:"alarm,omitempty"`
	MQTT    *MQTTConfig    `json:"mqtt,omitempty"`
	Modbus  []ModbusConfig `json:"modbus,omitempty"`
	Sensors []SensorConfig `json:"sensors"`
}

// LoggingConfig selects the slog handler installed by the binary.
type LoggingConfig struct {
	Level  string `json:"level,omitempty"`  // debug, info, warn, error
	Format string `json:"format,omitempty"` // json, text
}

// OpsConfig configures the operational HTTP endpoint (/healthz, /metrics).
// An empty address disables the server.
type OpsConfig struct {
	Address string `json:"address,omitempty"`
}

// AlarmConfig configures alarm delivery. Without an SMTP section alarms are
// logged only.
type AlarmConfig struct {
	SMTP        *SMTPConfig `json:"smtp,omitempty"`
	MinInterval Duration    `json:"min_interval,omitempty"`
}

// SMTPConfig holds the mail relay used for alarm delivery.
type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	From     string `json:"from"`
}

// MQTTConfig holds the broker connection shared by all push sensors.
type MQTTConfig struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id,omitempty"`
}

// ModbusConfig describes one Modbus link, serial (rtu) or network (tcp).
// Sensors reference it by Name; all sensors on the same link share one
// serialized connection.
type ModbusConfig struct {
	Name     string   `json:"name"`
	Mode     string   `json:"mode"`
	Device   string   `json:"device,omitempty"`    // rtu: serial device path
	BaudRate int      `json:"baud_rate,omitempty"` // rtu only
	DataBits int      `json:"data_bits,omitempty"` // rtu only
	Parity   string   `json:"parity,omitempty"`    // rtu only: N, E, O
	StopBits int      `json:"stop_bits,omitempty"` // rtu only
	Address  string   `json:"address,omitempty"`   // tcp: host:port
	Timeout  Duration `json:"timeout,omitempty"`
}

// SensorConfig describes one sensor: its driver kind, gateway binding,
// batch parameters, responsible parties and the processing topology.
type SensorConfig struct {
	Name        string           `json:"name"`
	Type        string           `json:"type"`
	Gateway     string           `json:"gateway,omitempty"`
	Length      int              `json:"length"`
	Duration    Duration         `json:"duration,omitempty"`
	WaitingTime Duration         `json:"waiting_time,omitempty"`
	Belonging   []string         `json:"belonging,omitempty"`
	Settings    json.RawMessage  `json:"settings,omitempty"`
	Pipelines   []PipelineConfig `json:"pipelines,omitempty"`
	Exporters   []ExporterConfig `json:"exporters,omitempty"`
}

// PipelineConfig is an ordered chain of filters fed by a sensor's frames.
type PipelineConfig struct {
	Filters []FilterConfig `json:"filters"`
}

// FilterConfig selects a registered filter kind with its settings and the
// exporters fed by this filter's output.
type FilterConfig struct {
	Type      string           `json:"type"`
	Settings  json.RawMessage  `json:"settings,omitempty"`
	Exporters []ExporterConfig `json:"exporters,omitempty"`
}

// ExporterConfig selects a registered exporter kind with its settings.
type ExporterConfig struct {
	Type     string          `json:"type"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

// Validate checks the whole document and normalizes defaults in place.
func (c *Config) Validate() error {
	if c.Site == "" {
		return errors.New("site is required")
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Alarm.Validate(); err != nil {
		return fmt.Errorf("alarm: %w", err)
	}
	if c.MQTT != nil {
		if err := c.MQTT.Validate(); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	gateways := make(map[string]bool, len(c.Modbus))
	for i := range c.Modbus {
		m := &c.Modbus[i]
		if err := m.Validate(); err != nil {
			return fmt.Errorf("modbus[%d]: %w", i, err)
		}
		if gateways[m.Name] {
			return fmt.Errorf("modbus[%d]: duplicate gateway name %q", i, m.Name)
		}
		gateways[m.Name] = true
	}

	if len(c.Sensors) == 0 {
		return errors.New("at least one sensor is required")
	}
	names := make(map[string]bool, len(c.Sensors))
	for i := range c.Sensors {
		s := &c.Sensors[i]
		if err := s.Validate(); err != nil {
			return fmt.Errorf("sensors[%d]: %w", i, err)
		}
		if names[s.Name] {
			return fmt.Errorf("sensors[%d]: duplicate sensor name %q", i, s.Name)
		}
		names[s.Name] = true
		if s.Gateway != "" && !gateways[s.Gateway] {
			return fmt.Errorf("sensors[%d]: unknown gateway %q", i, s.Gateway)
		}
	}

	return nil
}

// Validate checks the logging section.
func (l *LoggingConfig) Validate() error {
	switch strings.ToLower(l.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid level %q (debug, info, warn, error)", l.Level)
	}
	switch strings.ToLower(l.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid format %q (json, text)", l.Format)
	}
	return nil
}

// Validate checks the alarm section and applies the default interval.
func (a *AlarmConfig) Validate() error {
	if a.MinInterval < 0 {
		return errors.New("min_interval cannot be negative")
	}
	if a.MinInterval == 0 {
		a.MinInterval = Duration(DefaultAlarmInterval)
	}
	if a.SMTP == nil {
		return nil
	}
	if a.SMTP.Host == "" {
		return errors.New("smtp.host is required")
	}
	if a.SMTP.Port <= 0 || a.SMTP.Port > 65535 {
		return fmt.Errorf("smtp.port %d out of range", a.SMTP.Port)
	}
	if a.SMTP.From == "" {
		return errors.New("smtp.from is required")
	}
	return nil
}

// Validate checks the MQTT section.
func (m *MQTTConfig) Validate() error {
	if m.Broker == "" {
		return errors.New("broker is required")
	}
	return nil
}

// Validate checks one Modbus link and fills serial defaults.
func (m *ModbusConfig) Validate() error {
	if m.Name == "" {
		return errors.New("name is required")
	}
	if m.Timeout < 0 {
		return errors.New("timeout cannot be negative")
	}
	if m.Timeout == 0 {
		m.Timeout = Duration(DefaultTimeout)
	}

	switch m.Mode {
	case ModbusModeRTU:
		if m.Device == "" {
			return errors.New("device is required for rtu mode")
		}
		if m.BaudRate == 0 {
			m.BaudRate = DefaultBaudRate
		}
		if m.DataBits == 0 {
			m.DataBits = DefaultDataBits
		}
		if m.Parity == "" {
			m.Parity = DefaultParity
		}
		switch m.Parity {
		case "N", "E", "O":
		default:
			return fmt.Errorf("invalid parity %q (N, E, O)", m.Parity)
		}
		if m.StopBits == 0 {
			m.StopBits = DefaultStopBits
		}
	case ModbusModeTCP:
		if m.Address == "" {
			return errors.New("address is required for tcp mode")
		}
	default:
		return fmt.Errorf("invalid mode %q (rtu, tcp)", m.Mode)
	}

	return nil
}

// Validate checks one sensor entry.
func (s *SensorConfig) Validate() error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Type == "" {
		return errors.New("type is required")
	}
	if s.Length < 1 {
		return fmt.Errorf("length must be at least 1, got %d", s.Length)
	}
	if s.Duration < 0 {
		return errors.New("duration cannot be negative")
	}
	if s.WaitingTime < 0 {
		return errors.New("waiting_time cannot be negative")
	}
	for i := range s.Pipelines {
		if err := s.Pipelines[i].Validate(); err != nil {
			return fmt.Errorf("pipelines[%d]: %w", i, err)
		}
	}
	for i := range s.Exporters {
		if err := s.Exporters[i].Validate(); err != nil {
			return fmt.Errorf("exporters[%d]: %w", i, err)
		}
	}
	return nil
}

// Validate checks one pipeline entry.
func (p *PipelineConfig) Validate() error {
	if len(p.Filters) == 0 {
		return errors.New("at least one filter is required")
	}
	for i := range p.Filters {
		f := &p.Filters[i]
		if f.Type == "" {
			return fmt.Errorf("filters[%d]: type is required", i)
		}
		for j := range f.Exporters {
			if err := f.Exporters[j].Validate(); err != nil {
				return fmt.Errorf("filters[%d].exporters[%d]: %w", i, j, err)
			}
		}
	}
	return nil
}

// Validate checks one exporter entry.
func (e *ExporterConfig) Validate() error {
	if e.Type == "" {
		return errors.New("type is required")
	}
	return nil
}

// String returns an indented JSON rendering of the config.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
