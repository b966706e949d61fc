// Package config holds the daemon configuration: defaults, an optional YAML
// file layered on top, and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/button-monitor/internal/gpio"
)

// DefaultFile is the config path used when --config is not given.
const DefaultFile = "/etc/button-monitor.yaml"

// Config is the daemon configuration.
type Config struct {
	Chip       string        `yaml:"chip"`
	InputLine  int           `yaml:"input"`
	OutputLine int           `yaml:"output"`
	Polarity   string        `yaml:"polarity"`
	Debounce   time.Duration `yaml:"debounce"`

	HTTP HTTPConfig `yaml:"http"`
	MQTT MQTTConfig `yaml:"mqtt"`

	// Heartbeat is a cron spec; empty disables heartbeats.
	Heartbeat string `yaml:"heartbeat"`

	// History is the SQLite database path; empty disables the press log.
	History string `yaml:"history"`

	Writes WriteConfig `yaml:"writes"`

	LogLevel string `yaml:"log_level"`
}

// HTTPConfig configures the control plane web server.
type HTTPConfig struct {
	// Addr is the listen address; empty disables the server.
	Addr string `yaml:"addr"`
	MDNS bool   `yaml:"mdns"`
}

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	// Broker is the broker URL; empty disables MQTT.
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	BufferSize  int    `yaml:"buffer_size"`
}

// WriteConfig limits control plane writes.
type WriteConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Chip:       "gpiochip0",
		InputLine:  gpio.DefaultInputLine,
		OutputLine: gpio.DefaultOutputLine,
		Polarity:   gpio.RisingEdge.String(),
		HTTP: HTTPConfig{
			Addr: ":80",
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://192.168.1.200:1883",
			ClientID:    "button-monitor",
			TopicPrefix: "home/button",
			BufferSize:  100,
		},
		Heartbeat: "@every 15m",
		Writes: WriteConfig{
			PerSecond: 10,
			Burst:     5,
		},
		LogLevel: "info",
	}
}

// Load reads path over the defaults. A missing file is not an error when
// optional is set.
func Load(path string, optional bool) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config %q: %w", path, err)
	}
	return cfg, nil
}

// Edge returns the parsed polarity.
func (c Config) Edge() (gpio.Edge, error) {
	return gpio.ParseEdge(c.Polarity)
}

// Validate reports every problem found, joined.
func (c Config) Validate() error {
	var errs []error
	if c.Chip == "" {
		errs = append(errs, errors.New("chip is required"))
	}
	if c.InputLine < 0 || c.OutputLine < 0 {
		errs = append(errs, fmt.Errorf("line offsets must be non-negative (input %d, output %d)", c.InputLine, c.OutputLine))
	}
	if c.InputLine == c.OutputLine {
		errs = append(errs, fmt.Errorf("input and output are both line %d", c.InputLine))
	}
	if _, err := c.Edge(); err != nil {
		errs = append(errs, err)
	}
	if c.Debounce < 0 {
		errs = append(errs, fmt.Errorf("negative debounce %v", c.Debounce))
	}
	if c.Heartbeat != "" {
		if _, err := cron.ParseStandard(c.Heartbeat); err != nil {
			errs = append(errs, fmt.Errorf("heartbeat %q: %w", c.Heartbeat, err))
		}
	}
	if c.MQTT.Broker != "" && c.MQTT.TopicPrefix == "" {
		errs = append(errs, errors.New("mqtt topic_prefix is required with a broker"))
	}
	if c.MQTT.BufferSize < 0 {
		errs = append(errs, fmt.Errorf("negative mqtt buffer_size %d", c.MQTT.BufferSize))
	}
	if c.Writes.PerSecond > 0 && c.Writes.Burst < 1 {
		errs = append(errs, fmt.Errorf("write burst %d must be at least 1", c.Writes.Burst))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	return errors.Join(errs...)
}
