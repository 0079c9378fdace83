package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"stm32drive/core"
	"stm32drive/host/serial"
	"stm32drive/protocol"
)

type Config struct {
	Serial SerialConfig `yaml:"serial"`
	Driver DriverConfig `yaml:"driver"`
}

type SerialConfig struct {
	Device         string        `yaml:"device"`
	Baud           int           `yaml:"baud"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// DriverConfig describes the driver to set up on the board once connected
type DriverConfig struct {
	Timer int `yaml:"timer"`

	// Channels maps a one character identity to its output channel
	Channels map[string]int `yaml:"channels"`

	// Start begins PWM on every attached channel after setup
	Start bool `yaml:"start"`
}

// Binding is one identity to channel attachment
type Binding struct {
	Identity core.Identity
	Channel  core.Channel
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes and validates a YAML document
func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if cfg.Serial.Device == "" {
		return Config{}, fmt.Errorf("serial.device is required")
	}
	if cfg.Serial.Baud <= 0 {
		cfg.Serial.Baud = serial.DefaultBaud
	}
	if cfg.Serial.ReadTimeout <= 0 {
		cfg.Serial.ReadTimeout = serial.DefaultReadTimeout
	}
	if cfg.Serial.CommandTimeout <= 0 {
		cfg.Serial.CommandTimeout = protocol.DefaultTimeout
	}

	if err := cfg.Driver.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (d DriverConfig) validate() error {
	if !core.SupportedTimer(d.Timer) {
		return fmt.Errorf("driver.timer must be between %d and %d, got %d", core.MinTimer, core.MaxTimer, d.Timer)
	}

	used := make(map[int]string)
	for id, ch := range d.Channels {
		if len(id) != 1 || id[0] == byte(core.NoIdentity) {
			return fmt.Errorf("driver.channels: identity %q must be a single character", id)
		}
		if ch < 1 || ch > core.NumChannels {
			return fmt.Errorf("driver.channels.%s: channel must be between 1 and %d, got %d", id, core.NumChannels, ch)
		}
		if other, ok := used[ch]; ok {
			return fmt.Errorf("driver.channels: channel %d used by both %q and %q", ch, other, id)
		}
		used[ch] = id
	}
	return nil
}

// Bindings returns the configured attachments ordered by channel
func (d DriverConfig) Bindings() []Binding {
	out := make([]Binding, 0, len(d.Channels))
	for id, ch := range d.Channels {
		if len(id) != 1 {
			continue
		}
		out = append(out, Binding{Identity: core.Identity(id[0]), Channel: core.Channel(ch)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}

// SerialPort returns the port settings for serial.Open
func (s SerialConfig) SerialPort() *serial.Config {
	return &serial.Config{
		Device:      s.Device,
		Baud:        s.Baud,
		ReadTimeout: s.ReadTimeout,
	}
}
