package serial

import (
	"errors"
	"io"
	"time"
)

// Port is the byte stream to the board. The native implementation wraps
// github.com/tarm/serial; tests use net.Pipe.
type Port interface {
	io.ReadWriteCloser

	// Flush discards data not yet read or transmitted
	Flush() error
}

// Config holds serial port settings
type Config struct {
	// Device path, e.g. "/dev/ttyACM0" or "COM3"
	Device string

	// Baud must match the USART setup of the firmware
	Baud int

	// ReadTimeout bounds a single Read (0 blocks)
	ReadTimeout time.Duration
}

// Defaults used by the stm32f4 firmware
const (
	DefaultBaud        = 115200
	DefaultReadTimeout = 100 * time.Millisecond
)

var errNoDevice = errors.New("no serial device given")

// DefaultConfig returns the settings matching the firmware
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: DefaultReadTimeout,
	}
}

// Validate fills unset fields with defaults and checks the device path
func (c *Config) Validate() error {
	if c.Device == "" {
		return errNoDevice
	}
	if c.Baud <= 0 {
		c.Baud = DefaultBaud
	}
	if c.ReadTimeout < 0 {
		c.ReadTimeout = 0
	}
	return nil
}
