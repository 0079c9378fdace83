//go:build !wasm

package serial

import (
	"fmt"

	"github.com/tarm/serial"
)

// NativePort is a Port on a local serial device
type NativePort struct {
	port *serial.Port
	cfg  Config
}

// Open opens the device described by cfg
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	c := *cfg
	if err := c.Validate(); err != nil {
		return nil, err
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        c.Device,
		Baud:        c.Baud,
		ReadTimeout: c.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", c.Device, err)
	}

	p := &NativePort{port: port, cfg: c}
	// drop anything the board sent before we were listening
	if err := p.Flush(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to flush %s: %w", c.Device, err)
	}
	return p, nil
}

// Device returns the path the port was opened on
func (p *NativePort) Device() string {
	return p.cfg.Device
}

func (p *NativePort) Read(b []byte) (int, error) {
	return p.port.Read(b)
}

func (p *NativePort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

// Close closes the device
func (p *NativePort) Close() error {
	if p.port == nil {
		return nil
	}
	return p.port.Close()
}

// Flush discards pending input and output
func (p *NativePort) Flush() error {
	return p.port.Flush()
}
