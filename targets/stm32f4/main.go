//go:build stm32f4

package main

import (
	"machine"
	"time"

	"stm32drive/core"
	"stm32drive/protocol"
)

const baudRate = 115200

var (
	endpoint *protocol.Endpoint
	commands *core.DriverCommands

	// Debug counters
	bytesReceived uint32
	msgerrors     uint32
)

func main() {
	uart := machine.Serial
	uart.Configure(machine.UARTConfig{BaudRate: baudRate})

	// Debug lines share the link UART; the host skips them as garbage
	core.SetDebugWriter(func(s string) {
		uart.Write([]byte(s))
		uart.Write([]byte("\r\n"))
	})

	commands = core.NewDriverCommands(core.DriverCommandsConfig{
		Peripherals: peripheralTable,
		Registers:   registerTable,
		Delay:       time.Sleep,
	})
	endpoint = protocol.NewEndpoint(commands)
	commands.SetResponder(endpoint)

	// host restarted: drop the driver it had set up
	endpoint.SetResetCallback(commands.Reset)

	var buf [64]byte
	for {
		// Recover from panics in the main loop to prevent a firmware crash
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					endpoint.Reset()
				}
			}()

			n := 0
			for n < len(buf) && uart.Buffered() > 0 {
				b, err := uart.ReadByte()
				if err != nil {
					msgerrors++
					break
				}
				buf[n] = b
				n++
			}
			if n > 0 {
				bytesReceived += uint32(n)
				endpoint.Receive(buf[:n])
			}

			if len(endpoint.Pending()) > 0 {
				if err := endpoint.Flush(uart); err != nil {
					msgerrors++
				}
			}
		}()

		// Yield to other goroutines
		time.Sleep(10 * time.Microsecond)
	}
}
