package core

import (
	"stm32drive/protocol"
)

// Responder queues a response message for the host
type Responder interface {
	Respond(id uint16, args func(dst []byte) []byte)
}

// PeripheralTable resolves a timer number to its start/stop interface
type PeripheralTable func(timer int) (TimerPeripheral, bool)

// DriverCommandsConfig holds the platform hooks used to build drivers on demand
type DriverCommandsConfig struct {
	Peripherals  PeripheralTable
	Registers    RegisterTable
	Delay        DelayFunc
	MotorDutyMax int
}

// DriverCommands exposes one Driver over the command link.
// The driver is created by config_driver; until then every command reports
// ErrNoDriver, exactly like calls on an absent instance.
type DriverCommands struct {
	cfg      DriverCommandsConfig
	registry *CommandRegistry
	driver   *Driver
	out      Responder
	dict     string
}

// NewDriverCommands creates the command set and registers every command
func NewDriverCommands(cfg DriverCommandsConfig) *DriverCommands {
	c := &DriverCommands{
		cfg:      cfg,
		registry: NewCommandRegistry(),
	}
	c.register()
	return c
}

func (c *DriverCommands) register() {
	r := c.registry
	r.Register(protocol.CmdConfigDriver, "config_driver", "timer=%c", c.handleConfigDriver)
	r.Register(protocol.CmdReleaseDriver, "release_driver", "", c.handleReleaseDriver)
	r.Register(protocol.CmdAttachChannel, "attach_channel", "identity=%c channel=%c", c.handleAttach)
	r.Register(protocol.CmdDetachChannel, "detach_channel", "channel=%c", c.handleDetach)
	r.Register(protocol.CmdGetChannel, "get_channel", "identity=%c", c.handleGetChannel)
	r.Register(protocol.CmdStartAll, "start_all", "", c.handleStartAll)
	r.Register(protocol.CmdStopAll, "stop_all", "", c.handleStopAll)
	r.Register(protocol.CmdStartPWM, "start_pwm", "channel=%c", c.handleStartPWM)
	r.Register(protocol.CmdStopPWM, "stop_pwm", "channel=%c", c.handleStopPWM)
	r.Register(protocol.CmdWriteDuty, "write_duty", "channel=%c duty_milli=%i", c.handleWriteDuty)
	r.Register(protocol.CmdServoWrite, "servo_write", "identity=%c degrees=%i", c.handleServoWrite)
	r.Register(protocol.CmdMotorWrite, "motor_write", "identity=%c power=%i", c.handleMotorWrite)
	r.Register(protocol.CmdPWMTest, "pwm_test", "", c.handlePWMTest)
	r.Register(protocol.CmdGetStatus, "get_status", "", c.handleGetStatus)
	r.Register(protocol.CmdIdentify, "identify", "offset=%u count=%c", c.handleIdentify)

	r.RegisterResponse(protocol.RespCommandResult, "command_result", "cmd=%c code=%c")
	r.RegisterResponse(protocol.RespChannelInfo, "channel_info", "identity=%c channel=%c")
	r.RegisterResponse(protocol.RespDriverStatus, "driver_status", "timer=%c identities=%*s running=%c")
	r.RegisterResponse(protocol.RespIdentify, "identify_response", "offset=%u data=%*s")
}

// SetResponder sets where responses are queued (usually the link endpoint)
func (c *DriverCommands) SetResponder(out Responder) {
	c.out = out
}

// Registry returns the command dictionary
func (c *DriverCommands) Registry() *CommandRegistry {
	return c.registry
}

// Driver returns the current driver, nil when none is configured
func (c *DriverCommands) Driver() *Driver {
	return c.driver
}

// Dispatch runs a command. Decoding failures and unknown IDs are answered
// with a command_result and returned so the rest of the frame is dropped.
func (c *DriverCommands) Dispatch(id uint16, args *[]byte) error {
	err := c.registry.Dispatch(id, args)
	if err != nil {
		DebugPrintln("[CMD] " + err.Error())
		c.result(id, err)
	}
	return err
}

// Reset stops and releases the driver, e.g. after the host restarted
func (c *DriverCommands) Reset() {
	c.release()
}

func (c *DriverCommands) release() error {
	if c.driver == nil {
		return ErrNoDriver
	}
	_ = c.driver.StopAll()
	err := c.driver.Close()
	c.driver = nil
	return err
}

func (c *DriverCommands) result(id uint16, err error) {
	if c.out == nil {
		return
	}
	code := ResultCode(err)
	c.out.Respond(protocol.RespCommandResult, func(dst []byte) []byte {
		dst = protocol.AppendVLQUint(dst, uint32(id))
		return protocol.AppendVLQUint(dst, uint32(code))
	})
}

// readArgs decodes n VLQ arguments
func readArgs(args *[]byte, n int) ([]int32, error) {
	vals := make([]int32, n)
	for i := range vals {
		v, err := protocol.ReadVLQ(args)
		if err != nil {
			return nil, ErrMalformedCommand
		}
		vals[i] = v
	}
	return vals, nil
}

// identityArg narrows a decoded %c argument to an Identity
func identityArg(v int32) (Identity, error) {
	if v < 0 || v > 0xFF {
		return NoIdentity, ErrInvalidIdentity
	}
	return Identity(v), nil
}

// handleConfigDriver (re)creates the driver
// Format: config_driver timer=%c
func (c *DriverCommands) handleConfigDriver(args *[]byte) error {
	v, err := readArgs(args, 1)
	if err != nil {
		return err
	}
	timer := int(v[0])

	if c.driver != nil {
		c.release()
	}

	var periph TimerPeripheral
	if c.cfg.Peripherals != nil {
		p, ok := c.cfg.Peripherals(timer)
		if ok {
			periph = p
		}
	}
	if periph == nil {
		c.result(protocol.CmdConfigDriver, &TimerError{Timer: timer, Err: ErrUnsupportedTimer})
		return nil
	}

	d, err := NewDriver(DriverConfig{
		Peripheral:   periph,
		Timer:        timer,
		Registers:    c.cfg.Registers,
		Delay:        c.cfg.Delay,
		MotorDutyMax: c.cfg.MotorDutyMax,
	})
	if err == nil {
		c.driver = d
	}
	c.result(protocol.CmdConfigDriver, err)
	return nil
}

// handleReleaseDriver stops all channels and destroys the driver
// Format: release_driver
func (c *DriverCommands) handleReleaseDriver(args *[]byte) error {
	c.result(protocol.CmdReleaseDriver, c.release())
	return nil
}

// Format: attach_channel identity=%c channel=%c
func (c *DriverCommands) handleAttach(args *[]byte) error {
	v, err := readArgs(args, 2)
	if err != nil {
		return err
	}
	id, err := identityArg(v[0])
	if err != nil {
		c.result(protocol.CmdAttachChannel, err)
		return nil
	}
	c.result(protocol.CmdAttachChannel, c.driver.Attach(id, Channel(v[1])))
	return nil
}

// Format: detach_channel channel=%c
func (c *DriverCommands) handleDetach(args *[]byte) error {
	v, err := readArgs(args, 1)
	if err != nil {
		return err
	}
	c.result(protocol.CmdDetachChannel, c.driver.Detach(Channel(v[0])))
	return nil
}

// handleGetChannel answers with channel_info, channel 0 when not attached
// Format: get_channel identity=%c
func (c *DriverCommands) handleGetChannel(args *[]byte) error {
	v, err := readArgs(args, 1)
	if err != nil {
		return err
	}
	id, err := identityArg(v[0])
	if err != nil {
		c.result(protocol.CmdGetChannel, err)
		return nil
	}
	if c.driver == nil {
		c.result(protocol.CmdGetChannel, ErrNoDriver)
		return nil
	}

	ch := c.driver.LookupChannel(id)
	if c.out != nil {
		c.out.Respond(protocol.RespChannelInfo, func(dst []byte) []byte {
			dst = protocol.AppendVLQUint(dst, uint32(id))
			return protocol.AppendVLQUint(dst, uint32(ch))
		})
	}
	if ch == NoChannel {
		c.result(protocol.CmdGetChannel, ErrIdentityNotFound)
	} else {
		c.result(protocol.CmdGetChannel, nil)
	}
	return nil
}

func (c *DriverCommands) handleStartAll(args *[]byte) error {
	c.result(protocol.CmdStartAll, c.driver.StartAll())
	return nil
}

func (c *DriverCommands) handleStopAll(args *[]byte) error {
	c.result(protocol.CmdStopAll, c.driver.StopAll())
	return nil
}

// Format: start_pwm channel=%c
func (c *DriverCommands) handleStartPWM(args *[]byte) error {
	v, err := readArgs(args, 1)
	if err != nil {
		return err
	}
	c.result(protocol.CmdStartPWM, c.driver.StartPWM(Channel(v[0])))
	return nil
}

// Format: stop_pwm channel=%c
func (c *DriverCommands) handleStopPWM(args *[]byte) error {
	v, err := readArgs(args, 1)
	if err != nil {
		return err
	}
	c.result(protocol.CmdStopPWM, c.driver.StopPWM(Channel(v[0])))
	return nil
}

// Format: write_duty channel=%c duty_milli=%i
func (c *DriverCommands) handleWriteDuty(args *[]byte) error {
	v, err := readArgs(args, 2)
	if err != nil {
		return err
	}
	duty := float32(v[1]) / protocol.DutyScale
	c.result(protocol.CmdWriteDuty, c.driver.WriteDuty(Channel(v[0]), duty))
	return nil
}

// Format: servo_write identity=%c degrees=%i
func (c *DriverCommands) handleServoWrite(args *[]byte) error {
	v, err := readArgs(args, 2)
	if err != nil {
		return err
	}
	id, err := identityArg(v[0])
	if err != nil {
		c.result(protocol.CmdServoWrite, err)
		return nil
	}
	c.result(protocol.CmdServoWrite, c.driver.ServoWrite(id, int(v[1])))
	return nil
}

// Format: motor_write identity=%c power=%i
func (c *DriverCommands) handleMotorWrite(args *[]byte) error {
	v, err := readArgs(args, 2)
	if err != nil {
		return err
	}
	id, err := identityArg(v[0])
	if err != nil {
		c.result(protocol.CmdMotorWrite, err)
		return nil
	}
	c.result(protocol.CmdMotorWrite, c.driver.MotorWrite(id, int(v[1])))
	return nil
}

// handlePWMTest runs the blocking diagnostic sweep before answering
func (c *DriverCommands) handlePWMTest(args *[]byte) error {
	c.result(protocol.CmdPWMTest, c.driver.PWMTest())
	return nil
}

// handleGetStatus answers with driver_status: the four slot identities
// (0 for unattached) and a bit mask of running channels
func (c *DriverCommands) handleGetStatus(args *[]byte) error {
	d := c.driver
	if d == nil {
		c.result(protocol.CmdGetStatus, ErrNoDriver)
		return nil
	}

	var ids [NumChannels]byte
	var running uint32
	for ch := Channel(1); ch <= NumChannels; ch++ {
		ids[ch-1] = byte(d.Identity(ch))
		if d.Running(ch) {
			running |= 1 << (ch - 1)
		}
	}
	if c.out != nil {
		c.out.Respond(protocol.RespDriverStatus, func(dst []byte) []byte {
			dst = protocol.AppendVLQUint(dst, uint32(d.Timer()))
			dst = protocol.AppendVLQBytes(dst, ids[:])
			return protocol.AppendVLQUint(dst, running)
		})
	}
	c.result(protocol.CmdGetStatus, nil)
	return nil
}

// handleIdentify returns one chunk of the dictionary text. An empty chunk
// marks the end.
// Format: identify offset=%u count=%c
func (c *DriverCommands) handleIdentify(args *[]byte) error {
	offset, err := protocol.ReadVLQUint(args)
	if err != nil {
		return ErrMalformedCommand
	}
	count, err := protocol.ReadVLQUint(args)
	if err != nil {
		return ErrMalformedCommand
	}
	if count > protocol.IdentifyChunkMax {
		count = protocol.IdentifyChunkMax
	}

	dict := c.dictionary()
	var chunk []byte
	if offset < uint32(len(dict)) {
		end := offset + count
		if end > uint32(len(dict)) {
			end = uint32(len(dict))
		}
		chunk = []byte(dict[offset:end])
	}
	if c.out != nil {
		c.out.Respond(protocol.RespIdentify, func(dst []byte) []byte {
			dst = protocol.AppendVLQUint(dst, offset)
			return protocol.AppendVLQBytes(dst, chunk)
		})
	}
	c.result(protocol.CmdIdentify, nil)
	return nil
}

// dictionary is the text served by identify, built once
func (c *DriverCommands) dictionary() string {
	if c.dict == "" {
		c.dict = "version " + protocol.Version + "\n" + c.registry.Dictionary()
	}
	return c.dict
}
