package drive

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"stm32drive/core"
	"stm32drive/host/config"
	"stm32drive/host/serial"
	"stm32drive/protocol"
)

// PWMTestTimeout covers the five second sweep the board runs before answering
const PWMTestTimeout = 10 * time.Second

// Controller drives the PWM driver on a connected board. Every method sends
// one command, waits for its command_result and returns the error the board
// reported, comparable with errors.Is against the core errors.
type Controller struct {
	client  *protocol.Client
	timeout time.Duration

	// mu keeps command/result pairs from interleaving
	mu sync.Mutex
}

// Status is a snapshot of the board-side driver
type Status struct {
	Timer      int
	Identities [core.NumChannels]core.Identity
	Running    [core.NumChannels]bool
}

// New wraps an open link. timeout bounds each command (0 selects
// protocol.DefaultTimeout).
func New(port io.ReadWriteCloser, timeout time.Duration) *Controller {
	if timeout <= 0 {
		timeout = protocol.DefaultTimeout
	}
	return &Controller{
		client:  protocol.NewClient(port),
		timeout: timeout,
	}
}

// Connect opens the serial device and wraps it
func Connect(cfg *serial.Config, timeout time.Duration) (*Controller, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	c := New(port, timeout)

	// Give the board time to finish booting if the open reset it
	time.Sleep(100 * time.Millisecond)
	return c, nil
}

// Close closes the link
func (c *Controller) Close() error {
	return c.client.Close()
}

// call sends one command and collects responses until its command_result.
// Responses other than the result are returned in order.
func (c *Controller) call(id uint16, args func([]byte) []byte, timeout time.Duration) ([]*protocol.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.client.Discard()
	if err := c.client.SendTimeout(id, args, timeout); err != nil {
		return nil, fmt.Errorf("command %d: %w", id, err)
	}

	var extra []*protocol.Message
	for {
		msg, err := c.client.Receive(c.timeout)
		if err != nil {
			return nil, fmt.Errorf("command %d: %w", id, err)
		}
		rid, rargs, err := msg.ID()
		if err != nil {
			return nil, fmt.Errorf("command %d: bad response: %w", id, err)
		}
		if rid != protocol.RespCommandResult {
			extra = append(extra, msg)
			continue
		}
		cmd, err1 := protocol.ReadVLQUint(&rargs)
		code, err2 := protocol.ReadVLQUint(&rargs)
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("command %d: truncated command_result", id)
		}
		if uint16(cmd) != id {
			// result of an earlier, abandoned command
			continue
		}
		return extra, core.ErrorFromCode(uint8(code))
	}
}

func (c *Controller) exec(id uint16, args ...int32) error {
	_, err := c.call(id, vlqArgs(args...), c.timeout)
	return err
}

func vlqArgs(args ...int32) func([]byte) []byte {
	if len(args) == 0 {
		return nil
	}
	return func(dst []byte) []byte {
		for _, a := range args {
			dst = protocol.AppendVLQ(dst, a)
		}
		return dst
	}
}

// Arguments travel as int32, so out-of-range values are rejected here with
// the error the board would report instead of wrapping into a valid one.
func checkChannel(op string, ch core.Channel) error {
	if ch < 1 || ch > core.NumChannels {
		return &core.ChannelError{Op: op, Channel: ch, Err: core.ErrInvalidChannel}
	}
	return nil
}

// ConfigDriver creates the driver for timer, replacing any existing one
func (c *Controller) ConfigDriver(timer int) error {
	if !core.SupportedTimer(timer) {
		return &core.TimerError{Timer: timer, Err: core.ErrUnsupportedTimer}
	}
	return c.exec(protocol.CmdConfigDriver, int32(timer))
}

// Release stops every channel and destroys the driver
func (c *Controller) Release() error {
	return c.exec(protocol.CmdReleaseDriver)
}

func (c *Controller) Attach(id core.Identity, ch core.Channel) error {
	if err := checkChannel("attach", ch); err != nil {
		return err
	}
	return c.exec(protocol.CmdAttachChannel, int32(id), int32(ch))
}

func (c *Controller) Detach(ch core.Channel) error {
	if err := checkChannel("detach", ch); err != nil {
		return err
	}
	return c.exec(protocol.CmdDetachChannel, int32(ch))
}

// Lookup returns the channel id is attached to
func (c *Controller) Lookup(id core.Identity) (core.Channel, error) {
	resps, err := c.call(protocol.CmdGetChannel, vlqArgs(int32(id)), c.timeout)
	if err != nil {
		return core.NoChannel, err
	}
	for _, m := range resps {
		rid, args, _ := m.ID()
		if rid != protocol.RespChannelInfo {
			continue
		}
		_, err1 := protocol.ReadVLQUint(&args)
		ch, err2 := protocol.ReadVLQUint(&args)
		if err1 != nil || err2 != nil {
			return core.NoChannel, fmt.Errorf("truncated channel_info")
		}
		return core.Channel(ch), nil
	}
	return core.NoChannel, fmt.Errorf("no channel_info in reply")
}

func (c *Controller) StartAll() error {
	return c.exec(protocol.CmdStartAll)
}

func (c *Controller) StopAll() error {
	return c.exec(protocol.CmdStopAll)
}

func (c *Controller) StartPWM(ch core.Channel) error {
	if err := checkChannel("start", ch); err != nil {
		return err
	}
	return c.exec(protocol.CmdStartPWM, int32(ch))
}

func (c *Controller) StopPWM(ch core.Channel) error {
	if err := checkChannel("stop", ch); err != nil {
		return err
	}
	return c.exec(protocol.CmdStopPWM, int32(ch))
}

// WriteDuty writes a raw compare value, sent with three decimals
func (c *Controller) WriteDuty(ch core.Channel, duty float32) error {
	if err := checkChannel("write duty", ch); err != nil {
		return err
	}
	milli := math.Round(float64(duty) * protocol.DutyScale)
	if milli > math.MaxInt32 || milli < math.MinInt32 {
		return core.ErrOutOfRange
	}
	return c.exec(protocol.CmdWriteDuty, int32(ch), int32(milli))
}

func (c *Controller) ServoWrite(id core.Identity, degrees int) error {
	if degrees < core.ServoAngleMin || degrees > core.ServoAngleMax {
		return core.ErrOutOfRange
	}
	return c.exec(protocol.CmdServoWrite, int32(id), int32(degrees))
}

func (c *Controller) MotorWrite(id core.Identity, power int) error {
	if power < core.MotorPowerMin || power > core.MotorPowerMax {
		return core.ErrOutOfRange
	}
	return c.exec(protocol.CmdMotorWrite, int32(id), int32(power))
}

// PWMTest runs the duty sweep on every attached channel and blocks until
// the board finishes it
func (c *Controller) PWMTest() error {
	_, err := c.call(protocol.CmdPWMTest, nil, PWMTestTimeout)
	return err
}

// Status reads the channel table and running state
func (c *Controller) Status() (Status, error) {
	resps, err := c.call(protocol.CmdGetStatus, nil, c.timeout)
	if err != nil {
		return Status{}, err
	}
	for _, m := range resps {
		rid, args, _ := m.ID()
		if rid != protocol.RespDriverStatus {
			continue
		}
		timer, err1 := protocol.ReadVLQUint(&args)
		ids, err2 := protocol.ReadVLQBytes(&args)
		running, err3 := protocol.ReadVLQUint(&args)
		if err1 != nil || err2 != nil || err3 != nil || len(ids) != core.NumChannels {
			return Status{}, fmt.Errorf("truncated driver_status")
		}
		st := Status{Timer: int(timer)}
		for i := range st.Identities {
			st.Identities[i] = core.Identity(ids[i])
			st.Running[i] = running&(1<<i) != 0
		}
		return st, nil
	}
	return Status{}, fmt.Errorf("no driver_status in reply")
}

func (s Status) String() string {
	var b strings.Builder
	b.WriteString("tim" + strconv.Itoa(s.Timer))
	for i, id := range s.Identities {
		b.WriteString(" ch" + strconv.Itoa(i+1) + "=")
		if id == core.NoIdentity {
			b.WriteString("-")
		} else {
			b.WriteByte(byte(id))
		}
		if s.Running[i] {
			b.WriteString("*")
		}
	}
	return b.String()
}

// Apply sets up the driver described by cfg: create, attach every binding,
// then start all channels when requested
func (c *Controller) Apply(cfg config.DriverConfig) error {
	if err := c.ConfigDriver(cfg.Timer); err != nil {
		return fmt.Errorf("config_driver tim%d: %w", cfg.Timer, err)
	}
	for _, b := range cfg.Bindings() {
		if err := c.Attach(b.Identity, b.Channel); err != nil {
			return fmt.Errorf("attach %c to channel %d: %w", b.Identity, b.Channel, err)
		}
	}
	if cfg.Start {
		if err := c.StartAll(); err != nil {
			return fmt.Errorf("start_all: %w", err)
		}
	}
	return nil
}
