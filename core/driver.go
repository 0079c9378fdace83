package core

import "time"

// Identity is the one-character label a caller assigns to an actuator
type Identity byte

// NoIdentity marks an unattached channel slot
const NoIdentity Identity = 0

// Channel is a physical timer output, 1 through NumChannels
type Channel int

const (
	// NoChannel is returned by LookupChannel when no slot matches
	NoChannel Channel = 0

	// NumChannels is the number of capture/compare outputs on one timer
	NumChannels = 4
)

// Diagnostic sweep parameters
const (
	PWMTestIterations = 100
	PWMTestInterval   = 50 * time.Millisecond
)

// DriverConfig holds configuration for creating a Driver
type DriverConfig struct {
	// Peripheral starts and stops PWM generation
	Peripheral TimerPeripheral

	// Timer is the hardware timer number, TIM1 through TIM14
	Timer int

	// Registers resolves Timer to its compare register block
	Registers RegisterTable

	// Delay is used between PWMTest iterations (default time.Sleep)
	Delay DelayFunc

	// MotorDutyMax is the duty written for 100% motor power.
	// Zero selects DefaultMotorDutyMax; negative values are rejected.
	MotorDutyMax int
}

// Driver manages the four PWM channels of one hardware timer.
// A Driver is not safe for concurrent use.
type Driver struct {
	timer int
	htim  TimerPeripheral
	regs  CompareRegisters

	// channels is nil once the driver has been closed
	channels *[NumChannels]Identity
	running  [NumChannels]bool

	delay        DelayFunc
	motorDutyMax int
}

// NewDriver creates a driver with all channels unattached and stopped
func NewDriver(cfg DriverConfig) (*Driver, error) {
	applyDefaults(&cfg)

	if !SupportedTimer(cfg.Timer) {
		return nil, &TimerError{Timer: cfg.Timer, Err: ErrUnsupportedTimer}
	}
	if cfg.Peripheral == nil || cfg.Registers == nil || cfg.MotorDutyMax < 0 {
		return nil, ErrInvalidConfig
	}
	regs, ok := cfg.Registers(cfg.Timer)
	if !ok || regs == nil {
		return nil, &TimerError{Timer: cfg.Timer, Err: ErrUnsupportedTimer}
	}

	d := &Driver{
		timer:        cfg.Timer,
		htim:         cfg.Peripheral,
		regs:         regs,
		channels:     new([NumChannels]Identity),
		delay:        cfg.Delay,
		motorDutyMax: cfg.MotorDutyMax,
	}
	debugPWM(d.timer, "created")
	return d, nil
}

func applyDefaults(cfg *DriverConfig) {
	if cfg.Delay == nil {
		cfg.Delay = time.Sleep
	}
	if cfg.MotorDutyMax == 0 {
		cfg.MotorDutyMax = DefaultMotorDutyMax
	}
}

// valid reports whether d is a live driver
func (d *Driver) valid() bool {
	return d != nil && d.channels != nil
}

// Close releases the channel table. The driver must not be used afterwards;
// any further call reports ErrNoDriver.
func (d *Driver) Close() error {
	if !d.valid() {
		return ErrNoDriver
	}
	d.channels = nil
	d.htim = nil
	d.regs = nil
	debugPWM(d.timer, "closed")
	return nil
}

// Timer returns the hardware timer number, or 0 for an absent driver
func (d *Driver) Timer() int {
	if !d.valid() {
		return 0
	}
	return d.timer
}

// Attach binds id to physical channel ch. An existing binding on ch is replaced.
func (d *Driver) Attach(id Identity, ch Channel) error {
	if !d.valid() {
		return ErrNoDriver
	}
	if id == NoIdentity {
		return ErrInvalidIdentity
	}
	if ch < 1 || ch > NumChannels {
		return &ChannelError{Op: "attach", Channel: ch, Err: ErrInvalidChannel}
	}
	d.channels[ch-1] = id
	debugPWM(d.timer, "attach id="+identityString(id)+" ch="+itoa(int(ch)))
	return nil
}

// Detach returns ch to the unattached state. PWM generation is left as is.
func (d *Driver) Detach(ch Channel) error {
	if !d.valid() {
		return ErrNoDriver
	}
	if ch < 1 || ch > NumChannels {
		return &ChannelError{Op: "detach", Channel: ch, Err: ErrInvalidChannel}
	}
	d.channels[ch-1] = NoIdentity
	return nil
}

// LookupChannel returns the first channel bound to id, or NoChannel
func (d *Driver) LookupChannel(id Identity) Channel {
	if !d.valid() || id == NoIdentity {
		return NoChannel
	}
	for i, slot := range d.channels {
		if slot == id {
			return Channel(i + 1)
		}
	}
	return NoChannel
}

// Identity returns the identity attached to ch, or NoIdentity
func (d *Driver) Identity(ch Channel) Identity {
	if !d.valid() || ch < 1 || ch > NumChannels {
		return NoIdentity
	}
	return d.channels[ch-1]
}

// Attached returns the open channels in ascending order
func (d *Driver) Attached() []Channel {
	if !d.valid() {
		return nil
	}
	var open []Channel
	for i, slot := range d.channels {
		if slot != NoIdentity {
			open = append(open, Channel(i+1))
		}
	}
	return open
}

// Running reports whether PWM generation was started on ch
func (d *Driver) Running(ch Channel) bool {
	if !d.valid() || ch < 1 || ch > NumChannels {
		return false
	}
	return d.running[ch-1]
}

// StartAll starts PWM on every open channel, stopping at the first failure
func (d *Driver) StartAll() error {
	if !d.valid() {
		return ErrNoDriver
	}
	for i, slot := range d.channels {
		if slot == NoIdentity {
			continue
		}
		if err := d.StartPWM(Channel(i + 1)); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops PWM on every open channel, stopping at the first failure
func (d *Driver) StopAll() error {
	if !d.valid() {
		return ErrNoDriver
	}
	for i, slot := range d.channels {
		if slot == NoIdentity {
			continue
		}
		if err := d.StopPWM(Channel(i + 1)); err != nil {
			return err
		}
	}
	return nil
}

// StartPWM starts PWM generation on physical channel ch
func (d *Driver) StartPWM(ch Channel) error {
	if !d.valid() {
		return ErrNoDriver
	}
	sel, ok := selectorFor(ch)
	if !ok {
		return &ChannelError{Op: "start", Channel: ch, Err: ErrInvalidChannel}
	}
	d.htim.Start(sel)
	d.running[ch-1] = true
	debugPWM(d.timer, "start ch="+itoa(int(ch)))
	return nil
}

// StopPWM stops PWM generation on physical channel ch
func (d *Driver) StopPWM(ch Channel) error {
	if !d.valid() {
		return ErrNoDriver
	}
	sel, ok := selectorFor(ch)
	if !ok {
		return &ChannelError{Op: "stop", Channel: ch, Err: ErrInvalidChannel}
	}
	d.htim.Stop(sel)
	d.running[ch-1] = false
	debugPWM(d.timer, "stop ch="+itoa(int(ch)))
	return nil
}

// WriteDuty writes duty into the compare register of ch.
// The value is not range checked; the timer period decides what it means.
func (d *Driver) WriteDuty(ch Channel, duty float32) error {
	if !d.valid() {
		return ErrNoDriver
	}
	if ch < 1 || ch > NumChannels {
		return &ChannelError{Op: "write duty", Channel: ch, Err: ErrInvalidChannel}
	}
	d.regs.SetCompare(ch, duty)
	return nil
}

// ServoWrite moves the servo attached as id to degrees (0-180)
func (d *Driver) ServoWrite(id Identity, degrees int) error {
	if !d.valid() {
		return ErrNoDriver
	}
	if degrees < ServoAngleMin || degrees > ServoAngleMax {
		return ErrOutOfRange
	}
	duty := ServoDuty(degrees)
	ch := d.LookupChannel(id)
	if ch == NoChannel {
		return ErrIdentityNotFound
	}
	if err := d.WriteDuty(ch, duty); err != nil {
		return err
	}
	debugPWM(d.timer, "servo id="+identityString(id)+" deg="+itoa(degrees)+" duty="+ftoa(duty))
	return nil
}

// MotorWrite drives the motor attached as id at power percent (0-100)
func (d *Driver) MotorWrite(id Identity, power int) error {
	if !d.valid() {
		return ErrNoDriver
	}
	if power < MotorPowerMin || power > MotorPowerMax {
		return ErrOutOfRange
	}
	duty := MotorDuty(power, d.motorDutyMax)
	ch := d.LookupChannel(id)
	if ch == NoChannel {
		return ErrIdentityNotFound
	}
	if err := d.WriteDuty(ch, float32(duty)); err != nil {
		return err
	}
	debugPWM(d.timer, "motor id="+identityString(id)+" power="+itoa(power)+" duty="+itoa(duty))
	return nil
}

// PWMTest sweeps the duty of every open channel from 0 to 99,
// pausing PWMTestInterval after each step. It blocks for about five seconds.
func (d *Driver) PWMTest() error {
	if !d.valid() {
		return ErrNoDriver
	}
	debugPWM(d.timer, "test sweep")
	for i := 0; i < PWMTestIterations; i++ {
		for j, slot := range d.channels {
			if slot != NoIdentity {
				_ = d.WriteDuty(Channel(j+1), float32(i))
			}
		}
		d.delay(PWMTestInterval)
	}
	return nil
}
