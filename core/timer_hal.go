package core

import "time"

// ChannelSelector identifies one of the four capture/compare outputs of a timer
// as the peripheral layer expects it (the equivalent of TIM_CHANNEL_x).
type ChannelSelector uint8

const (
	TimChannel1 ChannelSelector = iota
	TimChannel2
	TimChannel3
	TimChannel4
)

// TimerPeripheral is the abstract timer control interface the driver uses.
// Platform-specific implementations handle the actual hardware.
type TimerPeripheral interface {
	// Start enables PWM generation on the selected output
	Start(sel ChannelSelector)

	// Stop disables PWM generation on the selected output
	Stop(sel ChannelSelector)
}

// CompareRegisters is a timer's capture/compare register block.
// Each of the four channels has an independently writable duty register.
type CompareRegisters interface {
	// SetCompare writes a duty value into the compare register of ch (1-4).
	// Narrowing to the hardware register width is up to the implementation.
	SetCompare(ch Channel, duty float32)
}

// RegisterTable resolves a timer number to its compare register block.
// The bool result is false when the platform has no block for that timer.
type RegisterTable func(timer int) (CompareRegisters, bool)

// DelayFunc blocks the caller for the given duration
type DelayFunc func(d time.Duration)

// Timer numbers supported by the STM32 F4 family
const (
	MinTimer = 1
	MaxTimer = 14
)

// SupportedTimer reports whether timer is one of TIM1..TIM14
func SupportedTimer(timer int) bool {
	return timer >= MinTimer && timer <= MaxTimer
}

// selectorFor maps a physical channel number to its peripheral selector
func selectorFor(ch Channel) (ChannelSelector, bool) {
	switch ch {
	case 1:
		return TimChannel1, true
	case 2:
		return TimChannel2, true
	case 3:
		return TimChannel3, true
	case 4:
		return TimChannel4, true
	default:
		return 0, false
	}
}

// Channel returns the physical channel number (1-4) for the selector
func (s ChannelSelector) Channel() Channel {
	return Channel(s) + 1
}
