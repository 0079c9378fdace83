//go:build stm32f4

// Timer access for the STM32F4. The driver enables the timer's bus clock
// when it first resolves a timer. Board setup must already have routed the
// channel pins to the timer (GPIO alternate function) and programmed
// PSC/ARR for the carrier frequency and CCMRx for PWM mode; none of that is
// done here.
package main

import (
	"runtime/volatile"
	"unsafe"

	"stm32drive/core"
)

// timRegs is the general purpose / advanced timer register block
// (RM0090 section 14-19). Unused registers are kept for layout.
type timRegs struct {
	CR1   volatile.Register32 // 0x00
	CR2   volatile.Register32 // 0x04
	SMCR  volatile.Register32 // 0x08
	DIER  volatile.Register32 // 0x0C
	SR    volatile.Register32 // 0x10
	EGR   volatile.Register32 // 0x14
	CCMR1 volatile.Register32 // 0x18
	CCMR2 volatile.Register32 // 0x1C
	CCER  volatile.Register32 // 0x20
	CNT   volatile.Register32 // 0x24
	PSC   volatile.Register32 // 0x28
	ARR   volatile.Register32 // 0x2C
	RCR   volatile.Register32 // 0x30
	CCR1  volatile.Register32 // 0x34
	CCR2  volatile.Register32 // 0x38
	CCR3  volatile.Register32 // 0x3C
	CCR4  volatile.Register32 // 0x40
	BDTR  volatile.Register32 // 0x44
}

const (
	timCR1_CEN   = 1 << 0
	timBDTR_MOE  = 1 << 15
	timCCER_CC1E = 1 << 0 // CCxE is bit 4*(x-1)
)

// Timer base addresses, index = timer number
var timBase = [core.MaxTimer + 1]uintptr{
	1:  0x40010000,
	2:  0x40000000,
	3:  0x40000400,
	4:  0x40000800,
	5:  0x40000C00,
	6:  0x40001000,
	7:  0x40001400,
	8:  0x40010400,
	9:  0x40014000,
	10: 0x40014400,
	11: 0x40014800,
	12: 0x40001800,
	13: 0x40001C00,
	14: 0x40002000,
}

// stmTimer drives one hardware timer through its registers. It serves as
// both the peripheral (start/stop) and the compare register block.
type stmTimer struct {
	num  int
	regs *timRegs
}

var timers [core.MaxTimer + 1]*stmTimer

func timerFor(num int) (*stmTimer, bool) {
	if !core.SupportedTimer(num) {
		return nil, false
	}
	if timers[num] == nil {
		enableTimerClock(num)
		timers[num] = &stmTimer{
			num:  num,
			regs: (*timRegs)(unsafe.Pointer(timBase[num])),
		}
	}
	return timers[num], true
}

// RCC peripheral clock enable registers (RM0090 section 7.3)
const (
	rccBase    = 0x40023800
	rccAPB1ENR = rccBase + 0x40
	rccAPB2ENR = rccBase + 0x44
)

var (
	apb1ENR = (*volatile.Register32)(unsafe.Pointer(uintptr(rccAPB1ENR)))
	apb2ENR = (*volatile.Register32)(unsafe.Pointer(uintptr(rccAPB2ENR)))
)

// timerClockBit returns the RCC enable bit of a timer and whether it sits on APB2
func timerClockBit(num int) (bit uint32, apb2 bool) {
	switch num {
	case 1:
		return 1 << 0, true
	case 8:
		return 1 << 1, true
	case 9, 10, 11:
		return 1 << (16 + uint32(num-9)), true
	case 2, 3, 4, 5, 6, 7:
		return 1 << uint32(num-2), false
	case 12, 13, 14:
		return 1 << (6 + uint32(num-12)), false
	}
	return 0, false
}

func enableTimerClock(num int) {
	bit, apb2 := timerClockBit(num)
	if apb2 {
		apb2ENR.SetBits(bit)
	} else {
		apb1ENR.SetBits(bit)
	}
}

// registerTable resolves a timer number to its compare registers
func registerTable(num int) (core.CompareRegisters, bool) {
	t, ok := timerFor(num)
	if !ok {
		return nil, false
	}
	return t, true
}

// peripheralTable resolves a timer number to its start/stop control
func peripheralTable(num int) (core.TimerPeripheral, bool) {
	t, ok := timerFor(num)
	if !ok {
		return nil, false
	}
	return t, true
}

// advanced reports whether the timer has a break/dead-time unit (TIM1, TIM8)
func (t *stmTimer) advanced() bool {
	return t.num == 1 || t.num == 8
}

func ccxe(sel core.ChannelSelector) uint32 {
	return timCCER_CC1E << (4 * uint32(sel))
}

// Start enables the compare output and the counter
func (t *stmTimer) Start(sel core.ChannelSelector) {
	t.regs.CCER.SetBits(ccxe(sel))
	if t.advanced() {
		t.regs.BDTR.SetBits(timBDTR_MOE)
	}
	t.regs.CR1.SetBits(timCR1_CEN)
}

// Stop disables the compare output. The counter stops with the last output.
func (t *stmTimer) Stop(sel core.ChannelSelector) {
	t.regs.CCER.ClearBits(ccxe(sel))
	if t.regs.CCER.Get()&0x1111 != 0 {
		return
	}
	if t.advanced() {
		t.regs.BDTR.ClearBits(timBDTR_MOE)
	}
	t.regs.CR1.ClearBits(timCR1_CEN)
}

// SetCompare writes duty to CCRx, truncated to the register
func (t *stmTimer) SetCompare(ch core.Channel, duty float32) {
	if duty < 0 {
		duty = 0
	}
	v := uint32(duty)
	switch ch {
	case 1:
		t.regs.CCR1.Set(v)
	case 2:
		t.regs.CCR2.Set(v)
	case 3:
		t.regs.CCR3.Set(v)
	case 4:
		t.regs.CCR4.Set(v)
	}
}
