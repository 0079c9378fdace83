package protocol

// Command identifiers, host to device
const (
	CmdConfigDriver  uint16 = 1
	CmdReleaseDriver uint16 = 2
	CmdAttachChannel uint16 = 3
	CmdDetachChannel uint16 = 4
	CmdGetChannel    uint16 = 5
	CmdStartAll      uint16 = 6
	CmdStopAll       uint16 = 7
	CmdStartPWM      uint16 = 8
	CmdStopPWM       uint16 = 9
	CmdWriteDuty     uint16 = 10
	CmdServoWrite    uint16 = 11
	CmdMotorWrite    uint16 = 12
	CmdPWMTest       uint16 = 13
	CmdGetStatus     uint16 = 14
	CmdIdentify      uint16 = 15
)

// Response identifiers, device to host
const (
	RespCommandResult uint16 = 64
	RespChannelInfo   uint16 = 65
	RespDriverStatus  uint16 = 66
	RespIdentify      uint16 = 67
)

// DutyScale converts duty values to the integer duty_milli argument
const DutyScale = 1000

// IdentifyChunkMax is the largest dictionary chunk one identify_response carries
const IdentifyChunkMax = 40
