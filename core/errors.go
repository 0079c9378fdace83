package core

import "errors"

var (
	ErrNoDriver         = errors.New("no such driver")
	ErrInvalidChannel   = errors.New("invalid channel")
	ErrOutOfRange       = errors.New("value out of range")
	ErrIdentityNotFound = errors.New("identity not attached")
	ErrInvalidIdentity  = errors.New("invalid identity")
	ErrUnsupportedTimer = errors.New("unsupported timer")
	ErrInvalidConfig    = errors.New("invalid driver configuration")
)

// ChannelError records a failed operation on a physical channel
type ChannelError struct {
	Op      string
	Channel Channel
	Err     error
}

func (e *ChannelError) Error() string {
	return e.Op + " channel " + itoa(int(e.Channel)) + ": " + e.Err.Error()
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// TimerError records a timer that could not be resolved to a register block
type TimerError struct {
	Timer int
	Err   error
}

func (e *TimerError) Error() string {
	return "tim" + itoa(e.Timer) + ": " + e.Err.Error()
}

func (e *TimerError) Unwrap() error {
	return e.Err
}

// Result codes carried in command_result responses
const (
	ResultOK               uint8 = 0
	ResultNoDriver         uint8 = 1
	ResultInvalidChannel   uint8 = 2
	ResultOutOfRange       uint8 = 3
	ResultIdentityNotFound uint8 = 4
	ResultInvalidIdentity  uint8 = 5
	ResultUnsupportedTimer uint8 = 6
	ResultMalformed        uint8 = 7
	ResultInvalidConfig    uint8 = 8
	ResultUnknown          uint8 = 0xFF
)

// ErrMalformedCommand is returned when command arguments cannot be decoded
var ErrMalformedCommand = errors.New("malformed command")

var resultErrors = [...]struct {
	code uint8
	err  error
}{
	{ResultNoDriver, ErrNoDriver},
	{ResultInvalidChannel, ErrInvalidChannel},
	{ResultOutOfRange, ErrOutOfRange},
	{ResultIdentityNotFound, ErrIdentityNotFound},
	{ResultInvalidIdentity, ErrInvalidIdentity},
	{ResultUnsupportedTimer, ErrUnsupportedTimer},
	{ResultMalformed, ErrMalformedCommand},
	{ResultInvalidConfig, ErrInvalidConfig},
}

// ResultCode maps an error returned by the driver to its wire result code
func ResultCode(err error) uint8 {
	if err == nil {
		return ResultOK
	}
	for _, r := range resultErrors {
		if errors.Is(err, r.err) {
			return r.code
		}
	}
	return ResultUnknown
}

// ErrorFromCode is the inverse of ResultCode.
// Unknown codes produce a generic error naming the code.
func ErrorFromCode(code uint8) error {
	if code == ResultOK {
		return nil
	}
	for _, r := range resultErrors {
		if r.code == code {
			return r.err
		}
	}
	return errors.New("driver error code " + itoa(int(code)))
}
