package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

var (
	// debugPrintln is set by platform code (UART, USB, test recorder)
	debugPrintln DebugWriter = func(s string) {}

	// debugEnabled gates all output; off by default so the PWM test sweep
	// is not slowed down by console writes
	debugEnabled bool
)

// SetDebugWriter sets the platform-specific debug output function
func SetDebugWriter(writer DebugWriter) {
	if writer == nil {
		writer = func(string) {}
	}
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if debugEnabled {
		debugPrintln(msg)
	}
}

// debugPWM logs a driver event prefixed with the timer it belongs to
func debugPWM(timer int, msg string) {
	if !debugEnabled {
		return
	}
	debugPrintln("[PWM] tim" + itoa(timer) + " " + msg)
}
