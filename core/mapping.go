package core

// Servo pulse range at a 50Hz carrier: 1-2ms of a 20ms period is 5-10% duty
const (
	ServoAngleMin = 0
	ServoAngleMax = 180
	ServoDutyMin  = float32(5.0)
	ServoDutyMax  = float32(10.0)
)

// Motor power is given in percent
const (
	MotorPowerMin = 0
	MotorPowerMax = 100

	// DefaultMotorDutyMax is the upper end of the motor duty range.
	// Full power maps to 101, one past 100; see DriverConfig.MotorDutyMax.
	DefaultMotorDutyMax = 101
)

// MapFloat linearly maps x from [inMin,inMax] to [outMin,outMax]
func MapFloat(x, inMin, inMax, outMin, outMax float32) float32 {
	return (x-inMin)*(outMax-outMin)/(inMax-inMin) + outMin
}

// MapInt is MapFloat with integer arithmetic; the division truncates toward zero
func MapInt(x, inMin, inMax, outMin, outMax int) int {
	return (x-inMin)*(outMax-outMin)/(inMax-inMin) + outMin
}

// ServoDuty converts an angle in degrees to a servo duty value.
// The angle must already be within [ServoAngleMin, ServoAngleMax].
func ServoDuty(degrees int) float32 {
	return MapFloat(float32(degrees), ServoAngleMin, ServoAngleMax, ServoDutyMin, ServoDutyMax)
}

// MotorDuty converts a power percentage to an integer motor duty in [0, dutyMax]
func MotorDuty(power, dutyMax int) int {
	return MapInt(power, MotorPowerMin, MotorPowerMax, 0, dutyMax)
}
