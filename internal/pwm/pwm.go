// Package pwm drives a hardware duty-cycle generator.
// The real implementation uses the Linux PWM sysfs class.
package pwm

// Generator produces a fixed-period square wave with a variable duty cycle.
type Generator interface {
	// SetDuty sets the duty level in the range 0..Top and enables the output.
	SetDuty(level uint16) error

	// Disable silences the output.
	Disable() error

	// Close disables the output and releases the channel.
	Close() error
}
