// Package hw provides the comparator input and the indicator LED pair with
// hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package hw

// Sampler reads the comparator's analog input.
type Sampler interface {
	// Sample returns the input voltage in millivolts.
	Sample() (int, error)

	// Close releases input resources.
	Close() error
}

// LEDs drives the indicator pair.
type LEDs interface {
	// Set writes both outputs. The output being turned off is always written
	// before the output being turned on.
	Set(above, below bool) error

	// Close turns both outputs off and releases them.
	Close() error
}

// Pin definitions (BCM numbering)
const (
	DefaultPinIn    = 17 // comparator input
	DefaultPinAbove = 22 // green LED, on while input > threshold
	DefaultPinBelow = 27 // red LED, on while input <= threshold
)

// DefaultVRefMV is the rail voltage a high input line represents.
const DefaultVRefMV = 5000
